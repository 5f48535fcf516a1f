// Package redis implements the position state store on go-redis/v9, so the
// tracked-position table survives process restarts.
package redis

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkarpenko/futurestrack/internal/domain"
)

// Config holds connection parameters for the position store.
type Config struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool

	// KeyPrefix namespaces the hash key. Empty means "positions".
	KeyPrefix string
}

// PositionStore implements domain.PositionStateStore on a single Redis hash.
//
// Key schema:
//
//	positions:tracked - hash, field "SYMBOL/SIDE", value JSON trackedRecord
//
// Replace rewrites the whole hash in one transaction so a reconcile is never
// observed half-applied.
type PositionStore struct {
	rdb *redis.Client
	key string
}

// NewPositionStore dials Redis, verifies connectivity with a ping, and
// returns the store. The caller owns the connection and releases it with
// Close.
func NewPositionStore(ctx context.Context, cfg Config) (*PositionStore, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "positions"
	}
	return &PositionStore{rdb: rdb, key: prefix + ":tracked"}, nil
}

// Close releases the connection pool.
func (s *PositionStore) Close() error {
	return s.rdb.Close()
}

// trackedRecord is the JSON shape of one tracked position in the hash.
type trackedRecord struct {
	Symbol             string    `json:"symbol"`
	Side               string    `json:"side"`
	OpenedAt           time.Time `json:"opened_at"`
	OpenObserved       bool      `json:"open_observed"`
	Size               float64   `json:"size"`
	EntryPrice         float64   `json:"entry_price"`
	MarkPrice          float64   `json:"mark_price"`
	Leverage           int       `json:"leverage"`
	PnlPercent         float64   `json:"pnl_percent"`
	ObservedAt         time.Time `json:"observed_at"`
	MaxProfitPercent   float64   `json:"max_profit_percent"`
	MaxDrawdownPercent float64   `json:"max_drawdown_percent"`
	HasBeenScaled      bool      `json:"has_been_scaled"`
}

func toRecord(p domain.TrackedPosition) trackedRecord {
	return trackedRecord{
		Symbol:             p.Key.Symbol,
		Side:               string(p.Key.Side),
		OpenedAt:           p.OpenedAt,
		OpenObserved:       p.OpenObserved,
		Size:               p.Last.Size,
		EntryPrice:         p.Last.EntryPrice,
		MarkPrice:          p.Last.MarkPrice,
		Leverage:           p.Last.Leverage,
		PnlPercent:         p.Last.PnlPercent,
		ObservedAt:         p.Last.ObservedAt,
		MaxProfitPercent:   p.MaxProfitPercent,
		MaxDrawdownPercent: p.MaxDrawdownPercent,
		HasBeenScaled:      p.HasBeenScaled,
	}
}

func fromRecord(rec trackedRecord) domain.TrackedPosition {
	key := domain.PositionKey{Symbol: rec.Symbol, Side: domain.Side(rec.Side)}
	return domain.TrackedPosition{
		Key:          key,
		OpenedAt:     rec.OpenedAt,
		OpenObserved: rec.OpenObserved,
		Last: domain.PositionSnapshot{
			Symbol:     rec.Symbol,
			Side:       key.Side,
			Size:       rec.Size,
			EntryPrice: rec.EntryPrice,
			MarkPrice:  rec.MarkPrice,
			Leverage:   rec.Leverage,
			PnlPercent: rec.PnlPercent,
			ObservedAt: rec.ObservedAt,
		},
		MaxProfitPercent:   rec.MaxProfitPercent,
		MaxDrawdownPercent: rec.MaxDrawdownPercent,
		HasBeenScaled:      rec.HasBeenScaled,
	}
}

// Load reads the whole tracked-position table.
func (s *PositionStore) Load(ctx context.Context) (map[domain.PositionKey]domain.TrackedPosition, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load positions: %w", err)
	}

	table := make(map[domain.PositionKey]domain.TrackedPosition, len(fields))
	for field, raw := range fields {
		var rec trackedRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("redis: unmarshal position %s: %w", field, err)
		}
		tracked := fromRecord(rec)
		table[tracked.Key] = tracked
	}
	return table, nil
}

// Replace atomically swaps the tracked-position table for the given one.
func (s *PositionStore) Replace(ctx context.Context, table map[domain.PositionKey]domain.TrackedPosition) error {
	values := make(map[string]any, len(table))
	for key, tracked := range table {
		data, err := json.Marshal(toRecord(tracked))
		if err != nil {
			return fmt.Errorf("redis: marshal position %s: %w", key, err)
		}
		values[key.String()] = data
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.key)
	if len(values) > 0 {
		pipe.HSet(ctx, s.key, values)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: replace positions: %w", err)
	}
	return nil
}
