package mexc

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarpenko/futurestrack/internal/domain"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, NewClient(srv.URL, "test-key", "test-secret")
}

func TestFetchPositionsSignsRequest(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/private/position/open_positions":
			apiKey := r.Header.Get("ApiKey")
			reqTime := r.Header.Get("Request-Time")
			sig := r.Header.Get("Signature")

			assert.Equal(t, "test-key", apiKey)
			require.NotEmpty(t, reqTime)

			mac := hmac.New(sha256.New, []byte("test-secret"))
			mac.Write([]byte(apiKey + reqTime))
			assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), sig)

			w.Write([]byte(`{"success":true,"code":0,"data":[]}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	positions, err := client.FetchPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestFetchPositionsNormalizesSnapshots(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/private/position/open_positions":
			w.Write([]byte(`{"success":true,"code":0,"data":[
				{"symbol":"BTC_USDT","positionType":1,"holdVol":1.5,"holdAvgPrice":50000,"leverage":10,"updateTime":1700000000000},
				{"symbol":"ETH_USDT","positionType":2,"holdVol":2,"holdAvgPrice":2000,"leverage":5,"updateTime":1700000000000},
				{"symbol":"DOGE_USDT","positionType":1,"holdVol":0,"holdAvgPrice":0.1,"leverage":20}
			]}`))
		case "/api/v1/contract/ticker":
			switch r.URL.Query().Get("symbol") {
			case "BTC_USDT":
				w.Write([]byte(`{"success":true,"code":0,"data":{"symbol":"BTC_USDT","lastPrice":50400,"fairPrice":50500}}`))
			case "ETH_USDT":
				w.Write([]byte(`{"success":true,"code":0,"data":{"symbol":"ETH_USDT","lastPrice":2040,"fairPrice":0}}`))
			default:
				t.Fatalf("unexpected ticker symbol %q", r.URL.Query().Get("symbol"))
			}
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	positions, err := client.FetchPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2, "zero-volume rows are filtered out")

	btc := positions[0]
	assert.Equal(t, "BTC_USDT", btc.Symbol)
	assert.Equal(t, domain.SideLong, btc.Side)
	assert.Equal(t, 1.5, btc.Size)
	assert.Equal(t, 50000.0, btc.EntryPrice)
	assert.Equal(t, 50500.0, btc.MarkPrice, "fair price preferred over last price")
	assert.Equal(t, 10, btc.Leverage)
	// +1% price change at 10x leverage.
	assert.InDelta(t, 10.0, btc.PnlPercent, 1e-9)
	assert.Equal(t, int64(1700000000000), btc.ObservedAt.UnixMilli())

	eth := positions[1]
	assert.Equal(t, domain.SideShort, eth.Side)
	assert.Equal(t, 2040.0, eth.MarkPrice, "last price used when fair price is absent")
	// +2% price change against a 5x short.
	assert.InDelta(t, -10.0, eth.PnlPercent, 1e-9)
}

func TestFetchPositionsErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{
			name:    "http unauthorized",
			status:  http.StatusUnauthorized,
			body:    `{}`,
			wantErr: domain.ErrUnauthorized,
		},
		{
			name:    "http rate limited",
			status:  http.StatusTooManyRequests,
			body:    `{}`,
			wantErr: domain.ErrRateLimited,
		},
		{
			name:    "api invalid key",
			status:  http.StatusOK,
			body:    `{"success":false,"code":401,"message":"invalid api key"}`,
			wantErr: domain.ErrUnauthorized,
		},
		{
			name:    "api invalid signature",
			status:  http.StatusOK,
			body:    `{"success":false,"code":602,"message":"signature verification failed"}`,
			wantErr: domain.ErrUnauthorized,
		},
		{
			name:    "api contract not exist",
			status:  http.StatusOK,
			body:    `{"success":false,"code":1002,"message":"contract not exist"}`,
			wantErr: domain.ErrUnsupportedMarket,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.FetchPositions(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPnlPercent(t *testing.T) {
	tests := []struct {
		name     string
		side     domain.Side
		entry    float64
		mark     float64
		leverage float64
		want     float64
	}{
		{"long gain", domain.SideLong, 100, 105, 10, 50},
		{"long loss", domain.SideLong, 100, 98, 10, -20},
		{"short gain", domain.SideShort, 100, 95, 4, 20},
		{"short loss", domain.SideShort, 100, 102, 4, -8},
		{"zero entry", domain.SideLong, 0, 100, 10, 0},
		{"zero leverage treated as 1x", domain.SideLong, 100, 110, 0, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, pnlPercent(tt.side, tt.entry, tt.mark, tt.leverage), 1e-9)
		})
	}
}
