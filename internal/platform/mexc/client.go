// Package mexc implements the position snapshot source against the MEXC
// contract (futures) API.
package mexc

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mkarpenko/futurestrack/internal/domain"
)

const defaultBaseURL = "https://contract.mexc.com"

// Client is the REST client for the MEXC contract API. Private endpoints are
// signed with HMAC-SHA256 over apiKey + requestTime + sorted query string.
type Client struct {
	baseURL    string
	apiKey     string
	secretKey  []byte
	httpClient *http.Client
}

// NewClient creates a MEXC contract API client. baseURL may be empty to use
// the production endpoint.
func NewClient(baseURL, apiKey, secretKey string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		secretKey: []byte(secretKey),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the exchange identifier used in logs and alerts.
func (c *Client) Name() string {
	return "mexc"
}

// FetchPositions returns the account's open positions normalized to
// snapshots. Rows with zero volume are filtered out; the mark price comes
// from the contract ticker and the pnl percent is computed from entry, mark,
// side and leverage.
func (c *Client) FetchPositions(ctx context.Context) ([]domain.PositionSnapshot, error) {
	body, err := c.doSigned(ctx, "/api/v1/private/position/open_positions", nil)
	if err != nil {
		return nil, fmt.Errorf("mexc: fetch positions: %w", err)
	}

	var resp openPositionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("mexc: decode positions: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("mexc: fetch positions: %w", apiError(resp.apiResponse))
	}

	snapshots := make([]domain.PositionSnapshot, 0, len(resp.Data))
	for _, pos := range resp.Data {
		if pos.HoldVol == 0 {
			continue
		}

		side := domain.SideLong
		if pos.PositionType != 1 {
			side = domain.SideShort
		}

		mark, err := c.markPrice(ctx, pos.Symbol)
		if err != nil {
			return nil, fmt.Errorf("mexc: mark price %s: %w", pos.Symbol, err)
		}

		observedAt := time.Now().UTC()
		if pos.UpdateTime > 0 {
			observedAt = time.UnixMilli(pos.UpdateTime).UTC()
		}

		snapshots = append(snapshots, domain.PositionSnapshot{
			Symbol:     pos.Symbol,
			Side:       side,
			Size:       pos.HoldVol,
			EntryPrice: pos.HoldAvgPrice,
			MarkPrice:  mark,
			Leverage:   int(pos.Leverage),
			PnlPercent: pnlPercent(side, pos.HoldAvgPrice, mark, pos.Leverage),
			ObservedAt: observedAt,
		})
	}

	return snapshots, nil
}

// markPrice returns the contract's fair price, falling back to the last
// trade price when the fair price is absent.
func (c *Client) markPrice(ctx context.Context, symbol string) (float64, error) {
	body, err := c.doPublic(ctx, "/api/v1/contract/ticker", url.Values{"symbol": {symbol}})
	if err != nil {
		return 0, err
	}

	var resp tickerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decode ticker: %w", err)
	}
	if !resp.Success {
		return 0, apiError(resp.apiResponse)
	}

	if resp.Data.FairPrice > 0 {
		return resp.Data.FairPrice, nil
	}
	return resp.Data.LastPrice, nil
}

// pnlPercent computes the leveraged unrealized pnl percent from the entry
// and mark prices.
func pnlPercent(side domain.Side, entry, mark, leverage float64) float64 {
	if entry == 0 || mark == 0 {
		return 0
	}
	change := (mark - entry) / entry * 100
	if side == domain.SideShort {
		change = -change
	}
	if leverage <= 0 {
		leverage = 1
	}
	return change * leverage
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// doSigned issues an authenticated GET. MEXC signs apiKey + requestTime +
// the query string with parameters in ascending key order.
func (c *Client) doSigned(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqTime := strconv.FormatInt(time.Now().UnixMilli(), 10)
	paramString := sortedEncode(params)

	req, err := c.newGet(ctx, path, paramString)
	if err != nil {
		return nil, err
	}
	req.Header.Set("ApiKey", c.apiKey)
	req.Header.Set("Request-Time", reqTime)
	req.Header.Set("Signature", c.sign(reqTime, paramString))
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

// doPublic issues an unauthenticated GET.
func (c *Client) doPublic(ctx context.Context, path string, params url.Values) ([]byte, error) {
	req, err := c.newGet(ctx, path, sortedEncode(params))
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) newGet(ctx context.Context, path, paramString string) (*http.Request, error) {
	fullURL := c.baseURL + path
	if paramString != "" {
		fullURL += "?" + paramString
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrUnauthorized, resp.StatusCode, body)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d", domain.ErrRateLimited, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	return body, nil
}

func (c *Client) sign(reqTime, paramString string) string {
	mac := hmac.New(sha256.New, c.secretKey)
	mac.Write([]byte(c.apiKey + reqTime + paramString))
	return hex.EncodeToString(mac.Sum(nil))
}

// sortedEncode encodes params as k=v pairs joined by & in ascending key
// order, the form MEXC signs over.
func sortedEncode(params url.Values) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params.Get(k))
	}
	return strings.Join(pairs, "&")
}

// apiError maps MEXC API error codes onto the domain taxonomy.
func apiError(resp apiResponse) error {
	switch resp.Code {
	case codeInvalidAPIKey, codeInvalidSignature:
		return fmt.Errorf("%w: code %d: %s", domain.ErrUnauthorized, resp.Code, resp.Message)
	case codeContractNotExist:
		return fmt.Errorf("%w: code %d: %s", domain.ErrUnsupportedMarket, resp.Code, resp.Message)
	default:
		return fmt.Errorf("api error: code %d: %s", resp.Code, resp.Message)
	}
}
