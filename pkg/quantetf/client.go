// Package quantetf is a Go client for the quantetf results API.
package quantetf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when the server has no run with the requested ID.
var ErrNotFound = errors.New("run not found")

// Run is a saved backtest run summary.
type Run struct {
	ID             int64   `json:"id"`
	Label          string  `json:"label"`
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name"`
	Class          string  `json:"class"`
	Policy         string  `json:"policy"`
	Mode           string  `json:"mode"`
	StartDate      string  `json:"start_date"`
	EndDate        string  `json:"end_date"`
	Bars           int     `json:"bars"`
	InitialCapital float64 `json:"initial_capital"`
	FinalEquity    float64 `json:"final_equity"`
	TotalReturn    float64 `json:"total_return"`
	WinRate        float64 `json:"win_rate"`
	NumTrades      int     `json:"num_trades"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	Volatility     float64 `json:"volatility"`
	Sharpe         float64 `json:"sharpe"`
	SuppressedDays int     `json:"suppressed_days"`
	CreatedAt      string  `json:"created_at"`
}

// Trade is one entry of a saved run's trade log. PnL, Return and HoldDays
// are nil on buys.
type Trade struct {
	Seq      int      `json:"seq"`
	Date     string   `json:"date"`
	Action   string   `json:"action"`
	Price    float64  `json:"price"`
	Shares   int64    `json:"shares"`
	Score    float64  `json:"score"`
	PnL      *float64 `json:"pnl,omitempty"`
	Return   *float64 `json:"return,omitempty"`
	HoldDays *int     `json:"hold_days,omitempty"`
}

// RunQuery narrows ListRuns. Zero values are not sent.
type RunQuery struct {
	Symbol string
	Label  string
	Limit  int
}

// Client provides a Go SDK for interacting with the quantetf results API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new quantetf API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ListRuns retrieves saved runs, newest first.
func (c *Client) ListRuns(ctx context.Context, q RunQuery) ([]Run, error) {
	v := url.Values{}
	if q.Symbol != "" {
		v.Set("symbol", q.Symbol)
	}
	if q.Label != "" {
		v.Set("label", q.Label)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/api/runs"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var runs []Run
	if err := c.get(ctx, path, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun retrieves one run.
func (c *Client) GetRun(ctx context.Context, id int64) (*Run, error) {
	var run Run
	if err := c.get(ctx, fmt.Sprintf("/api/runs/%d", id), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListTrades retrieves the trade log of a run in execution order.
func (c *Client) ListTrades(ctx context.Context, id int64) ([]Trade, error) {
	var trades []Trade
	if err := c.get(ctx, fmt.Sprintf("/api/runs/%d/trades", id), &trades); err != nil {
		return nil, err
	}
	return trades, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("GET %s: %s: %s", path, resp.Status, body.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
