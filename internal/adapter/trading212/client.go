// Package trading212 provides a client for the Trading 212 public API.
package trading212

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the live Trading 212 API root.
const DefaultBaseURL = "https://live.trading212.com/api/v0"

// ErrMissingCredentials is returned when the key or secret is empty.
var ErrMissingCredentials = errors.New("TRADING212_API_KEY and TRADING212_API_SECRET are not set")

// Error is returned when the Trading 212 API call fails.
type Error struct {
	StatusCode int
	Message    string
	Payload    json.RawMessage
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("trading212 [%d]: %s", e.StatusCode, e.Message)
	}
	return "trading212: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Client is a thin wrapper around the Trading 212 API using basic auth.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// NewClient creates a new Trading 212 client.
func NewClient(baseURL, apiKey, apiSecret string, timeout time.Duration) (*Client, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, ErrMissingCredentials
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// GetAccountInfo returns account metadata (currency code, id).
func (c *Client) GetAccountInfo(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/equity/account/info", nil, false)
}

// GetAccountCash returns the cash breakdown of the account.
func (c *Client) GetAccountCash(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/equity/account/cash", nil, false)
}

// ListOrders returns all active orders.
func (c *Client) ListOrders(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/equity/orders", nil, false)
}

// GetOrder returns a single active order.
func (c *Client) GetOrder(ctx context.Context, orderID int64) (json.RawMessage, error) {
	return c.get(ctx, "/equity/orders/"+strconv.FormatInt(orderID, 10), nil, false)
}

// GetPortfolio returns all open positions.
func (c *Client) GetPortfolio(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/equity/portfolio", nil, false)
}

// GetPosition returns the open position for ticker, or nil when there is none.
func (c *Client) GetPosition(ctx context.Context, ticker string) (json.RawMessage, error) {
	return c.get(ctx, "/equity/portfolio/"+url.PathEscape(ticker), nil, true)
}

// ListPositions returns open positions, optionally filtered by ticker
// (e.g. "AAPL_US_EQ").
func (c *Client) ListPositions(ctx context.Context, ticker string) (json.RawMessage, error) {
	var params url.Values
	if ticker != "" {
		params = url.Values{"ticker": {ticker}}
	}
	return c.get(ctx, "/equity/positions", params, false)
}

// HistoryParams filters paginated history endpoints.
type HistoryParams struct {
	Cursor *int64
	Ticker string
	Limit  int
}

func (p HistoryParams) values() url.Values {
	params := url.Values{}
	if p.Cursor != nil {
		params.Set("cursor", strconv.FormatInt(*p.Cursor, 10))
	}
	if p.Ticker != "" {
		params.Set("ticker", p.Ticker)
	}
	if p.Limit > 0 {
		params.Set("limit", strconv.Itoa(p.Limit))
	}
	return params
}

// ListHistoricalOrders returns a page of filled/cancelled orders.
func (c *Client) ListHistoricalOrders(ctx context.Context, p HistoryParams) (json.RawMessage, error) {
	return c.get(ctx, "/equity/history/orders", p.values(), false)
}

// ListDividends returns a page of paid-out dividends.
func (c *Client) ListDividends(ctx context.Context, p HistoryParams) (json.RawMessage, error) {
	return c.get(ctx, "/history/dividends", p.values(), false)
}

// TransactionParams filters ListTransactions.
type TransactionParams struct {
	Cursor string
	Time   string
	Limit  int
}

// ListTransactions returns a page of account transactions.
func (c *Client) ListTransactions(ctx context.Context, p TransactionParams) (*PaginatedTransactions, error) {
	params := url.Values{}
	if p.Cursor != "" {
		params.Set("cursor", p.Cursor)
	}
	if p.Time != "" {
		params.Set("time", p.Time)
	}
	if p.Limit > 0 {
		params.Set("limit", strconv.Itoa(p.Limit))
	}

	data, err := c.get(ctx, "/history/transactions", params, false)
	if err != nil {
		return nil, err
	}

	var page PaginatedTransactions
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, &Error{Message: "failed to decode transactions page", Payload: data, Err: err}
	}
	page.fillPagination()
	return &page, nil
}

// ListInstruments returns all tradable instruments.
func (c *Client) ListInstruments(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/equity/metadata/instruments", nil, false)
}

// ListExchanges returns exchanges and their working schedules.
func (c *Client) ListExchanges(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/equity/metadata/exchanges", nil, false)
}

// ListReports returns previously requested exports.
func (c *Client) ListReports(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/history/exports", nil, false)
}

// get performs one read-only API call. A nil result with a nil error means the
// response had no body (204), or a 404 when allow404 is set.
func (c *Client) get(ctx context.Context, path string, params url.Values, allow404 bool) (json.RawMessage, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, c.apiSecret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Message: "failed to call Trading 212 API", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Message: "failed to read Trading 212 response", Err: err}
	}

	if resp.StatusCode == http.StatusNotFound && allow404 {
		return nil, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Message:    extractErrorMessage(respBody),
			Payload:    safeJSON(respBody),
		}
	}

	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(respBody)) == 0 {
		return nil, nil
	}

	if !json.Valid(respBody) {
		return nil, &Error{StatusCode: resp.StatusCode, Message: "failed to decode Trading 212 response as JSON"}
	}
	return json.RawMessage(respBody), nil
}

// extractErrorMessage prefers the API's "clarification" field, then the raw body.
func extractErrorMessage(body []byte) string {
	var payload struct {
		Clarification *string `json:"clarification"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Clarification != nil {
		return *payload.Clarification
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return "Trading 212 API returned an error"
}

func safeJSON(body []byte) json.RawMessage {
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return nil
}
