// Package alphavantage provides a client for the Alpha Vantage market data API.
package alphavantage

import (
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

// DefaultBaseURL is the Alpha Vantage query endpoint.
const DefaultBaseURL = "https://www.alphavantage.co/query"

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("ALPHA_VANTAGE_API_KEY is not set")

// payloadMessageKeys are top-level keys Alpha Vantage uses to report
// failures with a 200 status.
var payloadMessageKeys = []string{"Error Message", "Note", "Information"}

// Error is returned when the Alpha Vantage API call fails.
type Error struct {
	StatusCode int
	Message    string
	Payload    json.RawMessage
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("alphavantage [%d]: %s", e.StatusCode, e.Message)
	}
	return "alphavantage: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Client wraps the most common Alpha Vantage functions. All calls request
// JSON output.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new Alpha Vantage client.
func NewClient(baseURL, apiKey string, timeout time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// GetGlobalQuote retrieves the latest quote for a symbol.
func (c *Client) GetGlobalQuote(ctx context.Context, symbol string) (json.RawMessage, error) {
	return c.query(ctx, "GLOBAL_QUOTE", url.Values{"symbol": {symbol}})
}

// GetDailyTimeSeries retrieves the daily series; outputSize is "compact" or "full".
func (c *Client) GetDailyTimeSeries(ctx context.Context, symbol, outputSize string) (json.RawMessage, error) {
	return c.query(ctx, "TIME_SERIES_DAILY", url.Values{
		"symbol":     {symbol},
		"outputsize": {orDefault(outputSize, "compact")},
	})
}

// IntradayParams configures GetIntradayTimeSeries.
type IntradayParams struct {
	Symbol     string
	Interval   string // 1min, 5min, 15min, 30min, 60min
	OutputSize string
	Adjusted   *bool
}

// GetIntradayTimeSeries retrieves the intraday series for a symbol.
func (c *Client) GetIntradayTimeSeries(ctx context.Context, p IntradayParams) (json.RawMessage, error) {
	params := url.Values{
		"symbol":     {p.Symbol},
		"interval":   {orDefault(p.Interval, "5min")},
		"outputsize": {orDefault(p.OutputSize, "compact")},
	}
	if p.Adjusted != nil {
		params.Set("adjusted", strconv.FormatBool(*p.Adjusted))
	}
	return c.query(ctx, "TIME_SERIES_INTRADAY", params)
}

// SearchSymbol searches for symbols matching keywords.
func (c *Client) SearchSymbol(ctx context.Context, keywords string) (json.RawMessage, error) {
	return c.query(ctx, "SYMBOL_SEARCH", url.Values{"keywords": {keywords}})
}

// GetCurrencyExchangeRate retrieves the latest FX rate between two currencies.
func (c *Client) GetCurrencyExchangeRate(ctx context.Context, from, to string) (json.RawMessage, error) {
	return c.query(ctx, "CURRENCY_EXCHANGE_RATE", url.Values{
		"from_currency": {from},
		"to_currency":   {to},
	})
}

// NewsParams configures GetNewsSentiment. Times use the YYYYMMDDTHHMM format.
type NewsParams struct {
	Tickers  []string
	Topics   []string
	TimeFrom string
	TimeTo   string
	Sort     string // LATEST, EARLIEST or RELEVANCE
	Limit    int
}

// GetNewsSentiment retrieves market news and sentiment.
func (c *Client) GetNewsSentiment(ctx context.Context, p NewsParams) (json.RawMessage, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}
	params := url.Values{
		"sort":  {orDefault(p.Sort, "LATEST")},
		"limit": {strconv.Itoa(limit)},
	}
	if len(p.Tickers) > 0 {
		params.Set("tickers", strings.Join(p.Tickers, ","))
	}
	if len(p.Topics) > 0 {
		params.Set("topics", strings.Join(p.Topics, ","))
	}
	if p.TimeFrom != "" {
		params.Set("time_from", p.TimeFrom)
	}
	if p.TimeTo != "" {
		params.Set("time_to", p.TimeTo)
	}
	return c.query(ctx, "NEWS_SENTIMENT", params)
}

func (c *Client) query(ctx context.Context, function string, params url.Values) (json.RawMessage, error) {
	params.Set("function", function)
	params.Set("datatype", "json")
	params.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Message: "failed to call Alpha Vantage API", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Message: "failed to read Alpha Vantage response", Err: err}
	}

	var payload map[string]json.RawMessage
	decodeErr := json.Unmarshal(body, &payload)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{StatusCode: resp.StatusCode, Message: "Alpha Vantage API returned an error status"}
		if decodeErr == nil {
			apiErr.Payload = body
		}
		return nil, apiErr
	}

	if decodeErr != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Message: "failed to decode Alpha Vantage response as JSON", Err: decodeErr}
	}

	for _, key := range payloadMessageKeys {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		var message string
		if err := json.Unmarshal(raw, &message); err == nil && strings.TrimSpace(message) != "" {
			return nil, &Error{Message: message, Payload: body}
		}
	}

	return json.RawMessage(body), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
