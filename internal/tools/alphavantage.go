package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xiaot623/dalia/internal/adapter/alphavantage"
)

// AlphaVantagePrefix prefixes the name of every market data tool.
const AlphaVantagePrefix = "alphavantage_"

// MaxNewsLimit is the largest result count the news endpoint accepts.
const MaxNewsLimit = 1000

// AlphaVantageAPI is the subset of the market data client the tools use.
type AlphaVantageAPI interface {
	GetGlobalQuote(ctx context.Context, symbol string) (json.RawMessage, error)
	GetDailyTimeSeries(ctx context.Context, symbol, outputSize string) (json.RawMessage, error)
	GetIntradayTimeSeries(ctx context.Context, p alphavantage.IntradayParams) (json.RawMessage, error)
	SearchSymbol(ctx context.Context, keywords string) (json.RawMessage, error)
	GetCurrencyExchangeRate(ctx context.Context, from, to string) (json.RawMessage, error)
	GetNewsSentiment(ctx context.Context, p alphavantage.NewsParams) (json.RawMessage, error)
}

// stringList accepts either a JSON array of strings or a comma separated string.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("expected string or list of strings")
	}
	*l = nil
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

// RegisterAlphaVantage adds the market data tools. A nil client still
// registers them; executing one then fails with ErrNotConfigured.
func RegisterAlphaVantage(r *Registry, client AlphaVantageAPI) error {
	symbolSchema := objectSchema(map[string]interface{}{
		"symbol": stringProp("The stock symbol, e.g. AAPL or MSFT."),
	}, "symbol")

	defs := []struct {
		def  Definition
		exec ExecutorFunc
	}{
		{
			def: Definition{
				Name:        AlphaVantagePrefix + "get_global_quote",
				Description: "Retrieve the latest quote for a stock symbol (e.g. 'AAPL', 'MSFT'), including current price, volume and trading data.",
				Parameters:  symbolSchema,
			},
			exec: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
				var in struct {
					Symbol string `json:"symbol"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return nil, err
				}
				if in.Symbol == "" {
					return nil, fmt.Errorf("symbol is required")
				}
				if client == nil {
					return nil, ErrNotConfigured
				}
				return client.GetGlobalQuote(ctx, in.Symbol)
			},
		},
		{
			def: Definition{
				Name:        AlphaVantagePrefix + "get_daily_time_series",
				Description: "Retrieve the daily time series for a stock symbol. outputsize is 'compact' (last 100 points) or 'full'.",
				Parameters: objectSchema(map[string]interface{}{
					"symbol":     stringProp("The stock symbol, e.g. AAPL or MSFT."),
					"outputsize": map[string]interface{}{"type": "string", "enum": []string{"compact", "full"}},
				}, "symbol"),
			},
			exec: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
				var in struct {
					Symbol     string `json:"symbol"`
					OutputSize string `json:"outputsize"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return nil, err
				}
				if in.Symbol == "" {
					return nil, fmt.Errorf("symbol is required")
				}
				if client == nil {
					return nil, ErrNotConfigured
				}
				return client.GetDailyTimeSeries(ctx, in.Symbol, in.OutputSize)
			},
		},
		{
			def: Definition{
				Name:        AlphaVantagePrefix + "get_intraday_time_series",
				Description: "Retrieve the intraday time series for a stock symbol at the given interval.",
				Parameters: objectSchema(map[string]interface{}{
					"symbol":     stringProp("The stock symbol, e.g. AAPL or MSFT."),
					"interval":   map[string]interface{}{"type": "string", "enum": []string{"1min", "5min", "15min", "30min", "60min"}},
					"outputsize": map[string]interface{}{"type": "string", "enum": []string{"compact", "full"}},
					"adjusted":   map[string]interface{}{"type": "boolean", "description": "Return split/dividend adjusted prices."},
				}, "symbol"),
			},
			exec: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
				var in struct {
					Symbol     string `json:"symbol"`
					Interval   string `json:"interval"`
					OutputSize string `json:"outputsize"`
					Adjusted   *bool  `json:"adjusted"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return nil, err
				}
				if in.Symbol == "" {
					return nil, fmt.Errorf("symbol is required")
				}
				if client == nil {
					return nil, ErrNotConfigured
				}
				return client.GetIntradayTimeSeries(ctx, alphavantage.IntradayParams{
					Symbol:     in.Symbol,
					Interval:   in.Interval,
					OutputSize: in.OutputSize,
					Adjusted:   in.Adjusted,
				})
			},
		},
		{
			def: Definition{
				Name:        AlphaVantagePrefix + "search_symbol",
				Description: "Search for stock symbols matching keywords. Useful for finding the symbol when only the company name is known.",
				Parameters: objectSchema(map[string]interface{}{
					"keywords": stringProp("Company name or partial symbol."),
				}, "keywords"),
			},
			exec: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
				var in struct {
					Keywords string `json:"keywords"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return nil, err
				}
				if in.Keywords == "" {
					return nil, fmt.Errorf("keywords is required")
				}
				if client == nil {
					return nil, ErrNotConfigured
				}
				return client.SearchSymbol(ctx, in.Keywords)
			},
		},
		{
			def: Definition{
				Name:        AlphaVantagePrefix + "get_currency_exchange_rate",
				Description: "Retrieve the latest exchange rate between two currencies (e.g. USD to GBP).",
				Parameters: objectSchema(map[string]interface{}{
					"from_currency": stringProp("Currency to convert from, e.g. USD."),
					"to_currency":   stringProp("Currency to convert to, e.g. GBP."),
				}, "from_currency", "to_currency"),
			},
			exec: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
				var in struct {
					From string `json:"from_currency"`
					To   string `json:"to_currency"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return nil, err
				}
				if in.From == "" || in.To == "" {
					return nil, fmt.Errorf("from_currency and to_currency are required")
				}
				if client == nil {
					return nil, ErrNotConfigured
				}
				return client.GetCurrencyExchangeRate(ctx, in.From, in.To)
			},
		},
		{
			def: Definition{
				Name:        AlphaVantagePrefix + "get_news_sentiment",
				Description: "Retrieve live and historical market news and sentiment for stocks, crypto and forex, or for topics such as earnings, ipo, technology or economy_macro.",
				Parameters: objectSchema(map[string]interface{}{
					"tickers":   map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "description": "Symbols such as AAPL, CRYPTO:BTC or FOREX:USD."},
					"topics":    map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"time_from": stringProp("Start time in YYYYMMDDTHHMM format."),
					"time_to":   stringProp("End time in YYYYMMDDTHHMM format."),
					"sort":      map[string]interface{}{"type": "string", "enum": []string{"LATEST", "EARLIEST", "RELEVANCE"}},
					"limit":     map[string]interface{}{"type": "integer", "description": "Maximum results (default 50, max 1000)."},
				}),
			},
			exec: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
				var in struct {
					Tickers  stringList `json:"tickers"`
					Topics   stringList `json:"topics"`
					TimeFrom string     `json:"time_from"`
					TimeTo   string     `json:"time_to"`
					Sort     string     `json:"sort"`
					Limit    int        `json:"limit"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return nil, err
				}
				if in.Limit > MaxNewsLimit {
					return nil, fmt.Errorf("limit must not exceed %d", MaxNewsLimit)
				}
				if client == nil {
					return nil, ErrNotConfigured
				}
				return client.GetNewsSentiment(ctx, alphavantage.NewsParams{
					Tickers:  in.Tickers,
					Topics:   in.Topics,
					TimeFrom: in.TimeFrom,
					TimeTo:   in.TimeTo,
					Sort:     in.Sort,
					Limit:    in.Limit,
				})
			},
		},
	}

	for _, d := range defs {
		if err := r.Register(d.def, d.exec); err != nil {
			return err
		}
	}
	return nil
}
