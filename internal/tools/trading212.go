package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xiaot623/dalia/internal/adapter/trading212"
)

// ErrNotConfigured is returned by tools whose upstream client is missing.
var ErrNotConfigured = errors.New("upstream API credentials are not configured")

// Trading212Prefix prefixes the name of every brokerage tool.
const Trading212Prefix = "trading212_"

// Trading212API is the subset of the brokerage client the tools use.
type Trading212API interface {
	GetAccountInfo(ctx context.Context) (json.RawMessage, error)
	GetAccountCash(ctx context.Context) (json.RawMessage, error)
	ListTransactions(ctx context.Context, p trading212.TransactionParams) (*trading212.PaginatedTransactions, error)
	ListPositions(ctx context.Context, ticker string) (json.RawMessage, error)
	GetPortfolio(ctx context.Context) (json.RawMessage, error)
	GetPosition(ctx context.Context, ticker string) (json.RawMessage, error)
	ListOrders(ctx context.Context) (json.RawMessage, error)
	GetOrder(ctx context.Context, orderID int64) (json.RawMessage, error)
	ListHistoricalOrders(ctx context.Context, p trading212.HistoryParams) (json.RawMessage, error)
	ListDividends(ctx context.Context, p trading212.HistoryParams) (json.RawMessage, error)
	ListInstruments(ctx context.Context) (json.RawMessage, error)
	ListExchanges(ctx context.Context) (json.RawMessage, error)
	ListReports(ctx context.Context) (json.RawMessage, error)
}

// historyArgs are the arguments shared by the paginated history tools.
type historyArgs struct {
	Cursor *int64 `json:"cursor"`
	Ticker string `json:"ticker"`
	Limit  int    `json:"limit"`
}

func (a historyArgs) params() (trading212.HistoryParams, error) {
	if a.Limit < 0 || a.Limit > 50 {
		return trading212.HistoryParams{}, fmt.Errorf("limit must be between 1 and 50")
	}
	return trading212.HistoryParams{Cursor: a.Cursor, Ticker: a.Ticker, Limit: a.Limit}, nil
}

var historySchema = objectSchema(map[string]interface{}{
	"cursor": map[string]interface{}{"type": "integer", "description": "Pagination cursor returned by a previous call."},
	"ticker": stringProp("Instrument ticker to filter by, e.g. AAPL_US_EQ."),
	"limit":  map[string]interface{}{"type": "integer", "description": "Maximum number of items (1-50)."},
})

// RegisterTrading212 adds the brokerage tools. A nil client still registers
// them; executing one then fails with ErrNotConfigured.
func RegisterTrading212(r *Registry, client Trading212API) error {
	noArgs := func(call func(context.Context) (json.RawMessage, error)) ExecutorFunc {
		return func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
			if client == nil {
				return nil, ErrNotConfigured
			}
			return call(ctx)
		}
	}

	history := func(call func(context.Context, trading212.HistoryParams) (json.RawMessage, error)) ExecutorFunc {
		return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			if client == nil {
				return nil, ErrNotConfigured
			}
			var in historyArgs
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			p, err := in.params()
			if err != nil {
				return nil, err
			}
			return call(ctx, p)
		}
	}

	defs := []struct {
		def  Definition
		exec ExecutorFunc
	}{
		{
			def: Definition{
				Name:        Trading212Prefix + "get_account_info",
				Description: "Get the account information from the Trading 212 API for the current user.",
			},
			exec: noArgs(func(ctx context.Context) (json.RawMessage, error) { return client.GetAccountInfo(ctx) }),
		},
		{
			def: Definition{
				Name:        Trading212Prefix + "get_account_cash",
				Description: "Get the account cash from the Trading 212 API for the current user.",
			},
			exec: noArgs(func(ctx context.Context) (json.RawMessage, error) { return client.GetAccountCash(ctx) }),
		},
		{
			def: Definition{
				Name:        Trading212Prefix + "list_transactions",
				Description: "List the transactions from the Trading 212 API for the current user.",
				Parameters: objectSchema(map[string]interface{}{
					"cursor": stringProp("Pagination cursor returned by a previous call."),
					"time":   stringProp("Only return transactions from this ISO 8601 timestamp."),
					"limit":  map[string]interface{}{"type": "integer", "description": "Maximum number of transactions (1-50)."},
				}),
			},
			exec: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
				if client == nil {
					return nil, ErrNotConfigured
				}
				var in struct {
					Cursor string `json:"cursor"`
					Time   string `json:"time"`
					Limit  int    `json:"limit"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return nil, err
				}
				if in.Limit < 0 || in.Limit > 50 {
					return nil, fmt.Errorf("limit must be between 1 and 50")
				}
				page, err := client.ListTransactions(ctx, trading212.TransactionParams{
					Cursor: in.Cursor,
					Time:   in.Time,
					Limit:  in.Limit,
				})
				if err != nil {
					return nil, err
				}
				return json.Marshal(page)
			},
		},
		{
			def: Definition{
				Name:        Trading212Prefix + "list_positions",
				Description: "List the open positions from the Trading 212 API for the current user, optionally for one ticker (e.g. AAPL_US_EQ).",
				Parameters: objectSchema(map[string]interface{}{
					"ticker": stringProp("Instrument ticker to filter by, e.g. AAPL_US_EQ."),
				}),
			},
			exec: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
				if client == nil {
					return nil, ErrNotConfigured
				}
				var in struct {
					Ticker string `json:"ticker"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return nil, err
				}
				return client.ListPositions(ctx, in.Ticker)
			},
		},
		{
			def: Definition{
				Name:        Trading212Prefix + "get_portfolio",
				Description: "Get the open positions in the Trading 212 portfolio, or the single position for a ticker when one is given.",
				Parameters: objectSchema(map[string]interface{}{
					"ticker": stringProp("Instrument ticker, e.g. AAPL_US_EQ."),
				}),
			},
			exec: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
				if client == nil {
					return nil, ErrNotConfigured
				}
				var in struct {
					Ticker string `json:"ticker"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return nil, err
				}
				if in.Ticker == "" {
					return client.GetPortfolio(ctx)
				}
				return client.GetPosition(ctx, in.Ticker)
			},
		},
		{
			def: Definition{
				Name:        Trading212Prefix + "list_orders",
				Description: "List the active (pending) orders of the Trading 212 account.",
			},
			exec: noArgs(func(ctx context.Context) (json.RawMessage, error) { return client.ListOrders(ctx) }),
		},
		{
			def: Definition{
				Name:        Trading212Prefix + "get_order",
				Description: "Get one active Trading 212 order by its id.",
				Parameters: objectSchema(map[string]interface{}{
					"order_id": map[string]interface{}{"type": "integer", "description": "The order id."},
				}, "order_id"),
			},
			exec: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
				if client == nil {
					return nil, ErrNotConfigured
				}
				var in struct {
					OrderID *int64 `json:"order_id"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return nil, err
				}
				if in.OrderID == nil {
					return nil, fmt.Errorf("order_id is required")
				}
				return client.GetOrder(ctx, *in.OrderID)
			},
		},
		{
			def: Definition{
				Name:        Trading212Prefix + "list_historical_orders",
				Description: "List filled and cancelled Trading 212 orders, newest first.",
				Parameters:  historySchema,
			},
			exec: history(func(ctx context.Context, p trading212.HistoryParams) (json.RawMessage, error) {
				return client.ListHistoricalOrders(ctx, p)
			}),
		},
		{
			def: Definition{
				Name:        Trading212Prefix + "list_dividends",
				Description: "List dividends paid out to the Trading 212 account.",
				Parameters:  historySchema,
			},
			exec: history(func(ctx context.Context, p trading212.HistoryParams) (json.RawMessage, error) {
				return client.ListDividends(ctx, p)
			}),
		},
		{
			def: Definition{
				Name:        Trading212Prefix + "list_instruments",
				Description: "List the instruments tradable on Trading 212, with tickers, names and currencies.",
			},
			exec: noArgs(func(ctx context.Context) (json.RawMessage, error) { return client.ListInstruments(ctx) }),
		},
		{
			def: Definition{
				Name:        Trading212Prefix + "list_exchanges",
				Description: "List the exchanges Trading 212 trades on and their working schedules.",
			},
			exec: noArgs(func(ctx context.Context) (json.RawMessage, error) { return client.ListExchanges(ctx) }),
		},
		{
			def: Definition{
				Name:        Trading212Prefix + "list_reports",
				Description: "List the account history exports previously requested on Trading 212.",
			},
			exec: noArgs(func(ctx context.Context) (json.RawMessage, error) { return client.ListReports(ctx) }),
		},
	}

	for _, d := range defs {
		if err := r.Register(d.def, d.exec); err != nil {
			return err
		}
	}
	return nil
}
