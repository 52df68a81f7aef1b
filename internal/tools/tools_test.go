package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaot623/dalia/internal/adapter/alphavantage"
	"github.com/xiaot623/dalia/internal/adapter/trading212"
)

type fakeBroker struct {
	lastParams  trading212.TransactionParams
	lastHistory trading212.HistoryParams
	lastTicker  string
	lastOrderID int64
	calls       []string
}

func (f *fakeBroker) called(name string) {
	f.calls = append(f.calls, name)
}

func (f *fakeBroker) GetPortfolio(ctx context.Context) (json.RawMessage, error) {
	f.called("portfolio")
	return json.RawMessage(`[{"ticker":"AAPL_US_EQ"}]`), nil
}

func (f *fakeBroker) GetPosition(ctx context.Context, ticker string) (json.RawMessage, error) {
	f.called("position")
	f.lastTicker = ticker
	return nil, nil
}

func (f *fakeBroker) ListOrders(ctx context.Context) (json.RawMessage, error) {
	f.called("orders")
	return json.RawMessage(`[]`), nil
}

func (f *fakeBroker) GetOrder(ctx context.Context, orderID int64) (json.RawMessage, error) {
	f.called("order")
	f.lastOrderID = orderID
	return json.RawMessage(`{"id":42}`), nil
}

func (f *fakeBroker) ListHistoricalOrders(ctx context.Context, p trading212.HistoryParams) (json.RawMessage, error) {
	f.called("historical_orders")
	f.lastHistory = p
	return json.RawMessage(`{"items":[]}`), nil
}

func (f *fakeBroker) ListDividends(ctx context.Context, p trading212.HistoryParams) (json.RawMessage, error) {
	f.called("dividends")
	f.lastHistory = p
	return json.RawMessage(`{"items":[]}`), nil
}

func (f *fakeBroker) ListInstruments(ctx context.Context) (json.RawMessage, error) {
	f.called("instruments")
	return json.RawMessage(`[]`), nil
}

func (f *fakeBroker) ListExchanges(ctx context.Context) (json.RawMessage, error) {
	f.called("exchanges")
	return json.RawMessage(`[]`), nil
}

func (f *fakeBroker) ListReports(ctx context.Context) (json.RawMessage, error) {
	f.called("reports")
	return json.RawMessage(`[]`), nil
}

func (f *fakeBroker) GetAccountInfo(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"currencyCode":"GBP","id":1}`), nil
}

func (f *fakeBroker) GetAccountCash(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"free":10}`), nil
}

func (f *fakeBroker) ListTransactions(ctx context.Context, p trading212.TransactionParams) (*trading212.PaginatedTransactions, error) {
	f.lastParams = p
	return &trading212.PaginatedTransactions{Items: []trading212.TransactionItem{}}, nil
}

func (f *fakeBroker) ListPositions(ctx context.Context, ticker string) (json.RawMessage, error) {
	f.lastTicker = ticker
	return json.RawMessage(`[]`), nil
}

type fakeMarket struct {
	news alphavantage.NewsParams
}

func (f *fakeMarket) GetGlobalQuote(ctx context.Context, symbol string) (json.RawMessage, error) {
	return json.RawMessage(`{"symbol":"` + symbol + `"}`), nil
}

func (f *fakeMarket) GetDailyTimeSeries(ctx context.Context, symbol, outputSize string) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (f *fakeMarket) GetIntradayTimeSeries(ctx context.Context, p alphavantage.IntradayParams) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (f *fakeMarket) SearchSymbol(ctx context.Context, keywords string) (json.RawMessage, error) {
	return json.RawMessage(`{"bestMatches":[]}`), nil
}

func (f *fakeMarket) GetCurrencyExchangeRate(ctx context.Context, from, to string) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (f *fakeMarket) GetNewsSentiment(ctx context.Context, p alphavantage.NewsParams) (json.RawMessage, error) {
	f.news = p
	return json.RawMessage(`{"feed":[]}`), nil
}

func TestRegisterTrading212(t *testing.T) {
	ctx := context.Background()
	broker := &fakeBroker{}
	r := NewRegistry()
	require.NoError(t, RegisterTrading212(r, broker))

	names := []string{}
	for _, d := range r.Definitions() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{
		"trading212_get_account_cash",
		"trading212_get_account_info",
		"trading212_get_order",
		"trading212_get_portfolio",
		"trading212_list_dividends",
		"trading212_list_exchanges",
		"trading212_list_historical_orders",
		"trading212_list_instruments",
		"trading212_list_orders",
		"trading212_list_positions",
		"trading212_list_reports",
		"trading212_list_transactions",
	}, names)

	out, err := r.Execute(ctx, "trading212_list_transactions", json.RawMessage(`{"cursor":"c1","limit":5}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[],"nextPagePath":null,"nextCursor":null,"nextTime":null}`, string(out))
	assert.Equal(t, trading212.TransactionParams{Cursor: "c1", Limit: 5}, broker.lastParams)

	_, err = r.Execute(ctx, "trading212_list_transactions", json.RawMessage(`{"limit":99}`))
	assert.Error(t, err)

	_, err = r.Execute(ctx, "trading212_list_positions", json.RawMessage(`{"ticker":"AAPL_US_EQ"}`))
	require.NoError(t, err)
	assert.Equal(t, "AAPL_US_EQ", broker.lastTicker)

	out, err = r.Execute(ctx, "trading212_get_account_info", nil)
	require.NoError(t, err)
	assert.Contains(t, string(out), "GBP")
}

func TestTrading212ReadOnlyTools(t *testing.T) {
	ctx := context.Background()
	broker := &fakeBroker{}
	r := NewRegistry()
	require.NoError(t, RegisterTrading212(r, broker))

	out, err := r.Execute(ctx, "trading212_get_portfolio", nil)
	require.NoError(t, err)
	assert.Contains(t, string(out), "AAPL_US_EQ")

	out, err = r.Execute(ctx, "trading212_get_portfolio", json.RawMessage(`{"ticker":"TSLA_US_EQ"}`))
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, "TSLA_US_EQ", broker.lastTicker)

	out, err = r.Execute(ctx, "trading212_get_order", json.RawMessage(`{"order_id":42}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":42}`, string(out))
	assert.Equal(t, int64(42), broker.lastOrderID)

	_, err = r.Execute(ctx, "trading212_get_order", json.RawMessage(`{}`))
	assert.Error(t, err)

	_, err = r.Execute(ctx, "trading212_list_dividends", json.RawMessage(`{"cursor":7,"ticker":"VUSA_EQ","limit":20}`))
	require.NoError(t, err)
	require.NotNil(t, broker.lastHistory.Cursor)
	assert.Equal(t, int64(7), *broker.lastHistory.Cursor)
	assert.Equal(t, "VUSA_EQ", broker.lastHistory.Ticker)
	assert.Equal(t, 20, broker.lastHistory.Limit)

	_, err = r.Execute(ctx, "trading212_list_historical_orders", json.RawMessage(`{"limit":51}`))
	assert.Error(t, err)

	for _, name := range []string{"list_orders", "list_historical_orders", "list_instruments", "list_exchanges", "list_reports"} {
		_, err := r.Execute(ctx, Trading212Prefix+name, nil)
		require.NoError(t, err, name)
	}
	assert.Equal(t, []string{
		"portfolio", "position", "order", "dividends",
		"orders", "historical_orders", "instruments", "exchanges", "reports",
	}, broker.calls)
}

func TestRegisterTrading212WithoutClient(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterTrading212(r, nil))

	_, err := r.Execute(context.Background(), "trading212_get_account_cash", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestRegisterAlphaVantage(t *testing.T) {
	ctx := context.Background()
	market := &fakeMarket{}
	r := NewRegistry()
	require.NoError(t, RegisterAlphaVantage(r, market))
	assert.Len(t, r.Definitions(), 6)

	out, err := r.Execute(ctx, "alphavantage_get_global_quote", json.RawMessage(`{"symbol":"IBM"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"symbol":"IBM"}`, string(out))

	_, err = r.Execute(ctx, "alphavantage_get_global_quote", json.RawMessage(`{}`))
	assert.Error(t, err)

	_, err = r.Execute(ctx, "alphavantage_get_news_sentiment", json.RawMessage(`{"tickers":"COIN, CRYPTO:BTC","topics":["ipo"],"limit":10}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"COIN", "CRYPTO:BTC"}, market.news.Tickers)
	assert.Equal(t, []string{"ipo"}, market.news.Topics)
	assert.Equal(t, 10, market.news.Limit)

	_, err = r.Execute(ctx, "alphavantage_get_news_sentiment", json.RawMessage(`{"limit":5000}`))
	assert.Error(t, err)

	_, err = r.Execute(ctx, "alphavantage_search_symbol", json.RawMessage(`not json`))
	assert.Error(t, err)
}

func TestRegisterAlphaVantageWithoutClient(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterAlphaVantage(r, nil))

	_, err := r.Execute(context.Background(), "alphavantage_search_symbol", json.RawMessage(`{"keywords":"tesco"}`))
	assert.ErrorIs(t, err, ErrNotConfigured)
}
