package v1

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xiaot623/dalia/internal/adapter/llm"
	"github.com/xiaot623/dalia/internal/adapter/trading212"
)

func TestTradingEndpointsNotConfigured(t *testing.T) {
	env := newTestEnv(t, llm.NewMockClient(), nil)
	for _, path := range []string{
		"/trading212/transactions",
		"/trading212/account/cash",
		"/trading212/account/info",
		"/trading212/positions",
	} {
		rec := env.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code, path)
		assert.JSONEq(t, `{"error":"Trading 212 API credentials are not configured on the server."}`, rec.Body.String(), path)
	}
}

func TestListTransactionsLimitValidation(t *testing.T) {
	env := newTestEnv(t, llm.NewMockClient(), &fakeBroker{})
	for _, limit := range []string{"0", "51", "abc"} {
		rec := env.do(http.MethodGet, "/trading212/transactions?limit="+limit, "")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, limit)
	}
}

func TestListTransactions(t *testing.T) {
	env := newTestEnv(t, llm.NewMockClient(), &fakeBroker{})
	rec := env.do(http.MethodGet, "/trading212/transactions?limit=20&cursor=c1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[],"nextPagePath":null,"nextCursor":"c2","nextTime":null}`, rec.Body.String())
}

func TestTradingUpstreamErrorIsBadGateway(t *testing.T) {
	env := newTestEnv(t, llm.NewMockClient(), &fakeBroker{err: &trading212.Error{StatusCode: 401, Message: "Unauthorized"}})
	rec := env.do(http.MethodGet, "/trading212/account/cash", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unauthorized")
}

func TestAccountCash(t *testing.T) {
	env := newTestEnv(t, llm.NewMockClient(), &fakeBroker{})
	rec := env.do(http.MethodGet, "/trading212/account/cash", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"free":12.5}`, rec.Body.String())
}

func TestMarketEndpointsNotConfigured(t *testing.T) {
	env := newTestEnv(t, llm.NewMockClient(), nil)
	rec := env.do(http.MethodGet, "/market/quote/IBM", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = env.do(http.MethodGet, "/market/search", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
