package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xiaot623/dalia/internal/adapter/trading212"
)

// MaxTransactionsLimit bounds the page size accepted by the brokerage.
const MaxTransactionsLimit = 50

// ErrInvalidLimit is returned for a transactions page size outside 1..50.
var ErrInvalidLimit = fmt.Errorf("limit must be between 1 and %d", MaxTransactionsLimit)

// ListTransactions returns one page of brokerage transactions.
func (s *Service) ListTransactions(ctx context.Context, p trading212.TransactionParams) (*trading212.PaginatedTransactions, error) {
	if s.broker == nil {
		return nil, errTrading212NotConfigured
	}
	if p.Limit < 0 || p.Limit > MaxTransactionsLimit {
		return nil, ErrInvalidLimit
	}
	return s.broker.ListTransactions(ctx, p)
}

// AccountCash returns the brokerage cash breakdown.
func (s *Service) AccountCash(ctx context.Context) (json.RawMessage, error) {
	if s.broker == nil {
		return nil, errTrading212NotConfigured
	}
	return s.broker.GetAccountCash(ctx)
}

// AccountInfo returns the brokerage account metadata.
func (s *Service) AccountInfo(ctx context.Context) (json.RawMessage, error) {
	if s.broker == nil {
		return nil, errTrading212NotConfigured
	}
	return s.broker.GetAccountInfo(ctx)
}

// Positions returns open positions, optionally for one ticker.
func (s *Service) Positions(ctx context.Context, ticker string) (json.RawMessage, error) {
	if s.broker == nil {
		return nil, errTrading212NotConfigured
	}
	return s.broker.ListPositions(ctx, ticker)
}
