package service

import (
	"context"
	"encoding/json"
)

// Quote returns the latest quote for symbol.
func (s *Service) Quote(ctx context.Context, symbol string) (json.RawMessage, error) {
	if s.market == nil {
		return nil, errAlphaVantageNotConfigured
	}
	return s.market.GetGlobalQuote(ctx, symbol)
}

// SearchSymbol finds symbols matching keywords.
func (s *Service) SearchSymbol(ctx context.Context, keywords string) (json.RawMessage, error) {
	if s.market == nil {
		return nil, errAlphaVantageNotConfigured
	}
	return s.market.SearchSymbol(ctx, keywords)
}
