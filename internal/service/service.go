// Package service wires the chat registry, the store and the upstream
// clients into the operations the HTTP handlers serve.
package service

import (
	"github.com/xiaot623/dalia/internal/chat"
	"github.com/xiaot623/dalia/internal/metrics"
	store "github.com/xiaot623/dalia/internal/repository"
	"github.com/xiaot623/dalia/internal/tools"
)

type Service struct {
	store    store.Store
	sessions *chat.Registry
	broker   tools.Trading212API
	market   tools.AlphaVantageAPI
	metrics  *metrics.Metrics
}

// New creates a Service. broker and market are nil when their credentials
// are not configured; m may be nil.
func New(store store.Store, sessions *chat.Registry, broker tools.Trading212API, market tools.AlphaVantageAPI, m *metrics.Metrics) *Service {
	return &Service{
		store:    store,
		sessions: sessions,
		broker:   broker,
		market:   market,
		metrics:  m,
	}
}

// Metrics returns the collectors, possibly nil.
func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}
