package service

import "github.com/xiaot623/dalia/internal/tools"

// ErrNotConfigured is matched by errors reporting missing upstream
// credentials.
var ErrNotConfigured = tools.ErrNotConfigured

type notConfiguredError struct {
	message string
}

func (e *notConfiguredError) Error() string { return e.message }

func (e *notConfiguredError) Unwrap() error { return ErrNotConfigured }

var (
	errTrading212NotConfigured   = &notConfiguredError{message: "Trading 212 API credentials are not configured on the server."}
	errAlphaVantageNotConfigured = &notConfiguredError{message: "Alpha Vantage API key is not configured on the server."}
)
