package dataflows

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dyike/GemScreener/internal/indicators"
)

// Error kinds. A SourceError matches its kind with errors.Is.
var (
	ErrNetwork          = errors.New("network error")
	ErrRateLimited      = errors.New("rate limited")
	ErrNotFound         = errors.New("not found")
	ErrMalformed        = errors.New("malformed response")
	ErrInsufficientData = indicators.ErrInsufficientData
	ErrUnauthorized     = errors.New("unauthorized")
)

// SourceError is a failure talking to an external market-data provider.
type SourceError struct {
	Source string
	Symbol string
	Kind   error
	Status int
	Err    error
}

func (e *SourceError) Error() string {
	msg := e.Source
	if e.Symbol != "" {
		msg += " " + e.Symbol
	}
	msg += ": " + e.Kind.Error()
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SourceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newSourceError(source, symbol string, kind error, status int, err error) *SourceError {
	return &SourceError{Source: source, Symbol: symbol, Kind: kind, Status: status, Err: err}
}

// statusKind maps an HTTP status to an error kind; nil for success.
func statusKind(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status >= 500:
		return ErrNetwork
	default:
		return ErrMalformed
	}
}

// Retryable reports whether a failure is worth retrying.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNetwork)
}

// Kind names the taxonomy bucket of err, for run summaries.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "other"
	}
}
