package errors

import (
	"errors"
	"fmt"
)

// ProviderError reports a failure talking to, or verifying, a payment gateway.
// Retriable errors are safe to repeat because requests are keyed on the offer id.
type ProviderError struct {
	Provider  string
	Op        string
	Retriable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider %s: %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError builds a ProviderError.
func NewProviderError(provider, op string, retriable bool, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Retriable: retriable, Err: err}
}

// AsProviderError extracts a ProviderError from err's chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRetriable reports whether err is a retriable provider failure.
func IsRetriable(err error) bool {
	pe, ok := AsProviderError(err)
	return ok && pe.Retriable
}
