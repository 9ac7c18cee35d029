package weather

import (
	"errors"
	"fmt"
)

// FetchError reports a failed provider request: network, timeout,
// non-2xx status, open circuit or an undecodable body.
type FetchError struct {
	Provider ProviderKind
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Provider, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NormalizeError reports a payload that cannot be mapped to a WeatherRecord.
type NormalizeError struct {
	Provider ProviderKind
	Err      error
}

func (e *NormalizeError) Error() string {
	return fmt.Sprintf("normalize %s: %v", e.Provider, e.Err)
}

func (e *NormalizeError) Unwrap() error { return e.Err }

// PublishError reports a record that could not be delivered after all attempts.
type PublishError struct {
	Queue    string
	Attempts int
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %q failed after %d attempt(s): %v", e.Queue, e.Attempts, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// IsClassified reports whether err is one of the expected pipeline failures.
// Anything else escaping a cycle is treated as unexpected.
func IsClassified(err error) bool {
	var (
		fe *FetchError
		ne *NormalizeError
		pe *PublishError
	)
	return errors.As(err, &fe) || errors.As(err, &ne) || errors.As(err, &pe)
}

func newNormalizeError(kind ProviderKind, format string, args ...any) error {
	return &NormalizeError{Provider: kind, Err: fmt.Errorf(format, args...)}
}

// Outcome maps err onto a short label for logs and metrics.
func Outcome(err error) string {
	var (
		fe *FetchError
		ne *NormalizeError
		pe *PublishError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &fe):
		return "fetch_error"
	case errors.As(err, &ne):
		return "normalize_error"
	case errors.As(err, &pe):
		return "publish_error"
	default:
		return "unexpected"
	}
}
