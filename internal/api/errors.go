package api

import (
	"fmt"
)

// ConfigurationError reports configuration the service rejects outright:
// bad tenant, unknown project, unreachable base URL. Fatal, never retried.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration rejected: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration rejected: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// RequestError is a non-success HTTP response with status details.
// 4xx responses surface as-is without retry; 5xx responses are retried
// and reach callers only wrapped in a TransientError.
type RequestError struct {
	Op         Operation
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// TransientError wraps the last failure after the retry budget for an
// operation is exhausted.
type TransientError struct {
	Op       Operation
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }
