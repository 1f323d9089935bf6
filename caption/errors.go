package caption

import (
	"context"
	"errors"
	"fmt"
)

// Error types for classifying captioning failures.

// ConfigurationError reports a missing or invalid credential. Never retried.
type ConfigurationError struct {
	err error
}

func (e *ConfigurationError) Error() string {
	return "captioner configuration: " + e.err.Error()
}

func (e *ConfigurationError) Unwrap() error {
	return e.err
}

// NewConfigurationError wraps an error as a configuration failure.
func NewConfigurationError(err error) error {
	return &ConfigurationError{err: err}
}

// TransientError represents a temporary failure that may succeed on retry:
// timeouts, connection failures and upstream warm-up.
type TransientError struct {
	// Status is the upstream HTTP status, or 0 for transport failures.
	Status int
	err    error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(status int, err error) error {
	return &TransientError{Status: status, err: err}
}

// FatalError represents a permanent failure that must not be retried.
// AuthenticationError and UpstreamError are both fatal.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// AuthenticationError reports that the upstream rejected the credential.
type AuthenticationError struct {
	Status int
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("captioning backend rejected the token (status %d)", e.Status)
}

// NewAuthenticationError returns a fatal error wrapping an AuthenticationError.
func NewAuthenticationError(status int) error {
	return &FatalError{err: &AuthenticationError{Status: status}}
}

// UpstreamError reports any other non-success upstream response.
type UpstreamError struct {
	Status int
	// Body is the response body truncated for diagnostics.
	Body string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("captioning backend returned %d: %s", e.Status, e.Body)
}

// NewUpstreamError returns a fatal error wrapping an UpstreamError.
func NewUpstreamError(status int, body string) error {
	return &FatalError{err: &UpstreamError{Status: status, Body: body}}
}

// RetriesExhaustedError is returned once the attempt budget is consumed
// without success. The caller may resubmit the whole request later.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("captioning backend did not respond after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Last
}

// IsTransient returns true if the error is transient and should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal returns true if the error is fatal and should not be retried.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// Kind is the stable classification of a Captioner failure.
type Kind string

const (
	KindNone             Kind = ""
	KindConfiguration    Kind = "configuration"
	KindTransient        Kind = "transient"
	KindAuthentication   Kind = "authentication"
	KindUpstream         Kind = "upstream"
	KindRetriesExhausted Kind = "retries_exhausted"
	KindCanceled         Kind = "canceled"
	KindUnknown          Kind = "unknown"
)

// KindOf classifies err. The order matters: RetriesExhaustedError unwraps to
// its last transient cause, and a transport timeout may wrap
// context.DeadlineExceeded, so both are checked before the context kinds.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var (
		cfg       *ConfigurationError
		exhausted *RetriesExhaustedError
		auth      *AuthenticationError
		upstream  *UpstreamError
	)
	switch {
	case errors.As(err, &cfg):
		return KindConfiguration
	case errors.As(err, &exhausted):
		return KindRetriesExhausted
	case errors.As(err, &auth):
		return KindAuthentication
	case errors.As(err, &upstream):
		return KindUpstream
	case IsTransient(err):
		return KindTransient
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindUnknown
	}
}
