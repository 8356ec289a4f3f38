// Package errors provides structured error types for the bot.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrTimeout      = errors.New("operation timed out")
	ErrRateLimit    = errors.New("rate limit exceeded")
	ErrNotFound     = errors.New("resource not found")
	ErrPermission   = errors.New("permission denied")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnavailable  = errors.New("service unavailable")
)

// Kind classifies a failure of the external model service.
type Kind string

const (
	KindTimeout   Kind = "timeout"
	KindQuota     Kind = "quota_exceeded"
	KindTransport Kind = "transport"
	KindMalformed Kind = "malformed_response"
)

// ExternalServiceError is returned by model clients. Every kind is handled the
// same way by the pipeline; the kind only matters for logs and metrics.
type ExternalServiceError struct {
	Kind       Kind
	Service    string
	StatusCode int
	Err        error
}

func (e *ExternalServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s (status %d): %v", e.Service, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Service, e.Kind, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTimeout) and errors.Is(err, ErrRateLimit) match
// the corresponding kinds.
func (e *ExternalServiceError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrRateLimit:
		return e.Kind == KindQuota
	}
	return false
}

// NewExternal wraps err as an ExternalServiceError of the given kind.
func NewExternal(service string, kind Kind, statusCode int, err error) *ExternalServiceError {
	return &ExternalServiceError{Kind: kind, Service: service, StatusCode: statusCode, Err: err}
}

// KindOf reports the failure kind of err. Context deadlines count as timeouts;
// anything unrecognised is a transport failure.
func KindOf(err error) Kind {
	var ext *ExternalServiceError
	if errors.As(err, &ext) {
		return ext.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return KindTimeout
	}
	if errors.Is(err, ErrRateLimit) {
		return KindQuota
	}
	return KindTransport
}

// APIError represents an error from an external API call.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s API error (status %d): %s: %v", e.Service, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// NewAPIError creates a new API error.
func NewAPIError(service string, statusCode int, message string) *APIError {
	return &APIError{Service: service, StatusCode: statusCode, Message: message}
}

// IsRetryable returns true if the error is likely transient and worth retrying.
// Malformed model responses are never retried.
func IsRetryable(err error) bool {
	var ext *ExternalServiceError
	if errors.As(err, &ext) {
		return ext.Kind != KindMalformed
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimit) || errors.Is(err, ErrUnavailable)
}
