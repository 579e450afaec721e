// Package providers ships concrete ModelProvider adapters for hosted model
// backends, plus the classified error type the retry policy consumes.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Reason categorizes why a provider request failed.
type Reason string

const (
	// ReasonBilling indicates payment or quota exhaustion (HTTP 402).
	ReasonBilling Reason = "billing"

	// ReasonRateLimit indicates rate limiting (HTTP 429).
	ReasonRateLimit Reason = "rate_limit"

	// ReasonAuth indicates authentication failure (HTTP 401, 403).
	ReasonAuth Reason = "auth"

	// ReasonTimeout indicates a request timeout.
	ReasonTimeout Reason = "timeout"

	// ReasonServerError indicates server-side failure (HTTP 5xx).
	ReasonServerError Reason = "server_error"

	// ReasonInvalidRequest indicates client-side failure (HTTP 400).
	ReasonInvalidRequest Reason = "invalid_request"

	// ReasonModelUnavailable indicates the requested model does not exist.
	ReasonModelUnavailable Reason = "model_unavailable"

	// ReasonUnknown is an unclassified failure.
	ReasonUnknown Reason = "unknown"
)

// Retryable reports whether retrying the same request may succeed.
func (r Reason) Retryable() bool {
	switch r {
	case ReasonRateLimit, ReasonTimeout, ReasonServerError:
		return true
	default:
		return false
	}
}

// Error is a classified failure from a model backend.
type Error struct {
	Reason   Reason
	Provider string
	Model    string

	// Status is the HTTP status code, when applicable.
	Status int

	Message string
	Cause   error
}

func (e *Error) Error() string {
	parts := []string{fmt.Sprintf("[%s]", e.Reason)}
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable satisfies the retry policy's classification interface.
func (e *Error) Retryable() bool { return e.Reason.Retryable() }

// classifyStatus maps an HTTP status to a failure reason.
func classifyStatus(status int) Reason {
	switch {
	case status == http.StatusPaymentRequired:
		return ReasonBilling
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ReasonTimeout
	case status == http.StatusNotFound:
		return ReasonModelUnavailable
	case status >= 500:
		return ReasonServerError
	case status >= 400:
		return ReasonInvalidRequest
	default:
		return ReasonUnknown
	}
}

// wrap builds a classified error from a transport failure.
func wrap(provider, model string, status int, err error) *Error {
	reason := ReasonUnknown
	if status != 0 {
		reason = classifyStatus(status)
	} else if errors.Is(err, context.DeadlineExceeded) {
		reason = ReasonTimeout
	}
	return &Error{
		Reason:   reason,
		Provider: provider,
		Model:    model,
		Status:   status,
		Cause:    err,
	}
}
