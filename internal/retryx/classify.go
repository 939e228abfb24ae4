// Package retryx turns heterogeneous remote-call failures into a uniform
// error taxonomy and provides the retry-with-backoff executor used by every
// remote operation. Backoff policy lives here and nowhere else.
package retryx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Kind is the classified failure category.
type Kind string

const (
	KindNetwork    Kind = "network"
	KindAuth       Kind = "auth"
	KindRateLimit  Kind = "rate_limit"
	KindValidation Kind = "validation"
	KindServer     Kind = "server"
	KindDomain     Kind = "domain"
	KindUnknown    Kind = "unknown"
)

// User-facing messages per category. Domain errors pass their own message
// through instead.
const (
	userMsgTimeout    = "The server took too long to respond. Please try again."
	userMsgNetwork    = "Could not reach the server. Check your connection and try again."
	userMsgAuth       = "You are not authorized to do that. Please sign in again."
	userMsgRateLimit  = "Too many requests. Please wait a moment and try again."
	userMsgValidation = "The request was rejected by the server."
	userMsgServer     = "The server ran into a problem. Please try again later."
	userMsgUnknown    = "Something went wrong. Please try again."
)

// ErrorInfo is the uniform classification of a failure.
type ErrorInfo struct {
	Kind        Kind
	Message     string
	UserMessage string
	StatusCode  int
	Retryable   bool
	// RetryAfter is an explicit server hint; zero means "use backoff".
	RetryAfter time.Duration
}

// DomainError is a business-rule violation (e.g. downloading a premium item
// that the user does not own). Never retryable; the message is shown to the
// user verbatim.
type DomainError struct {
	Msg string
}

func (e *DomainError) Error() string { return e.Msg }

// NewDomainError builds a DomainError with a formatted message.
func NewDomainError(format string, args ...any) *DomainError {
	return &DomainError{Msg: fmt.Sprintf(format, args...)}
}

// APIError is a structured error body returned by the catalog service along
// with an HTTP status. RetryAfter carries the Retry-After header when the
// server sent one.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Classify maps err onto the taxonomy. Rules are applied in priority order:
// domain errors first, then transport errors without a response, then
// structured API errors by status code, then everything else.
func Classify(err error) ErrorInfo {
	var derr *DomainError
	if errors.As(err, &derr) {
		return ErrorInfo{Kind: KindDomain, Message: derr.Msg, UserMessage: derr.Msg}
	}

	if isTimeout(err) {
		return ErrorInfo{Kind: KindNetwork, Message: err.Error(), UserMessage: userMsgTimeout, Retryable: true}
	}

	var aerr *APIError
	if errors.As(err, &aerr) {
		return classifyStatus(aerr)
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return ErrorInfo{Kind: KindNetwork, Message: err.Error(), UserMessage: userMsgNetwork, Retryable: true}
	}

	return ErrorInfo{Kind: KindUnknown, Message: err.Error(), UserMessage: userMsgUnknown, Retryable: true}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

func classifyStatus(aerr *APIError) ErrorInfo {
	msg := aerr.Message
	if msg == "" {
		msg = http.StatusText(aerr.StatusCode)
	}
	info := ErrorInfo{Message: msg, StatusCode: aerr.StatusCode, RetryAfter: aerr.RetryAfter}

	switch {
	case aerr.StatusCode == http.StatusUnauthorized || aerr.StatusCode == http.StatusForbidden:
		info.Kind = KindAuth
		info.UserMessage = userMsgAuth
	case aerr.StatusCode == http.StatusTooManyRequests:
		info.Kind = KindRateLimit
		info.UserMessage = userMsgRateLimit
		info.Retryable = true
	case aerr.StatusCode >= 400 && aerr.StatusCode < 500:
		info.Kind = KindValidation
		info.UserMessage = userMsgValidation
	case aerr.StatusCode >= 500 && aerr.StatusCode < 600:
		info.Kind = KindServer
		info.UserMessage = userMsgServer
		info.Retryable = true
	default:
		info.Kind = KindUnknown
		info.UserMessage = userMsgUnknown
		info.Retryable = true
	}
	return info
}
