// Package floyderrs defines the core's error taxonomy: a small closed set
// of kinds with intended propagation and recoverability, each carrying a
// stable code (spec §7).
package floyderrs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is one of the ten error kinds named in spec §7.
type Kind string

const (
	AuthFailed          Kind = "AUTH_FAILED"
	RateLimited         Kind = "RATE_LIMITED"
	ServerError         Kind = "SERVER_ERROR"
	NetworkError        Kind = "NETWORK_ERROR"
	Timeout             Kind = "TIMEOUT"
	StreamError         Kind = "STREAM_ERROR"
	ToolExecutionError  Kind = "TOOL_EXECUTION_ERROR"
	PermissionDenied    Kind = "PERMISSION_DENIED"
	ValidationError     Kind = "VALIDATION_ERROR"
	ConfigError         Kind = "CONFIG_ERROR"
)

// Retryable reports whether the kind, on its own, suggests a retry may
// succeed. RATE_LIMITED and SERVER_ERROR are retried by the LLM client;
// NETWORK_ERROR is retried by the LLM client or triggers MCP reconnect.
// The rest are not retried by their raiser (spec §7's Recovery column).
func (k Kind) Retryable() bool {
	switch k {
	case RateLimited, ServerError, NetworkError:
		return true
	default:
		return false
	}
}

// CoreError is the module's structured error type. It always carries a
// Kind and a stable Code, built with fluent WithMessage/WithStatusCode/
// WithRetryAfter/WithDetails setters usable from every subsystem rather
// than tool execution alone.
type CoreError struct {
	Kind       Kind
	Code       string
	Message    string
	Cause      error
	StatusCode int
	RetryAfter string // raw Retry-After header value, when present
	Details    map[string]any
}

func (e *CoreError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Kind))
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *CoreError) Unwrap() error { return e.Cause }

// Retryable reports whether this specific error should be retried,
// defaulting to the Kind's classification.
func (e *CoreError) Retryable() bool { return e.Kind.Retryable() }

// New builds a CoreError of the given kind wrapping cause.
func New(kind Kind, cause error) *CoreError {
	e := &CoreError{Kind: kind, Code: string(kind), Cause: cause}
	if cause != nil {
		e.Message = cause.Error()
	}
	return e
}

// WithMessage overrides the human-readable message.
func (e *CoreError) WithMessage(msg string) *CoreError {
	e.Message = msg
	return e
}

// WithStatusCode records the originating HTTP status code, if any.
func (e *CoreError) WithStatusCode(code int) *CoreError {
	e.StatusCode = code
	return e
}

// WithRetryAfter records a Retry-After header value for RATE_LIMITED errors.
func (e *CoreError) WithRetryAfter(v string) *CoreError {
	e.RetryAfter = v
	return e
}

// WithDetails attaches structured detail fields (spec §7: "optional
// structured details").
func (e *CoreError) WithDetails(d map[string]any) *CoreError {
	e.Details = d
	return e
}

// As reports whether err is (or wraps) a *CoreError, returning it.
func As(err error) (*CoreError, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// ClassifyHTTPStatus maps an LLM provider HTTP status code to a Kind,
// following spec §7's table for the LLM client.
func ClassifyHTTPStatus(status int) Kind {
	switch {
	case status == 401 || status == 403:
		return AuthFailed
	case status == 429:
		return RateLimited
	case status >= 500:
		return ServerError
	default:
		return ServerError
	}
}

// ClassifyNetworkError inspects an error's text for common network-failure
// substrings.
func ClassifyNetworkError(err error) Kind {
	if err == nil {
		return NetworkError
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return Timeout
	case strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "broken pipe"):
		return NetworkError
	default:
		return NetworkError
	}
}
