package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// errorKind partitions batch-submission failures by retry policy.
//
// Connection and timeout failures are transient network loss: the batch is
// re-buffered for at-least-once delivery (duplicates are possible if the
// request succeeded server-side before the failure was observed). Structured
// API failures mean the request itself, or the collector's processing of it,
// is unlikely to succeed on resend, so the batch is dropped. Server errors sit
// in between and follow the configurable RetryServerErrors policy.
type errorKind int

const (
	kindConnection errorKind = iota
	kindTimeout
	kindAuthentication
	kindRateLimit
	kindServer
	kindRequest
)

func (k errorKind) String() string {
	switch k {
	case kindConnection:
		return "connection"
	case kindTimeout:
		return "timeout"
	case kindAuthentication:
		return "authentication"
	case kindRateLimit:
		return "rate_limit"
	case kindServer:
		return "server"
	default:
		return "request"
	}
}

// apiError is a classified batch-submission failure. It never escapes the
// transport package: tracing failures must not break the traced program, so
// the flush path logs and applies policy instead of returning errors upward.
type apiError struct {
	kind       errorKind
	statusCode int
	message    string
}

func (e *apiError) Error() string {
	if e.statusCode != 0 {
		return fmt.Sprintf("transport: %s (%d): %s", e.kind, e.statusCode, e.message)
	}
	return fmt.Sprintf("transport: %s: %s", e.kind, e.message)
}

// classifyTransport maps an http.Client.Do error to connection or timeout.
func classifyTransport(err error) *apiError {
	if isTimeout(err) {
		return &apiError{kind: kindTimeout, message: err.Error()}
	}
	return &apiError{kind: kindConnection, message: err.Error()}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// classifyStatus maps a non-2xx response to an error kind per the wire
// contract: 401 authentication, 429 rate limit, >=500 server, else generic.
func classifyStatus(code int, body string) *apiError {
	switch {
	case code == http.StatusUnauthorized:
		return &apiError{kind: kindAuthentication, statusCode: code, message: "invalid API key"}
	case code == http.StatusTooManyRequests:
		return &apiError{kind: kindRateLimit, statusCode: code, message: "rate limit exceeded"}
	case code >= 500:
		return &apiError{kind: kindServer, statusCode: code, message: "server error"}
	default:
		return &apiError{kind: kindRequest, statusCode: code, message: strings.TrimSpace(body)}
	}
}

// retryable reports whether a failed batch should be re-buffered.
// Marshal and request-construction errors are not apiErrors and would fail
// identically on every attempt, so they are never retried.
func (c *Client) retryable(err error) bool {
	var aerr *apiError
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.kind {
	case kindConnection, kindTimeout:
		return true
	case kindServer:
		return c.retryServerErrors
	default:
		return false
	}
}
