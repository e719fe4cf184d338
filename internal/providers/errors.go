package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Error codes reported in chat notes and logs.
const (
	CodeNotFound     = "HF_NOT_FOUND"
	CodeUnauthorized = "HF_UNAUTHORIZED"
	CodeRateLimit    = "HF_RATE_LIMIT"
	CodeLoading      = "HF_LOADING"
	CodeTimeout      = "HF_TIMEOUT"
	CodeNetwork      = "HF_NETWORK"
	CodeServer       = "HF_SERVER"
	CodeBadResponse  = "HF_BAD_RESPONSE"

	CodeOpenAIHTTP    = "OPENAI_HTTP"
	CodeOpenAINetwork = "OPENAI_NETWORK"
)

// Error is an upstream provider failure.
type Error struct {
	Provider string
	Code     string
	Status   int
	Model    string
	Body     string
	Err      error
}

func (e *Error) Error() string {
	switch {
	case e.Code == CodeNotFound:
		return fmt.Sprintf("%s: %s", e.Code, e.Model)
	case e.Status != 0:
		return fmt.Sprintf("%s error %d: %s", e.Provider, e.Status, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Code, e.Err)
	default:
		return fmt.Sprintf("%s %s", e.Provider, e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether a different model might succeed where this
// one failed.
func IsTransient(err error) bool {
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Code {
	case CodeNotFound, CodeLoading, CodeTimeout:
		return true
	}
	return false
}

// CodeOf returns the provider error code of err, or "error".
func CodeOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return "error"
}

func hfStatusCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return CodeUnauthorized
	case http.StatusTooManyRequests:
		return CodeRateLimit
	case http.StatusServiceUnavailable:
		return CodeLoading
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return CodeTimeout
	}
	return CodeServer
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

const maxErrorBody = 200

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}
