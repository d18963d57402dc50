// Package llm is the chat completion boundary of the pipeline. Providers translate a ChatRequest to a vendor SDK and
// classify vendor failures into an *Error so that callers can decide what to retry.
package llm

import (
	"context"
	"net/http"
	"strconv"

	"github.com/myrjola/canonforge/internal/errors"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

type ChatRequest struct {
	// Provider selects a provider of a Router. Empty means the router default.
	Provider    string
	Model       string
	Messages    []Message
	Temperature *float32
	MaxTokens   int
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type ChatResponse struct {
	Content  string
	Model    string
	Provider string
	Usage    Usage
}

type Provider interface {
	Name() string
	// SendChat returns the complete response text. Streaming providers buffer until the stream ends.
	SendChat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

type ErrorKind string

const (
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindRateLimit  ErrorKind = "rate_limit"
	ErrorKindServer     ErrorKind = "server"
	ErrorKindAuth       ErrorKind = "auth"
	ErrorKindConfig     ErrorKind = "config"
	ErrorKindBadRequest ErrorKind = "bad_request"
	ErrorKindOther      ErrorKind = "other"
)

// Error is a classified provider failure.
type Error struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	msg := e.Provider + ": " + string(e.Kind)
	if e.StatusCode != 0 {
		msg += " (" + strconv.Itoa(e.StatusCode) + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the same request may succeed when sent again.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case ErrorKindTimeout, ErrorKindRateLimit, ErrorKindServer:
		return true
	case ErrorKindAuth, ErrorKindConfig, ErrorKindBadRequest, ErrorKindOther:
		return false
	}
	return false
}

// IsRetryable reports whether err is a retryable *Error. Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var llmErr *Error
	return errors.As(err, &llmErr) && llmErr.Retryable()
}

// KindForStatus maps an HTTP status code of a provider API to an error kind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorKindRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrorKindTimeout
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorKindAuth
	case status >= http.StatusInternalServerError:
		return ErrorKindServer
	case status >= http.StatusBadRequest:
		return ErrorKindBadRequest
	default:
		return ErrorKindOther
	}
}

// classifyTransport handles failures that happened before any HTTP status was received.
func classifyTransport(provider string, err error) *Error {
	kind := ErrorKindOther
	if errors.Is(err, context.DeadlineExceeded) {
		kind = ErrorKindTimeout
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		kind = ErrorKindTimeout
	}
	return &Error{Provider: provider, Kind: kind, Message: err.Error(), Cause: err}
}
