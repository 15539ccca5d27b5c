package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
)

// FailureKind classifies why a provider call failed.
type FailureKind int

const (
	FailureTransport     FailureKind = iota // connection refused, DNS, reset, mid-stream drop
	FailureStatus                           // non-2xx response
	FailureTimeout                          // idle or overall timeout
	FailureCanceled                         // caller canceled the context
	FailureNotConfigured                    // namespaced provider has no credential
	FailureDecode                           // non-streaming body was not the expected JSON
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransport:
		return "connection failed"
	case FailureStatus:
		return "request failed"
	case FailureTimeout:
		return "timed out"
	case FailureCanceled:
		return "canceled"
	case FailureNotConfigured:
		return "not configured"
	case FailureDecode:
		return "invalid response"
	default:
		return "failed"
	}
}

// ErrNotConfigured is wrapped by errors for namespaced models whose provider
// has no API key.
var ErrNotConfigured = errors.New("API key not configured")

// errIdleTimeout is the cancellation cause set by the stream watchdog.
var errIdleTimeout = errors.New("no data received within timeout")

// Error is the typed failure returned by every provider operation.
type Error struct {
	Provider   string // display name, e.g. "OpenAI"
	Kind       FailureKind
	StatusCode int // set for FailureStatus
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == FailureNotConfigured:
		return e.Provider + " " + ErrNotConfigured.Error()
	case e.Kind == FailureStatus && e.Err != nil:
		return fmt.Sprintf("%s returned HTTP %d: %v", e.Provider, e.StatusCode, e.Err)
	case e.Kind == FailureStatus:
		return fmt.Sprintf("%s returned HTTP %d", e.Provider, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Kind, e.Err)
	default:
		return e.Provider + " " + e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	if e.Kind == FailureNotConfigured && e.Err == nil {
		return ErrNotConfigured
	}
	return e.Err
}

// NotConfigured builds the error reported for a namespaced model whose
// provider is absent.
func NotConfigured(t ProviderType) *Error {
	return &Error{Provider: t.DisplayName(), Kind: FailureNotConfigured, Err: ErrNotConfigured}
}

// Marker renders err as the in-band text marker shown in place of a reply.
func Marker(err error) string {
	return "[Error: " + err.Error() + "]"
}

// KindOf returns the failure kind of err, or FailureTransport for errors that
// did not come from this package.
func KindOf(err error) FailureKind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return FailureTransport
}

// classify converts a low-level error into an *Error. ctx is the request
// context; its cause distinguishes watchdog timeouts from caller cancellation.
func classify(ctx context.Context, name string, err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}

	if ctx.Err() != nil {
		cause := context.Cause(ctx)
		switch {
		case errors.Is(cause, errIdleTimeout), errors.Is(cause, context.DeadlineExceeded):
			return &Error{Provider: name, Kind: FailureTimeout, Err: cause}
		default:
			return &Error{Provider: name, Kind: FailureCanceled, Err: cause}
		}
	}

	if code, msg, ok := sdkStatus(err); ok {
		return &Error{Provider: name, Kind: FailureStatus, StatusCode: code, Err: errors.New(msg)}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &Error{Provider: name, Kind: FailureDecode, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Provider: name, Kind: FailureTimeout, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Provider: name, Kind: FailureTimeout, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Provider: name, Kind: FailureCanceled, Err: err}
	}

	// A 2xx response whose body the SDK could not decode.
	if receivedOK(ctx) && !errors.As(err, &netErr) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return &Error{Provider: name, Kind: FailureDecode, Err: err}
	}

	return &Error{Provider: name, Kind: FailureTransport, Err: err}
}

// sdkStatus extracts an HTTP status from the error types of the SDK clients.
func sdkStatus(err error) (int, string, bool) {
	var ollamaErr api.StatusError
	if errors.As(err, &ollamaErr) {
		msg := ollamaErr.ErrorMessage
		if msg == "" {
			msg = ollamaErr.Status
		}
		return ollamaErr.StatusCode, msg, true
	}

	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return openaiErr.StatusCode, openaiErr.Message, true
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode, anthropicErr.Error(), true
	}

	return 0, "", false
}

// maxExcerpt bounds the body excerpt kept in status errors, in bytes.
const maxExcerpt = 200

// statusError reports a non-2xx streaming response, keeping a short excerpt
// of the body cut on a rune boundary.
func statusError(name string, code int, body []byte) *Error {
	excerpt := strings.TrimSpace(string(body))
	if len(excerpt) > maxExcerpt {
		n := maxExcerpt
		for n > 0 && !utf8.RuneStart(excerpt[n]) {
			n--
		}
		excerpt = excerpt[:n]
	}
	if excerpt == "" {
		return &Error{Provider: name, Kind: FailureStatus, StatusCode: code}
	}
	return &Error{Provider: name, Kind: FailureStatus, StatusCode: code, Err: errors.New(excerpt)}
}
