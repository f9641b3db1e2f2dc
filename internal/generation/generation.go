// Package generation wraps the text-generation providers behind a single
// manager with fixed fallback order, transport-only retries, and a
// structured response schema that degrades to plain text.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Role of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior exchange passed to the provider as history.
type Message struct {
	Role    Role
	Content string
}

// Request is one generation call.
type Request struct {
	System   string
	Input    string
	History  []Message
	JSONMode bool
}

// Response is the raw outcome of a generation call. Callers that expect
// the structured turn schema run ParseProposal over Text themselves.
type Response struct {
	Text     string
	Provider string
}

// Provider is one text-generation backend.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
	Available(ctx context.Context) bool
}

// ErrNoProvider is returned when every configured provider has been
// exhausted. The turn that hit it must not commit any state.
var ErrNoProvider = errors.New("no generation provider available")

// TransportError marks a network-level failure that is worth retrying on
// the same provider. Anything else falls through to the next provider
// immediately.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is a retryable transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// errorMarker prefixes degraded provider output that must never be
// accepted as a narrative response.
const errorMarker = "[Error:"

const minValidLength = 5

// validResponse applies the acceptance rule: non-empty, not an error
// marker, and long enough to be narratable.
func validResponse(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, errorMarker) {
		return false
	}
	return len(trimmed) >= minValidLength
}

// StripFences removes a surrounding markdown code fence, if any, so JSON
// payloads survive providers that insist on wrapping them.
func StripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
