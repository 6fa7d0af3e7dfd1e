package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/schema"
)

// Options tune a single chat call.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Backend is a text-generation capability identified by id.
//
// Chat returns the assistant text for the given messages. Refusals are
// ordinary text. When ctx is cancelled mid-generation, Chat returns the text
// produced so far together with the context error.
type Backend interface {
	ID() string
	Chat(ctx context.Context, messages []*schema.Message, opts Options) (string, error)
}

// TransportError reports that a backend could not be reached or answered
// with a non-success response.
type TransportError struct {
	BackendID string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.BackendID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// BackendFunc adapts a function to the Backend interface. Useful for tests
// and for wiring ad hoc backends.
type BackendFunc struct {
	Name string
	Fn   func(ctx context.Context, messages []*schema.Message, opts Options) (string, error)
}

// ID returns the backend id.
func (b BackendFunc) ID() string { return b.Name }

// Chat calls the wrapped function.
func (b BackendFunc) Chat(ctx context.Context, messages []*schema.Message, opts Options) (string, error) {
	return b.Fn(ctx, messages, opts)
}
