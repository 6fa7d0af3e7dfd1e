package llm

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoBackend adapts an Eino chat model to the Backend interface.
type EinoBackend struct {
	id     string
	model  model.BaseChatModel
	stream bool
}

// NewEinoBackend wraps a chat model. With stream enabled the backend reads
// the response incrementally, so a cancelled call still yields partial text.
func NewEinoBackend(id string, m model.BaseChatModel, stream bool) *EinoBackend {
	return &EinoBackend{id: id, model: m, stream: stream}
}

// NewBackend creates the provider chat model for cfg and wraps it.
func NewBackend(ctx context.Context, id string, cfg Config, stream bool) (*EinoBackend, error) {
	m, err := NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewEinoBackend(id, m, stream), nil
}

// ID returns the backend id.
func (b *EinoBackend) ID() string { return b.id }

// Chat sends messages to the underlying model.
func (b *EinoBackend) Chat(ctx context.Context, messages []*schema.Message, opts Options) (string, error) {
	callOpts := []model.Option{model.WithTemperature(float32(opts.Temperature))}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, model.WithMaxTokens(opts.MaxTokens))
	}

	if !b.stream {
		resp, err := b.model.Generate(ctx, messages, callOpts...)
		if err != nil {
			return "", b.wrap(ctx, err)
		}
		return contentOf(resp), nil
	}

	reader, err := b.model.Stream(ctx, messages, callOpts...)
	if err != nil {
		return "", b.wrap(ctx, err)
	}
	defer reader.Close()

	var sb strings.Builder
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), b.wrap(ctx, err)
		}
		sb.WriteString(contentOf(chunk))
	}
}

// wrap classifies a model error. Cancellation by the caller is returned as
// the bare context error; everything else is a transport failure.
func (b *EinoBackend) wrap(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &TransportError{BackendID: b.id, Err: err}
}

// contentOf treats a missing or malformed payload as empty text.
func contentOf(m *schema.Message) string {
	if m == nil {
		return ""
	}
	return m.Content
}
