package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChatModel is a minimal BaseChatModel for adapter tests.
type fakeChatModel struct {
	generate  *schema.Message
	genErr    error
	chunks    []*schema.Message
	streamErr error // returned after all chunks
	openErr   error // returned by Stream itself
	gotOpts   []model.Option
}

func (f *fakeChatModel) Generate(_ context.Context, _ []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.gotOpts = opts
	return f.generate, f.genErr
}

func (f *fakeChatModel) Stream(_ context.Context, _ []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.gotOpts = opts
	if f.openErr != nil {
		return nil, f.openErr
	}
	sr, sw := schema.Pipe[*schema.Message](len(f.chunks) + 1)
	go func() {
		defer sw.Close()
		for _, c := range f.chunks {
			sw.Send(c, nil)
		}
		if f.streamErr != nil {
			sw.Send(nil, f.streamErr)
		}
	}()
	return sr, nil
}

func TestEinoBackend_Generate(t *testing.T) {
	m := &fakeChatModel{generate: schema.AssistantMessage("hello", nil)}
	b := NewEinoBackend("gpt", m, false)

	got, err := b.Chat(context.Background(), []*schema.Message{schema.UserMessage("hi")}, Options{Temperature: 0.7, MaxTokens: 100})
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Equal(t, "gpt", b.ID())

	common := model.GetCommonOptions(nil, m.gotOpts...)
	require.NotNil(t, common.Temperature)
	assert.InDelta(t, 0.7, *common.Temperature, 1e-6)
	require.NotNil(t, common.MaxTokens)
	assert.Equal(t, 100, *common.MaxTokens)
}

func TestEinoBackend_NilPayloadIsEmptyText(t *testing.T) {
	b := NewEinoBackend("gpt", &fakeChatModel{}, false)
	got, err := b.Chat(context.Background(), nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestEinoBackend_GenerateErrorIsTransport(t *testing.T) {
	b := NewEinoBackend("gpt", &fakeChatModel{genErr: errors.New("503 service unavailable")}, false)
	_, err := b.Chat(context.Background(), nil, Options{})
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.ErrorContains(t, err, "backend gpt")
}

func TestEinoBackend_Stream(t *testing.T) {
	m := &fakeChatModel{chunks: []*schema.Message{
		schema.AssistantMessage("hel", nil),
		nil,
		schema.AssistantMessage("lo", nil),
	}}
	got, err := NewEinoBackend("local", m, true).Chat(context.Background(), nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestEinoBackend_StreamErrorKeepsPartialText(t *testing.T) {
	m := &fakeChatModel{
		chunks:    []*schema.Message{schema.AssistantMessage("partial", nil)},
		streamErr: errors.New("connection reset"),
	}
	got, err := NewEinoBackend("local", m, true).Chat(context.Background(), nil, Options{})
	assert.Equal(t, "partial", got)
	assert.True(t, IsTransport(err))
}

func TestEinoBackend_CancelledContextIsNotTransport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := &fakeChatModel{openErr: errors.New("request aborted")}

	_, err := NewEinoBackend("local", m, true).Chat(ctx, nil, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsTransport(err))
}
