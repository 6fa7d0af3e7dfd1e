package backend

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/josephgoksu/ProbeWing/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stub(id string) llm.Backend {
	return llm.BackendFunc{Name: id, Fn: func(context.Context, []*schema.Message, llm.Options) (string, error) {
		return id, nil
	}}
}

func entry(id string, relaxed, def bool) Entry {
	return Entry{Descriptor: Descriptor{ID: id, Relaxed: relaxed, Default: def}, Client: stub(id)}
}

func TestNewRegistry_Validation(t *testing.T) {
	_, err := NewRegistry()
	assert.ErrorIs(t, err, ErrNoBackends)

	_, err = NewRegistry(entry("a", false, false), entry("a", true, false))
	assert.ErrorContains(t, err, "duplicate")

	_, err = NewRegistry(Entry{Descriptor: Descriptor{ID: "nil-client"}})
	assert.ErrorContains(t, err, "client is required")

	_, err = NewRegistry(Entry{Client: stub("x")})
	assert.ErrorContains(t, err, "id is required")
}

func TestRegistry_Default(t *testing.T) {
	r, err := NewRegistry(entry("a", false, false), entry("b", false, true), entry("c", false, true))
	require.NoError(t, err)
	assert.Equal(t, "b", r.Default().ID)

	r, err = NewRegistry(entry("a", true, false), entry("b", false, false))
	require.NoError(t, err)
	assert.Equal(t, "a", r.Default().ID, "falls back to the first entry")
}

func TestRegistry_AllAndRelaxed(t *testing.T) {
	r, err := NewRegistry(entry("a", false, true), entry("b", true, false), entry("c", true, false))
	require.NoError(t, err)

	var all []string
	for _, d := range r.All() {
		all = append(all, d.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, all)

	relaxed := r.Relaxed()
	require.Len(t, relaxed, 2)
	assert.Equal(t, "b", relaxed[0].ID)
	assert.Equal(t, "c", relaxed[1].ID)

	d, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", d.Name, "name defaults to id")
}

func TestRegistry_Client(t *testing.T) {
	r, err := NewRegistry(entry("a", false, true))
	require.NoError(t, err)

	c, err := r.Client("a")
	require.NoError(t, err)
	assert.Equal(t, "a", c.ID())

	_, err = r.Client("missing")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestRegistry_FallbackFor(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		current string
		want    string
		wantOK  bool
	}{
		{
			name:    "first relaxed distinct from current",
			entries: []Entry{entry("strict", false, true), entry("r1", true, false), entry("r2", true, false)},
			current: "strict",
			want:    "r1",
			wantOK:  true,
		},
		{
			name:    "skips current when current is relaxed",
			entries: []Entry{entry("r1", true, true), entry("r2", true, false)},
			current: "r1",
			want:    "r2",
			wantOK:  true,
		},
		{
			name:    "reuses the only relaxed backend",
			entries: []Entry{entry("r1", true, true)},
			current: "r1",
			want:    "r1",
			wantOK:  true,
		},
		{
			name:    "no relaxed backend",
			entries: []Entry{entry("strict", false, true)},
			current: "strict",
			wantOK:  false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRegistry(tt.entries...)
			require.NoError(t, err)
			got, ok := r.FallbackFor(tt.current)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestFromSpecs(t *testing.T) {
	_, err := FromSpecs(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoBackends)

	_, err = FromSpecs(context.Background(), []Spec{{ID: "x", Provider: "bogus"}})
	assert.ErrorContains(t, err, "unsupported provider")

	r, err := FromSpecs(context.Background(), []Spec{
		{ID: "local", Name: "Local", Provider: "ollama", Relaxed: true, Default: true},
	})
	require.NoError(t, err)
	d := r.Default()
	assert.Equal(t, "local", d.ID)
	assert.Equal(t, "llama3.2", d.Model, "model defaults per provider")
	assert.Equal(t, llm.ProviderOllama, d.Provider)
}
