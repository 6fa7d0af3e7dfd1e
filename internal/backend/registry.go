/*
Package backend provides the static registry of chat backends.
*/
package backend

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/josephgoksu/ProbeWing/internal/llm"
)

var (
	// ErrNoBackends is returned when a registry would be empty.
	ErrNoBackends = errors.New("no backends configured")
	// ErrUnknownBackend is returned for ids not present in the registry.
	ErrUnknownBackend = errors.New("unknown backend")
)

// Descriptor describes one registered backend.
type Descriptor struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Relaxed  bool         `json:"relaxed"`
	Default  bool         `json:"default"`
	Provider llm.Provider `json:"provider,omitempty"`
	Model    string       `json:"model,omitempty"`
}

// Entry pairs a descriptor with its client.
type Entry struct {
	Descriptor Descriptor
	Client     llm.Backend
}

// Registry is the read-only catalog of backends. It is safe for concurrent
// use because nothing mutates it after construction.
type Registry struct {
	entries []Entry
	byID    map[string]int
}

// NewRegistry builds a registry from entries in the given order.
func NewRegistry(entries ...Entry) (*Registry, error) {
	if len(entries) == 0 {
		return nil, ErrNoBackends
	}
	r := &Registry{
		entries: make([]Entry, len(entries)),
		byID:    make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		if e.Descriptor.ID == "" {
			return nil, fmt.Errorf("backend %d: id is required", i)
		}
		if e.Client == nil {
			return nil, fmt.Errorf("backend %s: client is required", e.Descriptor.ID)
		}
		if _, dup := r.byID[e.Descriptor.ID]; dup {
			return nil, fmt.Errorf("backend %s: duplicate id", e.Descriptor.ID)
		}
		if e.Descriptor.Name == "" {
			e.Descriptor.Name = e.Descriptor.ID
		}
		r.entries[i] = e
		r.byID[e.Descriptor.ID] = i
	}
	return r, nil
}

// Default returns the first descriptor flagged default, else the first entry.
func (r *Registry) Default() Descriptor {
	for _, e := range r.entries {
		if e.Descriptor.Default {
			return e.Descriptor
		}
	}
	return r.entries[0].Descriptor
}

// All returns every descriptor in registration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Descriptor
	}
	return out
}

// Relaxed returns the descriptors flagged relaxed, in registration order.
func (r *Registry) Relaxed() []Descriptor {
	var out []Descriptor
	for _, e := range r.entries {
		if e.Descriptor.Relaxed {
			out = append(out, e.Descriptor)
		}
	}
	return out
}

// Get returns the descriptor for id.
func (r *Registry) Get(id string) (Descriptor, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Descriptor{}, false
	}
	return r.entries[i].Descriptor, true
}

// Client returns the backend client for id.
func (r *Registry) Client(id string) (llm.Backend, error) {
	i, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, id)
	}
	return r.entries[i].Client, nil
}

// FallbackFor picks the failover target for current: the first relaxed
// backend whose id differs from current, else the first relaxed backend.
// It reports false when no relaxed backend is registered.
func (r *Registry) FallbackFor(current string) (Descriptor, bool) {
	relaxed := r.Relaxed()
	if len(relaxed) == 0 {
		return Descriptor{}, false
	}
	for _, d := range relaxed {
		if d.ID != current {
			return d, true
		}
	}
	return relaxed[0], true
}

// Spec is the configuration of one backend.
type Spec struct {
	ID        string
	Name      string
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string // Takes precedence over APIKeyEnv
	APIKeyEnv string
	Relaxed   bool
	Default   bool
	Stream    bool
	MaxTokens int
}

// FromSpecs creates provider clients for every spec and returns the registry.
func FromSpecs(ctx context.Context, specs []Spec) (*Registry, error) {
	if len(specs) == 0 {
		return nil, ErrNoBackends
	}
	entries := make([]Entry, 0, len(specs))
	for _, s := range specs {
		provider, err := llm.ValidateProvider(s.Provider)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", s.ID, err)
		}
		modelName := s.Model
		if modelName == "" {
			modelName = llm.DefaultModelForProvider(provider)
		}
		keyEnv := s.APIKeyEnv
		if keyEnv == "" {
			keyEnv = llm.APIKeyEnv(provider)
		}
		apiKey := s.APIKey
		if apiKey == "" && keyEnv != "" {
			apiKey = os.Getenv(keyEnv)
		}

		client, err := llm.NewBackend(ctx, s.ID, llm.Config{
			Provider:  provider,
			Model:     modelName,
			APIKey:    apiKey,
			BaseURL:   s.BaseURL,
			MaxTokens: s.MaxTokens,
		}, s.Stream)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", s.ID, err)
		}
		entries = append(entries, Entry{
			Descriptor: Descriptor{
				ID:       s.ID,
				Name:     s.Name,
				Relaxed:  s.Relaxed,
				Default:  s.Default,
				Provider: provider,
				Model:    modelName,
			},
			Client: client,
		})
	}
	return NewRegistry(entries...)
}
