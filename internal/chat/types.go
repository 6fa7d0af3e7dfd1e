// Package chat implements the conversational orchestrator: per-turn prompt
// assembly, refusal detection and backend failover.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/josephgoksu/ProbeWing/internal/advisor"
	"github.com/josephgoksu/ProbeWing/internal/backend"
	"github.com/josephgoksu/ProbeWing/internal/config"
	"github.com/josephgoksu/ProbeWing/internal/llm"
	"github.com/josephgoksu/ProbeWing/internal/memory"
)

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one history entry.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	BackendID string    `json:"backendId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SwitchEvent records one failover.
type SwitchEvent struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Status is the terminal state of a turn.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// Result is the outcome of one turn.
type Result struct {
	Text      string `json:"text"`
	BackendID string `json:"backendId"`
	Status    Status `json:"status"`
	Switched  bool   `json:"switched"`
	Refused   bool   `json:"refused"` // Final text still reads as a refusal
}

// ReasonRefusal is the switch reason recorded when a backend refuses.
const ReasonRefusal = "Model refused to continue"

var (
	// ErrTurnInFlight is returned when Send is called while another turn on
	// the same session has not finished.
	ErrTurnInFlight = errors.New("a turn is already in flight on this session")

	// ErrRefused is returned by Ask when the delivered text is a refusal.
	ErrRefused = errors.New("backend refused")
)

// Memory is the append/query store sessions read context from and write
// audit records to.
type Memory interface {
	Store(ctx context.Context, content string, metadata map[string]any, tags []string) (string, error)
	Retrieve(ctx context.Context, q memory.Query) ([]memory.Entry, error)
}

// Reasoner produces side-channel reasoning for exploit-intent turns.
type Reasoner interface {
	Reason(ctx context.Context, topic, background string) (advisor.Reasoning, error)
}

// Backends is the view of the registry a session needs.
type Backends interface {
	Default() backend.Descriptor
	FallbackFor(current string) (backend.Descriptor, bool)
	Client(id string) (llm.Backend, error)
}

// MaxTemperature caps the raised temperature of a refusal retry. It matches
// the upper bound chat.temperature accepts.
const MaxTemperature = 2.0

// Config tunes a session.
type Config struct {
	SystemPrompt            string
	AutoSwitch              bool
	Temperature             float64
	MaxTokens               int
	RefusalTemperatureBoost float64
	ContextLimit            int           // Memory entries folded into "previous context"
	HistoryWindow           int           // User/assistant turns replayed per call
	Timeout                 time.Duration // Per backend call; 0 means none
	ReasonTimeout           time.Duration
	InitialBackend          string // Empty selects the registry default

	Classifier    RefusalClassifier
	ExploitIntent func(text string) bool
	Memory        Memory
	Reasoner      Reasoner
	Logger        *slog.Logger
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		SystemPrompt:            config.SystemPromptChat,
		AutoSwitch:              true,
		Temperature:             0.7,
		MaxTokens:               llm.DefaultMaxTokens,
		RefusalTemperatureBoost: 0.2,
		ContextLimit:            5,
		HistoryWindow:           10,
		ReasonTimeout:           time.Minute,
	}
}
