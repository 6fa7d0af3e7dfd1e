package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/josephgoksu/ProbeWing/internal/llm"
	"github.com/josephgoksu/ProbeWing/internal/memory"
)

// maxAuditResponse bounds the response text kept in an audit record.
const maxAuditResponse = 500

// Session is one conversation. It owns the current backend selection, the
// history and the switch log. Turns must not overlap: a Send issued while
// another is running fails with ErrTurnInFlight.
type Session struct {
	id       string
	cfg      Config
	backends Backends
	logger   *slog.Logger
	now      func() time.Time

	inFlight atomic.Bool
	bg       sync.WaitGroup

	mu       sync.Mutex
	current  string
	history  []Turn
	switches []SwitchEvent
}

// New creates a session over backends.
func New(backends Backends, cfg Config) (*Session, error) {
	if backends == nil {
		return nil, fmt.Errorf("backends are required")
	}
	if cfg.Classifier == nil {
		cfg.Classifier = NewPhraseClassifier()
	}
	if cfg.ExploitIntent == nil {
		cfg.ExploitIntent = IsExploitIntent
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	current := cfg.InitialBackend
	if current == "" {
		current = backends.Default().ID
	}
	if _, err := backends.Client(current); err != nil {
		return nil, fmt.Errorf("initial backend: %w", err)
	}

	id := uuid.New().String()
	return &Session{
		id:       id,
		cfg:      cfg,
		backends: backends,
		logger:   cfg.Logger.With("session", id[:8]),
		now:      time.Now,
		current:  current,
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Current returns the id of the currently selected backend.
func (s *Session) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// History returns a copy of the conversation history.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.history...)
}

// Switches returns a copy of the switch log.
func (s *Session) Switches() []SwitchEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SwitchEvent(nil), s.switches...)
}

// Wait blocks until the turn in flight, if any, and the background reasoning
// started by earlier turns finish.
func (s *Session) Wait() { s.bg.Wait() }

// Send runs one turn. The returned Result is always terminal: delivered,
// failed (with the error text as Result.Text) or stopped when ctx was
// cancelled. A non-nil error accompanies failed turns only.
func (s *Session) Send(ctx context.Context, text string) (Result, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return Result{}, ErrTurnInFlight
	}
	// The turn holds bg so advise can Add while a Wait is pending.
	s.bg.Add(1)
	defer s.bg.Done()
	defer s.inFlight.Store(false)

	messages := s.buildMessages(ctx, text)
	res, err := s.run(ctx, messages)

	s.record(ctx, text, res)
	if s.cfg.ExploitIntent(text) {
		s.advise(ctx, text, res)
	}
	return res, err
}

// Ask sends prompt and returns the delivered text. Stopped, failed and
// refused turns are errors.
func (s *Session) Ask(ctx context.Context, prompt string) (string, error) {
	res, err := s.Send(ctx, prompt)
	if err != nil {
		return "", err
	}
	switch {
	case res.Status == StatusStopped:
		return res.Text, fmt.Errorf("turn stopped: %w", context.Cause(ctx))
	case res.Refused:
		return res.Text, fmt.Errorf("%w: %s", ErrRefused, res.BackendID)
	}
	return res.Text, nil
}

// run executes the primary call and at most one fallback.
func (s *Session) run(ctx context.Context, messages []*schema.Message) (Result, error) {
	from := s.Current()
	opts := llm.Options{Temperature: s.cfg.Temperature, MaxTokens: s.cfg.MaxTokens}

	text, err := s.call(ctx, from, messages, opts)
	switch {
	case err != nil && ctx.Err() != nil:
		return Result{Text: text, BackendID: from, Status: StatusStopped}, nil

	case err != nil:
		if !s.cfg.AutoSwitch {
			return failed(from, false, err), err
		}
		to, ok := s.backends.FallbackFor(from)
		if !ok {
			return failed(from, false, err), err
		}
		s.switchTo(from, to.ID, err.Error())
		return s.retry(ctx, to.ID, messages, opts, err)

	case s.cfg.Classifier.IsRefusal(text):
		if !s.cfg.AutoSwitch {
			return Result{Text: text, BackendID: from, Status: StatusDelivered, Refused: true}, nil
		}
		to, ok := s.backends.FallbackFor(from)
		if !ok {
			s.logger.Debug("refusal with no relaxed backend registered", "backend", from)
			return Result{Text: text, BackendID: from, Status: StatusDelivered, Refused: true}, nil
		}
		s.switchTo(from, to.ID, ReasonRefusal)
		opts.Temperature = min(opts.Temperature+s.cfg.RefusalTemperatureBoost, MaxTemperature)
		return s.retry(ctx, to.ID, messages, opts, nil)
	}

	return Result{Text: text, BackendID: from, Status: StatusDelivered}, nil
}

// retry is the single fallback attempt. cause is the primary error, if any.
func (s *Session) retry(ctx context.Context, id string, messages []*schema.Message, opts llm.Options, cause error) (Result, error) {
	text, err := s.call(ctx, id, messages, opts)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Text: text, BackendID: id, Status: StatusStopped, Switched: true}, nil
		}
		if cause != nil {
			err = fmt.Errorf("fallback to %s after %v: %w", id, cause, err)
		} else {
			err = fmt.Errorf("fallback to %s: %w", id, err)
		}
		return failed(id, true, err), err
	}
	return Result{
		Text:      text,
		BackendID: id,
		Status:    StatusDelivered,
		Switched:  true,
		Refused:   s.cfg.Classifier.IsRefusal(text),
	}, nil
}

// call invokes one backend. Any error other than the caller's own
// cancellation is reported as a TransportError, including per-call timeouts.
func (s *Session) call(ctx context.Context, id string, messages []*schema.Message, opts llm.Options) (string, error) {
	client, err := s.backends.Client(id)
	if err != nil {
		return "", &llm.TransportError{BackendID: id, Err: err}
	}

	callCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	started := s.now()
	text, err := client.Chat(callCtx, messages, opts)
	s.logger.Debug("backend call", "backend", id, "duration", time.Since(started), "error", err)
	if err == nil || ctx.Err() != nil {
		return text, err
	}
	if !llm.IsTransport(err) {
		err = &llm.TransportError{BackendID: id, Err: err}
	}
	return text, err
}

func (s *Session) switchTo(from, to, reason string) {
	s.mu.Lock()
	s.switches = append(s.switches, SwitchEvent{From: from, To: to, Reason: reason, Timestamp: s.now()})
	s.current = to
	s.mu.Unlock()
	s.logger.Warn("backend switched", "from", from, "to", to, "reason", reason)
}

func failed(id string, switched bool, err error) Result {
	return Result{
		Text:      fmt.Sprintf("Request failed: %v", err),
		BackendID: id,
		Status:    StatusFailed,
		Switched:  switched,
	}
}

// buildMessages assembles system prompt, recalled context, the history
// window and the new user text.
func (s *Session) buildMessages(ctx context.Context, text string) []*schema.Message {
	var msgs []*schema.Message
	if s.cfg.SystemPrompt != "" {
		msgs = append(msgs, schema.SystemMessage(s.cfg.SystemPrompt))
	}
	if recalled := s.previousContext(ctx, text); recalled != "" {
		msgs = append(msgs, schema.SystemMessage(recalled))
	}
	for _, t := range s.window() {
		switch t.Role {
		case RoleUser:
			msgs = append(msgs, schema.UserMessage(t.Content))
		case RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(t.Content, nil))
		}
	}
	return append(msgs, schema.UserMessage(text))
}

// window returns the trailing user/assistant turns.
func (s *Session) window() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	var turns []Turn
	for _, t := range s.history {
		if t.Role == RoleUser || t.Role == RoleAssistant {
			turns = append(turns, t)
		}
	}
	if len(turns) > s.cfg.HistoryWindow {
		turns = turns[len(turns)-s.cfg.HistoryWindow:]
	}
	return turns
}

func (s *Session) previousContext(ctx context.Context, text string) string {
	if s.cfg.Memory == nil || s.cfg.ContextLimit <= 0 {
		return ""
	}
	entries, err := s.cfg.Memory.Retrieve(ctx, memory.Query{Text: text, Limit: s.cfg.ContextLimit})
	if err != nil {
		s.logger.Warn("memory retrieve failed", "error", err)
		return ""
	}
	if len(entries) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Previous context:\n")
	for _, e := range entries {
		sb.WriteString("- ")
		sb.WriteString(strings.TrimSpace(e.Content))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// record appends the turn to history and writes the audit record. Memory
// writes outlive cancellation of the turn.
func (s *Session) record(ctx context.Context, text string, res Result) {
	now := s.now()
	s.mu.Lock()
	s.history = append(s.history,
		Turn{Role: RoleUser, Content: text, Timestamp: now},
		Turn{Role: RoleAssistant, Content: res.Text, BackendID: res.BackendID, Timestamp: now},
	)
	s.mu.Unlock()

	if s.cfg.Memory == nil {
		return
	}
	tags := []string{memory.TagChat, memory.TagAudit}
	if res.Switched {
		tags = append(tags, memory.TagSwitched)
	}
	content := fmt.Sprintf("user: %s\nassistant: %s", text, truncate(res.Text, maxAuditResponse))
	meta := map[string]any{
		"backend":  res.BackendID,
		"switched": res.Switched,
		"status":   string(res.Status),
		"session":  s.id,
	}
	if _, err := s.cfg.Memory.Store(context.WithoutCancel(ctx), content, meta, tags); err != nil {
		s.logger.Warn("audit record not stored", "error", err)
	}
}

// advise runs the reasoner in the background and persists its conclusion.
func (s *Session) advise(ctx context.Context, text string, res Result) {
	if s.cfg.Reasoner == nil {
		return
	}
	bgCtx := context.WithoutCancel(ctx)

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx := bgCtx
		if s.cfg.ReasonTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(bgCtx, s.cfg.ReasonTimeout)
			defer cancel()
		}

		r, err := s.cfg.Reasoner.Reason(ctx, text, res.Text)
		if err != nil {
			s.logger.Warn("reasoning failed", "error", err)
			return
		}
		if s.cfg.Memory == nil || r.Conclusion == "" {
			return
		}
		meta := map[string]any{
			"topic":      truncate(text, maxAuditResponse),
			"confidence": r.Confidence,
			"steps":      len(r.Steps),
			"session":    s.id,
		}
		if _, err := s.cfg.Memory.Store(ctx, r.Conclusion, meta, []string{memory.TagReasoning, memory.TagAudit}); err != nil {
			s.logger.Warn("reasoning not stored", "error", err)
		}
	}()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
