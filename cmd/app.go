package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/josephgoksu/ProbeWing/internal/advisor"
	"github.com/josephgoksu/ProbeWing/internal/backend"
	"github.com/josephgoksu/ProbeWing/internal/chat"
	"github.com/josephgoksu/ProbeWing/internal/config"
	"github.com/josephgoksu/ProbeWing/internal/evolve"
	"github.com/josephgoksu/ProbeWing/internal/llm"
	"github.com/josephgoksu/ProbeWing/internal/memory"
	"github.com/josephgoksu/ProbeWing/internal/probe"
	"github.com/josephgoksu/ProbeWing/internal/verify"
	"github.com/spf13/afero"
)

// Seams replaced in tests.
var (
	appFs         = afero.NewOsFs()
	buildRegistry = func(ctx context.Context, cfg *config.Config) (*backend.Registry, error) {
		return backend.FromSpecs(ctx, cfg.BackendSpecs())
	}
	newEmbedder = llm.NewEmbeddingModel
	memoryPath  = config.GetMemoryBasePath
)

// app holds the pieces a command needs, built from the configuration.
type app struct {
	cfg      *config.Config
	registry *backend.Registry
	memory   *memory.SQLiteStore
	reasoner *advisor.LLMReasoner
	logger   *slog.Logger
}

// newApp connects the registry, memory store and advisor.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	registry, err := buildRegistry(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("backends: %w", err)
	}

	a := &app{cfg: cfg, registry: registry, logger: slog.Default()}

	if a.memory, err = openMemory(ctx, cfg); err != nil {
		return nil, err
	}

	def := registry.Default()
	client, err := registry.Client(def.ID)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.reasoner, err = advisor.NewLLMReasoner(ctx, client, llm.Options{Temperature: 0.2, MaxTokens: cfg.Chat.MaxTokens})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("advisor: %w", err)
	}
	return a, nil
}

func openMemory(ctx context.Context, cfg *config.Config) (*memory.SQLiteStore, error) {
	opts := []memory.Option{memory.WithLogger(slog.Default())}

	embedCfg, ok, err := config.EmbeddingConfig(cfg)
	if err != nil {
		return nil, err
	}
	if ok {
		embedder, err := newEmbedder(ctx, embedCfg)
		if err != nil {
			// Retrieval still works on BM25 alone.
			slog.Warn("embeddings disabled", "error", err)
		} else {
			opts = append(opts, memory.WithEmbedder(embedder))
		}
	}

	store, err := memory.NewSQLiteStore(memoryPath(), opts...)
	if err != nil {
		return nil, fmt.Errorf("open memory: %w", err)
	}
	return store, nil
}

// Close releases the memory store.
func (a *app) Close() error {
	if a.memory == nil {
		return nil
	}
	return a.memory.Close()
}

// chatConfig maps the chat section onto a session config.
func (a *app) chatConfig(initial string, autoSwitch bool) chat.Config {
	c := a.cfg.Chat
	cc := chat.DefaultConfig()
	cc.SystemPrompt = c.SystemPrompt
	cc.AutoSwitch = autoSwitch
	cc.Temperature = c.Temperature
	cc.MaxTokens = c.MaxTokens
	cc.RefusalTemperatureBoost = c.RefusalTemperatureBoost
	cc.ContextLimit = c.ContextLimit
	cc.HistoryWindow = c.HistoryWindow
	cc.Timeout = c.Timeout
	cc.InitialBackend = initial
	cc.Logger = a.logger
	if len(c.RefusalPhrases) > 0 {
		cc.Classifier = chat.NewPhraseClassifier(c.RefusalPhrases...)
	}
	if a.memory != nil {
		cc.Memory = a.memory
	}
	if a.reasoner != nil {
		cc.Reasoner = a.reasoner
	}
	return cc
}

// newSession opens a conversation with the configured defaults.
func (a *app) newSession(initial string, autoSwitch bool) (*chat.Session, error) {
	return chat.New(a.registry, a.chatConfig(initial, autoSwitch))
}

// refinementConfig is the session config for generated refinement prompts.
// Prompts must not depend on what sibling candidates wrote to memory, so
// recall and the exploit-intent advisor are off. Audit records are still
// written.
func (a *app) refinementConfig() chat.Config {
	cc := a.chatConfig("", a.cfg.Chat.AutoSwitch)
	cc.ExploitIntent = func(string) bool { return false }
	cc.ContextLimit = 0
	return cc
}

// sessions gives the evolution controller one fresh session per unit of work.
func (a *app) sessions() evolve.SessionFactory {
	return func() (evolve.Asker, error) {
		return chat.New(a.registry, a.refinementConfig())
	}
}

// scanOptions are the per-run overrides of the evolve section.
type scanOptions struct {
	MaxCycles int // Zero keeps evolve.max_cycles
	NoPersist bool
	Verify    bool // Forces verification on
	Progress  evolve.ProgressFunc
}

// scan runs one evolution over in.
func (a *app) scan(ctx context.Context, in evolve.Input, so scanOptions) (*evolve.Run, error) {
	probes, err := a.probes()
	if err != nil {
		return nil, err
	}

	ecfg := evolve.Config{
		MaxCycles: a.cfg.Evolve.MaxCycles,
		Threshold: a.cfg.Evolve.Threshold,
		Parallel:  a.cfg.Evolve.Parallel,
		Persist:   a.cfg.Evolve.Persist && !so.NoPersist,
	}
	if so.MaxCycles > 0 {
		ecfg.MaxCycles = so.MaxCycles
	}

	opts := []evolve.Option{evolve.WithMemory(a.memory), evolve.WithLogger(a.logger)}
	if so.Progress != nil {
		opts = append(opts, evolve.WithProgress(so.Progress))
	}
	if so.Verify || a.cfg.Verify.Enabled {
		opts = append(opts, evolve.WithVerifier(verify.NewHTTPVerifier(verify.Config{
			Timeout:   a.cfg.Verify.Timeout,
			UserAgent: "probewing/" + version,
		})))
	}

	controller := evolve.New(ecfg, probe.NewFanout(probes, a.logger), a.sessions(), opts...)
	return controller.Run(ctx, in)
}

// probes returns the built-in probes plus any rules from probes.catalog.
func (a *app) probes() ([]probe.Probe, error) {
	probes := probe.Defaults()
	if path := a.cfg.Probes.Catalog; path != "" {
		rules, err := probe.LoadCatalogFile(appFs, path)
		if err != nil {
			return nil, fmt.Errorf("probe catalog %s: %w", path, err)
		}
		probes = append(probes, probe.FromRules(rules)...)
	}
	return probes, nil
}
