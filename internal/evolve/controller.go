/*
Package evolve runs the bounded refinement loop over findings.

Cycle 1 collects probe findings (plus a dump analysis when a dump is given),
merges them and optionally verifies high-confidence ones. Each later cycle
refines the previous cycle's findings that are still below the confidence
threshold, until the cycle cap is reached or nothing is left to refine.
*/
package evolve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/josephgoksu/ProbeWing/internal/config"
	"github.com/josephgoksu/ProbeWing/internal/dump"
	"github.com/josephgoksu/ProbeWing/internal/finding"
	"github.com/josephgoksu/ProbeWing/internal/memory"
	"github.com/josephgoksu/ProbeWing/internal/probe"
	"github.com/josephgoksu/ProbeWing/internal/verify"
	"golang.org/x/sync/errgroup"
)

// VerifyThreshold is the confidence a cycle-1 finding must exceed before it
// is sent to the verifier.
const VerifyThreshold = 0.8

// Collector produces the raw cycle-1 findings.
type Collector interface {
	Run(ctx context.Context, target string) ([]finding.Finding, []probe.Report)
}

// Asker is the slice of a chat session the controller uses.
type Asker interface {
	Ask(ctx context.Context, prompt string) (string, error)
	Current() string
}

// SessionFactory returns a fresh conversation for one unit of work.
type SessionFactory func() (Asker, error)

// Verifier confirms a finding against the live target.
type Verifier interface {
	Attempt(ctx context.Context, target string, p verify.Params) (finding.Verification, error)
}

// Memory receives persisted findings.
type Memory interface {
	Store(ctx context.Context, content string, metadata map[string]any, tags []string) (string, error)
}

// ProgressFunc observes the loop. It is called synchronously before each
// cycle and must not block for long.
type ProgressFunc func(cycle int, message string)

// Config tunes the loop.
type Config struct {
	MaxCycles int     // Cycle cap, including cycle 1
	Threshold float64 // Findings below this confidence are refined
	Parallel  int     // Concurrent refinements per cycle
	Persist   bool    // Store derived and verified findings in memory
}

// DefaultConfig returns the default loop settings.
func DefaultConfig() Config {
	return Config{MaxCycles: 5, Threshold: 0.9, Parallel: 4, Persist: true}
}

// Input is what a caller supplies for one run.
type Input struct {
	Target string
	Dump   string // System dump text, optional
}

// CycleSummary describes one executed cycle.
type CycleSummary struct {
	Cycle      int           `json:"cycle"`
	Candidates int           `json:"candidates"`
	Produced   int           `json:"produced"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
}

// Run is the result of Controller.Run.
type Run struct {
	Findings []finding.Finding `json:"findings"`
	Cycles   []CycleSummary    `json:"cycles"`
	Reports  []probe.Report    `json:"-"`
	Verified int               `json:"verified"`
}

// Controller drives the refinement loop.
type Controller struct {
	cfg      Config
	probes   Collector
	sessions SessionFactory
	verifier Verifier
	memory   Memory
	progress ProgressFunc
	logger   *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithVerifier enables the verification pass.
func WithVerifier(v Verifier) Option { return func(c *Controller) { c.verifier = v } }

// WithMemory sets the store findings are persisted to.
func WithMemory(m Memory) Option { return func(c *Controller) { c.memory = m } }

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option { return func(c *Controller) { c.progress = fn } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.logger = l } }

// New creates a controller. Zero numeric config fields take their defaults.
func New(cfg Config, probes Collector, sessions SessionFactory, opts ...Option) *Controller {
	def := DefaultConfig()
	if cfg.MaxCycles <= 0 {
		cfg.MaxCycles = def.MaxCycles
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = def.Parallel
	}
	c := &Controller{cfg: cfg, probes: probes, sessions: sessions, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes the loop. On cancellation it returns the merged findings
// accumulated so far together with the context error.
func (c *Controller) Run(ctx context.Context, in Input) (*Run, error) {
	run := &Run{}

	start := time.Now()
	c.report(1, "collecting probe findings")
	current, reports := c.collect(ctx, in)
	run.Reports = reports
	current, run.Verified = c.verifyAll(ctx, in.Target, current)
	all := append([]finding.Finding(nil), current...)
	run.Cycles = append(run.Cycles, CycleSummary{Cycle: 1, Produced: len(current), Duration: time.Since(start)})

	for cycle := 2; cycle <= c.cfg.MaxCycles; cycle++ {
		if err := ctx.Err(); err != nil {
			run.Findings = finding.Merge(all)
			return run, err
		}

		candidates := c.candidates(current)
		if len(candidates) == 0 {
			c.logger.Debug("no candidates left", "cycle", cycle)
			break
		}

		start := time.Now()
		c.report(cycle, fmt.Sprintf("refining %d findings below %.2f confidence", len(candidates), c.cfg.Threshold))
		derived, failed := c.refine(ctx, cycle, candidates)
		run.Cycles = append(run.Cycles, CycleSummary{
			Cycle:      cycle,
			Candidates: len(candidates),
			Produced:   len(derived),
			Failed:     failed,
			Duration:   time.Since(start),
		})

		c.persist(ctx, derived)
		all = append(all, derived...)
		current = derived
	}

	run.Findings = finding.Merge(all)
	if err := ctx.Err(); err != nil {
		return run, err
	}
	return run, nil
}

func (c *Controller) report(cycle int, message string) {
	if c.progress != nil {
		c.progress(cycle, message)
	}
}

// collect runs the probes and the optional dump analysis, tags everything
// with cycle 1 and merges.
func (c *Controller) collect(ctx context.Context, in Input) ([]finding.Finding, []probe.Report) {
	var raw []finding.Finding
	var reports []probe.Report
	if c.probes != nil {
		raw, reports = c.probes.Run(ctx, in.Target)
	}

	if strings.TrimSpace(in.Dump) != "" {
		c.report(1, "analyzing system dump")
		fromDump, err := c.analyzeDump(ctx, in.Dump)
		if err != nil {
			c.logger.Warn("dump analysis failed", "error", err)
		}
		raw = append(raw, fromDump...)
	}

	tagged := make([]finding.Finding, len(raw))
	for i, f := range raw {
		tagged[i] = f.WithCycle(1)
	}
	return finding.Merge(tagged), reports
}

func (c *Controller) analyzeDump(ctx context.Context, text string) ([]finding.Finding, error) {
	session, err := c.session()
	if err != nil {
		return nil, err
	}
	prompt, err := config.RenderPrompt("dump", config.PromptDumpAnalysis, map[string]any{"Dump": text})
	if err != nil {
		return nil, err
	}
	answer, err := session.Ask(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("analyze dump: %w", err)
	}
	return dump.ParseFindings(answer), nil
}

// verifyAll upgrades verifiable high-confidence findings that the verifier
// confirms. It returns the re-ranked set and the number upgraded.
func (c *Controller) verifyAll(ctx context.Context, target string, findings []finding.Finding) ([]finding.Finding, int) {
	if c.verifier == nil || target == "" {
		return findings, 0
	}

	out := make([]finding.Finding, len(findings))
	copy(out, findings)

	var upgraded []finding.Finding
	for i, f := range out {
		if f.Confidence <= VerifyThreshold {
			continue
		}
		class, ok := verify.Classify(f)
		if !ok {
			continue
		}
		v, err := c.verifier.Attempt(ctx, target, verify.Params{Class: class, Finding: f.Name})
		if err != nil {
			c.logger.Warn("verification failed", "finding", f.Name, "error", err)
			continue
		}
		if !v.Success {
			continue
		}
		out[i] = f.Verified(v.Instructions)
		upgraded = append(upgraded, out[i])
	}

	c.persist(ctx, upgraded, memory.TagVerified)
	return finding.Merge(out), len(upgraded)
}

// candidates selects the findings that still need refinement.
func (c *Controller) candidates(prev []finding.Finding) []finding.Finding {
	var out []finding.Finding
	for _, f := range prev {
		if f.Confidence < c.cfg.Threshold {
			out = append(out, f)
		}
	}
	return out
}

// refine derives one finding per candidate. Candidates run concurrently;
// results keep candidate order and failures are skipped.
func (c *Controller) refine(ctx context.Context, cycle int, candidates []finding.Finding) ([]finding.Finding, int) {
	results := make([]*finding.Finding, len(candidates))
	var failed atomic.Int32

	var g errgroup.Group
	g.SetLimit(c.cfg.Parallel)
	for i, cand := range candidates {
		g.Go(func() error {
			derived, err := c.refineOne(ctx, cycle, cand)
			if err != nil {
				failed.Add(1)
				c.logger.Warn("refinement failed", "cycle", cycle, "finding", cand.Name, "error", err)
				return nil
			}
			results[i] = &derived
			return nil
		})
	}
	_ = g.Wait() // errors are isolated per candidate

	out := make([]finding.Finding, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, int(failed.Load())
}

func (c *Controller) refineOne(ctx context.Context, cycle int, parent finding.Finding) (finding.Finding, error) {
	session, err := c.session()
	if err != nil {
		return finding.Finding{}, err
	}

	prompt, err := config.RenderPrompt("intensify", config.PromptIntensifyVector, parent)
	if err != nil {
		return finding.Finding{}, err
	}
	vector, err := session.Ask(ctx, prompt)
	if err != nil {
		return finding.Finding{}, fmt.Errorf("intensify vector: %w", err)
	}

	next := parent
	next.Vector = strings.TrimSpace(vector)
	prompt, err = config.RenderPrompt("payload", config.PromptSyntheticPayload, next)
	if err != nil {
		return finding.Finding{}, err
	}
	payload, err := session.Ask(ctx, prompt)
	if err != nil {
		return finding.Finding{}, fmt.Errorf("synthetic payload: %w", err)
	}

	return parent.Derive(finding.Derivation{
		Cycle:     cycle,
		Vector:    next.Vector,
		Payload:   strings.TrimSpace(payload),
		BackendID: session.Current(),
	}), nil
}

func (c *Controller) session() (Asker, error) {
	if c.sessions == nil {
		return nil, fmt.Errorf("no session factory configured")
	}
	s, err := c.sessions()
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return s, nil
}

// persist stores findings when persistence is on. Failures are logged.
func (c *Controller) persist(ctx context.Context, findings []finding.Finding, extraTags ...string) {
	if !c.cfg.Persist || c.memory == nil || len(findings) == 0 {
		return
	}
	tags := append([]string{memory.TagFinding}, extraTags...)
	ctx = context.WithoutCancel(ctx)
	for _, f := range findings {
		content := fmt.Sprintf("%s [%s/%s]: %s", f.Name, f.Category, f.Severity, f.Vector)
		meta := map[string]any{
			"name":       f.Name,
			"category":   f.Category,
			"severity":   string(f.Severity),
			"confidence": f.Confidence,
			"cycle":      f.Cycle,
			"origin":     f.Root(),
		}
		if _, err := c.memory.Store(ctx, content, meta, tags); err != nil {
			c.logger.Warn("finding not persisted", "finding", f.Name, "error", err)
		}
	}
}
