package probe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/josephgoksu/ProbeWing/internal/finding"
)

// Report describes how a single probe run went.
type Report struct {
	ProbeID  string
	Count    int
	Duration time.Duration
	Err      error
}

// Fanout runs a fixed set of probes concurrently.
type Fanout struct {
	probes []Probe
	logger *slog.Logger
}

// NewFanout creates a fanout over the given probes.
func NewFanout(probes []Probe, logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{probes: probes, logger: logger}
}

// Probes returns the registered probe ids in order.
func (f *Fanout) Probes() []string {
	ids := make([]string, len(f.probes))
	for i, p := range f.probes {
		ids[i] = p.ID()
	}
	return ids
}

// Run executes every probe and waits for all of them. Findings are returned
// in probe registration order; a failing probe contributes nothing and never
// affects its siblings.
func (f *Fanout) Run(ctx context.Context, target string) ([]finding.Finding, []Report) {
	var wg sync.WaitGroup
	results := make([][]finding.Finding, len(f.probes))
	reports := make([]Report, len(f.probes))

	for i, p := range f.probes {
		wg.Add(1)
		go func(idx int, p Probe) {
			defer wg.Done()

			start := time.Now()
			out, err := runIsolated(ctx, p, target)
			reports[idx] = Report{ProbeID: p.ID(), Duration: time.Since(start)}
			if err != nil {
				reports[idx].Err = &Error{ProbeID: p.ID(), Err: err}
				f.logger.Warn("probe failed", "probe", p.ID(), "error", err)
				return
			}
			results[idx] = out
			reports[idx].Count = len(out)
		}(i, p)
	}

	wg.Wait()

	var all []finding.Finding
	for _, out := range results {
		all = append(all, out...)
	}
	f.logger.Debug("probes completed", "probes", len(f.probes), "findings", len(all))
	return all, reports
}

// runIsolated converts a panicking probe into an error.
func runIsolated(ctx context.Context, p Probe, target string) (out []finding.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.Run(ctx, target)
}
