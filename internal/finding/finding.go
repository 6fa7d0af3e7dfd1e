/*
Package finding provides the Finding type shared by probes, the evolution
controller and the CLI, plus the merge/rank step applied to every result set.
*/
package finding

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Severity ranks how serious a finding is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the numeric order of a severity (critical=4 ... low=1).
// Unknown values rank 0 so they sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// ParseSeverity converts a label into a Severity.
func ParseSeverity(label string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(label)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown severity: %q", label)
	}
	return s, nil
}

// Invasiveness describes how intrusive acting on a finding would be.
type Invasiveness string

const (
	InvasivenessLow     Invasiveness = "low"
	InvasivenessMedium  Invasiveness = "medium"
	InvasivenessHigh    Invasiveness = "high"
	InvasivenessExtreme Invasiveness = "extreme"
)

var invasivenessOrder = []Invasiveness{InvasivenessLow, InvasivenessMedium, InvasivenessHigh, InvasivenessExtreme}

// Raise returns the next invasiveness step, capped at extreme.
func (i Invasiveness) Raise() Invasiveness {
	idx := slices.Index(invasivenessOrder, i)
	if idx < 0 {
		return InvasivenessMedium
	}
	if idx == len(invasivenessOrder)-1 {
		return i
	}
	return invasivenessOrder[idx+1]
}

// ParseInvasiveness converts a label into an Invasiveness.
func ParseInvasiveness(label string) (Invasiveness, error) {
	i := Invasiveness(strings.ToLower(strings.TrimSpace(label)))
	if !slices.Contains(invasivenessOrder, i) {
		return "", fmt.Errorf("unknown invasiveness: %q", label)
	}
	return i, nil
}

// Verification records the outcome of an active verification attempt.
type Verification struct {
	Success      bool   `json:"success"`
	Instructions string `json:"instructions,omitempty"`
}

// Finding is a discovered heuristic weakness. Findings are treated as values:
// helpers below return modified copies and never touch the receiver.
type Finding struct {
	Name         string        `json:"name"`
	Category     string        `json:"category"`
	Severity     Severity      `json:"severity"`
	Confidence   float64       `json:"confidence"` // 0.0-1.0
	Vector       string        `json:"vector"`
	Evidence     []string      `json:"evidence"`
	Invasiveness Invasiveness  `json:"invasiveness"`
	Cycle        int           `json:"cycle"`
	Payload      string        `json:"payload,omitempty"`
	Verification *Verification `json:"verification,omitempty"`
	Origin       string        `json:"origin,omitempty"` // root finding name for derived findings
	Source       string        `json:"source,omitempty"` // probe id, "dump" or "evolution"
}

// Key is the dedup key of a finding.
type Key struct {
	Name     string
	Category string
}

// Key returns the (name, category) dedup key.
func (f Finding) Key() Key { return Key{Name: f.Name, Category: f.Category} }

// Root returns the name of the finding this one ultimately descends from.
func (f Finding) Root() string {
	if f.Origin != "" {
		return f.Origin
	}
	return f.Name
}

// WithCycle returns a copy tagged with the given cycle.
func (f Finding) WithCycle(cycle int) Finding {
	out := f.clone()
	out.Cycle = cycle
	return out
}

// Verified returns a copy upgraded by a successful verification.
func (f Finding) Verified(instructions string) Finding {
	out := f.clone()
	out.Severity = SeverityCritical
	out.Confidence = 1.0
	out.Verification = &Verification{Success: true, Instructions: instructions}
	out.Evidence = append(out.Evidence, "verified: "+instructions)
	return out
}

// DerivedConfidence is the confidence a refined child of parent receives.
// The sum is rounded to six decimals so repeated steps land exactly on
// thresholds such as 0.9 (0.7+0.2 is 0.8999999999999999 in float64).
func DerivedConfidence(parent float64) float64 {
	return min(math.Round((parent+0.2)*1e6)/1e6, 0.99)
}

// Derivation holds the generated parts of a refined finding.
type Derivation struct {
	Cycle     int
	Vector    string
	Payload   string
	BackendID string
}

// Derive creates the refined child of f for the given cycle. The parent's
// evidence is copied and extended with provenance tags.
func (f Finding) Derive(d Derivation) Finding {
	origin := f.Root()
	child := Finding{
		Name:         fmt.Sprintf("%s (cycle %d)", origin, d.Cycle),
		Category:     f.Category,
		Severity:     f.Severity,
		Confidence:   DerivedConfidence(f.Confidence),
		Vector:       d.Vector,
		Evidence:     slices.Clone(f.Evidence),
		Invasiveness: f.Invasiveness.Raise(),
		Cycle:        d.Cycle,
		Payload:      d.Payload,
		Origin:       origin,
		Source:       "evolution",
	}
	child.Evidence = append(child.Evidence, fmt.Sprintf("evolved from %s (cycle %d)", f.Name, f.Cycle))
	if d.BackendID != "" {
		child.Evidence = append(child.Evidence, "backend: "+d.BackendID)
	}
	return child
}

func (f Finding) clone() Finding {
	out := f
	out.Evidence = slices.Clone(f.Evidence)
	if f.Verification != nil {
		v := *f.Verification
		out.Verification = &v
	}
	return out
}
