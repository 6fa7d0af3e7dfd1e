/*
Package probe provides the heuristic probe catalog and the concurrent fanout
that turns a target into raw findings.
*/
package probe

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/josephgoksu/ProbeWing/internal/finding"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Probe is an independent producer of raw findings. Implementations must not
// share mutable state with other probes.
type Probe interface {
	ID() string
	Run(ctx context.Context, target string) ([]finding.Finding, error)
}

// Error wraps a failure of a single probe.
type Error struct {
	ProbeID string
	Err     error
}

func (e *Error) Error() string { return fmt.Sprintf("probe %s: %v", e.ProbeID, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

//go:embed catalog.yaml
var embeddedCatalog []byte

// Rule is one declarative entry of the probe catalog.
type Rule struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Category       string   `yaml:"category"`
	Severity       string   `yaml:"severity"`
	Confidence     float64  `yaml:"confidence"`
	Vector         string   `yaml:"vector"`
	Evidence       []string `yaml:"evidence"`
	Invasiveness   string   `yaml:"invasiveness"`
	RequiresTarget bool     `yaml:"requires_target"`
	Match          []string `yaml:"match"`
}

type catalogFile struct {
	Rules []Rule `yaml:"rules"`
}

// ParseCatalog decodes and validates a YAML rule table.
func ParseCatalog(data []byte) ([]Rule, error) {
	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	seen := make(map[string]bool, len(cf.Rules))
	for i, r := range cf.Rules {
		if r.ID == "" || r.Name == "" || r.Category == "" {
			return nil, fmt.Errorf("rule %d: id, name and category are required", i)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("rule %s: duplicate id", r.ID)
		}
		seen[r.ID] = true
		if _, err := finding.ParseSeverity(r.Severity); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		if r.Invasiveness == "" {
			cf.Rules[i].Invasiveness = string(finding.InvasivenessLow)
		} else if _, err := finding.ParseInvasiveness(r.Invasiveness); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			return nil, fmt.Errorf("rule %s: confidence %v out of range", r.ID, r.Confidence)
		}
	}
	return cf.Rules, nil
}

// DefaultCatalog returns the embedded rule table.
func DefaultCatalog() []Rule {
	rules, err := ParseCatalog(embeddedCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded probe catalog: %v", err))
	}
	return rules
}

// LoadCatalogFile reads a rule table from fs.
func LoadCatalogFile(fs afero.Fs, path string) ([]Rule, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// RuleProbe evaluates a single catalog rule.
type RuleProbe struct {
	rule Rule
}

// NewRuleProbe wraps a rule as a Probe.
func NewRuleProbe(r Rule) *RuleProbe { return &RuleProbe{rule: r} }

// ID returns the rule id.
func (p *RuleProbe) ID() string { return p.rule.ID }

// Run emits the rule's finding when its target conditions hold.
func (p *RuleProbe) Run(_ context.Context, target string) ([]finding.Finding, error) {
	if !p.applies(target) {
		return nil, nil
	}
	sev, err := finding.ParseSeverity(p.rule.Severity)
	if err != nil {
		return nil, err
	}
	inv, err := finding.ParseInvasiveness(p.rule.Invasiveness)
	if err != nil {
		return nil, err
	}
	evidence := append([]string(nil), p.rule.Evidence...)
	if target != "" {
		evidence = append(evidence, "target: "+target)
	}
	return []finding.Finding{{
		Name:         p.rule.Name,
		Category:     p.rule.Category,
		Severity:     sev,
		Confidence:   p.rule.Confidence,
		Vector:       p.rule.Vector,
		Evidence:     evidence,
		Invasiveness: inv,
		Cycle:        1,
		Source:       p.rule.ID,
	}}, nil
}

func (p *RuleProbe) applies(target string) bool {
	if !p.rule.RequiresTarget {
		return true
	}
	if target == "" {
		return false
	}
	if len(p.rule.Match) == 0 {
		return true
	}
	lower := strings.ToLower(target)
	for _, m := range p.rule.Match {
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// FromRules wraps every rule as a Probe.
func FromRules(rules []Rule) []Probe {
	probes := make([]Probe, 0, len(rules))
	for _, r := range rules {
		probes = append(probes, NewRuleProbe(r))
	}
	return probes
}

// Defaults returns the embedded rules plus the custom probes.
func Defaults() []Probe {
	return append(FromRules(DefaultCatalog()), Custom()...)
}
