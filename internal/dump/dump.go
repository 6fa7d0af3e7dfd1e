// Package dump loads system dumps and turns a backend's analysis of a dump
// into findings.
package dump

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/josephgoksu/ProbeWing/internal/finding"
	"github.com/spf13/afero"
)

// MaxBytes bounds the size of a dump file.
const MaxBytes = 1 << 20

// Source is the Finding.Source value for dump-derived findings.
const Source = "dump"

// DefaultConfidence is assigned to every parsed finding.
const DefaultConfidence = 0.6

const maxNameRunes = 80

// Load reads a dump file.
func Load(fs afero.Fs, path string) (string, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat dump: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("dump %s is a directory", path)
	}
	if info.Size() > MaxBytes {
		return "", fmt.Errorf("dump %s is %d bytes, limit is %d", path, info.Size(), MaxBytes)
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", fmt.Errorf("read dump: %w", err)
	}
	return string(data), nil
}

var (
	listPrefix      = regexp.MustCompile(`^(?:[-*•]+|\d+[.)])\s*`)
	severityPattern = regexp.MustCompile(`(?i)\b(critical|high|medium|low)\b`)
)

// categoryKeywords are checked in order; the first hit wins.
var categoryKeywords = []struct {
	keyword  string
	category string
}{
	{"cookie", "session"},
	{"session", "session"},
	{"storage", "storage"},
	{"cors", "cors"},
	{"content-security", "headers"},
	{"csp", "headers"},
	{"header", "headers"},
	{"xss", "xss"},
	{"script", "xss"},
	{"jwt", "auth"},
	{"token", "auth"},
	{"api key", "auth"},
	{"password", "auth"},
	{"tls", "transport"},
	{"ssl", "transport"},
	{"http://", "transport"},
}

// ParseFindings reads one finding per non-empty line of a backend response.
// List markers are stripped; a severity word sets the severity (default
// medium); the category is inferred from keywords, else "dump". A response
// that is a JSON array of findings is decoded instead.
func ParseFindings(text string) []finding.Finding {
	if looksLikeJSON(text) {
		if out, err := parseJSONFindings(text); err == nil && len(out) > 0 {
			return out
		}
	}

	var out []finding.Finding
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "```") {
			continue
		}
		line = strings.TrimSpace(listPrefix.ReplaceAllString(line, ""))
		if !hasWordCharacter(line) {
			continue
		}

		lower := strings.ToLower(line)
		out = append(out, finding.Finding{
			Name:         shorten(strings.TrimRight(line, ".:"), maxNameRunes),
			Category:     inferCategory(lower),
			Severity:     inferSeverity(line),
			Confidence:   DefaultConfidence,
			Vector:       line,
			Evidence:     []string{"system dump analysis"},
			Invasiveness: finding.InvasivenessLow,
			Cycle:        1,
			Source:       Source,
		})
	}
	return out
}

func looksLikeJSON(text string) bool {
	s := stripFence(text)
	return strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{")
}

func inferSeverity(line string) finding.Severity {
	best := finding.SeverityMedium
	found := false
	for _, m := range severityPattern.FindAllString(line, -1) {
		s := finding.Severity(strings.ToLower(m))
		if !found || s.Rank() > best.Rank() {
			best, found = s, true
		}
	}
	return best
}

func inferCategory(lower string) string {
	for _, k := range categoryKeywords {
		if strings.Contains(lower, k.keyword) {
			return k.category
		}
	}
	return Source
}

func hasWordCharacter(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
	}) >= 0
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
