package dump

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/josephgoksu/ProbeWing/internal/finding"
)

// Backends often ignore the line format and answer with a JSON array. These
// patterns fix the mistakes they make most.
var (
	trailingComma    = regexp.MustCompile(`,\s*([}\]])`)
	singleQuotedKey  = regexp.MustCompile(`([{,]\s*)'(\w+)'(\s*:)`)
	missingItemComma = regexp.MustCompile(`}\s*\n\s*{`)
)

var errNoJSON = errors.New("no JSON array in response")

// jsonFinding is the loose shape accepted from a backend.
type jsonFinding struct {
	Name       string   `json:"name"`
	Category   string   `json:"category"`
	Severity   string   `json:"severity"`
	Confidence *float64 `json:"confidence"`
	Vector     string   `json:"vector"`
	Evidence   []string `json:"evidence"`
}

// parseJSONFindings decodes a JSON array of findings, possibly fenced and
// followed by prose. Entries without a name are skipped.
func parseJSONFindings(text string) ([]finding.Finding, error) {
	items, err := extractArray[jsonFinding](text)
	if err != nil {
		return nil, err
	}

	var out []finding.Finding
	for _, it := range items {
		name := strings.TrimSpace(it.Name)
		if name == "" {
			continue
		}
		sev, err := finding.ParseSeverity(strings.ToLower(strings.TrimSpace(it.Severity)))
		if err != nil {
			sev = inferSeverity(name + " " + it.Vector)
		}
		category := strings.ToLower(strings.TrimSpace(it.Category))
		if category == "" {
			category = inferCategory(strings.ToLower(name + " " + it.Vector))
		}
		confidence := DefaultConfidence
		if it.Confidence != nil && *it.Confidence >= 0 && *it.Confidence <= 1 {
			confidence = *it.Confidence
		}
		vector := it.Vector
		if vector == "" {
			vector = name
		}
		out = append(out, finding.Finding{
			Name:         shorten(name, maxNameRunes),
			Category:     category,
			Severity:     sev,
			Confidence:   confidence,
			Vector:       vector,
			Evidence:     append([]string{"system dump analysis"}, it.Evidence...),
			Invasiveness: finding.InvasivenessLow,
			Cycle:        1,
			Source:       Source,
		})
	}
	return out, nil
}

func extractArray[T any](text string) ([]T, error) {
	cleaned := stripFence(text)
	start := strings.Index(cleaned, "[")
	if start == -1 {
		return nil, errNoJSON
	}
	body := cleaned[start:]

	var items []T
	// The decoder stops after the first value, so trailing prose is ignored.
	if err := json.NewDecoder(strings.NewReader(body)).Decode(&items); err == nil {
		return items, nil
	}
	repaired := repair(body)
	if err := json.NewDecoder(strings.NewReader(repaired)).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode findings: %w", err)
	}
	return items, nil
}

func repair(s string) string {
	s = escapeControlChars(s)
	s = missingItemComma.ReplaceAllString(s, "},\n{")
	s = trailingComma.ReplaceAllString(s, "$1")
	s = singleQuotedKey.ReplaceAllString(s, `$1"$2"$3`)
	return closeTruncated(s)
}

// escapeControlChars escapes raw newlines and tabs inside string literals.
func escapeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString && c == '\n':
			b.WriteString(`\n`)
			continue
		case inString && c == '\r':
			b.WriteString(`\r`)
			continue
		case inString && c == '\t':
			b.WriteString(`\t`)
			continue
		case inString && c < 0x20:
			fmt.Fprintf(&b, `\u%04x`, c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// closeTruncated terminates an answer cut off by the token limit.
func closeTruncated(s string) string {
	quotes, escaped := 0, false
	for _, c := range s {
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			quotes++
		}
	}
	if quotes%2 != 0 {
		s += `"`
	}
	s = strings.TrimRight(s, ", \n\t")
	s += strings.Repeat("}", max(strings.Count(s, "{")-strings.Count(s, "}"), 0))
	s += strings.Repeat("]", max(strings.Count(s, "[")-strings.Count(s, "]"), 0))
	return s
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "```"); ok {
		s = strings.TrimPrefix(rest, "json")
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	return strings.TrimSpace(s)
}
