package memory

import "time"

// Entry is one stored memory record.
type Entry struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Importance float64        `json:"importance"`
	CreatedAt  time.Time      `json:"createdAt"`
	Score      float64        `json:"score"` // Retrieval relevance; higher is better
}

// HasTag reports whether the entry carries tag.
func (e Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Query selects entries for retrieval.
type Query struct {
	Text          string   // Free text matched against content; empty lists by importance
	Tags          []string // Every tag must be present
	MinImportance float64
	Limit         int // Defaults to DefaultLimit
}

// DefaultLimit is the retrieval limit used when Query.Limit is zero.
const DefaultLimit = 10

// Tag constants used across the application.
const (
	TagChat      = "chat"
	TagAudit     = "audit"
	TagSwitched  = "switched"
	TagFinding   = "finding"
	TagVerified  = "verified"
	TagReasoning = "reasoning"
)

// MetaImportance is the metadata key that overrides the importance heuristic.
const MetaImportance = "importance"

// ScoreImportance derives the importance of a new entry. An explicit
// metadata value in [0, 1] wins; otherwise tags raise a 0.5 baseline.
func ScoreImportance(metadata map[string]any, tags []string) float64 {
	if v, ok := metadata[MetaImportance]; ok {
		if f, ok := toFloat(v); ok && f >= 0 && f <= 1 {
			return f
		}
	}

	score := 0.5
	for _, t := range tags {
		switch t {
		case TagFinding, TagVerified:
			score += 0.2
		case TagReasoning, TagSwitched:
			score += 0.1
		}
	}
	return min(score, 1.0)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
