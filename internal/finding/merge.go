package finding

import "sort"

// Merge deduplicates findings by (name, category), keeping the first
// occurrence, and sorts by severity rank then confidence, both descending.
// Equal elements keep their input order.
func Merge(findings []Finding) []Finding {
	seen := make(map[Key]struct{}, len(findings))
	merged := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if _, dup := seen[f.Key()]; dup {
			continue
		}
		seen[f.Key()] = struct{}{}
		merged = append(merged, f)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		ri, rj := merged[i].Severity.Rank(), merged[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return merged[i].Confidence > merged[j].Confidence
	})
	return merged
}

// FromCycle returns the findings produced in the given cycle, in order.
func FromCycle(findings []Finding, cycle int) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Cycle == cycle {
			out = append(out, f)
		}
	}
	return out
}

// GroupByCategory organizes findings by category.
func GroupByCategory(findings []Finding) map[string][]Finding {
	grouped := make(map[string][]Finding)
	for _, f := range findings {
		grouped[f.Category] = append(grouped[f.Category], f)
	}
	return grouped
}

// ConfidenceLabel converts numeric confidence to a label.
func ConfidenceLabel(score float64) string {
	switch {
	case score >= 0.8:
		return "high"
	case score >= 0.5:
		return "medium"
	default:
		return "low"
	}
}
