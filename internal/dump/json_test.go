package dump

import (
	"testing"

	"github.com/josephgoksu/ProbeWing/internal/finding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFindings_JSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     []string
	}{
		{
			name:     "plain array",
			response: `[{"name": "Cookie without HttpOnly", "severity": "high", "category": "session"}]`,
			want:     []string{"Cookie without HttpOnly"},
		},
		{
			name:     "fenced with trailing prose",
			response: "```json\n[{\"name\": \"Open CORS\", \"severity\": \"medium\"}]\n```\nLet me know if you need more.",
			want:     []string{"Open CORS"},
		},
		{
			name:     "trailing comma and single quoted keys",
			response: "[{'name': \"Token in storage\", \"severity\": \"critical\",},]",
			want:     []string{"Token in storage"},
		},
		{
			name:     "missing comma between objects",
			response: "[\n{\"name\": \"A\"}\n{\"name\": \"B\"}\n]",
			want:     []string{"A", "B"},
		},
		{
			name:     "truncated",
			response: `[{"name": "Debug endpoint", "severity": "low"}, {"name": "Verbose err`,
			want:     []string{"Debug endpoint", "Verbose err"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseFindings(tt.response)
			require.Len(t, got, len(tt.want))
			for i, name := range tt.want {
				assert.Equal(t, name, got[i].Name)
				assert.Equal(t, 1, got[i].Cycle)
				assert.Equal(t, Source, got[i].Source)
			}
		})
	}
}

func TestParseFindings_JSONFields(t *testing.T) {
	got := ParseFindings(`[
		{"name": "Session cookie readable from script", "severity": "HIGH", "confidence": 0.8, "vector": "document.cookie", "evidence": ["Set-Cookie: sid=1"]},
		{"name": "", "severity": "low"},
		{"name": "JWT kept in localStorage", "severity": "bogus", "confidence": 7}
	]`)
	require.Len(t, got, 2)

	assert.Equal(t, finding.SeverityHigh, got[0].Severity)
	assert.Equal(t, "session", got[0].Category)
	assert.InDelta(t, 0.8, got[0].Confidence, 1e-9)
	assert.Equal(t, "document.cookie", got[0].Vector)
	assert.Equal(t, []string{"system dump analysis", "Set-Cookie: sid=1"}, got[0].Evidence)

	assert.Equal(t, finding.SeverityMedium, got[1].Severity)
	assert.Equal(t, "storage", got[1].Category)
	assert.Equal(t, DefaultConfidence, got[1].Confidence)
	assert.Equal(t, got[1].Name, got[1].Vector)
}

func TestParseFindings_BrokenJSONFallsBackToLines(t *testing.T) {
	got := ParseFindings("[not json at all\nsecond line about cookies")
	require.Len(t, got, 2)
	assert.Equal(t, "session", got[1].Category)
}
