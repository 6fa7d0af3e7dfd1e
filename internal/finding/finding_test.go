package finding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityRank(t *testing.T) {
	tests := []struct {
		sev  Severity
		want int
	}{
		{SeverityCritical, 4},
		{SeverityHigh, 3},
		{SeverityMedium, 2},
		{SeverityLow, 1},
		{Severity("bogus"), 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.sev), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sev.Rank())
		})
	}
}

func TestParseSeverity(t *testing.T) {
	s, err := ParseSeverity(" HIGH ")
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, s)

	_, err = ParseSeverity("urgent")
	assert.Error(t, err)
}

func TestInvasivenessRaise(t *testing.T) {
	assert.Equal(t, InvasivenessMedium, InvasivenessLow.Raise())
	assert.Equal(t, InvasivenessHigh, InvasivenessMedium.Raise())
	assert.Equal(t, InvasivenessExtreme, InvasivenessHigh.Raise())
	assert.Equal(t, InvasivenessExtreme, InvasivenessExtreme.Raise())
	assert.Equal(t, InvasivenessMedium, Invasiveness("").Raise())
}

func TestDerivedConfidence(t *testing.T) {
	tests := []struct {
		parent float64
		want   float64
	}{
		{0.5, 0.7},
		{0.7, 0.9},
		{0.85, 0.99},
		{0.99, 0.99},
		{0.0, 0.2},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, DerivedConfidence(tt.parent), 1e-9, "parent %v", tt.parent)
	}

	// Two refinements from 0.5 must reach the 0.9 threshold exactly.
	assert.False(t, DerivedConfidence(DerivedConfidence(0.5)) < 0.9)
}

func TestDerive_DoesNotMutateParent(t *testing.T) {
	parent := Finding{
		Name:         "Token in storage",
		Category:     "storage",
		Severity:     SeverityHigh,
		Confidence:   0.5,
		Evidence:     []string{"localStorage.setItem('token')"},
		Invasiveness: InvasivenessLow,
		Cycle:        1,
	}

	child := parent.Derive(Derivation{Cycle: 2, Vector: "v", Payload: "p", BackendID: "local"})

	assert.Equal(t, []string{"localStorage.setItem('token')"}, parent.Evidence)
	assert.Equal(t, 0.5, parent.Confidence)

	assert.Equal(t, "Token in storage (cycle 2)", child.Name)
	assert.Equal(t, "Token in storage", child.Origin)
	assert.Equal(t, "storage", child.Category)
	assert.Equal(t, 2, child.Cycle)
	assert.InDelta(t, 0.7, child.Confidence, 1e-9)
	assert.Equal(t, InvasivenessMedium, child.Invasiveness)
	assert.Equal(t, []string{
		"localStorage.setItem('token')",
		"evolved from Token in storage (cycle 1)",
		"backend: local",
	}, child.Evidence)

	grandchild := child.Derive(Derivation{Cycle: 3})
	assert.Equal(t, "Token in storage (cycle 3)", grandchild.Name)
	assert.Equal(t, "Token in storage", grandchild.Origin)
	assert.Len(t, child.Evidence, 3)
}

func TestVerified(t *testing.T) {
	parent := Finding{Name: "Session cookie", Severity: SeverityMedium, Confidence: 0.85, Evidence: []string{"e"}}
	v := parent.Verified("Set-Cookie lacks HttpOnly")

	assert.Equal(t, SeverityCritical, v.Severity)
	assert.Equal(t, 1.0, v.Confidence)
	require.NotNil(t, v.Verification)
	assert.True(t, v.Verification.Success)
	assert.Equal(t, []string{"e", "verified: Set-Cookie lacks HttpOnly"}, v.Evidence)

	assert.Nil(t, parent.Verification)
	assert.Equal(t, []string{"e"}, parent.Evidence)
}
