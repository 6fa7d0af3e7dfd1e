package ui

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/josephgoksu/ProbeWing/internal/finding"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func TestStyles(t *testing.T) {
	lipgloss.SetColorProfile(termenv.ANSI256)
	t.Cleanup(func() { lipgloss.SetColorProfile(termenv.Ascii) })

	out := StyleSuccess.Render("Test")
	assert.Contains(t, out, "Test")
	assert.NotEqual(t, "Test", out, "Style should add ANSI codes when forced")
}

func TestIcon(t *testing.T) {
	lipgloss.SetColorProfile(termenv.ANSI256)
	t.Cleanup(func() { lipgloss.SetColorProfile(termenv.Ascii) })

	out := Icon("X", StyleError)
	assert.Contains(t, out, "X")
	assert.NotEqual(t, "X", out)
}

func TestSeverityStyle(t *testing.T) {
	lipgloss.SetColorProfile(termenv.ANSI256)
	t.Cleanup(func() { lipgloss.SetColorProfile(termenv.Ascii) })

	critical := SeverityStyle(finding.SeverityCritical).Render("x")
	low := SeverityStyle(finding.SeverityLow).Render("x")
	assert.NotEqual(t, critical, low)
	assert.Equal(t, StyleText.Render("x"), SeverityStyle("bogus").Render("x"))
}
