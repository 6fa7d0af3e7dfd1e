// Package ui renders ProbeWing's terminal output.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/josephgoksu/ProbeWing/internal/finding"
)

var (
	// Colors
	ColorPrimary   = lipgloss.Color("205") // Pink
	ColorSecondary = lipgloss.Color("241") // Gray
	ColorSuccess   = lipgloss.Color("42")  // Green
	ColorError     = lipgloss.Color("160") // Red
	ColorWarning   = lipgloss.Color("214") // Orange/Yellow
	ColorText      = lipgloss.Color("252") // White/Gray
	ColorBlue      = lipgloss.Color("75")

	StyleTitle   = lipgloss.NewStyle().Foreground(ColorText).Bold(true)
	StyleSubtle  = lipgloss.NewStyle().Foreground(ColorSecondary)
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess)
	StyleError   = lipgloss.NewStyle().Foreground(ColorError)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning)
	StyleText    = lipgloss.NewStyle().Foreground(ColorText)

	// Chat transcript prefixes
	StylePrefixUser      = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	StylePrefixAssistant = lipgloss.NewStyle().Foreground(ColorBlue).Bold(true)
	StylePrefixSwitch    = lipgloss.NewStyle().Foreground(ColorWarning)
	StylePrefixProgress  = lipgloss.NewStyle().Foreground(ColorSecondary)
)

// severityStyles colors the severity column.
var severityStyles = map[finding.Severity]lipgloss.Style{
	finding.SeverityCritical: lipgloss.NewStyle().Foreground(ColorError).Bold(true),
	finding.SeverityHigh:     lipgloss.NewStyle().Foreground(ColorError),
	finding.SeverityMedium:   lipgloss.NewStyle().Foreground(ColorWarning),
	finding.SeverityLow:      lipgloss.NewStyle().Foreground(ColorSecondary),
}

// SeverityStyle returns the style for a severity; unknown ones render plain.
func SeverityStyle(s finding.Severity) lipgloss.Style {
	if st, ok := severityStyles[s]; ok {
		return st
	}
	return StyleText
}

// Icon returns a styled icon string
func Icon(icon string, style lipgloss.Style) string {
	return style.Render(icon)
}
