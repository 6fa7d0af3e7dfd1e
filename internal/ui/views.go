package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/josephgoksu/ProbeWing/internal/backend"
	"github.com/josephgoksu/ProbeWing/internal/chat"
	"github.com/josephgoksu/ProbeWing/internal/evolve"
	"github.com/josephgoksu/ProbeWing/internal/finding"
	"github.com/josephgoksu/ProbeWing/internal/memory"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Label turns an identifier such as "weak-cookie" into "Weak Cookie".
func Label(s string) string {
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return cases.Title(language.English).String(s)
}

// RenderFindings lists findings in their ranked order.
func RenderFindings(findings []finding.Finding) string {
	if len(findings) == 0 {
		return StyleSubtle.Render("No findings.") + "\n"
	}
	t := &Table{
		Headers:  []string{"#", "Severity", "Conf", "Category", "Finding", "Cycle", "Source"},
		MaxWidth: 60,
	}
	for i, f := range findings {
		name := f.Name
		if f.Verification != nil && f.Verification.Success {
			name += " " + StyleSuccess.Render("✓")
		}
		t.Rows = append(t.Rows, []string{
			fmt.Sprintf("%d", i+1),
			SeverityStyle(f.Severity).Render(Label(string(f.Severity))),
			fmt.Sprintf("%.2f", f.Confidence),
			Label(f.Category),
			name,
			fmt.Sprintf("%d", f.Cycle),
			f.Source,
		})
	}
	return t.Render()
}

// RenderFindingDetail shows one finding with its vector, evidence and payload.
func RenderFindingDetail(f finding.Finding) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", SeverityStyle(f.Severity).Render("["+string(f.Severity)+"]"), StyleTitle.Render(f.Name))
	fmt.Fprintf(&sb, "  %s %s  %s %.2f  %s %s\n",
		StyleSubtle.Render("category"), f.Category,
		StyleSubtle.Render("confidence"), f.Confidence,
		StyleSubtle.Render("invasiveness"), f.Invasiveness)
	if f.Origin != "" {
		fmt.Fprintf(&sb, "  %s %s\n", StyleSubtle.Render("derived from"), f.Origin)
	}
	if f.Vector != "" {
		fmt.Fprintf(&sb, "  %s\n%s\n", StyleSubtle.Render("vector"), indent(WrapText(f.Vector, 76), "    "))
	}
	for _, e := range f.Evidence {
		fmt.Fprintf(&sb, "  - %s\n", e)
	}
	if f.Payload != "" {
		fmt.Fprintf(&sb, "  %s\n%s\n", StyleSubtle.Render("payload"), indent(f.Payload, "    "))
	}
	if f.Verification != nil && f.Verification.Success {
		fmt.Fprintf(&sb, "  %s %s\n", StyleSuccess.Render("verified"), f.Verification.Instructions)
	}
	return sb.String()
}

// RenderCycles summarizes an evolution run.
func RenderCycles(cycles []evolve.CycleSummary) string {
	t := &Table{Headers: []string{"Cycle", "Candidates", "Produced", "Failed", "Duration"}}
	for _, c := range cycles {
		failed := fmt.Sprintf("%d", c.Failed)
		if c.Failed > 0 {
			failed = StyleWarning.Render(failed)
		}
		t.Rows = append(t.Rows, []string{
			fmt.Sprintf("%d", c.Cycle),
			fmt.Sprintf("%d", c.Candidates),
			fmt.Sprintf("%d", c.Produced),
			failed,
			c.Duration.Round(time.Millisecond).String(),
		})
	}
	return t.Render()
}

// RenderBackends lists the registry.
func RenderBackends(descs []backend.Descriptor) string {
	t := &Table{Headers: []string{"ID", "Name", "Provider", "Model", "Flags"}}
	for _, d := range descs {
		var flags []string
		if d.Default {
			flags = append(flags, "default")
		}
		if d.Relaxed {
			flags = append(flags, "relaxed")
		}
		t.Rows = append(t.Rows, []string{d.ID, d.Name, string(d.Provider), d.Model, strings.Join(flags, ",")})
	}
	return t.Render()
}

// RenderSwitches lists failover events.
func RenderSwitches(events []chat.SwitchEvent) string {
	if len(events) == 0 {
		return StyleSubtle.Render("No backend switches.") + "\n"
	}
	var sb strings.Builder
	for _, e := range events {
		sb.WriteString(FormatSwitch(e) + "\n")
	}
	return sb.String()
}

const maxReasonRunes = 120

// FormatSwitch renders one failover event on a single line.
func FormatSwitch(e chat.SwitchEvent) string {
	return fmt.Sprintf("%s %s %s → %s (%s)",
		StyleSubtle.Render(e.Timestamp.Format("15:04:05")),
		StylePrefixSwitch.Render("switch"),
		e.From, e.To, Truncate(e.Reason, maxReasonRunes))
}

// RenderHistory prints the conversation so far.
func RenderHistory(turns []chat.Turn) string {
	if len(turns) == 0 {
		return StyleSubtle.Render("No history yet.") + "\n"
	}
	var sb strings.Builder
	for _, t := range turns {
		switch t.Role {
		case chat.RoleUser:
			sb.WriteString(StylePrefixUser.Render("you") + " " + t.Content + "\n")
		default:
			who := string(t.Role)
			if t.BackendID != "" {
				who = t.BackendID
			}
			sb.WriteString(StylePrefixAssistant.Render(who) + " " + t.Content + "\n")
		}
	}
	return sb.String()
}

// RenderMemory lists retrieved memory entries.
func RenderMemory(entries []memory.Entry) string {
	if len(entries) == 0 {
		return StyleSubtle.Render("No matching memories.") + "\n"
	}
	t := &Table{Headers: []string{"ID", "Importance", "Tags", "Content"}, MaxWidth: 70}
	for _, e := range entries {
		t.Rows = append(t.Rows, []string{
			TruncateID(e.ID),
			fmt.Sprintf("%.2f", e.Importance),
			strings.Join(e.Tags, ","),
			strings.ReplaceAll(e.Content, "\n", " "),
		})
	}
	return t.Render()
}

// FormatProgress renders one evolution progress line.
func FormatProgress(cycle int, message string) string {
	return StylePrefixProgress.Render(fmt.Sprintf("[cycle %d]", cycle)) + " " + message
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
