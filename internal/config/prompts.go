package config

import (
	"bytes"
	"fmt"
	"text/template"
)

// RenderPrompt executes one of the prompt templates below with data.
func RenderPrompt(name, tmpl string, data any) (string, error) {
	t, err := template.New(name).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

// SystemPromptChat is the default system prompt for chat sessions.
const SystemPromptChat = `You are a security research assistant working on a client-side assessment.
Answer concisely. When asked about a weakness, describe how it manifests, what evidence
would confirm it, and how it could be mitigated.`

// PromptReasoning asks the advisor for a step-by-step analysis of a topic.
const PromptReasoning = `Analyze the following request from a security research session.

**Topic:** {{.Topic}}

**Context:**
{{.Context}}

**Output Format:**
Reply with numbered steps, one per line ("1. ...", "2. ..."), describing how you
would reason about the topic. Finish with a single line starting with "Conclusion:".`

// PromptIntensifyVector asks for a more specific attack vector for a finding.
const PromptIntensifyVector = `A heuristic finding needs refinement.

Finding: {{.Name}} (category: {{.Category}}, severity: {{.Severity}})
Current vector: {{.Vector}}
Evidence:
{{range .Evidence}}- {{.}}
{{end}}
Describe, in two or three sentences, a more specific and intensified variant of this vector.`

// PromptSyntheticPayload asks for a synthetic test payload for a finding.
const PromptSyntheticPayload = `Produce a short synthetic test payload (a single line, not a working exploit)
that would demonstrate the following weakness in a test environment.

Finding: {{.Name}} (category: {{.Category}})
Vector: {{.Vector}}`

// PromptDumpAnalysis asks for findings from a system dump, one per line.
const PromptDumpAnalysis = `Review the following system dump and list potential weaknesses.
Write one finding per line. Include a severity word (low, medium, high or critical) in each line.

{{.Dump}}`
