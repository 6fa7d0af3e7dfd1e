// Package advisor runs side-channel reasoning over chat turns.
package advisor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/josephgoksu/ProbeWing/internal/config"
	"github.com/josephgoksu/ProbeWing/internal/llm"
)

// Reasoning is the outcome of one advisor call.
type Reasoning struct {
	Conclusion string   `json:"conclusion"`
	Steps      []string `json:"steps"`
	Confidence float64  `json:"confidence"`
}

// MaxConfidence caps the confidence derived from step count.
const MaxConfidence = 0.9

// LLMReasoner asks a backend for numbered reasoning steps and a conclusion.
// Pipeline: prompt -> backend -> parser.
type LLMReasoner struct {
	chain     compose.Runnable[map[string]any, Reasoning]
	backendID string
}

// NewLLMReasoner compiles the reasoning chain around b.
func NewLLMReasoner(ctx context.Context, b llm.Backend, opts llm.Options) (*LLMReasoner, error) {
	if b == nil {
		return nil, fmt.Errorf("backend is required")
	}

	promptFunc := func(ctx context.Context, input map[string]any) ([]*schema.Message, error) {
		text, err := config.RenderPrompt("reasoning", config.PromptReasoning, input)
		if err != nil {
			return nil, err
		}
		return []*schema.Message{schema.UserMessage(text)}, nil
	}
	modelFunc := func(ctx context.Context, input []*schema.Message) (string, error) {
		return b.Chat(ctx, input, opts)
	}
	parserFunc := func(ctx context.Context, output string) (Reasoning, error) {
		return Parse(output), nil
	}

	graph := compose.NewGraph[map[string]any, Reasoning]()
	_ = graph.AddLambdaNode("prompt", compose.InvokableLambda(promptFunc))
	_ = graph.AddLambdaNode("model", compose.InvokableLambda(modelFunc))
	_ = graph.AddLambdaNode("parser", compose.InvokableLambda(parserFunc))
	_ = graph.AddEdge(compose.START, "prompt")
	_ = graph.AddEdge("prompt", "model")
	_ = graph.AddEdge("model", "parser")
	_ = graph.AddEdge("parser", compose.END)

	chain, err := graph.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile reasoning chain: %w", err)
	}
	return &LLMReasoner{chain: chain, backendID: b.ID()}, nil
}

// BackendID returns the id of the backend the reasoner calls.
func (r *LLMReasoner) BackendID() string { return r.backendID }

// Reason analyzes topic in the light of background, which may be empty.
func (r *LLMReasoner) Reason(ctx context.Context, topic, background string) (Reasoning, error) {
	if strings.TrimSpace(background) == "" {
		background = "(none)"
	}
	out, err := r.chain.Invoke(ctx, map[string]any{"Topic": topic, "Context": background})
	if err != nil {
		return Reasoning{}, fmt.Errorf("reason about %q: %w", topic, err)
	}
	return out, nil
}

var stepPattern = regexp.MustCompile(`(?i)^\s*(?:\d+[.)]|step\s+\d+:?)\s*(.+)$`)

// Parse extracts steps and a conclusion from free text. Without an explicit
// "Conclusion:" line the last step stands in as the conclusion.
func Parse(text string) Reasoning {
	var r Reasoning
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if rest, ok := cutPrefixFold(line, "conclusion:"); ok {
			r.Conclusion = strings.TrimSpace(rest)
			continue
		}
		if m := stepPattern.FindStringSubmatch(line); m != nil {
			r.Steps = append(r.Steps, strings.TrimSpace(m[1]))
		}
	}

	if r.Conclusion == "" {
		switch {
		case len(r.Steps) > 0:
			r.Conclusion = r.Steps[len(r.Steps)-1]
		default:
			r.Conclusion = strings.TrimSpace(text)
		}
	}
	r.Confidence = confidenceFor(len(r.Steps), r.Conclusion != "")
	return r
}

func confidenceFor(steps int, concluded bool) float64 {
	if !concluded {
		return 0
	}
	return min(0.3+0.15*float64(steps), MaxConfidence)
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}
