package chat

import "strings"

// RefusalClassifier decides whether a backend response declines the request.
type RefusalClassifier interface {
	IsRefusal(text string) bool
}

// DefaultRefusalPhrases is the vocabulary used by the default classifier.
var DefaultRefusalPhrases = []string{
	"i cannot",
	"i can't",
	"i can not",
	"i won't",
	"i'm sorry",
	"i am sorry",
	"i apologize",
	"i'm unable",
	"i am unable",
	"i'm not able to",
	"not appropriate",
	"against my",
	"as an ai",
	"cannot assist",
	"cannot help with",
	"can't help with",
}

// PhraseClassifier flags text containing any of a fixed set of phrases,
// case-insensitively. It false-positives on text such as "I'm sorry to report".
type PhraseClassifier struct {
	phrases []string
}

// NewPhraseClassifier builds a classifier over phrases, or over
// DefaultRefusalPhrases when none are given.
func NewPhraseClassifier(phrases ...string) *PhraseClassifier {
	if len(phrases) == 0 {
		phrases = DefaultRefusalPhrases
	}
	c := &PhraseClassifier{phrases: make([]string, 0, len(phrases))}
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			c.phrases = append(c.phrases, p)
		}
	}
	return c
}

// IsRefusal implements RefusalClassifier.
func (c *PhraseClassifier) IsRefusal(text string) bool {
	// Normalize typographic apostrophes so "I can’t" matches "i can't".
	lower := strings.ToLower(strings.ReplaceAll(text, "’", "'"))
	for _, p := range c.phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// exploitKeywords mark turns that get a background reasoning pass.
var exploitKeywords = []string{
	"exploit", "bypass", "inject", "payload", "xss", "csrf", "ssrf",
	"escalat", "hijack", "steal", "exfiltrat", "brute force", "jailbreak",
	"privilege", "remote code", "shellcode",
}

// IsExploitIntent reports whether text matches the exploit-intent keywords.
func IsExploitIntent(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range exploitKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
