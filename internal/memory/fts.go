package memory

import (
	"encoding/binary"
	"math"
	"strings"
)

// Common stop words that rarely help search
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"what": true, "which": true, "who": true, "whom": true, "this": true,
	"that": true, "these": true, "those": true, "it": true, "its": true,
	"of": true, "for": true, "with": true, "about": true, "into": true,
	"to": true, "from": true, "in": true, "out": true, "on": true,
	"how": true, "why": true, "when": true, "where": true, "can": true,
	"me": true, "my": true, "you": true, "your": true, "and": true, "or": true,
}

// sanitizeFTSQuery turns free text into an FTS5 query. Terms are quoted and
// joined with OR so that any matching word is enough.
func sanitizeFTSQuery(query string) string {
	if query == "" {
		return ""
	}

	replacer := strings.NewReplacer(
		`"`, " ", `^`, " ", `:`, " ", `(`, " ", `)`, " ",
		`{`, " ", `}`, " ", `[`, " ", `]`, " ", `-`, " ", `+`, " ",
		`?`, " ", `!`, " ", `.`, " ", `,`, " ", `;`, " ", `'`, " ",
		`/`, " ", `=`, " ", `<`, " ", `>`, " ", `&`, " ",
	)
	words := strings.Fields(replacer.Replace(strings.ToLower(query)))

	var quoted []string
	seen := make(map[string]bool, len(words))
	for _, word := range words {
		word = strings.ReplaceAll(word, "*", "")
		if len(word) < 2 || stopWords[word] || seen[word] {
			continue
		}
		switch strings.ToUpper(word) {
		case "OR", "AND", "NOT", "NEAR":
			continue
		}
		seen[word] = true
		quoted = append(quoted, `"`+word+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// === Embedding Helpers ===

func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(buf []byte) []float32 {
	floats := make([]float32, len(buf)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return floats
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

// cosineSimilarity returns a value between -1 and 1, where 1 means identical.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
