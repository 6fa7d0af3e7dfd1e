// Package verify performs passive confirmation of high-confidence findings
// against a live target.
package verify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/josephgoksu/ProbeWing/internal/finding"
)

// Class is a verifiable weakness class.
type Class string

const (
	ClassSession Class = "session"
	ClassStorage Class = "storage"
)

// classKeywords maps name/category keywords to the class they verify under.
var classKeywords = []struct {
	keyword string
	class   Class
}{
	{"session", ClassSession},
	{"cookie", ClassSession},
	{"storage", ClassStorage},
}

// Classify reports the verification class for f, judged by keywords in its
// name and category.
func Classify(f finding.Finding) (Class, bool) {
	text := strings.ToLower(f.Name + " " + f.Category)
	for _, k := range classKeywords {
		if strings.Contains(text, k.keyword) {
			return k.class, true
		}
	}
	return "", false
}

// Params describe one verification attempt.
type Params struct {
	Class   Class
	Finding string // Name of the finding being verified
}

// Config holds configuration for the HTTP verifier.
type Config struct {
	// Timeout for the request (default: 10s)
	Timeout time.Duration

	// UserAgent sent with the request
	UserAgent string
}

// HTTPVerifier checks response headers of a single GET request.
type HTTPVerifier struct {
	client    *http.Client
	userAgent string
}

// NewHTTPVerifier creates a verifier. Redirects are not followed.
func NewHTTPVerifier(cfg Config) *HTTPVerifier {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "probewing"
	}
	return &HTTPVerifier{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent: ua,
	}
}

// Attempt fetches target once and looks for the weakness indicator of p.Class.
// Success means the indicator was observed.
func (v *HTTPVerifier) Attempt(ctx context.Context, target string, p Params) (finding.Verification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return finding.Verification{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", v.userAgent)

	resp, err := v.client.Do(req)
	if err != nil {
		return finding.Verification{}, fmt.Errorf("request %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch p.Class {
	case ClassSession:
		return checkCookies(resp), nil
	case ClassStorage:
		return checkCSP(resp), nil
	default:
		return finding.Verification{}, fmt.Errorf("unsupported verification class %q", p.Class)
	}
}

func checkCookies(resp *http.Response) finding.Verification {
	var weak []string
	for _, c := range resp.Cookies() {
		var missing []string
		if !c.HttpOnly {
			missing = append(missing, "HttpOnly")
		}
		if !c.Secure {
			missing = append(missing, "Secure")
		}
		if len(missing) > 0 {
			weak = append(weak, fmt.Sprintf("cookie %q missing %s", c.Name, strings.Join(missing, ", ")))
		}
	}
	if len(weak) == 0 {
		return finding.Verification{Success: false}
	}
	return finding.Verification{
		Success:      true,
		Instructions: "Set-Cookie observed: " + strings.Join(weak, "; "),
	}
}

func checkCSP(resp *http.Response) finding.Verification {
	if resp.Header.Get("Content-Security-Policy") != "" {
		return finding.Verification{Success: false}
	}
	return finding.Verification{
		Success:      true,
		Instructions: "response has no Content-Security-Policy header; injected scripts can read web storage",
	}
}
