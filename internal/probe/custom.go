package probe

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/josephgoksu/ProbeWing/internal/finding"
)

// Func adapts a function to the Probe interface.
type Func struct {
	Name string
	Fn   func(ctx context.Context, target string) ([]finding.Finding, error)
}

// ID returns the probe name.
func (p Func) ID() string { return p.Name }

// Run calls the wrapped function.
func (p Func) Run(ctx context.Context, target string) ([]finding.Finding, error) {
	return p.Fn(ctx, target)
}

// Custom returns the probes that need logic beyond a static rule.
func Custom() []Probe {
	return []Probe{
		Func{Name: "transport-scheme", Fn: transportScheme},
		Func{Name: "target-host", Fn: targetHost},
	}
}

func parseTarget(target string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return nil, fmt.Errorf("parse target: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("target %q is not an absolute URL", target)
	}
	return u, nil
}

func transportScheme(_ context.Context, target string) ([]finding.Finding, error) {
	if target == "" {
		return nil, nil
	}
	u, err := parseTarget(target)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "ws":
		return []finding.Finding{{
			Name:         "Cleartext transport",
			Category:     "transport",
			Severity:     finding.SeverityHigh,
			Confidence:   0.9,
			Vector:       "Traffic to " + u.Host + " can be read or modified in transit",
			Evidence:     []string{"scheme: " + u.Scheme},
			Invasiveness: finding.InvasivenessLow,
			Cycle:        1,
			Source:       "transport-scheme",
		}}, nil
	default:
		return nil, nil
	}
}

func targetHost(_ context.Context, target string) ([]finding.Finding, error) {
	if target == "" {
		return nil, nil
	}
	u, err := parseTarget(target)
	if err != nil {
		return nil, err
	}

	var out []finding.Finding
	host := u.Hostname()
	if ip := net.ParseIP(host); ip != nil || host == "localhost" {
		out = append(out, finding.Finding{
			Name:         "Direct host addressing",
			Category:     "exposure",
			Severity:     finding.SeverityLow,
			Confidence:   0.6,
			Vector:       "Service addressed without a hostname; certificate and virtual-host checks may be bypassed",
			Evidence:     []string{"host: " + host},
			Invasiveness: finding.InvasivenessLow,
			Cycle:        1,
			Source:       "target-host",
		})
	}
	if port := u.Port(); port != "" && port != "80" && port != "443" {
		out = append(out, finding.Finding{
			Name:         "Non-standard service port",
			Category:     "exposure",
			Severity:     finding.SeverityLow,
			Confidence:   0.5,
			Vector:       "Development or admin service reachable on port " + port,
			Evidence:     []string{"port: " + port},
			Invasiveness: finding.InvasivenessLow,
			Cycle:        1,
			Source:       "target-host",
		})
	}
	return out, nil
}
