package classifier

import (
	"context"
	"fmt"
	"strings"
)

// SeverityPolicy derives the verdict from a caller-supplied severity
// hint, for deployments where classification already happened upstream.
// Which labels count as suspicious is injected policy; the upstream
// sources disagree on the threshold, so nothing is hardcoded here.
type SeverityPolicy struct {
	Suspicious map[string]bool
	Confidence int
	Version    string
}

// DefaultSeverityPolicy treats any label other than "safe" as
// suspicious.
func DefaultSeverityPolicy() SeverityPolicy {
	return SeverityPolicy{
		Suspicious: nil, // nil means "everything except safe"
		Confidence: 100,
		Version:    "severity-policy",
	}
}

// Classify maps the severity hint through the policy. A missing hint is
// an error: this strategy has no other signal to fall back on.
func (p SeverityPolicy) Classify(_ context.Context, in Input) (Verdict, error) {
	hint := strings.ToLower(strings.TrimSpace(in.SeverityHint))
	if hint == "" {
		return Verdict{}, fmt.Errorf("%w: severity hint missing", ErrUnavailable)
	}
	v := Verdict{ConfidencePct: clampPct(p.Confidence), ModelVersion: p.Version}
	if p.Suspicious == nil {
		v.Suspicious = hint != "safe"
	} else {
		v.Suspicious = p.Suspicious[hint]
	}
	return v, nil
}
