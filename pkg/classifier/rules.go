package classifier

import (
	"context"
	"strings"
)

// RuleSet is a versioned keyword list. A payload matching any keyword
// (case-insensitive substring) is suspicious with fixed confidence.
// The version string feeds Verdict.ModelVersion so rule revisions are
// attributable in stored records.
type RuleSet struct {
	Version    string
	Keywords   []string
	Confidence int
}

// DefaultRuleSet mirrors the threat keyword list used by the upstream
// log analyzer.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		Version:    "rule-engine",
		Confidence: 100,
		Keywords: []string{
			"attack", "malware", "phishing", "breach", "exploit",
			"unauthorized", "ssh denied", "vulnerability", "ddos",
			"ransomware", "spyware", "trojan", "worm", "suspicious",
			"hack", "compromise", "revert", "failed",
		},
	}
}

// Classify scans the payload for threat keywords. It never fails: the
// rule engine has no external collaborator.
func (rs RuleSet) Classify(_ context.Context, in Input) (Verdict, error) {
	v := Verdict{ModelVersion: rs.Version, ConfidencePct: clampPct(rs.Confidence)}
	lower := strings.ToLower(in.LogData)
	for _, kw := range rs.Keywords {
		if strings.Contains(lower, kw) {
			v.Suspicious = true
			return v, nil
		}
	}
	return v, nil
}
