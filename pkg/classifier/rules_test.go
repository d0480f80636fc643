package classifier

import (
	"context"
	"testing"
)

func TestRuleSetBenign(t *testing.T) {
	rs := DefaultRuleSet()
	v, err := rs.Classify(context.Background(), Input{LogData: "normal GET /home 200", SourceType: "Firewall"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Suspicious {
		t.Fatal("benign payload classified suspicious")
	}
	if v.ModelVersion != "rule-engine" {
		t.Fatalf("model version = %q, want rule-engine", v.ModelVersion)
	}
}

func TestRuleSetSuspicious(t *testing.T) {
	rs := DefaultRuleSet()
	v, err := rs.Classify(context.Background(), Input{LogData: "unauthorized access attempt detected", SourceType: "WebApp"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Suspicious {
		t.Fatal("threat keyword payload classified benign")
	}
	if v.ConfidencePct != 100 {
		t.Fatalf("confidence = %d, want 100", v.ConfidencePct)
	}
	if v.ModelVersion != "rule-engine" {
		t.Fatalf("model version = %q, want rule-engine", v.ModelVersion)
	}
}

func TestRuleSetCaseInsensitive(t *testing.T) {
	rs := DefaultRuleSet()
	for _, data := range []string{"DDoS amplification observed", "Possible BREACH in progress", "SSH Denied from 10.0.0.9"} {
		v, err := rs.Classify(context.Background(), Input{LogData: data})
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", data, err)
		}
		if !v.Suspicious {
			t.Fatalf("%q should match case-insensitively", data)
		}
	}
}

func TestRuleSetConfidenceClamped(t *testing.T) {
	rs := RuleSet{Version: "v-test", Keywords: []string{"x"}, Confidence: 250}
	v, _ := rs.Classify(context.Background(), Input{LogData: "x"})
	if v.ConfidencePct != 100 {
		t.Fatalf("confidence not clamped: %d", v.ConfidencePct)
	}
}

func TestSeverityPolicy(t *testing.T) {
	p := DefaultSeverityPolicy()
	cases := []struct {
		hint string
		want bool
	}{
		{"Safe", false},
		{"safe", false},
		{"High", true},
		{"medium", true},
	}
	for _, tc := range cases {
		v, err := p.Classify(context.Background(), Input{LogData: "whatever", SeverityHint: tc.hint})
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", tc.hint, err)
		}
		if v.Suspicious != tc.want {
			t.Fatalf("hint %q: suspicious = %v, want %v", tc.hint, v.Suspicious, tc.want)
		}
	}
	if _, err := p.Classify(context.Background(), Input{LogData: "whatever"}); err == nil {
		t.Fatal("missing hint should fail")
	}
}

func TestSeverityPolicyExplicitSet(t *testing.T) {
	p := SeverityPolicy{Suspicious: map[string]bool{"high": true}, Confidence: 90, Version: "snort-prio"}
	v, err := p.Classify(context.Background(), Input{LogData: "x", SeverityHint: "HIGH"})
	if err != nil || !v.Suspicious {
		t.Fatalf("high should be suspicious: v=%+v err=%v", v, err)
	}
	v, err = p.Classify(context.Background(), Input{LogData: "x", SeverityHint: "medium"})
	if err != nil || v.Suspicious {
		t.Fatalf("medium should be benign under explicit set: v=%+v err=%v", v, err)
	}
}
