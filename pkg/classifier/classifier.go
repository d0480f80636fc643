// Package classifier decides whether a log payload is suspicious. Two
// interchangeable strategies sit behind the same interface: a versioned
// keyword rule set and a remote scoring service. A scoring failure is a
// distinguished error, never a silent benign verdict.
package classifier

import (
	"context"
	"errors"
)

// ErrUnavailable marks a scoring collaborator that could not produce a
// verdict (timeout, transport error, non-2xx). Callers must abort, not
// downgrade to benign.
var ErrUnavailable = errors.New("classifier unavailable")

// Verdict is the three-field classification result.
type Verdict struct {
	Suspicious    bool   `json:"isSuspicious"`
	ConfidencePct int    `json:"confidencePct"`
	ModelVersion  string `json:"modelVersion"`
}

// Input carries everything a strategy may consult. SeverityHint is only
// meaningful to the severity policy strategy.
type Input struct {
	LogData      string
	SourceType   string
	SeverityHint string
}

// Classifier produces a verdict for a payload.
type Classifier interface {
	Classify(ctx context.Context, in Input) (Verdict, error)
}

// clampPct bounds a confidence percentage to [0,100].
func clampPct(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
