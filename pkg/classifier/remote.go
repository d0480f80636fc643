package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// ScoringClient calls an external scoring service over HTTP. The wire
// contract is POST {baseURL}/predict with {logData, sourceType} and a
// response of {isSuspicious, confidence (0..1), modelVersion}.
type ScoringClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewScoringClient creates a scoring service client.
func NewScoringClient(baseURL string, timeout time.Duration) *ScoringClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ScoringClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type predictRequest struct {
	LogData    string `json:"logData"`
	SourceType string `json:"sourceType,omitempty"`
}

type predictResponse struct {
	Suspicious   bool    `json:"isSuspicious"`
	Confidence   float64 `json:"confidence"`
	ModelVersion string  `json:"modelVersion"`
}

// Classify asks the scoring service for a verdict. Every failure mode is
// wrapped in ErrUnavailable so the caller can distinguish "could not
// classify" from "benign".
func (c *ScoringClient) Classify(ctx context.Context, in Input) (Verdict, error) {
	body, err := json.Marshal(predictRequest{LogData: in.LogData, SourceType: in.SourceType})
	if err != nil {
		return Verdict{}, fmt.Errorf("marshal predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Verdict{}, fmt.Errorf("%w: predict returned status %d: %s", ErrUnavailable, resp.StatusCode, string(msg))
	}

	var pr predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return Verdict{}, fmt.Errorf("%w: decode predict response: %v", ErrUnavailable, err)
	}

	return Verdict{
		Suspicious:    pr.Suspicious,
		ConfidencePct: clampPct(int(math.Round(pr.Confidence * 100))),
		ModelVersion:  pr.ModelVersion,
	}, nil
}
