package structlog

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestLoggerEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New("ingest", LevelInfo, &buf)
	l.Info("record committed", Fields{"position": 7})

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if line["service"] != "ingest" || line["message"] != "record committed" {
		t.Fatalf("unexpected line: %v", line)
	}
	if line["position"] != float64(7) {
		t.Fatalf("field lost: %v", line)
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New("ingest", LevelWarn, &buf)
	l.Debug("hidden", nil)
	l.Info("hidden", nil)
	if buf.Len() != 0 {
		t.Fatalf("below-threshold lines emitted: %s", buf.String())
	}
	l.Warn("shown", nil)
	if buf.Len() == 0 {
		t.Fatal("warn line suppressed")
	}
}

func TestLoggerMasksSensitiveFields(t *testing.T) {
	var buf bytes.Buffer
	l := New("ingest", LevelInfo, &buf)
	l.Info("auth", Fields{"auth_token": "s3cret", "logData": "raw payload body"})

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatal(err)
	}
	if line["auth_token"] != "MASKED" {
		t.Fatalf("token leaked: %v", line["auth_token"])
	}
	if line["logData"] != "MASKED" {
		t.Fatalf("raw payload leaked: %v", line["logData"])
	}
}

func TestCorrelationIDRoundTrip(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "corr-1")
	if got := CorrelationID(ctx); got != "corr-1" {
		t.Fatalf("correlation id = %q", got)
	}

	var buf bytes.Buffer
	l := New("ingest", LevelInfo, &buf).WithContext(ctx)
	l.Info("m", nil)
	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatal(err)
	}
	if line["correlation_id"] != "corr-1" {
		t.Fatalf("correlation id not propagated: %v", line)
	}
}
