package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"alertledger/pkg/auth"
	"alertledger/pkg/classifier"
	"alertledger/pkg/ledger"
	"alertledger/pkg/livestream"
	"alertledger/pkg/pipeline"
	"alertledger/pkg/ratelimit"
	"alertledger/pkg/registry"
	"alertledger/pkg/structlog"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	testOwner  = "admin"
)

type testEnv struct {
	ts       *httptest.Server
	sessions *auth.Manager
	store    *ledger.MemoryStore
	srv      *server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := ledger.NewMemoryStore()
	reg := registry.NewMemory(testOwner)
	hub := livestream.NewHub(64)
	sessions, err := auth.NewManager(testSecret, serviceName, time.Hour)
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}
	logger := structlog.New(serviceName, structlog.LevelError, io.Discard)
	engine := ledger.NewEngine(store, reg, ledger.EngineConfig{})
	coord := pipeline.New(classifier.DefaultRuleSet(), engine, hub, logger)
	srv := newServer(coord, store, reg, hub, sessions, ratelimit.New(nil, 1000, time.Minute), logger)
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, sessions: sessions, store: store, srv: srv}
}

func (e *testEnv) token(t *testing.T, identity string) string {
	t.Helper()
	tok, err := e.sessions.Token(identity, time.Hour)
	if err != nil {
		t.Fatalf("mint token for %s: %v", identity, err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, identity string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if identity != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, identity))
	}
	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode %s %s response: %v", method, path, err)
	}
	return resp, decoded
}

func (e *testEnv) addReporter(t *testing.T, reporter string) {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/add-reporter", testOwner, map[string]string{"reporter": reporter})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add-reporter: status %d body %v", resp.StatusCode, body)
	}
}

func TestRequestsWithoutTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/api/get-alert-count", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if body["success"] != false {
		t.Fatalf("body = %v", body)
	}
}

func TestHealthzOpen(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.ts.Client().Get(env.ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", resp.StatusCode)
	}
}

func TestLogAlertSuspiciousFlow(t *testing.T) {
	env := newTestEnv(t)
	env.addReporter(t, "sensor-1")

	resp, body := env.do(t, http.MethodPost, "/api/log-alert", "sensor-1", map[string]string{
		"alertId":    "a-1",
		"sourceType": "ids",
		"logData":    "unauthorized access attempt on port 22",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("log-alert: status %d body %v", resp.StatusCode, body)
	}
	if body["success"] != true || body["isSuspicious"] != true {
		t.Fatalf("body = %v", body)
	}
	committed, ok := body["committed"].(map[string]interface{})
	if !ok {
		t.Fatalf("suspicious alert must carry a committed block, body = %v", body)
	}
	if committed["position"] != float64(0) {
		t.Fatalf("position = %v, want 0", committed["position"])
	}

	// Count and point read agree.
	_, countBody := env.do(t, http.MethodGet, "/api/get-alert-count", "sensor-1", nil)
	if countBody["count"] != "1" {
		t.Fatalf("count = %v, want 1", countBody["count"])
	}
	resp, alertBody := env.do(t, http.MethodGet, "/api/get-alert/0", "sensor-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get-alert: status %d", resp.StatusCode)
	}
	alert := alertBody["alert"].(map[string]interface{})
	if alert["alertId"] != "a-1" || alert["reporter"] != "sensor-1" {
		t.Fatalf("alert = %v", alert)
	}
	if alert["prevHash"] != ledger.ChainSeed {
		t.Fatalf("first record prevHash = %v, want %s", alert["prevHash"], ledger.ChainSeed)
	}
	ts, ok := alert["timestamp"].(string)
	if !ok {
		t.Fatalf("timestamp must serialize as a string, got %T", alert["timestamp"])
	}
	if _, err := fmt.Sscanf(ts, "%d", new(int64)); err != nil {
		t.Fatalf("timestamp %q is not decimal", ts)
	}
	if _, hasLog := alert["logData"]; hasLog {
		t.Fatal("raw log data must never be stored or returned")
	}
}

func TestLogAlertBenignNotCommitted(t *testing.T) {
	env := newTestEnv(t)
	env.addReporter(t, "sensor-1")

	resp, body := env.do(t, http.MethodPost, "/api/log-alert", "sensor-1", map[string]string{
		"alertId":    "a-2",
		"sourceType": "ids",
		"logData":    "GET /home 200 ok",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d body %v", resp.StatusCode, body)
	}
	if body["isSuspicious"] != false || body["broadcast"] != true {
		t.Fatalf("body = %v", body)
	}
	if _, hasCommit := body["committed"]; hasCommit {
		t.Fatalf("benign alert must not be committed, body = %v", body)
	}
	_, countBody := env.do(t, http.MethodGet, "/api/get-alert-count", "sensor-1", nil)
	if countBody["count"] != "0" {
		t.Fatalf("count = %v, want 0", countBody["count"])
	}
}

func TestLogAlertValidationAndAuthz(t *testing.T) {
	env := newTestEnv(t)
	env.addReporter(t, "sensor-1")

	// Missing fields.
	resp, _ := env.do(t, http.MethodPost, "/api/log-alert", "sensor-1", map[string]string{
		"alertId": "a-3",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing fields: status = %d, want 400", resp.StatusCode)
	}

	// Authenticated session but not an authorized reporter.
	resp, _ = env.do(t, http.MethodPost, "/api/log-alert", "rogue", map[string]string{
		"alertId":    "a-4",
		"sourceType": "ids",
		"logData":    "malware callback detected",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unauthorized reporter: status = %d, want 403", resp.StatusCode)
	}
	_, countBody := env.do(t, http.MethodGet, "/api/get-alert-count", "sensor-1", nil)
	if countBody["count"] != "0" {
		t.Fatalf("rejected alert must not be stored, count = %v", countBody["count"])
	}
}

func TestReporterManagementOwnerOnly(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/api/add-reporter", "sensor-1", map[string]string{"reporter": "sensor-2"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-owner add: status = %d, want 403", resp.StatusCode)
	}

	env.addReporter(t, "sensor-1")
	resp, _ = env.do(t, http.MethodPost, "/api/remove-reporter", testOwner, map[string]string{"reporter": "sensor-1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner remove: status = %d, want 200", resp.StatusCode)
	}

	// Removed reporter loses append rights.
	resp, _ = env.do(t, http.MethodPost, "/api/log-alert", "sensor-1", map[string]string{
		"alertId":    "a-5",
		"sourceType": "ids",
		"logData":    "ransomware signature match",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("removed reporter: status = %d, want 403", resp.StatusCode)
	}
}

func TestGetAlertsRange(t *testing.T) {
	env := newTestEnv(t)
	env.addReporter(t, "sensor-1")

	for i := 0; i < 3; i++ {
		resp, body := env.do(t, http.MethodPost, "/api/log-alert", "sensor-1", map[string]string{
			"alertId":    fmt.Sprintf("a-%d", i),
			"sourceType": "ids",
			"logData":    fmt.Sprintf("exploit attempt %d", i),
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("log-alert %d: status %d body %v", i, resp.StatusCode, body)
		}
	}

	_, body := env.do(t, http.MethodGet, "/api/get-alerts?from=1", "sensor-1", nil)
	alerts := body["alerts"].([]interface{})
	if len(alerts) != 2 {
		t.Fatalf("len(alerts) = %d, want 2", len(alerts))
	}
	first := alerts[0].(map[string]interface{})
	if first["alertId"] != "a-1" || first["position"] != float64(1) {
		t.Fatalf("first ranged alert = %v", first)
	}

	// Out-of-range read.
	resp, _ := env.do(t, http.MethodGet, "/api/get-alert/99", "sensor-1", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("out of range: status = %d, want 404", resp.StatusCode)
	}
}

func TestLogAlertRateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.addReporter(t, "sensor-1")
	env.srv.limiter = ratelimit.New(nil, 2, time.Minute)

	payload := map[string]string{
		"alertId":    "rl-1",
		"sourceType": "ids",
		"logData":    "GET /home 200 ok",
	}
	for i := 0; i < 2; i++ {
		resp, _ := env.do(t, http.MethodPost, "/api/log-alert", "sensor-1", payload)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, resp.StatusCode)
		}
	}
	resp, _ := env.do(t, http.MethodPost, "/api/log-alert", "sensor-1", payload)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}

	// Another reporter is unaffected.
	env.addReporter(t, "sensor-2")
	resp, _ = env.do(t, http.MethodPost, "/api/log-alert", "sensor-2", payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("other reporter: status = %d, want 200", resp.StatusCode)
	}
}

func TestLiveStreamDeliversAlert(t *testing.T) {
	env := newTestEnv(t)
	env.addReporter(t, "sensor-1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		env.ts.URL+"/api/live?access_token="+env.token(t, "dashboard"), nil)
	if err != nil {
		t.Fatalf("build live request: %v", err)
	}
	resp, err := env.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("open live stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("live stream status = %d, want 200", resp.StatusCode)
	}

	// The subscription is registered before the handler flushes headers,
	// so publishing after this point must reach the stream.
	postResp, postBody := env.do(t, http.MethodPost, "/api/log-alert", "sensor-1", map[string]string{
		"alertId":    "live-1",
		"sourceType": "ids",
		"logData":    "ddos traffic spike detected",
		"severity":   "high",
	})
	if postResp.StatusCode != http.StatusOK {
		t.Fatalf("log-alert: status %d body %v", postResp.StatusCode, postBody)
	}

	scanner := bufio.NewScanner(resp.Body)
	var data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	if data == "" {
		t.Fatalf("no event received: %v", scanner.Err())
	}
	var evt livestream.Event
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		t.Fatalf("decode event %q: %v", data, err)
	}
	if evt.AlertID != "live-1" || !evt.Suspicious || evt.LogData != "ddos traffic spike detected" {
		t.Fatalf("event = %+v", evt)
	}
}
