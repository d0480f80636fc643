package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"alertledger/pkg/auth"
	"alertledger/pkg/classifier"
	"alertledger/pkg/ledger"
	"alertledger/pkg/livestream"
	"alertledger/pkg/pipeline"
	"alertledger/pkg/ratelimit"
	"alertledger/pkg/registry"
	"alertledger/pkg/structlog"
)

type server struct {
	coord    *pipeline.Coordinator
	store    ledger.Store
	reg      registry.Registry
	hub      *livestream.Hub
	sessions *auth.Manager
	limiter  *ratelimit.Limiter
	log      *structlog.Logger
}

func newServer(coord *pipeline.Coordinator, store ledger.Store, reg registry.Registry, hub *livestream.Hub, sessions *auth.Manager, limiter *ratelimit.Limiter, log *structlog.Logger) *server {
	return &server{coord: coord, store: store, reg: reg, hub: hub, sessions: sessions, limiter: limiter, log: log}
}

// routes builds the full authenticated handler. Health and metrics stay
// open; everything else requires a session token.
func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/log-alert", s.handleLogAlert)
	mux.HandleFunc("/api/add-reporter", s.handleAddReporter)
	mux.HandleFunc("/api/remove-reporter", s.handleRemoveReporter)
	mux.HandleFunc("/api/get-alert/", s.handleGetAlert)
	mux.HandleFunc("/api/get-alerts", s.handleGetAlerts)
	mux.HandleFunc("/api/get-alert-count", s.handleGetAlertCount)
	mux.HandleFunc("/api/live", s.handleLive)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return s.sessions.Middleware("/healthz", "/metrics")(mux)
}

type logAlertRequest struct {
	AlertID    string `json:"alertId"`
	SourceType string `json:"sourceType"`
	LogData    string `json:"logData"`
	Severity   string `json:"severity,omitempty"`
}

type committedView struct {
	Position uint64 `json:"position"`
	RecordID string `json:"recordId"`
}

type logAlertResponse struct {
	Success       bool           `json:"success"`
	Suspicious    bool           `json:"isSuspicious"`
	ConfidencePct int            `json:"confidencePct"`
	ModelVersion  string         `json:"modelVersion"`
	ContentHash   string         `json:"contentHash,omitempty"`
	Broadcast     bool           `json:"broadcast"`
	Committed     *committedView `json:"committed,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// alertView mirrors the stored record with the timestamp rendered as a
// decimal string of unix seconds, which is what existing dashboard
// clients parse.
type alertView struct {
	Position      uint64 `json:"position"`
	ID            string `json:"id"`
	AlertID       string `json:"alertId"`
	SourceType    string `json:"sourceType"`
	ContentHash   string `json:"contentHash"`
	Timestamp     string `json:"timestamp"`
	Reporter      string `json:"reporter"`
	Suspicious    bool   `json:"isSuspicious"`
	ConfidencePct int    `json:"confidencePct"`
	ModelVersion  string `json:"modelVersion"`
	PrevHash      string `json:"prevHash"`
	RecordHash    string `json:"recordHash"`
}

func viewOf(pos uint64, rec ledger.AlertRecord) alertView {
	return alertView{
		Position:      pos,
		ID:            rec.ID,
		AlertID:       rec.AlertID,
		SourceType:    rec.SourceType,
		ContentHash:   rec.ContentHash,
		Timestamp:     strconv.FormatInt(rec.Timestamp.Unix(), 10),
		Reporter:      rec.Reporter,
		Suspicious:    rec.Suspicious,
		ConfidencePct: rec.ConfidencePct,
		ModelVersion:  rec.ModelVersion,
		PrevHash:      rec.PrevHash,
		RecordHash:    rec.RecordHash,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": msg})
}

func (s *server) handleLogAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req logAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	reporter := auth.Identity(r.Context())
	if !s.limiter.Allow(r.Context(), reporter) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	out, err := s.coord.Ingest(r.Context(), pipeline.Request{
		AlertID:    req.AlertID,
		SourceType: req.SourceType,
		LogData:    req.LogData,
		Severity:   req.Severity,
		Reporter:   reporter,
	})
	if err != nil {
		s.writeIngestError(w, out, err)
		return
	}

	resp := logAlertResponse{
		Success:       true,
		Suspicious:    out.Verdict.Suspicious,
		ConfidencePct: out.Verdict.ConfidencePct,
		ModelVersion:  out.Verdict.ModelVersion,
		ContentHash:   out.ContentHash,
		Broadcast:     out.Broadcast,
	}
	if out.Committed != nil {
		resp.Committed = &committedView{Position: out.Committed.Position, RecordID: out.Committed.Record.ID}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) writeIngestError(w http.ResponseWriter, out pipeline.Outcome, err error) {
	switch {
	case errors.Is(err, pipeline.ErrValidation):
		writeError(w, http.StatusBadRequest, "alertId, sourceType and logData are required")
	case errors.Is(err, pipeline.ErrClassifier), errors.Is(err, classifier.ErrUnavailable):
		writeError(w, http.StatusBadGateway, "classification unavailable")
	case errors.Is(err, ledger.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "reporter is not authorized to append")
	default:
		// The event may already be live even though the ledger write
		// failed. Callers must be able to tell that apart from a clean
		// failure.
		writeJSON(w, http.StatusInternalServerError, logAlertResponse{
			Success:       false,
			Suspicious:    out.Verdict.Suspicious,
			ConfidencePct: out.Verdict.ConfidencePct,
			ModelVersion:  out.Verdict.ModelVersion,
			ContentHash:   out.ContentHash,
			Broadcast:     out.Broadcast,
			Error:         "ledger write failed",
		})
	}
}

type reporterRequest struct {
	Reporter string `json:"reporter"`
}

func (s *server) handleAddReporter(w http.ResponseWriter, r *http.Request) {
	s.mutateRegistry(w, r, s.reg.AddReporter, "reporter_added")
}

func (s *server) handleRemoveReporter(w http.ResponseWriter, r *http.Request) {
	s.mutateRegistry(w, r, s.reg.RemoveReporter, "reporter_removed")
}

func (s *server) mutateRegistry(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, identity, requestedBy string) error, event string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req reporterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reporter == "" {
		writeError(w, http.StatusBadRequest, "reporter is required")
		return
	}
	actor := auth.Identity(r.Context())
	if err := op(r.Context(), req.Reporter, actor); err != nil {
		if errors.Is(err, registry.ErrNotOwner) {
			writeError(w, http.StatusForbidden, "only the owner may manage reporters")
			return
		}
		s.log.Error("registry mutation failed", structlog.Fields{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "registry unavailable")
		return
	}
	s.log.SecurityEvent(event, structlog.Fields{"reporter": req.Reporter, "actor": actor})
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "reporter": req.Reporter})
}

func (s *server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/api/get-alert/")
	pos, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be a non-negative integer")
		return
	}
	rec, err := s.store.Get(r.Context(), pos)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no record at that index")
			return
		}
		s.log.Error("ledger read failed", structlog.Fields{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "ledger unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "alert": viewOf(pos, rec)})
}

func (s *server) handleGetAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	from, err := parseUintParam(q.Get("from"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be a non-negative integer")
		return
	}
	count, err := s.store.Count(r.Context())
	if err != nil {
		s.log.Error("ledger count failed", structlog.Fields{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "ledger unavailable")
		return
	}
	defaultTo := uint64(0)
	if count > 0 {
		defaultTo = count - 1
	}
	to, err := parseUintParam(q.Get("to"), defaultTo)
	if err != nil {
		writeError(w, http.StatusBadRequest, "to must be a non-negative integer")
		return
	}
	if count == 0 || from > to {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "alerts": []alertView{}})
		return
	}
	recs, err := s.store.Range(r.Context(), from, to)
	if err != nil {
		s.log.Error("ledger range read failed", structlog.Fields{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "ledger unavailable")
		return
	}
	views := make([]alertView, len(recs))
	for i, rec := range recs {
		views[i] = viewOf(from+uint64(i), rec)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "alerts": views})
}

func (s *server) handleGetAlertCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	count, err := s.store.Count(r.Context())
	if err != nil {
		s.log.Error("ledger count failed", structlog.Fields{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "ledger unavailable")
		return
	}
	// Serialized as a string, like the timestamps, so clients that parse
	// chain data with bigint-safe decoders can treat all counters alike.
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "count": strconv.FormatUint(count, 10)})
}

func parseUintParam(raw string, def uint64) (uint64, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}
