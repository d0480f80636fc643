// Package pipeline orchestrates one ingested event end to end:
// validate, hash, classify, broadcast live, and append to the ledger
// when the verdict is suspicious. It is the only place that maps
// component failures to caller-visible outcomes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"alertledger/pkg/classifier"
	"alertledger/pkg/contenthash"
	"alertledger/pkg/ledger"
	"alertledger/pkg/livestream"
	"alertledger/pkg/metrics"
	"alertledger/pkg/structlog"
)

var timeNow = time.Now

// ErrValidation marks a request missing required fields. Nothing runs
// after validation fails: no hash, no classification, no broadcast.
var ErrValidation = errors.New("ingest: missing required alert data")

// ErrClassifier marks an ingest aborted because no verdict could be
// obtained. Benign and "could not classify" are never conflated.
var ErrClassifier = errors.New("ingest: classification failed")

// Broadcaster is the live fan-out the coordinator publishes every event
// to. Satisfied by livestream.Hub and livestream.RedisRelay.
type Broadcaster interface {
	Publish(evt livestream.Event)
}

// Request is one incoming telemetry event. Reporter is the identity of
// the authenticated session, never taken from the payload.
type Request struct {
	AlertID    string
	SourceType string
	LogData    string
	Severity   string
	Reporter   string
}

// Outcome reports what actually happened. Broadcast and Committed are
// independent: a suspicious event can be live-broadcast and still fail
// the ledger write, and that partial success is explicit here.
type Outcome struct {
	Verdict     classifier.Verdict
	ContentHash string
	Broadcast   bool
	Committed   *ledger.Commit
}

// Coordinator wires the pipeline components together. All collaborators
// are injected so each can be faked in tests.
type Coordinator struct {
	classifier  classifier.Classifier
	engine      *ledger.Engine
	broadcaster Broadcaster
	log         *structlog.Logger
}

// New builds a coordinator. The classifier passed in fixes the verdict
// strategy for this deployment; switching between rule, remote, and
// severity-hint modes is a construction-time decision, never a per-call
// mix.
func New(cls classifier.Classifier, engine *ledger.Engine, b Broadcaster, log *structlog.Logger) *Coordinator {
	if log == nil {
		log = structlog.New("pipeline", structlog.LevelInfo, nil)
	}
	return &Coordinator{classifier: cls, engine: engine, broadcaster: b, log: log}
}

// Ingest runs one event through the pipeline.
//
// Broadcast happens before ledger durability by design: the live
// dashboard sees every event immediately, and a later append failure is
// returned as a partial success (Outcome.Broadcast true, Committed nil,
// non-nil error) rather than hidden.
func (c *Coordinator) Ingest(ctx context.Context, req Request) (Outcome, error) {
	if req.AlertID == "" || req.SourceType == "" || req.LogData == "" {
		metrics.IngestTotal.WithLabelValues("validation_error").Inc()
		return Outcome{}, ErrValidation
	}

	out := Outcome{ContentHash: contenthash.HexSum([]byte(req.LogData))}

	verdict, err := c.classifier.Classify(ctx, classifier.Input{
		LogData:      req.LogData,
		SourceType:   req.SourceType,
		SeverityHint: req.Severity,
	})
	if err != nil {
		metrics.IngestTotal.WithLabelValues("classifier_unavailable").Inc()
		metrics.ClassifierFailures.Inc()
		c.log.WithContext(ctx).Error("classification failed, ingest aborted", structlog.Fields{
			"alert_id": req.AlertID,
			"error":    err.Error(),
		})
		return Outcome{}, fmt.Errorf("%w: %v", ErrClassifier, err)
	}
	out.Verdict = verdict

	c.broadcaster.Publish(livestream.Event{
		AlertID:       req.AlertID,
		SourceType:    req.SourceType,
		LogData:       req.LogData,
		Severity:      req.Severity,
		Suspicious:    verdict.Suspicious,
		ConfidencePct: verdict.ConfidencePct,
		ModelVersion:  verdict.ModelVersion,
		Timestamp:     timeNow(),
	})
	out.Broadcast = true

	if !verdict.Suspicious {
		// Benign events are live-only. The ledger keeps security
		// evidence, not traffic history.
		metrics.IngestTotal.WithLabelValues("accepted_benign").Inc()
		return out, nil
	}

	commit, err := c.engine.Append(ctx, ledger.Draft{
		AlertID:       req.AlertID,
		SourceType:    req.SourceType,
		ContentHash:   out.ContentHash,
		Suspicious:    verdict.Suspicious,
		ConfidencePct: verdict.ConfidencePct,
		ModelVersion:  verdict.ModelVersion,
	}, req.Reporter)
	if err != nil {
		c.countAppendFailure(err)
		c.log.WithContext(ctx).Error("ledger append failed after live broadcast", structlog.Fields{
			"alert_id": req.AlertID,
			"reporter": req.Reporter,
			"error":    err.Error(),
		})
		return out, err
	}
	out.Committed = &commit

	metrics.IngestTotal.WithLabelValues("accepted_suspicious").Inc()
	c.log.WithContext(ctx).SecurityEvent("suspicious event committed", structlog.Fields{
		"alert_id":      req.AlertID,
		"source_type":   req.SourceType,
		"position":      commit.Position,
		"reporter":      req.Reporter,
		"model_version": verdict.ModelVersion,
	})
	return out, nil
}

func (c *Coordinator) countAppendFailure(err error) {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		metrics.IngestTotal.WithLabelValues("unauthorized").Inc()
	case isWriteError(err):
		metrics.IngestTotal.WithLabelValues("ledger_write_failed").Inc()
	default:
		metrics.IngestTotal.WithLabelValues("internal_error").Inc()
	}
}

func isWriteError(err error) bool {
	var we *ledger.WriteError
	return errors.As(err, &we)
}
