package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"alertledger/pkg/metrics"
	"alertledger/pkg/registry"
)

// ErrUnauthorized is returned when the submitting identity is not in the
// reporter registry at the moment of append. Nothing is written and the
// append is never retried.
var ErrUnauthorized = errors.New("ledger: reporter not authorized")

// ErrInvalidDraft marks a malformed draft. Never retried.
var ErrInvalidDraft = errors.New("ledger: invalid record draft")

// WriteError reports an append that exhausted its retry budget. The
// caller may have already broadcast the event; that asymmetry is the
// caller's to surface.
type WriteError struct {
	Attempts int
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("ledger: write failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Draft is what a caller submits for appending. Timestamp, identity, and
// chain fields are assigned by the engine and store at commit.
type Draft struct {
	AlertID       string
	SourceType    string
	ContentHash   string
	Suspicious    bool
	ConfidencePct int
	ModelVersion  string
}

// Commit is a durably appended record and its ledger position.
type Commit struct {
	Record   AlertRecord
	Position uint64
}

// EngineConfig tunes the append retry budget.
type EngineConfig struct {
	// MaxAttempts bounds how often a transient store fault is retried.
	MaxAttempts int
	// Backoff is the initial retry delay, doubled per attempt.
	Backoff time.Duration
	// Now is the commit clock; defaults to time.Now.
	Now func() time.Time
}

// Engine serializes authorized appends into the store. It is the single
// writer: all appends pass through one mutex, which gives the total
// order and the monotonic timestamp guarantee.
type Engine struct {
	store    Store
	registry registry.Registry
	cfg      EngineConfig

	mu     sync.Mutex
	lastTS time.Time
}

// NewEngine builds an append engine over store, authorized against reg.
func NewEngine(store Store, reg registry.Registry, cfg EngineConfig) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 100 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{store: store, registry: reg, cfg: cfg}
}

// Append authorizes asReporter, stamps the draft, and writes it at the
// next free position. Authorization rejections and malformed drafts fail
// immediately; transient store faults are retried within the budget.
func (e *Engine) Append(ctx context.Context, d Draft, asReporter string) (Commit, error) {
	if err := validateDraft(d, asReporter); err != nil {
		return Commit{}, err
	}

	ok, err := e.registry.IsAuthorized(ctx, asReporter)
	if err != nil {
		return Commit{}, fmt.Errorf("ledger: authorization check: %w", err)
	}
	if !ok {
		return Commit{}, fmt.Errorf("%w: %s", ErrUnauthorized, asReporter)
	}

	start := time.Now()
	defer func() { metrics.AppendDuration.Observe(time.Since(start).Seconds()) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	ts := e.cfg.Now().UTC()
	if ts.Before(e.lastTS) {
		ts = e.lastTS
	}
	e.lastTS = ts

	rec := AlertRecord{
		ID:            uuid.New().String(),
		AlertID:       d.AlertID,
		SourceType:    d.SourceType,
		ContentHash:   d.ContentHash,
		Timestamp:     ts,
		Reporter:      asReporter,
		Suspicious:    d.Suspicious,
		ConfidencePct: d.ConfidencePct,
		ModelVersion:  d.ModelVersion,
	}

	var lastErr error
	delay := e.cfg.Backoff
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		pos, err := e.store.Append(ctx, rec)
		if err == nil {
			stored, gerr := e.store.Get(ctx, pos)
			if gerr == nil {
				rec = stored
			}
			return Commit{Record: rec, Position: pos}, nil
		}
		if !IsTransient(err) {
			return Commit{}, err
		}
		lastErr = err
		if attempt == e.cfg.MaxAttempts {
			break
		}
		metrics.AppendRetries.Inc()
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Commit{}, ctx.Err()
		}
		delay *= 2
	}
	return Commit{}, &WriteError{Attempts: e.cfg.MaxAttempts, Err: lastErr}
}

func validateDraft(d Draft, asReporter string) error {
	switch {
	case d.AlertID == "":
		return fmt.Errorf("%w: missing alert id", ErrInvalidDraft)
	case d.SourceType == "":
		return fmt.Errorf("%w: missing source type", ErrInvalidDraft)
	case d.ContentHash == "":
		return fmt.Errorf("%w: missing content hash", ErrInvalidDraft)
	case d.ModelVersion == "":
		return fmt.Errorf("%w: missing model version", ErrInvalidDraft)
	case d.ConfidencePct < 0 || d.ConfidencePct > 100:
		return fmt.Errorf("%w: confidence %d out of range", ErrInvalidDraft, d.ConfidencePct)
	case asReporter == "":
		return fmt.Errorf("%w: missing reporter identity", ErrInvalidDraft)
	}
	return nil
}
