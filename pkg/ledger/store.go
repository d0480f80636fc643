package ledger

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned for reads of positions the ledger has not reached.
var ErrNotFound = errors.New("ledger: record not found")

// TransientError wraps a store fault that is worth retrying (connection
// loss, resource exhaustion). Authorization and validation failures are
// never transient.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string   { return fmt.Sprintf("ledger: transient store fault: %v", e.Err) }
func (e *TransientError) Unwrap() error   { return e.Err }
func (e *TransientError) Transient() bool { return true }

// IsTransient reports whether err (or anything it wraps) marks itself
// retryable.
func IsTransient(err error) bool {
	var t interface{ Transient() bool }
	return errors.As(err, &t) && t.Transient()
}

// Store is the contract the engine requires from the append-only storage
// backend. Append must be atomic: the full record becomes visible at the
// next free position or nothing does; positions are strictly increasing
// with no gaps or reuse. Reads may run concurrently with appends and
// observe a snapshot of the length at read time; appends completing
// mid-iteration may or may not be included, but committed positions are
// never skipped or duplicated.
type Store interface {
	// Append writes rec at the next free position, filling in PrevHash
	// and RecordHash, and returns the position.
	Append(ctx context.Context, rec AlertRecord) (uint64, error)
	// Get returns the record at pos, or ErrNotFound.
	Get(ctx context.Context, pos uint64) (AlertRecord, error)
	// Range returns records with positions in [from, to], capped at the
	// current length.
	Range(ctx context.Context, from, to uint64) ([]AlertRecord, error)
	// Count returns the number of committed records.
	Count(ctx context.Context) (uint64, error)
}

// VerifyChain recomputes the hash chain over positions [from, to] and
// reports the first break, if any.
func VerifyChain(ctx context.Context, s Store, from, to uint64) error {
	recs, err := s.Range(ctx, from, to)
	if err != nil {
		return err
	}
	prev := ""
	for i, rec := range recs {
		if i > 0 && rec.PrevHash != prev {
			return fmt.Errorf("ledger: chain broken at position %d: prev hash %s does not link %s", from+uint64(i), rec.PrevHash, prev)
		}
		if got := chainHash(rec); got != rec.RecordHash {
			return fmt.Errorf("ledger: record tampered at position %d: hash %s, recomputed %s", from+uint64(i), rec.RecordHash, got)
		}
		prev = rec.RecordHash
	}
	return nil
}
