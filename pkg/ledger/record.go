// Package ledger provides the append-only, authorization-gated store of
// alert records and the engine that serializes writes into it. Records
// are hash-chained so any mutation of history is detectable.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ChainSeed is the PrevHash of the first record in a ledger.
const ChainSeed = "genesis"

// AlertRecord is the immutable unit stored in the ledger. Once appended
// it is never mutated or deleted.
type AlertRecord struct {
	ID            string    `json:"id"`
	AlertID       string    `json:"alertId"`
	SourceType    string    `json:"sourceType"`
	ContentHash   string    `json:"contentHash"`
	Timestamp     time.Time `json:"timestamp"`
	Reporter      string    `json:"reporter"`
	Suspicious    bool      `json:"isSuspicious"`
	ConfidencePct int       `json:"confidencePct"`
	ModelVersion  string    `json:"modelVersion"`
	PrevHash      string    `json:"prevHash"`
	RecordHash    string    `json:"recordHash"`
}

// chainHash computes the record's position in the tamper-evidence chain.
// Every stored field except RecordHash itself participates, so editing
// any of them breaks the chain.
func chainHash(r AlertRecord) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%t|%d|%s|%s",
		r.ID,
		r.AlertID,
		r.SourceType,
		r.ContentHash,
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.Reporter,
		r.Suspicious,
		r.ConfidencePct,
		r.ModelVersion,
		r.PrevHash,
	)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
