package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"alertledger/pkg/database"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresStore persists the ledger in an alert_records table protected
// by an append-only trigger. Atomicity and the no-gap position guarantee
// come from a serializable insert transaction.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore runs pending migrations and returns a store bound to db.
func NewPostgresStore(db *sql.DB, dbName string) (*PostgresStore, error) {
	if err := database.Migrate(db, migrations, "migrations", "ledger_schema_migrations", dbName); err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Append(ctx context.Context, rec AlertRecord) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, classifyPgErr(fmt.Errorf("begin append tx: %w", err))
	}
	defer tx.Rollback()

	var pos int64
	var prevHash sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position) + 1, 0),
		       (SELECT record_hash FROM alert_records ORDER BY position DESC LIMIT 1)
		FROM alert_records`).Scan(&pos, &prevHash)
	if err != nil {
		return 0, classifyPgErr(fmt.Errorf("next position: %w", err))
	}

	if prevHash.Valid {
		rec.PrevHash = prevHash.String
	} else {
		rec.PrevHash = ChainSeed
	}
	rec.RecordHash = chainHash(rec)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO alert_records
			(position, id, alert_id, source_type, content_hash, ts, reporter,
			 is_suspicious, confidence_pct, model_version, prev_hash, record_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		pos, rec.ID, rec.AlertID, rec.SourceType, rec.ContentHash, rec.Timestamp,
		rec.Reporter, rec.Suspicious, rec.ConfidencePct, rec.ModelVersion,
		rec.PrevHash, rec.RecordHash)
	if err != nil {
		return 0, classifyPgErr(fmt.Errorf("insert record: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return 0, classifyPgErr(fmt.Errorf("commit append: %w", err))
	}
	return uint64(pos), nil
}

const recordColumns = `position, id, alert_id, source_type, content_hash, ts, reporter,
	is_suspicious, confidence_pct, model_version, prev_hash, record_hash`

func (s *PostgresStore) Get(ctx context.Context, pos uint64) (AlertRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM alert_records WHERE position = $1`, int64(pos))
	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return AlertRecord{}, ErrNotFound
	}
	if err != nil {
		return AlertRecord{}, classifyPgErr(fmt.Errorf("get record: %w", err))
	}
	return rec, nil
}

// Range reads committed records between from and to. The query sees a
// consistent snapshot; appends committing mid-read appear in later calls.
func (s *PostgresStore) Range(ctx context.Context, from, to uint64) ([]AlertRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM alert_records
		 WHERE position >= $1 AND position <= $2 ORDER BY position ASC`,
		int64(from), int64(to))
	if err != nil {
		return nil, classifyPgErr(fmt.Errorf("range query: %w", err))
	}
	defer rows.Close()

	var out []AlertRecord
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("ledger: scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context) (uint64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alert_records`).Scan(&n); err != nil {
		return 0, classifyPgErr(fmt.Errorf("count records: %w", err))
	}
	return uint64(n), nil
}

func scanRecord(scan func(dest ...any) error) (AlertRecord, error) {
	var rec AlertRecord
	var pos int64
	err := scan(&pos, &rec.ID, &rec.AlertID, &rec.SourceType, &rec.ContentHash,
		&rec.Timestamp, &rec.Reporter, &rec.Suspicious, &rec.ConfidencePct,
		&rec.ModelVersion, &rec.PrevHash, &rec.RecordHash)
	return rec, err
}

// classifyPgErr marks infrastructure faults as transient so the engine
// retries them; integrity violations stay permanent. Serialization
// failures (class 40) are the expected collision mode under concurrent
// appends and are always retryable.
func classifyPgErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		class := pqErr.Code.Class()
		switch class {
		case "40", "53", "08", "57": // serialization, resources, connection, operator intervention
			return &TransientError{Err: err}
		default:
			return fmt.Errorf("ledger: %w", err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("ledger: %w", err)
	}
	// Driver-level failures (bad conn, broken pipe) surface without a
	// pq code; treat them as transient.
	return &TransientError{Err: err}
}
