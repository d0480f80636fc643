package registry

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Postgres is a Registry backed by a reporters table, shared by every
// ingest instance pointed at the same database.
type Postgres struct {
	db    *sql.DB
	owner string
}

// NewPostgres wires the registry to db and fixes the owner identity.
// The table is created if missing.
func NewPostgres(db *sql.DB, owner string) (*Postgres, error) {
	if owner == "" {
		return nil, fmt.Errorf("registry: owner identity required")
	}
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trusted_reporters (
			identity   VARCHAR(255) PRIMARY KEY,
			added_by   VARCHAR(255) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`)
	if err != nil {
		return nil, fmt.Errorf("registry: create table: %w", err)
	}
	return &Postgres{db: db, owner: owner}, nil
}

func (p *Postgres) Owner() string { return p.owner }

func (p *Postgres) IsAuthorized(ctx context.Context, identity string) (bool, error) {
	var ok bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM trusted_reporters WHERE identity = $1)`, identity).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("registry: membership check: %w", err)
	}
	return ok, nil
}

func (p *Postgres) AddReporter(ctx context.Context, identity, requestedBy string) error {
	if requestedBy != p.owner {
		return ErrNotOwner
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO trusted_reporters (identity, added_by) VALUES ($1, $2)
		 ON CONFLICT (identity) DO NOTHING`, identity, requestedBy)
	if err != nil {
		return fmt.Errorf("registry: add reporter: %w", err)
	}
	return nil
}

func (p *Postgres) RemoveReporter(ctx context.Context, identity, requestedBy string) error {
	if requestedBy != p.owner {
		return ErrNotOwner
	}
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM trusted_reporters WHERE identity = $1`, identity)
	if err != nil {
		return fmt.Errorf("registry: remove reporter: %w", err)
	}
	return nil
}
