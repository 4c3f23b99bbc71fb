package draftstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ovleluv/AIContract-STT/internal/contract"
)

// Schema is the SQL DDL for the contract_drafts table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS contract_drafts (
    session_id    TEXT NOT NULL,
    contract_type TEXT NOT NULL,
    language      TEXT NOT NULL DEFAULT '',
    body          TEXT NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (session_id, contract_type)
);
CREATE INDEX IF NOT EXISTS idx_contract_drafts_updated ON contract_drafts(updated_at);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL. Writes are single-row
// upserts, so concurrent readers see either the old or the new draft.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore]. The caller is responsible for
// calling [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("draftstore: migrate: %w", err)
	}
	return nil
}

// Put implements [Store].
func (s *PostgresStore) Put(ctx context.Context, d *Draft) error {
	if d.SessionID == "" || d.Type == "" {
		return contract.InvalidInput("draft needs a session and a contract type")
	}
	const query = `
		INSERT INTO contract_drafts (session_id, contract_type, language, body)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, contract_type) DO UPDATE SET
			language = EXCLUDED.language,
			body = EXCLUDED.body,
			updated_at = now()
		RETURNING updated_at`

	err := s.db.QueryRow(ctx, query, d.SessionID, string(d.Type), d.Language, d.Text).Scan(&d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("draftstore: put %q: %w", d.Type, err)
	}
	return nil
}

// Get implements [Store].
func (s *PostgresStore) Get(ctx context.Context, sessionID string, t contract.Type) (*Draft, error) {
	const query = `
		SELECT language, body, updated_at
		FROM contract_drafts
		WHERE session_id = $1 AND contract_type = $2`

	d := Draft{SessionID: sessionID, Type: t}
	err := s.db.QueryRow(ctx, query, sessionID, string(t)).Scan(&d.Language, &d.Text, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("draftstore: %q: %w", t, contract.ErrDraftNotFound)
		}
		return nil, fmt.Errorf("draftstore: get %q: %w", t, err)
	}
	return &d, nil
}

// Prune deletes drafts not updated since before. It returns the number of
// rows removed.
func (s *PostgresStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM contract_drafts WHERE updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("draftstore: prune: %w", err)
	}
	return tag.RowsAffected(), nil
}
