// Package postgres provides a PostgreSQL-backed transcript journal.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//	_ = store.Append(ctx, journal.Entry{SessionID: id, Role: interview.RoleUser, Content: text})
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/mockinterview/pkg/interview"
	"github.com/MrWong99/mockinterview/pkg/journal"
)

const ddlMessages = `
CREATE TABLE IF NOT EXISTS interview_messages (
    id          UUID         PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    seq         INTEGER      NOT NULL,
    role        TEXT         NOT NULL,
    content     TEXT         NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_interview_messages_session_seq
    ON interview_messages (session_id, seq);

CREATE INDEX IF NOT EXISTS idx_interview_messages_fts
    ON interview_messages USING GIN (to_tsvector('english', content));
`

// Store is a [journal.Store] backed by an interview_messages table.
// All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

var _ journal.Store = (*Store)(nil)

// NewStore connects to dsn, verifies the connection, and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("journal postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal postgres: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the journal table and indexes if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlMessages); err != nil {
		return fmt.Errorf("journal postgres: create interview_messages: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Append implements [journal.Store].
func (s *Store) Append(ctx context.Context, e journal.Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	const q = `
		INSERT INTO interview_messages (id, session_id, seq, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.pool.Exec(ctx, q, e.ID, e.SessionID, e.Seq, string(e.Role), e.Content, e.Timestamp); err != nil {
		return fmt.Errorf("journal postgres: append: %w", err)
	}
	return nil
}

// List implements [journal.Store].
func (s *Store) List(ctx context.Context, sessionID string) ([]journal.Entry, error) {
	const q = `
		SELECT id::text, session_id, seq, role, content, created_at
		FROM   interview_messages
		WHERE  session_id = $1
		ORDER  BY seq, created_at`
	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("journal postgres: list: %w", err)
	}
	return collectEntries(rows)
}

// Search implements [journal.Store] with PostgreSQL full-text search.
func (s *Store) Search(ctx context.Context, query string, opts journal.SearchOpts) ([]journal.Entry, error) {
	args := []any{query}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{"to_tsvector('english', content) @@ plainto_tsquery('english', $1)"}
	if opts.SessionID != "" {
		conditions = append(conditions, "session_id = "+next(opts.SessionID))
	}
	if opts.Role != "" {
		conditions = append(conditions, "role = "+next(string(opts.Role)))
	}
	if !opts.After.IsZero() {
		conditions = append(conditions, "created_at > "+next(opts.After))
	}

	q := "SELECT id::text, session_id, seq, role, content, created_at\n" +
		"FROM   interview_messages\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY created_at"
	if opts.Limit > 0 {
		q += "\nLIMIT " + next(opts.Limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal postgres: search: %w", err)
	}
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]journal.Entry, error) {
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (journal.Entry, error) {
		var (
			e    journal.Entry
			role string
		)
		if err := row.Scan(&e.ID, &e.SessionID, &e.Seq, &role, &e.Content, &e.Timestamp); err != nil {
			return journal.Entry{}, err
		}
		e.Role = interview.Role(role)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal postgres: scan rows: %w", err)
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	return entries, nil
}
