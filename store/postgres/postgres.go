// Package postgres implements relay.Session backed by PostgreSQL.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/relay"
)

// Store owns the conversation log tables. It hands out lightweight
// Session handles keyed by session ID; all handles share the pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates all required tables and indexes.
// Safe to call multiple times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS items (
			seq BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			item JSONB NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS items_session_idx ON items(session_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// Session returns a handle for the conversation with the given ID.
// Nothing is written until the first AddItems call.
func (s *Store) Session(id string) *Session {
	return &Session{store: s, id: id}
}

// SessionInfo describes one stored conversation.
type SessionInfo struct {
	ID        string
	CreatedAt int64
	UpdatedAt int64
	Items     int
}

// ListSessions returns stored conversations ordered by most recently
// updated first. limit <= 0 returns everything.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionInfo, error) {
	query := `SELECT s.id, s.created_at, s.updated_at, COUNT(i.seq)
		FROM sessions s LEFT JOIN items i ON i.session_id = s.id
		GROUP BY s.id ORDER BY s.updated_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sessions: %w", err)
	}
	defer rows.Close()

	var infos []SessionInfo
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.ID, &info.CreatedAt, &info.UpdatedAt, &info.Items); err != nil {
			return nil, fmt.Errorf("postgres: scan session: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Session is one conversation's view of the store.
type Session struct {
	store *Store
	id    string
}

var _ relay.Session = (*Session)(nil)

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// Items returns stored items in chronological order. limit <= 0 returns
// everything; otherwise the latest limit items.
func (s *Session) Items(ctx context.Context, limit int) ([]relay.Item, error) {
	var rows pgx.Rows
	var err error
	if limit > 0 {
		rows, err = s.store.pool.Query(ctx,
			`SELECT item FROM items WHERE session_id = $1 ORDER BY seq DESC LIMIT $2`,
			s.id, limit,
		)
	} else {
		rows, err = s.store.pool.Query(ctx,
			`SELECT item FROM items WHERE session_id = $1 ORDER BY seq`,
			s.id,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get items: %w", err)
	}
	defer rows.Close()

	var items []relay.Item
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres: scan item: %w", err)
		}
		it, err := relay.UnmarshalItem(raw)
		if err != nil {
			return nil, fmt.Errorf("postgres: decode item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate items: %w", err)
	}

	if limit > 0 {
		// Reverse to chronological order (oldest first).
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}
	return items, nil
}

// AddItems appends items to the log in a single transaction.
func (s *Session) AddItems(ctx context.Context, items []relay.Item) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().Unix()
	if _, err := tx.Exec(ctx,
		`INSERT INTO sessions (id, created_at, updated_at) VALUES ($1, $2, $2)
		 ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at`,
		s.id, now,
	); err != nil {
		return fmt.Errorf("postgres: upsert session: %w", err)
	}

	for _, it := range items {
		raw, err := relay.MarshalItem(it)
		if err != nil {
			return fmt.Errorf("postgres: encode item: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO items (session_id, item, created_at) VALUES ($1, $2, $3)`,
			s.id, raw, now,
		); err != nil {
			return fmt.Errorf("postgres: insert item: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// PopItem removes and returns the most recent item, or nil when the
// log is empty.
func (s *Session) PopItem(ctx context.Context) (relay.Item, error) {
	var raw []byte
	err := s.store.pool.QueryRow(ctx,
		`DELETE FROM items WHERE seq = (
			SELECT seq FROM items WHERE session_id = $1 ORDER BY seq DESC LIMIT 1
		) RETURNING item`,
		s.id,
	).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: pop item: %w", err)
	}
	it, err := relay.UnmarshalItem(raw)
	if err != nil {
		return nil, fmt.Errorf("postgres: decode item: %w", err)
	}
	return it, nil
}

// Clear removes all items and the session row.
func (s *Session) Clear(ctx context.Context) error {
	tx, err := s.store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM items WHERE session_id = $1`, s.id); err != nil {
		return fmt.Errorf("postgres: clear items: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, s.id); err != nil {
		return fmt.Errorf("postgres: clear session: %w", err)
	}
	return tx.Commit(ctx)
}
