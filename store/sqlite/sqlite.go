// Package sqlite implements relay.Session backed by a local SQLite
// file using the pure-Go driver. Zero CGO required.
//
// One Store owns the database file and hands out lightweight Session
// handles keyed by session ID, so any number of conversations share a
// single connection.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/nevindra/relay"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including
// timing, row counts, and key parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store owns a SQLite conversation log. Items are stored as JSON
// envelopes in insert order, one row per item, grouped by session ID.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates all required tables.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: init started")
	tables := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS items (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			item TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	}

	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_items_session ON items(session_id)`)

	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// Session returns a handle for the conversation with the given ID.
// The handle shares the store's connection; nothing is written until
// the first AddItems call.
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
	start := time.Now()
	s.logger.Debug("sqlite: list sessions", "limit", limit)

	query := `SELECT s.id, s.created_at, s.updated_at, COUNT(i.seq)
		FROM sessions s LEFT JOIN items i ON i.session_id = s.id
		GROUP BY s.id ORDER BY s.updated_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("sqlite: list sessions failed", "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var infos []SessionInfo
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.ID, &info.CreatedAt, &info.UpdatedAt, &info.Items); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		infos = append(infos, info)
	}
	s.logger.Debug("sqlite: list sessions ok", "count", len(infos), "duration", time.Since(start))
	return infos, rows.Err()
}

// DB returns the underlying *sql.DB for sharing with other components.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.logger.Debug("sqlite: closing store")
	err := s.db.Close()
	if err != nil {
		s.logger.Error("sqlite: close failed", "error", err)
	}
	return err
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
	start := time.Now()
	st := s.store
	st.logger.Debug("sqlite: get items", "session_id", s.id, "limit", limit)

	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = st.db.QueryContext(ctx,
			`SELECT item FROM items WHERE session_id = ? ORDER BY seq DESC LIMIT ?`,
			s.id, limit,
		)
	} else {
		rows, err = st.db.QueryContext(ctx,
			`SELECT item FROM items WHERE session_id = ? ORDER BY seq`,
			s.id,
		)
	}
	if err != nil {
		st.logger.Error("sqlite: get items failed", "session_id", s.id, "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("get items: %w", err)
	}
	defer rows.Close()

	var items []relay.Item
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it, err := relay.UnmarshalItem([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	if limit > 0 {
		// Reverse to chronological order (oldest first).
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}

	st.logger.Debug("sqlite: get items ok", "session_id", s.id, "count", len(items), "duration", time.Since(start))
	return items, nil
}

// AddItems appends items to the log in a single transaction.
func (s *Session) AddItems(ctx context.Context, items []relay.Item) error {
	if len(items) == 0 {
		return nil
	}
	start := time.Now()
	st := s.store
	st.logger.Debug("sqlite: add items", "session_id", s.id, "count", len(items))

	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().Unix()
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)`,
		s.id, now, now,
	); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, now, s.id,
	); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	for _, it := range items {
		raw, err := relay.MarshalItem(it)
		if err != nil {
			return fmt.Errorf("encode item: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO items (session_id, item, created_at) VALUES (?, ?, ?)`,
			s.id, string(raw), now,
		); err != nil {
			st.logger.Error("sqlite: insert item failed", "session_id", s.id, "error", err)
			return fmt.Errorf("insert item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		st.logger.Error("sqlite: add items commit failed", "session_id", s.id, "error", err)
		return fmt.Errorf("commit tx: %w", err)
	}
	st.logger.Debug("sqlite: add items ok", "session_id", s.id, "count", len(items), "duration", time.Since(start))
	return nil
}

// PopItem removes and returns the most recent item, or nil when the
// log is empty.
func (s *Session) PopItem(ctx context.Context) (relay.Item, error) {
	start := time.Now()
	st := s.store
	st.logger.Debug("sqlite: pop item", "session_id", s.id)

	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var seq int64
	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT seq, item FROM items WHERE session_id = ? ORDER BY seq DESC LIMIT 1`,
		s.id,
	).Scan(&seq, &raw)
	if err == sql.ErrNoRows {
		st.logger.Debug("sqlite: pop item empty", "session_id", s.id, "duration", time.Since(start))
		return nil, nil
	}
	if err != nil {
		st.logger.Error("sqlite: pop item failed", "session_id", s.id, "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("pop item: %w", err)
	}

	it, err := relay.UnmarshalItem([]byte(raw))
	if err != nil {
		// Leave the row in place; the caller can still Clear.
		return nil, fmt.Errorf("decode item: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE seq = ?`, seq); err != nil {
		return nil, fmt.Errorf("delete item: %w", err)
	}
	if err := tx.Commit(); err != nil {
		st.logger.Error("sqlite: pop item commit failed", "session_id", s.id, "error", err)
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	st.logger.Debug("sqlite: pop item ok", "session_id", s.id, "duration", time.Since(start))
	return it, nil
}

// Clear removes all items and the session row.
func (s *Session) Clear(ctx context.Context) error {
	start := time.Now()
	st := s.store
	st.logger.Debug("sqlite: clear session", "session_id", s.id)

	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE session_id = ?`, s.id); err != nil {
		st.logger.Error("sqlite: clear items failed", "session_id", s.id, "error", err)
		return fmt.Errorf("clear items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, s.id); err != nil {
		st.logger.Error("sqlite: clear session failed", "session_id", s.id, "error", err)
		return fmt.Errorf("clear session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		st.logger.Error("sqlite: clear session commit failed", "session_id", s.id, "error", err)
		return err
	}
	st.logger.Debug("sqlite: clear session ok", "session_id", s.id, "duration", time.Since(start))
	return nil
}
