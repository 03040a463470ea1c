package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"neural_consensus/internal/domain"

	_ "modernc.org/sqlite"
)

const (
	KeyHistory = "consensus_history"
	KeyTheme   = "theme"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS run_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	generation INTEGER NOT NULL,
	run_id TEXT NOT NULL,
	state TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id, id);
`

// Store keeps whole-value keyed records plus an append-only audit of run
// lifecycle transitions.
type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// GetRecord returns the stored value and false when the key was never set.
func (s *Store) GetRecord(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM records WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get record %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) PutRecord(ctx context.Context, key, value string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx put record: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO records(key, value, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Unix(),
	); err != nil {
		return fmt.Errorf("put record %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put record %s: %w", key, err)
	}
	return nil
}

func (s *Store) LoadHistory(ctx context.Context) ([]domain.HistoryEntry, error) {
	raw, ok, err := s.GetRecord(ctx, KeyHistory)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var entries []domain.HistoryEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("decode history record: %w", err)
	}
	return entries, nil
}

// SaveHistory overwrites the history record with the full ordered list.
func (s *Store) SaveHistory(ctx context.Context, entries []domain.HistoryEntry) error {
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode history record: %w", err)
	}
	return s.PutRecord(ctx, KeyHistory, string(raw))
}

func (s *Store) LoadTheme(ctx context.Context) (domain.Theme, bool, error) {
	raw, ok, err := s.GetRecord(ctx, KeyTheme)
	if err != nil || !ok {
		return "", false, err
	}
	return domain.Theme(raw), true, nil
}

func (s *Store) SaveTheme(ctx context.Context, theme domain.Theme) error {
	return s.PutRecord(ctx, KeyTheme, string(theme))
}

func (s *Store) LogRunEvent(ctx context.Context, entry domain.RunEventLog) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO run_events(generation, run_id, state, error, created_at) VALUES(?, ?, ?, ?, ?)`,
		int64(entry.Generation), entry.RunID, string(entry.State), entry.Error, createdAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("log run event: %w", err)
	}
	return nil
}

func (s *Store) ListRunEvents(ctx context.Context, limit int) ([]domain.RunEventLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, generation, run_id, state, error, created_at
		FROM run_events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list run events: %w", err)
	}
	defer rows.Close()

	result := make([]domain.RunEventLog, 0)
	for rows.Next() {
		var e domain.RunEventLog
		var generation int64
		var state string
		var created int64
		if err := rows.Scan(&e.ID, &generation, &e.RunID, &state, &e.Error, &created); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		e.Generation = uint64(generation)
		e.State = domain.RunState(state)
		e.CreatedAt = time.UnixMilli(created).UTC()
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run events: %w", err)
	}
	return result, nil
}
