package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"neural_consensus/internal/domain"
)

const DefaultMaxEntries = 200

var ErrOutOfRange = errors.New("history index out of range")

type Store interface {
	LoadHistory(ctx context.Context) ([]domain.HistoryEntry, error)
	SaveHistory(ctx context.Context, entries []domain.HistoryEntry) error
}

// Log is the ordered, newest-first run history. Every mutation rewrites
// the whole list in the backing store.
type Log struct {
	store      Store
	maxEntries int
	logger     *log.Logger

	mu      sync.RWMutex
	entries []domain.HistoryEntry
}

// New creates a log. maxEntries <= 0 keeps every entry.
func New(store Store, maxEntries int, logger *log.Logger) *Log {
	if logger == nil {
		logger = log.Default()
	}
	return &Log{
		store:      store,
		maxEntries: maxEntries,
		logger:     logger,
	}
}

// Load replaces the in-memory list with the persisted one.
func (l *Log) Load(ctx context.Context) ([]domain.HistoryEntry, error) {
	entries, err := l.store.LoadHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	l.mu.Lock()
	l.entries = entries
	out := l.snapshotLocked()
	l.mu.Unlock()
	return out, nil
}

func (l *Log) Append(ctx context.Context, entry domain.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := make([]domain.HistoryEntry, 0, len(l.entries)+1)
	next = append(next, entry)
	next = append(next, l.entries...)
	dropped := 0
	if l.maxEntries > 0 && len(next) > l.maxEntries {
		dropped = len(next) - l.maxEntries
		next = next[:l.maxEntries]
	}
	if err := l.store.SaveHistory(ctx, next); err != nil {
		return fmt.Errorf("persist history: %w", err)
	}
	l.entries = next
	if dropped > 0 {
		l.logger.Printf("history cap reached max=%d dropped=%d", l.maxEntries, dropped)
	}
	return nil
}

func (l *Log) Entries() []domain.HistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

func (l *Log) Get(i int) (domain.HistoryEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.entries) {
		return domain.HistoryEntry{}, fmt.Errorf("%w: %d", ErrOutOfRange, i)
	}
	return l.entries[i], nil
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *Log) snapshotLocked() []domain.HistoryEntry {
	return append([]domain.HistoryEntry(nil), l.entries...)
}

// Export writes the ordered history as "json" or "yaml".
func (l *Log) Export(w io.Writer, format string) error {
	entries := l.Entries()
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			return fmt.Errorf("encode history json: %w", err)
		}
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return fmt.Errorf("encode history yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("flush history yaml: %w", err)
		}
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
	return nil
}
