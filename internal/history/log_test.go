package history

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"neural_consensus/internal/domain"
)

type memStore struct {
	saved   [][]domain.HistoryEntry
	loaded  []domain.HistoryEntry
	failErr error
}

func (m *memStore) LoadHistory(_ context.Context) ([]domain.HistoryEntry, error) {
	return append([]domain.HistoryEntry(nil), m.loaded...), nil
}

func (m *memStore) SaveHistory(_ context.Context, entries []domain.HistoryEntry) error {
	if m.failErr != nil {
		return m.failErr
	}
	m.saved = append(m.saved, append([]domain.HistoryEntry(nil), entries...))
	m.loaded = append([]domain.HistoryEntry(nil), entries...)
	return nil
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestAppendInsertsAtHeadAndPersistsWholeList(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	l := New(store, 0, quietLogger())

	for _, q := range []string{"first", "second", "third"} {
		if err := l.Append(ctx, domain.HistoryEntry{Query: q}); err != nil {
			t.Fatalf("append %s: %v", q, err)
		}
	}
	if len(store.saved) != 3 {
		t.Fatalf("saves=%d want 3", len(store.saved))
	}
	last := store.saved[2]
	if len(last) != 3 || last[0].Query != "third" || last[2].Query != "first" {
		t.Fatalf("unexpected persisted order: %+v", last)
	}
	if last[0].ID == "" || last[0].Timestamp.IsZero() {
		t.Fatalf("append should fill id and timestamp")
	}

	restarted := New(store, 0, quietLogger())
	loaded, err := restarted.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 3 || loaded[0].Query != "third" {
		t.Fatalf("reloaded=%+v", loaded)
	}
}

func TestAppendFailureKeepsPreviousList(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	l := New(store, 0, quietLogger())
	if err := l.Append(ctx, domain.HistoryEntry{Query: "kept"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	store.failErr = errors.New("disk full")
	if err := l.Append(ctx, domain.HistoryEntry{Query: "lost"}); err == nil {
		t.Fatalf("expected persist error")
	}
	if l.Len() != 1 {
		t.Fatalf("len=%d want 1", l.Len())
	}
	got, err := l.Get(0)
	if err != nil || got.Query != "kept" {
		t.Fatalf("get(0)=%+v err=%v", got, err)
	}
}

func TestAppendCapDropsOldest(t *testing.T) {
	ctx := context.Background()
	l := New(&memStore{}, 2, quietLogger())
	for _, q := range []string{"a", "b", "c"} {
		if err := l.Append(ctx, domain.HistoryEntry{Query: q}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	entries := l.Entries()
	if len(entries) != 2 || entries[0].Query != "c" || entries[1].Query != "b" {
		t.Fatalf("entries=%+v", entries)
	}
	if _, err := l.Get(2); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	l := New(&memStore{}, 0, quietLogger())
	if err := l.Append(ctx, domain.HistoryEntry{Query: "Does X hold?", Result: domain.RunResult{Consensus: "Yes"}}); err != nil {
		t.Fatalf("append: %v", err)
	}

	var jsonOut bytes.Buffer
	if err := l.Export(&jsonOut, "json"); err != nil {
		t.Fatalf("export json: %v", err)
	}
	if !strings.Contains(jsonOut.String(), `"query": "Does X hold?"`) {
		t.Fatalf("json export missing query: %s", jsonOut.String())
	}

	var yamlOut bytes.Buffer
	if err := l.Export(&yamlOut, "yaml"); err != nil {
		t.Fatalf("export yaml: %v", err)
	}
	var decoded []map[string]any
	if err := yaml.Unmarshal(yamlOut.Bytes(), &decoded); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if len(decoded) != 1 || decoded[0]["query"] != "Does X hold?" {
		t.Fatalf("yaml export=%v", decoded)
	}

	if err := l.Export(io.Discard, "csv"); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}
