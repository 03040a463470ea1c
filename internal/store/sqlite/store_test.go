package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"neural_consensus/internal/domain"
)

func TestHistoryRoundTripAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "history.db")
	store := openTestStore(t, dbPath)

	entries, err := store.LoadHistory(ctx)
	if err != nil {
		t.Fatalf("load empty history: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty history, got %d", len(entries))
	}

	first := domain.HistoryEntry{
		ID:        uuid.NewString(),
		Query:     "Does X hold?",
		Result:    domain.RunResult{Consensus: "Yes", ExpertResponses: map[string]string{"A": "ok"}},
		Settings:  domain.DefaultSettings(domain.DefaultAgents()),
		Timestamp: time.Now().UTC().Truncate(time.Second),
	}
	second := first
	second.ID = uuid.NewString()
	second.Query = "Second"

	if err := store.SaveHistory(ctx, []domain.HistoryEntry{second, first}); err != nil {
		t.Fatalf("save history: %v", err)
	}
	if err := store.SaveHistory(ctx, []domain.HistoryEntry{second, first}); err != nil {
		t.Fatalf("overwrite history: %v", err)
	}
	store.Close()

	reopened := openTestStore(t, dbPath)
	defer reopened.Close()
	got, err := reopened.LoadHistory(ctx)
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("history len=%d want 2", len(got))
	}
	if got[0].Query != "Second" || got[1].Query != "Does X hold?" {
		t.Fatalf("unexpected order: %q, %q", got[0].Query, got[1].Query)
	}
	if got[1].Result.ExpertResponses["A"] != "ok" {
		t.Fatalf("result not preserved: %+v", got[1].Result)
	}
	if !got[1].Timestamp.Equal(first.Timestamp) {
		t.Fatalf("timestamp=%v want %v", got[1].Timestamp, first.Timestamp)
	}
}

func TestThemeRecord(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, filepath.Join(t.TempDir(), "theme.db"))
	defer store.Close()

	if _, ok, err := store.LoadTheme(ctx); err != nil || ok {
		t.Fatalf("expected unset theme, ok=%t err=%v", ok, err)
	}
	if err := store.SaveTheme(ctx, domain.ThemeDark); err != nil {
		t.Fatalf("save theme: %v", err)
	}
	theme, ok, err := store.LoadTheme(ctx)
	if err != nil || !ok {
		t.Fatalf("load theme ok=%t err=%v", ok, err)
	}
	if theme != domain.ThemeDark {
		t.Fatalf("theme=%q", theme)
	}
}

func TestRunEventLog(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, filepath.Join(t.TempDir(), "events.db"))
	defer store.Close()

	runID := uuid.NewString()
	for _, st := range []domain.RunState{domain.RunStatePending, domain.RunStateFailed} {
		if err := store.LogRunEvent(ctx, domain.RunEventLog{Generation: 1, RunID: runID, State: st, Error: errText(st)}); err != nil {
			t.Fatalf("log run event: %v", err)
		}
	}
	events, err := store.ListRunEvents(ctx, 10)
	if err != nil {
		t.Fatalf("list run events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events len=%d", len(events))
	}
	if events[0].State != domain.RunStateFailed || events[0].Error == "" {
		t.Fatalf("newest event should be the failure: %+v", events[0])
	}
}

func errText(st domain.RunState) string {
	if st == domain.RunStateFailed {
		return "backend transport: connection refused"
	}
	return ""
}

func openTestStore(t *testing.T, dbPath string) *Store {
	t.Helper()
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		t.Fatalf("migrate store: %v", err)
	}
	return store
}
