package prefs

import (
	"context"
	"fmt"
	"sync"

	"neural_consensus/internal/domain"
)

type ThemeStore interface {
	LoadTheme(ctx context.Context) (domain.Theme, bool, error)
	SaveTheme(ctx context.Context, theme domain.Theme) error
}

// Theme holds the process-wide theme preference. It is read from storage
// once and written back on every change.
type Theme struct {
	store ThemeStore

	mu      sync.Mutex
	current domain.Theme
}

func LoadTheme(ctx context.Context, store ThemeStore) (*Theme, error) {
	theme, ok, err := store.LoadTheme(ctx)
	if err != nil {
		return nil, fmt.Errorf("load theme: %w", err)
	}
	if !ok || (theme != domain.ThemeLight && theme != domain.ThemeDark) {
		theme = domain.ThemeLight
	}
	return &Theme{store: store, current: theme}, nil
}

func (t *Theme) Current() domain.Theme {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Toggle flips light/dark and persists the new value. The in-memory value
// only changes once the write succeeded.
func (t *Theme) Toggle(ctx context.Context) (domain.Theme, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := domain.ThemeDark
	if t.current == domain.ThemeDark {
		next = domain.ThemeLight
	}
	if err := t.store.SaveTheme(ctx, next); err != nil {
		return t.current, fmt.Errorf("save theme: %w", err)
	}
	t.current = next
	return next, nil
}
