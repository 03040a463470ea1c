package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"neural_consensus/internal/animation"
	"neural_consensus/internal/domain"
	"neural_consensus/internal/history"
	"neural_consensus/internal/messaging/inproc"
	"neural_consensus/internal/prefs"
	"neural_consensus/internal/run"
	"neural_consensus/internal/settings"
)

const (
	auditSubscriber     = "audit"
	animationSubscriber = "animation"
	viewSubscriber      = "view"
)

type Store interface {
	history.Store
	prefs.ThemeStore
	LogRunEvent(ctx context.Context, entry domain.RunEventLog) error
}

type Backend interface {
	Generate(ctx context.Context, req domain.RunRequest) (domain.RunResult, error)
	Status(ctx context.Context) (string, error)
}

type Config struct {
	Agents        []domain.Agent
	Defaults      *domain.GenerationSettings
	MaxHistory    int
	Dwell         time.Duration
	AggregateHold time.Duration
	Clock         animation.Clock
	EventBuffer   int
	// OnSelectAgent is called when an expert node of the graph is clicked.
	OnSelectAgent func(agentID string)
}

func (c Config) withDefaults() Config {
	if len(c.Agents) == 0 {
		c.Agents = domain.DefaultAgents()
	}
	if c.Defaults == nil {
		d := domain.DefaultSettings(c.Agents)
		c.Defaults = &d
	}
	if c.Dwell <= 0 {
		c.Dwell = animation.DefaultDwell
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 64
	}
	return c
}

// View is everything a client needs to draw one screen.
type View struct {
	Run      run.Snapshot
	Frame    animation.Frame
	Theme    domain.Theme
	Settings domain.GenerationSettings
	History  []domain.HistoryEntry
	Notice   string
}

// Service wires the settings, run lifecycle, graph animation, history and
// theme together and is the only place that touches storage and the
// backend.
type Service struct {
	store   Store
	backend Backend
	cfg     Config
	logger  *log.Logger

	bus        *inproc.Bus
	settings   *settings.Store
	history    *history.Log
	theme      *prefs.Theme
	controller *run.Controller
	sequencer  *animation.Sequencer

	wg sync.WaitGroup

	mu        sync.Mutex
	notice    string
	observers []func()
}

// New loads persisted history and theme and builds the component graph.
func New(ctx context.Context, store Store, backend Backend, cfg Config, logger *log.Logger) (*Service, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = log.Default()
	}

	hist := history.New(store, cfg.MaxHistory, logger)
	if _, err := hist.Load(ctx); err != nil {
		return nil, err
	}
	theme, err := prefs.LoadTheme(ctx, store)
	if err != nil {
		return nil, err
	}

	s := &Service{
		store:    store,
		backend:  backend,
		cfg:      cfg,
		logger:   logger,
		bus:      inproc.New(cfg.EventBuffer),
		settings: settings.New(cfg.Agents, *cfg.Defaults),
		history:  hist,
		theme:    theme,
	}
	s.sequencer = animation.New(cfg.Agents, animation.Config{
		Dwell:         cfg.Dwell,
		AggregateHold: cfg.AggregateHold,
		Clock:         cfg.Clock,
		Logger:        logger,
		OnSelectAgent: cfg.OnSelectAgent,
	})
	s.controller = run.New(s.settings, backend, hist, s.bus, run.NotifierFunc(s.notify), run.Config{Logger: logger})

	s.bus.Subscribe(animationSubscriber, s.sequencer.HandleRunEvent)
	s.bus.Subscribe(viewSubscriber, s.onRunEvent)
	s.sequencer.Observe(func(animation.Frame) { s.changed() })
	return s, nil
}

// Start runs the run-event audit loop until ctx is done.
func (s *Service) Start(ctx context.Context) {
	ch := s.bus.Register(auditSubscriber)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.bus.Unregister(auditSubscriber)
		s.auditLoop(ctx, ch)
	}()
}

// Wait blocks until the audit loop and any in-flight backend call returned.
func (s *Service) Wait() {
	s.wg.Wait()
	s.controller.Wait()
}

// Close stops animation timers and waits for the in-flight call.
func (s *Service) Close() {
	s.sequencer.Reset()
	s.controller.Wait()
}

// OnChange registers fn to be called after any state visible in View
// changed. fn runs on the goroutine that made the change and must not block.
func (s *Service) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Service) Agents() []domain.Agent {
	return s.settings.Agents()
}

func (s *Service) AgentLabel(agentID string) string {
	return s.settings.AgentLabel(agentID)
}

func (s *Service) Submit(ctx context.Context, query, runContext string) bool {
	return s.controller.Submit(ctx, query, runContext)
}

func (s *Service) Dismiss() error {
	if err := s.controller.Dismiss(); err != nil {
		return err
	}
	s.setNotice("")
	return nil
}

// SelectHistory restores the entry at index i (0 is newest) without
// contacting the backend.
func (s *Service) SelectHistory(i int) error {
	entry, err := s.history.Get(i)
	if err != nil {
		return err
	}
	if err := s.controller.SelectHistory(entry); err != nil {
		return fmt.Errorf("select history %s: %w", entry.ID, err)
	}
	s.logger.Printf("history restored entry=%s index=%d", entry.ID, i)
	s.changed()
	return nil
}

func (s *Service) ClickNode(id string) (string, bool) {
	return s.sequencer.ClickNode(id)
}

func (s *Service) UpdateSetting(field, value string) error {
	if err := s.settings.Update(field, value); err != nil {
		return fmt.Errorf("update setting %s: %w", field, err)
	}
	s.changed()
	return nil
}

func (s *Service) SetOverride(agentID, field, value string) error {
	if err := s.settings.SetOverride(agentID, field, value); err != nil {
		return fmt.Errorf("set override %s.%s: %w", agentID, field, err)
	}
	s.changed()
	return nil
}

func (s *Service) ClearOverride(agentID string) {
	s.settings.ClearOverride(agentID)
	s.changed()
}

func (s *Service) Override(agentID string) domain.AgentConfig {
	return s.settings.Override(agentID)
}

func (s *Service) Effective(agentID string) domain.EffectiveAgentConfig {
	return s.settings.Effective(agentID)
}

func (s *Service) ToggleTheme(ctx context.Context) (domain.Theme, error) {
	theme, err := s.theme.Toggle(ctx)
	if err != nil {
		return theme, err
	}
	s.changed()
	return theme, nil
}

func (s *Service) CheckBackend(ctx context.Context) (string, error) {
	return s.backend.Status(ctx)
}

func (s *Service) ExportHistory(w io.Writer, format string) error {
	return s.history.Export(w, format)
}

func (s *Service) View() View {
	s.mu.Lock()
	notice := s.notice
	s.mu.Unlock()
	return View{
		Run:      s.controller.Snapshot(),
		Frame:    s.sequencer.Frame(),
		Theme:    s.theme.Current(),
		Settings: s.settings.Settings(),
		History:  s.history.Entries(),
		Notice:   notice,
	}
}

func (s *Service) onRunEvent(ev domain.RunEvent) {
	if ev.State == domain.RunStatePending {
		s.setNotice("")
		return
	}
	s.changed()
}

func (s *Service) notify(msg string) {
	s.setNotice(msg)
}

func (s *Service) setNotice(msg string) {
	s.mu.Lock()
	s.notice = msg
	s.mu.Unlock()
	s.changed()
}

func (s *Service) changed() {
	s.mu.Lock()
	observers := append([]func(){}, s.observers...)
	s.mu.Unlock()
	for _, fn := range observers {
		fn()
	}
}

func (s *Service) auditLoop(ctx context.Context, ch <-chan domain.RunEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.audit(ctx, ev)
		}
	}
}

func (s *Service) audit(ctx context.Context, ev domain.RunEvent) {
	entry := domain.RunEventLog{
		Generation: ev.Generation,
		RunID:      ev.RunID,
		State:      ev.State,
		CreatedAt:  ev.At,
	}
	if ev.Err != nil {
		entry.Error = trimText(ev.Err.Error(), 512)
	}
	if err := s.store.LogRunEvent(ctx, entry); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Printf("run event audit error generation=%d state=%s err=%v", ev.Generation, ev.State, err)
	}
}

func trimText(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
