package run

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"neural_consensus/internal/domain"
)

// FailureNotice is the single user-facing message for any failed run.
const FailureNotice = "Failed to generate response. Check backend connection."

var (
	ErrEmptyQuery  = errors.New("query is empty")
	ErrRunInFlight = errors.New("a run is already in flight")
)

type Composer interface {
	Compose(query, context string) domain.RunRequest
	Restore(settings domain.GenerationSettings)
}

type Generator interface {
	Generate(ctx context.Context, req domain.RunRequest) (domain.RunResult, error)
}

type Recorder interface {
	Append(ctx context.Context, entry domain.HistoryEntry) error
}

type Publisher interface {
	Publish(ev domain.RunEvent) error
}

type Notifier interface {
	Notify(msg string)
}

type NotifierFunc func(msg string)

func (f NotifierFunc) Notify(msg string) { f(msg) }

type Snapshot struct {
	State      domain.RunState
	Generation uint64
	RunID      string
	Query      string
	Context    string
	Result     *domain.RunResult
	Err        error
}

type Config struct {
	Logger *log.Logger
	Now    func() time.Time
}

// Controller owns the lifecycle of the single in-flight run:
// idle -> pending -> succeeded|failed -> idle. A transition and its
// publication happen under emitMu, so subscribers see transitions in the
// order they occurred. Subscribers must not call Submit, Dismiss or
// SelectHistory from inside a handler.
type Controller struct {
	composer  Composer
	generator Generator
	recorder  Recorder
	publisher Publisher
	notifier  Notifier
	logger    *log.Logger
	now       func() time.Time

	emitMu sync.Mutex

	mu         sync.Mutex
	state      domain.RunState
	generation uint64
	runID      string
	query      string
	context    string
	result     *domain.RunResult
	lastErr    error

	wg sync.WaitGroup
}

func New(composer Composer, generator Generator, recorder Recorder, publisher Publisher, notifier Notifier, cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if notifier == nil {
		notifier = NotifierFunc(func(string) {})
	}
	return &Controller{
		composer:  composer,
		generator: generator,
		recorder:  recorder,
		publisher: publisher,
		notifier:  notifier,
		logger:    cfg.Logger,
		now:       cfg.Now,
		state:     domain.RunStateIdle,
	}
}

// Submit starts a run and reports whether it was accepted. An empty query
// or a run already pending makes it a silent no-op.
func (c *Controller) Submit(ctx context.Context, query, runContext string) bool {
	if err := Validate(query); err != nil {
		return false
	}

	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.state == domain.RunStatePending {
		c.mu.Unlock()
		c.logger.Printf("run submit rejected reason=in_flight generation=%d", c.generation)
		return false
	}
	c.generation++
	gen := c.generation
	runID := uuid.NewString()
	c.state = domain.RunStatePending
	c.runID = runID
	c.query = query
	c.context = runContext
	c.result = nil
	c.lastErr = nil
	c.mu.Unlock()

	req := c.composer.Compose(query, runContext)
	settings := settingsOf(req)
	c.logger.Printf("run submitted generation=%d run_id=%s", gen, runID)
	c.publish(domain.RunEvent{Generation: gen, RunID: runID, State: domain.RunStatePending, At: c.now()})

	callCtx := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		result, err := c.generator.Generate(callCtx, req)
		if err != nil {
			c.fail(gen, runID, err)
			return
		}
		c.succeed(callCtx, gen, runID, query, runContext, settings, result)
	}()
	return true
}

func (c *Controller) succeed(ctx context.Context, gen uint64, runID, query, runContext string, settings domain.GenerationSettings, result domain.RunResult) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	c.state = domain.RunStateSucceeded
	display := result
	c.result = &display
	c.mu.Unlock()

	entry := domain.HistoryEntry{
		ID:        runID,
		Query:     query,
		Context:   runContext,
		Result:    result,
		Settings:  settings,
		Timestamp: c.now().UTC(),
	}
	if err := c.recorder.Append(ctx, entry); err != nil {
		c.logger.Printf("run history append failed generation=%d run_id=%s err=%v", gen, runID, err)
	}
	c.logger.Printf("run succeeded generation=%d run_id=%s experts=%d", gen, runID, len(result.ExpertResponses))
	c.publish(domain.RunEvent{Generation: gen, RunID: runID, State: domain.RunStateSucceeded, Result: &display, At: c.now()})
}

func (c *Controller) fail(gen uint64, runID string, err error) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	c.state = domain.RunStateFailed
	c.result = nil
	c.lastErr = err
	c.mu.Unlock()

	c.logger.Printf("run failed generation=%d run_id=%s err=%v", gen, runID, err)
	c.notifier.Notify(FailureNotice)
	c.publish(domain.RunEvent{Generation: gen, RunID: runID, State: domain.RunStateFailed, Err: err, At: c.now()})
}

// Dismiss returns a finished run to idle and clears the displayed result.
func (c *Controller) Dismiss() error {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	switch {
	case c.state == domain.RunStatePending:
		c.mu.Unlock()
		return ErrRunInFlight
	case c.state == domain.RunStateIdle:
		c.mu.Unlock()
		return nil
	}
	c.state = domain.RunStateIdle
	c.result = nil
	gen, runID := c.generation, c.runID
	c.mu.Unlock()

	c.publish(domain.RunEvent{Generation: gen, RunID: runID, State: domain.RunStateIdle, At: c.now()})
	return nil
}

// SelectHistory loads a past run into the current view without contacting
// the backend. The lifecycle state is left as it is.
func (c *Controller) SelectHistory(entry domain.HistoryEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == domain.RunStatePending {
		return ErrRunInFlight
	}
	c.composer.Restore(entry.Settings)
	c.query = entry.Query
	c.context = entry.Context
	restored := entry.Result
	c.result = &restored
	return nil
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		State:      c.state,
		Generation: c.generation,
		RunID:      c.runID,
		Query:      c.query,
		Context:    c.context,
		Err:        c.lastErr,
	}
	if c.result != nil {
		r := *c.result
		snap.Result = &r
	}
	return snap
}

// Wait blocks until the in-flight backend call, if any, has completed.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func Validate(query string) error {
	if strings.TrimSpace(query) == "" {
		return ErrEmptyQuery
	}
	return nil
}

// settingsOf recovers the settings snapshot a request was composed from.
func settingsOf(req domain.RunRequest) domain.GenerationSettings {
	return domain.GenerationSettings{
		OutputFormat:   req.OutputFormat,
		Temperature:    req.Temperature,
		Criteria:       req.Criteria,
		Tone:           req.Tone,
		Length:         req.Length,
		TargetAudience: req.TargetAudience,
		ExpertWeights:  req.ExpertWeights,
	}.Clone()
}

func (c *Controller) publish(ev domain.RunEvent) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ev); err != nil {
		c.logger.Printf("run event publish error generation=%d state=%s err=%v", ev.Generation, ev.State, err)
	}
}
