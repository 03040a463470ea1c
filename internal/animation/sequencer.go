package animation

import (
	"log"
	"sync"
	"time"

	"neural_consensus/internal/domain"
)

const (
	DefaultDwell      = 500 * time.Millisecond
	maxTransitionsLog = 64
)

type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDispatching Phase = "dispatching"
	PhaseAggregating Phase = "aggregating"
)

type Frame struct {
	Phase      Phase
	Generation uint64
	Nodes      []Node
	Edges      []Edge
}

type Transition struct {
	Phase      Phase
	Generation uint64
	At         time.Time
}

type Config struct {
	// Dwell is the minimum time the dispatch phase stays visible.
	Dwell time.Duration
	// AggregateHold returns to idle this long after aggregation starts.
	// Zero keeps the aggregate frame until the run is dismissed.
	AggregateHold time.Duration
	Clock         Clock
	Logger        *log.Logger
	// OnSelectAgent is called when an expert node is clicked.
	OnSelectAgent func(agentID string)
}

// Sequencer drives the two-stage highlight of the agent graph from run
// lifecycle events: dispatch edges light up on pending, aggregate edges
// once both the dwell has elapsed and the run has completed.
type Sequencer struct {
	cfg Config

	emitMu    sync.Mutex
	observers []func(Frame)

	mu           sync.Mutex
	graph        topology
	phase        Phase
	generation   uint64
	dwellElapsed bool
	completed    bool
	dwellTimer   Timer
	holdTimer    Timer
	transitions  []Transition
}

func New(agents []domain.Agent, cfg Config) *Sequencer {
	if cfg.Dwell < 0 {
		cfg.Dwell = 0
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Sequencer{
		cfg:   cfg,
		graph: newTopology(agents),
		phase: PhaseIdle,
	}
}

// Observe registers fn to receive a frame after every phase change.
// Observers may read Frame but must not call HandleRunEvent or Reset.
func (s *Sequencer) Observe(fn func(Frame)) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Sequencer) HandleRunEvent(ev domain.RunEvent) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	changed := false
	switch ev.State {
	case domain.RunStatePending:
		if ev.Generation < s.generation {
			break
		}
		s.startDispatchLocked(ev.Generation)
		changed = true
	case domain.RunStateSucceeded, domain.RunStateFailed:
		if ev.Generation != s.generation || s.phase != PhaseDispatching {
			break
		}
		s.completed = true
		if s.dwellElapsed {
			s.enterAggregatingLocked()
			changed = true
		}
	case domain.RunStateIdle:
		if ev.Generation < s.generation || s.phase == PhaseIdle {
			break
		}
		s.enterIdleLocked()
		changed = true
	}
	frame := s.frameLocked()
	s.mu.Unlock()

	if changed {
		s.notify(frame)
	}
}

// Reset stops pending timers and clears every highlight.
func (s *Sequencer) Reset() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	wasIdle := s.phase == PhaseIdle
	s.enterIdleLocked()
	frame := s.frameLocked()
	s.mu.Unlock()

	if !wasIdle {
		s.notify(frame)
	}
}

func (s *Sequencer) Frame() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameLocked()
}

func (s *Sequencer) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Sequencer) Transitions() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transition(nil), s.transitions...)
}

// ClickNode opens the configuration of an expert node in any phase. The
// User and Synthesizer nodes are not configurable.
func (s *Sequencer) ClickNode(id string) (string, bool) {
	s.mu.Lock()
	n, ok := s.graph.node(id)
	s.mu.Unlock()
	if !ok || n.Kind != NodeKindExpert {
		return "", false
	}
	if s.cfg.OnSelectAgent != nil {
		s.cfg.OnSelectAgent(n.ID)
	}
	return n.ID, true
}

func (s *Sequencer) startDispatchLocked(gen uint64) {
	s.stopTimersLocked()
	s.generation = gen
	s.dwellElapsed = false
	s.completed = false
	s.graph.clear()
	s.graph.highlight(StageDispatch, true)
	s.setPhaseLocked(PhaseDispatching)

	if s.cfg.Dwell == 0 {
		s.dwellElapsed = true
		return
	}
	s.dwellTimer = s.cfg.Clock.AfterFunc(s.cfg.Dwell, func() {
		s.onDwellElapsed(gen)
	})
}

func (s *Sequencer) onDwellElapsed(gen uint64) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if gen != s.generation || s.phase != PhaseDispatching {
		s.mu.Unlock()
		return
	}
	s.dwellTimer = nil
	s.dwellElapsed = true
	changed := false
	if s.completed {
		s.enterAggregatingLocked()
		changed = true
	}
	frame := s.frameLocked()
	s.mu.Unlock()

	if changed {
		s.notify(frame)
	}
}

func (s *Sequencer) enterAggregatingLocked() {
	s.graph.highlight(StageAggregate, true)
	s.setPhaseLocked(PhaseAggregating)
	if s.cfg.AggregateHold <= 0 {
		return
	}
	gen := s.generation
	s.holdTimer = s.cfg.Clock.AfterFunc(s.cfg.AggregateHold, func() {
		s.onHoldElapsed(gen)
	})
}

func (s *Sequencer) onHoldElapsed(gen uint64) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if gen != s.generation || s.phase != PhaseAggregating {
		s.mu.Unlock()
		return
	}
	s.holdTimer = nil
	s.enterIdleLocked()
	frame := s.frameLocked()
	s.mu.Unlock()

	s.notify(frame)
}

func (s *Sequencer) enterIdleLocked() {
	s.stopTimersLocked()
	s.dwellElapsed = false
	s.completed = false
	s.graph.clear()
	if s.phase != PhaseIdle {
		s.setPhaseLocked(PhaseIdle)
	}
}

func (s *Sequencer) stopTimersLocked() {
	if s.dwellTimer != nil {
		s.dwellTimer.Stop()
		s.dwellTimer = nil
	}
	if s.holdTimer != nil {
		s.holdTimer.Stop()
		s.holdTimer = nil
	}
}

func (s *Sequencer) setPhaseLocked(p Phase) {
	s.phase = p
	s.transitions = append(s.transitions, Transition{Phase: p, Generation: s.generation, At: s.cfg.Clock.Now()})
	if len(s.transitions) > maxTransitionsLog {
		s.transitions = s.transitions[len(s.transitions)-maxTransitionsLog:]
	}
	s.cfg.Logger.Printf("graph phase=%s generation=%d", p, s.generation)
}

func (s *Sequencer) frameLocked() Frame {
	return Frame{
		Phase:      s.phase,
		Generation: s.generation,
		Nodes:      append([]Node(nil), s.graph.nodes...),
		Edges:      append([]Edge(nil), s.graph.edges...),
	}
}

func (s *Sequencer) notify(frame Frame) {
	for _, fn := range s.observers {
		fn(frame)
	}
}
