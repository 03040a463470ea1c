package settings

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"neural_consensus/internal/domain"
)

var (
	ErrUnknownAgent = errors.New("unknown agent")
	ErrUnknownField = errors.New("unknown field")
	ErrOutOfRange   = errors.New("value out of range")
)

const (
	FieldOutputFormat   = "output_format"
	FieldTemperature    = "temperature"
	FieldCriteria       = "criteria"
	FieldTone           = "tone"
	FieldLength         = "length"
	FieldTargetAudience = "target_audience"

	// FieldExpertWeightPrefix addresses one entry of expert_weights, e.g.
	// "expert_weight:logical".
	FieldExpertWeightPrefix = "expert_weight:"

	OverrideTemperature  = "temperature"
	OverrideTopK         = "top_k"
	OverrideInstructions = "instructions"
)

var (
	OutputFormats   = []string{"Standard", "Bullet Points", "Essay", "Email", "Technical Report", "ELI5"}
	Tones           = []string{"Neutral", "Formal", "Casual", "Empathetic", "Authoritative", "Humorous"}
	Lengths         = []string{"Standard", "Concise", "Detailed", "Comprehensive"}
	TargetAudiences = []string{"General", "Beginner", "Professional", "Expert", "Child"}
)

// Store holds the global generation settings and the per-agent overrides.
// It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	agents    []domain.Agent
	known     map[string]struct{}
	settings  domain.GenerationSettings
	overrides map[string]domain.AgentConfig
}

func New(agents []domain.Agent, defaults domain.GenerationSettings) *Store {
	known := make(map[string]struct{}, len(agents))
	for _, a := range agents {
		known[a.ID] = struct{}{}
	}
	s := defaults.Clone()
	for _, a := range agents {
		if _, ok := s.ExpertWeights[a.ID]; !ok {
			s.ExpertWeights[a.ID] = domain.DefaultExpertWeight
		}
	}
	return &Store{
		agents:    append([]domain.Agent(nil), agents...),
		known:     known,
		settings:  s,
		overrides: make(map[string]domain.AgentConfig),
	}
}

func (s *Store) Agents() []domain.Agent {
	return append([]domain.Agent(nil), s.agents...)
}

func (s *Store) IsAgent(agentID string) bool {
	_, ok := s.known[agentID]
	return ok
}

func (s *Store) AgentLabel(agentID string) string {
	for _, a := range s.agents {
		if a.ID == agentID {
			return a.Label
		}
	}
	return agentID
}

// Compose builds a fresh request from the current settings and overrides.
// The returned value shares no maps with the store.
func (s *Store) Compose(query, context string) domain.RunRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings := s.settings.Clone()
	configs := make(map[string]domain.AgentConfig, len(s.overrides))
	for id, cfg := range s.overrides {
		if cfg.IsZero() {
			continue
		}
		configs[id] = cfg.Clone()
	}
	return domain.RunRequest{
		Query:          query,
		Context:        context,
		OutputFormat:   settings.OutputFormat,
		Temperature:    settings.Temperature,
		Criteria:       settings.Criteria,
		Tone:           settings.Tone,
		Length:         settings.Length,
		TargetAudience: settings.TargetAudience,
		ExpertWeights:  settings.ExpertWeights,
		ExpertConfigs:  configs,
	}
}

func (s *Store) Settings() domain.GenerationSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Clone()
}

// Restore replaces the settings wholesale with a snapshot. Weights for
// agents outside the roster are dropped.
func (s *Store) Restore(snapshot domain.GenerationSettings) {
	restored := snapshot.Clone()
	for id := range restored.ExpertWeights {
		if !s.IsAgent(id) {
			delete(restored.ExpertWeights, id)
		}
	}
	for _, a := range s.agents {
		if _, ok := restored.ExpertWeights[a.ID]; !ok {
			restored.ExpertWeights[a.ID] = domain.DefaultExpertWeight
		}
	}

	s.mu.Lock()
	s.settings = restored
	s.mu.Unlock()
}

// Update sets one settings field from its textual form value.
func (s *Store) Update(field, value string) error {
	if strings.HasPrefix(field, FieldExpertWeightPrefix) {
		agentID := strings.TrimPrefix(field, FieldExpertWeightPrefix)
		if !s.IsAgent(agentID) {
			return fmt.Errorf("%w: %q", ErrUnknownAgent, agentID)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("parse expert weight: %w", err)
		}
		if w < 0 {
			return fmt.Errorf("%w: expert weight %v", ErrOutOfRange, w)
		}
		s.mu.Lock()
		s.settings.ExpertWeights[agentID] = w
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch field {
	case FieldOutputFormat:
		s.settings.OutputFormat = value
	case FieldCriteria:
		s.settings.Criteria = value
	case FieldTone:
		s.settings.Tone = value
	case FieldLength:
		s.settings.Length = value
	case FieldTargetAudience:
		s.settings.TargetAudience = value
	case FieldTemperature:
		t, err := parseTemperature(value)
		if err != nil {
			return err
		}
		s.settings.Temperature = t
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

// SetOverride merges one field into the override of a single agent. Other
// fields of that agent and all other agents are left as they were.
func (s *Store) SetOverride(agentID, field, value string) error {
	if !s.IsAgent(agentID) {
		return fmt.Errorf("%w: %q", ErrUnknownAgent, agentID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.overrides[agentID].Clone()
	switch field {
	case OverrideTemperature:
		t, err := parseTemperature(value)
		if err != nil {
			return err
		}
		cfg.Temperature = &t
	case OverrideTopK:
		k, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("parse top_k: %w", err)
		}
		if k < domain.MinTopK || k > domain.MaxTopK {
			return fmt.Errorf("%w: top_k %d not in [%d,%d]", ErrOutOfRange, k, domain.MinTopK, domain.MaxTopK)
		}
		cfg.TopK = &k
	case OverrideInstructions:
		v := value
		cfg.Instructions = &v
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	s.overrides[agentID] = cfg
	return nil
}

func (s *Store) ClearOverride(agentID string) {
	s.mu.Lock()
	delete(s.overrides, agentID)
	s.mu.Unlock()
}

func (s *Store) ClearOverrides() {
	s.mu.Lock()
	s.overrides = make(map[string]domain.AgentConfig)
	s.mu.Unlock()
}

func (s *Store) Override(agentID string) domain.AgentConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overrides[agentID].Clone()
}

func (s *Store) Effective(agentID string) domain.EffectiveAgentConfig {
	return s.Override(agentID).Effective()
}

func parseTemperature(value string) (float64, error) {
	t, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("parse temperature: %w", err)
	}
	if t < domain.MinTemperature || t > domain.MaxTemperature {
		return 0, fmt.Errorf("%w: temperature %v not in [%.1f,%.1f]", ErrOutOfRange, t, domain.MinTemperature, domain.MaxTemperature)
	}
	return t, nil
}
