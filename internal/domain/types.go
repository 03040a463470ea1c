package domain

import (
	"time"
)

type RunState string

const (
	RunStateIdle      RunState = "idle"
	RunStatePending   RunState = "pending"
	RunStateSucceeded RunState = "succeeded"
	RunStateFailed    RunState = "failed"
)

func (s RunState) Terminal() bool {
	return s == RunStateSucceeded || s == RunStateFailed
}

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

type RiskTier string

const (
	RiskUnknown RiskTier = ""
	RiskLow     RiskTier = "Low"
	RiskMedium  RiskTier = "Medium"
	RiskHigh    RiskTier = "High"
)

const (
	DefaultAgentTemperature = 0.7
	DefaultAgentTopK        = 40
	DefaultExpertWeight     = 1.0

	MinTemperature = 0.0
	MaxTemperature = 1.0
	MinTopK        = 1
	MaxTopK        = 40
)

// Agent is one expert persona. ID is the stable key used for weights,
// overrides and graph nodes; Label is only displayed.
type Agent struct {
	ID    string `json:"id" toml:"id"`
	Label string `json:"label" toml:"label"`
}

func DefaultAgents() []Agent {
	return []Agent{
		{ID: "creative", Label: "Creative Expert"},
		{ID: "logical", Label: "Logical Expert"},
		{ID: "ethical", Label: "Ethical Expert"},
	}
}

type GenerationSettings struct {
	OutputFormat   string             `json:"output_format" yaml:"output_format"`
	Temperature    float64            `json:"temperature" yaml:"temperature"`
	Criteria       string             `json:"criteria" yaml:"criteria"`
	Tone           string             `json:"tone" yaml:"tone"`
	Length         string             `json:"length" yaml:"length"`
	TargetAudience string             `json:"target_audience" yaml:"target_audience"`
	ExpertWeights  map[string]float64 `json:"expert_weights" yaml:"expert_weights"`
}

func DefaultSettings(agents []Agent) GenerationSettings {
	weights := make(map[string]float64, len(agents))
	for _, a := range agents {
		weights[a.ID] = DefaultExpertWeight
	}
	return GenerationSettings{
		OutputFormat:   "Standard",
		Temperature:    0.7,
		Criteria:       "Relevance, Accuracy, Clarity",
		Tone:           "Neutral",
		Length:         "Standard",
		TargetAudience: "General",
		ExpertWeights:  weights,
	}
}

// Weight returns the weight for agentID, 1.0 when unlisted.
func (s GenerationSettings) Weight(agentID string) float64 {
	if w, ok := s.ExpertWeights[agentID]; ok {
		return w
	}
	return DefaultExpertWeight
}

func (s GenerationSettings) Clone() GenerationSettings {
	out := s
	out.ExpertWeights = make(map[string]float64, len(s.ExpertWeights))
	for k, v := range s.ExpertWeights {
		out.ExpertWeights[k] = v
	}
	return out
}

// AgentConfig is a sparse per-agent override. Nil fields fall back to the
// agent defaults.
type AgentConfig struct {
	Temperature  *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopK         *int     `json:"top_k,omitempty" yaml:"top_k,omitempty"`
	Instructions *string  `json:"instructions,omitempty" yaml:"instructions,omitempty"`
}

func (c AgentConfig) IsZero() bool {
	return c.Temperature == nil && c.TopK == nil && c.Instructions == nil
}

func (c AgentConfig) Clone() AgentConfig {
	var out AgentConfig
	if c.Temperature != nil {
		v := *c.Temperature
		out.Temperature = &v
	}
	if c.TopK != nil {
		v := *c.TopK
		out.TopK = &v
	}
	if c.Instructions != nil {
		v := *c.Instructions
		out.Instructions = &v
	}
	return out
}

type EffectiveAgentConfig struct {
	Temperature  float64
	TopK         int
	Instructions string
	HasOverride  bool
}

func (c AgentConfig) Effective() EffectiveAgentConfig {
	eff := EffectiveAgentConfig{
		Temperature: DefaultAgentTemperature,
		TopK:        DefaultAgentTopK,
		HasOverride: !c.IsZero(),
	}
	if c.Temperature != nil {
		eff.Temperature = *c.Temperature
	}
	if c.TopK != nil {
		eff.TopK = *c.TopK
	}
	if c.Instructions != nil {
		eff.Instructions = *c.Instructions
	}
	return eff
}

type RunRequest struct {
	Query          string                 `json:"query"`
	Context        string                 `json:"context"`
	OutputFormat   string                 `json:"output_format"`
	Temperature    float64                `json:"temperature"`
	Criteria       string                 `json:"criteria"`
	Tone           string                 `json:"tone"`
	Length         string                 `json:"length"`
	TargetAudience string                 `json:"target_audience"`
	ExpertWeights  map[string]float64     `json:"expert_weights"`
	ExpertConfigs  map[string]AgentConfig `json:"expert_configs"`
}

type RunResult struct {
	Consensus         string            `json:"consensus" yaml:"consensus"`
	ExpertResponses   map[string]string `json:"expert_responses" yaml:"expert_responses"`
	VerifiedFacts     []string          `json:"verified_facts,omitempty" yaml:"verified_facts,omitempty"`
	UnverifiedClaims  []string          `json:"unverified_claims,omitempty" yaml:"unverified_claims,omitempty"`
	Agreements        []string          `json:"agreements,omitempty" yaml:"agreements,omitempty"`
	Disagreements     []string          `json:"disagreements,omitempty" yaml:"disagreements,omitempty"`
	HallucinationRisk string            `json:"hallucination_risk,omitempty" yaml:"hallucination_risk,omitempty"`
	ConfidenceScore   *float64          `json:"confidence_score,omitempty" yaml:"confidence_score,omitempty"`
	ControversyScore  *float64          `json:"controversy_score,omitempty" yaml:"controversy_score,omitempty"`
	Reasoning         string            `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
}

type HistoryEntry struct {
	ID        string             `json:"id" yaml:"id"`
	Query     string             `json:"query" yaml:"query"`
	Context   string             `json:"context" yaml:"context"`
	Result    RunResult          `json:"result" yaml:"result"`
	Settings  GenerationSettings `json:"settings" yaml:"settings"`
	Timestamp time.Time          `json:"timestamp" yaml:"timestamp"`
}

// RunEvent is published once per lifecycle transition.
type RunEvent struct {
	Generation uint64     `json:"generation"`
	RunID      string     `json:"run_id"`
	State      RunState   `json:"state"`
	Result     *RunResult `json:"result,omitempty"`
	Err        error      `json:"-"`
	At         time.Time  `json:"at"`
}

type RunEventLog struct {
	ID         int64     `json:"id"`
	Generation uint64    `json:"generation"`
	RunID      string    `json:"run_id"`
	State      RunState  `json:"state"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
