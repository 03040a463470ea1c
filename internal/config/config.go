package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"neural_consensus/internal/animation"
	"neural_consensus/internal/domain"
	"neural_consensus/internal/history"
)

const (
	DefaultBaseURL   = "http://localhost:8000"
	DefaultTimeoutMS = 120000
	DefaultDBPath    = "data/consensus.db"
)

var ErrInvalidAgents = errors.New("invalid agent roster")

type Config struct {
	Backend   BackendConfig    `toml:"backend"`
	Storage   StorageConfig    `toml:"storage"`
	Animation AnimationConfig  `toml:"animation"`
	History   HistoryConfig    `toml:"history"`
	Agents    []domain.Agent   `toml:"agents"`
	Defaults  SettingsDefaults `toml:"defaults"`
	Path      string           `toml:"-"`
}

type BackendConfig struct {
	BaseURL   string `toml:"base_url"`
	TimeoutMS int    `toml:"timeout_ms"`
}

type StorageConfig struct {
	DBPath string `toml:"db_path"`
}

type AnimationConfig struct {
	DwellMS         int `toml:"dwell_ms"`
	AggregateHoldMS int `toml:"aggregate_hold_ms"`
}

type HistoryConfig struct {
	MaxEntries *int `toml:"max_entries"`
}

// SettingsDefaults seeds the generation settings form. Empty fields keep
// the built-in defaults.
type SettingsDefaults struct {
	OutputFormat   string             `toml:"output_format"`
	Temperature    *float64           `toml:"temperature"`
	Criteria       string             `toml:"criteria"`
	Tone           string             `toml:"tone"`
	Length         string             `toml:"length"`
	TargetAudience string             `toml:"target_audience"`
	ExpertWeights  map[string]float64 `toml:"expert_weights"`
}

func Default() Config {
	return Config{
		Backend:   BackendConfig{BaseURL: DefaultBaseURL, TimeoutMS: DefaultTimeoutMS},
		Storage:   StorageConfig{DBPath: DefaultDBPath},
		Animation: AnimationConfig{DwellMS: int(animation.DefaultDwell / time.Millisecond)},
		Agents:    domain.DefaultAgents(),
	}
}

// Load reads the TOML file at path. An empty path means the default
// location, which may be absent; an explicit path must exist.
func Load(path string) (Config, error) {
	explicit := path != ""
	resolved := path
	if resolved == "" {
		resolved = defaultConfigPath()
	}
	resolved, err := expandHome(resolved)
	if err != nil {
		return Config{}, err
	}
	resolved = filepath.Clean(resolved)

	bytes, err := os.ReadFile(resolved)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			cfg := Default()
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}

	cfg, err := Parse(string(bytes))
	if err != nil {
		return Config{}, err
	}
	cfg.Path = resolved
	return cfg, nil
}

// Parse decodes TOML text over the defaults and validates the result.
func Parse(text string) (Config, error) {
	cfg := Default()
	cfg.Agents = nil
	if _, err := toml.Decode(text, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file: %w", err)
	}
	if len(cfg.Agents) == 0 {
		cfg.Agents = domain.DefaultAgents()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Agents))
	for i, a := range c.Agents {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			return fmt.Errorf("%w: agent %d has no id", ErrInvalidAgents, i)
		}
		if id == animation.NodeUser || id == animation.NodeSynthesizer {
			return fmt.Errorf("%w: id %q is reserved", ErrInvalidAgents, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidAgents, id)
		}
		seen[id] = struct{}{}
	}
	if c.Backend.TimeoutMS < 0 || c.Animation.DwellMS < 0 || c.Animation.AggregateHoldMS < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if c.History.MaxEntries != nil && *c.History.MaxEntries < 0 {
		return fmt.Errorf("history.max_entries must not be negative")
	}
	return nil
}

// RosterAgents fills in a label for agents configured with an id only.
func (c Config) RosterAgents() []domain.Agent {
	out := make([]domain.Agent, 0, len(c.Agents))
	for _, a := range c.Agents {
		a.ID = strings.TrimSpace(a.ID)
		if strings.TrimSpace(a.Label) == "" {
			a.Label = a.ID
		}
		out = append(out, a)
	}
	return out
}

func (c Config) Settings() domain.GenerationSettings {
	agents := c.RosterAgents()
	s := domain.DefaultSettings(agents)
	d := c.Defaults
	if d.OutputFormat != "" {
		s.OutputFormat = d.OutputFormat
	}
	if d.Temperature != nil {
		s.Temperature = *d.Temperature
	}
	if d.Criteria != "" {
		s.Criteria = d.Criteria
	}
	if d.Tone != "" {
		s.Tone = d.Tone
	}
	if d.Length != "" {
		s.Length = d.Length
	}
	if d.TargetAudience != "" {
		s.TargetAudience = d.TargetAudience
	}
	for id, w := range d.ExpertWeights {
		if _, ok := s.ExpertWeights[id]; ok {
			s.ExpertWeights[id] = w
		}
	}
	return s
}

func (c Config) MaxHistory() int {
	if c.History.MaxEntries == nil {
		return history.DefaultMaxEntries
	}
	return *c.History.MaxEntries
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.Backend.TimeoutMS) * time.Millisecond
}

func (c Config) Dwell() time.Duration {
	return time.Duration(c.Animation.DwellMS) * time.Millisecond
}

func (c Config) AggregateHold() time.Duration {
	return time.Duration(c.Animation.AggregateHoldMS) * time.Millisecond
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	trimmed := strings.TrimPrefix(path, "~")
	trimmed = strings.TrimPrefix(trimmed, "\\")
	trimmed = strings.TrimPrefix(trimmed, "/")
	return filepath.Join(home, trimmed), nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".consensus/config.toml"
	}
	return filepath.Join(home, ".consensus", "config.toml")
}
