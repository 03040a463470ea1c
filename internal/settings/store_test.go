package settings

import (
	"errors"
	"testing"

	"neural_consensus/internal/domain"
)

func newTestStore() *Store {
	agents := domain.DefaultAgents()
	return New(agents, domain.DefaultSettings(agents))
}

func TestSetOverrideMergesWithoutReplacing(t *testing.T) {
	s := newTestStore()

	if err := s.SetOverride("creative", OverrideTemperature, "0.9"); err != nil {
		t.Fatalf("set creative temperature: %v", err)
	}
	if err := s.SetOverride("creative", OverrideInstructions, "be bold"); err != nil {
		t.Fatalf("set creative instructions: %v", err)
	}
	if err := s.SetOverride("logical", OverrideTopK, "5"); err != nil {
		t.Fatalf("set logical top_k: %v", err)
	}
	if err := s.SetOverride("creative", OverrideTopK, "12"); err != nil {
		t.Fatalf("set creative top_k: %v", err)
	}

	creative := s.Effective("creative")
	if creative.Temperature != 0.9 {
		t.Fatalf("creative temperature=%v want 0.9", creative.Temperature)
	}
	if creative.Instructions != "be bold" {
		t.Fatalf("creative instructions=%q", creative.Instructions)
	}
	if creative.TopK != 12 {
		t.Fatalf("creative top_k=%d want 12", creative.TopK)
	}

	logical := s.Override("logical")
	if logical.Temperature != nil || logical.Instructions != nil {
		t.Fatalf("logical override gained fields: %+v", logical)
	}
	if logical.TopK == nil || *logical.TopK != 5 {
		t.Fatalf("logical top_k changed: %+v", logical)
	}
	if !s.Override("ethical").IsZero() {
		t.Fatalf("ethical override should be untouched")
	}
}

func TestEffectiveDefaults(t *testing.T) {
	s := newTestStore()
	eff := s.Effective("ethical")
	if eff.Temperature != domain.DefaultAgentTemperature || eff.TopK != domain.DefaultAgentTopK || eff.Instructions != "" {
		t.Fatalf("unexpected defaults: %+v", eff)
	}
	if eff.HasOverride {
		t.Fatalf("expected no override")
	}
}

func TestSetOverrideValidation(t *testing.T) {
	s := newTestStore()
	tests := []struct {
		name    string
		agent   string
		field   string
		value   string
		wantErr error
	}{
		{name: "unknown agent", agent: "Creative Expert", field: OverrideTopK, value: "3", wantErr: ErrUnknownAgent},
		{name: "unknown field", agent: "creative", field: "top_p", value: "3", wantErr: ErrUnknownField},
		{name: "top_k too low", agent: "creative", field: OverrideTopK, value: "0", wantErr: ErrOutOfRange},
		{name: "top_k too high", agent: "creative", field: OverrideTopK, value: "41", wantErr: ErrOutOfRange},
		{name: "temperature too high", agent: "creative", field: OverrideTemperature, value: "1.1", wantErr: ErrOutOfRange},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := s.SetOverride(tc.agent, tc.field, tc.value)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("SetOverride err=%v want %v", err, tc.wantErr)
			}
		})
	}
	if !s.Override("creative").IsZero() {
		t.Fatalf("failed updates must not leave partial overrides")
	}
}

func TestComposeIsIsolatedFromLaterEdits(t *testing.T) {
	s := newTestStore()
	if err := s.SetOverride("logical", OverrideTemperature, "0.2"); err != nil {
		t.Fatalf("set override: %v", err)
	}
	req := s.Compose("Does X hold?", "ctx")

	if err := s.Update(FieldTone, "Formal"); err != nil {
		t.Fatalf("update tone: %v", err)
	}
	if err := s.Update(FieldExpertWeightPrefix+"logical", "2.5"); err != nil {
		t.Fatalf("update weight: %v", err)
	}
	if err := s.SetOverride("logical", OverrideTemperature, "0.8"); err != nil {
		t.Fatalf("set override: %v", err)
	}

	if req.Tone != "Neutral" {
		t.Fatalf("composed tone=%q want Neutral", req.Tone)
	}
	if req.ExpertWeights["logical"] != 1.0 {
		t.Fatalf("composed weight=%v want 1.0", req.ExpertWeights["logical"])
	}
	if got := *req.ExpertConfigs["logical"].Temperature; got != 0.2 {
		t.Fatalf("composed override temperature=%v want 0.2", got)
	}
	if req.Query != "Does X hold?" || req.Context != "ctx" {
		t.Fatalf("unexpected query/context: %q %q", req.Query, req.Context)
	}
	if _, ok := req.ExpertConfigs["creative"]; ok {
		t.Fatalf("agents without override must not appear in expert_configs")
	}
}

func TestUpdateFields(t *testing.T) {
	s := newTestStore()
	if err := s.Update(FieldTemperature, "0.3"); err != nil {
		t.Fatalf("update temperature: %v", err)
	}
	if err := s.Update(FieldTemperature, "abc"); err == nil {
		t.Fatalf("expected parse error")
	}
	if err := s.Update("colour", "red"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected unknown field, got %v", err)
	}
	if err := s.Update(FieldExpertWeightPrefix+"nobody", "1"); !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("expected unknown agent, got %v", err)
	}
	got := s.Settings()
	if got.Temperature != 0.3 {
		t.Fatalf("temperature=%v want 0.3", got.Temperature)
	}
}

func TestRestoreNormalizesWeights(t *testing.T) {
	s := newTestStore()
	snap := domain.DefaultSettings(nil)
	snap.Tone = "Casual"
	snap.ExpertWeights = map[string]float64{"logical": 3, "ghost": 9}
	s.Restore(snap)

	got := s.Settings()
	if got.Tone != "Casual" {
		t.Fatalf("tone=%q", got.Tone)
	}
	if _, ok := got.ExpertWeights["ghost"]; ok {
		t.Fatalf("unknown agent weight should be dropped")
	}
	if got.Weight("logical") != 3 || got.Weight("creative") != 1 {
		t.Fatalf("unexpected weights: %v", got.ExpertWeights)
	}
}
