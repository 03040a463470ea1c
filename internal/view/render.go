// Package view turns results, graph frames and history entries into
// tview-tagged text. It has no widget state.
package view

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rivo/tview"

	"neural_consensus/internal/animation"
	"neural_consensus/internal/classify"
	"neural_consensus/internal/domain"
)

const (
	NoConsensus        = "No consensus returned."
	NoVerifiedFacts    = "No verified facts extracted."
	NoUnverifiedClaims = "No unverified claims detected."
	NoAgreements       = "No specific agreements listed."
	NoDisagreements    = "No major disagreements found."
	NoExpertResponses  = "No expert responses."
	NoHistory          = "No recent chats"
	historyLabelRunes  = 25
)

type Palette struct {
	Text    string
	Muted   string
	Accent  string
	Active  string
	Pending string
}

func PaletteFor(theme domain.Theme) Palette {
	if theme == domain.ThemeDark {
		return Palette{Text: "white", Muted: "gray", Accent: "aqua", Active: "fuchsia", Pending: "yellow"}
	}
	return Palette{Text: "black", Muted: "darkgray", Accent: "blue", Active: "purple", Pending: "olive"}
}

func riskColor(tier domain.RiskTier) string {
	switch tier {
	case domain.RiskHigh:
		return "red"
	case domain.RiskMedium:
		return "orange"
	default:
		return "green"
	}
}

func bandColor(b classify.Band) string {
	switch b {
	case classify.BandHigh:
		return "red"
	case classify.BandMedium:
		return "orange"
	default:
		return "green"
	}
}

// RiskBadge renders the hallucination risk line, or "" when the backend sent
// no recognised label.
func RiskBadge(r domain.RunResult) string {
	tier := classify.RiskTier(r.HallucinationRisk)
	if tier == domain.RiskUnknown {
		return ""
	}
	return fmt.Sprintf("[%s::b]Hallucination Risk Assessment: %s[-::-]", riskColor(tier), tier)
}

func Result(r *domain.RunResult, p Palette) string {
	if r == nil {
		return fmt.Sprintf("[%s]No result yet. Type a query and press Ctrl+Enter.[-]", p.Muted)
	}
	var b strings.Builder
	if badge := RiskBadge(*r); badge != "" {
		b.WriteString(badge + "\n\n")
	}

	b.WriteString(fmt.Sprintf("[%s::b]Final Consensus[-::-]\n", p.Accent))
	consensus := strings.TrimSpace(r.Consensus)
	if consensus == "" {
		consensus = NoConsensus
	}
	b.WriteString(tview.Escape(consensus) + "\n\n")

	section(&b, p, "Verified Facts (2+ Sources)", r.VerifiedFacts, NoVerifiedFacts)
	section(&b, p, "Unverified Claims (1 Source)", r.UnverifiedClaims, NoUnverifiedClaims)
	section(&b, p, "Agreements", r.Agreements, NoAgreements)
	section(&b, p, "Contested Points", r.Disagreements, NoDisagreements)

	if strings.TrimSpace(r.Reasoning) != "" {
		b.WriteString(fmt.Sprintf("[%s::b]Synthesizer Logic[-::-]\n", p.Accent))
		b.WriteString(tview.Escape(r.Reasoning) + "\n\n")
	}
	b.WriteString(Metrics(*r, p) + "\n")

	b.WriteString(fmt.Sprintf("[%s::b]Expert Responses[-::-]\n", p.Accent))
	if len(r.ExpertResponses) == 0 {
		b.WriteString(NoExpertResponses + "\n")
	}
	names := make([]string, 0, len(r.ExpertResponses))
	for name := range r.ExpertResponses {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteString(fmt.Sprintf("[%s]%s[-]\n", p.Active, tview.Escape(name)))
		b.WriteString(tview.Escape(r.ExpertResponses[name]) + "\n\n")
	}
	return b.String()
}

func section(b *strings.Builder, p Palette, title string, items []string, placeholder string) {
	b.WriteString(fmt.Sprintf("[%s::b]%s[-::-]\n", p.Accent, title))
	if len(items) == 0 {
		b.WriteString("  - " + placeholder + "\n\n")
		return
	}
	for _, item := range items {
		b.WriteString("  - " + tview.Escape(item) + "\n")
	}
	b.WriteString("\n")
}

// Metrics renders confidence, controversy and the keyword radar scores.
func Metrics(r domain.RunResult, p Palette) string {
	var b strings.Builder
	conf := classify.Confidence(r)
	contr := classify.Controversy(r)
	b.WriteString(fmt.Sprintf("[%s::b]Consensus Metrics[-::-]\n", p.Accent))
	b.WriteString(fmt.Sprintf("Confidence   %s %d%%\n", bar(conf/100, 20), int(math.Round(conf))))
	b.WriteString(fmt.Sprintf("Controversy  [%s]%s[-] %s/10\n", bandColor(classify.ControversyBand(contr)), bar(contr/10, 20), formatScore(contr)))

	scores := classify.Classify(r.Reasoning)
	if !scores.Present {
		return b.String()
	}
	b.WriteString(fmt.Sprintf("Logic (Skeptic)          %s %d\n", bar(float64(scores.Logic)/100, 20), scores.Logic))
	b.WriteString(fmt.Sprintf("Creativity (Visionary)   %s %d\n", bar(float64(scores.Creativity)/100, 20), scores.Creativity))
	b.WriteString(fmt.Sprintf("Safety (Mediator)        %s %d\n", bar(float64(scores.Safety)/100, 20), scores.Safety))
	return b.String()
}

func bar(frac float64, width int) string {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	filled := int(math.Round(frac * float64(width)))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func formatScore(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int(v))
	}
	return fmt.Sprintf("%.1f", v)
}

// Graph draws the agent topology, one edge per line, highlighted edges in
// the active colour.
func Graph(f animation.Frame, p Palette) string {
	labels := make(map[string]string, len(f.Nodes))
	for _, n := range f.Nodes {
		labels[n.ID] = n.Label
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s]phase: %s[-]\n", p.Muted, f.Phase))
	for _, e := range f.Edges {
		color, arrow := p.Muted, "-->"
		if e.Highlighted {
			color, arrow = p.Active, "==>"
			if f.Phase == animation.PhaseDispatching {
				color = p.Pending
			}
		}
		b.WriteString(fmt.Sprintf("[%s]%-16s %s %s[-]\n", color, tview.Escape(labels[e.From]), arrow, tview.Escape(labels[e.To])))
	}
	return b.String()
}

// HistoryLabel is the short list label of an entry.
func HistoryLabel(e domain.HistoryEntry) string {
	q := strings.Join(strings.Fields(e.Query), " ")
	runes := []rune(q)
	if len(runes) > historyLabelRunes {
		runes = runes[:historyLabelRunes]
	}
	return string(runes) + "..."
}

func AgentSummary(agent domain.Agent, eff domain.EffectiveAgentConfig, weight float64) string {
	marker := ""
	if eff.HasOverride {
		marker = " *"
	}
	return fmt.Sprintf("%s%s  temp=%.1f top_k=%d weight=%.1f", agent.Label, marker, eff.Temperature, eff.TopK, weight)
}
