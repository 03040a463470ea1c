package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"neural_consensus/internal/animation"
	"neural_consensus/internal/domain"
	"neural_consensus/internal/orchestrator"
	"neural_consensus/internal/run"
	"neural_consensus/internal/settings"
	"neural_consensus/internal/view"
)

const (
	mainPage     = "main"
	overridePage = "override"

	labelOutputFormat = "Output format"
	labelTemperature  = "Temperature"
	labelCriteria     = "Criteria"
	labelTone         = "Tone"
	labelLength       = "Length"
	labelAudience     = "Audience"
	labelTopK         = "Top-K"
	labelInstructions = "Instructions"
)

// ui owns every widget. All fields except app are touched only from the
// tview event loop.
type ui struct {
	app   *tview.Application
	pages *tview.Pages
	svc   *orchestrator.Service
	ctx   context.Context

	queryInput   *tview.InputField
	contextArea  *tview.TextArea
	settingsForm *tview.Form
	nodeList     *tview.List
	graphView    *tview.TextView
	resultView   *tview.TextView
	historyList  *tview.List
	statusView   *tview.TextView
	overrideForm *tview.Form

	syncing    bool
	nodeIDs    []string
	historyKey string
	status     string
}

func newUI() *ui {
	u := &ui{app: tview.NewApplication()}

	u.queryInput = tview.NewInputField().
		SetLabel("Query: ").
		SetPlaceholder("Ask the experts something")
	u.queryInput.SetBorder(true).SetTitle("Query (Ctrl+Enter or Ctrl+J submit)")

	u.contextArea = tview.NewTextArea().
		SetPlaceholder("Optional context, sources or constraints")
	u.contextArea.SetBorder(true).SetTitle("Context")

	u.settingsForm = tview.NewForm()
	u.settingsForm.SetBorder(true).SetTitle("Generation settings")

	u.nodeList = tview.NewList().ShowSecondaryText(true)
	u.nodeList.SetBorder(true).SetTitle("Agents (Enter configure)")

	u.graphView = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	u.graphView.SetBorder(true).SetTitle("Agent graph")

	u.resultView = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetWordWrap(true)
	u.resultView.SetBorder(true).SetTitle("Result")

	u.historyList = tview.NewList().ShowSecondaryText(true)
	u.historyList.SetBorder(true).SetTitle("History (1-9 restore)")

	u.statusView = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	u.statusView.SetBorder(true).SetTitle("Status")

	u.overrideForm = tview.NewForm()
	u.overrideForm.SetBorder(true)

	graphRow := tview.NewFlex().
		AddItem(u.nodeList, 0, 1, false).
		AddItem(u.graphView, 0, 2, false)
	center := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(u.queryInput, 3, 0, true).
		AddItem(u.contextArea, 5, 0, false).
		AddItem(graphRow, 9, 0, false).
		AddItem(u.resultView, 0, 1, false)
	body := tview.NewFlex().
		AddItem(u.settingsForm, 44, 0, false).
		AddItem(center, 0, 3, true).
		AddItem(u.historyList, 34, 0, false)
	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(u.statusView, 3, 0, false)

	u.pages = tview.NewPages().
		AddPage(mainPage, root, true, true).
		AddPage(overridePage, centered(u.overrideForm, 72, 13), true, false)
	return u
}

func (u *ui) bind(ctx context.Context, svc *orchestrator.Service) {
	u.ctx = ctx
	u.svc = svc

	u.buildSettingsForm(svc.View().Settings)
	u.buildNodeList(svc.View().Frame)

	u.nodeList.SetSelectedFunc(func(i int, _ string, _ string, _ rune) {
		if i < 0 || i >= len(u.nodeIDs) {
			return
		}
		if _, ok := u.svc.ClickNode(u.nodeIDs[i]); !ok {
			u.setStatus("Only expert nodes can be configured.")
		}
	})
	u.historyList.SetSelectedFunc(func(i int, _ string, _ string, _ rune) {
		u.restore(i)
	})
	u.queryInput.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			u.app.SetFocus(u.contextArea)
		}
	})
	u.app.SetInputCapture(u.handleKey)

	svc.OnChange(func() {
		go u.app.QueueUpdateDraw(u.render)
	})
	u.render()
}

func (u *ui) run() error {
	return u.app.SetRoot(u.pages, true).EnableMouse(true).SetFocus(u.queryInput).Run()
}

func (u *ui) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if name, _ := u.pages.GetFrontPage(); name == overridePage {
		if event.Key() == tcell.KeyEscape {
			u.closeOverride()
			return nil
		}
		return event
	}

	switch event.Key() {
	case tcell.KeyF10:
		u.app.Stop()
		return nil
	case tcell.KeyF2:
		u.toggleTheme()
		return nil
	case tcell.KeyCtrlJ:
		u.submit()
		return nil
	case tcell.KeyEnter:
		if event.Modifiers()&tcell.ModCtrl != 0 {
			u.submit()
			return nil
		}
	case tcell.KeyEscape:
		u.dismiss()
		return nil
	case tcell.KeyCtrlL:
		u.app.SetFocus(u.queryInput)
		return nil
	case tcell.KeyCtrlO:
		u.app.SetFocus(u.contextArea)
		return nil
	case tcell.KeyCtrlS:
		u.app.SetFocus(u.settingsForm)
		return nil
	case tcell.KeyCtrlG:
		u.app.SetFocus(u.nodeList)
		return nil
	case tcell.KeyCtrlT:
		u.app.SetFocus(u.historyList)
		return nil
	}
	return event
}

func (u *ui) submit() {
	query := u.queryInput.GetText()
	if u.svc.Submit(u.ctx, query, u.contextArea.GetText()) {
		u.setStatus("Run submitted.")
		return
	}
	if run.Validate(query) != nil {
		u.setStatus("Enter a query first.")
		return
	}
	u.setStatus("A run is already in flight.")
}

func (u *ui) dismiss() {
	if err := u.svc.Dismiss(); err != nil {
		if errors.Is(err, run.ErrRunInFlight) {
			u.setStatus("A run is in flight; wait for it to finish.")
			return
		}
		u.setStatus("Dismiss failed: " + err.Error())
	}
}

func (u *ui) toggleTheme() {
	theme, err := u.svc.ToggleTheme(u.ctx)
	if err != nil {
		u.setStatus("Theme not saved: " + err.Error())
		return
	}
	u.setStatus(fmt.Sprintf("Theme: %s", theme))
}

func (u *ui) restore(i int) {
	if err := u.svc.SelectHistory(i); err != nil {
		if errors.Is(err, run.ErrRunInFlight) {
			u.setStatus("A run is in flight; history is read-only until it finishes.")
			return
		}
		u.setStatus("Restore failed: " + err.Error())
		return
	}
	v := u.svc.View()
	u.queryInput.SetText(v.Run.Query)
	u.contextArea.SetText(v.Run.Context, false)
	u.syncSettings(v.Settings)
	u.setStatus("Restored from history.")
}

func (u *ui) buildSettingsForm(s domain.GenerationSettings) {
	u.syncing = true
	defer func() { u.syncing = false }()

	temps := temperatureOptions()
	f := u.settingsForm
	f.Clear(true)
	f.AddDropDown(labelOutputFormat, settings.OutputFormats, indexOf(settings.OutputFormats, s.OutputFormat), u.onOption(settings.FieldOutputFormat))
	f.AddDropDown(labelTemperature, temps, indexOf(temps, formatTemperature(s.Temperature)), u.onOption(settings.FieldTemperature))
	f.AddInputField(labelCriteria, s.Criteria, 28, nil, u.onText(settings.FieldCriteria))
	f.AddDropDown(labelTone, settings.Tones, indexOf(settings.Tones, s.Tone), u.onOption(settings.FieldTone))
	f.AddDropDown(labelLength, settings.Lengths, indexOf(settings.Lengths, s.Length), u.onOption(settings.FieldLength))
	f.AddDropDown(labelAudience, settings.TargetAudiences, indexOf(settings.TargetAudiences, s.TargetAudience), u.onOption(settings.FieldTargetAudience))
	for _, a := range u.svc.Agents() {
		f.AddInputField(weightLabel(a), strconv.FormatFloat(s.Weight(a.ID), 'f', -1, 64), 6, tview.InputFieldFloat, u.onText(settings.FieldExpertWeightPrefix+a.ID))
	}
	f.AddButton("Submit", u.submit)
}

func (u *ui) syncSettings(s domain.GenerationSettings) {
	u.syncing = true
	defer func() { u.syncing = false }()

	f := u.settingsForm
	setDropDown(f, labelOutputFormat, settings.OutputFormats, s.OutputFormat)
	setDropDown(f, labelTemperature, temperatureOptions(), formatTemperature(s.Temperature))
	setDropDown(f, labelTone, settings.Tones, s.Tone)
	setDropDown(f, labelLength, settings.Lengths, s.Length)
	setDropDown(f, labelAudience, settings.TargetAudiences, s.TargetAudience)
	if in, ok := f.GetFormItemByLabel(labelCriteria).(*tview.InputField); ok {
		in.SetText(s.Criteria)
	}
	for _, a := range u.svc.Agents() {
		if in, ok := f.GetFormItemByLabel(weightLabel(a)).(*tview.InputField); ok {
			in.SetText(strconv.FormatFloat(s.Weight(a.ID), 'f', -1, 64))
		}
	}
}

func (u *ui) onOption(field string) func(string, int) {
	return func(option string, _ int) {
		if u.syncing {
			return
		}
		if err := u.svc.UpdateSetting(field, option); err != nil {
			u.setStatus(err.Error())
		}
	}
}

func (u *ui) onText(field string) func(string) {
	return func(text string) {
		if u.syncing || strings.TrimSpace(text) == "" && strings.HasPrefix(field, settings.FieldExpertWeightPrefix) {
			return
		}
		if err := u.svc.UpdateSetting(field, text); err != nil {
			u.setStatus(err.Error())
		}
	}
}

func (u *ui) buildNodeList(frame animation.Frame) {
	u.nodeList.Clear()
	u.nodeIDs = u.nodeIDs[:0]
	for _, n := range frame.Nodes {
		u.nodeList.AddItem(n.Label, string(n.Kind), 0, nil)
		u.nodeIDs = append(u.nodeIDs, n.ID)
	}
}

// openOverride shows the per-agent configuration form. It is called from
// the event loop when an expert node is selected.
func (u *ui) openOverride(agentID string) {
	eff := u.svc.Effective(agentID)
	temps := temperatureOptions()
	topKs := topKOptions()

	f := u.overrideForm
	f.Clear(true)
	f.SetTitle(fmt.Sprintf("Configure %s (Esc close)", u.svc.AgentLabel(agentID)))
	f.AddDropDown(labelTemperature, temps, indexOf(temps, formatTemperature(eff.Temperature)), nil)
	f.AddDropDown(labelTopK, topKs, indexOf(topKs, strconv.Itoa(eff.TopK)), nil)
	f.AddInputField(labelInstructions, eff.Instructions, 48, nil, nil)
	f.AddButton("Save", func() {
		u.saveOverride(agentID, eff)
	})
	f.AddButton("Reset", func() {
		u.svc.ClearOverride(agentID)
		u.closeOverride()
		u.setStatus(fmt.Sprintf("%s reset to defaults.", u.svc.AgentLabel(agentID)))
	})
	f.AddButton("Cancel", u.closeOverride)
	u.pages.ShowPage(overridePage)
	u.app.SetFocus(f)
}

// saveOverride writes only the fields that differ from the effective
// configuration the form was opened with.
func (u *ui) saveOverride(agentID string, before domain.EffectiveAgentConfig) {
	f := u.overrideForm
	var errs []error
	if dd, ok := f.GetFormItemByLabel(labelTemperature).(*tview.DropDown); ok {
		if _, v := dd.GetCurrentOption(); v != "" && v != formatTemperature(before.Temperature) {
			errs = append(errs, u.svc.SetOverride(agentID, settings.OverrideTemperature, v))
		}
	}
	if dd, ok := f.GetFormItemByLabel(labelTopK).(*tview.DropDown); ok {
		if _, v := dd.GetCurrentOption(); v != "" && v != strconv.Itoa(before.TopK) {
			errs = append(errs, u.svc.SetOverride(agentID, settings.OverrideTopK, v))
		}
	}
	if in, ok := f.GetFormItemByLabel(labelInstructions).(*tview.InputField); ok {
		if v := in.GetText(); v != before.Instructions {
			errs = append(errs, u.svc.SetOverride(agentID, settings.OverrideInstructions, v))
		}
	}
	if err := errors.Join(errs...); err != nil {
		u.setStatus(err.Error())
		return
	}
	u.closeOverride()
	u.setStatus(fmt.Sprintf("%s configuration saved.", u.svc.AgentLabel(agentID)))
}

func (u *ui) closeOverride() {
	u.pages.HidePage(overridePage)
	u.app.SetFocus(u.nodeList)
}

func (u *ui) setStatus(msg string) {
	u.status = msg
	u.renderStatus(u.svc.View())
}

func (u *ui) render() {
	v := u.svc.View()
	p := view.PaletteFor(v.Theme)
	u.applyTheme(v.Theme)

	u.resultView.SetText(view.Result(v.Run.Result, p))
	u.graphView.SetText(view.Graph(v.Frame, p))
	for i, id := range u.nodeIDs {
		main, _ := u.nodeList.GetItemText(i)
		secondary := ""
		for _, a := range u.svc.Agents() {
			if a.ID == id {
				secondary = view.AgentSummary(a, u.svc.Effective(id), v.Settings.Weight(id))
			}
		}
		u.nodeList.SetItemText(i, main, secondary)
	}
	u.renderHistory(v.History)
	u.renderStatus(v)
}

func (u *ui) renderHistory(entries []domain.HistoryEntry) {
	key := strconv.Itoa(len(entries))
	if len(entries) > 0 {
		key += ":" + entries[0].ID
	}
	if key == u.historyKey {
		return
	}
	u.historyKey = key
	u.historyList.Clear()
	if len(entries) == 0 {
		u.historyList.AddItem(view.NoHistory, "", 0, nil)
		return
	}
	for i, e := range entries {
		var shortcut rune
		if i < 9 {
			shortcut = rune('1' + i)
		}
		u.historyList.AddItem(view.HistoryLabel(e), e.Timestamp.Local().Format("2006-01-02 15:04"), shortcut, nil)
	}
}

func (u *ui) renderStatus(v orchestrator.View) {
	var b strings.Builder
	fmt.Fprintf(&b, "state=%s theme=%s", v.Run.State, v.Theme)
	if v.Notice != "" {
		fmt.Fprintf(&b, " | [red]%s[-]", tview.Escape(v.Notice))
	}
	if u.status != "" {
		fmt.Fprintf(&b, " | %s", u.status)
	}
	b.WriteString(" | F2 theme, Esc dismiss, F10 quit")
	u.statusView.SetText(b.String())
}

func (u *ui) applyTheme(theme domain.Theme) {
	bg, fg := tcell.ColorWhite, tcell.ColorBlack
	field := tcell.ColorLightGray
	if theme == domain.ThemeDark {
		bg, fg = tcell.ColorBlack, tcell.ColorWhite
		field = tcell.ColorDarkSlateGray
	}
	boxes := []*tview.Box{
		u.queryInput.Box, u.contextArea.Box, u.settingsForm.Box, u.nodeList.Box,
		u.graphView.Box, u.resultView.Box, u.historyList.Box, u.statusView.Box, u.overrideForm.Box,
	}
	for _, b := range boxes {
		b.SetBackgroundColor(bg)
		b.SetBorderColor(fg)
		b.SetTitleColor(fg)
	}
	u.queryInput.SetLabelColor(fg).SetFieldBackgroundColor(field).SetFieldTextColor(fg)
	u.contextArea.SetTextStyle(tcell.StyleDefault.Background(field).Foreground(fg))
	for _, f := range []*tview.Form{u.settingsForm, u.overrideForm} {
		f.SetLabelColor(fg).SetFieldBackgroundColor(field).SetFieldTextColor(fg)
	}
	for _, l := range []*tview.List{u.nodeList, u.historyList} {
		l.SetMainTextColor(fg)
	}
	for _, t := range []*tview.TextView{u.graphView, u.resultView, u.statusView} {
		t.SetTextColor(fg)
	}
}

func centered(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 1, true).
			AddItem(nil, 0, 1, false), width, 1, true).
		AddItem(nil, 0, 1, false)
}

func setDropDown(f *tview.Form, label string, options []string, value string) {
	if dd, ok := f.GetFormItemByLabel(label).(*tview.DropDown); ok {
		dd.SetCurrentOption(indexOf(options, value))
	}
}

func weightLabel(a domain.Agent) string {
	return a.Label + " weight"
}

func temperatureOptions() []string {
	out := make([]string, 0, 11)
	for i := 0; i <= 10; i++ {
		out = append(out, formatTemperature(float64(i)/10))
	}
	return out
}

func topKOptions() []string {
	out := make([]string, 0, domain.MaxTopK-domain.MinTopK+1)
	for k := domain.MinTopK; k <= domain.MaxTopK; k++ {
		out = append(out, strconv.Itoa(k))
	}
	return out
}

func formatTemperature(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func indexOf(options []string, value string) int {
	for i, o := range options {
		if o == value {
			return i
		}
	}
	return -1
}
