// internal/tui/app.go
//
// This is the diagnostics dashboard for a pipeline run.
// It uses bubbletea, which follows The Elm Architecture:
//
// 1. Model: the run being inspected and what is focused
// 2. Update: a function that updates state based on messages
// 3. View: a function that renders state to a string

package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/critic/internal/document"
	"github.com/kingrea/critic/internal/history"
	"github.com/kingrea/critic/internal/pipeline"
)

type boardFocus int

const (
	focusStages boardFocus = iota
	focusPreview
)

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithHistory shows the most recent recorded validations in a log panel.
func WithHistory(h *history.History) AppOption {
	return func(a *App) {
		a.history = h
	}
}

// WithRenderer overrides the markdown renderer used by the preview pane.
func WithRenderer(r Renderer) AppOption {
	return func(a *App) {
		if r != nil {
			a.renderer = r
		}
	}
}

// WithTitle sets the header label, usually the run ID or input file.
func WithTitle(title string) AppOption {
	return func(a *App) {
		a.title = title
	}
}

type stageItem struct {
	result pipeline.Result
}

func (i stageItem) Title() string { return string(i.result.Stage) + " · " + stageLabel(i.result.Stage) }
func (i stageItem) Description() string {
	return summarizeIssues(i.result)
}
func (i stageItem) FilterValue() string { return string(i.result.Stage) }

// App is the dashboard model.
type App struct {
	run      pipeline.Run
	title    string
	history  *history.History
	renderer Renderer

	stages   list.Model
	preview  viewport.Model
	focus    boardFocus
	showPrev bool
	decision document.Decision

	width     int
	height    int
	statusMsg string
	err       error
}

// NewApp creates a dashboard for run.
func NewApp(run pipeline.Run, opts ...AppOption) *App {
	items := make([]list.Item, 0, len(run.Report.Results))
	for _, res := range run.Report.Results {
		items = append(items, stageItem{result: res})
	}
	stages := list.New(items, list.NewDefaultDelegate(), 0, 0)
	stages.Title = "Stages"
	stages.SetShowStatusBar(false)
	stages.SetFilteringEnabled(false)

	app := &App{
		run:      run,
		title:    "pipeline run",
		renderer: GlamourRenderer{},
		stages:   stages,
		preview:  viewport.New(60, 20),
		showPrev: true,
		decision: document.Accept,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	app.statusMsg = app.verdict()
	app.refreshPreview()
	return app
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return nil
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		left, right := a.columns()
		a.stages.SetSize(max(20, left-4), max(5, msg.Height-14))
		a.preview.Width = max(20, right-4)
		a.preview.Height = max(5, msg.Height-8)
		a.refreshPreview()
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit
		case "tab":
			if a.showPrev && a.focus == focusStages {
				a.focus = focusPreview
			} else {
				a.focus = focusStages
			}
			return a, nil
		case "p":
			a.showPrev = !a.showPrev
			if !a.showPrev {
				a.focus = focusStages
			}
			return a, nil
		case "a":
			a.decision = document.Accept
			a.statusMsg = "Previewing accepted changes"
			a.refreshPreview()
			return a, nil
		case "r":
			a.decision = document.Reject
			a.statusMsg = "Previewing rejected changes"
			a.refreshPreview()
			return a, nil
		}
	}

	var cmd tea.Cmd
	if a.focus == focusPreview {
		a.preview, cmd = a.preview.Update(msg)
	} else {
		a.stages, cmd = a.stages.Update(msg)
	}
	return a, cmd
}

// View renders the dashboard.
func (a *App) View() string {
	left, right := a.columns()
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("✎ CRITIC · " + a.title)

	leftContent := lipgloss.JoinVertical(lipgloss.Left,
		a.stages.View(),
		"",
		a.renderChecks(a.selectedResult()),
	)
	leftBox := panelStyle(a.focus == focusStages).
		Width(max(20, left)).
		Render(leftContent)
	body := leftBox
	if a.showPrev && right > 0 {
		head := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")).
			Render(fmt.Sprintf("PREVIEW · %s", a.decision))
		rightBox := panelStyle(a.focus == focusPreview).
			Width(max(20, right)).
			Render(head + "\n" + a.preview.View())
		body = lipgloss.JoinHorizontal(lipgloss.Top, leftBox, rightBox)
	}
	sections := []string{header, body}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(a.statusMsg + "  ·  tab focus · p preview · a/r accept/reject · q quit")
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (a *App) columns() (int, int) {
	width := a.width
	if width <= 0 {
		width = 100
	}
	if !a.showPrev {
		return width - 4, 0
	}
	right := max(32, width/2)
	left := width - right - 4
	if left < 30 {
		return width - 4, 0
	}
	return left, right
}

func (a *App) selectedResult() (pipeline.Result, bool) {
	item, ok := a.stages.SelectedItem().(stageItem)
	if !ok {
		return pipeline.Result{}, false
	}
	return item.result, true
}

func (a *App) renderChecks(res pipeline.Result, ok bool) string {
	if !ok {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Render("No stages validated.")
	}
	var lines []string
	for _, check := range pipeline.ChecksFor(res.Stage) {
		status := a.run.Report.Status(res.Stage, check.ID)
		lines = append(lines, fmt.Sprintf("%s %s", statusBadge(status), check.ID))
	}
	for _, issue := range res.Issues {
		lines = append(lines, issueStyle(issue.Severity).Render("  "+issue.Message))
	}
	if len(lines) == 0 {
		lines = append(lines, "no checks for this stage")
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderLogPanel() string {
	if a.history == nil {
		return ""
	}
	entries, total := a.history.Tail(5)
	if len(entries) == 0 {
		return ""
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		state := "ok"
		if !e.Valid {
			state = fmt.Sprintf("%d failure(s)", len(e.Failures))
		}
		lines = append(lines, fmt.Sprintf("%s  %-6s %s", e.Time.Format("2006-01-02 15:04:05"), e.Source, state))
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("HISTORY · %s · %d runs", filepath.Base(a.history.Path()), total))
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
}

func (a *App) refreshPreview() {
	text, err := RenderPreview(a.run.Markup(), a.decision, a.renderer, a.preview.Width)
	if err != nil {
		a.err = err
		a.statusMsg = "Preview failed: " + err.Error()
		a.preview.SetContent(text)
		return
	}
	a.err = nil
	a.preview.SetContent(text)
}

func (a *App) verdict() string {
	if len(a.run.Report.Results) == 0 {
		return "Nothing validated"
	}
	if a.run.Report.Valid() {
		return "Pipeline valid"
	}
	return "Pipeline invalid"
}

func panelStyle(focused bool) lipgloss.Style {
	border := lipgloss.Color("#444444")
	if focused {
		border = lipgloss.Color("#5B8DEF")
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1)
}

var statusColors = map[pipeline.CheckStatus]lipgloss.Color{
	pipeline.StatusPass:    lipgloss.Color("#4CAF50"),
	pipeline.StatusWarn:    lipgloss.Color("#FFB300"),
	pipeline.StatusFail:    lipgloss.Color("#FF5252"),
	pipeline.StatusSkipped: lipgloss.Color("#888888"),
}

func statusBadge(status pipeline.CheckStatus) string {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(statusColors[status]).
		Width(6).
		Render(strings.ToUpper(string(status)))
}

func issueStyle(sev pipeline.Severity) lipgloss.Style {
	if sev == pipeline.SeverityError {
		return lipgloss.NewStyle().Foreground(statusColors[pipeline.StatusFail])
	}
	return lipgloss.NewStyle().Foreground(statusColors[pipeline.StatusWarn])
}

func stageLabel(stage pipeline.Stage) string {
	switch stage {
	case pipeline.StageApply:
		return "apply edits"
	case pipeline.StageDiff:
		return "generate diff"
	case pipeline.StagePreprocess:
		return "preprocess"
	case pipeline.StageOriginal:
		return "original"
	}
	return "custom"
}

func summarizeIssues(res pipeline.Result) string {
	var errs, warns int
	for _, issue := range res.Issues {
		if issue.Severity == pipeline.SeverityError {
			errs++
		} else {
			warns++
		}
	}
	switch {
	case errs == 0 && warns == 0:
		return "ok"
	case errs == 0:
		return fmt.Sprintf("%d warning(s)", warns)
	case warns == 0:
		return fmt.Sprintf("%d error(s)", errs)
	}
	return fmt.Sprintf("%d error(s), %d warning(s)", errs, warns)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
