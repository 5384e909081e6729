package ui

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/curate/internal/models"
	"github.com/desertthunder/curate/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ProgressView ViewState = iota
	ResultView
	HistoryView
	RunView
)

// recentLines is how many progress messages stay on screen.
const recentLines = 6

// RunStore reads persisted runs.
type RunStore interface {
	List(criteria map[string]any) ([]*models.Run, error)
	Get(id string) (*models.Run, error)
}

// pipelinePhases orders the phases of one run for the overall progress bar.
var pipelinePhases = []tasks.Phase{
	tasks.CheckSession,
	tasks.FetchSuggestions,
	tasks.CreatePlaylist,
	tasks.SearchLibrary,
	tasks.AddFound,
	tasks.AcquireMissing,
	tasks.ScanLibrary,
	tasks.AddDownloaded,
	tasks.Complete,
}

// Model represents the TUI application state.
type Model struct {
	ctx     context.Context
	cancel  context.CancelFunc
	view    ViewState
	engine  tasks.Engine
	runs    RunStore
	request tasks.SynthesisRequest
	width   int
	height  int

	spinner      spinner.Model
	bar          progress.Model
	progressChan chan tasks.ProgressUpdate
	outcome      *synthesisOutcome
	progress     tasks.ProgressUpdate
	recent       []string
	cancelling   bool
	result       *tasks.SynthesisResult

	runList     list.Model
	outcomeList list.Model
	selectedRun *models.Run

	err  error
	help help.Model
	keys keyMap
}

func newModel(ctx context.Context, view ViewState) *Model {
	m := &Model{
		ctx:     ctx,
		view:    view,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.title.UnsetMarginBottom())),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(50)),
		help:    help.New(),
		keys:    newKeyMap(),
	}
	m.runList = m.newList(nil, "Synthesis History", 8)
	m.outcomeList = m.newList(nil, "Suggestions", 12)
	return m
}

// NewSynthesisModel creates a model that runs req through the engine and shows live progress, then the outcomes.
func NewSynthesisModel(ctx context.Context, engine tasks.Engine, req tasks.SynthesisRequest) *Model {
	m := newModel(ctx, ProgressView)
	m.engine = engine
	m.request = req
	return m
}

// NewHistoryModel creates a model for browsing saved runs.
func NewHistoryModel(ctx context.Context, runs RunStore) *Model {
	m := newModel(ctx, HistoryView)
	m.runs = runs
	return m
}

// Result returns the finished synthesis result and error, if any.
func (m *Model) Result() (*tasks.SynthesisResult, error) {
	return m.result, m.err
}

// Init starts the run or fetches the history, depending on the model.
func (m *Model) Init() tea.Cmd {
	if m.view == HistoryView {
		return m.fetchRuns()
	}
	return tea.Batch(m.spinner.Tick, m.startSynthesis())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(10, min(msg.Width-4, 60))
		m.runList.SetSize(msg.Width-4, msg.Height-8)
		m.outcomeList.SetSize(msg.Width-4, msg.Height-12)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ProgressView:
			return m.handleProgressKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		case HistoryView:
			return m.handleHistoryKeys(msg)
		case RunView:
			return m.handleRunKeys(msg)
		}

	case spinner.TickMsg:
		if m.view != ProgressView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgProgressUpdate:
		update := msg.data.(tasks.ProgressUpdate)
		m.progress = update
		if update.Message != "" {
			m.recent = append(m.recent, update.Message)
			if len(m.recent) > recentLines {
				m.recent = slices.Delete(m.recent, 0, len(m.recent)-recentLines)
			}
		}
		return m, m.waitForProgress()

	case MsgSynthesisComplete:
		data := msg.data.(synthesisOutcome)
		m.result = data.result
		m.err = data.err
		m.progressChan = nil
		m.cancelling = false
		m.view = ResultView
		if m.result != nil {
			m.outcomeList = m.newList(outcomeItems(m.result.Run().Outcomes), "Suggestions", 12)
		}
		return m, nil

	case MsgRunsFetched:
		data := msg.data.(runsOutcome)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.runList = m.newList(runItems(data.runs), "Synthesis History", 8)
		return m, nil

	case MsgRunFetched:
		data := msg.data.(runOutcome)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.selectedRun = data.run
		m.outcomeList = m.newList(outcomeItems(data.run.Outcomes), runItem{run: data.run}.Title(), 12)
		m.view = RunView
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case ProgressView:
		return m.renderProgress()
	case ResultView:
		return m.renderResult()
	case HistoryView:
		return m.renderHistory()
	case RunView:
		return m.renderRun()
	default:
		return ""
	}
}

func (m *Model) newList(items []list.Item, title string, chrome int) list.Model {
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.SetShowHelp(false)
	if m.width > 0 {
		l.SetSize(m.width-4, m.height-chrome)
	}
	return l
}

func (m *Model) handleProgressKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "ctrl+c":
		m.stop()
		return m, tea.Quit
	case key.Matches(msg, m.keys.cancel), key.Matches(msg, m.keys.quit):
		m.stop()
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.outcomeList.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		m.view = ProgressView
		m.result = nil
		m.err = nil
		m.recent = nil
		m.progress = tasks.ProgressUpdate{}
		return m, tea.Batch(m.spinner.Tick, m.startSynthesis())
	}
	return m.updateLists(msg)
}

func (m *Model) handleHistoryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.runList.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.runList.SelectedItem().(runItem); ok {
			return m, m.fetchRun(item.run.ID())
		}
		return m, nil
	}
	return m.updateLists(msg)
}

func (m *Model) handleRunKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.outcomeList.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = HistoryView
		m.selectedRun = nil
		return m, nil
	}
	return m.updateLists(msg)
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case HistoryView:
		m.runList, cmd = m.runList.Update(msg)
	case ResultView, RunView:
		m.outcomeList, cmd = m.outcomeList.Update(msg)
	}
	return m, cmd
}

// stop cancels the running synthesis. The engine still reports a result.
func (m *Model) stop() {
	if m.cancel != nil && !m.cancelling {
		m.cancelling = true
		m.cancel()
	}
}

func (m *Model) startSynthesis() tea.Cmd {
	ctx, cancel := context.WithCancel(m.ctx)
	ch := make(chan tasks.ProgressUpdate, 64)
	outcome := &synthesisOutcome{}
	m.cancel = cancel
	m.progressChan = ch
	m.outcome = outcome

	go func() {
		defer cancel()
		outcome.result, outcome.err = m.engine.Run(ctx, m.request, ch)
		close(ch)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	ch, outcome := m.progressChan, m.outcome
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		update, ok := <-ch
		if !ok {
			return synthesisCompleteMsg(outcome.result, outcome.err)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) fetchRuns() tea.Cmd {
	return func() tea.Msg {
		runs, err := m.runs.List(map[string]any{"limit": 200})
		return runsFetchedMsg(runs, err)
	}
}

func (m *Model) fetchRun(id string) tea.Cmd {
	return func() tea.Msg {
		run, err := m.runs.Get(id)
		return runFetchedMsg(run, err)
	}
}

// overallPercent places an update on the whole pipeline.
func overallPercent(u tasks.ProgressUpdate) float64 {
	idx := slices.Index(pipelinePhases, u.Phase)
	if idx < 0 {
		return 0
	}
	frac := 0.0
	switch {
	case u.Done:
		frac = 1
	case u.Total > 0:
		frac = float64(u.Step) / float64(u.Total)
	}
	return min(1, (float64(idx)+frac)/float64(len(pipelinePhases)-1))
}

func countersLine(c tasks.Counters) string {
	return fmt.Sprintf("%d suggestions • %d found • %d downloaded • %d added • %d errors",
		c.Total, c.Found, c.Downloaded, c.Added, c.Errors)
}

func (m *Model) renderProgress() string {
	var b strings.Builder
	b.WriteString(styles.title.Render(fmt.Sprintf("Synthesizing %q", m.request.Seed)))
	b.WriteString("\n")

	phase := m.progress.Phase.Title()
	if m.progress.Total > 0 && !m.progress.Done {
		phase = fmt.Sprintf("%s (%d/%d)", phase, m.progress.Step, m.progress.Total)
	}
	if m.cancelling {
		phase = styles.warn.Render("Cancelling...")
	}
	fmt.Fprintf(&b, "%s %s\n\n%s\n\n", m.spinner.View(), phase, m.bar.ViewAs(overallPercent(m.progress)))
	b.WriteString(countersLine(m.progress.Counters))
	b.WriteString("\n\n")
	for _, line := range m.recent {
		b.WriteString(styles.muted.Render(line))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.cancel, m.keys.quit}))
	return b.String()
}

func (m *Model) renderResult() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Synthesis failed: %v\n\nPress r to retry, q to quit", m.err))
	}
	if m.result == nil {
		return styles.err.Render("No result available\n\nPress r to retry, q to quit")
	}

	r := m.result
	title := styles.ok.Render(fmt.Sprintf("✓ %q is ready", r.PlaylistName))
	if r.PlaylistID == "" {
		title = styles.warn.Render(fmt.Sprintf("No playlist created for %q", r.Seed))
	}

	var errs string
	if len(r.Errors) > 0 {
		errs = "\n" + styles.warn.Render(fmt.Sprintf("%d errors, see the list below", len(r.Errors)))
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.up, m.keys.down, m.keys.restart, m.keys.quit})
	return fmt.Sprintf("%s\n%s%s\n\n%s\n\n%s", title, countersLine(r.Counters()), errs, m.outcomeList.View(), helpView)
}

func (m *Model) renderHistory() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", m.runList.View(), helpView)
}

func (m *Model) renderRun() string {
	r := m.selectedRun
	header := fmt.Sprintf("Seed: %s • Mode: %s • Status: %s\n%s", r.Seed, r.Mode, r.Status, countersLine(tasks.Counters{
		Total:      r.TotalSuggestions,
		Found:      r.FoundCount,
		Downloaded: r.DownloadedCount,
		Added:      r.AddedCount,
		Errors:     r.ErrorCount,
	}))
	if r.ErrorMessage != "" {
		header += "\n" + styles.err.Render(r.ErrorMessage)
	}
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s\n\n%s", header, m.outcomeList.View(), helpView)
}
