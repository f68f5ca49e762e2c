package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/placements/internal/shared"
	"github.com/desertthunder/placements/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	RunningView ViewState = iota
	ResultView
)

// PollInterval is how often the model drains the reporter.
const PollInterval = 100 * time.Millisecond

// RunFunc starts a run that reports through progress and closes it when done.
type RunFunc func(ctx context.Context, progress *tasks.Reporter) (*tasks.RunResult, error)

// Model represents the TUI application state.
type Model struct {
	ctx        context.Context
	cancel     context.CancelFunc
	run        RunFunc
	reporter   *tasks.Reporter
	view       ViewState
	width      int
	height     int
	percent    float64
	status     string
	logs       []string
	cancelling bool
	result     *tasks.RunResult
	err        error
	failure    error
	bar        progress.Model
	spinner    spinner.Model
	logView    viewport.Model
	records    list.Model
	help       help.Model
	keys       keyMap
	done       chan struct{}
	outcome    runFinished
}

// NewModel creates a TUI model that will execute run once started.
func NewModel(ctx context.Context, run RunFunc) *Model {
	ctx, cancel := context.WithCancel(ctx)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.title.MarginBottom(0)

	return &Model{
		ctx:      ctx,
		cancel:   cancel,
		run:      run,
		reporter: tasks.NewReporter(),
		view:     RunningView,
		status:   "starting",
		bar:      progress.New(progress.WithDefaultGradient()),
		spinner:  s,
		logView:  viewport.New(80, 10),
		records:  list.New(nil, list.NewDefaultDelegate(), 80, 20),
		help:     help.New(),
		keys:     newKeyMap(),
		done:     make(chan struct{}),
	}
}

// Init starts the run, the spinner and the reporter poll.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.startRun(), m.spinner.Tick, m.poll())
}

// Result is the run outcome once [ResultView] is reached.
func (m *Model) Result() (*tasks.RunResult, error) {
	return m.result, m.err
}

// Cancel cancels the run context.
func (m *Model) Cancel() {
	m.cancel()
}

// Wait blocks until the run started by [Model.Init] returns, even if the program has already quit.
func (m *Model) Wait() (*tasks.RunResult, error) {
	<-m.done
	return m.outcome.result, m.outcome.err
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case spinner.TickMsg:
		if m.view != RunningView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		switch msg.kind {
		case MsgPoll:
			m.applyEvents(m.reporter.Drain())
			if m.view == RunningView {
				return m, m.poll()
			}
			return m, nil

		case MsgRunFinished:
			done := msg.data.(runFinished)
			m.applyEvents(m.reporter.Drain())
			m.finish(done.result, done.err)
			return m, nil
		}
	}

	return m.updateChildren(msg)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case RunningView:
		return m.renderRunning()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.view {
	case RunningView:
		if key.Matches(msg, m.keys.cancel) {
			if !m.cancelling {
				m.cancelling = true
				m.status = "cancelling, releasing resources"
				m.cancel()
			}
			return m, nil
		}
	case ResultView:
		if key.Matches(msg, m.keys.quit) {
			return m, tea.Quit
		}
	}
	return m.updateChildren(msg)
}

func (m *Model) updateChildren(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case RunningView:
		m.logView, cmd = m.logView.Update(msg)
	case ResultView:
		m.records, cmd = m.records.Update(msg)
	}
	return m, cmd
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.bar.Width = max(width-4, 10)
	m.logView.Width = max(width-4, 10)
	m.logView.Height = max(height-10, 3)
	m.records.SetSize(max(width-4, 10), max(height-10, 5))
}

func (m *Model) applyEvents(events []tasks.Event) {
	if len(events) == 0 {
		return
	}
	for _, e := range events {
		switch e.Kind {
		case tasks.EventProgress:
			m.percent = e.Percent
			if !m.cancelling {
				m.status = e.Message
			}
		case tasks.EventLog:
			line := fmt.Sprintf("%s %s", e.Time.Format(time.TimeOnly), e.Message)
			m.logs = append(m.logs, styles.Level(e.Level).Render(line))
		case tasks.EventDone:
			m.percent = 100
			m.status = "done"
		case tasks.EventFailed:
			m.failure = e.Err
			m.logs = append(m.logs, styles.err.Render(e.Message))
		}
	}
	m.logView.SetContent(strings.Join(m.logs, "\n"))
	m.logView.GotoBottom()
}

func (m *Model) finish(result *tasks.RunResult, err error) {
	m.result = result
	m.err = err
	m.view = ResultView
	if result != nil {
		m.records.SetItems(recordItems(result.Simplified))
		m.records.Title = fmt.Sprintf("%d records", len(result.Simplified))
	}
}

func (m *Model) startRun() tea.Cmd {
	return func() tea.Msg {
		result, err := m.run(m.ctx, m.reporter)
		m.reporter.Close()
		m.outcome = runFinished{result, err}
		close(m.done)
		return runFinishedMsg(result, err)
	}
}

func (m *Model) poll() tea.Cmd {
	return tea.Tick(PollInterval, func(t time.Time) tea.Msg {
		return pollMsg(t)
	})
}

func (m *Model) renderRunning() string {
	title := styles.title.Render("Placement Tracker")
	status := fmt.Sprintf("%s %s", m.spinner.View(), m.status)
	if m.cancelling {
		status = styles.warn.Render(status)
	}
	bar := m.bar.ViewAs(m.percent / 100)
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.up, m.keys.down, m.keys.cancel})

	return fmt.Sprintf("%s\n%s\n%s\n\n%s\n\n%s", title, status, bar, m.logView.View(), helpView)
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.up, m.keys.down, m.keys.quit})

	if m.result == nil {
		err := m.err
		if err == nil {
			err = m.failure
		}
		return styles.err.Render(fmt.Sprintf("Run failed: %v", err)) + "\n\n" + helpView
	}

	s := m.result.Summary
	var title string
	switch {
	case errors.Is(m.err, shared.ErrCancelled):
		title = styles.warn.Bold(true).Render("Run cancelled")
	case m.err != nil:
		title = styles.err.Render(fmt.Sprintf("Run finished with errors: %v", m.err))
	default:
		title = styles.ok.Render("✓ Run complete")
	}

	info := fmt.Sprintf("Source: %s (%s)\nItems: %d  Records: %d  Failed: %d  Dropped: %d",
		s.Reference, s.Source, s.Total, s.Records, s.Failed, s.Dropped)
	if s.FinishedAt != nil {
		info += fmt.Sprintf("\nDuration: %s", s.FinishedAt.Sub(s.StartedAt).Round(time.Second))
	}

	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", title, info, m.records.View(), helpView)
}
