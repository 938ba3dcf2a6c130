// Package tui renders a live terminal view of a build watch.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"buildwatch-agent/src/provider"
	"buildwatch-agent/src/watch"
)

// Info describes the build being watched, for display only.
type Info struct {
	Provider string
	Workflow string
	Ref      string
	BuildID  string
}

// ProgressMsg carries one poll observation into the view.
type ProgressMsg watch.Progress

// DoneMsg ends the watch view with the final outcome.
type DoneMsg struct {
	Result *provider.JobResult
	Err    error
}

// WatchModel is the bubbletea model for a single watch.
type WatchModel struct {
	info    Info
	spinner spinner.Model
	events  <-chan tea.Msg
	cancel  context.CancelFunc

	status  provider.JobStatus
	attempt int
	elapsed time.Duration
	lastErr error

	result *provider.JobResult
	err    error
	done   bool
	width  int
}

// NewWatchModel creates a watch view fed by the events channel. cancel stops
// the underlying watch when the user quits mid-run.
func NewWatchModel(info Info, events <-chan tea.Msg, cancel context.CancelFunc) WatchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusStyle

	return WatchModel{
		info:    info,
		spinner: sp,
		events:  events,
		cancel:  cancel,
		status:  provider.StatusPending,
		width:   80,
	}
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent())
}

// waitForEvent forwards the next watcher event as a bubbletea message.
func (m WatchModel) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		return <-events
	}
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.done {
				return m, tea.Quit
			}
			// The watch observes the cancelled context and sends DoneMsg.
			m.cancel()
			return m, nil
		}
		return m, nil

	case ProgressMsg:
		m.attempt = msg.Attempt
		m.elapsed = msg.Elapsed
		m.lastErr = msg.Err
		if msg.Err == nil {
			m.status = msg.Status
		}
		return m, m.waitForEvent()

	case DoneMsg:
		m.result = msg.Result
		m.err = msg.Err
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m WatchModel) View() string {
	title := titleStyle.Render(fmt.Sprintf("%s %s @ %s", m.info.Provider, m.info.Workflow, m.info.Ref))

	var lines []string
	if m.done {
		lines = append(lines, title, "", m.finalLine())
	} else {
		lines = append(lines,
			fmt.Sprintf("%s %s", m.spinner.View(), title),
			"",
			fmt.Sprintf("  %s %s", labelStyle.Render("build  "), m.info.BuildID),
			fmt.Sprintf("  %s %s", labelStyle.Render("status "), statusStyle.Render(string(m.status))),
			fmt.Sprintf("  %s %d polls, %s elapsed", labelStyle.Render("watch  "), m.attempt, m.elapsed.Round(time.Second)),
		)
		if m.lastErr != nil {
			lines = append(lines, fmt.Sprintf("  %s %s", labelStyle.Render("retry  "), warnStyle.Render(truncate(m.lastErr.Error(), m.width-10))))
		}
		lines = append(lines, "", labelStyle.Render("  q to stop watching"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...) + "\n"
}

// Result returns the terminal outcome once the view has quit.
func (m WatchModel) Result() (*provider.JobResult, error) {
	return m.result, m.err
}

func (m WatchModel) finalLine() string {
	if m.err != nil {
		return failureStyle.Render("✗ watch failed: ") + truncate(m.err.Error(), m.width-18)
	}

	switch m.result.Status {
	case provider.StatusFinished:
		if m.result.Success {
			line := successStyle.Render("✓ build finished")
			if m.result.URL != "" {
				line += "  " + urlStyle.Render(truncate(m.result.URL, m.width-20))
			}
			return line
		}
		return failureStyle.Render("✗ build finished unsuccessfully")
	case provider.StatusFailed:
		return failureStyle.Render("✗ build failed")
	default:
		return failureStyle.Render(fmt.Sprintf("✗ build ended with status %s", m.result.Status))
	}
}

// truncate shortens s to the given display width, accounting for wide runes.
func truncate(s string, width int) string {
	if width < 4 {
		width = 4
	}
	s = strings.ReplaceAll(s, "\n", " ")
	return runewidth.Truncate(s, width, "…")
}

// RunWatch drives the watch view to completion and returns the outcome.
func RunWatch(info Info, events <-chan tea.Msg, cancel context.CancelFunc) (*provider.JobResult, error) {
	program := tea.NewProgram(NewWatchModel(info, events, cancel))

	final, err := program.Run()
	if err != nil {
		return nil, fmt.Errorf("TUI error: %w", err)
	}

	model, ok := final.(WatchModel)
	if !ok {
		return nil, fmt.Errorf("unexpected final model %T", final)
	}
	return model.Result()
}
