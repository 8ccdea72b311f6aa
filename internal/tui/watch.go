// Package tui shows a running simulation's status in the terminal.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ionmd/ionmd/internal/sim"
	"github.com/ionmd/ionmd/internal/viz"
)

const barWidth = 40

// Source is the part of the controller the view polls.
type Source interface {
	PollStatus() sim.Status
	Err() error
}

// Progress reports completed and total steps.
type Progress interface {
	Progress() (done, total int)
}

type TickMsg time.Time

// Model polls a Source every interval until it reaches a terminal status.
type Model struct {
	src      Source
	progress Progress
	interval time.Duration
	title    string

	status      sim.Status
	step, total int
	frame       int
	started     time.Time
	err         error
	detached    bool
}

// New builds a watch view. progress may be nil.
func New(src Source, progress Progress, interval time.Duration, title string) Model {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return Model{
		src:      src,
		progress: progress,
		interval: interval,
		title:    title,
		status:   src.PollStatus(),
		started:  time.Now(),
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.detached = true
			return m, tea.Quit
		}
	case TickMsg:
		m.poll()
		m.frame++
		if m.status.Terminal() {
			return m, tea.Quit
		}
		return m, m.tick()
	}
	return m, nil
}

func (m *Model) poll() {
	m.status = m.src.PollStatus()
	if m.progress != nil {
		m.step, m.total = m.progress.Progress()
	}
	if m.status == sim.Errored {
		m.err = m.src.Err()
	}
}

// Status is the last polled status.
func (m Model) Status() sim.Status { return m.status }

// Detached reports whether the user left the view before the run ended.
func (m Model) Detached() bool { return m.detached }

func (m Model) fraction() float64 {
	if m.total <= 0 {
		return 0
	}
	return float64(m.step) / float64(m.total)
}

func (m Model) View() string {
	var s strings.Builder
	s.WriteString(viz.Title.Render(m.title) + "\n\n")

	spinner := " "
	if m.status == sim.Running {
		spinner = viz.AnimatedSpinner(m.frame)
	}
	s.WriteString(spinner + " " + viz.StatusBadge(m.status) + "\n\n")

	if m.total > 0 {
		s.WriteString(viz.ProgressBar(m.fraction(), barWidth))
		s.WriteString(fmt.Sprintf(" %5.1f%%\n", 100*m.fraction()))
		s.WriteString(viz.Metric("steps", fmt.Sprintf("%d/%d", m.step, m.total)) + "\n")
	}
	s.WriteString(viz.Metric("elapsed", time.Since(m.started).Round(100*time.Millisecond).String()) + "\n")
	if m.err != nil {
		s.WriteString("\n" + viz.StatusBadge(sim.Errored) + " " + m.err.Error() + "\n")
	}
	if !m.status.Terminal() {
		s.WriteString("\n" + viz.KeyHint.Render("q: stop watching"))
	}
	return viz.Panel.Render(s.String()) + "\n"
}
