// SPDX-License-Identifier: MIT
// Package tui renders a live level meter in the terminal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"gonum.org/v1/gonum/stat"
)

// historySize is the number of emitted levels kept for the rolling stats.
const historySize = 30

const (
	minBarWidth = 10
	maxBarWidth = 80
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A0A0A0")).
			Width(10)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

var quitKeys = key.NewBinding(
	key.WithKeys("q", "esc", "ctrl+c"),
	key.WithHelp("q", "quit"),
)

// VolumeState is the read side of the volume regulator.
type VolumeState interface {
	Volume() int
	Noise() float64
}

// Options describe what the meter shows.
type Options struct {
	Device string

	// SamplesPerBuffer scales a window average, which is a per-buffer
	// magnitude sum, to a mean sample magnitude for the bar.
	SamplesPerBuffer int

	// Volume is optional.
	Volume VolumeState
}

// levelMsg carries one emitted window average into the event loop.
type levelMsg struct {
	level  float64
	volume int
	noise  float64
}

// Model is the bubbletea model of the meter.
type Model struct {
	opts    Options
	bar     progress.Model
	history []float64
	level   float64
	volume  int
	noise   float64
	windows int
}

// NewModel returns a meter with no levels yet.
func NewModel(opts Options) Model {
	return Model{
		opts: opts,
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithoutPercentage(),
			progress.WithWidth(40),
		),
		history: make([]float64, 0, historySize),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, quitKeys) {
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-labelStyle.GetWidth()-4, minBarWidth), maxBarWidth)

	case levelMsg:
		m.level = msg.level
		m.volume = msg.volume
		m.noise = msg.noise
		m.windows++
		if len(m.history) == historySize {
			copy(m.history, m.history[1:])
			m.history = m.history[:historySize-1]
		}
		m.history = append(m.history, msg.level)
	}
	return m, nil
}

// Magnitude returns the last level as a mean sample magnitude in [0, 1].
func (m Model) Magnitude() float64 {
	if m.opts.SamplesPerBuffer <= 0 {
		return math.Min(math.Max(m.level, 0), 1)
	}
	return math.Min(math.Max(m.level/float64(m.opts.SamplesPerBuffer), 0), 1)
}

// Stats returns the mean and standard deviation of the recent levels.
func (m Model) Stats() (mean, std float64) {
	switch len(m.history) {
	case 0:
		return 0, 0
	case 1:
		return m.history[0], 0
	}
	return stat.MeanStdDev(m.history, nil)
}

// View implements tea.Model.
func (m Model) View() string {
	var sb strings.Builder

	title := "Level Meter"
	if m.opts.Device != "" {
		title += " · " + m.opts.Device
	}
	sb.WriteString(titleStyle.Render(title))
	sb.WriteString("\n\n")

	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(label))
		sb.WriteString(value)
		sb.WriteString("\n")
	}

	row("Level", m.bar.ViewAs(m.Magnitude()))
	if m.windows == 0 {
		row("", helpStyle.Render("waiting for the first window..."))
	} else {
		row("", valueStyle.Render(fmt.Sprintf("%.4f", m.level)))
	}

	mean, std := m.Stats()
	row("Mean", valueStyle.Render(fmt.Sprintf("%.4f ± %.4f", mean, std)))
	row("Windows", valueStyle.Render(fmt.Sprintf("%d", m.windows)))

	if m.opts.Volume != nil {
		row("Noise", valueStyle.Render(fmt.Sprintf("%.1f%%", m.noise)))
		row("Volume", valueStyle.Render(fmt.Sprintf("%d%%", m.volume)))
	}

	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render(quitKeys.Help().Key + ": " + quitKeys.Help().Desc))
	return sb.String()
}

// Meter runs the model and feeds it emitted levels.
type Meter struct {
	program *tea.Program
	volume  VolumeState
}

// NewMeter creates a meter that exits when ctx is cancelled. programOpts
// are passed to tea.NewProgram.
func NewMeter(ctx context.Context, opts Options, programOpts ...tea.ProgramOption) *Meter {
	programOpts = append([]tea.ProgramOption{tea.WithContext(ctx)}, programOpts...)
	return &Meter{
		program: tea.NewProgram(NewModel(opts), programOpts...),
		volume:  opts.Volume,
	}
}

// HandleLevel is a level.Listener. It blocks until the event loop takes the
// value or the program has exited.
func (m *Meter) HandleLevel(_ context.Context, avg float64) {
	msg := levelMsg{level: avg}
	if m.volume != nil {
		msg.volume = m.volume.Volume()
		msg.noise = m.volume.Noise()
	}
	m.program.Send(msg)
}

// Run blocks until the user quits or the context is cancelled.
func (m *Meter) Run() error {
	_, err := m.program.Run()
	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Quit asks the program to exit.
func (m *Meter) Quit() {
	m.program.Quit()
}
