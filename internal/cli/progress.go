package cli

import (
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/identifyhq/identify/internal/pipeline"
)

const pollInterval = 100 * time.Millisecond

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers polling the pipeline snapshot
type tickMsg time.Time

// confirmDoneMsg carries the outcome of the confirm flow
type confirmDoneMsg struct {
	err error
}

// phaseModel is the bubbletea model for the lookup's phase progress.
type phaseModel struct {
	p        *pipeline.Pipeline
	done     <-chan error
	snap     pipeline.Snapshot
	progress progress.Model
	theme    Theme
	finished bool
	quitting bool
	err      error
}

// newPhaseModel creates a new phase model.
func newPhaseModel(p *pipeline.Pipeline, done <-chan error) phaseModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return phaseModel{
		p:        p,
		done:     done,
		snap:     p.Snapshot(),
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial commands (start polling, wait for completion).
func (m phaseModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.waitDone(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m phaseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		m.snap = m.p.Snapshot()
		return m, tickCmd()

	case confirmDoneMsg:
		m.finished = true
		m.err = msg.err
		m.snap = m.p.Snapshot()
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m phaseModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m phaseModel) renderContent() string {
	if m.finished {
		return m.finalView()
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.snap.Phase))
	bar := m.progress.ViewAs(phasePct(m.snap.Phase))
	hint := m.theme.hintStyle().Render("Press Ctrl+C to abort")

	return fmt.Sprintf("%s %s\n%s\n", status, bar, hint)
}

func (m phaseModel) finalView() string {
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Lookup failed: %s\n", m.err))
	}
	return m.theme.completedStyle().Render("✓ Lookup complete\n")
}

// phasePct maps the pipeline phase onto a progress fraction.
func phasePct(phase pipeline.Phase) float64 {
	switch phase {
	case pipeline.PhaseScraping:
		return 0.45
	case pipeline.PhaseAnalyzing:
		return 0.8
	case pipeline.PhaseDisplay, pipeline.PhaseAbandoned:
		return 1.0
	default:
		return 0.05
	}
}

// waitDone blocks on the confirm outcome in a command goroutine.
func (m phaseModel) waitDone() tea.Cmd {
	return func() tea.Msg {
		return confirmDoneMsg{err: <-m.done}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunPhaseProgress runs the interactive progress UI while the confirm
// flow settles on its own goroutine. Returns the confirm error, or an
// abort error when the user quits early.
func RunPhaseProgress(p *pipeline.Pipeline, done <-chan error) error {
	model := newPhaseModel(p, done)
	prog := tea.NewProgram(model)

	finalModel, err := prog.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(phaseModel); ok {
		if m.quitting {
			return fmt.Errorf("lookup aborted")
		}
		if m.err != nil {
			return fmt.Errorf("lookup failed: %w", m.err)
		}
	}

	return nil
}
