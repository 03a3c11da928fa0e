package ui

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tether/internal/engine"
	"tether/internal/transcript"
)

// Deps bundles the collaborators the UI consumes. Everything except Conn is
// required; a nil Recorder disables transcript capture.
type Deps struct {
	Dispatcher  *engine.Dispatcher
	Coordinator *engine.UploadCoordinator
	Conn        Sender
	Recorder    *transcript.Recorder
	Panels      *PanelState
}

func InitialModel(deps Deps) Model {
	ti := textarea.New()
	ti.Placeholder = "Ask the agent anything... (@file to attach)"
	ti.Prompt = "❯ "
	ti.ShowLineNumbers = false
	ti.CharLimit = 0
	ti.MaxHeight = 6
	ti.SetHeight(2)
	ti.SetWidth(80)
	ti.FocusedStyle.Prompt = lipgloss.NewStyle().Foreground(lipgloss.Color("#B39DDB")).Bold(true)
	ti.BlurredStyle.Prompt = lipgloss.NewStyle().Foreground(lipgloss.Color("#B39DDB")).Bold(true)
	ti.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(lipgloss.Color("#545454"))
	ti.BlurredStyle.Placeholder = lipgloss.NewStyle().Foreground(lipgloss.Color("#545454"))
	ti.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ti.BlurredStyle.CursorLine = lipgloss.NewStyle()
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#B39DDB"))

	vp := viewport.New(60, 15)
	pvp := viewport.New(40, 15)

	return Model{
		TextInput:     ti,
		Viewport:      vp,
		PanelViewport: pvp,
		Spinner:       sp,
		Dispatcher:    deps.Dispatcher,
		Coordinator:   deps.Coordinator,
		Conn:          deps.Conn,
		Recorder:      deps.Recorder,
		Panels:        deps.Panels,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.TextInput.Cursor.BlinkCmd(),
		m.Spinner.Tick,
	)
}

// NewProgram builds the program and wires the observer and panel callbacks
// so engine activity wakes the update loop.
func NewProgram(deps Deps) *tea.Program {
	m := InitialModel(deps)
	p := tea.NewProgram(&m, tea.WithAltScreen())
	m.Program = p
	deps.Panels.SetNotify(p.Send)
	deps.Dispatcher.AddObserver(programObserver{p})
	return p
}

type programObserver struct{ p *tea.Program }

func (o programObserver) OnEngineEvent(ev engine.Event) {
	o.p.Send(EngineEventMsg{Event: ev})
}
