package ui

import (
	"regexp"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"tether/internal/engine"
	"tether/internal/protocol"
	"tether/internal/transcript"
	"tether/internal/transport"
)

const (
	MaxChatWidth       = 100
	CompactWidthThresh = 110 // Width below which the side panel is hidden

	PanelWidthFrac  = 0.45 // Fraction of the window given to the side panel
	MaxTerminalKeep = 500  // Terminal transcript lines retained

	FileSuggestLimit = 10
)

type ErrMsg error

// EngineEventMsg carries an engine notification into the update loop.
type EngineEventMsg struct{ Event engine.Event }

// PanelContentMsg signals that the sink received new panel content.
type PanelContentMsg struct{}

// ConnClosedMsg is delivered when the server connection ends.
type ConnClosedMsg struct{ Err error }

// SendFailedMsg reports a failed outbound write.
type SendFailedMsg struct{ Err error }

var MentionRE = regexp.MustCompile(`@("([^"]+)"|([^\s]+))`)

// Sender is the outbound half of the connection the UI needs.
type Sender interface {
	Send(v any) error
}

var _ Sender = (*transport.Conn)(nil)

type Model struct {
	Viewport      viewport.Model
	PanelViewport viewport.Model
	TextInput     textarea.Model
	Spinner       spinner.Model
	Renderer      *glamour.TermRenderer

	Dispatcher  *engine.Dispatcher
	Coordinator *engine.UploadCoordinator
	Conn        Sender
	Recorder    *transcript.Recorder
	Panels      *PanelState
	Program     *tea.Program

	Err          error
	Notice       string
	NoticeIsErr  bool
	WindowWidth  int
	WindowHeight int

	// File mention autocomplete
	FileSuggestOpen   bool
	FileSuggestions   []string
	FileSuggestIdx    int
	FileSuggestPrefix string
	AttachedFiles     []string
}

// send writes an outbound message, recording it to the transcript first.
func (m *Model) send(msg protocol.Message) tea.Cmd {
	conn := m.Conn
	rec := m.Recorder
	return func() tea.Msg {
		if data, err := msg.Encode(); err == nil {
			_ = rec.Record(transcript.Outbound, msg.Type, data)
		}
		if err := conn.Send(msg); err != nil {
			return SendFailedMsg{Err: err}
		}
		return nil
	}
}
