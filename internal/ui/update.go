package ui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"tether/internal/engine"
	"tether/internal/protocol"
)

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case spinner.TickMsg:
		m.Spinner, spCmd = m.Spinner.Update(msg)
		flags := m.Dispatcher.Session().Flags()
		if flags.Busy || flags.Uploading {
			m.UpdateViewport()
		}
		return m, spCmd

	case EngineEventMsg:
		switch ev := msg.Event.(type) {
		case engine.HistoryChanged:
			m.UpdateViewport()
			m.UpdatePanelViewport()
		case engine.FlagsChanged:
			m.UpdateViewport()
		case engine.Notice:
			m.Notice = ev.Text
			m.NoticeIsErr = ev.Level == engine.NoticeError
			m.UpdateViewport()
		}
		return m, nil

	case PanelContentMsg:
		m.UpdatePanelViewport()
		return m, nil

	case ConnClosedMsg:
		m.Dispatcher.Session().UpdateFlags(func(f *engine.Flags) {
			f.Connected = false
			f.Busy = false
			f.Uploading = false
		})
		m.Notice = "connection to server lost"
		if msg.Err != nil {
			m.Notice = "connection lost: " + msg.Err.Error()
		}
		m.NoticeIsErr = true
		m.UpdateViewport()
		return m, nil

	case SendFailedMsg:
		m.Notice = "send failed: " + msg.Err.Error()
		m.NoticeIsErr = true
		return m, nil

	case ErrMsg:
		m.Err = msg
		return m, nil

	case tea.KeyMsg:
		if isNewlineShortcut(msg) {
			m.TextInput.InsertString("\n")
			m.FileSuggestOpen = false
			m.updateInputLayout()
			return m, nil
		}

		// File suggestion popup handling
		if m.FileSuggestOpen {
			switch msg.String() {
			case "esc":
				m.FileSuggestOpen = false
				return m, nil
			case "up", "ctrl+p":
				if len(m.FileSuggestions) > 0 {
					m.FileSuggestIdx--
					if m.FileSuggestIdx < 0 {
						m.FileSuggestIdx = len(m.FileSuggestions) - 1
					}
				}
				return m, nil
			case "down":
				if len(m.FileSuggestions) > 0 {
					m.FileSuggestIdx++
					if m.FileSuggestIdx >= len(m.FileSuggestions) {
						m.FileSuggestIdx = 0
					}
				}
				return m, nil
			case "tab", "enter":
				m.insertSelectedSuggestion()
				return m, nil
			}
		}

		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit

		case tea.KeyEsc:
			if m.FileSuggestOpen {
				m.FileSuggestOpen = false
				return m, nil
			}
			if m.Dispatcher.Session().Flags().Busy {
				return m, m.send(protocol.CancelMessage())
			}
			return m, nil

		case tea.KeyCtrlN:
			return m, m.newSession()

		case tea.KeyTab:
			m.cyclePanel()
			return m, nil

		case tea.KeyCtrlU:
			return m, m.submitAttachments()

		case tea.KeyEnter:
			return m, m.submitQuery()
		}

		m.TextInput, tiCmd = m.TextInput.Update(msg)
		m.updateInputLayout()
		m.refreshFileSuggestions()
		return m, tiCmd

	case tea.WindowSizeMsg:
		m.WindowWidth = msg.Width
		m.WindowHeight = msg.Height
		m.updateWorkAreaLayout()
		m.updateInputLayout()

		glamourStyle := "dark"
		if !lipgloss.HasDarkBackground() {
			glamourStyle = "light"
		}
		m.Renderer, _ = glamour.NewTermRenderer(
			glamour.WithStylePath(glamourStyle),
			glamour.WithWordWrap(m.Viewport.Width-4),
		)
		m.UpdateViewport()
		m.UpdatePanelViewport()
		return m, nil
	}

	m.Viewport, vpCmd = m.Viewport.Update(msg)
	return m, vpCmd
}

// newSession cancels any in-flight work and starts a fresh conversation.
// The connection stays up.
func (m *Model) newSession() tea.Cmd {
	cmd := m.send(protocol.CancelMessage())
	m.Dispatcher.Reset()
	m.Panels.Reset()
	m.AttachedFiles = nil
	m.Notice = ""
	m.TextInput.Reset()
	m.updateInputLayout()
	m.UpdateViewport()
	m.UpdatePanelViewport()
	return cmd
}

// cyclePanel rotates the active panel manually. The next routed action will
// override the choice.
func (m *Model) cyclePanel() {
	session := m.Dispatcher.Session()
	sel := session.Panel()
	switch sel.Active {
	case engine.PanelWeb:
		sel.Active = engine.PanelCode
	case engine.PanelCode:
		sel.Active = engine.PanelTerminal
	default:
		sel.Active = engine.PanelWeb
	}
	session.SetPanel(sel)
	m.UpdatePanelViewport()
}

// submitQuery sends the typed text, uploading any @-mentioned files first.
func (m *Model) submitQuery() tea.Cmd {
	raw := m.TextInput.Value()
	clean, files := ExtractFileMentions(raw)
	if clean == "" && len(files) == 0 {
		return nil
	}

	var cmds []tea.Cmd
	if len(files) > 0 {
		payloads, err := ReadAttachments(files)
		if err != nil {
			m.Notice = err.Error()
			m.NoticeIsErr = true
			return nil
		}
		cmds = append(cmds, m.sendUpload(payloads))
	}
	if clean != "" {
		cmds = append(cmds, m.send(m.Coordinator.ComposeQuery(clean)))
	}

	m.Notice = ""
	m.NoticeIsErr = false
	m.AttachedFiles = nil
	m.FileSuggestOpen = false
	m.TextInput.Reset()
	m.updateInputLayout()
	m.UpdateViewport()
	return tea.Batch(cmds...)
}

// submitAttachments uploads the @-mentioned files without sending a query.
func (m *Model) submitAttachments() tea.Cmd {
	_, files := ExtractFileMentions(m.TextInput.Value())
	if len(files) == 0 {
		return nil
	}
	payloads, err := ReadAttachments(files)
	if err != nil {
		m.Notice = err.Error()
		m.NoticeIsErr = true
		return nil
	}
	m.AttachedFiles = nil
	m.UpdateViewport()
	return m.sendUpload(payloads)
}

// sendUpload submits the payloads and sends the upload message. If the
// write fails the counters are unwound so the uploading spinner does not
// hang on a send that never left the client.
func (m *Model) sendUpload(payloads []protocol.FilePayload) tea.Cmd {
	n := len(payloads)
	sendCmd := m.send(m.Coordinator.Submit(payloads))
	coordinator := m.Coordinator
	return func() tea.Msg {
		out := sendCmd()
		if _, failed := out.(SendFailedMsg); failed {
			coordinator.SubmitFailed(n)
		}
		return out
	}
}

// insertSelectedSuggestion replaces the @prefix under the cursor with the
// selected file path.
func (m *Model) insertSelectedSuggestion() {
	if len(m.FileSuggestions) == 0 || m.FileSuggestIdx >= len(m.FileSuggestions) {
		m.FileSuggestOpen = false
		return
	}
	selected := m.FileSuggestions[m.FileSuggestIdx]
	val := m.TextInput.Value()
	cursorPos := TextareaCursorIndex(m.TextInput)
	prefix, startPos, found := GetAtPosition(val, cursorPos)
	if found {
		newVal := val[:startPos] + "@" + selected + " " + val[startPos+1+len(prefix):]
		newCursorIndex := startPos + len(selected) + 2
		m.TextInput.SetValue(newVal)
		row, col := TextareaCursorFromIndex(newVal, newCursorIndex)
		SetTextareaCursor(&m.TextInput, row, col)
	}
	m.FileSuggestOpen = false
}

// refreshFileSuggestions opens or updates the popup when the cursor sits in
// an @mention, and tracks attached files for the input chips.
func (m *Model) refreshFileSuggestions() {
	val := m.TextInput.Value()
	cursorPos := TextareaCursorIndex(m.TextInput)
	prefix, _, found := GetAtPosition(val, cursorPos)
	if found {
		m.FileSuggestPrefix = prefix
		m.FileSuggestions = GetFileSuggestions(prefix)
		m.FileSuggestIdx = 0
		m.FileSuggestOpen = len(m.FileSuggestions) > 0
	} else {
		m.FileSuggestOpen = false
	}

	_, m.AttachedFiles = ExtractFileMentions(val)
}

func isNewlineShortcut(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "shift+enter", "shift+return", "ctrl+j", "ctrl+enter", "alt+enter":
		return true
	default:
		return false
	}
}

// updateWorkAreaLayout splits the window between chat and side panel.
func (m *Model) updateWorkAreaLayout() {
	if m.WindowWidth == 0 || m.WindowHeight == 0 {
		return
	}

	usable := m.WindowWidth - 2
	if m.WindowWidth >= CompactWidthThresh {
		panelWidth := int(float64(usable) * PanelWidthFrac)
		m.PanelViewport.Width = panelWidth - 4
		m.Viewport.Width = usable - panelWidth - 2
	} else {
		m.Viewport.Width = usable - 2
		m.PanelViewport.Width = usable - 4
	}
}

func (m *Model) updateInputLayout() {
	if m.WindowWidth == 0 || m.WindowHeight == 0 {
		return
	}

	inputWidth := m.WindowWidth - 6
	if inputWidth < 20 {
		inputWidth = 20
	}
	contentWidth := inputWidth - 2
	if contentWidth < 1 {
		contentWidth = 1
	}

	maxInputHeight := 6
	lineCount := WrappedLineCount(m.TextInput.Value(), contentWidth)
	if lineCount < 1 {
		lineCount = 1
	}
	if lineCount > maxInputHeight {
		lineCount = maxInputHeight
	}

	m.TextInput.MaxHeight = maxInputHeight
	m.TextInput.SetWidth(inputWidth)
	m.TextInput.SetHeight(lineCount)

	inputBoxHeight := m.TextInput.Height() + 2
	reserved := inputBoxHeight + 5
	viewportHeight := m.WindowHeight - reserved
	if viewportHeight < 5 {
		viewportHeight = 5
	}
	m.Viewport.Height = viewportHeight
	m.PanelViewport.Height = viewportHeight - 2
	if m.PanelViewport.Height < 3 {
		m.PanelViewport.Height = 3
	}
}
