package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"tether/internal/engine"
	"tether/internal/styles"
)

// panelTitle maps the active panel to its tab label.
func panelTitle(p engine.Panel) string {
	switch p {
	case engine.PanelCode:
		return "Code"
	case engine.PanelTerminal:
		return "Terminal"
	default:
		return "Browser"
	}
}

// UpdateViewport rebuilds the chat transcript from the engine's history.
func (m *Model) UpdateViewport() {
	entries := m.Dispatcher.Log().Snapshot()
	flags := m.Dispatcher.Session().Flags()

	if len(entries) == 0 && !flags.Busy {
		m.Viewport.SetContent(GetWelcomeScreen(m.Viewport.Width, m.Viewport.Height))
		return
	}

	blocks := make([]string, 0, len(entries)+1)
	for i, entry := range entries {
		switch {
		case entry.Role == engine.RoleUser:
			body := entry.Content
			if len(entry.Attachments) > 0 {
				names := make([]string, 0, len(entry.Attachments))
				for _, a := range entry.Attachments {
					names = append(names, a.Name)
				}
				chips := FormatAttachments(names)
				if body != "" {
					body += "\n"
				}
				body += chips
			}
			blocks = append(blocks, FormatUserMessage(body, m.Viewport.Width, i == 0))

		case entry.Action != nil:
			blocks = append(blocks, FormatActionLine(entry.Action))

		default:
			content := entry.Content
			if m.Renderer != nil {
				if rendered, err := m.Renderer.Render(content); err == nil {
					content = strings.TrimRight(rendered, "\n")
				}
			}
			blocks = append(blocks, FormatAgentMessage(content))
		}
	}

	if flags.Busy {
		blocks = append(blocks, fmt.Sprintf("%s Working...", m.Spinner.View()))
	}
	if flags.Uploading {
		pending := m.Dispatcher.Session().Uploads().Pending
		blocks = append(blocks, styles.NoticeStyle.Render(fmt.Sprintf("%s Uploading %d file(s)...", m.Spinner.View(), pending)))
	}

	m.Viewport.SetContent(strings.Join(blocks, "\n\n"))
	m.Viewport.GotoBottom()
}

// UpdatePanelViewport rebuilds the side panel from the sink's content.
func (m *Model) UpdatePanelViewport() {
	sel := m.Dispatcher.Session().Panel()
	var content string
	switch sel.Active {
	case engine.PanelCode:
		content = m.renderCodePanel()
	case engine.PanelTerminal:
		content = m.renderTerminalPanel()
	default:
		content = m.renderWebPanel()
	}
	m.PanelViewport.SetContent(content)
	if sel.Active == engine.PanelTerminal {
		m.PanelViewport.GotoBottom()
	}
}

func (m *Model) renderWebPanel() string {
	payload, ok := m.Panels.Web()
	if !ok {
		return styles.InfoStyle("Nothing to show yet. Web activity appears here.")
	}

	var sb strings.Builder
	if payload.Query != "" {
		sb.WriteString(styles.PanelHeaderStyle.Render("Search: "+payload.Query) + "\n\n")
		for _, r := range payload.Results {
			sb.WriteString(styles.SearchTitleStyle.Render(r.Title) + "\n")
			if r.URL != "" {
				sb.WriteString(styles.SearchURLStyle.Render(r.URL) + "\n")
			}
			if r.Snippet != "" {
				sb.WriteString(r.Snippet + "\n")
			}
			sb.WriteString("\n")
		}
		return strings.TrimRight(sb.String(), "\n")
	}

	if payload.URL != "" {
		sb.WriteString(styles.PanelHeaderStyle.Render(payload.URL) + "\n\n")
	}
	if payload.Screenshot != "" {
		sb.WriteString(styles.InfoStyle("[screenshot captured]") + "\n\n")
	}
	if payload.Content != "" {
		sb.WriteString(payload.Content)
	}
	if sb.Len() == 0 {
		return styles.InfoStyle("Nothing to show yet. Web activity appears here.")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m *Model) renderCodePanel() string {
	path, body := m.Panels.Code()
	if path == "" {
		return styles.InfoStyle("No file open. Edited files appear here.")
	}
	header := styles.PanelHeaderStyle.Render(path)
	return header + "\n\n" + body
}

func (m *Model) renderTerminalPanel() string {
	lines := m.Panels.Terminal()
	if len(lines) == 0 {
		return styles.InfoStyle("No commands run yet.")
	}
	styled := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(line, "$ ") {
			styled = append(styled, styles.TerminalPromptStyle.Render(line))
		} else {
			styled = append(styled, line)
		}
	}
	return strings.Join(styled, "\n")
}

// RenderPanelTabs draws the three panel labels with the active one
// highlighted in its accent color.
func (m *Model) RenderPanelTabs() string {
	active := panelTitle(m.Dispatcher.Session().Panel().Active)
	var tabs []string
	for _, name := range []string{"Browser", "Code", "Terminal"} {
		if name == active {
			tabs = append(tabs, styles.PanelTabActiveStyle.
				Background(styles.GetPanelColor(name)).
				Render(name))
		} else {
			tabs = append(tabs, styles.PanelTabStyle.Render(name))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, tabs...)
}

func (m *Model) RenderBottomBar() string {
	flags := m.Dispatcher.Session().Flags()

	status := styles.StatusOfflineStyle.Render("OFFLINE")
	if flags.Connected {
		status = styles.StatusConnectedStyle.Render("CONNECTED")
	}

	wsDisplay := m.Dispatcher.Session().WorkspaceRoot()
	if wsDisplay == "" {
		wsDisplay = "(no workspace)"
	}
	if home, err := os.UserHomeDir(); err == nil && strings.HasPrefix(wsDisplay, home) {
		wsDisplay = "~" + wsDisplay[len(home):]
	}
	wsDisplay = TruncateRunes(wsDisplay, 30)
	ws := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		Render(wsDisplay)

	uploads := m.Dispatcher.Session().Uploads()
	uploadText := fmt.Sprintf("Files:%d", len(uploads.Completed))
	if uploads.Pending > 0 {
		uploadText = fmt.Sprintf("Files:%d (+%d pending)", len(uploads.Completed), uploads.Pending)
	}
	uploadInfo := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#666666")).
		Render(uploadText)

	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#555555")).
		Render("^N new • Tab panel • ^C quit")

	leftSide := lipgloss.JoinHorizontal(lipgloss.Center, status, "  ", ws)
	rightSide := lipgloss.JoinHorizontal(lipgloss.Center, uploadInfo, "  ", help)

	availableWidth := m.WindowWidth - lipgloss.Width(leftSide) - lipgloss.Width(rightSide) - 2
	if availableWidth < 0 {
		availableWidth = 0
	}
	spacer := strings.Repeat(" ", availableWidth)

	bar := lipgloss.JoinHorizontal(lipgloss.Center, leftSide, spacer, rightSide)

	return lipgloss.NewStyle().
		Width(m.WindowWidth).
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#333333")).
		Padding(0, 1).
		Render(bar)
}

func (m *Model) RenderPendingFiles() string {
	if len(m.AttachedFiles) == 0 {
		return ""
	}
	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888"))
	return labelStyle.Render("Attached: ") + FormatAttachments(m.AttachedFiles)
}

func (m *Model) RenderFileSuggestions() string {
	if !m.FileSuggestOpen || len(m.FileSuggestions) == 0 {
		return ""
	}

	suggestionStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#E0E0E0")).
		Padding(0, 1)

	selectedStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#7C4DFF")).
		Padding(0, 1)

	var lines []string
	header := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		Italic(true).
		Render("  Files (↑↓ to select, Tab/Enter to insert)")
	lines = append(lines, header)

	for i, suggestion := range m.FileSuggestions {
		info, _ := os.Stat(suggestion)
		display := suggestion
		if info != nil && info.IsDir() {
			display = suggestion + "/"
		}

		if i == m.FileSuggestIdx {
			lines = append(lines, selectedStyle.Render("▸ "+display))
		} else {
			lines = append(lines, suggestionStyle.Render("  "+display))
		}
	}

	popupStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#7C4DFF")).
		Padding(0, 1)

	return popupStyle.Render(strings.Join(lines, "\n"))
}

func GetWelcomeScreen(width, height int) string {
	art := `
 ╭─────────────────────────────────────────────────╮
 │                                                 │
 │   ▄▄▄█████▓▓█████▄▄▄█████▓ ██░ ██ ▓█████  ██▀███   │
 │   ▓  ██▒ ▓▒▓█   ▀▓  ██▒ ▓▒▓██░ ██▒▓█   ▀ ▓██ ▒ ██▒ │
 │   ▒ ▓██░ ▒░▒███  ▒ ▓██░ ▒░▒██▀▀██░▒███   ▓██ ░▄█ ▒ │
 │   ░ ▓██▓ ░ ▒▓█  ▄░ ▓██▓ ░ ░▓█ ░██ ▒▓█  ▄ ▒██▀▀█▄   │
 │     ▒██▒ ░ ░▒████▒ ▒██▒ ░ ░▓█▒░██▓░▒████▒░██▓ ▒██▒ │
 │     ▒ ░░   ░░ ▒░ ░ ▒ ░░    ▒ ░░▒░▒░░ ▒░ ░░ ▒▓ ░▒▓░ │
 │                                                 │
 ╰─────────────────────────────────────────────────╯
`
	subtitle := "Connected to an agent, watching it work."

	styledArt := styles.WelcomeArtStyle.Render(art)
	styledSubtitle := styles.WelcomeSubtitleStyle.Render(subtitle)

	content := lipgloss.JoinVertical(lipgloss.Center, styledArt, "", styledSubtitle)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}

func (m *Model) View() string {
	fileSuggestPopup := m.RenderFileSuggestions()
	pendingFilesDisplay := m.RenderPendingFiles()

	inputWidth := m.WindowWidth - 4
	inputBox := styles.InputBoxStyle.Width(inputWidth).Render(m.TextInput.View())

	var inputParts []string
	if m.Notice != "" {
		noticeStyle := styles.NoticeStyle
		if m.NoticeIsErr {
			noticeStyle = styles.ErrorStyle
		}
		inputParts = append(inputParts, noticeStyle.Render(m.Notice))
	}
	if pendingFilesDisplay != "" {
		inputParts = append(inputParts, pendingFilesDisplay)
	}
	if fileSuggestPopup != "" {
		inputParts = append(inputParts, fileSuggestPopup)
	}
	inputParts = append(inputParts, inputBox)
	inputSection := lipgloss.JoinVertical(lipgloss.Left, inputParts...)

	var workArea string
	if m.WindowWidth >= CompactWidthThresh {
		panelBox := lipgloss.JoinVertical(lipgloss.Left,
			m.RenderPanelTabs(),
			styles.PanelBoxStyle.Render(m.PanelViewport.View()),
		)
		workArea = lipgloss.JoinHorizontal(lipgloss.Top, m.Viewport.View(), "  ", panelBox)
	} else {
		workArea = m.Viewport.View()
	}

	chatContent := lipgloss.JoinVertical(lipgloss.Center,
		styles.TitleStyle.Render("TETHER"),
		"",
		workArea,
		"",
		inputSection,
	)
	chatArea := lipgloss.PlaceHorizontal(m.WindowWidth, lipgloss.Center, chatContent)
	bottomBar := m.RenderBottomBar()

	return lipgloss.JoinVertical(lipgloss.Left, chatArea, bottomBar)
}
