package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"tether/internal/engine"
)

// PanelState holds the content of the three viewer panels. The router's
// goroutine writes it while the update loop reads, so access is locked.
// Implements engine.PanelSink.
type PanelState struct {
	mu sync.Mutex

	web      engine.WebPayload
	hasWeb   bool
	codePath string
	codeBody string
	terminal []string

	notify func(tea.Msg)
}

func NewPanelState() *PanelState {
	return &PanelState{}
}

// SetNotify installs the callback used to wake the update loop. The router
// may fire before the program starts, so this is set late and guarded.
func (p *PanelState) SetNotify(fn func(tea.Msg)) {
	p.mu.Lock()
	p.notify = fn
	p.mu.Unlock()
}

func (p *PanelState) ShowWeb(payload engine.WebPayload) {
	p.mu.Lock()
	p.web = payload
	p.hasWeb = true
	fn := p.notify
	p.mu.Unlock()
	if fn != nil {
		fn(PanelContentMsg{})
	}
}

func (p *PanelState) ShowCode(path, content string) {
	p.mu.Lock()
	p.codePath = path
	p.codeBody = content
	fn := p.notify
	p.mu.Unlock()
	if fn != nil {
		fn(PanelContentMsg{})
	}
}

func (p *PanelState) EchoTerminal(lines []string) {
	p.mu.Lock()
	p.terminal = append(p.terminal, lines...)
	if len(p.terminal) > MaxTerminalKeep {
		p.terminal = p.terminal[len(p.terminal)-MaxTerminalKeep:]
	}
	fn := p.notify
	p.mu.Unlock()
	if fn != nil {
		fn(PanelContentMsg{})
	}
}

// Web returns the last web payload and whether one exists.
func (p *PanelState) Web() (engine.WebPayload, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.web, p.hasWeb
}

// Code returns the displayed document path and body.
func (p *PanelState) Code() (path, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.codePath, p.codeBody
}

// Terminal returns a copy of the terminal transcript.
func (p *PanelState) Terminal() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.terminal...)
}

// Reset clears all panel content.
func (p *PanelState) Reset() {
	p.mu.Lock()
	p.web = engine.WebPayload{}
	p.hasWeb = false
	p.codePath = ""
	p.codeBody = ""
	p.terminal = nil
	p.mu.Unlock()
}

var _ engine.PanelSink = (*PanelState)(nil)
