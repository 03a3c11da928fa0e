package engine

import "sync"

// Panel identifies one of the mutually exclusive auxiliary views shown next
// to the conversation.
type Panel string

const (
	PanelWeb      Panel = "web"
	PanelCode     Panel = "code"
	PanelTerminal Panel = "terminal"
)

// PanelSelection is the session-scoped UI routing state. ActiveEntryID is a
// lookup reference into the ConversationLog (never a pointer): the log stays
// the sole owner of entries.
type PanelSelection struct {
	Active         Panel
	ActiveDocument string // meaningful only when Active == PanelCode
	ActiveEntryID  int64  // entry currently driving the web panel, 0 if none
}

// UploadRegistry tracks files the user has attached this session. Completed
// keeps acceptance order; duplicates are allowed and later entries shadow
// earlier same-name ones for display only.
type UploadRegistry struct {
	Pending   int
	Completed []string
}

// Flags are the session's boolean indicators consumed by the view.
type Flags struct {
	Connected bool
	Busy      bool
	Uploading bool
	Completed bool
}

// Session is the single-owner container for all session-scoped state outside
// the conversation log itself. The dispatcher and router are its only
// writers; the view reads snapshots.
type Session struct {
	mu            sync.RWMutex
	panel         PanelSelection
	uploads       UploadRegistry
	flags         Flags
	workspaceRoot string
	turns         int
}

// NewSession creates a session with the default panel active.
func NewSession() *Session {
	return &Session{panel: PanelSelection{Active: PanelWeb}}
}

// Panel returns a snapshot of the panel selection.
func (s *Session) Panel() PanelSelection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.panel
}

// SetPanel replaces the panel selection.
func (s *Session) SetPanel(p PanelSelection) {
	s.mu.Lock()
	s.panel = p
	s.mu.Unlock()
}

// Uploads returns a snapshot of the upload registry.
func (s *Session) Uploads() UploadRegistry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg := s.uploads
	reg.Completed = append([]string(nil), s.uploads.Completed...)
	return reg
}

// UpdateUploads applies fn to the registry under the lock.
func (s *Session) UpdateUploads(fn func(*UploadRegistry)) {
	s.mu.Lock()
	fn(&s.uploads)
	if s.uploads.Pending < 0 {
		s.uploads.Pending = 0
	}
	s.mu.Unlock()
}

// Flags returns a snapshot of the session flags.
func (s *Session) Flags() Flags {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags
}

// UpdateFlags applies fn to the flags under the lock.
func (s *Session) UpdateFlags(fn func(*Flags)) {
	s.mu.Lock()
	fn(&s.flags)
	s.mu.Unlock()
}

// WorkspaceRoot returns the server-announced workspace root, or "".
func (s *Session) WorkspaceRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workspaceRoot
}

// SetWorkspaceRoot records the workspace root from workspace_info.
func (s *Session) SetWorkspaceRoot(root string) {
	s.mu.Lock()
	s.workspaceRoot = root
	s.mu.Unlock()
}

// Turns returns how many queries have been sent this session.
func (s *Session) Turns() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turns
}

// BumpTurns increments the turn counter and returns the new value.
func (s *Session) BumpTurns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns++
	return s.turns
}

// Reset restores the initial state. Connection status survives a reset: the
// socket is still open, only the conversation starts over.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	connected := s.flags.Connected
	root := s.workspaceRoot
	s.panel = PanelSelection{Active: PanelWeb}
	s.uploads = UploadRegistry{}
	s.flags = Flags{Connected: connected}
	s.workspaceRoot = root
	s.turns = 0
}
