// Package engine is the event reconciliation core: it consumes the ordered
// inbound event stream, reconstructs the conversation and tool-execution
// history, correlates tool results with the calls that produced them, and
// decides which auxiliary panel should be active. The engine is written by a
// single goroutine (the dispatcher) and read concurrently by the view layer
// through deep-copied snapshots.
package engine

import (
	"time"

	"tether/internal/protocol"
)

// Role marks who produced a conversation entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Attachment is one (filename, encoded content) pair carried by a user entry.
type Attachment struct {
	Name    string
	Content string
}

// ActionStep records one tool invocation and, once the matching result event
// arrives, its outcome. ResultReceived distinguishes "pending" from
// "completed with an empty result", since result payloads may legitimately
// be empty or null.
type ActionStep struct {
	Kind           protocol.ToolKind
	Request        map[string]any
	Result         any
	ResultReceived bool
}

// ConversationEntry is one unit of conversation history. At most one of
// Content, Attachments, and Action is expected; an entry with none is never
// created.
type ConversationEntry struct {
	ID          int64
	Role        Role
	Content     string
	Attachments []Attachment
	Action      *ActionStep
	Timestamp   time.Time
}

// HasAction reports whether the entry carries a tool step of the given kind.
func (e *ConversationEntry) HasAction(kind protocol.ToolKind) bool {
	return e.Action != nil && e.Action.Kind == kind
}

// RequestString returns a string field from the action request, or "".
func (s *ActionStep) RequestString(key string) string {
	if s == nil || s.Request == nil {
		return ""
	}
	v, _ := s.Request[key].(string)
	return v
}

// clone returns a deep copy of the entry so a snapshot cannot observe later
// mutations (in particular a merge landing mid-read).
func (e ConversationEntry) clone() ConversationEntry {
	if e.Attachments != nil {
		atts := make([]Attachment, len(e.Attachments))
		copy(atts, e.Attachments)
		e.Attachments = atts
	}
	if e.Action != nil {
		step := *e.Action
		if step.Request != nil {
			req := make(map[string]any, len(step.Request))
			for k, v := range step.Request {
				req[k] = deepCopyValue(v)
			}
			step.Request = req
		}
		step.Result = deepCopyValue(step.Result)
		e.Action = &step
	}
	return e
}

// deepCopyValue clones the mutable container types JSON decoding produces.
// Strings, numbers, bools, and nil are immutable and returned as-is.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(val))
		for k, v := range val {
			cp[k] = deepCopyValue(v)
		}
		return cp
	case []any:
		cp := make([]any, len(val))
		for i, v := range val {
			cp[i] = deepCopyValue(v)
		}
		return cp
	default:
		return v
	}
}
