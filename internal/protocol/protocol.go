// Package protocol defines the wire vocabulary spoken over the agent
// websocket: the inbound event envelope, the closed set of event kinds,
// the tool identifiers the backend may invoke, and constructors for the
// outbound client messages. Everything is plain JSON; there are no
// request/response identifiers in this protocol.
package protocol

import (
	"encoding/json"
	"fmt"
)

// EventType is the kind discriminator of an inbound event.
type EventType string

const (
	EventConnectionEstablished EventType = "connection_established"
	EventWorkspaceInfo         EventType = "workspace_info"
	EventProcessing            EventType = "processing"
	EventAgentThinking         EventType = "agent_thinking"
	EventToolCall              EventType = "tool_call"
	EventToolResult            EventType = "tool_result"
	EventAgentResponse         EventType = "agent_response"
	EventBrowserUse            EventType = "browser_use"
	EventUploadSuccess         EventType = "upload_success"
	EventError                 EventType = "error"
	EventStreamComplete        EventType = "stream_complete"
	EventSystem                EventType = "system"
	EventPong                  EventType = "pong"
)

// ToolKind identifies a backend capability. The set is closed: the server
// only ever emits these names, and anything else is treated as unrecognized.
type ToolKind string

const (
	ToolSequentialThinking ToolKind = "sequential_thinking"
	ToolWebSearch          ToolKind = "web_search"
	ToolVisitWebpage       ToolKind = "visit_webpage"
	ToolBash               ToolKind = "bash"
	ToolFileWrite          ToolKind = "file_write"
	ToolStrReplaceEditor   ToolKind = "str_replace_editor"
	ToolBrowserUse         ToolKind = "browser_use"

	ToolBrowserNavigation   ToolKind = "browser_navigation"
	ToolBrowserRestart      ToolKind = "browser_restart"
	ToolBrowserView         ToolKind = "browser_view"
	ToolBrowserClick        ToolKind = "browser_click"
	ToolBrowserEnterText    ToolKind = "browser_enter_text"
	ToolBrowserPressKey     ToolKind = "browser_press_key"
	ToolBrowserWait         ToolKind = "browser_wait"
	ToolBrowserScrollDown   ToolKind = "browser_scroll_down"
	ToolBrowserScrollUp     ToolKind = "browser_scroll_up"
	ToolBrowserSwitchTab    ToolKind = "browser_switch_tab"
	ToolBrowserOpenNewTab   ToolKind = "browser_open_new_tab"
	ToolBrowserSelectOption ToolKind = "browser_select_dropdown_option"

	// ToolComplete is the sentinel the backend emits when the agent loop
	// finishes a task. It never drives a panel.
	ToolComplete ToolKind = "complete"
)

// IsBrowserNavigation reports whether the kind is a browser interaction that
// only implies a panel switch (no payload of its own).
func (k ToolKind) IsBrowserNavigation() bool {
	switch k {
	case ToolBrowserNavigation, ToolBrowserRestart, ToolBrowserView,
		ToolBrowserClick, ToolBrowserEnterText, ToolBrowserPressKey,
		ToolBrowserWait, ToolBrowserScrollDown, ToolBrowserScrollUp,
		ToolBrowserSwitchTab, ToolBrowserOpenNewTab, ToolBrowserSelectOption:
		return true
	default:
		return false
	}
}

// IsRecognized reports whether the kind is part of the closed tool set.
func (k ToolKind) IsRecognized() bool {
	switch k {
	case ToolSequentialThinking, ToolWebSearch, ToolVisitWebpage, ToolBash,
		ToolFileWrite, ToolStrReplaceEditor, ToolBrowserUse, ToolComplete:
		return true
	default:
		return k.IsBrowserNavigation()
	}
}

// Envelope is the outer shape of every inbound event:
// {"type": ..., "content": {...}}.
type Envelope struct {
	Type    EventType       `json:"type"`
	Content json.RawMessage `json:"content"`
}

// ParseEnvelope decodes a raw frame into an Envelope. A frame without a type
// is malformed even if it is valid JSON.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("parse event envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("event envelope missing type")
	}
	return env, nil
}

// --- Inbound content shapes --------------------------------------------------

// TextContent carries the text of agent_thinking / agent_response events and
// the message of processing / error / system events.
type TextContent struct {
	Text    string `json:"text"`
	Message string `json:"message"`
}

// Body returns whichever of the two fields the server populated.
func (c TextContent) Body() string {
	if c.Text != "" {
		return c.Text
	}
	return c.Message
}

// WorkspaceContent carries the workspace root announced by the server.
type WorkspaceContent struct {
	Path string `json:"path"`
}

// ToolCallContent is the payload of a tool_call event.
type ToolCallContent struct {
	ToolName  ToolKind       `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
}

// ToolResultContent is the payload of a tool_result event. Result may be a
// string, a list, or an object depending on the tool.
type ToolResultContent struct {
	ToolName ToolKind        `json:"tool_name"`
	Result   json.RawMessage `json:"result"`
}

// ResultValue decodes the result into a generic Go value. An absent or null
// result decodes to nil, which is still a legitimate completed result.
func (c ToolResultContent) ResultValue() any {
	if len(c.Result) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(c.Result, &v); err != nil {
		return string(c.Result)
	}
	return v
}

// BrowserUseContent is the payload of a browser_use screenshot push.
type BrowserUseContent struct {
	URL        string `json:"url"`
	Screenshot string `json:"screenshot"`
}

// UploadedFile describes one accepted upload in an upload_success event.
type UploadedFile struct {
	Path      string `json:"path"`
	SavedPath string `json:"saved_path,omitempty"`
}

// UploadSuccessContent is the payload of an upload_success event.
type UploadSuccessContent struct {
	Message string         `json:"message"`
	Files   []UploadedFile `json:"files"`
}

// --- Outbound messages -------------------------------------------------------

// Message is an outbound client message.
type Message struct {
	Type    string `json:"type"`
	Content any    `json:"content"`
}

// Encode marshals the message for the wire.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// FilePayload is one file in an upload_file message. Content is either plain
// text or a data: URL for binary files.
type FilePayload struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type queryContent struct {
	Text   string `json:"text"`
	Resume bool   `json:"resume"`
}

type uploadContent struct {
	Files []FilePayload `json:"files"`
}

// QueryMessage builds a user query. Resume is true on every turn after the
// first so the server continues the existing agent history.
func QueryMessage(text string, resume bool) Message {
	return Message{Type: "query", Content: queryContent{Text: text, Resume: resume}}
}

// UploadFileMessage builds a file upload request.
func UploadFileMessage(files []FilePayload) Message {
	return Message{Type: "upload_file", Content: uploadContent{Files: files}}
}

// WorkspaceInfoRequest asks the server to announce its workspace root.
func WorkspaceInfoRequest() Message {
	return Message{Type: "workspace_info", Content: struct{}{}}
}

// PingMessage keeps the connection alive; the server answers with pong.
func PingMessage() Message {
	return Message{Type: "ping", Content: struct{}{}}
}

// CancelMessage asks the server to cancel the in-flight query.
func CancelMessage() Message {
	return Message{Type: "cancel", Content: struct{}{}}
}
