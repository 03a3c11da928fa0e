package engine

import (
	"encoding/json"
	"sync"
	"time"

	"tether/internal/protocol"
)

// DefaultReshowDelay is how long a merged tool result waits before the panel
// is re-shown, letting a just-started panel transition settle first.
const DefaultReshowDelay = 500 * time.Millisecond

// Logger receives diagnostics for discarded or unrecognized events. The UI
// owns the terminal, so implementations must not write to stdout.
type Logger interface {
	Logf(format string, args ...any)
}

// NopLogger discards diagnostics.
type NopLogger struct{}

func (NopLogger) Logf(string, ...any) {}

// --- Observer events ---------------------------------------------------------

// Event notifies observers that engine state changed. The payloads live in
// the ConversationLog and Session; events are wake-up calls, not data.
type Event interface {
	engineEvent() // sealed marker
}

// HistoryChanged fires when the conversation log gained or merged an entry.
type HistoryChanged struct{}

func (HistoryChanged) engineEvent() {}

// FlagsChanged fires when busy/uploading/connected/completed flags moved.
type FlagsChanged struct{}

func (FlagsChanged) engineEvent() {}

// NoticeLevel classifies a user-visible notice.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeError
)

// Notice carries a user-visible notification (backend errors, system text).
type Notice struct {
	Level NoticeLevel
	Text  string
}

func (Notice) engineEvent() {}

// Observer receives engine events. Handlers run on the dispatcher goroutine;
// keep them fast.
type Observer interface {
	OnEngineEvent(Event)
}

// --- Dispatcher --------------------------------------------------------------

// Dispatcher is the single entry point for inbound events. HandleRaw is
// called once per transport frame, in delivery order, never concurrently
// with itself. A malformed event is logged and dropped; nothing here ever
// panics the session.
type Dispatcher struct {
	log     *ConversationLog
	session *Session
	router  *ActionRouter
	logger  Logger

	reshowDelay time.Duration
	observers   []Observer

	mu     sync.Mutex
	reshow map[int64]*time.Timer
	closed bool
}

// NewDispatcher wires a dispatcher to its store, session, and router.
// A reshowDelay of 0 uses DefaultReshowDelay.
func NewDispatcher(log *ConversationLog, session *Session, router *ActionRouter, logger Logger, reshowDelay time.Duration) *Dispatcher {
	if logger == nil {
		logger = NopLogger{}
	}
	if reshowDelay <= 0 {
		reshowDelay = DefaultReshowDelay
	}
	return &Dispatcher{
		log:         log,
		session:     session,
		router:      router,
		logger:      logger,
		reshowDelay: reshowDelay,
	}
}

// AddObserver registers an observer. Call before the event stream starts.
func (d *Dispatcher) AddObserver(o Observer) {
	d.observers = append(d.observers, o)
}

// Log returns the conversation log.
func (d *Dispatcher) Log() *ConversationLog { return d.log }

// Session returns the session state container.
func (d *Dispatcher) Session() *Session { return d.session }

// HandleRaw parses and dispatches one transport frame.
func (d *Dispatcher) HandleRaw(data []byte) {
	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		d.logger.Logf("discarding malformed event: %v", err)
		return
	}
	d.Handle(env)
}

// Handle dispatches one parsed event.
func (d *Dispatcher) Handle(env protocol.Envelope) {
	switch env.Type {
	case protocol.EventConnectionEstablished:
		d.session.UpdateFlags(func(f *Flags) { f.Connected = true })
		d.notify(FlagsChanged{})

	case protocol.EventWorkspaceInfo:
		var ws protocol.WorkspaceContent
		if !d.decode(env, &ws) {
			return
		}
		d.session.SetWorkspaceRoot(ws.Path)
		// The root shows in the status bar, so wake the UI now rather than
		// waiting for the next event.
		d.notify(FlagsChanged{})

	case protocol.EventProcessing:
		d.session.UpdateFlags(func(f *Flags) { f.Busy = true })
		d.notify(FlagsChanged{})

	case protocol.EventAgentThinking:
		var text protocol.TextContent
		if !d.decode(env, &text) {
			return
		}
		d.appendAssistantText(text.Body())

	case protocol.EventAgentResponse:
		var text protocol.TextContent
		if !d.decode(env, &text) {
			return
		}
		d.appendAssistantText(text.Body())
		d.session.UpdateFlags(func(f *Flags) {
			f.Busy = false
			f.Completed = true
		})
		d.notify(FlagsChanged{})

	case protocol.EventToolCall:
		var call protocol.ToolCallContent
		if !d.decode(env, &call) {
			return
		}
		d.handleToolCall(call)

	case protocol.EventToolResult:
		var res protocol.ToolResultContent
		if !d.decode(env, &res) {
			return
		}
		d.handleToolResult(res)

	case protocol.EventBrowserUse:
		var push protocol.BrowserUseContent
		if !d.decode(env, &push) {
			return
		}
		entry := d.log.Append(ConversationEntry{
			Role: RoleAssistant,
			Action: &ActionStep{
				Kind:           protocol.ToolBrowserUse,
				Request:        map[string]any{"url": push.URL},
				Result:         push.Screenshot,
				ResultReceived: true,
			},
		})
		d.notify(HistoryChanged{})
		d.router.Route(entry, false)

	case protocol.EventUploadSuccess:
		var up protocol.UploadSuccessContent
		if !d.decode(env, &up) {
			return
		}
		d.session.UpdateUploads(func(reg *UploadRegistry) {
			for _, f := range up.Files {
				reg.Completed = append(reg.Completed, f.Path)
			}
			reg.Pending -= len(up.Files)
		})
		d.session.UpdateFlags(func(f *Flags) { f.Uploading = false })
		d.notify(FlagsChanged{})

	case protocol.EventError:
		var text protocol.TextContent
		if !d.decode(env, &text) {
			return
		}
		d.session.UpdateFlags(func(f *Flags) {
			f.Busy = false
			f.Uploading = false
		})
		d.notify(FlagsChanged{})
		d.notify(Notice{Level: NoticeError, Text: text.Body()})

	case protocol.EventSystem:
		var text protocol.TextContent
		if !d.decode(env, &text) {
			return
		}
		if body := text.Body(); body != "" {
			d.notify(Notice{Level: NoticeInfo, Text: body})
		}

	case protocol.EventStreamComplete, protocol.EventPong:
		// Acknowledged, no state change.

	default:
		d.logger.Logf("ignoring unknown event type %q", env.Type)
	}
}

func (d *Dispatcher) handleToolCall(call protocol.ToolCallContent) {
	// Sequential thinking is modeled as plain assistant text: the thought is
	// the content, and no ActionStep is ever created for it.
	if call.ToolName == protocol.ToolSequentialThinking {
		thought, _ := call.ToolInput["thought"].(string)
		d.appendAssistantText(thought)
		return
	}

	entry := d.log.Append(ConversationEntry{
		Role: RoleAssistant,
		Action: &ActionStep{
			Kind:    call.ToolName,
			Request: call.ToolInput,
		},
	})
	d.notify(HistoryChanged{})
	d.router.Route(entry, false)
}

func (d *Dispatcher) handleToolResult(res protocol.ToolResultContent) {
	if res.ToolName == protocol.ToolSequentialThinking {
		return
	}

	value := res.ResultValue()
	merged, ok := d.log.MergeIntoLast(
		func(e *ConversationEntry) bool {
			return e.HasAction(res.ToolName) && !e.Action.ResultReceived
		},
		func(e *ConversationEntry) {
			e.Action.Result = value
			e.Action.ResultReceived = true
		},
	)
	if !ok {
		// No adjacent call to correlate with; keep the result as a
		// standalone entry rather than dropping it.
		merged = d.log.Append(ConversationEntry{
			Role: RoleAssistant,
			Action: &ActionStep{
				Kind:           res.ToolName,
				Result:         value,
				ResultReceived: true,
			},
		})
	}
	d.notify(HistoryChanged{})
	d.scheduleReshow(merged)
}

// scheduleReshow re-routes entry with showOnly after the settle delay. Each
// merged entry keeps its own timer so results landing close together all get
// re-shown; session reset or close cancels every pending timer.
func (d *Dispatcher) scheduleReshow(entry ConversationEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.reshow == nil {
		d.reshow = make(map[int64]*time.Timer)
	}
	if t, ok := d.reshow[entry.ID]; ok {
		t.Stop()
	}
	d.reshow[entry.ID] = time.AfterFunc(d.reshowDelay, func() {
		d.mu.Lock()
		closed := d.closed
		delete(d.reshow, entry.ID)
		d.mu.Unlock()
		if closed {
			return
		}
		d.router.Route(entry, true)
	})
}

// Reset clears all conversation and session state for a fresh session.
func (d *Dispatcher) Reset() {
	d.cancelReshow()
	d.router.Reset()
	d.log.Reset()
	d.session.Reset()
	d.notify(HistoryChanged{})
	d.notify(FlagsChanged{})
}

// Close cancels pending timers and stops routing. The dispatcher must not be
// used afterwards.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	for id, t := range d.reshow {
		t.Stop()
		delete(d.reshow, id)
	}
	d.mu.Unlock()
	d.router.Stop()
}

func (d *Dispatcher) cancelReshow() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, t := range d.reshow {
		t.Stop()
		delete(d.reshow, id)
	}
}

func (d *Dispatcher) appendAssistantText(text string) {
	if text == "" {
		return
	}
	d.log.Append(ConversationEntry{Role: RoleAssistant, Content: text})
	d.notify(HistoryChanged{})
}

func (d *Dispatcher) decode(env protocol.Envelope, v any) bool {
	if len(env.Content) == 0 {
		// Some events (pong-like) legally carry no content; typed handlers
		// that need fields treat the zero value as absent.
		return true
	}
	if err := json.Unmarshal(env.Content, v); err != nil {
		d.logger.Logf("discarding %s event with malformed content: %v", env.Type, err)
		return false
	}
	return true
}

func (d *Dispatcher) notify(ev Event) {
	for _, o := range d.observers {
		o.OnEngineEvent(ev)
	}
}
