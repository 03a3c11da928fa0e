package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tether/internal/protocol"
)

// recordingObserver collects engine events for verification.
type recordingObserver struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingObserver) OnEngineEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingObserver) notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notice
	for _, ev := range r.events {
		if n, ok := ev.(Notice); ok {
			out = append(out, n)
		}
	}
	return out
}

type testRig struct {
	dispatcher *Dispatcher
	log        *ConversationLog
	session    *Session
	router     *ActionRouter
	sink       *recordingSink
	observer   *recordingObserver
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	log := NewConversationLog()
	session := NewSession()
	sink := &recordingSink{}
	router := NewActionRouter(session, sink, time.Millisecond)
	d := NewDispatcher(log, session, router, NopLogger{}, 5*time.Millisecond)
	obs := &recordingObserver{}
	d.AddObserver(obs)
	t.Cleanup(d.Close)
	return &testRig{dispatcher: d, log: log, session: session, router: router, sink: sink, observer: obs}
}

// settle waits out the debounce window and the reshow delay.
func (r *testRig) settle() {
	time.Sleep(30 * time.Millisecond)
	r.router.Flush()
}

func (r *testRig) handle(raw string) {
	r.dispatcher.HandleRaw([]byte(raw))
}

func TestDispatcherConnectionAndWorkspace(t *testing.T) {
	rig := newTestRig(t)
	rig.handle(`{"type":"connection_established","content":{"message":"Connected"}}`)
	rig.handle(`{"type":"workspace_info","content":{"path":"/workspace/abc"}}`)

	assert.True(t, rig.session.Flags().Connected)
	assert.Equal(t, "/workspace/abc", rig.session.WorkspaceRoot())
	assert.Equal(t, 0, rig.log.Len(), "connection events are not conversation history")
}

func TestDispatcherProcessingIsIdempotent(t *testing.T) {
	rig := newTestRig(t)
	rig.handle(`{"type":"processing","content":{"message":"Processing your request..."}}`)
	rig.handle(`{"type":"processing","content":{"message":"Processing your request..."}}`)

	assert.True(t, rig.session.Flags().Busy)
	assert.Equal(t, 0, rig.log.Len())
}

func TestDispatcherThinkingAndResponse(t *testing.T) {
	rig := newTestRig(t)
	rig.handle(`{"type":"processing","content":{}}`)
	rig.handle(`{"type":"agent_thinking","content":{"text":"let me look"}}`)
	rig.handle(`{"type":"agent_response","content":{"text":"done: 42"}}`)

	entries := rig.log.Snapshot()
	require.Len(t, entries, 2)
	assert.Equal(t, RoleAssistant, entries[0].Role)
	assert.Equal(t, "let me look", entries[0].Content)
	assert.Equal(t, "done: 42", entries[1].Content)

	flags := rig.session.Flags()
	assert.False(t, flags.Busy)
	assert.True(t, flags.Completed)
}

func TestDispatcherBashCallThenResult(t *testing.T) {
	rig := newTestRig(t)
	rig.handle(`{"type":"tool_call","content":{"tool_name":"bash","tool_input":{"command":"ls"}}}`)
	rig.handle(`{"type":"tool_result","content":{"tool_name":"bash","result":"a.txt\nb.txt"}}`)
	rig.settle()

	entries := rig.log.Snapshot()
	require.Len(t, entries, 1, "the result merged into the call entry")
	step := entries[0].Action
	require.NotNil(t, step)
	assert.Equal(t, protocol.ToolBash, step.Kind)
	assert.Equal(t, "a.txt\nb.txt", step.Result)
	assert.True(t, step.ResultReceived)

	assert.Equal(t, PanelTerminal, rig.session.Panel().Active)
	assert.Contains(t, rig.sink.terminal(), "$ ls")
	assert.Contains(t, rig.sink.terminal(), "a.txt")
}

func TestDispatcherSequentialThinkingIsPlainText(t *testing.T) {
	rig := newTestRig(t)
	before := rig.session.Panel()
	rig.handle(`{"type":"tool_call","content":{"tool_name":"sequential_thinking","tool_input":{"thought":"planning"}}}`)
	rig.handle(`{"type":"tool_result","content":{"tool_name":"sequential_thinking","result":"ignored"}}`)
	rig.settle()

	entries := rig.log.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, "planning", entries[0].Content)
	assert.Nil(t, entries[0].Action, "sequential thinking never becomes an action step")
	assert.Equal(t, before, rig.session.Panel(), "no panel change")
}

func TestDispatcherUnmatchedResultAppendsFallback(t *testing.T) {
	rig := newTestRig(t)
	rig.handle(`{"type":"tool_call","content":{"tool_name":"bash","tool_input":{"command":"ls"}}}`)
	rig.handle(`{"type":"agent_thinking","content":{"text":"hmm"}}`)
	rig.handle(`{"type":"tool_result","content":{"tool_name":"bash","result":"late"}}`)
	rig.settle()

	entries := rig.log.Snapshot()
	require.Len(t, entries, 3, "an uncorrelatable result is appended, never dropped")
	last := entries[2]
	require.NotNil(t, last.Action)
	assert.Equal(t, "late", last.Action.Result)
	assert.True(t, last.Action.ResultReceived)

	first := entries[0]
	assert.False(t, first.Action.ResultReceived, "the stale call stays pending")
}

func TestDispatcherResultKindMismatchAppends(t *testing.T) {
	rig := newTestRig(t)
	rig.handle(`{"type":"tool_call","content":{"tool_name":"bash","tool_input":{"command":"ls"}}}`)
	rig.handle(`{"type":"tool_result","content":{"tool_name":"web_search","result":"nope"}}`)
	rig.settle()

	assert.Equal(t, 2, rig.log.Len())
}

func TestDispatcherEmptyResultStillCompletes(t *testing.T) {
	rig := newTestRig(t)
	rig.handle(`{"type":"tool_call","content":{"tool_name":"bash","tool_input":{"command":"true"}}}`)
	rig.handle(`{"type":"tool_result","content":{"tool_name":"bash","result":null}}`)
	rig.settle()

	entries := rig.log.Snapshot()
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Action.Result)
	assert.True(t, entries[0].Action.ResultReceived, "an empty result still marks completion")
}

func TestDispatcherResultMergesAtMostOnce(t *testing.T) {
	rig := newTestRig(t)
	rig.handle(`{"type":"tool_call","content":{"tool_name":"bash","tool_input":{"command":"ls"}}}`)
	rig.handle(`{"type":"tool_result","content":{"tool_name":"bash","result":"first"}}`)
	rig.handle(`{"type":"tool_result","content":{"tool_name":"bash","result":"second"}}`)
	rig.settle()

	entries := rig.log.Snapshot()
	require.Len(t, entries, 2, "a second result for a completed step appends instead of overwriting")
	assert.Equal(t, "first", entries[0].Action.Result)
	assert.Equal(t, "second", entries[1].Action.Result)
}

func TestDispatcherBrowserUsePush(t *testing.T) {
	rig := newTestRig(t)
	rig.handle(`{"type":"browser_use","content":{"url":"https://example.com","screenshot":"pixels"}}`)
	rig.settle()

	entries := rig.log.Snapshot()
	require.Len(t, entries, 1)
	step := entries[0].Action
	require.NotNil(t, step)
	assert.Equal(t, protocol.ToolBrowserUse, step.Kind)
	assert.Equal(t, "https://example.com", step.RequestString("url"))
	assert.Equal(t, "pixels", step.Result)
	assert.True(t, step.ResultReceived)

	assert.Equal(t, PanelWeb, rig.session.Panel().Active)
	require.Len(t, rig.sink.web, 1)
	assert.Equal(t, "pixels", rig.sink.web[0].Screenshot)
}

func TestDispatcherUploadSuccess(t *testing.T) {
	rig := newTestRig(t)
	rig.session.UpdateFlags(func(f *Flags) { f.Uploading = true })
	rig.session.UpdateUploads(func(r *UploadRegistry) { r.Pending = 2 })

	rig.handle(`{"type":"upload_success","content":{"message":"ok","files":[{"path":"a.png"},{"path":"b.txt"}]}}`)

	reg := rig.session.Uploads()
	assert.Equal(t, []string{"a.png", "b.txt"}, reg.Completed)
	assert.Zero(t, reg.Pending)
	assert.False(t, rig.session.Flags().Uploading)
}

func TestDispatcherErrorClearsFlagsAndNotifies(t *testing.T) {
	rig := newTestRig(t)
	rig.session.UpdateFlags(func(f *Flags) { f.Busy = true; f.Uploading = true })

	rig.handle(`{"type":"error","content":{"message":"agent exploded"}}`)

	flags := rig.session.Flags()
	assert.False(t, flags.Busy)
	assert.False(t, flags.Uploading)

	notices := rig.observer.notices()
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeError, notices[0].Level)
	assert.Equal(t, "agent exploded", notices[0].Text)
}

func TestDispatcherMalformedEventsAreDiscarded(t *testing.T) {
	rig := newTestRig(t)
	rig.handle(`{"type":"tool_call","content":{"tool_name":"bash","tool_input":{"command":"ls"}}}`)
	before := rig.log.Len()

	assert.NotPanics(t, func() {
		rig.handle(`not json at all`)
		rig.handle(`{"content":{}}`)
		rig.handle(`{"type":"tool_call","content":"not an object"}`)
		rig.handle(`{"type":"workspace_info","content":[1,2,3]}`)
	})

	assert.Equal(t, before, rig.log.Len(), "malformed events mutate nothing")
	assert.Equal(t, "", rig.session.WorkspaceRoot())
}

func TestDispatcherUnknownEventTypeIgnored(t *testing.T) {
	rig := newTestRig(t)
	rig.handle(`{"type":"telemetry_blob","content":{"x":1}}`)
	assert.Equal(t, 0, rig.log.Len())
}

func TestDispatcherEntryCountProperty(t *testing.T) {
	// Entry count == append-triggering events - merge-triggering results
	// that found a match.
	rig := newTestRig(t)
	events := []string{
		`{"type":"agent_thinking","content":{"text":"t1"}}`,                                  // append
		`{"type":"tool_call","content":{"tool_name":"web_search","tool_input":{"query":"q"}}}`, // append
		`{"type":"tool_result","content":{"tool_name":"web_search","result":[]}}`,            // merge
		`{"type":"tool_call","content":{"tool_name":"bash","tool_input":{"command":"ls"}}}`,  // append
		`{"type":"tool_result","content":{"tool_name":"bash","result":"x"}}`,                 // merge
		`{"type":"agent_response","content":{"text":"done"}}`,                                // append
	}
	for _, ev := range events {
		rig.handle(ev)
	}
	rig.settle()

	assert.Equal(t, 4, rig.log.Len(), "merged results do not add entries")
}

func TestDispatcherRapidCallsDebounceToLastPanel(t *testing.T) {
	log := NewConversationLog()
	session := NewSession()
	sink := &recordingSink{}
	router := NewActionRouter(session, sink, 40*time.Millisecond)
	d := NewDispatcher(log, session, router, NopLogger{}, time.Millisecond)
	defer d.Close()

	d.HandleRaw([]byte(`{"type":"tool_call","content":{"tool_name":"web_search","tool_input":{"query":"q"}}}`))
	d.HandleRaw([]byte(`{"type":"tool_call","content":{"tool_name":"bash","tool_input":{"command":"ls"}}}`))

	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, PanelTerminal, session.Panel().Active, "only the second call's panel is active after settling")
	assert.Equal(t, 2, log.Len(), "both calls are still recorded in history")
}

func TestDispatcherBackToBackResultsAllReshow(t *testing.T) {
	rig := newTestRig(t)
	rig.handle(`{"type":"tool_call","content":{"tool_name":"bash","tool_input":{"command":"ls"}}}`)
	rig.handle(`{"type":"tool_result","content":{"tool_name":"bash","result":"a.txt"}}`)
	rig.handle(`{"type":"tool_call","content":{"tool_name":"web_search","tool_input":{"query":"go"}}}`)
	rig.handle(`{"type":"tool_result","content":{"tool_name":"web_search","result":"done"}}`)
	rig.settle()

	term := rig.sink.terminal()
	assert.Contains(t, term, "$ ls")
	assert.Contains(t, term, "a.txt", "a second result inside the settle delay must not swallow the first entry's re-show")
}

func TestDispatcherWorkspaceInfoWakesObservers(t *testing.T) {
	rig := newTestRig(t)
	rig.handle(`{"type":"workspace_info","content":{"path":"/workspace/abc"}}`)

	rig.observer.mu.Lock()
	defer rig.observer.mu.Unlock()
	var woke bool
	for _, ev := range rig.observer.events {
		if _, ok := ev.(FlagsChanged); ok {
			woke = true
		}
	}
	assert.True(t, woke, "the workspace root change must wake the UI")
}

func TestDispatcherResetClearsEverything(t *testing.T) {
	rig := newTestRig(t)
	rig.handle(`{"type":"connection_established","content":{}}`)
	rig.handle(`{"type":"tool_call","content":{"tool_name":"bash","tool_input":{"command":"ls"}}}`)
	rig.handle(`{"type":"upload_success","content":{"files":[{"path":"a.png"}]}}`)
	rig.settle()

	rig.dispatcher.Reset()

	assert.Equal(t, 0, rig.log.Len())
	assert.Equal(t, PanelSelection{Active: PanelWeb}, rig.session.Panel())
	assert.Empty(t, rig.session.Uploads().Completed)
	assert.True(t, rig.session.Flags().Connected)
}

func TestDispatcherCloseCancelsPendingReshow(t *testing.T) {
	log := NewConversationLog()
	session := NewSession()
	sink := &recordingSink{}
	router := NewActionRouter(session, sink, time.Millisecond)
	d := NewDispatcher(log, session, router, NopLogger{}, 50*time.Millisecond)

	d.HandleRaw([]byte(`{"type":"tool_call","content":{"tool_name":"bash","tool_input":{"command":"ls"}}}`))
	time.Sleep(10 * time.Millisecond)
	router.Flush()
	termBefore := len(sink.terminal())

	d.HandleRaw([]byte(`{"type":"tool_result","content":{"tool_name":"bash","result":"out"}}`))
	d.Close()
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, termBefore, len(sink.terminal()), "close cancels the scheduled re-show")
}

func TestDispatcherObserversSeeHistoryChanges(t *testing.T) {
	rig := newTestRig(t)
	rig.handle(`{"type":"agent_thinking","content":{"text":"x"}}`)

	rig.observer.mu.Lock()
	defer rig.observer.mu.Unlock()
	require.NotEmpty(t, rig.observer.events)
	var sawHistory bool
	for _, ev := range rig.observer.events {
		if _, ok := ev.(HistoryChanged); ok {
			sawHistory = true
		}
	}
	assert.True(t, sawHistory)
}

func TestDispatcherManyEventsStayOrdered(t *testing.T) {
	rig := newTestRig(t)
	for i := 0; i < 50; i++ {
		rig.handle(fmt.Sprintf(`{"type":"agent_thinking","content":{"text":"step %d"}}`, i))
	}
	entries := rig.log.Snapshot()
	require.Len(t, entries, 50)
	for i, e := range entries {
		assert.Equal(t, fmt.Sprintf("step %d", i), e.Content)
		assert.Equal(t, int64(i+1), e.ID)
	}
}
