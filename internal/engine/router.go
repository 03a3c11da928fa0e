package engine

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tether/internal/protocol"
)

// SearchResult is one normalized web search hit.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// WebPayload is what the web panel receives: either structured search
// results, raw page content, or a screenshot, depending on Kind.
type WebPayload struct {
	EntryID    int64
	Kind       protocol.ToolKind
	Query      string
	URL        string
	Results    []SearchResult
	Content    string
	Screenshot string
}

// PanelSink receives the panel-specific payloads produced by routing.
// Implementations render; the router only decides. Methods are called from
// the dispatcher goroutine or a debounce timer, never concurrently with
// themselves.
type PanelSink interface {
	ShowWeb(p WebPayload)
	ShowCode(path string, content string)
	EchoTerminal(lines []string)
}

// echoState tracks what has already been written to the terminal panel for
// one bash entry, so re-routing never duplicates lines.
type echoState struct {
	command bool
	result  bool
}

// ActionRouter maps a tool entry to a target panel and payload. Routing is
// debounced (last invocation within the window wins) and idempotent: routing
// the same entry twice only re-applies panel selection, never re-appends
// terminal output.
type ActionRouter struct {
	session *Session
	sink    PanelSink

	mu     sync.Mutex
	deb    *debouncer
	echoed map[int64]*echoState
}

// NewActionRouter creates a router writing panel state into session and
// payloads into sink. A window of 0 uses DefaultDebounceWindow.
func NewActionRouter(session *Session, sink PanelSink, window time.Duration) *ActionRouter {
	return &ActionRouter{
		session: session,
		sink:    sink,
		deb:     newDebouncer(window),
		echoed:  make(map[int64]*echoState),
	}
}

// Route schedules routing of entry. Calls landing within the debounce window
// coalesce; only the last one takes effect.
func (r *ActionRouter) Route(entry ConversationEntry, showOnly bool) {
	r.deb.Trigger(func() { r.routeNow(entry, showOnly) })
}

// Flush applies any pending routing decision immediately.
func (r *ActionRouter) Flush() { r.deb.Flush() }

// Reset drops per-entry echo state and pending routing; used on session reset.
func (r *ActionRouter) Reset() {
	r.deb.Flush()
	r.mu.Lock()
	r.echoed = make(map[int64]*echoState)
	r.mu.Unlock()
}

// Stop cancels pending routing permanently.
func (r *ActionRouter) Stop() { r.deb.Stop() }

func (r *ActionRouter) routeNow(entry ConversationEntry, showOnly bool) {
	step := entry.Action
	if step == nil {
		return
	}

	switch {
	case step.Kind == protocol.ToolWebSearch:
		r.activate(PanelSelection{Active: PanelWeb, ActiveEntryID: entry.ID})
		r.sink.ShowWeb(WebPayload{
			EntryID: entry.ID,
			Kind:    step.Kind,
			Query:   step.RequestString("query"),
			Results: normalizeSearchResults(step.Result),
		})

	case step.Kind == protocol.ToolVisitWebpage:
		r.activate(PanelSelection{Active: PanelWeb, ActiveEntryID: entry.ID})
		r.sink.ShowWeb(WebPayload{
			EntryID: entry.ID,
			Kind:    step.Kind,
			URL:     step.RequestString("url"),
			Content: stringResult(step.Result),
		})

	case step.Kind == protocol.ToolBrowserUse:
		r.activate(PanelSelection{Active: PanelWeb, ActiveEntryID: entry.ID})
		r.sink.ShowWeb(WebPayload{
			EntryID:    entry.ID,
			Kind:       step.Kind,
			URL:        step.RequestString("url"),
			Screenshot: stringResult(step.Result),
		})

	case step.Kind == protocol.ToolBash:
		r.activate(PanelSelection{Active: PanelTerminal})
		r.echoBash(entry, showOnly)

	case step.Kind == protocol.ToolFileWrite || step.Kind == protocol.ToolStrReplaceEditor:
		path := step.RequestString("path")
		if path == "" {
			path = step.RequestString("file")
		}
		resolved := ResolveWorkspacePath(r.session.WorkspaceRoot(), path)
		r.activate(PanelSelection{Active: PanelCode, ActiveDocument: resolved})
		content := step.RequestString("file_text")
		if content == "" {
			content = step.RequestString("content")
		}
		r.sink.ShowCode(resolved, content)

	case step.Kind.IsBrowserNavigation():
		// Panel switch only; the last browser_use payload stays on screen.
		sel := r.session.Panel()
		sel.Active = PanelWeb
		r.activate(sel)

	default:
		// Unrecognized kinds and the "complete" sentinel route nowhere.
	}
}

// activate records the panel selection, preserving ActiveEntryID when the
// new selection does not claim the web panel payload.
func (r *ActionRouter) activate(sel PanelSelection) {
	if sel.ActiveEntryID == 0 && sel.Active != PanelWeb {
		sel.ActiveEntryID = r.session.Panel().ActiveEntryID
	}
	r.session.SetPanel(sel)
}

func (r *ActionRouter) echoBash(entry ConversationEntry, showOnly bool) {
	r.mu.Lock()
	state := r.echoed[entry.ID]
	if state == nil {
		state = &echoState{}
		r.echoed[entry.ID] = state
	}
	r.mu.Unlock()

	step := entry.Action
	var lines []string
	if !showOnly && !state.command {
		if cmd := step.RequestString("command"); cmd != "" {
			lines = append(lines, "$ "+cmd)
		}
		state.command = true
	}
	if step.ResultReceived && !state.result {
		if out := stringResult(step.Result); out != "" {
			lines = append(lines, strings.Split(strings.TrimRight(out, "\n"), "\n")...)
		}
		state.result = true
	}
	if len(lines) > 0 {
		r.sink.EchoTerminal(lines)
	}
}

// ResolveWorkspacePath maps a tool-request path onto the workspace root: a
// path already under the root passes through, anything else is joined under
// the root.
func ResolveWorkspacePath(root, path string) string {
	if root == "" || path == "" {
		return path
	}
	if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
		return path
	}
	return filepath.Join(root, path)
}

func stringResult(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// normalizeSearchResults flattens the backend's search result payload, which
// arrives either as a list of {title,url,content} objects or as plain text.
func normalizeSearchResults(v any) []SearchResult {
	list, ok := v.([]any)
	if !ok {
		if s := stringResult(v); s != "" {
			return []SearchResult{{Snippet: s}}
		}
		return nil
	}
	out := make([]SearchResult, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			out = append(out, SearchResult{Snippet: stringResult(item)})
			continue
		}
		res := SearchResult{}
		res.Title, _ = m["title"].(string)
		res.URL, _ = m["url"].(string)
		if snippet, ok := m["content"].(string); ok {
			res.Snippet = snippet
		} else if snippet, ok := m["snippet"].(string); ok {
			res.Snippet = snippet
		}
		out = append(out, res)
	}
	return out
}
