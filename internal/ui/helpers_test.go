package ui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tether/internal/engine"
	"tether/internal/protocol"
)

func TestGetAtPosition(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		cursor int
		prefix string
		found  bool
	}{
		{"at start", "@ma", 3, "ma", true},
		{"mid sentence", "look at @re", 11, "re", true},
		{"bare at", "send @", 6, "", true},
		{"no mention", "plain text", 10, "", false},
		{"space breaks mention", "@done now", 9, "", false},
		{"cursor before at", "@file", 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefix, _, found := GetAtPosition(tt.input, tt.cursor)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.prefix, prefix)
		})
	}
}

func TestExtractFileMentions(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile("notes.txt", []byte("x"), 0o644))
	require.NoError(t, os.WriteFile("data.csv", []byte("x"), 0o644))

	clean, files := ExtractFileMentions("summarize @notes.txt and @data.csv please @missing.txt")
	assert.Equal(t, []string{"notes.txt", "data.csv"}, files, "nonexistent files are dropped")
	assert.Equal(t, "summarize and please", clean)
}

func TestExtractFileMentionsQuotedAndDuplicate(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.Mkdir("my dir", 0o755))
	require.NoError(t, os.WriteFile(filepath.Join("my dir", "a.txt"), []byte("x"), 0o644))

	clean, files := ExtractFileMentions(`read @"my dir/a.txt" and @"my dir/a.txt"`)
	assert.Equal(t, []string{"my dir/a.txt"}, files)
	assert.Equal(t, "read and", clean)
}

func TestReadAttachmentsTextAndBinary(t *testing.T) {
	dir := t.TempDir()
	textPath := filepath.Join(dir, "readme.md")
	require.NoError(t, os.WriteFile(textPath, []byte("# hello"), 0o644))
	pngPath := filepath.Join(dir, "pixel.png")
	require.NoError(t, os.WriteFile(pngPath, []byte{0x89, 0x50, 0x4E, 0x47, 0x00}, 0o644))

	payloads, err := ReadAttachments([]string{textPath, pngPath})
	require.NoError(t, err)
	require.Len(t, payloads, 2)

	assert.Equal(t, "readme.md", payloads[0].Path)
	assert.Equal(t, "# hello", payloads[0].Content)

	assert.Equal(t, "pixel.png", payloads[1].Path)
	assert.True(t, strings.HasPrefix(payloads[1].Content, "data:image/png;base64,"))
}

func TestReadAttachmentsMissingFile(t *testing.T) {
	_, err := ReadAttachments([]string{filepath.Join(t.TempDir(), "gone.txt")})
	assert.Error(t, err)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "hello", TruncateRunes("hello", 10))
	assert.Equal(t, "hell…", TruncateRunes("hello world", 5))
	assert.Equal(t, "…", TruncateRunes("hello", 1))
	assert.Equal(t, "", TruncateRunes("hello", 0))
	assert.Equal(t, "héllo", TruncateRunes("héllo", 5))
}

func TestWrappedLineCount(t *testing.T) {
	assert.Equal(t, 1, WrappedLineCount("short", 80))
	assert.Equal(t, 2, WrappedLineCount("a\nb", 80))
	assert.Equal(t, 3, WrappedLineCount(strings.Repeat("x", 25), 10))
	assert.Equal(t, 2, WrappedLineCount("a\n", 80), "trailing newline counts as a line")
}

func TestActionSummary(t *testing.T) {
	tests := []struct {
		step *engine.ActionStep
		want string
	}{
		{&engine.ActionStep{Kind: protocol.ToolWebSearch, Request: map[string]any{"query": "go generics"}}, `searched the web for "go generics"`},
		{&engine.ActionStep{Kind: protocol.ToolBash, Request: map[string]any{"command": "ls -la"}}, "ran ls -la"},
		{&engine.ActionStep{Kind: protocol.ToolVisitWebpage, Request: map[string]any{"url": "https://x.test"}}, "visited https://x.test"},
		{&engine.ActionStep{Kind: protocol.ToolFileWrite, Request: map[string]any{"path": "main.go"}}, "edited main.go"},
		{&engine.ActionStep{Kind: protocol.ToolBrowserNavigation, Request: map[string]any{}}, "navigated the browser"},
		{&engine.ActionStep{Kind: protocol.ToolKind("custom_tool"), Request: map[string]any{}}, "used custom_tool"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ActionSummary(tt.step))
	}
}

func TestPanelStateSink(t *testing.T) {
	p := NewPanelState()
	var woken int
	p.SetNotify(func(tea.Msg) { woken++ })

	p.ShowWeb(engine.WebPayload{Query: "q"})
	p.ShowCode("/workspace/x/main.go", "package main")
	p.EchoTerminal([]string{"$ ls", "a.txt"})

	web, ok := p.Web()
	assert.True(t, ok)
	assert.Equal(t, "q", web.Query)

	path, body := p.Code()
	assert.Equal(t, "/workspace/x/main.go", path)
	assert.Equal(t, "package main", body)

	assert.Equal(t, []string{"$ ls", "a.txt"}, p.Terminal())
	assert.Equal(t, 3, woken)

	p.Reset()
	_, ok = p.Web()
	assert.False(t, ok)
	assert.Empty(t, p.Terminal())
}

func TestPanelStateTerminalCap(t *testing.T) {
	p := NewPanelState()
	lines := make([]string, MaxTerminalKeep+50)
	for i := range lines {
		lines[i] = "line"
	}
	p.EchoTerminal(lines)
	assert.Len(t, p.Terminal(), MaxTerminalKeep)
}
