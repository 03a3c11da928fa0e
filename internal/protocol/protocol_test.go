package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"type":"tool_call","content":{"tool_name":"bash","tool_input":{"command":"ls"}}}`))
	require.NoError(t, err)
	assert.Equal(t, EventToolCall, env.Type)

	var call ToolCallContent
	require.NoError(t, json.Unmarshal(env.Content, &call))
	assert.Equal(t, ToolBash, call.ToolName)
	assert.Equal(t, "ls", call.ToolInput["command"])
}

func TestParseEnvelopeRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"missing type", `{"content":{}}`},
		{"empty type", `{"type":"","content":{}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseEnvelope([]byte(tc.raw))
			assert.Error(t, err)
		})
	}
}

func TestToolKindClassification(t *testing.T) {
	assert.True(t, ToolBrowserClick.IsBrowserNavigation())
	assert.True(t, ToolBrowserSwitchTab.IsBrowserNavigation())
	assert.False(t, ToolBrowserUse.IsBrowserNavigation(), "browser_use carries a screenshot payload, not just a switch")
	assert.False(t, ToolBash.IsBrowserNavigation())

	assert.True(t, ToolBash.IsRecognized())
	assert.True(t, ToolComplete.IsRecognized())
	assert.True(t, ToolBrowserScrollUp.IsRecognized())
	assert.False(t, ToolKind("deploy_to_mars").IsRecognized())
}

func TestToolResultContentValue(t *testing.T) {
	var res ToolResultContent
	require.NoError(t, json.Unmarshal([]byte(`{"tool_name":"bash","result":"a.txt\nb.txt"}`), &res))
	assert.Equal(t, "a.txt\nb.txt", res.ResultValue())

	res = ToolResultContent{ToolName: ToolWebSearch}
	assert.Nil(t, res.ResultValue(), "absent result decodes to nil, not empty string")

	require.NoError(t, json.Unmarshal([]byte(`{"tool_name":"web_search","result":[{"title":"t","url":"u"}]}`), &res))
	list, ok := res.ResultValue().([]any)
	require.True(t, ok)
	assert.Len(t, list, 1)
}

func TestTextContentBody(t *testing.T) {
	assert.Equal(t, "hi", TextContent{Text: "hi"}.Body())
	assert.Equal(t, "oops", TextContent{Message: "oops"}.Body())
	assert.Equal(t, "hi", TextContent{Text: "hi", Message: "oops"}.Body())
}

func TestOutboundMessages(t *testing.T) {
	data, err := json.Marshal(QueryMessage("hello", true))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"query","content":{"text":"hello","resume":true}}`, string(data))

	data, err = json.Marshal(UploadFileMessage([]FilePayload{{Path: "a.png", Content: "data:image/png;base64,AAAA"}}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"upload_file","content":{"files":[{"path":"a.png","content":"data:image/png;base64,AAAA"}]}}`, string(data))

	data, err = json.Marshal(WorkspaceInfoRequest())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"workspace_info","content":{}}`, string(data))
}
