package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/notepress/pkg/llm"
	"github.com/entrhq/notepress/pkg/types"
)

// fakeAPI records the last request body and answers with a canned completion.
type fakeAPI struct {
	lastBody map[string]interface{}
	response string
}

func (f *fakeAPI) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		data, _ := io.ReadAll(r.Body)
		f.lastBody = map[string]interface{}{}
		_ = json.Unmarshal(data, &f.lastBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, f.response)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(t *testing.T, api *fakeAPI, opts ...ProviderOption) *Provider {
	t.Helper()
	srv := api.server(t)
	opts = append([]ProviderOption{WithBaseURL(srv.URL + "/"), WithMaxRetries(0)}, opts...)
	p, err := NewProvider("test-key", opts...)
	require.NoError(t, err)
	return p
}

const textCompletion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1,
  "model": "gpt-4.1",
  "choices": [{"index": 0, "finish_reason": "stop",
    "message": {"role": "assistant", "content": "ok"}}],
  "usage": {"prompt_tokens": 12, "completion_tokens": 1, "total_tokens": 13}
}`

const toolCompletion = `{
  "id": "chatcmpl-2",
  "object": "chat.completion",
  "created": 1,
  "model": "gpt-4.1",
  "choices": [{"index": 0, "finish_reason": "tool_calls",
    "message": {"role": "assistant", "content": null, "tool_calls": [
      {"id": "call_1", "type": "function",
       "function": {"name": "create_page", "arguments": "{\"title\":\"uploads\"}"}}]}}],
  "usage": {"prompt_tokens": 30, "completion_tokens": 8, "total_tokens": 38}
}`

func TestNewProviderRequiresKey(t *testing.T) {
	_, err := NewProvider("")
	assert.Error(t, err)
}

func TestCompleteText(t *testing.T) {
	api := &fakeAPI{response: textCompletion}
	p := newTestProvider(t, api, WithModel("gpt-4.1-mini"))

	res, err := p.Complete(context.Background(), []*types.Message{
		types.NewSystemMessage("answer ok or ko"),
		types.NewUserMessage("draft"),
	})
	require.NoError(t, err)

	assert.Equal(t, "ok", res.Message.Content)
	assert.Equal(t, types.RoleAssistant, res.Message.Role)
	assert.Empty(t, res.Message.ToolCalls)
	assert.Equal(t, 13, res.Usage.TotalTokens)

	assert.Equal(t, "gpt-4.1-mini", api.lastBody["model"])
	assert.EqualValues(t, 0, api.lastBody["temperature"])
	_, hasTools := api.lastBody["tools"]
	assert.False(t, hasTools)
}

func TestCompleteWithTools(t *testing.T) {
	api := &fakeAPI{response: toolCompletion}
	p := newTestProvider(t, api)

	defs := []types.ToolDefinition{{
		Name:        "create_page",
		Description: "Create a page",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"title": map[string]interface{}{"type": "string"}},
			"required":   []string{"title"},
		},
	}}

	history := []*types.Message{
		types.NewUserMessage("publish"),
		types.NewToolCallMessage(types.ToolCall{ID: "call_0", Name: "search", Arguments: json.RawMessage(`{}`)}),
		types.NewToolResultMessage("call_0", "nothing found"),
	}

	res, err := p.Complete(context.Background(), history, llm.WithTools(defs))
	require.NoError(t, err)

	require.Len(t, res.Message.ToolCalls, 1)
	call := res.Message.ToolCalls[0]
	assert.Equal(t, "call_1", call.ID)
	assert.Equal(t, "create_page", call.Name)
	assert.JSONEq(t, `{"title":"uploads"}`, string(call.Arguments))

	tools, ok := api.lastBody["tools"].([]interface{})
	require.True(t, ok, "tools should be sent")
	require.Len(t, tools, 1)

	msgs, ok := api.lastBody["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, msgs, 3)
	assistant := msgs[1].(map[string]interface{})
	assert.Equal(t, "assistant", assistant["role"])
	assert.NotEmpty(t, assistant["tool_calls"])
	tool := msgs[2].(map[string]interface{})
	assert.Equal(t, "tool", tool["role"])
	assert.Equal(t, "call_0", tool["tool_call_id"])
}

func TestTranscribeSendsDataURI(t *testing.T) {
	api := &fakeAPI{response: textCompletion}
	p := newTestProvider(t, api, WithVisionModel("gpt-4o-mini"))

	text, err := p.Transcribe(context.Background(), "Extract all text", llm.Image{
		Name:      "page1.jpg",
		MediaType: "image/jpeg",
		Data:      []byte{0xff, 0xd8, 0xff},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, "gpt-4o-mini", api.lastBody["model"])

	raw, _ := json.Marshal(api.lastBody["messages"])
	assert.Contains(t, string(raw), "data:image/jpeg;base64,/9j/")
	assert.Contains(t, string(raw), "Extract all text")
}

func TestCompleteEmptyChoices(t *testing.T) {
	api := &fakeAPI{response: `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`}
	p := newTestProvider(t, api)

	_, err := p.Complete(context.Background(), []*types.Message{types.NewUserMessage("hi")})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestCloneWithModel(t *testing.T) {
	p, err := NewProvider("key", WithModel("gpt-4.1"))
	require.NoError(t, err)

	clone := p.CloneWithModel("gpt-4.1-mini")
	assert.Equal(t, "gpt-4.1-mini", clone.GetModel())
	assert.Equal(t, "gpt-4.1", p.GetModel())

	assert.Same(t, llm.Provider(p), llm.WithModel(p, ""))
	assert.Equal(t, "o3", llm.WithModel(p, "o3").GetModel())
}
