package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mcpschema "github.com/viant/mcp-protocol/schema"
	mcpclient "github.com/viant/mcp/client"

	"github.com/entrhq/notepress/pkg/agent/tools"
)

// The real client must satisfy Client and has a Close without a result.
var (
	_ Client               = (*mcpclient.Client)(nil)
	_ interface{ Close() } = (*mcpclient.Client)(nil)
	_ interface{ Close() } = (*fakeClient)(nil)
	_ io.Closer            = (*fakeTransport)(nil)
)

// fakeClient serves a two-page catalog and records tool calls. Its Close has
// the same shape as the viant client's.
type fakeClient struct {
	initErr error
	callErr error
	pages   []string
	results map[string]string
	calls   []*mcpschema.CallToolRequestParams
	closed  int
}

func (f *fakeClient) Initialize(context.Context, ...mcpclient.RequestOption) (*mcpschema.InitializeResult, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &mcpschema.InitializeResult{}, nil
}

func (f *fakeClient) ListTools(_ context.Context, cursor *string, _ ...mcpclient.RequestOption) (*mcpschema.ListToolsResult, error) {
	idx := 0
	if cursor != nil && *cursor == "page2" {
		idx = 1
	}
	var out mcpschema.ListToolsResult
	if err := json.Unmarshal([]byte(f.pages[idx]), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (f *fakeClient) CallTool(_ context.Context, params *mcpschema.CallToolRequestParams, _ ...mcpclient.RequestOption) (*mcpschema.CallToolResult, error) {
	f.calls = append(f.calls, params)
	if f.callErr != nil {
		return nil, f.callErr
	}
	var out mcpschema.CallToolResult
	if err := json.Unmarshal([]byte(f.results[params.Name]), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (f *fakeClient) Close() {
	f.closed++
}

type fakeTransport struct {
	closed int
	err    error
}

func (f *fakeTransport) Close() error {
	f.closed++
	return f.err
}

// erroringClient closes with an error, like clients that implement io.Closer.
type erroringClient struct {
	*fakeClient
	err error
}

func (c *erroringClient) Close() error {
	c.fakeClient.closed++
	return c.err
}

func newFake() *fakeClient {
	return &fakeClient{
		pages: []string{
			`{"tools":[{"name":"create_page","description":"Create a page",
			  "inputSchema":{"type":"object","properties":{"title":{"type":"string"},"parent_id":{"type":"string"}},"required":["title"]}}],
			  "nextCursor":"page2"}`,
			`{"tools":[{"name":"search","inputSchema":{"type":"object","properties":{"query":{"type":"string"}}}}]}`,
		},
		results: map[string]string{
			"create_page": `{"content":[{"type":"text","text":"Page created: "},{"type":"text","text":"id=abc123"}]}`,
			"search":      `{"content":[]}`,
		},
	}
}

func TestListToolsFollowsCursor(t *testing.T) {
	s, err := NewSession(context.Background(), newFake(), "")
	require.NoError(t, err)

	catalog, err := s.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, catalog, 2)
	assert.Equal(t, "create_page", catalog[0].Name)
	assert.Equal(t, "Create a page", catalog[0].Description)
	assert.Equal(t, []string{"title"}, catalog[0].Schema["required"])
	assert.Equal(t, "search", catalog[1].Name)
	assert.Empty(t, catalog[1].Description)
}

func TestCallToolConcatenatesText(t *testing.T) {
	fake := newFake()
	s, err := NewSession(context.Background(), fake, "secret")
	require.NoError(t, err)

	out, err := s.CallTool(context.Background(), "create_page", map[string]interface{}{"title": "uploads"})
	require.NoError(t, err)
	assert.Equal(t, "Page created: id=abc123", out)

	out, err = s.CallTool(context.Background(), "search", nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	require.Len(t, fake.calls, 2)
	assert.NotNil(t, fake.calls[1].Arguments)
}

func TestCallToolTransportError(t *testing.T) {
	fake := newFake()
	fake.callErr = errors.New("connection reset")
	s, err := NewSession(context.Background(), fake, "")
	require.NoError(t, err)

	_, err = s.CallTool(context.Background(), "create_page", map[string]interface{}{"title": "x"})
	assert.ErrorIs(t, err, fake.callErr)
}

func TestBindRegistersValidatedTools(t *testing.T) {
	fake := newFake()
	s, err := NewSession(context.Background(), fake, "")
	require.NoError(t, err)

	reg := tools.NewRegistry()
	n, err := s.Bind(context.Background(), reg)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"create_page", "search"}, reg.Names())

	out, err := reg.Invoke(context.Background(), "create_page", json.RawMessage(`{"title":"uploads"}`))
	require.NoError(t, err)
	assert.Equal(t, "Page created: id=abc123", out)

	_, err = reg.Invoke(context.Background(), "create_page", json.RawMessage(`{}`))
	var argErr *tools.ArgumentError
	assert.ErrorAs(t, err, &argErr)
	assert.Len(t, fake.calls, 1, "invalid arguments must not reach the server")
}

func TestCloseReleasesClientAndTransport(t *testing.T) {
	fake := newFake()
	tr := &fakeTransport{err: errors.New("pipe already closed")}
	s, err := newSession(context.Background(), fake, "", tr)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Close(), tr.err)
	assert.ErrorIs(t, s.Close(), tr.err)
	assert.Equal(t, 1, fake.closed, "client Close must run once")
	assert.Equal(t, 1, tr.closed, "transport Close must run once")

	_, err = s.CallTool(context.Background(), "search", nil)
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.ListTools(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestCloseJoinsClientError(t *testing.T) {
	cli := &erroringClient{fakeClient: newFake(), err: errors.New("client close")}
	tr := &fakeTransport{}
	s, err := newSession(context.Background(), cli, "", tr)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Close(), cli.err)
	assert.Equal(t, 1, cli.closed)
	assert.Equal(t, 1, tr.closed)
}

func TestNewSessionClosesClientOnly(t *testing.T) {
	fake := newFake()
	s, err := NewSession(context.Background(), fake, "")
	require.NoError(t, err)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.Equal(t, 1, fake.closed)
}

func TestNewSessionInitError(t *testing.T) {
	fake := newFake()
	fake.initErr = errors.New("handshake failed")
	_, err := NewSession(context.Background(), fake, "")
	assert.ErrorIs(t, err, fake.initErr)
}

func TestClientOptions(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
		want    string
	}{
		{name: "stdio default", opts: Options{Command: "npx", Args: []string{"-y", "mcp-remote"}}, want: "stdio"},
		{name: "stdio missing command", opts: Options{Transport: "stdio"}, wantErr: true},
		{name: "sse", opts: Options{Transport: "sse", URL: "http://localhost/sse"}, want: "sse"},
		{name: "streaming alias", opts: Options{Transport: "streaming", URL: "http://localhost/mcp"}, want: "streamable"},
		{name: "http missing url", opts: Options{Transport: "streamable"}, wantErr: true},
		{name: "unknown", opts: Options{Transport: "carrier-pigeon"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			co, err := clientOptions(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, co.Transport.Type)
			assert.Equal(t, "notepress", co.Name)
		})
	}
}

func TestResultText(t *testing.T) {
	tests := []struct {
		name    string
		content []mcpschema.CallToolResultContentElem
		want    string
	}{
		{name: "empty", want: ""},
		{
			name: "decoded maps",
			content: []mcpschema.CallToolResultContentElem{
				map[string]interface{}{"type": "text", "text": "Page created: "},
				map[string]interface{}{"type": "text", "text": "id=abc123"},
			},
			want: "Page created: id=abc123",
		},
		{
			name: "typed text",
			content: []mcpschema.CallToolResultContentElem{
				&mcpschema.TextContent{Type: "text", Text: "a"},
				mcpschema.TextContent{Type: "text", Text: "b"},
			},
			want: "ab",
		},
		{
			name: "non-text falls back to json",
			content: []mcpschema.CallToolResultContentElem{
				map[string]interface{}{"type": "text", "text": "see image"},
				map[string]interface{}{"type": "image", "data": "AA==", "mimeType": "image/png"},
			},
			want: `[{"text":"see image","type":"text"},{"data":"AA==","mimeType":"image/png","type":"image"}]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resultText(&mcpschema.CallToolResult{Content: tt.content})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	got, err := resultText(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCallToolPassesArguments(t *testing.T) {
	fake := newFake()
	s, err := NewSession(context.Background(), fake, "")
	require.NoError(t, err)

	_, err = s.CallTool(context.Background(), "create_page", map[string]interface{}{"title": "uploads"})
	require.NoError(t, err)
	require.Len(t, fake.calls, 1)
	assert.Equal(t, "create_page", fake.calls[0].Name)
	assert.Equal(t, map[string]interface{}{"title": "uploads"}, fake.calls[0].Arguments)
}

func TestBindKeepsToolsWithUnresolvedRefs(t *testing.T) {
	fake := newFake()
	fake.pages[1] = `{"tools":[
		{"name":"search","inputSchema":{"type":"object","properties":{"query":{"type":"string"}}}},
		{"name":"API-post-page","description":"Create a page",
		 "inputSchema":{"type":"object","properties":{"parent":{"$ref":"#/$defs/parentRequest"}}}}]}`
	fake.results["API-post-page"] = `{"content":[{"type":"text","text":"posted"}]}`
	s, err := NewSession(context.Background(), fake, "")
	require.NoError(t, err)

	reg := tools.NewRegistry()
	n, err := s.Bind(context.Background(), reg)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"API-post-page", "create_page", "search"}, reg.Names())

	out, err := reg.Invoke(context.Background(), "API-post-page", json.RawMessage(`{"parent":{"page_id":"p1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "posted", out)

	_, err = reg.Invoke(context.Background(), "create_page", json.RawMessage(`{}`))
	var argErr *tools.ArgumentError
	assert.ErrorAs(t, err, &argErr, "tools with valid schemas keep validation")
}
