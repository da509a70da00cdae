package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/jsonrpc"

	"github.com/entrhq/notepress/pkg/agent/tools"
)

const helperEnv = "NOTEPRESS_MCP_TEST_SERVER"

// TestHelperMCPServer is not a real test. It is re-executed as the child
// process of the stdio transport tests and speaks just enough MCP for them.
func TestHelperMCPServer(t *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		t.Skip("runs only as a child process")
	}
	if mode == "stubborn" {
		_, _ = io.Copy(io.Discard, os.Stdin)
		time.Sleep(time.Hour)
		os.Exit(0)
	}

	results := map[string]interface{}{
		"initialize": map[string]interface{}{
			"protocolVersion": "2025-06-18",
			"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
			"serverInfo":      map[string]interface{}{"name": "notion-test", "version": "1.0.0"},
		},
		"tools/list": map[string]interface{}{
			"tools": []interface{}{
				map[string]interface{}{
					"name":        "create_page",
					"description": "Create a page",
					"inputSchema": map[string]interface{}{
						"type":       "object",
						"properties": map[string]interface{}{"title": map[string]interface{}{"type": "string"}},
						"required":   []string{"title"},
					},
				},
			},
		},
		"tools/call": map[string]interface{}{
			"content": []interface{}{
				map[string]interface{}{"type": "text", "text": "Page created: "},
				map[string]interface{}{"type": "text", "text": "id=abc123"},
			},
		},
		"ping": map[string]interface{}{},
	}

	in := bufio.NewScanner(os.Stdin)
	out := json.NewEncoder(os.Stdout)
	for in.Scan() {
		var req struct {
			ID     interface{} `json:"id"`
			Method string      `json:"method"`
		}
		if err := json.Unmarshal(in.Bytes(), &req); err != nil || req.ID == nil {
			continue
		}
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if result, ok := results[req.Method]; ok {
			resp["result"] = result
		} else {
			resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found: " + req.Method}
		}
		_ = out.Encode(resp)
	}
	os.Exit(0)
}

func helperCommand(t *testing.T, mode string) (string, []string) {
	t.Helper()
	t.Setenv(helperEnv, mode)
	return os.Args[0], []string{"-test.run=^TestHelperMCPServer$"}
}

func exitedWithin(p *processConn, d time.Duration) bool {
	select {
	case <-p.exited:
		return true
	case <-time.After(d):
		return false
	}
}

func TestProcessConnRoundTrip(t *testing.T) {
	command, args := helperCommand(t, "serve")
	p, err := startProcess(context.Background(), command, args)
	require.NoError(t, err)

	resp, err := p.Send(context.Background(), &jsonrpc.Request{Jsonrpc: jsonrpc.Version, Method: "ping"})
	require.NoError(t, err)
	assert.Nil(t, resp.Error)

	require.NoError(t, p.Close())
	assert.True(t, exitedWithin(p, time.Second), "server process must be gone after Close")
	require.NoError(t, p.Close())

	_, err = p.Send(context.Background(), &jsonrpc.Request{Jsonrpc: jsonrpc.Version, Method: "ping"})
	assert.Error(t, err)
}

func TestProcessConnKillsUnresponsiveServer(t *testing.T) {
	command, args := helperCommand(t, "stubborn")
	p, err := startProcess(context.Background(), command, args)
	require.NoError(t, err)
	p.grace = 100 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- p.Close() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.True(t, exitedWithin(p, time.Second))
}

func TestStartProcessMissingCommand(t *testing.T) {
	_, err := startProcess(context.Background(), "notepress-no-such-binary", nil)
	assert.Error(t, err)
}

func TestConnectStdioEndToEnd(t *testing.T) {
	command, args := helperCommand(t, "serve")
	s, err := Connect(context.Background(), Options{Name: "notion", Command: command, Args: args})
	require.NoError(t, err)

	reg := tools.NewRegistry()
	n, err := s.Bind(context.Background(), reg)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out, err := reg.Invoke(context.Background(), "create_page", json.RawMessage(`{"title":"uploads"}`))
	require.NoError(t, err)
	assert.Equal(t, "Page created: id=abc123", out)

	proc, ok := s.transport.(*processConn)
	require.True(t, ok)
	require.NoError(t, s.Close())
	assert.True(t, exitedWithin(proc, time.Second), "session Close must stop the server process")
	require.NoError(t, s.Close())
}

func TestClosingRoundTripperAbortsStreams(t *testing.T) {
	streaming := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": open\n\n")
		w.(http.Flusher).Flush()
		close(streaming)
		<-r.Context().Done()
	}))
	defer srv.Close()

	rt := newClosingRoundTripper(http.DefaultTransport.(*http.Transport).Clone())
	client := &http.Client{Transport: rt}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	<-streaming

	readErr := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.Discard, resp.Body)
		readErr <- err
	}()

	rt.close()
	select {
	case err := <-readErr:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("open stream survived close")
	}

	_, err = client.Get(srv.URL)
	assert.ErrorIs(t, err, ErrSessionClosed)
}
