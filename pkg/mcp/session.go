// Package mcp connects to the remote workspace tool server over the Model
// Context Protocol and exposes its catalog as validated agent tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	viantmcp "github.com/viant/mcp"
	mcpschema "github.com/viant/mcp-protocol/schema"
	mcpclient "github.com/viant/mcp/client"

	"github.com/entrhq/notepress/pkg/agent/tools"
	"github.com/entrhq/notepress/pkg/logging"
)

var logger = logging.Component("mcp")

// ErrSessionClosed is returned by calls made after Close.
var ErrSessionClosed = errors.New("mcp session closed")

// Client is the subset of the viant/mcp client used by a Session.
type Client interface {
	Initialize(ctx context.Context, options ...mcpclient.RequestOption) (*mcpschema.InitializeResult, error)
	ListTools(ctx context.Context, cursor *string, options ...mcpclient.RequestOption) (*mcpschema.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcpschema.CallToolRequestParams, options ...mcpclient.RequestOption) (*mcpschema.CallToolResult, error)
}

// Transport names accepted in Options.Transport.
const (
	TransportStdio      = "stdio"
	TransportSSE        = "sse"
	TransportStreamable = "streamable"
)

// Options describes how to reach the tool server.
type Options struct {
	Name      string
	Transport string
	Command   string
	Args      []string
	URL       string

	// Token is sent as a bearer token on every request when set.
	Token string
}

// ToolInfo is a catalog entry as advertised by the server.
type ToolInfo struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// Session is one live connection. Callers must Close it; Close is idempotent.
type Session struct {
	client    Client
	reqOpts   []mcpclient.RequestOption
	transport io.Closer
	mu        sync.Mutex
	closed    bool
	closeErr  error
}

// Connect starts the transport for opts, initializes a client over it and
// returns the session. The session owns the transport.
func Connect(ctx context.Context, opts Options) (*Session, error) {
	clientOpts, err := clientOptions(opts)
	if err != nil {
		return nil, err
	}

	t, err := dial(ctx, clientOpts)
	if err != nil {
		return nil, err
	}
	cli := mcpclient.New(clientOpts.Name, clientOpts.Version, t)

	s, err := newSession(ctx, cli, opts.Token, t)
	if err != nil {
		cli.Close()
		if cerr := t.Close(); cerr != nil {
			logger.Warnf("close transport after failed init: %v", cerr)
		}
		return nil, err
	}
	logger.Infof("connected to %s over %s", clientOpts.Name, clientOpts.Transport.Type)
	return s, nil
}

// NewSession initializes an already constructed client. Close releases the
// client but not any transport the caller built for it.
func NewSession(ctx context.Context, client Client, token string) (*Session, error) {
	return newSession(ctx, client, token, nil)
}

func newSession(ctx context.Context, client Client, token string, transport io.Closer) (*Session, error) {
	if client == nil {
		return nil, errors.New("mcp client is nil")
	}
	s := &Session{client: client, transport: transport}
	if token != "" {
		s.reqOpts = append(s.reqOpts, mcpclient.WithAuthToken(token))
	}
	if _, err := client.Initialize(ctx, s.reqOpts...); err != nil {
		return nil, fmt.Errorf("mcp init: %w", err)
	}
	return s, nil
}

func clientOptions(opts Options) (*viantmcp.ClientOptions, error) {
	name := opts.Name
	if name == "" {
		name = "notepress"
	}
	co := &viantmcp.ClientOptions{Name: name}

	switch strings.ToLower(opts.Transport) {
	case "", TransportStdio:
		if opts.Command == "" {
			return nil, errors.New("mcp: command is required for stdio transport")
		}
		co.Transport = viantmcp.ClientTransport{
			Type: TransportStdio,
			ClientTransportStdio: viantmcp.ClientTransportStdio{
				Command:   opts.Command,
				Arguments: opts.Args,
			},
		}
	case TransportSSE, TransportStreamable, "streaming":
		if opts.URL == "" {
			return nil, fmt.Errorf("mcp: url is required for %s transport", opts.Transport)
		}
		transport := strings.ToLower(opts.Transport)
		if transport == "streaming" {
			transport = TransportStreamable
		}
		co.Transport = viantmcp.ClientTransport{
			Type:                transport,
			ClientTransportHTTP: viantmcp.ClientTransportHTTP{URL: opts.URL},
		}
	default:
		return nil, fmt.Errorf("mcp: unsupported transport type %q", opts.Transport)
	}
	return co, nil
}

// ListTools returns the full catalog, following pagination cursors.
func (s *Session) ListTools(ctx context.Context) ([]ToolInfo, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var out []ToolInfo
	var cursor *string
	for {
		list, err := s.client.ListTools(ctx, cursor, s.reqOpts...)
		if err != nil {
			return nil, fmt.Errorf("list tools: %w", err)
		}
		for _, td := range list.Tools {
			out = append(out, toToolInfo(td))
		}
		if list.NextCursor == nil || *list.NextCursor == "" {
			break
		}
		cursor = list.NextCursor
	}
	return out, nil
}

// CallTool invokes a remote tool. Text fragments of the result are
// concatenated; other content is returned as JSON. Transport failures are
// returned as errors, application failures come back as text.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	params := &mcpschema.CallToolRequestParams{
		Name:      name,
		Arguments: args,
	}
	res, err := s.client.CallTool(ctx, params, s.reqOpts...)
	if err != nil {
		return "", fmt.Errorf("call tool %s: %w", name, err)
	}
	return resultText(res)
}

// Bind registers every catalog tool in registry as a closure over this
// session and returns the number of tools bound. A tool whose schema does not
// compile is registered without argument validation.
func (s *Session) Bind(ctx context.Context, registry *tools.Registry) (int, error) {
	catalog, err := s.ListTools(ctx)
	if err != nil {
		return 0, err
	}
	bound := 0
	for _, info := range catalog {
		name := info.Name
		handler := func(ctx context.Context, args map[string]interface{}) (string, error) {
			return s.CallTool(ctx, name, args)
		}
		err := registry.Register(tools.NewFuncTool(name, info.Description, info.Schema, handler))
		if errors.Is(err, tools.ErrInvalidSchema) {
			logger.Warnf("tool %s: %v; registering without argument validation", name, err)
			err = registry.Register(tools.NewFuncTool(name, info.Description, nil, handler))
		}
		if err != nil {
			logger.Warnf("skipping tool %s: %v", name, err)
			continue
		}
		bound++
	}
	logger.Debugf("bound %d of %d tools", bound, len(catalog))
	return bound, nil
}

// Close stops the client and releases the transport. It is safe to call
// more than once and reports the first close error on every call.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.closeErr
	}
	s.closed = true

	var clientErr error
	switch c := s.client.(type) {
	case io.Closer:
		clientErr = c.Close()
	case interface{ Close() }:
		c.Close()
	}
	var transportErr error
	if s.transport != nil {
		transportErr = s.transport.Close()
	}
	s.closeErr = errors.Join(clientErr, transportErr)
	return s.closeErr
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

func toToolInfo(td mcpschema.Tool) ToolInfo {
	props := make(map[string]interface{}, len(td.InputSchema.Properties))
	for k, v := range td.InputSchema.Properties {
		props[k] = v
	}
	schema := tools.BaseToolSchema(props, td.InputSchema.Required)

	info := ToolInfo{Name: td.Name, Schema: schema}
	if td.Description != nil {
		info.Description = *td.Description
	}
	return info
}

// resultText concatenates the text elements of res. Content elements decode
// as generic maps; typed text content is accepted too. Any non-text element
// makes the whole content come back as JSON.
func resultText(res *mcpschema.CallToolResult) (string, error) {
	if res == nil || len(res.Content) == 0 {
		return "", nil
	}
	var b strings.Builder
	for _, elem := range res.Content {
		text, ok := textOf(elem)
		if !ok {
			data, err := json.Marshal(res.Content)
			if err != nil {
				return "", fmt.Errorf("encode tool result: %w", err)
			}
			return string(data), nil
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

func textOf(elem mcpschema.CallToolResultContentElem) (string, bool) {
	switch c := elem.(type) {
	case *mcpschema.TextContent:
		if c == nil {
			return "", false
		}
		return c.Text, c.Type == "text"
	case mcpschema.TextContent:
		return c.Text, c.Type == "text"
	case map[string]interface{}:
		if kind, _ := c["type"].(string); kind != "text" {
			return "", false
		}
		text, ok := c["text"].(string)
		return text, ok
	default:
		return "", false
	}
}
