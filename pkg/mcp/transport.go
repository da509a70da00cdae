package mcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/transport"
	"github.com/viant/jsonrpc/transport/client/base"
	"github.com/viant/jsonrpc/transport/client/http/sse"
	"github.com/viant/jsonrpc/transport/client/http/streamable"
	viantmcp "github.com/viant/mcp"
)

// conn is a JSON-RPC transport owned by a Session and released by Close.
type conn interface {
	transport.Transport
	io.Closer
}

// stopGrace is how long a stdio server gets to exit after its stdin closes.
const stopGrace = 3 * time.Second

const maxMessageBytes = 16 << 20

func dial(ctx context.Context, co *viantmcp.ClientOptions) (conn, error) {
	switch co.Transport.Type {
	case TransportStdio:
		p, err := startProcess(ctx, co.Transport.Command, co.Transport.Arguments)
		if err != nil {
			return nil, err
		}
		return p, nil
	case TransportSSE, TransportStreamable:
		h, err := dialHTTP(ctx, co.Transport.Type, co.Transport.URL)
		if err != nil {
			return nil, err
		}
		return h, nil
	default:
		return nil, fmt.Errorf("mcp: unsupported transport type %q", co.Transport.Type)
	}
}

// processConn speaks newline delimited JSON-RPC over a child's stdio.
type processConn struct {
	rpc    *base.Client
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	cancel context.CancelFunc
	grace  time.Duration

	mu      sync.Mutex
	exited  chan struct{}
	waitErr error

	closeOnce sync.Once
	closeErr  error
}

func startProcess(ctx context.Context, command string, args []string) (*processConn, error) {
	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, command, args...)
	cmd.Stderr = logger.Writer()
	cmd.WaitDelay = stopGrace

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("mcp stdin: %w", err)
	}
	stdoutR, stdoutW := io.Pipe()
	cmd.Stdout = stdoutW

	p := &processConn{
		cmd:    cmd,
		stdin:  stdin,
		cancel: cancel,
		grace:  stopGrace,
		exited: make(chan struct{}),
	}
	p.rpc = &base.Client{
		Transport:  p,
		Handler:    &base.Handler{},
		RoundTrips: transport.NewRoundTrips(20),
		RunTimeout: 15 * time.Minute,
		Logger:     jsonrpc.DefaultLogger,
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", command, err)
	}
	logger.Debugf("started %s (pid %d)", command, cmd.Process.Pid)

	go p.read(stdoutR)
	go func() {
		err := cmd.Wait()
		_ = stdoutW.Close()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(p.exited)
	}()
	return p, nil
}

func (p *processConn) read(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		data := make([]byte, len(line))
		copy(data, line)
		p.rpc.HandleMessage(context.Background(), data)
	}
	if err := scanner.Err(); err != nil {
		p.rpc.SetError(fmt.Errorf("mcp stdout: %w", err))
		return
	}
	p.rpc.SetError(errors.New("mcp server process exited"))
}

// SendData writes one framed message to the child's stdin.
func (p *processConn) SendData(_ context.Context, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.exited:
		return errors.New("mcp server process exited")
	default:
	}
	_, err := p.stdin.Write(data)
	return err
}

func (p *processConn) Send(ctx context.Context, request *jsonrpc.Request) (*jsonrpc.Response, error) {
	return p.rpc.Send(ctx, request)
}

func (p *processConn) Notify(ctx context.Context, notification *jsonrpc.Notification) error {
	return p.rpc.Notify(ctx, notification)
}

// Close ends stdin, waits for the child to exit and kills it after the grace
// period. An exit status caused by the shutdown is not an error.
func (p *processConn) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		stdinErr := p.stdin.Close()
		p.mu.Unlock()

		timer := time.NewTimer(p.grace)
		defer timer.Stop()
		select {
		case <-p.exited:
		case <-timer.C:
			logger.Warnf("mcp server did not exit after %s, killing it", p.grace)
			p.cancel()
			<-p.exited
		}
		p.cancel()

		p.mu.Lock()
		waitErr := p.waitErr
		p.mu.Unlock()
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) || errors.Is(waitErr, exec.ErrWaitDelay) {
			waitErr = nil
		}
		if errors.Is(stdinErr, os.ErrClosed) || errors.Is(stdinErr, io.ErrClosedPipe) {
			stdinErr = nil
		}
		p.closeErr = errors.Join(stdinErr, waitErr)
	})
	return p.closeErr
}

// httpConn is an sse or streamable transport whose requests all run under
// a context that Close cancels.
type httpConn struct {
	transport.Transport
	rt *closingRoundTripper
}

func dialHTTP(ctx context.Context, kind, url string) (*httpConn, error) {
	rt := newClosingRoundTripper(http.DefaultTransport.(*http.Transport).Clone())
	client := &http.Client{Transport: rt}

	var (
		t   transport.Transport
		err error
	)
	if kind == TransportSSE {
		t, err = sse.New(ctx, url, sse.WithHttpClient(client), sse.WithMessageHttpClient(client))
	} else {
		t, err = streamable.New(ctx, url, streamable.WithHTTPClient(client))
	}
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("mcp %s transport: %w", kind, err)
	}
	return &httpConn{Transport: t, rt: rt}, nil
}

func (h *httpConn) Close() error {
	h.rt.close()
	return nil
}

type closingRoundTripper struct {
	next   http.RoundTripper
	ctx    context.Context
	cancel context.CancelFunc
}

func newClosingRoundTripper(next http.RoundTripper) *closingRoundTripper {
	ctx, cancel := context.WithCancel(context.Background())
	return &closingRoundTripper{next: next, ctx: ctx, cancel: cancel}
}

func (t *closingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.ctx.Err() != nil {
		return nil, ErrSessionClosed
	}
	ctx, cancel := context.WithCancel(req.Context())
	stop := context.AfterFunc(t.ctx, cancel)
	release := func() {
		stop()
		cancel()
	}
	resp, err := t.next.RoundTrip(req.WithContext(ctx))
	if err != nil {
		release()
		return nil, err
	}
	resp.Body = &releasingBody{ReadCloser: resp.Body, release: release}
	return resp, nil
}

// close aborts in-flight requests and open streams and drops idle connections.
func (t *closingRoundTripper) close() {
	t.cancel()
	if ci, ok := t.next.(interface{ CloseIdleConnections() }); ok {
		ci.CloseIdleConnections()
	}
}

type releasingBody struct {
	io.ReadCloser
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.release()
	return err
}
