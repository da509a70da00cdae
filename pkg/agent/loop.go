// Package agent runs the bounded tool-calling loop that publishes content
// through the workspace tool server.
//
//	loop := agent.NewLoop(provider, registry,
//	    agent.WithMaxIterations(10),
//	    agent.WithMaxConsecutiveErrors(5))
//	res, err := loop.Run(ctx, types.NewUserMessage(seed))
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/notepress/pkg/agent/tools"
	"github.com/entrhq/notepress/pkg/llm"
	"github.com/entrhq/notepress/pkg/llm/tokenizer"
	"github.com/entrhq/notepress/pkg/logging"
	"github.com/entrhq/notepress/pkg/types"
)

const (
	DefaultMaxIterations        = 10
	DefaultMaxConsecutiveErrors = 5
)

var agentLog = logging.Component("agent")

// Termination tells how a run ended.
type Termination string

const (
	TerminatedByAnswer        Termination = "answer"
	TerminatedByErrors        Termination = "consecutive_errors"
	TerminatedByMaxIterations Termination = "max_iterations"
)

// Result is the outcome of a loop run. Forced stops are results, not errors.
type Result struct {
	// Output is Fragments joined by newlines.
	Output string

	// Fragments are assistant text, tool call announcements, the final
	// answer and any stop marker, in order.
	Fragments []string

	// Answer is the model's final text, empty on forced stops.
	Answer string

	Iterations   int
	ToolCalls    int
	TerminatedBy Termination
	History      []*types.Message
}

// Degraded reports whether the run was forced to stop.
func (r *Result) Degraded() bool {
	return r.TerminatedBy != TerminatedByAnswer
}

// Loop drives a model against a tool registry.
type Loop struct {
	provider             llm.Provider
	registry             *tools.Registry
	systemPrompt         string
	maxIterations        int
	maxConsecutiveErrors int
	emit                 types.EventHandler
	tokenizer            *tokenizer.Tokenizer
	tracer               trace.Tracer
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

func WithMaxIterations(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxIterations = n
		}
	}
}

func WithMaxConsecutiveErrors(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxConsecutiveErrors = n
		}
	}
}

// WithSystemPrompt prepends an instruction message to every run.
func WithSystemPrompt(prompt string) LoopOption {
	return func(l *Loop) {
		l.systemPrompt = prompt
	}
}

func WithEventHandler(h types.EventHandler) LoopOption {
	return func(l *Loop) {
		l.emit = h
	}
}

// WithTokenizer enables prompt size estimates on api_call_start events.
func WithTokenizer(t *tokenizer.Tokenizer) LoopOption {
	return func(l *Loop) {
		l.tokenizer = t
	}
}

func NewLoop(provider llm.Provider, registry *tools.Registry, opts ...LoopOption) *Loop {
	l := &Loop{
		provider:             provider,
		registry:             registry,
		maxIterations:        DefaultMaxIterations,
		maxConsecutiveErrors: DefaultMaxConsecutiveErrors,
		tracer:               otel.Tracer("github.com/entrhq/notepress/pkg/agent"),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.registry == nil {
		l.registry = tools.NewRegistry()
	}
	return l
}

// counters are local to one Run.
type counters struct {
	iteration         int
	consecutiveErrors int
}

type run struct {
	loop      *Loop
	history   *History
	counters  counters
	fragments []string
	toolCalls int
}

// Run executes the loop from the seed messages until the model answers
// without a tool call, the error streak reaches its cap, or the iteration
// cap is hit. Model failures and tool transport failures are returned as
// errors.
func (l *Loop) Run(ctx context.Context, seed ...*types.Message) (*Result, error) {
	if l.provider == nil {
		return nil, errors.New("agent: provider is required")
	}

	ctx, span := l.tracer.Start(ctx, "agent.loop",
		trace.WithAttributes(
			attribute.Int("agent.max_iterations", l.maxIterations),
			attribute.Int("agent.max_consecutive_errors", l.maxConsecutiveErrors),
			attribute.Int("agent.tools", l.registry.Len()),
		))
	defer span.End()

	var msgs []*types.Message
	if l.systemPrompt != "" {
		msgs = append(msgs, types.NewSystemMessage(l.systemPrompt))
	}
	r := &run{loop: l, history: NewHistory(append(msgs, seed...)...)}

	for r.counters.iteration < l.maxIterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.counters.iteration++

		done, err := r.iterate(ctx)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if done != "" {
			span.SetAttributes(attribute.String("agent.terminated_by", string(done)))
			return r.result(done), nil
		}
	}

	marker := fmt.Sprintf("Reached maximum iterations (%d) without a final answer.", l.maxIterations)
	r.stop(TerminatedByMaxIterations, marker)
	span.SetAttributes(attribute.String("agent.terminated_by", string(TerminatedByMaxIterations)))
	return r.result(TerminatedByMaxIterations), nil
}

// iterate performs one model call and the tool calls it requests. It
// returns a non-empty Termination when the run is over.
func (r *run) iterate(ctx context.Context) (Termination, error) {
	l := r.loop
	ctx, span := l.tracer.Start(ctx, "agent.iteration",
		trace.WithAttributes(attribute.Int("agent.iteration", r.counters.iteration)))
	defer span.End()

	messages := r.history.Messages()
	promptTokens := 0
	if l.tokenizer != nil {
		promptTokens = l.tokenizer.CountMessagesTokens(messages)
	}
	l.emit.Emit(types.NewAPICallStartEvent(l.provider.GetModel(), promptTokens, r.counters.iteration))

	res, err := l.provider.Complete(ctx, messages, llm.WithTools(l.registry.Definitions()))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		l.emit.Emit(types.NewErrorEvent(fmt.Errorf("model call failed: %w", err)))
		return "", fmt.Errorf("model call (iteration %d): %w", r.counters.iteration, err)
	}
	if res.Usage != nil {
		l.emit.Emit(types.NewTokenUsageEvent(res.Usage.PromptTokens, res.Usage.CompletionTokens, res.Usage.TotalTokens))
	}
	reply := res.Message
	if reply == nil {
		reply = types.NewAssistantMessage("")
	}

	if len(reply.ToolCalls) == 0 {
		r.history.Append(types.NewAssistantMessage(reply.Content))
		r.fragments = append(r.fragments, reply.Content)
		l.emit.Emit(types.NewMessageEvent(reply.Content))
		agentLog.Infof("final answer after %d iterations", r.counters.iteration)
		return TerminatedByAnswer, nil
	}

	// Text that accompanies tool calls is kept on the first call record.
	text := reply.Content
	if text != "" {
		r.fragments = append(r.fragments, text)
		l.emit.Emit(types.NewMessageEvent(text))
	}
	for _, call := range reply.ToolCalls {
		stopped, err := r.executeToolCall(ctx, call, text)
		text = ""
		if err != nil {
			return "", err
		}
		if stopped {
			return TerminatedByErrors, nil
		}
	}
	return "", nil
}

func (r *run) stop(reason Termination, marker string) {
	r.fragments = append(r.fragments, marker)
	r.loop.emit.Emit(types.NewLoopStoppedEvent(string(reason), marker))
	agentLog.Warnf("%s", marker)
}

func (r *run) result(t Termination) *Result {
	res := &Result{
		Output:       strings.Join(r.fragments, "\n"),
		Fragments:    r.fragments,
		Iterations:   r.counters.iteration,
		ToolCalls:    r.toolCalls,
		TerminatedBy: t,
		History:      r.history.Messages(),
	}
	if t == TerminatedByAnswer && len(r.fragments) > 0 {
		res.Answer = r.fragments[len(r.fragments)-1]
	}
	return res
}
