package workflow

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/notepress/pkg/agent/prompts"
	"github.com/entrhq/notepress/pkg/llm"
	"github.com/entrhq/notepress/pkg/logging"
	"github.com/entrhq/notepress/pkg/types"
)

var logger = logging.Component("workflow")

// State is threaded through the stage handlers. RawInput never changes;
// CurrentOutput is set by structure and replaced by every enhance.
type State struct {
	RawInput      string
	CurrentOutput string

	// Rounds counts completed enhance stages.
	Rounds int
}

// Result is the outcome of a run.
type Result struct {
	Draft string

	// Verified is false only when a round cap ended the run without an "ok".
	Verified bool
	Rounds   int
}

// Models assigns a provider to each model-driven stage.
type Models struct {
	Planner llm.Provider // structure
	Writer  llm.Provider // enhance
	Checker llm.Provider // verify
}

// Workflow runs the refinement graph.
type Workflow struct {
	models    Models
	prompts   *prompts.Bundle
	maxRounds int
	emit      types.EventHandler
	tracer    trace.Tracer
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithMaxVerifyRounds caps the number of enhance/verify rounds. Zero, the
// default, means no cap: the run continues until the checker answers "ok".
func WithMaxVerifyRounds(n int) Option {
	return func(w *Workflow) {
		if n > 0 {
			w.maxRounds = n
		}
	}
}

// WithEventHandler receives stage events.
func WithEventHandler(h types.EventHandler) Option {
	return func(w *Workflow) {
		w.emit = h
	}
}

// New builds a workflow. Every model must be set.
func New(models Models, bundle *prompts.Bundle, opts ...Option) (*Workflow, error) {
	if models.Planner == nil || models.Writer == nil || models.Checker == nil {
		return nil, errors.New("workflow: planner, writer and checker models are required")
	}
	if bundle == nil {
		return nil, errors.New("workflow: prompt bundle is required")
	}
	w := &Workflow{
		models:  models,
		prompts: bundle,
		tracer:  otel.Tracer("github.com/entrhq/notepress/pkg/workflow"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run refines raw until it reaches StageDone. Model errors abort the run
// and are returned as is, wrapped with the failing stage.
func (w *Workflow) Run(ctx context.Context, raw string) (*Result, error) {
	ctx, span := w.tracer.Start(ctx, "workflow.run",
		trace.WithAttributes(attribute.Int("workflow.input_chars", len(raw))))
	defer span.End()

	state := &State{RawInput: raw}
	stage := StageStructure
	var last Event

	for stage != StageDone {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		event, err := w.step(ctx, stage, state)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stage failed")
			return nil, fmt.Errorf("%s stage: %w", stage, err)
		}

		next, err := Transition(stage, event)
		if err != nil {
			return nil, err
		}
		w.emit.Emit(types.NewStageEndEvent(string(stage), state.CurrentOutput, string(event)))
		logger.Debugf("%s --%s--> %s", stage, event, next)
		stage, last = next, event
	}

	if last == EventExhausted {
		logger.Warnf("verification did not accept the draft after %d rounds, returning latest draft", state.Rounds)
	}
	span.SetAttributes(attribute.Int("workflow.rounds", state.Rounds))
	return &Result{
		Draft:    out(state),
		Verified: last == EventOK,
		Rounds:   state.Rounds,
	}, nil
}

func (w *Workflow) step(ctx context.Context, stage Stage, state *State) (Event, error) {
	w.emit.Emit(types.NewStageStartEvent(string(stage)))

	ctx, span := w.tracer.Start(ctx, "workflow."+string(stage))
	defer span.End()

	switch stage {
	case StageStructure:
		return EventNext, w.structure(ctx, state)
	case StageEnhance:
		return EventNext, w.enhance(ctx, state)
	case StageVerify:
		event, err := w.verify(ctx, state)
		span.SetAttributes(attribute.String("workflow.verdict", string(event)))
		return event, err
	default:
		return "", fmt.Errorf("%w: no handler for stage %s", ErrInvalidTransition, stage)
	}
}

func (w *Workflow) structure(ctx context.Context, state *State) error {
	reply, err := ask(ctx, w.models.Planner, w.prompts.Structure, state.RawInput)
	if err != nil {
		return err
	}
	state.CurrentOutput = reply
	return nil
}

func (w *Workflow) enhance(ctx context.Context, state *State) error {
	reply, err := ask(ctx, w.models.Writer, w.prompts.Enhance, state.CurrentOutput)
	if err != nil {
		return err
	}
	state.CurrentOutput = reply
	state.Rounds++
	return nil
}

func (w *Workflow) verify(ctx context.Context, state *State) (Event, error) {
	reply, err := ask(ctx, w.models.Checker, w.prompts.Verify, state.CurrentOutput)
	if err != nil {
		return "", err
	}
	event := ClassifyVerdict(reply)
	if event == EventKO && w.maxRounds > 0 && state.Rounds >= w.maxRounds {
		return EventExhausted, nil
	}
	return event, nil
}

// out is the terminal handler.
func out(state *State) string {
	return state.CurrentOutput
}

func ask(ctx context.Context, p llm.Provider, instruction, draft string) (string, error) {
	res, err := p.Complete(ctx, []*types.Message{
		types.NewSystemMessage(instruction),
		types.NewUserMessage(draft),
	})
	if err != nil {
		return "", err
	}
	if res == nil || res.Message == nil {
		return "", errors.New("model returned no message")
	}
	return res.Message.Content, nil
}

// Passthrough returns the raw draft unchanged without calling any model.
// It backs test mode.
type Passthrough struct{}

func (Passthrough) Run(_ context.Context, raw string) (*Result, error) {
	return &Result{Draft: raw, Verified: true}, nil
}
