// Package publish sequences one publishing run: extraction, refinement,
// a workspace session, and either the tool-calling agent or the direct
// test-mode writer.
package publish

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/notepress/pkg/agent"
	"github.com/entrhq/notepress/pkg/agent/prompts"
	"github.com/entrhq/notepress/pkg/agent/tools"
	"github.com/entrhq/notepress/pkg/extract"
	"github.com/entrhq/notepress/pkg/llm"
	"github.com/entrhq/notepress/pkg/logging"
	"github.com/entrhq/notepress/pkg/types"
	"github.com/entrhq/notepress/pkg/workflow"
)

var log = logging.Component("publish")

// PreviewLength is how much of the draft is logged before publishing.
const PreviewLength = 200

var (
	// ErrNoTools is returned when the workspace session offers no tools.
	ErrNoTools = errors.New("workspace session exposes no tools")

	// ErrDestination is returned when the destination page could not be resolved.
	ErrDestination = errors.New("destination page not resolved")
)

// Refiner turns a raw draft into the text to publish.
type Refiner interface {
	Run(ctx context.Context, raw string) (*workflow.Result, error)
}

// Session is the workspace tool server connection owned by one run.
type Session interface {
	Bind(ctx context.Context, registry *tools.Registry) (int, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error)
	Close() error
}

// Connector opens a session. Each run gets its own.
type Connector func(ctx context.Context) (Session, error)

// Mode selects how the refined draft reaches the workspace.
type Mode string

const (
	ModeAgent  Mode = "agent"  // tool-calling loop
	ModeDirect Mode = "direct" // fixed page and block calls, no model
)

// Report describes a finished run.
type Report struct {
	Mode          Mode
	Title         string
	DestinationID string

	// PageID is known only in direct mode.
	PageID string

	Draft    string
	Verified bool
	Rounds   int
	Tools    int

	// Loop is nil in direct mode.
	Loop *agent.Result

	// Blocks and FailedBlocks are set in direct mode.
	Blocks       int
	FailedBlocks int

	StartedAt time.Time
	Duration  time.Duration
}

// Orchestrator wires the collaborators of a publishing run.
type Orchestrator struct {
	source   extract.Source
	refiner  Refiner
	connect  Connector
	provider llm.Provider
	bundle   *prompts.Bundle

	mode          Mode
	title         string
	destinationID string
	instructions  string
	loopOpts      []agent.LoopOption
	direct        *DirectWriter
	emit          types.EventHandler
	now           func() time.Time
	tracer        trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTitle sets the page title. Use TitleFromDir for the usual folder name.
func WithTitle(title string) Option {
	return func(o *Orchestrator) {
		o.title = title
	}
}

// WithDestination fixes the parent page. Without it the agent finds or
// creates the "uploads" page first.
func WithDestination(id string) Option {
	return func(o *Orchestrator) {
		o.destinationID = id
	}
}

// WithProvider sets the model that drives the tool loop.
func WithProvider(p llm.Provider) Option {
	return func(o *Orchestrator) {
		o.provider = p
	}
}

// WithLoopOptions passes settings to every tool loop the run starts.
func WithLoopOptions(opts ...agent.LoopOption) Option {
	return func(o *Orchestrator) {
		o.loopOpts = append(o.loopOpts, opts...)
	}
}

// WithCustomInstructions adds operator text to the agent's system prompt.
func WithCustomInstructions(s string) Option {
	return func(o *Orchestrator) {
		o.instructions = s
	}
}

// WithDirectWriter switches the run to ModeDirect.
func WithDirectWriter(w *DirectWriter) Option {
	return func(o *Orchestrator) {
		o.mode = ModeDirect
		o.direct = w
	}
}

func WithEventHandler(h types.EventHandler) Option {
	return func(o *Orchestrator) {
		o.emit = h
	}
}

// NewOrchestrator validates the collaborators needed by the selected mode.
func NewOrchestrator(source extract.Source, refiner Refiner, connect Connector, bundle *prompts.Bundle, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		source:  source,
		refiner: refiner,
		connect: connect,
		bundle:  bundle,
		mode:    ModeAgent,
		now:     time.Now,
		tracer:  otel.Tracer("github.com/entrhq/notepress/pkg/publish"),
	}
	for _, opt := range opts {
		opt(o)
	}

	switch {
	case o.source == nil:
		return nil, errors.New("publish: text source is required")
	case o.refiner == nil:
		return nil, errors.New("publish: refiner is required")
	case o.connect == nil:
		return nil, errors.New("publish: connector is required")
	case o.bundle == nil:
		return nil, errors.New("publish: prompt bundle is required")
	}
	if o.mode == ModeAgent && o.provider == nil {
		return nil, errors.New("publish: agent mode needs a tool model")
	}
	if o.mode == ModeDirect && o.destinationID == "" {
		return nil, errors.New("publish: direct mode needs a destination page id")
	}
	return o, nil
}

// TitleFromDir returns the final segment of a notes directory path.
func TitleFromDir(dir string) string {
	return filepath.Base(filepath.Clean(dir))
}

// Publish runs extraction, refinement and publication in order. The
// session is closed on every path once it was opened; a close failure is
// joined to the run's own error instead of replacing it.
func (o *Orchestrator) Publish(ctx context.Context) (report *Report, err error) {
	started := o.now()
	ctx, span := o.tracer.Start(ctx, "publish", trace.WithAttributes(
		attribute.String("publish.mode", string(o.mode)),
		attribute.String("publish.title", o.title),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "publish failed")
			o.emit.Emit(types.NewErrorEvent(err))
		}
		span.End()
	}()

	raw, err := o.source.Extract(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	log.Infof("extracted %d characters", len(raw))

	refined, err := o.refiner.Run(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("refine: %w", err)
	}
	if !refined.Verified {
		log.Warnf("publishing a draft that did not pass verification after %d rounds", refined.Rounds)
	}

	sess, err := o.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warnf("closing session: %v", cerr)
			err = errors.Join(err, fmt.Errorf("close session: %w", cerr))
		}
	}()

	report = &Report{
		Mode:      o.mode,
		Title:     o.title,
		Draft:     refined.Draft,
		Verified:  refined.Verified,
		Rounds:    refined.Rounds,
		StartedAt: started,
	}

	if o.mode == ModeDirect {
		err = o.publishDirect(ctx, sess, report)
	} else {
		err = o.publishAgent(ctx, sess, report)
	}
	report.Duration = o.now().Sub(started)
	return report, err
}

func (o *Orchestrator) publishAgent(ctx context.Context, sess Session, report *Report) error {
	registry := tools.NewRegistry()
	n, err := sess.Bind(ctx, registry)
	if err != nil {
		return fmt.Errorf("bind tools: %w", err)
	}
	if n == 0 {
		return ErrNoTools
	}
	report.Tools = n
	log.Infof("bound %d workspace tools", n)

	dest := o.destinationID
	if dest == "" {
		dest, err = o.ensureDestination(ctx, registry)
		if err != nil {
			return err
		}
	}
	report.DestinationID = dest

	seed := prompts.FillSeed(o.bundle.Seed, prompts.SeedValues{
		Title:         o.title,
		DestinationID: dest,
		Draft:         report.Draft,
	})
	log.Infof("title: %s", o.title)
	log.Infof("parent page id: %s", dest)
	log.Infof("draft preview (first %d chars): %s...", PreviewLength, prompts.Preview(report.Draft, PreviewLength))

	res, err := o.loop(registry, dest).Run(ctx, types.NewUserMessage(seed))
	if err != nil {
		return fmt.Errorf("publish loop: %w", err)
	}
	report.Loop = res
	if res.Degraded() {
		log.Warnf("publish loop stopped early (%s)", res.TerminatedBy)
	}
	return nil
}

func (o *Orchestrator) publishDirect(ctx context.Context, sess Session, report *Report) error {
	report.DestinationID = o.destinationID
	report.Title = o.direct.Title()
	log.Infof("test mode: creating page %q under %s (%d characters)", report.Title, o.destinationID, len(report.Draft))

	res, err := o.direct.Write(ctx, sess, o.destinationID, report.Title, report.Draft)
	if err != nil {
		return err
	}
	report.PageID = res.PageID
	report.Blocks = res.Blocks
	report.FailedBlocks = res.Failed
	return nil
}

func (o *Orchestrator) loop(registry *tools.Registry, dest string) *agent.Loop {
	system := prompts.NewPromptBuilder().
		WithCustomInstructions(o.instructions).
		WithTools(registry.Definitions()).
		WithDestination(dest).
		Build()
	opts := append([]agent.LoopOption{
		agent.WithSystemPrompt(system),
		agent.WithEventHandler(o.emit),
	}, o.loopOpts...)
	return agent.NewLoop(o.provider, registry, opts...)
}
