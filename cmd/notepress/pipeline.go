package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/entrhq/notepress/pkg/agent"
	"github.com/entrhq/notepress/pkg/agent/prompts"
	"github.com/entrhq/notepress/pkg/config"
	"github.com/entrhq/notepress/pkg/executor/headless"
	"github.com/entrhq/notepress/pkg/extract"
	"github.com/entrhq/notepress/pkg/llm"
	"github.com/entrhq/notepress/pkg/llm/tokenizer"
	"github.com/entrhq/notepress/pkg/logging"
	"github.com/entrhq/notepress/pkg/mcp"
	"github.com/entrhq/notepress/pkg/publish"
	"github.com/entrhq/notepress/pkg/telemetry"
	"github.com/entrhq/notepress/pkg/types"
	"github.com/entrhq/notepress/pkg/workflow"
)

var log = logging.Component("cli")

// jobOptions describes one publication.
type jobOptions struct {
	Dir         string
	TestMode    bool
	Destination string
	Timeout     time.Duration

	// ArtifactDir overrides the configured artifacts directory.
	ArtifactDir string
}

// startRuntime configures the run log and tracing. The returned function
// flushes spans.
func startRuntime(ctx context.Context, c *config.Config) (func(), error) {
	logging.Configure(c.Logging.Dir, logging.ParseLevel(c.Logging.Level))

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:        c.Telemetry.Enabled,
		Exporter:       c.Telemetry.Exporter,
		Endpoint:       c.Telemetry.Endpoint,
		Insecure:       c.Telemetry.Insecure,
		ServiceName:    "notepress",
		ServiceVersion: version,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	return func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			log.Warnf("telemetry shutdown: %v", err)
		}
	}, nil
}

// newExecutor builds the headless executor that renders and records a job.
func newExecutor(c *config.Config, opts jobOptions) (*headless.Executor, error) {
	hc := headless.DefaultConfig()
	hc.Task = publish.TitleFromDir(opts.Dir)
	hc.Timeout = opts.Timeout
	hc.Logging.Verbosity = c.Logging.Verbosity
	hc.Artifacts.Enabled = c.Artifacts.Enabled
	hc.Artifacts.OutputDir = c.Artifacts.OutputDir
	if opts.ArtifactDir != "" {
		hc.Artifacts.OutputDir = opts.ArtifactDir
	}
	return headless.NewExecutor(hc)
}

// buildPublisher wires extraction, refinement and publication for one job.
// Test mode swaps in synthetic notes, skips refinement and writes blocks
// directly, so it makes no model calls.
func buildPublisher(c *config.Config, opts jobOptions, events types.EventHandler) (*publish.Orchestrator, error) {
	if opts.Destination != "" {
		override := *c
		override.Notion.PageID = opts.Destination
		c = &override
	}
	if err := c.RequireCredentials(opts.TestMode); err != nil {
		return nil, err
	}

	bundle, err := prompts.Load(c.Prompts.Dir)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	matcher, err := extract.NewMatcher(c.Extract.Patterns, c.Extract.Exclude)
	if err != nil {
		return nil, err
	}

	destination := c.Notion.PageID
	connect := connector(c.MCP, c.Notion.Token)

	if opts.TestMode {
		log.Infof("test mode: synthetic notes, no model calls")
		source := &extract.Synthetic{Dir: opts.Dir, Matcher: matcher, Seed: uint64(time.Now().UnixNano())}
		return publish.NewOrchestrator(source, workflow.Passthrough{}, connect, bundle,
			publish.WithDestination(destination),
			publish.WithDirectWriter(publish.NewDirectWriter()),
			publish.WithEventHandler(events),
		)
	}

	base, err := config.BuildProvider(c.LLM)
	if err != nil {
		return nil, err
	}
	models := config.BuildModels(c.LLM, base, llm.Traced)

	source, err := extract.NewExtractor(opts.Dir, models.Vision,
		extract.WithMatcher(matcher),
		extract.WithInstruction(bundle.Transcribe),
		extract.WithEventHandler(events),
	)
	if err != nil {
		return nil, err
	}

	var wfOpts []workflow.Option
	if c.Workflow.MaxVerifyRounds > 0 {
		wfOpts = append(wfOpts, workflow.WithMaxVerifyRounds(c.Workflow.MaxVerifyRounds))
	}
	wfOpts = append(wfOpts, workflow.WithEventHandler(events))
	refiner, err := workflow.New(workflow.Models{
		Planner: models.Planner,
		Writer:  models.Writer,
		Checker: models.Checker,
	}, bundle, wfOpts...)
	if err != nil {
		return nil, err
	}

	loopOpts := []agent.LoopOption{
		agent.WithMaxIterations(c.Loop.MaxIterations),
		agent.WithMaxConsecutiveErrors(c.Loop.MaxConsecutiveErrors),
	}
	if tok, err := tokenizer.New(); err == nil {
		loopOpts = append(loopOpts, agent.WithTokenizer(tok))
	} else {
		log.Warnf("tokenizer unavailable, context sizes will be estimated: %v", err)
	}

	return publish.NewOrchestrator(source, refiner, connect, bundle,
		publish.WithTitle(publish.TitleFromDir(opts.Dir)),
		publish.WithDestination(destination),
		publish.WithProvider(models.Tool),
		publish.WithLoopOptions(loopOpts...),
		publish.WithCustomInstructions(c.Prompts.Instructions),
		publish.WithEventHandler(events),
	)
}

// connector opens a fresh tool server session per publication.
func connector(m config.MCPConfig, token string) publish.Connector {
	return func(ctx context.Context) (publish.Session, error) {
		sess, err := mcp.Connect(ctx, mcp.Options{
			Name:      m.Name,
			Transport: m.Transport,
			Command:   m.Command,
			Args:      m.Args,
			URL:       m.URL,
			Token:     token,
		})
		if err != nil {
			return nil, err
		}
		return sess, nil
	}
}

// publishJob runs one publication through a headless executor.
func publishJob(ctx context.Context, c *config.Config, opts jobOptions) (*headless.ExecutionSummary, error) {
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, err
	}
	opts.Dir = dir

	exec, err := newExecutor(c, opts)
	if err != nil {
		return nil, err
	}
	orchestrator, err := buildPublisher(c, opts, exec.EventHandler())
	if err != nil {
		return nil, err
	}
	return exec.Run(ctx, orchestrator)
}
