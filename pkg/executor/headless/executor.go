package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/notepress/pkg/agent"
	"github.com/entrhq/notepress/pkg/logging"
	"github.com/entrhq/notepress/pkg/publish"
	"github.com/entrhq/notepress/pkg/types"
)

var runLog = logging.Component("headless")

const (
	statusSuccess        = "success"
	statusFailed         = "failed"
	statusPartialSuccess = "partial_success"
)

// Publisher is the job a headless run executes.
type Publisher interface {
	Publish(ctx context.Context) (*publish.Report, error)
}

// Executor implements the headless mode executor
type Executor struct {
	config         *Config
	console        *Logger
	artifactWriter *ArtifactWriter

	mu      sync.Mutex
	metrics ExecutionMetrics
}

// NewExecutor creates a new headless executor
func NewExecutor(config *Config) (*Executor, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e := &Executor{
		config:  config,
		console: NewLogger(ParseLogLevel(config.Logging.Verbosity)),
	}
	if config.Artifacts.Enabled {
		e.artifactWriter = NewArtifactWriter(config.Artifacts.OutputDir, config.Artifacts)
	}
	return e, nil
}

// Console returns the console logger, e.g. to redirect its output.
func (e *Executor) Console() *Logger {
	return e.console
}

// EventHandler renders events and collects metrics. Pass it to the
// publisher's components.
func (e *Executor) EventHandler() types.EventHandler {
	return func(ev *types.AgentEvent) {
		e.record(ev)
		e.console.HandleEvent(ev)
	}
}

func (e *Executor) record(ev *types.AgentEvent) {
	if ev == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch ev.Type {
	case types.EventTypeToolCall:
		e.metrics.ToolCalls++
	case types.EventTypeToolResultError:
		e.metrics.ToolErrors++
	case types.EventTypeAPICallStart:
		e.metrics.ModelCalls++
	case types.EventTypeTokenUsage:
		if ev.TokenUsage != nil {
			e.metrics.TokensUsed += ev.TokenUsage.TotalTokens
		}
	}
}

// Run executes the publisher, prints the summary and writes artifacts.
// The returned error is the publisher's, if any; artifact failures are
// only logged.
func (e *Executor) Run(ctx context.Context, p Publisher) (*ExecutionSummary, error) {
	start := time.Now()
	summary := &ExecutionSummary{Task: e.config.Task, Status: "running", StartTime: start}

	e.console.Header("Publishing " + e.config.Task)
	runLog.Infof("starting run: %s", e.config.Task)

	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	report, err := p.Publish(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("run exceeded timeout of %s: %w", e.config.Timeout, err)
	}

	summary.EndTime = time.Now()
	summary.Duration = summary.EndTime.Sub(start)
	e.mu.Lock()
	summary.Metrics = e.metrics
	e.mu.Unlock()
	summary.Status = classify(report, err)
	if err != nil {
		summary.Error = err.Error()
	}
	if report != nil {
		summary.Publication = publication(report)
		if report.Loop != nil {
			summary.Metrics.Iterations = report.Loop.Iterations
		}
		summary.Metrics.Blocks = report.Blocks
		summary.Metrics.FailedBlocks = report.FailedBlocks
	}

	e.console.Summary(summary)
	runLog.Infof("run finished: %s in %s", summary.Status, summary.Duration)

	if e.artifactWriter != nil {
		if werr := e.artifactWriter.WriteAll(summary); werr != nil {
			e.console.Warningf("failed to write artifacts: %v", werr)
			runLog.Errorf("artifacts: %v", werr)
		}
	}
	return summary, err
}

// classify maps a run outcome to a status. A session close failure after
// a successful write still counts as published.
func classify(report *publish.Report, err error) string {
	if report == nil {
		return statusFailed
	}
	if err != nil {
		if report.Loop == nil && report.PageID == "" {
			return statusFailed
		}
		return statusPartialSuccess
	}
	degraded := report.Loop != nil && report.Loop.TerminatedBy != agent.TerminatedByAnswer
	if degraded || !report.Verified || report.FailedBlocks > 0 {
		return statusPartialSuccess
	}
	return statusSuccess
}

func publication(r *publish.Report) *Publication {
	p := &Publication{
		Mode:          string(r.Mode),
		Title:         r.Title,
		DestinationID: r.DestinationID,
		PageID:        r.PageID,
		Verified:      r.Verified,
		Rounds:        r.Rounds,
		Draft:         r.Draft,
	}
	if r.Loop != nil {
		p.TerminatedBy = string(r.Loop.TerminatedBy)
		p.Output = r.Loop.Output
	}
	return p
}
