package headless

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/notepress/pkg/agent"
	"github.com/entrhq/notepress/pkg/publish"
	"github.com/entrhq/notepress/pkg/types"
)

type fakePublisher struct {
	report *publish.Report
	err    error
	events []*types.AgentEvent
	emit   types.EventHandler
	wait   bool
}

func (f *fakePublisher) Publish(ctx context.Context) (*publish.Report, error) {
	for _, ev := range f.events {
		f.emit.Emit(ev)
	}
	if f.wait {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.report, f.err
}

func newTestExecutor(t *testing.T, cfg *Config) (*Executor, *bytes.Buffer) {
	t.Helper()
	e, err := NewExecutor(cfg)
	require.NoError(t, err)
	var buf bytes.Buffer
	e.Console().SetWriter(&buf)
	return e, &buf
}

func agentReport(by agent.Termination, verified bool) *publish.Report {
	return &publish.Report{
		Mode:          publish.ModeAgent,
		Title:         "lecture-3",
		DestinationID: "parent",
		Draft:         "1. Intro",
		Verified:      verified,
		Rounds:        1,
		Loop:          &agent.Result{TerminatedBy: by, Output: "Calling tool x with {}\ndone", Iterations: 2},
	}
}

func TestRunSuccessCollectsMetrics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Task = "lecture-3"
	e, buf := newTestExecutor(t, cfg)

	p := &fakePublisher{
		report: agentReport(agent.TerminatedByAnswer, true),
		emit:   e.EventHandler(),
		events: []*types.AgentEvent{
			types.NewStageStartEvent("structure"),
			types.NewAPICallStartEvent("gpt-4.1", 100, 1),
			types.NewTokenUsageEvent(100, 20, 120),
			types.NewToolCallEvent("API-post-page", nil),
			types.NewToolResultErrorEvent("API-post-page", "validation error", 1),
			types.NewToolCallEvent("API-post-page", nil),
			types.NewToolResultEvent("API-post-page", "ok"),
		},
	}

	summary, err := e.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, statusSuccess, summary.Status)
	assert.Equal(t, 2, summary.Metrics.ToolCalls)
	assert.Equal(t, 1, summary.Metrics.ToolErrors)
	assert.Equal(t, 1, summary.Metrics.ModelCalls)
	assert.Equal(t, 120, summary.Metrics.TokensUsed)
	assert.Equal(t, 2, summary.Metrics.Iterations)
	assert.Equal(t, "lecture-3", summary.Publication.Title)

	out := buf.String()
	assert.Contains(t, out, "Structuring the draft")
	assert.Contains(t, out, "API-post-page (#2)")
	assert.Contains(t, out, "SUCCESS")
}

func TestClassify(t *testing.T) {
	closeErr := errors.New("close failed")
	tests := []struct {
		name   string
		report *publish.Report
		err    error
		want   string
	}{
		{"answer", agentReport(agent.TerminatedByAnswer, true), nil, statusSuccess},
		{"loop stopped", agentReport(agent.TerminatedByErrors, true), nil, statusPartialSuccess},
		{"unverified", agentReport(agent.TerminatedByAnswer, false), nil, statusPartialSuccess},
		{"close failed after publish", agentReport(agent.TerminatedByAnswer, true), closeErr, statusPartialSuccess},
		{"no report", nil, closeErr, statusFailed},
		{"failed before loop", &publish.Report{Mode: publish.ModeAgent}, closeErr, statusFailed},
		{"direct with failed blocks", &publish.Report{Mode: publish.ModeDirect, PageID: "p", Verified: true, FailedBlocks: 1}, nil, statusPartialSuccess},
		{"direct", &publish.Report{Mode: publish.ModeDirect, PageID: "p", Verified: true}, nil, statusSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.report, tt.err))
		})
	}
}

func TestRunFailureWritesArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "artifacts")
	cfg := DefaultConfig()
	cfg.Task = "notes"
	cfg.Artifacts.Enabled = true
	cfg.Artifacts.OutputDir = dir
	e, buf := newTestExecutor(t, cfg)

	boom := errors.New("extract: no images found")
	summary, err := e.Run(context.Background(), &fakePublisher{err: boom})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, statusFailed, summary.Status)
	assert.Contains(t, buf.String(), "no images found")

	data, err := os.ReadFile(filepath.Join(dir, "execution.json"))
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "failed", decoded["status"])

	md, err := os.ReadFile(filepath.Join(dir, "summary.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "**Error:** extract: no images found")
	assert.FileExists(t, filepath.Join(dir, "metrics.json"))
	assert.NoFileExists(t, filepath.Join(dir, "draft.md"))
}

func TestArtifactsIncludeDraft(t *testing.T) {
	dir := t.TempDir()
	w := NewArtifactWriter(dir, ArtifactConfig{Enabled: true, OutputDir: dir, IncludeDraft: true})
	summary := &ExecutionSummary{
		Task:        "notes",
		Status:      statusSuccess,
		Publication: publication(agentReport(agent.TerminatedByAnswer, true)),
	}
	require.NoError(t, w.WriteAll(summary))

	draft, err := os.ReadFile(filepath.Join(dir, "draft.md"))
	require.NoError(t, err)
	assert.Equal(t, "1. Intro", string(draft))

	md, err := os.ReadFile(filepath.Join(dir, "summary.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "## Agent Output")
	assert.Contains(t, string(md), "`parent`")
}

func TestRunTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 10 * time.Millisecond
	e, _ := newTestExecutor(t, cfg)

	summary, err := e.Run(context.Background(), &fakePublisher{wait: true})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timeout")
	assert.Equal(t, statusFailed, summary.Status)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Logging.Verbosity = "chatty"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Artifacts.Enabled = true
	cfg.Artifacts.OutputDir = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Timeout = -time.Second
	assert.Error(t, cfg.Validate())
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		level   LogLevel
		visible []string
		hidden  []string
	}{
		{LogLevelQuiet, []string{"Warning: careful", "Error: broken"}, []string{"info line", "verbose line", "debug line"}},
		{LogLevelNormal, []string{"info line"}, []string{"verbose line", "debug line"}},
		{LogLevelVerbose, []string{"info line", "verbose line"}, []string{"debug line"}},
		{LogLevelDebug, []string{"info line", "verbose line", "debug line"}, nil},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		l := NewLogger(tt.level)
		l.SetWriter(&buf)
		l.Infof("info line")
		l.Verbosef("verbose line")
		l.Debugf("debug line")
		l.Warningf("careful")
		l.Errorf("broken")
		for _, s := range tt.visible {
			assert.Contains(t, buf.String(), s)
		}
		for _, s := range tt.hidden {
			assert.NotContains(t, buf.String(), s)
		}
	}
}

func TestLoggerLoopStoppedAlwaysShown(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LogLevelQuiet)
	l.SetWriter(&buf)
	l.HandleEvent(types.NewLoopStoppedEvent("consecutive_errors", "Stopped after 5 consecutive errors."))
	assert.Contains(t, buf.String(), "Stopped after 5 consecutive errors.")
}

func TestParseLogLevelAndFormat(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, LogLevelNormal, ParseLogLevel("unknown"))
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "12,345", formatNumber(12345))
	assert.Equal(t, "1,234,567", formatNumber(1234567))
}
