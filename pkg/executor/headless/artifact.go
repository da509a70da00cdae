package headless

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ArtifactWriter handles writing run artifacts
type ArtifactWriter struct {
	outputDir string
	config    ArtifactConfig
}

// NewArtifactWriter creates a new artifact writer
func NewArtifactWriter(outputDir string, config ArtifactConfig) *ArtifactWriter {
	return &ArtifactWriter{
		outputDir: outputDir,
		config:    config,
	}
}

// WriteAll writes execution.json, summary.md, metrics.json and, when
// configured, draft.md.
func (w *ArtifactWriter) WriteAll(summary *ExecutionSummary) error {
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := w.WriteExecutionJSON(summary); err != nil {
		return fmt.Errorf("failed to write execution JSON: %w", err)
	}
	if err := w.WriteSummaryMarkdown(summary); err != nil {
		return fmt.Errorf("failed to write summary markdown: %w", err)
	}
	if err := w.WriteMetricsJSON(summary); err != nil {
		return fmt.Errorf("failed to write metrics JSON: %w", err)
	}
	if w.config.IncludeDraft && summary.Publication != nil && summary.Publication.Draft != "" {
		path := filepath.Join(w.outputDir, "draft.md")
		if err := os.WriteFile(path, []byte(summary.Publication.Draft), 0o600); err != nil {
			return fmt.Errorf("failed to write draft: %w", err)
		}
	}
	return nil
}

// WriteExecutionJSON writes the full run summary as JSON
func (w *ArtifactWriter) WriteExecutionJSON(summary *ExecutionSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution summary: %w", err)
	}
	return os.WriteFile(filepath.Join(w.outputDir, "execution.json"), data, 0o600)
}

// WriteSummaryMarkdown writes a human-readable markdown summary
func (w *ArtifactWriter) WriteSummaryMarkdown(summary *ExecutionSummary) error {
	var md strings.Builder

	md.WriteString("# Notepress Publishing Summary\n\n")
	fmt.Fprintf(&md, "**Task:** %s\n\n", summary.Task)
	fmt.Fprintf(&md, "**Status:** %s\n\n", summary.Status)
	fmt.Fprintf(&md, "**Started:** %s\n\n", summary.StartTime.Format(time.RFC3339))
	fmt.Fprintf(&md, "**Completed:** %s\n\n", summary.EndTime.Format(time.RFC3339))
	fmt.Fprintf(&md, "**Duration:** %s\n\n", summary.Duration)

	md.WriteString("## Result\n\n")
	if summary.Error != "" {
		fmt.Fprintf(&md, "❌ **Error:** %s\n\n", summary.Error)
	} else {
		md.WriteString("✅ **Success**\n\n")
	}

	if p := summary.Publication; p != nil {
		md.WriteString("## Page\n\n")
		fmt.Fprintf(&md, "- **Mode:** %s\n", p.Mode)
		fmt.Fprintf(&md, "- **Title:** %s\n", p.Title)
		fmt.Fprintf(&md, "- **Parent page:** `%s`\n", p.DestinationID)
		if p.PageID != "" {
			fmt.Fprintf(&md, "- **Page:** `%s`\n", p.PageID)
		}
		fmt.Fprintf(&md, "- **Verified:** %t after %d round(s)\n", p.Verified, p.Rounds)
		if p.TerminatedBy != "" {
			fmt.Fprintf(&md, "- **Loop ended by:** %s\n", p.TerminatedBy)
		}
		md.WriteString("\n")
		if p.Output != "" {
			md.WriteString("## Agent Output\n\n```\n")
			md.WriteString(p.Output)
			md.WriteString("\n```\n\n")
		}
	}

	md.WriteString("## Metrics\n\n")
	fmt.Fprintf(&md, "- **Tool Calls:** %d\n", summary.Metrics.ToolCalls)
	fmt.Fprintf(&md, "- **Tool Errors:** %d\n", summary.Metrics.ToolErrors)
	fmt.Fprintf(&md, "- **Model Calls:** %d\n", summary.Metrics.ModelCalls)
	fmt.Fprintf(&md, "- **Tokens Used:** %d\n", summary.Metrics.TokensUsed)
	fmt.Fprintf(&md, "- **Blocks:** %d (%d failed)\n", summary.Metrics.Blocks, summary.Metrics.FailedBlocks)

	return os.WriteFile(filepath.Join(w.outputDir, "summary.md"), []byte(md.String()), 0o600)
}

// WriteMetricsJSON writes run metrics as JSON
func (w *ArtifactWriter) WriteMetricsJSON(summary *ExecutionSummary) error {
	data, err := json.MarshalIndent(summary.Metrics, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	return os.WriteFile(filepath.Join(w.outputDir, "metrics.json"), data, 0o600)
}

// ExecutionSummary contains a complete summary of a headless run
type ExecutionSummary struct {
	Task        string           `json:"task"`
	Status      string           `json:"status"`
	Error       string           `json:"error,omitempty"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     time.Time        `json:"end_time"`
	Duration    time.Duration    `json:"duration"`
	Publication *Publication     `json:"publication,omitempty"`
	Metrics     ExecutionMetrics `json:"metrics"`
}

// Publication describes what was written to the workspace.
type Publication struct {
	Mode          string `json:"mode"`
	Title         string `json:"title"`
	DestinationID string `json:"destination_id"`
	PageID        string `json:"page_id,omitempty"`
	Verified      bool   `json:"verified"`
	Rounds        int    `json:"rounds"`
	TerminatedBy  string `json:"terminated_by,omitempty"`
	Output        string `json:"output,omitempty"`
	Draft         string `json:"-"`
}

// ExecutionMetrics contains run metrics
type ExecutionMetrics struct {
	ToolCalls    int `json:"tool_calls"`
	ToolErrors   int `json:"tool_errors"`
	ModelCalls   int `json:"model_calls"`
	TokensUsed   int `json:"tokens_used"`
	Iterations   int `json:"iterations"`
	Blocks       int `json:"blocks"`
	FailedBlocks int `json:"failed_blocks"`
}
