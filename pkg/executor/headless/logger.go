package headless

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/notepress/pkg/types"
)

// LogLevel represents the logging verbosity level
type LogLevel int

const (
	// LogLevelQuiet shows only critical information (errors, warnings, final summary)
	LogLevelQuiet LogLevel = iota
	// LogLevelNormal shows stage progress and tool calls (default)
	LogLevelNormal
	// LogLevelVerbose adds stage transitions, tool results and the final answer
	LogLevelVerbose
	// LogLevelDebug adds model calls and token usage
	LogLevelDebug
)

// Logger renders a publishing run to the console
type Logger struct {
	level  LogLevel
	writer io.Writer
	mu     sync.Mutex

	// ANSI color codes
	colorReset     string
	colorGreen     string
	colorCyan      string
	colorSalmon    string
	colorYellow    string
	colorRed       string
	colorGray      string
	colorBoldGreen string
	colorBoldRed   string
	colorBoldWhite string

	stepCount int
	toolCount int
}

// NewLogger creates a new logger with the specified level writing to stdout
func NewLogger(level LogLevel) *Logger {
	return &Logger{
		level:          level,
		writer:         os.Stdout,
		colorReset:     "\033[0m",
		colorGreen:     "\033[32m",
		colorCyan:      "\033[36m",
		colorSalmon:    "\033[38;5;217m",
		colorYellow:    "\033[33m",
		colorRed:       "\033[31m",
		colorGray:      "\033[90m",
		colorBoldGreen: "\033[1;32m",
		colorBoldRed:   "\033[1;31m",
		colorBoldWhite: "\033[1;37m",
	}
}

// SetWriter redirects output, e.g. to stderr or a buffer in tests.
func (l *Logger) SetWriter(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = w
}

func (l *Logger) printf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.writer, format, args...)
}

// Header prints a prominent header message
func (l *Logger) Header(message string) {
	if l.level >= LogLevelNormal {
		rule := strings.Repeat("=", 70)
		l.printf("\n%s%s\n  %s\n%s%s\n", l.colorBoldWhite, rule, message, rule, l.colorReset)
	}
}

// Step prints a numbered step in the run
func (l *Logger) Step(message string) {
	if l.level >= LogLevelNormal {
		l.stepCount++
		l.printf("\n%s[%d] %s%s\n", l.colorCyan, l.stepCount, message, l.colorReset)
	}
}

// Successf prints a success message with checkmark
func (l *Logger) Successf(format string, args ...interface{}) {
	if l.level >= LogLevelNormal {
		l.printf("%s✓ %s%s\n", l.colorBoldGreen, fmt.Sprintf(format, args...), l.colorReset)
	}
}

// Infof prints an informational message
func (l *Logger) Infof(format string, args ...interface{}) {
	if l.level >= LogLevelNormal {
		l.printf("%s%s%s\n", l.colorSalmon, fmt.Sprintf(format, args...), l.colorReset)
	}
}

// Warningf prints a warning message
func (l *Logger) Warningf(format string, args ...interface{}) {
	l.printf("%s⚠ Warning: %s%s\n", l.colorYellow, fmt.Sprintf(format, args...), l.colorReset)
}

// Errorf prints an error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.printf("%s✗ Error: %s%s\n", l.colorBoldRed, fmt.Sprintf(format, args...), l.colorReset)
}

// Verbosef prints detailed information (only in verbose mode)
func (l *Logger) Verbosef(format string, args ...interface{}) {
	if l.level >= LogLevelVerbose {
		l.printf("%s→ %s%s\n", l.colorGray, fmt.Sprintf(format, args...), l.colorReset)
	}
}

// Debugf prints debug information (only in debug mode)
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.level >= LogLevelDebug {
		l.printf("%s[DEBUG] %s%s\n", l.colorGray, fmt.Sprintf(format, args...), l.colorReset)
	}
}

// ToolCall logs a tool invocation with formatting based on verbosity
func (l *Logger) ToolCall(toolName string, count int) {
	switch l.level {
	case LogLevelQuiet:
	case LogLevelNormal:
		l.printf("%s  • %s (#%d)%s\n", l.colorGray, toolName, count, l.colorReset)
	case LogLevelVerbose, LogLevelDebug:
		l.printf("%s  🔧 Tool: %s (call #%d)%s\n", l.colorCyan, toolName, count, l.colorReset)
	}
}

// HandleEvent renders one run event.
func (l *Logger) HandleEvent(e *types.AgentEvent) {
	if e == nil {
		return
	}
	switch e.Type {
	case types.EventTypeStageStart:
		l.Step(stageTitle(e.Stage))
	case types.EventTypeStageEnd:
		l.Verbosef("%s done (%d chars, %v)", e.Stage, len(e.Content), e.Metadata["transition"])
	case types.EventTypeToolCall:
		l.toolCount++
		l.ToolCall(e.ToolName, l.toolCount)
		l.Debugf("arguments: %v", e.ToolInput)
	case types.EventTypeToolResult:
		l.Verbosef("%s: %s", e.ToolName, clip(e.ToolOutput, 160))
	case types.EventTypeToolResultError:
		if l.level >= LogLevelVerbose {
			l.Warningf("%s returned an error (%v in a row): %s", e.ToolName, e.Metadata["consecutive_errors"], clip(e.ToolOutput, 160))
		}
	case types.EventTypeLoopStopped:
		l.Warningf("%s", e.Content)
	case types.EventTypeMessage:
		l.Verbosef("agent: %s", clip(e.Content, 400))
	case types.EventTypeAPICallStart:
		if info := e.APICallInfo; info != nil {
			l.Debugf("model call %s (iteration %d, ~%d prompt tokens)", info.Model, info.Iteration, info.ContextTokens)
		}
	case types.EventTypeTokenUsage:
		if u := e.TokenUsage; u != nil {
			l.Debugf("tokens: prompt %d, completion %d, total %d", u.PromptTokens, u.CompletionTokens, u.TotalTokens)
		}
	case types.EventTypeError:
		if e.Error != nil {
			l.Errorf("%v", e.Error)
		}
	}
}

func stageTitle(stage string) string {
	switch stage {
	case "extract":
		return "Extracting text from images"
	case "structure":
		return "Structuring the draft"
	case "enhance":
		return "Enhancing the draft"
	case "verify":
		return "Checking facts"
	}
	return stage
}

// Summary prints a final run summary
func (l *Logger) Summary(summary *ExecutionSummary) {
	l.printSummaryHeader()
	l.printStatus(summary.Status)
	l.printTaskAndDuration(summary)
	l.printPublication(summary)
	l.printMetrics(summary)
	l.printError(summary)
	l.printSummaryFooter()
}

func (l *Logger) printSummaryHeader() {
	rule := strings.Repeat("=", 70)
	l.printf("\n%s%s\n  PUBLISHING SUMMARY\n%s%s\n", l.colorBoldWhite, rule, rule, l.colorReset)
}

func (l *Logger) printStatus(status string) {
	switch status {
	case statusSuccess:
		l.printf("  Status: %s✓ SUCCESS%s\n", l.colorBoldGreen, l.colorReset)
	case statusPartialSuccess:
		l.printf("  Status: %s⚠ PARTIAL SUCCESS%s\n", l.colorYellow, l.colorReset)
	case statusFailed:
		l.printf("  Status: %s✗ FAILED%s\n", l.colorBoldRed, l.colorReset)
	default:
		l.printf("  Status: %s\n", status)
	}
}

func (l *Logger) printTaskAndDuration(summary *ExecutionSummary) {
	l.printf("  Task: %s\n  Duration: %s\n", summary.Task, summary.Duration.Round(time.Second))
}

func (l *Logger) printPublication(summary *ExecutionSummary) {
	p := summary.Publication
	if p == nil {
		return
	}
	l.printf("\n  📄 Page:\n    Title: %s\n    Parent: %s\n", p.Title, p.DestinationID)
	if p.PageID != "" {
		l.printf("    Page id: %s\n", p.PageID)
	}
	l.printf("    Draft verified: %t (%d rounds)\n", p.Verified, p.Rounds)
	if p.TerminatedBy != "" {
		l.printf("    Loop ended by: %s\n", p.TerminatedBy)
	}
}

func (l *Logger) printMetrics(summary *ExecutionSummary) {
	m := summary.Metrics
	if m.ToolCalls == 0 && m.TokensUsed == 0 && m.Blocks == 0 {
		return
	}
	l.printf("\n  📊 Metrics:\n    Tool calls: %d\n", m.ToolCalls)
	if m.ToolErrors > 0 {
		l.printf("    Tool errors: %d\n", m.ToolErrors)
	}
	if m.Blocks > 0 {
		l.printf("    Blocks: %d (%d failed)\n", m.Blocks, m.FailedBlocks)
	}
	if m.TokensUsed > 0 {
		l.printf("    Tokens used: %s\n", formatNumber(m.TokensUsed))
	}
}

func (l *Logger) printError(summary *ExecutionSummary) {
	if summary.Error == "" {
		return
	}
	l.printf("\n%s  Error Details:%s\n%s    %s%s\n", l.colorBoldRed, l.colorReset, l.colorRed, summary.Error, l.colorReset)
}

func (l *Logger) printSummaryFooter() {
	l.printf("%s%s%s\n\n", l.colorBoldWhite, strings.Repeat("=", 70), l.colorReset)
}

// ParseLogLevel converts a string log level to LogLevel type
func ParseLogLevel(level string) LogLevel {
	switch level {
	case "quiet":
		return LogLevelQuiet
	case "normal":
		return LogLevelNormal
	case "verbose":
		return LogLevelVerbose
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelNormal
	}
}

// formatNumber formats large numbers with commas for readability
func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}

func clip(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
