package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/notepress/pkg/agent/tools"
	"github.com/entrhq/notepress/pkg/types"
)

// IsErrorResult classifies a tool result. Any case-insensitive occurrence of
// "error" or "validation" counts, so "No errors found" is an error too.
func IsErrorResult(result string) bool {
	lower := strings.ToLower(result)
	return strings.Contains(lower, "error") || strings.Contains(lower, "validation")
}

// executeToolCall invokes one call, records the exchange and updates the
// error streak. It reports whether the streak reached its cap.
func (r *run) executeToolCall(ctx context.Context, call types.ToolCall, text string) (bool, error) {
	l := r.loop
	ctx, span := l.tracer.Start(ctx, "tool.call",
		trace.WithAttributes(attribute.String("tool.name", call.Name)))
	defer span.End()

	r.toolCalls++
	r.fragments = append(r.fragments, fmt.Sprintf("Calling tool %s with %s", call.Name, argsText(call)))
	l.emit.Emit(types.NewToolCallEvent(call.Name, call.ArgumentsMap()))

	result, err := l.registry.Invoke(ctx, call.Name, call.Arguments)
	if err != nil {
		var argErr *tools.ArgumentError
		switch {
		case errors.Is(err, tools.ErrUnknownTool):
			result = fmt.Sprintf("validation error: unknown tool %q, available tools: %s",
				call.Name, strings.Join(l.registry.Names(), ", "))
		case errors.As(err, &argErr):
			result = fmt.Sprintf("validation error: %v", argErr.Err)
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "tool transport failed")
			l.emit.Emit(types.NewErrorEvent(err))
			return false, fmt.Errorf("tool %s: %w", call.Name, err)
		}
	}

	r.history.AppendToolExchange(call, text, result)

	if !IsErrorResult(result) {
		r.resetErrorTracking()
		l.emit.Emit(types.NewToolResultEvent(call.Name, result))
		return false, nil
	}

	streak := r.trackError()
	span.SetAttributes(attribute.Int("tool.consecutive_errors", streak))
	l.emit.Emit(types.NewToolResultErrorEvent(call.Name, result, streak))
	agentLog.Debugf("tool %s error %d/%d: %s", call.Name, streak, l.maxConsecutiveErrors, result)

	if streak >= l.maxConsecutiveErrors {
		r.stop(TerminatedByErrors, fmt.Sprintf("Stopped after %d consecutive errors.", streak))
		return true, nil
	}
	return false, nil
}

func (r *run) trackError() int {
	r.counters.consecutiveErrors++
	return r.counters.consecutiveErrors
}

func (r *run) resetErrorTracking() {
	r.counters.consecutiveErrors = 0
}

func argsText(call types.ToolCall) string {
	if len(call.Arguments) == 0 {
		return "{}"
	}
	return string(call.Arguments)
}
