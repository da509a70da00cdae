package llm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/notepress/pkg/types"
)

const tracerName = "github.com/entrhq/notepress/pkg/llm"

type tracedProvider struct {
	inner  Provider
	tracer trace.Tracer
}

// Traced wraps p so that every Complete call runs inside a "model.complete"
// client span. The global tracer provider is used.
func Traced(p Provider) Provider {
	if p == nil {
		return nil
	}
	if _, ok := p.(*tracedProvider); ok {
		return p
	}
	return &tracedProvider{inner: p, tracer: otel.Tracer(tracerName)}
}

func (t *tracedProvider) Complete(ctx context.Context, messages []*types.Message, opts ...CompletionOption) (*Completion, error) {
	o := ApplyOptions(opts...)
	ctx, span := t.tracer.Start(ctx, "model.complete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.model", t.inner.GetModel()),
			attribute.Int("llm.messages", len(messages)),
			attribute.Int("llm.tools", len(o.Tools)),
		),
	)
	defer span.End()

	res, err := t.inner.Complete(ctx, messages, opts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model complete failed")
		return nil, err
	}
	if res.Usage != nil {
		span.SetAttributes(
			attribute.Int("llm.usage.prompt_tokens", res.Usage.PromptTokens),
			attribute.Int("llm.usage.completion_tokens", res.Usage.CompletionTokens),
		)
	}
	if res.Message != nil {
		span.SetAttributes(attribute.Int("llm.tool_calls", len(res.Message.ToolCalls)))
	}
	return res, nil
}

func (t *tracedProvider) GetModel() string { return t.inner.GetModel() }

// CloneWithModel keeps the tracing wrapper around the clone.
func (t *tracedProvider) CloneWithModel(model string) Provider {
	return Traced(WithModel(t.inner, model))
}
