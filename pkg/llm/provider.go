// Package llm defines the model boundary used by the refinement workflow,
// the tool loop and text extraction.
//
// Example usage:
//
//	provider, err := openai.NewProvider(cfg.LLM.APIKey, openai.WithModel("gpt-4.1"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reply, err := provider.Complete(ctx, []*types.Message{
//	    types.NewSystemMessage("Answer only 'ok' or 'ko'."),
//	    types.NewUserMessage(draft),
//	})
package llm

import (
	"context"

	"github.com/entrhq/notepress/pkg/types"
)

// Provider defines the interface for chat model integrations.
//
// Complete returns the assistant message. When tools are offered through
// WithTools, the returned message may carry ToolCalls instead of text.
type Provider interface {
	Complete(ctx context.Context, messages []*types.Message, opts ...CompletionOption) (*Completion, error)

	// GetModel returns the model name being used.
	GetModel() string
}

// ModelCloner is implemented by providers that can direct calls to another
// model while sharing credentials and transport.
type ModelCloner interface {
	CloneWithModel(model string) Provider
}

// Transcriber turns an image into text using a vision-capable model.
type Transcriber interface {
	Transcribe(ctx context.Context, instruction string, image Image) (string, error)
}

// Image is raw image content with its media type, e.g. "image/png".
type Image struct {
	Name      string
	MediaType string
	Data      []byte
}

// Completion is the result of a single model call.
type Completion struct {
	Message *types.Message
	Usage   *types.TokenUsage
}

// CompletionOptions holds per-call settings.
type CompletionOptions struct {
	Tools       []types.ToolDefinition
	Temperature *float64
}

// CompletionOption configures a single Complete call.
type CompletionOption func(*CompletionOptions)

// WithTools offers tool definitions to the model for this call.
func WithTools(tools []types.ToolDefinition) CompletionOption {
	return func(o *CompletionOptions) {
		o.Tools = tools
	}
}

// WithTemperature overrides the provider's default sampling temperature.
func WithTemperature(t float64) CompletionOption {
	return func(o *CompletionOptions) {
		o.Temperature = &t
	}
}

// ApplyOptions folds opts into a CompletionOptions value.
func ApplyOptions(opts ...CompletionOption) CompletionOptions {
	var o CompletionOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithModel returns p redirected to model when p supports cloning and model
// is set; otherwise p itself.
func WithModel(p Provider, model string) Provider {
	if model == "" || model == p.GetModel() {
		return p
	}
	if c, ok := p.(ModelCloner); ok {
		return c.CloneWithModel(model)
	}
	return p
}
