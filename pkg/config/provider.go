package config

import (
	"fmt"

	"github.com/entrhq/notepress/pkg/llm"
	"github.com/entrhq/notepress/pkg/llm/openai"
)

// Models holds one provider per model-driven step. They share the API key,
// endpoint and HTTP client.
type Models struct {
	Planner llm.Provider
	Writer  llm.Provider
	Checker llm.Provider
	Tool    llm.Provider
	Vision  llm.Transcriber
}

// BuildProvider creates the OpenAI-compatible provider from the resolved
// settings. Precedence between flags, environment and file has already been
// settled by Load and the command layer.
func BuildProvider(c LLMConfig) (*openai.Provider, error) {
	if c.APIKey == "" {
		return nil, &MissingSettingError{Setting: "OPENAI_API_KEY", Key: "llm.api_key"}
	}

	opts := []openai.ProviderOption{
		openai.WithModel(c.WriterModel),
		openai.WithVisionModel(c.VisionModel),
		openai.WithTemperature(c.Temperature),
		openai.WithMaxRetries(c.MaxRetries),
	}
	if c.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(c.BaseURL))
	}

	provider, err := openai.NewProvider(c.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}
	return provider, nil
}

// BuildModels derives each step's provider from base. wrap, when set, is
// applied to every chat provider, e.g. llm.Traced.
func BuildModels(c LLMConfig, base *openai.Provider, wrap func(llm.Provider) llm.Provider) Models {
	if wrap == nil {
		wrap = func(p llm.Provider) llm.Provider { return p }
	}
	return Models{
		Planner: wrap(llm.WithModel(base, c.PlannerModel)),
		Writer:  wrap(llm.WithModel(base, c.WriterModel)),
		Checker: wrap(llm.WithModel(base, c.CheckerModel)),
		Tool:    wrap(llm.WithModel(base, c.ToolModel)),
		Vision:  base,
	}
}
