package tools

import (
	"context"
)

// Tool represents a capability the publishing agent can invoke. The model
// requests a tool by name with JSON arguments; the registry validates the
// arguments against Schema before Execute runs.
type Tool interface {
	// Name returns the unique identifier for this tool (e.g., "API-post-page")
	Name() string

	// Description returns a human-readable description of what this tool does
	Description() string

	// Schema returns the JSON schema for this tool's input parameters
	Schema() map[string]interface{}

	// Execute runs the tool with decoded, validated arguments and returns
	// its textual result. Application-level failures are reported in the
	// text; a returned error means the tool could not be reached at all.
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// Handler is the closure form of Tool.Execute.
type Handler func(ctx context.Context, args map[string]interface{}) (string, error)

// funcTool adapts a Handler to the Tool interface.
type funcTool struct {
	name        string
	description string
	schema      map[string]interface{}
	handler     Handler
}

// NewFuncTool builds a Tool from a name, description, schema and closure.
// A nil schema accepts any object.
func NewFuncTool(name, description string, schema map[string]interface{}, handler Handler) Tool {
	if schema == nil {
		schema = BaseToolSchema(map[string]interface{}{}, nil)
	}
	return &funcTool{name: name, description: description, schema: schema, handler: handler}
}

func (f *funcTool) Name() string                   { return f.name }
func (f *funcTool) Description() string            { return f.description }
func (f *funcTool) Schema() map[string]interface{} { return f.schema }

func (f *funcTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return f.handler(ctx, args)
}

// BaseToolSchema creates a common JSON schema structure for a tool
// with the given properties and required fields
func BaseToolSchema(properties map[string]interface{}, required []string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
