package prompts

import (
	"fmt"
	"strings"

	"github.com/entrhq/notepress/pkg/types"
)

// PromptBuilder constructs the system prompt for the publishing loop.
type PromptBuilder struct {
	tools              []types.ToolDefinition
	customInstructions string
	destinationID      string
}

// NewPromptBuilder creates a new prompt builder with default settings
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// WithTools lists the session's tools by name and description. Schemas are
// sent to the model separately as function definitions.
func (pb *PromptBuilder) WithTools(defs []types.ToolDefinition) *PromptBuilder {
	pb.tools = defs
	return pb
}

// WithCustomInstructions adds operator-provided instructions.
func (pb *PromptBuilder) WithCustomInstructions(instructions string) *PromptBuilder {
	pb.customInstructions = instructions
	return pb
}

// WithDestination names the parent page new content goes under.
func (pb *PromptBuilder) WithDestination(id string) *PromptBuilder {
	pb.destinationID = id
	return pb
}

// Build constructs the complete system prompt by assembling all sections
func (pb *PromptBuilder) Build() string {
	var builder strings.Builder

	if pb.customInstructions != "" {
		builder.WriteString("<custom_instructions>\n")
		builder.WriteString(pb.customInstructions)
		builder.WriteString("\n</custom_instructions>\n\n")
	}

	builder.WriteString(SystemCapabilitiesPrompt)
	builder.WriteString("\n\n")
	builder.WriteString(AgentLoopPrompt)
	builder.WriteString("\n\n")

	if pb.destinationID != "" {
		fmt.Fprintf(&builder, "<destination>\nParent page id: %s\n</destination>\n\n", pb.destinationID)
	}

	if len(pb.tools) > 0 {
		builder.WriteString("<available_tools>\n")
		for _, def := range pb.tools {
			if def.Description != "" {
				fmt.Fprintf(&builder, "- %s: %s\n", def.Name, firstLine(def.Description))
			} else {
				fmt.Fprintf(&builder, "- %s\n", def.Name)
			}
		}
		builder.WriteString("</available_tools>\n\n")
	}

	builder.WriteString(ToolUseRulesPrompt)
	return builder.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
