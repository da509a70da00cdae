package types

// AgentEventType defines the type of event emitted while a publishing run progresses.
type AgentEventType string

const (
	EventTypeStageStart      AgentEventType = "stage_start"       // EventTypeStageStart indicates a refinement stage is starting.
	EventTypeStageEnd        AgentEventType = "stage_end"         // EventTypeStageEnd indicates a refinement stage finished.
	EventTypeToolCall        AgentEventType = "tool_call"         // EventTypeToolCall indicates the agent is calling a tool.
	EventTypeToolResult      AgentEventType = "tool_result"       // EventTypeToolResult indicates a successful tool call result.
	EventTypeToolResultError AgentEventType = "tool_result_error" // EventTypeToolResultError indicates a tool result classified as an error.
	EventTypeMessage         AgentEventType = "message"           // EventTypeMessage carries assistant text.
	EventTypeAPICallStart    AgentEventType = "api_call_start"    // EventTypeAPICallStart indicates a model call is being made.
	EventTypeTokenUsage      AgentEventType = "token_usage"       // EventTypeTokenUsage carries token usage from a model call.
	EventTypeLoopStopped     AgentEventType = "loop_stopped"      // EventTypeLoopStopped indicates the tool loop was forced to stop.
	EventTypeError           AgentEventType = "error"             // EventTypeError indicates an error occurred during processing.
)

// AgentEvent represents an event emitted during execution.
type AgentEvent struct {
	// Metadata holds optional additional information about the event.
	Metadata map[string]interface{}

	// ToolInput is the input sent to the tool (for tool call events).
	ToolInput map[string]interface{}

	// ToolOutput is the textual tool result (for tool result events).
	ToolOutput string

	// Error contains error information for error events.
	Error error

	// Content holds text for message events and the stage output for stage end events.
	Content string

	// ToolName is the name of the tool being called (for tool events).
	ToolName string

	// Stage names the refinement stage (for stage events).
	Stage string

	// Type indicates the kind of event.
	Type AgentEventType

	// TokenUsage contains token usage information (for token usage events).
	TokenUsage *TokenUsage

	// APICallInfo contains model call information (for API call events).
	APICallInfo *APICallInfo
}

// TokenUsage contains token usage statistics from a model call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// APICallInfo describes a model call about to be made.
type APICallInfo struct {
	// Model is the model name the call targets.
	Model string

	// ContextTokens is the estimated prompt size in tokens, 0 when unknown.
	ContextTokens int

	// Iteration is the tool loop iteration, 0 outside the loop.
	Iteration int
}

// EventHandler receives events. Implementations must not block for long.
type EventHandler func(*AgentEvent)

// Emit calls h when it is non-nil.
func (h EventHandler) Emit(event *AgentEvent) {
	if h != nil {
		h(event)
	}
}

func NewStageStartEvent(stage string) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeStageStart,
		Stage:    stage,
		Metadata: make(map[string]interface{}),
	}
}

// NewStageEndEvent records the stage output and the event that routed out of it.
func NewStageEndEvent(stage, output, transition string) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeStageEnd,
		Stage:    stage,
		Content:  output,
		Metadata: map[string]interface{}{"transition": transition},
	}
}

func NewToolCallEvent(toolName string, toolInput map[string]interface{}) *AgentEvent {
	return &AgentEvent{
		Type:      EventTypeToolCall,
		ToolName:  toolName,
		ToolInput: toolInput,
		Metadata:  make(map[string]interface{}),
	}
}

func NewToolResultEvent(toolName, output string) *AgentEvent {
	return &AgentEvent{
		Type:       EventTypeToolResult,
		ToolName:   toolName,
		ToolOutput: output,
		Metadata:   make(map[string]interface{}),
	}
}

// NewToolResultErrorEvent records a result that the loop counted as an error.
// consecutive is the error streak length including this result.
func NewToolResultErrorEvent(toolName, output string, consecutive int) *AgentEvent {
	return &AgentEvent{
		Type:       EventTypeToolResultError,
		ToolName:   toolName,
		ToolOutput: output,
		Metadata:   map[string]interface{}{"consecutive_errors": consecutive},
	}
}

func NewMessageEvent(content string) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeMessage,
		Content:  content,
		Metadata: make(map[string]interface{}),
	}
}

func NewAPICallStartEvent(model string, contextTokens, iteration int) *AgentEvent {
	return &AgentEvent{
		Type: EventTypeAPICallStart,
		APICallInfo: &APICallInfo{
			Model:         model,
			ContextTokens: contextTokens,
			Iteration:     iteration,
		},
		Metadata: make(map[string]interface{}),
	}
}

func NewTokenUsageEvent(promptTokens, completionTokens, totalTokens int) *AgentEvent {
	return &AgentEvent{
		Type: EventTypeTokenUsage,
		TokenUsage: &TokenUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      totalTokens,
		},
		Metadata: make(map[string]interface{}),
	}
}

// NewLoopStoppedEvent reports a forced stop with its reason and marker text.
func NewLoopStoppedEvent(reason, marker string) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeLoopStopped,
		Content:  marker,
		Metadata: map[string]interface{}{"reason": reason},
	}
}

func NewErrorEvent(err error) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeError,
		Error:    err,
		Metadata: make(map[string]interface{}),
	}
}

// IsToolEvent reports whether the event concerns a tool invocation.
func (e *AgentEvent) IsToolEvent() bool {
	switch e.Type {
	case EventTypeToolCall, EventTypeToolResult, EventTypeToolResultError:
		return true
	}
	return false
}

// IsError reports whether the event signals a failure.
func (e *AgentEvent) IsError() bool {
	return e.Type == EventTypeError || e.Type == EventTypeToolResultError
}
