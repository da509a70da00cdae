package agent

import (
	"sync"

	"github.com/entrhq/notepress/pkg/types"
)

// History is the append-only conversation a loop run builds. It is owned by
// one run and never trimmed.
type History struct {
	mu       sync.RWMutex
	messages []*types.Message
}

// NewHistory starts a conversation from the seed messages.
func NewHistory(seed ...*types.Message) *History {
	h := &History{}
	for _, m := range seed {
		if m != nil {
			h.messages = append(h.messages, m)
		}
	}
	return h
}

func (h *History) Append(msgs ...*types.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msgs...)
}

// AppendToolExchange records one invocation as two entries: the call, with
// any assistant text that came with it, and its textual result.
func (h *History) AppendToolExchange(call types.ToolCall, text, result string) {
	msg := types.NewToolCallMessage(call)
	msg.Content = text
	h.Append(msg, types.NewToolResultMessage(call.ID, result))
}

// Messages returns a copy of the conversation.
func (h *History) Messages() []*types.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*types.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}
