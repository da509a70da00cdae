package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/entrhq/notepress/pkg/types"
)

func TestNilTokenizerFallback(t *testing.T) {
	var tok *Tokenizer
	assert.Equal(t, 0, tok.CountTokens(""))
	assert.Equal(t, 1, tok.CountTokens("abcd"))
	assert.Equal(t, 2, tok.CountTokens("abcde"))
}

func TestCountMessagesTokensIncludesOverhead(t *testing.T) {
	var tok *Tokenizer
	msgs := []*types.Message{
		types.NewUserMessage("abcd"),
		types.NewToolCallMessage(types.ToolCall{Name: "abcd", Arguments: []byte(`{"a":1}`)}),
	}
	// 4+1 for the user message, 4+0+1+2 for the tool call message.
	assert.Equal(t, 12, tok.CountMessagesTokens(msgs))
}

func TestEncodingCounts(t *testing.T) {
	tok, err := New()
	if err != nil {
		t.Skipf("tiktoken encoding unavailable in this environment: %v", err)
	}
	assert.Greater(t, tok.CountTokens("Organize this draft into sections with headings."), 0)
	assert.Less(t, tok.CountTokens("hello world"), len("hello world"))
}
