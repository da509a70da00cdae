package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/entrhq/notepress/pkg/types"
)

type staticProvider struct{ model string }

func (s *staticProvider) Complete(context.Context, []*types.Message, ...CompletionOption) (*Completion, error) {
	return &Completion{Message: types.NewAssistantMessage("")}, nil
}

func (s *staticProvider) GetModel() string { return s.model }

func TestApplyOptions(t *testing.T) {
	o := ApplyOptions()
	assert.Nil(t, o.Tools)
	assert.Nil(t, o.Temperature)

	defs := []types.ToolDefinition{{Name: "create_page"}}
	o = ApplyOptions(WithTools(defs), WithTemperature(0.2))
	assert.Equal(t, defs, o.Tools)
	if assert.NotNil(t, o.Temperature) {
		assert.InDelta(t, 0.2, *o.Temperature, 1e-9)
	}
}

func TestWithModelWithoutCloner(t *testing.T) {
	p := &staticProvider{model: "a"}
	assert.Same(t, p, WithModel(p, "b").(*staticProvider))
	assert.Same(t, p, WithModel(p, "").(*staticProvider))
}
