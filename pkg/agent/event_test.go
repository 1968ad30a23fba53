package agent

import (
	"context"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"

	"github.com/kadirpekel/scout/pkg/model"
	"github.com/kadirpekel/scout/pkg/tool"
)

func TestEvent_IsFinalResponse(t *testing.T) {
	tests := []struct {
		name  string
		event *Event
		want  bool
	}{
		{
			name:  "text",
			event: &Event{Message: a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: "done"})},
			want:  true,
		},
		{
			name:  "partial",
			event: &Event{Partial: true, Message: a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: "do"})},
			want:  false,
		},
		{
			name:  "tool call state",
			event: &Event{ToolCalls: []ToolCallState{{ID: "c1", Name: "take_screenshot"}}},
			want:  false,
		},
		{
			name: "tool call part",
			event: &Event{Message: a2a.NewMessage(a2a.MessageRoleAgent,
				model.ToolCallPart(tool.ToolCall{ID: "c1", Name: "take_screenshot"}))},
			want: false,
		},
		{
			name: "tool result part",
			event: &Event{Message: a2a.NewMessage(a2a.MessageRoleUser,
				model.ToolResultPart(tool.ToolResult{ToolCallID: "c1", Name: "take_screenshot"}))},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.IsFinalResponse())
		})
	}
}

func TestEvent_TextContent(t *testing.T) {
	var nilEvent *Event
	assert.Empty(t, nilEvent.TextContent())

	e := NewEvent("inv-1")
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "inv-1", e.InvocationID)
	e.Message = a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: "a"}, a2a.TextPart{Text: "b"})
	assert.Equal(t, "ab", e.TextContent())
}

type stubSession struct{}

func (stubSession) ID() string      { return "s1" }
func (stubSession) AppName() string { return "scout" }
func (stubSession) UserID() string  { return "u1" }
func (stubSession) Events() Events  { return nil }

func TestNewToolContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")

	inv := NewInvocationContext(ctx, InvocationContextParams{
		Session:      stubSession{},
		InvocationID: "inv-1",
	})
	tc := NewToolContext(inv, "call-1")

	assert.Equal(t, "call-1", tc.FunctionCallID())
	assert.Equal(t, "inv-1", tc.InvocationID())
	assert.Equal(t, "s1", tc.SessionID())
	assert.Equal(t, "u1", tc.UserID())
	assert.Empty(t, tc.AgentName())
	assert.Equal(t, "v", tc.Value(key{}))

	type other struct{}
	moved := WithContext(inv, context.WithValue(ctx, other{}, 1))
	assert.Equal(t, 1, moved.Value(other{}))
	assert.Equal(t, "scout", moved.AppName())
}
