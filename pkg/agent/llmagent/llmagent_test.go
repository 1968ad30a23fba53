package llmagent

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kadirpekel/scout/pkg/agent"
	"github.com/kadirpekel/scout/pkg/model"
	"github.com/kadirpekel/scout/pkg/tool"
	"github.com/kadirpekel/scout/pkg/tool/functiontool"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedLLM returns one scripted response per call.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []*model.Response
	err       error
	requests  []*model.Request
}

func (s *scriptedLLM) Name() string             { return "scripted" }
func (s *scriptedLLM) Provider() model.Provider { return model.ProviderUnknown }
func (s *scriptedLLM) Close() error             { return nil }

func (s *scriptedLLM) GenerateContent(_ context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		s.mu.Lock()
		s.requests = append(s.requests, req)
		if s.err != nil {
			s.mu.Unlock()
			yield(nil, s.err)
			return
		}
		if len(s.responses) == 0 {
			s.mu.Unlock()
			yield(nil, errors.New("script exhausted"))
			return
		}
		resp := s.responses[0]
		s.responses = s.responses[1:]
		s.mu.Unlock()

		if stream {
			agg := model.NewStreamingAggregator()
			for chunk, err := range agg.ProcessTextDelta(resp.TextContent()) {
				if !yield(chunk, err) {
					return
				}
			}
		}
		yield(resp, nil)
	}
}

func textResponse(text string) *model.Response {
	return &model.Response{
		Content:      &model.Content{Role: a2a.MessageRoleAgent, Parts: []a2a.Part{a2a.TextPart{Text: text}}},
		TurnComplete: true,
		Usage:        &model.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func toolCallResponse(calls ...tool.ToolCall) *model.Response {
	parts := make([]a2a.Part, 0, len(calls))
	for _, c := range calls {
		parts = append(parts, model.ToolCallPart(c))
	}
	return &model.Response{
		Content:   &model.Content{Role: a2a.MessageRoleAgent, Parts: parts},
		ToolCalls: calls,
	}
}

type memSession struct {
	events []*agent.Event
}

func (s *memSession) ID() string            { return "s1" }
func (s *memSession) AppName() string       { return "scout" }
func (s *memSession) UserID() string        { return "u1" }
func (s *memSession) Events() agent.Events  { return s }
func (s *memSession) Len() int              { return len(s.events) }
func (s *memSession) At(i int) *agent.Event { return s.events[i] }
func (s *memSession) All() []*agent.Event   { return s.events }

// run drives a the way the runner does: persist every non-partial event
// before resuming.
func run(t *testing.T, ctx context.Context, a agent.Agent, text string) (*memSession, []*agent.Event, error) {
	t.Helper()
	sess := &memSession{}
	msg := a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: text})
	userEvent := agent.NewEvent("inv-1")
	userEvent.Author = agent.AuthorUser
	userEvent.Message = msg
	sess.events = append(sess.events, userEvent)

	inv := agent.NewInvocationContext(ctx, agent.InvocationContextParams{
		Agent:        a,
		Session:      sess,
		InvocationID: "inv-1",
		UserContent:  msg,
	})

	var yielded []*agent.Event
	for ev, err := range a.Run(inv) {
		if err != nil {
			return sess, yielded, err
		}
		yielded = append(yielded, ev)
		if !ev.Partial {
			sess.events = append(sess.events, ev)
		}
	}
	return sess, yielded, nil
}

type urlArgs struct{}

func newTestTools(t *testing.T, calls *int) []tool.CallableTool {
	t.Helper()
	meta, err := functiontool.New(functiontool.Config{
		Name:        "get_page_metadata",
		Description: "Get page URL and title",
	}, func(_ tool.Context, _ urlArgs) (map[string]any, error) {
		*calls++
		return map[string]any{"url": "https://example.com", "title": "Example"}, nil
	})
	require.NoError(t, err)

	broken, err := functiontool.New(functiontool.Config{
		Name:        "take_screenshot",
		Description: "Capture the page",
	}, func(_ tool.Context, _ urlArgs) (map[string]any, error) {
		return nil, errors.New("browser crashed")
	})
	require.NoError(t, err)
	return []tool.CallableTool{meta, broken}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Model: &scriptedLLM{}})
	assert.ErrorContains(t, err, "name is required")

	_, err = New(Config{Name: "a"})
	assert.ErrorContains(t, err, "model is required")

	var calls int
	tools := newTestTools(t, &calls)
	_, err = New(Config{Name: "a", Model: &scriptedLLM{}, Tools: append(tools, tools[0])})
	assert.ErrorContains(t, err, "duplicate tool")
}

func TestRun_TextOnly(t *testing.T) {
	llm := &scriptedLLM{responses: []*model.Response{textResponse(`{"metadata": {}}`)}}
	a, err := New(Config{Name: "discover_agent", Model: llm, Instruction: "observe"})
	require.NoError(t, err)

	sess, events, err := run(t, context.Background(), a, "Start the UI discovery process")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].IsFinalResponse())
	assert.Equal(t, "discover_agent", events[0].Author)
	assert.Equal(t, `{"metadata": {}}`, events[0].TextContent())
	assert.Equal(t, 2, sess.Len())

	require.Len(t, llm.requests, 1)
	assert.Equal(t, "observe", llm.requests[0].SystemInstruction)
	require.Len(t, llm.requests[0].Messages, 1)
	assert.Equal(t, "Start the UI discovery process", model.TextOf(llm.requests[0].Messages[0].Parts))
}

func TestRun_ToolLoop(t *testing.T) {
	llm := &scriptedLLM{responses: []*model.Response{
		toolCallResponse(
			tool.ToolCall{ID: "c1", Name: "get_page_metadata"},
			tool.ToolCall{ID: "c2", Name: "take_screenshot"},
			tool.ToolCall{ID: "c3", Name: "click"},
		),
		textResponse("done"),
	}}

	var metaCalls int
	a, err := New(Config{Name: "discover_agent", Model: llm, Tools: newTestTools(t, &metaCalls)})
	require.NoError(t, err)

	_, events, err := run(t, context.Background(), a, "go")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, 1, metaCalls)

	callEvent := events[0]
	assert.True(t, callEvent.HasToolCalls())
	require.Len(t, callEvent.ToolCalls, 3)
	assert.Equal(t, agent.ToolStatusWorking, callEvent.ToolCalls[0].Status)

	resultEvent := events[1]
	assert.Equal(t, a2a.MessageRoleUser, resultEvent.Message.Role)
	require.Len(t, resultEvent.ToolResults, 3)
	assert.Equal(t, agent.ToolStatusSuccess, resultEvent.ToolResults[0].Status)
	assert.JSONEq(t, `{"url":"https://example.com","title":"Example"}`, resultEvent.ToolResults[0].Content)
	assert.True(t, resultEvent.ToolResults[1].IsError)
	assert.Contains(t, resultEvent.ToolResults[1].Content, "browser crashed")
	assert.True(t, resultEvent.ToolResults[2].IsError)
	assert.Contains(t, resultEvent.ToolResults[2].Content, `tool \"click\" not found`)

	assert.True(t, events[2].IsFinalResponse())

	// The second call sees the whole history, tool results included.
	require.Len(t, llm.requests, 2)
	second := llm.requests[1]
	require.Len(t, second.Messages, 3)
	results := model.ToolResultsOf(second.Messages[2].Parts)
	require.Len(t, results, 3)
	assert.Equal(t, "c1", results[0].ToolCallID)
	assert.Len(t, second.Tools, 2)
}

func TestRun_Streaming(t *testing.T) {
	llm := &scriptedLLM{responses: []*model.Response{textResponse("hello")}}
	a, err := New(Config{Name: "discover_agent", Model: llm, Stream: true})
	require.NoError(t, err)

	sess, events, err := run(t, context.Background(), a, "go")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[0].Partial)
	assert.False(t, events[0].IsFinalResponse())
	assert.Equal(t, "hello", events[1].TextContent())
	assert.Equal(t, 2, sess.Len(), "partial events are not persisted")
}

func TestRun_MaxIterations(t *testing.T) {
	var responses []*model.Response
	for range 3 {
		responses = append(responses, toolCallResponse(tool.ToolCall{ID: "c", Name: "get_page_metadata"}))
	}
	llm := &scriptedLLM{responses: responses}

	var calls int
	a, err := New(Config{Name: "a", Model: llm, Tools: newTestTools(t, &calls), MaxIterations: 2})
	require.NoError(t, err)

	_, _, err = run(t, context.Background(), a, "go")
	require.ErrorIs(t, err, ErrMaxIterations)
	assert.ErrorContains(t, err, "2 iterations")
	assert.Equal(t, 2, calls)
}

func TestRun_ModelError(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("quota exceeded")}
	a, err := New(Config{Name: "a", Model: llm})
	require.NoError(t, err)

	_, _, err = run(t, context.Background(), a, "go")
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestRun_Cancelled(t *testing.T) {
	llm := &scriptedLLM{responses: []*model.Response{textResponse("never")}}
	a, err := New(Config{Name: "a", Model: llm})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, events, err := run(t, ctx, a, "go")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, events)
	assert.Empty(t, llm.requests)
}

func TestRun_EarlyBreak(t *testing.T) {
	llm := &scriptedLLM{responses: []*model.Response{
		toolCallResponse(tool.ToolCall{ID: "c1", Name: "get_page_metadata"}),
		textResponse("done"),
	}}
	var calls int
	a, err := New(Config{Name: "a", Model: llm, Tools: newTestTools(t, &calls)})
	require.NoError(t, err)

	inv := agent.NewInvocationContext(context.Background(), agent.InvocationContextParams{
		Agent:        a,
		Session:      &memSession{},
		InvocationID: "inv",
		UserContent:  a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "go"}),
	})
	for range a.Run(inv) {
		break
	}
	assert.Zero(t, calls, "tools do not run once the consumer stops")
}
