// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llmagent

import (
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/scout/pkg/agent"
	"github.com/kadirpekel/scout/pkg/model"
	"github.com/kadirpekel/scout/pkg/observability"
	"github.com/kadirpekel/scout/pkg/tool"
)

// Flow is the reasoning loop of one invocation.
type Flow struct {
	agent  *llmAgent
	tracer trace.Tracer
}

func newFlow(a *llmAgent) *Flow {
	return &Flow{agent: a, tracer: observability.Tracer()}
}

// Run loops until the model gives a final response. Each step reads the
// history from the session, so the caller must persist every non-partial
// event before resuming the iterator.
func (f *Flow) Run(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
	return func(yield func(*agent.Event, error) bool) {
		spanCtx, span := f.tracer.Start(ctx, observability.SpanAgentRun,
			trace.WithAttributes(attribute.String(observability.AttrAgentName, f.agent.name)))
		defer span.End()
		ctx := agent.WithContext(ctx, spanCtx)

		for iteration := 0; iteration < f.agent.maxIterations; iteration++ {
			if err := ctx.Err(); err != nil {
				span.RecordError(err)
				yield(nil, err)
				return
			}
			span.SetAttributes(attribute.Int(observability.AttrIteration, iteration))

			var lastEvent *agent.Event
			for ev, err := range f.runOneStep(ctx) {
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
					yield(nil, err)
					return
				}
				if !yield(ev, nil) {
					return
				}
				lastEvent = ev
			}

			if lastEvent == nil || lastEvent.IsFinalResponse() {
				slog.Debug("Flow terminating", "agent", f.agent.name, "iteration", iteration, "has_event", lastEvent != nil)
				return
			}
			if lastEvent.Partial {
				yield(nil, fmt.Errorf("unexpected partial event at end of step"))
				return
			}
		}

		err := fmt.Errorf("%w (%d iterations)", ErrMaxIterations, f.agent.maxIterations)
		span.SetStatus(codes.Error, err.Error())
		yield(nil, err)
	}
}

// runOneStep calls the model once and executes the tools it asks for.
func (f *Flow) runOneStep(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
	return func(yield func(*agent.Event, error) bool) {
		req := f.buildRequest(ctx)

		resp, err := f.callLLM(ctx, req, yield)
		if err != nil {
			yield(nil, err)
			return
		}
		if resp == nil || (resp.Content == nil && !resp.HasToolCalls()) {
			return
		}

		if !yield(f.buildModelResponseEvent(ctx, resp), nil) {
			return
		}

		if resp.HasToolCalls() {
			yield(f.handleToolCalls(ctx, resp), nil)
		}
	}
}

// buildRequest assembles the conversation from the session. The invocation's
// user content is used when the session has no history yet.
func (f *Flow) buildRequest(ctx agent.InvocationContext) *model.Request {
	req := &model.Request{
		Tools:             f.agent.definitions,
		Config:            f.agent.genConfig.Clone(),
		SystemInstruction: f.agent.instruction,
	}

	if sess := ctx.Session(); sess != nil && sess.Events() != nil {
		for _, ev := range sess.Events().All() {
			if ev.Partial || ev.Message == nil {
				continue
			}
			req.Messages = append(req.Messages, ev.Message)
		}
	}
	if len(req.Messages) == 0 && ctx.UserContent() != nil {
		req.Messages = append(req.Messages, ctx.UserContent())
	}
	return req
}

// callLLM runs one model call, forwarding partial responses as partial
// events, and returns the final response.
func (f *Flow) callLLM(ctx agent.InvocationContext, req *model.Request, yield func(*agent.Event, error) bool) (*model.Response, error) {
	llm := f.agent.model
	spanCtx, span := f.tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(attribute.String(observability.AttrLLMModel, llm.Name())))
	defer span.End()

	start := time.Now()
	var final *model.Response
	var callErr error
	for resp, err := range llm.GenerateContent(spanCtx, req, f.agent.stream) {
		if err != nil {
			callErr = fmt.Errorf("model %s: %w", llm.Name(), err)
			break
		}
		if resp.Partial {
			if !yield(f.buildPartialEvent(ctx, resp), nil) {
				return nil, nil
			}
			continue
		}
		final = resp
	}

	var in, out int
	if final != nil && final.Usage != nil {
		in, out = final.Usage.PromptTokens, final.Usage.CompletionTokens
		span.SetAttributes(
			attribute.Int(observability.AttrLLMTokensIn, in),
			attribute.Int(observability.AttrLLMTokensOut, out),
		)
	}
	f.agent.metrics.RecordLLMCall(ctx, llm.Name(), time.Since(start), in, out, callErr)

	if callErr != nil {
		span.RecordError(callErr)
		span.SetStatus(codes.Error, callErr.Error())
		return nil, callErr
	}
	return final, nil
}

func (f *Flow) buildPartialEvent(ctx agent.InvocationContext, resp *model.Response) *agent.Event {
	ev := agent.NewEvent(ctx.InvocationID())
	ev.Author = f.agent.name
	ev.Partial = true
	ev.Message = resp.ToMessage()
	return ev
}

func (f *Flow) buildModelResponseEvent(ctx agent.InvocationContext, resp *model.Response) *agent.Event {
	ev := agent.NewEvent(ctx.InvocationID())
	ev.Author = f.agent.name
	ev.TurnComplete = resp.TurnComplete
	ev.Usage = resp.Usage
	ev.Message = resp.ToMessage()

	// Some providers report calls without echoing them as parts.
	if resp.HasToolCalls() && (ev.Message == nil || len(model.ToolCallsOf(ev.Message.Parts)) == 0) {
		parts := make([]a2a.Part, 0, len(resp.ToolCalls))
		if ev.Message != nil {
			parts = append(parts, ev.Message.Parts...)
		}
		for _, tc := range resp.ToolCalls {
			parts = append(parts, model.ToolCallPart(tc))
		}
		ev.Message = a2a.NewMessage(a2a.MessageRoleAgent, parts...)
	}

	for _, tc := range resp.ToolCalls {
		ev.ToolCalls = append(ev.ToolCalls, agent.ToolCallState{
			ID:     tc.ID,
			Name:   tc.Name,
			Args:   tc.Args,
			Status: agent.ToolStatusWorking,
		})
	}
	if resp.FinishReason == model.FinishReasonError {
		ev.ErrorMessage = resp.TextContent()
	}
	return ev
}

// handleToolCalls executes the requested tools in order and merges their
// results into one event. Tool failures become error results for the
// model; they never abort the invocation.
func (f *Flow) handleToolCalls(ctx agent.InvocationContext, resp *model.Response) *agent.Event {
	parts := make([]a2a.Part, 0, len(resp.ToolCalls))
	states := make([]agent.ToolResultState, 0, len(resp.ToolCalls))

	for _, tc := range resp.ToolCalls {
		result := f.callTool(ctx, tc)

		state := agent.ToolResultState{
			ToolCallID: tc.ID,
			Name:       tc.Name,
			Content:    formatToolResult(result.Payload()),
			Status:     agent.ToolStatusSuccess,
		}
		if result.IsError() {
			state.Status = agent.ToolStatusFailed
			state.IsError = true
		}
		states = append(states, state)
		parts = append(parts, model.ToolResultPart(result))
	}

	ev := agent.NewEvent(ctx.InvocationID())
	ev.Author = f.agent.name
	ev.ToolResults = states
	ev.Message = a2a.NewMessage(a2a.MessageRoleUser, parts...)
	return ev
}

func (f *Flow) callTool(ctx agent.InvocationContext, tc tool.ToolCall) tool.ToolResult {
	result := tool.ToolResult{ToolCallID: tc.ID, Name: tc.Name}

	t := f.agent.findTool(tc.Name)
	if t == nil {
		result.Error = fmt.Sprintf("tool %q not found", tc.Name)
		slog.Warn("Model called unknown tool", "agent", f.agent.name, "tool", tc.Name)
		return result
	}

	spanCtx, span := f.tracer.Start(ctx, observability.SpanToolExecution,
		trace.WithAttributes(
			attribute.String(observability.AttrToolName, tc.Name),
			attribute.String(observability.AttrToolCallID, tc.ID),
		))
	defer span.End()

	start := time.Now()
	content, err := t.Call(agent.NewToolContext(agent.WithContext(ctx, spanCtx), tc.ID), tc.Args)
	f.agent.metrics.RecordToolExecution(ctx, tc.Name, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("Tool call failed", "tool", tc.Name, "call_id", tc.ID, "error", err)
		result.Error = err.Error()
		return result
	}
	slog.Debug("Tool call completed", "tool", tc.Name, "call_id", tc.ID, "duration", time.Since(start))
	result.Content = content
	return result
}

func formatToolResult(payload map[string]any) string {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(b)
}
