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

// Package model defines the LLM interface used by the agent loop.
//
// A single GenerateContent method covers streaming and non-streaming calls
// and returns an iter.Seq2. Non-streaming calls yield exactly one response.
// Streaming calls yield partial responses followed by one aggregated
// response with Partial=false, which is the one the agent acts on.
//
// Conversation history is carried as a2a messages. Tool calls and tool
// results travel as data parts, see ToolCallPart and ToolResultPart.
package model

import (
	"context"
	"encoding/json"
	"iter"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/scout/pkg/tool"
)

// LLM is a language model.
type LLM interface {
	Name() string
	Provider() Provider
	GenerateContent(ctx context.Context, req *Request, stream bool) iter.Seq2[*Response, error]
	Close() error
}

// Provider identifies the LLM vendor.
type Provider string

const (
	ProviderOpenAI  Provider = "openai"
	ProviderGemini  Provider = "gemini"
	ProviderUnknown Provider = "unknown"
)

// Request is the input for one model call.
type Request struct {
	Messages          []*a2a.Message
	Tools             []tool.Definition
	Config            *GenerateConfig
	SystemInstruction string
}

// GenerateConfig holds per-request generation settings.
type GenerateConfig struct {
	Temperature      *float64
	MaxTokens        *int
	ResponseMIMEType string
}

// Clone returns a deep copy.
func (c *GenerateConfig) Clone() *GenerateConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Temperature != nil {
		t := *c.Temperature
		clone.Temperature = &t
	}
	if c.MaxTokens != nil {
		m := *c.MaxTokens
		clone.MaxTokens = &m
	}
	return &clone
}

// Response is the output of a model call, or one chunk of it.
type Response struct {
	Content *Content

	// Partial marks a streaming delta. The final aggregated response of a
	// stream has Partial=false.
	Partial bool

	TurnComplete bool
	ToolCalls    []tool.ToolCall
	Usage        *Usage
	FinishReason FinishReason
}

// Content is the generated message body.
type Content struct {
	Parts []a2a.Part
	Role  a2a.MessageRole
}

// Usage reports token counts.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// FinishReason indicates why generation stopped.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonToolCalls FinishReason = "tool_calls"
	FinishReasonContent   FinishReason = "content_filter"
	FinishReasonError     FinishReason = "error"
)

// TextContent concatenates the text parts.
func (r *Response) TextContent() string {
	if r == nil || r.Content == nil {
		return ""
	}
	return TextOf(r.Content.Parts)
}

func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// ToMessage converts the response to a history message.
func (r *Response) ToMessage() *a2a.Message {
	if r == nil || r.Content == nil {
		return nil
	}
	return a2a.NewMessage(r.Content.Role, r.Content.Parts...)
}

// TextOf concatenates the text parts of parts.
func TextOf(parts []a2a.Part) string {
	var sb strings.Builder
	for _, p := range parts {
		if tp, ok := p.(a2a.TextPart); ok {
			sb.WriteString(tp.Text)
		}
	}
	return sb.String()
}

// Data part kinds.
const (
	PartTypeToolUse    = "tool_use"
	PartTypeToolResult = "tool_result"
)

// ToolCallPart encodes a tool call as a data part.
func ToolCallPart(tc tool.ToolCall) a2a.DataPart {
	args := tc.Args
	if args == nil {
		args = map[string]any{}
	}
	return a2a.DataPart{Data: map[string]any{
		"type":      PartTypeToolUse,
		"id":        tc.ID,
		"name":      tc.Name,
		"arguments": args,
	}}
}

// ToolResultPart encodes a tool result as a data part. The payload is kept
// both structured (result) and as JSON text (content) since providers
// disagree on which one they accept.
func ToolResultPart(tr tool.ToolResult) a2a.DataPart {
	payload := tr.Payload()
	text, err := json.Marshal(payload)
	if err != nil {
		text = []byte(`{}`)
	}
	data := map[string]any{
		"type":         PartTypeToolResult,
		"tool_call_id": tr.ToolCallID,
		"tool_name":    tr.Name,
		"content":      string(text),
		"result":       payload,
	}
	if tr.Error != "" {
		data["is_error"] = true
	}
	return a2a.DataPart{Data: data}
}

// ToolCallsOf decodes tool-call data parts.
func ToolCallsOf(parts []a2a.Part) []tool.ToolCall {
	var calls []tool.ToolCall
	for _, p := range parts {
		dp, ok := dataPart(p)
		if !ok || stringField(dp.Data, "type") != PartTypeToolUse {
			continue
		}
		args, _ := dp.Data["arguments"].(map[string]any)
		calls = append(calls, tool.ToolCall{
			ID:   stringField(dp.Data, "id"),
			Name: stringField(dp.Data, "name"),
			Args: args,
		})
	}
	return calls
}

// ToolResultsOf decodes tool-result data parts.
func ToolResultsOf(parts []a2a.Part) []tool.ToolResult {
	var results []tool.ToolResult
	for _, p := range parts {
		dp, ok := dataPart(p)
		if !ok || stringField(dp.Data, "type") != PartTypeToolResult {
			continue
		}
		tr := tool.ToolResult{
			ToolCallID: stringField(dp.Data, "tool_call_id"),
			Name:       stringField(dp.Data, "tool_name"),
		}
		result, _ := dp.Data["result"].(map[string]any)
		if result == nil {
			if s := stringField(dp.Data, "content"); s != "" {
				_ = json.Unmarshal([]byte(s), &result)
			}
		}
		if isErr, _ := dp.Data["is_error"].(bool); isErr {
			tr.Error, _ = result["error"].(string)
		} else {
			tr.Content = result
		}
		results = append(results, tr)
	}
	return results
}

// dataPart accepts both value and pointer forms, since parts decoded from
// storage may come back either way.
func dataPart(p a2a.Part) (a2a.DataPart, bool) {
	switch v := p.(type) {
	case a2a.DataPart:
		return v, true
	case *a2a.DataPart:
		if v != nil {
			return *v, true
		}
	}
	return a2a.DataPart{}, false
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
