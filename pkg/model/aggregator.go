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

package model

import (
	"iter"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/scout/pkg/tool"
)

// StreamingAggregator accumulates streaming deltas. Each delta is passed
// through as a partial response; Close returns the aggregate.
//
//	agg := NewStreamingAggregator()
//	for chunk := range stream {
//	    for resp, err := range agg.ProcessTextDelta(chunk.Text) {
//	        yield(resp, err)
//	    }
//	}
//	if final := agg.Close(); final != nil {
//	    yield(final, nil)
//	}
type StreamingAggregator struct {
	text         strings.Builder
	role         a2a.MessageRole
	toolCalls    []tool.ToolCall
	usage        *Usage
	finishReason FinishReason
}

func NewStreamingAggregator() *StreamingAggregator {
	return &StreamingAggregator{role: a2a.MessageRoleAgent}
}

// ProcessTextDelta records text and yields it as a partial response.
func (s *StreamingAggregator) ProcessTextDelta(text string) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		if text == "" {
			return
		}
		s.text.WriteString(text)
		yield(&Response{
			Content: &Content{Parts: []a2a.Part{a2a.TextPart{Text: text}}, Role: s.role},
			Partial: true,
		}, nil)
	}
}

// ProcessToolCall records a complete tool call and yields it as a partial
// response.
func (s *StreamingAggregator) ProcessToolCall(tc tool.ToolCall) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		s.toolCalls = append(s.toolCalls, tc)
		yield(&Response{
			Content:   &Content{Parts: []a2a.Part{ToolCallPart(tc)}, Role: s.role},
			Partial:   true,
			ToolCalls: []tool.ToolCall{tc},
		}, nil)
	}
}

func (s *StreamingAggregator) SetUsage(usage *Usage) {
	s.usage = usage
}

func (s *StreamingAggregator) SetFinishReason(reason FinishReason) {
	s.finishReason = reason
}

// Close returns the aggregated response, or nil when nothing was received.
// The aggregator is reset afterwards.
func (s *StreamingAggregator) Close() *Response {
	if s.text.Len() == 0 && len(s.toolCalls) == 0 {
		return nil
	}

	var parts []a2a.Part
	if s.text.Len() > 0 {
		parts = append(parts, a2a.TextPart{Text: s.text.String()})
	}
	for _, tc := range s.toolCalls {
		parts = append(parts, ToolCallPart(tc))
	}

	reason := s.finishReason
	if len(s.toolCalls) > 0 {
		reason = FinishReasonToolCalls
	} else if reason == "" {
		reason = FinishReasonStop
	}

	resp := &Response{
		Content:      &Content{Parts: parts, Role: s.role},
		TurnComplete: true,
		ToolCalls:    s.toolCalls,
		Usage:        s.usage,
		FinishReason: reason,
	}

	s.text.Reset()
	s.toolCalls = nil
	s.usage = nil
	s.finishReason = ""
	return resp
}
