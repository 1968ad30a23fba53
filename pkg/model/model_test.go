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
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/scout/pkg/tool"
)

func TestStreamingAggregator_Text(t *testing.T) {
	agg := NewStreamingAggregator()

	var partials []string
	for _, delta := range []string{"{\"meta", "data\": ", "{}}"} {
		for resp, err := range agg.ProcessTextDelta(delta) {
			require.NoError(t, err)
			assert.True(t, resp.Partial)
			partials = append(partials, resp.TextContent())
		}
	}
	for range agg.ProcessTextDelta("") {
		t.Fatal("empty delta must not yield")
	}

	agg.SetUsage(&Usage{TotalTokens: 12})
	final := agg.Close()
	require.NotNil(t, final)

	assert.Equal(t, []string{"{\"meta", "data\": ", "{}}"}, partials)
	assert.False(t, final.Partial)
	assert.True(t, final.TurnComplete)
	assert.Equal(t, `{"metadata": {}}`, final.TextContent())
	assert.Equal(t, FinishReasonStop, final.FinishReason)
	assert.Equal(t, 12, final.Usage.TotalTokens)

	assert.Nil(t, agg.Close(), "aggregator resets after Close")
}

func TestStreamingAggregator_ToolCalls(t *testing.T) {
	agg := NewStreamingAggregator()
	tc := tool.ToolCall{ID: "call_1", Name: "take_screenshot", Args: map[string]any{}}

	for resp, err := range agg.ProcessToolCall(tc) {
		require.NoError(t, err)
		assert.True(t, resp.Partial)
		assert.Equal(t, []tool.ToolCall{tc}, resp.ToolCalls)
	}

	final := agg.Close()
	require.NotNil(t, final)
	assert.True(t, final.HasToolCalls())
	assert.Equal(t, FinishReasonToolCalls, final.FinishReason)
	assert.Equal(t, []tool.ToolCall{tc}, ToolCallsOf(final.Content.Parts))
}

func TestToolPartsRoundTrip(t *testing.T) {
	calls := []tool.ToolCall{
		{ID: "a", Name: "get_page_metadata", Args: map[string]any{}},
		{ID: "b", Name: "get_interactable_elements", Args: map[string]any{"limit": float64(5)}},
	}
	results := []tool.ToolResult{
		{ToolCallID: "a", Name: "get_page_metadata", Content: map[string]any{"url": "https://example.com", "title": "Example"}},
		{ToolCallID: "b", Name: "get_interactable_elements", Error: "tool not found"},
	}

	var parts []a2a.Part
	parts = append(parts, a2a.TextPart{Text: "looking"})
	for _, c := range calls {
		parts = append(parts, ToolCallPart(c))
	}
	for _, r := range results {
		parts = append(parts, ToolResultPart(r))
	}

	if diff := cmp.Diff(calls, ToolCallsOf(parts)); diff != "" {
		t.Errorf("tool calls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(results, ToolResultsOf(parts)); diff != "" {
		t.Errorf("tool results mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "looking", TextOf(parts))
}

func TestToolResultPart_ContentIsJSON(t *testing.T) {
	part := ToolResultPart(tool.ToolResult{ToolCallID: "x", Name: "take_screenshot", Content: map[string]any{"path": "/tmp/a.png"}})
	assert.JSONEq(t, `{"path":"/tmp/a.png"}`, part.Data["content"].(string))
	assert.NotContains(t, part.Data, "is_error")
}

func TestGenerateConfig_Clone(t *testing.T) {
	temp := 0.3
	orig := &GenerateConfig{Temperature: &temp}
	clone := orig.Clone()
	*clone.Temperature = 0.9
	assert.InDelta(t, 0.3, *orig.Temperature, 1e-9)

	var nilCfg *GenerateConfig
	assert.Nil(t, nilCfg.Clone())
}
