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

// Package openai implements model.LLM against the OpenAI Responses API
// (/v1/responses), both buffered and over server-sent events.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/scout/pkg/httpclient"
	"github.com/kadirpekel/scout/pkg/model"
	"github.com/kadirpekel/scout/pkg/tool"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	defaultTimeout = 120 * time.Second
)

// SSE event types.
const (
	eventOutputItemAdded       = "response.output_item.added"
	eventOutputItemDone        = "response.output_item.done"
	eventOutputTextDelta       = "response.output_text.delta"
	eventFunctionCallArgsDelta = "response.function_call_arguments.delta"
	eventResponseCompleted     = "response.completed"
	eventResponseFailed        = "response.failed"
	eventError                 = "error"
)

// Config configures the client.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature *float64
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  int

	// RetryBaseDelay is the first backoff step. Zero uses the client default.
	RetryBaseDelay time.Duration
}

// Client is an OpenAI model.
type Client struct {
	httpClient  *httpclient.Client
	apiKey      string
	baseURL     string
	modelName   string
	maxTokens   int
	temperature *float64
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}

	opts := []httpclient.Option{
		httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
		httpclient.WithMaxRetries(maxRetries),
		httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
	}
	if cfg.RetryBaseDelay > 0 {
		opts = append(opts, httpclient.WithBaseDelay(cfg.RetryBaseDelay))
	}

	return &Client{
		httpClient:  httpclient.New(opts...),
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		modelName:   modelName,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (c *Client) Name() string {
	return c.modelName
}

func (c *Client) Provider() model.Provider {
	return model.ProviderOpenAI
}

func (c *Client) GenerateContent(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	if stream {
		return c.generateStream(ctx, req)
	}
	return func(yield func(*model.Response, error) bool) {
		yield(c.generate(ctx, req))
	}
}

func (c *Client) Close() error {
	return nil
}

func (c *Client) generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	resp, err := c.post(ctx, c.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var apiResp responsesResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return parseResponse(&apiResp)
}

func (c *Client) post(ctx context.Context, apiReq *responsesRequest) (*http.Response, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if apiReq.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return resp, nil
}

// pendingCall tracks a function call whose arguments are still streaming.
type pendingCall struct {
	callID string
	name   string
	args   strings.Builder
}

func (c *Client) generateStream(ctx context.Context, req *model.Request) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		resp, err := c.post(ctx, c.buildRequest(req, true))
		if err != nil {
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		agg := model.NewStreamingAggregator()
		pending := make(map[string]*pendingCall)
		emitted := make(map[string]bool)

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64<<10), 4<<20)

		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if !bytes.HasPrefix(line, []byte("data:")) {
				continue
			}
			data := bytes.TrimSpace(line[len("data:"):])
			if len(data) == 0 || bytes.Equal(data, []byte("[DONE]")) {
				continue
			}

			var ev streamEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				slog.Debug("Skipping unparseable stream event", "error", err)
				continue
			}

			switch ev.Type {
			case eventOutputTextDelta:
				for r, err := range agg.ProcessTextDelta(ev.Delta) {
					if !yield(r, err) {
						return
					}
				}

			case eventOutputItemAdded:
				if ev.Item != nil && ev.Item.Type == "function_call" {
					pending[ev.Item.ID] = &pendingCall{callID: callIDOf(*ev.Item), name: ev.Item.Name}
				}

			case eventFunctionCallArgsDelta:
				if p, ok := pending[ev.ItemID]; ok {
					p.args.WriteString(ev.Delta)
				}

			case eventOutputItemDone:
				if ev.Item == nil || ev.Item.Type != "function_call" {
					continue
				}
				item := *ev.Item
				if p, ok := pending[item.ID]; ok {
					if item.Arguments == "" {
						item.Arguments = p.args.String()
					}
					if item.Name == "" {
						item.Name = p.name
					}
					if item.CallID == "" {
						item.CallID = p.callID
					}
				}
				delete(pending, item.ID)

				tc, err := parseFunctionCall(item)
				if err != nil {
					slog.Warn("Failed to parse function call", "error", err)
					continue
				}
				if emitted[tc.ID] {
					continue
				}
				emitted[tc.ID] = true
				for r, err := range agg.ProcessToolCall(*tc) {
					if !yield(r, err) {
						return
					}
				}

			case eventResponseCompleted:
				if ev.Response != nil {
					agg.SetUsage(usageOf(ev.Response.Usage))
				}

			case eventResponseFailed, eventError:
				msg := "stream failed"
				if ev.Error != nil {
					msg = ev.Error.Message
				} else if ev.Response != nil && ev.Response.Error != nil {
					msg = ev.Response.Error.Message
				}
				yield(nil, fmt.Errorf("API error: %s", msg))
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("stream read error: %w", err))
			return
		}

		if final := agg.Close(); final != nil {
			yield(final, nil)
		}
	}
}

func (c *Client) buildRequest(req *model.Request, stream bool) *responsesRequest {
	apiReq := &responsesRequest{
		Model:        c.modelName,
		Stream:       stream,
		Instructions: req.SystemInstruction,
		Input:        convertMessages(req.Messages),
		Temperature:  c.temperature,
	}
	if c.maxTokens > 0 {
		maxTokens := c.maxTokens
		apiReq.MaxOutputTokens = &maxTokens
	}
	if cfg := req.Config; cfg != nil {
		if cfg.Temperature != nil {
			apiReq.Temperature = cfg.Temperature
		}
		if cfg.MaxTokens != nil {
			apiReq.MaxOutputTokens = cfg.MaxTokens
		}
	}
	if len(req.Tools) > 0 {
		apiReq.Tools = convertTools(req.Tools)
		apiReq.ToolChoice = "auto"
	}
	return apiReq
}

func convertMessages(messages []*a2a.Message) []inputItem {
	var items []inputItem

	for _, msg := range messages {
		if msg == nil {
			continue
		}

		if results := model.ToolResultsOf(msg.Parts); len(results) > 0 {
			for _, tr := range results {
				payload, _ := json.Marshal(tr.Payload())
				output := string(payload)
				items = append(items, inputItem{
					Type:   "function_call_output",
					CallID: tr.ToolCallID,
					Output: &output,
				})
			}
			continue
		}

		role := "user"
		textType := "input_text"
		if msg.Role == a2a.MessageRoleAgent {
			role = "assistant"
			textType = "output_text"
		}

		if text := model.TextOf(msg.Parts); text != "" {
			items = append(items, inputItem{
				Type:    "message",
				Role:    role,
				Content: []map[string]any{{"type": textType, "text": text}},
			})
		}

		if msg.Role == a2a.MessageRoleAgent {
			for _, tc := range model.ToolCallsOf(msg.Parts) {
				args, _ := json.Marshal(tc.Args)
				items = append(items, inputItem{
					Type:      "function_call",
					CallID:    tc.ID,
					Name:      tc.Name,
					Arguments: string(args),
				})
			}
		}
	}
	return items
}

func convertTools(tools []tool.Definition) []apiTool {
	result := make([]apiTool, len(tools))
	for i, t := range tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = apiTool{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		}
	}
	return result
}

func parseResponse(resp *responsesResponse) (*model.Response, error) {
	if resp.Error != nil {
		return nil, fmt.Errorf("API error: %s", resp.Error.Message)
	}
	if resp.Status != "" && resp.Status != "completed" {
		msg := fmt.Sprintf("response incomplete: status=%s", resp.Status)
		if resp.IncompleteDetails != nil {
			msg += ", reason=" + resp.IncompleteDetails.Reason
		}
		return nil, fmt.Errorf("%s", msg)
	}
	if len(resp.Output) == 0 {
		return nil, fmt.Errorf("no output items in response")
	}

	result := &model.Response{
		TurnComplete: true,
		Usage:        usageOf(resp.Usage),
		FinishReason: model.FinishReasonStop,
	}

	var parts []a2a.Part
	for _, item := range resp.Output {
		switch item.Type {
		case "message":
			var sb strings.Builder
			for _, p := range item.Content {
				if p.Type == "output_text" {
					sb.WriteString(p.Text)
				}
			}
			if sb.Len() > 0 {
				parts = append(parts, a2a.TextPart{Text: sb.String()})
			}
		case "function_call":
			tc, err := parseFunctionCall(item)
			if err != nil {
				slog.Warn("Failed to parse function call", "error", err)
				continue
			}
			result.ToolCalls = append(result.ToolCalls, *tc)
			parts = append(parts, model.ToolCallPart(*tc))
			result.FinishReason = model.FinishReasonToolCalls
		}
	}

	result.Content = &model.Content{Parts: parts, Role: a2a.MessageRoleAgent}
	return result, nil
}

func parseFunctionCall(item outputItem) (*tool.ToolCall, error) {
	if item.Name == "" {
		return nil, fmt.Errorf("function_call name is empty")
	}
	args := map[string]any{}
	if item.Arguments != "" {
		if err := json.Unmarshal([]byte(item.Arguments), &args); err != nil {
			return nil, fmt.Errorf("failed to parse function arguments: %w", err)
		}
	}
	return &tool.ToolCall{ID: callIDOf(item), Name: item.Name, Args: args}, nil
}

func callIDOf(item outputItem) string {
	if item.CallID != "" {
		return item.CallID
	}
	return item.ID
}

func usageOf(u apiUsage) *model.Usage {
	return &model.Usage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      u.TotalTokens,
	}
}

var _ model.LLM = (*Client)(nil)
