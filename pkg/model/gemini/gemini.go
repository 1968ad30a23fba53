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

// Package gemini implements model.LLM on top of the google.golang.org/genai SDK.
package gemini

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/a2aproject/a2a-go/a2a"
	"google.golang.org/genai"

	"github.com/kadirpekel/scout/pkg/model"
	"github.com/kadirpekel/scout/pkg/tool"
)

const DefaultModel = "gemini-2.5-flash-lite"

// Config configures the Gemini model.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature *float64

	// BaseURL overrides the API endpoint. Used by tests.
	BaseURL string
}

type geminiModel struct {
	client *genai.Client
	name   string
	config Config
}

// New creates a Gemini model.
func New(cfg Config) (model.LLM, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &geminiModel{client: client, name: cfg.Model, config: cfg}, nil
}

func (m *geminiModel) Name() string {
	return m.name
}

func (m *geminiModel) Provider() model.Provider {
	return model.ProviderGemini
}

func (m *geminiModel) GenerateContent(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	if stream {
		return m.generateStream(ctx, req)
	}
	return func(yield func(*model.Response, error) bool) {
		yield(m.generate(ctx, req))
	}
}

func (m *geminiModel) Close() error {
	return nil
}

func (m *geminiModel) generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	contents, system := buildContents(req)
	config := m.buildConfig(req.Config, system, req.Tools)

	genResp, err := m.client.Models.GenerateContent(ctx, m.name, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generation failed: %w", err)
	}
	return parseResponse(genResp)
}

func (m *geminiModel) generateStream(ctx context.Context, req *model.Request) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		agg := model.NewStreamingAggregator()
		emitted := make(map[string]bool)

		contents, system := buildContents(req)
		config := m.buildConfig(req.Config, system, req.Tools)

		for genResp, err := range m.client.Models.GenerateContentStream(ctx, m.name, contents, config) {
			if err != nil {
				yield(nil, fmt.Errorf("gemini streaming error: %w", err))
				return
			}
			for resp, err := range processChunk(agg, genResp, emitted) {
				if !yield(resp, err) {
					return
				}
			}
		}

		if final := agg.Close(); final != nil {
			yield(final, nil)
		}
	}
}

// stableCallID derives an id for calls Gemini sends without one, so that a
// call repeated across stream chunks keeps the same id.
func stableCallID(name string, args map[string]any) string {
	data, _ := json.Marshal(map[string]any{"name": name, "args": args})
	hash := sha256.Sum256(data)
	return fmt.Sprintf("scout-%x", hash[:16])
}

func processChunk(agg *model.StreamingAggregator, genResp *genai.GenerateContentResponse, emitted map[string]bool) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		if genResp == nil || len(genResp.Candidates) == 0 {
			return
		}
		candidate := genResp.Candidates[0]

		if candidate.FinishReason != "" {
			agg.SetFinishReason(mapFinishReason(candidate.FinishReason))
		}
		if u := genResp.UsageMetadata; u != nil {
			agg.SetUsage(&model.Usage{
				PromptTokens:     int(u.PromptTokenCount),
				CompletionTokens: int(u.CandidatesTokenCount),
				TotalTokens:      int(u.TotalTokenCount),
			})
		}
		if candidate.Content == nil {
			return
		}

		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				for resp, err := range agg.ProcessTextDelta(part.Text) {
					if !yield(resp, err) {
						return
					}
				}
			}
			if fc := part.FunctionCall; fc != nil {
				id := fc.ID
				if id == "" {
					id = stableCallID(fc.Name, fc.Args)
				}
				if emitted[id] {
					continue
				}
				emitted[id] = true
				for resp, err := range agg.ProcessToolCall(tool.ToolCall{ID: id, Name: fc.Name, Args: fc.Args}) {
					if !yield(resp, err) {
						return
					}
				}
			}
		}
	}
}

func buildContents(req *model.Request) ([]*genai.Content, *genai.Content) {
	var system *genai.Content
	if req.SystemInstruction != "" {
		system = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemInstruction}},
			Role:  string(genai.RoleUser),
		}
	}

	var contents []*genai.Content
	for _, msg := range req.Messages {
		if c := messageToContent(msg); c != nil {
			contents = append(contents, c)
		}
	}
	return contents, system
}

func messageToContent(msg *a2a.Message) *genai.Content {
	if msg == nil {
		return nil
	}

	var parts []*genai.Part
	for _, p := range msg.Parts {
		switch part := p.(type) {
		case a2a.TextPart:
			if part.Text != "" {
				parts = append(parts, &genai.Part{Text: part.Text})
			}
		case a2a.FilePart:
			if f, ok := part.File.(a2a.FileBytes); ok {
				parts = append(parts, &genai.Part{InlineData: &genai.Blob{
					MIMEType: f.MimeType,
					Data:     []byte(f.Bytes),
				}})
			}
		}
	}
	for _, tc := range model.ToolCallsOf(msg.Parts) {
		parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
			ID:   tc.ID,
			Name: tc.Name,
			Args: tc.Args,
		}})
	}
	for _, tr := range model.ToolResultsOf(msg.Parts) {
		parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
			ID:       tr.ToolCallID,
			Name:     tr.Name,
			Response: tr.Payload(),
		}})
	}

	if len(parts) == 0 {
		return nil
	}

	role := genai.RoleUser
	if msg.Role == a2a.MessageRoleAgent {
		role = genai.RoleModel
	}
	return &genai.Content{Parts: parts, Role: string(role)}
}

func (m *geminiModel) buildConfig(cfg *model.GenerateConfig, system *genai.Content, tools []tool.Definition) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{SystemInstruction: system}

	if cfg != nil {
		if cfg.Temperature != nil {
			config.Temperature = genai.Ptr(float32(*cfg.Temperature))
		}
		if cfg.MaxTokens != nil {
			config.MaxOutputTokens = int32(*cfg.MaxTokens)
		}
		if cfg.ResponseMIMEType != "" && len(tools) == 0 {
			config.ResponseMIMEType = cfg.ResponseMIMEType
		}
	}
	if config.Temperature == nil && m.config.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*m.config.Temperature))
	}
	if config.MaxOutputTokens == 0 && m.config.MaxTokens > 0 {
		config.MaxOutputTokens = int32(m.config.MaxTokens)
	}

	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(tools))
		for _, t := range tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGenaiSchema(t.Parameters),
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return config
}

// toGenaiSchema converts a JSON schema map. Gemini rejects an object type
// with no properties, so parameterless tools get no schema at all.
func toGenaiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	if t, _ := schema["type"].(string); t == "object" {
		if props, _ := schema["properties"].(map[string]any); len(props) == 0 {
			return nil
		}
	}
	return convertSchema(schema)
}

func convertSchema(schema map[string]any) *genai.Schema {
	s := &genai.Schema{}
	if t, ok := schema["type"].(string); ok {
		s.Type = genai.Type(t)
	}
	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if pm, ok := prop.(map[string]any); ok {
				s.Properties[name] = convertSchema(pm)
			}
		}
	}
	s.Required = stringSlice(schema["required"])
	s.Enum = stringSlice(schema["enum"])
	if items, ok := schema["items"].(map[string]any); ok {
		s.Items = convertSchema(items)
	}
	return s
}

func stringSlice(v any) []string {
	var out []string
	switch list := v.(type) {
	case []string:
		out = append(out, list...)
	case []any:
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func parseResponse(genResp *genai.GenerateContentResponse) (*model.Response, error) {
	if genResp == nil || len(genResp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from Gemini")
	}
	candidate := genResp.Candidates[0]

	resp := &model.Response{
		TurnComplete: true,
		FinishReason: mapFinishReason(candidate.FinishReason),
	}

	if candidate.Content != nil {
		var parts []a2a.Part
		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				parts = append(parts, a2a.TextPart{Text: part.Text})
			}
			if fc := part.FunctionCall; fc != nil {
				id := fc.ID
				if id == "" {
					id = stableCallID(fc.Name, fc.Args)
				}
				tc := tool.ToolCall{ID: id, Name: fc.Name, Args: fc.Args}
				resp.ToolCalls = append(resp.ToolCalls, tc)
				parts = append(parts, model.ToolCallPart(tc))
			}
		}
		resp.Content = &model.Content{Parts: parts, Role: a2a.MessageRoleAgent}
		if len(resp.ToolCalls) > 0 {
			resp.FinishReason = model.FinishReasonToolCalls
		}
	}

	if u := genResp.UsageMetadata; u != nil {
		resp.Usage = &model.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return resp, nil
}

func mapFinishReason(reason genai.FinishReason) model.FinishReason {
	switch reason {
	case genai.FinishReasonMaxTokens:
		return model.FinishReasonLength
	case genai.FinishReasonSafety, genai.FinishReasonBlocklist, genai.FinishReasonProhibitedContent:
		return model.FinishReasonContent
	default:
		return model.FinishReasonStop
	}
}

var _ model.LLM = (*geminiModel)(nil)
