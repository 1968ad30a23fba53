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

// Package tool defines the interfaces for capabilities an agent can invoke.
//
// A tool has a name and a description the model reads when deciding what to
// call. CallableTool adds a parameter schema and synchronous execution; it
// is the only execution style the agent loop supports.
//
// Typed tools are usually built with functiontool:
//
//	shot, err := functiontool.New(
//	    functiontool.Config{Name: "take_screenshot", Description: "..."},
//	    func(ctx tool.Context, _ struct{}) (map[string]any, error) { ... },
//	)
package tool

import "context"

// Tool is the base interface for a callable capability.
type Tool interface {
	Name() string

	// Description is shown to the model.
	Description() string
}

// CallableTool is a Tool with synchronous execution.
type CallableTool interface {
	Tool

	// Call runs the tool with model-supplied arguments. A returned error is
	// reported back to the model as the tool's result, it does not abort
	// the invocation.
	Call(ctx Context, args map[string]any) (map[string]any, error)

	// Schema returns the JSON schema of the parameters.
	Schema() map[string]any
}

// Context is handed to a tool during execution.
type Context interface {
	context.Context

	InvocationID() string
	AgentName() string
	SessionID() string
	UserID() string

	// FunctionCallID is the model-assigned id of this call.
	FunctionCallID() string
}

// Definition is a tool as advertised to the model.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToDefinition converts a tool to a Definition.
func ToDefinition(t Tool) Definition {
	def := Definition{
		Name:        t.Name(),
		Description: t.Description(),
	}
	if ct, ok := t.(CallableTool); ok {
		def.Parameters = ct.Schema()
	}
	return def
}

// ToolCall is the model's request to invoke a tool.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult is the outcome of a tool call, fed back to the model.
type ToolResult struct {
	ToolCallID string
	Name       string
	Content    map[string]any
	Error      string
}

// IsError reports whether the call failed.
func (r ToolResult) IsError() bool { return r.Error != "" }

// Payload is what the model sees: the content, or {"error": msg}.
func (r ToolResult) Payload() map[string]any {
	if r.Error != "" {
		return map[string]any{"error": r.Error}
	}
	if r.Content == nil {
		return map[string]any{}
	}
	return r.Content
}

// Find returns the tool named name.
func Find(tools []Tool, name string) (Tool, bool) {
	for _, t := range tools {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}
