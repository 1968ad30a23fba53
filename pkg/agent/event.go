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

package agent

import (
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/google/uuid"

	"github.com/kadirpekel/scout/pkg/model"
)

// AuthorUser marks events that carry user input.
const AuthorUser = "user"

// Tool lifecycle statuses carried by ToolCallState and ToolResultState.
const (
	ToolStatusWorking = "working"
	ToolStatusSuccess = "success"
	ToolStatusFailed  = "failed"
)

// Event is one step of an agent conversation. Events are yielded by
// Agent.Run and, unless Partial, persisted to the session by the runner.
type Event struct {
	ID           string
	Timestamp    time.Time
	InvocationID string

	// Author is the agent name, or AuthorUser for user input.
	Author string

	// Message is the a2a message body. Tool calls and results travel as
	// data parts inside it.
	Message *a2a.Message

	// Partial marks a streaming chunk. Partial events are never persisted.
	Partial bool

	TurnComplete bool

	// ErrorMessage is set when the step failed but the invocation went on.
	ErrorMessage string

	ToolCalls   []ToolCallState
	ToolResults []ToolResultState

	// Usage is the token accounting of the model call that produced the
	// event, if any.
	Usage *model.Usage
}

// ToolCallState is a tool invocation requested by the model.
type ToolCallState struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Args   map[string]any `json:"args"`
	Status string         `json:"status"`
}

// ToolResultState is the outcome of a tool invocation.
type ToolResultState struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	Status     string `json:"status"`
	IsError    bool   `json:"is_error,omitempty"`
}

// NewEvent creates an event with a fresh ID and the current time.
func NewEvent(invocationID string) *Event {
	return &Event{
		ID:           uuid.NewString(),
		Timestamp:    time.Now(),
		InvocationID: invocationID,
	}
}

// IsFinalResponse reports whether the event ends the agent's turn.
//
// An event is not final if it is partial, or carries tool calls awaiting
// execution, or tool results awaiting the model.
func (e *Event) IsFinalResponse() bool {
	if e.Partial {
		return false
	}
	return !e.HasToolCalls() && !e.HasToolResults()
}

// HasToolCalls reports whether the event requests tool execution.
func (e *Event) HasToolCalls() bool {
	if len(e.ToolCalls) > 0 {
		return true
	}
	return e.Message != nil && len(model.ToolCallsOf(e.Message.Parts)) > 0
}

func (e *Event) HasToolResults() bool {
	if len(e.ToolResults) > 0 {
		return true
	}
	return e.Message != nil && len(model.ToolResultsOf(e.Message.Parts)) > 0
}

// TextContent concatenates the text parts of the message.
func (e *Event) TextContent() string {
	if e == nil || e.Message == nil {
		return ""
	}
	return model.TextOf(e.Message.Parts)
}
