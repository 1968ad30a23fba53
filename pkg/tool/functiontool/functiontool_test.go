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

package functiontool_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/scout/pkg/tool"
	"github.com/kadirpekel/scout/pkg/tool/functiontool"
)

type mockContext struct {
	context.Context
}

func newMockContext() *mockContext { return &mockContext{Context: context.Background()} }

func (m *mockContext) InvocationID() string   { return "test-invocation" }
func (m *mockContext) AgentName() string      { return "test-agent" }
func (m *mockContext) SessionID() string      { return "test-session" }
func (m *mockContext) UserID() string         { return "test-user" }
func (m *mockContext) FunctionCallID() string { return "test-call-id" }

func TestNew_SimpleArgs(t *testing.T) {
	type SimpleArgs struct {
		Name string `json:"name" jsonschema:"required,description=User name"`
		Age  int    `json:"age,omitempty" jsonschema:"description=User age"`
	}

	greet, err := functiontool.New(
		functiontool.Config{Name: "greet", Description: "Greet a user"},
		func(ctx tool.Context, args SimpleArgs) (map[string]any, error) {
			return map[string]any{"greeting": fmt.Sprintf("Hello, %s! Age: %d", args.Name, args.Age)}, nil
		},
	)
	require.NoError(t, err)

	assert.Equal(t, "greet", greet.Name())
	assert.Equal(t, "Greet a user", greet.Description())

	schema := greet.Schema()
	assert.Equal(t, "object", schema["type"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "name")
	assert.Contains(t, props, "age")
	assert.ElementsMatch(t, []any{"name"}, schema["required"])

	result, err := greet.Call(newMockContext(), map[string]any{"name": "Ada", "age": 36})
	require.NoError(t, err)
	assert.Equal(t, "Hello, Ada! Age: 36", result["greeting"])
}

func TestNew_NoArgs(t *testing.T) {
	called := false
	noArgs, err := functiontool.New(
		functiontool.Config{Name: "get_page_metadata", Description: "Page metadata"},
		func(ctx tool.Context, _ struct{}) (map[string]any, error) {
			called = true
			return map[string]any{"url": "https://example.com"}, nil
		},
	)
	require.NoError(t, err)

	schema := noArgs.Schema()
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, map[string]any{}, schema["properties"])
	assert.NotContains(t, schema, "required")

	result, err := noArgs.Call(newMockContext(), nil)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "https://example.com", result["url"])
}

type emptyArgs struct{}

func TestNew_EmptyStructArgs(t *testing.T) {
	named, err := functiontool.New(
		functiontool.Config{Name: "take_screenshot", Description: "Screenshot"},
		func(ctx tool.Context, _ emptyArgs) (map[string]any, error) { return nil, nil },
	)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "object", "properties": map[string]any{}}, named.Schema())

	anon, err := functiontool.New(
		functiontool.Config{Name: "navigate", Description: "Navigate"},
		func(ctx tool.Context, args struct {
			URL string `json:"url" jsonschema:"required"`
		}) (map[string]any, error) {
			return map[string]any{"url": args.URL}, nil
		},
	)
	require.NoError(t, err)
	props, ok := anon.Schema()["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "url")
	assert.Equal(t, []any{"url"}, anon.Schema()["required"])
}

func TestNew_InvalidConfig(t *testing.T) {
	fn := func(tool.Context, struct{}) (map[string]any, error) { return nil, nil }

	_, err := functiontool.New(functiontool.Config{Description: "d"}, fn)
	assert.Error(t, err)

	_, err = functiontool.New(functiontool.Config{Name: "n"}, fn)
	assert.Error(t, err)
}

func TestCall_InvalidArguments(t *testing.T) {
	type Args struct {
		Count int `json:"count"`
	}
	counter, err := functiontool.New(
		functiontool.Config{Name: "count", Description: "Count"},
		func(ctx tool.Context, args Args) (map[string]any, error) {
			return map[string]any{"count": args.Count}, nil
		},
	)
	require.NoError(t, err)

	_, err = counter.Call(newMockContext(), map[string]any{"count": "not-a-number"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid arguments for count")
}

func TestCall_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	failing, err := functiontool.New(
		functiontool.Config{Name: "fail", Description: "Fails"},
		func(ctx tool.Context, _ struct{}) (map[string]any, error) { return nil, boom },
	)
	require.NoError(t, err)

	_, err = failing.Call(newMockContext(), nil)
	assert.ErrorIs(t, err, boom)
}

func TestNewWithValidation(t *testing.T) {
	type Args struct {
		URL string `json:"url" jsonschema:"required"`
	}
	nav, err := functiontool.NewWithValidation(
		functiontool.Config{Name: "navigate", Description: "Navigate"},
		func(ctx tool.Context, args Args) (map[string]any, error) {
			return map[string]any{"url": args.URL}, nil
		},
		func(args Args) error {
			if args.URL == "" {
				return errors.New("url is empty")
			}
			return nil
		},
	)
	require.NoError(t, err)

	_, err = nav.Call(newMockContext(), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed for navigate")

	out, err := nav.Call(newMockContext(), map[string]any{"url": "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", out["url"])
}

func TestToDefinition(t *testing.T) {
	shot, err := functiontool.New(
		functiontool.Config{Name: "take_screenshot", Description: "Capture"},
		func(ctx tool.Context, _ struct{}) (map[string]any, error) { return nil, nil },
	)
	require.NoError(t, err)

	def := tool.ToDefinition(shot)
	assert.Equal(t, "take_screenshot", def.Name)
	assert.Equal(t, "Capture", def.Description)
	assert.Equal(t, "object", def.Parameters["type"])

	found, ok := tool.Find([]tool.Tool{shot}, "take_screenshot")
	assert.True(t, ok)
	assert.Equal(t, shot, found)
	_, ok = tool.Find([]tool.Tool{shot}, "missing")
	assert.False(t, ok)
}
