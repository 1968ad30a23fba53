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

// Package llmagent provides an agent driven by a language model with
// callable tools.
//
// The agent runs a reasoning loop: call the model with the session history
// and the tool definitions, execute any tool calls it makes, feed the
// results back and repeat until the model answers without tool calls.
//
//	a, err := llmagent.New(llmagent.Config{
//	    Name:        "discover_agent",
//	    Model:       llm,
//	    Instruction: discovery.Instruction,
//	    Tools:       tools,
//	})
package llmagent

import (
	"errors"
	"fmt"
	"iter"

	"github.com/kadirpekel/scout/pkg/agent"
	"github.com/kadirpekel/scout/pkg/model"
	"github.com/kadirpekel/scout/pkg/observability"
	"github.com/kadirpekel/scout/pkg/tool"
)

// DefaultMaxIterations bounds the reasoning loop when Config leaves it unset.
const DefaultMaxIterations = 20

// ErrMaxIterations is returned when the model keeps calling tools past the
// iteration limit.
var ErrMaxIterations = errors.New("reasoning loop safety limit exceeded")

// Config contains the configuration for an LLM agent.
type Config struct {
	// Name must be a valid identifier; it is the author of every event.
	Name        string
	Description string

	Model model.LLM

	// Instruction is sent as the system instruction on every call.
	Instruction string

	Tools []tool.CallableTool

	// MaxIterations caps model calls per invocation.
	MaxIterations int

	// Stream requests token streaming; partial events are yielded as the
	// model produces output.
	Stream bool

	GenerateConfig *model.GenerateConfig

	// Metrics may be nil.
	Metrics observability.Metrics
}

type llmAgent struct {
	name          string
	description   string
	model         model.LLM
	instruction   string
	tools         []tool.CallableTool
	definitions   []tool.Definition
	maxIterations int
	stream        bool
	genConfig     *model.GenerateConfig
	metrics       observability.Metrics
}

// New validates cfg and returns the agent.
func New(cfg Config) (agent.Agent, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("agent %q: model is required", cfg.Name)
	}

	seen := make(map[string]bool, len(cfg.Tools))
	defs := make([]tool.Definition, 0, len(cfg.Tools))
	for _, t := range cfg.Tools {
		if seen[t.Name()] {
			return nil, fmt.Errorf("agent %q: duplicate tool %q", cfg.Name, t.Name())
		}
		seen[t.Name()] = true
		defs = append(defs, tool.ToDefinition(t))
	}

	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	return &llmAgent{
		name:          cfg.Name,
		description:   cfg.Description,
		model:         cfg.Model,
		instruction:   cfg.Instruction,
		tools:         cfg.Tools,
		definitions:   defs,
		maxIterations: maxIter,
		stream:        cfg.Stream,
		genConfig:     cfg.GenerateConfig,
		metrics:       observability.OrNoop(cfg.Metrics),
	}, nil
}

func (a *llmAgent) Name() string        { return a.name }
func (a *llmAgent) Description() string { return a.description }

func (a *llmAgent) Run(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
	return newFlow(a).Run(ctx)
}

func (a *llmAgent) findTool(name string) tool.CallableTool {
	for _, t := range a.tools {
		if t.Name() == name {
			return t
		}
	}
	return nil
}
