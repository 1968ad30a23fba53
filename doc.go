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

// Package scout is a UI discovery agent.
//
// Scout opens a website in a headless browser and lets an LLM observe it
// through three tools: a screenshot, the page metadata, and a scored list of
// interactable elements. The model answers with a JSON observation which is
// printed, written next to the screenshot and stored as a report.
//
// The building blocks live under pkg/:
//
//	pkg/config        configuration (.env, YAML, environment)
//	pkg/logger        slog setup
//	pkg/model         LLM interface with gemini and openai providers
//	pkg/tool          tool interfaces and typed function tools
//	pkg/browser       chromedp-backed page
//	pkg/discovery     the discovery tools and observation format
//	pkg/agent         agent interface and events
//	pkg/agent/llmagent the tool-calling loop
//	pkg/session       conversation sessions (memory, SQL)
//	pkg/runner        session-aware agent execution
//	pkg/report        report persistence
//	pkg/observability metrics and tracing
//	pkg/server        HTTP API
//	pkg/pipeline      end-to-end discovery orchestration
package scout
