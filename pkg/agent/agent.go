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

// Package agent defines the agent abstraction scout runs: an Agent turns an
// invocation into a stream of events, the runner persists them to a session.
//
// The session is the single source of truth for conversation history. An
// agent reads prior turns from InvocationContext.Session and never keeps
// its own copy, so everything it yields must go through the runner before
// the agent's next step observes it.
package agent

import "iter"

// Agent produces events for one invocation.
type Agent interface {
	Name() string
	Description() string

	// Run executes the agent. Iteration stops at the first error; callers
	// may also stop early by breaking out of the loop.
	Run(ctx InvocationContext) iter.Seq2[*Event, error]
}
