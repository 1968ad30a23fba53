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

// Package runner executes an agent within a session.
//
// The Runner resolves the session, records the user message, runs the
// agent and persists every non-partial event before the agent continues.
package runner

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/google/uuid"

	"github.com/kadirpekel/scout/pkg/agent"
	"github.com/kadirpekel/scout/pkg/session"
)

// Config contains the configuration for creating a Runner.
type Config struct {
	AppName        string
	Agent          agent.Agent
	SessionService session.Service

	// AutoCreateSession creates missing sessions on Run. When false, Run
	// fails with session.ErrSessionNotFound.
	AutoCreateSession bool
}

type Runner struct {
	appName        string
	agent          agent.Agent
	sessionService session.Service
	autoCreate     bool
}

func New(cfg Config) (*Runner, error) {
	if cfg.Agent == nil {
		return nil, fmt.Errorf("agent is required")
	}
	if cfg.SessionService == nil {
		return nil, fmt.Errorf("session service is required")
	}
	return &Runner{
		appName:        cfg.AppName,
		agent:          cfg.Agent,
		sessionService: cfg.SessionService,
		autoCreate:     cfg.AutoCreateSession,
	}, nil
}

// Run executes the agent for one user message. Errors from the agent end
// the sequence.
func (r *Runner) Run(ctx context.Context, userID, sessionID string, msg *a2a.Message) iter.Seq2[*agent.Event, error] {
	return func(yield func(*agent.Event, error) bool) {
		sess, err := r.getOrCreateSession(ctx, userID, sessionID)
		if err != nil {
			yield(nil, err)
			return
		}

		invCtx := agent.NewInvocationContext(ctx, agent.InvocationContextParams{
			Agent:        r.agent,
			Session:      sess,
			InvocationID: "e-" + uuid.NewString(),
			UserContent:  msg,
		})

		if err := r.appendUserMessage(ctx, sess, msg, invCtx.InvocationID()); err != nil {
			yield(nil, err)
			return
		}

		for event, err := range r.agent.Run(invCtx) {
			if err != nil {
				yield(nil, err)
				return
			}

			if !event.Partial {
				if err := r.sessionService.AppendEvent(ctx, sess, event); err != nil {
					yield(nil, fmt.Errorf("failed to persist event: %w", err))
					return
				}
			}

			if !yield(event, nil) {
				return
			}
		}
	}
}

func (r *Runner) getOrCreateSession(ctx context.Context, userID, sessionID string) (session.Session, error) {
	resp, err := r.sessionService.Get(ctx, &session.GetRequest{
		AppName:   r.appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err == nil {
		return resp.Session, nil
	}
	if !errors.Is(err, session.ErrSessionNotFound) || !r.autoCreate {
		return nil, fmt.Errorf("failed to get session %q: %w", sessionID, err)
	}

	created, err := r.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   r.appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if errors.Is(err, session.ErrSessionExists) {
		// A concurrent run created it between Get and Create.
		resp, err := r.sessionService.Get(ctx, &session.GetRequest{
			AppName:   r.appName,
			UserID:    userID,
			SessionID: sessionID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get session %q: %w", sessionID, err)
		}
		return resp.Session, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	slog.Debug("Session created", "app", r.appName, "user_id", userID, "session_id", created.Session.ID())
	return created.Session, nil
}

func (r *Runner) appendUserMessage(ctx context.Context, sess session.Session, msg *a2a.Message, invocationID string) error {
	if msg == nil {
		return nil
	}
	event := agent.NewEvent(invocationID)
	event.Author = agent.AuthorUser
	event.Message = msg
	return r.sessionService.AppendEvent(ctx, sess, event)
}

// Transcript is what an invocation said.
type Transcript struct {
	// Text concatenates the text of every non-partial agent event, in order.
	Text string

	// Final is the text of the last final response.
	Final string

	Events int
}

// Collect drains events into a Transcript. The first error is returned
// along with what was collected before it.
func Collect(events iter.Seq2[*agent.Event, error]) (Transcript, error) {
	var t Transcript
	var sb strings.Builder
	for ev, err := range events {
		if err != nil {
			t.Text = sb.String()
			return t, err
		}
		if ev.Partial || ev.Author == agent.AuthorUser {
			continue
		}
		t.Events++
		text := ev.TextContent()
		sb.WriteString(text)
		if ev.IsFinalResponse() {
			t.Final = text
		}
	}
	t.Text = sb.String()
	return t, nil
}
