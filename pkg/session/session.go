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

// Package session stores discovery conversations.
//
// A session is the ordered event history of one agent conversation,
// addressed by app name, user ID and session ID. The runner appends every
// non-partial event; the agent reads the history back on each step.
package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/scout/pkg/agent"
)

// Session is a conversation between a user and the agent.
type Session interface {
	agent.Session

	// LastUpdateTime returns when the session was last modified.
	LastUpdateTime() time.Time
}

// Service manages session lifecycle and persistence.
type Service interface {
	Get(ctx context.Context, req *GetRequest) (*GetResponse, error)
	Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error)

	// AppendEvent persists event and appends it to session's history.
	// Partial events are ignored.
	AppendEvent(ctx context.Context, session Session, event *agent.Event) error

	List(ctx context.Context, req *ListRequest) (*ListResponse, error)
	Delete(ctx context.Context, req *DeleteRequest) error
}

type GetRequest struct {
	AppName   string
	UserID    string
	SessionID string

	// NumRecentEvents returns at most N most recent events. Zero means all.
	NumRecentEvents int
}

type GetResponse struct {
	Session Session
}

type CreateRequest struct {
	AppName   string
	UserID    string
	SessionID string // generated if empty
}

type CreateResponse struct {
	Session Session
}

type ListRequest struct {
	AppName string
	UserID  string // optional
}

type ListResponse struct {
	Sessions []Session
}

type DeleteRequest struct {
	AppName   string
	UserID    string
	SessionID string
}

var (
	// ErrSessionNotFound is returned when a session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned by Create for a taken session ID.
	ErrSessionExists = errors.New("session already exists")
)

// memorySession is the in-memory Session; the SQL service returns it too,
// loaded from rows.
type memorySession struct {
	id             string
	appName        string
	userID         string
	events         *memoryEvents
	lastUpdateTime time.Time
	mu             sync.RWMutex
}

func newMemorySession(appName, userID, id string, events []*agent.Event, updated time.Time) *memorySession {
	return &memorySession{
		id:             id,
		appName:        appName,
		userID:         userID,
		events:         &memoryEvents{events: events},
		lastUpdateTime: updated,
	}
}

func (s *memorySession) ID() string           { return s.id }
func (s *memorySession) AppName() string      { return s.appName }
func (s *memorySession) UserID() string       { return s.userID }
func (s *memorySession) Events() agent.Events { return s.events }

func (s *memorySession) LastUpdateTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdateTime
}

func (s *memorySession) appendEvent(event *agent.Event, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events.append(event)
	s.lastUpdateTime = now
}

type memoryEvents struct {
	events []*agent.Event
	mu     sync.RWMutex
}

func (e *memoryEvents) All() []*agent.Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.events)
}

func (e *memoryEvents) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.events)
}

func (e *memoryEvents) At(i int) *agent.Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if i < 0 || i >= len(e.events) {
		return nil
	}
	return e.events[i]
}

func (e *memoryEvents) append(event *agent.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

// InMemoryService returns a session service that keeps everything in
// process memory.
func InMemoryService() Service {
	return &inMemoryService{
		sessions: make(map[string]*memorySession),
	}
}

type inMemoryService struct {
	sessions map[string]*memorySession
	mu       sync.RWMutex
}

func sessionKey(appName, userID, sessionID string) string {
	return appName + ":" + userID + ":" + sessionID
}

func (s *inMemoryService) Get(_ context.Context, req *GetRequest) (*GetResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionKey(req.AppName, req.UserID, req.SessionID)]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if req.NumRecentEvents > 0 && sess.events.Len() > req.NumRecentEvents {
		all := sess.events.All()
		recent := all[len(all)-req.NumRecentEvents:]
		return &GetResponse{Session: newMemorySession(sess.appName, sess.userID, sess.id, recent, sess.LastUpdateTime())}, nil
	}
	return &GetResponse{Session: sess}, nil
}

func (s *inMemoryService) Create(_ context.Context, req *CreateRequest) (*CreateResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	key := sessionKey(req.AppName, req.UserID, sessionID)
	if _, ok := s.sessions[key]; ok {
		return nil, ErrSessionExists
	}

	sess := newMemorySession(req.AppName, req.UserID, sessionID, nil, time.Now())
	s.sessions[key] = sess
	return &CreateResponse{Session: sess}, nil
}

func (s *inMemoryService) AppendEvent(_ context.Context, session Session, event *agent.Event) error {
	if session == nil || event == nil {
		return errors.New("session and event are required")
	}
	if event.Partial {
		return nil
	}

	s.mu.RLock()
	stored, ok := s.sessions[sessionKey(session.AppName(), session.UserID(), session.ID())]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	now := time.Now()
	stored.appendEvent(event, now)
	// A trimmed view handed out by Get must see its own appends too.
	if ms, ok := session.(*memorySession); ok && ms != stored {
		ms.appendEvent(event, now)
	}
	return nil
}

func (s *inMemoryService) List(_ context.Context, req *ListRequest) (*ListResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []Session
	for _, sess := range s.sessions {
		if sess.appName != req.AppName {
			continue
		}
		if req.UserID != "" && sess.userID != req.UserID {
			continue
		}
		sessions = append(sessions, sess)
	}
	slices.SortFunc(sessions, func(a, b Session) int {
		return b.LastUpdateTime().Compare(a.LastUpdateTime())
	})
	return &ListResponse{Sessions: sessions}, nil
}

func (s *inMemoryService) Delete(_ context.Context, req *DeleteRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey(req.AppName, req.UserID, req.SessionID))
	return nil
}

var (
	_ Session      = (*memorySession)(nil)
	_ agent.Events = (*memoryEvents)(nil)
	_ Service      = (*inMemoryService)(nil)
)
