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

package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/google/uuid"

	"github.com/kadirpekel/scout/pkg/agent"
	"github.com/kadirpekel/scout/pkg/model"
)

// SQLService persists sessions in sqlite, postgres or mysql.
type SQLService struct {
	db      *sql.DB
	dialect string
}

const createSessionsSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    app_name VARCHAR(255) NOT NULL,
    user_id VARCHAR(255) NOT NULL,
    id VARCHAR(255) NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (app_name, user_id, id)
)`

const createSessionsIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(app_name, user_id)`

const createEventsSchemaSQL = `
CREATE TABLE IF NOT EXISTS session_events (
    id VARCHAR(255) NOT NULL,
    app_name VARCHAR(255) NOT NULL,
    user_id VARCHAR(255) NOT NULL,
    session_id VARCHAR(255) NOT NULL,
    author VARCHAR(255),
    invocation_id VARCHAR(255),
    role VARCHAR(50),
    content_json TEXT,
    turn_complete BOOLEAN DEFAULT FALSE,
    error_message TEXT,
    tool_calls_json TEXT,
    tool_results_json TEXT,
    usage_json TEXT,
    sequence_num INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (app_name, user_id, session_id, id)
)`

const createEventsIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_events_session ON session_events(app_name, user_id, session_id, sequence_num)`

// NewSQLService creates the schema if needed and returns the service.
func NewSQLService(db *sql.DB, dialect string) (*SQLService, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	switch dialect {
	case "postgres", "mysql", "sqlite":
	case "sqlite3":
		dialect = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLService{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLService) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// One statement per Exec for sqlite.
	statements := []string{
		createSessionsSchemaSQL,
		createEventsSchemaSQL,
	}
	// MySQL has no CREATE INDEX IF NOT EXISTS.
	if s.dialect != "mysql" {
		statements = append(statements, createSessionsIndexSQL, createEventsIndexSQL)
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *SQLService) rebind(query string) string {
	if s.dialect == "postgres" {
		return convertToPostgresPlaceholders(query)
	}
	return query
}

func (s *SQLService) Get(ctx context.Context, req *GetRequest) (*GetResponse, error) {
	sess, err := s.getSession(ctx, req.AppName, req.UserID, req.SessionID)
	if err != nil {
		return nil, err
	}

	events, err := s.getEvents(ctx, req.AppName, req.UserID, req.SessionID, req.NumRecentEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	sess.events = &memoryEvents{events: events}
	return &GetResponse{Session: sess}, nil
}

func (s *SQLService) Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if _, err := s.getSession(ctx, req.AppName, req.UserID, sessionID); err == nil {
		return nil, ErrSessionExists
	} else if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	query := s.rebind(`INSERT INTO sessions (app_name, user_id, id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, req.AppName, req.UserID, sessionID, now, now); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &CreateResponse{Session: newMemorySession(req.AppName, req.UserID, sessionID, nil, now)}, nil
}

// AppendEvent inserts the event and bumps the session's update time in one
// transaction.
func (s *SQLService) AppendEvent(ctx context.Context, session Session, event *agent.Event) error {
	if session == nil {
		return fmt.Errorf("session is nil")
	}
	if event == nil {
		return fmt.Errorf("event is nil")
	}
	if event.Partial {
		return nil
	}

	row, err := eventToRow(event)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	touch := s.rebind(`UPDATE sessions SET updated_at = ? WHERE app_name = ? AND user_id = ? AND id = ?`)
	res, err := tx.ExecContext(ctx, touch, now, session.AppName(), session.UserID(), session.ID())
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionNotFound
	}

	var seq int
	next := s.rebind(`SELECT COALESCE(MAX(sequence_num), 0) + 1 FROM session_events
		WHERE app_name = ? AND user_id = ? AND session_id = ?`)
	if err := tx.QueryRowContext(ctx, next, session.AppName(), session.UserID(), session.ID()).Scan(&seq); err != nil {
		return fmt.Errorf("failed to get sequence number: %w", err)
	}

	insert := s.rebind(`INSERT INTO session_events (
		id, app_name, user_id, session_id, author, invocation_id, role, content_json,
		turn_complete, error_message, tool_calls_json, tool_results_json, usage_json,
		sequence_num, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insert,
		event.ID, session.AppName(), session.UserID(), session.ID(),
		event.Author, event.InvocationID, row.Role, row.ContentJSON,
		event.TurnComplete, event.ErrorMessage, row.ToolCallsJSON, row.ToolResultsJSON, row.UsageJSON,
		seq, event.Timestamp.UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if ms, ok := session.(*memorySession); ok {
		ms.appendEvent(event, now)
	}
	return nil
}

func (s *SQLService) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	query := `SELECT app_name, user_id, id, updated_at FROM sessions WHERE app_name = ?`
	args := []any{req.AppName}
	if req.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, req.UserID)
	}
	query += " ORDER BY updated_at DESC"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var appName, userID, id string
		var updated time.Time
		if err := rows.Scan(&appName, &userID, &id, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, newMemorySession(appName, userID, id, nil, updated))
	}
	return &ListResponse{Sessions: sessions}, rows.Err()
}

func (s *SQLService) Delete(ctx context.Context, req *DeleteRequest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	events := s.rebind(`DELETE FROM session_events WHERE app_name = ? AND user_id = ? AND session_id = ?`)
	if _, err := tx.ExecContext(ctx, events, req.AppName, req.UserID, req.SessionID); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	sessions := s.rebind(`DELETE FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?`)
	if _, err := tx.ExecContext(ctx, sessions, req.AppName, req.UserID, req.SessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return tx.Commit()
}

func (s *SQLService) getSession(ctx context.Context, appName, userID, sessionID string) (*memorySession, error) {
	query := s.rebind(`SELECT updated_at FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?`)

	var updated time.Time
	err := s.db.QueryRowContext(ctx, query, appName, userID, sessionID).Scan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return newMemorySession(appName, userID, sessionID, nil, updated), nil
}

const eventColumns = `id, author, invocation_id, role, content_json, turn_complete, error_message,
	tool_calls_json, tool_results_json, usage_json, created_at, sequence_num`

func (s *SQLService) getEvents(ctx context.Context, appName, userID, sessionID string, numRecent int) ([]*agent.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM session_events
		WHERE app_name = ? AND user_id = ? AND session_id = ?`
	args := []any{appName, userID, sessionID}

	if numRecent > 0 {
		// Newest N, returned oldest first.
		query = `SELECT ` + eventColumns + ` FROM (` + query + ` ORDER BY sequence_num DESC LIMIT ?) sub
			ORDER BY sequence_num ASC`
		args = append(args, numRecent)
	} else {
		query += " ORDER BY sequence_num ASC"
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*agent.Event
	for rows.Next() {
		var row eventRow
		var errMsg, role, content, calls, results, usage sql.NullString
		var author, invocationID sql.NullString
		var seq int
		if err := rows.Scan(
			&row.ID, &author, &invocationID, &role, &content, &row.TurnComplete, &errMsg,
			&calls, &results, &usage, &row.CreatedAt, &seq,
		); err != nil {
			return nil, err
		}
		row.Author = author.String
		row.InvocationID = invocationID.String
		row.Role = role.String
		row.ContentJSON = content.String
		row.ErrorMessage = errMsg.String
		row.ToolCallsJSON = calls.String
		row.ToolResultsJSON = results.String
		row.UsageJSON = usage.String

		ev, err := rowToEvent(&row)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

type eventRow struct {
	ID              string
	Author          string
	InvocationID    string
	Role            string
	ContentJSON     string
	TurnComplete    bool
	ErrorMessage    string
	ToolCallsJSON   string
	ToolResultsJSON string
	UsageJSON       string
	CreatedAt       time.Time
}

func eventToRow(event *agent.Event) (*eventRow, error) {
	row := &eventRow{}
	if event.Message != nil {
		row.Role = string(event.Message.Role)
		b, err := json.Marshal(event.Message.Parts)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal content: %w", err)
		}
		row.ContentJSON = string(b)
	}

	var err error
	if row.ToolCallsJSON, err = marshalOptional(event.ToolCalls, len(event.ToolCalls) > 0); err != nil {
		return nil, err
	}
	if row.ToolResultsJSON, err = marshalOptional(event.ToolResults, len(event.ToolResults) > 0); err != nil {
		return nil, err
	}
	if row.UsageJSON, err = marshalOptional(event.Usage, event.Usage != nil); err != nil {
		return nil, err
	}
	return row, nil
}

func marshalOptional(v any, present bool) (string, error) {
	if !present {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func rowToEvent(row *eventRow) (*agent.Event, error) {
	event := &agent.Event{
		ID:           row.ID,
		Timestamp:    row.CreatedAt,
		InvocationID: row.InvocationID,
		Author:       row.Author,
		TurnComplete: row.TurnComplete,
		ErrorMessage: row.ErrorMessage,
	}

	if row.ContentJSON != "" {
		var rawParts []json.RawMessage
		if err := json.Unmarshal([]byte(row.ContentJSON), &rawParts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal content: %w", err)
		}
		var parts a2a.ContentParts
		for _, raw := range rawParts {
			part, err := parseA2APart(raw)
			if err != nil {
				return nil, fmt.Errorf("failed to parse part: %w", err)
			}
			if part != nil {
				parts = append(parts, part)
			}
		}
		if len(parts) > 0 {
			event.Message = a2a.NewMessage(a2a.MessageRole(row.Role), parts...)
		}
	}

	if row.ToolCallsJSON != "" {
		if err := json.Unmarshal([]byte(row.ToolCallsJSON), &event.ToolCalls); err != nil {
			return nil, err
		}
	}
	if row.ToolResultsJSON != "" {
		if err := json.Unmarshal([]byte(row.ToolResultsJSON), &event.ToolResults); err != nil {
			return nil, err
		}
	}
	if row.UsageJSON != "" {
		var usage model.Usage
		if err := json.Unmarshal([]byte(row.UsageJSON), &usage); err != nil {
			return nil, err
		}
		event.Usage = &usage
	}
	return event, nil
}

// convertToPostgresPlaceholders converts ? to $1, $2, etc. in a single pass.
func convertToPostgresPlaceholders(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 20)
	n := 1
	for _, c := range query {
		if c == '?' {
			fmt.Fprintf(&b, "$%d", n)
			n++
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// parseA2APart decodes a part by its "kind" field. Unknown kinds are
// skipped.
func parseA2APart(raw json.RawMessage) (a2a.Part, error) {
	var peek struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &peek); err != nil {
		return nil, fmt.Errorf("failed to peek part kind: %w", err)
	}

	switch peek.Kind {
	case "text":
		var part a2a.TextPart
		if err := json.Unmarshal(raw, &part); err != nil {
			return nil, err
		}
		return part, nil
	case "file":
		var part a2a.FilePart
		if err := json.Unmarshal(raw, &part); err != nil {
			return nil, err
		}
		return part, nil
	case "data":
		var part a2a.DataPart
		if err := json.Unmarshal(raw, &part); err != nil {
			return nil, err
		}
		return part, nil
	default:
		slog.Debug("Unknown part kind in event", "kind", peek.Kind)
		return nil, nil
	}
}

var _ Service = (*SQLService)(nil)
