package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kadirpekel/scout/pkg/discovery"
)

const createReportsSchemaSQL = `
CREATE TABLE IF NOT EXISTS reports (
    id VARCHAR(255) NOT NULL PRIMARY KEY,
    url TEXT NOT NULL,
    host VARCHAR(255) NOT NULL,
    session_id VARCHAR(255),
    observation_json TEXT,
    raw TEXT,
    parse_error TEXT,
    created_at TIMESTAMP NOT NULL
)`

const createReportsIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_reports_host ON reports(host, created_at)`

// SQLStore keeps reports in the shared database.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLStore creates the reports table if needed.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if dialect == "sqlite3" {
		dialect = "sqlite"
	}
	switch dialect {
	case "sqlite", "postgres", "mysql":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}

	s := &SQLStore{db: db, dialect: dialect}
	stmts := []string{createReportsSchemaSQL}
	if dialect != "mysql" {
		stmts = append(stmts, createReportsIndexSQL)
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to initialize reports schema: %w", err)
		}
	}
	return s, nil
}

func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 1
	for _, c := range query {
		if c == '?' {
			fmt.Fprintf(&b, "$%d", n)
			n++
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (s *SQLStore) Save(ctx context.Context, r *Report) error {
	if r == nil || r.ID == "" {
		return errors.New("report id is required")
	}
	var obs sql.NullString
	if r.Observation != nil {
		b, err := json.Marshal(r.Observation)
		if err != nil {
			return fmt.Errorf("failed to marshal observation: %w", err)
		}
		obs = sql.NullString{String: string(b), Valid: true}
	}

	query := s.rebind(`INSERT INTO reports (id, url, host, session_id, observation_json, raw, parse_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query,
		r.ID, r.URL, r.Host, r.SessionID, obs, r.Raw, r.ParseError, r.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

const reportColumns = `id, url, host, session_id, observation_json, raw, parse_error, created_at`

func (s *SQLStore) Get(ctx context.Context, id string) (*Report, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+reportColumns+` FROM reports WHERE id = ?`), id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return r, nil
}

func (s *SQLStore) List(ctx context.Context, opts ListOptions) ([]*Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports`
	var args []any
	if opts.Host != "" {
		query += " WHERE host = ?"
		args = append(args, opts.Host)
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var out []*Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(sc scanner) (*Report, error) {
	var r Report
	var sessionID, obs, raw, parseErr sql.NullString
	var created time.Time
	if err := sc.Scan(&r.ID, &r.URL, &r.Host, &sessionID, &obs, &raw, &parseErr, &created); err != nil {
		return nil, err
	}
	r.SessionID = sessionID.String
	r.Raw = raw.String
	r.ParseError = parseErr.String
	r.CreatedAt = created.UTC()
	if obs.Valid && obs.String != "" {
		var o discovery.Observation
		if err := json.Unmarshal([]byte(obs.String), &o); err != nil {
			return nil, fmt.Errorf("failed to decode observation: %w", err)
		}
		r.Observation = &o
	}
	return &r, nil
}

var _ Store = (*SQLStore)(nil)
