// Package report keeps the outcome of discovery runs.
//
// A Report pairs the parsed observation with the raw model output it came
// from. Reports are stored in memory or in the SQL database shared with
// the session store, and mirrored as observation.json next to the
// screenshot in the assets directory.
package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/kadirpekel/scout/pkg/discovery"
)

// FileName is the observation file written per host.
const FileName = "observation.json"

var (
	// ErrReportNotFound is returned by Store.Get.
	ErrReportNotFound = errors.New("report not found")
	ErrInvalidHost    = errors.New("invalid report host")
)

// Report is the result of one discovery run.
type Report struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Host      string    `json:"host"`
	SessionID string    `json:"session_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// Observation is nil when the model output could not be parsed.
	Observation *discovery.Observation `json:"observation,omitempty"`

	// Raw is the model's final text, verbatim.
	Raw string `json:"raw"`

	// ParseError explains why Observation is nil.
	ParseError string `json:"parse_error,omitempty"`
}

// New creates a report for url with a fresh ID.
func New(url, sessionID string) *Report {
	return &Report{
		ID:        uuid.NewString(),
		URL:       url,
		Host:      discovery.HostOf(url),
		SessionID: sessionID,
		CreatedAt: time.Now().UTC(),
	}
}

// ListOptions filters Store.List.
type ListOptions struct {
	Host  string
	Limit int
}

// Store persists reports.
type Store interface {
	Save(ctx context.Context, r *Report) error
	Get(ctx context.Context, id string) (*Report, error)

	// List returns reports newest first.
	List(ctx context.Context, opts ListOptions) ([]*Report, error)
}

// WriteFile atomically writes the observation of r to
// <assetsDir>/<host>/observation.json and returns the path. Unparsed
// reports are written whole so the raw output is not lost.
func WriteFile(assetsDir string, r *Report) (string, error) {
	if !discovery.ValidHost(r.Host) {
		return "", fmt.Errorf("%w: %q", ErrInvalidHost, r.Host)
	}
	dir := filepath.Join(assetsDir, r.Host)
	if rel, err := filepath.Rel(assetsDir, dir); err != nil || rel != r.Host {
		return "", fmt.Errorf("%w: %q", ErrInvalidHost, r.Host)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	var v any = r
	if r.Observation != nil {
		v = r.Observation
	}
	data, err := marshalIndent(v)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, FileName)
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// MemoryStore keeps reports in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string]*Report
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reports: make(map[string]*Report)}
}

func (s *MemoryStore) Save(_ context.Context, r *Report) error {
	if r == nil || r.ID == "" {
		return errors.New("report id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.ID] = r
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, ErrReportNotFound
	}
	return r, nil
}

func (s *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Report
	for _, r := range s.reports {
		if opts.Host != "" && r.Host != opts.Host {
			continue
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b *Report) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
