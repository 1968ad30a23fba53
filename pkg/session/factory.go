package session

import (
	"context"
	"fmt"

	"github.com/kadirpekel/scout/pkg/config"
)

// NewFromConfig returns the session service for the storage backend.
// The pool is shared with the report store so both use one connection.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig, pool *config.DBPool) (Service, error) {
	if !cfg.IsSQL() {
		return InMemoryService(), nil
	}
	if pool == nil {
		return nil, fmt.Errorf("DBPool is required for SQL session backend")
	}

	db, err := pool.Get(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	return NewSQLService(db, cfg.Dialect())
}
