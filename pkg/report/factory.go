package report

import (
	"context"
	"fmt"

	"github.com/kadirpekel/scout/pkg/config"
)

// NewStoreFromConfig returns the report store for the storage backend.
func NewStoreFromConfig(ctx context.Context, cfg config.StorageConfig, pool *config.DBPool) (Store, error) {
	if !cfg.IsSQL() {
		return NewMemoryStore(), nil
	}
	if pool == nil {
		return nil, fmt.Errorf("DBPool is required for SQL report backend")
	}
	db, err := pool.Get(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	return NewSQLStore(ctx, db, cfg.Dialect())
}
