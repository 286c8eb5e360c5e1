package cache

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bankrot-cli/internal/config"
)

// NewBackend builds the backend selected by cfg.Driver.
func NewBackend(ctx context.Context, cfg config.CacheConfig) (Backend, error) {
	switch cfg.Driver {
	case "", "json":
		return NewFileBackend(cfg.Path), nil
	case "sqlite":
		return NewSQLiteBackend(ctx, cfg.Path)
	case "postgres":
		return NewPostgresBackend(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("cache: unknown driver %q", cfg.Driver)
	}
}

// OpenFromConfig builds the configured backend and loads it.
func OpenFromConfig(ctx context.Context, cfg config.CacheConfig) (*Cache, error) {
	backend, err := NewBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c, err := Open(ctx, backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return c, nil
}
