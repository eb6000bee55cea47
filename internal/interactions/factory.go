package interactions

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// Options selects and configures the interaction store.
type Options struct {
	// Driver is auto, memory, sqlite or postgres. Auto picks postgres when a
	// database URL is set, otherwise sqlite.
	Driver      string
	DatabaseURL string
	SQLitePath  string
}

// NewStore opens the configured store.
func NewStore(ctx context.Context, opts Options) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(opts.Driver))
	if driver == "" || driver == "auto" {
		if strings.TrimSpace(opts.DatabaseURL) != "" {
			driver = "postgres"
		} else {
			driver = "sqlite"
		}
	}
	switch driver {
	case "memory":
		return NewInMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(ctx, opts.SQLitePath)
	case "postgres":
		return NewPostgresStore(ctx, opts.DatabaseURL)
	default:
		return nil, errors.Errorf("unsupported interaction store %q", opts.Driver)
	}
}
