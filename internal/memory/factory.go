package memory

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// NewStore creates a redis-backed store when backend is "redis", otherwise a
// local one.
func NewStore(ctx context.Context, backend, redisAddr string, limits Limits) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "local":
		return NewLocalStore(limits)
	case "redis":
		return NewRedisStore(ctx, redisAddr, limits)
	default:
		return nil, errors.Errorf("unsupported memory backend %q", backend)
	}
}
