package cache

import (
	"context"
	"time"

	"invoice-api/internal/config"
	"invoice-api/internal/domain"
	"invoice-api/internal/repository"
	"invoice-api/pkg/clock"

	"go.uber.org/zap"
)

// UserDirectory resolves external identities to user records through a
// bounded cache in front of the user repository
type UserDirectory struct {
	repo  repository.UserRepository
	cache *BoundedCache[*domain.User]
	ttl   time.Duration
}

// NewUserDirectory creates a cached user directory
func NewUserDirectory(repo repository.UserRepository, cfg config.CacheConfig, clk clock.Clock, logger *zap.Logger) *UserDirectory {
	return &UserDirectory{
		repo:  repo,
		cache: New[*domain.User]("users", cfg, clk, logger),
		ttl:   cfg.TTL,
	}
}

// Resolve returns the user for externalID. repository.ErrUserNotFound is
// passed through and not cached, so a user created later is found on the
// next call.
func (d *UserDirectory) Resolve(ctx context.Context, externalID string) (*domain.User, error) {
	return d.cache.GetOrLoad(ctx, key(externalID), func(ctx context.Context) (*domain.User, error) {
		return d.repo.GetByExternalID(ctx, externalID)
	}, d.ttl)
}

// Invalidate drops the cached record for externalID
func (d *UserDirectory) Invalidate(externalID string) {
	d.cache.Invalidate(key(externalID))
}

// Stats returns the underlying cache statistics
func (d *UserDirectory) Stats() domain.CacheStats {
	return d.cache.Stats()
}

// Start begins the cache expiry sweep
func (d *UserDirectory) Start(ctx context.Context) {
	d.cache.Start(ctx)
}

// Stop halts the cache expiry sweep
func (d *UserDirectory) Stop() {
	d.cache.Stop()
}

func key(externalID string) string {
	return "user:" + externalID
}
