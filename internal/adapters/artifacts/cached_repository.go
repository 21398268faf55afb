package artifacts

import (
	"context"
	"sync"
	"time"

	"github.com/mikey/phish-detector/internal/core"
	"go.uber.org/zap"
)

// CachedRepository keeps the last loaded model pair in memory for a fixed time
type CachedRepository struct {
	next      core.ArtifactRepository
	ttl       time.Duration
	pair      *core.ModelPair
	expiresAt time.Time
	mu        sync.Mutex
	logger    *zap.Logger
	now       func() time.Time
}

// NewCachedRepository wraps next with a TTL cache
func NewCachedRepository(next core.ArtifactRepository, ttl time.Duration, logger *zap.Logger) *CachedRepository {
	return &CachedRepository{
		next:   next,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Save persists the pair and replaces the cached one
func (c *CachedRepository) Save(ctx context.Context, pair *core.ModelPair) error {
	if err := c.next.Save(ctx, pair); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pair = pair
	c.expiresAt = c.now().Add(c.ttl)
	return nil
}

// Load returns the cached pair while it is fresh and reloads it otherwise
func (c *CachedRepository) Load(ctx context.Context) (*core.ModelPair, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pair != nil && c.now().Before(c.expiresAt) {
		return c.pair, nil
	}

	pair, err := c.next.Load(ctx)
	if err != nil {
		c.pair = nil
		return nil, err
	}

	c.pair = pair
	c.expiresAt = c.now().Add(c.ttl)
	c.logger.Debug("Refreshed cached model artifacts",
		zap.String("pair_id", pair.ID),
		zap.Time("expires_at", c.expiresAt))
	return pair, nil
}

// Invalidate drops the cached pair
func (c *CachedRepository) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pair = nil
}
