package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/cratedig/spindle/pkg/models"
)

// ComputeFunc produces a freshly scored candidate list when the durable
// cache cannot serve one.
type ComputeFunc func(ctx context.Context) ([]models.RecommendationCacheEntry, error)

// RecommendationCache is the durable read-through cache over scored
// recommendation lists. Concurrent misses for the same user and list are
// collapsed into a single computation, and expired rows are filtered
// lazily on read with a periodic sweep reclaiming storage.
type RecommendationCache struct {
	store         PersistentStore
	ttl           time.Duration
	sweepInterval time.Duration
	group         singleflight.Group
	metrics       *MetricsCollector
	logger        *logrus.Logger

	sweeping bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewRecommendationCache(
	store PersistentStore,
	ttl time.Duration,
	sweepInterval time.Duration,
	metrics *MetricsCollector,
	logger *logrus.Logger,
) *RecommendationCache {
	return &RecommendationCache{
		store:         store,
		ttl:           ttl,
		sweepInterval: sweepInterval,
		metrics:       metrics,
		logger:        logger,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// GetOrCompute returns the cached entries for (userID, cacheKey) if any
// unexpired ones exist, otherwise runs compute exactly once across all
// concurrent callers and persists the result. A cache read or write
// failure degrades to computing without caching rather than failing the
// request.
func (c *RecommendationCache) GetOrCompute(ctx context.Context, userID uuid.UUID, cacheKey string, compute ComputeFunc) ([]models.RecommendationCacheEntry, bool, error) {
	now := time.Now()

	entries, err := c.store.GetCacheEntries(ctx, userID, cacheKey)
	if err != nil {
		c.logger.WithError(fmt.Errorf("%v: %w", err, ErrCacheUnavailable)).
			WithField("user_id", userID).
			Warn("Recommendation cache read failed, computing without cache")
		fresh, cerr := compute(ctx)
		return fresh, false, cerr
	}

	live := filterExpired(entries, now)
	if len(live) > 0 {
		c.metrics.RecommendationCacheHit()
		return live, true, nil
	}
	c.metrics.RecommendationCacheMiss()

	flightKey := userID.String() + ":" + cacheKey
	result, err, shared := c.group.Do(flightKey, func() (interface{}, error) {
		// Detach from the caller: other waiters on this flight must not
		// lose the computation because the first caller gave up.
		computeCtx := context.WithoutCancel(ctx)

		fresh, cerr := compute(computeCtx)
		if cerr != nil {
			return nil, cerr
		}

		expiresAt := time.Now().Add(c.ttl)
		for i := range fresh {
			if fresh[i].ExpiresAt.IsZero() {
				fresh[i].ExpiresAt = expiresAt
			}
		}

		if serr := c.store.PutCacheEntries(computeCtx, userID, cacheKey, fresh); serr != nil {
			c.logger.WithError(fmt.Errorf("%v: %w", serr, ErrCacheUnavailable)).
				WithField("user_id", userID).
				Warn("Failed to persist recommendation cache entries")
		}
		return fresh, nil
	})
	if err != nil {
		return nil, false, err
	}
	if shared {
		c.metrics.SingleFlightShared()
	}

	fresh, ok := result.([]models.RecommendationCacheEntry)
	if !ok {
		return nil, false, fmt.Errorf("unexpected cache computation result: %w", ErrComputationFailed)
	}
	return fresh, false, nil
}

// Invalidate drops all cached lists for a user, typically after feedback
// shifts their weights.
func (c *RecommendationCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	return c.store.DeleteUserCache(ctx, userID)
}

// StartSweeper reclaims expired rows on an interval until Stop is called.
func (c *RecommendationCache) StartSweeper(ctx context.Context) {
	c.sweeping = true
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sweep(ctx)
			case <-c.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the sweeper and waits for it to exit. Safe to call when the
// sweeper was never started.
func (c *RecommendationCache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	if c.sweeping {
		<-c.done
	}
}

func (c *RecommendationCache) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	removed, err := c.store.DeleteExpired(sweepCtx, time.Now())
	if err != nil {
		c.logger.WithError(err).Warn("Cache sweep failed")
		return
	}
	if removed > 0 {
		c.logger.WithField("rows", removed).Debug("Swept expired cache rows")
	}
}

func filterExpired(entries []models.RecommendationCacheEntry, now time.Time) []models.RecommendationCacheEntry {
	live := make([]models.RecommendationCacheEntry, 0, len(entries))
	for _, e := range entries {
		if !e.Expired(now) {
			live = append(live, e)
		}
	}
	return live
}
