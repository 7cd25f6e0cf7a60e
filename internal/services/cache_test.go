package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cratedig/spindle/pkg/models"
)

func newTestCache(store *mockStore) *RecommendationCache {
	return NewRecommendationCache(store, 24*time.Hour, time.Hour, nil, testLogger())
}

func cacheEntry(fp string, expiresAt time.Time) models.RecommendationCacheEntry {
	return models.RecommendationCacheEntry{
		Fingerprint: fp,
		Score:       0.5,
		ListType:    models.ListTopPicks,
		CreatedAt:   time.Now().Add(-time.Hour),
		ExpiresAt:   expiresAt,
	}
}

func TestRecommendationCache_ServesUnexpiredEntries(t *testing.T) {
	store := &mockStore{}
	cache := newTestCache(store)
	userID := uuid.New()

	stored := []models.RecommendationCacheEntry{
		cacheEntry("a::a", time.Now().Add(time.Hour)),
	}
	store.On("GetCacheEntries", mock.Anything, userID, "top_picks").Return(stored, nil)

	computed := false
	entries, hit, err := cache.GetOrCompute(context.Background(), userID, "top_picks", func(context.Context) ([]models.RecommendationCacheEntry, error) {
		computed = true
		return nil, nil
	})

	require.NoError(t, err)
	assert.True(t, hit)
	assert.Len(t, entries, 1)
	assert.False(t, computed, "a cache hit must not trigger computation")
}

func TestRecommendationCache_ExpiredEntriesRecomputed(t *testing.T) {
	store := &mockStore{}
	cache := newTestCache(store)
	userID := uuid.New()

	stale := []models.RecommendationCacheEntry{
		cacheEntry("a::a", time.Now().Add(-time.Minute)),
	}
	fresh := []models.RecommendationCacheEntry{
		cacheEntry("b::b", time.Time{}),
	}

	store.On("GetCacheEntries", mock.Anything, userID, "top_picks").Return(stale, nil)
	store.On("PutCacheEntries", mock.Anything, userID, "top_picks", mock.Anything).Return(nil)

	entries, hit, err := cache.GetOrCompute(context.Background(), userID, "top_picks", func(context.Context) ([]models.RecommendationCacheEntry, error) {
		return fresh, nil
	})

	require.NoError(t, err)
	assert.False(t, hit, "expired rows count as a miss")
	require.Len(t, entries, 1)
	assert.Equal(t, "b::b", entries[0].Fingerprint)
	assert.False(t, entries[0].ExpiresAt.IsZero(), "the cache stamps the TTL on computed entries")

	store.AssertCalled(t, "PutCacheEntries", mock.Anything, userID, "top_picks", mock.Anything)
}

func TestRecommendationCache_SingleFlight(t *testing.T) {
	store := &mockStore{}
	cache := newTestCache(store)
	userID := uuid.New()

	store.On("GetCacheEntries", mock.Anything, userID, "top_picks").
		Return([]models.RecommendationCacheEntry{}, nil)
	store.On("PutCacheEntries", mock.Anything, userID, "top_picks", mock.Anything).Return(nil)

	var computations int32
	gate := make(chan struct{})

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]models.RecommendationCacheEntry, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries, _, err := cache.GetOrCompute(context.Background(), userID, "top_picks", func(context.Context) ([]models.RecommendationCacheEntry, error) {
				atomic.AddInt32(&computations, 1)
				<-gate
				return []models.RecommendationCacheEntry{cacheEntry("x::x", time.Time{})}, nil
			})
			assert.NoError(t, err)
			results[i] = entries
		}(i)
	}

	// Let every caller miss the cache and join the flight before the
	// computation completes.
	time.Sleep(100 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&computations),
		"concurrent misses for one key share a single computation")
	for i := 0; i < callers; i++ {
		require.Len(t, results[i], 1)
		assert.Equal(t, "x::x", results[i][0].Fingerprint)
	}
}

func TestRecommendationCache_StoreReadFailureDegrades(t *testing.T) {
	store := &mockStore{}
	cache := newTestCache(store)
	userID := uuid.New()

	store.On("GetCacheEntries", mock.Anything, userID, "top_picks").
		Return(nil, errors.New("connection refused"))

	fresh := []models.RecommendationCacheEntry{cacheEntry("a::a", time.Time{})}
	entries, hit, err := cache.GetOrCompute(context.Background(), userID, "top_picks", func(context.Context) ([]models.RecommendationCacheEntry, error) {
		return fresh, nil
	})

	require.NoError(t, err, "an unreachable store degrades to uncached computation")
	assert.False(t, hit)
	assert.Len(t, entries, 1)
	store.AssertNotCalled(t, "PutCacheEntries", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRecommendationCache_ReadFailureTaggedUnavailable(t *testing.T) {
	store := &mockStore{}
	logger, hook := logtest.NewNullLogger()
	cache := NewRecommendationCache(store, 24*time.Hour, time.Hour, nil, logger)
	userID := uuid.New()

	store.On("GetCacheEntries", mock.Anything, userID, "top_picks").
		Return(nil, errors.New("connection refused"))

	_, _, err := cache.GetOrCompute(context.Background(), userID, "top_picks", func(context.Context) ([]models.RecommendationCacheEntry, error) {
		return nil, nil
	})
	require.NoError(t, err)

	tagged := false
	for _, entry := range hook.AllEntries() {
		logged, ok := entry.Data[logrus.ErrorKey].(error)
		if ok && errors.Is(logged, ErrCacheUnavailable) {
			tagged = true
		}
	}
	assert.True(t, tagged, "the degrade path reports ErrCacheUnavailable")
}

func TestRecommendationCache_StoreWriteFailureStillServes(t *testing.T) {
	store := &mockStore{}
	cache := newTestCache(store)
	userID := uuid.New()

	store.On("GetCacheEntries", mock.Anything, userID, "top_picks").
		Return([]models.RecommendationCacheEntry{}, nil)
	store.On("PutCacheEntries", mock.Anything, userID, "top_picks", mock.Anything).
		Return(errors.New("disk full"))

	entries, _, err := cache.GetOrCompute(context.Background(), userID, "top_picks", func(context.Context) ([]models.RecommendationCacheEntry, error) {
		return []models.RecommendationCacheEntry{cacheEntry("a::a", time.Time{})}, nil
	})

	require.NoError(t, err, "a failed cache write never fails the request")
	assert.Len(t, entries, 1)
}

func TestRecommendationCache_ComputeErrorPropagates(t *testing.T) {
	store := &mockStore{}
	cache := newTestCache(store)
	userID := uuid.New()

	store.On("GetCacheEntries", mock.Anything, userID, "top_picks").
		Return([]models.RecommendationCacheEntry{}, nil)

	wantErr := errors.New("upstream exploded")
	_, _, err := cache.GetOrCompute(context.Background(), userID, "top_picks", func(context.Context) ([]models.RecommendationCacheEntry, error) {
		return nil, wantErr
	})

	assert.ErrorIs(t, err, wantErr)
}
