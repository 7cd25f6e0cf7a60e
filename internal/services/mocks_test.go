package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/cratedig/spindle/pkg/models"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetOwnedAlbums(ctx context.Context, userID uuid.UUID) ([]models.OwnedAlbum, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.OwnedAlbum), args.Error(1)
}

func (m *mockStore) GetWeights(ctx context.Context, userID uuid.UUID) (*models.UserWeights, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserWeights), args.Error(1)
}

func (m *mockStore) PutWeights(ctx context.Context, w *models.UserWeights) error {
	args := m.Called(ctx, w)
	return args.Error(0)
}

func (m *mockStore) UpsertFeedback(ctx context.Context, ev *models.FeedbackEvent) (bool, error) {
	args := m.Called(ctx, ev)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) GetHiddenFingerprints(ctx context.Context, userID uuid.UUID) (map[string]bool, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]bool), args.Error(1)
}

func (m *mockStore) GetCandidateSignals(ctx context.Context, userID uuid.UUID, fingerprint string) (map[models.Signal]float64, error) {
	args := m.Called(ctx, userID, fingerprint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[models.Signal]float64), args.Error(1)
}

func (m *mockStore) GetCacheEntries(ctx context.Context, userID uuid.UUID, cacheKey string) ([]models.RecommendationCacheEntry, error) {
	args := m.Called(ctx, userID, cacheKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RecommendationCacheEntry), args.Error(1)
}

func (m *mockStore) PutCacheEntries(ctx context.Context, userID uuid.UUID, cacheKey string, entries []models.RecommendationCacheEntry) error {
	args := m.Called(ctx, userID, cacheKey, entries)
	return args.Error(0)
}

func (m *mockStore) DeleteUserCache(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *mockStore) GetExternalCache(ctx context.Context, cacheKey string, now time.Time) (*models.ExternalResponseCacheEntry, error) {
	args := m.Called(ctx, cacheKey, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ExternalResponseCacheEntry), args.Error(1)
}

func (m *mockStore) PutExternalCache(ctx context.Context, e *models.ExternalResponseCacheEntry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *mockStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

type mockProvider struct {
	mock.Mock
	id string
}

func (m *mockProvider) ID() string {
	return m.id
}

func (m *mockProvider) Query(ctx context.Context, q ProviderQuery) (*ProviderResponse, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ProviderResponse), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, ev models.FeedbackEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}
