package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/cratedig/spindle/pkg/models"
)

// CollectionStore is the capability interface over the user's owned-album
// collection. Row-level authorization lives behind it.
type CollectionStore interface {
	GetOwnedAlbums(ctx context.Context, userID uuid.UUID) ([]models.OwnedAlbum, error)
}

// ProviderQueryKind selects what a metadata provider is asked for.
type ProviderQueryKind string

const (
	QuerySimilarArtists ProviderQueryKind = "similar_artists"
	QueryTopByTags      ProviderQueryKind = "top_by_tags"
	QueryPopular        ProviderQueryKind = "popular"
)

// ProviderQuery is the deterministic description of one provider call; its
// Signature is part of the shared external-response cache key.
type ProviderQuery struct {
	Kind    ProviderQueryKind `json:"kind"`
	Artists []string          `json:"artists,omitempty"`
	Tags    []string          `json:"tags,omitempty"`
	Limit   int               `json:"limit"`
}

// Signature serializes the query deterministically. Artists and Tags must
// already be in a stable order when the query is built.
func (q ProviderQuery) Signature() string {
	b, _ := json.Marshal(q)
	return string(b)
}

// ProviderResponse carries one provider's answer: parsed candidates plus
// the raw payload that gets cached.
type ProviderResponse struct {
	Albums []models.CandidateAlbum `json:"albums"`
	Raw    json.RawMessage         `json:"raw,omitempty"`
}

// MetadataProvider is the capability interface over one external metadata
// source. Implementations own the HTTP specifics; the gateway owns
// timeout, retry and fan-out policy. Must be safe for concurrent use.
type MetadataProvider interface {
	ID() string
	Query(ctx context.Context, q ProviderQuery) (*ProviderResponse, error)
}

// PersistentStore is the capability interface over durable engine state.
type PersistentStore interface {
	GetWeights(ctx context.Context, userID uuid.UUID) (*models.UserWeights, error)
	PutWeights(ctx context.Context, w *models.UserWeights) error

	UpsertFeedback(ctx context.Context, ev *models.FeedbackEvent) (inserted bool, err error)
	GetHiddenFingerprints(ctx context.Context, userID uuid.UUID) (map[string]bool, error)
	GetCandidateSignals(ctx context.Context, userID uuid.UUID, fingerprint string) (map[models.Signal]float64, error)

	GetCacheEntries(ctx context.Context, userID uuid.UUID, cacheKey string) ([]models.RecommendationCacheEntry, error)
	PutCacheEntries(ctx context.Context, userID uuid.UUID, cacheKey string, entries []models.RecommendationCacheEntry) error
	DeleteUserCache(ctx context.Context, userID uuid.UUID) error

	GetExternalCache(ctx context.Context, cacheKey string, now time.Time) (*models.ExternalResponseCacheEntry, error)
	PutExternalCache(ctx context.Context, e *models.ExternalResponseCacheEntry) error

	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// FeedbackPublisher moves feedback events off the read path.
type FeedbackPublisher interface {
	Publish(ctx context.Context, ev models.FeedbackEvent) error
}

// RecommendationEngineInterface is the public surface consumed by the
// HTTP handlers.
type RecommendationEngineInterface interface {
	Recommend(ctx context.Context, userID uuid.UUID, listType models.ListType, params models.ListParams) (*models.RankedList, error)
	SubmitFeedback(ctx context.Context, userID uuid.UUID, fp string, kind models.FeedbackKind, contextLabel string) error
}
