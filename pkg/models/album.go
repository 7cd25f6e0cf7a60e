package models

import (
	"encoding/json"
	"time"
)

// OwnedAlbum is a record from the user's collection store. It is read-only
// input to profiling; the engine never mutates the collection.
type OwnedAlbum struct {
	Artist    string            `json:"artist"`
	Title     string            `json:"title"`
	GenreTags []string          `json:"genre_tags,omitempty"`
	MoodTags  []string          `json:"mood_tags,omitempty"`
	Year      int               `json:"year,omitempty"`
	Label     string            `json:"label,omitempty"`
	Country   string            `json:"country,omitempty"`
	ArtistIDs map[string]string `json:"artist_ids,omitempty"` // provider id -> external artist id
}

// CandidateAlbum is the merged, fingerprinted view of one album across all
// providers that returned it during a single request. It is never persisted
// as-is; only its scored projection reaches the cache.
type CandidateAlbum struct {
	Fingerprint   string   `json:"fingerprint"`
	Artist        string   `json:"artist"`
	Title         string   `json:"title"`
	GenreTags     []string `json:"genre_tags,omitempty"`
	MoodTags      []string `json:"mood_tags,omitempty"`
	Year          int      `json:"year,omitempty"`
	Label         string   `json:"label,omitempty"`
	Country       string   `json:"country,omitempty"`
	CatalogNumber string   `json:"catalog_number,omitempty"`
	Format        string   `json:"format,omitempty"`

	// Popularity is the provider-supplied listener/collection metric,
	// un-normalized. The scorer min-max normalizes it per batch.
	Popularity    float64 `json:"popularity,omitempty"`
	HasPopularity bool    `json:"has_popularity,omitempty"`

	// SimilarTo names owned artists a provider declared this candidate's
	// artist similar to, with the provider's similarity value (0 when the
	// provider supplies none).
	SimilarTo map[string]float64 `json:"similar_to,omitempty"`

	Sources []string `json:"sources,omitempty"`

	// Raw keeps the per-provider payload for debugging; dropped before
	// anything is cached.
	Raw map[string]json.RawMessage `json:"-"`
}

// ExternalResponseCacheEntry caches one raw provider response under a
// shared key. It stores objective provider data and is therefore never
// scoped to a user.
type ExternalResponseCacheEntry struct {
	CacheKey  string          `json:"cache_key"`
	Provider  string          `json:"provider"`
	Payload   json.RawMessage `json:"payload"`
	HitCount  int64           `json:"hit_count"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}
