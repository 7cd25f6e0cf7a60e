package models

import (
	"time"

	"github.com/google/uuid"
)

// ListType routes a recommendation request to its gateway query and
// profile subset.
type ListType string

const (
	ListTopPicks      ListType = "top_picks"
	ListBecauseYouOwn ListType = "because_you_own"
	ListMoreLikeGenre ListType = "more_like_genre"
)

// Valid reports whether the list type is recognized.
func (t ListType) Valid() bool {
	switch t {
	case ListTopPicks, ListBecauseYouOwn, ListMoreLikeGenre:
		return true
	}
	return false
}

// ListParams narrows a list type to a concrete request.
type ListParams struct {
	Artist string `json:"artist,omitempty"` // required for because_you_own
	Genre  string `json:"genre,omitempty"`  // required for more_like_genre
	Count  int    `json:"count,omitempty"`
}

// ScoreBreakdown is the scorer's output for one candidate.
type ScoreBreakdown struct {
	Value         float64            `json:"value"`
	Reasons       []string           `json:"reasons"`
	Contributions map[Signal]float64 `json:"contributions"`
}

// RecommendationCacheEntry is one scored candidate persisted under a
// (user, cache key) pair. Entries past ExpiresAt are logically absent
// even before the sweeper physically deletes them.
type RecommendationCacheEntry struct {
	UserID      uuid.UUID          `json:"user_id"`
	CacheKey    string             `json:"cache_key"`
	Fingerprint string             `json:"fingerprint"`
	Score       float64            `json:"score"`
	Reasons     []string           `json:"reasons"`
	Signals     map[Signal]float64 `json:"signals,omitempty"`
	ListType    ListType           `json:"list_type"`
	Candidate   CandidateAlbum     `json:"candidate"`
	CreatedAt   time.Time          `json:"created_at"`
	ExpiresAt   time.Time          `json:"expires_at"`
}

// Expired reports whether the entry is logically absent at the given time.
func (e *RecommendationCacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// RecommendedAlbum is one row of the public ranked-list contract.
type RecommendedAlbum struct {
	Fingerprint string         `json:"fingerprint"`
	Score       float64        `json:"score"`
	Reasons     []string       `json:"reasons"`
	Album       CandidateAlbum `json:"album"`
}

// RankedList is the engine's response to a recommendation request.
// Degraded marks lists for which no candidate could be produced, whether
// from total provider loss or from every candidate being filtered out;
// callers render it as an explicit empty state rather than an error.
type RankedList struct {
	UserID      uuid.UUID          `json:"user_id"`
	ListType    ListType           `json:"list_type"`
	Items       []RecommendedAlbum `json:"items"`
	Degraded    bool               `json:"degraded,omitempty"`
	CacheHit    bool               `json:"cache_hit"`
	GeneratedAt time.Time          `json:"generated_at"`
}
