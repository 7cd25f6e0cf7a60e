// Package store implements the engine's persistence capabilities on
// PostgreSQL: per-user signal weights, feedback events, the user-scoped
// recommendation cache and the shared external-response cache.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/cratedig/spindle/pkg/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Querier is the subset of pgxpool.Pool the store needs; pgxmock
// implements it for tests.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Postgres struct {
	db     Querier
	logger *logrus.Logger
}

func NewPostgres(db Querier, logger *logrus.Logger) *Postgres {
	return &Postgres{db: db, logger: logger}
}

const schema = `
CREATE TABLE IF NOT EXISTS owned_albums (
	user_id UUID NOT NULL,
	artist TEXT NOT NULL,
	title TEXT NOT NULL,
	genre_tags TEXT[] NOT NULL DEFAULT '{}',
	mood_tags TEXT[] NOT NULL DEFAULT '{}',
	year INTEGER NOT NULL DEFAULT 0,
	label TEXT NOT NULL DEFAULT '',
	country TEXT NOT NULL DEFAULT '',
	artist_ids JSONB NOT NULL DEFAULT '{}',
	PRIMARY KEY (user_id, artist, title)
);

CREATE TABLE IF NOT EXISTS user_weights (
	user_id UUID PRIMARY KEY,
	artist_weight DOUBLE PRECISION NOT NULL,
	genre_weight DOUBLE PRECISION NOT NULL,
	era_weight DOUBLE PRECISION NOT NULL,
	label_weight DOUBLE PRECISION NOT NULL,
	mood_weight DOUBLE PRECISION NOT NULL,
	popularity_weight DOUBLE PRECISION NOT NULL,
	learning_rate DOUBLE PRECISION NOT NULL,
	total_feedback INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS feedback_events (
	user_id UUID NOT NULL,
	fingerprint TEXT NOT NULL,
	kind TEXT NOT NULL,
	context TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, fingerprint, kind)
);

CREATE TABLE IF NOT EXISTS recommendation_cache (
	user_id UUID NOT NULL,
	cache_key TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	score DOUBLE PRECISION NOT NULL,
	reasons JSONB NOT NULL DEFAULT '[]',
	signals JSONB NOT NULL DEFAULT '{}',
	list_type TEXT NOT NULL,
	candidate JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, cache_key, fingerprint)
);
CREATE INDEX IF NOT EXISTS idx_recommendation_cache_expiry ON recommendation_cache (expires_at);

CREATE TABLE IF NOT EXISTS external_cache (
	cache_key TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	payload JSONB NOT NULL,
	hit_count BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_external_cache_expiry ON external_cache (expires_at);
`

// EnsureSchema creates the engine's tables when they do not exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}

// GetOwnedAlbums returns the user's collection, read-only.
func (p *Postgres) GetOwnedAlbums(ctx context.Context, userID uuid.UUID) ([]models.OwnedAlbum, error) {
	rows, err := p.db.Query(ctx, `
		SELECT artist, title, genre_tags, mood_tags, year, label, country, artist_ids
		FROM owned_albums
		WHERE user_id = $1
		ORDER BY artist, title`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying owned albums: %w", err)
	}
	defer rows.Close()

	var albums []models.OwnedAlbum
	for rows.Next() {
		var a models.OwnedAlbum
		var artistIDs []byte
		if err := rows.Scan(&a.Artist, &a.Title, &a.GenreTags, &a.MoodTags, &a.Year, &a.Label, &a.Country, &artistIDs); err != nil {
			return nil, fmt.Errorf("scanning owned album: %w", err)
		}
		if len(artistIDs) > 0 {
			if err := json.Unmarshal(artistIDs, &a.ArtistIDs); err != nil {
				p.logger.WithError(err).WithField("artist", a.Artist).Warn("Skipping malformed artist_ids")
			}
		}
		albums = append(albums, a)
	}
	return albums, rows.Err()
}

// GetWeights returns the user's signal weights, or ErrNotFound before the
// first recommendation request created them.
func (p *Postgres) GetWeights(ctx context.Context, userID uuid.UUID) (*models.UserWeights, error) {
	w := &models.UserWeights{UserID: userID}
	err := p.db.QueryRow(ctx, `
		SELECT artist_weight, genre_weight, era_weight, label_weight, mood_weight,
		       popularity_weight, learning_rate, total_feedback, updated_at
		FROM user_weights
		WHERE user_id = $1`, userID).
		Scan(&w.Artist, &w.Genre, &w.Era, &w.Label, &w.Mood,
			&w.Popularity, &w.LearningRate, &w.TotalFeedback, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying weights: %w", err)
	}
	return w, nil
}

// PutWeights upserts the user's weights atomically; concurrent feedback
// applications resolve last-writer-wins.
func (p *Postgres) PutWeights(ctx context.Context, w *models.UserWeights) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO user_weights (user_id, artist_weight, genre_weight, era_weight,
			label_weight, mood_weight, popularity_weight, learning_rate, total_feedback, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			artist_weight = EXCLUDED.artist_weight,
			genre_weight = EXCLUDED.genre_weight,
			era_weight = EXCLUDED.era_weight,
			label_weight = EXCLUDED.label_weight,
			mood_weight = EXCLUDED.mood_weight,
			popularity_weight = EXCLUDED.popularity_weight,
			learning_rate = EXCLUDED.learning_rate,
			total_feedback = EXCLUDED.total_feedback,
			updated_at = EXCLUDED.updated_at`,
		w.UserID, w.Artist, w.Genre, w.Era, w.Label, w.Mood,
		w.Popularity, w.LearningRate, w.TotalFeedback, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting weights: %w", err)
	}
	return nil
}

// UpsertFeedback records a feedback event. Repeated identical feedback
// refreshes updated_at on the existing row; the returned bool reports
// whether a new row was inserted, which gates weight learning.
func (p *Postgres) UpsertFeedback(ctx context.Context, ev *models.FeedbackEvent) (bool, error) {
	var inserted bool
	// xmax = 0 distinguishes a fresh insert from a conflict update.
	err := p.db.QueryRow(ctx, `
		INSERT INTO feedback_events (user_id, fingerprint, kind, context, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id, fingerprint, kind) DO UPDATE SET
			context = EXCLUDED.context,
			updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0)`,
		ev.UserID, ev.Fingerprint, string(ev.Kind), ev.Context, ev.CreatedAt).
		Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upserting feedback: %w", err)
	}
	return inserted, nil
}

// GetHiddenFingerprints returns fingerprints the user has rejected, so the
// engine can exclude them from future lists.
func (p *Postgres) GetHiddenFingerprints(ctx context.Context, userID uuid.UUID) (map[string]bool, error) {
	rows, err := p.db.Query(ctx, `
		SELECT DISTINCT fingerprint
		FROM feedback_events
		WHERE user_id = $1 AND kind IN ('dislike', 'hide', 'not_interested')`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying hidden fingerprints: %w", err)
	}
	defer rows.Close()

	hidden := make(map[string]bool)
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("scanning hidden fingerprint: %w", err)
		}
		hidden[fp] = true
	}
	return hidden, rows.Err()
}

// GetCacheEntries returns all stored entries for the key, newest score
// first. Expiry filtering is the cache layer's job so stale rows stay
// observable to the sweeper.
func (p *Postgres) GetCacheEntries(ctx context.Context, userID uuid.UUID, cacheKey string) ([]models.RecommendationCacheEntry, error) {
	rows, err := p.db.Query(ctx, `
		SELECT fingerprint, score, reasons, signals, list_type, candidate, created_at, expires_at
		FROM recommendation_cache
		WHERE user_id = $1 AND cache_key = $2
		ORDER BY score DESC, fingerprint`, userID, cacheKey)
	if err != nil {
		return nil, fmt.Errorf("querying cache entries: %w", err)
	}
	defer rows.Close()

	var entries []models.RecommendationCacheEntry
	for rows.Next() {
		e := models.RecommendationCacheEntry{UserID: userID, CacheKey: cacheKey}
		var reasons, signals, candidate []byte
		if err := rows.Scan(&e.Fingerprint, &e.Score, &reasons, &signals, &e.ListType, &candidate, &e.CreatedAt, &e.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scanning cache entry: %w", err)
		}
		if err := json.Unmarshal(reasons, &e.Reasons); err != nil {
			return nil, fmt.Errorf("decoding cached reasons: %w", err)
		}
		if err := json.Unmarshal(signals, &e.Signals); err != nil {
			return nil, fmt.Errorf("decoding cached signals: %w", err)
		}
		if err := json.Unmarshal(candidate, &e.Candidate); err != nil {
			return nil, fmt.Errorf("decoding cached candidate: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PutCacheEntries replaces the stored list for (user, cacheKey) in one
// transaction.
func (p *Postgres) PutCacheEntries(ctx context.Context, userID uuid.UUID, cacheKey string, entries []models.RecommendationCacheEntry) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning cache write: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM recommendation_cache WHERE user_id = $1 AND cache_key = $2`,
		userID, cacheKey); err != nil {
		return fmt.Errorf("clearing cache entries: %w", err)
	}

	for _, e := range entries {
		reasons, err := json.Marshal(e.Reasons)
		if err != nil {
			return fmt.Errorf("encoding reasons: %w", err)
		}
		signals, err := json.Marshal(e.Signals)
		if err != nil {
			return fmt.Errorf("encoding signals: %w", err)
		}
		candidate, err := json.Marshal(e.Candidate)
		if err != nil {
			return fmt.Errorf("encoding candidate: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO recommendation_cache
				(user_id, cache_key, fingerprint, score, reasons, signals, list_type, candidate, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (user_id, cache_key, fingerprint) DO UPDATE SET
				score = EXCLUDED.score,
				reasons = EXCLUDED.reasons,
				signals = EXCLUDED.signals,
				list_type = EXCLUDED.list_type,
				candidate = EXCLUDED.candidate,
				created_at = EXCLUDED.created_at,
				expires_at = EXCLUDED.expires_at`,
			userID, cacheKey, e.Fingerprint, e.Score, reasons, signals, string(e.ListType), candidate, e.CreatedAt, e.ExpiresAt); err != nil {
			return fmt.Errorf("inserting cache entry: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// DeleteUserCache drops every cached list for the user, forcing a fresh
// computation on their next request.
func (p *Postgres) DeleteUserCache(ctx context.Context, userID uuid.UUID) error {
	if _, err := p.db.Exec(ctx, `
		DELETE FROM recommendation_cache WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("invalidating user cache: %w", err)
	}
	return nil
}

// GetCandidateSignals returns the signal contributions stored with the
// most recent cached scoring of the fingerprint for this user. The weight
// learner uses them to decide which weights a feedback event nudges.
func (p *Postgres) GetCandidateSignals(ctx context.Context, userID uuid.UUID, fp string) (map[models.Signal]float64, error) {
	var raw []byte
	err := p.db.QueryRow(ctx, `
		SELECT signals
		FROM recommendation_cache
		WHERE user_id = $1 AND fingerprint = $2
		ORDER BY created_at DESC
		LIMIT 1`, userID, fp).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying candidate signals: %w", err)
	}

	signals := make(map[models.Signal]float64)
	if err := json.Unmarshal(raw, &signals); err != nil {
		return nil, fmt.Errorf("decoding candidate signals: %w", err)
	}
	return signals, nil
}

// GetExternalCache returns the shared provider response for the key if it
// has not expired, bumping its hit counter in the same statement.
func (p *Postgres) GetExternalCache(ctx context.Context, cacheKey string, now time.Time) (*models.ExternalResponseCacheEntry, error) {
	e := &models.ExternalResponseCacheEntry{CacheKey: cacheKey}
	var payload []byte
	err := p.db.QueryRow(ctx, `
		UPDATE external_cache
		SET hit_count = hit_count + 1
		WHERE cache_key = $1 AND expires_at > $2
		RETURNING provider, payload, hit_count, created_at, expires_at`,
		cacheKey, now).
		Scan(&e.Provider, &payload, &e.HitCount, &e.CreatedAt, &e.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying external cache: %w", err)
	}
	e.Payload = payload
	return e, nil
}

// PutExternalCache stores a fresh provider response under the shared key,
// resetting the hit counter.
func (p *Postgres) PutExternalCache(ctx context.Context, e *models.ExternalResponseCacheEntry) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO external_cache (cache_key, provider, payload, hit_count, created_at, expires_at)
		VALUES ($1, $2, $3, 0, $4, $5)
		ON CONFLICT (cache_key) DO UPDATE SET
			provider = EXCLUDED.provider,
			payload = EXCLUDED.payload,
			hit_count = 0,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at`,
		e.CacheKey, e.Provider, []byte(e.Payload), e.CreatedAt, e.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upserting external cache: %w", err)
	}
	return nil
}

// DeleteExpired physically removes expired rows from both cache tables and
// returns the number of rows reaped.
func (p *Postgres) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64

	tag, err := p.db.Exec(ctx, `DELETE FROM recommendation_cache WHERE expires_at <= $1`, now)
	if err != nil {
		return total, fmt.Errorf("sweeping recommendation cache: %w", err)
	}
	total += tag.RowsAffected()

	tag, err = p.db.Exec(ctx, `DELETE FROM external_cache WHERE expires_at <= $1`, now)
	if err != nil {
		return total, fmt.Errorf("sweeping external cache: %w", err)
	}
	total += tag.RowsAffected()

	return total, nil
}
