package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/cratedig/spindle/internal/config"
	"github.com/cratedig/spindle/pkg/fingerprint"
	"github.com/cratedig/spindle/pkg/models"
)

// RecommendationEngine orchestrates the full pipeline: collection profile,
// provider fan-out, graph expansion, scoring, caching, and feedback-driven
// weight learning.
type RecommendationEngine struct {
	collection CollectionStore
	store      PersistentStore
	gateway    *SourceGateway
	graph      *GraphRecommender
	scorer     *Scorer
	learner    *WeightLearner
	cache      *RecommendationCache
	memo       *redis.Client // short-lived rendered-list memo, may be nil
	publisher  FeedbackPublisher
	config     *config.RecommendationConfig
	metrics    *MetricsCollector
	logger     *logrus.Logger
}

func NewRecommendationEngine(
	collection CollectionStore,
	store PersistentStore,
	gateway *SourceGateway,
	graph *GraphRecommender,
	scorer *Scorer,
	learner *WeightLearner,
	cache *RecommendationCache,
	memo *redis.Client,
	publisher FeedbackPublisher,
	cfg *config.RecommendationConfig,
	metrics *MetricsCollector,
	logger *logrus.Logger,
) *RecommendationEngine {
	return &RecommendationEngine{
		collection: collection,
		store:      store,
		gateway:    gateway,
		graph:      graph,
		scorer:     scorer,
		learner:    learner,
		cache:      cache,
		memo:       memo,
		publisher:  publisher,
		config:     cfg,
		metrics:    metrics,
		logger:     logger,
	}
}

// BuildCacheKey derives the durable cache key for a request. Parameters
// are normalized first so equivalent requests share one key.
func BuildCacheKey(listType models.ListType, params models.ListParams) string {
	switch listType {
	case models.ListBecauseYouOwn:
		return string(listType) + ":" + fingerprint.Normalize(params.Artist)
	case models.ListMoreLikeGenre:
		return string(listType) + ":" + fingerprint.Normalize(params.Genre)
	default:
		return string(listType)
	}
}

// Recommend serves one ranked list. Lookup order is the short-lived
// rendered memo, then the durable scored cache, then a full computation
// shared across concurrent callers. Total provider loss yields an empty
// degraded list, never an error.
func (e *RecommendationEngine) Recommend(ctx context.Context, userID uuid.UUID, listType models.ListType, params models.ListParams) (*models.RankedList, error) {
	start := time.Now()
	defer func() { e.metrics.RecommendationLatency(time.Since(start)) }()

	if !listType.Valid() {
		return nil, fmt.Errorf("%q: %w", listType, ErrInvalidListType)
	}
	if listType == models.ListBecauseYouOwn && params.Artist == "" {
		return nil, fmt.Errorf("artist parameter required: %w", ErrInvalidListType)
	}
	if listType == models.ListMoreLikeGenre && params.Genre == "" {
		return nil, fmt.Errorf("genre parameter required: %w", ErrInvalidListType)
	}
	e.metrics.RecommendationRequest(string(listType))

	cacheKey := BuildCacheKey(listType, params)
	memoKey := e.memoKey(userID, cacheKey, params.Count)

	if list := e.readMemo(ctx, memoKey); list != nil {
		return list, nil
	}

	entries, cacheHit, err := e.cache.GetOrCompute(ctx, userID, cacheKey, func(computeCtx context.Context) ([]models.RecommendationCacheEntry, error) {
		return e.compute(computeCtx, userID, listType, params, cacheKey)
	})
	if errors.Is(err, ErrProviderUnavailable) {
		e.metrics.DegradedResponse()
		e.logger.WithFields(logrus.Fields{
			"user_id":   userID,
			"list_type": string(listType),
		}).Warn("All providers unavailable, serving degraded empty list")
		return &models.RankedList{
			UserID:      userID,
			ListType:    listType,
			Items:       []models.RecommendedAlbum{},
			Degraded:    true,
			CacheHit:    false,
			GeneratedAt: time.Now().UTC(),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("computing recommendations: %w", err)
	}

	list := e.renderList(userID, listType, params, entries, cacheHit)
	if len(list.Items) == 0 {
		// Providers answered but nothing survived filtering: surface it
		// the same way as total provider loss, and keep it out of the
		// memo so a new candidate shows up as soon as one exists.
		list.Degraded = true
		e.metrics.DegradedResponse()
		return list, nil
	}
	e.writeMemo(ctx, memoKey, list)
	return list, nil
}

// compute runs the pipeline that produces fresh scored entries. It runs
// at most once per (user, cache key) across concurrent callers.
func (e *RecommendationEngine) compute(ctx context.Context, userID uuid.UUID, listType models.ListType, params models.ListParams, cacheKey string) ([]models.RecommendationCacheEntry, error) {
	owned, err := e.collection.GetOwnedAlbums(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading collection: %w", err)
	}

	subset := owned
	switch listType {
	case models.ListBecauseYouOwn:
		subset = FilterByArtist(owned, params.Artist)
	case models.ListMoreLikeGenre:
		subset = FilterByGenre(owned, params.Genre)
	}
	profile := BuildProfile(subset)

	weights, err := e.loadWeights(ctx, userID)
	if err != nil {
		return nil, err
	}

	query := BuildQuery(profile, listType, params, e.config.Gateway.CandidateLimit)
	candidates, err := e.gateway.FetchCandidates(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates, err = e.filterCandidates(ctx, userID, owned, candidates)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []models.RecommendationCacheEntry{}, nil
	}

	sg := e.graph.Build(owned, candidates)
	reach := e.graph.Reachability(sg, profile)

	scored := e.scorer.ScoreBatch(candidates, profile, weights, reach)

	if listType == models.ListTopPicks {
		discovered := e.graph.Discoveries(reach, candidates, profile)
		for i := range scored {
			if discovered[scored[i].Candidate.Fingerprint] {
				scored[i].Breakdown.Reasons = append(scored[i].Breakdown.Reasons, "a new direction for your collection")
			}
		}
	}

	// The full scored set is cached; the requested count applies only at
	// render time. The cache key does not carry the count, so truncating
	// here would pin the first caller's count on every later reader.
	if limit := e.config.Gateway.CandidateLimit; limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}

	now := time.Now().UTC()
	entries := make([]models.RecommendationCacheEntry, 0, len(scored))
	for _, sc := range scored {
		entries = append(entries, models.RecommendationCacheEntry{
			UserID:      userID,
			CacheKey:    cacheKey,
			Fingerprint: sc.Candidate.Fingerprint,
			Score:       sc.Breakdown.Value,
			Reasons:     sc.Breakdown.Reasons,
			Signals:     sc.Breakdown.Contributions,
			ListType:    listType,
			Candidate:   sc.Candidate,
			CreatedAt:   now,
		})
	}
	return entries, nil
}

// filterCandidates removes albums the user already owns and anything they
// asked to never see again.
func (e *RecommendationEngine) filterCandidates(ctx context.Context, userID uuid.UUID, owned []models.OwnedAlbum, candidates []models.CandidateAlbum) ([]models.CandidateAlbum, error) {
	hidden, err := e.store.GetHiddenFingerprints(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading hidden fingerprints: %w", err)
	}

	ownedSet := make(map[string]bool, len(owned))
	for _, a := range owned {
		ownedSet[fingerprint.Key(a.Artist, a.Title)] = true
	}

	kept := candidates[:0]
	for _, c := range candidates {
		if ownedSet[c.Fingerprint] || hidden[c.Fingerprint] {
			continue
		}
		kept = append(kept, c)
	}
	return kept, nil
}

// loadWeights fetches the user's signal weights, persisting the defaults
// on first contact so later feedback has a row to learn against.
func (e *RecommendationEngine) loadWeights(ctx context.Context, userID uuid.UUID) (*models.UserWeights, error) {
	weights, err := e.store.GetWeights(ctx, userID)
	if err == nil {
		return weights, nil
	}
	if !isNotFound(err) {
		return nil, fmt.Errorf("loading weights: %w", err)
	}

	weights = models.DefaultWeights(userID)
	if perr := e.store.PutWeights(ctx, weights); perr != nil {
		e.logger.WithError(perr).WithField("user_id", userID).
			Warn("Failed to persist default weights")
	}
	return weights, nil
}

// SubmitFeedback validates and records one feedback event. With a message
// bus configured the event is published and applied by the consumer;
// otherwise it is applied inline.
func (e *RecommendationEngine) SubmitFeedback(ctx context.Context, userID uuid.UUID, fp string, kind models.FeedbackKind, contextLabel string) error {
	if !kind.Valid() {
		return fmt.Errorf("%q: %w", kind, ErrInvalidFeedbackKind)
	}
	if fp == "" {
		return fmt.Errorf("empty fingerprint: %w", ErrInvalidFeedbackKind)
	}
	e.metrics.FeedbackEvent(string(kind))

	ev := models.FeedbackEvent{
		UserID:      userID,
		Fingerprint: fp,
		Kind:        kind,
		Context:     contextLabel,
		CreatedAt:   time.Now().UTC(),
	}

	if e.publisher != nil {
		err := e.publisher.Publish(ctx, ev)
		if err == nil {
			return nil
		}
		e.logger.WithError(err).Warn("Feedback publish failed, applying inline")
	}
	return e.ApplyFeedbackEvent(ctx, ev)
}

// ApplyFeedbackEvent persists one feedback event and, when it is a fresh
// reaction rather than a repeat, nudges the user's weights by the signals
// that put the album in front of them. Cached lists for the user are
// invalidated either way the weights move.
func (e *RecommendationEngine) ApplyFeedbackEvent(ctx context.Context, ev models.FeedbackEvent) error {
	inserted, err := e.store.UpsertFeedback(ctx, &ev)
	if err != nil {
		return fmt.Errorf("recording feedback: %w", err)
	}
	if !inserted {
		// Repeat of a reaction already counted; the row's timestamp was
		// refreshed and nothing else changes.
		return nil
	}

	weights, err := e.loadWeights(ctx, ev.UserID)
	if err != nil {
		return err
	}

	signals, err := e.store.GetCandidateSignals(ctx, ev.UserID, ev.Fingerprint)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("loading candidate signals: %w", err)
	}

	e.learner.ApplyFeedback(weights, ev.Kind, signals)
	weights.UpdatedAt = time.Now().UTC()
	if err := e.store.PutWeights(ctx, weights); err != nil {
		return fmt.Errorf("persisting learned weights: %w", err)
	}

	e.invalidateUserCaches(ctx, ev.UserID)
	return nil
}

// invalidateUserCaches drops both cache tiers for the user so their next
// request reflects the adjusted weights.
func (e *RecommendationEngine) invalidateUserCaches(ctx context.Context, userID uuid.UUID) {
	if err := e.cache.Invalidate(ctx, userID); err != nil {
		e.logger.WithError(err).WithField("user_id", userID).
			Warn("Failed to invalidate recommendation cache")
	}
	if e.memo == nil {
		return
	}
	pattern := "rec:" + userID.String() + ":*"
	iter := e.memo.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := e.memo.Del(ctx, iter.Val()).Err(); err != nil {
			e.logger.WithError(err).Warn("Failed to delete memo key")
		}
	}
	if err := iter.Err(); err != nil {
		e.logger.WithError(err).Warn("Memo scan failed during invalidation")
	}
}

func (e *RecommendationEngine) renderList(userID uuid.UUID, listType models.ListType, params models.ListParams, entries []models.RecommendationCacheEntry, cacheHit bool) *models.RankedList {
	limit := params.Count
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}

	items := make([]models.RecommendedAlbum, 0, limit)
	for _, entry := range entries[:limit] {
		items = append(items, models.RecommendedAlbum{
			Fingerprint: entry.Fingerprint,
			Score:       entry.Score,
			Reasons:     entry.Reasons,
			Album:       entry.Candidate,
		})
	}
	return &models.RankedList{
		UserID:      userID,
		ListType:    listType,
		Items:       items,
		CacheHit:    cacheHit,
		GeneratedAt: time.Now().UTC(),
	}
}

// memoKey carries the requested count, unlike the durable cache key: the
// memo stores a rendered (already truncated) list, so requests for
// different counts must not share an entry.
func (e *RecommendationEngine) memoKey(userID uuid.UUID, cacheKey string, count int) string {
	return "rec:" + userID.String() + ":" + cacheKey + ":" + strconv.Itoa(count)
}

func (e *RecommendationEngine) readMemo(ctx context.Context, key string) *models.RankedList {
	if e.memo == nil {
		return nil
	}
	raw, err := e.memo.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			e.logger.WithError(err).Debug("Memo read failed")
		}
		return nil
	}
	var list models.RankedList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	list.CacheHit = true
	return &list
}

func (e *RecommendationEngine) writeMemo(ctx context.Context, key string, list *models.RankedList) {
	if e.memo == nil {
		return
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return
	}
	if err := e.memo.Set(ctx, key, raw, e.config.Caching.ResultMemoTTL).Err(); err != nil {
		e.logger.WithError(err).Debug("Memo write failed")
	}
}
