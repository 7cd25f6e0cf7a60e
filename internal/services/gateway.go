package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/cratedig/spindle/internal/config"
	"github.com/cratedig/spindle/internal/validation"
	"github.com/cratedig/spindle/pkg/fingerprint"
	"github.com/cratedig/spindle/pkg/models"
)

// SourceGateway owns the fan-out, timeout, retry and caching policy over
// the configured metadata providers. The providers themselves are
// capability interfaces; the gateway never does HTTP directly.
type SourceGateway struct {
	providers []MetadataProvider
	store     PersistentStore
	limiters  map[string]*rate.Limiter
	config    *config.GatewayConfig
	ttl       time.Duration
	metrics   *MetricsCollector
	logger    *logrus.Logger
}

func NewSourceGateway(
	providers []MetadataProvider,
	store PersistentStore,
	cfg *config.GatewayConfig,
	externalTTL time.Duration,
	metrics *MetricsCollector,
	logger *logrus.Logger,
) *SourceGateway {
	limiters := make(map[string]*rate.Limiter, len(providers))
	for _, p := range providers {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiters[p.ID()] = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), burst)
	}
	return &SourceGateway{
		providers: providers,
		store:     store,
		limiters:  limiters,
		config:    cfg,
		ttl:       externalTTL,
		metrics:   metrics,
		logger:    logger,
	}
}

// BuildQuery derives the provider query for a list type. Artists and tags
// are normalized and sorted so the query signature, and therefore the
// shared cache key, is deterministic.
func BuildQuery(profile *models.UserTasteProfile, listType models.ListType, params models.ListParams, limit int) ProviderQuery {
	q := ProviderQuery{Limit: limit}

	switch listType {
	case models.ListBecauseYouOwn:
		q.Kind = QuerySimilarArtists
		q.Artists = []string{fingerprint.Normalize(params.Artist)}
	case models.ListMoreLikeGenre:
		q.Kind = QueryTopByTags
		q.Tags = []string{fingerprint.Normalize(params.Genre)}
	default: // top picks
		if profile.Empty() {
			q.Kind = QueryPopular
			break
		}
		q.Kind = QuerySimilarArtists
		for artist := range profile.Artists {
			q.Artists = append(q.Artists, artist)
		}
		sort.Strings(q.Artists)
		for tag := range profile.TagFreq {
			q.Tags = append(q.Tags, tag)
		}
		sort.Strings(q.Tags)
	}
	return q
}

// FetchCandidates fans out to every provider in parallel, each under its
// own timeout, and merges the results by fingerprint. A provider failure
// or timeout is recorded and the remaining providers' results are kept;
// only the loss of every provider is an error.
func (g *SourceGateway) FetchCandidates(ctx context.Context, q ProviderQuery) ([]models.CandidateAlbum, error) {
	if len(g.providers) == 0 {
		return nil, fmt.Errorf("no providers configured: %w", ErrProviderUnavailable)
	}

	type providerResult struct {
		provider string
		albums   []models.CandidateAlbum
		err      error
	}

	results := make(chan providerResult, len(g.providers))
	var wg sync.WaitGroup
	for _, provider := range g.providers {
		wg.Add(1)
		go func(p MetadataProvider) {
			defer wg.Done()
			albums, err := g.fetchFromProvider(ctx, p, q)
			results <- providerResult{provider: p.ID(), albums: albums, err: err}
		}(provider)
	}
	wg.Wait()
	close(results)

	var all []models.CandidateAlbum
	failures := 0
	for res := range results {
		if res.err != nil {
			failures++
			g.metrics.ProviderFailure(res.provider)
			g.logger.WithError(res.err).WithField("provider", res.provider).
				Warn("Provider fetch failed, continuing with partial results")
			continue
		}
		all = append(all, res.albums...)
	}

	if failures == len(g.providers) {
		return nil, fmt.Errorf("all %d providers failed: %w", failures, ErrProviderUnavailable)
	}

	return g.merge(all), nil
}

// fetchFromProvider serves one provider's share of the fan-out: shared
// cache first, then a rate-limited, retried call under the per-provider
// timeout.
func (g *SourceGateway) fetchFromProvider(ctx context.Context, p MetadataProvider, q ProviderQuery) ([]models.CandidateAlbum, error) {
	cacheKey := p.ID() + ":" + q.Signature()

	if entry, err := g.store.GetExternalCache(ctx, cacheKey, time.Now()); err == nil {
		var albums []models.CandidateAlbum
		if err := json.Unmarshal(entry.Payload, &albums); err == nil {
			g.metrics.ExternalCacheHit(p.ID())
			return g.stamp(p.ID(), albums), nil
		}
		g.logger.WithField("provider", p.ID()).Warn("Discarding undecodable external cache payload")
	}
	g.metrics.ExternalCacheMiss(p.ID())

	timeout := g.config.ProviderTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if limiter := g.limiters[p.ID()]; limiter != nil {
		if err := limiter.Wait(callCtx); err != nil {
			return nil, fmt.Errorf("rate limit wait for %s: %w", p.ID(), ErrProviderUnavailable)
		}
	}

	var resp *ProviderResponse
	err := retry.Do(
		func() error {
			var qerr error
			resp, qerr = p.Query(callCtx, q)
			return qerr
		},
		retry.Attempts(g.retryAttempts()),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.Context(callCtx),
	)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %v: %w", p.ID(), err, ErrProviderUnavailable)
	}

	if len(resp.Raw) > 0 {
		if err := validation.ValidateProviderPayload(resp.Raw); err != nil {
			return nil, fmt.Errorf("invalid payload from %s: %v: %w", p.ID(), err, ErrProviderUnavailable)
		}
	}

	payload, err := json.Marshal(resp.Albums)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", p.ID(), err)
	}
	now := time.Now()
	cacheErr := g.store.PutExternalCache(ctx, &models.ExternalResponseCacheEntry{
		CacheKey:  cacheKey,
		Provider:  p.ID(),
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(g.ttl),
	})
	if cacheErr != nil {
		// Degraded mode: the response is still usable uncached.
		g.logger.WithError(fmt.Errorf("%v: %w", cacheErr, ErrCacheUnavailable)).
			WithField("provider", p.ID()).
			Warn("Failed to store external cache entry")
	}

	return g.stamp(p.ID(), resp.Albums), nil
}

func (g *SourceGateway) retryAttempts() uint {
	if g.config.RetryAttempts == 0 {
		return 1
	}
	return g.config.RetryAttempts
}

// stamp assigns fingerprints and source attribution to one provider's
// albums.
func (g *SourceGateway) stamp(providerID string, albums []models.CandidateAlbum) []models.CandidateAlbum {
	stamped := make([]models.CandidateAlbum, 0, len(albums))
	for _, a := range albums {
		a.Fingerprint = fingerprint.Key(a.Artist, a.Title)
		if len(a.Sources) == 0 {
			a.Sources = []string{providerID}
		}
		stamped = append(stamped, a)
	}
	return stamped
}

// merge deduplicates candidates across providers by fingerprint, unioning
// tags and similar-artist links instead of picking one provider's view.
func (g *SourceGateway) merge(albums []models.CandidateAlbum) []models.CandidateAlbum {
	byFingerprint := make(map[string]*models.CandidateAlbum)
	var order []string

	for _, a := range albums {
		existing, ok := byFingerprint[a.Fingerprint]
		if !ok {
			merged := a
			byFingerprint[a.Fingerprint] = &merged
			order = append(order, a.Fingerprint)
			continue
		}

		existing.GenreTags = unionTags(existing.GenreTags, a.GenreTags)
		existing.MoodTags = unionTags(existing.MoodTags, a.MoodTags)
		existing.Sources = unionTags(existing.Sources, a.Sources)

		if a.HasPopularity && (!existing.HasPopularity || a.Popularity > existing.Popularity) {
			existing.Popularity = a.Popularity
			existing.HasPopularity = true
		}
		if existing.Year == 0 {
			existing.Year = a.Year
		}
		if existing.Label == "" {
			existing.Label = a.Label
		}
		if existing.Country == "" {
			existing.Country = a.Country
		}
		if existing.CatalogNumber == "" {
			existing.CatalogNumber = a.CatalogNumber
		}
		if existing.Format == "" {
			existing.Format = a.Format
		}
		for artist, similarity := range a.SimilarTo {
			if existing.SimilarTo == nil {
				existing.SimilarTo = make(map[string]float64)
			}
			if similarity > existing.SimilarTo[artist] {
				existing.SimilarTo[artist] = similarity
			} else if _, seen := existing.SimilarTo[artist]; !seen {
				existing.SimilarTo[artist] = similarity
			}
		}
	}

	merged := make([]models.CandidateAlbum, 0, len(order))
	for _, fp := range order {
		merged = append(merged, *byFingerprint[fp])
	}
	return merged
}

// unionTags merges two tag lists case-insensitively, preserving first
// appearance order and spelling.
func unionTags(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, tag := range list {
			key := fingerprint.Normalize(tag)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, tag)
		}
	}
	return out
}
