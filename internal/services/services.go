package services

import (
	"github.com/sirupsen/logrus"

	"github.com/cratedig/spindle/internal/config"
	"github.com/cratedig/spindle/internal/database"
	"github.com/cratedig/spindle/internal/messaging"
	"github.com/cratedig/spindle/internal/store"
)

type Services struct {
	Health      *HealthService
	RateLimit   *RateLimitService
	FeedbackBus *messaging.FeedbackBus
	Store       *store.Postgres
	Cache       *RecommendationCache
	Engine      *RecommendationEngine
	Metrics     *MetricsCollector
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	metrics := NewMetricsCollector()
	healthService := NewHealthService(cfg, logger, db)
	rateLimitService := NewRateLimitService(&cfg.RateLimit, logger, db.Redis.Hot)

	pgStore := store.NewPostgres(db.PG, logger)

	var feedbackBus *messaging.FeedbackBus
	var publisher FeedbackPublisher
	if cfg.Kafka.Enabled {
		bus, err := messaging.NewFeedbackBus(&cfg.Kafka, logger)
		if err != nil {
			return nil, err
		}
		feedbackBus = bus
		publisher = bus
	}

	providers := make([]MetadataProvider, 0, len(cfg.Recommendation.Gateway.Providers))
	for _, id := range cfg.Recommendation.Gateway.Providers {
		p, err := NewHTTPProvider(id, "", "", cfg.Recommendation.Gateway.ProviderTimeout)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	gateway := NewSourceGateway(
		providers, pgStore,
		&cfg.Recommendation.Gateway,
		cfg.Recommendation.Caching.ExternalTTL,
		metrics, logger,
	)

	cache := NewRecommendationCache(
		pgStore,
		cfg.Recommendation.Caching.RecommendationTTL,
		cfg.Recommendation.Caching.SweepInterval,
		metrics, logger,
	)

	engine := NewRecommendationEngine(
		pgStore, pgStore, gateway,
		NewGraphRecommender(&cfg.Recommendation.Graph, logger),
		NewScorer(&cfg.Recommendation.Scoring, logger),
		NewWeightLearner(0.05, cfg.Recommendation.Scoring.ContributionThreshold, logger),
		cache,
		db.Redis.Warm,
		publisher,
		&cfg.Recommendation,
		metrics, logger,
	)

	return &Services{
		Health:      healthService,
		RateLimit:   rateLimitService,
		FeedbackBus: feedbackBus,
		Store:       pgStore,
		Cache:       cache,
		Engine:      engine,
		Metrics:     metrics,
	}, nil
}
