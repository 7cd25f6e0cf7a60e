package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/cratedig/spindle/internal/services"
)

type Handlers struct {
	Health         *HealthHandler
	Recommendation *RecommendationHandler
	Feedback       *FeedbackHandler
}

func New(logger *logrus.Logger, services *services.Services) *Handlers {
	return &Handlers{
		Health:         NewHealthHandler(logger, services.Health),
		Recommendation: NewRecommendationHandler(services.Engine, logger),
		Feedback:       NewFeedbackHandler(services.Engine, logger),
	}
}
