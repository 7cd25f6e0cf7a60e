package services

import (
	"github.com/sirupsen/logrus"

	"github.com/cratedig/spindle/pkg/models"
)

// WeightLearner nudges a user's per-signal weights in response to
// explicit feedback. Only signals that materially contributed to the
// recommendation being reacted to are adjusted.
type WeightLearner struct {
	learningRate float64
	threshold    float64
	logger       *logrus.Logger
}

func NewWeightLearner(learningRate, contributionThreshold float64, logger *logrus.Logger) *WeightLearner {
	if learningRate < 0 {
		learningRate = 0
	}
	if learningRate > 0.1 {
		learningRate = 0.1
	}
	return &WeightLearner{
		learningRate: learningRate,
		threshold:    contributionThreshold,
		logger:       logger,
	}
}

// ApplyFeedback mutates weights in place: contributing signals move up on
// positive feedback and down on negative, then everything is clamped back
// into range. Returns true when at least one weight changed.
func (l *WeightLearner) ApplyFeedback(weights *models.UserWeights, kind models.FeedbackKind, contributions map[models.Signal]float64) bool {
	if len(contributions) == 0 {
		return false
	}

	rate := weights.LearningRate
	if rate <= 0 || rate > 0.1 {
		rate = l.learningRate
	}
	delta := rate
	if !kind.Positive() {
		delta = -rate
	}

	changed := false
	for _, signal := range models.Signals() {
		contribution, ok := contributions[signal]
		if !ok || contribution < l.threshold {
			continue
		}
		before := weights.Get(signal)
		weights.Set(signal, before+delta)
		if weights.Get(signal) != before {
			changed = true
		}
	}
	weights.Clamp()
	weights.TotalFeedback++

	if changed {
		l.logger.WithFields(logrus.Fields{
			"user_id":  weights.UserID,
			"feedback": string(kind),
		}).Debug("Adjusted signal weights from feedback")
	}
	return changed
}
