package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/cratedig/spindle/pkg/models"
)

func TestWeightLearner_PositiveFeedbackRaisesContributors(t *testing.T) {
	learner := NewWeightLearner(0.05, 0.05, testLogger())
	weights := models.DefaultWeights(uuid.New())

	contributions := map[models.Signal]float64{
		models.SignalArtist: 0.30, // above threshold
		models.SignalGenre:  0.12, // above threshold
		models.SignalEra:    0.01, // below threshold, untouched
	}

	changed := learner.ApplyFeedback(weights, models.FeedbackLike, contributions)

	assert.True(t, changed)
	assert.InDelta(t, 0.40, weights.Artist, 0.0001)
	assert.InDelta(t, 0.35, weights.Genre, 0.0001)
	assert.InDelta(t, 0.15, weights.Era, 0.0001, "sub-threshold signals are untouched")
	assert.InDelta(t, 0.08, weights.Label, 0.0001, "non-contributing signals are untouched")
	assert.Equal(t, 1, weights.TotalFeedback)
}

func TestWeightLearner_NegativeFeedbackLowersContributors(t *testing.T) {
	learner := NewWeightLearner(0.05, 0.05, testLogger())
	weights := models.DefaultWeights(uuid.New())

	contributions := map[models.Signal]float64{
		models.SignalArtist: 0.30,
	}

	changed := learner.ApplyFeedback(weights, models.FeedbackDislike, contributions)

	assert.True(t, changed)
	assert.InDelta(t, 0.30, weights.Artist, 0.0001)
}

func TestWeightLearner_ClampsAtBounds(t *testing.T) {
	learner := NewWeightLearner(0.05, 0.05, testLogger())
	weights := models.DefaultWeights(uuid.New())
	weights.Popularity = 0.02

	contributions := map[models.Signal]float64{
		models.SignalPopularity: 0.10,
	}

	learner.ApplyFeedback(weights, models.FeedbackDislike, contributions)
	assert.Equal(t, 0.0, weights.Popularity, "weights floor at zero")

	weights.Artist = 0.98
	learner.ApplyFeedback(weights, models.FeedbackLike, map[models.Signal]float64{
		models.SignalArtist: 0.30,
	})
	assert.Equal(t, 1.0, weights.Artist, "weights cap at one")
}

func TestWeightLearner_WishlistCountsPositive(t *testing.T) {
	learner := NewWeightLearner(0.05, 0.05, testLogger())
	weights := models.DefaultWeights(uuid.New())

	learner.ApplyFeedback(weights, models.FeedbackWishlist, map[models.Signal]float64{
		models.SignalGenre: 0.20,
	})
	assert.InDelta(t, 0.35, weights.Genre, 0.0001)
}

func TestWeightLearner_DislikeThenLikeBothApply(t *testing.T) {
	learner := NewWeightLearner(0.05, 0.05, testLogger())
	weights := models.DefaultWeights(uuid.New())
	contributions := map[models.Signal]float64{models.SignalArtist: 0.30}

	learner.ApplyFeedback(weights, models.FeedbackDislike, contributions)
	learner.ApplyFeedback(weights, models.FeedbackLike, contributions)

	// -0.05 then +0.05: back at the default, both applied in order.
	assert.InDelta(t, 0.35, weights.Artist, 0.0001)
	assert.Equal(t, 2, weights.TotalFeedback)
}

func TestWeightLearner_NoContributionsNoChange(t *testing.T) {
	learner := NewWeightLearner(0.05, 0.05, testLogger())
	weights := models.DefaultWeights(uuid.New())

	changed := learner.ApplyFeedback(weights, models.FeedbackLike, nil)

	assert.False(t, changed)
	assert.Equal(t, 0, weights.TotalFeedback,
		"feedback with no scoring record learns nothing")
}

func TestWeightLearner_LearningRateClamped(t *testing.T) {
	// Out-of-range constructor rates clamp into [0, 0.1].
	learner := NewWeightLearner(0.5, 0.05, testLogger())
	weights := models.DefaultWeights(uuid.New())
	weights.LearningRate = 0 // force the constructor's rate

	learner.ApplyFeedback(weights, models.FeedbackLike, map[models.Signal]float64{
		models.SignalArtist: 0.30,
	})
	assert.InDelta(t, 0.45, weights.Artist, 0.0001, "delta capped at 0.1")
}
