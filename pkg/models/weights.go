package models

import (
	"time"

	"github.com/google/uuid"
)

// Signal is one scoring dimension.
type Signal string

const (
	SignalArtist     Signal = "artist"
	SignalGenre      Signal = "genre"
	SignalEra        Signal = "era"
	SignalLabel      Signal = "label"
	SignalMood       Signal = "mood"
	SignalPopularity Signal = "popularity"
)

// Signals lists all scoring dimensions in a stable order.
func Signals() []Signal {
	return []Signal{SignalArtist, SignalGenre, SignalEra, SignalLabel, SignalMood, SignalPopularity}
}

// UserWeights holds the per-user multiplicative signal importances. The
// weights do not need to sum to 1; the scorer normalizes by the weights
// actually applicable at scoring time. Only the weight learner mutates
// this record.
type UserWeights struct {
	UserID        uuid.UUID `json:"user_id"`
	Artist        float64   `json:"artist"`
	Genre         float64   `json:"genre"`
	Era           float64   `json:"era"`
	Label         float64   `json:"label"`
	Mood          float64   `json:"mood"`
	Popularity    float64   `json:"popularity"`
	LearningRate  float64   `json:"learning_rate"`
	TotalFeedback int       `json:"total_feedback"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DefaultWeights returns the documented defaults assigned on a user's
// first recommendation request.
func DefaultWeights(userID uuid.UUID) *UserWeights {
	return &UserWeights{
		UserID:       userID,
		Artist:       0.35,
		Genre:        0.30,
		Era:          0.15,
		Label:        0.08,
		Mood:         0.07,
		Popularity:   0.05,
		LearningRate: 0.05,
		UpdatedAt:    time.Now().UTC(),
	}
}

// Get returns the weight for a signal.
func (w *UserWeights) Get(s Signal) float64 {
	switch s {
	case SignalArtist:
		return w.Artist
	case SignalGenre:
		return w.Genre
	case SignalEra:
		return w.Era
	case SignalLabel:
		return w.Label
	case SignalMood:
		return w.Mood
	case SignalPopularity:
		return w.Popularity
	}
	return 0
}

// Set assigns the weight for a signal.
func (w *UserWeights) Set(s Signal, v float64) {
	switch s {
	case SignalArtist:
		w.Artist = v
	case SignalGenre:
		w.Genre = v
	case SignalEra:
		w.Era = v
	case SignalLabel:
		w.Label = v
	case SignalMood:
		w.Mood = v
	case SignalPopularity:
		w.Popularity = v
	}
}

// Clamp forces every weight into [0,1] and the learning rate into [0,0.1].
func (w *UserWeights) Clamp() {
	for _, s := range Signals() {
		v := w.Get(s)
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		w.Set(s, v)
	}
	if w.LearningRate < 0 {
		w.LearningRate = 0
	} else if w.LearningRate > 0.1 {
		w.LearningRate = 0.1
	}
}
