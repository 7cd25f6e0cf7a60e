package models

import (
	"time"

	"github.com/google/uuid"
)

// FeedbackKind classifies a feedback event.
type FeedbackKind string

const (
	FeedbackLike          FeedbackKind = "like"
	FeedbackDislike       FeedbackKind = "dislike"
	FeedbackHide          FeedbackKind = "hide"
	FeedbackWishlist      FeedbackKind = "wishlist"
	FeedbackNotInterested FeedbackKind = "not_interested"
)

// Valid reports whether the kind is one of the recognized values.
func (k FeedbackKind) Valid() bool {
	switch k {
	case FeedbackLike, FeedbackDislike, FeedbackHide, FeedbackWishlist, FeedbackNotInterested:
		return true
	}
	return false
}

// Positive reports whether the kind should raise contributing weights.
// Negative kinds lower them by the same step.
func (k FeedbackKind) Positive() bool {
	return k == FeedbackLike || k == FeedbackWishlist
}

// FeedbackEvent records one user reaction to a recommended album. At most
// one event exists per (user, fingerprint, kind); re-submitting the same
// reaction refreshes UpdatedAt instead of creating a new row.
type FeedbackEvent struct {
	UserID      uuid.UUID    `json:"user_id"`
	Fingerprint string       `json:"fingerprint"`
	Kind        FeedbackKind `json:"kind"`
	Context     string       `json:"context,omitempty"` // list type or UI surface that produced the click
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// FeedbackRequest is the wire payload for submitting feedback.
type FeedbackRequest struct {
	UserID      uuid.UUID `json:"user_id" validate:"required"`
	Fingerprint string    `json:"fingerprint" validate:"required"`
	Kind        string    `json:"kind" validate:"required,oneof=like dislike hide wishlist not_interested"`
	Context     string    `json:"context,omitempty" validate:"omitempty,max=64"`
}
