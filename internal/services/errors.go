package services

import (
	"errors"

	"github.com/cratedig/spindle/internal/store"
)

var (
	// ErrProviderUnavailable marks a failed or timed-out metadata
	// provider. It never propagates past the gateway unless every
	// configured provider failed.
	ErrProviderUnavailable = errors.New("metadata provider unavailable")

	// ErrCacheUnavailable marks an unreachable persistent store;
	// computation proceeds without caching in degraded mode.
	ErrCacheUnavailable = errors.New("cache store unavailable")

	// ErrInvalidFeedbackKind rejects unrecognized feedback types; the
	// event is dropped.
	ErrInvalidFeedbackKind = errors.New("invalid feedback kind")

	// ErrComputationFailed means no candidate could be produced at all.
	// The engine surfaces it as a degraded empty list, never as a hard
	// failure to the caller.
	ErrComputationFailed = errors.New("recommendation computation failed")

	// ErrInvalidListType rejects unknown list types or missing params.
	ErrInvalidListType = errors.New("invalid list type or parameters")
)

// isNotFound reports whether the store signaled an absent row.
func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
