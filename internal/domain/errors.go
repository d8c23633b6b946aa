package domain

import "errors"

var (
	// ErrInvalidInput is returned when a resolve request has no usable food name
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned when a lookup finds no record
	ErrNotFound = errors.New("food not found")

	// ErrStorageConflict is returned when a create violates a uniqueness constraint.
	// Surfaced to callers only when recovery failed; the request is safe to retry.
	ErrStorageConflict = errors.New("storage conflict")

	// ErrResolverUnavailable is returned when the similarity resolver cannot be reached
	ErrResolverUnavailable = errors.New("similarity resolver unavailable")

	// ErrResolverTimeout is returned when the similarity resolver exceeds its deadline
	ErrResolverTimeout = errors.New("similarity resolver timed out")

	// ErrRateLimited is returned when rate limit is exceeded
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when cache service is unavailable
	ErrCacheUnavailable = errors.New("cache service unavailable")
)
