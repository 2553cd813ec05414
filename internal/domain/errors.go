package domain

import "errors"

var (
	// ErrDuplicateOwner is returned when an owner email already has an app.
	ErrDuplicateOwner = errors.New("an app is already registered with this email")
	// ErrNotFound is returned when an app or user has no matching records.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized covers missing, malformed, unknown, revoked and expired credentials.
	ErrUnauthorized = errors.New("invalid or expired API key")
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrStoreUnavailable wraps transient failures of the relational store.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrCacheUnavailable is returned by cache writes when the cache cannot serve.
	// It never propagates past the analytics service.
	ErrCacheUnavailable = errors.New("cache unavailable")
)
