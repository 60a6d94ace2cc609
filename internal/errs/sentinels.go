// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateIdentity indicates an identity with the same normalized email already exists.
	ErrDuplicateIdentity = errors.New("duplicate identity")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates a temporary lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrEncryptionFailed indicates a write-path encryption failure; the write must be aborted.
	ErrEncryptionFailed = errors.New("encryption failed")

	// ErrSessionExpired indicates the pending second-factor window has elapsed.
	ErrSessionExpired = errors.New("session expired")

	// ErrCodeDelivery indicates the verification code could not be delivered.
	ErrCodeDelivery = errors.New("code delivery failed")

	// ErrAuditImmutable indicates an attempted mutation of a persisted audit record.
	// Signals a programming error; must never be swallowed.
	ErrAuditImmutable = errors.New("audit records are immutable")

	// ErrConfig indicates missing or malformed startup configuration.
	ErrConfig = errors.New("configuration error")
)
