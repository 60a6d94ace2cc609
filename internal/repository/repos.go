// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/abalakin/clinicguard/internal/model"
)

// VerifyStatus is the outcome of a one-time-code verification attempt.
type VerifyStatus int

const (
	// VerifyOK: the code matched; the challenge is now consumed.
	VerifyOK VerifyStatus = iota
	// VerifyExpiredOrMissing: no unused, unexpired challenge exists.
	VerifyExpiredOrMissing
	// VerifyTooManyAttempts: the attempt cap was reached; the challenge is
	// now consumed.
	VerifyTooManyAttempts
	// VerifyInvalidCode: the code did not match; the challenge stays active.
	VerifyInvalidCode
)

// String returns the stable reason tag for the status.
func (s VerifyStatus) String() string {
	switch s {
	case VerifyOK:
		return "ok"
	case VerifyExpiredOrMissing:
		return "expired_or_missing"
	case VerifyTooManyAttempts:
		return "too_many_attempts"
	case VerifyInvalidCode:
		return "invalid_code"
	}
	return "unknown"
}

// IdentityRepository provides access to user principals. Implementations
// encrypt sensitive columns on write and decrypt on read; a failed decrypt
// surfaces as the codec's Unavailable placeholder, never as an error.
type IdentityRepository interface {
	// Create inserts a new identity and sets its ID. The email hash is
	// recomputed from the normalized plaintext email before the insert.
	Create(ctx context.Context, ident *model.Identity) error
	// Update rewrites mutable fields, recomputing the email hash.
	Update(ctx context.Context, ident *model.Identity) error
	// GetByID loads an identity by primary key.
	GetByID(ctx context.Context, id int64) (*model.Identity, error)
	// FindByIdentifier tries an exact login match first, then a lookup by
	// the digest of the normalized email.
	FindByIdentifier(ctx context.Context, identifier string) (*model.Identity, error)
	// ExistsByEmailHash reports whether an identity with the digest exists.
	ExistsByEmailHash(ctx context.Context, emailHash string) (bool, error)
}

// ChallengeRepository stores one-time-code challenges. Challenges are never
// deleted; terminal rows are kept for forensics.
type ChallengeRepository interface {
	// Issue marks every unused, unexpired challenge for the identity as used
	// and inserts the new one, atomically.
	Issue(ctx context.Context, identityID int64, codeHash, codeSalt []byte, expiresAt time.Time) error
	// Verify runs the locked read-check-mutate sequence for the identity's
	// newest active challenge. match is invoked with the stored digest and
	// salt under the row lock.
	Verify(ctx context.Context, identityID int64, maxAttempts int, match func(hash, salt []byte) bool) (VerifyStatus, error)
	// ActiveChallengeAge returns the age of the identity's active challenge,
	// errs.ErrNotFound when there is none.
	ActiveChallengeAge(ctx context.Context, identityID int64) (time.Duration, error)
}

// AuditRepository is the append-only audit trail. It deliberately exposes no
// mutating operations; the database additionally rejects UPDATE and DELETE.
type AuditRepository interface {
	// Append persists a new immutable record, encrypting sensitive columns.
	Append(ctx context.Context, rec *model.AuditRecord) error
	// ListRecent returns up to limit newest records with sensitive columns
	// decrypted (or the Unavailable placeholder).
	ListRecent(ctx context.Context, limit int) ([]model.AuditRecord, error)
}
