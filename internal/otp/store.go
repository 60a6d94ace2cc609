// Package otp manages the lifecycle of one-time verification codes.
package otp

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/abalakin/clinicguard/internal/crypto"
	"github.com/abalakin/clinicguard/internal/model"
	"github.com/abalakin/clinicguard/internal/repository"
)

// Protocol constants.
const (
	// MaxAttempts caps incorrect submissions per challenge.
	MaxAttempts = 5
	// Window is the challenge validity period.
	Window = 10 * time.Minute
)

// Sender delivers a raw one-time code out-of-band. A send failure must abort
// the issuing flow; the new challenge must not be left silently unusable.
type Sender interface {
	Send(ctx context.Context, ident *model.Identity, code string) error
}

// Store issues and verifies one-time codes. Only a salted slow digest of a
// code is ever persisted.
type Store struct {
	repo repository.ChallengeRepository
	log  *zap.Logger
}

// NewStore constructs an OTP store.
func NewStore(repo repository.ChallengeRepository, log *zap.Logger) *Store {
	return &Store{repo: repo, log: log}
}

// Issue invalidates any active challenge for the identity, stores a new one
// and returns the raw code for one-time delivery. The raw value is never
// persisted.
func (s *Store) Issue(ctx context.Context, identityID int64) (string, error) {
	code, err := crypto.GenerateCode()
	if err != nil {
		return "", err
	}
	salt, err := crypto.RandBytes(crypto.SaltSize)
	if err != nil {
		return "", err
	}
	hash := crypto.HashSecret([]byte(code), salt)
	if err := s.repo.Issue(ctx, identityID, hash, salt, time.Now().Add(Window)); err != nil {
		return "", err
	}
	s.log.Info("one-time code issued", zap.Int64("identity_id", identityID))
	return code, nil
}

// Verify checks a submitted code against the identity's active challenge.
// The repository serializes concurrent attempts for the same identity.
func (s *Store) Verify(ctx context.Context, identityID int64, submitted string) (repository.VerifyStatus, error) {
	status, err := s.repo.Verify(ctx, identityID, MaxAttempts, func(hash, salt []byte) bool {
		return crypto.VerifySecret([]byte(submitted), salt, hash)
	})
	if err != nil {
		return 0, err
	}
	if status != repository.VerifyOK {
		s.log.Info("one-time code rejected",
			zap.Int64("identity_id", identityID),
			zap.String("reason", status.String()),
		)
	}
	return status, nil
}

// ChallengeAge exposes the active challenge's age so callers can enforce a
// session-level completion window independent of the code's own expiry.
func (s *Store) ChallengeAge(ctx context.Context, identityID int64) (time.Duration, error) {
	return s.repo.ActiveChallengeAge(ctx, identityID)
}
