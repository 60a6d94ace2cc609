// Package service contains the authentication application flow.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/abalakin/clinicguard/internal/audit"
	pkgcrypto "github.com/abalakin/clinicguard/internal/crypto"
	"github.com/abalakin/clinicguard/internal/errs"
	"github.com/abalakin/clinicguard/internal/identity"
	"github.com/abalakin/clinicguard/internal/limiter"
	"github.com/abalakin/clinicguard/internal/model"
	"github.com/abalakin/clinicguard/internal/otp"
	"github.com/abalakin/clinicguard/internal/repository"
)

// Failure thresholds and windows for the authentication flow.
const (
	// LoginFailureLimit blocks password attempts past this count.
	LoginFailureLimit = 5
	// TwoFactorFailureLimit blocks code submissions past this count.
	TwoFactorFailureLimit = 5
	// PendingWindow is how long after the first factor the second factor
	// must complete. Independent of the code's own expiry.
	PendingWindow = 15 * time.Minute
)

// OtpStore is the challenge lifecycle surface the flow depends on.
// Satisfied by *otp.Store.
type OtpStore interface {
	Issue(ctx context.Context, identityID int64) (string, error)
	Verify(ctx context.Context, identityID int64, submitted string) (repository.VerifyStatus, error)
	ChallengeAge(ctx context.Context, identityID int64) (time.Duration, error)
}

// VerifyError reports a second-factor failure. Retryable failures let the
// caller re-prompt for a code; the rest force re-authentication from scratch.
type VerifyError struct {
	Status repository.VerifyStatus
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("second factor rejected: %s", e.Status)
}

// Retryable reports whether the caller may submit another code for the same
// challenge.
func (e *VerifyError) Retryable() bool {
	return e.Status == repository.VerifyInvalidCode
}

// Auth orchestrates registration and the two-step login. All collaborator
// calls are explicit and synchronous; there is no broadcast signaling.
type Auth struct {
	identities repository.IdentityRepository
	codes      OtpStore
	sender     otp.Sender
	lim        limiter.Limiter
	aud        audit.Recorder
	signKey    []byte
	accessTTL  time.Duration
	log        *zap.Logger
}

// NewAuth constructs the authentication service.
func NewAuth(
	identities repository.IdentityRepository,
	codes OtpStore,
	sender otp.Sender,
	lim limiter.Limiter,
	aud audit.Recorder,
	signKey []byte,
	accessTTL time.Duration,
	log *zap.Logger,
) *Auth {
	return &Auth{
		identities: identities,
		codes:      codes,
		sender:     sender,
		lim:        lim,
		aud:        aud,
		signKey:    signKey,
		accessTTL:  accessTTL,
		log:        log,
	}
}

// Register creates a new identity. The duplicate check runs against the
// digest of the normalized email before any row is written; a concurrent
// insert is still caught by the unique index.
func (s *Auth) Register(ctx context.Context, login, email, password string, role model.Role, ip string) (*model.Identity, error) {
	if login == "" || password == "" {
		return nil, errors.New("empty login/password")
	}
	email = identity.Normalize(email)
	if email == "" {
		return nil, errors.New("email must be set")
	}
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	exists, err := s.identities.ExistsByEmailHash(ctx, identity.Hash(email))
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errs.ErrDuplicateIdentity
	}

	salt, err := pkgcrypto.RandBytes(pkgcrypto.SaltSize)
	if err != nil {
		return nil, err
	}
	ident := &model.Identity{
		Login:   login,
		Role:    role,
		Email:   email,
		PwdHash: pkgcrypto.HashSecret([]byte(password), salt),
		PwdSalt: salt,
	}
	if err := s.identities.Create(ctx, ident); err != nil {
		return nil, err
	}
	_ = s.aud.Append(ctx, &ident.ID, audit.ActionRegister, "identity: "+login, "", ip)
	return ident, nil
}

// Login performs the first factor. On success it issues and delivers a
// one-time code and returns the typed pending-auth record the caller must
// present to VerifyTwoFactor. Identity existence is hidden behind a uniform
// unauthorized error.
func (s *Auth) Login(ctx context.Context, identifier, password, ip string) (model.PendingAuth, error) {
	blocked, err := s.lim.CheckAndBlock(ctx, limiter.PrefixLoginFailures, LoginFailureLimit, ip, identifier)
	if err != nil {
		return model.PendingAuth{}, err
	}
	if blocked {
		return model.PendingAuth{}, errs.ErrRateLimited
	}

	ident, err := s.identities.FindByIdentifier(ctx, identifier)
	if err != nil || !pkgcrypto.VerifySecret([]byte(password), ident.PwdSalt, ident.PwdHash) {
		safe := audit.SanitizeIdentifier(identifier)
		_ = s.aud.Append(ctx, nil, audit.ActionLoginFailed, "attempted identifier: "+safe, "", ip)
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			s.log.Error("identity lookup failed", zap.Error(err))
		}
		return model.PendingAuth{}, errs.ErrUnauthorized
	}

	code, err := s.codes.Issue(ctx, ident.ID)
	if err != nil {
		_ = s.aud.Append(ctx, &ident.ID, audit.ActionCodeError, "identity: "+ident.Login, "issue failed", ip)
		return model.PendingAuth{}, err
	}
	if err := s.sender.Send(ctx, ident, code); err != nil {
		_ = s.aud.Append(ctx, &ident.ID, audit.ActionCodeError, "identity: "+ident.Login, "delivery failed", ip)
		return model.PendingAuth{}, fmt.Errorf("%w: %s", errs.ErrCodeDelivery, err)
	}

	token, err := uuid.NewV4()
	if err != nil {
		return model.PendingAuth{}, err
	}
	_ = s.aud.Append(ctx, &ident.ID, audit.ActionCodeSent, "identity: "+ident.Login, "", ip)
	return model.PendingAuth{Token: token, IdentityID: ident.ID, IssuedAt: time.Now()}, nil
}

// VerifyTwoFactor performs the second factor. On success it clears the
// failure buckets for the origin and identity and returns a signed access
// token; on failure it returns a VerifyError describing whether a retry is
// allowed.
func (s *Auth) VerifyTwoFactor(ctx context.Context, pending model.PendingAuth, code, ip string) (model.Tokens, error) {
	if pending.Expired(time.Now(), PendingWindow) {
		return model.Tokens{}, errs.ErrSessionExpired
	}

	ident, err := s.identities.GetByID(ctx, pending.IdentityID)
	if err != nil {
		return model.Tokens{}, err
	}

	blocked, err := s.lim.CheckAndBlock(ctx, limiter.PrefixTwoFactorFailures, TwoFactorFailureLimit, ip, ident.Login)
	if err != nil {
		return model.Tokens{}, err
	}
	if blocked {
		return model.Tokens{}, errs.ErrRateLimited
	}

	status, err := s.codes.Verify(ctx, ident.ID, code)
	if err != nil {
		return model.Tokens{}, err
	}
	if status != repository.VerifyOK {
		_ = s.aud.Append(ctx, &ident.ID, audit.ActionTwoFactorFailed, "identity: "+ident.Login, status.String(), ip)
		return model.Tokens{}, &VerifyError{Status: status}
	}

	// A completed login forgives prior failures for this origin/identity.
	if err := s.lim.ClearAuthFailures(ctx, ip, ident.Login); err != nil {
		s.log.Warn("failed to clear rate-limit buckets", zap.Error(err))
	}
	_ = s.aud.Append(ctx, &ident.ID, audit.ActionLoginSuccess, "identity: "+ident.Login, "", ip)

	access, exp, err := s.issueAccessToken(ident.ID)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, nil
}

// Logout records the end of a session in the audit trail.
func (s *Auth) Logout(ctx context.Context, identityID int64, ip string) error {
	ident, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		return err
	}
	return s.aud.Append(ctx, &ident.ID, audit.ActionLogout, "identity: "+ident.Login, "", ip)
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *Auth) issueAccessToken(identityID int64) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   fmt.Sprintf("%d", identityID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}
