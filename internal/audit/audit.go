// Package audit produces the tamper-evident trail of security-relevant events.
package audit

import (
	"context"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/abalakin/clinicguard/internal/model"
	"github.com/abalakin/clinicguard/internal/repository"
)

// Action tags recorded by the authentication flow.
const (
	ActionRegister           = "REGISTER"
	ActionLoginFailed        = "LOGIN_FAILED"
	ActionLoginSuccess       = "LOGIN_SUCCESS"
	ActionLogout             = "LOGOUT"
	ActionCodeSent           = "2FA_CODE_SENT"
	ActionCodeError          = "2FA_ERROR"
	ActionTwoFactorFailed    = "2FA_VERIFY_FAILED"
	ActionPasswordChange     = "PASSWORD_CHANGE"
	ActionPasswordResetStart = "PASSWORD_RESET_REQUEST"
	ActionPasswordResetDone  = "PASSWORD_RESET_COMPLETE"
)

// Recorder appends audit events. Satisfied by *Sink.
type Recorder interface {
	Append(ctx context.Context, actorID *int64, action, resource, details, ip string) error
}

// Sink is the single write path into the audit trail.
type Sink struct {
	repo repository.AuditRepository
	log  *zap.Logger
}

// NewSink constructs an audit sink.
func NewSink(repo repository.AuditRepository, log *zap.Logger) *Sink {
	return &Sink{repo: repo, log: log}
}

// Append records one immutable event. Sensitive columns are encrypted by the
// repository; the record can never be mutated afterwards.
func (s *Sink) Append(ctx context.Context, actorID *int64, action, resource, details, ip string) error {
	rec := &model.AuditRecord{
		ActorID:  actorID,
		Action:   action,
		IP:       ip,
		Resource: resource,
		Details:  details,
	}
	if err := s.repo.Append(ctx, rec); err != nil {
		s.log.Error("audit append failed", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

// Redaction markers for SanitizeIdentifier.
const (
	RedactedMarker  = "[REDACTED - possible password]"
	EmptyMarker     = "[empty]"
	truncatedSuffix = "...[truncated]"
)

const specialChars = `!@#$%^&*()_+-=[]{}|;:,.<>?`

// SanitizeIdentifier redacts attempted identifiers that heuristically
// resemble passwords before they reach the audit trail, and truncates
// over-long values.
func SanitizeIdentifier(s string) string {
	if s == "" {
		return EmptyMarker
	}
	hasSpecial := strings.ContainsAny(s, specialChars)
	isLong := len(s) > 30
	hasUpper := strings.IndexFunc(s, unicode.IsUpper) >= 0
	hasLower := strings.IndexFunc(s, unicode.IsLower) >= 0
	hasDigit := strings.IndexFunc(s, unicode.IsDigit) >= 0

	indicators := 0
	if hasSpecial {
		indicators++
	}
	if isLong {
		indicators++
	}
	if hasUpper && hasLower && hasDigit {
		indicators++
	}
	if indicators >= 2 {
		return RedactedMarker
	}
	if len(s) > 50 {
		return s[:20] + truncatedSuffix
	}
	return s
}
