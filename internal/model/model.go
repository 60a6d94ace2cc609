// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role enumerates the portal roles.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleDoctor  Role = "DOCTOR"
	RoleNurse   Role = "NURSE"
	RolePatient Role = "PATIENT"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleNurse, RolePatient:
		return true
	}
	return false
}

// Identity represents a user principal. Email and names are stored encrypted;
// the fields here hold plaintext after repository-level decryption, which may
// be the Unavailable placeholder when decryption failed.
type Identity struct {
	ID        int64
	Login     string // unique plaintext handle
	Role      Role
	Email     string // decrypted on load
	EmailHash string // sha256 hex of normalized email, unique
	FirstName string // decrypted on load
	LastName  string // decrypted on load
	PwdHash   []byte // Argon2id(password, PwdSalt)
	PwdSalt   []byte // per-identity auth salt
	CreatedAt time.Time
}

// Challenge is a stored one-time code challenge. The raw code is never
// persisted; only its salted digest is.
type Challenge struct {
	ID         int64
	IdentityID int64
	CodeHash   []byte
	CodeSalt   []byte
	Attempts   int
	Used       bool
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// AuditRecord is a single append-only audit trail entry. Sensitive columns
// (IP, resource, details) are stored encrypted.
type AuditRecord struct {
	ID        int64
	ActorID   *int64 // nil for anonymous/system events
	Action    string
	IP        string
	Resource  string
	Details   string
	Timestamp time.Time
}

// Tokens collects tokens issued after a completed second factor.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time
}

// PendingAuth is the typed record of a passed-first-factor session awaiting
// the second factor. The caller holds it (e.g. in a server-side session) and
// presents it to VerifyTwoFactor.
type PendingAuth struct {
	Token      uuid.UUID
	IdentityID int64
	IssuedAt   time.Time
}

// Expired reports whether the pending-auth window has elapsed at now.
func (p PendingAuth) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(p.IssuedAt) > window
}
