// Package limiter implements abuse throttling with progressive lockout,
// keyed by network origin and optionally by identity.
package limiter

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// Designated prefixes whose lockout TTL escalates with sustained abuse.
const (
	PrefixLoginFailures     = "login_failures"
	PrefixTwoFactorFailures = "2fa_failures"
)

// Limiter throttles request patterns against a shared counter store.
type Limiter interface {
	// Increment atomically bumps the bucket counter and refreshes its TTL,
	// returning the new count.
	Increment(ctx context.Context, prefix, originIP, identity string) (int64, error)
	// CheckAndBlock increments and reports whether the count now exceeds
	// limit. A call that lands over the limit records one audit event.
	CheckAndBlock(ctx context.Context, prefix string, limit int64, originIP, identity string) (bool, error)
	// Reset clears a single bucket.
	Reset(ctx context.Context, prefix, originIP, identity string) error
	// ClearAuthFailures clears the IP-only and IP+identity buckets for both
	// designated prefixes, forgiving prior failures after a successful login.
	ClearAuthFailures(ctx context.Context, originIP, identity string) error
}

// CounterStore is the volatile counter backend. Losing counters on restart
// is acceptable: the limiter fails open, not closed.
type CounterStore interface {
	// Get returns the current count, 0 when the key is absent.
	Get(ctx context.Context, key string) (int64, error)
	// Set stores a count with a TTL.
	Set(ctx context.Context, key string, value int64, ttl time.Duration) error
	// Increment atomically bumps the counter, creating it at 1.
	Increment(ctx context.Context, key string) (int64, error)
	// Expire refreshes the key's TTL.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Delete removes the key.
	Delete(ctx context.Context, key string) error
}

// Auditor records bucket-crossing events. Satisfied by *audit.Sink.
type Auditor interface {
	Append(ctx context.Context, actorID *int64, action, resource, details, ip string) error
}

var invalidKeyChars = regexp.MustCompile(`[\x00-\x20\x7f]+`)

// identityMaxLen caps the identity portion of a bucket key.
const identityMaxLen = 150

// NormalizeIdentity sanitizes an identity for use in a bucket key: trimmed,
// lowercased, control characters stripped, length-capped. Empty result means
// the identity is omitted from the key.
func NormalizeIdentity(identity string) string {
	s := strings.ToLower(strings.TrimSpace(identity))
	s = invalidKeyChars.ReplaceAllString(s, "")
	if len(s) > identityMaxLen {
		s = s[:identityMaxLen]
	}
	return s
}

// Key composes the bucket key from prefix, sanitized IP and optional
// sanitized identity.
func Key(prefix, originIP, identity string) string {
	ip := invalidKeyChars.ReplaceAllString(strings.TrimSpace(originIP), "")
	if ip == "" {
		ip = "unknown"
	}
	if id := NormalizeIdentity(identity); id != "" {
		return prefix + "_" + ip + "_" + id
	}
	return prefix + "_" + ip
}
