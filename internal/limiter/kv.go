package limiter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Config tunes bucket TTLs.
type Config struct {
	// BaseTTL is the flat bucket lifetime and the escalation unit.
	BaseTTL time.Duration
	// MaxTTL bounds escalated lockouts.
	MaxTTL time.Duration
	// EscalateAfter is the count past which designated prefixes escalate.
	EscalateAfter int64
}

// DefaultConfig matches the portal's production settings.
func DefaultConfig() Config {
	return Config{
		BaseTTL:       15 * time.Minute,
		MaxTTL:        time.Hour,
		EscalateAfter: 5,
	}
}

// ActionRateLimitBlock tags audit events emitted by CheckAndBlock.
const ActionRateLimitBlock = "RATE_LIMIT_BLOCK"

// KV is a Limiter backed by an atomic counter store.
type KV struct {
	store CounterStore
	aud   Auditor
	cfg   Config
	log   *zap.Logger
}

// NewKV constructs a counter-store-backed limiter.
func NewKV(store CounterStore, aud Auditor, cfg Config, log *zap.Logger) *KV {
	return &KV{store: store, aud: aud, cfg: cfg, log: log}
}

// ttlFor computes the bucket TTL after the counter reached count.
// For the designated prefixes the TTL grows linearly past the limit,
// capped at 4x base and bounded by MaxTTL; other prefixes stay flat.
func (l *KV) ttlFor(prefix string, count int64) time.Duration {
	if prefix != PrefixLoginFailures && prefix != PrefixTwoFactorFailures {
		return l.cfg.BaseTTL
	}
	steps := count - l.cfg.EscalateAfter + 1
	if steps < 1 {
		steps = 1
	}
	if steps > 4 {
		steps = 4
	}
	ttl := time.Duration(steps) * l.cfg.BaseTTL
	if ttl > l.cfg.MaxTTL {
		ttl = l.cfg.MaxTTL
	}
	return ttl
}

// Increment atomically bumps the bucket and refreshes its TTL.
func (l *KV) Increment(ctx context.Context, prefix, originIP, identity string) (int64, error) {
	key := Key(prefix, originIP, identity)
	count, err := l.store.Increment(ctx, key)
	if err != nil {
		return 0, err
	}
	if err := l.store.Expire(ctx, key, l.ttlFor(prefix, count)); err != nil {
		return count, err
	}
	return count, nil
}

// CheckAndBlock increments and blocks when the count exceeds limit. Counter
// store failures fail open: an unavailable store must not lock users out.
func (l *KV) CheckAndBlock(ctx context.Context, prefix string, limit int64, originIP, identity string) (bool, error) {
	count, err := l.Increment(ctx, prefix, originIP, identity)
	if err != nil {
		l.log.Warn("counter store unavailable, allowing request",
			zap.String("prefix", prefix), zap.Error(err))
		return false, nil
	}
	if count <= limit {
		return false, nil
	}
	if l.aud != nil {
		details := fmt.Sprintf("prefix=%s count=%d limit=%d", prefix, count, limit)
		if aerr := l.aud.Append(ctx, nil, ActionRateLimitBlock, "rate limiter", details, originIP); aerr != nil {
			l.log.Error("failed to audit rate-limit block", zap.Error(aerr))
		}
	}
	return true, nil
}

// Reset clears one bucket.
func (l *KV) Reset(ctx context.Context, prefix, originIP, identity string) error {
	return l.store.Delete(ctx, Key(prefix, originIP, identity))
}

// ClearAuthFailures forgives login and second-factor failures for the origin
// and the origin+identity pair.
func (l *KV) ClearAuthFailures(ctx context.Context, originIP, identity string) error {
	var firstErr error
	for _, prefix := range []string{PrefixLoginFailures, PrefixTwoFactorFailures} {
		for _, id := range []string{"", identity} {
			if err := l.store.Delete(ctx, Key(prefix, originIP, id)); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
