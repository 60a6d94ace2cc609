package limiter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKey_Composition(t *testing.T) {
	require.Equal(t, "login_failures_1.2.3.4", Key("login_failures", "1.2.3.4", ""))
	require.Equal(t, "login_failures_1.2.3.4_alice", Key("login_failures", "1.2.3.4", " Alice "))
	require.Equal(t, "2fa_failures_unknown", Key("2fa_failures", "", ""))
	// Control characters never reach the counter store.
	require.Equal(t, "p_1.2.3.4_ab", Key("p", "1.2.\x003.4", "a\x1fb"))
}

func TestNormalizeIdentity_Cap(t *testing.T) {
	long := strings.Repeat("x", 200)
	require.Len(t, NormalizeIdentity(long), 150)
	require.Equal(t, "", NormalizeIdentity(" \x00 "))
}

type countingAuditor struct {
	appended []string
	err      error
}

func (a *countingAuditor) Append(_ context.Context, _ *int64, action, _, details, _ string) error {
	a.appended = append(a.appended, action+" "+details)
	return a.err
}

func testConfig() Config {
	return Config{BaseTTL: 900 * time.Second, MaxTTL: 3600 * time.Second, EscalateAfter: 5}
}

func TestKV_ProgressiveTTL(t *testing.T) {
	l := NewKV(NewMemoryStore(), nil, testConfig(), zap.NewNop())

	cases := []struct {
		count int64
		want  time.Duration
	}{
		{1, 900 * time.Second},
		{5, 900 * time.Second},
		{6, 1800 * time.Second},
		{7, 2700 * time.Second},
		{8, 3600 * time.Second},
		{9, 3600 * time.Second},  // linear growth capped at 4x base
		{50, 3600 * time.Second}, // bounded by the absolute ceiling
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, l.ttlFor(PrefixLoginFailures, tc.count), "count=%d", tc.count)
		require.Equal(t, tc.want, l.ttlFor(PrefixTwoFactorFailures, tc.count), "count=%d", tc.count)
		// Other prefixes stay flat.
		require.Equal(t, 900*time.Second, l.ttlFor("password_reset", tc.count))
	}
}

func TestKV_IncrementRefreshesTTL(t *testing.T) {
	store := NewMemoryStore()
	l := NewKV(store, nil, testConfig(), zap.NewNop())
	ctx := context.Background()

	var n int64
	var err error
	for i := 0; i < 6; i++ {
		n, err = l.Increment(ctx, PrefixLoginFailures, "1.2.3.4", "bob")
		require.NoError(t, err)
	}
	require.Equal(t, int64(6), n)
	require.InDelta(t, (1800 * time.Second).Seconds(),
		store.TTL(Key(PrefixLoginFailures, "1.2.3.4", "bob")).Seconds(), 2)
}

func TestKV_CheckAndBlock(t *testing.T) {
	aud := &countingAuditor{}
	l := NewKV(NewMemoryStore(), aud, testConfig(), zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		blocked, err := l.CheckAndBlock(ctx, PrefixLoginFailures, 5, "9.9.9.9", "eve")
		require.NoError(t, err)
		require.False(t, blocked)
	}
	require.Empty(t, aud.appended)

	blocked, err := l.CheckAndBlock(ctx, PrefixLoginFailures, 5, "9.9.9.9", "eve")
	require.NoError(t, err)
	require.True(t, blocked)
	require.Len(t, aud.appended, 1)

	// Every further blocked call records exactly one more event.
	blocked, err = l.CheckAndBlock(ctx, PrefixLoginFailures, 5, "9.9.9.9", "eve")
	require.NoError(t, err)
	require.True(t, blocked)
	require.Len(t, aud.appended, 2)
}

type failingStore struct{ CounterStore }

func (failingStore) Increment(context.Context, string) (int64, error) {
	return 0, errors.New("store down")
}

func TestKV_FailsOpen(t *testing.T) {
	l := NewKV(failingStore{}, nil, testConfig(), zap.NewNop())
	blocked, err := l.CheckAndBlock(context.Background(), PrefixLoginFailures, 5, "1.1.1.1", "")
	require.NoError(t, err)
	require.False(t, blocked)
}

func TestKV_ClearAuthFailures(t *testing.T) {
	store := NewMemoryStore()
	l := NewKV(store, nil, testConfig(), zap.NewNop())
	ctx := context.Background()

	for _, prefix := range []string{PrefixLoginFailures, PrefixTwoFactorFailures} {
		for _, id := range []string{"", "carol"} {
			_, err := l.Increment(ctx, prefix, "5.5.5.5", id)
			require.NoError(t, err)
		}
	}
	require.NoError(t, l.ClearAuthFailures(ctx, "5.5.5.5", "carol"))

	for _, prefix := range []string{PrefixLoginFailures, PrefixTwoFactorFailures} {
		for _, id := range []string{"", "carol"} {
			n, err := store.Get(ctx, Key(prefix, "5.5.5.5", id))
			require.NoError(t, err)
			require.Zero(t, n)
		}
	}
}

func TestKV_Reset(t *testing.T) {
	store := NewMemoryStore()
	l := NewKV(store, nil, testConfig(), zap.NewNop())
	ctx := context.Background()

	_, err := l.Increment(ctx, "password_reset", "1.2.3.4", "dan")
	require.NoError(t, err)
	require.NoError(t, l.Reset(ctx, "password_reset", "1.2.3.4", "dan"))

	n, err := store.Get(ctx, Key("password_reset", "1.2.3.4", "dan"))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	n, err := store.Increment(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.NoError(t, store.Expire(ctx, "k", time.Millisecond))

	time.Sleep(5 * time.Millisecond)
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.Zero(t, got)
}
