// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(t *testing.T, cfg RateLimitConfig) (*clientLimiter, *fakeClock) {
	t.Helper()
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	l, err := newClientLimiter(cfg, done)
	require.NoError(t, err)
	require.NotNil(t, l)
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l.now = clock.now
	return l, clock
}

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RateLimitConfig
		wantErr string
	}{
		{"negative rate", RateLimitConfig{RequestsPerSecond: -1}, "must not be negative"},
		{"rate without burst", RateLimitConfig{RequestsPerSecond: 1}, "burst must be positive"},
		{"negative streams", RateLimitConfig{MaxConcurrentStreams: -1}, "max concurrent streams"},
		{"negative visitors", RateLimitConfig{MaxVisitors: -1}, "max visitors"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	cfg := RateLimitConfig{RequestsPerSecond: 1, Burst: 1}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, defaultMaxVisitors, cfg.MaxVisitors)
}

func TestNewClientLimiter_DisabledIsNil(t *testing.T) {
	l, err := newClientLimiter(RateLimitConfig{}, make(chan struct{}))
	require.NoError(t, err)
	assert.Nil(t, l)

	assert.True(t, l.allow("ip:1.2.3.4"))
	assert.True(t, l.acquireStream("ip:1.2.3.4"))
	l.releaseStream("ip:1.2.3.4")
}

func TestClientLimiter_AllowRefillsOverTime(t *testing.T) {
	l, clock := newTestLimiter(t, RateLimitConfig{RequestsPerSecond: 1, Burst: 2})

	assert.True(t, l.allow("a"))
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"), "burst spent")
	assert.True(t, l.allow("b"), "buckets are per client")

	clock.advance(time.Second)
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
}

func TestClientLimiter_StreamSlots(t *testing.T) {
	l, _ := newTestLimiter(t, RateLimitConfig{MaxConcurrentStreams: 2})

	assert.True(t, l.acquireStream("a"))
	assert.True(t, l.acquireStream("a"))
	assert.False(t, l.acquireStream("a"))

	l.releaseStream("a")
	assert.True(t, l.acquireStream("a"))

	// Releasing an unknown key must not go negative.
	l.releaseStream("ghost")
	assert.True(t, l.acquireStream("ghost"))
}

func TestClientLimiter_SweepDropsIdleVisitors(t *testing.T) {
	l, clock := newTestLimiter(t, RateLimitConfig{RequestsPerSecond: 5, Burst: 5, MaxConcurrentStreams: 1})

	l.allow("idle")
	require.True(t, l.acquireStream("streaming"))
	clock.advance(visitorStaleAfter + time.Second)

	l.sweep()
	assert.Equal(t, 1, l.size(), "clients with an open stream are kept")
}

func TestClientLimiter_SweepEnforcesVisitorCap(t *testing.T) {
	l, clock := newTestLimiter(t, RateLimitConfig{RequestsPerSecond: 5, Burst: 5, MaxVisitors: 2})

	for _, key := range []string{"oldest", "middle", "newest"} {
		l.allow(key)
		clock.advance(time.Second)
	}
	l.sweep()
	assert.Equal(t, 2, l.size())

	l.mu.Lock()
	_, kept := l.visitors["oldest"]
	l.mu.Unlock()
	assert.False(t, kept, "least recently seen client is evicted first")
}
