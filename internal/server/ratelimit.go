// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

const (
	defaultMaxVisitors = 10000
	visitorStaleAfter  = 10 * time.Minute
	visitorSweepEvery  = 5 * time.Minute
)

// RateLimitConfig configures per-client limits on the chat and upload
// routes.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained request rate per client. Zero
	// disables request limiting.
	RequestsPerSecond float64
	// Burst is the maximum burst size per client.
	Burst int
	// MaxConcurrentStreams caps open answer streams per client. Zero
	// disables the cap.
	MaxConcurrentStreams int
	// MaxVisitors bounds the number of tracked clients. Default: 10000.
	MaxVisitors int
}

// Validate checks the configuration and applies defaults.
func (c *RateLimitConfig) Validate() error {
	if c.RequestsPerSecond < 0 {
		return dqerr.Errorf(dqerr.CodeServerConfigInvalid,
			"rate limit requests per second must not be negative (got %g)", c.RequestsPerSecond)
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		return dqerr.Errorf(dqerr.CodeServerConfigInvalid,
			"rate limit burst must be positive when rate is set (got burst=%d, rate=%g)",
			c.Burst, c.RequestsPerSecond)
	}
	if c.MaxConcurrentStreams < 0 {
		return dqerr.Errorf(dqerr.CodeServerConfigInvalid,
			"max concurrent streams must not be negative (got %d)", c.MaxConcurrentStreams)
	}
	if c.MaxVisitors < 0 {
		return dqerr.Errorf(dqerr.CodeServerConfigInvalid,
			"rate limit max visitors must not be negative (got %d)", c.MaxVisitors)
	}
	if c.MaxVisitors == 0 {
		c.MaxVisitors = defaultMaxVisitors
	}
	return nil
}

func (c RateLimitConfig) enabled() bool {
	return c.RequestsPerSecond > 0 || c.MaxConcurrentStreams > 0
}

type visitor struct {
	limiter       *rate.Limiter
	lastSeen      time.Time
	activeStreams int
}

// clientLimiter tracks a token bucket and open stream count per client key.
type clientLimiter struct {
	cfg      RateLimitConfig
	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

// newClientLimiter returns nil when cfg disables every limit. A nil
// limiter allows everything.
func newClientLimiter(cfg RateLimitConfig, done <-chan struct{}) (*clientLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.enabled() {
		return nil, nil
	}
	l := &clientLimiter{cfg: cfg, visitors: make(map[string]*visitor), now: time.Now}
	go l.sweepLoop(done)
	return l, nil
}

func (l *clientLimiter) allow(key string) bool {
	if l == nil || l.cfg.RequestsPerSecond <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	v := l.visitorLocked(key)
	return v.limiter.AllowN(v.lastSeen, 1)
}

func (l *clientLimiter) acquireStream(key string) bool {
	if l == nil || l.cfg.MaxConcurrentStreams <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	v := l.visitorLocked(key)
	if v.activeStreams >= l.cfg.MaxConcurrentStreams {
		return false
	}
	v.activeStreams++
	return true
}

func (l *clientLimiter) releaseStream(key string) {
	if l == nil || l.cfg.MaxConcurrentStreams <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	v := l.visitors[key]
	if v == nil || v.activeStreams == 0 {
		slog.Error("stream slot released with no active streams", "key_hash", hashKey(key))
		return
	}
	v.activeStreams--
	v.lastSeen = l.now()
}

func (l *clientLimiter) visitorLocked(key string) *visitor {
	now := l.now()
	v, ok := l.visitors[key]
	if !ok {
		limit := rate.Inf
		if l.cfg.RequestsPerSecond > 0 {
			limit = rate.Limit(l.cfg.RequestsPerSecond)
		}
		v = &visitor{limiter: rate.NewLimiter(limit, l.cfg.Burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v
}

func (l *clientLimiter) sweepLoop(done <-chan struct{}) {
	ticker := time.NewTicker(visitorSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-done:
			return
		}
	}
}

// sweep drops idle clients, then evicts the least recently seen idle
// clients while the map exceeds MaxVisitors.
func (l *clientLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	type entry struct {
		key      string
		lastSeen time.Time
	}
	entries := make([]entry, 0, len(l.visitors))
	for key, v := range l.visitors {
		if v.activeStreams == 0 && now.Sub(v.lastSeen) > visitorStaleAfter {
			delete(l.visitors, key)
			continue
		}
		entries = append(entries, entry{key: key, lastSeen: v.lastSeen})
	}

	excess := len(entries) - l.cfg.MaxVisitors
	if excess <= 0 {
		return
	}
	slices.SortFunc(entries, func(a, b entry) int { return a.lastSeen.Compare(b.lastSeen) })
	evicted := 0
	for _, e := range entries {
		if evicted == excess {
			break
		}
		if l.visitors[e.key].activeStreams == 0 {
			delete(l.visitors, e.key)
			evicted++
		}
	}
	slog.Warn("rate limiter visitor cap enforced",
		"intended", excess, "evicted", evicted, "max_visitors", l.cfg.MaxVisitors, "remaining", len(l.visitors))
}

func (l *clientLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}
