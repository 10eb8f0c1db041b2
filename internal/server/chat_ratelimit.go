// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

const retryAfterSeconds = "1"

// hashKey returns the first 8 hex chars of SHA-256(key) for log privacy.
func hashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h[:4])
}

func limiterKey(ctx context.Context) string {
	return "ip:" + clientIPFromContext(ctx)
}

// checkRequestLimit spends one token of the caller's request budget.
func (s *Server) checkRequestLimit(ctx context.Context, endpoint string) bool {
	key := limiterKey(ctx)
	if s.limiter.allow(key) {
		return true
	}
	slog.Warn("rate limit exceeded", "reason", "request_rate_exceeded", "endpoint", endpoint, "key_hash", hashKey(key))
	return false
}

// acquireStreamSlot reserves one of the caller's concurrent stream slots.
// The returned key must be passed to releaseStreamSlot.
func (s *Server) acquireStreamSlot(ctx context.Context, endpoint string) (string, bool) {
	key := limiterKey(ctx)
	if s.limiter.acquireStream(key) {
		return key, true
	}
	slog.Warn("stream concurrency limit exceeded", "reason", "concurrency_exceeded", "endpoint", endpoint, "key_hash", hashKey(key))
	return "", false
}

func (s *Server) releaseStreamSlot(key string) {
	s.limiter.releaseStream(key)
}

func tooManyRequests(msg string) error {
	return huma.ErrorWithHeaders(huma.NewError(http.StatusTooManyRequests, msg), http.Header{"Retry-After": []string{retryAfterSeconds}})
}

func writeTooManyRequests(w http.ResponseWriter, msg string) {
	w.Header().Set("Retry-After", retryAfterSeconds)
	writeJSONError(w, http.StatusTooManyRequests, msg)
}
