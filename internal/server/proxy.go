// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// parseTrustedProxies parses CIDR strings, skipping blanks. An empty
// result is an error since the caller asked for proxy support.
func parseTrustedProxies(cidrs []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, dqerr.Errorf(dqerr.CodeServerConfigInvalid,
				"invalid trusted proxy CIDR %q: %w", cidr, err)
		}
		nets = append(nets, ipNet)
	}
	if len(nets) == 0 {
		return nil, dqerr.New(dqerr.CodeServerConfigInvalid,
			"trusted_proxies must contain at least one valid CIDR range")
	}
	return nets, nil
}

func isTrustedProxy(ip net.IP, trusted []*net.IPNet) bool {
	for _, n := range trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

type clientIPContextKey struct{}

// clientIPMiddleware stores the client IP in the request context. Forwarding
// headers are honoured only when the connecting peer is a trusted proxy, so
// clients cannot pick their own rate limit bucket.
func clientIPMiddleware(trusted []*net.IPNet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, trusted)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIPContextKey{}, ip)))
		})
	}
}

func resolveClientIP(r *http.Request, trusted []*net.IPNet) string {
	peer := hostOnly(r.RemoteAddr)
	if len(trusted) == 0 {
		return peer
	}

	ip := net.ParseIP(peer)
	if ip == nil {
		slog.Warn("could not parse connecting IP, ignoring proxy headers", "remote_addr", truncate(r.RemoteAddr, 64))
		return peer
	}
	if !isTrustedProxy(ip, trusted) {
		return peer
	}

	// The leftmost X-Forwarded-For entry is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		client, _, _ := strings.Cut(xff, ",")
		client = strings.TrimSpace(client)
		if net.ParseIP(client) != nil {
			return client
		}
		slog.Warn("invalid IP in X-Forwarded-For, using connecting IP",
			"xff_value", truncate(client, 64), "connecting_ip", peer)
		return peer
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return peer
}

func clientIPFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPContextKey{}).(string); ok && ip != "" {
		return ip
	}
	return "unknown"
}

// hostOnly strips the port so one client with many connections shares a
// bucket.
func hostOnly(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
