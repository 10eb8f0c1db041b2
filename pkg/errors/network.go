// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors

import (
	stderrors "errors"
	"net"
	"syscall"
)

// IsConnectionError reports whether err stems from failing to reach a remote
// host: refused or reset connections, DNS failures and dial errors.
// HTTP error statuses returned by a reachable server do not count.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if stderrors.Is(err, syscall.ECONNREFUSED) ||
		stderrors.Is(err, syscall.ECONNRESET) ||
		stderrors.Is(err, syscall.EHOSTUNREACH) ||
		stderrors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if stderrors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	return false
}

// ClassifyUpstream wraps err with unreachable when the remote host could not
// be reached and with failure otherwise.
func ClassifyUpstream(err error, unreachable, failure Code, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if IsConnectionError(err) {
		return Wrapf(err, unreachable, format, args...)
	}
	return Wrapf(err, failure, format, args...)
}
