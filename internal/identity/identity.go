// Package identity resolves the opaque identity string used as a
// rate-limit key, per spec.md's Data Model: configured header, then the
// first hop of X-Forwarded-For, then the remote peer address. Identity is
// never persisted.
package identity

import (
	"net/http"
	"strings"
)

// Resolve returns the identity for req, given the configured identity
// header name (e.g. "X-Identity").
func Resolve(req *http.Request, headerName string) string {
	if headerName != "" {
		if v := req.Header.Get(headerName); v != "" {
			return v
		}
	}

	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}

	return req.RemoteAddr
}
