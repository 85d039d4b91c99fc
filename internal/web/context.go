package web

import (
	"net"
	"net/http"

	"github.com/JonMunkholm/completions/internal/core"
)

// requestMetadata records client IP and User-Agent in the context for
// activity entries. RemoteAddr was already rewritten by TrustedRealIP.
func requestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := core.ContextWithIPAddress(r.Context(), clientKey(r))
		ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientKey is the client address without port.
func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// session returns the session the Authenticator attached to r.
func session(r *http.Request) *core.Session {
	return core.SessionFromContext(r.Context())
}
