package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/completions/internal/config"
	"github.com/JonMunkholm/completions/internal/core"
	"github.com/golang-jwt/jwt/v5"
)

// SessionCookie carries the token for browser requests that cannot set
// an Authorization header (EventSource, plain links).
const SessionCookie = "completions_session"

// Claims is the payload of a session token issued by the identity
// provider.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// SessionStarter resolves a verified identity to a session.
// *core.Service implements it.
type SessionStarter interface {
	SignIn(ctx context.Context, email string, expiresAt time.Time) (*core.Session, error)
}

// Authenticator verifies HS256 session tokens and puts the resulting
// core.Session in the request context.
type Authenticator struct {
	secret  []byte
	parser  *jwt.Parser
	starter SessionStarter
}

func NewAuthenticator(cfg config.AuthConfig, starter SessionStarter) *Authenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Authenticator{
		secret:  []byte(cfg.JWTSecret),
		parser:  jwt.NewParser(opts...),
		starter: starter,
	}
}

// Verify checks the signature and registered claims of raw.
func (a *Authenticator) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims.Email == "" {
		return nil, errors.New("token has no email claim")
	}
	return claims, nil
}

// Middleware rejects requests without a valid token with 401, and
// tokens for unknown accounts with 403.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := tokenFromRequest(r)
		if raw == "" {
			authError(w, r, http.StatusUnauthorized, "AUTH001", "not signed in", nil)
			return
		}

		claims, err := a.Verify(raw)
		if err != nil {
			authError(w, r, http.StatusUnauthorized, "AUTH002", "invalid or expired session", err)
			return
		}

		sess, err := a.starter.SignIn(r.Context(), claims.Email, claims.ExpiresAt.Time)
		switch {
		case errors.Is(err, core.ErrForbidden):
			authError(w, r, http.StatusForbidden, "AUTH003", "no account for this sign-in", err)
			return
		case errors.Is(err, core.ErrSessionEnded):
			authError(w, r, http.StatusUnauthorized, "AUTH002", "invalid or expired session", err)
			return
		case err != nil:
			authError(w, r, http.StatusServiceUnavailable, "DB004", "unable to verify account", err)
			return
		}

		setRequestUser(r.Context(), sess.UserID)
		next.ServeHTTP(w, r.WithContext(core.ContextWithSession(r.Context(), sess)))
	})
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func authError(w http.ResponseWriter, r *http.Request, status int, code, msg string, err error) {
	attrs := []any{"path", r.URL.Path, "method", r.Method, "remote_addr", r.RemoteAddr, "code", code}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	slog.Warn("auth: rejected", attrs...)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q,"message":%q,"code":%q}`, msg, msg, code)
}
