// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"contractbuilder/internal/auth"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const (
	// ClaimsKey is the context key for verified token claims.
	ClaimsKey contextKey = "claims"
)

// TokenVerifier checks a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Authenticate verifies the bearer token, if any, and stores its claims in
// the request context. Downstream handlers can access them via
// ClaimsFromCtx(). A missing token is not an error; an invalid one is.
func Authenticate(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "malformed authorization header")
				return
			}

			claims, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				slog.Debug("token rejected", "path", r.URL.Path, "error", err)
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests without verified claims with 401.
// Must be applied after Authenticate in the middleware chain.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ClaimsFromCtx(r.Context()) == nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="contractbuilder"`)
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClaimsFromCtx extracts the verified claims from the request context.
// Returns nil if the request is not authenticated.
func ClaimsFromCtx(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(ClaimsKey).(*auth.Claims)
	return claims
}

// AuthorFromCtx returns the subject of the authenticated caller, or "".
func AuthorFromCtx(ctx context.Context) string {
	if c := ClaimsFromCtx(ctx); c != nil {
		return c.Subject
	}
	return ""
}
