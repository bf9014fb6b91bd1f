// Package middleware carries the HTTP cross-cutting layers: request ids,
// access logging, bearer-token authentication and the public signup rate
// limiter. Everything downstream reads request-scoped values through the
// accessors here.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/bracketops/tournament-core/services"
)

type contextKey string

const (
	principalContextKey contextKey = "principal"
	requestIDContextKey contextKey = "requestID"
)

// TokenParser validates a signed token and returns the caller it identifies.
// Implemented by services.AuthService.
type TokenParser interface {
	ParseToken(token string) (*services.Principal, error)
}

// Authenticate extracts the bearer token, validates it and stores the
// principal in the request context. Browsers cannot set headers on websocket
// handshakes, so a token query parameter is accepted as a fallback.
func Authenticate(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				unauthorized(w, r, "missing bearer token")
				return
			}

			principal, err := parser.ParseToken(token)
			if err != nil {
				unauthorized(w, r, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext returns the authenticated caller, or nil when the
// request did not pass through Authenticate.
func PrincipalFromContext(ctx context.Context) *services.Principal {
	principal, _ := ctx.Value(principalContextKey).(*services.Principal)
	return principal
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// unauthorized writes the standard error envelope without depending on the
// handlers package.
func unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error": map[string]interface{}{
			"code":    "unauthorized",
			"message": message,
		},
		"requestId": RequestIDFromContext(r.Context()),
	})
}
