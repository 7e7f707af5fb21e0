package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey struct{}

// devClaims is attached to every request when auth is disabled.
var devClaims = &Claims{Role: RoleAdmin}

// Middleware authenticates the Bearer token and stores its claims in the
// request context. Missing or invalid tokens get 401.
func (i *Issuer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !i.Enabled() {
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), devClaims)))
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			deny(w, http.StatusUnauthorized, "UNAUTHORIZED", "authorization required")
			return
		}
		claims, err := i.Parse(token)
		if err != nil {
			deny(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// Require rejects requests whose role lacks p with 403. Use after Middleware.
func Require(p Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := FromContext(r.Context())
			if claims == nil {
				deny(w, http.StatusUnauthorized, "UNAUTHORIZED", "authorization required")
				return
			}
			if !claims.Role.Can(p) {
				deny(w, http.StatusForbidden, "FORBIDDEN", "missing permission "+string(p))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

func FromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(contextKey{}).(*Claims)
	return c
}

// Subject returns the authenticated subject, or "" when unknown.
func Subject(ctx context.Context) string {
	if c := FromContext(ctx); c != nil {
		return c.Subject
	}
	return ""
}

func deny(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
