// Package middleware holds the API key and rate limit guards of the HTTP API.
package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type Keys struct {
	Public []string
	Admin  []string
}

// Role is what a presented key grants.
type Role string

const (
	RoleNone   Role = ""
	RolePublic Role = "public"
	RoleAdmin  Role = "admin"
	// RoleOpen marks requests let through because no keys are configured.
	RoleOpen Role = "open"
)

// roleOf resolves a key, admin first so a key listed twice gets the wider role.
func (k Keys) roleOf(key string) Role {
	switch {
	case key == "":
		return RoleNone
	case inSet(key, k.Admin):
		return RoleAdmin
	case inSet(key, k.Public):
		return RolePublic
	default:
		return RoleNone
	}
}

func inSet(key string, set []string) bool {
	for _, s := range set {
		if subtle.ConstantTimeCompare([]byte(s), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

// apiKey reads a bearer token, falling back to X-API-Key.
func apiKey(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

type roleKey struct{}

// RoleFrom returns the role stored by RequireAny or RequireAdmin.
func RoleFrom(ctx context.Context) Role {
	r, _ := ctx.Value(roleKey{}).(Role)
	return r
}

func withRole(r *http.Request, role Role) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), roleKey{}, role))
}

func deny(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

// RequireAny admits public and admin keys. With no keys configured every
// request passes as RoleOpen (local dev).
func RequireAny(keys Keys) func(http.Handler) http.Handler {
	open := len(keys.Public) == 0 && len(keys.Admin) == 0
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open {
				next.ServeHTTP(w, withRole(r, RoleOpen))
				return
			}
			role := keys.roleOf(apiKey(r))
			if role == RoleNone {
				deny(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, withRole(r, role))
		})
	}
}

// RequireAdmin admits admin keys only: a missing key is 401, any other key
// 403. Without admin keys everything passes.
func RequireAdmin(keys Keys) func(http.Handler) http.Handler {
	open := len(keys.Admin) == 0
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open {
				next.ServeHTTP(w, withRole(r, RoleOpen))
				return
			}
			key := apiKey(r)
			switch keys.roleOf(key) {
			case RoleAdmin:
				next.ServeHTTP(w, withRole(r, RoleAdmin))
			default:
				if key == "" {
					deny(w, http.StatusUnauthorized, "unauthorized")
					return
				}
				deny(w, http.StatusForbidden, "forbidden")
			}
		})
	}
}
