// Package api implements the dossier REST API using chi.
package api

import (
	"context"
	"net/http"
	"strings"
)

// Permission is one of the access points guarded by the API.
type Permission string

const (
	PermRead   Permission = "read"
	PermCreate Permission = "create"
	PermUpdate Permission = "update"
	PermDelete Permission = "delete"
)

// AuthConfig selects how callers are authenticated. With Enabled false every
// caller holds every permission. Token grants every permission; ReadToken,
// if set, grants PermRead only.
type AuthConfig struct {
	Enabled   bool
	Token     string
	ReadToken string
}

type grantsKey struct{}

var (
	allGrants  = map[Permission]bool{PermRead: true, PermCreate: true, PermUpdate: true, PermDelete: true}
	readGrants = map[Permission]bool{PermRead: true}
)

// AuthMiddleware validates the Bearer token and records the caller's grants.
func AuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			grants := allGrants
			if cfg.Enabled {
				auth := r.Header.Get("Authorization")
				token, ok := strings.CutPrefix(auth, "Bearer ")
				switch {
				case ok && token == cfg.Token:
				case ok && cfg.ReadToken != "" && token == cfg.ReadToken:
					grants = readGrants
				default:
					writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), grantsKey{}, grants)))
		})
	}
}

// Require rejects callers that do not hold p.
func Require(p Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			grants, _ := r.Context().Value(grantsKey{}).(map[Permission]bool)
			if !grants[p] {
				writeJSON(w, http.StatusForbidden, errorBody("forbidden: "+string(p)+" permission required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
