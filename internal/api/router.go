package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dossier/internal/contactservice"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *contactservice.Service, auth AuthConfig, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(auth))

	read := r.With(Require(PermRead))

	// Contacts CRUD.
	read.Get("/contacts", h.ListContacts)
	r.With(Require(PermCreate)).Post("/contacts", h.CreateContact)
	read.Get("/contacts/{id}", h.GetContact)
	r.With(Require(PermUpdate)).Put("/contacts/{id}", h.UpdateContact)
	r.With(Require(PermUpdate)).Patch("/contacts/{id}", h.PatchContact)
	r.With(Require(PermDelete)).Delete("/contacts/{id}", h.DeleteContact)

	// Link graph.
	read.Get("/contacts/{id}/linked-clients", h.LinkedClients)
	read.Get("/contacts/{id}/linked-files", h.LinkedFiles)

	// Search.
	read.Get("/search", h.Search)

	// Reports.
	read.Get("/reports/relationships", h.RelationshipReport)
	read.Get("/reports/relationships.xlsx", h.RelationshipReportXLSX)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		read.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
