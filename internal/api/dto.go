package api

import (
	"github.com/starford/dossier/internal/models"
)

// ContactRequest is the body of POST /contacts and PUT /contacts/{id}.
type ContactRequest = models.ContactInput

// ContactPatchRequest is the body of PATCH /contacts/{id}.
type ContactPatchRequest = models.ContactPatch

// ContactResponse is a contact with optional inline summaries of its linked clients.
type ContactResponse struct {
	models.Contact
	LinkedClientDetails []models.ContactSummary `json:"linked_client_details,omitempty"`
}

// ContactListResponse wraps a page of contacts.
type ContactListResponse struct {
	Results []ContactResponse `json:"results" validate:"required"`
	Total   int               `json:"total" example:"42" validate:"required"`
	Limit   int               `json:"limit" example:"20" validate:"required"`
	Offset  int               `json:"offset" example:"0" validate:"required"`
}

// SearchResult is a single ranked hit.
type SearchResult struct {
	ContactResponse
	Rank float64 `json:"rank" example:"0.42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Query   string         `json:"query" example:"smith"`
	Results []SearchResult `json:"results" validate:"required"`
	Total   int            `json:"total" example:"3" validate:"required"`
	Limit   int            `json:"limit" example:"20" validate:"required"`
	Offset  int            `json:"offset" example:"0" validate:"required"`
}

// RelationshipReportResponse is the relationship report payload.
type RelationshipReportResponse = models.RelationshipReport
