package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/contactservice"
	"github.com/starford/dossier/internal/export"
	"github.com/starford/dossier/internal/models"
)

const maxBodyBytes = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *contactservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *contactservice.Service) *Handler {
	return &Handler{svc: svc}
}

func contactID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("id must be a positive integer: %w", apperr.ErrInvalidArgument)
	}
	return id, nil
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, apperr.ErrInvalidArgument)
	}
	return n, nil
}

// parseQuery reads the shared listing/search parameters. The text comes from
// "q", or "search" for clients of the older API.
func parseQuery(r *http.Request) (models.ContactQuery, error) {
	q := r.URL.Query()
	cq := models.ContactQuery{
		Text:         q.Get("q"),
		FileStatus:   models.FileStatus(strings.ToUpper(q.Get("file_status"))),
		ClientStatus: models.ClientStatus(strings.ToUpper(q.Get("client_status"))),
		Order:        models.Order(q.Get("order")),
	}
	if cq.Text == "" {
		cq.Text = q.Get("search")
	}
	var err error
	if cq.Limit, err = intParam(r, "limit"); err != nil {
		return cq, err
	}
	if cq.Offset, err = intParam(r, "offset"); err != nil {
		return cq, err
	}
	return cq, nil
}

func wantsLinkedDetails(r *http.Request) bool {
	for _, e := range strings.Split(r.URL.Query().Get("expand"), ",") {
		if strings.TrimSpace(e) == "linked_clients" {
			return true
		}
	}
	return false
}

// expand builds responses, inlining linked-client summaries when asked to.
func (h *Handler) expand(r *http.Request, contacts []models.Contact) ([]ContactResponse, error) {
	out := make([]ContactResponse, len(contacts))
	for i := range contacts {
		out[i].Contact = contacts[i]
	}
	if !wantsLinkedDetails(r) {
		return out, nil
	}

	var ids []int64
	for _, c := range contacts {
		ids = append(ids, c.LinkedClients...)
	}
	sums, err := h.svc.Summaries(r.Context(), ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]models.ContactSummary, len(sums))
	for _, s := range sums {
		byID[s.ID] = s
	}
	for i := range out {
		details := make([]models.ContactSummary, 0, len(out[i].LinkedClients))
		for _, id := range out[i].LinkedClients {
			if s, ok := byID[id]; ok {
				details = append(details, s)
			}
		}
		out[i].LinkedClientDetails = details
	}
	return out, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body: "+err.Error()))
		return false
	}
	return true
}

// ListContacts handles GET /api/contacts.
//
//	@Summary		List or search contacts
//	@Tags			contacts
//	@Produce		json
//	@Param			q				query		string	false	"Search text"
//	@Param			limit			query		int		false	"Page size (default 20, max 200)"
//	@Param			offset			query		int		false	"Page offset"
//	@Param			file_status		query		string	false	"Filter by file status"	Enums(OPEN, CLOSED)
//	@Param			client_status	query		string	false	"Filter by client status"	Enums(ALIVE, DECEASED)
//	@Param			order			query		string	false	"Sort order"	Enums(name, recent)
//	@Param			expand			query		string	false	"Inline related data"	Enums(linked_clients)
//	@Success		200				{object}	ContactListResponse
//	@Failure		400				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/contacts [get]
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, "list contacts", err)
		return
	}
	page, err := h.svc.Search(r.Context(), q)
	if err != nil {
		writeError(w, "list contacts", err)
		return
	}
	contacts := make([]models.Contact, len(page.Hits))
	for i, hit := range page.Hits {
		contacts[i] = hit.Contact
	}
	results, err := h.expand(r, contacts)
	if err != nil {
		writeError(w, "list contacts", err)
		return
	}
	writeJSON(w, http.StatusOK, ContactListResponse{
		Results: results,
		Total:   page.Total,
		Limit:   page.Limit,
		Offset:  page.Offset,
	})
}

// GetContact handles GET /api/contacts/{id}.
//
//	@Summary		Get a single contact
//	@Tags			contacts
//	@Produce		json
//	@Param			id		path		int		true	"Contact ID"
//	@Param			expand	query		string	false	"Inline related data"	Enums(linked_clients)
//	@Success		200		{object}	ContactResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/contacts/{id} [get]
func (h *Handler) GetContact(w http.ResponseWriter, r *http.Request) {
	id, err := contactID(r)
	if err != nil {
		writeError(w, "get contact", err)
		return
	}
	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, "get contact", err)
		return
	}
	h.writeContact(w, r, http.StatusOK, c)
}

func (h *Handler) writeContact(w http.ResponseWriter, r *http.Request, status int, c *models.Contact) {
	out, err := h.expand(r, []models.Contact{*c})
	if err != nil {
		writeError(w, "expand contact", err)
		return
	}
	writeJSON(w, status, out[0])
}

// CreateContact handles POST /api/contacts.
//
//	@Summary		Create a contact
//	@Tags			contacts
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ContactRequest	true	"Contact to create"
//	@Success		201		{object}	ContactResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/contacts [post]
func (h *Handler) CreateContact(w http.ResponseWriter, r *http.Request) {
	var req ContactRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeError(w, "create contact", err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/contacts/%d", c.ID))
	h.writeContact(w, r, http.StatusCreated, c)
}

// UpdateContact handles PUT /api/contacts/{id}.
//
//	@Summary		Replace every writable field of a contact
//	@Tags			contacts
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int				true	"Contact ID"
//	@Param			body	body		ContactRequest	true	"Full contact"
//	@Success		200		{object}	ContactResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/contacts/{id} [put]
func (h *Handler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	id, err := contactID(r)
	if err != nil {
		writeError(w, "update contact", err)
		return
	}
	var req ContactRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.svc.Update(r.Context(), id, req)
	if err != nil {
		writeError(w, "update contact", err)
		return
	}
	h.writeContact(w, r, http.StatusOK, c)
}

// PatchContact handles PATCH /api/contacts/{id}.
//
//	@Summary		Update selected fields of a contact
//	@Tags			contacts
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int					true	"Contact ID"
//	@Param			body	body		ContactPatchRequest	true	"Fields to change"
//	@Success		200		{object}	ContactResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/contacts/{id} [patch]
func (h *Handler) PatchContact(w http.ResponseWriter, r *http.Request) {
	id, err := contactID(r)
	if err != nil {
		writeError(w, "patch contact", err)
		return
	}
	var req ContactPatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.svc.Patch(r.Context(), id, req)
	if err != nil {
		writeError(w, "patch contact", err)
		return
	}
	h.writeContact(w, r, http.StatusOK, c)
}

// DeleteContact handles DELETE /api/contacts/{id}.
//
//	@Summary		Delete a contact and every link touching it
//	@Tags			contacts
//	@Param			id	path	int	true	"Contact ID"
//	@Success		204	"Contact deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/contacts/{id} [delete]
func (h *Handler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	id, err := contactID(r)
	if err != nil {
		writeError(w, "delete contact", err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, "delete contact", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LinkedClients handles GET /api/contacts/{id}/linked-clients.
//
//	@Summary		Contacts this contact links to
//	@Tags			links
//	@Produce		json
//	@Param			id	path		int	true	"Contact ID"
//	@Success		200	{array}		ContactResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/contacts/{id}/linked-clients [get]
func (h *Handler) LinkedClients(w http.ResponseWriter, r *http.Request) {
	h.neighbours(w, r, "linked clients", h.svc.Outgoing)
}

// LinkedFiles handles GET /api/contacts/{id}/linked-files.
//
//	@Summary		Contacts that link to this contact
//	@Tags			links
//	@Produce		json
//	@Param			id	path		int	true	"Contact ID"
//	@Success		200	{array}		ContactResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/contacts/{id}/linked-files [get]
func (h *Handler) LinkedFiles(w http.ResponseWriter, r *http.Request) {
	h.neighbours(w, r, "linked files", h.svc.Incoming)
}

func (h *Handler) neighbours(w http.ResponseWriter, r *http.Request, op string,
	load func(ctx context.Context, id int64) ([]models.Contact, error),
) {
	id, err := contactID(r)
	if err != nil {
		writeError(w, op, err)
		return
	}
	contacts, err := load(r.Context(), id)
	if err != nil {
		writeError(w, op, err)
		return
	}
	out, err := h.expand(r, contacts)
	if err != nil {
		writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Search handles GET /api/search.
//
//	@Summary		Ranked search across contacts
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search text"
//	@Param			limit	query		int		false	"Page size (default 20, max 200)"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	if strings.TrimSpace(q.Text) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	page, err := h.svc.Search(r.Context(), q)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	contacts := make([]models.Contact, len(page.Hits))
	for i, hit := range page.Hits {
		contacts[i] = hit.Contact
	}
	expanded, err := h.expand(r, contacts)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	results := make([]SearchResult, len(expanded))
	for i := range expanded {
		results[i] = SearchResult{ContactResponse: expanded[i], Rank: page.Hits[i].Rank}
	}
	writeJSON(w, http.StatusOK, SearchResponse{
		Query:   q.Text,
		Results: results,
		Total:   page.Total,
		Limit:   page.Limit,
		Offset:  page.Offset,
	})
}

// RelationshipReport handles GET /api/reports/relationships.
//
//	@Summary		Top files, top clients and link coverage
//	@Tags			reports
//	@Produce		json
//	@Success		200	{object}	RelationshipReportResponse
//	@Security		BearerAuth
//	@Router			/reports/relationships [get]
func (h *Handler) RelationshipReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Report(r.Context())
	if err != nil {
		writeError(w, "relationship report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// RelationshipReportXLSX handles GET /api/reports/relationships.xlsx.
//
//	@Summary		Relationship report as a spreadsheet
//	@Tags			reports
//	@Produce		application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
//	@Success		200	{file}	binary
//	@Security		BearerAuth
//	@Router			/reports/relationships.xlsx [get]
func (h *Handler) RelationshipReportXLSX(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Report(r.Context())
	if err != nil {
		writeError(w, "relationship report", err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteReport(&buf, report); err != nil {
		writeError(w, "export relationship report", err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="relationships.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
