// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes dossier tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/contactservice"
	"github.com/starford/dossier/internal/models"
)

const cardFormatURI = "dossier://card-format"

// Server wraps the MCP server with dossier tools.
type Server struct {
	mcp *server.MCPServer
	svc *contactservice.Service
}

// New creates a new MCP server with all dossier tools registered.
func New(svc *contactservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Dossier",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_contacts",
		mcp.WithDescription("Ranked search over contacts by name, file number, email, phone, address and company. "+
			"An empty query lists contacts in name order."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("query", mcp.Description("Search text")),
		mcp.WithString("file_status", mcp.Description("Filter by file status"), mcp.Enum("OPEN", "CLOSED")),
		mcp.WithString("client_status", mcp.Description("Filter by client status"), mcp.Enum("ALIVE", "DECEASED")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 200)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
	), s.searchContacts)

	s.mcp.AddTool(mcp.NewTool("get_contact",
		mcp.WithDescription("Read one contact, including the ids of its linked clients."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Contact id")),
	), s.getContact)

	s.mcp.AddTool(mcp.NewTool("linked_clients",
		mcp.WithDescription("List the contacts this contact links to, in name order."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Contact id")),
	), s.linkedClients)

	s.mcp.AddTool(mcp.NewTool("linked_files",
		mcp.WithDescription("List the contacts that link to this contact, in name order."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Contact id")),
	), s.linkedFiles)

	s.mcp.AddTool(mcp.NewTool("relationship_report",
		mcp.WithDescription("Contacts with the most linked clients, contacts linked from the most files, "+
			"and how many contacts have no links."),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.relationshipReport)

	s.mcp.AddTool(mcp.NewTool("get_card_contract",
		mcp.WithDescription("Returns the YAML contact-card format accepted by the import inbox."),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.getCardContract)

	s.mcp.AddResource(
		mcp.NewResource(cardFormatURI, "Contact Card Format",
			mcp.WithResourceDescription("YAML format for bulk-importing contacts through the inbox."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCardFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// toolError turns a service error into a tool-level error result. Only
// unclassified errors are returned as protocol errors.
func toolError(err error) (*mcp.CallToolResult, error) {
	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve):
		return mcp.NewToolResultError(ve.Error()), nil
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found"), nil
	case errors.Is(err, apperr.ErrInvalidArgument):
		return mcp.NewToolResultError(err.Error()), nil
	case errors.Is(err, apperr.ErrStorageUnavailable):
		return mcp.NewToolResultError("storage unavailable, retry later"), nil
	}
	return nil, err
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(out)), nil
}

func contactID(req mcp.CallToolRequest) (int64, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("id must be a positive integer")
	}
	return int64(id), nil
}

func (s *Server) searchContacts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := models.ContactQuery{
		Text:         req.GetString("query", ""),
		FileStatus:   models.FileStatus(strings.ToUpper(req.GetString("file_status", ""))),
		ClientStatus: models.ClientStatus(strings.ToUpper(req.GetString("client_status", ""))),
		Limit:        req.GetInt("limit", 0),
		Offset:       req.GetInt("offset", 0),
	}
	page, err := s.svc.Search(ctx, q)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(page)
}

func (s *Server) getContact(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := contactID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.svc.Get(ctx, id)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(c)
}

func (s *Server) linkedClients(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.neighbours(ctx, req, s.svc.Outgoing, "no linked clients")
}

func (s *Server) linkedFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.neighbours(ctx, req, s.svc.Incoming, "no linked files")
}

// neighbours renders one line per contact in display form.
func (s *Server) neighbours(ctx context.Context, req mcp.CallToolRequest,
	load func(context.Context, int64) ([]models.Contact, error), empty string,
) (*mcp.CallToolResult, error) {
	id, err := contactID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	contacts, err := load(ctx, id)
	if err != nil {
		return toolError(err)
	}
	if len(contacts) == 0 {
		return mcp.NewToolResultText(empty), nil
	}
	lines := make([]string, len(contacts))
	for i := range contacts {
		lines[i] = fmt.Sprintf("%d\t%s", contacts[i].ID, contacts[i].DisplayName())
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) relationshipReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := s.svc.Report(ctx)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(r)
}

func (s *Server) getCardContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CardFormatContract), nil
}

func (s *Server) readCardFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      cardFormatURI,
			MIMEType: "text/markdown",
			Text:     CardFormatContract,
		},
	}, nil
}
