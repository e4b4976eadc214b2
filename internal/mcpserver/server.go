// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes case hub tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/multicare-dataset/website/internal/apperr"
	"github.com/multicare-dataset/website/internal/casehub"
	"github.com/multicare-dataset/website/internal/query"
)

const syntaxURI = "casehub://query-syntax"

// Server wraps the MCP server with case hub tools.
type Server struct {
	mcp *server.MCPServer
	svc *casehub.Service
}

// New creates a new MCP server with all case hub tools registered.
func New(svc *casehub.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Clinical Case Hub",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_cases",
		mcp.WithDescription("Search clinical case reports and their images. "+
			"case_search and caption_search accept the boolean query language described "+
			"by the get_query_syntax tool or the "+syntaxURI+" resource."),
		mcp.WithString("case_search", mcp.Description("Boolean query over case text, e.g. \"(diabetes or diabetic) AND hypertension\"")),
		mcp.WithString("caption_search", mcp.Description("Boolean query over image captions")),
		mcp.WithNumber("min_age", mcp.Description("Minimum patient age, 0 disables")),
		mcp.WithNumber("max_age", mcp.Description("Maximum patient age, 100 disables")),
		mcp.WithString("gender", mcp.Enum(casehub.GenderAny, casehub.GenderFemale, casehub.GenderMale)),
		mcp.WithString("image_type_label", mcp.Description("Image type the images must carry, e.g. mri")),
		mcp.WithString("anatomical_region_label", mcp.Description("Anatomical region the images must carry, e.g. head")),
		mcp.WithNumber("min_year", mcp.Description("First publication year (1990-2024)")),
		mcp.WithNumber("max_year", mcp.Description("Last publication year (1990-2024)")),
		mcp.WithString("resource", mcp.Enum(string(casehub.ResourceText), string(casehub.ResourceImage), string(casehub.ResourceBoth))),
		mcp.WithString("license", mcp.Enum(casehub.LicenseAll, casehub.LicenseCommercial)),
		mcp.WithNumber("page", mcp.Description("Page number, from 1")),
		mcp.WithNumber("page_size", mcp.Description("Results per page")),
	), s.searchCases)

	s.mcp.AddTool(mcp.NewTool("get_case",
		mcp.WithDescription("Read one clinical case with its article citation and images."),
		mcp.WithString("case_id", mcp.Required(), mcp.Description("Case ID, e.g. PMC1234567_01")),
	), s.getCase)

	s.mcp.AddTool(mcp.NewTool("parse_query",
		mcp.WithDescription("Show how a boolean query is split into AND/NOT groups of synonyms."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Query string")),
	), s.parseQuery)

	s.mcp.AddTool(mcp.NewTool("match_text",
		mcp.WithDescription("Evaluate a boolean query against a text and highlight the matched terms."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Query string")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to test")),
	), s.matchText)

	s.mcp.AddTool(mcp.NewTool("list_labels",
		mcp.WithDescription("List the accepted image type and anatomical region labels."),
	), s.listLabels)

	s.mcp.AddTool(mcp.NewTool("get_query_syntax",
		mcp.WithDescription("Returns the guide to the boolean query language. "+
			"Call this before composing case_search or caption_search."),
	), s.getQuerySyntax)

	// Resource: query language guide.
	s.mcp.AddResource(
		mcp.NewResource(syntaxURI, "Query Syntax",
			mcp.WithResourceDescription("Boolean free-text query language used by the search filters."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readQuerySyntaxResource,
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

type searchArgs struct {
	casehub.Criteria
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// decodeSearchArgs overlays the tool arguments onto the default criteria.
func decodeSearchArgs(req mcp.CallToolRequest) (searchArgs, error) {
	args := searchArgs{Criteria: casehub.DefaultCriteria(), Page: 1}
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return args, err
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, fmt.Errorf("invalid arguments: %w", err)
	}
	return args, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) searchCases(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decodeSearchArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, err := s.svc.Search(ctx, args.Criteria, args.Page, args.PageSize)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(page), nil
}

func (s *Server) getCase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("case_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.Case(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d), nil
}

func (s *Server) parseQuery(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	parsed := query.Parse(q)
	conds := []query.Condition(parsed)
	if conds == nil {
		conds = []query.Condition{}
	}
	return jsonResult(map[string]any{
		"normalized": parsed.String(),
		"conditions": conds,
	}), nil
}

func (s *Server) matchText(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"matches":     query.Matches(text, q),
		"highlighted": query.Highlight(text, q, query.MarkdownMarker),
	}), nil
}

func (s *Server) listLabels(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Labels()), nil
}

func (s *Server) getQuerySyntax(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(QuerySyntaxGuide), nil
}

func (s *Server) readQuerySyntaxResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      syntaxURI,
			MIMEType: "text/markdown",
			Text:     QuerySyntaxGuide,
		},
	}, nil
}
