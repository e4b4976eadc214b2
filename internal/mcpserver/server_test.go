package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/multicare-dataset/website/internal/casehub"
	"github.com/multicare-dataset/website/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	db, src := testutil.LoadedStore(t)
	return New(casehub.NewService(db, src, casehub.Options{}, testutil.Logger()))
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so dispatch to the
	// handler functions directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_cases":
		result, err = srv.searchCases(ctx, req)
	case "get_case":
		result, err = srv.getCase(ctx, req)
	case "parse_query":
		result, err = srv.parseQuery(ctx, req)
	case "match_text":
		result, err = srv.matchText(ctx, req)
	case "list_labels":
		result, err = srv.listLabels(ctx, req)
	case "get_query_syntax":
		result, err = srv.getQuerySyntax(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestSearchCases(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "search_cases", map[string]interface{}{
		"case_search": "fever",
		"gender":      "Male",
	})
	if r.IsError {
		t.Fatalf("search error: %s", resultText(r))
	}
	var page casehub.ResultPage
	if err := json.Unmarshal([]byte(resultText(r)), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 1 || page.Cases[0].CaseID != "PMC1_02" {
		t.Errorf("page = %+v", page)
	}
}

func TestSearchCases_ImagesPaged(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "search_cases", map[string]interface{}{
		"resource":  "image",
		"page":      2,
		"page_size": 2,
		"min_year":  2015,
	})
	var page casehub.ResultPage
	if err := json.Unmarshal([]byte(resultText(r)), &page); err != nil {
		t.Fatalf("decode: %v (%s)", err, resultText(r))
	}
	if page.Page != 2 || len(page.Images) != 2 || page.Images[0].File != "PMC2_01_fig1.jpg" {
		t.Errorf("page = %+v", page)
	}
}

func TestSearchCases_InvalidCriteria(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "search_cases", map[string]interface{}{"min_age": 90, "max_age": 10})
	if !r.IsError {
		t.Error("expected error for inverted age range")
	}
	r = callTool(t, srv, "search_cases", map[string]interface{}{"min_age": "old"})
	if !r.IsError {
		t.Error("expected error for non-numeric age")
	}
}

func TestGetCase(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "get_case", map[string]interface{}{"case_id": "PMC3_01"})
	text := resultText(r)
	if r.IsError || !strings.Contains(text, `"PMC3_01_fig2.jpg"`) || !strings.Contains(text, "Poe P.") {
		t.Errorf("get_case = %s", text)
	}

	r = callTool(t, srv, "get_case", map[string]interface{}{"case_id": "nope"})
	if !r.IsError {
		t.Error("expected error for missing case")
	}
	r = callTool(t, srv, "get_case", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error for missing case_id")
	}
}

func TestParseQuery(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "parse_query", map[string]interface{}{"query": "(Diabetes or diabetic) and hypertension"})
	var out struct {
		Normalized string `json:"normalized"`
	}
	_ = json.Unmarshal([]byte(resultText(r)), &out)
	if out.Normalized != "(diabetes or diabetic) AND (hypertension)" {
		t.Errorf("normalized = %q", out.Normalized)
	}
}

func TestMatchText(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "match_text", map[string]interface{}{
		"query": "seizure NOT fever",
		"text":  "A girl with a first Seizure.",
	})
	var out struct {
		Matches     bool   `json:"matches"`
		Highlighted string `json:"highlighted"`
	}
	_ = json.Unmarshal([]byte(resultText(r)), &out)
	if !out.Matches || out.Highlighted != "A girl with a first **Seizure**." {
		t.Errorf("match_text = %+v", out)
	}

	r = callTool(t, srv, "match_text", map[string]interface{}{"query": "x"})
	if !r.IsError {
		t.Error("expected error for missing text")
	}
}

func TestLabelsAndSyntax(t *testing.T) {
	srv := testServer(t)

	if text := resultText(callTool(t, srv, "list_labels", nil)); !strings.Contains(text, `"ophtalmic_angiography"`) {
		t.Errorf("labels = %s", text)
	}
	if text := resultText(callTool(t, srv, "get_query_syntax", nil)); text != QuerySyntaxGuide {
		t.Error("syntax tool should return the guide")
	}

	contents, err := srv.readQuerySyntaxResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.URI != syntaxURI {
		t.Errorf("resource contents = %+v", contents[0])
	}
}
