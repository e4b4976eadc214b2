package api

import (
	"github.com/multicare-dataset/website/internal/casehub"
	"github.com/multicare-dataset/website/internal/query"
)

// ResultPage is one page of search results (aliased from the domain layer).
type ResultPage = casehub.ResultPage

// CaseDetail is a single case response (aliased from the domain layer).
type CaseDetail = casehub.CaseDetail

// LabelsResponse lists the accepted label filter values.
type LabelsResponse = casehub.Labels

// ParseQueryRequest is the request body for parsing a query.
type ParseQueryRequest struct {
	Query string `json:"query" example:"(diabetes or diabetic) AND hypertension NOT insulin" validate:"required"`
}

// ParseQueryResponse shows how a query is understood.
type ParseQueryResponse struct {
	Query      string            `json:"query" validate:"required"`
	Normalized string            `json:"normalized" example:"(diabetes or diabetic) AND (hypertension) NOT (insulin)"`
	Conditions []query.Condition `json:"conditions" validate:"required"`
}

// MatchRequest is the request body for evaluating a query against a text.
type MatchRequest struct {
	Query  string `json:"query" example:"fever NOT malaria" validate:"required"`
	Text   string `json:"text" example:"A 45-year-old woman presented with fever." validate:"required"`
	Marker string `json:"marker,omitempty" example:"html" enums:"html,markdown"`
}

// MatchResponse is the verdict for a MatchRequest.
type MatchResponse struct {
	Matches     bool         `json:"matches" example:"true"`
	Highlighted string       `json:"highlighted" example:"A 45-year-old woman presented with <mark>fever</mark>."`
	Spans       []query.Span `json:"spans"`
}
