package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/multicare-dataset/website/internal/apperr"
	"github.com/multicare-dataset/website/internal/casehub"
	"github.com/multicare-dataset/website/internal/query"
)

const maxBodyBytes = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *casehub.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *casehub.Service) *Handler {
	return &Handler{svc: svc}
}

// criteriaFromQuery overlays URL query parameters onto the default criteria.
func criteriaFromQuery(q url.Values) (casehub.Criteria, error) {
	c := casehub.DefaultCriteria()
	ints := []struct {
		name string
		dst  *int
	}{
		{"min_age", &c.MinAge},
		{"max_age", &c.MaxAge},
		{"min_year", &c.MinYear},
		{"max_year", &c.MaxYear},
	}
	for _, p := range ints {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("%s must be an integer", p.name)
		}
		*p.dst = n
	}
	strs := []struct {
		name string
		dst  *string
	}{
		{"gender", &c.Gender},
		{"case_search", &c.CaseSearch},
		{"image_type_label", &c.ImageTypeLabel},
		{"anatomical_region_label", &c.AnatomicalRegionLabel},
		{"caption_search", &c.CaptionSearch},
		{"license", &c.License},
	}
	for _, p := range strs {
		if q.Has(p.name) {
			*p.dst = q.Get(p.name)
		}
	}
	if q.Has("resource") {
		c.Resource = casehub.Resource(q.Get("resource"))
	}
	return c, nil
}

// Search handles GET /api/search.
//
//	@Summary		Search cases and images
//	@Tags			search
//	@Produce		json
//	@Param			case_search				query		string	false	"Boolean query over case text"
//	@Param			caption_search			query		string	false	"Boolean query over image captions"
//	@Param			min_age					query		int		false	"Minimum patient age (0 disables)"
//	@Param			max_age					query		int		false	"Maximum patient age (100 disables)"
//	@Param			gender					query		string	false	"Patient gender"	Enums(Any, Female, Male)
//	@Param			image_type_label		query		string	false	"Required image type label"
//	@Param			anatomical_region_label	query		string	false	"Required anatomical region label"
//	@Param			min_year				query		int		false	"First publication year"
//	@Param			max_year				query		int		false	"Last publication year"
//	@Param			resource				query		string	false	"What to page over"	Enums(text, image, both)
//	@Param			license					query		string	false	"Article license"	Enums(all, commercial)
//	@Param			page					query		int		false	"Page number, from 1"
//	@Param			page_size				query		int		false	"Results per page"
//	@Success		200						{object}	ResultPage
//	@Failure		400						{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c, err := criteriaFromQuery(q)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	res, err := h.svc.Search(r.Context(), c, page, pageSize)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidCriteria) {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		} else {
			slog.Error("search failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetCase handles GET /api/cases/{caseID}.
//
//	@Summary		Get a single case with its article and images
//	@Tags			cases
//	@Produce		json
//	@Param			caseID	path		string	true	"Case ID"
//	@Success		200		{object}	CaseDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cases/{caseID} [get]
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "caseID")
	d, err := h.svc.Case(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get case failed", slog.String("case_id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Labels handles GET /api/labels.
//
//	@Summary		List image label filter values
//	@Tags			search
//	@Produce		json
//	@Success		200	{object}	LabelsResponse
//	@Security		BearerAuth
//	@Router			/labels [get]
func (h *Handler) Labels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Labels())
}

// Stats handles GET /api/stats.
//
//	@Summary		Dataset row counts and imported sources
//	@Tags			dataset
//	@Produce		json
//	@Success		200	{object}	store.Stats
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		slog.Error("stats failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ParseQuery handles POST /api/query/parse.
//
//	@Summary		Show how a boolean query is parsed
//	@Tags			query
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ParseQueryRequest	true	"Query to parse"
//	@Success		200		{object}	ParseQueryResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/query/parse [post]
func (h *Handler) ParseQuery(w http.ResponseWriter, r *http.Request) {
	var req ParseQueryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	parsed := query.Parse(req.Query)
	conds := []query.Condition(parsed)
	if conds == nil {
		conds = []query.Condition{}
	}
	writeJSON(w, http.StatusOK, ParseQueryResponse{
		Query:      req.Query,
		Normalized: parsed.String(),
		Conditions: conds,
	})
}

// MatchQuery handles POST /api/query/match.
//
//	@Summary		Evaluate a boolean query against a text
//	@Tags			query
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MatchRequest	true	"Query and text"
//	@Success		200		{object}	MatchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/query/match [post]
func (h *Handler) MatchQuery(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	marker := query.HTMLMarker
	switch req.Marker {
	case "", "html":
	case "markdown":
		marker = query.MarkdownMarker
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("marker must be html or markdown"))
		return
	}
	spans := query.Spans(req.Text, req.Query)
	if spans == nil {
		spans = []query.Span{}
	}
	writeJSON(w, http.StatusOK, MatchResponse{
		Matches:     query.Matches(req.Text, req.Query),
		Highlighted: query.Highlight(req.Text, req.Query, marker),
		Spans:       spans,
	})
}
