// Package casehub answers structured searches over the case-report
// dataset: it validates criteria, selects and harmonizes the matching
// articles, cases and images, and pages the results.
package casehub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/multicare-dataset/website/internal/checksum"
	"github.com/multicare-dataset/website/internal/dataset"
	"github.com/multicare-dataset/website/internal/models"
	"github.com/multicare-dataset/website/internal/query"
	"github.com/multicare-dataset/website/internal/store"
)

// Defaults for Options.
const (
	DefaultCacheSize   = 64
	DefaultPageSize    = 5
	DefaultMaxPageSize = 50
)

// Options tunes a Service. Zero values fall back to the defaults.
type Options struct {
	CacheSize   int
	PageSize    int
	MaxPageSize int
}

// Service coordinates the store and the selection cache.
type Service struct {
	db          store.CaseIndex
	src         dataset.Source
	cache       *lru.Cache[string, *Selection]
	pageSize    int
	maxPageSize int
	logger      *slog.Logger

	// gen counts invalidations. A selection fetched under an older
	// generation is returned but never cached.
	mu  sync.Mutex
	gen uint64
}

// NewService creates a new case hub service.
func NewService(db store.CaseIndex, src dataset.Source, opts Options, logger *slog.Logger) *Service {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = DefaultMaxPageSize
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	opts.PageSize = min(opts.PageSize, opts.MaxPageSize)
	cache, _ := lru.New[string, *Selection](opts.CacheSize)
	return &Service{
		db:          db,
		src:         src,
		cache:       cache,
		pageSize:    opts.PageSize,
		maxPageSize: opts.MaxPageSize,
		logger:      logger,
	}
}

// CaseResult is one case in a result page.
type CaseResult struct {
	models.Case
	HighlightedText string         `json:"highlighted_text"`
	Article         models.Article `json:"article"`
	Images          []ImageResult  `json:"images,omitempty"`
}

// ImageResult is one image in a result page, with its patient summary.
type ImageResult struct {
	models.Image
	HighlightedCaption string         `json:"highlighted_caption"`
	Age                *int           `json:"age,omitempty"`
	Gender             string         `json:"gender"`
	Article            models.Article `json:"article"`
}

// ResultPage is one page of a search.
type ResultPage struct {
	Criteria   Criteria      `json:"criteria"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int           `json:"total_pages"`
	Cases      []CaseResult  `json:"cases,omitempty"`
	Images     []ImageResult `json:"images,omitempty"`
}

// CaseDetail is a single case with its article and every image.
type CaseDetail struct {
	models.Case
	Article *models.Article `json:"article,omitempty"`
	Images  []models.Image  `json:"images"`
}

// Labels lists the values accepted by the label filters.
type Labels struct {
	ImageTypes         []string `json:"image_types"`
	AnatomicalRegions  []string `json:"anatomical_regions"`
	RegionalImageTypes []string `json:"regional_image_types"`
}

// Select validates c and returns the harmonized selection it describes.
// Selections are cached until Invalidate is called.
func (s *Service) Select(ctx context.Context, c Criteria) (*Selection, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return s.selection(ctx, c)
}

func (s *Service) selection(ctx context.Context, c Criteria) (*Selection, error) {
	key, err := cacheKey(c)
	if err != nil {
		return nil, err
	}
	if sel, ok := s.cache.Get(key); ok {
		return sel, nil
	}
	gen := s.generation()

	var (
		articles []models.Article
		cases    []models.Case
		images   []models.Image
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		articles, err = s.db.Articles(gctx, c.articleFilter())
		return err
	})
	g.Go(func() error {
		var err error
		cases, err = s.db.Cases(gctx, c.caseFilter())
		return err
	})
	g.Go(func() error {
		var err error
		images, err = s.db.Images(gctx, c.imageFilter())
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("casehub: select: %w", err)
	}

	sel := Harmonize(articles, cases, images)
	cached := s.remember(gen, key, sel)
	s.logger.Debug("casehub: selected",
		slog.Int("articles", len(sel.Articles)),
		slog.Int("cases", len(sel.Cases)),
		slog.Int("images", len(sel.Images)),
		slog.Bool("cached", cached))
	return sel, nil
}

func (s *Service) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// remember caches sel unless the store was invalidated since gen was read.
func (s *Service) remember(gen uint64, key string, sel *Selection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	s.cache.Add(key, sel)
	return true
}

// cacheKey identifies the selection of c. Resource only changes how a
// selection is paged, so it is left out.
func cacheKey(c Criteria) (string, error) {
	c.Resource = ""
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("casehub: cache key: %w", err)
	}
	return checksum.Sum(data), nil
}

// Search returns one page of results for c. page is clamped to the
// available pages; pageSize <= 0 uses the service default.
func (s *Service) Search(ctx context.Context, c Criteria, page, pageSize int) (*ResultPage, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	sel, err := s.selection(ctx, c)
	if err != nil {
		return nil, err
	}

	total := len(sel.Cases)
	if c.Resource == ResourceImage {
		total = len(sel.Images)
	}
	res := &ResultPage{Criteria: c, Total: total}
	res.PageSize = s.clampPageSize(pageSize)
	res.TotalPages = (total + res.PageSize - 1) / res.PageSize
	res.Page = max(1, min(page, res.TotalPages))

	start := min((res.Page-1)*res.PageSize, total)
	end := min(start+res.PageSize, total)

	switch c.Resource {
	case ResourceImage:
		res.Images = make([]ImageResult, 0, end-start)
		for _, img := range sel.Images[start:end] {
			res.Images = append(res.Images, imageResult(sel, img, c.CaptionSearch))
		}
	default:
		res.Cases = make([]CaseResult, 0, end-start)
		for _, cs := range sel.Cases[start:end] {
			r := CaseResult{
				Case:            cs,
				HighlightedText: query.Highlight(cs.Text, c.CaseSearch, query.HTMLMarker),
			}
			r.Article, _ = sel.Article(cs.ArticleID)
			if c.Resource == ResourceBoth {
				for _, img := range sel.ImagesOf(cs.CaseID) {
					r.Images = append(r.Images, imageResult(sel, img, c.CaptionSearch))
				}
			}
			res.Cases = append(res.Cases, r)
		}
	}
	return res, nil
}

func (s *Service) clampPageSize(n int) int {
	if n <= 0 {
		return s.pageSize
	}
	return min(n, s.maxPageSize)
}

func imageResult(sel *Selection, img models.Image, captionQuery string) ImageResult {
	r := ImageResult{
		Image:              img,
		HighlightedCaption: query.Highlight(img.Caption, captionQuery, query.HTMLMarker),
	}
	if cs, ok := sel.Case(img.CaseID); ok {
		r.Age = cs.Age
		r.Gender = cs.Gender
	}
	r.Article, _ = sel.Article(img.ArticleID)
	return r
}

// Case returns a case with its article and all of its images, ignoring
// any search criteria.
func (s *Service) Case(ctx context.Context, id string) (*CaseDetail, error) {
	cs, err := s.db.Case(ctx, id)
	if err != nil {
		return nil, err
	}
	images, err := s.db.ImagesForCase(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &CaseDetail{Case: *cs, Images: images}
	if a, err := s.db.Article(ctx, cs.ArticleID); err == nil {
		d.Article = a
	}
	return d, nil
}

// ImagePath resolves a dataset image to its file on disk. Only images
// listed in the image table are served.
func (s *Service) ImagePath(ctx context.Context, file string) (string, error) {
	if _, err := s.db.Image(ctx, file); err != nil {
		return "", err
	}
	return s.src.ImagePath(file)
}

// Labels returns the known label values.
func (s *Service) Labels() Labels {
	return Labels{
		ImageTypes:         models.ImageTypeLabels,
		AnatomicalRegions:  models.AnatomicalRegionLabels,
		RegionalImageTypes: models.RegionalImageTypes,
	}
}

// Stats returns the store statistics.
func (s *Service) Stats(ctx context.Context) (*store.Stats, error) {
	return s.db.Stats(ctx)
}

// Invalidate drops every cached selection. Call it after the store changes.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.gen++
	n := s.cache.Len()
	s.cache.Purge()
	s.mu.Unlock()
	s.logger.Debug("casehub: selections invalidated", slog.Int("dropped", n))
}
