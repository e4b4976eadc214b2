package store

import (
	"context"
	"strings"

	"github.com/multicare-dataset/website/internal/models"
)

// ArticleFilter selects articles. Zero years are open bounds.
type ArticleFilter struct {
	MinYear        int
	MaxYear        int
	CommercialOnly bool
}

// CaseFilter selects cases. Nil ages and zero years are open bounds; an
// empty Gender or Query does not filter. Cases with an unknown age never
// satisfy an age bound.
type CaseFilter struct {
	MinYear int
	MaxYear int
	MinAge  *int
	MaxAge  *int
	Gender  string
	Query   string
}

// ImageFilter selects images. Every label in Labels must be present on the
// image; an empty Query does not filter.
type ImageFilter struct {
	MinYear int
	MaxYear int
	Labels  []string
	Query   string
}

// conds accumulates SQL predicates and their arguments.
type conds struct {
	clauses []string
	args    []any
}

func (c *conds) add(clause string, args ...any) {
	c.clauses = append(c.clauses, clause)
	c.args = append(c.args, args...)
}

func (c *conds) years(col string, minYear, maxYear int) {
	if minYear > 0 {
		c.add(col+" >= ?", minYear)
	}
	if maxYear > 0 {
		c.add(col+" <= ?", maxYear)
	}
}

func (c *conds) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

// Articles returns the articles matching f in dataset order.
func (db *DB) Articles(ctx context.Context, f ArticleFilter) ([]models.Article, error) {
	var c conds
	c.years("year", f.MinYear, f.MaxYear)
	if f.CommercialOnly {
		c.add("commercial_use = 1")
	}
	return db.queryArticles(ctx, c.where(), c.args...)
}

// Cases returns the cases matching f in dataset order. The free-text
// query is evaluated last so cheaper predicates prune rows first.
func (db *DB) Cases(ctx context.Context, f CaseFilter) ([]models.Case, error) {
	var c conds
	join := ""
	if f.MinYear > 0 || f.MaxYear > 0 {
		join = " JOIN articles a ON a.article_id = c.article_id"
		c.years("a.year", f.MinYear, f.MaxYear)
	}
	if f.MinAge != nil {
		c.add("c.age >= ?", *f.MinAge)
	}
	if f.MaxAge != nil {
		c.add("c.age <= ?", *f.MaxAge)
	}
	if f.Gender != "" {
		c.add("c.gender = ?", f.Gender)
	}
	if strings.TrimSpace(f.Query) != "" {
		c.add("text_matches(c.case_text, ?)", f.Query)
	}
	return db.queryCases(ctx, join+c.where(), c.args...)
}

// Images returns the images matching f in dataset order.
func (db *DB) Images(ctx context.Context, f ImageFilter) ([]models.Image, error) {
	var c conds
	join := ""
	if f.MinYear > 0 || f.MaxYear > 0 {
		join = " JOIN articles a ON a.article_id = i.article_id"
		c.years("a.year", f.MinYear, f.MaxYear)
	}
	for _, l := range f.Labels {
		if l == "" {
			continue
		}
		c.add("EXISTS (SELECT 1 FROM image_labels l WHERE l.file = i.file AND l.label = ?)", l)
	}
	if strings.TrimSpace(f.Query) != "" {
		c.add("text_matches(i.caption, ?)", f.Query)
	}
	return db.queryImages(ctx, join+c.where(), c.args...)
}
