// Package models defines the domain types of the clinical case hub.
package models

import "time"

// Article is one published case-report article.
type Article struct {
	ArticleID     string `json:"article_id"`
	Title         string `json:"title,omitempty"`
	Year          int    `json:"year"`
	Citation      string `json:"citation"`
	Link          string `json:"link"`
	CommercialUse bool   `json:"commercial_use_license"`
}

// Case is a single clinical case described inside an article.
type Case struct {
	CaseID    string `json:"case_id"`
	ArticleID string `json:"article_id"`
	Age       *int   `json:"age,omitempty"` // nil when the age is not reported
	Gender    string `json:"gender"`
	Text      string `json:"case_text"`
}

// Image is a figure attached to a case.
type Image struct {
	File      string   `json:"file"`
	CaseID    string   `json:"case_id"`
	ArticleID string   `json:"article_id"`
	Caption   string   `json:"caption"`
	Labels    []string `json:"labels"`
}

// HasLabel reports whether the image carries label.
func (img Image) HasLabel(label string) bool {
	for _, l := range img.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// TableKind identifies which dataset table a source file feeds.
type TableKind string

// Dataset tables.
const (
	TableArticles TableKind = "articles"
	TableCases    TableKind = "cases"
	TableImages   TableKind = "images"
)

// FileFormat is the encoding of a dataset file.
type FileFormat string

// Dataset file formats.
const (
	FormatParquet FileFormat = "parquet"
	FormatCSV     FileFormat = "csv"
)

// SourceFile describes one dataset file on disk.
type SourceFile struct {
	Name      string     `json:"name"`
	Kind      TableKind  `json:"kind"`
	Format    FileFormat `json:"format"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
	// MinYear and MaxYear are set for year-partitioned case files.
	MinYear int `json:"min_year,omitempty"`
	MaxYear int `json:"max_year,omitempty"`
}

// Overlaps reports whether the partition covers any year in [minYear, maxYear].
// Files without a year range always overlap.
func (f SourceFile) Overlaps(minYear, maxYear int) bool {
	if f.MinYear == 0 && f.MaxYear == 0 {
		return true
	}
	return maxYear >= f.MinYear && minYear <= f.MaxYear
}
