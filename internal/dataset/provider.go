// Package dataset reads the case-report dataset tables from disk.
package dataset

import (
	"io"

	"github.com/multicare-dataset/website/internal/models"
)

// Source is the interface for dataset file access.
type Source interface {
	// List returns metadata for every recognised table file, sorted by name.
	List() ([]models.SourceFile, error)
	// Open returns a reader for the named table file.
	Open(name string) (io.ReadCloser, error)
	// ImagePath resolves an image file name to its absolute path.
	ImagePath(file string) (string, error)
}

// YearRange restricts which year-partitioned case files are used.
// A zero bound is open.
type YearRange struct {
	Min int
	Max int
}

// Contains reports whether the partition file overlaps the range.
func (y YearRange) Contains(f models.SourceFile) bool {
	minYear, maxYear := y.Min, y.Max
	if maxYear == 0 {
		maxYear = int(^uint(0) >> 1)
	}
	return f.Overlaps(minYear, maxYear)
}

// Partitions keeps the case files that overlap years plus every non-case
// file, so the caller can import only the slices of the dataset it needs.
func Partitions(files []models.SourceFile, years YearRange) []models.SourceFile {
	out := make([]models.SourceFile, 0, len(files))
	for _, f := range files {
		if f.Kind != models.TableCases || years.Contains(f) {
			out = append(out, f)
		}
	}
	return out
}
