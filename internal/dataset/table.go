package dataset

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/multicare-dataset/website/internal/models"
)

// rows is a decoded table whose columns are addressed by name.
type rows interface {
	has(name string) bool
	each(fn func(rec record) error) error
}

// record is one row of a table.
type record interface {
	// get returns the first of names present in the row, or "".
	get(names ...string) string
	// list returns a list column; string cells are parsed as list literals.
	list(names ...string) []string
	errorf(format string, args ...any) error
}

// Decoder reads the dataset tables of one file format.
type Decoder struct {
	open func(r io.Reader) (rows, error)
}

// Table file decoders.
var (
	CSV     = Decoder{open: openCSV}
	Parquet = Decoder{open: openParquet}
)

// DecoderFor returns the decoder matching a file's format.
func DecoderFor(f models.FileFormat) (Decoder, error) {
	switch f {
	case models.FormatCSV, "":
		return CSV, nil
	case models.FormatParquet:
		return Parquet, nil
	}
	return Decoder{}, fmt.Errorf("dataset: unsupported format %q", f)
}

func (d Decoder) table(r io.Reader, required ...string) (rows, error) {
	t, err := d.open(r)
	if err != nil {
		return nil, err
	}
	for _, name := range required {
		if !t.has(name) {
			return nil, fmt.Errorf("dataset: missing column %q", name)
		}
	}
	return t, nil
}

// Articles decodes an article metadata table and calls fn per row.
func (d Decoder) Articles(r io.Reader, fn func(models.Article) error) error {
	t, err := d.table(r, "article_id", "year")
	if err != nil {
		return err
	}
	return t.each(func(rec record) error {
		year, ok := parseInt(rec.get("year"))
		if !ok {
			return rec.errorf("invalid year %q", rec.get("year"))
		}
		commercial, err := parseBool(rec.get("commercial_use_license"))
		if err != nil {
			return rec.errorf("invalid commercial_use_license: %v", err)
		}
		return fn(models.Article{
			ArticleID:     strings.TrimSpace(rec.get("article_id")),
			Title:         rec.get("title"),
			Year:          year,
			Citation:      rec.get("citation"),
			Link:          rec.get("link"),
			CommercialUse: commercial,
		})
	})
}

// Cases decodes a case table and calls fn per row. Missing or
// non-numeric ages become nil.
func (d Decoder) Cases(r io.Reader, fn func(models.Case) error) error {
	t, err := d.table(r, "case_id", "article_id", "case_text")
	if err != nil {
		return err
	}
	return t.each(func(rec record) error {
		c := models.Case{
			CaseID:    strings.TrimSpace(rec.get("case_id")),
			ArticleID: strings.TrimSpace(rec.get("article_id")),
			Gender:    strings.TrimSpace(rec.get("gender")),
			Text:      rec.get("case_text"),
		}
		if age, ok := parseInt(rec.get("age")); ok {
			c.Age = &age
		}
		return fn(c)
	})
}

// Images decodes an image metadata table and calls fn per row.
func (d Decoder) Images(r io.Reader, fn func(models.Image) error) error {
	t, err := d.table(r, "file", "case_id", "article_id")
	if err != nil {
		return err
	}
	return t.each(func(rec record) error {
		return fn(models.Image{
			File:      strings.TrimSpace(rec.get("file")),
			CaseID:    strings.TrimSpace(rec.get("case_id")),
			ArticleID: strings.TrimSpace(rec.get("article_id")),
			Caption:   rec.get("caption"),
			Labels:    rec.list("labels", "postprocessed_label_list"),
		})
	})
}

// ReadArticles decodes a CSV article metadata table.
func ReadArticles(r io.Reader, fn func(models.Article) error) error {
	return CSV.Articles(r, fn)
}

// ReadCases decodes a CSV case table.
func ReadCases(r io.Reader, fn func(models.Case) error) error {
	return CSV.Cases(r, fn)
}

// ReadImages decodes a CSV image metadata table.
func ReadImages(r io.Reader, fn func(models.Image) error) error {
	return CSV.Images(r, fn)
}

// ParseLabels decodes a label list literal such as "['ct', 'head']".
// A bare comma-separated list is accepted too.
func ParseLabels(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	var out []string
	for _, part := range strings.Split(s, ",") {
		label := strings.Trim(strings.TrimSpace(part), `'"`)
		if label != "" {
			out = append(out, label)
		}
	}
	return out
}

// parseInt accepts integers and integral floats ("42", "42.0"). Fractions
// and values outside the int32 range are rejected.
func parseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		return int(n), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func parseBool(s string) (bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}
