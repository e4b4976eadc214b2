package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// csvTable is a header-addressed CSV reader.
type csvTable struct {
	r    *csv.Reader
	cols map[string]int
	line int
}

func openCSV(r io.Reader) (rows, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("dataset: missing header")
		}
		return nil, fmt.Errorf("dataset: read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		// Files exported with a BOM carry it on the first column name.
		cols[strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")] = i
	}
	return &csvTable{r: cr, cols: cols, line: 1}, nil
}

func (t *csvTable) has(name string) bool {
	_, ok := t.cols[name]
	return ok
}

// each calls fn for every record until EOF or the first error.
func (t *csvTable) each(fn func(rec record) error) error {
	for {
		fields, err := t.r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("dataset: read: %w", err)
		}
		t.line++
		if err := fn(csvRecord{t: t, fields: fields, line: t.line}); err != nil {
			return err
		}
	}
}

type csvRecord struct {
	t      *csvTable
	fields []string
	line   int
}

func (r csvRecord) get(names ...string) string {
	for _, name := range names {
		if i, ok := r.t.cols[name]; ok && i < len(r.fields) {
			return r.fields[i]
		}
	}
	return ""
}

func (r csvRecord) list(names ...string) []string {
	return ParseLabels(r.get(names...))
}

func (r csvRecord) errorf(format string, args ...any) error {
	return fmt.Errorf("dataset: line %d: %s", r.line, fmt.Sprintf(format, args...))
}
