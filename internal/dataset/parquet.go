package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/parquet-go/parquet-go"
)

const parquetBatch = 256

// parquetTable reads rows of a parquet file. Values are addressed by the
// name of their top-level field; a field with nested leaves (a list) yields
// one value per element.
type parquetTable struct {
	file   *parquet.File
	leaf   []string        // leaf column index -> top-level field name
	nested map[string]bool // top-level field name -> has nested leaves
}

func openParquet(r io.Reader) (rows, error) {
	ra, size, err := readerAt(r)
	if err != nil {
		return nil, fmt.Errorf("dataset: parquet: %w", err)
	}
	f, err := parquet.OpenFile(ra, size)
	if err != nil {
		return nil, fmt.Errorf("dataset: parquet: open: %w", err)
	}
	t := &parquetTable{file: f, nested: make(map[string]bool)}
	for _, path := range f.Schema().Columns() {
		if len(path) == 0 {
			continue
		}
		t.leaf = append(t.leaf, path[0])
		t.nested[path[0]] = t.nested[path[0]] || len(path) > 1
	}
	return t, nil
}

// readerAt adapts r for random access. Files and other seekable readers
// are used in place; anything else is buffered.
func readerAt(r io.Reader) (io.ReaderAt, int64, error) {
	if rs, ok := r.(interface {
		io.ReaderAt
		io.Seeker
	}); ok {
		size, err := rs.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, err
		}
		return rs, size, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}

func (t *parquetTable) has(name string) bool {
	_, ok := t.nested[name]
	return ok
}

func (t *parquetTable) each(fn func(rec record) error) error {
	buf := make([]parquet.Row, parquetBatch)
	n := 0
	for _, rg := range t.file.RowGroups() {
		if err := t.eachInGroup(rg, buf, &n, fn); err != nil {
			return err
		}
	}
	return nil
}

func (t *parquetTable) eachInGroup(rg parquet.RowGroup, buf []parquet.Row, n *int, fn func(rec record) error) error {
	rs := rg.Rows()
	defer rs.Close()
	for {
		k, err := rs.ReadRows(buf)
		for _, row := range buf[:k] {
			*n++
			if err := fn(t.record(row, *n)); err != nil {
				return err
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("dataset: parquet: read rows: %w", err)
		}
		if k == 0 {
			return nil
		}
	}
}

func (t *parquetTable) record(row parquet.Row, n int) parquetRecord {
	rec := parquetRecord{t: t, values: make(map[string][]string, len(t.nested)), row: n}
	for _, v := range row {
		if v.IsNull() {
			continue
		}
		col := v.Column()
		if col < 0 || col >= len(t.leaf) {
			continue
		}
		name := t.leaf[col]
		rec.values[name] = append(rec.values[name], valueString(v))
	}
	return rec
}

func valueString(v parquet.Value) string {
	switch v.Kind() {
	case parquet.Boolean:
		return strconv.FormatBool(v.Boolean())
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.Float:
		return strconv.FormatFloat(float64(v.Float()), 'f', -1, 32)
	case parquet.Double:
		return strconv.FormatFloat(v.Double(), 'f', -1, 64)
	default:
		return string(v.ByteArray())
	}
}

type parquetRecord struct {
	t      *parquetTable
	values map[string][]string
	row    int
}

func (r parquetRecord) get(names ...string) string {
	for _, name := range names {
		if vs := r.values[name]; len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

func (r parquetRecord) list(names ...string) []string {
	for _, name := range names {
		if !r.t.has(name) {
			continue
		}
		if r.t.nested[name] {
			return append([]string(nil), r.values[name]...)
		}
		return ParseLabels(r.get(name))
	}
	return nil
}

func (r parquetRecord) errorf(format string, args ...any) error {
	return fmt.Errorf("dataset: row %d: %s", r.row, fmt.Sprintf(format, args...))
}
