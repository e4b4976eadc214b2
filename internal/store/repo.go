package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/multicare-dataset/website/internal/apperr"
	"github.com/multicare-dataset/website/internal/dataset"
	"github.com/multicare-dataset/website/internal/models"
)

// SourceRow is the bookkeeping record of one imported dataset file.
type SourceRow struct {
	Name     string           `json:"name"`
	Kind     models.TableKind `json:"kind"`
	Checksum string           `json:"checksum"`
	Rows     int              `json:"rows"`
	SyncedAt time.Time        `json:"synced_at"`
}

// Stats summarises the store contents.
type Stats struct {
	Articles int         `json:"articles"`
	Cases    int         `json:"cases"`
	Images   int         `json:"images"`
	Sources  []SourceRow `json:"sources"`
}

// ImportSource replaces every row previously imported from sf with the rows
// decoded from r, within one transaction. It returns the number of rows read.
func (db *DB) ImportSource(ctx context.Context, sf models.SourceFile, r io.Reader) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := deleteSourceRows(ctx, tx, sf.Name); err != nil {
		return 0, err
	}

	dec, err := dataset.DecoderFor(sf.Format)
	if err != nil {
		return 0, fmt.Errorf("store: import %s: %w", sf.Name, err)
	}

	var n int
	switch sf.Kind {
	case models.TableArticles:
		n, err = importArticles(ctx, tx, dec, sf.Name, r)
	case models.TableCases:
		n, err = importCases(ctx, tx, dec, sf.Name, r)
	case models.TableImages:
		n, err = importImages(ctx, tx, dec, sf.Name, r)
	default:
		return 0, fmt.Errorf("store: unknown table kind %q", sf.Kind)
	}
	if err != nil {
		return 0, fmt.Errorf("store: import %s: %w", sf.Name, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sources (name, kind, checksum, row_count, synced_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			kind      = excluded.kind,
			checksum  = excluded.checksum,
			row_count = excluded.row_count,
			synced_at = excluded.synced_at
	`, sf.Name, string(sf.Kind), sf.Checksum, n, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("store: upsert source: %w", err)
	}
	return n, tx.Commit()
}

// DeleteSource removes a source and every row imported from it.
func (db *DB) DeleteSource(ctx context.Context, name string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := deleteSourceRows(ctx, tx, name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE name = ?`, name); err != nil {
		return fmt.Errorf("store: delete source: %w", err)
	}
	return tx.Commit()
}

func deleteSourceRows(ctx context.Context, tx *sql.Tx, name string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM source_overlaps WHERE source = ? OR other = ?`, name, name); err != nil {
		return fmt.Errorf("store: delete overlaps of %s: %w", name, err)
	}
	stmts := []string{
		`DELETE FROM image_labels WHERE file IN (SELECT file FROM images WHERE source = ?)`,
		`DELETE FROM images WHERE source = ?`,
		`DELETE FROM cases WHERE source = ?`,
		`DELETE FROM articles WHERE source = ?`,
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s, name); err != nil {
			return fmt.Errorf("store: delete rows of %s: %w", name, err)
		}
	}
	return nil
}

func importArticles(ctx context.Context, tx *sql.Tx, dec dataset.Decoder, source string, r io.Reader) (int, error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO articles (article_id, source, title, year, citation, link, commercial_use)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	own, err := newOwners(ctx, tx, "articles", "article_id", source)
	if err != nil {
		return 0, err
	}
	defer own.Close()

	n := 0
	err = dec.Articles(r, func(a models.Article) error {
		n++
		if err := own.check(ctx, a.ArticleID); err != nil {
			return err
		}
		_, err := stmt.ExecContext(ctx, a.ArticleID, source, a.Title, a.Year, a.Citation, a.Link, a.CommercialUse)
		return err
	})
	if err != nil {
		return n, err
	}
	return n, own.save(ctx, tx)
}

func importCases(ctx context.Context, tx *sql.Tx, dec dataset.Decoder, source string, r io.Reader) (int, error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO cases (case_id, source, article_id, age, gender, case_text)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	own, err := newOwners(ctx, tx, "cases", "case_id", source)
	if err != nil {
		return 0, err
	}
	defer own.Close()

	n := 0
	err = dec.Cases(r, func(c models.Case) error {
		n++
		if err := own.check(ctx, c.CaseID); err != nil {
			return err
		}
		var age sql.NullInt64
		if c.Age != nil {
			age = sql.NullInt64{Int64: int64(*c.Age), Valid: true}
		}
		_, err := stmt.ExecContext(ctx, c.CaseID, source, c.ArticleID, age, c.Gender, c.Text)
		return err
	})
	if err != nil {
		return n, err
	}
	return n, own.save(ctx, tx)
}

func importImages(ctx context.Context, tx *sql.Tx, dec dataset.Decoder, source string, r io.Reader) (int, error) {
	imgStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO images (file, source, case_id, article_id, caption, labels)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer imgStmt.Close()
	clearStmt, err := tx.PrepareContext(ctx, `DELETE FROM image_labels WHERE file = ?`)
	if err != nil {
		return 0, err
	}
	defer clearStmt.Close()
	labelStmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO image_labels (file, label) VALUES (?, ?)`)
	if err != nil {
		return 0, err
	}
	defer labelStmt.Close()
	own, err := newOwners(ctx, tx, "images", "file", source)
	if err != nil {
		return 0, err
	}
	defer own.Close()

	n := 0
	err = dec.Images(r, func(img models.Image) error {
		n++
		if err := own.check(ctx, img.File); err != nil {
			return err
		}
		labelsJSON, _ := json.Marshal(nonNil(img.Labels))
		if _, err := imgStmt.ExecContext(ctx, img.File, source, img.CaseID, img.ArticleID, img.Caption, string(labelsJSON)); err != nil {
			return err
		}
		if _, err := clearStmt.ExecContext(ctx, img.File); err != nil {
			return err
		}
		for _, l := range img.Labels {
			if _, err := labelStmt.ExecContext(ctx, img.File, l); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return n, err
	}
	return n, own.save(ctx, tx)
}

// owners notes which other sources already hold ids being imported.
type owners struct {
	lookup *sql.Stmt
	source string
	others map[string]struct{}
}

func newOwners(ctx context.Context, tx *sql.Tx, table, key, source string) (*owners, error) {
	stmt, err := tx.PrepareContext(ctx, `SELECT source FROM `+table+` WHERE `+key+` = ?`)
	if err != nil {
		return nil, err
	}
	return &owners{lookup: stmt, source: source, others: make(map[string]struct{})}, nil
}

func (o *owners) check(ctx context.Context, id string) error {
	var owner string
	err := o.lookup.QueryRowContext(ctx, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if owner != o.source {
		o.others[owner] = struct{}{}
	}
	return nil
}

func (o *owners) save(ctx context.Context, tx *sql.Tx) error {
	for other := range o.others {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO source_overlaps (source, other) VALUES (?, ?), (?, ?)`,
			o.source, other, other, o.source); err != nil {
			return fmt.Errorf("store: record overlap %s/%s: %w", o.source, other, err)
		}
	}
	return nil
}

func (o *owners) Close() error {
	return o.lookup.Close()
}

// OverlappingSources returns the sources sharing row ids with name.
func (db *DB) OverlappingSources(ctx context.Context, name string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT other FROM source_overlaps WHERE source = ? ORDER BY other`, name)
	if err != nil {
		return nil, fmt.Errorf("store: overlapping sources: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var other string
		if err := rows.Scan(&other); err != nil {
			return nil, err
		}
		out = append(out, other)
	}
	return out, rows.Err()
}

// SourceChecksums returns the stored checksum of every imported source.
func (db *DB) SourceChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT name, checksum FROM sources`)
	if err != nil {
		return nil, fmt.Errorf("store: source checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var name, cs string
		if err := rows.Scan(&name, &cs); err != nil {
			return nil, err
		}
		out[name] = cs
	}
	return out, rows.Err()
}

// Stats returns row counts and the imported sources.
func (db *DB) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := db.conn.QueryRowContext(ctx, `
		SELECT (SELECT count(*) FROM articles),
		       (SELECT count(*) FROM cases),
		       (SELECT count(*) FROM images)
	`).Scan(&st.Articles, &st.Cases, &st.Images)
	if err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, `SELECT name, kind, checksum, row_count, synced_at FROM sources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store: list sources: %w", err)
	}
	defer rows.Close()
	st.Sources = []SourceRow{}
	for rows.Next() {
		var s SourceRow
		var kind string
		if err := rows.Scan(&s.Name, &kind, &s.Checksum, &s.Rows, &s.SyncedAt); err != nil {
			return nil, err
		}
		s.Kind = models.TableKind(kind)
		st.Sources = append(st.Sources, s)
	}
	return &st, rows.Err()
}

// Article returns one article by id.
func (db *DB) Article(ctx context.Context, id string) (*models.Article, error) {
	rows, err := db.queryArticles(ctx, ` WHERE article_id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.ErrNotFound
	}
	return &rows[0], nil
}

// Case returns one case by id.
func (db *DB) Case(ctx context.Context, id string) (*models.Case, error) {
	rows, err := db.queryCases(ctx, ` WHERE c.case_id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.ErrNotFound
	}
	return &rows[0], nil
}

// ImagesForCase returns the images of a case in dataset order.
func (db *DB) ImagesForCase(ctx context.Context, caseID string) ([]models.Image, error) {
	return db.queryImages(ctx, ` WHERE i.case_id = ?`, caseID)
}

// Image returns one image by file name.
func (db *DB) Image(ctx context.Context, file string) (*models.Image, error) {
	rows, err := db.queryImages(ctx, ` WHERE i.file = ?`, file)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.ErrNotFound
	}
	return &rows[0], nil
}

func (db *DB) queryArticles(ctx context.Context, where string, args ...any) ([]models.Article, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT article_id, title, year, citation, link, commercial_use
		FROM articles`+where+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query articles: %w", err)
	}
	defer rows.Close()

	out := []models.Article{}
	for rows.Next() {
		var a models.Article
		if err := rows.Scan(&a.ArticleID, &a.Title, &a.Year, &a.Citation, &a.Link, &a.CommercialUse); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (db *DB) queryCases(ctx context.Context, where string, args ...any) ([]models.Case, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT c.case_id, c.article_id, c.age, c.gender, c.case_text
		FROM cases c`+where+` ORDER BY c.rowid`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query cases: %w", err)
	}
	defer rows.Close()

	out := []models.Case{}
	for rows.Next() {
		var c models.Case
		var age sql.NullInt64
		if err := rows.Scan(&c.CaseID, &c.ArticleID, &age, &c.Gender, &c.Text); err != nil {
			return nil, err
		}
		if age.Valid {
			v := int(age.Int64)
			c.Age = &v
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (db *DB) queryImages(ctx context.Context, where string, args ...any) ([]models.Image, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT i.file, i.case_id, i.article_id, i.caption, i.labels
		FROM images i`+where+` ORDER BY i.rowid`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query images: %w", err)
	}
	defer rows.Close()

	out := []models.Image{}
	for rows.Next() {
		var img models.Image
		var labels string
		if err := rows.Scan(&img.File, &img.CaseID, &img.ArticleID, &img.Caption, &labels); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(labels), &img.Labels); err != nil {
			return nil, fmt.Errorf("store: decode labels of %s: %w", img.File, err)
		}
		img.Labels = nonNil(img.Labels)
		out = append(out, img)
	}
	return out, rows.Err()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
