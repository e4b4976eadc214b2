package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/multicare-dataset/website/internal/dataset"
	"github.com/multicare-dataset/website/internal/models"
)

// SyncReport lists what a Sync pass changed.
type SyncReport struct {
	Imported []string `json:"imported"`
	Removed  []string `json:"removed"`
	Failed   []string `json:"failed"`
	Rows     int      `json:"rows"`
}

// Changed reports whether the pass modified the store.
func (r *SyncReport) Changed() bool {
	return len(r.Imported) > 0 || len(r.Removed) > 0
}

// Sync brings the store up to date with the dataset directory:
//   - sources gone from disk or outside years are deleted
//   - new/changed files within years are imported
//   - unchanged files sharing row ids with a deleted or changed source are
//     reimported, so rows they also contain are restored
//
// A file that fails to import is logged and reported; the pass continues.
func Sync(ctx context.Context, db CaseIndex, src dataset.Source, years dataset.YearRange, logger *slog.Logger) (*SyncReport, error) {
	files, err := src.List()
	if err != nil {
		return nil, fmt.Errorf("store: sync: list: %w", err)
	}
	checksums, err := db.SourceChecksums(ctx)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]models.SourceFile)
	for _, f := range dataset.Partitions(files, years) {
		wanted[f.Name] = f
	}

	// Sources whose rows are about to be dropped or replaced.
	var touched []string
	for name := range checksums {
		if f, ok := wanted[name]; !ok || f.Checksum != checksums[name] {
			touched = append(touched, name)
		}
	}
	sort.Strings(touched)

	reimport := make(map[string]bool)
	for _, name := range touched {
		others, err := db.OverlappingSources(ctx, name)
		if err != nil {
			return nil, err
		}
		for _, other := range others {
			reimport[other] = true
		}
	}

	report := &SyncReport{}
	for _, name := range touched {
		if _, ok := wanted[name]; ok {
			continue
		}
		if err := db.DeleteSource(ctx, name); err != nil {
			logger.Warn("sync: delete failed", slog.String("file", name), slog.String("error", err.Error()))
			report.Failed = append(report.Failed, name)
			continue
		}
		logger.Debug("sync: removed stale", slog.String("file", name))
		report.Removed = append(report.Removed, name)
	}

	for _, f := range orderForImport(dataset.Partitions(files, years)) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if checksums[f.Name] == f.Checksum && !reimport[f.Name] {
			continue
		}
		n, err := importFile(ctx, db, src, f)
		if err != nil {
			logger.Warn("sync: import failed", slog.String("file", f.Name), slog.String("error", err.Error()))
			report.Failed = append(report.Failed, f.Name)
			continue
		}
		logger.Debug("sync: imported", slog.String("file", f.Name), slog.Int("rows", n))
		report.Imported = append(report.Imported, f.Name)
		report.Rows += n
	}
	return report, nil
}

func importFile(ctx context.Context, db CaseIndex, src dataset.Source, f models.SourceFile) (int, error) {
	rc, err := src.Open(f.Name)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	return db.ImportSource(ctx, f, rc)
}

// orderForImport puts articles before cases and cases before images while
// keeping name order within a table.
func orderForImport(files []models.SourceFile) []models.SourceFile {
	rank := map[models.TableKind]int{models.TableArticles: 0, models.TableCases: 1, models.TableImages: 2}
	out := make([]models.SourceFile, 0, len(files))
	for r := 0; r < 3; r++ {
		for _, f := range files {
			if rank[f.Kind] == r {
				out = append(out, f)
			}
		}
	}
	return out
}
