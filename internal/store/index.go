package store

import (
	"context"
	"io"

	"github.com/multicare-dataset/website/internal/models"
)

// CaseIndex defines the store operations the case hub depends on.
// Consumers should depend on this interface rather than the concrete *DB.
type CaseIndex interface {
	ImportSource(ctx context.Context, sf models.SourceFile, r io.Reader) (int, error)
	DeleteSource(ctx context.Context, name string) error
	SourceChecksums(ctx context.Context) (map[string]string, error)
	OverlappingSources(ctx context.Context, name string) ([]string, error)
	Stats(ctx context.Context) (*Stats, error)

	Articles(ctx context.Context, f ArticleFilter) ([]models.Article, error)
	Cases(ctx context.Context, f CaseFilter) ([]models.Case, error)
	Images(ctx context.Context, f ImageFilter) ([]models.Image, error)

	Article(ctx context.Context, id string) (*models.Article, error)
	Case(ctx context.Context, id string) (*models.Case, error)
	Image(ctx context.Context, file string) (*models.Image, error)
	ImagesForCase(ctx context.Context, caseID string) ([]models.Image, error)

	Close() error
}

// Verify *DB satisfies CaseIndex at compile time.
var _ CaseIndex = (*DB)(nil)
