package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/multicare-dataset/website/internal/checksum"
	"github.com/multicare-dataset/website/internal/models"
)

var partitionRe = regexp.MustCompile(`^cases_(\d{4})_(\d{4})$`)

// FS implements Source backed by a local data directory.
type FS struct {
	root      string // absolute path to the table files
	imageRoot string // absolute path to the image files
}

// NewFS creates a Source rooted at root. Images are resolved under
// imageRoot; an empty imageRoot means "img" inside root.
// Both directories must already exist.
func NewFS(root, imageRoot string) (*FS, error) {
	abs, err := absDir(root)
	if err != nil {
		return nil, err
	}
	if imageRoot == "" {
		imageRoot = filepath.Join(abs, "img")
		if err := os.MkdirAll(imageRoot, 0o755); err != nil {
			return nil, fmt.Errorf("dataset: create image dir: %w", err)
		}
	}
	absImg, err := absDir(imageRoot)
	if err != nil {
		return nil, err
	}
	return &FS{root: abs, imageRoot: absImg}, nil
}

func absDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("dataset: resolve %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("dataset: stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("dataset: not a directory: %s", abs)
	}
	return abs, nil
}

// Root returns the absolute data directory.
func (f *FS) Root() string {
	return f.root
}

// List returns the table files found directly under the data directory.
func (f *FS) List() ([]models.SourceFile, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("dataset: list: %w", err)
	}
	var out []models.SourceFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		sf, ok := Classify(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("dataset: stat %s: %w", e.Name(), err)
		}
		sum, err := checksum.File(filepath.Join(f.root, e.Name()))
		if err != nil {
			return nil, err
		}
		sf.Checksum = sum
		sf.UpdatedAt = info.ModTime()
		out = append(out, sf)
	}
	return out, nil
}

// Classify maps a file name to the table it feeds. Parquet is the published
// format (article_metadata_website_version.parquet, cases_1990_2012.parquet,
// ...); CSV exports of the same tables are accepted too. Unrecognised names
// report false.
func Classify(name string) (models.SourceFile, bool) {
	sf := models.SourceFile{Name: name}
	ext := filepath.Ext(name)
	switch ext {
	case ".parquet":
		sf.Format = models.FormatParquet
	case ".csv":
		sf.Format = models.FormatCSV
	default:
		return models.SourceFile{}, false
	}
	base := strings.TrimSuffix(name, ext)
	switch {
	case base == "article_metadata" || strings.HasPrefix(base, "article_metadata_"):
		sf.Kind = models.TableArticles
	case base == "image_metadata" || strings.HasPrefix(base, "image_metadata_"):
		sf.Kind = models.TableImages
	case base == "cases" || strings.HasPrefix(base, "cases_"):
		sf.Kind = models.TableCases
		if m := partitionRe.FindStringSubmatch(base); m != nil {
			sf.MinYear, _ = strconv.Atoi(m[1])
			sf.MaxYear, _ = strconv.Atoi(m[2])
		}
	default:
		return models.SourceFile{}, false
	}
	return sf, true
}

// Open returns a reader for a table file in the data directory.
func (f *FS) Open(name string) (io.ReadCloser, error) {
	abs, err := safeJoin(f.root, name)
	if err != nil {
		return nil, err
	}
	rc, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", name, err)
	}
	return rc, nil
}

// ImagePath resolves an image file name under the image directory.
func (f *FS) ImagePath(file string) (string, error) {
	return safeJoin(f.imageRoot, file)
}

// safeJoin resolves rel against root and rejects any result that escapes it.
func safeJoin(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("dataset: empty path")
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("dataset: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(root, cleaned))
	if err != nil {
		return "", fmt.Errorf("dataset: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("dataset: path escapes %s: %s", root, rel)
	}
	return abs, nil
}
