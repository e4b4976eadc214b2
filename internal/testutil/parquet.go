package testutil

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
)

// ParquetArticle mirrors article_metadata_website_version.parquet.
type ParquetArticle struct {
	ArticleID  string `parquet:"article_id"`
	Title      string `parquet:"title"`
	Year       int64  `parquet:"year"`
	Citation   string `parquet:"citation"`
	Link       string `parquet:"link"`
	Commercial bool   `parquet:"commercial_use_license"`
}

// ParquetCase mirrors the cases_<from>_<to>.parquet partitions. Age is a
// nullable float as exported by pandas.
type ParquetCase struct {
	CaseID    string   `parquet:"case_id"`
	ArticleID string   `parquet:"article_id"`
	Age       *float64 `parquet:"age,optional"`
	Gender    string   `parquet:"gender"`
	Text      string   `parquet:"case_text"`
}

// ParquetImage mirrors image_metadata_website_version.parquet, whose labels
// column holds a list literal.
type ParquetImage struct {
	File      string `parquet:"file"`
	CaseID    string `parquet:"case_id"`
	ArticleID string `parquet:"article_id"`
	Caption   string `parquet:"caption"`
	Labels    string `parquet:"labels"`
}

func age(v float64) *float64 { return &v }

// WriteParquet encodes rows as dir/name.
func WriteParquet[T any](t *testing.T, dir, name string, rows []T) {
	t.Helper()
	var buf bytes.Buffer
	if err := parquet.Write(&buf, rows); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	WriteFile(t, dir, filepath.Base(name), buf.String())
}

// WriteParquetDataset writes the published file layout with two articles,
// three cases and two images.
func WriteParquetDataset(t *testing.T, dir string) {
	t.Helper()
	WriteParquet(t, dir, "article_metadata_website_version.parquet", []ParquetArticle{
		{ArticleID: "PMC10", Title: "Renal colic", Year: 2014, Citation: "Lee K. 2014", Link: "https://example.org/PMC10", Commercial: true},
		{ArticleID: "PMC11", Title: "Stroke", Year: 2020, Citation: "Kim S. 2020", Link: "https://example.org/PMC11"},
	})
	WriteParquet(t, dir, "cases_2013_2017.parquet", []ParquetCase{
		{CaseID: "PMC10_01", ArticleID: "PMC10", Age: age(52), Gender: "Male", Text: "A 52-year-old man with flank pain and hematuria."},
	})
	WriteParquet(t, dir, "cases_2018_2021.parquet", []ParquetCase{
		{CaseID: "PMC11_01", ArticleID: "PMC11", Age: age(71), Gender: "Female", Text: "A 71-year-old woman with sudden aphasia."},
		{CaseID: "PMC11_02", ArticleID: "PMC11", Gender: "Male", Text: "An adult with hemiparesis."},
	})
	WriteParquet(t, dir, "image_metadata_website_version.parquet", []ParquetImage{
		{File: "PMC10_01_fig1.jpg", CaseID: "PMC10_01", ArticleID: "PMC10", Caption: "Abdominal CT with a ureteral stone.", Labels: "['radiology', 'ct', 'abdomen']"},
		{File: "PMC11_01_fig1.jpg", CaseID: "PMC11_01", ArticleID: "PMC11", Caption: "Brain MRI, diffusion weighted.", Labels: "['radiology', 'mri', 'head']"},
	})
}
