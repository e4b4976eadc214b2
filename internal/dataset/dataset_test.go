package dataset

import (
	"bytes"
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/multicare-dataset/website/internal/models"
)

func tempSource(t *testing.T) (string, *FS) {
	t.Helper()
	dir := t.TempDir()
	src, err := NewFS(dir, "")
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return dir, src
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		kind    models.TableKind
		minYear int
		maxYear int
		ok      bool
	}{
		{"article_metadata.csv", models.TableArticles, 0, 0, true},
		{"article_metadata_website_version.csv", models.TableArticles, 0, 0, true},
		{"article_metadata_website_version.parquet", models.TableArticles, 0, 0, true},
		{"image_metadata.csv", models.TableImages, 0, 0, true},
		{"image_metadata_website_version.parquet", models.TableImages, 0, 0, true},
		{"cases.csv", models.TableCases, 0, 0, true},
		{"cases_2013_2017.csv", models.TableCases, 2013, 2017, true},
		{"cases_1990_2012.parquet", models.TableCases, 1990, 2012, true},
		{"cases_2013_2017.json", "", 0, 0, false},
		{"casestudies.csv", "", 0, 0, false},
		{"notes.csv", "", 0, 0, false},
	}
	for _, tt := range tests {
		sf, ok := Classify(tt.name)
		if ok != tt.ok {
			t.Errorf("Classify(%q) ok = %v, want %v", tt.name, ok, tt.ok)
			continue
		}
		if !ok {
			continue
		}
		if sf.Kind != tt.kind || sf.MinYear != tt.minYear || sf.MaxYear != tt.maxYear {
			t.Errorf("Classify(%q) = %+v", tt.name, sf)
		}
		wantFormat := models.FormatCSV
		if strings.HasSuffix(tt.name, ".parquet") {
			wantFormat = models.FormatParquet
		}
		if sf.Format != wantFormat {
			t.Errorf("Classify(%q) format = %q, want %q", tt.name, sf.Format, wantFormat)
		}
	}
}

func TestListChecksumsAndSkipsUnknown(t *testing.T) {
	dir, src := tempSource(t)
	writeFile(t, dir, "article_metadata.csv", "article_id,year\nA1,2020\n")
	writeFile(t, dir, "cases_2018_2021.csv", "case_id,article_id,case_text\n")
	writeFile(t, dir, "readme.txt", "ignored")

	files, err := src.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("len(files) = %d, want 2: %+v", len(files), files)
	}
	if files[0].Name != "article_metadata.csv" || files[1].Name != "cases_2018_2021.csv" {
		t.Errorf("unexpected order: %+v", files)
	}
	if len(files[0].Checksum) != 64 {
		t.Errorf("checksum = %q", files[0].Checksum)
	}

	writeFile(t, dir, "article_metadata.csv", "article_id,year\nA1,2021\n")
	again, err := src.List()
	if err != nil {
		t.Fatal(err)
	}
	if again[0].Checksum == files[0].Checksum {
		t.Error("checksum did not change after rewrite")
	}
}

func TestOpenRejectsTraversal(t *testing.T) {
	_, src := tempSource(t)
	for _, p := range []string{"../etc/passwd", "/etc/passwd", ""} {
		if _, err := src.Open(p); err == nil {
			t.Errorf("Open(%q) should fail", p)
		}
	}
}

func TestImagePath(t *testing.T) {
	dir, src := tempSource(t)
	got, err := src.ImagePath("PMC1_fig1.jpg")
	if err != nil {
		t.Fatalf("ImagePath: %v", err)
	}
	abs, _ := filepath.Abs(filepath.Join(dir, "img", "PMC1_fig1.jpg"))
	if got != abs {
		t.Errorf("ImagePath = %q, want %q", got, abs)
	}
	if _, err := src.ImagePath("../article_metadata.csv"); err == nil {
		t.Error("image path escaping the image dir should fail")
	}
}

func TestReadArticles(t *testing.T) {
	in := "article_id,title,year,citation,link,commercial_use_license\n" +
		"PMC1,First,2014,\"Doe J, et al.\",https://example.org/1,True\n" +
		"PMC2,Second,2020.0,Roe R,https://example.org/2,False\n"
	var got []models.Article
	err := ReadArticles(strings.NewReader(in), func(a models.Article) error {
		got = append(got, a)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadArticles: %v", err)
	}
	want := []models.Article{
		{ArticleID: "PMC1", Title: "First", Year: 2014, Citation: "Doe J, et al.", Link: "https://example.org/1", CommercialUse: true},
		{ArticleID: "PMC2", Title: "Second", Year: 2020, Citation: "Roe R", Link: "https://example.org/2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v\nwant %+v", got, want)
	}
}

func TestReadArticles_InvalidYear(t *testing.T) {
	in := "article_id,year\nPMC1,unknown\n"
	err := ReadArticles(strings.NewReader(in), func(models.Article) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected line-numbered error, got %v", err)
	}
}

func TestReadCases_MissingAge(t *testing.T) {
	in := "\ufeffcase_id,article_id,age,gender,case_text\n" +
		"PMC1_01,PMC1,54,Male,\"A 54-year-old man, diabetic.\"\n" +
		"PMC1_02,PMC1,,Female,No age.\n" +
		"PMC1_03,PMC1,nan,Female,NaN age.\n"
	var got []models.Case
	if err := ReadCases(strings.NewReader(in), func(c models.Case) error {
		got = append(got, c)
		return nil
	}); err != nil {
		t.Fatalf("ReadCases: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].Age == nil || *got[0].Age != 54 {
		t.Errorf("age = %v, want 54", got[0].Age)
	}
	if got[1].Age != nil || got[2].Age != nil {
		t.Error("missing ages should be nil")
	}
	if got[0].Text != "A 54-year-old man, diabetic." {
		t.Errorf("text = %q", got[0].Text)
	}
}

func TestReadImages_LabelColumnAlias(t *testing.T) {
	in := "file,case_id,article_id,caption,postprocessed_label_list\n" +
		"f1.jpg,PMC1_01,PMC1,Axial CT,\"['ct', 'head']\"\n"
	var got []models.Image
	if err := ReadImages(strings.NewReader(in), func(img models.Image) error {
		got = append(got, img)
		return nil
	}); err != nil {
		t.Fatalf("ReadImages: %v", err)
	}
	if len(got) != 1 || !reflect.DeepEqual(got[0].Labels, []string{"ct", "head"}) {
		t.Errorf("got %+v", got)
	}
}

func TestReadMissingColumn(t *testing.T) {
	err := ReadImages(strings.NewReader("file,caption\n"), func(models.Image) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "case_id") {
		t.Fatalf("expected missing column error, got %v", err)
	}
	err = ReadCases(strings.NewReader(""), func(models.Case) error { return nil })
	if err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"42", 42, true},
		{" 2015.0 ", 2015, true},
		{"-3", -3, true},
		{"42.5", 0, false},
		{"99999999999", 0, false},
		{"1e300", 0, false},
		{"-1e300", 0, false},
		{"NaN", 0, false},
		{"inf", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseInt(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseInt(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseLabels(t *testing.T) {
	tests := map[string][]string{
		"['ct', 'head']":   {"ct", "head"},
		`["mri"]`:          {"mri"},
		"[]":               nil,
		"":                 nil,
		"h&e, pathology":   {"h&e", "pathology"},
		" [ 'x_ray' ,  ] ": {"x_ray"},
	}
	for in, want := range tests {
		if got := ParseLabels(in); !reflect.DeepEqual(got, want) {
			t.Errorf("ParseLabels(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestPartitions(t *testing.T) {
	files := []models.SourceFile{
		{Name: "article_metadata.csv", Kind: models.TableArticles},
		{Name: "cases_1990_2012.csv", Kind: models.TableCases, MinYear: 1990, MaxYear: 2012},
		{Name: "cases_2013_2017.csv", Kind: models.TableCases, MinYear: 2013, MaxYear: 2017},
		{Name: "cases_2022_2024.csv", Kind: models.TableCases, MinYear: 2022, MaxYear: 2024},
		{Name: "cases.csv", Kind: models.TableCases},
	}
	got := Partitions(files, YearRange{Min: 2014, Max: 2020})
	var names []string
	for _, f := range got {
		names = append(names, f.Name)
	}
	want := []string{"article_metadata.csv", "cases_2013_2017.csv", "cases.csv"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Partitions = %v, want %v", names, want)
	}
	if all := Partitions(files, YearRange{}); len(all) != len(files) {
		t.Errorf("open range kept %d of %d files", len(all), len(files))
	}
}

func TestOpenReadsFile(t *testing.T) {
	dir, src := tempSource(t)
	writeFile(t, dir, "cases.csv", "case_id,article_id,case_text\n")
	rc, err := src.Open("cases.csv")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if !strings.HasPrefix(string(data), "case_id") {
		t.Errorf("content = %q", data)
	}
}

func encodeParquet[T any](t *testing.T, rows []T) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	if err := parquet.Write(&buf, rows); err != nil {
		t.Fatalf("parquet.Write: %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}

func TestParquetArticles(t *testing.T) {
	type row struct {
		ArticleID  string `parquet:"article_id"`
		Title      string `parquet:"title"`
		Year       int64  `parquet:"year"`
		Citation   string `parquet:"citation"`
		Link       string `parquet:"link"`
		Commercial bool   `parquet:"commercial_use_license"`
		Extra      string `parquet:"license_type"`
	}
	in := encodeParquet(t, []row{
		{"PMC1", "First", 2014, "Doe J", "https://example.org/1", true, "CC BY"},
		{"PMC2", "Second", 2020, "Roe R", "https://example.org/2", false, "CC BY-NC"},
	})
	var got []models.Article
	if err := Parquet.Articles(in, func(a models.Article) error {
		got = append(got, a)
		return nil
	}); err != nil {
		t.Fatalf("Articles: %v", err)
	}
	want := []models.Article{
		{ArticleID: "PMC1", Title: "First", Year: 2014, Citation: "Doe J", Link: "https://example.org/1", CommercialUse: true},
		{ArticleID: "PMC2", Title: "Second", Year: 2020, Citation: "Roe R", Link: "https://example.org/2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v\nwant %+v", got, want)
	}
}

func TestParquetCases_NullableAge(t *testing.T) {
	type row struct {
		CaseID    string   `parquet:"case_id"`
		ArticleID string   `parquet:"article_id"`
		Age       *float64 `parquet:"age,optional"`
		Gender    string   `parquet:"gender"`
		Text      string   `parquet:"case_text"`
	}
	age, nan := 54.0, math.NaN()
	in := encodeParquet(t, []row{
		{"PMC1_01", "PMC1", &age, "Male", "Diabetic."},
		{"PMC1_02", "PMC1", nil, "Female", "No age."},
		{"PMC1_03", "PMC1", &nan, "Female", "NaN age."},
	})
	var got []models.Case
	if err := Parquet.Cases(in, func(c models.Case) error {
		got = append(got, c)
		return nil
	}); err != nil {
		t.Fatalf("Cases: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].Age == nil || *got[0].Age != 54 || got[0].Text != "Diabetic." {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Age != nil || got[2].Age != nil {
		t.Error("null and NaN ages should be nil")
	}
}

func TestParquetImages_Labels(t *testing.T) {
	type literalRow struct {
		File      string `parquet:"file"`
		CaseID    string `parquet:"case_id"`
		ArticleID string `parquet:"article_id"`
		Caption   string `parquet:"caption"`
		Labels    string `parquet:"labels"`
	}
	type listRow struct {
		File      string   `parquet:"file"`
		CaseID    string   `parquet:"case_id"`
		ArticleID string   `parquet:"article_id"`
		Caption   string   `parquet:"caption"`
		Labels    []string `parquet:"labels,list"`
	}
	read := func(in *bytes.Reader) []models.Image {
		t.Helper()
		var got []models.Image
		if err := Parquet.Images(in, func(img models.Image) error {
			got = append(got, img)
			return nil
		}); err != nil {
			t.Fatalf("Images: %v", err)
		}
		return got
	}

	got := read(encodeParquet(t, []literalRow{{"f1.jpg", "PMC1_01", "PMC1", "Axial CT", "['ct', 'head']"}}))
	if len(got) != 1 || !reflect.DeepEqual(got[0].Labels, []string{"ct", "head"}) || got[0].Caption != "Axial CT" {
		t.Errorf("literal labels: %+v", got)
	}

	got = read(encodeParquet(t, []listRow{
		{"f1.jpg", "PMC1_01", "PMC1", "Axial CT", []string{"ct", "head"}},
		{"f2.jpg", "PMC1_01", "PMC1", "No labels", nil},
	}))
	if len(got) != 2 || !reflect.DeepEqual(got[0].Labels, []string{"ct", "head"}) || len(got[1].Labels) != 0 {
		t.Errorf("list labels: %+v", got)
	}
}

func TestParquetMissingColumn(t *testing.T) {
	type row struct {
		File string `parquet:"file"`
	}
	err := Parquet.Images(encodeParquet(t, []row{{"f.jpg"}}), func(models.Image) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "case_id") {
		t.Fatalf("expected missing column error, got %v", err)
	}
}

func TestDecoderFor(t *testing.T) {
	if _, err := DecoderFor(models.FormatParquet); err != nil {
		t.Errorf("parquet: %v", err)
	}
	if _, err := DecoderFor(models.FormatCSV); err != nil {
		t.Errorf("csv: %v", err)
	}
	if _, err := DecoderFor("xlsx"); err == nil {
		t.Error("unknown format should fail")
	}
}
