package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/multicare-dataset/website/internal/apperr"
	"github.com/multicare-dataset/website/internal/dataset"
	"github.com/multicare-dataset/website/internal/models"
	"github.com/multicare-dataset/website/internal/store"
	"github.com/multicare-dataset/website/internal/testutil"
)

func intPtr(v int) *int { return &v }

func caseIDs(cs []models.Case) []string {
	out := []string{}
	for _, c := range cs {
		out = append(out, c.CaseID)
	}
	return out
}

func imageFiles(imgs []models.Image) []string {
	out := []string{}
	for _, img := range imgs {
		out = append(out, img.File)
	}
	return out
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestSyncImportsAndSkipsUnchanged(t *testing.T) {
	ctx := context.Background()
	db := testutil.TestDB(t)
	dir, src := testutil.TestDataset(t)

	report, err := store.Sync(ctx, db, src, dataset.YearRange{}, testutil.Logger())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(report.Imported) != len(testutil.SampleFiles) || len(report.Failed) != 0 {
		t.Fatalf("report = %+v", report)
	}
	if report.Imported[0] != "article_metadata.csv" {
		t.Errorf("articles should import first, got %v", report.Imported)
	}

	st, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Articles != 3 || st.Cases != 5 || st.Images != 5 {
		t.Errorf("stats = %+v", st)
	}
	if len(st.Sources) != len(testutil.SampleFiles) {
		t.Errorf("sources = %+v", st.Sources)
	}

	again, err := store.Sync(ctx, db, src, dataset.YearRange{}, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}
	if again.Changed() {
		t.Errorf("unchanged dataset resynced: %+v", again)
	}

	testutil.WriteFile(t, dir, "cases_2018_2021.csv", testutil.Cases2018CSV+"PMC2_02,PMC2,31,Female,Palpitations.\n")
	changed, err := store.Sync(ctx, db, src, dataset.YearRange{}, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(changed.Imported, []string{"cases_2018_2021.csv"}) || changed.Rows != 2 {
		t.Errorf("changed = %+v", changed)
	}

	if err := os.Remove(filepath.Join(dir, "cases_2022_2024.csv")); err != nil {
		t.Fatal(err)
	}
	removed, err := store.Sync(ctx, db, src, dataset.YearRange{}, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(removed.Removed, []string{"cases_2022_2024.csv"}) {
		t.Errorf("removed = %+v", removed)
	}
	st, _ = db.Stats(ctx)
	if st.Cases != 4 {
		t.Errorf("cases after removal = %d, want 4", st.Cases)
	}
}

func TestSyncYearRangeSkipsPartitions(t *testing.T) {
	ctx := context.Background()
	db := testutil.TestDB(t)
	_, src := testutil.TestDataset(t)

	if _, err := store.Sync(ctx, db, src, dataset.YearRange{Min: 2018, Max: 2021}, testutil.Logger()); err != nil {
		t.Fatal(err)
	}
	st, _ := db.Stats(ctx)
	if st.Cases != 1 {
		t.Errorf("cases = %d, want 1", st.Cases)
	}

	// Widening the range imports the missing partitions only.
	report, err := store.Sync(ctx, db, src, dataset.YearRange{}, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Imported) != 2 {
		t.Errorf("imported = %v", report.Imported)
	}
}

func TestSyncReportsBrokenFile(t *testing.T) {
	ctx := context.Background()
	db := testutil.TestDB(t)
	dir, src := testutil.TestDataset(t)
	testutil.WriteFile(t, dir, "cases.csv", "case_id,gender\nX,Male\n")

	report, err := store.Sync(ctx, db, src, dataset.YearRange{}, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(report.Failed, []string{"cases.csv"}) {
		t.Errorf("failed = %v", report.Failed)
	}
	st, _ := db.Stats(ctx)
	if st.Cases != 5 {
		t.Errorf("other files should still import, cases = %d", st.Cases)
	}
}

func TestArticlesFilter(t *testing.T) {
	db, _ := testutil.LoadedStore(t)
	ctx := context.Background()

	got, err := db.Articles(ctx, store.ArticleFilter{CommercialOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ArticleID != "PMC1" || got[1].ArticleID != "PMC3" {
		t.Errorf("commercial = %+v", got)
	}

	got, _ = db.Articles(ctx, store.ArticleFilter{MinYear: 2016, MaxYear: 2022})
	if len(got) != 2 || got[0].ArticleID != "PMC2" {
		t.Errorf("2016-2022 = %+v", got)
	}
}

func TestCasesFilter(t *testing.T) {
	db, _ := testutil.LoadedStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter store.CaseFilter
		want   []string
	}{
		{"all", store.CaseFilter{}, []string{"PMC1_01", "PMC1_02", "PMC2_01", "PMC3_01", "PMC3_02"}},
		{"year", store.CaseFilter{MinYear: 2015, MaxYear: 2015}, []string{"PMC1_01", "PMC1_02"}},
		{"min age drops unknown", store.CaseFilter{MinAge: intPtr(0)}, []string{"PMC1_01", "PMC1_02", "PMC2_01", "PMC3_01"}},
		{"age window", store.CaseFilter{MinAge: intPtr(18), MaxAge: intPtr(50)}, []string{"PMC1_01", "PMC2_01"}},
		{"gender", store.CaseFilter{Gender: "Female"}, []string{"PMC1_01", "PMC3_01"}},
		{"query", store.CaseFilter{Query: "fever"}, []string{"PMC1_01", "PMC1_02", "PMC3_02"}},
		{"query not", store.CaseFilter{Query: "fever NOT malaria or rash"}, []string{"PMC1_02"}},
		{"query and", store.CaseFilter{Query: "mri AND seizure or chest pain"}, []string{"PMC2_01", "PMC3_01"}},
		{"combined", store.CaseFilter{Gender: "Male", Query: "fever"}, []string{"PMC1_02"}},
		{"blank query ignored", store.CaseFilter{Query: "   "}, []string{"PMC1_01", "PMC1_02", "PMC2_01", "PMC3_01", "PMC3_02"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.Cases(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Cases: %v", err)
			}
			if ids := caseIDs(got); !reflect.DeepEqual(ids, tt.want) {
				t.Errorf("got %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestImagesFilter(t *testing.T) {
	db, _ := testutil.LoadedStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter store.ImageFilter
		want   []string
	}{
		{"labels", store.ImageFilter{Labels: []string{"mri", "head"}}, []string{"PMC3_01_fig1.jpg"}},
		{"single label", store.ImageFilter{Labels: []string{"ct"}}, []string{"PMC1_01_fig1.jpg", "PMC1_02_fig1.jpg"}},
		{"empty label ignored", store.ImageFilter{Labels: []string{"", "thorax"}}, []string{"PMC1_02_fig1.jpg", "PMC2_01_fig1.jpg"}},
		{"caption query", store.ImageFilter{Query: "lesion"}, []string{"PMC1_01_fig1.jpg", "PMC3_01_fig1.jpg"}},
		{"year", store.ImageFilter{MinYear: 2019, MaxYear: 2019}, []string{"PMC2_01_fig1.jpg"}},
		{"no match", store.ImageFilter{Labels: []string{"pathology"}}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.Images(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Images: %v", err)
			}
			if files := imageFiles(got); !reflect.DeepEqual(files, tt.want) {
				t.Errorf("got %v, want %v", files, tt.want)
			}
		})
	}
}

func TestLookups(t *testing.T) {
	db, _ := testutil.LoadedStore(t)
	ctx := context.Background()

	c, err := db.Case(ctx, "PMC3_02")
	if err != nil {
		t.Fatalf("Case: %v", err)
	}
	if c.Age != nil || c.Gender != "Unknown" {
		t.Errorf("case = %+v", c)
	}

	a, err := db.Article(ctx, "PMC1")
	if err != nil {
		t.Fatalf("Article: %v", err)
	}
	if a.Citation != "Doe J, et al. Case Rep Med. 2015" || !a.CommercialUse {
		t.Errorf("article = %+v", a)
	}

	img, err := db.Image(ctx, "PMC3_01_fig2.jpg")
	if err != nil {
		t.Fatalf("Image: %v", err)
	}
	if !reflect.DeepEqual(img.Labels, []string{"electrography", "eeg"}) {
		t.Errorf("labels = %v", img.Labels)
	}

	imgs, err := db.ImagesForCase(ctx, "PMC3_01")
	if err != nil || len(imgs) != 2 {
		t.Errorf("ImagesForCase = %v, %v", imageFiles(imgs), err)
	}

	if _, err := db.Case(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing case err = %v", err)
	}
	if _, err := db.Article(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing article err = %v", err)
	}
	if _, err := db.Image(ctx, "missing.jpg"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing image err = %v", err)
	}
}

func TestWatcher_ResyncsOnChange(t *testing.T) {
	db := testutil.TestDB(t)
	dir, src := testutil.TestDataset(t)
	logger := testutil.Logger()
	if _, err := store.Sync(context.Background(), db, src, dataset.YearRange{}, logger); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var reports []*store.SyncReport
	go store.Watch(ctx, db, src, dir, dataset.YearRange{}, logger, func(r *store.SyncReport) {
		mu.Lock()
		reports = append(reports, r)
		mu.Unlock()
	})
	time.Sleep(100 * time.Millisecond)

	testutil.WriteFile(t, dir, "cases_2025_2026.csv", "case_id,article_id,age,gender,case_text\nPMC9_01,PMC9,30,Male,New case.\n")
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		st, _ := db.Stats(context.Background())
		return st != nil && st.Cases == 6
	}, "new partition not imported by watcher")

	_ = os.Remove(filepath.Join(dir, "cases_2018_2021.csv"))
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		st, _ := db.Stats(context.Background())
		return st != nil && st.Cases == 5
	}, "removed partition still in store")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reports) >= 2
	}, "expected a callback per resync")
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	db := testutil.TestDB(t)
	dir, src := testutil.TestDataset(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	calls := 0
	go store.Watch(ctx, db, src, dir, dataset.YearRange{}, testutil.Logger(), func(*store.SyncReport) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	time.Sleep(100 * time.Millisecond)

	testutil.WriteFile(t, dir, "notes.txt", "scratch")
	time.Sleep(500 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("unrelated file triggered %d syncs", calls)
	}
}

func TestSyncParquetDataset(t *testing.T) {
	ctx := context.Background()
	db := testutil.TestDB(t)
	dir := t.TempDir()
	testutil.WriteParquetDataset(t, dir)
	src, err := dataset.NewFS(dir, "")
	if err != nil {
		t.Fatal(err)
	}

	report, err := store.Sync(ctx, db, src, dataset.YearRange{}, testutil.Logger())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(report.Imported) != 4 || len(report.Failed) != 0 {
		t.Fatalf("report = %+v", report)
	}
	st, _ := db.Stats(ctx)
	if st.Articles != 2 || st.Cases != 3 || st.Images != 2 {
		t.Errorf("stats = %+v", st)
	}

	cases, err := db.Cases(ctx, store.CaseFilter{MinAge: intPtr(60), Query: "aphasia"})
	if err != nil {
		t.Fatal(err)
	}
	if got := caseIDs(cases); !reflect.DeepEqual(got, []string{"PMC11_01"}) {
		t.Errorf("cases = %v", got)
	}
	images, err := db.Images(ctx, store.ImageFilter{Labels: []string{"ct", "abdomen"}})
	if err != nil {
		t.Fatal(err)
	}
	if got := imageFiles(images); !reflect.DeepEqual(got, []string{"PMC10_01_fig1.jpg"}) {
		t.Errorf("images = %v", got)
	}
}

func TestSyncKeepsRowsSharedWithOtherSources(t *testing.T) {
	ctx := context.Background()
	db := testutil.TestDB(t)
	dir, src := testutil.TestDataset(t)
	// cases.csv repeats PMC1_01 from cases_2013_2017.csv, which imports
	// later and takes over the row.
	testutil.WriteFile(t, dir, "cases.csv", "case_id,article_id,age,gender,case_text\n"+
		"PMC1_01,PMC1,45,Female,\"A 45-year-old woman presented with fever and headache after travel.\"\n")

	if _, err := store.Sync(ctx, db, src, dataset.YearRange{}, testutil.Logger()); err != nil {
		t.Fatal(err)
	}
	overlaps, err := db.OverlappingSources(ctx, "cases.csv")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(overlaps, []string{"cases_2013_2017.csv"}) {
		t.Errorf("overlaps = %v", overlaps)
	}

	// Removing the partition that owns PMC1_01 reimports cases.csv.
	partition := filepath.Join(dir, "cases_2013_2017.csv")
	if err := os.Remove(partition); err != nil {
		t.Fatal(err)
	}
	report, err := store.Sync(ctx, db, src, dataset.YearRange{}, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(report.Imported, []string{"cases.csv"}) {
		t.Errorf("imported = %v", report.Imported)
	}
	if _, err := db.Case(ctx, "PMC1_01"); err != nil {
		t.Errorf("PMC1_01 after partition removal: %v", err)
	}
	if _, err := db.Case(ctx, "PMC1_02"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("PMC1_02 should be gone, got %v", err)
	}

	// The partition comes back, then drops PMC1_01: cases.csv still has it.
	testutil.WriteFile(t, dir, "cases_2013_2017.csv", testutil.Cases2013CSV)
	if _, err := store.Sync(ctx, db, src, dataset.YearRange{}, testutil.Logger()); err != nil {
		t.Fatal(err)
	}
	testutil.WriteFile(t, dir, "cases_2013_2017.csv", "case_id,article_id,age,gender,case_text\n"+
		"PMC1_02,PMC1,60,Male,\"A 60-year-old man had cough and fever.\"\n")
	report, err = store.Sync(ctx, db, src, dataset.YearRange{}, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(report.Imported, []string{"cases.csv", "cases_2013_2017.csv"}) {
		t.Errorf("imported = %v", report.Imported)
	}
	if _, err := db.Case(ctx, "PMC1_01"); err != nil {
		t.Errorf("PMC1_01 after partition change: %v", err)
	}

	// Removing the last file that has the row removes it.
	if err := os.Remove(filepath.Join(dir, "cases.csv")); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Sync(ctx, db, src, dataset.YearRange{}, testutil.Logger()); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Case(ctx, "PMC1_01"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("PMC1_01 should be gone, got %v", err)
	}
}
