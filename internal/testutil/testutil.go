// Package testutil provides shared test helpers for setting up datasets and databases.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/multicare-dataset/website/internal/dataset"
	"github.com/multicare-dataset/website/internal/store"
)

// Sample dataset tables. Three articles (2015, 2019, 2022), five cases split
// over year partitions and five images.
const (
	ArticlesCSV = "article_id,title,year,citation,link,commercial_use_license\n" +
		"PMC1,Fever after travel,2015,\"Doe J, et al. Case Rep Med. 2015\",https://www.ncbi.nlm.nih.gov/pmc/articles/PMC1/,True\n" +
		"PMC2,Chest pain in a young adult,2019,\"Roe R. J Med Case Rep. 2019\",https://www.ncbi.nlm.nih.gov/pmc/articles/PMC2/,False\n" +
		"PMC3,Pediatric seizure,2022,\"Poe P. BMC Pediatr. 2022\",https://www.ncbi.nlm.nih.gov/pmc/articles/PMC3/,True\n"

	Cases2013CSV = "case_id,article_id,age,gender,case_text\n" +
		"PMC1_01,PMC1,45,Female,\"A 45-year-old woman presented with fever and headache after travel. Malaria was excluded.\"\n" +
		"PMC1_02,PMC1,60,Male,\"A 60-year-old man had cough and fever. Chest CT showed consolidation.\"\n"

	Cases2018CSV = "case_id,article_id,age,gender,case_text\n" +
		"PMC2_01,PMC2,24,Male,\"A 24-year-old man with chest pain. ECG was normal; cardiac MRI showed myocarditis.\"\n"

	Cases2022CSV = "case_id,article_id,age,gender,case_text\n" +
		"PMC3_01,PMC3,7,Female,\"A 7-year-old girl with seizure. Brain MRI revealed a cortical lesion.\"\n" +
		"PMC3_02,PMC3,,Unknown,\"An infant with fever and rash.\"\n"

	ImagesCSV = "file,case_id,article_id,caption,labels\n" +
		"PMC1_01_fig1.jpg,PMC1_01,PMC1,Axial CT of the head without lesion.,\"['radiology', 'ct', 'head']\"\n" +
		"PMC1_02_fig1.jpg,PMC1_02,PMC1,Chest CT showing consolidation.,\"['radiology', 'ct', 'thorax']\"\n" +
		"PMC2_01_fig1.jpg,PMC2_01,PMC2,Cardiac MRI with late enhancement.,\"['radiology', 'mri', 'thorax']\"\n" +
		"PMC3_01_fig1.jpg,PMC3_01,PMC3,\"Brain MRI, T2 weighted, showing a lesion.\",\"['radiology', 'mri', 'head']\"\n" +
		"PMC3_01_fig2.jpg,PMC3_01,PMC3,EEG tracing.,\"['electrography', 'eeg']\"\n"
)

// SampleFiles maps dataset file names to their sample contents.
var SampleFiles = map[string]string{
	"article_metadata.csv": ArticlesCSV,
	"cases_2013_2017.csv":  Cases2013CSV,
	"cases_2018_2021.csv":  Cases2018CSV,
	"cases_2022_2024.csv":  Cases2022CSV,
	"image_metadata.csv":   ImagesCSV,
}

// Logger returns a logger that only reports errors.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "casehub-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestDataset creates a temporary dataset directory holding SampleFiles and
// one placeholder image.
func TestDataset(t *testing.T) (string, *dataset.FS) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range SampleFiles {
		WriteFile(t, dir, name, content)
	}
	src, err := dataset.NewFS(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	WriteFile(t, filepath.Join(dir, "img"), "PMC1_01_fig1.jpg", "\xff\xd8\xff\xe0fake-jpeg")
	return dir, src
}

// WriteFile writes content to dir/name.
func WriteFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// LoadedStore returns a store synced from a fresh sample dataset.
func LoadedStore(t *testing.T) (*store.DB, *dataset.FS) {
	t.Helper()
	db := TestDB(t)
	_, src := TestDataset(t)
	if _, err := store.Sync(context.Background(), db, src, dataset.YearRange{}, Logger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	return db, src
}

// ReadAll reads rc fully and closes it.
func ReadAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
