package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadTuningDefaults(t *testing.T) {
	tn, err := LoadTuning("")
	if err != nil {
		t.Fatalf("LoadTuning: %v", err)
	}
	if tn.MetaScanners != 8 {
		t.Fatalf("MetaScanners: got %d, want 8", tn.MetaScanners)
	}
	if tn.PersistenceFetchers != 16 {
		t.Fatalf("PersistenceFetchers: got %d, want 16", tn.PersistenceFetchers)
	}
	if tn.HTTPTimeout.Std() != 10*time.Minute {
		t.Fatalf("HTTPTimeout: got %v, want 10m", tn.HTTPTimeout.Std())
	}
}

func TestLoadTuningOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	body := "meta_scanners: 4\nhttp_timeout: 2m\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	tn, err := LoadTuning(path)
	if err != nil {
		t.Fatalf("LoadTuning: %v", err)
	}
	if tn.MetaScanners != 4 {
		t.Fatalf("MetaScanners: got %d, want 4", tn.MetaScanners)
	}
	if tn.HTTPTimeout.Std() != 2*time.Minute {
		t.Fatalf("HTTPTimeout: got %v, want 2m", tn.HTTPTimeout.Std())
	}
	// Untouched fields keep their defaults.
	if tn.MetaBatch != 100 {
		t.Fatalf("MetaBatch: got %d, want 100", tn.MetaBatch)
	}
}

func TestLoadTuningRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("meta_batch: 500\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTuning(path); err == nil {
		t.Fatal("expected error for meta_batch > 100")
	}
}
