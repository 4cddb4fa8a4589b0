package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestSaveLoadYAMLRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "debug"
	cfg.Quality.MinCompletenessPct = 75
	cfg.Detectors.Clustering.Seed = 7
	cfg.Fusion.MinSegment = 16 * time.Hour

	path := filepath.Join(t.TempDir(), "glycoscope.yaml")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.LogLevel != "debug" {
		t.Fatalf("log level: %s", loaded.LogLevel)
	}
	if loaded.Quality.MinCompletenessPct != 75 {
		t.Fatalf("completeness: %f", loaded.Quality.MinCompletenessPct)
	}
	if loaded.Detectors.Clustering.Seed != 7 {
		t.Fatalf("seed: %d", loaded.Detectors.Clustering.Seed)
	}
	if loaded.Fusion.MinSegment != 16*time.Hour {
		t.Fatalf("min segment: %s", loaded.Fusion.MinSegment)
	}
}

func TestLoadJSONConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glycoscope.json")
	body := `{"log_level": "warn", "quality": {"min_completeness_pct": 50}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.LogLevel != "warn" {
		t.Fatalf("log level: %s", loaded.LogLevel)
	}
	if loaded.Quality.MinCompletenessPct != 50 {
		t.Fatalf("completeness: %f", loaded.Quality.MinCompletenessPct)
	}
	// Untouched sections keep their defaults.
	if loaded.Detectors.Clustering.K != 3 {
		t.Fatalf("clustering k: %d", loaded.Detectors.Clustering.K)
	}
}

func TestValidateRejectsBadSignalBands(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Quality.SignalRejectBelow = 90
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for non-increasing signal bands")
	}
}

func TestValidateRejectsSparseKafka(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ingest.Kafka.Enabled = true
	cfg.Ingest.Kafka.Brokers = nil
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for kafka without brokers")
	}
}

func TestLoadEmptyFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for empty config")
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath(""); got != "" {
		t.Fatalf("empty path: %q", got)
	}
	abs := filepath.Join(t.TempDir(), "glycoscope.yaml")
	if got := ResolvePath(abs); got != abs {
		t.Fatalf("absolute path rewritten: %q", got)
	}
	got := ResolvePath("glycoscope.yaml")
	if !filepath.IsAbs(got) || filepath.Base(got) != "glycoscope.yaml" {
		t.Fatalf("relative path not resolved: %q", got)
	}
}

func TestManagerReloadOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glycoscope.yaml")
	if err := Save(path, DefaultConfig()); err != nil {
		t.Fatalf("save: %v", err)
	}
	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	if mgr.Get().LogLevel != "info" {
		t.Fatalf("initial log level: %s", mgr.Get().LogLevel)
	}

	next := DefaultConfig()
	next.LogLevel = "debug"
	if err := Save(path, next); err != nil {
		t.Fatalf("save: %v", err)
	}
	// mtime granularity can swallow rapid rewrites.
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if _, err := mgr.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if mgr.Get().LogLevel != "debug" {
		t.Fatalf("reloaded log level: %s", mgr.Get().LogLevel)
	}
}
