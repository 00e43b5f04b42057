package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Embedding.Dimensions != Default().Embedding.Dimensions {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoad_OverridesMergeOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(`{"recall": {"project_results": 10, "global_results": 5, "boost_recency": true, "recency_half_life_days": 14}}`), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Recall.ProjectResults != 10 {
		t.Errorf("expected override to apply, got %d", cfg.Recall.ProjectResults)
	}
	if cfg.Chunking.MaxTokens != Default().Chunking.MaxTokens {
		t.Errorf("expected untouched section to keep default, got %+v", cfg.Chunking)
	}
}

func TestLoad_UnknownTopLevelKeyRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(`{"bogus": {"x": 1}}`), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown top-level key")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(`{not json`), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid json")
	}
}

func TestDefault_SatisfiesInvariants(t *testing.T) {
	cfg := Default()
	if cfg.Recall.ProjectResults <= 0 || cfg.Recall.GlobalResults <= 0 {
		t.Error("expected positive default result counts")
	}
	if cfg.GC.MinConfidence < 0 || cfg.GC.MinConfidence > 1 {
		t.Error("expected min confidence in [0,1]")
	}
	if cfg.Maintenance.ConsolidationDistanceMultiplier <= 0 {
		t.Error("expected positive consolidation distance multiplier")
	}
}
