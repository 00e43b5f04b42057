// Package config loads and hot-reloads config.json (spec.md §6). Fields
// are explicit with documented defaults; unknown keys, top-level or
// nested, are rejected rather than silently ignored.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// Embedding configures the embedding service client.
type Embedding struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	BaseURL    string `json:"base_url"`
}

// Chunking configures the chunker (spec.md §4.2).
type Chunking struct {
	MaxTokens    int `json:"max_tokens"`
	OverlapTokens int `json:"overlap_tokens"`
	MinChunkSize int `json:"min_chunk_size"`
}

// Recall configures scoped recall and the ranker (spec.md §4.7, §4.8).
type Recall struct {
	ProjectResults       int     `json:"project_results"`
	GlobalResults        int     `json:"global_results"`
	DistanceThreshold    float64 `json:"distance_threshold"`
	BoostRecency         bool    `json:"boost_recency"`
	RecencyHalfLifeDays  float64 `json:"recency_half_life_days"`
	// GlobalTypesInProject is reserved: parsed and stored, but neither
	// validated nor consulted by the recall path (spec.md §9 open question).
	GlobalTypesInProject []string `json:"global_types_in_project,omitempty"`
}

// Capture configures the out-of-scope hook-driven auto-capture behavior.
// Consumed only by external hooks; the engine itself never reads it.
type Capture struct {
	AutoSession     bool     `json:"auto_session"`
	AutoCommit      bool     `json:"auto_commit"`
	CommitPatterns  []string `json:"commit_patterns,omitempty"`
	MinImportance   int      `json:"min_importance"`
}

// Sensitive configures the Redactor (spec.md §4.4).
type Sensitive struct {
	Patterns []string `json:"patterns,omitempty"`
}

// Dedup configures remember's near-duplicate merge (spec.md §4.6).
type Dedup struct {
	Enabled            bool    `json:"enabled"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	PreferLonger        bool    `json:"prefer_longer"`
}

// GC configures garbage collection (spec.md §4.9).
type GC struct {
	MaxAgeUnusedDays int     `json:"max_age_unused_days"`
	MinConfidence    float64 `json:"min_confidence"`
}

// Maintenance configures maintenance passes beyond spec.md's base GC
// fields (the consolidation distance multiplier open question, §9).
type Maintenance struct {
	ConsolidationDistanceMultiplier float64 `json:"consolidation_distance_multiplier"`
}

// Config is the typed root of config.json.
type Config struct {
	Embedding   Embedding   `json:"embedding"`
	Chunking    Chunking    `json:"chunking"`
	Recall      Recall      `json:"recall"`
	Capture     Capture     `json:"capture"`
	Sensitive   Sensitive   `json:"sensitive"`
	Dedup       Dedup       `json:"dedup"`
	GC          GC          `json:"gc"`
	Maintenance Maintenance `json:"maintenance"`
}

// Default returns a Config with every documented default applied.
func Default() Config {
	return Config{
		Embedding: Embedding{Model: "default", Dimensions: 768, BaseURL: "http://127.0.0.1:8420"},
		Chunking:  Chunking{MaxTokens: 400, OverlapTokens: 40, MinChunkSize: 60},
		Recall: Recall{
			ProjectResults:      5,
			GlobalResults:       5,
			DistanceThreshold:   1.0,
			BoostRecency:        true,
			RecencyHalfLifeDays: 14,
		},
		Capture: Capture{MinImportance: 3},
		Dedup:   Dedup{Enabled: true, SimilarityThreshold: 0.15, PreferLonger: true},
		GC:      GC{MaxAgeUnusedDays: 180, MinConfidence: 0.5},
		Maintenance: Maintenance{
			ConsolidationDistanceMultiplier: 2.0,
		},
	}
}

// knownTopLevelKeys lists the top-level config.json sections this module
// recognizes. Anything else is InvalidInput.
var knownTopLevelKeys = map[string]bool{
	"embedding": true, "chunking": true, "recall": true, "capture": true,
	"sensitive": true, "dedup": true, "gc": true, "maintenance": true,
}

// Load reads config.json at path, merging over Default(). Missing file is
// not an error — Default() is returned unchanged. Unknown fields, at the
// top level or inside a section, are rejected with ErrInvalidInput.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: read: %w", err)
	}

	if err := validateKnownKeys(data); err != nil {
		return Config{}, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: invalid json: %v: %w", err, ErrInvalidInput)
	}
	return cfg, nil
}

func validateKnownKeys(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("config: invalid json: %w", err)
	}
	for k := range raw {
		if !knownTopLevelKeys[k] {
			return fmt.Errorf("config: unknown field %q: %w", k, ErrInvalidInput)
		}
	}
	return nil
}

// ErrInvalidInput is returned for malformed or unrecognized configuration.
var ErrInvalidInput = fmt.Errorf("config: invalid input")
