// Package model defines the core memory data types shared across the
// engine, store, and ranker.
package model

import "time"

// Memory represents a single persisted memory row.
type Memory struct {
	ID           int64      `json:"id"`
	Content      string     `json:"content"`
	Type         string     `json:"type"`
	Project      *string    `json:"project,omitempty"`
	Category     string     `json:"category,omitempty"`
	Reasoning    string     `json:"reasoning,omitempty"`
	Source       string     `json:"source"`
	Importance   int        `json:"importance"`
	Confidence   float64    `json:"confidence"`
	CreatedAt    time.Time  `json:"created_at"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
	AccessCount  int        `json:"access_count"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Supersedes   *int64     `json:"supersedes,omitempty"`
	IsObsolete   bool       `json:"is_obsolete"`
	Tags         []string   `json:"tags,omitempty"`
}

// ValidTypes are the allowed memory types.
var ValidTypes = map[string]bool{
	"decision":     true,
	"preference":   true,
	"fact":         true,
	"pattern":      true,
	"conversation": true,
}

// ValidSources are the allowed source tags (spec.md §6 closed set).
var ValidSources = map[string]bool{
	"manual":          true,
	"auto:session":    true,
	"auto:commit":     true,
	"auto:pattern":    true,
	"auto:bootstrap":  true,
	"auto:ingest":     true,
	"auto:response":   true,
	"auto:precompact": true,
}

// DefaultImportance is the importance assigned when a caller omits it.
const DefaultImportance = 3

// DefaultConfidence is the confidence assigned to manually-saved rows.
const DefaultConfidence = 1.0

// IsGlobal reports whether the memory has no project scope.
func (m Memory) IsGlobal() bool {
	return m.Project == nil
}
