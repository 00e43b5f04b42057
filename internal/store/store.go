// Package store owns the single on-disk SQLite database: memory rows,
// their embeddings, and the operations the engine composes into
// remember/recall/forget (spec.md §4.5).
package store

import (
	"context"
	"time"

	"github.com/ankurp/memkeep/internal/model"
)

// InsertParams holds the fields for a new memory row. Embedding is
// inserted in the same transaction as the row.
type InsertParams struct {
	Content    string
	Type       string
	Project    *string
	Category   string
	Reasoning  string
	Source     string
	Importance int
	Confidence float64
	Tags       []string
	ExpiresAt  *time.Time
	Supersedes *int64
	Embedding  []float32
}

// KNNFilters restricts a knn query.
type KNNFilters struct {
	Project          *string // nil: caller did not scope; see ProjectSet
	ProjectSet       bool
	Type             string
	MinImportance    int
	IncludeObsolete  bool
}

// Match is one result row from a nearest-neighbor query.
type Match struct {
	Memory   model.Memory
	Distance float64
}

// DeletePredicate narrows delete_where to memories matching Category
// and/or Source, scoped to Project (nil means global-only).
type DeletePredicate struct {
	Category   string
	Source     string
	Project    *string
	ProjectSet bool
}

// Store is the persistence interface the engine depends on.
type Store interface {
	Insert(ctx context.Context, p InsertParams) (int64, error)
	KNN(ctx context.Context, query []float32, k int, filters KNNFilters) ([]Match, error)
	NearestOne(ctx context.Context, query []float32, excludeObsolete bool) (*Match, error)
	UpdateContent(ctx context.Context, id int64, content string, embedding []float32) error
	UpdateImportance(ctx context.Context, id int64, importance int) error
	UpdateStats(ctx context.Context, ids []int64, now time.Time) error
	SetObsolete(ctx context.Context, id int64, supersedes *int64) error
	Delete(ctx context.Context, ids []int64) error
	DeleteWhere(ctx context.Context, pred DeletePredicate, dryRun bool) (int, error)
	NeighborsOf(ctx context.Context, id int64, k int) ([]Match, error)
	ScanActive(ctx context.Context, project *string, projectSet bool) ([]model.Memory, error)
	GetByID(ctx context.Context, id int64) (model.Memory, error)
	GCCandidates(ctx context.Context, project *string, projectSet bool, maxAgeUnusedDays int, minConfidence float64, now time.Time) ([]int64, error)
	Counts(ctx context.Context) (Counts, error)
	Close() error
}

// Counts summarizes the store's contents for the stats operation.
type Counts struct {
	Total         int
	Active        int
	Obsolete      int
	ByType        map[string]int
	ByProject     map[string]int
	GlobalCount   int
}
