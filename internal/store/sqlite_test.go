package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func vec(f ...float32) []float32 { return f }

func TestInsertAndGetByID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.Insert(ctx, InsertParams{
		Content: "hello world", Type: "fact", Source: "manual",
		Importance: 3, Confidence: 1.0, Embedding: vec(1, 0, 0),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id == 0 {
		t.Error("expected non-zero id")
	}

	got, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != "hello world" {
		t.Errorf("expected content to round-trip, got %q", got.Content)
	}
	if got.Project != nil {
		t.Errorf("expected global (nil project), got %v", *got.Project)
	}
}

func TestKNN_OrdersByDistanceAscending(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	idFar, _ := s.Insert(ctx, InsertParams{Content: "far", Type: "fact", Source: "manual", Importance: 3, Confidence: 1, Embedding: vec(10, 10, 10)})
	idNear, _ := s.Insert(ctx, InsertParams{Content: "near", Type: "fact", Source: "manual", Importance: 3, Confidence: 1, Embedding: vec(1, 0, 0)})

	matches, err := s.KNN(ctx, vec(1, 0, 0), 2, KNNFilters{})
	if err != nil {
		t.Fatalf("knn: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Memory.ID != idNear {
		t.Errorf("expected nearest first (id=%d), got id=%d", idNear, matches[0].Memory.ID)
	}
	if matches[1].Memory.ID != idFar {
		t.Errorf("expected farthest second (id=%d), got id=%d", idFar, matches[1].Memory.ID)
	}
	if matches[0].Distance > matches[1].Distance {
		t.Error("expected ascending distance order")
	}
}

func TestKNN_ExcludesObsoleteByDefault(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, _ := s.Insert(ctx, InsertParams{Content: "x", Type: "fact", Source: "manual", Importance: 3, Confidence: 1, Embedding: vec(1, 0, 0)})
	s.SetObsolete(ctx, id, nil)

	matches, err := s.KNN(ctx, vec(1, 0, 0), 5, KNNFilters{})
	if err != nil {
		t.Fatalf("knn: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected obsolete row excluded, got %d matches", len(matches))
	}

	matches, err = s.KNN(ctx, vec(1, 0, 0), 5, KNNFilters{IncludeObsolete: true})
	if err != nil {
		t.Fatalf("knn include obsolete: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("expected obsolete row included, got %d matches", len(matches))
	}
}

func TestKNN_ExcludesExpired(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	past := time.Now().Add(-time.Hour)
	s.Insert(ctx, InsertParams{Content: "expired", Type: "fact", Source: "manual", Importance: 3, Confidence: 1, Embedding: vec(1, 0, 0), ExpiresAt: &past})

	matches, err := s.KNN(ctx, vec(1, 0, 0), 5, KNNFilters{})
	if err != nil {
		t.Fatalf("knn: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected expired row excluded, got %d", len(matches))
	}
}

func TestKNN_FiltersByProjectAndType(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	proj := "web"
	s.Insert(ctx, InsertParams{Content: "proj fact", Type: "fact", Project: &proj, Source: "manual", Importance: 3, Confidence: 1, Embedding: vec(1, 0, 0)})
	s.Insert(ctx, InsertParams{Content: "global pref", Type: "preference", Source: "manual", Importance: 3, Confidence: 1, Embedding: vec(1, 0, 0)})

	matches, err := s.KNN(ctx, vec(1, 0, 0), 5, KNNFilters{ProjectSet: true, Project: &proj})
	if err != nil {
		t.Fatalf("knn: %v", err)
	}
	if len(matches) != 1 || matches[0].Memory.Content != "proj fact" {
		t.Errorf("expected only the project-scoped row, got %+v", matches)
	}

	matches, err = s.KNN(ctx, vec(1, 0, 0), 5, KNNFilters{Type: "preference"})
	if err != nil {
		t.Fatalf("knn type filter: %v", err)
	}
	if len(matches) != 1 || matches[0].Memory.Content != "global pref" {
		t.Errorf("expected only the preference row, got %+v", matches)
	}
}

func TestNearestOne(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Insert(ctx, InsertParams{Content: "a", Type: "fact", Source: "manual", Importance: 3, Confidence: 1, Embedding: vec(1, 0, 0)})

	match, err := s.NearestOne(ctx, vec(1, 0, 0), true)
	if err != nil {
		t.Fatalf("nearest_one: %v", err)
	}
	if match == nil {
		t.Fatal("expected a match")
	}
	if match.Memory.Content != "a" {
		t.Errorf("expected 'a', got %q", match.Memory.Content)
	}
}

func TestNearestOne_EmptyStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	match, err := s.NearestOne(ctx, vec(1, 0, 0), true)
	if err != nil {
		t.Fatalf("nearest_one: %v", err)
	}
	if match != nil {
		t.Errorf("expected nil match on empty store, got %+v", match)
	}
}

func TestUpdateContent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, _ := s.Insert(ctx, InsertParams{Content: "old", Type: "fact", Source: "manual", Importance: 3, Confidence: 1, Embedding: vec(1, 0, 0)})
	if err := s.UpdateContent(ctx, id, "new", vec(0, 1, 0)); err != nil {
		t.Fatalf("update content: %v", err)
	}

	got, _ := s.GetByID(ctx, id)
	if got.Content != "new" {
		t.Errorf("expected updated content, got %q", got.Content)
	}

	match, _ := s.NearestOne(ctx, vec(0, 1, 0), true)
	if match == nil || match.Memory.ID != id {
		t.Error("expected re-embedded vector to be nearest to (0,1,0)")
	}
}

func TestUpdateImportance(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, _ := s.Insert(ctx, InsertParams{Content: "a", Type: "fact", Source: "manual", Importance: 3, Confidence: 1, Embedding: vec(1, 0, 0)})
	if err := s.UpdateImportance(ctx, id, 5); err != nil {
		t.Fatalf("update importance: %v", err)
	}

	got, _ := s.GetByID(ctx, id)
	if got.Importance != 5 {
		t.Errorf("expected importance 5, got %d", got.Importance)
	}
}

func TestUpdateStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, _ := s.Insert(ctx, InsertParams{Content: "a", Type: "fact", Source: "manual", Importance: 3, Confidence: 1, Embedding: vec(1, 0, 0)})
	if err := s.UpdateStats(ctx, []int64{id}, time.Now()); err != nil {
		t.Fatalf("update stats: %v", err)
	}

	got, _ := s.GetByID(ctx, id)
	if got.AccessCount != 1 {
		t.Errorf("expected access_count 1, got %d", got.AccessCount)
	}
	if got.LastAccessed == nil {
		t.Error("expected last_accessed to be set")
	}
}

func TestSetObsolete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	old, _ := s.Insert(ctx, InsertParams{Content: "old", Type: "fact", Source: "manual", Importance: 3, Confidence: 1, Embedding: vec(1, 0, 0)})
	replacement, _ := s.Insert(ctx, InsertParams{Content: "new", Type: "fact", Source: "manual", Importance: 3, Confidence: 1, Embedding: vec(0, 1, 0)})

	if err := s.SetObsolete(ctx, old, &replacement); err != nil {
		t.Fatalf("set_obsolete: %v", err)
	}

	got, _ := s.GetByID(ctx, old)
	if !got.IsObsolete {
		t.Error("expected is_obsolete true")
	}
	if got.Supersedes == nil || *got.Supersedes != replacement {
		t.Errorf("expected supersedes=%d, got %v", replacement, got.Supersedes)
	}
}

func TestDelete_SweepsOrphanEmbeddings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, _ := s.Insert(ctx, InsertParams{Content: "a", Type: "fact", Source: "manual", Importance: 3, Confidence: 1, Embedding: vec(1, 0, 0)})
	if err := s.Delete(ctx, []int64{id}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var count int
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&count)
	if count != 0 {
		t.Errorf("expected embeddings swept, got %d rows remaining", count)
	}

	if _, err := s.GetByID(ctx, id); err == nil {
		t.Error("expected error getting deleted memory")
	}
}

func TestDeleteWhere_ByCategory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Insert(ctx, InsertParams{Content: "a", Type: "fact", Category: "deploy", Source: "manual", Importance: 3, Confidence: 1, Embedding: vec(1, 0, 0)})
	s.Insert(ctx, InsertParams{Content: "b", Type: "fact", Category: "other", Source: "manual", Importance: 3, Confidence: 1, Embedding: vec(1, 0, 0)})

	count, err := s.DeleteWhere(ctx, DeletePredicate{Category: "deploy"}, false)
	if err != nil {
		t.Fatalf("delete_where: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 deleted, got %d", count)
	}

	all, _ := s.ScanActive(ctx, nil, false)
	if len(all) != 1 || all[0].Category != "other" {
		t.Errorf("expected only 'other' category to remain, got %+v", all)
	}
}

func TestDeleteWhere_DryRunDoesNotDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Insert(ctx, InsertParams{Content: "a", Type: "fact", Category: "deploy", Source: "manual", Importance: 3, Confidence: 1, Embedding: vec(1, 0, 0)})

	count, err := s.DeleteWhere(ctx, DeletePredicate{Category: "deploy"}, true)
	if err != nil {
		t.Fatalf("delete_where dry run: %v", err)
	}
	if count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}

	all, _ := s.ScanActive(ctx, nil, false)
	if len(all) != 1 {
		t.Error("expected dry run to leave the row in place")
	}
}

func TestDeleteWhere_RejectsEmptyPredicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.DeleteWhere(ctx, DeletePredicate{}, false); err == nil {
		t.Error("expected error for unscoped delete_where")
	}
}

func TestNeighborsOf_ExcludesSelf(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	center, _ := s.Insert(ctx, InsertParams{Content: "center", Type: "fact", Source: "manual", Importance: 3, Confidence: 1, Embedding: vec(0, 0, 0)})
	s.Insert(ctx, InsertParams{Content: "near", Type: "fact", Source: "manual", Importance: 3, Confidence: 1, Embedding: vec(1, 0, 0)})

	neighbors, err := s.NeighborsOf(ctx, center, 5)
	if err != nil {
		t.Fatalf("neighbors_of: %v", err)
	}
	for _, n := range neighbors {
		if n.Memory.ID == center {
			t.Error("expected neighbors_of to exclude the center row")
		}
	}
	if len(neighbors) != 1 {
		t.Errorf("expected 1 neighbor, got %d", len(neighbors))
	}
}

func TestScanActive_ExcludesObsolete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	active, _ := s.Insert(ctx, InsertParams{Content: "active", Type: "fact", Source: "manual", Importance: 3, Confidence: 1, Embedding: vec(1, 0, 0)})
	obsolete, _ := s.Insert(ctx, InsertParams{Content: "obsolete", Type: "fact", Source: "manual", Importance: 3, Confidence: 1, Embedding: vec(0, 1, 0)})
	s.SetObsolete(ctx, obsolete, nil)

	rows, err := s.ScanActive(ctx, nil, false)
	if err != nil {
		t.Fatalf("scan_active: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != active {
		t.Errorf("expected only the active row, got %+v", rows)
	}
}

func TestGCCandidates_UnusedLowConfidence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	old, _ := s.Insert(ctx, InsertParams{Content: "stale", Type: "fact", Source: "manual", Importance: 3, Confidence: 0.2, Embedding: vec(1, 0, 0)})
	s.db.ExecContext(ctx, `UPDATE memories SET created_at = ? WHERE id = ?`, time.Now().Add(-400*24*time.Hour).UTC().Format(time.RFC3339), old)

	fresh, _ := s.Insert(ctx, InsertParams{Content: "kept", Type: "fact", Source: "manual", Importance: 3, Confidence: 1.0, Embedding: vec(0, 1, 0)})

	ids, err := s.GCCandidates(ctx, nil, false, 180, 0.5, time.Now())
	if err != nil {
		t.Fatalf("gc_candidates: %v", err)
	}
	if len(ids) != 1 || ids[0] != old {
		t.Errorf("expected only the stale low-confidence row %d, got %v (fresh=%d)", old, ids, fresh)
	}
}

func TestGCCandidates_ExpiredRegardlessOfConfidence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	past := time.Now().Add(-time.Hour)
	id, _ := s.Insert(ctx, InsertParams{Content: "expired", Type: "fact", Source: "manual", Importance: 3, Confidence: 1.0, Embedding: vec(1, 0, 0), ExpiresAt: &past})

	ids, err := s.GCCandidates(ctx, nil, false, 180, 0.5, time.Now())
	if err != nil {
		t.Fatalf("gc_candidates: %v", err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Errorf("expected expired row %d to be a candidate, got %v", id, ids)
	}
}

func TestCounts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	proj := "web"
	s.Insert(ctx, InsertParams{Content: "a", Type: "fact", Project: &proj, Source: "manual", Importance: 3, Confidence: 1, Embedding: vec(1, 0, 0)})
	s.Insert(ctx, InsertParams{Content: "b", Type: "preference", Source: "manual", Importance: 3, Confidence: 1, Embedding: vec(0, 1, 0)})
	obsolete, _ := s.Insert(ctx, InsertParams{Content: "c", Type: "fact", Source: "manual", Importance: 3, Confidence: 1, Embedding: vec(0, 0, 1)})
	s.SetObsolete(ctx, obsolete, nil)

	counts, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Total != 3 {
		t.Errorf("expected total 3, got %d", counts.Total)
	}
	if counts.Active != 2 || counts.Obsolete != 1 {
		t.Errorf("expected active=2 obsolete=1, got active=%d obsolete=%d", counts.Active, counts.Obsolete)
	}
	if counts.ByType["fact"] != 2 || counts.ByType["preference"] != 1 {
		t.Errorf("unexpected type breakdown: %+v", counts.ByType)
	}
	if counts.ByProject["web"] != 1 {
		t.Errorf("expected 1 row for project web, got %d", counts.ByProject["web"])
	}
	if counts.GlobalCount != 2 {
		t.Errorf("expected 2 global rows, got %d", counts.GlobalCount)
	}
}

func TestDBPathCreation(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("expected db file to be created")
	}
}
