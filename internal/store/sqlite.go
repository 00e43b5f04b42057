package store

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ankurp/memkeep/internal/model"
)

// SQLiteStore implements Store using a single SQLite file, a brute-force
// L2 scan over BLOB-encoded float32 vectors, and container/heap for
// bounded top-k selection. Acceptable per spec.md §9 up to ~10^5 rows;
// avoids a cgo-only vector extension in favor of modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		content       TEXT NOT NULL,
		type          TEXT NOT NULL,
		project       TEXT,
		category      TEXT NOT NULL DEFAULT '',
		reasoning     TEXT NOT NULL DEFAULT '',
		source        TEXT NOT NULL,
		importance    INTEGER NOT NULL DEFAULT 3,
		confidence    REAL NOT NULL DEFAULT 1.0,
		created_at    TEXT NOT NULL,
		last_accessed TEXT,
		access_count  INTEGER NOT NULL DEFAULT 0,
		expires_at    TEXT,
		supersedes    INTEGER,
		is_obsolete   INTEGER NOT NULL DEFAULT 0,
		tags          TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(type);
	CREATE INDEX IF NOT EXISTS idx_memories_project ON memories(project);
	CREATE INDEX IF NOT EXISTS idx_memories_obsolete ON memories(is_obsolete);
	CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at DESC);

	CREATE TABLE IF NOT EXISTS embeddings (
		memory_id INTEGER PRIMARY KEY REFERENCES memories(id),
		vector    BLOB NOT NULL,
		dims      INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Insert(ctx context.Context, p InsertParams) (int64, error) {
	now := time.Now().UTC()

	var tagsJSON *string
	if len(p.Tags) > 0 {
		b, err := json.Marshal(p.Tags)
		if err != nil {
			return 0, fmt.Errorf("store: marshal tags: %w", err)
		}
		str := string(b)
		tagsJSON = &str
	}

	var expiresAt *string
	if p.ExpiresAt != nil {
		e := p.ExpiresAt.UTC().Format(time.RFC3339)
		expiresAt = &e
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO memories (content, type, project, category, reasoning, source,
			importance, confidence, created_at, access_count, expires_at, supersedes, is_obsolete, tags)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, 0, ?)`,
		p.Content, p.Type, p.Project, p.Category, p.Reasoning, p.Source,
		p.Importance, p.Confidence, now.Format(time.RFC3339), expiresAt, p.Supersedes, tagsJSON)
	if err != nil {
		return 0, fmt.Errorf("store: insert memory: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: last insert id: %w", err)
	}

	if err := insertEmbedding(ctx, tx, id, p.Embedding); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit insert: %w", err)
	}
	return id, nil
}

func insertEmbedding(ctx context.Context, tx *sql.Tx, id int64, vec []float32) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO embeddings (memory_id, vector, dims) VALUES (?, ?, ?)`,
		id, encodeVector(vec), len(vec))
	if err != nil {
		return fmt.Errorf("store: insert embedding: %w", err)
	}
	return nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// candidate is a heap element for bounded top-k selection, ordered as a
// max-heap on Distance so the farthest candidate sits at the root and is
// evicted first once the heap exceeds k.
type candidate struct {
	Match
}

type maxHeap []candidate

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].Distance > h[j].Distance }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (s *SQLiteStore) buildFilterClause(f KNNFilters, now string) (string, []interface{}) {
	where := []string{}
	var args []interface{}

	if !f.IncludeObsolete {
		where = append(where, "m.is_obsolete = 0")
	}
	where = append(where, "(m.expires_at IS NULL OR m.expires_at > ?)")
	args = append(args, now)

	if f.ProjectSet {
		if f.Project == nil {
			where = append(where, "m.project IS NULL")
		} else {
			where = append(where, "m.project = ?")
			args = append(args, *f.Project)
		}
	}
	if f.Type != "" {
		where = append(where, "m.type = ?")
		args = append(args, f.Type)
	}
	if f.MinImportance > 0 {
		where = append(where, "m.importance >= ?")
		args = append(args, f.MinImportance)
	}
	return strings.Join(where, " AND "), args
}

func (s *SQLiteStore) KNN(ctx context.Context, query []float32, k int, filters KNNFilters) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	now := time.Now().UTC().Format(time.RFC3339)
	whereClause, args := s.buildFilterClause(filters, now)

	q := fmt.Sprintf(`
		SELECT %s, e.vector
		FROM memories m
		JOIN embeddings e ON e.memory_id = m.id
		WHERE %s`, memoryColumns, whereClause)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: knn query: %w", err)
	}
	defer rows.Close()

	h := &maxHeap{}
	heap.Init(h)

	for rows.Next() {
		m, vecBytes, err := scanMemoryWithVector(rows)
		if err != nil {
			return nil, err
		}
		d := l2Distance(query, decodeVector(vecBytes))

		if h.Len() < k {
			heap.Push(h, candidate{Match{Memory: m, Distance: d}})
		} else if d < (*h)[0].Distance {
			heap.Pop(h)
			heap.Push(h, candidate{Match{Memory: m, Distance: d}})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: knn rows: %w", err)
	}

	out := make([]Match, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(candidate).Match
	}
	return out, nil
}

func (s *SQLiteStore) NearestOne(ctx context.Context, query []float32, excludeObsolete bool) (*Match, error) {
	matches, err := s.KNN(ctx, query, 1, KNNFilters{IncludeObsolete: !excludeObsolete})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

func (s *SQLiteStore) UpdateContent(ctx context.Context, id int64, content string, embedding []float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE memories SET content = ? WHERE id = ?`, content, id); err != nil {
		return fmt.Errorf("store: update content: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE embeddings SET vector = ?, dims = ? WHERE memory_id = ?`,
		encodeVector(embedding), len(embedding), id); err != nil {
		return fmt.Errorf("store: update embedding: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) UpdateImportance(ctx context.Context, id int64, importance int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE memories SET importance = ? WHERE id = ?`, importance, id)
	if err != nil {
		return fmt.Errorf("store: update importance: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateStats(ctx context.Context, ids []int64, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE memories SET access_count = access_count + 1, last_accessed = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("store: prepare update_stats: %w", err)
	}
	defer stmt.Close()

	ts := now.UTC().Format(time.RFC3339)
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, ts, id); err != nil {
			return fmt.Errorf("store: update_stats: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) SetObsolete(ctx context.Context, id int64, supersedes *int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE memories SET is_obsolete = 1, supersedes = COALESCE(?, supersedes) WHERE id = ?`,
		supersedes, id)
	if err != nil {
		return fmt.Errorf("store: set_obsolete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	in := "(" + strings.Join(placeholders, ",") + ")"

	// Embeddings go first: embeddings.memory_id references memories(id).
	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE memory_id IN `+in, args...); err != nil {
		return fmt.Errorf("store: delete embeddings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id IN `+in, args...); err != nil {
		return fmt.Errorf("store: delete memories: %w", err)
	}
	if err := sweepOrphanEmbeddings(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// sweepOrphanEmbeddings removes embedding rows whose memory no longer
// exists. Run as part of every delete path as a belt-and-suspenders
// invariant check, independent of the explicit id-scoped deletes above.
func sweepOrphanEmbeddings(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM embeddings WHERE memory_id NOT IN (SELECT id FROM memories)`)
	if err != nil {
		return fmt.Errorf("store: sweep orphan embeddings: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteWhere(ctx context.Context, pred DeletePredicate, dryRun bool) (int, error) {
	where := []string{}
	var args []interface{}

	if pred.Category != "" {
		where = append(where, "category = ?")
		args = append(args, pred.Category)
	}
	if pred.Source != "" {
		where = append(where, "source = ?")
		args = append(args, pred.Source)
	}
	if pred.ProjectSet {
		if pred.Project == nil {
			where = append(where, "project IS NULL")
		} else {
			where = append(where, "project = ?")
			args = append(args, *pred.Project)
		}
	}
	if len(where) == 0 {
		return 0, fmt.Errorf("store: delete_where: %w", ErrEmptyPredicate)
	}
	clause := strings.Join(where, " AND ")

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE `+clause, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("store: delete_where count: %w", err)
	}
	if dryRun || count == 0 {
		return count, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE memory_id IN (SELECT id FROM memories WHERE `+clause+`)`, args...); err != nil {
		return 0, fmt.Errorf("store: delete_where embeddings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE `+clause, args...); err != nil {
		return 0, fmt.Errorf("store: delete_where: %w", err)
	}
	if err := sweepOrphanEmbeddings(ctx, tx); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit delete_where: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) NeighborsOf(ctx context.Context, id int64, k int) ([]Match, error) {
	vec, err := s.vectorOf(ctx, id)
	if err != nil {
		return nil, err
	}
	matches, err := s.KNN(ctx, vec, k+1, KNNFilters{})
	if err != nil {
		return nil, err
	}
	out := matches[:0]
	for _, m := range matches {
		if m.Memory.ID == id {
			continue
		}
		out = append(out, m)
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (s *SQLiteStore) vectorOf(ctx context.Context, id int64) ([]float32, error) {
	var b []byte
	err := s.db.QueryRowContext(ctx, `SELECT vector FROM embeddings WHERE memory_id = ?`, id).Scan(&b)
	if err != nil {
		return nil, fmt.Errorf("store: vector_of %d: %w", id, err)
	}
	return decodeVector(b), nil
}

func (s *SQLiteStore) ScanActive(ctx context.Context, project *string, projectSet bool) ([]model.Memory, error) {
	where := []string{"is_obsolete = 0"}
	var args []interface{}
	if projectSet {
		if project == nil {
			where = append(where, "project IS NULL")
		} else {
			where = append(where, "project = ?")
			args = append(args, *project)
		}
	}
	q := fmt.Sprintf(`SELECT %s FROM memories m WHERE %s ORDER BY created_at`,
		memoryColumns, strings.Join(where, " AND "))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: scan_active: %w", err)
	}
	defer rows.Close()

	var out []model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GCCandidates returns ids eligible for garbage collection (spec.md
// §4.9): rows with access_count 0, confidence below minConfidence, and
// last_accessed either unset or older than max_age_unused_days (so a
// never-accessed low-confidence row qualifies whatever its age), plus any
// row whose expires_at has passed, regardless of confidence.
func (s *SQLiteStore) GCCandidates(ctx context.Context, project *string, projectSet bool, maxAgeUnusedDays int, minConfidence float64, now time.Time) ([]int64, error) {
	where := []string{}
	var args []interface{}

	if projectSet {
		if project == nil {
			where = append(where, "project IS NULL")
		} else {
			where = append(where, "project = ?")
			args = append(args, *project)
		}
	}

	cutoff := now.Add(-time.Duration(maxAgeUnusedDays) * 24 * time.Hour).UTC().Format(time.RFC3339)
	nowStr := now.UTC().Format(time.RFC3339)

	unusedClause := `(access_count = 0 AND (last_accessed IS NULL OR last_accessed < ?) AND confidence < ?)`
	expiredClause := `(expires_at IS NOT NULL AND expires_at < ?)`
	args = append(args, cutoff, minConfidence, nowStr)

	clause := fmt.Sprintf("(%s OR %s)", unusedClause, expiredClause)
	where = append(where, clause)

	q := "SELECT id FROM memories WHERE " + strings.Join(where, " AND ")
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: gc_candidates: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: gc_candidates scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) GetByID(ctx context.Context, id int64) (model.Memory, error) {
	q := fmt.Sprintf(`SELECT %s FROM memories m WHERE m.id = ?`, memoryColumns)
	row := s.db.QueryRowContext(ctx, q, id)
	return scanMemory(row)
}

// Counts aggregates rows for the engine's stats operation.
func (s *SQLiteStore) Counts(ctx context.Context) (Counts, error) {
	c := Counts{ByType: map[string]int{}, ByProject: map[string]int{}}

	rows, err := s.db.QueryContext(ctx, `SELECT type, project, is_obsolete FROM memories`)
	if err != nil {
		return c, fmt.Errorf("store: counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var memType string
		var project sql.NullString
		var isObsolete int
		if err := rows.Scan(&memType, &project, &isObsolete); err != nil {
			return c, fmt.Errorf("store: counts scan: %w", err)
		}
		c.Total++
		if isObsolete != 0 {
			c.Obsolete++
		} else {
			c.Active++
		}
		c.ByType[memType]++
		if project.Valid {
			c.ByProject[project.String]++
		} else {
			c.GlobalCount++
		}
	}
	return c, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// memoryColumns lists the memories columns (aliased as m) in the order
// scanMemory/scanMemoryWithVector expect.
const memoryColumns = `m.id, m.content, m.type, m.project, m.category, m.reasoning, m.source,
	m.importance, m.confidence, m.created_at, m.last_accessed, m.access_count,
	m.expires_at, m.supersedes, m.is_obsolete, m.tags`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row scanner) (model.Memory, error) {
	var m model.Memory
	var project, lastAccessed, expiresAt, tagsJSON sql.NullString
	var supersedes sql.NullInt64
	var isObsolete int
	var createdAt string

	err := row.Scan(
		&m.ID, &m.Content, &m.Type, &project, &m.Category, &m.Reasoning, &m.Source,
		&m.Importance, &m.Confidence, &createdAt, &lastAccessed, &m.AccessCount,
		&expiresAt, &supersedes, &isObsolete, &tagsJSON,
	)
	if err != nil {
		return m, fmt.Errorf("store: scan memory: %w", err)
	}
	applyScannedFields(&m, project, lastAccessed, expiresAt, tagsJSON, supersedes, isObsolete, createdAt)
	return m, nil
}

func scanMemoryWithVector(row scanner) (model.Memory, []byte, error) {
	var m model.Memory
	var project, lastAccessed, expiresAt, tagsJSON sql.NullString
	var supersedes sql.NullInt64
	var isObsolete int
	var createdAt string
	var vec []byte

	err := row.Scan(
		&m.ID, &m.Content, &m.Type, &project, &m.Category, &m.Reasoning, &m.Source,
		&m.Importance, &m.Confidence, &createdAt, &lastAccessed, &m.AccessCount,
		&expiresAt, &supersedes, &isObsolete, &tagsJSON, &vec,
	)
	if err != nil {
		return m, nil, fmt.Errorf("store: scan memory+vector: %w", err)
	}
	applyScannedFields(&m, project, lastAccessed, expiresAt, tagsJSON, supersedes, isObsolete, createdAt)
	return m, vec, nil
}

func applyScannedFields(m *model.Memory, project, lastAccessed, expiresAt, tagsJSON sql.NullString, supersedes sql.NullInt64, isObsolete int, createdAt string) {
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	m.IsObsolete = isObsolete != 0

	if project.Valid {
		p := project.String
		m.Project = &p
	}
	if lastAccessed.Valid {
		t, _ := time.Parse(time.RFC3339, lastAccessed.String)
		m.LastAccessed = &t
	}
	if expiresAt.Valid {
		t, _ := time.Parse(time.RFC3339, expiresAt.String)
		m.ExpiresAt = &t
	}
	if supersedes.Valid {
		s := supersedes.Int64
		m.Supersedes = &s
	}
	if tagsJSON.Valid {
		json.Unmarshal([]byte(tagsJSON.String), &m.Tags)
	}
}

// ErrEmptyPredicate guards delete_where against an unscoped, unbounded
// DELETE — at least one of category/source/project must be set.
var ErrEmptyPredicate = fmt.Errorf("store: delete_where predicate must constrain category, source, or project")
