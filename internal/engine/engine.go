// Package engine implements MemoryEngine, the component the CLI and
// hook scripts call into (spec.md §6). It composes the store, embedder,
// redactor, ranker, and project resolver; all state it touches is owned
// by the engine instance, never shared process-globally (spec.md §9).
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ankurp/memkeep/internal/chunker"
	"github.com/ankurp/memkeep/internal/config"
	"github.com/ankurp/memkeep/internal/embedclient"
	"github.com/ankurp/memkeep/internal/maintain"
	"github.com/ankurp/memkeep/internal/model"
	"github.com/ankurp/memkeep/internal/project"
	"github.com/ankurp/memkeep/internal/rank"
	"github.com/ankurp/memkeep/internal/redact"
	"github.com/ankurp/memkeep/internal/store"
)

// MemoryEngine is the single entry point for memory operations. One
// instance is created per process invocation (CLI command or hook
// script); concurrency across processes is handled by the store's
// file-level locking, not by sharing this value (spec.md §9).
type MemoryEngine struct {
	store     store.Store
	embedder  *embedclient.Client
	redactor  *redact.Redactor
	resolver  *project.Resolver
	cfg       config.Config
	diag      Diagnostics
	rankOpts  rank.Options
	chunkOpts chunker.Options
	maint     *maintain.Runner
}

// New builds a MemoryEngine from its dependencies. diag may be nil, in
// which case redaction events are discarded.
func New(st store.Store, embedder *embedclient.Client, redactor *redact.Redactor, resolver *project.Resolver, cfg config.Config, diag Diagnostics) *MemoryEngine {
	if diag == nil {
		diag = noopDiagnostics{}
	}
	return &MemoryEngine{
		store:    st,
		embedder: embedder,
		redactor: redactor,
		resolver: resolver,
		cfg:      cfg,
		diag:     diag,
		rankOpts: rank.Options{
			BoostRecency: cfg.Recall.BoostRecency,
			HalfLifeDays: cfg.Recall.RecencyHalfLifeDays,
		},
		chunkOpts: chunker.Options{
			MaxTokens:     cfg.Chunking.MaxTokens,
			OverlapTokens: cfg.Chunking.OverlapTokens,
			MinChunkSize:  cfg.Chunking.MinChunkSize,
		},
		maint: maintain.New(st, cfg),
	}
}

// RememberInput is the remember() payload (spec.md §4.6). Zero values
// trigger the documented defaults: Type="fact", Source="manual",
// Importance=3, Confidence=1.0.
type RememberInput struct {
	Content    string
	Type       string
	Category   string
	Project    *string
	Reasoning  string
	Source     string
	Importance int
	Confidence float64
	Tags       []string
	ExpiresAt  *time.Time
	Supersedes *int64
	SkipDedup  bool
}

// Remember chunks, embeds, deduplicates, and stores content, returning
// one id per chunk (dedup may repeat an id). cwd resolves the project
// scope when Input.Project is unset.
func (e *MemoryEngine) Remember(ctx context.Context, cwd string, in RememberInput) ([]int64, error) {
	if in.Content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if in.Type == "" {
		in.Type = "fact"
	}
	if !model.ValidTypes[in.Type] {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidInput, in.Type)
	}
	if in.Source == "" {
		in.Source = "manual"
	}
	if !model.ValidSources[in.Source] {
		return nil, fmt.Errorf("%w: unknown source %q", ErrInvalidInput, in.Source)
	}
	if in.Importance == 0 {
		in.Importance = model.DefaultImportance
	}
	if in.Confidence == 0 {
		in.Confidence = model.DefaultConfidence
	}

	content := in.Content
	if e.redactor != nil {
		redacted := e.redactor.Redact(content)
		if redacted != content {
			e.diag.OnRedacted(ctx, 0, content)
			content = redacted
		}
	}

	proj, err := e.resolveScope(cwd, in.Type, in.Project)
	if err != nil {
		return nil, err
	}

	chunks := chunker.Split(content, e.chunkOpts)

	ids := make([]int64, 0, len(chunks))
	supersedeApplied := false

	for _, c := range chunks {
		chunkContent := c.Content
		if c.Total > 1 {
			chunkContent = fmt.Sprintf("[%d/%d] %s", c.Index+1, c.Total, c.Content)
		}

		vec, err := e.embedder.EmbedOne(ctx, chunkContent)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbedderUnavailable, err)
		}

		var supersedes *int64
		if in.Supersedes != nil && !supersedeApplied {
			supersedes = in.Supersedes
		}

		id, err := e.insertOrMerge(ctx, chunkContent, vec, proj, supersedes, in)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)

		if supersedes != nil {
			// Mark the referenced row obsolete without touching its own
			// supersedes column — it is the new row that points back at
			// the old one, not the other way around.
			if err := e.store.SetObsolete(ctx, *supersedes, nil); err != nil {
				return nil, fmt.Errorf("%w: supersede %d: %v", ErrStore, *supersedes, err)
			}
			supersedeApplied = true
		}
	}

	return ids, nil
}

func (e *MemoryEngine) resolveScope(cwd, memType string, explicit *string) (*string, error) {
	if memType == "preference" {
		return nil, nil
	}
	if explicit != nil {
		return explicit, nil
	}
	if e.resolver == nil || cwd == "" {
		return nil, nil
	}
	name, err := e.resolver.Detect(cwd)
	if err != nil {
		return nil, fmt.Errorf("%w: detect project: %v", ErrStore, err)
	}
	if name == "" {
		return nil, nil
	}
	return &name, nil
}

// insertOrMerge implements §4.6 step 3.b/c: dedup against the nearest
// active row unless SkipDedup, otherwise insert a new row. The row named
// by supersedes is never a merge target, since it is about to be marked
// obsolete. proj is the
// already-resolved scope (nil for preferences or unscoped rows), not the
// caller's raw, possibly-unset RememberInput.Project.
func (e *MemoryEngine) insertOrMerge(ctx context.Context, content string, vec []float32, proj *string, supersedes *int64, in RememberInput) (int64, error) {
	if !in.SkipDedup && e.cfg.Dedup.Enabled {
		match, err := e.store.NearestOne(ctx, vec, true)
		if err != nil {
			return 0, fmt.Errorf("%w: nearest_one: %v", ErrStore, err)
		}
		if match != nil && match.Distance < e.cfg.Dedup.SimilarityThreshold &&
			(supersedes == nil || match.Memory.ID != *supersedes) {
			return e.mergeInto(ctx, match.Memory, content, vec, in)
		}
	}

	id, err := e.store.Insert(ctx, store.InsertParams{
		Content:    content,
		Type:       in.Type,
		Project:    proj,
		Category:   in.Category,
		Reasoning:  in.Reasoning,
		Source:     in.Source,
		Importance: in.Importance,
		Confidence: in.Confidence,
		Tags:       in.Tags,
		ExpiresAt:  in.ExpiresAt,
		Supersedes: supersedes,
		Embedding:  vec,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: insert: %v", ErrStore, err)
	}
	return id, nil
}

func (e *MemoryEngine) mergeInto(ctx context.Context, existing model.Memory, newContent string, newVec []float32, in RememberInput) (int64, error) {
	mergedImportance := existing.Importance
	if in.Importance > mergedImportance {
		mergedImportance = in.Importance
	}
	if mergedImportance != existing.Importance {
		if err := e.store.UpdateImportance(ctx, existing.ID, mergedImportance); err != nil {
			return 0, fmt.Errorf("%w: update_importance: %v", ErrStore, err)
		}
	}

	if e.cfg.Dedup.PreferLonger && len(newContent) > len(existing.Content) {
		if err := e.store.UpdateContent(ctx, existing.ID, newContent, newVec); err != nil {
			return 0, fmt.Errorf("%w: update_content: %v", ErrStore, err)
		}
	}

	return existing.ID, nil
}

// RecallOptions narrows recall (spec.md §4.7).
type RecallOptions struct {
	Limit           int
	Type            string
	MinImportance   int
	IncludeObsolete bool
	CurrentProject  string
}

// RecallResult is one ranked recall hit.
type RecallResult struct {
	Memory   model.Memory
	Distance float64
	Score    float64
}

// Recall embeds query, ranks candidates, and returns the top results in
// descending score order. It then bumps access stats on the returned ids
// in a separate transaction from the KNN read, so a concurrent reader can
// observe the read's rows before their stats change.
func (e *MemoryEngine) Recall(ctx context.Context, query string, opts RecallOptions) ([]RecallResult, error) {
	vec, err := e.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedderUnavailable, err)
	}

	projectResults := e.cfg.Recall.ProjectResults
	globalResults := e.cfg.Recall.GlobalResults
	limit := opts.Limit
	if limit <= 0 {
		limit = projectResults + globalResults
	}

	matches, err := e.store.KNN(ctx, vec, 2*(projectResults+globalResults), store.KNNFilters{
		Type:            opts.Type,
		MinImportance:   opts.MinImportance,
		IncludeObsolete: opts.IncludeObsolete,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: knn: %v", ErrStore, err)
	}

	now := time.Now().UTC()
	threshold := e.cfg.Recall.DistanceThreshold

	results := make([]RecallResult, 0, len(matches))
	for _, m := range matches {
		if threshold > 0 && m.Distance >= threshold {
			continue
		}
		base := rank.Score(m.Memory, m.Distance, now, e.rankOpts)
		score := rank.ApplyScopeBoost(base, m.Memory, opts.CurrentProject)
		results = append(results, RecallResult{Memory: m.Memory, Distance: m.Distance, Score: score})
	}

	sortRecallResults(results)
	if len(results) > limit {
		results = results[:limit]
	}

	ids := make([]int64, len(results))
	for i, r := range results {
		ids[i] = r.Memory.ID
	}
	if err := e.store.UpdateStats(ctx, ids, now); err != nil {
		return nil, fmt.Errorf("%w: update_stats: %v", ErrStore, err)
	}

	return results, nil
}

// sortRecallResults orders by score descending; ties broken by lower
// distance, then by higher id (spec.md §4.7 tie-break).
func sortRecallResults(results []RecallResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if diff := a.Score - b.Score; diff > 1e-9 || diff < -1e-9 {
			return a.Score > b.Score
		}
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return a.Memory.ID > b.Memory.ID
	})
}

// ListRecent returns active memories, most recent first, optionally
// scoped to a project.
func (e *MemoryEngine) ListRecent(ctx context.Context, limit int, projectScope string, allProjects bool) ([]model.Memory, error) {
	var rows []model.Memory
	var err error
	if allProjects {
		rows, err = e.store.ScanActive(ctx, nil, false)
	} else {
		var p *string
		if projectScope != "" {
			p = &projectScope
		}
		rows, err = e.store.ScanActive(ctx, p, true)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list_recent: %v", ErrStore, err)
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// Update replaces a memory's content and re-embeds it.
func (e *MemoryEngine) Update(ctx context.Context, id int64, newContent string) error {
	if newContent == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	vec, err := e.embedder.EmbedOne(ctx, newContent)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmbedderUnavailable, err)
	}
	if err := e.store.UpdateContent(ctx, id, newContent, vec); err != nil {
		return fmt.Errorf("%w: update: %v", ErrStore, err)
	}
	return nil
}

// MarkObsolete flags id as obsolete, optionally recording its successor.
func (e *MemoryEngine) MarkObsolete(ctx context.Context, id int64, supersedes *int64) error {
	if err := e.store.SetObsolete(ctx, id, supersedes); err != nil {
		return fmt.Errorf("%w: mark_obsolete: %v", ErrStore, err)
	}
	return nil
}

// Forget deletes the given ids outright.
func (e *MemoryEngine) Forget(ctx context.Context, ids []int64) error {
	if err := e.store.Delete(ctx, ids); err != nil {
		return fmt.Errorf("%w: forget: %v", ErrStore, err)
	}
	return nil
}

// ForgetByCategory deletes memories matching category, scoped by project.
func (e *MemoryEngine) ForgetByCategory(ctx context.Context, category string, project *string, projectSet bool, dryRun bool) (int, error) {
	count, err := e.store.DeleteWhere(ctx, store.DeletePredicate{Category: category, Project: project, ProjectSet: projectSet}, dryRun)
	if err != nil {
		return 0, fmt.Errorf("%w: forget_by_category: %v", ErrStore, err)
	}
	return count, nil
}

// ForgetBySource deletes memories matching source, scoped by project.
func (e *MemoryEngine) ForgetBySource(ctx context.Context, source string, project *string, projectSet bool, dryRun bool) (int, error) {
	count, err := e.store.DeleteWhere(ctx, store.DeletePredicate{Source: source, Project: project, ProjectSet: projectSet}, dryRun)
	if err != nil {
		return 0, fmt.Errorf("%w: forget_by_source: %v", ErrStore, err)
	}
	return count, nil
}

// DetectProject resolves cwd to a project name via the resolver.
func (e *MemoryEngine) DetectProject(cwd string) (string, error) {
	if e.resolver == nil {
		return "", nil
	}
	name, err := e.resolver.Detect(cwd)
	if err != nil {
		return "", fmt.Errorf("%w: detect_project: %v", ErrStore, err)
	}
	return name, nil
}

// IsReady reports whether the embedder is reachable, suspending only on
// the bounded health probe (spec.md §5).
func (e *MemoryEngine) IsReady(ctx context.Context) bool {
	if e.embedder == nil {
		return false
	}
	ready := e.embedder.IsAvailable(ctx)
	if !ready {
		log.Warn("embedder not ready")
	}
	return ready
}

// Registry exposes the underlying project resolver for CLI registry
// subcommands (create/list/delete/...).
func (e *MemoryEngine) Registry() *project.Resolver {
	return e.resolver
}

// GarbageCollect deletes unused low-confidence rows and expired rows,
// scoped by project (spec.md §4.9).
func (e *MemoryEngine) GarbageCollect(ctx context.Context, project *string, projectSet bool) (int, error) {
	count, err := e.maint.GarbageCollect(ctx, project, projectSet)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return count, nil
}

// Consolidate clusters near-duplicate actives and promotes the best
// representative of each cluster (spec.md §4.9).
func (e *MemoryEngine) Consolidate(ctx context.Context, project *string, projectSet bool, dryRun bool) ([]maintain.Cluster, error) {
	clusters, err := e.maint.Consolidate(ctx, project, projectSet, dryRun)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return clusters, nil
}

// CleanupCorrupted deletes rows matching the corruption pattern list
// (spec.md §4.9).
func (e *MemoryEngine) CleanupCorrupted(ctx context.Context, dryRun bool) (maintain.CorruptionResult, error) {
	result, err := e.maint.CleanupCorrupted(ctx, dryRun)
	if err != nil {
		return maintain.CorruptionResult{}, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return result, nil
}

// Stats reports aggregate counts across the store.
func (e *MemoryEngine) Stats(ctx context.Context) (store.Counts, error) {
	counts, err := e.store.Counts(ctx)
	if err != nil {
		return store.Counts{}, fmt.Errorf("%w: stats: %v", ErrStore, err)
	}
	return counts, nil
}
