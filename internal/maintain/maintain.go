// Package maintain implements the background maintenance passes
// (spec.md §4.9): garbage collection, consolidation, and corruption
// cleanup. Grounded on the two-phase prune-then-merge shape of a
// reference memory store's Consolidate routine, generalized to the
// vector-neighbor clustering this spec calls for.
package maintain

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ankurp/memkeep/internal/config"
	"github.com/ankurp/memkeep/internal/model"
	"github.com/ankurp/memkeep/internal/store"
)

// Runner executes maintenance passes against a store.
type Runner struct {
	store store.Store
	cfg   config.Config
}

// New builds a Runner.
func New(st store.Store, cfg config.Config) *Runner {
	return &Runner{store: st, cfg: cfg}
}

// GarbageCollect deletes low-confidence rows that have never been
// accessed or were last accessed before the unused-age threshold (a
// never-accessed row qualifies whatever its age), plus any row whose
// expiry has passed, scoped by project
// (project nil + projectSet true means global-only; projectSet false
// means --all). Returns the number of rows deleted.
func (r *Runner) GarbageCollect(ctx context.Context, project *string, projectSet bool) (int, error) {
	now := time.Now().UTC()
	ids, err := r.store.GCCandidates(ctx, project, projectSet, r.cfg.GC.MaxAgeUnusedDays, r.cfg.GC.MinConfidence, now)
	if err != nil {
		return 0, fmt.Errorf("maintain: gc candidates: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := r.store.Delete(ctx, ids); err != nil {
		return 0, fmt.Errorf("maintain: gc delete: %w", err)
	}
	log.Info("garbage collected", "count", len(ids))
	return len(ids), nil
}

// Cluster is one consolidation result: the surviving representative and
// the ids it absorbed.
type Cluster struct {
	Kept   int64
	Merged []int64
}

// representativeScore ranks cluster members; the highest scorer survives
// (spec.md §4.9 step 3).
func representativeScore(m model.Memory) float64 {
	return float64(m.Importance) * m.Confidence * (1 + float64(m.AccessCount))
}

// Consolidate clusters near-duplicate active memories scoped by project
// and promotes the highest-scoring member of each cluster, marking the
// rest obsolete. In dry-run mode it reports clusters without mutating.
func (r *Runner) Consolidate(ctx context.Context, project *string, projectSet bool, dryRun bool) ([]Cluster, error) {
	rows, err := r.store.ScanActive(ctx, project, projectSet)
	if err != nil {
		return nil, fmt.Errorf("maintain: scan_active: %w", err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	threshold := r.cfg.Maintenance.ConsolidationDistanceMultiplier * r.cfg.Dedup.SimilarityThreshold
	processed := make(map[int64]bool, len(rows))
	var clusters []Cluster

	for _, m := range rows {
		if processed[m.ID] {
			continue
		}
		processed[m.ID] = true

		neighbors, err := r.store.NeighborsOf(ctx, m.ID, 20)
		if err != nil {
			return nil, fmt.Errorf("maintain: neighbors_of %d: %w", m.ID, err)
		}

		members := []model.Memory{m}
		for _, n := range neighbors {
			if processed[n.Memory.ID] {
				continue
			}
			// NeighborsOf is not scoped; keep the cluster inside the scope.
			if projectSet && !(project == nil && n.Memory.Project == nil ||
				project != nil && n.Memory.Project != nil && *project == *n.Memory.Project) {
				continue
			}
			if n.Distance < threshold {
				members = append(members, n.Memory)
				processed[n.Memory.ID] = true
			}
		}
		if len(members) == 1 {
			continue
		}

		winnerIdx := 0
		winnerScore := representativeScore(members[0])
		for i := 1; i < len(members); i++ {
			if s := representativeScore(members[i]); s > winnerScore {
				winnerScore = s
				winnerIdx = i
			}
		}
		winner := members[winnerIdx]

		cluster := Cluster{Kept: winner.ID}
		for i, member := range members {
			if i == winnerIdx {
				continue
			}
			cluster.Merged = append(cluster.Merged, member.ID)
			if !dryRun {
				if err := r.store.SetObsolete(ctx, member.ID, &winner.ID); err != nil {
					return nil, fmt.Errorf("maintain: set_obsolete %d: %w", member.ID, err)
				}
			}
		}
		clusters = append(clusters, cluster)
	}

	if !dryRun {
		log.Info("consolidated", "clusters", len(clusters))
	}
	return clusters, nil
}

// minContentLength is the shortest trimmed content allowed before a row
// is treated as corrupted (spec.md §4.9).
const minContentLength = 20

// chunkMarkerPrefix matches a legitimate "[i/n] " chunk label so it is
// not mistaken for a bare-array corruption artifact.
var chunkMarkerPrefix = func(s string) bool {
	if !strings.HasPrefix(s, "[") {
		return false
	}
	close := strings.Index(s, "]")
	if close < 0 {
		return false
	}
	inner := s[1:close]
	slash := strings.Index(inner, "/")
	return slash > 0 && slash < len(inner)-1
}

// leakedPromptFragments is the closed list of known leaked control
// strings that indicate a capture bug upstream rather than real content.
var leakedPromptFragments = []string{
	"<|im_start|>",
	"<|im_end|>",
	"<|endoftext|>",
	"### Instruction",
	"System:",
}

// isCorrupted applies the closed pattern list from spec.md §4.9.
func isCorrupted(content string) bool {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < minContentLength {
		return true
	}
	if strings.HasPrefix(trimmed, "{") {
		return true
	}
	if strings.HasPrefix(trimmed, "[") && !chunkMarkerPrefix(trimmed) {
		return true
	}
	for _, frag := range leakedPromptFragments {
		if strings.Contains(trimmed, frag) {
			return true
		}
	}
	return false
}

// CorruptionResult reports a cleanup_corrupted pass.
type CorruptionResult struct {
	Count   int
	Samples []string
}

const maxCorruptionSamples = 10
const sampleTruncateLen = 80

// CleanupCorrupted deletes active rows matching the closed corruption
// pattern list. Dry-run returns the count plus up to 10 truncated
// samples without deleting.
func (r *Runner) CleanupCorrupted(ctx context.Context, dryRun bool) (CorruptionResult, error) {
	rows, err := r.store.ScanActive(ctx, nil, false)
	if err != nil {
		return CorruptionResult{}, fmt.Errorf("maintain: scan_active: %w", err)
	}

	var result CorruptionResult
	var ids []int64
	for _, m := range rows {
		if !isCorrupted(m.Content) {
			continue
		}
		result.Count++
		ids = append(ids, m.ID)
		if len(result.Samples) < maxCorruptionSamples {
			sample := m.Content
			if len(sample) > sampleTruncateLen {
				sample = sample[:sampleTruncateLen]
			}
			result.Samples = append(result.Samples, sample)
		}
	}

	if dryRun || len(ids) == 0 {
		return result, nil
	}
	if err := r.store.Delete(ctx, ids); err != nil {
		return CorruptionResult{}, fmt.Errorf("maintain: cleanup delete: %w", err)
	}
	log.Info("cleaned up corrupted memories", "count", result.Count)
	return result, nil
}
