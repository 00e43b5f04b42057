// Package rank implements the scope-free multi-factor relevance ranker
// (spec.md §4.8). Scope boosts are applied by the caller so this package
// stays unit-testable against distance/importance/usage/confidence alone.
package rank

import (
	"math"
	"time"

	"github.com/ankurp/memkeep/internal/model"
)

// DefaultHalfLifeDays is the recency half-life used when the caller does
// not configure one.
const DefaultHalfLifeDays = 14.0

// Options configures scoring behavior.
type Options struct {
	BoostRecency bool
	HalfLifeDays float64
}

// DefaultOptions returns the default ranking configuration.
func DefaultOptions() Options {
	return Options{BoostRecency: true, HalfLifeDays: DefaultHalfLifeDays}
}

// Score combines vector distance with recency, importance, usage, and
// confidence into a single scalar, strictly positive for finite inputs.
//
//	similarity = 1 / (1 + d)
//	recency    = 0.7 + 0.3 * exp(-age_days / half_life_days)   [1 if !BoostRecency]
//	importance = 0.5 + 0.1 * clamp(importance, 1, 5)
//	usage      = 1 + 0.05 * min(access_count, 10)
//	score      = similarity * recency * importance * usage * confidence
func Score(m model.Memory, distance float64, now time.Time, opts Options) float64 {
	similarity := 1.0 / (1.0 + distance)

	recency := 1.0
	if opts.BoostRecency {
		halfLife := opts.HalfLifeDays
		if halfLife <= 0 {
			halfLife = DefaultHalfLifeDays
		}
		ageDays := now.Sub(m.CreatedAt).Hours() / 24.0
		recency = 0.7 + 0.3*math.Exp(-ageDays/halfLife)
	}

	importance := clamp(float64(m.Importance), 1, 5)
	importanceFactor := 0.5 + 0.1*importance

	accessCount := m.AccessCount
	if accessCount > 10 {
		accessCount = 10
	}
	usage := 1.0 + 0.05*float64(accessCount)

	confidence := m.Confidence
	if confidence <= 0 {
		confidence = model.DefaultConfidence
	}

	return similarity * recency * importanceFactor * usage * confidence
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Scope boost multipliers applied outside Score (spec.md §4.7).
const (
	ProjectMatchBoost     = 1.3
	GlobalPreferenceBoost = 1.1
)

// ApplyScopeBoost multiplies base by the spec.md §4.7 scope boosts: 1.3 if
// the memory's project matches the caller's current project, or 1.1 if
// the caller is in a project context and the memory is a global
// preference.
func ApplyScopeBoost(base float64, m model.Memory, currentProject string) float64 {
	if m.Project != nil && currentProject != "" && *m.Project == currentProject {
		return base * ProjectMatchBoost
	}
	if currentProject != "" && m.Project == nil && m.Type == "preference" {
		return base * GlobalPreferenceBoost
	}
	return base
}
