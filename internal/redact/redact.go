// Package redact applies a configured list of sensitive-content patterns
// to memory text before it is persisted.
package redact

import "regexp"

// Marker replaces every match of a sensitive pattern.
const Marker = "[REDACTED]"

// Redactor holds the compiled sensitive-pattern list.
type Redactor struct {
	patterns []*regexp.Regexp
}

// New compiles the given regular expressions case-insensitively. Patterns
// that fail to compile are skipped rather than failing the whole redactor,
// mirroring how the engine treats a single bad config entry as
// non-fatal rather than refusing to start.
func New(patterns []string) (*Redactor, error) {
	r := &Redactor{}
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, err
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

// Redact replaces every pattern match in s with Marker. Idempotent:
// Redact(Redact(s)) == Redact(s), since Marker itself never matches any
// configured sensitive pattern.
func (r *Redactor) Redact(s string) string {
	for _, re := range r.patterns {
		s = re.ReplaceAllString(s, Marker)
	}
	return s
}

// ContainsSensitive reports whether s matches any configured pattern.
func (r *Redactor) ContainsSensitive(s string) bool {
	for _, re := range r.patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
