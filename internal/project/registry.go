// Package project resolves a working-directory path to a project
// identifier via a persisted registry (spec.md §4.1).
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNotFound indicates a project name was not found in the registry.
var ErrNotFound = errors.New("project: not found")

// ErrAlreadyExists indicates a registry creation conflict.
var ErrAlreadyExists = errors.New("project: already exists")

// ErrInvalidPath indicates a path could not be made absolute or is already
// registered under the target project. Relative paths are resolved against
// the working directory rather than rejected.
var ErrInvalidPath = errors.New("project: invalid path")

// Record is a single registry entry.
type Record struct {
	Name        string    `json:"name"`
	Paths       []string  `json:"paths"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// registryFile is the on-disk shape of project-registry.json. Entries
// preserves insertion order since map iteration order is not guaranteed.
type registryFile struct {
	Entries []Record `json:"entries"`
}

// Resolver owns the project registry and a bounded cache of recent
// detect(cwd) lookups.
type Resolver struct {
	path    string
	records []Record
	cache   *lru.Cache[string, string]
}

const detectCacheSize = 256

// Open loads the registry at path, creating an empty one if it does not
// exist yet.
func Open(path string) (*Resolver, error) {
	cache, err := lru.New[string, string](detectCacheSize)
	if err != nil {
		return nil, fmt.Errorf("project: create cache: %w", err)
	}

	r := &Resolver{path: path, cache: cache}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("project: read registry: %w", err)
	}

	var rf registryFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("project: parse registry: %w", err)
	}
	r.records = rf.Entries
	return r, nil
}

// Detect returns the first project whose registered path prefixes the
// canonicalized cwd, in registry insertion order. Returns "" if no project
// matches.
func (r *Resolver) Detect(cwd string) (string, error) {
	canon, err := filepath.Abs(cwd)
	if err != nil {
		return "", fmt.Errorf("project: resolve cwd: %w", err)
	}
	canon = filepath.Clean(canon)

	if name, ok := r.cache.Get(canon); ok {
		return name, nil
	}

	for _, rec := range r.records {
		for _, p := range rec.Paths {
			if isPrefix(p, canon) {
				r.cache.Add(canon, rec.Name)
				return rec.Name, nil
			}
		}
	}
	r.cache.Add(canon, "")
	return "", nil
}

func isPrefix(prefix, target string) bool {
	prefix = filepath.Clean(prefix)
	if prefix == target {
		return true
	}
	return strings.HasPrefix(target, prefix+string(filepath.Separator))
}

// Create registers a new project. Fails with ErrAlreadyExists if name is
// already registered.
func (r *Resolver) Create(name, path, description string) (Record, error) {
	if r.find(name) != nil {
		return Record{}, fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}

	rec := Record{Name: name, Description: description, CreatedAt: time.Now().UTC()}
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return Record{}, fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}
		rec.Paths = []string{filepath.Clean(abs)}
	}

	r.records = append(r.records, rec)
	r.cache.Purge()
	if err := r.persist(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// AddPath appends a path to an existing project. Fails if the path is
// already registered under name.
func (r *Resolver) AddPath(name, path string) (Record, error) {
	idx := r.index(name)
	if idx < 0 {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	abs = filepath.Clean(abs)

	for _, p := range r.records[idx].Paths {
		if p == abs {
			return Record{}, fmt.Errorf("%w: %s already registered under %s", ErrInvalidPath, abs, name)
		}
	}

	r.records[idx].Paths = append(r.records[idx].Paths, abs)
	r.cache.Purge()
	if err := r.persist(); err != nil {
		return Record{}, err
	}
	return r.records[idx], nil
}

// Delete removes the mapping for name. It does not touch stored memories.
func (r *Resolver) Delete(name string) error {
	idx := r.index(name)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	r.records = append(r.records[:idx], r.records[idx+1:]...)
	r.cache.Purge()
	return r.persist()
}

// Get returns the registered record for name.
func (r *Resolver) Get(name string) (Record, error) {
	rec := r.find(name)
	if rec == nil {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return *rec, nil
}

// List returns all registered projects in insertion order.
func (r *Resolver) List() []Record {
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// UpdateDescription updates the description for an existing project.
func (r *Resolver) UpdateDescription(name, description string) (Record, error) {
	idx := r.index(name)
	if idx < 0 {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	r.records[idx].Description = description
	if err := r.persist(); err != nil {
		return Record{}, err
	}
	return r.records[idx], nil
}

func (r *Resolver) find(name string) *Record {
	idx := r.index(name)
	if idx < 0 {
		return nil
	}
	return &r.records[idx]
}

func (r *Resolver) index(name string) int {
	for i, rec := range r.records {
		if rec.Name == name {
			return i
		}
	}
	return -1
}

// persist atomically writes the registry: write to a temp file in the
// same directory, then rename over the target.
func (r *Resolver) persist() error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("project: create registry dir: %w", err)
	}

	data, err := json.MarshalIndent(registryFile{Entries: r.records}, "", "  ")
	if err != nil {
		return fmt.Errorf("project: marshal registry: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".project-registry-*.json.tmp")
	if err != nil {
		return fmt.Errorf("project: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("project: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("project: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("project: rename registry: %w", err)
	}
	return nil
}
