package engine

import "errors"

// Error kinds of the engine (spec.md §7). Engine methods return
// ErrInvalidInput, ErrEmbedderUnavailable or ErrStore, with the message of
// the underlying embedder or store failure appended (the underlying error
// value itself is not wrapped); callers use errors.Is against these
// sentinels to classify a failure. ErrNotFound, ErrAlreadyExists and
// ErrDimensionMismatch are declared but no engine method returns them.
var (
	ErrEmbedderUnavailable = errors.New("engine: embedder unavailable")
	ErrStore               = errors.New("engine: store error")
	ErrNotFound            = errors.New("engine: not found")
	ErrAlreadyExists       = errors.New("engine: already exists")
	ErrInvalidInput        = errors.New("engine: invalid input")
	ErrDimensionMismatch   = errors.New("engine: dimension mismatch")
)
