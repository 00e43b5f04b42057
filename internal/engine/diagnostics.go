package engine

import "context"

// Diagnostics receives advisory events that are not errors but the caller
// may want to surface (spec.md §7, "Redacted").
type Diagnostics interface {
	OnRedacted(ctx context.Context, memoryID int64, content string)
}

// noopDiagnostics discards every event. Used when the caller does not
// configure a sink.
type noopDiagnostics struct{}

func (noopDiagnostics) OnRedacted(context.Context, int64, string) {}
