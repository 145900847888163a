package scheduler

import (
	"context"

	"inferd/pkg/types"
)

// ModelHandle is an opaque resource representing a loaded model and any
// auxiliary objects it requires. The scheduler never inspects it; it only
// passes it back to the engine.
type ModelHandle interface{}

// Engine abstracts the external generation runtime. Load may be slow
// (seconds); the scheduler serializes all Load/Unload calls behind its load
// mutex, so implementations do not need their own single-flight protection.
type Engine interface {
	// Load makes the model resident and returns its handle.
	Load(ctx context.Context, model types.Model) (ModelHandle, error)
	// Unload releases a handle previously returned by Load.
	Unload(h ModelHandle) error
	// GenerateBatch runs one full generation and returns the final result.
	GenerateBatch(ctx context.Context, h ModelHandle, req types.ChatRequest) (*types.ChatResult, error)
	// GenerateStream starts an incremental generation. The returned stream is
	// finite, forward-only and not restartable; it may fail mid-sequence.
	GenerateStream(ctx context.Context, h ModelHandle, req types.ChatRequest) (Stream, error)
}

// Stream iterates over generation chunks. Usage follows the sse stream shape:
//
//	for st.Next() { c := st.Current(); ... }
//	if err := st.Err(); err != nil { ... }
type Stream interface {
	Next() bool
	Current() types.Chunk
	Err() error
	Close() error
}
