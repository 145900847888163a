package scheduler

import (
	"context"
	"sync"

	"inferd/pkg/types"
)

// Ticket is the single-assignment completion handle returned by Enqueue.
// Exactly one of result or error is set, exactly once. For streaming requests
// Chunks delivers incremental output before the ticket resolves; the ticket
// itself still resolves with the accumulated full result (or the error).
type Ticket struct {
	done     chan struct{}
	chunks   chan types.Chunk
	canceled chan struct{}

	once       sync.Once
	chunkOnce  sync.Once
	cancelOnce sync.Once
	result     *types.ChatResult
	err        error
}

func newTicket(stream bool, buffer int) *Ticket {
	t := &Ticket{
		done:     make(chan struct{}),
		canceled: make(chan struct{}),
	}
	if stream {
		t.chunks = make(chan types.Chunk, buffer)
	}
	return t
}

// Cancel abandons the request from the caller's side. The worker stops
// generating and delivering for this ticket; it resolves with a cancellation
// error if it had not already resolved. Safe to call at any point, including
// after resolution.
func (t *Ticket) Cancel() {
	t.cancelOnce.Do(func() { close(t.canceled) })
}

// Chunks returns the ordered chunk channel for a streaming request, closed
// after the terminal chunk. It returns nil for batch requests.
func (t *Ticket) Chunks() <-chan types.Chunk { return t.chunks }

// Wait blocks until the ticket resolves or ctx is done. Delivered streamed
// output is never retracted: a streaming caller that consumed Chunks may
// still see an error here if the stream failed after partial output.
func (t *Ticket) Wait(ctx context.Context) (*types.ChatResult, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done returns a channel closed when the ticket has resolved.
func (t *Ticket) Done() <-chan struct{} { return t.done }

func (t *Ticket) resolve(res *types.ChatResult, err error) {
	t.once.Do(func() {
		t.result = res
		t.err = err
		close(t.done)
	})
}

// closeChunks closes the chunk channel at most once. No-op for batch tickets.
func (t *Ticket) closeChunks() {
	if t.chunks == nil {
		return
	}
	t.chunkOnce.Do(func() { close(t.chunks) })
}
