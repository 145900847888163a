package scheduler

import (
	"context"
	"testing"
	"time"

	"inferd/pkg/types"
)

func streamReq(model, content string) types.ChatRequest {
	r := userReq(model, content)
	r.Stream = true
	return r
}

// Concatenation of delivered deltas must equal what a batch request with the
// same payload returns.
func TestStream_CompletenessMatchesBatch(t *testing.T) {
	eng := newFakeEngine()
	s := newTestScheduler(t, eng, nil)

	batch := mustWait(t, enqueue(t, s, userReq("alpha", "the quick brown fox")))

	tk := enqueue(t, s, streamReq("alpha", "the quick brown fox"))
	text, chunks := collectChunks(t, tk)
	if text != batch.Text {
		t.Fatalf("streamed text %q != batch text %q", text, batch.Text)
	}
	last := chunks[len(chunks)-1]
	if last.FinishReason != "stop" {
		t.Fatalf("terminal chunk = %+v, want finish_reason stop", last)
	}
	for _, c := range chunks[:len(chunks)-1] {
		if c.Delta == "" {
			t.Fatalf("empty delta chunk was forwarded: %+v", c)
		}
	}
	// The ticket also resolves with the accumulated result.
	res := mustWait(t, tk)
	if res.Text != text {
		t.Fatalf("ticket result %q != streamed text %q", res.Text, text)
	}
}

func TestStream_MidStreamErrorPreservesPartialOutput(t *testing.T) {
	eng := newFakeEngine()
	eng.streamFailAfter = 2
	s := newTestScheduler(t, eng, nil)

	tk := enqueue(t, s, streamReq("alpha", "a long enough prompt"))
	text, chunks := collectChunks(t, tk)
	if text == "" {
		t.Fatalf("expected partial output before the failure")
	}
	last := chunks[len(chunks)-1]
	if last.Err == nil {
		t.Fatalf("expected terminal error chunk, got %+v", last)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := tk.Wait(ctx); err == nil || !IsGenerationFailed(err) {
		t.Fatalf("expected generation error, got %v", err)
	}
}

func TestStream_LoadFailureDeliversTerminalErrorChunk(t *testing.T) {
	eng := newFakeEngine()
	eng.failLoad["alpha"] = context.DeadlineExceeded
	s := newTestScheduler(t, eng, nil)

	tk := enqueue(t, s, streamReq("alpha", "never starts"))
	_, chunks := collectChunks(t, tk)
	if len(chunks) != 1 || chunks[0].Err == nil {
		t.Fatalf("expected a single terminal error chunk, got %+v", chunks)
	}
}

// waitForBufferedChunks blocks until at least n chunks sit unread in the
// ticket's channel, i.e. the worker has produced output nobody consumed.
func waitForBufferedChunks(t *testing.T, tk *Ticket, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for len(tk.chunks) < n {
		if time.Now().After(deadline) {
			t.Fatalf("chunks buffered=%d, want %d", len(tk.chunks), n)
		}
		time.Sleep(time.Millisecond)
	}
}

// A streaming caller that stops draining its channel and hangs up must not
// park the worker forever; later requests still resolve.
func TestStream_AbandonedReaderDoesNotWedgeWorker(t *testing.T) {
	eng := newFakeEngine()
	s := newTestScheduler(t, eng, func(c *Config) { c.StreamBuffer = 2 })

	abandoned := enqueue(t, s, streamReq("alpha", "a prompt long enough to overflow the chunk buffer"))
	waitForBufferedChunks(t, abandoned, 2)
	// The worker is blocked delivering the next chunk; hang up without reading.
	abandoned.Cancel()

	res := mustWait(t, enqueue(t, s, userReq("alpha", "next")))
	if res.Text != "echo: next" {
		t.Fatalf("follow-up result %q, worker did not recover", res.Text)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := abandoned.Wait(ctx); !IsCanceled(err) {
		t.Fatalf("abandoned ticket resolved with %v, want canceled", err)
	}
}

// Cancel on a still-queued ticket resolves it without running generation.
func TestStream_CancelBeforeProcessingSkipsGeneration(t *testing.T) {
	eng := newFakeEngine()
	eng.loadGate = make(chan struct{})
	s := newTestScheduler(t, eng, nil)

	first := enqueue(t, s, userReq("alpha", "holds the worker"))
	victim := enqueue(t, s, streamReq("alpha", "never runs"))
	victim.Cancel()
	close(eng.loadGate)

	mustWait(t, first)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := victim.Wait(ctx); !IsCanceled(err) {
		t.Fatalf("want canceled, got %v", err)
	}
	for _, tag := range eng.generateOrder() {
		if tag == "never runs" {
			t.Fatalf("canceled request reached the engine")
		}
	}
}

// Shutdown while chunks sit undelivered must not read as a completed
// generation.
func TestStream_ShutdownMidDeliveryResolvesCanceled(t *testing.T) {
	eng := newFakeEngine()
	s := newTestScheduler(t, eng, func(c *Config) { c.StreamBuffer = 1 })

	tk := enqueue(t, s, streamReq("alpha", "a prompt long enough to overflow the chunk buffer"))
	waitForBufferedChunks(t, tk, 1)
	_ = s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := tk.Wait(ctx); !IsCanceled(err) {
		t.Fatalf("want canceled after shutdown, got %v", err)
	}
}

func TestStream_BatchTicketHasNoChunkChannel(t *testing.T) {
	eng := newFakeEngine()
	s := newTestScheduler(t, eng, nil)

	tk := enqueue(t, s, userReq("alpha", "plain"))
	if tk.Chunks() != nil {
		t.Fatalf("batch ticket must not expose a chunk channel")
	}
	mustWait(t, tk)
}
