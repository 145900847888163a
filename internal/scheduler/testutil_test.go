package scheduler

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"inferd/pkg/types"
)

// engineOp records one call into the fake engine, in order.
type engineOp struct {
	kind  string // load, unload, generate
	model string
	tag   string // first user message, for ordering assertions
}

type fakeHandle struct{ id string }

// fakeEngine is a deterministic in-memory Engine. Generated text is a pure
// function of the request, so batch and stream output can be compared.
type fakeEngine struct {
	mu      sync.Mutex
	ops     []engineOp
	live    int
	maxLive int

	loadDelay       time.Duration
	loadGate        chan struct{} // when set, Load blocks until it is closed
	failLoad        map[string]error
	panicOnGenerate bool
	streamFailAfter int  // fail the stream after N deltas; 0 disables
	zeroUsage       bool // report no token counts, like engines that omit usage
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{failLoad: map[string]error{}}
}

func (e *fakeEngine) record(kind, model, tag string) {
	e.mu.Lock()
	e.ops = append(e.ops, engineOp{kind: kind, model: model, tag: tag})
	e.mu.Unlock()
}

func (e *fakeEngine) opsSnapshot() []engineOp {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]engineOp, len(e.ops))
	copy(out, e.ops)
	return out
}

func (e *fakeEngine) loadCount(model string) int {
	n := 0
	for _, op := range e.opsSnapshot() {
		if op.kind == "load" && op.model == model {
			n++
		}
	}
	return n
}

func (e *fakeEngine) generateOrder() []string {
	var tags []string
	for _, op := range e.opsSnapshot() {
		if op.kind == "generate" {
			tags = append(tags, op.tag)
		}
	}
	return tags
}

func (e *fakeEngine) Load(ctx context.Context, mdl types.Model) (ModelHandle, error) {
	if e.loadGate != nil {
		select {
		case <-e.loadGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.loadDelay > 0 {
		select {
		case <-time.After(e.loadDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := e.failLoad[mdl.ID]; err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.live++
	if e.live > e.maxLive {
		e.maxLive = e.live
	}
	e.ops = append(e.ops, engineOp{kind: "load", model: mdl.ID})
	e.mu.Unlock()
	return &fakeHandle{id: mdl.ID}, nil
}

func (e *fakeEngine) Unload(h ModelHandle) error {
	fh := h.(*fakeHandle)
	e.mu.Lock()
	e.live--
	e.ops = append(e.ops, engineOp{kind: "unload", model: fh.id})
	e.mu.Unlock()
	return nil
}

// echoText is the deterministic generation: echo of the last user message.
func echoText(req types.ChatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == types.RoleUser {
			return "echo: " + req.Messages[i].Content
		}
	}
	return "echo:"
}

func firstUserTag(req types.ChatRequest) string {
	for _, m := range req.Messages {
		if m.Role == types.RoleUser {
			return m.Content
		}
	}
	return ""
}

func (e *fakeEngine) GenerateBatch(ctx context.Context, h ModelHandle, req types.ChatRequest) (*types.ChatResult, error) {
	if e.panicOnGenerate {
		panic("fake engine exploded")
	}
	fh := h.(*fakeHandle)
	e.record("generate", fh.id, firstUserTag(req))
	text := echoText(req)
	res := &types.ChatResult{
		Text:         text,
		Role:         types.RoleAssistant,
		FinishReason: "stop",
	}
	if !e.zeroUsage {
		res.Usage = estimateUsage(req, text)
	}
	return res, nil
}

func (e *fakeEngine) GenerateStream(ctx context.Context, h ModelHandle, req types.ChatRequest) (Stream, error) {
	if e.panicOnGenerate {
		panic("fake engine exploded")
	}
	fh := h.(*fakeHandle)
	e.record("generate", fh.id, firstUserTag(req))
	text := echoText(req)
	// Split into small deltas with an empty chunk mixed in, which the worker
	// must skip.
	chunks := []types.Chunk{{Delta: ""}}
	for i := 0; i < len(text); i += 3 {
		end := i + 3
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, types.Chunk{Delta: text[i:end]})
	}
	chunks = append(chunks, types.Chunk{FinishReason: "stop"})
	return &fakeStream{chunks: chunks, failAfter: e.streamFailAfter}, nil
}

type fakeStream struct {
	chunks    []types.Chunk
	pos       int
	cur       types.Chunk
	failAfter int
	deltas    int
	err       error
	closed    bool
}

func (st *fakeStream) Next() bool {
	if st.err != nil || st.pos >= len(st.chunks) {
		return false
	}
	if st.failAfter > 0 && st.deltas >= st.failAfter {
		st.err = fmt.Errorf("stream torn: %w", io.ErrUnexpectedEOF)
		return false
	}
	st.cur = st.chunks[st.pos]
	st.pos++
	if st.cur.Delta != "" {
		st.deltas++
	}
	return true
}

func (st *fakeStream) Current() types.Chunk { return st.cur }
func (st *fakeStream) Err() error           { return st.err }
func (st *fakeStream) Close() error         { st.closed = true; return nil }

func testRegistry() []types.Model {
	return []types.Model{
		{ID: "alpha", Name: "alpha", Path: "/models/alpha.gguf"},
		{ID: "beta", Name: "beta", Path: "/models/beta.gguf"},
	}
}

func newTestScheduler(t *testing.T, eng Engine, mutate func(*Config)) *Scheduler {
	t.Helper()
	cfg := Config{
		Registry:    testRegistry(),
		Engine:      eng,
		IdleTimeout: 200 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s := New(cfg)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func userReq(model, content string) types.ChatRequest {
	return types.ChatRequest{
		Model:    model,
		Messages: []types.Message{{Role: types.RoleUser, Content: content}},
	}
}

func enqueue(t *testing.T, s *Scheduler, req types.ChatRequest) *Ticket {
	t.Helper()
	tk, err := s.Enqueue(req, "", PriorityHigh)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return tk
}

func mustWait(t *testing.T, tk *Ticket) *types.ChatResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := tk.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return res
}

func collectChunks(t *testing.T, tk *Ticket) (string, []types.Chunk) {
	t.Helper()
	var b strings.Builder
	var all []types.Chunk
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-tk.Chunks():
			if !ok {
				return b.String(), all
			}
			all = append(all, c)
			b.WriteString(c.Delta)
		case <-deadline:
			t.Fatalf("timed out waiting for chunks")
		}
	}
}
