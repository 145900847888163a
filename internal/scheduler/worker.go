package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"strings"
	"time"

	"inferd/pkg/types"
)

// run is the worker loop. At most one instance is active at a time; the
// running flag is flipped under the queue mutex so Enqueue can observe a
// stopped worker and spawn a fresh one.
func (s *Scheduler) run() {
	workerUp.Set(1)
	defer workerUp.Set(0)
	s.log.Debug().Msg("queue worker started")
	for {
		p := s.next()
		if p == nil {
			s.mu.Lock()
			if len(s.pq) == 0 || s.closed.Load() {
				s.running = false
				s.mu.Unlock()
				s.publisher.Publish(Event{Name: EventWorkerStop, Fields: map[string]any{"reason": "idle"}})
				s.log.Debug().Dur("idle_timeout", s.idleTimeout).Msg("queue worker stopped")
				return
			}
			// A request slipped in between the timeout and here; keep going.
			s.mu.Unlock()
			continue
		}
		if fatal := s.process(p); fatal {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			s.publisher.Publish(Event{Name: EventWorkerStop, Fields: map[string]any{"reason": "panic"}})
			return
		}
	}
}

// next dequeues the highest-priority pending request, waiting up to the idle
// timeout. It returns nil on timeout or shutdown.
func (s *Scheduler) next() *pending {
	timer := time.NewTimer(s.idleTimeout)
	defer timer.Stop()
	for {
		s.mu.Lock()
		if len(s.pq) > 0 {
			p := heap.Pop(&s.pq).(*pending)
			depth := len(s.pq)
			s.mu.Unlock()
			queueDepth.Set(float64(depth))
			return p
		}
		s.mu.Unlock()
		select {
		case <-s.wake:
		case <-timer.C:
			return nil
		case <-s.baseCtx.Done():
			return nil
		}
	}
}

// process drives one request end to end and resolves its ticket exactly once.
// Load and generation failures are local to this request; the loop continues.
// A panic is a programming-error class bug: the ticket is still resolved, but
// the worker reports fatal and stops until the next Enqueue respawns it.
func (s *Scheduler) process(p *pending) (fatal bool) {
	defer func() {
		if r := recover(); r != nil {
			fatal = true
			err := fmt.Errorf("worker panic: %v", r)
			s.log.Error().Err(err).Str("model", p.modelID).Msg("worker loop panicked")
			s.setLastErr(err)
			p.ticket.closeChunks()
			p.ticket.resolve(nil, err)
		}
	}()

	// A caller that already hung up does not get to trigger a load.
	select {
	case <-p.ticket.canceled:
		s.fail(p, context.Canceled)
		return false
	default:
	}

	ctx, cancel := s.requestCtx(p.ticket)
	defer cancel()

	h, err := s.ensureLoaded(ctx, p.modelID)
	if err != nil {
		s.setLastErr(err)
		s.fail(p, err)
		return false
	}

	start := time.Now()
	if p.req.Stream {
		s.processStream(ctx, p, h, start)
	} else {
		s.processBatch(ctx, p, h, start)
	}
	return false
}

// requestCtx derives the context one request runs under: done when the caller
// cancels its ticket or the scheduler shuts down.
func (s *Scheduler) requestCtx(t *Ticket) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-t.canceled:
		case <-s.baseCtx.Done():
		case <-ctx.Done():
		}
		cancel()
	}()
	return ctx, cancel
}

func (s *Scheduler) processBatch(ctx context.Context, p *pending, h ModelHandle, start time.Time) {
	res, err := s.engine.GenerateBatch(ctx, h, p.req)
	if err != nil {
		if !IsCanceled(err) {
			err = generationError{modelID: p.modelID, err: err}
		}
		s.setLastErr(err)
		generationsTotal.WithLabelValues("batch", "error").Inc()
		p.ticket.resolve(nil, err)
		return
	}
	if res.Role == "" {
		res.Role = types.RoleAssistant
	}
	if res.FinishReason == "" {
		res.FinishReason = "stop"
	}
	if res.Usage == (types.Usage{}) {
		res.Usage = estimateUsage(p.req, res.Text)
	}
	s.finish(p, res, "batch", start)
}

func (s *Scheduler) processStream(ctx context.Context, p *pending, h ModelHandle, start time.Time) {
	st, err := s.engine.GenerateStream(ctx, h, p.req)
	if err != nil {
		if !IsCanceled(err) {
			err = generationError{modelID: p.modelID, err: err}
		}
		s.setLastErr(err)
		generationsTotal.WithLabelValues("stream", "error").Inc()
		s.deliver(p.ticket, types.Chunk{Err: err})
		p.ticket.closeChunks()
		p.ticket.resolve(nil, err)
		return
	}
	defer func() { _ = st.Close() }()

	var b strings.Builder
	deltas := 0
	finish := ""
	aborted := false
	for st.Next() {
		c := st.Current()
		// Content-free chunks are skipped, not forwarded as empty output.
		if c.Delta == "" && c.FinishReason == "" {
			continue
		}
		if c.Delta != "" {
			b.WriteString(c.Delta)
			deltas++
		}
		if c.FinishReason != "" && finish == "" {
			finish = c.FinishReason
		}
		if !s.deliver(p.ticket, c) {
			aborted = true
			break
		}
	}
	if aborted {
		// Caller hung up or shutdown; whatever was delivered stays delivered,
		// but the ticket must not read as a completed generation.
		s.setLastErr(context.Canceled)
		generationsTotal.WithLabelValues("stream", "error").Inc()
		p.ticket.closeChunks()
		p.ticket.resolve(nil, context.Canceled)
		return
	}
	if err := st.Err(); err != nil {
		// Partial output already delivered stays delivered; only the terminal
		// marker becomes an error.
		if !IsCanceled(err) {
			err = generationError{modelID: p.modelID, err: err}
		}
		s.setLastErr(err)
		generationsTotal.WithLabelValues("stream", "error").Inc()
		s.deliver(p.ticket, types.Chunk{Err: err})
		p.ticket.closeChunks()
		p.ticket.resolve(nil, err)
		return
	}
	if finish == "" {
		finish = "stop"
		s.deliver(p.ticket, types.Chunk{FinishReason: finish})
	}
	p.ticket.closeChunks()
	res := &types.ChatResult{
		Text:         b.String(),
		Role:         types.RoleAssistant,
		FinishReason: finish,
		Usage:        estimateUsage(p.req, b.String()),
	}
	s.finish(p, res, "stream", start)
}

func (s *Scheduler) finish(p *pending, res *types.ChatResult, mode string, start time.Time) {
	s.gens.Add(1)
	generationsTotal.WithLabelValues(mode, "ok").Inc()
	s.setLastErr(nil)
	s.publisher.Publish(Event{Name: EventGenerateDone, ModelID: p.modelID, Fields: map[string]any{
		"mode": mode,
		"seq":  p.seq,
	}})
	s.log.Info().Str("model", p.modelID).Str("mode", mode).Uint64("seq", p.seq).
		Dur("dur", time.Since(start)).Msg("generation done")
	p.ticket.resolve(res, nil)
}

// fail resolves a ticket with err before generation started. Streaming
// callers see a terminal error chunk so their channel never dangles.
func (s *Scheduler) fail(p *pending, err error) {
	if p.ticket.chunks != nil {
		s.deliver(p.ticket, types.Chunk{Err: err})
		p.ticket.closeChunks()
	}
	p.ticket.resolve(nil, err)
}

// deliver forwards a chunk to the caller. It reports false when the caller
// canceled the ticket or shutdown aborted the delivery, so a reader that
// stopped draining its channel can never park the worker.
func (s *Scheduler) deliver(t *Ticket, c types.Chunk) bool {
	select {
	case t.chunks <- c:
		return true
	case <-t.canceled:
		return false
	case <-s.baseCtx.Done():
		return false
	}
}

// estimateUsage approximates token accounting for engines that stream without
// reporting counts. Four characters per token is the usual rough cut.
func estimateUsage(req types.ChatRequest, completion string) types.Usage {
	prompt := 0
	for _, m := range req.Messages {
		prompt += len(m.Content)
	}
	u := types.Usage{
		PromptTokens:     tokenGuess(prompt),
		CompletionTokens: tokenGuess(len(completion)),
	}
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
	return u
}

func tokenGuess(chars int) int {
	if chars == 0 {
		return 0
	}
	n := chars / 4
	if n == 0 {
		n = 1
	}
	return n
}
