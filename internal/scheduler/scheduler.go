package scheduler

import (
	"container/heap"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"inferd/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultIdleTimeout   = 60 * time.Second
	defaultMaxQueueDepth = 256
	defaultStreamBuffer  = 64
)

// Config encapsulates all tunables for Scheduler construction.
type Config struct {
	Registry     []types.Model
	Engine       Engine
	DefaultModel string
	// IdleTimeout is how long the worker waits on an empty queue before it
	// exits. The next Enqueue starts a fresh worker.
	IdleTimeout time.Duration
	// MaxQueueDepth bounds the queue; Enqueue rejects with a too-busy error
	// beyond it.
	MaxQueueDepth int
	// StreamBuffer is the chunk channel capacity for streaming tickets.
	StreamBuffer int
	// Assignments is the external capability store consulted by
	// ReleaseIfUnreferenced. Optional.
	Assignments AssignmentSource
	// Publisher receives lifecycle events. Optional.
	Publisher EventPublisher
	// Logger, when set, receives structured logs.
	Logger *zerolog.Logger
}

// Scheduler accepts inference requests for a single expensive-to-load local
// model runtime, orders them by (priority, arrival) and drives generation
// through one background worker so at most one generation is in flight and at
// most one model is resident.
type Scheduler struct {
	engine       Engine
	registry     []types.Model
	defaultModel string
	idleTimeout  time.Duration
	maxDepth     int
	streamBuffer int
	assignments  AssignmentSource
	publisher    EventPublisher
	log          zerolog.Logger

	// mu guards the queue, sequence counter and worker state.
	mu      sync.Mutex
	pq      requestHeap
	seq     uint64
	running bool
	wake    chan struct{}
	lastErr string

	// loadMu serializes all cache mutation: ensureLoaded, unload and the
	// cooperative release. It is the only lock held across the external load
	// call and is never held across a caller-visible await.
	loadMu sync.Mutex
	entry  *loadedModel

	baseCtx context.Context
	cancel  context.CancelFunc
	closed  atomic.Bool

	startTime time.Time
	loads     atomic.Uint64
	unloads   atomic.Uint64
	gens      atomic.Uint64
}

// New constructs a Scheduler from Config. The worker is not started until the
// first Enqueue.
func New(cfg Config) *Scheduler {
	s := &Scheduler{
		engine:       cfg.Engine,
		registry:     cfg.Registry,
		defaultModel: cfg.DefaultModel,
		idleTimeout:  cfg.IdleTimeout,
		maxDepth:     cfg.MaxQueueDepth,
		streamBuffer: cfg.StreamBuffer,
		assignments:  cfg.Assignments,
		publisher:    cfg.Publisher,
		wake:         make(chan struct{}, 1),
		startTime:    time.Now(),
	}
	if s.idleTimeout <= 0 {
		s.idleTimeout = defaultIdleTimeout
	}
	if s.maxDepth <= 0 {
		s.maxDepth = defaultMaxQueueDepth
	}
	if s.streamBuffer <= 0 {
		s.streamBuffer = defaultStreamBuffer
	}
	if s.publisher == nil {
		s.publisher = noopPublisher{}
	}
	if cfg.Logger != nil {
		s.log = *cfg.Logger
	} else {
		s.log = zerolog.Nop()
	}
	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Enqueue admits a request into the priority queue and returns its completion
// handle immediately; the caller blocks only where it chooses to, on
// Ticket.Wait or Ticket.Chunks. The worker is started if it was stopped.
func (s *Scheduler) Enqueue(req types.ChatRequest, modelID string, pr Priority) (*Ticket, error) {
	if s.closed.Load() {
		return nil, closedError{}
	}
	if len(req.Messages) == 0 {
		return nil, ErrAdmission("messages must not be empty")
	}
	if pr != PriorityHigh && pr != PriorityLow {
		return nil, ErrAdmission("unknown priority")
	}
	if modelID == "" {
		modelID = req.Model
	}
	if modelID == "" {
		modelID = s.defaultModel
	}
	if strings.TrimSpace(modelID) == "" {
		return nil, ErrAdmission("model is required and no default is configured")
	}

	t := newTicket(req.Stream, s.streamBuffer)
	s.mu.Lock()
	if len(s.pq) >= s.maxDepth {
		s.mu.Unlock()
		return nil, tooBusyError{modelID: modelID}
	}
	s.seq++
	p := &pending{req: req, modelID: modelID, priority: pr, seq: s.seq, ticket: t}
	heap.Push(&s.pq, p)
	depth := len(s.pq)
	started := false
	if !s.running {
		s.running = true
		started = true
		go s.run()
	}
	s.mu.Unlock()

	queueDepth.Set(float64(depth))
	if started {
		s.publisher.Publish(Event{Name: EventWorkerStart, ModelID: modelID, Fields: map[string]any{}})
	}
	s.publisher.Publish(Event{Name: EventEnqueue, ModelID: modelID, Fields: map[string]any{
		"priority": pr.String(),
		"seq":      p.seq,
		"depth":    depth,
	}})
	s.log.Debug().Str("model", modelID).Stringer("priority", pr).Uint64("seq", p.seq).Int("depth", depth).Msg("request enqueued")

	// Nudge a worker parked on the wake channel.
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return t, nil
}

// QueueLen reports the number of requests currently waiting.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pq)
}

// ListModels returns a copy of the registry.
func (s *Scheduler) ListModels() []types.Model {
	out := make([]types.Model, len(s.registry))
	copy(out, s.registry)
	return out
}

// Ready reports whether the scheduler accepts work.
func (s *Scheduler) Ready() bool { return !s.closed.Load() }

// Close stops accepting requests, cancels in-flight work and unloads the
// resident model. Queued requests resolve with a closed error.
func (s *Scheduler) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()

	// Fail whatever is still queued; the worker drains nothing after cancel.
	s.mu.Lock()
	drained := make([]*pending, 0, len(s.pq))
	for s.pq.Len() > 0 {
		drained = append(drained, heap.Pop(&s.pq).(*pending))
	}
	s.mu.Unlock()
	for _, p := range drained {
		p.ticket.closeChunks()
		p.ticket.resolve(nil, closedError{})
	}
	queueDepth.Set(0)

	s.loadMu.Lock()
	s.releaseLocked()
	s.loadMu.Unlock()
	return nil
}

func (s *Scheduler) getModelByID(id string) (types.Model, bool) {
	for _, mdl := range s.registry {
		if mdl.ID == id {
			return mdl, true
		}
	}
	return types.Model{}, false
}

func (s *Scheduler) setLastErr(err error) {
	s.mu.Lock()
	if err != nil {
		s.lastErr = err.Error()
	} else {
		s.lastErr = ""
	}
	s.mu.Unlock()
}
