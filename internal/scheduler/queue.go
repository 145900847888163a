package scheduler

import "inferd/pkg/types"

// Priority orders queued requests. Lower values are served first.
type Priority int

const (
	// PriorityHigh marks interactive, user-facing requests.
	PriorityHigh Priority = 1
	// PriorityLow marks background/batch requests.
	PriorityLow Priority = 10
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// pending is one queued request. Owned by the queue until dequeued, then by
// the worker until its ticket resolves.
type pending struct {
	req      types.ChatRequest
	modelID  string
	priority Priority
	seq      uint64
	ticket   *Ticket
}

// requestHeap orders pendings by (priority, sequence): interactive requests
// jump the queue, same-priority requests stay FIFO.
type requestHeap []*pending

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *requestHeap) Push(x any) { *h = append(*h, x.(*pending)) }

func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	p := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return p
}
