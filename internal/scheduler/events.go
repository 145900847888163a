package scheduler

// Event names published by the scheduler.
const (
	EventEnqueue      = "enqueue"
	EventWorkerStart  = "worker_start"
	EventWorkerStop   = "worker_stop"
	EventLoadStart    = "load_start"
	EventLoadDone     = "load_done"
	EventLoadFailed   = "load_failed"
	EventUnloadDone   = "unload_done"
	EventSmartUnload  = "smart_unload"
	EventGenerateDone = "generate_done"
)

// Event represents a scheduler lifecycle event.
type Event struct {
	Name    string
	ModelID string
	Fields  map[string]any
}

// EventPublisher receives events from the scheduler. Implementations should
// be lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
