package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"inferd/pkg/types"
)

func TestEvents_LoadGenerateUnloadSequence(t *testing.T) {
	pub := NewMemoryPublisher()
	eng := newFakeEngine()
	s := newTestScheduler(t, eng, func(c *Config) { c.Publisher = pub })

	mustWait(t, enqueue(t, s, userReq("alpha", "hi")))
	s.Unload()

	// Worker events race with the Enqueue publication, so only assert counts
	// and the load ordering, which is sequential within the worker.
	for _, name := range []string{EventWorkerStart, EventEnqueue, EventLoadStart, EventLoadDone, EventGenerateDone, EventUnloadDone} {
		if n := pub.Count(name); n != 1 {
			t.Fatalf("%s count=%d, want 1 (all %v)", name, n, pub.Names())
		}
	}
	start, done := -1, -1
	for i, name := range pub.Names() {
		switch name {
		case EventLoadStart:
			start = i
		case EventLoadDone:
			done = i
		}
	}
	if start < 0 || done < start {
		t.Fatalf("load events out of order: %v", pub.Names())
	}
	if n := len(pub.ForModel("alpha")); n != 6 {
		t.Fatalf("alpha events=%d, want 6: %v", n, pub.ForModel("alpha"))
	}
}

func TestEvents_LoadFailure(t *testing.T) {
	pub := NewMemoryPublisher()
	eng := newFakeEngine()
	eng.failLoad["alpha"] = errors.New("boom")
	s := newTestScheduler(t, eng, func(c *Config) { c.Publisher = pub })

	tk := enqueue(t, s, userReq("alpha", "hi"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := tk.Wait(ctx); err == nil {
		t.Fatalf("expected load failure")
	}
	if pub.Count(EventLoadFailed) != 1 {
		t.Fatalf("events=%v, want one %s", pub.Names(), EventLoadFailed)
	}
	if pub.Count(EventLoadDone) != 0 {
		t.Fatalf("unexpected %s in %v", EventLoadDone, pub.Names())
	}
}

func TestEvents_WorkerStopsWhenIdle(t *testing.T) {
	pub := NewMemoryPublisher()
	eng := newFakeEngine()
	s := newTestScheduler(t, eng, func(c *Config) {
		c.Publisher = pub
		c.IdleTimeout = 50 * time.Millisecond
	})

	mustWait(t, enqueue(t, s, userReq("alpha", "hi")))

	deadline := time.Now().Add(2 * time.Second)
	for pub.Count(EventWorkerStop) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("worker never stopped; events=%v", pub.Names())
		}
		time.Sleep(10 * time.Millisecond)
	}
	for _, e := range pub.Events() {
		if e.Name == EventWorkerStop && e.Fields["reason"] != "idle" {
			t.Fatalf("stop reason=%v", e.Fields["reason"])
		}
	}
}

func TestEvents_SmartUnloadOnRelease(t *testing.T) {
	pub := NewMemoryPublisher()
	eng := newFakeEngine()
	s := newTestScheduler(t, eng, func(c *Config) {
		c.Publisher = pub
		c.Assignments = &fakeAssignments{refs: []types.CapabilityAssignment{{Capability: "text", ModelID: "beta"}}}
	})

	mustWait(t, enqueue(t, s, userReq("alpha", "hi")))
	released, err := s.ReleaseIfUnreferenced(context.Background())
	if err != nil {
		t.Fatalf("ReleaseIfUnreferenced: %v", err)
	}
	if !released {
		t.Fatalf("expected release of unreferenced resident model")
	}
	if pub.Count(EventSmartUnload) != 1 || pub.Count(EventUnloadDone) != 1 {
		t.Fatalf("events=%v", pub.Names())
	}
}
