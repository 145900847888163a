package scheduler

import (
	"context"

	"inferd/pkg/types"
)

// AssignmentSource exposes the externally-owned capability configuration,
// read-only from the scheduler's perspective.
type AssignmentSource interface {
	ListCapabilityAssignments(ctx context.Context) ([]types.CapabilityAssignment, error)
}

// ReleaseIfUnreferenced unloads the resident model when no capability slot
// still references it. It takes the same load mutex as ensureLoaded, so it
// never races an in-flight load or swap. Invoked on configuration-change
// events, not by the worker loop.
func (s *Scheduler) ReleaseIfUnreferenced(ctx context.Context) (bool, error) {
	if s.assignments == nil {
		return false, nil
	}
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if s.entry == nil {
		return false, nil
	}
	refs, err := s.assignments.ListCapabilityAssignments(ctx)
	if err != nil {
		return false, err
	}
	for _, ref := range refs {
		if ref.ModelID == s.entry.id {
			s.log.Debug().Str("model", s.entry.id).Str("capability", ref.Capability).
				Msg("model still referenced, skipping unload")
			return false, nil
		}
	}
	id := s.entry.id
	s.releaseLocked()
	s.publisher.Publish(Event{Name: EventSmartUnload, ModelID: id, Fields: map[string]any{}})
	return true, nil
}
