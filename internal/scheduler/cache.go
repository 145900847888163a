package scheduler

import "context"

// loadedModel is the zero-or-one cache entry for the resident model.
type loadedModel struct {
	id     string
	handle ModelHandle
}

// ensureLoaded guarantees the requested model is resident and returns its
// handle. The whole check-then-act sequence runs under loadMu, so concurrent
// callers for the same model collapse into a single physical load: the second
// caller blocks on the mutex, then hits the cache and returns immediately.
// A failed load leaves the cache empty and is reported as a load error.
func (s *Scheduler) ensureLoaded(ctx context.Context, modelID string) (ModelHandle, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if s.entry != nil && s.entry.id == modelID {
		return s.entry.handle, nil
	}

	mdl, ok := s.getModelByID(modelID)
	if !ok {
		return nil, ErrModelNotFound(modelID)
	}

	// Swap out the prior entry before loading so memory is free for the new
	// model. No request can observe the gap: every reader serializes on loadMu.
	s.releaseLocked()

	s.publisher.Publish(Event{Name: EventLoadStart, ModelID: modelID, Fields: map[string]any{}})
	h, err := s.engine.Load(ctx, mdl)
	if err != nil {
		loadsTotal.WithLabelValues("error").Inc()
		s.publisher.Publish(Event{Name: EventLoadFailed, ModelID: modelID, Fields: map[string]any{"error": err.Error()}})
		s.log.Error().Err(err).Str("model", modelID).Msg("model load failed")
		if IsDependencyUnavailable(err) || IsCanceled(err) {
			return nil, err
		}
		return nil, loadError{modelID: modelID, err: err}
	}
	s.entry = &loadedModel{id: modelID, handle: h}
	s.loads.Add(1)
	loadsTotal.WithLabelValues("ok").Inc()
	s.publisher.Publish(Event{Name: EventLoadDone, ModelID: modelID, Fields: map[string]any{}})
	s.log.Info().Str("model", modelID).Msg("model loaded")
	return h, nil
}

// LoadedModel returns the identifier of the resident model, or "" when the
// cache is empty.
func (s *Scheduler) LoadedModel() string {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if s.entry == nil {
		return ""
	}
	return s.entry.id
}

// Unload evicts the resident model unconditionally.
func (s *Scheduler) Unload() {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	s.releaseLocked()
}

// releaseLocked drops the cache entry and hands its handle back to the
// engine. Callers must hold loadMu.
func (s *Scheduler) releaseLocked() {
	if s.entry == nil {
		return
	}
	id := s.entry.id
	if err := s.engine.Unload(s.entry.handle); err != nil {
		s.log.Warn().Err(err).Str("model", id).Msg("engine unload reported error")
	}
	s.entry = nil
	s.unloads.Add(1)
	unloadsTotal.Inc()
	s.publisher.Publish(Event{Name: EventUnloadDone, ModelID: id, Fields: map[string]any{}})
	s.log.Info().Str("model", id).Msg("model unloaded")
}
