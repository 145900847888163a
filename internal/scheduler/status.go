package scheduler

import (
	"time"

	"inferd/pkg/types"
)

// Status builds a detailed status response for GET /status.
func (s *Scheduler) Status() types.StatusResponse {
	s.mu.Lock()
	queueLen := len(s.pq)
	running := s.running
	lastErr := s.lastErr
	s.mu.Unlock()

	state := "stopped"
	if running {
		state = "running"
	}
	return types.StatusResponse{
		LoadedModel:      s.LoadedModel(),
		WorkerState:      state,
		QueueLen:         queueLen,
		MaxQueueDepth:    s.maxDepth,
		LoadsTotal:       s.loads.Load(),
		UnloadsTotal:     s.unloads.Load(),
		GenerationsTotal: s.gens.Load(),
		LastError:        lastErr,
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
		ServerTimeUnix:   time.Now().Unix(),
	}
}
