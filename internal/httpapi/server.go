package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inferd/internal/scheduler"
	"inferd/pkg/types"
)

// Service defines the scheduler methods required by the HTTP API layer.
type Service interface {
	Enqueue(req types.ChatRequest, modelID string, pr scheduler.Priority) (*scheduler.Ticket, error)
	ListModels() []types.Model
	Status() types.StatusResponse
	Ready() bool
	LoadedModel() string
	Unload()
	ReleaseIfUnreferenced(ctx context.Context) (bool, error)
}

// CapabilityStore is the persistence backend for GET/PUT /v1/capabilities.
type CapabilityStore interface {
	ListCapabilityAssignments(ctx context.Context) ([]types.CapabilityAssignment, error)
	Assign(capability, modelID string) error
}

// chatChoice is one entry of an OpenAI-compatible completion response.
// Message is set on batch responses, Delta on stream chunks.
type chatChoice struct {
	Index        int            `json:"index"`
	Message      *types.Message `json:"message,omitempty"`
	Delta        *types.Message `json:"delta,omitempty"`
	FinishReason *string        `json:"finish_reason"`
}

type chatCompletion struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *types.Usage `json:"usage,omitempty"`
}

// NewMux builds the chi router with all routes and middlewares. caps may
// be nil, in which case the capability endpoints report 503.
func NewMux(svc Service, caps CapabilityStore) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Post("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		handleChatCompletions(svc, w, r)
	})

	r.Get("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(types.ModelsResponse{Models: svc.ListModels()}); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	r.Get("/v1/capabilities", func(w http.ResponseWriter, r *http.Request) {
		if caps == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "capability store not configured")
			return
		}
		list, err := caps.ListCapabilityAssignments(r.Context())
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"assignments": list})
	})

	r.Put("/v1/capabilities", func(w http.ResponseWriter, r *http.Request) {
		if caps == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "capability store not configured")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var a types.CapabilityAssignment
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := caps.Assign(a.Capability, a.ModelID); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		// Assignment changes may leave the resident model unreferenced.
		released, err := svc.ReleaseIfUnreferenced(r.Context())
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"assigned": true, "released": released})
	})

	r.Post("/v1/unload", func(w http.ResponseWriter, r *http.Request) {
		prev := svc.LoadedModel()
		if r.URL.Query().Get("if_unused") == "1" {
			released, err := svc.ReleaseIfUnreferenced(r.Context())
			if err != nil {
				writeJSONError(w, http.StatusInternalServerError, err.Error())
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"unloaded": released, "model": prev})
			return
		}
		svc.Unload()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"unloaded": prev != "", "model": prev})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("closing"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// parsePriority reads the X-Request-Priority header. Absent means high so
// interactive callers win over backfill traffic that opts into low.
func parsePriority(r *http.Request) (scheduler.Priority, error) {
	switch strings.ToLower(r.Header.Get("X-Request-Priority")) {
	case "", "high":
		return scheduler.PriorityHigh, nil
	case "low":
		return scheduler.PriorityLow, nil
	default:
		return 0, fmt.Errorf("invalid X-Request-Priority, want low or high")
	}
}

func handleChatCompletions(svc Service, w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	pr, err := parsePriority(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	lvl := requestLogLevel(r)
	logChatStart(lvl, r, req.Model)

	t, err := svc.Enqueue(req, "", pr)
	if err != nil {
		status := writeSchedulerError(w, err)
		logChatEnd(lvl, r, status, start, err)
		return
	}
	// Once this handler returns nobody reads the ticket; tell the scheduler
	// so a disconnected client cannot stall the worker.
	defer t.Cancel()

	// Join server base context with request context so shutdown cancels
	// the wait too.
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	if req.Stream {
		streamChat(w, r, t, req.Model, ctx, lvl, start)
		return
	}

	res, err := t.Wait(ctx)
	if err != nil {
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			return
		}
		status := writeSchedulerError(w, err)
		logChatEnd(lvl, r, status, start, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fr := res.FinishReason
	_ = json.NewEncoder(w).Encode(chatCompletion{
		ID:      completionID(r),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{{
			Message:      &types.Message{Role: res.Role, Content: res.Text},
			FinishReason: &fr,
		}},
		Usage: &res.Usage,
	})
	logChatEnd(lvl, r, http.StatusOK, start, nil)
}

// streamChat relays ticket chunks as server-sent events, OpenAI style:
// one data: line per chunk, then data: [DONE].
func streamChat(w http.ResponseWriter, r *http.Request, t *scheduler.Ticket, model string, ctx context.Context, lvl LogLevel, start time.Time) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	writer := io.Writer(w)
	if lvl >= LevelDebug {
		writer = io.MultiWriter(w, &loggingLineWriter{})
	}
	id := completionID(r)
	created := time.Now().Unix()
	status := http.StatusOK
	var lastErr error
	for {
		select {
		case c, ok := <-t.Chunks():
			if !ok {
				fmt.Fprint(writer, "data: [DONE]\n\n")
				if flush != nil {
					flush()
				}
				logChatEnd(lvl, r, status, start, lastErr)
				return
			}
			if c.Err != nil {
				lastErr = c.Err
				status = statusForError(c.Err)
				writeSSE(writer, flush, map[string]any{
					"error": types.ErrorResponse{Error: c.Err.Error(), Code: status},
				})
				continue
			}
			choice := chatChoice{Delta: &types.Message{}}
			if c.Delta != "" {
				choice.Delta = &types.Message{Role: types.RoleAssistant, Content: c.Delta}
			}
			if c.FinishReason != "" {
				fr := c.FinishReason
				choice.FinishReason = &fr
			}
			writeSSE(writer, flush, chatCompletion{
				ID:      id,
				Object:  "chat.completion.chunk",
				Created: created,
				Model:   model,
				Choices: []chatChoice{choice},
			})
		case <-ctx.Done():
			// Client went away or the server is shutting down.
			logChatEnd(lvl, r, status, start, ctx.Err())
			return
		}
	}
}

func writeSSE(w io.Writer, flush func(), v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", b)
	if flush != nil {
		flush()
	}
}

func completionID(r *http.Request) string {
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		return "chatcmpl-" + rid
	}
	return fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano())
}

func logChatStart(lvl LogLevel, r *http.Request, model string) {
	if lvl < LevelInfo {
		return
	}
	if zlog != nil {
		z := zlog.Info().Str("path", r.URL.Path).Str("model", model)
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Msg("chat start")
		return
	}
	log.Printf("chat start path=%s model=%s", r.URL.Path, model)
}

func logChatEnd(lvl LogLevel, r *http.Request, status int, start time.Time, err error) {
	if lvl < LevelInfo {
		return
	}
	if zlog != nil {
		z := zlog.Info().Int("status", status).Dur("dur", time.Since(start))
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		if err != nil {
			z = z.Err(err)
		}
		z.Msg("chat end")
		return
	}
	if err != nil {
		log.Printf("chat end status=%d dur=%s err=%v", status, time.Since(start), err)
		return
	}
	log.Printf("chat end status=%d dur=%s", status, time.Since(start))
}
