package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"inferd/internal/httpapi"
	"inferd/internal/registry"
	"inferd/internal/scheduler"
	"inferd/pkg/types"
)

// createTempModelsDir creates a temporary directory populated with empty
// .gguf files and returns the directory path and the model IDs (filenames).
func createTempModelsDir(t *testing.T, names ...string) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, []byte(""), 0o644); err != nil {
			t.Fatalf("write temp model %s: %v", p, err)
		}
	}
	return dir, names
}

// echoEngine generates "echo: <last user message>" without any runtime.
type echoEngine struct{}

func (echoEngine) Load(ctx context.Context, m types.Model) (scheduler.ModelHandle, error) {
	return m.ID, nil
}

func (echoEngine) Unload(h scheduler.ModelHandle) error { return nil }

func echoText(req types.ChatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == types.RoleUser {
			return "echo: " + req.Messages[i].Content
		}
	}
	return "echo:"
}

func (echoEngine) GenerateBatch(ctx context.Context, h scheduler.ModelHandle, req types.ChatRequest) (*types.ChatResult, error) {
	return &types.ChatResult{Text: echoText(req), Role: types.RoleAssistant, FinishReason: "stop"}, nil
}

func (echoEngine) GenerateStream(ctx context.Context, h scheduler.ModelHandle, req types.ChatRequest) (scheduler.Stream, error) {
	text := echoText(req)
	var chunks []types.Chunk
	for i := 0; i < len(text); i += 5 {
		end := i + 5
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, types.Chunk{Delta: text[i:end]})
	}
	chunks = append(chunks, types.Chunk{FinishReason: "stop"})
	return &sliceStream{chunks: chunks}, nil
}

type sliceStream struct {
	chunks []types.Chunk
	cur    types.Chunk
	i      int
}

func (s *sliceStream) Next() bool {
	if s.i >= len(s.chunks) {
		return false
	}
	s.cur = s.chunks[s.i]
	s.i++
	return true
}

func (s *sliceStream) Current() types.Chunk { return s.cur }
func (s *sliceStream) Err() error           { return nil }
func (s *sliceStream) Close() error         { return nil }

// newServerForDir scans modelsDir, builds a scheduler over eng and serves
// the full HTTP API from an httptest server.
func newServerForDir(t *testing.T, modelsDir string, eng scheduler.Engine, caps httpapi.CapabilityStore, mutate func(*scheduler.Config)) (*httptest.Server, *scheduler.Scheduler) {
	t.Helper()
	reg, err := registry.LoadDir(modelsDir)
	if err != nil {
		t.Fatalf("scan models: %v", err)
	}
	cfg := scheduler.Config{Registry: reg, Engine: eng}
	if len(reg) > 0 {
		cfg.DefaultModel = reg[0].ID
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s := scheduler.New(cfg)
	t.Cleanup(func() { _ = s.Close() })
	srv := httptest.NewServer(httpapi.NewMux(s, caps))
	t.Cleanup(srv.Close)
	return srv, s
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpDo(t *testing.T, method, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	return httpDo(t, http.MethodPost, url, payload)
}
