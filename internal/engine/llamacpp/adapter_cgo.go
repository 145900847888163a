//go:build llama

package llamacpp

import (
	"context"
	"errors"
	"io"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"

	"inferd/internal/scheduler"
	"inferd/pkg/types"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

var _ scheduler.Engine = (*Adapter)(nil)

type handle struct {
	model *llama.LLama
	id    string
}

// Load loads the gguf file in-process.
func (a *Adapter) Load(ctx context.Context, mdl types.Model) (scheduler.ModelHandle, error) {
	if strings.TrimSpace(mdl.Path) == "" {
		return nil, errors.New("model path is empty")
	}
	m, err := llama.New(mdl.Path, llama.SetContext(a.ctxSize))
	if err != nil {
		return nil, err
	}
	return &handle{model: m, id: mdl.ID}, nil
}

// Unload frees the in-process model.
func (a *Adapter) Unload(h scheduler.ModelHandle) error {
	hd := h.(*handle)
	if hd.model != nil {
		hd.model.Free()
		hd.model = nil
	}
	return nil
}

func (a *Adapter) predictOptions(req types.ChatRequest) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetThreads(maxInt(1, a.threads)),
	}
	if req.MaxTokens > 0 {
		po = append(po, llama.SetTokens(req.MaxTokens))
	}
	if req.Temperature > 0 {
		po = append(po, llama.SetTemperature(float32(req.Temperature)))
	}
	if req.TopP > 0 {
		po = append(po, llama.SetTopP(float32(req.TopP)))
	}
	return po
}

// flattenPrompt renders chat messages into a plain prompt; llama.cpp applies
// no chat template through this binding.
func flattenPrompt(msgs []types.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString(types.RoleAssistant)
	b.WriteString(": ")
	return b.String()
}

func (a *Adapter) GenerateBatch(ctx context.Context, mh scheduler.ModelHandle, req types.ChatRequest) (*types.ChatResult, error) {
	h := mh.(*handle)
	if h.model == nil {
		return nil, errors.New("llama model not initialized")
	}
	h.model.SetTokenCallback(func(string) bool { return ctx.Err() == nil })
	text, err := h.model.Predict(flattenPrompt(req.Messages), a.predictOptions(req)...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return &types.ChatResult{
		Text:         text,
		Role:         types.RoleAssistant,
		FinishReason: "stop",
	}, nil
}

func (a *Adapter) GenerateStream(ctx context.Context, mh scheduler.ModelHandle, req types.ChatRequest) (scheduler.Stream, error) {
	h := mh.(*handle)
	if h.model == nil {
		return nil, errors.New("llama model not initialized")
	}
	st := &tokenStream{tokens: make(chan string, 16), done: make(chan error, 1)}
	h.model.SetTokenCallback(func(tok string) bool {
		select {
		case st.tokens <- tok:
			return true
		case <-ctx.Done():
			return false
		}
	})
	go func() {
		_, err := h.model.Predict(flattenPrompt(req.Messages), a.predictOptions(req)...)
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		close(st.tokens)
		st.done <- err
	}()
	return st, nil
}

// tokenStream bridges the callback-style binding to the pull-style Stream.
type tokenStream struct {
	tokens chan string
	done   chan error
	cur    types.Chunk
	err    error
	ended  bool
}

func (st *tokenStream) Next() bool {
	if st.ended {
		return false
	}
	tok, ok := <-st.tokens
	if !ok {
		st.ended = true
		if err := <-st.done; err != nil && !errors.Is(err, io.EOF) {
			st.err = err
			return false
		}
		st.cur = types.Chunk{FinishReason: "stop"}
		return true
	}
	st.cur = types.Chunk{Delta: tok}
	return true
}

func (st *tokenStream) Current() types.Chunk { return st.cur }
func (st *tokenStream) Err() error           { return st.err }
func (st *tokenStream) Close() error         { return nil }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
