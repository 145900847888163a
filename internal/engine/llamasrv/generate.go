package llamasrv

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/packages/ssestream"

	"inferd/internal/scheduler"
	"inferd/pkg/types"
)

func toOpenAIMessages(msgs []types.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, len(msgs))
	for i, m := range msgs {
		switch m.Role {
		case types.RoleUser:
			out[i] = openai.UserMessage(m.Content)
		case types.RoleSystem:
			out[i] = openai.SystemMessage(m.Content)
		default: // fallback to assistant message type
			out[i] = openai.AssistantMessage(m.Content)
		}
	}
	return out
}

func (h *handle) completionParams(req types.ChatRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages: toOpenAIMessages(req.Messages),
		Model:    h.model.ID,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}
	return params
}

// GenerateBatch runs one full completion against the spawned server.
func (a *Adapter) GenerateBatch(ctx context.Context, mh scheduler.ModelHandle, req types.ChatRequest) (*types.ChatResult, error) {
	h := mh.(*handle)
	comp, err := h.client.Chat.Completions.New(ctx, h.completionParams(req))
	if err != nil {
		return nil, err
	}
	if len(comp.Choices) == 0 {
		return nil, fmt.Errorf("completion returned no choices")
	}
	choice := comp.Choices[0]
	return &types.ChatResult{
		Text:         choice.Message.Content,
		Role:         types.RoleAssistant,
		FinishReason: string(choice.FinishReason),
		Usage: types.Usage{
			PromptTokens:     int(comp.Usage.PromptTokens),
			CompletionTokens: int(comp.Usage.CompletionTokens),
			TotalTokens:      int(comp.Usage.TotalTokens),
		},
	}, nil
}

// GenerateStream starts a streaming completion. The returned stream adapts
// the server-sent events to scheduler chunks.
func (a *Adapter) GenerateStream(ctx context.Context, mh scheduler.ModelHandle, req types.ChatRequest) (scheduler.Stream, error) {
	h := mh.(*handle)
	inner := h.client.Chat.Completions.NewStreaming(ctx, h.completionParams(req))
	return &sseStream{inner: inner}, nil
}

// sseStream adapts an openai-go event stream to the scheduler's Stream.
type sseStream struct {
	inner *ssestream.Stream[openai.ChatCompletionChunk]
	cur   types.Chunk
}

func (s *sseStream) Next() bool {
	for s.inner.Next() {
		ev := s.inner.Current()
		if len(ev.Choices) == 0 {
			continue
		}
		choice := ev.Choices[0]
		if choice.Delta.Content == "" && choice.FinishReason == "" {
			continue
		}
		s.cur = types.Chunk{Delta: choice.Delta.Content, FinishReason: choice.FinishReason}
		return true
	}
	return false
}

func (s *sseStream) Current() types.Chunk { return s.cur }
func (s *sseStream) Err() error           { return s.inner.Err() }
func (s *sseStream) Close() error         { return s.inner.Close() }
