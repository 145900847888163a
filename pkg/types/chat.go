package types

// Role values accepted in chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single role-tagged chat message.
type Message struct {
	// Message role: system, user or assistant.
	// example: user
	Role string `json:"role" example:"user"`
	// Message text content.
	// example: Write a haiku about the ocean.
	Content string `json:"content" example:"Write a haiku about the ocean."`
}

// ChatRequest is the payload carried by a queued inference request.
// Field names follow the OpenAI chat completions wire format.
type ChatRequest struct {
	// Optional model identifier. If empty, the server default is used.
	// example: tinyllama-q4
	Model string `json:"model,omitempty" example:"tinyllama-q4"`
	// Ordered list of chat messages.
	Messages []Message `json:"messages"`
	// Sampling temperature (higher = more random).
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// Maximum number of new tokens to generate.
	// example: 512
	MaxTokens int `json:"max_tokens,omitempty" example:"512"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP float64 `json:"top_p,omitempty" example:"0.9"`
	// If true, results are delivered incrementally as chunks.
	// example: true
	Stream bool `json:"stream,omitempty" example:"true"`
}

// Usage contains token accounting for a completed generation.
type Usage struct {
	// example: 12
	PromptTokens int `json:"prompt_tokens" example:"12"`
	// example: 34
	CompletionTokens int `json:"completion_tokens" example:"34"`
	// example: 46
	TotalTokens int `json:"total_tokens" example:"46"`
}

// ChatResult is the final outcome of one generation, batch or streamed.
type ChatResult struct {
	// Full generated text.
	Text string `json:"text"`
	// Role of the generated message, always assistant.
	// example: assistant
	Role string `json:"role" example:"assistant"`
	// Why generation ended: stop or length.
	// example: stop
	FinishReason string `json:"finish_reason" example:"stop"`
	// Token accounting.
	Usage Usage `json:"usage"`
}

// Chunk is one element of a streamed generation. Exactly one of Delta or
// FinishReason is set on chunks delivered to callers; a terminal error is
// carried by Err and never serialized.
type Chunk struct {
	// Incremental text content.
	Delta string `json:"delta,omitempty"`
	// Set on the terminal chunk: stop or length.
	FinishReason string `json:"finish_reason,omitempty"`
	// Terminal error, if the stream failed mid-way.
	Err error `json:"-"`
}
