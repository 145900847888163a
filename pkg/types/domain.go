package types

// Model is one gguf file discovered in the models directory.
type Model struct {
	// Stable identifier, derived from the filename.
	// example: tinyllama-q4
	ID string `json:"id" example:"tinyllama-q4"`
	// Display name.
	// example: TinyLlama (Q4)
	Name string `json:"name" example:"TinyLlama (Q4)"`
	// Absolute path of the gguf file.
	// example: /home/user/models/TinyLlama.Q4_K_M.gguf
	Path string `json:"path" example:"/home/user/models/TinyLlama.Q4_K_M.gguf"`
	// Quantization tag guessed from the filename, empty when unknown.
	// example: Q4_K_M
	Quant string `json:"quant,omitempty" example:"Q4_K_M"`
	// Model family guessed from the filename (llama, mistral, phi, ...).
	// example: llama
	Family string `json:"family,omitempty" example:"llama"`
}

// CapabilityAssignment binds a global capability slot (text, vision,
// structured output, tool use) to the model that currently serves it.
type CapabilityAssignment struct {
	// Capability slot name.
	// example: text
	Capability string `json:"capability" yaml:"capability" toml:"capability" example:"text"`
	// Identifier of the model assigned to the slot. Empty means unassigned.
	// example: tinyllama-q4
	ModelID string `json:"model_id" yaml:"model_id" toml:"model_id" example:"tinyllama-q4"`
}
