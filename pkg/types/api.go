package types

// ModelsResponse wraps the list of models returned by GET /v1/models.
type ModelsResponse struct {
	// List of available models.
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Identifier of the resident model, empty when nothing is loaded.
	// example: tinyllama-q4
	LoadedModel string `json:"loaded_model,omitempty" example:"tinyllama-q4"`
	// Worker state: running or stopped.
	// example: running
	WorkerState string `json:"worker_state" example:"running"`
	// Number of requests waiting in the queue.
	// example: 2
	QueueLen int `json:"queue_len" example:"2"`
	// Maximum queued requests allowed before backpressure triggers.
	// example: 256
	MaxQueueDepth int `json:"max_queue_depth" example:"256"`
	// Total number of model loads since start.
	// example: 12
	LoadsTotal uint64 `json:"loads_total" example:"12"`
	// Total number of model unloads since start.
	// example: 11
	UnloadsTotal uint64 `json:"unloads_total" example:"11"`
	// Total completed generations since start.
	// example: 40
	GenerationsTotal uint64 `json:"generations_total" example:"40"`
	// Last error observed by the scheduler (if any).
	LastError string `json:"last_error,omitempty"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
