package types

// ChatRequest is the POST /chat payload. Optional sampling fields are
// pointers so the server can tell "omitted" from an explicit zero.
type ChatRequest struct {
	// Persona key: an adapter name, a prompt-only persona, or a base alias.
	// example: lawyer
	Persona string `json:"persona" example:"lawyer"`
	// Free-text user message.
	// example: Can my landlord keep my deposit?
	Message string `json:"message" example:"Can my landlord keep my deposit?"`
	// Optional assistant name used by the voice-style system prompt.
	// example: AVA
	AgentName string `json:"agent_name,omitempty" example:"AVA"`
	// Maximum number of new tokens to generate (default 32).
	// example: 64
	MaxNewTokens *int `json:"max_new_tokens,omitempty" example:"64"`
	// Sampling temperature, must be > 0 (default 0.2).
	// example: 0.3
	Temperature *float64 `json:"temperature,omitempty" example:"0.3"`
	// Nucleus sampling probability, 0 < top_p <= 1 (default 0.9).
	// example: 0.9
	TopP *float64 `json:"top_p,omitempty" example:"0.9"`
}

// ChatResponse is returned by POST /chat.
type ChatResponse struct {
	// Decoded reply with control tokens stripped.
	// example: Generally no, unless there is damage beyond normal wear.
	Response string `json:"response" example:"Generally no, unless there is damage beyond normal wear."`
	// Persona key that served the reply.
	// example: lawyer
	Persona string `json:"persona,omitempty" example:"lawyer"`
	// Token accounting, when the engine reports it.
	Usage *Usage `json:"usage,omitempty"`
}

// Usage contains token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// AdaptersResponse wraps GET /adapters.
type AdaptersResponse struct {
	// Adapter names currently resolvable, sorted.
	// example: ["doctor","lawyer"]
	Adapters []string `json:"adapters" example:"doctor,lawyer"`
}

// MessageResponse is the static payload of GET /.
type MessageResponse struct {
	Message string `json:"message" example:"personad running with persona adapters"`
}

// SwitchRequest is the POST /switch payload.
type SwitchRequest struct {
	// example: doctor
	Persona string `json:"persona" example:"doctor"`
}

// SwitchResponse acknowledges an asynchronous preload.
type SwitchResponse struct {
	// example: 1b4e28ba-2fa1-11d2-883f-0016d3cca427
	OpID string `json:"op_id" example:"1b4e28ba-2fa1-11d2-883f-0016d3cca427"`
	// example: doctor
	Persona string `json:"persona" example:"doctor"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: persona not found: pirate
	Error string `json:"error" example:"persona not found: pirate"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
	// Pipeline stage that failed, when known.
	// example: merge
	Stage string `json:"stage,omitempty" example:"merge"`
}

// SlotStatus describes the resident model slot.
type SlotStatus struct {
	// Persona key the slot serves; "base" for the unmodified base model.
	// example: lawyer
	Persona string `json:"persona"`
	// Lifecycle state (loading, ready, error).
	// example: ready
	State string `json:"state" example:"ready"`
	// Weights precision or quantization type.
	// example: Q8_0
	Precision string `json:"precision,omitempty" example:"Q8_0"`
	// Unix seconds when the slot became ready.
	// example: 1700000000
	LoadedAt int64 `json:"loaded_at_unix" example:"1700000000"`
	// Last time this slot served a request (unix seconds).
	// example: 1700000000
	LastUsed int64 `json:"last_used_unix" example:"1700000000"`
	// Leases currently held on the slot.
	// example: 1
	Leases int `json:"leases" example:"1"`
	// Requests waiting for a generation slot.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// Generations currently running.
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// Maximum queued requests allowed before backpressure triggers.
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Resident slot, nil before the first load completes.
	Slot *SlotStatus `json:"slot,omitempty"`
	// Persona currently being loaded, if any.
	// example: doctor
	Loading string `json:"loading,omitempty" example:"doctor"`
	// Overall cache state (e.g., loading, ready, error).
	// example: ready
	State string `json:"state" example:"ready"`
	// Last error observed by the cache (if any).
	LastError string `json:"last_error,omitempty"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Total number of completed persona loads.
	// example: 12
	LoadsTotal uint64 `json:"loads_total" example:"12"`
	// Total number of resident models replaced.
	// example: 11
	EvictionsTotal uint64 `json:"evictions_total" example:"11"`
	// Requests served from the resident slot.
	// example: 40
	HitsTotal uint64 `json:"hits_total" example:"40"`
	// Requests that required a load.
	// example: 12
	MissesTotal uint64 `json:"misses_total" example:"12"`
	// Engine dependency checks.
	Sanity *SanityReport `json:"sanity,omitempty"`
}

// SanityReport describes runtime checks for external dependencies.
type SanityReport struct {
	Runtime   string            `json:"runtime"`
	BaseModel string            `json:"base_model"`
	BaseFound bool              `json:"base_found"`
	Binaries  map[string]string `json:"binaries,omitempty"`
	Missing   []string          `json:"missing,omitempty"`
	Error     string            `json:"error,omitempty"`
}
