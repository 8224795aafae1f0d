package types

// Adapter is a fine-tuned weight delta published under the adapters root.
// One immediate subdirectory of the root is one adapter; its directory name
// is the persona key that selects it.
type Adapter struct {
	// Directory name, used as persona key.
	// example: lawyer
	Name string `json:"name" example:"lawyer"`
	// Absolute path to the adapter directory.
	// example: /srv/adapters/lawyer
	Dir string `json:"dir" example:"/srv/adapters/lawyer"`
	// GGUF LoRA payload inside Dir. Empty when the directory holds no payload.
	// example: /srv/adapters/lawyer/adapter.gguf
	File string `json:"file,omitempty" example:"/srv/adapters/lawyer/adapter.gguf"`
	// Optional PEFT training metadata (adapter_config.json).
	Config *AdapterConfig `json:"config,omitempty"`
}

// AdapterConfig is the subset of a PEFT adapter_config.json we act on.
type AdapterConfig struct {
	BaseModel     string   `json:"base_model_name_or_path,omitempty"`
	PeftType      string   `json:"peft_type,omitempty"`
	Rank          int      `json:"r,omitempty"`
	Alpha         float64  `json:"lora_alpha,omitempty"`
	TargetModules []string `json:"target_modules,omitempty"`
}

// Scale returns the LoRA scaling factor alpha/r, or 1 when either is unset.
func (c *AdapterConfig) Scale() float64 {
	if c == nil || c.Rank <= 0 || c.Alpha <= 0 {
		return 1
	}
	return c.Alpha / float64(c.Rank)
}
