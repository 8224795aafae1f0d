package manager

import (
	"time"

	"github.com/rs/zerolog"

	"personad/internal/engine"
	"personad/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
	defaultParallel      = 1
	defaultDrainTimeout  = 10 * time.Second
	defaultLoadTimeout   = 15 * time.Minute
)

// Resolver looks up adapters by persona name. *registry.Registry satisfies it.
type Resolver interface {
	Resolve(name string) (types.Adapter, error)
}

// Config encapsulates all tunables for Manager construction.
type Config struct {
	Engine   engine.Engine
	Registry Resolver

	// Persona keys that select the unmodified base model. "" always does.
	BaseAliases []string
	// Personas served by the base model with a persona prompt only.
	PromptPersonas []string
	// AllowPromptOnly serves any unknown persona as prompt-only.
	AllowPromptOnly bool

	MaxQueueDepth int
	MaxWait       time.Duration
	Parallel      int
	DrainTimeout  time.Duration
	LoadTimeout   time.Duration

	Publisher EventPublisher
	Logger    *zerolog.Logger
}

func (c *Config) applyDefaults() {
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = defaultMaxQueueDepth
	}
	if c.MaxWait <= 0 {
		c.MaxWait = defaultMaxWait
	}
	if c.Parallel <= 0 {
		c.Parallel = defaultParallel
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = defaultDrainTimeout
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = defaultLoadTimeout
	}
	if c.Publisher == nil {
		c.Publisher = noopPublisher{}
	}
}
