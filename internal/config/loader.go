package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified"; Default() supplies a complete baseline and
// LoadWithDefaults layers a file on top of it.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`

	AdaptersDir   string `json:"adapters_dir" yaml:"adapters_dir" toml:"adapters_dir"`
	AdaptersCache bool   `json:"adapters_cache" yaml:"adapters_cache" toml:"adapters_cache"`
	// Persona keys that select the unmodified base model.
	BaseAliases []string `json:"base_aliases" yaml:"base_aliases" toml:"base_aliases"`
	// Personas served by the base model with a persona prompt only.
	PromptPersonas  []string `json:"prompt_personas" yaml:"prompt_personas" toml:"prompt_personas"`
	AllowPromptOnly bool     `json:"allow_prompt_only" yaml:"allow_prompt_only" toml:"allow_prompt_only"`
	AssistantName   string   `json:"assistant_name" yaml:"assistant_name" toml:"assistant_name"`
	WarmBase        bool     `json:"warm_base" yaml:"warm_base" toml:"warm_base"`

	Engine     Engine     `json:"engine" yaml:"engine" toml:"engine"`
	Generation Generation `json:"generation" yaml:"generation" toml:"generation"`
	Queue      Queue      `json:"queue" yaml:"queue" toml:"queue"`
	HTTP       HTTP       `json:"http" yaml:"http" toml:"http"`
	Voice      Voice      `json:"voice" yaml:"voice" toml:"voice"`
	Telemetry  Telemetry  `json:"telemetry" yaml:"telemetry" toml:"telemetry"`
}

// Engine configures the llama.cpp toolchain and runtime.
type Engine struct {
	// Runtime backend: "server" (llama-server subprocess) or "inproc" (go-llama.cpp, -tags=llama).
	Runtime string `json:"runtime" yaml:"runtime" toml:"runtime"`
	// Full-precision base model (GGUF). Merges always start from this file.
	BaseModel string `json:"base_model" yaml:"base_model" toml:"base_model"`
	// Quantization type applied after merge, e.g. Q8_0 or Q4_K_M.
	QuantType string `json:"quant_type" yaml:"quant_type" toml:"quant_type"`
	// Scratch directory for merged and quantized weights.
	WorkDir string `json:"work_dir" yaml:"work_dir" toml:"work_dir"`

	ServerBin     string   `json:"server_bin" yaml:"server_bin" toml:"server_bin"`
	ExportLoraBin string   `json:"export_lora_bin" yaml:"export_lora_bin" toml:"export_lora_bin"`
	QuantizeBin   string   `json:"quantize_bin" yaml:"quantize_bin" toml:"quantize_bin"`
	Host          string   `json:"host" yaml:"host" toml:"host"`
	PortStart     int      `json:"port_start" yaml:"port_start" toml:"port_start"`
	PortEnd       int      `json:"port_end" yaml:"port_end" toml:"port_end"`
	CtxSize       int      `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size"`
	Threads       int      `json:"threads" yaml:"threads" toml:"threads"`
	NGL           int      `json:"ngl" yaml:"ngl" toml:"ngl"`
	ExtraArgs     []string `json:"extra_args" yaml:"extra_args" toml:"extra_args"`

	ReadyTimeoutSeconds   int `json:"ready_timeout_seconds" yaml:"ready_timeout_seconds" toml:"ready_timeout_seconds"`
	RequestTimeoutSeconds int `json:"request_timeout_seconds" yaml:"request_timeout_seconds" toml:"request_timeout_seconds"`
	LoadTimeoutSeconds    int `json:"load_timeout_seconds" yaml:"load_timeout_seconds" toml:"load_timeout_seconds"`
}

// Generation holds request defaults and limits.
type Generation struct {
	MaxNewTokens      int     `json:"max_new_tokens" yaml:"max_new_tokens" toml:"max_new_tokens"`
	Temperature       float64 `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopP              float64 `json:"top_p" yaml:"top_p" toml:"top_p"`
	MaxNewTokensLimit int     `json:"max_new_tokens_limit" yaml:"max_new_tokens_limit" toml:"max_new_tokens_limit"`
}

// Queue bounds generation admission per resident model.
type Queue struct {
	MaxDepth       int `json:"max_depth" yaml:"max_depth" toml:"max_depth"`
	MaxWaitMs      int `json:"max_wait_ms" yaml:"max_wait_ms" toml:"max_wait_ms"`
	Parallel       int `json:"parallel" yaml:"parallel" toml:"parallel"`
	DrainTimeoutMs int `json:"drain_timeout_ms" yaml:"drain_timeout_ms" toml:"drain_timeout_ms"`
}

// HTTP configures the API server.
type HTTP struct {
	MaxBodyBytes          int64     `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	MaxUploadBytes        int64     `json:"max_upload_bytes" yaml:"max_upload_bytes" toml:"max_upload_bytes"`
	RequestTimeoutSeconds int64     `json:"request_timeout_seconds" yaml:"request_timeout_seconds" toml:"request_timeout_seconds"`
	CORS                  CORS      `json:"cors" yaml:"cors" toml:"cors"`
	RateLimit             RateLimit `json:"rate_limit" yaml:"rate_limit" toml:"rate_limit"`
}

// CORS is enabled with permissive defaults.
type CORS struct {
	Enabled          bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	AllowedOrigins   []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods" yaml:"allowed_methods" toml:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers" yaml:"allowed_headers" toml:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials" yaml:"allow_credentials" toml:"allow_credentials"`
}

// RateLimit applies a token bucket to generation endpoints. RPS 0 disables it.
type RateLimit struct {
	RPS   float64 `json:"rps" yaml:"rps" toml:"rps"`
	Burst int     `json:"burst" yaml:"burst" toml:"burst"`
}

// Voice configures the speech round-trip endpoint.
type Voice struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	STTURL      string `json:"stt_url" yaml:"stt_url" toml:"stt_url"`
	STTModel    string `json:"stt_model" yaml:"stt_model" toml:"stt_model"`
	TTSURL      string `json:"tts_url" yaml:"tts_url" toml:"tts_url"`
	TTSModel    string `json:"tts_model" yaml:"tts_model" toml:"tts_model"`
	TTSVoice    string `json:"tts_voice" yaml:"tts_voice" toml:"tts_voice"`
	OllamaURL   string `json:"ollama_url" yaml:"ollama_url" toml:"ollama_url"`
	OllamaModel string `json:"ollama_model" yaml:"ollama_model" toml:"ollama_model"`
	NumPredict  int    `json:"num_predict" yaml:"num_predict" toml:"num_predict"`
}

// Telemetry configures OpenTelemetry tracing export.
type Telemetry struct {
	Enabled      bool    `json:"enabled" yaml:"enabled" toml:"enabled"`
	OTLPEndpoint string  `json:"otlp_endpoint" yaml:"otlp_endpoint" toml:"otlp_endpoint"`
	ServiceName  string  `json:"service_name" yaml:"service_name" toml:"service_name"`
	SampleRate   float64 `json:"sample_rate" yaml:"sample_rate" toml:"sample_rate"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Addr:          ":8000",
		LogLevel:      "info",
		LogFormat:     "console",
		AdaptersDir:   "./adapters",
		BaseAliases:   []string{"none", "base"},
		AssistantName: "AVA",
		WarmBase:      true,
		Engine: Engine{
			Runtime:               "server",
			QuantType:             "Q8_0",
			WorkDir:               filepath.Join(os.TempDir(), "personad"),
			ServerBin:             "llama-server",
			ExportLoraBin:         "llama-export-lora",
			QuantizeBin:           "llama-quantize",
			Host:                  "127.0.0.1",
			Threads:               4,
			ReadyTimeoutSeconds:   60,
			RequestTimeoutSeconds: 300,
			LoadTimeoutSeconds:    900,
		},
		Generation: Generation{
			MaxNewTokens:      32,
			Temperature:       0.2,
			TopP:              0.9,
			MaxNewTokensLimit: 1024,
		},
		Queue: Queue{
			MaxDepth:       32,
			MaxWaitMs:      30000,
			Parallel:       1,
			DrainTimeoutMs: 10000,
		},
		HTTP: HTTP{
			MaxBodyBytes:   1 << 20,
			MaxUploadBytes: 25 << 20,
			CORS: CORS{
				Enabled:          true,
				AllowedOrigins:   []string{"*"},
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   []string{"*"},
				AllowCredentials: true,
			},
		},
		Voice: Voice{
			STTURL:      "http://127.0.0.1:8001",
			STTModel:    "whisper-1",
			TTSURL:      "http://127.0.0.1:8002",
			TTSModel:    "tts-1",
			TTSVoice:    "alloy",
			OllamaURL:   "http://127.0.0.1:11434",
			OllamaModel: "gemma:2b",
			NumPredict:  128,
		},
		Telemetry: Telemetry{
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "personad",
			SampleRate:   1,
		},
	}
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	err := decodeFile(path, &cfg)
	return cfg, err
}

// LoadWithDefaults decodes path on top of Default(). Fields absent from the
// file keep their default values. An empty path returns the defaults.
func LoadWithDefaults(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	err := decodeFile(path, &cfg)
	return cfg, err
}

func decodeFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, cfg)
	case ".json":
		err = json.Unmarshal(b, cfg)
	case ".toml":
		err = toml.Unmarshal(b, cfg)
	default:
		return fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays PERSONAD_* environment variables onto cfg. A value that
// does not parse is an error and leaves the field unchanged.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("PERSONAD_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("PERSONAD_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("PERSONAD_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("PERSONAD_ADAPTERS_DIR"); v != "" {
		c.AdaptersDir = v
	}
	if v := os.Getenv("PERSONAD_BASE_MODEL"); v != "" {
		c.Engine.BaseModel = v
	}
	if v := os.Getenv("PERSONAD_RUNTIME"); v != "" {
		c.Engine.Runtime = v
	}
	if v := os.Getenv("PERSONAD_QUANT_TYPE"); v != "" {
		c.Engine.QuantType = v
	}
	if v := os.Getenv("PERSONAD_WORK_DIR"); v != "" {
		c.Engine.WorkDir = v
	}
	if v := os.Getenv("PERSONAD_LLAMA_BIN_DIR"); v != "" {
		c.Engine.ServerBin = filepath.Join(v, "llama-server")
		c.Engine.ExportLoraBin = filepath.Join(v, "llama-export-lora")
		c.Engine.QuantizeBin = filepath.Join(v, "llama-quantize")
	}
	var errs []error
	if v := os.Getenv("PERSONAD_THREADS"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("PERSONAD_THREADS: want a non-negative integer, got %q", v))
		} else {
			c.Engine.Threads = n
		}
	}
	if v := os.Getenv("PERSONAD_VOICE_ENABLED"); v != "" {
		c.Voice.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" && c.Voice.OllamaURL == Default().Voice.OllamaURL {
		c.Voice.OllamaURL = v
	}
	return errors.Join(errs...)
}

// Validate rejects values the service cannot run with.
func (c Config) Validate() error {
	switch c.Engine.Runtime {
	case "server", "inproc":
	default:
		return fmt.Errorf("engine.runtime must be server or inproc, got %q", c.Engine.Runtime)
	}
	g := c.Generation
	if g.MaxNewTokens <= 0 || g.MaxNewTokensLimit <= 0 || g.MaxNewTokens > g.MaxNewTokensLimit {
		return fmt.Errorf("generation: max_new_tokens must be in (0, %d], got %d", g.MaxNewTokensLimit, g.MaxNewTokens)
	}
	if g.Temperature <= 0 {
		return fmt.Errorf("generation: temperature must be > 0, got %v", g.Temperature)
	}
	if g.TopP <= 0 || g.TopP > 1 {
		return fmt.Errorf("generation: top_p must be in (0, 1], got %v", g.TopP)
	}
	if c.Engine.PortStart > 0 && c.Engine.PortEnd < c.Engine.PortStart {
		return fmt.Errorf("engine: port_end %d < port_start %d", c.Engine.PortEnd, c.Engine.PortStart)
	}
	if c.Queue.Parallel < 0 || c.Queue.MaxDepth < 0 {
		return fmt.Errorf("queue: parallel and max_depth must be >= 0")
	}
	if c.HTTP.RateLimit.RPS < 0 {
		return fmt.Errorf("http.rate_limit.rps must be >= 0")
	}
	return nil
}

// MaxWait returns the queue wait bound as a duration.
func (q Queue) MaxWait() time.Duration { return time.Duration(q.MaxWaitMs) * time.Millisecond }

// DrainTimeout returns the shutdown drain bound as a duration.
func (q Queue) DrainTimeout() time.Duration {
	return time.Duration(q.DrainTimeoutMs) * time.Millisecond
}
