package config

import (
	"strings"
	"testing"
)

func TestLoad_NonexistentFile(t *testing.T) {
	if _, err := Load("/definitely/not/a/real/file-12345.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "bad.yaml", "addr: :8080\n: broken\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected YAML unmarshal error")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "bad.json", `{ "addr": ":8080", "adapters_dir": }`)
	if _, err := Load(p); err == nil {
		t.Fatalf("expected JSON unmarshal error")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "bad.toml", "addr=:8080\nadapters_dir\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected TOML unmarshal error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PERSONAD_ADDR", ":1234")
	t.Setenv("PERSONAD_BASE_MODEL", "/m/base-f16.gguf")
	t.Setenv("PERSONAD_LLAMA_BIN_DIR", "/opt/llama/bin")
	t.Setenv("PERSONAD_THREADS", "8")
	t.Setenv("PERSONAD_VOICE_ENABLED", "true")
	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Addr != ":1234" || cfg.Engine.BaseModel != "/m/base-f16.gguf" || cfg.Engine.Threads != 8 || !cfg.Voice.Enabled {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.Engine.QuantizeBin != "/opt/llama/bin/llama-quantize" {
		t.Fatalf("bin dir not applied: %q", cfg.Engine.QuantizeBin)
	}
}

func TestApplyEnvRejectsBadThreads(t *testing.T) {
	for _, v := range []string{"eight", "-2", "4.5"} {
		t.Setenv("PERSONAD_THREADS", v)
		cfg := Default()
		cfg.Engine.Threads = 3
		err := cfg.ApplyEnv()
		if err == nil || !strings.Contains(err.Error(), "PERSONAD_THREADS") {
			t.Fatalf("%q: expected PERSONAD_THREADS error, got %v", v, err)
		}
		if cfg.Engine.Threads != 3 {
			t.Fatalf("%q: threads changed to %d", v, cfg.Engine.Threads)
		}
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"runtime":     func(c *Config) { c.Engine.Runtime = "cuda" },
		"temperature": func(c *Config) { c.Generation.Temperature = 0 },
		"top_p":       func(c *Config) { c.Generation.TopP = 1.5 },
		"max_tokens":  func(c *Config) { c.Generation.MaxNewTokens = 4096 },
		"ports":       func(c *Config) { c.Engine.PortStart, c.Engine.PortEnd = 9000, 8000 },
		"rps":         func(c *Config) { c.HTTP.RateLimit.RPS = -1 },
	}
	for name, mut := range cases {
		cfg := Default()
		mut(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
