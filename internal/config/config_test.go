package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: "https://api.example.com"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != ModePaper {
		t.Errorf("Mode = %q, want paper", cfg.Mode)
	}
	if cfg.Engine.CycleInterval != 10*time.Second {
		t.Errorf("CycleInterval = %v, want 10s", cfg.Engine.CycleInterval)
	}
	if cfg.Engine.TopKAdmitted != 3 {
		t.Errorf("TopKAdmitted = %d, want 3", cfg.Engine.TopKAdmitted)
	}
	if cfg.Scanner.Concurrency != 20 {
		t.Errorf("Concurrency = %d, want 20", cfg.Scanner.Concurrency)
	}
	if cfg.Risk.KellyFraction != 0.25 {
		t.Errorf("KellyFraction = %v, want 0.25", cfg.Risk.KellyFraction)
	}
	if cfg.Executor.OrderDeadline != 2*time.Second {
		t.Errorf("OrderDeadline = %v, want 2s", cfg.Executor.OrderDeadline)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := writeConfig(t, `
mode: paper
api:
  base_url: "https://api.example.com"
engine:
  cycle_interval: 30s
  top_k_admitted: 5
risk:
  kelly_fraction: 0.10
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.CycleInterval != 30*time.Second {
		t.Errorf("CycleInterval = %v, want 30s", cfg.Engine.CycleInterval)
	}
	if cfg.Engine.TopKAdmitted != 5 {
		t.Errorf("TopKAdmitted = %d, want 5", cfg.Engine.TopKAdmitted)
	}
	if cfg.Risk.KellyFraction != 0.10 {
		t.Errorf("KellyFraction = %v, want 0.10", cfg.Risk.KellyFraction)
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Setenv("KLASHI_API_KEY", "secret-from-env")
	path := writeConfig(t, `
api:
  base_url: "https://api.example.com"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.ApiKey != "secret-from-env" {
		t.Errorf("ApiKey = %q, want env value", cfg.API.ApiKey)
	}
}

func TestModeFromEnv(t *testing.T) {
	t.Setenv("KLASHI_MODE", "live")
	t.Setenv("KLASHI_API_KEY", "k")
	path := writeConfig(t, `
api:
  base_url: "https://api.example.com"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != ModeLive {
		t.Errorf("Mode = %q, want live", cfg.Mode)
	}
}

func TestValidateRejects(t *testing.T) {
	base := func() *Config {
		path := writeConfig(t, `
api:
  base_url: "https://api.example.com"
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "dry-run" }},
		{"missing base url", func(c *Config) { c.API.BaseURL = "" }},
		{"live without api key", func(c *Config) { c.Mode = ModeLive; c.API.ApiKey = "" }},
		{"sub-second interval", func(c *Config) { c.Engine.CycleInterval = 500 * time.Millisecond }},
		{"zero top k", func(c *Config) { c.Engine.TopKAdmitted = 0 }},
		{"concurrency too high", func(c *Config) { c.Scanner.Concurrency = 65 }},
		{"market limit too high", func(c *Config) { c.Scanner.MarketLimit = 501 }},
		{"kelly out of range", func(c *Config) { c.Risk.KellyFraction = 0.60 }},
		{"negative min edge", func(c *Config) { c.Risk.MinEdgePct = -1 }},
		{"zero order deadline", func(c *Config) { c.Executor.OrderDeadline = 0 }},
	}
	for _, tc := range cases {
		cfg := base()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}
