// Package config defines all configuration for the trading bot.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via KLASHI_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Snapwave333/klashibot-sub000/pkg/types"
)

// Mode selects the execution backend.
const (
	ModePaper = "paper" // deterministic simulator, no real orders
	ModeLive  = "live"  // real exchange REST client
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Mode      string           `mapstructure:"mode"`
	API       APIConfig        `mapstructure:"api"`
	Engine    EngineConfig     `mapstructure:"engine"`
	Scanner   ScannerConfig    `mapstructure:"scanner"`
	Cache     CacheConfig      `mapstructure:"cache"`
	Risk      types.RiskParams `mapstructure:"risk"`
	Executor  ExecutorConfig   `mapstructure:"executor"`
	Reasoning ReasoningConfig  `mapstructure:"reasoning"`
	Store     StoreConfig      `mapstructure:"store"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Dashboard DashboardConfig  `mapstructure:"dashboard"`
}

// APIConfig holds the exchange REST endpoint and credentials.
// ApiKey is usually supplied via KLASHI_API_KEY rather than the YAML file.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	ApiKey  string `mapstructure:"api_key"`
}

// EngineConfig tunes the cycle scheduler.
//
//   - CycleInterval: time between cycle starts (>= 1s).
//   - TopKAdmitted:  how many risk-approved opportunities are retained per cycle.
//   - PaperCash:     starting cash in cents for paper mode.
type EngineConfig struct {
	CycleInterval time.Duration `mapstructure:"cycle_interval"`
	TopKAdmitted  int           `mapstructure:"top_k_admitted"`
	PaperCash     int64         `mapstructure:"paper_cash"`
}

// ScannerConfig controls market discovery and pre-filtering.
type ScannerConfig struct {
	Concurrency     int   `mapstructure:"concurrency"`  // parallel book fetches, 1..64
	MarketLimit     int   `mapstructure:"market_limit"` // list_open_markets limit, 1..500
	MinVolume       int64 `mapstructure:"min_volume"`
	MinOpenInterest int64 `mapstructure:"min_open_interest"`
}

// CacheConfig sets TTLs and the per-instance size bound.
type CacheConfig struct {
	MarketsTTL     time.Duration `mapstructure:"markets_ttl"`
	OpportunityTTL time.Duration `mapstructure:"opportunity_ttl"`
	MaxSize        int           `mapstructure:"max_size"`
}

// ExecutorConfig tunes order submission.
type ExecutorConfig struct {
	OrderDeadline time.Duration `mapstructure:"order_deadline"`
	ImpactWindow  int           `mapstructure:"impact_window"` // fills kept per ticker-side
}

// ReasoningConfig points at the external reasoner. An empty Endpoint selects
// the built-in rule-based reasoner.
type ReasoningConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Deadline time.Duration `mapstructure:"deadline"`
}

// StoreConfig sets where the trade audit log and risk-param snapshots live.
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the observer HTTP/WebSocket server.
type DashboardConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load reads config from a YAML file with env var overrides.
// The API key uses KLASHI_API_KEY; KLASHI_MODE overrides the execution mode.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("KLASHI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("KLASHI_API_KEY"); key != "" {
		cfg.API.ApiKey = key
	}
	if mode := os.Getenv("KLASHI_MODE"); mode != "" {
		cfg.Mode = mode
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", ModePaper)
	v.SetDefault("engine.cycle_interval", 10*time.Second)
	v.SetDefault("engine.top_k_admitted", 3)
	v.SetDefault("engine.paper_cash", 1_000_00)
	v.SetDefault("scanner.concurrency", 20)
	v.SetDefault("scanner.market_limit", 50)
	v.SetDefault("scanner.min_volume", 100)
	v.SetDefault("scanner.min_open_interest", 50)
	v.SetDefault("cache.markets_ttl", 20*time.Second)
	v.SetDefault("cache.opportunity_ttl", 30*time.Second)
	v.SetDefault("cache.max_size", 200)
	v.SetDefault("risk.max_position_pct", 15.0)
	v.SetDefault("risk.min_edge_pct", 2.0)
	v.SetDefault("risk.kelly_fraction", 0.25)
	v.SetDefault("risk.max_daily_loss_pct", 10.0)
	v.SetDefault("risk.max_concentration_pct", 20.0)
	v.SetDefault("risk.max_correlation_group_count", 2)
	v.SetDefault("risk.correlation_edge_multiplier", 1.5)
	v.SetDefault("executor.order_deadline", 2*time.Second)
	v.SetDefault("executor.impact_window", 20)
	v.SetDefault("reasoning.deadline", 3*time.Second)
	v.SetDefault("store.data_dir", "data")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.port", 8090)
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModePaper, ModeLive:
	default:
		return fmt.Errorf("mode must be %q or %q", ModePaper, ModeLive)
	}
	// Paper mode still reads market data through the REST client.
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Mode == ModeLive && c.API.ApiKey == "" {
		return fmt.Errorf("api.api_key is required in live mode (set KLASHI_API_KEY)")
	}
	if c.Engine.CycleInterval < time.Second {
		return fmt.Errorf("engine.cycle_interval must be >= 1s")
	}
	if c.Engine.TopKAdmitted <= 0 {
		return fmt.Errorf("engine.top_k_admitted must be > 0")
	}
	if c.Scanner.Concurrency < 1 || c.Scanner.Concurrency > 64 {
		return fmt.Errorf("scanner.concurrency must be in 1..64")
	}
	if c.Scanner.MarketLimit < 1 || c.Scanner.MarketLimit > 500 {
		return fmt.Errorf("scanner.market_limit must be in 1..500")
	}
	if c.Risk.KellyFraction < 0.05 || c.Risk.KellyFraction > 0.50 {
		return fmt.Errorf("risk.kelly_fraction must be in [0.05, 0.50]")
	}
	if c.Risk.MinEdgePct <= 0 {
		return fmt.Errorf("risk.min_edge_pct must be > 0")
	}
	if c.Risk.MaxDailyLossPct <= 0 {
		return fmt.Errorf("risk.max_daily_loss_pct must be > 0")
	}
	if c.Executor.OrderDeadline <= 0 {
		return fmt.Errorf("executor.order_deadline must be > 0")
	}
	return nil
}
