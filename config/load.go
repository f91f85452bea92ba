// Package config loads and validates the runner's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env     string                  `yaml:"env"`
	Engine  EngineConfig            `yaml:"engine"`
	Model   ModelConfig             `yaml:"model"`
	Flow    FlowConfig              `yaml:"flow"`
	Gateway GatewayConfig           `yaml:"gateway"`
	Log     LogConfig               `yaml:"log"`
	Metrics MetricsConfig           `yaml:"metrics"`
	Markets map[string]MarketConfig `yaml:"markets"`
}

// EngineConfig carries the core quoting knobs.
type EngineConfig struct {
	DefaultSpread       float64 `yaml:"defaultSpread"`
	MaxInventoryRatio   float64 `yaml:"maxInventoryRatio"`
	OrderRefreshSeconds int     `yaml:"orderRefreshSeconds"`
	MinOrderSize        float64 `yaml:"minOrderSize"`
	ToxicCooloffSeconds int     `yaml:"toxicCooloffSeconds"`
}

// ModelConfig parameterizes the spread predictor.
type ModelConfig struct {
	BaseSpread       float64 `yaml:"baseSpread"`
	VolatilityFactor float64 `yaml:"volatilityFactor"`
	VolumeFactor     float64 `yaml:"volumeFactor"`
	ImbalanceFactor  float64 `yaml:"imbalanceFactor"`
	SpreadFloor      float64 `yaml:"spreadFloor"`
	ImbalanceLevels  int     `yaml:"imbalanceLevels"`
}

// FlowConfig parameterizes the toxic flow analyzer.
type FlowConfig struct {
	Levels     int     `yaml:"levels"`
	WindowSize int     `yaml:"windowSize"`
	Threshold  float64 `yaml:"threshold"`
}

// GatewayConfig points at the external world.
type GatewayConfig struct {
	RPCEndpoint string `yaml:"rpcEndpoint"`
	FeedURL     string `yaml:"feedURL"`
	WalletKey   string `yaml:"walletKey"`
	DryRun      bool   `yaml:"dryRun"`
}

type LogConfig struct {
	Level      string   `yaml:"level"`
	Format     string   `yaml:"format"`
	Outputs    []string `yaml:"outputs"`
	OutputFile string   `yaml:"outputFile"`
	ErrorFile  string   `yaml:"errorFile"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// MarketConfig describes one market to make on startup.
type MarketConfig struct {
	Strategy    string  `yaml:"strategy"`
	BaseAmount  float64 `yaml:"baseAmount"`
	QuoteAmount float64 `yaml:"quoteAmount"`
	Spread      float64 `yaml:"spread"`
}

// Engine defaults applied when the config leaves a knob unset.
const (
	DefaultSpread            = 0.002
	DefaultMaxInventoryRatio = 0.1
	DefaultOrderRefreshSecs  = 10
	DefaultMinOrderSize      = 0.01
	DefaultToxicCooloffSecs  = 60
)

// Load reads YAML config from path, applies defaults and validates.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("MM_RPC_ENDPOINT"); v != "" {
		cfg.Gateway.RPCEndpoint = v
	}
	if v := os.Getenv("MM_FEED_URL"); v != "" {
		cfg.Gateway.FeedURL = v
	}
	if v := os.Getenv("MM_WALLET_KEY"); v != "" {
		cfg.Gateway.WalletKey = v
	}
	return cfg, Validate(cfg)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Engine.DefaultSpread == 0 {
		cfg.Engine.DefaultSpread = DefaultSpread
	}
	if cfg.Engine.MaxInventoryRatio == 0 {
		cfg.Engine.MaxInventoryRatio = DefaultMaxInventoryRatio
	}
	if cfg.Engine.OrderRefreshSeconds == 0 {
		cfg.Engine.OrderRefreshSeconds = DefaultOrderRefreshSecs
	}
	if cfg.Engine.MinOrderSize == 0 {
		cfg.Engine.MinOrderSize = DefaultMinOrderSize
	}
	if cfg.Engine.ToxicCooloffSeconds == 0 {
		cfg.Engine.ToxicCooloffSeconds = DefaultToxicCooloffSecs
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if len(cfg.Log.Outputs) == 0 {
		cfg.Log.Outputs = []string{"stdout"}
	}
}

// Validate ensures required fields are present and sane.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Engine.DefaultSpread <= 0 {
		return errors.New("engine.defaultSpread must be > 0")
	}
	if cfg.Engine.MaxInventoryRatio <= 0 || cfg.Engine.MaxInventoryRatio > 1 {
		return errors.New("engine.maxInventoryRatio must be in (0, 1]")
	}
	if cfg.Engine.OrderRefreshSeconds <= 0 {
		return errors.New("engine.orderRefreshSeconds must be > 0")
	}
	if cfg.Engine.MinOrderSize <= 0 {
		return errors.New("engine.minOrderSize must be > 0")
	}
	if cfg.Model.BaseSpread < 0 || cfg.Model.SpreadFloor < 0 {
		return errors.New("model spreads must be >= 0")
	}
	if cfg.Flow.Threshold < 0 || cfg.Flow.Threshold > 1 {
		return errors.New("flow.threshold must be in [0, 1]")
	}
	if !cfg.Gateway.DryRun {
		if cfg.Gateway.RPCEndpoint == "" {
			return errors.New("gateway.rpcEndpoint is required (or MM_RPC_ENDPOINT)")
		}
		if cfg.Gateway.WalletKey == "" {
			return errors.New("gateway.walletKey is required (or MM_WALLET_KEY)")
		}
	}
	if len(cfg.Markets) == 0 {
		return errors.New("markets config is required")
	}
	for market, mc := range cfg.Markets {
		parts := strings.Split(market, "-")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("market %q must be BASE-QUOTE", market)
		}
		if mc.Strategy == "" {
			return fmt.Errorf("market %s strategy is required", market)
		}
		if mc.BaseAmount < 0 || mc.QuoteAmount < 0 {
			return fmt.Errorf("market %s amounts must be >= 0", market)
		}
		if mc.Spread < 0 {
			return fmt.Errorf("market %s spread must be >= 0", market)
		}
	}
	return nil
}
