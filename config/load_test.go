package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
env: test
gateway:
  dryRun: true
markets:
  SOL-USDC:
    strategy: adaptive
    baseAmount: 1.5
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.DefaultSpread != DefaultSpread {
		t.Errorf("defaultSpread = %v, want %v", cfg.Engine.DefaultSpread, DefaultSpread)
	}
	if cfg.Engine.MaxInventoryRatio != DefaultMaxInventoryRatio {
		t.Errorf("maxInventoryRatio = %v, want %v", cfg.Engine.MaxInventoryRatio, DefaultMaxInventoryRatio)
	}
	if cfg.Engine.OrderRefreshSeconds != DefaultOrderRefreshSecs {
		t.Errorf("orderRefreshSeconds = %v, want %v", cfg.Engine.OrderRefreshSeconds, DefaultOrderRefreshSecs)
	}
	if cfg.Engine.MinOrderSize != DefaultMinOrderSize {
		t.Errorf("minOrderSize = %v, want %v", cfg.Engine.MinOrderSize, DefaultMinOrderSize)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("log defaults = %v/%v", cfg.Log.Level, cfg.Log.Format)
	}
	if cfg.Markets["SOL-USDC"].BaseAmount != 1.5 {
		t.Errorf("baseAmount = %v, want 1.5", cfg.Markets["SOL-USDC"].BaseAmount)
	}
}

func TestLoadExplicitValuesSurviveDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
env: prod
engine:
  defaultSpread: 0.005
  orderRefreshSeconds: 3
gateway:
  dryRun: true
markets:
  SOL-USDC:
    strategy: basic
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.DefaultSpread != 0.005 {
		t.Errorf("defaultSpread = %v, want 0.005", cfg.Engine.DefaultSpread)
	}
	if cfg.Engine.OrderRefreshSeconds != 3 {
		t.Errorf("orderRefreshSeconds = %v, want 3", cfg.Engine.OrderRefreshSeconds)
	}
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing env",
			content: "gateway:\n  dryRun: true\nmarkets:\n  SOL-USDC:\n    strategy: basic\n",
			wantErr: "env is required",
		},
		{
			name:    "no markets",
			content: "env: test\ngateway:\n  dryRun: true\n",
			wantErr: "markets config is required",
		},
		{
			name:    "bad market symbol",
			content: "env: test\ngateway:\n  dryRun: true\nmarkets:\n  SOLUSDC:\n    strategy: basic\n",
			wantErr: "must be BASE-QUOTE",
		},
		{
			name:    "missing strategy",
			content: "env: test\ngateway:\n  dryRun: true\nmarkets:\n  SOL-USDC: {}\n",
			wantErr: "strategy is required",
		},
		{
			name:    "live without wallet",
			content: "env: prod\ngateway:\n  rpcEndpoint: https://rpc\nmarkets:\n  SOL-USDC:\n    strategy: basic\n",
			wantErr: "walletKey is required",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("MM_RPC_ENDPOINT", "https://rpc.example")
	t.Setenv("MM_WALLET_KEY", "secret-from-env")

	cfg, err := LoadWithEnvOverrides(writeConfig(t, `
env: prod
markets:
  SOL-USDC:
    strategy: basic
`))
	if err != nil {
		t.Fatalf("LoadWithEnvOverrides: %v", err)
	}
	if cfg.Gateway.RPCEndpoint != "https://rpc.example" {
		t.Errorf("rpcEndpoint = %q", cfg.Gateway.RPCEndpoint)
	}
	if cfg.Gateway.WalletKey != "secret-from-env" {
		t.Errorf("walletKey = %q", cfg.Gateway.WalletKey)
	}
}
