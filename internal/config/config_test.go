package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsValidateServerMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "server"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default server-mode config should validate, got: %v", err)
	}
}

func TestValidateRequiresWalletForWorker(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "worker"
	cfg.Chain.Spender = "0x888888888889758F76e7103c6CbF23ABbF58F946"

	if err := cfg.Validate(); err == nil {
		t.Fatal("worker mode without a key source should fail validation")
	}

	cfg.Wallet.PrivateKey = "abc123"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("worker mode with private key should validate, got: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Mode = "hybrid" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"zero chain id", func(c *Config) { c.Chain.ChainID = 0 }},
		{"empty rpc url", func(c *Config) { c.Chain.RPCURL = "" }},
		{"slippage out of range", func(c *Config) { c.Workflow.DefaultSlippage = 1.5 }},
		{"zero max concurrent", func(c *Config) { c.Workflow.MaxConcurrent = 0 }},
		{"bad server port", func(c *Config) { c.Server.Port = 70000 }},
		{"min conns above max", func(c *Config) { c.Database.PoolMinConns = 99 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Mode = "server"
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
mode = "server"
log_level = "debug"

[chain]
rpc_url = "https://rpc.example.org"
chain_id = 1
confirm_timeout = "90s"

[workflow]
max_concurrent = 4
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("STAKESTORE_CHAIN_ID", "8453")
	t.Setenv("STAKESTORE_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("STAKESTORE_SERVER_CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "server" {
		t.Errorf("mode = %q, want server", cfg.Mode)
	}
	if cfg.Chain.RPCURL != "https://rpc.example.org" {
		t.Errorf("rpc_url = %q", cfg.Chain.RPCURL)
	}
	// Env beats file.
	if cfg.Chain.ChainID != 8453 {
		t.Errorf("chain_id = %d, want 8453 (env override)", cfg.Chain.ChainID)
	}
	if cfg.Chain.ConfirmTimeout.Duration != 90*time.Second {
		t.Errorf("confirm_timeout = %v, want 90s", cfg.Chain.ConfirmTimeout.Duration)
	}
	if cfg.Workflow.MaxConcurrent != 4 {
		t.Errorf("max_concurrent = %d, want 4", cfg.Workflow.MaxConcurrent)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if len(cfg.Server.CORSOrigins) != len(want) {
		t.Fatalf("cors origins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
	for i := range want {
		if cfg.Server.CORSOrigins[i] != want[i] {
			t.Errorf("cors origin[%d] = %q, want %q", i, cfg.Server.CORSOrigins[i], want[i])
		}
	}
	// Defaults survive where neither file nor env set a value.
	if cfg.Pendle.BaseURL == "" {
		t.Error("pendle base_url default should survive merge")
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "deadbeef"
	cfg.Database.Password = "hunter2"
	cfg.Redis.Password = "sekrit"
	cfg.S3.SecretKey = "aws-secret"
	cfg.Server.APIKey = "api-key"

	red := RedactedConfig(&cfg)

	if red.Wallet.PrivateKey != "***" || red.Database.Password != "***" ||
		red.Redis.Password != "***" || red.S3.SecretKey != "***" || red.Server.APIKey != "***" {
		t.Errorf("secrets not redacted: %+v", red)
	}
	if cfg.Wallet.PrivateKey != "deadbeef" {
		t.Error("original config must not be mutated")
	}
	// Empty secrets stay empty rather than becoming "***".
	if red.Notify.TelegramToken != "" {
		t.Errorf("empty secret became %q", red.Notify.TelegramToken)
	}
}
