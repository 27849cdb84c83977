package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"SignalProof-Chain/internal/auth"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "signald.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"web3": {"rpc_url": "http://127.0.0.1:8545"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Server.Address)
	}
	if cfg.Storage.JobStore.Driver != "memory" || cfg.JobQueue.Driver != "memory" {
		t.Fatalf("unexpected drivers %q/%q", cfg.Storage.JobStore.Driver, cfg.JobQueue.Driver)
	}
	if cfg.Processor.Workers != 4 || cfg.Processor.MaxRetries != 3 {
		t.Fatalf("unexpected processor defaults %+v", cfg.Processor)
	}
	if cfg.Processor.RetryBackoff() != 500*time.Millisecond {
		t.Fatalf("unexpected backoff %s", cfg.Processor.RetryBackoff())
	}
	if cfg.Metrics.Path != "/metrics" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected metrics/logging defaults %+v %+v", cfg.Metrics, cfg.Logging)
	}
	if cfg.Auth.Mode != auth.ModeDisabled {
		t.Fatalf("auth should default to disabled, got %q", cfg.Auth.Mode)
	}
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	path := writeConfig(t, `{
		"web3": {"chain_config": "chain.yaml"},
		"logging": {"audit": {"enabled": true, "path": "logs/audit.log"}}
	}`)
	dir := filepath.Dir(path)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Web3.ChainConfig != filepath.Join(dir, "chain.yaml") {
		t.Fatalf("chain config not resolved: %s", cfg.Web3.ChainConfig)
	}
	if cfg.Logging.Audit.Path != filepath.Join(dir, "logs", "audit.log") {
		t.Fatalf("audit path not resolved: %s", cfg.Logging.Audit.Path)
	}
}

func TestLoadRejectsInvalidDrivers(t *testing.T) {
	cases := map[string]string{
		"store driver": `{"web3": {"rpc_url": "http://x"}, "storage": {"job_store": {"driver": "sqlite"}}}`,
		"mysql dsn":    `{"web3": {"rpc_url": "http://x"}, "storage": {"job_store": {"driver": "mysql"}}}`,
		"queue driver": `{"web3": {"rpc_url": "http://x"}, "job_queue": {"driver": "kafka"}}`,
		"no endpoint":  `{}`,
		"auth mode":    `{"web3": {"rpc_url": "http://x"}, "auth": {"mode": "oauth"}}`,
	}
	for name, body := range cases {
		body := body
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SIGNAL_RPC_URL", "http://override:8545")
	t.Setenv("SIGNAL_WORKERS", "12")
	t.Setenv("SIGNAL_SERVER_ADDRESS", "127.0.0.1:9000")

	cfg, err := Load(writeConfig(t, `{"web3": {"rpc_url": "http://file:8545"}}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Web3.RPCURL != "http://override:8545" {
		t.Fatalf("rpc url not overridden: %s", cfg.Web3.RPCURL)
	}
	if cfg.Processor.Workers != 12 || cfg.Server.Address != "127.0.0.1:9000" {
		t.Fatalf("overrides not applied: %+v %+v", cfg.Processor, cfg.Server)
	}
}

func TestPathPrefersEnvironment(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	if Path() != DefaultPath {
		t.Fatalf("expected default path, got %s", Path())
	}
	t.Setenv(EnvConfigPath, "/etc/signald.json")
	if Path() != "/etc/signald.json" {
		t.Fatalf("expected env path, got %s", Path())
	}
}

func TestLoadReportsParseErrors(t *testing.T) {
	_, err := Load(writeConfig(t, `{"server":`))
	if err == nil || !strings.Contains(err.Error(), "解析配置失败") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	const key = "SIGNAL_DOTENV_TEST_VALUE"
	t.Cleanup(func() { os.Unsetenv(key) })

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(key+"=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv(key); got != "from-file" {
		t.Fatalf("unexpected value %q", got)
	}

	if err := os.WriteFile(path, []byte(key+"=second\n"), 0o600); err != nil {
		t.Fatalf("rewrite env: %v", err)
	}
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("reload dotenv: %v", err)
	}
	if got := os.Getenv(key); got != "from-file" {
		t.Fatalf("existing variables must win, got %q", got)
	}
}
