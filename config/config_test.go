package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
api:
  addr: ":9000"
  token: "secret"
bridge:
  enabled: true
  broker: "tcp://localhost:1883"
  client_id: "cad-core"
dispatch:
  call_number_prefix: "LSPD"
  ack_timeout_seconds: 10
metrics:
  prometheus_enabled: true
history:
  backend: "sqlite"
  path: "history.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Addr != ":9000" || cfg.API.Token != "secret" {
		t.Fatalf("api: %+v", cfg.API)
	}
	if !cfg.Bridge.Enabled || cfg.Bridge.Broker != "tcp://localhost:1883" {
		t.Fatalf("bridge: %+v", cfg.Bridge)
	}
	if cfg.Dispatch.CallNumberPrefix != "LSPD" || cfg.Dispatch.AckTimeoutSeconds != 10 {
		t.Fatalf("dispatch: %+v", cfg.Dispatch)
	}
	if cfg.History.Backend != "sqlite" || cfg.History.Path != "history.db" {
		t.Fatalf("history: %+v", cfg.History)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{"api": {"addr": ":7070"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Addr != ":7070" {
		t.Fatalf("api: %+v", cfg.API)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `{}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Addr != ":8080" {
		t.Fatalf("default addr: %q", cfg.API.Addr)
	}
	if cfg.History.Backend != "jsonl" || cfg.History.Path == "" {
		t.Fatalf("default history: %+v", cfg.History)
	}
	if cfg.Dispatch.CallNumberPrefix == "" || cfg.Dispatch.AckTimeoutSeconds == 0 {
		t.Fatalf("default dispatch: %+v", cfg.Dispatch)
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	path := writeConfig(t, "config.toml", `x = 1`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
api:
  addr: ":8080"
`)
	t.Setenv("CAD_API__ADDR", ":6060")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Addr != ":6060" {
		t.Fatalf("env override ignored: %q", cfg.API.Addr)
	}
}

func TestHistoryBackendValidation(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
history:
  backend: "csv"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown history backend")
	}
}

func TestBridgeRequiresBroker(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
bridge:
  enabled: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for enabled bridge without broker")
	}
}
