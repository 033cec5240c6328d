package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	raw := `
app:
  name: operon
  workspace: /tmp/work
provider:
  api_key: test-key
  base_url: https://example.com/v1
  models:
    fast: small-model
    balanced: mid-model
    powerful: big-model
engine:
  max_plan_steps: 4
sandbox:
  timeout_seconds: 10
gateways:
  telegram:
    token: tg-token
    chat_id: "42"
    enabled: true
  discord:
    token: dc-token
    enabled: false
`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.App.Workspace != "/tmp/work" {
		t.Errorf("workspace = %q", cfg.App.Workspace)
	}
	if cfg.Provider.Models["fast"] != "small-model" {
		t.Errorf("fast model = %q", cfg.Provider.Models["fast"])
	}
	if cfg.Engine.MaxPlanSteps != 4 {
		t.Errorf("max plan steps = %d", cfg.Engine.MaxPlanSteps)
	}
	if cfg.SandboxTimeout() != 10*time.Second {
		t.Errorf("sandbox timeout = %v", cfg.SandboxTimeout())
	}

	// Defaults fill in what the file omits.
	if cfg.Engine.MaxRetries != 3 {
		t.Errorf("default max retries = %d", cfg.Engine.MaxRetries)
	}
	if cfg.Sandbox.PythonBin != "python3" {
		t.Errorf("default python bin = %q", cfg.Sandbox.PythonBin)
	}

	tg, ok := cfg.GetGateway("telegram")
	if !ok || tg.Token != "tg-token" {
		t.Errorf("telegram gateway = %+v ok=%v", tg, ok)
	}
	if _, ok := cfg.GetGateway("discord"); ok {
		t.Error("disabled discord gateway should not be returned")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Engine.MaxPlanSteps != 5 {
		t.Errorf("default max plan steps = %d", cfg.Engine.MaxPlanSteps)
	}
	if cfg.Provider.Models["balanced"] == "" {
		t.Error("default balanced model missing")
	}
}
