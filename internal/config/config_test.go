package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.BaseURL != "https://shapes.inc" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.OutputDir != "exports" {
		t.Errorf("OutputDir = %q", cfg.OutputDir)
	}
	if cfg.SettleDelay != 2500*time.Millisecond {
		t.Errorf("SettleDelay = %v", cfg.SettleDelay)
	}
	if cfg.CheckpointInterval != 50 {
		t.Errorf("CheckpointInterval = %d", cfg.CheckpointInterval)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d", cfg.MaxRetries)
	}
	if cfg.PageLimit != 0 {
		t.Errorf("PageLimit = %d", cfg.PageLimit)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("OUTPUT_DIR", "/tmp/out")
	t.Setenv("SLOW_MODE", "true")
	t.Setenv("PAGE_LIMIT", "12")
	t.Setenv("SETTLE_DELAY", "4s")
	t.Setenv("API_RATE", "0.5")
	t.Setenv("MAX_RETRIES", "not-a-number") // bad values keep the default

	cfg := Load()
	if cfg.OutputDir != "/tmp/out" {
		t.Errorf("OutputDir = %q", cfg.OutputDir)
	}
	if !cfg.SlowMode {
		t.Error("SlowMode not picked up")
	}
	if cfg.PageLimit != 12 {
		t.Errorf("PageLimit = %d", cfg.PageLimit)
	}
	if cfg.SettleDelay != 4*time.Second {
		t.Errorf("SettleDelay = %v", cfg.SettleDelay)
	}
	if cfg.APIRate != 0.5 {
		t.Errorf("APIRate = %v", cfg.APIRate)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want default on unparsable value", cfg.MaxRetries)
	}
}

func TestEffectiveSettleDelay(t *testing.T) {
	cfg := &Config{SettleDelay: 2 * time.Second}
	if got := cfg.EffectiveSettleDelay(); got != 2*time.Second {
		t.Errorf("EffectiveSettleDelay = %v, want 2s", got)
	}
	cfg.SlowMode = true
	if got := cfg.EffectiveSettleDelay(); got != 4*time.Second {
		t.Errorf("EffectiveSettleDelay in slow mode = %v, want 4s", got)
	}
}

func TestLoadShapes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shapes.yaml")
	body := `- name: luna
  url: https://shapes.inc/dashboard/luna
- id: nova-7
  name: nova
  url: https://shapes.inc/dashboard/nova
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("fixture write failed: %v", err)
	}

	targets, err := LoadShapes(path)
	if err != nil {
		t.Fatalf("LoadShapes failed: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("loaded %d targets, want 2", len(targets))
	}
	if targets[0].Name != "luna" || targets[1].ID != "nova-7" {
		t.Errorf("targets = %+v", targets)
	}
}

func TestLoadShapesRejectsMissingURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shapes.yaml")
	if err := os.WriteFile(path, []byte("- name: luna\n"), 0o644); err != nil {
		t.Fatalf("fixture write failed: %v", err)
	}

	if _, err := LoadShapes(path); err == nil {
		t.Error("entry without a url was accepted")
	}
}
