package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storybook/internal/config"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.toml")
	cfg, path, exists, err := config.Load(missing)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatalf("expected exists=false for %s", path)
	}
	if cfg.Pipeline.Ordering != config.OrderingHybrid {
		t.Fatalf("expected hybrid ordering default, got %q", cfg.Pipeline.Ordering)
	}
	if cfg.Retention.MaxRuns != 100 {
		t.Fatalf("expected default retention cap 100, got %d", cfg.Retention.MaxRuns)
	}
	if cfg.Pipeline.KeepaliveSeconds != 30 {
		t.Fatalf("expected default keepalive 30, got %d", cfg.Pipeline.KeepaliveSeconds)
	}
}

func TestLoadParsesAndExpandsPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
output_dir = "` + filepath.Join(dir, "out") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"
api_bind = "127.0.0.1:9001"

[pipeline]
ordering = "sequential"
audio_workers = 2
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be found")
	}
	if cfg.Pipeline.Ordering != config.OrderingSequential {
		t.Fatalf("expected sequential ordering, got %q", cfg.Pipeline.Ordering)
	}
	if cfg.Pipeline.AudioWorkers != 2 {
		t.Fatalf("expected 2 audio workers, got %d", cfg.Pipeline.AudioWorkers)
	}
	if !filepath.IsAbs(cfg.Paths.OutputDir) {
		t.Fatalf("expected absolute output dir, got %q", cfg.Paths.OutputDir)
	}
}

func TestValidateRejectsUnknownOrdering(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.Ordering = "parallel"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "pipeline.ordering") {
		t.Fatalf("expected ordering validation error, got %v", err)
	}
}

func TestValidateRejectsUnknownVoice(t *testing.T) {
	cfg := config.Default()
	cfg.TTS.Voice = "Z9"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "tts.voice") {
		t.Fatalf("expected voice validation error, got %v", err)
	}
}

func TestValidateBoundsAudioWorkers(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.AudioWorkers = 6
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected audio_workers validation error")
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample failed: %v", err)
	}
	if err := config.WriteSample(path); err == nil {
		t.Fatal("expected error when config already exists")
	}
}
