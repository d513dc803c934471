package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Story contains settings for the story-generation backend (llama-server).
type Story struct {
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	MaxAttempts    int    `toml:"max_attempts"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Images contains settings for the ComfyUI image backend.
type Images struct {
	BaseURL        string `toml:"base_url"`
	WorkflowPath   string `toml:"workflow_path"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	PollSeconds    int    `toml:"poll_seconds"`
}

// TTS contains settings for the speech-synthesis backend.
type TTS struct {
	BaseURL        string  `toml:"base_url"`
	Voice          string  `toml:"voice"`
	Language       string  `toml:"language"`
	Speed          float64 `toml:"speed"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// STT contains settings for the voice-input transcription backend.
type STT struct {
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Language       string `toml:"language"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Pipeline contains run orchestration settings.
type Pipeline struct {
	// Ordering selects how image and audio units are scheduled within a run.
	// "hybrid" keeps images strictly sequential while audio runs alongside;
	// "sequential" defers audio until the image chain finishes.
	Ordering         string `toml:"ordering"`
	AudioWorkers     int    `toml:"audio_workers"`
	KeepaliveSeconds int    `toml:"keepalive_seconds"`
}

// Retention contains the completed-run retention policy.
type Retention struct {
	MaxRuns int `toml:"max_runs"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the storybook daemon.
//
// Configuration sections by subsystem:
//   - Paths: output/log directories and API bind address
//   - Story: llama-server story generation
//   - Images: ComfyUI panel rendering
//   - TTS: narration synthesis sidecar
//   - STT: voice-input transcription sidecar
//   - Pipeline: scheduling policy, audio concurrency, event keepalive
//   - Retention: completed-run cap
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Story     Story     `toml:"story"`
	Images    Images    `toml:"images"`
	TTS       TTS       `toml:"tts"`
	STT       STT       `toml:"stt"`
	Pipeline  Pipeline  `toml:"pipeline"`
	Retention Retention `toml:"retention"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/storybookd/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized. The boolean reports whether a
// config file was found at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// KeepaliveInterval returns the SSE keepalive window as a duration.
func (c *Config) KeepaliveInterval() time.Duration {
	if c.Pipeline.KeepaliveSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Pipeline.KeepaliveSeconds) * time.Second
}

// EnsureDirectories creates the output and log directories if missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Images.WorkflowPath != "" {
		if c.Images.WorkflowPath, err = expandPath(c.Images.WorkflowPath); err != nil {
			return fmt.Errorf("images.workflow_path: %w", err)
		}
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	c.Story.BaseURL = strings.TrimSpace(c.Story.BaseURL)
	c.Images.BaseURL = strings.TrimSpace(c.Images.BaseURL)
	c.TTS.BaseURL = strings.TrimSpace(c.TTS.BaseURL)
	c.STT.BaseURL = strings.TrimSpace(c.STT.BaseURL)
	c.Pipeline.Ordering = strings.ToLower(strings.TrimSpace(c.Pipeline.Ordering))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	if c.Pipeline.Ordering == "" {
		c.Pipeline.Ordering = OrderingHybrid
	}
	if c.Pipeline.AudioWorkers <= 0 {
		c.Pipeline.AudioWorkers = defaultAudioWorkers
	}
	if c.Pipeline.KeepaliveSeconds <= 0 {
		c.Pipeline.KeepaliveSeconds = defaultKeepaliveSeconds
	}
	if c.Retention.MaxRuns <= 0 {
		c.Retention.MaxRuns = defaultMaxRuns
	}
	if c.Story.MaxAttempts <= 0 {
		c.Story.MaxAttempts = defaultStoryMaxAttempts
	}
	if c.TTS.Speed <= 0 {
		c.TTS.Speed = defaultTTSSpeed
	}
	return nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		trimmed = filepath.Join(home, trimmed[2:])
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", path, err)
	}
	return abs, nil
}
