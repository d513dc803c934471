package config

import (
	"fmt"
	"net"
	"strings"
)

var validVoices = map[string]struct{}{
	"M1": {}, "M2": {}, "M3": {}, "M4": {}, "M5": {},
	"F1": {}, "F2": {}, "F3": {}, "F4": {}, "F5": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateBackends(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return fmt.Errorf("paths.output_dir is required")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return fmt.Errorf("paths.log_dir is required")
	}
	if c.Paths.APIBind != "" {
		if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
			return fmt.Errorf("paths.api_bind: invalid host:port %q: %w", c.Paths.APIBind, err)
		}
	}
	return nil
}

func (c *Config) validatePipeline() error {
	switch c.Pipeline.Ordering {
	case OrderingHybrid, OrderingSequential:
	default:
		return fmt.Errorf("pipeline.ordering: unsupported value %q (expected %q or %q)",
			c.Pipeline.Ordering, OrderingHybrid, OrderingSequential)
	}
	if c.Pipeline.AudioWorkers < 1 || c.Pipeline.AudioWorkers > 5 {
		return fmt.Errorf("pipeline.audio_workers must be between 1 and 5, got %d", c.Pipeline.AudioWorkers)
	}
	if c.Retention.MaxRuns < 1 {
		return fmt.Errorf("retention.max_runs must be at least 1, got %d", c.Retention.MaxRuns)
	}
	return nil
}

func (c *Config) validateBackends() error {
	if c.Story.BaseURL == "" {
		return fmt.Errorf("story.base_url is required")
	}
	if c.Images.BaseURL == "" {
		return fmt.Errorf("images.base_url is required")
	}
	if c.TTS.BaseURL == "" {
		return fmt.Errorf("tts.base_url is required")
	}
	voice := strings.ToUpper(strings.TrimSpace(c.TTS.Voice))
	if _, ok := validVoices[voice]; !ok {
		return fmt.Errorf("tts.voice: unknown voice profile %q (expected M1-M5 or F1-F5)", c.TTS.Voice)
	}
	c.TTS.Voice = voice
	if c.Story.MaxAttempts > 10 {
		return fmt.Errorf("story.max_attempts must be at most 10, got %d", c.Story.MaxAttempts)
	}
	return nil
}
