package testsupport

import (
	"path/filepath"
	"testing"

	"storybook/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.OutputDir = filepath.Join(base, "outputs")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Pipeline.KeepaliveSeconds = 1

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithMaxRuns sets the retention cap on the test config.
func WithMaxRuns(n int) ConfigOption {
	return func(c *config.Config) {
		c.Retention.MaxRuns = n
	}
}

// WithOrdering sets the pipeline ordering policy on the test config.
func WithOrdering(ordering string) ConfigOption {
	return func(c *config.Config) {
		c.Pipeline.Ordering = ordering
	}
}
