// Package logging assembles the structured slog loggers used across the
// storybook daemon.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes attribute helpers so pipeline code tags log lines with run IDs,
// stages, and request IDs consistently. A no-op logger is provided for tests
// and wiring code that cannot fail.
package logging
