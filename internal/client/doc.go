// Package client is the HTTP client for the storybookd API, consumed by the
// CLI subcommands.
package client
