// Package config loads, validates, and normalizes storybookd configuration.
//
// Configuration is TOML with a single file resolved from an explicit path or
// ~/.config/storybookd/config.toml. Defaults cover a local single-GPU setup so
// the daemon starts without a config file. All path fields are tilde-expanded
// and absolute after Load returns.
package config
