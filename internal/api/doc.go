// Package api defines the JSON payload types shared by the daemon's HTTP
// surface and the CLI client, plus converters from internal run state.
package api
