// Package daemon wires the run store, session gate, orchestrator, and HTTP
// API into a single long-running process guarded by a lock file.
package daemon
