// Package run owns per-run state and the retention store.
//
// A Run is mutated by exactly one orchestrator goroutine and read by any
// number of API consumers through snapshots. The Store keeps live runs in
// memory, mirrors their metadata into a SQLite index so eviction ordering and
// run listings survive restarts, and deletes state, index row, and artifact
// directory together when the retention cap forces the oldest run out. A run
// that has not reached a terminal status is never an eviction candidate.
package run
