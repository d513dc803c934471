// Package pipeline contains the run orchestrator and the collaborator
// contracts it drives. One run executes at a time: a text stage, a strictly
// ordered image sequence, and bounded-concurrency audio synthesis whose
// placement relative to the images is a configuration decision.
package pipeline
