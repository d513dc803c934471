// Package events implements the per-run progress event bus.
//
// Events for one run form an ordered append-only log: publishing never blocks
// the orchestrator, subscribers receive events in exact publish order with no
// drops or duplicates, and every subscription starts with a snapshot of
// current run state so late subscribers are not blind to prior progress.
// Subscriptions emit keepalive markers on idle so HTTP streaming handlers can
// bound client read timeouts without ending the stream.
package events
