// Package gate implements single-flight admission control: at most one
// generation run is in flight across the whole daemon.
package gate

import "sync"

// Gate is the global session gate. The zero value is ready to use.
type Gate struct {
	mu       sync.Mutex
	busy     bool
	inFlight string
}

// New constructs an idle gate.
func New() *Gate {
	return &Gate{}
}

// TryAcquire admits runID if no run is in flight. It never blocks.
func (g *Gate) TryAcquire(runID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy {
		return false
	}
	g.busy = true
	g.inFlight = runID
	return true
}

// Release clears the gate unconditionally. Callers must release exactly once
// per acquired run, on every exit path.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.busy = false
	g.inFlight = ""
}

// InFlight returns the admitted run id, or "" when idle.
func (g *Gate) InFlight() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Busy reports whether a run currently holds the gate.
func (g *Gate) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy
}
