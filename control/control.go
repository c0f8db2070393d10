// Package control holds the process-wide operational flags shared between
// the processor, the monitoring handlers, and the node: the pause switch
// and the synthetic-traffic simulation window. All state is atomic; readers
// never block writers.
package control

import (
	"sync/atomic"
	"time"
)

// Flags is the shared control surface. The zero value is running, with no
// simulation active.
type Flags struct {
	paused             atomic.Bool
	simulationRunning  atomic.Bool
	simulationDeadline atomic.Int64
}

// New returns a control surface in the running state.
func New() *Flags {
	return &Flags{}
}

// Pause asks the processor to idle. Takes effect at its next checkpoint.
func (f *Flags) Pause() {
	f.paused.Store(true)
}

// Resume clears the pause flag.
func (f *Flags) Resume() {
	f.paused.Store(false)
}

// Paused reports whether the processor should idle.
func (f *Flags) Paused() bool {
	return f.paused.Load()
}

// StartSimulation marks the simulation running until the given deadline
// (unix seconds; 0 means no deadline).
func (f *Flags) StartSimulation(deadline int64) {
	f.simulationDeadline.Store(deadline)
	f.simulationRunning.Store(true)
}

// StopSimulation clears the simulation flag and deadline.
func (f *Flags) StopSimulation() {
	f.simulationRunning.Store(false)
	f.simulationDeadline.Store(0)
}

// SimulationRunning reports whether the simulation window is open.
func (f *Flags) SimulationRunning() bool {
	return f.simulationRunning.Load()
}

// SimulationDeadline returns the simulation stop time in unix seconds, or 0
// when no deadline is set.
func (f *Flags) SimulationDeadline() int64 {
	return f.simulationDeadline.Load()
}

// ExpireSimulation stops the simulation if its deadline has passed.
// Returns true when it stopped a running simulation.
func (f *Flags) ExpireSimulation(now time.Time) bool {
	if !f.simulationRunning.Load() {
		return false
	}
	deadline := f.simulationDeadline.Load()
	if deadline == 0 || now.Unix() < deadline {
		return false
	}
	f.StopSimulation()
	return true
}
