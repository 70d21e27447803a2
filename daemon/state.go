// Copyright 2017, Kerby Shedden and the Muscato contributors.

// Package daemon implements the pipeline skeleton that runs bigsi as a
// detached background service: directory watcher, worker pool, and a
// signal-driven state machine governing startup and shutdown.
package daemon

import "sync/atomic"

// State is one phase of the daemon's lifecycle.
type State int32

const (
	// Init is the state before daemonization.
	Init State = iota
	// Detached is the state once the process has forked/set a new
	// session and is running in the background.
	Detached
	// Running is the state once the worker pool and watcher are up.
	Running
	// Stopping is the state once a termination signal has been
	// observed and the watcher has been told to stop.
	Stopping
	// Stopped is the terminal state: pool drained and destroyed.
	Stopped
)

func (s State) String() string {
	switch s {
	case Init:
		return "INIT"
	case Detached:
		return "DETACHED"
	case Running:
		return "RUNNING"
	case Stopping:
		return "STOPPING"
	case Stopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// stateBox holds the daemon's current state behind atomic operations,
// since it is set by the main loop and may be read from a signal
// handler goroutine or by tests.
type stateBox struct {
	v int32
}

func (b *stateBox) set(s State) {
	atomic.StoreInt32(&b.v, int32(s))
}

func (b *stateBox) get() State {
	return State(atomic.LoadInt32(&b.v))
}
