// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package frame

import (
	"errors"
	"fmt"
	"time"
)

// Scheduler errors.
var (
	// ErrNotReady is returned when rendering before initialization completed.
	ErrNotReady = errors.New("frame: not ready")

	// ErrDestroyed is returned by every call after Destroy.
	ErrDestroyed = errors.New("frame: destroyed")
)

// State is the lifecycle state of a Scheduler.
type State uint8

const (
	// StateUninitialized means GPU resources are not created yet.
	StateUninitialized State = iota

	// StateReady means the scheduler can render a frame.
	StateReady

	// StateRendering means a frame is being encoded.
	StateRendering

	// StateDestroyed is terminal.
	StateDestroyed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateReady:
		return "Ready"
	case StateRendering:
		return "Rendering"
	case StateDestroyed:
		return "Destroyed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Stats are cumulative scheduler counters.
type Stats struct {
	// Frames is the number of presented frames.
	Frames uint64

	// Failed is the number of frames that returned an error.
	Failed uint64

	// AcquireRetries counts acquire attempts after the first, over all frames.
	AcquireRetries uint64

	// Reconfigures counts surface reconfigurations after out-of-date errors.
	Reconfigures uint64

	// Stale counts frames discarded because the surface was resized
	// between acquire and present.
	Stale uint64

	// Rebuilds counts pipeline sets replaced after a surface format change.
	Rebuilds uint64

	// Swaps counts applied geometry swaps.
	Swaps uint64

	// Instances is the number of instances drawn in the last frame.
	Instances uint64

	// LastFrame is the CPU time spent in the last successful Render.
	LastFrame time.Duration
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Frames[%d ok, %d failed, %d retries, %d reconfigures, last %v]",
		s.Frames, s.Failed, s.AcquireRetries, s.Reconfigures, s.LastFrame)
}
