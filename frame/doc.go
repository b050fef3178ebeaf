// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package frame drives per-frame rendering of a chart.
//
// A Scheduler owns the render loop state machine:
//
//	Uninitialized -> Ready -> Rendering -> Ready -> ... -> Destroyed
//
// Render is serialized by a mutex, so at most one frame is in flight per
// scheduler. Each frame snapshots the view transform it is given, applies a
// geometry swap staged with Swap, acquires a target texture (retrying
// transient failures), draws every series, submits and presents.
package frame
