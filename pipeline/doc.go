// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package pipeline builds the two render pipelines a chart draws with.
//
// Both pipelines read the packed series layout of package geometry
// directly and share one bind group layout: a single uniform buffer with
// the view transform and viewport size at group 0, binding 0. Output is
// premultiplied alpha with a one pixel smoothstep edge.
//
// Point series draw six vertices per point instance. Line series draw a
// four vertex strip per segment instance, reading each segment's end from a
// second binding of the same buffer one vertex further in.
//
// Pipeline sets depend only on the device and the target format, so charts
// sharing both share one Set through a Cache.
package pipeline
