package chart

import (
	"errors"

	"github.com/gogpu/chart/backend"
	"github.com/gogpu/chart/device"
	"github.com/gogpu/chart/frame"
	"github.com/gogpu/chart/geometry"
	"github.com/gogpu/chart/pipeline"
)

// Initialization errors. They are fatal to New; nothing is retried.
var (
	ErrNoCapableBackend   = backend.ErrNoCapableBackend
	ErrDeviceInitFailed   = device.ErrDeviceInitFailed
	ErrSurfaceUnsupported = device.ErrSurfaceUnsupported
	ErrPipelineInitFailed = pipeline.ErrPipelineInitFailed
	ErrShaderTranslation  = backend.ErrShaderTranslation
)

// Input validation errors. They are reported before any GPU resource is
// created or replaced.
var (
	ErrEmptyInput    = geometry.ErrEmptyInput
	ErrShapeMismatch = geometry.ErrShapeMismatch
	ErrInvalidColor  = geometry.ErrInvalidColor
)

// Runtime errors.
var (
	// ErrSurfaceOutOfDate and ErrAcquireTimeout surface only after the
	// scheduler has exhausted its retries.
	ErrSurfaceOutOfDate = device.ErrSurfaceOutOfDate
	ErrAcquireTimeout   = device.ErrAcquireTimeout

	// ErrOutOfMemory leaves the chart unchanged.
	ErrOutOfMemory = device.ErrOutOfMemory

	// ErrDeviceLost is sticky; create a new Chart to recover.
	ErrDeviceLost = device.ErrDeviceLost

	ErrInvalidSize = device.ErrInvalidSize
	ErrNotReady    = frame.ErrNotReady
	ErrDestroyed   = frame.ErrDestroyed
)

// ErrNoSeries is returned by SetSeries when called with no series.
var ErrNoSeries = errors.New("chart: no series")
