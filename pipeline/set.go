// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package pipeline

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/chart/backend"
	"github.com/gogpu/chart/device"
	"github.com/gogpu/chart/geometry"
	"github.com/gogpu/chart/internal/logging"
	"github.com/gogpu/chart/transform"
)

//go:embed shaders/point.wgsl
var pointShaderSource string

//go:embed shaders/line.wgsl
var lineShaderSource string

// ErrPipelineInitFailed is returned when a shader cannot be translated or a
// pipeline object cannot be created.
var ErrPipelineInitFailed = errors.New("pipeline: initialization failed")

// Vertices drawn per instance.
const (
	pointVertices   = 6
	segmentVertices = 4
)

// Cap flags of a segment draw, passed to the line shader as
// firstVertex / segmentVertices. Only capped ends extend past their vertex,
// so consecutive segments meet without overlapping.
const (
	capStart = 1
	capEnd   = 2
)

// Pipeline is one immutable render pipeline.
type Pipeline struct {
	Kind     geometry.Kind
	Topology gputypes.PrimitiveTopology
	// Vertices is the vertex count of one instance.
	Vertices uint32

	shader hal.ShaderModule
	hal    hal.RenderPipeline
}

// HAL returns the hal pipeline.
func (p *Pipeline) HAL() hal.RenderPipeline { return p.hal }

// Set holds the point and line pipelines for one device and target format.
type Set struct {
	Format gputypes.TextureFormat

	dev        hal.Device
	layout     geometry.Layout
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	point      *Pipeline
	line       *Pipeline
}

// NewSet translates both shaders for the device's backend and creates the
// pipelines. On error every object created so far is destroyed.
func NewSet(dev *device.Device, format gputypes.TextureFormat) (*Set, error) {
	s := &Set{Format: format, dev: dev.HAL(), layout: geometry.Packed}
	if err := s.create(dev.Strategy(), dev.Label()); err != nil {
		s.Destroy()
		return nil, fmt.Errorf("%w: %w", ErrPipelineInitFailed, err)
	}
	logging.Logger().Debug("pipeline: set created", "format", format, "backend", dev.Kind())
	return s, nil
}

func (s *Set) create(strategy backend.Strategy, label string) error {
	var err error
	s.bindLayout, err = s.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: label + "_view_layout",
		Entries: []gputypes.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
			Buffer: &gputypes.BufferBindingLayout{
				Type:           gputypes.BufferBindingTypeUniform,
				MinBindingSize: transform.UniformSize,
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}

	s.pipeLayout, err = s.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{s.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}

	s.point, err = s.createPipeline(strategy, label+"_point", pipelineDesc{
		kind:     geometry.KindPoints,
		source:   pointShaderSource,
		topology: gputypes.PrimitiveTopologyTriangleList,
		vertices: pointVertices,
		buffers:  pointBuffers(s.layout),
	})
	if err != nil {
		return err
	}

	s.line, err = s.createPipeline(strategy, label+"_line", pipelineDesc{
		kind:     geometry.KindLine,
		source:   lineShaderSource,
		topology: gputypes.PrimitiveTopologyTriangleStrip,
		vertices: segmentVertices,
		buffers:  segmentBuffers(s.layout),
	})
	return err
}

type pipelineDesc struct {
	kind     geometry.Kind
	source   string
	topology gputypes.PrimitiveTopology
	vertices uint32
	buffers  []gputypes.VertexBufferLayout
}

func (s *Set) createPipeline(strategy backend.Strategy, label string, d pipelineDesc) (*Pipeline, error) {
	src, err := strategy.TranslateShader(label, d.source)
	if err != nil {
		return nil, err
	}
	shader, err := s.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: label + "_shader", Source: src})
	if err != nil {
		return nil, fmt.Errorf("compile %s shader: %w", label, err)
	}

	premulBlend := gputypes.BlendStatePremultiplied()
	rp, err := s.dev.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  label + "_pipeline",
		Layout: s.pipeLayout,
		Vertex: hal.VertexState{
			Module:     shader,
			EntryPoint: backend.VertexEntry,
			Buffers:    d.buffers,
		},
		Primitive: gputypes.PrimitiveState{
			Topology: d.topology,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
		Fragment: &hal.FragmentState{
			Module:     shader,
			EntryPoint: backend.FragmentEntry,
			Targets: []gputypes.ColorTargetState{{
				Format:    s.Format,
				Blend:     &premulBlend,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
	})
	if err != nil {
		s.dev.DestroyShaderModule(shader)
		return nil, fmt.Errorf("create %s pipeline: %w", label, err)
	}
	return &Pipeline{Kind: d.kind, Topology: d.topology, Vertices: d.vertices, shader: shader, hal: rp}, nil
}

// pointBuffers declares one instance-stepped buffer: position, color, size.
func pointBuffers(l geometry.Layout) []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{{
		ArrayStride: l.Stride,
		StepMode:    gputypes.VertexStepModeInstance,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x2, Offset: l.Position, ShaderLocation: 0},
			{Format: gputypes.VertexFormatUnorm8x4, Offset: l.Color, ShaderLocation: 1},
			{Format: gputypes.VertexFormatFloat32, Offset: l.Size, ShaderLocation: 2},
		},
	}}
}

// segmentBuffers declares the segment start (slot 0) and end (slot 1). Both
// slots are bound to the same buffer, slot 1 one stride further in.
func segmentBuffers(l geometry.Layout) []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: l.Stride,
			StepMode:    gputypes.VertexStepModeInstance,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: l.Position, ShaderLocation: 0},
				{Format: gputypes.VertexFormatUnorm8x4, Offset: l.Color, ShaderLocation: 1},
				{Format: gputypes.VertexFormatFloat32, Offset: l.Size, ShaderLocation: 2},
			},
		},
		{
			ArrayStride: l.Stride,
			StepMode:    gputypes.VertexStepModeInstance,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: l.Position, ShaderLocation: 3},
			},
		},
	}
}

// Point returns the point pipeline.
func (s *Set) Point() *Pipeline { return s.point }

// Line returns the line pipeline.
func (s *Set) Line() *Pipeline { return s.line }

// For returns the pipeline drawing series of kind k.
func (s *Set) For(k geometry.Kind) *Pipeline {
	if k == geometry.KindLine {
		return s.line
	}
	return s.point
}

// BindGroupLayout returns the layout of the view bind group.
func (s *Set) BindGroupLayout() hal.BindGroupLayout { return s.bindLayout }

// NewBindGroup binds a view uniform buffer for use with this set.
// The caller destroys it with DestroyBindGroup.
func (s *Set) NewBindGroup(u *device.Uniform) (hal.BindGroup, error) {
	if u == nil || u.Buffer() == nil {
		return nil, fmt.Errorf("pipeline: bind group: %w", device.ErrReleased)
	}
	bg, err := s.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "chart_view_bind",
		Layout: s.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: u.Buffer().NativeHandle(), Offset: 0, Size: u.Size(),
			}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: create bind group: %w", err)
	}
	return bg, nil
}

// DestroyBindGroup destroys a bind group made by NewBindGroup.
func (s *Set) DestroyBindGroup(bg hal.BindGroup) {
	if bg != nil {
		s.dev.DestroyBindGroup(bg)
	}
}

// Instances returns how many instances drawing g takes: one per point, or
// one per segment. A line needs two vertices to draw anything.
func Instances(g *device.GeometryBuffer) uint32 {
	if g == nil || g.Count <= 0 {
		return 0
	}
	if g.Kind == geometry.KindLine {
		return uint32(g.Count - 1)
	}
	return uint32(g.Count)
}

// Record encodes the draw of one series. The bind group must already be set
// on the pass. It returns the number of instances drawn.
func (s *Set) Record(rp hal.RenderPassEncoder, g *device.GeometryBuffer) uint32 {
	n := Instances(g)
	if n == 0 || g.Buffer() == nil {
		return 0
	}
	p := s.For(g.Kind)
	rp.SetPipeline(p.hal)
	rp.SetVertexBuffer(0, g.Buffer(), 0)
	if g.Kind != geometry.KindLine {
		rp.Draw(p.Vertices, n, 0, 0)
		return n
	}
	rp.SetVertexBuffer(1, g.Buffer(), g.Layout.Stride)
	drawSegments(rp, p.Vertices, n)
	return n
}

// drawSegments draws n segments with caps on the series ends only. Segment
// buffers step per instance, so firstInstance selects the segment and
// firstVertex is free to carry the cap flags.
func drawSegments(rp hal.RenderPassEncoder, vertices, n uint32) {
	if n == 1 {
		rp.Draw(vertices, 1, vertices*(capStart|capEnd), 0)
		return
	}
	rp.Draw(vertices, 1, vertices*capStart, 0)
	if n > 2 {
		rp.Draw(vertices, n-2, 0, 1)
	}
	rp.Draw(vertices, 1, vertices*capEnd, n-1)
}

// Destroy releases all pipeline objects in reverse creation order.
// Safe to call on a partially created set.
func (s *Set) Destroy() {
	if s == nil || s.dev == nil {
		return
	}
	for _, p := range []*Pipeline{s.line, s.point} {
		if p == nil {
			continue
		}
		s.dev.DestroyRenderPipeline(p.hal)
		s.dev.DestroyShaderModule(p.shader)
	}
	s.line, s.point = nil, nil
	if s.pipeLayout != nil {
		s.dev.DestroyPipelineLayout(s.pipeLayout)
		s.pipeLayout = nil
	}
	if s.bindLayout != nil {
		s.dev.DestroyBindGroupLayout(s.bindLayout)
		s.bindLayout = nil
	}
}
