package backend

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/glsl"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/wgpu/hal"
)

// Shader entry points every chart pipeline uses.
const (
	VertexEntry   = "vs_main"
	FragmentEntry = "fs_main"
)

// explicitStrategy serves Vulkan, Metal and DX12.
// Vulkan receives precompiled SPIR-V; Metal and DX12 translate validated WGSL
// inside their hal.
type explicitStrategy struct {
	variant gputypes.Backend
}

func newExplicitStrategy(v gputypes.Backend) Strategy {
	return explicitStrategy{variant: v}
}

func (explicitStrategy) Kind() Kind { return KindWebGPU }

func (explicitStrategy) PreferredFormats() []gputypes.TextureFormat {
	return []gputypes.TextureFormat{
		gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatRGBA8Unorm,
	}
}

func (explicitStrategy) PresentMode() hal.PresentMode { return hal.PresentModeFifo }

func (s explicitStrategy) TranslateShader(label, wgsl string) (hal.ShaderSource, error) {
	if s.variant != gputypes.BackendVulkan {
		if _, err := validateWGSL(label, wgsl); err != nil {
			return hal.ShaderSource{}, err
		}
		return hal.ShaderSource{WGSL: wgsl}, nil
	}

	spirv, err := naga.Compile(wgsl)
	if err != nil {
		return hal.ShaderSource{}, fmt.Errorf("%w: %s: %w", ErrShaderTranslation, label, err)
	}
	return hal.ShaderSource{SPIRV: spirvWords(spirv)}, nil
}

// fallbackStrategy serves OpenGL ES. The GLES hal compiles WGSL at pipeline
// creation, so the source is checked against GLSL ES 3.00 up front to fail
// before any pipeline object exists.
type fallbackStrategy struct{}

func newFallbackStrategy(gputypes.Backend) Strategy { return fallbackStrategy{} }

func (fallbackStrategy) Kind() Kind { return KindWebGL }

func (fallbackStrategy) PreferredFormats() []gputypes.TextureFormat {
	return []gputypes.TextureFormat{
		gputypes.TextureFormatRGBA8Unorm,
		gputypes.TextureFormatBGRA8Unorm,
	}
}

func (fallbackStrategy) PresentMode() hal.PresentMode { return hal.PresentModeFifo }

func (fallbackStrategy) TranslateShader(label, wgsl string) (hal.ShaderSource, error) {
	module, err := validateWGSL(label, wgsl)
	if err != nil {
		return hal.ShaderSource{}, err
	}

	for _, entry := range []string{VertexEntry, FragmentEntry} {
		opts := glsl.DefaultOptions()
		opts.LangVersion = glsl.VersionES300
		opts.EntryPoint = entry
		if _, _, err := glsl.Compile(module, opts); err != nil {
			return hal.ShaderSource{}, fmt.Errorf("%w: %s: glsl %s: %w", ErrShaderTranslation, label, entry, err)
		}
	}
	return hal.ShaderSource{WGSL: wgsl}, nil
}

func validateWGSL(label, src string) (*ir.Module, error) {
	ast, err := naga.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrShaderTranslation, label, err)
	}
	module, err := naga.LowerWithSource(ast, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: lower: %w", ErrShaderTranslation, label, err)
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: validate: %w", ErrShaderTranslation, label, err)
	}
	if len(verrs) > 0 {
		return nil, fmt.Errorf("%w: %s: %w", ErrShaderTranslation, label, &verrs[0])
	}
	return module, nil
}

// spirvWords converts SPIR-V bytes to little-endian 32-bit words.
func spirvWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words
}
