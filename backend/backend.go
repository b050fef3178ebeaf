package backend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Common backend errors.
var (
	// ErrNoCapableBackend is returned when neither tier can be initialized.
	ErrNoCapableBackend = errors.New("backend: no capable backend")

	// ErrShaderTranslation is returned when a shader fails to translate for
	// the selected tier.
	ErrShaderTranslation = errors.New("backend: shader translation failed")

	// ErrUnknownKind is returned by ParseKind for unrecognized names.
	ErrUnknownKind = errors.New("backend: unknown kind")
)

// Kind is the backend auto-detection result exposed to hosts.
type Kind uint8

const (
	// KindNone means no backend was selected.
	KindNone Kind = iota

	// KindWebGPU is the explicit GPU tier.
	KindWebGPU

	// KindWebGL is the fallback immediate-mode tier.
	KindWebGL
)

// String returns "webgpu", "webgl", or "none".
func (k Kind) String() string {
	switch k {
	case KindWebGPU:
		return "webgpu"
	case KindWebGL:
		return "webgl"
	default:
		return "none"
	}
}

// ParseKind parses a Kind name. The empty string and "auto" yield KindNone,
// which Select treats as "no preference".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto", "none":
		return KindNone, nil
	case "webgpu":
		return KindWebGPU, nil
	case "webgl":
		return KindWebGL, nil
	default:
		return KindNone, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Strategy answers the per-tier questions of the render path.
// Implementations are chosen once by Select.
type Strategy interface {
	// Kind returns the tier this strategy serves.
	Kind() Kind

	// PreferredFormats lists surface formats in order of preference.
	PreferredFormats() []gputypes.TextureFormat

	// PresentMode returns the swap interval mode for window surfaces.
	PresentMode() hal.PresentMode

	// TranslateShader prepares WGSL source for the selected hal backend.
	// Errors wrap ErrShaderTranslation.
	TranslateShader(label, wgsl string) (hal.ShaderSource, error)
}

// Selection is the result of a successful probe. It owns the hal instance
// until Release is called.
type Selection struct {
	Kind     Kind
	Variant  gputypes.Backend
	Strategy Strategy
	Instance hal.Instance
	Adapter  hal.ExposedAdapter
}

// Release destroys the hal instance. Release is safe to call more than once.
func (s *Selection) Release() {
	if s == nil || s.Instance == nil {
		return
	}
	s.Instance.Destroy()
	s.Instance = nil
}

// String describes the selection for logs.
func (s *Selection) String() string {
	if s == nil {
		return KindNone.String()
	}
	return fmt.Sprintf("%s (%s, %s)", s.Kind, s.Variant, s.Adapter.Info.Name)
}
