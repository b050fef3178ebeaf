package geometry

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

// ColorKind tags which representation a Color was created from.
type ColorKind uint8

const (
	// ColorInvalid is the zero Color. It never resolves.
	ColorInvalid ColorKind = iota

	// ColorHex is a "#RRGGBB" or "#RRGGBBAA" string.
	ColorHex

	// ColorTuple is three or four numeric channels, either all in [0,1]
	// or in [0,255].
	ColorTuple

	// ColorRGBA is a structured color with byte channels.
	ColorRGBA
)

// String returns the kind name.
func (k ColorKind) String() string {
	switch k {
	case ColorHex:
		return "Hex"
	case ColorTuple:
		return "RgbTuple"
	case ColorRGBA:
		return "Rgba"
	default:
		return "Invalid"
	}
}

// Color is a host color value in one of the accepted representations.
// Resolve converts it to the canonical four-byte form used on the GPU.
//
// Color is a small value type; the zero value is invalid.
type Color struct {
	kind  ColorKind
	hex   string
	tuple [4]float64
	n     int
	rgba  [4]uint8
}

// Hex returns a Color parsed lazily from a hex string. The leading '#' is
// optional; both 6 and 8 digit forms are accepted.
func Hex(s string) Color {
	return Color{kind: ColorHex, hex: s}
}

// Tuple returns a Color from three (RGB) or four (RGBA) numeric channels.
//
// When every channel lies in [0,1] the channels are unit floats, otherwise
// they are byte channels in [0,255]. Any other channel count is invalid.
func Tuple(ch ...float64) Color {
	c := Color{kind: ColorTuple, n: len(ch)}
	copy(c.tuple[:], ch)
	return c
}

// RGBA returns a structured Color with straight-alpha byte channels.
func RGBA(r, g, b, a uint8) Color {
	return Color{kind: ColorRGBA, rgba: [4]uint8{r, g, b, a}}
}

// FromColor converts any image/color value into a structured Color.
func FromColor(c color.Color) Color {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return RGBA(n.R, n.G, n.B, n.A)
}

// Kind reports the representation tag.
func (c Color) Kind() ColorKind { return c.kind }

// IsZero reports whether c is the zero (unset) Color.
func (c Color) IsZero() bool { return c.kind == ColorInvalid }

// Resolve returns the canonical RGBA bytes for c.
// Unparseable values return an error wrapping ErrInvalidColor.
func (c Color) Resolve() ([4]uint8, error) {
	switch c.kind {
	case ColorHex:
		return parseHex(c.hex)
	case ColorTuple:
		return resolveTuple(c.tuple[:min(c.n, len(c.tuple))], c.n)
	case ColorRGBA:
		return c.rgba, nil
	default:
		return [4]uint8{}, fmt.Errorf("%w: unset color", ErrInvalidColor)
	}
}

// String formats c the way it was supplied.
func (c Color) String() string {
	switch c.kind {
	case ColorHex:
		return c.hex
	case ColorTuple:
		if c.n > len(c.tuple) {
			return fmt.Sprintf("tuple(%d channels)", c.n)
		}
		parts := make([]string, c.n)
		for i := range parts {
			parts[i] = strconv.FormatFloat(c.tuple[i], 'g', -1, 64)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case ColorRGBA:
		return fmt.Sprintf("rgba(%d, %d, %d, %d)", c.rgba[0], c.rgba[1], c.rgba[2], c.rgba[3])
	default:
		return "invalid"
	}
}

// Unit returns the resolved color as float channels in [0,1].
func (c Color) Unit() ([4]float64, error) {
	b, err := c.Resolve()
	if err != nil {
		return [4]float64{}, err
	}
	return [4]float64{
		float64(b[0]) / 255,
		float64(b[1]) / 255,
		float64(b[2]) / 255,
		float64(b[3]) / 255,
	}, nil
}

func parseHex(s string) ([4]uint8, error) {
	digits := strings.TrimPrefix(s, "#")
	if len(digits) != 6 && len(digits) != 8 {
		return [4]uint8{}, fmt.Errorf("%w: %q is not #RRGGBB or #RRGGBBAA", ErrInvalidColor, s)
	}
	for i := 0; i < len(digits); i++ {
		if !isHexDigit(digits[i]) {
			return [4]uint8{}, fmt.Errorf("%w: %q has non-hex digit %q", ErrInvalidColor, s, digits[i])
		}
	}

	v, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return [4]uint8{}, fmt.Errorf("%w: %q: %w", ErrInvalidColor, s, err)
	}
	if len(digits) == 6 {
		v = v<<8 | 0xff
	}
	return [4]uint8{uint8(v >> 24), uint8(v >> 16), uint8(v >> 8), uint8(v)}, nil
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func resolveTuple(ch []float64, n int) ([4]uint8, error) {
	if n != 3 && n != 4 {
		return [4]uint8{}, fmt.Errorf("%w: tuple needs 3 or 4 channels, got %d", ErrInvalidColor, n)
	}

	unit := true
	for i, v := range ch {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 255 {
			return [4]uint8{}, fmt.Errorf("%w: channel %d = %g out of range", ErrInvalidColor, i, v)
		}
		if v > 1 {
			unit = false
		}
	}

	out := [4]uint8{0, 0, 0, 255}
	for i, v := range ch {
		if unit {
			v *= 255
		}
		out[i] = uint8(math.Round(v))
	}
	return out, nil
}
