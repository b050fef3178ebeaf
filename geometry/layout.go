package geometry

import (
	"encoding/binary"
	"math"
)

// Layout describes where each attribute lives inside one packed vertex.
type Layout struct {
	Stride   uint64
	Position uint64
	Color    uint64
	Size     uint64
}

// Packed is the single layout produced by Build.
var Packed = Layout{
	Stride:   16,
	Position: 0,
	Color:    8,
	Size:     12,
}

// Vertex is one decoded packed vertex.
type Vertex struct {
	X, Y  float32
	Color [4]uint8
	Size  float32
}

// putVertex writes v at dst[0:Packed.Stride].
func putVertex(dst []byte, x, y float32, rgba [4]uint8, size float32) {
	_ = dst[15]
	binary.LittleEndian.PutUint32(dst[0:], math.Float32bits(x))
	binary.LittleEndian.PutUint32(dst[4:], math.Float32bits(y))
	dst[8], dst[9], dst[10], dst[11] = rgba[0], rgba[1], rgba[2], rgba[3]
	binary.LittleEndian.PutUint32(dst[12:], math.Float32bits(size))
}

// DecodeVertex reads the vertex at index i from packed data.
func DecodeVertex(data []byte, i int) Vertex {
	off := uint64(i) * Packed.Stride
	b := data[off : off+Packed.Stride]
	return Vertex{
		X:     math.Float32frombits(binary.LittleEndian.Uint32(b[0:])),
		Y:     math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
		Color: [4]uint8{b[8], b[9], b[10], b[11]},
		Size:  math.Float32frombits(binary.LittleEndian.Uint32(b[12:])),
	}
}
