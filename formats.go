package lumen

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
)

// ComponentType is the scalar type of one vertex-attribute or uniform
// component. ComponentNone marks raw byte-sized allocations (opaque global
// buffers).
type ComponentType int

const (
	ComponentNone ComponentType = iota
	ComponentFloat32
	ComponentUint32
	ComponentSint32
	ComponentUint16
	ComponentSint16
	ComponentUint8
	ComponentSint8
)

func (t ComponentType) String() string {
	switch t {
	case ComponentNone:
		return "none"
	case ComponentFloat32:
		return "float32"
	case ComponentUint32:
		return "uint32"
	case ComponentSint32:
		return "sint32"
	case ComponentUint16:
		return "uint16"
	case ComponentSint16:
		return "sint16"
	case ComponentUint8:
		return "uint8"
	case ComponentSint8:
		return "sint8"
	default:
		return fmt.Sprintf("ComponentType(%d)", int(t))
	}
}

// ByteWidth returns the size of one component. ComponentNone counts as one
// byte so raw sizes pass through unchanged.
func (t ComponentType) ByteWidth() int {
	switch t {
	case ComponentFloat32, ComponentUint32, ComponentSint32:
		return 4
	case ComponentUint16, ComponentSint16:
		return 2
	case ComponentUint8, ComponentSint8, ComponentNone:
		return 1
	default:
		return 0
	}
}

func (t ComponentType) narrowInt() bool {
	switch t {
	case ComponentUint16, ComponentSint16, ComponentUint8, ComponentSint8:
		return true
	}
	return false
}

// vertexFormat maps a component type and count onto the wire format tag the
// pipeline consumes. Counts of 1 and 3 do not exist for 8- and 16-bit integer
// types (alignment constraint of the hardware vertex fetcher).
func vertexFormat(t ComponentType, count int) (wgpu.VertexFormat, error) {
	if count < 1 || count > 4 {
		return 0, fmt.Errorf("vertex format %s x%d: component count must be 1-4", t, count)
	}
	if t.narrowInt() && (count == 1 || count == 3) {
		return 0, fmt.Errorf("vertex format %s x%d: counts 1 and 3 are not addressable for 8/16-bit integer components", t, count)
	}
	switch t {
	case ComponentFloat32:
		switch count {
		case 1:
			return wgpu.VertexFormatFloat32, nil
		case 2:
			return wgpu.VertexFormatFloat32x2, nil
		case 3:
			return wgpu.VertexFormatFloat32x3, nil
		case 4:
			return wgpu.VertexFormatFloat32x4, nil
		}
	case ComponentUint32:
		switch count {
		case 1:
			return wgpu.VertexFormatUint32, nil
		case 2:
			return wgpu.VertexFormatUint32x2, nil
		case 3:
			return wgpu.VertexFormatUint32x3, nil
		case 4:
			return wgpu.VertexFormatUint32x4, nil
		}
	case ComponentSint32:
		switch count {
		case 1:
			return wgpu.VertexFormatSint32, nil
		case 2:
			return wgpu.VertexFormatSint32x2, nil
		case 3:
			return wgpu.VertexFormatSint32x3, nil
		case 4:
			return wgpu.VertexFormatSint32x4, nil
		}
	case ComponentUint16:
		if count == 2 {
			return wgpu.VertexFormatUint16x2, nil
		}
		return wgpu.VertexFormatUint16x4, nil
	case ComponentSint16:
		if count == 2 {
			return wgpu.VertexFormatSint16x2, nil
		}
		return wgpu.VertexFormatSint16x4, nil
	case ComponentUint8:
		if count == 2 {
			return wgpu.VertexFormatUint8x2, nil
		}
		return wgpu.VertexFormatUint8x4, nil
	case ComponentSint8:
		if count == 2 {
			return wgpu.VertexFormatSint8x2, nil
		}
		return wgpu.VertexFormatSint8x4, nil
	}
	return 0, fmt.Errorf("vertex format: unsupported component type %s", t)
}

// putComponent writes one little-endian value of type t at buf[off:].
func putComponent(buf []byte, off int, t ComponentType, v float64) {
	switch t {
	case ComponentFloat32:
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(float32(v)))
	case ComponentUint32:
		binary.LittleEndian.PutUint32(buf[off:], uint32(v))
	case ComponentSint32:
		binary.LittleEndian.PutUint32(buf[off:], uint32(int32(v)))
	case ComponentUint16:
		binary.LittleEndian.PutUint16(buf[off:], uint16(v))
	case ComponentSint16:
		binary.LittleEndian.PutUint16(buf[off:], uint16(int16(v)))
	case ComponentUint8:
		buf[off] = uint8(v)
	case ComponentSint8:
		buf[off] = uint8(int8(v))
	}
}

// encodeComponents encodes a numeric sequence as packed little-endian values
// of the given component type.
func encodeComponents(t ComponentType, values []float64) ([]byte, error) {
	w := t.ByteWidth()
	if w == 0 || t == ComponentNone {
		return nil, fmt.Errorf("encode: component type %s has no encoding", t)
	}
	buf := make([]byte, len(values)*w)
	for i, v := range values {
		putComponent(buf, i*w, t, v)
	}
	return buf, nil
}

// indexData selects the index width for a vertex element count, synthesizing
// a sequential 0..count index list when none is supplied. The bool result
// reports whether synthesis happened.
func indexData(indices []uint32, vertexCount int) ([]byte, wgpu.IndexFormat, uint32, bool) {
	synthesized := false
	if len(indices) == 0 {
		indices = make([]uint32, vertexCount)
		for i := range indices {
			indices[i] = uint32(i)
		}
		synthesized = true
	}
	if vertexCount <= math.MaxUint16 {
		buf := make([]byte, len(indices)*2)
		for i, idx := range indices {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(idx))
		}
		return buf, wgpu.IndexFormatUint16, uint32(len(indices)), synthesized
	}
	buf := make([]byte, len(indices)*4)
	for i, idx := range indices {
		binary.LittleEndian.PutUint32(buf[i*4:], idx)
	}
	return buf, wgpu.IndexFormatUint32, uint32(len(indices)), synthesized
}
