package lumen

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// vertexLayout is the result of interleaving the descriptor's attribute
// arrays into one buffer.
type vertexLayout struct {
	data    []byte
	stride  int
	count   int // logical elements
	attribs []wgpu.VertexAttribute
}

// interleave packs N independent attribute arrays into a single interleaved
// vertex buffer. Every attribute must encode the same element count
// (len(values) / count) as the first one.
func interleave(attrs []VertexAttribute) (*vertexLayout, error) {
	if len(attrs) == 0 {
		return &vertexLayout{}, nil
	}

	count := -1
	stride := 0
	offsets := make([]int, len(attrs))
	attribs := make([]wgpu.VertexAttribute, len(attrs))
	for i, a := range attrs {
		if a.Count < 1 || a.Count > 4 {
			return nil, fmt.Errorf("attribute at location %d: component count %d out of range 1-4", a.Location, a.Count)
		}
		if len(a.Values)%a.Count != 0 {
			return nil, fmt.Errorf("attribute at location %d: %d values are not divisible by component count %d", a.Location, len(a.Values), a.Count)
		}
		elements := len(a.Values) / a.Count
		if count == -1 {
			count = elements
		} else if elements != count {
			return nil, fmt.Errorf("attribute size mismatch at location %d: values %v encode %d elements, want %d", a.Location, a.Values, elements, count)
		}

		format, err := vertexFormat(a.Type, a.Count)
		if err != nil {
			return nil, err
		}
		offsets[i] = stride
		attribs[i] = wgpu.VertexAttribute{
			ShaderLocation: a.Location,
			Offset:         uint64(stride),
			Format:         format,
		}
		stride += a.Count * a.Type.ByteWidth()
	}

	data := make([]byte, stride*count)
	for e := 0; e < count; e++ {
		base := e * stride
		for i, a := range attrs {
			w := a.Type.ByteWidth()
			off := base + offsets[i]
			for c := 0; c < a.Count; c++ {
				putComponent(data, off+c*w, a.Type, a.Values[e*a.Count+c])
			}
		}
	}

	return &vertexLayout{
		data:    data,
		stride:  stride,
		count:   count,
		attribs: attribs,
	}, nil
}

func (v *vertexLayout) bufferLayout() wgpu.VertexBufferLayout {
	return wgpu.VertexBufferLayout{
		ArrayStride: uint64(v.stride),
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes:  v.attribs,
	}
}
