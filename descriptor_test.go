package lumen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const testShader = `
@vertex fn vs_main() -> @builtin(position) vec4<f32> { return vec4<f32>(0.0); }
@fragment fn fs_main() -> @location(0) vec4<f32> { return vec4<f32>(1.0); }
`

func triangleDescriptor() *ProgramDescriptor {
	return &ProgramDescriptor{
		Shader: testShader,
		Attributes: []VertexAttribute{
			{Location: 0, Type: ComponentFloat32, Count: 2, Values: []float64{0, 0, 1, 0, 0, 1}},
		},
		Indices: []uint32{0, 1, 2},
	}
}

func TestShaderKey_StructuralEquality(t *testing.T) {
	a := triangleDescriptor()
	b := triangleDescriptor()
	assert.Equal(t, a.shaderKey(), b.shaderKey())

	// Bind groups and indices do not participate in the key.
	b.Indices = nil
	b.Groups = [][]Binding{{{Kind: ResourceBuffer, Buffer: &BufferSlot{Type: ComponentFloat32, Count: 4}}}}
	assert.Equal(t, a.shaderKey(), b.shaderKey())
}

func TestShaderKey_DiffersOnPipelineInputs(t *testing.T) {
	a := triangleDescriptor()

	b := triangleDescriptor()
	b.Shader += "\n"
	assert.NotEqual(t, a.shaderKey(), b.shaderKey())

	c := triangleDescriptor()
	c.Topology = TopologyLineList
	assert.NotEqual(t, a.shaderKey(), c.shaderKey())

	d := triangleDescriptor()
	d.CullMode = CullNone
	assert.NotEqual(t, a.shaderKey(), d.shaderKey())

	e := triangleDescriptor()
	e.VertexEntry = "vs_other"
	assert.NotEqual(t, a.shaderKey(), e.shaderKey())

	f := triangleDescriptor()
	f.Attributes[0].Values[0] = 0.5
	assert.NotEqual(t, a.shaderKey(), f.shaderKey())
}

func TestDescriptor_EntryPointDefaults(t *testing.T) {
	d := &ProgramDescriptor{}
	assert.Equal(t, "vs_main", d.vertexEntry())
	assert.Equal(t, "fs_main", d.fragmentEntry())

	d.VertexEntry = "vert"
	d.FragmentEntry = "frag"
	assert.Equal(t, "vert", d.vertexEntry())
	assert.Equal(t, "frag", d.fragmentEntry())
}

func TestBinding_Validate(t *testing.T) {
	b := Binding{Kind: ResourceBuffer}
	assert.Error(t, b.validate(0, 0))
	b.Buffer = &BufferSlot{Type: ComponentFloat32, Count: 4}
	assert.NoError(t, b.validate(0, 0))

	tx := Binding{Kind: ResourceTexture}
	assert.Error(t, tx.validate(0, 1))
	tx.Texture = &TextureSlot{Width: 1, Height: 1}
	assert.NoError(t, tx.validate(0, 1))

	sm := Binding{Kind: ResourceSampler}
	assert.Error(t, sm.validate(1, 0))
	sm.Sampler = &SamplerSlot{}
	assert.NoError(t, sm.validate(1, 0))

	bad := Binding{Kind: ResourceKind(42)}
	assert.Error(t, bad.validate(0, 0))
}
