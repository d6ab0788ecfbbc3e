package lumen

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/cogentcore/webgpu/wgpu"
)

// Topology selects the primitive assembly mode of a program.
type Topology int

const (
	TopologyTriangleList Topology = iota
	TopologyTriangleStrip
	TopologyLineList
	TopologyPointList
)

func (t Topology) wgpu() wgpu.PrimitiveTopology {
	switch t {
	case TopologyTriangleStrip:
		return wgpu.PrimitiveTopologyTriangleStrip
	case TopologyLineList:
		return wgpu.PrimitiveTopologyLineList
	case TopologyPointList:
		return wgpu.PrimitiveTopologyPointList
	default:
		return wgpu.PrimitiveTopologyTriangleList
	}
}

// CullMode selects the face-culling mode. The zero value is back-face
// culling, matching the pipeline default.
type CullMode int

const (
	CullBack CullMode = iota
	CullFront
	CullNone
)

func (c CullMode) wgpu() wgpu.CullMode {
	switch c {
	case CullFront:
		return wgpu.CullModeFront
	case CullNone:
		return wgpu.CullModeNone
	default:
		return wgpu.CullModeBack
	}
}

// ShaderStage is the pipeline stage a binding is visible to.
type ShaderStage int

const (
	StageVertex ShaderStage = iota
	StageFragment
)

func (s ShaderStage) wgpu() wgpu.ShaderStage {
	if s == StageFragment {
		return wgpu.ShaderStageFragment
	}
	return wgpu.ShaderStageVertex
}

// ResourceKind discriminates the binding resource variants. It is decided at
// descriptor-authoring time; nothing downstream infers kinds from field
// shapes.
type ResourceKind int

const (
	ResourceBuffer ResourceKind = iota
	ResourceTexture
	ResourceSampler
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceBuffer:
		return "buffer"
	case ResourceTexture:
		return "texture"
	default:
		return "sampler"
	}
}

// BufferSlot declares a typed value binding. Global slots bind a named shared
// buffer at a byte offset instead of the entity's own uniform buffer and
// contribute nothing to its size.
type BufferSlot struct {
	Type  ComponentType `json:"type"`
	Count int           `json:"count"`

	Global       bool   `json:"global,omitempty"`
	GlobalName   string `json:"global_name,omitempty"`
	GlobalOffset int    `json:"global_offset,omitempty"`
}

func (s *BufferSlot) byteSize() int {
	return s.Count * s.Type.ByteWidth()
}

// TextureFormat is the pixel format of a texture slot.
type TextureFormat int

const (
	TextureRGBA8Unorm TextureFormat = iota
	TextureBGRA8Unorm
	TextureR8Unorm
)

func (f TextureFormat) wgpu() wgpu.TextureFormat {
	switch f {
	case TextureBGRA8Unorm:
		return wgpu.TextureFormatBGRA8Unorm
	case TextureR8Unorm:
		return wgpu.TextureFormatR8Unorm
	default:
		return wgpu.TextureFormatRGBA8Unorm
	}
}

func (f TextureFormat) bytesPerPixel() int {
	if f == TextureR8Unorm {
		return 1
	}
	return 4
}

// TextureDimension is the dimensionality of a texture slot.
type TextureDimension int

const (
	Texture2D TextureDimension = iota
	Texture1D
	Texture3D
)

func (d TextureDimension) wgpu() wgpu.TextureDimension {
	switch d {
	case Texture1D:
		return wgpu.TextureDimension1D
	case Texture3D:
		return wgpu.TextureDimension3D
	default:
		return wgpu.TextureDimension2D
	}
}

func (d TextureDimension) wgpuView() wgpu.TextureViewDimension {
	switch d {
	case Texture1D:
		return wgpu.TextureViewDimension1D
	case Texture3D:
		return wgpu.TextureViewDimension3D
	default:
		return wgpu.TextureViewDimension2D
	}
}

// TextureSlot declares an image binding. Source is an image.Image or
// PNG-encoded bytes; the decoded image is cropped to the rectangle from
// (OffsetX, OffsetY) to (Width, Height) before upload.
type TextureSlot struct {
	Source  any              `json:"-"`
	PNG     []byte           `json:"png,omitempty"`
	Width   int              `json:"width"`
	Height  int              `json:"height"`
	OffsetX int              `json:"offset_x,omitempty"`
	OffsetY int              `json:"offset_y,omitempty"`
	Format  TextureFormat    `json:"format,omitempty"`
	Dim     TextureDimension `json:"dim,omitempty"`
}

// AddressMode is the sampler wrap behaviour per axis.
type AddressMode int

const (
	AddressClampToEdge AddressMode = iota
	AddressRepeat
	AddressMirrorRepeat
)

func (m AddressMode) wgpu() wgpu.AddressMode {
	switch m {
	case AddressRepeat:
		return wgpu.AddressModeRepeat
	case AddressMirrorRepeat:
		return wgpu.AddressModeMirrorRepeat
	default:
		return wgpu.AddressModeClampToEdge
	}
}

// FilterMode selects nearest or linear filtering.
type FilterMode int

const (
	FilterNearest FilterMode = iota
	FilterLinear
)

func (m FilterMode) wgpu() wgpu.FilterMode {
	if m == FilterLinear {
		return wgpu.FilterModeLinear
	}
	return wgpu.FilterModeNearest
}

func (m FilterMode) wgpuMipmap() wgpu.MipmapFilterMode {
	if m == FilterLinear {
		return wgpu.MipmapFilterModeLinear
	}
	return wgpu.MipmapFilterModeNearest
}

// CompareMode is the sampler comparison function; CompareNone disables
// comparison sampling.
type CompareMode int

const (
	CompareNone CompareMode = iota
	CompareLess
	CompareLessEqual
	CompareGreater
	CompareGreaterEqual
	CompareEqual
	CompareNotEqual
	CompareAlways
	CompareNever
)

func (c CompareMode) wgpu() wgpu.CompareFunction {
	switch c {
	case CompareLess:
		return wgpu.CompareFunctionLess
	case CompareLessEqual:
		return wgpu.CompareFunctionLessEqual
	case CompareGreater:
		return wgpu.CompareFunctionGreater
	case CompareGreaterEqual:
		return wgpu.CompareFunctionGreaterEqual
	case CompareEqual:
		return wgpu.CompareFunctionEqual
	case CompareNotEqual:
		return wgpu.CompareFunctionNotEqual
	case CompareAlways:
		return wgpu.CompareFunctionAlways
	case CompareNever:
		return wgpu.CompareFunctionNever
	default:
		return wgpu.CompareFunctionUndefined
	}
}

// SamplerSlot declares a sampler binding. Zero values take the stated
// defaults: clamp-to-edge addressing, nearest filtering, LOD clamp [0, 32],
// anisotropy 1.
type SamplerSlot struct {
	AddressU    AddressMode `json:"address_u,omitempty"`
	AddressV    AddressMode `json:"address_v,omitempty"`
	AddressW    AddressMode `json:"address_w,omitempty"`
	MagFilter   FilterMode  `json:"mag_filter,omitempty"`
	MinFilter   FilterMode  `json:"min_filter,omitempty"`
	MipFilter   FilterMode  `json:"mip_filter,omitempty"`
	Compare     CompareMode `json:"compare,omitempty"`
	LodMinClamp float32     `json:"lod_min_clamp,omitempty"`
	LodMaxClamp float32     `json:"lod_max_clamp,omitempty"`
	Anisotropy  uint16      `json:"anisotropy,omitempty"`
}

// Binding is one resource slot inside a bind group. Exactly one of Buffer,
// Texture, Sampler is set, selected by Kind.
type Binding struct {
	Stage   ShaderStage  `json:"stage"`
	Kind    ResourceKind `json:"kind"`
	Buffer  *BufferSlot  `json:"buffer,omitempty"`
	Texture *TextureSlot `json:"texture,omitempty"`
	Sampler *SamplerSlot `json:"sampler,omitempty"`
}

func (b *Binding) validate(group, binding int) error {
	switch b.Kind {
	case ResourceBuffer:
		if b.Buffer == nil {
			return fmt.Errorf("group %d binding %d: kind buffer without a buffer slot", group, binding)
		}
	case ResourceTexture:
		if b.Texture == nil {
			return fmt.Errorf("group %d binding %d: kind texture without a texture slot", group, binding)
		}
	case ResourceSampler:
		if b.Sampler == nil {
			return fmt.Errorf("group %d binding %d: kind sampler without a sampler slot", group, binding)
		}
	default:
		return fmt.Errorf("group %d binding %d: unknown resource kind %d", group, binding, b.Kind)
	}
	return nil
}

// VertexAttribute is one logical attribute array before interleaving.
type VertexAttribute struct {
	Location uint32        `json:"location"`
	Type     ComponentType `json:"type"`
	Count    int           `json:"count"`
	Values   []float64     `json:"values"`
}

// ProgramDescriptor is the caller-supplied description of one drawable
// program. It is transient: compilation copies everything it needs.
type ProgramDescriptor struct {
	Shader        string            `json:"shader"`
	Topology      Topology          `json:"topology,omitempty"`
	CullMode      CullMode          `json:"cull_mode,omitempty"`
	VertexEntry   string            `json:"vertex_entry,omitempty"`
	FragmentEntry string            `json:"fragment_entry,omitempty"`
	Attributes    []VertexAttribute `json:"attributes"`
	Groups        [][]Binding       `json:"groups,omitempty"`
	Indices       []uint32          `json:"indices,omitempty"`
}

func (d *ProgramDescriptor) vertexEntry() string {
	if d.VertexEntry == "" {
		return "vs_main"
	}
	return d.VertexEntry
}

func (d *ProgramDescriptor) fragmentEntry() string {
	if d.FragmentEntry == "" {
		return "fs_main"
	}
	return d.FragmentEntry
}

// shaderKey is the structural cache key for pipeline sharing: shader text,
// topology, cull mode, entry points, and the literal attribute contents.
// Bind groups and indices deliberately do not participate.
func (d *ProgramDescriptor) shaderKey() string {
	h := sha256.New()
	io.WriteString(h, d.Shader)
	fmt.Fprintf(h, "|%d|%d|%s|%s", d.Topology, d.CullMode, d.vertexEntry(), d.fragmentEntry())
	for _, a := range d.Attributes {
		fmt.Fprintf(h, "|%d:%d:%d:%v", a.Location, a.Type, a.Count, a.Values)
	}
	return hex.EncodeToString(h.Sum(nil))
}
