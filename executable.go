package lumen

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// uniformSlot is the per-binding metadata recorded at compile time. For value
// slots it carries the byte offset and size inside the entity's uniform
// buffer; for image slots the upload dimensions and the texture handles.
// The slot table is shared between an executable and its clones.
type uniformSlot struct {
	kind ResourceKind

	// value slots
	ctype  ComponentType
	offset int
	size   int
	global bool
	name   string // global buffer name
	goff   int    // byte offset inside the global buffer

	// image slots
	width   uint32
	height  uint32
	format  TextureFormat
	cropX   int
	cropY   int
	texture *wgpu.Texture
	view    *wgpu.TextureView

	sampler *wgpu.Sampler
}

// Executable is one compiled program: the pipeline and geometry buffers
// (shared across every entity with the same shader key) plus the per-entity
// uniform buffer and bind groups.
type Executable struct {
	pipeline     *wgpu.RenderPipeline
	vertexBuffer *wgpu.Buffer
	vertexCount  uint32
	indexBuffer  *wgpu.Buffer
	indexFormat  wgpu.IndexFormat
	indexCount   uint32

	uniformBuffer *wgpu.Buffer
	uniformSize   int
	bindGroups    []*wgpu.BindGroup

	// slots is indexed [group][binding]; shared with clones.
	slots [][]*uniformSlot

	z float64

	// update applies a binding mutation against this executable's own
	// buffers; bound at compile/clone time.
	update func(group, binding int, value any) error

	// releaseShared tears down the pipeline-bound shared objects (pipeline,
	// vertex/index buffers, textures, samplers). Called exactly once, when
	// the last referencing entity is freed.
	releaseShared func()

	// releaseOwn tears down the per-entity uniform buffer and bind groups.
	releaseOwn func()
}

// Z returns the draw-order key; lower draws first.
func (e *Executable) Z() float64 { return e.z }

func (e *Executable) slot(group, binding int) *uniformSlot {
	if group < 0 || group >= len(e.slots) {
		return nil
	}
	if binding < 0 || binding >= len(e.slots[group]) {
		return nil
	}
	return e.slots[group][binding]
}
