package lumen

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/cogentcore/webgpu/wgpu"
	xdraw "golang.org/x/image/draw"
)

// Compiler turns a ProgramDescriptor into GPU objects. It is a pure
// translation layer: it owns no entity state, only the device handles and
// the global buffer table it binds against.
type Compiler struct {
	device      *wgpu.Device
	queue       *wgpu.Queue
	format      wgpu.TextureFormat // fragment target format, from the surface
	depthFormat wgpu.TextureFormat
	globals     *globalBuffers
	faults      FaultObserver
	log         Logger
}

func NewCompiler(device *wgpu.Device, queue *wgpu.Queue, format wgpu.TextureFormat, globals *globalBuffers, faults FaultObserver, log Logger) *Compiler {
	if log == nil {
		log = NewNopLogger()
	}
	return &Compiler{
		device:      device,
		queue:       queue,
		format:      format,
		depthFormat: wgpu.TextureFormatDepth24Plus,
		globals:     globals,
		faults:      faults,
		log:         log,
	}
}

// uniformLayout walks the descriptor's bind groups and produces the
// per-binding slot table plus the size of the entity uniform buffer. Global
// buffer slots are excluded from the sum and contribute no local offset.
func uniformLayout(groups [][]Binding) ([][]*uniformSlot, int, error) {
	slots := make([][]*uniformSlot, len(groups))
	size := 0
	for gi, group := range groups {
		slots[gi] = make([]*uniformSlot, len(group))
		for bi := range group {
			b := &group[bi]
			if err := b.validate(gi, bi); err != nil {
				return nil, 0, err
			}
			switch b.Kind {
			case ResourceBuffer:
				s := &uniformSlot{
					kind:  ResourceBuffer,
					ctype: b.Buffer.Type,
					size:  b.Buffer.byteSize(),
				}
				if b.Buffer.Global {
					s.global = true
					s.name = b.Buffer.GlobalName
					s.goff = b.Buffer.GlobalOffset
				} else {
					s.offset = size
					size += s.size
				}
				slots[gi][bi] = s
			case ResourceTexture:
				t := b.Texture
				s := &uniformSlot{
					kind:   ResourceTexture,
					width:  uint32(t.Width - t.OffsetX),
					height: uint32(t.Height - t.OffsetY),
					format: t.Format,
					cropX:  t.OffsetX,
					cropY:  t.OffsetY,
				}
				if s.width == 0 || s.height == 0 {
					return nil, 0, fmt.Errorf("group %d binding %d: texture crop (%d,%d)-(%d,%d) is empty", gi, bi, t.OffsetX, t.OffsetY, t.Width, t.Height)
				}
				slots[gi][bi] = s
			case ResourceSampler:
				slots[gi][bi] = &uniformSlot{kind: ResourceSampler}
			}
		}
	}
	return slots, size, nil
}

// bindGroupLayouts emits one layout per descriptor group, each entry visible
// to its declared stage only.
func (c *Compiler) bindGroupLayouts(desc *ProgramDescriptor) ([]*wgpu.BindGroupLayout, error) {
	layouts := make([]*wgpu.BindGroupLayout, len(desc.Groups))
	for gi, group := range desc.Groups {
		entries := make([]wgpu.BindGroupLayoutEntry, len(group))
		for bi := range group {
			b := &group[bi]
			entry := wgpu.BindGroupLayoutEntry{
				Binding:    uint32(bi),
				Visibility: b.Stage.wgpu(),
			}
			switch b.Kind {
			case ResourceBuffer:
				entry.Buffer.Type = wgpu.BufferBindingTypeUniform
			case ResourceTexture:
				entry.Texture.SampleType = wgpu.TextureSampleTypeFloat
				entry.Texture.ViewDimension = b.Texture.Dim.wgpuView()
			case ResourceSampler:
				if b.Sampler.Compare != CompareNone {
					entry.Sampler.Type = wgpu.SamplerBindingTypeComparison
				} else {
					entry.Sampler.Type = wgpu.SamplerBindingTypeFiltering
				}
			}
			entries[bi] = entry
		}
		layout, err := c.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("Group %d Layout", gi),
			Entries: entries,
		})
		if err != nil {
			reportFault(c.faults, fmt.Sprintf("create bind group layout %d", gi), err)
			releaseLayouts(layouts[:gi])
			return nil, err
		}
		layouts[gi] = layout
	}
	return layouts, nil
}

func releaseLayouts(layouts []*wgpu.BindGroupLayout) {
	for _, l := range layouts {
		if l != nil {
			l.Release()
		}
	}
}

// Compile builds the full object set for a descriptor: pipeline, interleaved
// vertex buffer, index buffer, uniform buffer, textures, samplers and bind
// groups, plus the bound update operation.
func (c *Compiler) Compile(desc *ProgramDescriptor) (*Executable, error) {
	slots, uniformSize, err := uniformLayout(desc.Groups)
	if err != nil {
		return nil, err
	}

	vlayout, err := interleave(desc.Attributes)
	if err != nil {
		return nil, err
	}

	if len(desc.Indices) == 0 {
		c.log.Warnf("descriptor has no indices, synthesizing sequential 0..%d", vlayout.count)
	}
	idxData, idxFormat, idxCount, _ := indexData(desc.Indices, vlayout.count)

	var vertexBuf *wgpu.Buffer
	if len(vlayout.data) > 0 {
		vertexBuf, err = c.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Label:    "Vertex Buffer",
			Contents: vlayout.data,
			Usage:    wgpu.BufferUsageVertex,
		})
		if err != nil {
			reportFault(c.faults, "create vertex buffer", err)
			return nil, err
		}
	}

	indexBuf, err := c.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Index Buffer",
		Contents: idxData,
		Usage:    wgpu.BufferUsageIndex,
	})
	if err != nil {
		reportFault(c.faults, "create index buffer", err)
		if vertexBuf != nil {
			vertexBuf.Release()
		}
		return nil, err
	}

	// Handles committed from here on must be released again on any
	// failing branch; partially materialized slot resources included.
	fail := func(pipeline *wgpu.RenderPipeline, err error) (*Executable, error) {
		if pipeline != nil {
			pipeline.Release()
		}
		if vertexBuf != nil {
			vertexBuf.Release()
		}
		indexBuf.Release()
		releaseSlotResources(slots)
		return nil, err
	}

	layouts, err := c.bindGroupLayouts(desc)
	if err != nil {
		return fail(nil, err)
	}
	defer releaseLayouts(layouts)

	pipeline, err := c.createPipeline(desc, vlayout, layouts)
	if err != nil {
		return fail(nil, err)
	}

	if err := c.materializeResources(desc, slots); err != nil {
		return fail(pipeline, err)
	}

	exec := &Executable{
		pipeline:     pipeline,
		vertexBuffer: vertexBuf,
		vertexCount:  uint32(vlayout.count),
		indexBuffer:  indexBuf,
		indexFormat:  idxFormat,
		indexCount:   idxCount,
		uniformSize:  uniformSize,
		slots:        slots,
	}
	exec.releaseShared = func() {
		pipeline.Release()
		if vertexBuf != nil {
			vertexBuf.Release()
		}
		indexBuf.Release()
		releaseSlotResources(slots)
	}

	if err := c.attachOwn(exec, desc, layouts); err != nil {
		return fail(pipeline, err)
	}
	return exec, nil
}

// releaseSlotResources drops the textures, views and samplers recorded in a
// slot table; nil handles (not yet materialized) are skipped.
func releaseSlotResources(slots [][]*uniformSlot) {
	for _, group := range slots {
		for _, s := range group {
			if s == nil {
				continue
			}
			if s.view != nil {
				s.view.Release()
				s.view = nil
			}
			if s.texture != nil {
				s.texture.Release()
				s.texture = nil
			}
			if s.sampler != nil {
				s.sampler.Release()
				s.sampler = nil
			}
		}
	}
}

// Clone is the cheap path for a descriptor whose shader key already has a
// compiled executable: only the bind group layouts, a fresh uniform buffer
// and fresh bind groups are produced; pipeline, vertex buffer, index buffer,
// textures and samplers are reused verbatim.
func (c *Compiler) Clone(desc *ProgramDescriptor, shared *Executable) (*Executable, error) {
	layouts, err := c.bindGroupLayouts(desc)
	if err != nil {
		return nil, err
	}
	defer releaseLayouts(layouts)

	exec := &Executable{
		pipeline:     shared.pipeline,
		vertexBuffer: shared.vertexBuffer,
		vertexCount:  shared.vertexCount,
		indexBuffer:  shared.indexBuffer,
		indexFormat:  shared.indexFormat,
		indexCount:   shared.indexCount,
		uniformSize:  shared.uniformSize,
		slots:        shared.slots,
	}
	if err := c.attachOwn(exec, desc, layouts); err != nil {
		return nil, err
	}
	return exec, nil
}

// attachOwn gives an executable its per-entity state: uniform buffer, bind
// groups and the bound update operation.
func (c *Compiler) attachOwn(exec *Executable, desc *ProgramDescriptor, layouts []*wgpu.BindGroupLayout) error {
	if exec.uniformSize > 0 {
		buf, err := c.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: "Uniform Buffer",
			Size:  uint64(exec.uniformSize),
			Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			reportFault(c.faults, "create uniform buffer", err)
			return err
		}
		exec.uniformBuffer = buf
	}

	groups, err := c.makeBindGroups(layouts, exec.slots, exec.uniformBuffer)
	if err != nil {
		if exec.uniformBuffer != nil {
			exec.uniformBuffer.Release()
			exec.uniformBuffer = nil
		}
		return err
	}
	exec.bindGroups = groups

	uniformBuf := exec.uniformBuffer
	exec.releaseOwn = func() {
		if uniformBuf != nil {
			uniformBuf.Release()
		}
		for _, bg := range groups {
			bg.Release()
		}
	}
	exec.update = c.bindUpdate(exec)
	return nil
}

// materializeResources allocates the concrete textures and samplers recorded
// in the slot table.
func (c *Compiler) materializeResources(desc *ProgramDescriptor, slots [][]*uniformSlot) error {
	for gi, group := range desc.Groups {
		for bi := range group {
			b := &group[bi]
			s := slots[gi][bi]
			switch b.Kind {
			case ResourceTexture:
				if err := c.createTexture(b.Texture, s); err != nil {
					return err
				}
			case ResourceSampler:
				sampler, err := c.createSampler(b.Sampler)
				if err != nil {
					return err
				}
				s.sampler = sampler
			}
		}
	}
	return nil
}

func (c *Compiler) createTexture(t *TextureSlot, s *uniformSlot) error {
	src := t.Source
	if src == nil && t.PNG != nil {
		src = t.PNG
	}
	texels, err := decodeTexels(src, s)
	if err != nil {
		return err
	}

	extent := wgpu.Extent3D{
		Width:              s.width,
		Height:             s.height,
		DepthOrArrayLayers: 1,
	}
	texture, err := c.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Texture",
		Size:          extent,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     t.Dim.wgpu(),
		Format:        t.Format.wgpu(),
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		reportFault(c.faults, "create texture", err)
		return err
	}
	view, err := texture.CreateView(nil)
	if err != nil {
		reportFault(c.faults, "create texture view", err)
		texture.Release()
		return err
	}

	c.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		texels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  s.width * uint32(s.format.bytesPerPixel()),
			RowsPerImage: s.height,
		},
		&extent,
	)

	s.texture = texture
	s.view = view
	return nil
}

func (c *Compiler) createSampler(sl *SamplerSlot) (*wgpu.Sampler, error) {
	lodMax := sl.LodMaxClamp
	if lodMax == 0 {
		lodMax = 32
	}
	anisotropy := sl.Anisotropy
	if anisotropy == 0 {
		anisotropy = 1
	}
	sampler, err := c.device.CreateSampler(&wgpu.SamplerDescriptor{
		AddressModeU:  sl.AddressU.wgpu(),
		AddressModeV:  sl.AddressV.wgpu(),
		AddressModeW:  sl.AddressW.wgpu(),
		MagFilter:     sl.MagFilter.wgpu(),
		MinFilter:     sl.MinFilter.wgpu(),
		MipmapFilter:  sl.MipFilter.wgpuMipmap(),
		LodMinClamp:   sl.LodMinClamp,
		LodMaxClamp:   lodMax,
		Compare:       sl.Compare.wgpu(),
		MaxAnisotropy: anisotropy,
	})
	if err != nil {
		reportFault(c.faults, "create sampler", err)
		return nil, err
	}
	return sampler, nil
}

func (c *Compiler) createPipeline(desc *ProgramDescriptor, vlayout *vertexLayout, layouts []*wgpu.BindGroupLayout) (*wgpu.RenderPipeline, error) {
	shader, err := c.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Program Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: desc.Shader},
	})
	if err != nil {
		reportFault(c.faults, "create shader module", err)
		return nil, err
	}
	defer shader.Release()

	pipelineLayout, err := c.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "Program Pipeline Layout",
		BindGroupLayouts: layouts,
	})
	if err != nil {
		reportFault(c.faults, "create pipeline layout", err)
		return nil, err
	}
	defer pipelineLayout.Release()

	var buffers []wgpu.VertexBufferLayout
	if vlayout.stride > 0 {
		buffers = []wgpu.VertexBufferLayout{vlayout.bufferLayout()}
	}

	pipeline, err := c.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "Program Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     shader,
			EntryPoint: desc.vertexEntry(),
			Buffers:    buffers,
		},
		Fragment: &wgpu.FragmentState{
			Module:     shader,
			EntryPoint: desc.fragmentEntry(),
			Targets: []wgpu.ColorTargetState{
				{
					Format:    c.format,
					Blend:     nil,
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  desc.Topology.wgpu(),
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  desc.CullMode.wgpu(),
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            c.depthFormat,
			DepthWriteEnabled: true,
			DepthCompare:      wgpu.CompareFunctionLess,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		},
		Multisample: wgpu.MultisampleState{
			Count:                  1,
			Mask:                   0xFFFFFFFF,
			AlphaToCoverageEnabled: false,
		},
	})
	if err != nil {
		reportFault(c.faults, "create render pipeline", err)
		return nil, err
	}
	return pipeline, nil
}

// makeBindGroups binds concrete resources per slot: value slots into the
// entity uniform buffer at their computed offset (or the named global buffer
// at its configured offset), image slots via their texture view, sampler
// slots via their sampler.
func (c *Compiler) makeBindGroups(layouts []*wgpu.BindGroupLayout, slots [][]*uniformSlot, uniformBuf *wgpu.Buffer) ([]*wgpu.BindGroup, error) {
	groups := make([]*wgpu.BindGroup, len(slots))
	for gi, group := range slots {
		entries := make([]wgpu.BindGroupEntry, len(group))
		for bi, s := range group {
			entry := wgpu.BindGroupEntry{Binding: uint32(bi)}
			switch s.kind {
			case ResourceBuffer:
				if s.global {
					gb, ok := c.globals.lookup(s.name)
					if !ok {
						releaseBindGroups(groups[:gi])
						return nil, fmt.Errorf("group %d binding %d: global buffer %q does not exist", gi, bi, s.name)
					}
					entry.Buffer = gb.buf
					entry.Offset = uint64(s.goff)
					entry.Size = uint64(s.size)
				} else {
					entry.Buffer = uniformBuf
					entry.Offset = uint64(s.offset)
					entry.Size = uint64(s.size)
				}
			case ResourceTexture:
				entry.TextureView = s.view
			case ResourceSampler:
				entry.Sampler = s.sampler
			}
			entries[bi] = entry
		}
		bg, err := c.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   fmt.Sprintf("Bind Group %d", gi),
			Layout:  layouts[gi],
			Entries: entries,
		})
		if err != nil {
			reportFault(c.faults, fmt.Sprintf("create bind group %d", gi), err)
			releaseBindGroups(groups[:gi])
			return nil, err
		}
		groups[gi] = bg
	}
	return groups, nil
}

func releaseBindGroups(groups []*wgpu.BindGroup) {
	for _, bg := range groups {
		if bg != nil {
			bg.Release()
		}
	}
}

// bindUpdate returns the per-executable updateBinding operation. Image slots
// accept an image source and replace the texture contents in place; value
// slots accept a numeric sequence encoded as the slot's component type and
// written at its recorded byte offset.
func (c *Compiler) bindUpdate(exec *Executable) func(group, binding int, value any) error {
	return func(group, binding int, value any) error {
		s := exec.slot(group, binding)
		if s == nil {
			return fmt.Errorf("no binding at group %d binding %d", group, binding)
		}
		switch s.kind {
		case ResourceTexture:
			texels, err := decodeTexels(value, s)
			if err != nil {
				return err
			}
			extent := wgpu.Extent3D{
				Width:              s.width,
				Height:             s.height,
				DepthOrArrayLayers: 1,
			}
			c.queue.WriteTexture(
				&wgpu.ImageCopyTexture{
					Texture:  s.texture,
					MipLevel: 0,
					Origin:   wgpu.Origin3D{},
					Aspect:   wgpu.TextureAspectAll,
				},
				texels,
				&wgpu.TextureDataLayout{
					Offset:       0,
					BytesPerRow:  s.width * uint32(s.format.bytesPerPixel()),
					RowsPerImage: s.height,
				},
				&extent,
			)
			return nil
		case ResourceBuffer:
			values, err := toFloat64s(value)
			if err != nil {
				return fmt.Errorf("group %d binding %d: %w", group, binding, err)
			}
			if s.global {
				return c.globals.write(s.name, s.goff, s.ctype, values)
			}
			data, err := encodeComponents(s.ctype, values)
			if err != nil {
				return err
			}
			if len(data) > s.size {
				return fmt.Errorf("group %d binding %d: %d bytes exceed slot size %d", group, binding, len(data), s.size)
			}
			c.queue.WriteBuffer(exec.uniformBuffer, uint64(s.offset), data)
			return nil
		default:
			return fmt.Errorf("group %d binding %d: sampler bindings cannot be updated", group, binding)
		}
	}
}

// CreateGlobalBuffer allocates a named shared buffer. A nil component type is
// expressed as ComponentNone, sizing the buffer in raw bytes.
func (c *Compiler) CreateGlobalBuffer(name string, ctype ComponentType, size int) error {
	return c.globals.create(name, ctype, size)
}

// WriteGlobalBuffer writes typed values into a named shared buffer at a byte
// offset.
func (c *Compiler) WriteGlobalBuffer(name string, byteOffset int, ctype ComponentType, values []float64) error {
	return c.globals.write(name, byteOffset, ctype, values)
}

// decodeTexels decodes an image source, crops it to the slot's recorded
// rectangle, and packs it as the slot's pixel format.
func decodeTexels(src any, s *uniformSlot) ([]byte, error) {
	img, err := decodeImage(src)
	if err != nil {
		return nil, err
	}
	cropped := cropRGBA(img, s.cropX, s.cropY, int(s.width), int(s.height))
	return texelBytes(cropped, s.format), nil
}

func decodeImage(src any) (*image.RGBA, error) {
	switch v := src.(type) {
	case *image.RGBA:
		return v, nil
	case image.Image:
		return toRGBA(v), nil
	case []byte:
		img, err := png.Decode(bytes.NewReader(v))
		if err != nil {
			return nil, fmt.Errorf("decode png: %w", err)
		}
		return toRGBA(img), nil
	case nil:
		return nil, fmt.Errorf("texture has no image source")
	default:
		return nil, fmt.Errorf("unsupported image source %T", src)
	}
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	out := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	xdraw.Copy(out, image.Point{}, img, img.Bounds(), xdraw.Src, nil)
	return out
}

func cropRGBA(img *image.RGBA, offX, offY, w, h int) *image.RGBA {
	if offX == 0 && offY == 0 && img.Bounds().Dx() == w && img.Bounds().Dy() == h && img.Bounds().Min == (image.Point{}) {
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	min := img.Bounds().Min
	sr := image.Rect(min.X+offX, min.Y+offY, min.X+offX+w, min.Y+offY+h)
	xdraw.Copy(out, image.Point{}, img, sr, xdraw.Src, nil)
	return out
}

func texelBytes(img *image.RGBA, f TextureFormat) []byte {
	switch f {
	case TextureR8Unorm:
		w, h := img.Bounds().Dx(), img.Bounds().Dy()
		out := make([]byte, w*h)
		for i := 0; i < w*h; i++ {
			out[i] = img.Pix[i*4]
		}
		return out
	case TextureBGRA8Unorm:
		out := make([]byte, len(img.Pix))
		for i := 0; i < len(img.Pix); i += 4 {
			out[i] = img.Pix[i+2]
			out[i+1] = img.Pix[i+1]
			out[i+2] = img.Pix[i]
			out[i+3] = img.Pix[i+3]
		}
		return out
	default:
		return img.Pix
	}
}

func toFloat64s(value any) ([]float64, error) {
	switch v := value.(type) {
	case []float64:
		return v, nil
	case []float32:
		out := make([]float64, len(v))
		for i, f := range v {
			out[i] = float64(f)
		}
		return out, nil
	case []int:
		out := make([]float64, len(v))
		for i, n := range v {
			out[i] = float64(n)
		}
		return out, nil
	case []uint32:
		out := make([]float64, len(v))
		for i, n := range v {
			out[i] = float64(n)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(v))
		for i, n := range v {
			out[i] = float64(n)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value %T is not a numeric sequence", value)
	}
}
