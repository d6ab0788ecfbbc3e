package lumen

import (
	"fmt"
	"sort"

	"github.com/cogentcore/webgpu/wgpu"
)

// DefaultScene is the scene the drawer reads cameras from unless told
// otherwise, and CameraBufferName the global buffer camera matrices are
// written into during the frame.
const (
	DefaultScene     = "main"
	CameraBufferName = "camera"
)

// sceneCameras keeps per-scene cameras in registration order.
type sceneCameras struct {
	order  []string
	values map[string][]float32
}

// FrameDrawer owns the ordered draw list and the depth target, and executes
// one frame: acquire the surface, iterate cameras, issue the draw list,
// submit.
type FrameDrawer struct {
	device  *wgpu.Device
	queue   *wgpu.Queue
	surface *wgpu.Surface
	config  *wgpu.SurfaceConfiguration
	globals *globalBuffers
	faults  FaultObserver
	log     Logger

	clearColor wgpu.Color

	depthFormat  wgpu.TextureFormat
	depthTexture *wgpu.Texture
	depthView    *wgpu.TextureView
	depthWidth   uint32
	depthHeight  uint32

	list []*Executable

	activeScene string
	scenes      map[string]*sceneCameras
}

func NewFrameDrawer(device *wgpu.Device, queue *wgpu.Queue, surface *wgpu.Surface, config *wgpu.SurfaceConfiguration, globals *globalBuffers, faults FaultObserver, log Logger) *FrameDrawer {
	if log == nil {
		log = NewNopLogger()
	}
	return &FrameDrawer{
		device:      device,
		queue:       queue,
		surface:     surface,
		config:      config,
		globals:     globals,
		faults:      faults,
		log:         log,
		clearColor:  wgpu.Color{R: 0.1, G: 0.2, B: 0.3, A: 1.0},
		depthFormat: wgpu.TextureFormatDepth24Plus,
		activeScene: DefaultScene,
		scenes:      make(map[string]*sceneCameras),
	}
}

func (d *FrameDrawer) SetClearColor(c [4]float64) {
	d.clearColor = wgpu.Color{R: c[0], G: c[1], B: c[2], A: c[3]}
}

// SetActiveScene selects which scene's cameras the frame iterates.
func (d *FrameDrawer) SetActiveScene(sceneId string) { d.activeScene = sceneId }

// Add inserts an executable into the draw list and re-sorts by ascending z.
func (d *FrameDrawer) Add(exec *Executable) {
	for _, e := range d.list {
		if e == exec {
			return
		}
	}
	d.list = append(d.list, exec)
	d.Sort()
}

func (d *FrameDrawer) Remove(exec *Executable) {
	for i, e := range d.list {
		if e == exec {
			d.list = append(d.list[:i], d.list[i+1:]...)
			return
		}
	}
}

// Sort orders the draw list by ascending z, stable for equal keys.
func (d *FrameDrawer) Sort() {
	sort.SliceStable(d.list, func(i, j int) bool {
		return d.list[i].z < d.list[j].z
	})
}

// AddCamera registers a camera's view-projection values under a scene.
// Registration order is the iteration order during the frame.
func (d *FrameDrawer) AddCamera(sceneId, cameraId string, values []float32) error {
	sc, ok := d.scenes[sceneId]
	if !ok {
		sc = &sceneCameras{values: make(map[string][]float32)}
		d.scenes[sceneId] = sc
	}
	if _, ok := sc.values[cameraId]; ok {
		return fmt.Errorf("camera %q already exists in scene %q", cameraId, sceneId)
	}
	sc.order = append(sc.order, cameraId)
	sc.values[cameraId] = values
	return nil
}

func (d *FrameDrawer) UpdateCamera(sceneId, cameraId string, values []float32) error {
	sc, ok := d.scenes[sceneId]
	if !ok {
		return fmt.Errorf("scene %q does not exist", sceneId)
	}
	if _, ok := sc.values[cameraId]; !ok {
		return fmt.Errorf("camera %q does not exist in scene %q", cameraId, sceneId)
	}
	sc.values[cameraId] = values
	return nil
}

// ensureDepthTarget recreates the depth texture whenever the surface
// dimensions change; the previous target is released first.
func (d *FrameDrawer) ensureDepthTarget() error {
	w, h := d.config.Width, d.config.Height
	if d.depthView != nil && d.depthWidth == w && d.depthHeight == h {
		return nil
	}
	if d.depthView != nil {
		d.depthView.Release()
		d.depthTexture.Release()
		d.depthView = nil
		d.depthTexture = nil
	}
	texture, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "Depth Texture",
		Size: wgpu.Extent3D{
			Width:              w,
			Height:             h,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        d.depthFormat,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		reportFault(d.faults, "create depth texture", err)
		return err
	}
	view, err := texture.CreateView(nil)
	if err != nil {
		reportFault(d.faults, "create depth texture view", err)
		texture.Release()
		return err
	}
	d.depthTexture = texture
	d.depthView = view
	d.depthWidth = w
	d.depthHeight = h
	return nil
}

// Draw executes one frame: one command recording, one render pass bound to
// the surface view and the depth target. With no cameras the draw list is
// issued once; with cameras it is replayed per camera in registration order
// into the same pass, after writing that camera's matrix into the shared
// camera buffer.
func (d *FrameDrawer) Draw() error {
	if err := d.ensureDepthTarget(); err != nil {
		return err
	}

	next, err := d.surface.GetCurrentTexture()
	if err != nil {
		reportFault(d.faults, "acquire surface texture", err)
		return err
	}
	defer next.Release()
	view, err := next.CreateView(nil)
	if err != nil {
		reportFault(d.faults, "create surface view", err)
		return err
	}
	defer view.Release()

	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		reportFault(d.faults, "create command encoder", err)
		return err
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       view,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: d.clearColor,
			},
		},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            d.depthView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		},
	})
	defer pass.Release()

	cams := d.scenes[d.activeScene]
	if cams == nil || len(cams.order) == 0 {
		d.drawList(pass)
	} else {
		for _, cameraId := range cams.order {
			values := cams.values[cameraId]
			floats := make([]float64, len(values))
			for i, v := range values {
				floats[i] = float64(v)
			}
			if err := d.globals.write(CameraBufferName, 0, ComponentFloat32, floats); err != nil {
				d.log.Errorf("camera %q: %v", cameraId, err)
			}
			d.drawList(pass)
		}
	}

	pass.End()

	cmd, err := encoder.Finish(nil)
	if err != nil {
		reportFault(d.faults, "finish command encoder", err)
		return err
	}
	defer cmd.Release()

	d.queue.Submit(cmd)
	d.surface.Present()
	return nil
}

// drawList issues every entity in z order into the pass.
func (d *FrameDrawer) drawList(pass *wgpu.RenderPassEncoder) {
	for _, exec := range d.list {
		pass.SetPipeline(exec.pipeline)
		if exec.vertexBuffer != nil {
			pass.SetVertexBuffer(0, exec.vertexBuffer, 0, wgpu.WholeSize)
		}
		for i, bg := range exec.bindGroups {
			pass.SetBindGroup(uint32(i), bg, nil)
		}
		pass.SetIndexBuffer(exec.indexBuffer, exec.indexFormat, 0, wgpu.WholeSize)
		pass.DrawIndexed(exec.indexCount, 1, 0, 0, 0)
	}
}
