package lumen

import (
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
)

// Engine wires the window, device, compiler, drawer and registry together
// and runs the host loop the frame driver schedules itself onto.
type Engine struct {
	config Config
	log    Logger
	faults *FaultLog

	window   *WindowState
	gpu      *GpuState
	globals  *globalBuffers
	compiler *Compiler
	drawer   *FrameDrawer
	registry *Registry

	dispatcher *Dispatcher
	inbox      <-chan Message

	ticks []func()
}

// NewEngine opens the window, brings up the device and builds the component
// stack. GPU bring-up failures panic; everything after that returns errors
// through the component APIs.
func NewEngine(config Config, log Logger) *Engine {
	if log == nil {
		log = NewDefaultLogger("lumen", config.Debug)
	}
	log.SetDebug(config.Debug)

	window := createWindowState(config.WindowWidth, config.WindowHeight, config.WindowTitle)
	gpu := createGpuState(window, config.VSync)

	e := &Engine{
		config: config,
		log:    log,
		faults: NewFaultLog(log),
		window: window,
		gpu:    gpu,
	}
	e.globals = newGlobalBuffers(gpu.device, gpu.queue, e.faults)
	e.compiler = NewCompiler(gpu.device, gpu.queue, gpu.surfaceConfig.Format, e.globals, e.faults, log)
	e.drawer = NewFrameDrawer(gpu.device, gpu.queue, gpu.surface, gpu.surfaceConfig, e.globals, e.faults, log)
	e.drawer.SetClearColor(config.ClearColor)
	e.registry = NewRegistry(e.compiler, e.drawer, e.scheduleTick, log)

	// The camera buffer exists from the start so descriptors can bind it
	// before the first camera is registered.
	if err := e.compiler.CreateGlobalBuffer(CameraBufferName, ComponentFloat32, 16); err != nil {
		log.Errorf("camera buffer: %v", err)
	}

	window.windowGlfw.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		e.gpu.resize(width, height)
	})

	return e
}

func (e *Engine) Registry() *Registry  { return e.registry }
func (e *Engine) Compiler() *Compiler  { return e.compiler }
func (e *Engine) Drawer() *FrameDrawer { return e.drawer }
func (e *Engine) Faults() []Fault      { return e.faults.Faults() }

// scheduleTick queues a callback for the next loop iteration.
func (e *Engine) scheduleTick(fn func()) {
	e.ticks = append(e.ticks, fn)
}

// Serve binds a message transport: inbound messages are handled inside the
// loop, and a ready notification is emitted immediately.
func (e *Engine) Serve(in <-chan Message, out Transport) {
	e.inbox = in
	e.dispatcher = NewDispatcher(e.registry, out, e.log)
	e.dispatcher.OnCanvas = e.gpu.resize
	e.dispatcher.Install()
}

// Run drives the host loop until the window closes or Stop is observed with
// nothing left to do. Each iteration polls input, handles pending transport
// messages, and runs the callbacks the frame driver scheduled.
func (e *Engine) Run() {
	for !e.window.windowGlfw.ShouldClose() {
		glfw.PollEvents()
		e.drainInbox()

		ticks := e.ticks
		e.ticks = nil
		for _, tick := range ticks {
			tick()
		}

		if !e.registry.Running() && len(e.ticks) == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	e.registry.Stop()
}

func (e *Engine) drainInbox() {
	if e.inbox == nil {
		return
	}
	for {
		select {
		case msg := <-e.inbox:
			if err := e.dispatcher.Handle(msg); err != nil {
				e.log.Errorf("%s: %v", msg.Kind, err)
			}
		default:
			return
		}
	}
}

// Close releases the device stack and the window.
func (e *Engine) Close() {
	e.gpu.release()
	e.window.windowGlfw.Destroy()
	glfw.Terminate()
}
