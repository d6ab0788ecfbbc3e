package lumen

import (
	"fmt"
)

// programCompiler is the compiler surface the registry consumes; *Compiler
// implements it against a real device.
type programCompiler interface {
	Compile(desc *ProgramDescriptor) (*Executable, error)
	Clone(desc *ProgramDescriptor, shared *Executable) (*Executable, error)
	CreateGlobalBuffer(name string, ctype ComponentType, size int) error
	WriteGlobalBuffer(name string, byteOffset int, ctype ComponentType, values []float64) error
}

// frameDrawer is the drawer surface the registry consumes; *FrameDrawer
// implements it.
type frameDrawer interface {
	Add(*Executable)
	Remove(*Executable)
	Sort()
	Draw() error
	AddCamera(sceneId, cameraId string, values []float32) error
	UpdateCamera(sceneId, cameraId string, values []float32) error
}

type entityRecord struct {
	exec *Executable
	key  string
}

type sharedEntry struct {
	exec *Executable
	refs int
}

type pendingOp struct {
	name  string
	apply func() error
}

// Registry owns the mapping from entity ids to compiled executables,
// deduplicates identical programs by structural shader key, reference-counts
// the shared objects, and serializes every mutation against an in-flight
// frame: while a frame is being produced, mutating calls are queued and
// drained strictly in arrival order after the draw submission.
type Registry struct {
	log      Logger
	compiler programCompiler
	drawer   frameDrawer

	// schedule is the host's per-frame callback (e.g. one slot in the
	// window loop); the frame driver reschedules itself through it.
	schedule func(func())

	entities map[string]*entityRecord
	shared   map[string]*sharedEntry

	busy      bool
	running   bool
	scheduled bool // a tick is already sitting in the host queue
	queue     []pendingOp
	pending   map[string]bool // ids whose create is still queued
}

func NewRegistry(compiler programCompiler, drawer frameDrawer, schedule func(func()), log Logger) *Registry {
	if log == nil {
		log = NewNopLogger()
	}
	return &Registry{
		log:      log,
		compiler: compiler,
		drawer:   drawer,
		schedule: schedule,
		entities: make(map[string]*entityRecord),
		shared:   make(map[string]*sharedEntry),
		pending:  make(map[string]bool),
	}
}

func (r *Registry) enqueue(name string, apply func() error) {
	r.queue = append(r.queue, pendingOp{name: name, apply: apply})
}

// Create compiles (or clones) the descriptor and registers it under id.
// Duplicate ids are a usage error.
func (r *Registry) Create(id string, desc *ProgramDescriptor) error {
	if r.busy {
		r.pending[id] = true
		r.enqueue("create "+id, func() error { return r.create(id, desc) })
		return nil
	}
	return r.create(id, desc)
}

func (r *Registry) create(id string, desc *ProgramDescriptor) error {
	defer delete(r.pending, id)
	if _, ok := r.entities[id]; ok {
		return fmt.Errorf("entity %q already exists", id)
	}
	key := desc.shaderKey()
	entry, ok := r.shared[key]
	if ok {
		exec, err := r.compiler.Clone(desc, entry.exec)
		if err != nil {
			return err
		}
		entry.refs++
		r.entities[id] = &entityRecord{exec: exec, key: key}
		return nil
	}
	exec, err := r.compiler.Compile(desc)
	if err != nil {
		return err
	}
	r.shared[key] = &sharedEntry{exec: exec, refs: 1}
	r.entities[id] = &entityRecord{exec: exec, key: key}
	return nil
}

// FreeEntity removes the entity from the draw list, drops its reference on
// the shared program, and destroys the shared objects when it was the last
// referencer. The entity's own uniform buffer and bind groups are always
// destroyed.
func (r *Registry) FreeEntity(id string) error {
	if r.busy {
		r.enqueue("free "+id, func() error { return r.freeEntity(id) })
		return nil
	}
	return r.freeEntity(id)
}

func (r *Registry) freeEntity(id string) error {
	rec, ok := r.entities[id]
	if !ok {
		return fmt.Errorf("entity %q does not exist", id)
	}
	r.drawer.Remove(rec.exec)
	if rec.exec.releaseOwn != nil {
		rec.exec.releaseOwn()
	}
	if entry, ok := r.shared[rec.key]; ok {
		entry.refs--
		if entry.refs <= 0 {
			if entry.exec.releaseShared != nil {
				entry.exec.releaseShared()
			}
			delete(r.shared, rec.key)
		}
	}
	delete(r.entities, id)
	return nil
}

// AddToScene inserts the entity's executable into the draw list (re-sorted
// by ascending z).
func (r *Registry) AddToScene(id string) error {
	if r.busy {
		r.enqueue("add-to-scene "+id, func() error { return r.addToScene(id) })
		return nil
	}
	return r.addToScene(id)
}

func (r *Registry) addToScene(id string) error {
	rec, ok := r.entities[id]
	if !ok {
		return fmt.Errorf("entity %q does not exist", id)
	}
	r.drawer.Add(rec.exec)
	return nil
}

func (r *Registry) RemoveFromScene(id string) error {
	if r.busy {
		r.enqueue("remove-from-scene "+id, func() error { return r.removeFromScene(id) })
		return nil
	}
	return r.removeFromScene(id)
}

func (r *Registry) removeFromScene(id string) error {
	rec, ok := r.entities[id]
	if !ok {
		return fmt.Errorf("entity %q does not exist", id)
	}
	r.drawer.Remove(rec.exec)
	return nil
}

// Update sets the entity's draw-order key, re-sorts the draw list, then
// applies the bound binding update.
func (r *Registry) Update(id string, group, binding int, value any, z float64) error {
	if r.busy {
		r.enqueue("update "+id, func() error { return r.update(id, group, binding, value, z) })
		return nil
	}
	return r.update(id, group, binding, value, z)
}

func (r *Registry) update(id string, group, binding int, value any, z float64) error {
	rec, ok := r.entities[id]
	if !ok {
		return fmt.Errorf("entity %q does not exist", id)
	}
	rec.exec.z = z
	r.drawer.Sort()
	return rec.exec.update(group, binding, value)
}

func (r *Registry) CreateGlobalBuffer(name string, ctype ComponentType, size int) error {
	if r.busy {
		r.enqueue("create-global-buffer "+name, func() error {
			return r.compiler.CreateGlobalBuffer(name, ctype, size)
		})
		return nil
	}
	return r.compiler.CreateGlobalBuffer(name, ctype, size)
}

func (r *Registry) WriteGlobalBuffer(name string, byteOffset int, ctype ComponentType, values []float64) error {
	if r.busy {
		r.enqueue("write-global-buffer "+name, func() error {
			return r.compiler.WriteGlobalBuffer(name, byteOffset, ctype, values)
		})
		return nil
	}
	return r.compiler.WriteGlobalBuffer(name, byteOffset, ctype, values)
}

func (r *Registry) CreateCamera(sceneId, cameraId string, values []float32) error {
	if r.busy {
		r.enqueue("create-camera "+cameraId, func() error {
			return r.drawer.AddCamera(sceneId, cameraId, values)
		})
		return nil
	}
	return r.drawer.AddCamera(sceneId, cameraId, values)
}

func (r *Registry) UpdateCamera(sceneId, cameraId string, values []float32) error {
	if r.busy {
		r.enqueue("update-camera "+cameraId, func() error {
			return r.drawer.UpdateCamera(sceneId, cameraId, values)
		})
		return nil
	}
	return r.drawer.UpdateCamera(sceneId, cameraId, values)
}

// Draw starts the frame loop; calling it while the loop is already running
// is a no-op. Each tick draws one frame, drains the queued mutations in
// arrival order, and reschedules itself through the host callback.
func (r *Registry) Draw() {
	if r.running {
		return
	}
	r.running = true
	// A tick scheduled before a Stop may still sit in the host queue; it
	// will pick the loop back up, so scheduling another would double it.
	if !r.scheduled {
		r.scheduled = true
		r.schedule(r.tick)
	}
}

// Stop clears the running flag; the loop observes it after the current tick
// and does not reschedule. Work already scheduled for this tick completes.
func (r *Registry) Stop() {
	r.running = false
}

func (r *Registry) Running() bool { return r.running }

func (r *Registry) tick() {
	r.scheduled = false
	if !r.running {
		return
	}
	r.busy = true
	if err := r.drawer.Draw(); err != nil {
		r.log.Errorf("draw: %v", err)
	}
	r.busy = false
	r.drain()
	if r.running {
		r.scheduled = true
		r.schedule(r.tick)
	}
}

// drain applies the queued mutations strictly in arrival order. A queued
// call already returned to its caller, so failures surface through the log
// rather than an error return.
func (r *Registry) drain() {
	ops := r.queue
	r.queue = nil
	for _, op := range ops {
		if err := op.apply(); err != nil {
			r.log.Errorf("queued %s: %v", op.name, err)
		}
	}
}

// Pending reports whether an id has a queued create that has not applied
// yet.
func (r *Registry) Pending(id string) bool { return r.pending[id] }
