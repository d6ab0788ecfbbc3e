package lumen

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCompiler struct {
	compiled       int
	cloned         int
	compileErr     error
	sharedReleases int
	ownReleases    int
	updates        []string
}

func (s *stubCompiler) newExec() *Executable {
	e := &Executable{}
	e.releaseShared = func() { s.sharedReleases++ }
	e.releaseOwn = func() { s.ownReleases++ }
	e.update = func(group, binding int, value any) error {
		s.updates = append(s.updates, fmt.Sprintf("%d/%d", group, binding))
		return nil
	}
	return e
}

func (s *stubCompiler) Compile(desc *ProgramDescriptor) (*Executable, error) {
	if s.compileErr != nil {
		return nil, s.compileErr
	}
	s.compiled++
	return s.newExec(), nil
}

func (s *stubCompiler) Clone(desc *ProgramDescriptor, shared *Executable) (*Executable, error) {
	s.cloned++
	e := s.newExec()
	e.releaseShared = nil
	return e, nil
}

func (s *stubCompiler) CreateGlobalBuffer(name string, ctype ComponentType, size int) error {
	return nil
}

func (s *stubCompiler) WriteGlobalBuffer(name string, byteOffset int, ctype ComponentType, values []float64) error {
	return nil
}

type stubDrawer struct {
	list    []*Executable
	sorts   int
	draws   int
	onDraw  func()
	cameras []string
}

func (s *stubDrawer) Add(e *Executable) { s.list = append(s.list, e) }

func (s *stubDrawer) Remove(e *Executable) {
	for i, x := range s.list {
		if x == e {
			s.list = append(s.list[:i], s.list[i+1:]...)
			return
		}
	}
}
func (s *stubDrawer) Sort() { s.sorts++ }
func (s *stubDrawer) Draw() error {
	s.draws++
	if s.onDraw != nil {
		s.onDraw()
	}
	return nil
}
func (s *stubDrawer) AddCamera(sceneId, cameraId string, values []float32) error {
	s.cameras = append(s.cameras, sceneId+"/"+cameraId)
	return nil
}
func (s *stubDrawer) UpdateCamera(sceneId, cameraId string, values []float32) error {
	return nil
}

type registryHarness struct {
	compiler *stubCompiler
	drawer   *stubDrawer
	reg      *Registry
	ticks    []func()
}

func newRegistryHarness() *registryHarness {
	h := &registryHarness{
		compiler: &stubCompiler{},
		drawer:   &stubDrawer{},
	}
	h.reg = NewRegistry(h.compiler, h.drawer, func(fn func()) { h.ticks = append(h.ticks, fn) }, NewNopLogger())
	return h
}

// runTick runs the callbacks scheduled so far, exactly once each.
func (h *registryHarness) runTick() {
	ticks := h.ticks
	h.ticks = nil
	for _, fn := range ticks {
		fn()
	}
}

func TestRegistry_CreateDeduplicatesByShaderKey(t *testing.T) {
	h := newRegistryHarness()

	require.NoError(t, h.reg.Create("a", triangleDescriptor()))
	require.NoError(t, h.reg.Create("b", triangleDescriptor()))

	assert.Equal(t, 1, h.compiler.compiled, "second identical descriptor should clone, not compile")
	assert.Equal(t, 1, h.compiler.cloned)

	other := triangleDescriptor()
	other.Topology = TopologyLineList
	require.NoError(t, h.reg.Create("c", other))
	assert.Equal(t, 2, h.compiler.compiled)
}

func TestRegistry_CreateDuplicateId(t *testing.T) {
	h := newRegistryHarness()
	require.NoError(t, h.reg.Create("a", triangleDescriptor()))
	assert.Error(t, h.reg.Create("a", triangleDescriptor()))
}

func TestRegistry_FreeReleasesSharedOnLastReference(t *testing.T) {
	h := newRegistryHarness()
	require.NoError(t, h.reg.Create("a", triangleDescriptor()))
	require.NoError(t, h.reg.Create("b", triangleDescriptor()))

	require.NoError(t, h.reg.FreeEntity("a"))
	assert.Equal(t, 1, h.compiler.ownReleases)
	assert.Equal(t, 0, h.compiler.sharedReleases, "shared objects survive while a reference remains")

	require.NoError(t, h.reg.FreeEntity("b"))
	assert.Equal(t, 2, h.compiler.ownReleases)
	assert.Equal(t, 1, h.compiler.sharedReleases)

	// A later identical descriptor compiles fresh.
	require.NoError(t, h.reg.Create("c", triangleDescriptor()))
	assert.Equal(t, 2, h.compiler.compiled)
}

func TestRegistry_FreeUnknown(t *testing.T) {
	h := newRegistryHarness()
	assert.Error(t, h.reg.FreeEntity("ghost"))
}

func TestRegistry_SceneMembership(t *testing.T) {
	h := newRegistryHarness()
	require.NoError(t, h.reg.Create("a", triangleDescriptor()))

	require.NoError(t, h.reg.AddToScene("a"))
	assert.Len(t, h.drawer.list, 1)

	require.NoError(t, h.reg.RemoveFromScene("a"))
	assert.Empty(t, h.drawer.list)

	assert.Error(t, h.reg.AddToScene("ghost"))
	assert.Error(t, h.reg.RemoveFromScene("ghost"))
}

func TestRegistry_FreeRemovesFromScene(t *testing.T) {
	h := newRegistryHarness()
	require.NoError(t, h.reg.Create("a", triangleDescriptor()))
	require.NoError(t, h.reg.AddToScene("a"))
	require.NoError(t, h.reg.FreeEntity("a"))
	assert.Empty(t, h.drawer.list)
}

func TestRegistry_UpdateSetsZAndResorts(t *testing.T) {
	h := newRegistryHarness()
	require.NoError(t, h.reg.Create("a", triangleDescriptor()))

	require.NoError(t, h.reg.Update("a", 0, 0, []float64{1, 2}, 3.5))
	assert.Equal(t, 3.5, h.reg.entities["a"].exec.Z())
	assert.Equal(t, 1, h.drawer.sorts)
	assert.Equal(t, []string{"0/0"}, h.compiler.updates)

	assert.Error(t, h.reg.Update("ghost", 0, 0, nil, 0))
}

func TestRegistry_DrawIsIdempotent(t *testing.T) {
	h := newRegistryHarness()
	h.reg.Draw()
	h.reg.Draw()
	assert.Len(t, h.ticks, 1)
	assert.True(t, h.reg.Running())
}

func TestRegistry_TickDrawsAndReschedules(t *testing.T) {
	h := newRegistryHarness()
	h.reg.Draw()

	h.runTick()
	assert.Equal(t, 1, h.drawer.draws)
	assert.Len(t, h.ticks, 1, "running loop reschedules itself")

	h.runTick()
	assert.Equal(t, 2, h.drawer.draws)
}

func TestRegistry_StopHaltsBeforeNextTick(t *testing.T) {
	h := newRegistryHarness()
	h.reg.Draw()
	h.reg.Stop()
	assert.False(t, h.reg.Running())

	h.runTick()
	assert.Equal(t, 0, h.drawer.draws, "tick after Stop must not draw")
	assert.Empty(t, h.ticks)
}

func TestRegistry_RestartAfterStopKeepsSingleLoop(t *testing.T) {
	h := newRegistryHarness()

	// The tick scheduled by the first Draw is still in the host queue when
	// the loop is stopped and restarted; the restart must not schedule a
	// second one alongside it.
	h.reg.Draw()
	h.reg.Stop()
	h.reg.Draw()
	require.Len(t, h.ticks, 1)

	h.runTick()
	assert.Equal(t, 1, h.drawer.draws)
	assert.Len(t, h.ticks, 1, "exactly one tick per host cycle")

	h.runTick()
	assert.Equal(t, 2, h.drawer.draws)
	assert.Len(t, h.ticks, 1)
}

func TestRegistry_MutationsDuringFrameAreQueuedInOrder(t *testing.T) {
	h := newRegistryHarness()
	h.reg.Draw()

	h.drawer.onDraw = func() {
		// Calls arriving mid-frame return immediately and apply after the
		// frame, in arrival order.
		require.NoError(t, h.reg.Create("a", triangleDescriptor()))
		assert.True(t, h.reg.Pending("a"))
		require.NoError(t, h.reg.AddToScene("a"))
		require.NoError(t, h.reg.Update("a", 0, 0, []float64{1}, 2))
		require.NoError(t, h.reg.CreateCamera("main", "cam", make([]float32, 16)))
		assert.Equal(t, 0, h.compiler.compiled)
	}

	h.runTick()

	assert.False(t, h.reg.Pending("a"))
	assert.Equal(t, 1, h.compiler.compiled)
	assert.Len(t, h.drawer.list, 1)
	assert.Equal(t, []string{"0/0"}, h.compiler.updates)
	assert.Equal(t, []string{"main/cam"}, h.drawer.cameras)
	assert.Equal(t, 2.0, h.reg.entities["a"].exec.Z())
}

func TestRegistry_QueuedFailureIsSwallowed(t *testing.T) {
	h := newRegistryHarness()
	h.reg.Draw()

	h.drawer.onDraw = func() {
		h.compiler.compileErr = errors.New("no adapter memory")
		require.NoError(t, h.reg.Create("a", triangleDescriptor()), "queued call reports nothing to the caller")
	}

	h.runTick()
	assert.False(t, h.reg.Pending("a"))
	_, exists := h.reg.entities["a"]
	assert.False(t, exists)
}
