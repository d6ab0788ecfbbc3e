package lumen

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcherHarness() (*registryHarness, *Dispatcher, *ChannelTransport) {
	h := newRegistryHarness()
	out := NewChannelTransport(4)
	return h, NewDispatcher(h.reg, out, NewNopLogger()), out
}

func TestDispatcher_InstallEmitsReady(t *testing.T) {
	_, d, out := newDispatcherHarness()
	d.Install()

	select {
	case msg := <-out.Messages():
		assert.Equal(t, MessageReady, msg.Kind)
		assert.NotEmpty(t, msg.Id)
	default:
		t.Fatal("expected a ready message")
	}
}

func TestDispatcher_RoutesEntityLifecycle(t *testing.T) {
	h, d, _ := newDispatcherHarness()

	require.NoError(t, d.Handle(Message{Kind: MessageCreateEntity, Entity: "a", Descriptor: triangleDescriptor()}))
	assert.Equal(t, 1, h.compiler.compiled)

	require.NoError(t, d.Handle(Message{Kind: MessageAddToScene, Entity: "a"}))
	assert.Len(t, h.drawer.list, 1)

	require.NoError(t, d.Handle(Message{Kind: MessageUpdateEntity, Entity: "a", Values: []float64{1, 2}, Z: 4}))
	assert.Equal(t, 4.0, h.reg.entities["a"].exec.Z())

	require.NoError(t, d.Handle(Message{Kind: MessageRemoveFromScene, Entity: "a"}))
	assert.Empty(t, h.drawer.list)
}

func TestDispatcher_RoutesFrameControl(t *testing.T) {
	h, d, _ := newDispatcherHarness()

	require.NoError(t, d.Handle(Message{Kind: MessageDraw}))
	assert.True(t, h.reg.Running())

	require.NoError(t, d.Handle(Message{Kind: MessageStop}))
	assert.False(t, h.reg.Running())
}

func TestDispatcher_RoutesCameras(t *testing.T) {
	h, d, _ := newDispatcherHarness()
	require.NoError(t, d.Handle(Message{Kind: MessageCreateCamera, Scene: "main", Camera: "cam", Matrix: make([]float32, 16)}))
	assert.Equal(t, []string{"main/cam"}, h.drawer.cameras)
}

func TestDispatcher_CanvasHandoff(t *testing.T) {
	_, d, _ := newDispatcherHarness()
	var gotW, gotH int
	d.OnCanvas = func(w, h int) { gotW, gotH = w, h }

	require.NoError(t, d.Handle(Message{Kind: MessageCanvasHandoff, Width: 640, Height: 480}))
	assert.Equal(t, 640, gotW)
	assert.Equal(t, 480, gotH)
}

func TestDispatcher_Errors(t *testing.T) {
	_, d, _ := newDispatcherHarness()
	assert.Error(t, d.Handle(Message{Kind: MessageCreateEntity, Entity: "a"}), "create without descriptor")
	assert.Error(t, d.Handle(Message{Kind: "bogus"}))
	assert.Error(t, d.Handle(Message{Kind: MessageAddToScene, Entity: "ghost"}))
}

func TestChannelTransport_FullBuffer(t *testing.T) {
	out := NewChannelTransport(1)
	require.NoError(t, out.Send(Message{Kind: MessageReady}))
	assert.Error(t, out.Send(Message{Kind: MessageReady}))
}

func TestMessage_JsonRoundTrip(t *testing.T) {
	msg := Message{
		Id:         "m-1",
		Kind:       MessageCreateEntity,
		Entity:     "quad",
		Descriptor: triangleDescriptor(),
		Z:          1.5,
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var back Message
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, msg.Kind, back.Kind)
	assert.Equal(t, msg.Entity, back.Entity)
	require.NotNil(t, back.Descriptor)
	assert.Equal(t, msg.Descriptor.shaderKey(), back.Descriptor.shaderKey())
}
