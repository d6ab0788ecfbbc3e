package lumen

import (
	"fmt"

	"github.com/google/uuid"
)

// MessageKind enumerates the cross-boundary message set. Each kind carries
// the same argument shape as the corresponding registry method.
type MessageKind string

const (
	MessageCanvasHandoff      MessageKind = "canvas-handoff"
	MessageCreateEntity       MessageKind = "create-entity"
	MessageAddToScene         MessageKind = "add-to-scene"
	MessageRemoveFromScene    MessageKind = "remove-from-scene"
	MessageUpdateEntity       MessageKind = "update-entity"
	MessageDraw               MessageKind = "draw"
	MessageStop               MessageKind = "stop"
	MessageReady              MessageKind = "ready"
	MessageCreateGlobalBuffer MessageKind = "create-global-buffer"
	MessageWriteGlobalBuffer  MessageKind = "write-global-buffer"
	MessageCreateCamera       MessageKind = "create-camera"
	MessageUpdateCamera       MessageKind = "update-camera"
)

// Message is one protocol frame. Only the fields relevant to Kind are set.
type Message struct {
	Id   string      `json:"id,omitempty"`
	Kind MessageKind `json:"kind"`

	// canvas-handoff
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// entity operations
	Entity     string             `json:"entity,omitempty"`
	Descriptor *ProgramDescriptor `json:"descriptor,omitempty"`
	Group      int                `json:"group,omitempty"`
	Binding    int                `json:"binding,omitempty"`
	Values     []float64          `json:"values,omitempty"`
	Image      []byte             `json:"image,omitempty"`
	Z          float64            `json:"z,omitempty"`

	// global buffer operations
	Name   string        `json:"name,omitempty"`
	Type   ComponentType `json:"type,omitempty"`
	Size   int           `json:"size,omitempty"`
	Offset int           `json:"offset,omitempty"`

	// camera operations
	Scene  string    `json:"scene,omitempty"`
	Camera string    `json:"camera,omitempty"`
	Matrix []float32 `json:"matrix,omitempty"`
}

// Transport is the outbound side of the boundary the engine answers on.
type Transport interface {
	Send(Message) error
}

// ChannelTransport is an in-process Transport backed by a buffered channel,
// enough to host the engine behind a goroutine boundary.
type ChannelTransport struct {
	ch chan Message
}

func NewChannelTransport(buffer int) *ChannelTransport {
	return &ChannelTransport{ch: make(chan Message, buffer)}
}

func (t *ChannelTransport) Send(msg Message) error {
	select {
	case t.ch <- msg:
		return nil
	default:
		return fmt.Errorf("transport buffer full, dropping %s", msg.Kind)
	}
}

func (t *ChannelTransport) Messages() <-chan Message { return t.ch }

// Dispatcher routes protocol messages to the registry and emits ready
// notifications back through the transport.
type Dispatcher struct {
	reg *Registry
	out Transport
	log Logger

	// OnCanvas is invoked for canvas-handoff messages; the host wires it to
	// surface reconfiguration.
	OnCanvas func(width, height int)
}

func NewDispatcher(reg *Registry, out Transport, log Logger) *Dispatcher {
	if log == nil {
		log = NewNopLogger()
	}
	return &Dispatcher{reg: reg, out: out, log: log}
}

// Install announces (re)installed handlers by emitting a ready message.
func (d *Dispatcher) Install() {
	d.sendReady()
}

func (d *Dispatcher) sendReady() {
	if d.out == nil {
		return
	}
	if err := d.out.Send(Message{Id: uuid.NewString(), Kind: MessageReady}); err != nil {
		d.log.Warnf("ready: %v", err)
	}
}

// Handle routes one message. Usage errors from synchronous registry calls
// are returned to the transport loop.
func (d *Dispatcher) Handle(msg Message) error {
	switch msg.Kind {
	case MessageCanvasHandoff:
		if d.OnCanvas != nil {
			d.OnCanvas(msg.Width, msg.Height)
		}
		return nil
	case MessageCreateEntity:
		if msg.Descriptor == nil {
			return fmt.Errorf("create-entity %q: missing descriptor", msg.Entity)
		}
		return d.reg.Create(msg.Entity, msg.Descriptor)
	case MessageAddToScene:
		return d.reg.AddToScene(msg.Entity)
	case MessageRemoveFromScene:
		return d.reg.RemoveFromScene(msg.Entity)
	case MessageUpdateEntity:
		var value any = msg.Values
		if len(msg.Image) > 0 {
			value = msg.Image
		}
		return d.reg.Update(msg.Entity, msg.Group, msg.Binding, value, msg.Z)
	case MessageDraw:
		d.reg.Draw()
		return nil
	case MessageStop:
		d.reg.Stop()
		return nil
	case MessageCreateGlobalBuffer:
		return d.reg.CreateGlobalBuffer(msg.Name, msg.Type, msg.Size)
	case MessageWriteGlobalBuffer:
		return d.reg.WriteGlobalBuffer(msg.Name, msg.Offset, msg.Type, msg.Values)
	case MessageCreateCamera:
		return d.reg.CreateCamera(msg.Scene, msg.Camera, msg.Matrix)
	case MessageUpdateCamera:
		return d.reg.UpdateCamera(msg.Scene, msg.Camera, msg.Matrix)
	default:
		return fmt.Errorf("unknown message kind %q", msg.Kind)
	}
}
