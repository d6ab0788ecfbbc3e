package lumen

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// globalBuffer is a named shared buffer (e.g. the camera matrix) that lives
// outside any single entity's uniform buffer. Created once, written by byte
// offset, never resized.
type globalBuffer struct {
	buf  *wgpu.Buffer
	size int
}

type globalBuffers struct {
	device *wgpu.Device
	queue  *wgpu.Queue
	faults FaultObserver
	bufs   map[string]*globalBuffer
}

func newGlobalBuffers(device *wgpu.Device, queue *wgpu.Queue, faults FaultObserver) *globalBuffers {
	return &globalBuffers{
		device: device,
		queue:  queue,
		faults: faults,
		bufs:   make(map[string]*globalBuffer),
	}
}

// create allocates a named buffer. ctype == ComponentNone sizes it in raw
// bytes; otherwise size counts components of that type.
func (g *globalBuffers) create(name string, ctype ComponentType, size int) error {
	if _, ok := g.bufs[name]; ok {
		return fmt.Errorf("global buffer %q already exists", name)
	}
	byteSize := size * ctype.ByteWidth()
	if byteSize <= 0 {
		return fmt.Errorf("global buffer %q: size must be positive", name)
	}
	buf, err := g.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Global Buffer " + name,
		Size:  uint64(byteSize),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		reportFault(g.faults, "create global buffer "+name, err)
		return err
	}
	g.bufs[name] = &globalBuffer{buf: buf, size: byteSize}
	return nil
}

// write encodes values as ctype and writes them at the byte offset.
func (g *globalBuffers) write(name string, byteOffset int, ctype ComponentType, values []float64) error {
	gb, ok := g.bufs[name]
	if !ok {
		return fmt.Errorf("global buffer %q does not exist", name)
	}
	data, err := encodeComponents(ctype, values)
	if err != nil {
		return err
	}
	if byteOffset < 0 || byteOffset+len(data) > gb.size {
		return fmt.Errorf("global buffer %q: write of %d bytes at offset %d exceeds size %d", name, len(data), byteOffset, gb.size)
	}
	g.queue.WriteBuffer(gb.buf, uint64(byteOffset), data)
	return nil
}

func (g *globalBuffers) lookup(name string) (*globalBuffer, bool) {
	gb, ok := g.bufs[name]
	return gb, ok
}
