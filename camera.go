package lumen

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Camera builds view-projection values for the camera table. It is a
// convenience producer; the registry and drawer only ever see the raw
// 16-float column-major matrix.
type Camera struct {
	Position mgl32.Vec3
	LookAt   mgl32.Vec3
	Up       mgl32.Vec3
	Fov      float32
	Aspect   float32
	Near     float32
	Far      float32
}

func (c Camera) ViewProjection() mgl32.Mat4 {
	view := mgl32.LookAtV(c.Position, c.LookAt, c.Up)
	projection := mgl32.Perspective(c.Fov, c.Aspect, c.Near, c.Far)
	return projection.Mul4(view)
}

// Values returns the view-projection matrix as the flat value list consumed
// by CreateCamera/UpdateCamera.
func (c Camera) Values() []float32 {
	m := c.ViewProjection()
	return m[:]
}
