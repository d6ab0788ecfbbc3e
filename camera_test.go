package lumen

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCamera_Values(t *testing.T) {
	cam := Camera{
		Position: mgl32.Vec3{0, 0, 5},
		LookAt:   mgl32.Vec3{0, 0, 0},
		Up:       mgl32.Vec3{0, 1, 0},
		Fov:      mgl32.DegToRad(60),
		Aspect:   16.0 / 9.0,
		Near:     0.1,
		Far:      100,
	}

	values := cam.Values()
	require.Len(t, values, 16)

	want := mgl32.Perspective(cam.Fov, cam.Aspect, cam.Near, cam.Far).
		Mul4(mgl32.LookAtV(cam.Position, cam.LookAt, cam.Up))
	assert.Equal(t, want[:], values)
}

func TestCamera_LookAtCenterProjectsToOrigin(t *testing.T) {
	cam := Camera{
		Position: mgl32.Vec3{3, 4, 5},
		LookAt:   mgl32.Vec3{0, 0, 0},
		Up:       mgl32.Vec3{0, 1, 0},
		Fov:      mgl32.DegToRad(45),
		Aspect:   1,
		Near:     0.1,
		Far:      100,
	}

	clip := cam.ViewProjection().Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.InDelta(t, 0, clip.X()/clip.W(), 1e-5)
	assert.InDelta(t, 0, clip.Y()/clip.W(), 1e-5)
}
