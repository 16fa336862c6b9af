package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

// CameraState is a perspective look-at camera. The scene is Y-up and the
// default camera sits on +Z looking at the origin.
type CameraState struct {
	Position mgl32.Vec3
	Target   mgl32.Vec3
	Up       mgl32.Vec3
	FovY     float32 // degrees
	Aspect   float32
	Near     float32
	Far      float32
}

func NewCameraState() *CameraState {
	return &CameraState{
		Position: mgl32.Vec3{0, 0, 10},
		Target:   mgl32.Vec3{0, 0, 0},
		Up:       mgl32.Vec3{0, 1, 0},
		FovY:     50,
		Aspect:   16.0 / 9.0,
		Near:     0.1,
		Far:      100,
	}
}

func (c *CameraState) GetForward() mgl32.Vec3 {
	return SafeNormalize(c.Target.Sub(c.Position))
}

func (c *CameraState) GetViewMatrix() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.Target, c.Up)
}

func (c *CameraState) GetProjectionMatrix() mgl32.Mat4 {
	aspect := c.Aspect
	if aspect <= 0 {
		aspect = 1
	}
	return mgl32.Perspective(mgl32.DegToRad(c.FovY), aspect, c.Near, c.Far)
}

func (c *CameraState) GetViewProjection() mgl32.Mat4 {
	return c.GetProjectionMatrix().Mul4(c.GetViewMatrix())
}

// ScreenToNDC converts pixel coordinates (origin top-left, y down) to
// normalized device coordinates. ok is false for an empty viewport.
func ScreenToNDC(x, y float64, width, height int) (ndc mgl32.Vec2, ok bool) {
	if width <= 0 || height <= 0 {
		return mgl32.Vec2{}, false
	}
	return mgl32.Vec2{
		float32(x/float64(width))*2 - 1,
		-float32(y/float64(height))*2 + 1,
	}, true
}

// RayFromNDC builds a world-space picking ray through an NDC point. The ray
// starts at the camera position and passes through the unprojected point at
// mid depth.
func (c *CameraState) RayFromNDC(ndc mgl32.Vec2) (origin, dir mgl32.Vec3) {
	inv := c.GetViewProjection().Inv()
	p := inv.Mul4x1(mgl32.Vec4{ndc.X(), ndc.Y(), 0.5, 1})
	if p.W() == 0 {
		return c.Position, c.GetForward()
	}
	world := p.Vec3().Mul(1 / p.W())
	return c.Position, SafeNormalize(world.Sub(c.Position))
}

// Project maps a world point to pixel coordinates. ok is false when the point
// is behind the camera or outside the viewport.
func (c *CameraState) Project(pos mgl32.Vec3, width, height int) (x, y float32, ok bool) {
	clip := c.GetViewProjection().Mul4x1(pos.Vec4(1))
	if clip.W() < c.Near {
		return 0, 0, false
	}
	ndc := clip.Vec3().Mul(1 / clip.W())
	w, h := float32(width), float32(height)
	x = (ndc.X()*0.5 + 0.5) * w
	y = (1 - (ndc.Y()*0.5 + 0.5)) * h
	if x < 0 || x > w || y < 0 || y > h {
		return x, y, false
	}
	return x, y, true
}

// CameraUniformsSize is the byte size of `struct Camera` in sprite.wgsl.
const CameraUniformsSize = 112

// PackCamera serializes the sprite camera block: view-projection matrix,
// world-space billboard axes and the viewport.
func (c *CameraState) PackCamera(width, height int) []byte {
	b := make([]byte, 0, CameraUniformsSize)
	vp := c.GetViewProjection()
	b = appendF32(b, vp[:]...)

	view := c.GetViewMatrix()
	right, up := view.Row(0).Vec3(), view.Row(1).Vec3()
	b = appendF32(b, right[0], right[1], right[2], 0)
	b = appendF32(b, up[0], up[1], up[2], 0)

	w, h := float32(max(width, 1)), float32(max(height, 1))
	b = appendF32(b, w, h, 1/w, 1/h)
	return b
}
