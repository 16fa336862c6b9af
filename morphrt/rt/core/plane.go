package core

import "github.com/go-gl/mathgl/mgl32"

// Plane is the set of points p with Normal·p + Constant = 0.
type Plane struct {
	Normal   mgl32.Vec3
	Constant float32
}

// PlaneZ0 is the z = 0 plane the pointer field is projected onto.
var PlaneZ0 = Plane{Normal: mgl32.Vec3{0, 0, 1}, Constant: 0}

func (p Plane) DistanceToPoint(pt mgl32.Vec3) float32 {
	return p.Normal.Dot(pt) + p.Constant
}

// IntersectRay returns the point where the ray meets the plane. A ray parallel
// to the plane only hits when its origin lies on it; hits behind the origin are
// misses.
func (p Plane) IntersectRay(origin, dir mgl32.Vec3) (mgl32.Vec3, bool) {
	denom := p.Normal.Dot(dir)
	if denom == 0 {
		if p.DistanceToPoint(origin) == 0 {
			return origin, true
		}
		return mgl32.Vec3{}, false
	}
	t := -(origin.Dot(p.Normal) + p.Constant) / denom
	if t < 0 {
		return mgl32.Vec3{}, false
	}
	return origin.Add(dir.Mul(t)), true
}
