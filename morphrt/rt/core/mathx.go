package core

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// normalizeEpsilon is the squared length below which a vector has no direction.
const normalizeEpsilon = 1e-20

func Lerp(a, b, t float32) float32 { return a + (b-a)*t }

func Saturate(x float32) float32 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Smoothstep is the Hermite step. edge0 > edge1 is allowed and gives a falling curve,
// e.g. Smoothstep(r, 0, d) is 1 at d=0 and 0 at d=r.
func Smoothstep(edge0, edge1, x float32) float32 {
	if edge0 == edge1 {
		return Select(x < edge0, 0, 1)
	}
	t := Saturate((x - edge0) / (edge1 - edge0))
	return t * t * (3 - 2*t)
}

// Mask turns a predicate into 0 or 1 for blended (branch-free) updates.
func Mask(cond bool) float32 {
	if cond {
		return 1
	}
	return 0
}

func Select(cond bool, a, b float32) float32 {
	if cond {
		return a
	}
	return b
}

func SelectVec3(cond bool, a, b mgl32.Vec3) mgl32.Vec3 {
	if cond {
		return a
	}
	return b
}

func Length(v mgl32.Vec3) float32 {
	return math32.Sqrt(v.Dot(v))
}

// SafeNormalize returns the unit vector of v, or zero when v has no direction.
func SafeNormalize(v mgl32.Vec3) mgl32.Vec3 {
	l2 := v.Dot(v)
	if l2 < normalizeEpsilon {
		return mgl32.Vec3{}
	}
	return v.Mul(1 / math32.Sqrt(l2))
}

func LerpVec3(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}

// CeilSqrt returns the side of the smallest square grid holding n cells.
func CeilSqrt(n int) int {
	if n <= 0 {
		return 0
	}
	side := int(math32.Ceil(math32.Sqrt(float32(n))))
	// float32 sqrt can be off by one for large n
	for side*side < n {
		side++
	}
	for side > 1 && (side-1)*(side-1) >= n {
		side--
	}
	return side
}
