package sim

import (
	"github.com/gekko3d/morphfield/morphrt/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

var zAxis = mgl32.Vec3{0, 0, 1}

// MorphStep moves spawn toward target by at most speed, and not at all once
// it is within eps. The step is clamped to the remaining distance.
func MorphStep(spawn, target mgl32.Vec3, speed, eps float32) mgl32.Vec3 {
	d := target.Sub(spawn)
	dist := core.Length(d)
	step := min(speed, dist) * core.Mask(dist > eps)
	return spawn.Add(core.SafeNormalize(d).Mul(step))
}

// ModeForces evaluates the repel, attract, swirl and tornado displacements
// for a particle at pos. All four are zero outside the radius.
func ModeForces(pos, pointer mgl32.Vec3, strength, radius, dt float32) [4]mgl32.Vec3 {
	r := pos.Sub(pointer)
	dist := core.Length(r)
	k := core.Smoothstep(radius, 0, dist) * strength * dt * core.Mask(dist < radius)

	radial := core.SafeNormalize(r)
	repel := radial.Mul(k)
	swirl := core.SafeNormalize(zAxis.Cross(radial)).Mul(k)
	return [4]mgl32.Vec3{
		repel,
		repel.Mul(-1),
		swirl,
		swirl.Add(zAxis.Mul(k)),
	}
}

// PointerForce blends the mode displacements by u.Weights.
func PointerForce(pos mgl32.Vec3, u Uniforms, dt float32) mgl32.Vec3 {
	f := ModeForces(pos, u.Pointer, u.Strength, u.Radius, dt)
	w := u.Weights
	return f[0].Mul(w[0]).Add(f[1].Mul(w[1])).Add(f[2].Mul(w[2])).Add(f[3].Mul(w[3]))
}

// Lifecycle ages a particle by dt. Past its lifetime both age and offset
// reset to zero in the same step.
func Lifecycle(age float32, offset mgl32.Vec3, dt, lifetime float32) (float32, mgl32.Vec3) {
	age += dt
	expired := age > lifetime
	return core.Select(expired, 0, age), core.SelectVec3(expired, mgl32.Vec3{}, offset)
}

// Kernel runs the init and update passes over index ranges of a Store.
// Ranges never overlap across concurrent calls, so no locking is needed.
type Kernel struct {
	Params Params
	Noise  FractalNoise
}

func NewKernel(p Params, noise FractalNoise) *Kernel {
	if noise == nil {
		noise = ZeroNoise{}
	}
	return &Kernel{Params: p, Noise: noise}
}

// InitRange seeds particles [lo, hi): random spawn in the cube, zero offset
// and a staggered age.
func (k *Kernel) InitRange(s *Store, lo, hi int) {
	for i := lo; i < hi; i++ {
		s.Spawn[i] = k.Params.SpawnOf(i)
		s.Offset[i] = mgl32.Vec3{}
		s.Age[i] = k.Params.InitialAgeOf(i)
	}
}

// UpdateRange advances particles [lo, hi) by one frame. targets holds the
// uploaded atlas texels, four floats per particle.
func (k *Kernel) UpdateRange(s *Store, targets []float32, u Uniforms, lo, hi int) {
	p := &k.Params
	dt := max(u.Dt, 0)
	for i := lo; i < hi; i++ {
		o := i * 4
		target := mgl32.Vec3{targets[o], targets[o+1], targets[o+2]}

		spawn := MorphStep(s.Spawn[i], target, p.MorphSpeedOf(i), p.ArriveEpsilon)
		offset := s.Offset[i]
		age := s.Age[i]

		offset = offset.Add(PointerForce(spawn.Add(offset), u, dt))
		offset = offset.Add(k.Noise.Sample(spawn.Mul(age)).Mul(p.JitterSpeedOf(i) * dt))

		age, offset = Lifecycle(age, offset, dt, p.LifetimeOf(i))

		s.Spawn[i] = spawn
		s.Offset[i] = offset
		s.Age[i] = age
	}
}
