// Package sim is the particle morph engine: structure-of-arrays particle
// state, the per-frame update kernel, the pointer field, render attribute
// derivation and the devices that execute the kernel.
package sim

import (
	"fmt"

	"github.com/gekko3d/morphfield/config"
	"github.com/gekko3d/morphfield/morphrt/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

// Hash salts. Each per-particle constant reads its own stream, offset by Params.Seed.
const (
	saltSpawnX      = 0
	saltSpawnY      = 1
	saltSpawnZ      = 2
	saltAge         = 11
	saltMorphSpeed  = 12
	saltLifetime    = 13
	saltJitterSpeed = 14
	saltScale       = 15
	saltRenderX     = 16
	saltRenderY     = 17
	saltRenderZ     = 18
)

// Range is a half-open [Min, Max) interval for hashed constants.
type Range struct {
	Min, Max float32
}

// NoiseParams shapes the fractal noise used for ambient jitter.
type NoiseParams struct {
	Octaves    int
	Lacunarity float32
	Gain       float32
	Frequency  float32
}

// Params are fixed for the lifetime of a simulation.
type Params struct {
	Count          int
	Seed           uint32
	SpawnExtent    float32
	ArriveEpsilon  float32
	Lifetime       Range
	MorphSpeed     Range // per frame
	JitterSpeed    Range
	Scale          Range
	PositionJitter float32
	Opacity        float32
	Noise          NoiseParams
}

func DefaultParams(count int) Params {
	return Params{
		Count:          count,
		SpawnExtent:    3,
		ArriveEpsilon:  0.01,
		Lifetime:       Range{0.1, 6},
		MorphSpeed:     Range{0.01, 0.05},
		JitterSpeed:    Range{0.1, 0.5},
		Scale:          Range{0.005, 0.02},
		PositionJitter: 0.001,
		Opacity:        0.6,
		Noise:          NoiseParams{Octaves: 3, Lacunarity: 2, Gain: 0.5, Frequency: 1},
	}
}

// ParamsFromConfig copies the particle and noise sections of cfg.
func ParamsFromConfig(cfg *config.Config) Params {
	p := &cfg.Particles
	r := func(c config.Range) Range { return Range{float32(c.Min), float32(c.Max)} }
	return Params{
		Count:          p.Count,
		Seed:           p.Seed,
		SpawnExtent:    float32(p.SpawnExtent),
		ArriveEpsilon:  float32(p.ArriveEpsilon),
		Lifetime:       r(p.Lifetime),
		MorphSpeed:     r(p.MorphSpeed),
		JitterSpeed:    r(p.JitterSpeed),
		Scale:          r(p.Scale),
		PositionJitter: float32(p.PositionJitter),
		Opacity:        float32(p.Opacity),
		Noise: NoiseParams{
			Octaves:    cfg.Noise.Octaves,
			Lacunarity: float32(cfg.Noise.Lacunarity),
			Gain:       float32(cfg.Noise.Gain),
			Frequency:  float32(cfg.Noise.Frequency),
		},
	}
}

func (p Params) Validate() error {
	switch {
	case p.Count <= 0:
		return fmt.Errorf("sim: particle count must be positive, got %d", p.Count)
	case p.Lifetime.Min <= 0 || p.Lifetime.Max < p.Lifetime.Min:
		return fmt.Errorf("sim: bad lifetime range %v", p.Lifetime)
	case p.MorphSpeed.Max < p.MorphSpeed.Min || p.JitterSpeed.Max < p.JitterSpeed.Min:
		return fmt.Errorf("sim: bad speed ranges %v %v", p.MorphSpeed, p.JitterSpeed)
	case p.Noise.Octaves < 1:
		return fmt.Errorf("sim: noise needs at least one octave")
	}
	return nil
}

func (p Params) hash(i int, salt uint32, r Range) float32 {
	return core.HashRange(uint32(i), p.Seed+salt, r.Min, r.Max)
}

// LifetimeOf is the implicit lifetime of particle i.
func (p Params) LifetimeOf(i int) float32 { return p.hash(i, saltLifetime, p.Lifetime) }

// MorphSpeedOf is the per-frame morph step cap of particle i.
func (p Params) MorphSpeedOf(i int) float32 { return p.hash(i, saltMorphSpeed, p.MorphSpeed) }

func (p Params) JitterSpeedOf(i int) float32 { return p.hash(i, saltJitterSpeed, p.JitterSpeed) }

func (p Params) BaseScaleOf(i int) float32 { return p.hash(i, saltScale, p.Scale) }

// SpawnOf is the initial position of particle i inside the spawn cube.
func (p Params) SpawnOf(i int) mgl32.Vec3 {
	r := Range{-p.SpawnExtent, p.SpawnExtent}
	return mgl32.Vec3{p.hash(i, saltSpawnX, r), p.hash(i, saltSpawnY, r), p.hash(i, saltSpawnZ, r)}
}

// InitialAgeOf staggers lifecycles over [0, lifetime).
func (p Params) InitialAgeOf(i int) float32 {
	return p.hash(i, saltAge, Range{0, p.LifetimeOf(i)})
}

// RenderJitterOf is the fixed sub-pixel offset applied at render time.
func (p Params) RenderJitterOf(i int) mgl32.Vec3 {
	r := Range{-p.PositionJitter, p.PositionJitter}
	return mgl32.Vec3{p.hash(i, saltRenderX, r), p.hash(i, saltRenderY, r), p.hash(i, saltRenderZ, r)}
}

// Uniforms are the per-frame kernel inputs.
type Uniforms struct {
	Dt       float32
	Pointer  mgl32.Vec3
	Weights  mgl32.Vec4 // repel, attract, swirl, tornado
	Strength float32
	Radius   float32
	Colors   Colors // read by the sprite pass only
}

// GPU packs the uniform block shared with the WGSL kernels.
func (u Uniforms) GPU(p Params, atlasSide int) core.SimUniforms {
	return core.SimUniforms{
		Pointer:          u.Pointer,
		Dt:               max(u.Dt, 0),
		Weights:          u.Weights,
		Strength:         u.Strength,
		Radius:           u.Radius,
		Count:            uint32(p.Count),
		AtlasSide:        uint32(atlasSide),
		Seed:             p.Seed,
		ArriveEpsilon:    p.ArriveEpsilon,
		SpawnExtent:      p.SpawnExtent,
		Opacity:          p.Opacity,
		LifetimeRange:    [2]float32{p.Lifetime.Min, p.Lifetime.Max},
		MorphSpeedRange:  [2]float32{p.MorphSpeed.Min, p.MorphSpeed.Max},
		JitterSpeedRange: [2]float32{p.JitterSpeed.Min, p.JitterSpeed.Max},
		ScaleRange:       [2]float32{p.Scale.Min, p.Scale.Max},
		NoiseOctaves:     uint32(p.Noise.Octaves),
		NoiseLacunarity:  p.Noise.Lacunarity,
		NoiseGain:        p.Noise.Gain,
		NoiseFrequency:   p.Noise.Frequency,
		StartColor:       u.Colors.Start,
		EmissivePower:    u.Colors.Emissive,
		EndColor:         u.Colors.End,
		PositionJitter:   p.PositionJitter,
	}
}
