package core

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ParticleInstance matches the WGSL layout in sprite.wgsl
// struct ParticleInstance { pos: vec3<f32>, scale: f32, color: vec4<f32>, emissive: vec4<f32> }
type ParticleInstance struct {
	Pos      [3]float32
	Scale    float32
	Color    [4]float32
	Emissive [4]float32
}

const ParticleInstanceSize = 48

// PackInstances appends the little-endian GPU layout of inst to dst.
func PackInstances(dst []byte, inst []ParticleInstance) []byte {
	need := len(dst) + len(inst)*ParticleInstanceSize
	if cap(dst) < need {
		grown := make([]byte, len(dst), need)
		copy(grown, dst)
		dst = grown
	}
	for i := range inst {
		p := &inst[i]
		dst = appendF32(dst, p.Pos[0], p.Pos[1], p.Pos[2], p.Scale)
		dst = appendF32(dst, p.Color[:]...)
		dst = appendF32(dst, p.Emissive[:]...)
	}
	return dst
}

func appendF32(dst []byte, vals ...float32) []byte {
	for _, v := range vals {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

func appendU32(dst []byte, vals ...uint32) []byte {
	for _, v := range vals {
		dst = binary.LittleEndian.AppendUint32(dst, v)
	}
	return dst
}

// SimUniforms mirrors `struct SimParams` shared by particles.wgsl and sprite.wgsl.
// Field order and padding follow WGSL uniform layout rules; see Pack.
type SimUniforms struct {
	Pointer   [3]float32
	Dt        float32
	Weights   [4]float32
	Strength  float32
	Radius    float32
	Count     uint32
	AtlasSide uint32

	Seed          uint32
	ArriveEpsilon float32
	SpawnExtent   float32
	Opacity       float32

	LifetimeRange    [2]float32
	MorphSpeedRange  [2]float32
	JitterSpeedRange [2]float32
	ScaleRange       [2]float32

	NoiseOctaves    uint32
	NoiseLacunarity float32
	NoiseGain       float32
	NoiseFrequency  float32

	StartColor     [3]float32
	EmissivePower  float32
	EndColor       [3]float32
	PositionJitter float32
}

const SimUniformsSize = 144

// Pack serializes the uniforms into the 144-byte WGSL layout.
func (u *SimUniforms) Pack() []byte {
	b := make([]byte, 0, SimUniformsSize)
	b = appendF32(b, u.Pointer[0], u.Pointer[1], u.Pointer[2], u.Dt)
	b = appendF32(b, u.Weights[:]...)
	b = appendF32(b, u.Strength, u.Radius)
	b = appendU32(b, u.Count, u.AtlasSide, u.Seed)
	b = appendF32(b, u.ArriveEpsilon, u.SpawnExtent, u.Opacity)
	b = appendF32(b, u.LifetimeRange[:]...)
	b = appendF32(b, u.MorphSpeedRange[:]...)
	b = appendF32(b, u.JitterSpeedRange[:]...)
	b = appendF32(b, u.ScaleRange[:]...)
	b = appendU32(b, u.NoiseOctaves)
	b = appendF32(b, u.NoiseLacunarity, u.NoiseGain, u.NoiseFrequency)
	b = appendF32(b, u.StartColor[0], u.StartColor[1], u.StartColor[2], u.EmissivePower)
	b = appendF32(b, u.EndColor[0], u.EndColor[1], u.EndColor[2], u.PositionJitter)
	return b
}

// Vec4Stride is the byte stride of a vec3 stored in an array<vec4<f32>>.
const Vec4Stride = 16

// UnpackVec4s decodes an array<vec4<f32>> into dst, dropping w.
func UnpackVec4s(dst []mgl32.Vec3, src []byte) {
	for i := range dst {
		o := i * Vec4Stride
		dst[i] = mgl32.Vec3{f32At(src, o), f32At(src, o+4), f32At(src, o+8)}
	}
}

// UnpackFloats decodes an array<f32> into dst.
func UnpackFloats(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = f32At(src, i*4)
	}
}

func f32At(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}
