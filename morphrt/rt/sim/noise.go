package sim

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/ojrac/opensimplex-go"
)

// FractalNoise maps a point to a 3D offset with components in roughly [-1, 1].
// Implementations must be safe for concurrent use.
type FractalNoise interface {
	Sample(p mgl32.Vec3) mgl32.Vec3
}

// SimplexFBM sums octaves of three independent simplex fields, one per axis.
type SimplexFBM struct {
	fields     [3]opensimplex.Noise32
	octaves    int
	lacunarity float32
	gain       float32
	frequency  float32
	norm       float32
}

func NewSimplexFBM(seed int64, np NoiseParams) *SimplexFBM {
	f := &SimplexFBM{
		octaves:    max(np.Octaves, 1),
		lacunarity: np.Lacunarity,
		gain:       np.Gain,
		frequency:  np.Frequency,
	}
	for a := range f.fields {
		f.fields[a] = opensimplex.New32(seed + int64(a)*7919)
	}
	amp := float32(1)
	for o := 0; o < f.octaves; o++ {
		f.norm += amp
		amp *= f.gain
	}
	if f.norm == 0 {
		f.norm = 1
	}
	return f
}

func (f *SimplexFBM) Sample(p mgl32.Vec3) mgl32.Vec3 {
	var out mgl32.Vec3
	freq, amp := f.frequency, float32(1)
	for o := 0; o < f.octaves; o++ {
		x, y, z := p[0]*freq, p[1]*freq, p[2]*freq
		for a := range f.fields {
			out[a] += f.fields[a].Eval3(x, y, z) * amp
		}
		freq *= f.lacunarity
		amp *= f.gain
	}
	return out.Mul(1 / f.norm)
}

// ZeroNoise disables ambient jitter.
type ZeroNoise struct{}

func (ZeroNoise) Sample(mgl32.Vec3) mgl32.Vec3 { return mgl32.Vec3{} }
