package atlas

import (
	"math/rand/v2"

	"github.com/gekko3d/morphfield/morphrt/rt/core"
	"github.com/gekko3d/morphfield/morphrt/rt/shape"
)

// Builder fills atlases by multiset resampling of candidate clouds. A Builder
// keeps a staging buffer between builds and is not safe for concurrent use.
type Builder struct {
	Logger  core.Logger
	staging []float32
}

func NewBuilder(logger core.Logger) *Builder {
	return &Builder{Logger: core.OrNop(logger)}
}

// Build draws one target per particle: a non-empty cloud uniformly at random,
// then one of its vertices uniformly at random. The same clouds and seed always
// produce the same texels. On ErrNoTargets dst is left untouched.
func (b *Builder) Build(dst *Atlas, clouds []shape.PointCloud, seed uint64) error {
	candidates := make([]shape.PointCloud, 0, len(clouds))
	points := 0
	for _, c := range clouds {
		if !c.Empty() {
			candidates = append(candidates, c)
			points += c.Len()
		}
	}
	if len(candidates) == 0 {
		return ErrNoTargets
	}

	size := dst.side * dst.side * TexelStride
	if cap(b.staging) < size {
		b.staging = make([]float32, size)
	}
	staging := b.staging[:size]
	clear(staging)

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for i := 0; i < dst.count; i++ {
		c := candidates[rng.IntN(len(candidates))]
		p := c.At(rng.IntN(c.Len()))
		o := i * TexelStride
		staging[o] = p[0]
		staging[o+1] = p[1]
		staging[o+2] = p[2]
		staging[o+3] = 1
	}

	b.staging = dst.commit(staging)
	if b.Logger.DebugEnabled() {
		b.Logger.Debugf("atlas: generation %d built from %d clouds (%d points) for %d particles",
			dst.Generation(), len(candidates), points, dst.count)
	}
	return nil
}
