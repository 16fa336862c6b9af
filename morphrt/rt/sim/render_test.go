package sim

import (
	"testing"

	"github.com/gekko3d/morphfield/morphrt/rt/core"
	"github.com/gekko3d/morphfield/morphrt/rt/shape"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColorStateEasesLinearlyInDt(t *testing.T) {
	from := Colors{Start: mgl32.Vec3{0, 0, 0}, End: mgl32.Vec3{1, 1, 1}, Emissive: 0}
	to := Colors{Start: mgl32.Vec3{1, 0, 0}, End: mgl32.Vec3{0, 0, 0}, Emissive: 1}
	cs := NewColorState(from)
	cs.Target = to

	got := cs.Ease(0.5)
	assert.Equal(t, mgl32.Vec3{0.5, 0, 0}, got.Start)
	assert.Equal(t, mgl32.Vec3{0.5, 0.5, 0.5}, got.End)
	assert.Equal(t, float32(0.5), got.Emissive)

	got = cs.Ease(0.5)
	assert.Equal(t, float32(0.75), got.Emissive)

	// zero dt holds, oversized dt lands on the target without overshoot
	assert.Equal(t, got, cs.Ease(0))
	assert.Equal(t, to, cs.Ease(3))
}

func TestPaletteFor(t *testing.T) {
	p := DefaultPalette()
	c, ok := p.For("Teapot", shape.Sphere, shape.Box)
	require.True(t, ok)
	assert.Equal(t, p[shape.Sphere], c)
	_, ok = p.For("Teapot")
	assert.False(t, ok)
	assert.InDelta(t, 0.3, p[shape.Torus].Emissive, 1e-6)
}

func TestLifetimeProgressAndScale(t *testing.T) {
	assert.Equal(t, float32(0), LifetimeProgress(0, 2))
	assert.Equal(t, float32(0.5), LifetimeProgress(1, 2))
	assert.Equal(t, float32(1), LifetimeProgress(5, 2))
	assert.Equal(t, float32(1), LifetimeProgress(1, 0))

	assert.Equal(t, float32(0.02), ScaleAt(0.02, 0))
	assert.Equal(t, float32(0), ScaleAt(0.02, 1))
	assert.InDelta(t, 0.01, ScaleAt(0.02, 0.5), 1e-7)
}

func TestDeriveInstance(t *testing.T) {
	p := DefaultParams(2)
	s := NewStore(2)
	s.Spawn[0] = mgl32.Vec3{1, 2, 3}
	s.Offset[0] = mgl32.Vec3{0.5, 0, 0}
	s.Age[1] = p.LifetimeOf(1)

	c := Colors{Start: mgl32.Vec3{1, 0, 0}, End: mgl32.Vec3{0, 0, 1}, Emissive: 0.5}
	born := DeriveInstance(&p, s, 0, c)
	assert.InDelta(t, 1.5, born.Pos[0], 0.0011)
	assert.InDelta(t, 2, born.Pos[1], 0.0011)
	assert.Equal(t, p.BaseScaleOf(0), born.Scale)
	assert.Equal(t, [4]float32{1, 0, 0, 0.6}, born.Color)
	assert.Equal(t, [4]float32{0.5, 0, 0, 0.3}, born.Emissive)

	dying := DeriveInstance(&p, s, 1, c)
	assert.Equal(t, float32(0), dying.Scale)
	assert.Equal(t, [4]float32{0, 0, 1, 0.6}, dying.Color)

	inst := DeriveInstances(make([]core.ParticleInstance, 0), &p, s, c)
	assert.Len(t, inst, 2)
}

func TestSpriteMaskIsSoftDisc(t *testing.T) {
	assert.Equal(t, float32(1), SpriteMask(0.5, 0.5))
	assert.Equal(t, float32(1), SpriteMask(0.5, 0.9))
	assert.Equal(t, float32(0), SpriteMask(0, 0), "corners are transparent")
	assert.Equal(t, float32(0), SpriteMask(1, 0.5))
	edge := SpriteMask(0.5+0.495, 0.5)
	assert.Greater(t, edge, float32(0))
	assert.Less(t, edge, float32(1))
}
