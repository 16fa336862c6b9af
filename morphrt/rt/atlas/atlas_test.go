package atlas

import (
	"testing"

	"github.com/gekko3d/morphfield/morphrt/rt/shape"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cloud(points ...mgl32.Vec3) shape.PointCloud { return shape.NewPointCloud(points) }

func TestNewSizesToSquare(t *testing.T) {
	a := New(10)
	assert.Equal(t, 4, a.Side())
	assert.Equal(t, 10, a.Count())
	assert.Len(t, a.CopyTexels(nil), 4*4*TexelStride)
	assert.True(t, a.TakeDirty())
	assert.False(t, a.TakeDirty())

	texels := a.CopyTexels(nil)
	assert.Equal(t, float32(1), texels[9*TexelStride+3])
	assert.Equal(t, float32(0), texels[10*TexelStride+3])
}

func TestCoord(t *testing.T) {
	a := New(10)
	col, row := a.Coord(0)
	assert.Equal(t, [2]int{0, 0}, [2]int{col, row})
	col, row = a.Coord(5)
	assert.Equal(t, [2]int{1, 1}, [2]int{col, row})
	assert.Equal(t, mgl32.Vec2{0.25, 0.25}, a.UV(5))
}

func TestSinglePointTargets(t *testing.T) {
	a := New(4)
	b := NewBuilder(nil)
	require.NoError(t, b.Build(a, []shape.PointCloud{cloud(mgl32.Vec3{1, 0, 0})}, 7))
	for i := 0; i < 4; i++ {
		assert.Equal(t, mgl32.Vec3{1, 0, 0}, a.Target(i))
	}
	assert.Equal(t, uint64(1), a.Generation())
	assert.NotEqual(t, uuid.Nil, a.BuildID())
}

func TestBuildIsIdempotentForSameSeed(t *testing.T) {
	clouds := shape.NewSampler(shape.DefaultTessellation()).SampleAll(shape.Sphere, shape.Torus)
	a, b := New(1000), New(1000)
	builder := NewBuilder(nil)
	require.NoError(t, builder.Build(a, clouds, 42))
	require.NoError(t, builder.Build(b, clouds, 42))
	assert.Equal(t, a.Bytes(), b.Bytes())

	// rebuilding the same atlas twice in succession gives the same targets
	first := a.Bytes()
	require.NoError(t, builder.Build(a, clouds, 42))
	assert.Equal(t, first, a.Bytes())

	require.NoError(t, builder.Build(b, clouds, 43))
	assert.NotEqual(t, a.Bytes(), b.Bytes())
}

func TestTargetsComeFromCandidates(t *testing.T) {
	p, q := mgl32.Vec3{1, 2, 3}, mgl32.Vec3{-1, -2, -3}
	a := New(500)
	require.NoError(t, NewBuilder(nil).Build(a, []shape.PointCloud{cloud(p), {}, cloud(q)}, 1))

	seen := map[mgl32.Vec3]int{}
	for i := 0; i < a.Count(); i++ {
		seen[a.Target(i)]++
	}
	require.Len(t, seen, 2)
	// both clouds drawn roughly equally
	assert.InDelta(t, 250, seen[p], 75)
	assert.InDelta(t, 250, seen[q], 75)
}

func TestEmptyCloudsLeaveAtlasUntouched(t *testing.T) {
	a := New(16)
	b := NewBuilder(nil)
	require.NoError(t, b.Build(a, []shape.PointCloud{cloud(mgl32.Vec3{0, 1, 0})}, 3))
	a.TakeDirty()
	before := a.Bytes()
	gen := a.Generation()

	err := b.Build(a, []shape.PointCloud{{}, {}}, 4)
	assert.ErrorIs(t, err, ErrNoTargets)
	assert.ErrorIs(t, b.Build(a, nil, 4), ErrNoTargets)
	assert.Equal(t, before, a.Bytes())
	assert.Equal(t, gen, a.Generation())
	assert.False(t, a.TakeDirty())
}

func TestUnaddressedCellsStayZero(t *testing.T) {
	a := New(5)
	require.NoError(t, NewBuilder(nil).Build(a, []shape.PointCloud{cloud(mgl32.Vec3{2, 2, 2})}, 9))
	texels := a.CopyTexels(nil)
	for i := 5; i < a.Side()*a.Side(); i++ {
		assert.Equal(t, []float32{0, 0, 0, 0}, texels[i*TexelStride:(i+1)*TexelStride])
	}
}

func TestCopyTargets(t *testing.T) {
	a := New(9)
	require.NoError(t, NewBuilder(nil).Build(a, []shape.PointCloud{cloud(mgl32.Vec3{0, 0, 5})}, 2))
	dst := make([]mgl32.Vec3, 3)
	a.CopyTargets(dst, 6)
	for _, v := range dst {
		assert.Equal(t, mgl32.Vec3{0, 0, 5}, v)
	}
}
