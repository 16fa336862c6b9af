package sim

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gekko3d/morphfield/morphrt/rt/atlas"
	"github.com/gekko3d/morphfield/morphrt/rt/shape"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestWorkerPoolCoversEveryIndexOnce(t *testing.T) {
	for _, workers := range []int{1, 3, 8} {
		pool := newWorkerPool(workers)
		n := 10007
		hits := make([]int32, n)
		pool.run(n, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		pool.stop()
		for i, h := range hits {
			require.Equal(t, int32(1), h, "workers=%d index %d", workers, i)
		}
	}
}

func TestWorkerPoolSmallRunsInline(t *testing.T) {
	pool := newWorkerPool(4)
	calls := 0
	pool.run(10, func(lo, hi int) {
		calls++
		assert.Equal(t, 0, lo)
		assert.Equal(t, 10, hi)
	})
	assert.Equal(t, 1, calls)
	assert.False(t, pool.running)
}

func runDevice(t *testing.T, workers int, steps int) *Store {
	t.Helper()
	p := DefaultParams(3000)
	d := NewCPUDevice(workers, NewSimplexFBM(5, p.Noise), nil)
	a := atlas.New(p.Count)
	require.NoError(t, d.Allocate(p, a.Side()))
	defer d.Release()

	clouds := shape.NewSampler(shape.DefaultTessellation()).SampleAll(shape.Torus)
	require.NoError(t, atlas.NewBuilder(nil).Build(a, clouds, 3))
	d.WriteAtlas(a)
	d.Init()

	u := Uniforms{Weights: Swirl.Weights(), Strength: 5, Radius: 1.5, Pointer: mgl32.Vec3{0.5, 0.5, 0}}
	var last Fence
	for i := 0; i < steps; i++ {
		u.Dt = 1.0 / 60
		last = d.Update(u)
	}
	require.NoError(t, last.Wait(testCtx(t)))

	out := NewStore(p.Count)
	require.NoError(t, d.ReadState(testCtx(t), out))
	return out
}

func TestCPUDeviceIsDeterministicAcrossWorkerCounts(t *testing.T) {
	single := runDevice(t, 1, 30)
	multi := runDevice(t, 6, 30)
	assert.Equal(t, single.Spawn, multi.Spawn)
	assert.Equal(t, single.Offset, multi.Offset)
	assert.Equal(t, single.Age, multi.Age)
}

func TestCPUDeviceInitMatchesParams(t *testing.T) {
	p := DefaultParams(50)
	d := NewCPUDevice(2, nil, nil)
	require.NoError(t, d.Allocate(p, 8))
	defer d.Release()

	require.NoError(t, d.Init().Wait(testCtx(t)))
	s := NewStore(p.Count)
	require.NoError(t, d.ReadState(testCtx(t), s))
	for i := 0; i < p.Count; i++ {
		assert.Equal(t, p.SpawnOf(i), s.Spawn[i])
		assert.Equal(t, mgl32.Vec3{}, s.Offset[i])
		assert.Equal(t, p.InitialAgeOf(i), s.Age[i])
	}
}

func TestCPUDeviceErrors(t *testing.T) {
	d := NewCPUDevice(1, nil, nil)
	assert.Error(t, d.Init().Wait(testCtx(t)), "init before allocate")

	p := DefaultParams(10)
	assert.Error(t, d.Allocate(p, 3), "atlas too small")
	bad := p
	bad.Count = 0
	assert.Error(t, d.Allocate(bad, 4))

	require.NoError(t, d.Allocate(p, 4))
	assert.Error(t, d.Allocate(p, 4), "double allocate")

	assert.Error(t, d.ReadState(testCtx(t), NewStore(3)), "length mismatch")

	d.Release()
	d.Release()
	assert.ErrorIs(t, d.Update(Uniforms{}).Wait(testCtx(t)), ErrClosed)
	assert.ErrorIs(t, d.ReadState(testCtx(t), NewStore(10)), ErrClosed)
}

func TestCPUDeviceRejectsMismatchedAtlas(t *testing.T) {
	p := DefaultParams(10)
	d := NewCPUDevice(1, nil, nil)
	require.NoError(t, d.Allocate(p, 4))
	defer d.Release()
	assert.Error(t, d.WriteAtlas(atlas.New(100)).Wait(testCtx(t)))
}

func TestFenceWaitHonorsContext(t *testing.T) {
	f := newFence()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.Wait(ctx), context.Canceled)
	assert.False(t, f.Done())
	f.complete(nil)
	assert.True(t, f.Done())
	assert.NoError(t, f.Wait(context.Background()))
}
