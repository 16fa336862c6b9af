package sim

import (
	"sync"
	"testing"

	"github.com/gekko3d/morphfield/morphrt/rt/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerHitWritesField(t *testing.T) {
	field := &PointerField{}
	tr := NewTracker(field, core.NewCameraState(), 1280, 720)

	require.True(t, tr.HandleMove(640, 360))
	p := field.Load()
	assert.InDelta(t, 0, p.X(), 1e-4)
	assert.InDelta(t, 0, p.Y(), 1e-4)

	require.True(t, tr.HandleMove(1280, 0))
	p = field.Load()
	assert.Greater(t, p.X(), float32(0))
	assert.Greater(t, p.Y(), float32(0))
	assert.InDelta(t, 0, p.Z(), 1e-4)
	assert.Equal(t, uint64(2), field.Updates())
}

func TestTrackerMissKeepsPreviousPoint(t *testing.T) {
	field := &PointerField{}
	field.Store(mgl32.Vec3{1, 2, 0})

	// camera looking away from the plane never hits it
	cam := core.NewCameraState()
	cam.Position = mgl32.Vec3{0, 0, 5}
	cam.Target = mgl32.Vec3{0, 0, 10}
	tr := NewTracker(field, cam, 800, 600)
	assert.False(t, tr.HandleMove(400, 300))
	assert.Equal(t, mgl32.Vec3{1, 2, 0}, field.Load())
	assert.Equal(t, uint64(1), field.Misses())

	// an empty viewport is also a miss
	tr.SetViewport(0, 0)
	tr.SetCamera(core.NewCameraState())
	assert.False(t, tr.HandleMove(10, 10))
	assert.Equal(t, mgl32.Vec3{1, 2, 0}, field.Load())
	assert.Equal(t, uint64(2), field.Misses())
}

func TestFieldDefaultsToOrigin(t *testing.T) {
	var f PointerField
	assert.Equal(t, mgl32.Vec3{}, f.Load())
}

func TestTrackerAttachAndClose(t *testing.T) {
	bus := NewPointerBus()
	field := &PointerField{}
	tr := NewTracker(field, core.NewCameraState(), 100, 100)

	tr.Attach(bus)
	tr.Attach(bus) // re-attach replaces the old listener
	assert.Equal(t, 1, bus.Listeners())

	bus.Emit(50, 50)
	assert.Equal(t, uint64(1), field.Updates())

	tr.Close()
	tr.Close()
	assert.Equal(t, 0, bus.Listeners())
	bus.Emit(10, 10)
	assert.Equal(t, uint64(1), field.Updates())
}

func TestFieldConcurrentWritesAreWhole(t *testing.T) {
	var f PointerField
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			v := float32(i % 100)
			f.Store(mgl32.Vec3{v, v, v})
		}
	}()
	for i := 0; i < 10000; i++ {
		p := f.Load()
		require.True(t, p[0] == p[1] && p[1] == p[2], "torn read %v", p)
	}
	close(stop)
	wg.Wait()
}
