package sim

import (
	"context"
	"errors"
	"testing"

	"github.com/gekko3d/morphfield/config"
	"github.com/gekko3d/morphfield/morphrt/rt/atlas"
	"github.com/gekko3d/morphfield/morphrt/rt/shape"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallSampler() *shape.Sampler {
	return shape.NewSampler(shape.Tessellation{
		Box:    shape.BoxParams{Width: 2, Height: 2, Depth: 2, WidthSegs: 4, HeightSegs: 4, DepthSegs: 4},
		Sphere: shape.SphereParams{Radius: 1.5, WidthSegments: 16, HeightSegments: 8},
		Torus:  shape.TorusParams{Radius: 1.2, Tube: 0.4, RadialSegments: 8, TubularSegments: 16},
		Cone:   shape.ConeParams{Radius: 1.2, Height: 2.5, RadialSegments: 16, HeightSegments: 4},
	})
}

func newTestSim(t *testing.T, n int, shapes ...shape.ID) *Simulation {
	t.Helper()
	p := DefaultParams(n)
	s, err := New(Options{
		Params:        p,
		Device:        NewCPUDevice(2, ZeroNoise{}, nil),
		Sampler:       smallSampler(),
		InitialShapes: shapes,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestStepBeforeInitIsNotReady(t *testing.T) {
	s := newTestSim(t, 16, shape.Box)
	assert.False(t, s.Ready())
	_, err := s.Step(0.016)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, s.Snapshot(testCtx(t), NewStore(16)), ErrNotReady)

	require.NoError(t, s.Init(testCtx(t)))
	assert.True(t, s.Ready())
	f, err := s.Step(0.016)
	require.NoError(t, err)
	require.NoError(t, f.Wait(testCtx(t)))
	assert.Equal(t, uint64(1), s.Frame())
}

func TestSinglePointScenarioConverges(t *testing.T) {
	s := newTestSim(t, 4)
	s.SetWeights(mgl32.Vec4{})
	require.NoError(t, s.SetTargets(shape.NewPointCloud([]mgl32.Vec3{{1, 0, 0}})))
	for i := 0; i < 4; i++ {
		assert.Equal(t, mgl32.Vec3{1, 0, 0}, s.Atlas().Target(i))
	}

	require.NoError(t, s.Init(testCtx(t)))
	for frame := 0; frame < 1000; frame++ {
		_, err := s.Step(1.0 / 60)
		require.NoError(t, err)
	}
	require.NoError(t, s.Sync(testCtx(t)))

	st := NewStore(4)
	require.NoError(t, s.Snapshot(testCtx(t), st))
	for i := 0; i < 4; i++ {
		assert.LessOrEqual(t, st.Spawn[i].Sub(mgl32.Vec3{1, 0, 0}).Len(), float32(0.01), "particle %d", i)
	}
}

func TestMorphDistanceIsMonotoneThroughSimulation(t *testing.T) {
	s := newTestSim(t, 64, shape.Sphere)
	require.NoError(t, s.Init(testCtx(t)))
	ctx := testCtx(t)

	prev := NewStore(64)
	require.NoError(t, s.Snapshot(ctx, prev))
	cur := NewStore(64)
	for frame := 0; frame < 50; frame++ {
		_, err := s.Step(1.0 / 60)
		require.NoError(t, err)
		require.NoError(t, s.Snapshot(ctx, cur))
		for i := 0; i < 64; i++ {
			target := s.Atlas().Target(i)
			before := target.Sub(prev.Spawn[i]).Len()
			after := target.Sub(cur.Spawn[i]).Len()
			require.LessOrEqual(t, after, before+1e-6)
		}
		prev.CopyFrom(cur)
	}
}

func TestUnknownShapeLeavesAtlasUntouched(t *testing.T) {
	s := newTestSim(t, 100, shape.Torus)
	require.NoError(t, s.Init(testCtx(t)))
	before := s.Atlas().Bytes()
	gen := s.Atlas().Generation()
	colors := s.Colors()

	err := s.SetShape("Teapot")
	assert.ErrorIs(t, err, ErrUnknownShape)
	err = s.SetShape(shape.Box, "Teapot")
	assert.ErrorIs(t, err, ErrUnknownShape)

	assert.Equal(t, before, s.Atlas().Bytes())
	assert.Equal(t, gen, s.Atlas().Generation())
	assert.Equal(t, []shape.ID{shape.Torus}, s.Shapes())

	_, err = s.Step(0.5)
	require.NoError(t, err)
	assert.Equal(t, colors, s.Colors(), "color target unchanged")
}

func TestShapeChangeRebuildsAndUploads(t *testing.T) {
	s := newTestSim(t, 100, shape.Box)
	require.NoError(t, s.Init(testCtx(t)))
	gen := s.Atlas().Generation()

	require.NoError(t, s.SetShape(shape.Sphere))
	assert.Equal(t, gen+1, s.Atlas().Generation())
	for i := 0; i < 100; i++ {
		assert.InDelta(t, 1.5, s.Atlas().Target(i).Len(), 1e-5)
	}

	// the next frame moves particles toward the sphere targets
	st := NewStore(100)
	require.NoError(t, s.Snapshot(testCtx(t), st))
	_, err := s.Step(1.0 / 60)
	require.NoError(t, err)
	after := NewStore(100)
	require.NoError(t, s.Snapshot(testCtx(t), after))
	closer := 0
	for i := 0; i < 100; i++ {
		target := s.Atlas().Target(i)
		if target.Sub(after.Spawn[i]).Len() < target.Sub(st.Spawn[i]).Len() {
			closer++
		}
	}
	assert.Greater(t, closer, 90)
}

func TestColorsEaseTowardShapePalette(t *testing.T) {
	s := newTestSim(t, 16, shape.Box)
	pal := DefaultPalette()
	assert.Equal(t, pal[shape.Box], s.Colors(), "starts at the initial shape's colors")

	require.NoError(t, s.Init(testCtx(t)))
	require.NoError(t, s.SetShape(shape.Cone))
	_, err := s.Step(0.25)
	require.NoError(t, err)

	want := pal[shape.Box].lerp(pal[shape.Cone], 0.25)
	got := s.Colors()
	assert.InDelta(t, want.Emissive, got.Emissive, 1e-6)
	for a := 0; a < 3; a++ {
		assert.InDelta(t, want.Start[a], got.Start[a], 1e-6)
		assert.InDelta(t, want.End[a], got.End[a], 1e-6)
	}
}

func TestModeSelection(t *testing.T) {
	s := newTestSim(t, 16, shape.Box)
	s.SetMode(Tornado)
	assert.Equal(t, mgl32.Vec4{0, 0, 0, 1}, s.Weights())
	s.SetWeights(mgl32.Vec4{0.5, 0, 0.5, 0})
	assert.Equal(t, mgl32.Vec4{0.5, 0, 0.5, 0}, s.Weights())
}

func TestPointerEventsReachKernel(t *testing.T) {
	s := newTestSim(t, 1)
	require.NoError(t, s.SetTargets(shape.NewPointCloud([]mgl32.Vec3{{0.5, 0, 0}})))
	require.NoError(t, s.Init(testCtx(t)))

	bus := NewPointerBus()
	s.AttachPointer(bus)
	s.Tracker().SetViewport(1000, 1000)
	bus.Emit(500, 500)
	assert.Equal(t, uint64(1), s.Pointer().Updates())
	assert.InDelta(t, 0, s.Pointer().Load().Len(), 1e-4)

	s.Close()
	assert.Equal(t, 0, bus.Listeners(), "close unregisters the listener")
	_, err := s.Step(0.1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, s.Ready())
}

func TestInstancesDeriveFromState(t *testing.T) {
	s := newTestSim(t, 32, shape.Sphere)
	require.NoError(t, s.Init(testCtx(t)))
	_, err := s.Step(1.0 / 60)
	require.NoError(t, err)

	inst, err := s.Instances(testCtx(t), nil)
	require.NoError(t, err)
	require.Len(t, inst, 32)
	p := s.Params()
	for _, in := range inst {
		assert.InDelta(t, p.Opacity, in.Color[3], 1e-6)
		assert.LessOrEqual(t, in.Scale, p.Scale.Max)
		assert.GreaterOrEqual(t, in.Scale, float32(0))
	}
}

type failingDevice struct {
	*CPUDevice
	allocErr error
	initErr  error
}

func (d *failingDevice) Allocate(p Params, side int) error {
	if d.allocErr != nil {
		return d.allocErr
	}
	return d.CPUDevice.Allocate(p, side)
}

func (d *failingDevice) Init() Fence {
	if d.initErr != nil {
		return DoneFence(d.initErr)
	}
	return d.CPUDevice.Init()
}

func TestAllocationFailureIsFatal(t *testing.T) {
	boom := errors.New("out of memory")
	_, err := New(Options{Params: DefaultParams(8), Device: &failingDevice{CPUDevice: NewCPUDevice(1, nil, nil), allocErr: boom}})
	assert.ErrorIs(t, err, boom)
}

func TestInitFailureNeverBecomesReady(t *testing.T) {
	boom := errors.New("device lost")
	s, err := New(Options{
		Params:        DefaultParams(8),
		Device:        &failingDevice{CPUDevice: NewCPUDevice(1, nil, nil), initErr: boom},
		Sampler:       smallSampler(),
		InitialShapes: []shape.ID{shape.Box},
	})
	require.NoError(t, err)
	defer s.Close()

	assert.ErrorIs(t, s.Init(testCtx(t)), boom)
	assert.False(t, s.Ready())
	_, err = s.Step(0.1)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, s.Init(context.Background()), boom, "init is not retried")
}

func TestEmptyTargetsKeepAtlas(t *testing.T) {
	s := newTestSim(t, 9, shape.Cone)
	before := s.Atlas().Bytes()
	assert.ErrorIs(t, s.SetTargets(shape.PointCloud{}), atlas.ErrNoTargets)
	assert.Equal(t, before, s.Atlas().Bytes())
	assert.Equal(t, []shape.ID{shape.Cone}, s.Shapes())
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Particles.Count = 256
	cfg.Pointer.Mode = "swirl"
	cfg.Pointer.Modes["swirl"] = config.ForceConfig{Strength: 2, Radius: 0.75}

	opts := OptionsFromConfig(cfg, nil)
	assert.Equal(t, 256, opts.Params.Count)
	assert.Equal(t, Swirl, opts.Mode)
	assert.Equal(t, Force{Strength: 2, Radius: 0.75}, opts.Forces[Swirl])
	assert.Equal(t, []shape.ID{shape.Box}, opts.InitialShapes)
	assert.Equal(t, DefaultPalette()[shape.Torus], opts.Palette[shape.Torus])

	opts.Sampler = smallSampler()
	opts.Device = NewCPUDevice(1, nil, nil)
	s, err := New(opts)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, mgl32.Vec4{0, 0, 1, 0}, s.Weights())
}
