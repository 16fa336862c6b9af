package morphfield

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gekko3d/morphfield/config"
	"github.com/gekko3d/morphfield/morphrt/rt/shape"
	"github.com/gekko3d/morphfield/morphrt/rt/sim"
	"github.com/gekko3d/morphfield/telemetry"
	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigYAML = `
particles:
  count: 64
device:
  workers: 2
telemetry:
  stats_every: 4
  perf_window: 16
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigYAML), 0644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func testSampler() *shape.Sampler {
	return shape.NewSampler(shape.Tessellation{
		Box:    shape.BoxParams{Width: 2, Height: 2, Depth: 2, WidthSegs: 4, HeightSegs: 4, DepthSegs: 4},
		Sphere: shape.SphereParams{Radius: 1.5, WidthSegments: 16, HeightSegments: 8},
		Torus:  shape.TorusParams{Radius: 1.2, Tube: 0.4, RadialSegments: 8, TubularSegments: 16},
		Cone:   shape.ConeParams{Radius: 1.2, Height: 2.5, RadialSegments: 16, HeightSegments: 4},
	})
}

func newHeadlessApp(cfg *config.Config, device sim.Device, extra ...Module) *App {
	b := NewAppBuilder().
		UseStates(StateLoading, StateDone).
		UseModule(
			TimeModule{FixedDt: 16 * time.Millisecond},
			InputModule{},
			ParticlesModule{Config: cfg, Device: device, Sampler: testSampler()},
		).
		UseModule(extra...)
	return b.Build()
}

func mustResource[T any](t *testing.T, app *App) T {
	t.Helper()
	r, ok := Resource[T](app)
	require.True(t, ok)
	return r
}

func TestHeadlessRunEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	out, err := telemetry.NewOutputManager(dir)
	require.NoError(t, err)

	app := newHeadlessApp(cfg, nil,
		ShapeCycleModule{EveryFrames: 5},
		PointerPathModule{},
		TelemetryModule{Config: cfg, Output: out},
		SnapshotModule{Dir: dir, Every: 10, Width: 64, Height: 36},
		RunLimitModule{Frames: 12},
	)
	app.Run()

	morph := mustResource[*Morph](t, app)
	require.NoError(t, morph.Err)
	assert.Equal(t, StateDone, app.State())
	assert.EqualValues(t, 12, morph.Sim.Frame())
	assert.Zero(t, morph.Skipped)
	assert.False(t, morph.Sim.Ready(), "closed on StateDone")

	// frames 5 and 10 advance Box -> Sphere -> Torus
	assert.Equal(t, shape.Torus, morph.Current())
	assert.Equal(t, []shape.ID{shape.Torus}, morph.Sim.Shapes())

	assert.Positive(t, morph.Sim.Pointer().Updates(), "pointer path reaches the field")
	assert.Zero(t, morph.Bus.Listeners(), "tracker detached on close")

	tel := mustResource[*Telemetry](t, app)
	assert.Equal(t, 3, tel.Rows())
	assert.EqualValues(t, 12, tel.Last.Frame)
	assert.Equal(t, 64, tel.Last.Count)

	data, err := os.ReadFile(filepath.Join(dir, "frames.csv"))
	require.NoError(t, err)
	var rows []telemetry.FrameStats
	require.NoError(t, gocsv.UnmarshalBytes(data, &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, []uint64{4, 8, 12}, []uint64{rows[0].Frame, rows[1].Frame, rows[2].Frame})
	assert.Equal(t, "Box", rows[0].Shape)
	assert.Equal(t, "repel", rows[0].Mode)
	assert.Equal(t, out.Session(), rows[0].Session)
	assert.FileExists(t, filepath.Join(dir, "perf.csv"))
	assert.FileExists(t, filepath.Join(dir, "config.yaml"))

	snap := mustResource[*Snapshots](t, app)
	assert.Equal(t, []string{
		filepath.Join(dir, "frame_000010.png"),
		filepath.Join(dir, "frame_000012.png"),
	}, snap.Written)
	for _, p := range snap.Written {
		assert.FileExists(t, p)
	}

	perf := mustResource[*telemetry.PerfCollector](t, app)
	assert.Equal(t, 12, perf.Len())
}

func TestInputDrivesShapeAndMode(t *testing.T) {
	cfg := testConfig(t)
	app := newHeadlessApp(cfg, nil)
	require.True(t, app.RunFrames(2))
	require.Equal(t, StateRunning, app.State())

	morph := mustResource[*Morph](t, app)
	input := mustResource[*Input](t, app)
	t.Cleanup(morph.Sim.Close)

	input.Press(KeyRight)
	require.True(t, app.Tick())
	assert.Equal(t, shape.Sphere, morph.Current())

	input.Release(KeyRight)
	input.Press(KeyLeft)
	require.True(t, app.Tick())
	input.Release(KeyLeft)
	input.Press(KeyLeft)
	require.True(t, app.Tick())
	assert.Equal(t, shape.Cone, morph.Current(), "cycle wraps backwards")

	input.Press(Key3)
	require.True(t, app.Tick())
	assert.Equal(t, sim.Swirl, morph.Mode)
	assert.Equal(t, sim.Swirl.Weights(), morph.Sim.Weights())

	before := morph.Sim.Pointer().Updates()
	input.MoveCursor(640, 360)
	require.True(t, app.Tick())
	assert.Equal(t, before+1, morph.Sim.Pointer().Updates())
	assert.InDelta(t, 0, morph.Sim.Pointer().Load().X(), 1e-4, "viewport center hits the origin")

	input.Press(KeyEscape)
	assert.False(t, app.Tick())
	assert.Equal(t, StateDone, app.State())
}

type failingInitDevice struct {
	*sim.CPUDevice
	err error
}

func (d *failingInitDevice) Init() sim.Fence { return sim.DoneFence(d.err) }

func TestInitFailureExits(t *testing.T) {
	boom := errors.New("device lost")
	cfg := testConfig(t)
	dev := &failingInitDevice{CPUDevice: sim.NewCPUDevice(1, sim.ZeroNoise{}, nil), err: boom}

	app := newHeadlessApp(cfg, dev, RunLimitModule{Frames: 100})
	assert.False(t, app.RunFrames(10))

	morph := mustResource[*Morph](t, app)
	assert.ErrorIs(t, morph.Err, boom)
	assert.Equal(t, StateDone, app.State())
	assert.EqualValues(t, 0, morph.Sim.Frame())
}

func TestTimeModuleFixedStep(t *testing.T) {
	app := NewAppBuilder().UseModule(TimeModule{FixedDt: 10 * time.Millisecond}).Build()
	app.RunFrames(3)

	tm := mustResource[*Time](t, app)
	assert.EqualValues(t, 3, tm.Frame)
	assert.Equal(t, 30*time.Millisecond, tm.Elapsed)
	assert.InDelta(t, 0.01, tm.DtSeconds(), 1e-6)
}

func TestInputEdgesResetEachFrame(t *testing.T) {
	app := NewAppBuilder().UseModule(InputModule{}).Build()
	input := mustResource[*Input](t, app)

	input.Press(KeySpace)
	input.Press(KeySpace)
	assert.True(t, input.JustPressed[KeySpace])
	app.RunFrames(1)
	assert.False(t, input.JustPressed[KeySpace])
	assert.True(t, input.Pressed[KeySpace])

	input.Release(KeySpace)
	assert.True(t, input.JustReleased[KeySpace])
	assert.NotPanics(t, func() { input.Press(keyCount) })
}
