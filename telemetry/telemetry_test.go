package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gekko3d/morphfield/config"
	"github.com/gekko3d/morphfield/morphrt/rt/sim"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerfCollectorRollingWindow(t *testing.T) {
	pc := NewPerfCollector(4)
	assert.Equal(t, 0, pc.Stats().Frames)

	for i := 1; i <= 6; i++ {
		pc.Record(PerfSample{
			FrameDuration: time.Duration(i) * time.Millisecond,
			Phases:        map[string]time.Duration{PhaseSubmit: time.Duration(i) * time.Millisecond / 2},
		})
	}
	st := pc.Stats()
	assert.Equal(t, 4, st.Frames, "window keeps only the newest samples")
	assert.Equal(t, 3*time.Millisecond, st.MinFrame)
	assert.Equal(t, 6*time.Millisecond, st.MaxFrame)
	assert.Equal(t, 4500*time.Microsecond, st.AvgFrame)
	assert.InDelta(t, 50, st.PhasePct[PhaseSubmit], 1e-9)
	assert.InDelta(t, 1000.0/4.5, st.FramesPerSec, 1e-6)
	assert.Equal(t, 6*time.Millisecond, st.P95Frame)
	assert.Contains(t, st.Summary(), "submit=50.0%")
}

func TestPerfCollectorTimesPhases(t *testing.T) {
	pc := NewPerfCollector(10)
	for i := 0; i < 3; i++ {
		pc.StartFrame()
		pc.StartPhase(PhaseSubmit)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseWait)
		pc.EndFrame()
	}
	st := pc.Stats()
	assert.Equal(t, 3, pc.Len())
	assert.Greater(t, st.AvgFrame, time.Duration(0))
	assert.Contains(t, st.PhaseAvg, PhaseSubmit)
	assert.Contains(t, st.PhaseAvg, PhaseWait)
}

func TestStatsCollector(t *testing.T) {
	p := sim.DefaultParams(4)
	s := sim.NewStore(4)
	targets := []mgl32.Vec3{{1, 0, 0}, {1, 0, 0}, {0, 2, 0}, {0, 0, 0}}
	s.Spawn[0] = mgl32.Vec3{1, 0, 0}
	s.Spawn[1] = mgl32.Vec3{1.005, 0, 0}
	s.Spawn[2] = mgl32.Vec3{0, 0, 0}
	s.Spawn[3] = mgl32.Vec3{0, 0, 4}
	s.Offset[3] = mgl32.Vec3{0, 3, 4}

	c := NewStatsCollector()
	fs := c.Collect(&p, s, targets)
	assert.Equal(t, 4, fs.Count)
	assert.InDelta(t, 0.5, fs.Arrived, 1e-9)
	assert.InDelta(t, (0+0.005+2+4)/4.0, fs.TargetDistMean, 1e-6)
	assert.InDelta(t, 5, fs.OffsetMax, 1e-6)
	assert.InDelta(t, 1.25, fs.OffsetMean, 1e-6)
	assert.InDelta(t, 0, fs.ProgressMean, 1e-9, "fresh store has zero ages")

	assert.Len(t, c.Targets(7), 7)
	assert.Equal(t, FrameStats{}, c.Collect(&p, sim.NewStore(0), nil))
}

func TestOutputManager(t *testing.T) {
	om, err := NewOutputManager("")
	require.NoError(t, err)
	assert.Nil(t, om)
	assert.NoError(t, om.WriteFrame(FrameStats{}), "nil manager discards")
	assert.NoError(t, om.Close())

	dir := filepath.Join(t.TempDir(), "run")
	om, err = NewOutputManager(dir)
	require.NoError(t, err)
	require.NoError(t, om.WriteConfig(config.Default()))
	require.NoError(t, om.WriteFrame(FrameStats{Frame: 1, Shape: "Box", Count: 10}))
	require.NoError(t, om.WriteFrame(FrameStats{Frame: 2, Shape: "Sphere", Count: 10}))
	pc := NewPerfCollector(2)
	pc.Record(PerfSample{FrameDuration: time.Millisecond})
	require.NoError(t, om.WritePerf(pc.Stats(), 2))
	require.NoError(t, om.Close())

	raw, err := os.ReadFile(filepath.Join(dir, "frames.csv"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), "session,frame"), "header written once")

	var rows []FrameStats
	require.NoError(t, gocsv.UnmarshalBytes(raw, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "Sphere", rows[1].Shape)
	assert.Equal(t, om.Session(), rows[0].Session)

	_, err = config.Load(filepath.Join(dir, "config.yaml"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "perf.csv"))
	assert.NoError(t, err)
}
