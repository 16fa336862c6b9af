package telemetry

import (
	"slices"

	"github.com/gekko3d/morphfield/morphrt/rt/core"
	"github.com/gekko3d/morphfield/morphrt/rt/sim"
	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/stat"
)

// FrameStats summarizes the particle state at one frame.
type FrameStats struct {
	Session string  `csv:"session"`
	Frame   uint64  `csv:"frame"`
	Shape   string  `csv:"shape"`
	Mode    string  `csv:"mode"`
	Count   int     `csv:"count"`
	SimTime float64 `csv:"sim_time"`

	// Distance from spawn position to morph target
	TargetDistMean float64 `csv:"target_dist_mean"`
	TargetDistP50  float64 `csv:"target_dist_p50"`
	TargetDistP90  float64 `csv:"target_dist_p90"`
	Arrived        float64 `csv:"arrived_frac"`

	// Pointer and jitter displacement
	OffsetMean float64 `csv:"offset_mean"`
	OffsetMax  float64 `csv:"offset_max"`

	// Lifecycle progress age/lifetime
	ProgressMean float64 `csv:"progress_mean"`
	ProgressStd  float64 `csv:"progress_std"`

	PointerX float64 `csv:"pointer_x"`
	PointerY float64 `csv:"pointer_y"`
}

// StatsCollector computes FrameStats, reusing its scratch slices between calls.
type StatsCollector struct {
	targets  []mgl32.Vec3
	dist     []float64
	offset   []float64
	progress []float64
}

func NewStatsCollector() *StatsCollector { return &StatsCollector{} }

// Collect fills the state columns of a FrameStats. targets holds one morph
// target per particle.
func (c *StatsCollector) Collect(p *sim.Params, s *sim.Store, targets []mgl32.Vec3) FrameStats {
	n := s.Len()
	fs := FrameStats{Count: n}
	if n == 0 {
		return fs
	}
	c.dist = resize(c.dist, n)
	c.offset = resize(c.offset, n)
	c.progress = resize(c.progress, n)

	arrived := 0
	for i := 0; i < n; i++ {
		d := float64(core.Length(targets[i].Sub(s.Spawn[i])))
		c.dist[i] = d
		if d <= float64(p.ArriveEpsilon) {
			arrived++
		}
		c.offset[i] = float64(core.Length(s.Offset[i]))
		c.progress[i] = float64(sim.LifetimeProgress(s.Age[i], p.LifetimeOf(i)))
	}

	fs.TargetDistMean = stat.Mean(c.dist, nil)
	fs.OffsetMean = stat.Mean(c.offset, nil)
	fs.OffsetMax = slices.Max(c.offset)
	fs.ProgressMean, fs.ProgressStd = stat.MeanStdDev(c.progress, nil)
	if n == 1 {
		fs.ProgressStd = 0
	}
	fs.Arrived = float64(arrived) / float64(n)

	slices.Sort(c.dist)
	fs.TargetDistP50 = stat.Quantile(0.5, stat.Empirical, c.dist, nil)
	fs.TargetDistP90 = stat.Quantile(0.9, stat.Empirical, c.dist, nil)
	return fs
}

// Targets returns a scratch slice sized n for atlas.CopyTargets.
func (c *StatsCollector) Targets(n int) []mgl32.Vec3 {
	if cap(c.targets) < n {
		c.targets = make([]mgl32.Vec3, n)
	}
	c.targets = c.targets[:n]
	return c.targets
}

func resize(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	return s[:n]
}
