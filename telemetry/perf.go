package telemetry

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Phase names for one simulation frame.
const (
	PhaseAtlas    = "atlas"
	PhaseSubmit   = "submit"
	PhaseWait     = "wait"
	PhaseReadback = "readback"
	PhaseDerive   = "derive"
	PhaseRaster   = "raster"
)

var phases = []string{PhaseAtlas, PhaseSubmit, PhaseWait, PhaseReadback, PhaseDerive, PhaseRaster}

// PerfSample holds timing data for a single frame.
type PerfSample struct {
	FrameDuration time.Duration
	Phases        map[string]time.Duration
}

// PerfCollector tracks frame timings over a rolling window.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	frameStart    time.Time
	phaseStart    time.Time
	lastPhase     string
}

// NewPerfCollector creates a collector averaging over windowSize frames.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

func (p *PerfCollector) StartFrame() {
	p.frameStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase ends the running phase, if any, and starts timing phase.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndFrame closes the last phase and records the sample.
func (p *PerfCollector) EndFrame() {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.Record(PerfSample{FrameDuration: now.Sub(p.frameStart), Phases: p.currentPhases})
}

// Record adds a sample, overwriting the oldest once the window is full.
func (p *PerfCollector) Record(s PerfSample) {
	p.samples[p.writeIndex] = s
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

func (p *PerfCollector) Len() int { return p.sampleCount }

// PerfStats holds aggregated frame statistics.
type PerfStats struct {
	Frames       int
	AvgFrame     time.Duration
	StdDevFrame  time.Duration
	MinFrame     time.Duration
	MaxFrame     time.Duration
	P95Frame     time.Duration
	FramesPerSec float64
	PhaseAvg     map[string]time.Duration
	PhasePct     map[string]float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	st := PerfStats{
		Frames:   p.sampleCount,
		PhaseAvg: make(map[string]time.Duration),
		PhasePct: make(map[string]float64),
	}
	if p.sampleCount == 0 {
		return st
	}

	durs := make([]float64, p.sampleCount)
	phaseSum := make(map[string]time.Duration)
	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		durs[i] = float64(s.FrameDuration)
		for phase, d := range s.Phases {
			phaseSum[phase] += d
		}
	}

	mean, std := stat.MeanStdDev(durs, nil)
	slices.Sort(durs)
	st.AvgFrame = time.Duration(mean)
	if p.sampleCount > 1 {
		st.StdDevFrame = time.Duration(std)
	}
	st.MinFrame = time.Duration(durs[0])
	st.MaxFrame = time.Duration(durs[len(durs)-1])
	st.P95Frame = time.Duration(stat.Quantile(0.95, stat.Empirical, durs, nil))
	if mean > 0 {
		st.FramesPerSec = float64(time.Second) / mean
	}

	for phase, sum := range phaseSum {
		avg := sum / time.Duration(p.sampleCount)
		st.PhaseAvg[phase] = avg
		if mean > 0 {
			st.PhasePct[phase] = float64(avg) / mean * 100
		}
	}
	return st
}

// Summary is a one-line digest for the log.
func (s PerfStats) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "frames=%d avg=%s p95=%s fps=%.1f", s.Frames, s.AvgFrame, s.P95Frame, s.FramesPerSec)
	for _, phase := range phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			fmt.Fprintf(&b, " %s=%.1f%%", phase, pct)
		}
	}
	return b.String()
}

// PerfStatsCSV is a flat row of PerfStats for CSV export.
type PerfStatsCSV struct {
	Session     string  `csv:"session"`
	Frame       uint64  `csv:"frame"`
	AvgFrameUS  int64   `csv:"avg_frame_us"`
	StdFrameUS  int64   `csv:"std_frame_us"`
	MinFrameUS  int64   `csv:"min_frame_us"`
	MaxFrameUS  int64   `csv:"max_frame_us"`
	P95FrameUS  int64   `csv:"p95_frame_us"`
	FPS         float64 `csv:"fps"`
	AtlasPct    float64 `csv:"atlas_pct"`
	SubmitPct   float64 `csv:"submit_pct"`
	WaitPct     float64 `csv:"wait_pct"`
	ReadbackPct float64 `csv:"readback_pct"`
	DerivePct   float64 `csv:"derive_pct"`
	RasterPct   float64 `csv:"raster_pct"`
}

func (s PerfStats) ToCSV(frame uint64) PerfStatsCSV {
	return PerfStatsCSV{
		Frame:       frame,
		AvgFrameUS:  s.AvgFrame.Microseconds(),
		StdFrameUS:  s.StdDevFrame.Microseconds(),
		MinFrameUS:  s.MinFrame.Microseconds(),
		MaxFrameUS:  s.MaxFrame.Microseconds(),
		P95FrameUS:  s.P95Frame.Microseconds(),
		FPS:         s.FramesPerSec,
		AtlasPct:    s.PhasePct[PhaseAtlas],
		SubmitPct:   s.PhasePct[PhaseSubmit],
		WaitPct:     s.PhasePct[PhaseWait],
		ReadbackPct: s.PhasePct[PhaseReadback],
		DerivePct:   s.PhasePct[PhaseDerive],
		RasterPct:   s.PhasePct[PhaseRaster],
	}
}
