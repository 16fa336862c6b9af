// morphbench runs the particle simulation without a window at a fixed time
// step, writing frames.csv, perf.csv and optional PNG snapshots.
//
// Usage: go run ./cmd/morphbench -frames 600 -output-dir out
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gekko3d/morphfield"
	"github.com/gekko3d/morphfield/config"
	"github.com/gekko3d/morphfield/morphrt/rt/gpu"
	"github.com/gekko3d/morphfield/morphrt/rt/sim"
	"github.com/gekko3d/morphfield/telemetry"
)

type options struct {
	configPath    string
	backend       string
	frames        uint64
	fps           int
	cycle         uint64
	outputDir     string
	snapshotEvery uint64
	snapshotSize  string
	supersample   int
	pointer       bool
	debug         bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "Path to config.yaml (empty = use defaults)")
	flag.StringVar(&o.backend, "backend", "", "Simulation backend: cpu or webgpu (empty = use config)")
	flag.Uint64Var(&o.frames, "frames", 600, "Frames to simulate")
	flag.IntVar(&o.fps, "fps", 60, "Fixed step rate")
	flag.Uint64Var(&o.cycle, "cycle", 120, "Advance the shape every N frames (0 = never)")
	flag.StringVar(&o.outputDir, "output-dir", "", "Directory for CSV logs and snapshots (overrides telemetry.dir)")
	flag.Uint64Var(&o.snapshotEvery, "snapshot-every", 0, "Save a PNG every N frames (0 = final frame only)")
	flag.StringVar(&o.snapshotSize, "snapshot-size", "640x360", "Snapshot size WxH")
	flag.IntVar(&o.supersample, "supersample", 2, "Snapshot supersampling factor")
	flag.BoolVar(&o.pointer, "pointer", true, "Sweep a synthetic pointer through the field")
	flag.BoolVar(&o.debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if err := run(o); err != nil {
		fmt.Fprintln(os.Stderr, "morphbench:", err)
		os.Exit(1)
	}
}

func run(o options) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.backend != "" {
		cfg.Device.Backend = strings.ToLower(o.backend)
	}
	if o.outputDir != "" {
		cfg.Telemetry.Dir = o.outputDir
	}
	if o.fps <= 0 {
		return fmt.Errorf("fps must be positive, got %d", o.fps)
	}
	var sw, sh int
	if _, err := fmt.Sscanf(o.snapshotSize, "%dx%d", &sw, &sh); err != nil || sw <= 0 || sh <= 0 {
		return fmt.Errorf("bad snapshot size %q", o.snapshotSize)
	}

	logger := morphfield.NewDefaultLogger("morphbench", o.debug)

	var device sim.Device
	switch strings.ToLower(cfg.Device.Backend) {
	case "webgpu":
		d, err := gpu.NewHeadless(logger)
		if err != nil {
			return err
		}
		device = d
	case "cpu":
	default:
		return fmt.Errorf("unknown backend %q", cfg.Device.Backend)
	}

	modules := []morphfield.Module{
		morphfield.LoggingModule{Logger: logger},
		morphfield.TimeModule{FixedDt: time.Second / time.Duration(o.fps)},
		morphfield.InputModule{},
		morphfield.ParticlesModule{Config: cfg, Device: device},
		morphfield.ShapeCycleModule{EveryFrames: o.cycle},
		morphfield.TelemetryModule{Config: cfg},
		morphfield.RunLimitModule{Frames: o.frames},
	}
	if o.pointer {
		modules = append(modules, morphfield.PointerPathModule{})
	}
	if cfg.Telemetry.Dir != "" {
		modules = append(modules, morphfield.SnapshotModule{
			Dir:         cfg.Telemetry.Dir,
			Every:       o.snapshotEvery,
			Width:       sw,
			Height:      sh,
			Supersample: o.supersample,
		})
	}

	application := morphfield.NewAppBuilder().
		UseStates(morphfield.StateLoading, morphfield.StateDone).
		UseModule(modules...).
		Build()

	logger.Infof("simulating %d particles for %d frames on %s", cfg.Particles.Count, o.frames, cfg.Device.Backend)
	start := time.Now()
	application.Run()
	wall := time.Since(start)

	morph, _ := morphfield.Resource[*morphfield.Morph](application)
	if morph.Err != nil {
		return morph.Err
	}
	frames := morph.Sim.Frame()
	logger.Infof("%d frames in %v (%.1f frames/s), %d skipped", frames, wall.Round(time.Millisecond),
		float64(frames)/wall.Seconds(), morph.Skipped)

	if tel, ok := morphfield.Resource[*morphfield.Telemetry](application); ok && tel.Rows() > 0 {
		last := tel.Last
		logger.Infof("frame %d: %s, target dist mean %.3f p90 %.3f, arrived %.1f%%",
			last.Frame, last.Shape, last.TargetDistMean, last.TargetDistP90, last.Arrived*100)
	}
	if perf, ok := morphfield.Resource[*telemetry.PerfCollector](application); ok && perf.Len() > 0 {
		ps := perf.Stats()
		logger.Infof("p95 frame %s, stddev %s", ps.P95Frame, ps.StdDevFrame)
	}
	return nil
}
