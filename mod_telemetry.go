package morphfield

import (
	"strings"

	"github.com/gekko3d/morphfield/config"
	"github.com/gekko3d/morphfield/morphrt/rt/sim"
	"github.com/gekko3d/morphfield/telemetry"
)

// Telemetry samples the particle state every few frames and writes
// frames.csv and perf.csv through its OutputManager.
type Telemetry struct {
	Output *telemetry.OutputManager
	Stats  *telemetry.StatsCollector
	Last   telemetry.FrameStats
	Every  int

	cfg   *config.Config
	store *sim.Store
	rows  int
}

// Rows counts the frame rows collected so far, written or not.
func (t *Telemetry) Rows() int { return t.rows }

// TelemetryModule needs ParticlesModule. An empty Config.Telemetry.Dir keeps
// the sampling and perf summaries but writes no files.
type TelemetryModule struct {
	Config *config.Config
	// Output overrides the manager built from Config.Telemetry.Dir.
	Output *telemetry.OutputManager
}

func (mod TelemetryModule) Install(app *App, cmd *Commands) {
	cfg := mod.Config
	if cfg == nil {
		cfg = config.Default()
	}
	out := mod.Output
	if out == nil {
		var err error
		out, err = telemetry.NewOutputManager(cfg.Telemetry.Dir)
		if err != nil {
			app.Logger().Errorf("telemetry disabled: %v", err)
		}
	}
	every := cfg.Telemetry.StatsEvery
	if every <= 0 {
		every = 30
	}

	cmd.AddResources(&Telemetry{
		Output: out,
		Stats:  telemetry.NewStatsCollector(),
		Every:  every,
		cfg:    cfg,
	})
	cmd.UseSystem(System(telemetryStartSystem).InStage(Prelude).InState(OnEnter(StateRunning)))
	cmd.UseSystem(System(telemetrySampleSystem).InStage(PostRender).InState(OnExecute(StateRunning)))
	cmd.UseSystem(System(telemetryCloseSystem).InStage(Finale).InState(OnEnter(StateDone)))
}

func telemetryStartSystem(cmd *Commands, tel *Telemetry) {
	if err := tel.Output.WriteConfig(tel.cfg); err != nil {
		cmd.Logger().Warnf("write config: %v", err)
	}
	if dir := tel.Output.Dir(); dir != "" {
		cmd.Logger().Infof("telemetry session %s in %s", tel.Output.Session(), dir)
	}
}

func telemetrySampleSystem(cmd *Commands, t *Time, morph *Morph, perf *telemetry.PerfCollector, tel *Telemetry) {
	frame := morph.Sim.Frame()
	if frame == 0 || frame%uint64(tel.Every) != 0 {
		return
	}
	log := cmd.Logger()

	perf.StartPhase(telemetry.PhaseWait)
	if err := morph.Wait(); err != nil {
		log.Warnf("telemetry wait: %v", err)
		return
	}

	perf.StartPhase(telemetry.PhaseReadback)
	p := morph.Sim.Params()
	if tel.store == nil {
		tel.store = sim.NewStore(p.Count)
	}
	ctx, cancel := morph.context()
	err := morph.Sim.Snapshot(ctx, tel.store)
	cancel()
	if err != nil {
		log.Warnf("telemetry snapshot: %v", err)
		return
	}

	perf.StartPhase(telemetry.PhaseDerive)
	targets := tel.Stats.Targets(p.Count)
	morph.Sim.Atlas().CopyTargets(targets, 0)
	fs := tel.Stats.Collect(&p, tel.store, targets)
	fs.Frame = frame
	fs.Shape = joinShapes(morph.Sim)
	fs.Mode = morph.Mode.String()
	fs.SimTime = t.Elapsed.Seconds()
	ptr := morph.Sim.Pointer().Load()
	fs.PointerX, fs.PointerY = float64(ptr.X()), float64(ptr.Y())
	tel.Last = fs
	tel.rows++

	if err := tel.Output.WriteFrame(fs); err != nil {
		log.Warnf("%v", err)
	}
	ps := perf.Stats()
	if err := tel.Output.WritePerf(ps, frame); err != nil {
		log.Warnf("%v", err)
	}
	log.Debugf("frame %d: %s, arrived %.1f%%", frame, ps.Summary(), fs.Arrived*100)
}

func telemetryCloseSystem(cmd *Commands, perf *telemetry.PerfCollector, tel *Telemetry) {
	if perf.Len() > 0 {
		cmd.Logger().Infof("perf: %s", perf.Stats().Summary())
	}
	if err := tel.Output.Close(); err != nil {
		cmd.Logger().Warnf("close telemetry: %v", err)
	}
}

func joinShapes(s *sim.Simulation) string {
	ids := s.Shapes()
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	return strings.Join(names, "+")
}
