package morphfield

import (
	"fmt"
	"path/filepath"

	"github.com/gekko3d/morphfield/morphrt/rt/core"
	"github.com/gekko3d/morphfield/morphrt/rt/raster"
	"github.com/gekko3d/morphfield/telemetry"
)

// Snapshots rasterizes the particles on the CPU and saves PNG frames.
type Snapshots struct {
	Raster *raster.Raster
	Dir    string
	Every  uint64
	// Written lists the saved files in order.
	Written []string
	Last    raster.Stats

	inst []core.ParticleInstance
}

// SnapshotModule needs ParticlesModule. Every zero saves only the final frame.
type SnapshotModule struct {
	Dir           string
	Every         uint64
	Width, Height int
	Supersample   int
}

func (mod SnapshotModule) Install(app *App, cmd *Commands) {
	w, h := mod.Width, mod.Height
	if w <= 0 || h <= 0 {
		w, h = 640, 360
	}
	cmd.AddResources(&Snapshots{
		Raster: raster.New(w, h, max(mod.Supersample, 1)),
		Dir:    mod.Dir,
		Every:  mod.Every,
	})
	cmd.UseSystem(System(snapshotSystem).InStage(Render).InState(OnExecute(StateRunning)))
	cmd.UseSystem(System(snapshotFinalSystem).InStage(PreRender).InState(OnExit(StateRunning)))
}

func snapshotSystem(cmd *Commands, morph *Morph, perf *telemetry.PerfCollector, snap *Snapshots) {
	frame := morph.Sim.Frame()
	if snap.Every == 0 || frame == 0 || frame%snap.Every != 0 {
		return
	}
	if err := snap.save(morph, perf, frame); err != nil {
		cmd.Logger().Warnf("snapshot: %v", err)
	}
}

func snapshotFinalSystem(cmd *Commands, morph *Morph, perf *telemetry.PerfCollector, snap *Snapshots) {
	if morph.Sim == nil || !morph.Sim.Ready() {
		return
	}
	frame := morph.Sim.Frame()
	if n := len(snap.Written); n > 0 && snap.Written[n-1] == snap.path(frame) {
		return
	}
	if err := snap.save(morph, perf, frame); err != nil {
		cmd.Logger().Warnf("final snapshot: %v", err)
		return
	}
	cmd.Logger().Infof("saved %s", snap.Written[len(snap.Written)-1])
}

func (snap *Snapshots) path(frame uint64) string {
	return filepath.Join(snap.Dir, fmt.Sprintf("frame_%06d.png", frame))
}

func (snap *Snapshots) save(morph *Morph, perf *telemetry.PerfCollector, frame uint64) error {
	perf.StartPhase(telemetry.PhaseReadback)
	ctx, cancel := morph.context()
	inst, err := morph.Sim.Instances(ctx, snap.inst)
	cancel()
	if err != nil {
		return err
	}
	snap.inst = inst

	perf.StartPhase(telemetry.PhaseRaster)
	img, stats := snap.Raster.Render(morph.Camera, inst)
	snap.Last = stats
	path := snap.path(frame)
	if err := raster.WritePNG(path, img); err != nil {
		return err
	}
	snap.Written = append(snap.Written, path)
	return nil
}
