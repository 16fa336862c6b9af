package morphfield

import (
	"math"

	"github.com/gekko3d/morphfield/telemetry"
	"github.com/go-gl/mathgl/mgl32"
)

// ShapeCycleModule advances the shape cycle every EveryFrames frames.
type ShapeCycleModule struct {
	EveryFrames uint64
}

type shapeCycle struct {
	every uint64
}

func (mod ShapeCycleModule) Install(app *App, cmd *Commands) {
	if mod.EveryFrames == 0 {
		return
	}
	cmd.AddResources(&shapeCycle{every: mod.EveryFrames})
	cmd.UseSystem(System(shapeCycleSystem).InStage(PostUpdate).InState(OnExecute(StateRunning)))
}

func shapeCycleSystem(cmd *Commands, morph *Morph, perf *telemetry.PerfCollector, sc *shapeCycle) {
	frame := morph.Sim.Frame()
	if frame == 0 || frame%sc.every != 0 {
		return
	}
	perf.StartPhase(telemetry.PhaseAtlas)
	if err := morph.NextShape(); err != nil {
		cmd.Logger().Warnf("shape cycle: %v", err)
		return
	}
	cmd.Logger().Debugf("frame %d: morphing to %s", frame, morph.Current())
}

// PointerPathModule moves a synthetic cursor along a Lissajous curve in the
// z=0 plane and feeds it through the pointer bus, the same path a real
// cursor takes. Headless runs use it to exercise the pointer force.
type PointerPathModule struct {
	Radius float32
	// Period is the seconds per revolution.
	Period float64
}

type pointerPath struct {
	radius float32
	period float64
}

func (mod PointerPathModule) Install(app *App, cmd *Commands) {
	p := &pointerPath{radius: mod.Radius, period: mod.Period}
	if p.radius <= 0 {
		p.radius = 1.5
	}
	if p.period <= 0 {
		p.period = 4
	}
	cmd.AddResources(p)
	cmd.UseSystem(System(pointerPathSystem).InStage(PreUpdate).InState(OnExecute(StateRunning)))
}

// At is the path point after elapsed seconds.
func (p *pointerPath) At(elapsed float64) mgl32.Vec3 {
	a := 2 * math.Pi * elapsed / p.period
	return mgl32.Vec3{
		p.radius * float32(math.Cos(a)),
		p.radius * 0.6 * float32(math.Sin(2*a)),
		0,
	}
}

func pointerPathSystem(t *Time, morph *Morph, p *pointerPath) {
	x, y, ok := morph.Camera.Project(p.At(t.Elapsed.Seconds()), morph.Width, morph.Height)
	if !ok {
		return
	}
	morph.Bus.Emit(float64(x), float64(y))
}

// RunLimitModule ends the run after Frames simulated frames.
type RunLimitModule struct {
	Frames uint64
}

type runLimit struct {
	frames uint64
}

func (mod RunLimitModule) Install(app *App, cmd *Commands) {
	if mod.Frames == 0 {
		return
	}
	cmd.AddResources(&runLimit{frames: mod.Frames})
	cmd.UseSystem(System(runLimitSystem).InStage(Finale).InState(OnExecute(StateRunning)))
}

func runLimitSystem(cmd *Commands, morph *Morph, rl *runLimit) {
	if morph.Sim.Frame() >= rl.frames {
		cmd.ChangeState(StateDone)
	}
}
