package morphfield

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gekko3d/morphfield/config"
	"github.com/gekko3d/morphfield/morphrt/rt/core"
	"github.com/gekko3d/morphfield/morphrt/rt/shape"
	"github.com/gekko3d/morphfield/morphrt/rt/sim"
	"github.com/gekko3d/morphfield/telemetry"
)

// App states of a particle host. Nothing is simulated until the device has
// run its init kernel.
const (
	StateLoading State = iota
	StateRunning
	StateDone
)

// Morph is the particle simulation resource shared by the systems.
type Morph struct {
	Sim    *sim.Simulation
	Bus    *sim.PointerBus
	Camera *core.CameraState
	Width  int
	Height int

	Cycle []shape.ID
	Mode  sim.Mode

	// Err is the fatal allocation or init error, if any. Hosts exit non-zero on it.
	Err error
	// Skipped counts frames whose submission failed.
	Skipped int
	// Timeout bounds every blocking device wait.
	Timeout time.Duration

	cycleIdx int
}

func (m *Morph) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.Timeout)
}

// Current is the active entry of the shape cycle.
func (m *Morph) Current() shape.ID {
	if len(m.Cycle) == 0 {
		return ""
	}
	return m.Cycle[m.cycleIdx]
}

// SelectShape morphs toward Cycle[i], wrapping around in both directions.
func (m *Morph) SelectShape(i int) error {
	if len(m.Cycle) == 0 {
		return sim.ErrUnknownShape
	}
	n := len(m.Cycle)
	i = ((i % n) + n) % n
	if err := m.Sim.SetShape(m.Cycle[i]); err != nil {
		return err
	}
	m.cycleIdx = i
	return nil
}

func (m *Morph) NextShape() error { return m.SelectShape(m.cycleIdx + 1) }

func (m *Morph) PrevShape() error { return m.SelectShape(m.cycleIdx - 1) }

func (m *Morph) SetMode(mode sim.Mode) {
	m.Mode = mode
	m.Sim.SetMode(mode)
}

// Wait blocks until every submitted frame has run.
func (m *Morph) Wait() error {
	if m.Sim == nil {
		return nil
	}
	ctx, cancel := m.context()
	defer cancel()
	return m.Sim.Sync(ctx)
}

// ParticlesModule creates the simulation from Config and drives it: init
// while loading, one kernel per frame while running, release when done.
// The app must use StateLoading..StateDone.
type ParticlesModule struct {
	Config *config.Config
	// Device runs the kernels. Nil selects the CPU device.
	Device sim.Device
	// Sampler overrides the shape tessellation from Config.
	Sampler *shape.Sampler
}

func (mod ParticlesModule) Install(app *App, cmd *Commands) {
	cfg := mod.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := app.Logger()

	opts := sim.OptionsFromConfig(cfg, log)
	if mod.Sampler != nil {
		opts.Sampler = mod.Sampler
	}
	opts.Device = mod.Device
	if opts.Device == nil {
		noise := sim.NewSimplexFBM(int64(opts.Params.Seed), opts.Params.Noise)
		opts.Device = sim.NewCPUDevice(cfg.Device.Workers, noise, log)
	}

	morph := &Morph{
		Bus:     sim.NewPointerBus(),
		Camera:  opts.Camera,
		Width:   opts.Width,
		Height:  opts.Height,
		Cycle:   cfg.CycleShapes(),
		Mode:    opts.Mode,
		Timeout: 10 * time.Second,
	}
	s, err := sim.New(opts)
	if err != nil {
		morph.Err = err
	} else {
		morph.Sim = s
		s.AttachPointer(morph.Bus)
		for i, id := range morph.Cycle {
			if len(opts.InitialShapes) > 0 && id == opts.InitialShapes[0] {
				morph.cycleIdx = i
			}
		}
	}

	cmd.AddResources(morph, telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow))

	cmd.UseSystem(System(particlesInitSystem).InStage(Prelude).InState(OnExecute(StateLoading)))
	cmd.UseSystem(System(perfStartSystem).InStage(Prelude).InState(OnExecute(StateRunning)))
	cmd.UseSystem(System(particlesInputSystem).InStage(PreUpdate).InState(OnExecute(StateRunning)))
	cmd.UseSystem(System(particlesStepSystem).InStage(Update).InState(OnExecute(StateRunning)))
	cmd.UseSystem(System(perfEndSystem).InStage(Finale).InState(OnExecute(StateRunning)))
	cmd.UseSystem(System(particlesCloseSystem).InStage(Finale).InState(OnEnter(StateDone)))
}

func particlesInitSystem(cmd *Commands, morph *Morph) {
	log := cmd.Logger()
	if morph.Err == nil {
		ctx, cancel := morph.context()
		err := morph.Sim.Init(ctx)
		cancel()
		if err != nil {
			morph.Err = fmt.Errorf("init particles: %w", err)
		}
	}
	if morph.Err != nil {
		log.Errorf("%v", morph.Err)
		cmd.Exit()
		return
	}
	log.Infof("particles ready, shape %s, mode %s", morph.Current(), morph.Mode)
	cmd.ChangeState(StateRunning)
}

var modeKeys = [...]int{Key1, Key2, Key3, Key4}

func particlesInputSystem(cmd *Commands, input *Input, morph *Morph, perf *telemetry.PerfCollector) {
	if input.CloseRequested || input.JustPressed[KeyEscape] {
		cmd.ChangeState(StateDone)
		return
	}

	var err error
	switch {
	case input.JustPressed[KeyRight]:
		perf.StartPhase(telemetry.PhaseAtlas)
		err = morph.NextShape()
	case input.JustPressed[KeyLeft]:
		perf.StartPhase(telemetry.PhaseAtlas)
		err = morph.PrevShape()
	}
	if err != nil {
		cmd.Logger().Warnf("shape change: %v", err)
	}
	for i, key := range modeKeys {
		if input.JustPressed[key] {
			morph.SetMode(sim.Modes[i])
			cmd.Logger().Infof("pointer mode %s", morph.Mode)
		}
	}

	if w, h := input.WindowWidth, input.WindowHeight; w > 0 && h > 0 && (w != morph.Width || h != morph.Height) {
		morph.Width, morph.Height = w, h
		morph.Camera.Aspect = float32(w) / float32(h)
		morph.Sim.Tracker().SetCamera(morph.Camera)
		morph.Sim.Tracker().SetViewport(w, h)
	}
	if input.MouseMoved {
		morph.Bus.Emit(input.MouseX, input.MouseY)
	}
}

// particlesStepSystem submits one frame and moves on; completion is only
// awaited by readbacks and on close.
func particlesStepSystem(cmd *Commands, t *Time, morph *Morph, perf *telemetry.PerfCollector) {
	perf.StartPhase(telemetry.PhaseSubmit)
	if _, err := morph.Sim.Step(t.DtSeconds()); err != nil {
		morph.Skipped++
		if errors.Is(err, sim.ErrClosed) {
			cmd.ChangeState(StateDone)
		}
		cmd.Logger().Warnf("frame skipped: %v", err)
	}
}

func perfStartSystem(perf *telemetry.PerfCollector) {
	perf.StartFrame()
}

func perfEndSystem(perf *telemetry.PerfCollector) {
	perf.EndFrame()
}

func particlesCloseSystem(cmd *Commands, morph *Morph) {
	if morph.Sim == nil {
		return
	}
	if err := morph.Wait(); err != nil {
		cmd.Logger().Warnf("drain: %v", err)
	}
	morph.Sim.Close()
	cmd.Logger().Infof("particles closed after %d frames, %d skipped", morph.Sim.Frame(), morph.Skipped)
}
