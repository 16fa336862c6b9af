package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gekko3d/morphfield/config"
	"github.com/gekko3d/morphfield/morphrt/rt/atlas"
	"github.com/gekko3d/morphfield/morphrt/rt/core"
	"github.com/gekko3d/morphfield/morphrt/rt/shape"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrUnknownShape is returned when a shape request names a shape the sampler
// cannot produce. The current targets stay in place.
var ErrUnknownShape = errors.New("sim: unknown shape")

// Force is the strength and radius of a pointer mode.
type Force struct {
	Strength float32
	Radius   float32
}

// Options configures a Simulation. Zero fields fall back to defaults.
type Options struct {
	Params        Params
	Device        Device
	Sampler       *shape.Sampler
	Palette       Palette
	Camera        *core.CameraState
	Width, Height int
	AtlasSeed     uint64
	Mode          Mode
	Forces        map[Mode]Force
	InitialShapes []shape.ID
	Logger        core.Logger
}

// OptionsFromConfig builds Options for cfg. The device is left for the
// caller to choose.
func OptionsFromConfig(cfg *config.Config, logger core.Logger) Options {
	mode, err := ParseMode(cfg.Pointer.Mode)
	if err != nil {
		mode = Repel
	}
	forces := make(map[Mode]Force, len(Modes))
	for _, m := range Modes {
		f := cfg.Force(m.String())
		forces[m] = Force{Strength: float32(f.Strength), Radius: float32(f.Radius)}
	}
	return Options{
		Params:        ParamsFromConfig(cfg),
		Sampler:       shape.NewSampler(cfg.Tessellation()),
		Palette:       PaletteFromConfig(cfg),
		Camera:        cfg.CameraState(),
		Width:         cfg.Screen.Width,
		Height:        cfg.Screen.Height,
		AtlasSeed:     cfg.Shapes.AtlasSeed,
		Mode:          mode,
		Forces:        forces,
		InitialShapes: cfg.InitialShapes(),
		Logger:        logger,
	}
}

// Simulation ties the particle store, atlas, pointer field and color state
// to a Device. Step is meant to be called from one render goroutine; shape
// and mode changes may come from any goroutine.
type Simulation struct {
	params  Params
	device  Device
	sampler *shape.Sampler
	palette Palette
	atlas   *atlas.Atlas
	builder *atlas.Builder
	pointer *PointerField
	tracker *Tracker
	log     core.Logger

	ready  atomic.Bool
	closed atomic.Bool

	mu        sync.Mutex
	initOnce  sync.Once
	initErr   error
	colors    *ColorState
	shapes    []shape.ID
	weights   mgl32.Vec4
	force     Force
	forces    map[Mode]Force
	atlasSeed uint64
	frame     uint64
	last      Fence
	scratch   *Store
}

// New allocates device resources and builds the initial atlas. Allocation
// failures are returned and leave nothing running.
func New(opts Options) (*Simulation, error) {
	log := core.OrNop(opts.Logger)
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	if opts.Device == nil {
		opts.Device = NewCPUDevice(0, NewSimplexFBM(int64(opts.Params.Seed), opts.Params.Noise), log)
	}
	if opts.Sampler == nil {
		opts.Sampler = shape.NewSampler(shape.DefaultTessellation())
	}
	if opts.Palette == nil {
		opts.Palette = DefaultPalette()
	}
	if opts.Camera == nil {
		opts.Camera = core.NewCameraState()
	}
	if opts.Forces == nil {
		opts.Forces = make(map[Mode]Force, len(Modes))
	}
	for _, m := range Modes {
		if _, ok := opts.Forces[m]; !ok {
			opts.Forces[m] = Force{Strength: 5, Radius: 1.5}
		}
	}

	a := atlas.New(opts.Params.Count)
	if err := opts.Device.Allocate(opts.Params, a.Side()); err != nil {
		opts.Device.Release()
		return nil, fmt.Errorf("allocate %s device: %w", opts.Device.Name(), err)
	}

	s := &Simulation{
		params:    opts.Params,
		device:    opts.Device,
		sampler:   opts.Sampler,
		palette:   opts.Palette,
		atlas:     a,
		builder:   atlas.NewBuilder(log),
		pointer:   &PointerField{},
		log:       log,
		colors:    NewColorState(Colors{}),
		weights:   opts.Mode.Weights(),
		force:     opts.Forces[opts.Mode],
		forces:    opts.Forces,
		atlasSeed: opts.AtlasSeed,
	}
	s.tracker = NewTracker(s.pointer, opts.Camera, opts.Width, opts.Height)

	if len(opts.InitialShapes) > 0 {
		if err := s.SetShape(opts.InitialShapes...); err != nil {
			log.Warnf("sim: initial shapes %v: %v", opts.InitialShapes, err)
		}
	}
	// start at the target colors instead of easing in from black
	s.colors.Current = s.colors.Target

	log.Infof("sim: %d particles on %s device, atlas %dx%d", opts.Params.Count, opts.Device.Name(), a.Side(), a.Side())
	return s, nil
}

// Init runs the one-time initialization kernel and waits for it. Until it
// succeeds, Step returns ErrNotReady.
func (s *Simulation) Init(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.initOnce.Do(func() {
		s.atlas.TakeDirty()
		atlasFence := s.device.WriteAtlas(s.atlas)
		initFence := s.device.Init()
		if err := atlasFence.Wait(ctx); err != nil {
			s.initErr = fmt.Errorf("upload atlas: %w", err)
			return
		}
		if err := initFence.Wait(ctx); err != nil {
			s.initErr = fmt.Errorf("initialize particles: %w", err)
			return
		}
		s.ready.Store(true)
		s.log.Debugf("sim: particle store initialized")
	})
	return s.initErr
}

func (s *Simulation) Ready() bool { return s.ready.Load() && !s.closed.Load() }

// SetShape rebuilds the atlas from the given shapes and retargets the colors
// to the first shape's palette entry. If any shape is unknown nothing changes.
func (s *Simulation) SetShape(ids ...shape.ID) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: empty shape set", ErrUnknownShape)
	}
	for _, id := range ids {
		if !s.sampler.Known(id) {
			s.log.Warnf("sim: unknown shape %q, keeping current targets", id)
			return fmt.Errorf("%w: %q", ErrUnknownShape, id)
		}
	}
	clouds := s.sampler.SampleAll(ids...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rebuildLocked(clouds); err != nil {
		s.log.Warnf("sim: shapes %v produced no targets, keeping current targets", ids)
		return err
	}
	s.shapes = append(s.shapes[:0], ids...)
	if c, ok := s.palette.For(ids...); ok {
		s.colors.Target = c
	}
	return nil
}

// SetTargets rebuilds the atlas from explicit point clouds.
func (s *Simulation) SetTargets(clouds ...shape.PointCloud) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rebuildLocked(clouds); err != nil {
		return err
	}
	s.shapes = s.shapes[:0]
	return nil
}

func (s *Simulation) rebuildLocked(clouds []shape.PointCloud) error {
	seed := s.atlasSeed + s.atlas.Generation()
	return s.builder.Build(s.atlas, clouds, seed)
}

// Shapes returns the active shape set, empty after SetTargets.
func (s *Simulation) Shapes() []shape.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]shape.ID(nil), s.shapes...)
}

// SetMode selects a one-hot mode and its configured force.
func (s *Simulation) SetMode(m Mode) {
	s.mu.Lock()
	s.weights = m.Weights()
	s.force = s.forces[m]
	s.mu.Unlock()
}

// SetWeights sets an arbitrary blend; the force is left as is.
func (s *Simulation) SetWeights(w mgl32.Vec4) {
	s.mu.Lock()
	s.weights = w
	s.mu.Unlock()
}

func (s *Simulation) SetForce(f Force) {
	s.mu.Lock()
	s.force = f
	s.mu.Unlock()
}

func (s *Simulation) Weights() mgl32.Vec4 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.weights
}

// SetColorTarget overrides the palette target until the next shape change.
func (s *Simulation) SetColorTarget(c Colors) {
	s.mu.Lock()
	s.colors.Target = c
	s.mu.Unlock()
}

func (s *Simulation) Colors() Colors {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.colors.Current
}

// AttachPointer feeds pointer events from src into the pointer field.
func (s *Simulation) AttachPointer(src PointerSource) { s.tracker.Attach(src) }

func (s *Simulation) Tracker() *Tracker      { return s.tracker }
func (s *Simulation) Pointer() *PointerField { return s.pointer }
func (s *Simulation) Atlas() *atlas.Atlas    { return s.atlas }
func (s *Simulation) Params() Params         { return s.params }
func (s *Simulation) Device() Device         { return s.device }

func (s *Simulation) Frame() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Step eases the colors, uploads a rebuilt atlas if there is one, and submits
// one update kernel. It does not wait for the kernel.
func (s *Simulation) Step(dt float32) (Fence, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if !s.ready.Load() {
		return nil, ErrNotReady
	}
	dt = max(dt, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.atlas.TakeDirty() {
		s.device.WriteAtlas(s.atlas)
	}
	u := Uniforms{
		Dt:       dt,
		Pointer:  s.pointer.Load(),
		Weights:  s.weights,
		Strength: s.force.Strength,
		Radius:   s.force.Radius,
		Colors:   s.colors.Ease(dt),
	}
	f := s.device.Update(u)
	s.last = f
	s.frame++
	return f, nil
}

// Sync waits for the last submitted frame.
func (s *Simulation) Sync(ctx context.Context) error {
	s.mu.Lock()
	f := s.last
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Wait(ctx)
}

// Snapshot reads the particle state back into dst after all submitted work.
func (s *Simulation) Snapshot(ctx context.Context, dst *Store) error {
	if !s.Ready() {
		return ErrNotReady
	}
	return s.device.ReadState(ctx, dst)
}

// Instances reads back the state and derives per-particle render attributes
// with the current colors.
func (s *Simulation) Instances(ctx context.Context, dst []core.ParticleInstance) ([]core.ParticleInstance, error) {
	s.mu.Lock()
	if s.scratch == nil {
		s.scratch = NewStore(s.params.Count)
	}
	scratch := s.scratch
	s.mu.Unlock()

	if err := s.Snapshot(ctx, scratch); err != nil {
		return dst, err
	}
	return DeriveInstances(dst, &s.params, scratch, s.Colors()), nil
}

// Close detaches the pointer listener and releases the device. Safe to call
// more than once.
func (s *Simulation) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.tracker.Close()
	s.device.Release()
	s.log.Debugf("sim: closed after %d frames", s.Frame())
}
