// Package config provides configuration loading and access for the morph simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/gekko3d/morphfield/morphrt/rt/core"
	"github.com/gekko3d/morphfield/morphrt/rt/shape"
	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config holds all simulation configuration parameters.
type Config struct {
	Screen    ScreenConfig             `yaml:"screen"`
	Camera    CameraConfig             `yaml:"camera"`
	Particles ParticlesConfig          `yaml:"particles"`
	Noise     NoiseConfig              `yaml:"noise"`
	Pointer   PointerConfig            `yaml:"pointer"`
	Shapes    ShapesConfig             `yaml:"shapes"`
	Palette   map[string]PaletteConfig `yaml:"palette"`
	Device    DeviceConfig             `yaml:"device"`
	Telemetry TelemetryConfig          `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ScreenConfig holds display settings.
type ScreenConfig struct {
	Width     int `yaml:"width"`
	Height    int `yaml:"height"`
	TargetFPS int `yaml:"target_fps"`
}

type CameraConfig struct {
	Position [3]float64 `yaml:"position"`
	Target   [3]float64 `yaml:"target"`
	Fov      float64    `yaml:"fov"` // vertical, degrees
	Near     float64    `yaml:"near"`
	Far      float64    `yaml:"far"`
}

// Range is a closed [min, max] interval for per-particle hashed constants.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// ParticlesConfig holds the store size and per-particle constant ranges.
type ParticlesConfig struct {
	Count          int     `yaml:"count"`
	Seed           uint32  `yaml:"seed"`
	SpawnExtent    float64 `yaml:"spawn_extent"`
	ArriveEpsilon  float64 `yaml:"arrive_epsilon"`
	Lifetime       Range   `yaml:"lifetime"`
	MorphSpeed     Range   `yaml:"morph_speed"` // per frame, not dt-scaled
	JitterSpeed    Range   `yaml:"jitter_speed"`
	Scale          Range   `yaml:"scale"`
	PositionJitter float64 `yaml:"position_jitter"`
	Opacity        float64 `yaml:"opacity"`
}

// NoiseConfig shapes the fractal noise used for ambient jitter.
type NoiseConfig struct {
	Octaves    int     `yaml:"octaves"`
	Lacunarity float64 `yaml:"lacunarity"`
	Gain       float64 `yaml:"gain"`
	Frequency  float64 `yaml:"frequency"`
}

type ForceConfig struct {
	Strength float64 `yaml:"strength"`
	Radius   float64 `yaml:"radius"`
}

// PointerConfig holds the default displacement mode and per-mode force settings.
type PointerConfig struct {
	Mode  string                 `yaml:"mode"`
	Modes map[string]ForceConfig `yaml:"modes"`
}

// ShapesConfig selects the initial target set, the cycling order and tessellation.
type ShapesConfig struct {
	Initial      []string           `yaml:"initial"`
	Cycle        []string           `yaml:"cycle"`
	AtlasSeed    uint64             `yaml:"atlas_seed"`
	Tessellation TessellationConfig `yaml:"tessellation"`
}

type TessellationConfig struct {
	Box struct {
		Width          float64 `yaml:"width"`
		Height         float64 `yaml:"height"`
		Depth          float64 `yaml:"depth"`
		WidthSegments  int     `yaml:"width_segments"`
		HeightSegments int     `yaml:"height_segments"`
		DepthSegments  int     `yaml:"depth_segments"`
	} `yaml:"box"`
	Sphere struct {
		Radius         float64 `yaml:"radius"`
		WidthSegments  int     `yaml:"width_segments"`
		HeightSegments int     `yaml:"height_segments"`
	} `yaml:"sphere"`
	Torus struct {
		Radius          float64 `yaml:"radius"`
		Tube            float64 `yaml:"tube"`
		RadialSegments  int     `yaml:"radial_segments"`
		TubularSegments int     `yaml:"tubular_segments"`
	} `yaml:"torus"`
	Cone struct {
		Radius         float64 `yaml:"radius"`
		Height         float64 `yaml:"height"`
		RadialSegments int     `yaml:"radial_segments"`
		HeightSegments int     `yaml:"height_segments"`
	} `yaml:"cone"`
}

// PaletteConfig is the color target of one shape. Colors are "#rrggbb".
type PaletteConfig struct {
	Start    string  `yaml:"start"`
	End      string  `yaml:"end"`
	Emissive float64 `yaml:"emissive"`
}

// DeviceConfig selects the simulation backend.
type DeviceConfig struct {
	Backend string `yaml:"backend"` // cpu | webgpu
	Workers int    `yaml:"workers"` // 0 = GOMAXPROCS
}

// TelemetryConfig controls perf sampling and CSV output.
type TelemetryConfig struct {
	Dir        string `yaml:"dir"` // empty disables file output
	PerfWindow int    `yaml:"perf_window"`
	StatsEvery int    `yaml:"stats_every"` // frames between state snapshots
}

// PaletteColor is a parsed palette entry.
type PaletteColor struct {
	Start, End mgl32.Vec3
	Emissive   float32
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	AtlasSide int                     // ceil(sqrt(Particles.Count))
	Aspect    float32                 // Screen.Width / Screen.Height
	Palette   map[string]PaletteColor // shape name -> parsed colors
}

var validModes = []string{"repel", "attract", "swirl", "tornado"}

var validBackends = []string{"cpu", "webgpu"}

// Default returns the embedded defaults. It panics if they do not parse,
// which would be a build defect.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := Overlay(cfg, data); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()
	return cfg, nil
}

// Overlay unmarshals data on top of cfg; only keys present in data change.
// Map-valued sections merge per key.
func Overlay(cfg *Config, data []byte) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Screen.Width <= 0 || c.Screen.Height <= 0 {
		bad("screen size must be positive, got %dx%d", c.Screen.Width, c.Screen.Height)
	}
	if c.Camera.Fov <= 0 || c.Camera.Fov >= 180 {
		bad("camera.fov must be in (0, 180), got %g", c.Camera.Fov)
	}
	if c.Camera.Near <= 0 || c.Camera.Far <= c.Camera.Near {
		bad("camera near/far must satisfy 0 < near < far, got %g/%g", c.Camera.Near, c.Camera.Far)
	}

	p := &c.Particles
	if p.Count <= 0 {
		bad("particles.count must be positive, got %d", p.Count)
	}
	if p.SpawnExtent <= 0 {
		bad("particles.spawn_extent must be positive, got %g", p.SpawnExtent)
	}
	if p.ArriveEpsilon < 0 {
		bad("particles.arrive_epsilon must not be negative, got %g", p.ArriveEpsilon)
	}
	for name, r := range map[string]Range{
		"lifetime": p.Lifetime, "morph_speed": p.MorphSpeed, "jitter_speed": p.JitterSpeed, "scale": p.Scale,
	} {
		if r.Min > r.Max {
			bad("particles.%s min %g exceeds max %g", name, r.Min, r.Max)
		}
		if r.Min < 0 {
			bad("particles.%s must not be negative, got %g", name, r.Min)
		}
	}
	if p.Lifetime.Min <= 0 {
		bad("particles.lifetime.min must be positive, got %g", p.Lifetime.Min)
	}
	if p.Opacity < 0 || p.Opacity > 1 {
		bad("particles.opacity must be in [0, 1], got %g", p.Opacity)
	}

	if c.Noise.Octaves < 1 || c.Noise.Octaves > 8 {
		bad("noise.octaves must be in [1, 8], got %d", c.Noise.Octaves)
	}

	if !slices.Contains(validModes, strings.ToLower(c.Pointer.Mode)) {
		bad("pointer.mode %q is not one of %v", c.Pointer.Mode, validModes)
	}
	for name, f := range c.Pointer.Modes {
		if !slices.Contains(validModes, strings.ToLower(name)) {
			bad("pointer.modes has unknown mode %q", name)
		}
		if f.Strength < 0 || f.Radius <= 0 {
			bad("pointer.modes.%s needs strength >= 0 and radius > 0, got %g/%g", name, f.Strength, f.Radius)
		}
	}

	if len(c.Shapes.Initial) == 0 {
		bad("shapes.initial must name at least one shape")
	}
	for _, s := range append(append([]string{}, c.Shapes.Initial...), c.Shapes.Cycle...) {
		if strings.TrimSpace(s) == "" {
			bad("shapes contain an empty name")
		}
	}

	for name, pc := range c.Palette {
		if _, err := ParseHexColor(pc.Start); err != nil {
			bad("palette.%s.start: %v", name, err)
		}
		if _, err := ParseHexColor(pc.End); err != nil {
			bad("palette.%s.end: %v", name, err)
		}
		if pc.Emissive < 0 {
			bad("palette.%s.emissive must not be negative, got %g", name, pc.Emissive)
		}
	}

	if !slices.Contains(validBackends, strings.ToLower(c.Device.Backend)) {
		bad("device.backend %q is not one of %v", c.Device.Backend, validBackends)
	}
	if c.Device.Workers < 0 {
		bad("device.workers must not be negative, got %d", c.Device.Workers)
	}
	if c.Telemetry.PerfWindow < 0 || c.Telemetry.StatsEvery < 0 {
		bad("telemetry windows must not be negative")
	}

	return errors.Join(errs...)
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.AtlasSide = core.CeilSqrt(c.Particles.Count)
	c.Derived.Aspect = float32(c.Screen.Width) / float32(c.Screen.Height)
	c.Derived.Palette = make(map[string]PaletteColor, len(c.Palette))
	for name, pc := range c.Palette {
		start, _ := ParseHexColor(pc.Start)
		end, _ := ParseHexColor(pc.End)
		c.Derived.Palette[string(shape.ParseID(name))] = PaletteColor{Start: start, End: end, Emissive: float32(pc.Emissive)}
	}
}

// Force returns the strength and radius for a mode, falling back to repel.
func (c *Config) Force(mode string) ForceConfig {
	for name, f := range c.Pointer.Modes {
		if strings.EqualFold(name, mode) {
			return f
		}
	}
	if f, ok := c.Pointer.Modes["repel"]; ok {
		return f
	}
	return ForceConfig{Strength: 5, Radius: 1.5}
}

// Tessellation converts the tessellation section for the shape sampler.
func (c *Config) Tessellation() shape.Tessellation {
	t := &c.Shapes.Tessellation
	return shape.Tessellation{
		Box: shape.BoxParams{
			Width: float32(t.Box.Width), Height: float32(t.Box.Height), Depth: float32(t.Box.Depth),
			WidthSegs: t.Box.WidthSegments, HeightSegs: t.Box.HeightSegments, DepthSegs: t.Box.DepthSegments,
		},
		Sphere: shape.SphereParams{
			Radius:        float32(t.Sphere.Radius),
			WidthSegments: t.Sphere.WidthSegments, HeightSegments: t.Sphere.HeightSegments,
		},
		Torus: shape.TorusParams{
			Radius: float32(t.Torus.Radius), Tube: float32(t.Torus.Tube),
			RadialSegments: t.Torus.RadialSegments, TubularSegments: t.Torus.TubularSegments,
		},
		Cone: shape.ConeParams{
			Radius: float32(t.Cone.Radius), Height: float32(t.Cone.Height),
			RadialSegments: t.Cone.RadialSegments, HeightSegments: t.Cone.HeightSegments,
		},
	}
}

// InitialShapes returns the configured initial shape set.
func (c *Config) InitialShapes() []shape.ID { return parseIDs(c.Shapes.Initial) }

// CycleShapes returns the cycling order, defaulting to the built-in shapes.
func (c *Config) CycleShapes() []shape.ID {
	if len(c.Shapes.Cycle) == 0 {
		return append([]shape.ID(nil), shape.Builtin...)
	}
	return parseIDs(c.Shapes.Cycle)
}

// CameraState builds the render camera from the camera section.
func (c *Config) CameraState() *core.CameraState {
	cam := core.NewCameraState()
	cam.Position = vec3(c.Camera.Position)
	cam.Target = vec3(c.Camera.Target)
	cam.FovY = float32(c.Camera.Fov)
	cam.Near = float32(c.Camera.Near)
	cam.Far = float32(c.Camera.Far)
	if c.Screen.Height > 0 {
		cam.Aspect = float32(c.Screen.Width) / float32(c.Screen.Height)
	}
	return cam
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// ParseHexColor parses "#rrggbb" (the '#' is optional) into linear 0..1 channels.
func ParseHexColor(s string) (mgl32.Vec3, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return mgl32.Vec3{}, fmt.Errorf("color %q is not #rrggbb", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return mgl32.Vec3{}, fmt.Errorf("color %q: %w", s, err)
	}
	return mgl32.Vec3{
		float32((v>>16)&0xff) / 255,
		float32((v>>8)&0xff) / 255,
		float32(v&0xff) / 255,
	}, nil
}

func parseIDs(names []string) []shape.ID {
	ids := make([]shape.ID, 0, len(names))
	for _, n := range names {
		ids = append(ids, shape.ParseID(n))
	}
	return ids
}

func vec3(v [3]float64) mgl32.Vec3 {
	return mgl32.Vec3{float32(v[0]), float32(v[1]), float32(v[2])}
}
