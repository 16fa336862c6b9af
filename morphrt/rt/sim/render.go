package sim

import (
	"github.com/chewxy/math32"
	"github.com/gekko3d/morphfield/config"
	"github.com/gekko3d/morphfield/morphrt/rt/core"
	"github.com/gekko3d/morphfield/morphrt/rt/shape"
	"github.com/go-gl/mathgl/mgl32"
)

// Colors is the global tint: start and end color over a particle's life
// and the emissive intensity.
type Colors struct {
	Start    mgl32.Vec3
	End      mgl32.Vec3
	Emissive float32
}

func (c Colors) lerp(to Colors, t float32) Colors {
	return Colors{
		Start:    core.LerpVec3(c.Start, to.Start, t),
		End:      core.LerpVec3(c.End, to.End, t),
		Emissive: core.Lerp(c.Emissive, to.Emissive, t),
	}
}

// Palette maps shapes to their color targets.
type Palette map[shape.ID]Colors

func DefaultPalette() Palette {
	hex := func(s string) mgl32.Vec3 {
		c, _ := config.ParseHexColor(s)
		return c
	}
	return Palette{
		shape.Box:    {Start: hex("#ff4444"), End: hex("#ffaa44"), Emissive: 0.1},
		shape.Sphere: {Start: hex("#44ff44"), End: hex("#44ffaa"), Emissive: 0.15},
		shape.Torus:  {Start: hex("#ff44ff"), End: hex("#ffaa88"), Emissive: 0.3},
		shape.Cone:   {Start: hex("#00aaff"), End: hex("#0066ff"), Emissive: 0.18},
	}
}

func PaletteFromConfig(cfg *config.Config) Palette {
	p := make(Palette, len(cfg.Derived.Palette))
	for name, c := range cfg.Derived.Palette {
		p[shape.ID(name)] = Colors{Start: c.Start, End: c.End, Emissive: c.Emissive}
	}
	return p
}

// For returns the target of the first shape in ids that has one.
func (p Palette) For(ids ...shape.ID) (Colors, bool) {
	for _, id := range ids {
		if c, ok := p[id]; ok {
			return c, true
		}
	}
	return Colors{}, false
}

// ColorState eases the current colors toward a target once per frame. The
// step is linear in dt, so the ease rate follows the frame rate.
type ColorState struct {
	Current Colors
	Target  Colors
}

func NewColorState(initial Colors) *ColorState {
	return &ColorState{Current: initial, Target: initial}
}

// Ease moves Current toward Target by factor dt, clamped to [0, 1].
func (c *ColorState) Ease(dt float32) Colors {
	c.Current = c.Current.lerp(c.Target, core.Saturate(dt))
	return c.Current
}

// LifetimeProgress is age/lifetime clamped to [0, 1].
func LifetimeProgress(age, lifetime float32) float32 {
	if lifetime <= 0 {
		return 1
	}
	return core.Saturate(age / lifetime)
}

// ScaleAt shrinks a sprite from base at birth to zero at end of life.
func ScaleAt(base, progress float32) float32 {
	return base * core.Smoothstep(1, 0, progress)
}

// DeriveInstance computes the render attributes of particle i.
func DeriveInstance(p *Params, s *Store, i int, c Colors) core.ParticleInstance {
	progress := LifetimeProgress(s.Age[i], p.LifetimeOf(i))
	pos := s.Position(i).Add(p.RenderJitterOf(i))
	rgb := core.LerpVec3(c.Start, c.End, progress)
	color := [4]float32{rgb[0], rgb[1], rgb[2], p.Opacity}
	return core.ParticleInstance{
		Pos:      pos,
		Scale:    ScaleAt(p.BaseScaleOf(i), progress),
		Color:    color,
		Emissive: [4]float32{color[0] * c.Emissive, color[1] * c.Emissive, color[2] * c.Emissive, color[3] * c.Emissive},
	}
}

// DeriveInstances fills dst with one instance per particle, reusing its storage.
func DeriveInstances(dst []core.ParticleInstance, p *Params, s *Store, c Colors) []core.ParticleInstance {
	n := s.Len()
	if cap(dst) < n {
		dst = make([]core.ParticleInstance, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = DeriveInstance(p, s, i, c)
	}
	return dst
}

// SpriteMask is the soft disc alpha of a sprite at texture coordinate (u, v):
// 1 inside radius 0.49, feathered to 0 at 0.5.
func SpriteMask(u, v float32) float32 {
	d := math32.Hypot(u-0.5, v-0.5)
	return core.Smoothstep(0.5, 0.49, d)
}
