// Package shape samples procedural solids into vertex point clouds that the
// morph target atlas draws particle targets from.
package shape

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// ID names a target shape.
type ID string

const (
	Box    ID = "Box"
	Sphere ID = "Sphere"
	Torus  ID = "Torus"
	Cone   ID = "Cone"
)

// Builtin lists the procedural shapes in cycling order.
var Builtin = []ID{Box, Sphere, Torus, Cone}

// ParseID matches a shape name case-insensitively against the built-in set.
// Unknown names are returned as-is so callers can still route them to a
// sampler with custom registrations.
func ParseID(s string) ID {
	for _, id := range Builtin {
		if strings.EqualFold(string(id), s) {
			return id
		}
	}
	return ID(s)
}

// PointCloud is an immutable set of surface vertex positions.
type PointCloud struct {
	positions []mgl32.Vec3
}

func NewPointCloud(positions []mgl32.Vec3) PointCloud {
	cp := make([]mgl32.Vec3, len(positions))
	copy(cp, positions)
	return PointCloud{positions: cp}
}

func (pc PointCloud) Len() int            { return len(pc.positions) }
func (pc PointCloud) Empty() bool         { return len(pc.positions) == 0 }
func (pc PointCloud) At(i int) mgl32.Vec3 { return pc.positions[i] }

// Bounds returns the axis-aligned bounds of the cloud.
func (pc PointCloud) Bounds() (min, max mgl32.Vec3) {
	if pc.Empty() {
		return
	}
	min, max = pc.positions[0], pc.positions[0]
	for _, p := range pc.positions[1:] {
		for a := 0; a < 3; a++ {
			if p[a] < min[a] {
				min[a] = p[a]
			}
			if p[a] > max[a] {
				max[a] = p[a]
			}
		}
	}
	return
}

// Generator produces the cloud for one shape. It must be deterministic.
type Generator func() []mgl32.Vec3

// Tessellation holds the per-shape density and dimensions of the built-in solids.
type Tessellation struct {
	Box    BoxParams
	Sphere SphereParams
	Torus  TorusParams
	Cone   ConeParams
}

type BoxParams struct {
	Width, Height, Depth             float32
	WidthSegs, HeightSegs, DepthSegs int
}

type SphereParams struct {
	Radius                        float32
	WidthSegments, HeightSegments int
}

type TorusParams struct {
	Radius, Tube                    float32
	RadialSegments, TubularSegments int
}

type ConeParams struct {
	Radius, Height                 float32
	RadialSegments, HeightSegments int
}

// DefaultTessellation is the dense set used for the full 50k particle scene.
func DefaultTessellation() Tessellation {
	return Tessellation{
		Box:    BoxParams{Width: 2, Height: 2, Depth: 2, WidthSegs: 128, HeightSegs: 128, DepthSegs: 128},
		Sphere: SphereParams{Radius: 1.5, WidthSegments: 256, HeightSegments: 128},
		Torus:  TorusParams{Radius: 1.2, Tube: 0.4, RadialSegments: 64, TubularSegments: 256},
		Cone:   ConeParams{Radius: 1.2, Height: 2.5, RadialSegments: 128, HeightSegments: 64},
	}
}

// Sampler resolves shape IDs to point clouds. Clouds are cached per ID.
type Sampler struct {
	mu         sync.Mutex
	generators map[ID]Generator
	cache      map[ID]PointCloud
}

func NewSampler(t Tessellation) *Sampler {
	s := &Sampler{
		generators: make(map[ID]Generator),
		cache:      make(map[ID]PointCloud),
	}
	s.generators[Box] = func() []mgl32.Vec3 { return boxVertices(t.Box) }
	s.generators[Sphere] = func() []mgl32.Vec3 { return sphereVertices(t.Sphere) }
	s.generators[Torus] = func() []mgl32.Vec3 { return torusVertices(t.Torus) }
	s.generators[Cone] = func() []mgl32.Vec3 { return coneVertices(t.Cone) }
	return s
}

// Register adds or replaces a generator. Any cached cloud for id is dropped.
func (s *Sampler) Register(id ID, gen Generator) {
	if gen == nil {
		panic(fmt.Sprintf("shape: nil generator for %q", id))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generators[id] = gen
	delete(s.cache, id)
}

func (s *Sampler) Known(id ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.generators[id]
	return ok
}

// Sample returns the cloud for id. Unknown IDs yield an empty cloud, which
// callers treat as "no target available".
func (s *Sampler) Sample(id ID) PointCloud {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pc, ok := s.cache[id]; ok {
		return pc
	}
	gen, ok := s.generators[id]
	if !ok {
		return PointCloud{}
	}
	pc := PointCloud{positions: gen()}
	s.cache[id] = pc
	return pc
}

// SampleAll samples each id in order; unknown IDs contribute empty clouds.
func (s *Sampler) SampleAll(ids ...ID) []PointCloud {
	out := make([]PointCloud, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.Sample(id))
	}
	return out
}
