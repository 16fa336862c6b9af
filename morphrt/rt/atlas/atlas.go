// Package atlas packs per-particle morph targets into a square RGBA32F grid
// addressed by linear particle index.
package atlas

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/gekko3d/morphfield/morphrt/rt/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// ErrNoTargets is returned when every candidate cloud is empty.
var ErrNoTargets = errors.New("atlas: no target points available")

// TexelStride is the number of float32 channels per cell.
const TexelStride = 4

// Atlas holds Side*Side texels. Cells below Count hold (x, y, z, 1); the rest
// stay zero and are never addressed.
type Atlas struct {
	mu         sync.RWMutex
	side       int
	count      int
	texels     []float32
	generation uint64
	dirty      bool
	buildID    uuid.UUID
}

// New allocates an atlas for n particles with every target at the origin.
func New(n int) *Atlas {
	if n <= 0 {
		panic(fmt.Sprintf("atlas: particle count must be positive, got %d", n))
	}
	side := core.CeilSqrt(n)
	a := &Atlas{
		side:   side,
		count:  n,
		texels: make([]float32, side*side*TexelStride),
		dirty:  true,
	}
	for i := 0; i < n; i++ {
		a.texels[i*TexelStride+3] = 1
	}
	return a
}

func (a *Atlas) Side() int  { return a.side }
func (a *Atlas) Count() int { return a.count }

func (a *Atlas) Generation() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.generation
}

// BuildID identifies the last committed build. Zero until the first build.
func (a *Atlas) BuildID() uuid.UUID {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.buildID
}

// Coord maps a linear index to its (column, row) cell.
func (a *Atlas) Coord(i int) (col, row int) {
	return i % a.side, i / a.side
}

// UV returns the normalized corner coordinate of cell i.
func (a *Atlas) UV(i int) mgl32.Vec2 {
	col, row := a.Coord(i)
	s := float32(a.side)
	return mgl32.Vec2{float32(col) / s, float32(row) / s}
}

// Target returns the target position of particle i.
func (a *Atlas) Target(i int) mgl32.Vec3 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	o := i * TexelStride
	return mgl32.Vec3{a.texels[o], a.texels[o+1], a.texels[o+2]}
}

// CopyTargets fills dst[k] with the target of particle lo+k.
func (a *Atlas) CopyTargets(dst []mgl32.Vec3, lo int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for k := range dst {
		o := (lo + k) * TexelStride
		dst[k] = mgl32.Vec3{a.texels[o], a.texels[o+1], a.texels[o+2]}
	}
}

// CopyTexels appends all texels to dst.
func (a *Atlas) CopyTexels(dst []float32) []float32 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append(dst[:0], a.texels...)
}

// Bytes returns the little-endian texel data, as uploaded to the GPU.
func (a *Atlas) Bytes() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b := make([]byte, 0, len(a.texels)*4)
	for _, v := range a.texels {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
	}
	return b
}

// Read calls fn with the committed texels under the read lock. fn must not
// retain the slice.
func (a *Atlas) Read(fn func(texels []float32, generation uint64)) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	fn(a.texels, a.generation)
}

// TakeDirty reports whether a build was committed since the last call and
// clears the flag.
func (a *Atlas) TakeDirty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	d := a.dirty
	a.dirty = false
	return d
}

// commit swaps staging in as the live texel buffer and returns the old one
// for reuse.
func (a *Atlas) commit(staging []float32) []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	old := a.texels
	a.texels = staging
	a.generation++
	a.dirty = true
	a.buildID = uuid.New()
	return old
}
