package sim

import "github.com/go-gl/mathgl/mgl32"

// Store is the particle state as three parallel arrays, allocated once.
type Store struct {
	Spawn  []mgl32.Vec3
	Offset []mgl32.Vec3
	Age    []float32
}

func NewStore(n int) *Store {
	return &Store{
		Spawn:  make([]mgl32.Vec3, n),
		Offset: make([]mgl32.Vec3, n),
		Age:    make([]float32, n),
	}
}

func (s *Store) Len() int { return len(s.Age) }

// CopyFrom copies o into s. Both stores must have the same length.
func (s *Store) CopyFrom(o *Store) {
	copy(s.Spawn, o.Spawn)
	copy(s.Offset, o.Offset)
	copy(s.Age, o.Age)
}

func (s *Store) Clone() *Store {
	c := NewStore(s.Len())
	c.CopyFrom(s)
	return c
}

// Position is the simulated position of particle i, without render jitter.
func (s *Store) Position(i int) mgl32.Vec3 {
	return s.Spawn[i].Add(s.Offset[i])
}
