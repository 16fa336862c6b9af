package core

// Hash32 is a PCG-style integer hash. particles.wgsl carries the same
// function, so CPU and GPU agree on every per-particle constant.
func Hash32(x uint32) uint32 {
	state := x*747796405 + 2891336453
	word := ((state >> ((state >> 28) + 4)) ^ state) * 277803737
	return (word >> 22) ^ word
}

// HashUnit maps (index, seed) to [0, 1). Only the top 24 bits are used so
// the float32 conversion is exact and never rounds up to 1.
func HashUnit(index, seed uint32) float32 {
	h := Hash32(index + Hash32(seed))
	return float32(h>>8) * (1.0 / 16777216.0)
}

// HashRange maps (index, seed) to [lo, hi).
func HashRange(index, seed uint32, lo, hi float32) float32 {
	return HashUnit(index, seed)*(hi-lo) + lo
}
