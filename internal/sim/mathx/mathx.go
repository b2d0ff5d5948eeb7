package mathx

import "voxelwfc.ai/internal/sim/voxel"

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// SplitWorld converts a world block position into (chunk key, local position).
func SplitWorld(p voxel.Vec3i, size int) (voxel.ChunkKey, voxel.Vec3i) {
	key := voxel.ChunkKey{X: FloorDiv(p.X, size), Y: FloorDiv(p.Y, size), Z: FloorDiv(p.Z, size)}
	local := voxel.Vec3i{X: Mod(p.X, size), Y: Mod(p.Y, size), Z: Mod(p.Z, size)}
	return key, local
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func Hash3(seed int64, x, y, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xc2b2ae3d27d4eb4f) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// ChunkSeed derives a per-chunk rng seed so a chunk's draws do not depend on load order.
func ChunkSeed(seed int64, key voxel.ChunkKey) int64 {
	return int64(Hash3(seed, key.X, key.Y, key.Z) >> 1)
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func Lerp(a, b, t float64) float64 {
	return a + (b-a)*Clamp(t, 0, 1)
}

// Smoothstep maps t in [0,1] onto a C1-continuous ease curve.
func Smoothstep(t float64) float64 {
	t = Clamp(t, 0, 1)
	return t * t * (3 - 2*t)
}
