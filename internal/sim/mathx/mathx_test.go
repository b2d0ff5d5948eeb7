package mathx

import (
	"testing"

	"voxelwfc.ai/internal/sim/voxel"
)

func TestSplitWorldNegative(t *testing.T) {
	key, local := SplitWorld(voxel.Vec3i{X: -1, Y: 17, Z: -16}, 16)
	if key != (voxel.ChunkKey{X: -1, Y: 1, Z: -1}) {
		t.Fatalf("key: %v", key)
	}
	if local != (voxel.Vec3i{X: 15, Y: 1, Z: 0}) {
		t.Fatalf("local: %v", local)
	}
}

func TestChunkSeedStable(t *testing.T) {
	a := ChunkSeed(42, voxel.ChunkKey{X: 1, Y: 0, Z: -1})
	b := ChunkSeed(42, voxel.ChunkKey{X: 1, Y: 0, Z: -1})
	c := ChunkSeed(42, voxel.ChunkKey{X: -1, Y: 0, Z: 1})
	if a != b {
		t.Fatalf("seed not stable: %d vs %d", a, b)
	}
	if a == c {
		t.Fatalf("mirrored keys collided")
	}
	if a < 0 {
		t.Fatalf("seed must be non-negative: %d", a)
	}
}

func TestLerpClamps(t *testing.T) {
	if Lerp(0.9, 0.5, 2) != 0.5 || Lerp(0.9, 0.5, -1) != 0.9 {
		t.Fatalf("lerp must clamp t")
	}
	if Smoothstep(0.5) != 0.5 {
		t.Fatalf("smoothstep midpoint: %v", Smoothstep(0.5))
	}
}
