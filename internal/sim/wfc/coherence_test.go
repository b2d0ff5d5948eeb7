package wfc

import (
	"errors"
	"math"
	"testing"

	"voxelwfc.ai/internal/sim/voxel"
)

func solidChunk(t *testing.T, e *Engine, key voxel.ChunkKey, s voxel.StateID) *Chunk {
	t.Helper()
	sets := make([]voxel.StateSet, 8)
	collapsed := make([]bool, 8)
	for i := range sets {
		sets[i], collapsed[i] = voxel.SetOf(s), true
	}
	c, err := e.RestoreChunk(key, 0, sets, collapsed)
	if err != nil {
		t.Fatalf("restore %s: %v", key, err)
	}
	return c
}

func TestScoreSeam(t *testing.T) {
	e := newTestEngine(t, testTuning(2, 3), defaultRules(t, 3), nil, rolesAirGround())
	a := solidChunk(t, e, voxel.ChunkKey{}, 1)
	solidChunk(t, e, voxel.ChunkKey{X: 1}, 1)
	b := solidChunk(t, e, voxel.ChunkKey{Z: 1}, 2)

	rep, err := e.ScoreSeam(a, voxel.PosX)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if rep.Pairs != 4 || rep.Conflicts != 0 || rep.Unresolved != 0 || rep.Entropy != 0 || rep.Smoothness != 1 {
		t.Fatalf("uniform seam: %+v", rep)
	}
	rep, _ = e.ScoreSeam(a, voxel.PosZ)
	if rep.Conflicts != 4 || math.Abs(rep.Entropy-1) > 1e-12 || rep.Smoothness != 0 {
		t.Fatalf("conflicting seam: %+v", rep)
	}
	if _, err := e.ScoreSeam(b, voxel.PosY); !errors.Is(err, ErrChunkNotFound) {
		t.Fatalf("missing neighbour: %v", err)
	}

	v := e.Validate(a)
	if len(v) != 4 {
		t.Fatalf("expected 4 cross-seam violations, got %d", len(v))
	}
	for _, x := range v {
		if !x.Across || x.Dir != voxel.PosZ || x.A != 1 || x.B != 2 {
			t.Fatalf("unexpected violation %s", x)
		}
	}
}
