package wfc

import (
	"math"
	"math/rand"
	"testing"

	"voxelwfc.ai/internal/sim/catalogs"
	"voxelwfc.ai/internal/sim/voxel"
)

func TestScenario_WeightedSelectionStatistics(t *testing.T) {
	rng := rand.New(rand.NewSource(20240601))
	var counts [2]int
	b := []float64{0.5, -0.5}
	for i := 0; i < 10000; i++ {
		counts[SelectWeighted(rng, voxel.SetOf(0, 1), b, nil, 1e-4)]++
	}
	ratio := float64(counts[0]) / float64(counts[1])
	if ratio < 3.5 || ratio > 4.6 {
		t.Fatalf("expected ~4:1, got %d:%d (%.2f)", counts[0], counts[1], ratio)
	}
}

func TestSelectWeighted_Fallbacks(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cands := voxel.SetOf(1, 3)
	var seen [4]int
	for i := 0; i < 2000; i++ {
		seen[SelectWeighted(rng, cands, nil, nil, 1e-4)]++
	}
	if seen[0] != 0 || seen[2] != 0 || seen[1] < 850 || seen[3] < 850 {
		t.Fatalf("uniform fallback distribution: %v", seen)
	}
	nan := []float64{0, math.NaN(), 0, 0}
	for i := 0; i < 50; i++ {
		if s := SelectWeighted(rng, cands, nan, nil, 1e-4); !cands.Has(s) {
			t.Fatalf("degenerate bias picked %d", s)
		}
	}
	if s := SelectWeighted(rng, voxel.SetOf(2), []float64{1, 1, -1}, nil, 1e-4); s != 2 {
		t.Fatalf("single candidate must win, got %d", s)
	}
	// -1 bias gives 2^-2 = 0.25; the floor lifts it to 1 so both are equally likely.
	var floor [2]int
	for i := 0; i < 4000; i++ {
		floor[SelectWeighted(rng, voxel.SetOf(0, 1), []float64{0, -1}, nil, 1)]++
	}
	if floor[1] < 1800 {
		t.Fatalf("min weight floor ignored: %v", floor)
	}
}

func TestSelectWeighted_StatePrior(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var counts [2]int
	prior := []float64{1.2, 0.4}
	for i := 0; i < 12000; i++ {
		counts[SelectWeighted(rng, voxel.SetOf(0, 1), nil, prior, 1e-4)]++
	}
	if r := float64(counts[0]) / float64(counts[1]); r < 2.6 || r > 3.4 {
		t.Fatalf("expected ~3:1 from weights, got %d:%d (%.2f)", counts[0], counts[1], r)
	}

	// Prior and bias multiply: 0.5 * 2^(2*0.5) = 1 against 1 * 2^0 = 1.
	counts = [2]int{}
	for i := 0; i < 12000; i++ {
		counts[SelectWeighted(rng, voxel.SetOf(0, 1), []float64{0.5, 0}, []float64{0.5, 1}, 1e-4)]++
	}
	if r := float64(counts[0]) / float64(counts[1]); r < 0.85 || r > 1.15 {
		t.Fatalf("expected ~1:1, got %d:%d (%.2f)", counts[0], counts[1], r)
	}
}

func TestDominanceThreshold(t *testing.T) {
	cases := []struct{ maxAbs, influence, want float64 }{
		{0, 1, 0.9},
		{1, 1, 0.5},
		{0.5, 1, 0.7},
		{1, 0.5, 0.7},
		{2, 1, 0.5},
	}
	for _, c := range cases {
		if got := DominanceThreshold(0.9, 0.5, c.maxAbs, c.influence); math.Abs(got-c.want) > 1e-12 {
			t.Fatalf("threshold(%v,%v)=%v want %v", c.maxAbs, c.influence, got, c.want)
		}
	}
}

func TestDominantShortcut(t *testing.T) {
	e := newTestEngine(t, testTuning(4, 4), defaultRules(t, 4), nil, rolesAirGround())
	c, _ := e.CreateChunk(voxel.ChunkKey{})
	b := []float64{0.5, -0.5, 0, 0}
	if s, ok := e.dominant(c, voxel.SetOf(0, 1), b); !ok || s != 0 {
		t.Fatalf("0.8 share over a 0.7 bar must dominate: %d %v", s, ok)
	}
	c.ConstraintInfluence = 0
	if _, ok := e.dominant(c, voxel.SetOf(0, 1), b); ok {
		t.Fatalf("without influence the bar stays at 0.9")
	}
	c.ConstraintInfluence = 1
	if _, ok := e.dominant(c, voxel.SetOf(0, 1, 2, 3), b); ok {
		t.Fatalf("four candidates dilute the share below the bar")
	}
}

func TestHeightOverride_SolidChoice(t *testing.T) {
	roles := catalogs.Roles{Air: 0, Ground: 1, Rock: 2, HasRock: true, Water: 3, HasWater: true}
	tn := testTuning(4, 4)
	tn.WorldMinY = 0
	tn.WorldHeight = 40
	e := newTestEngine(t, tn, defaultRules(t, 4), nil, roles)
	if got := e.solidFor([]float64{0, 0, 0, 0}); got != 1 {
		t.Fatalf("ties must keep ground, got %d", got)
	}
	if got := e.solidFor([]float64{0, 0.1, 0.5, 0.2}); got != 2 {
		t.Fatalf("strongest rock bias must win, got %d", got)
	}
	if got := e.solidFor([]float64{0, 0.1, 0.2, 0.3}); got != 3 {
		t.Fatalf("strongest water bias must win, got %d", got)
	}

	low, _ := e.CreateChunk(voxel.ChunkKey{})
	high, _ := e.CreateChunk(voxel.ChunkKey{Y: 9})
	all := voxel.FullSet(4)
	zero := make([]float64, 4)
	if s, ok := e.heightOverride(low, 0, all, zero); !ok || s != 1 {
		t.Fatalf("bottom of the world must be solid: %d %v", s, ok)
	}
	if s, ok := e.heightOverride(high, 0, all, zero); !ok || s != 0 {
		t.Fatalf("top of the world must be air: %d %v", s, ok)
	}
	if _, ok := e.heightOverride(high, 0, voxel.SetOf(1, 2), zero); ok {
		t.Fatalf("override must not force a state outside the candidates")
	}
	mid, _ := e.CreateChunk(voxel.ChunkKey{Y: 4})
	if _, ok := e.heightOverride(mid, 0, all, zero); ok {
		t.Fatalf("mid-height cells must use the probabilistic path")
	}
}

func TestSafeCandidates_AvoidEmptyingNeighbours(t *testing.T) {
	e := newTestEngine(t, testTuning(4, 4), defaultRules(t, 4), nil, rolesAirGround())
	c, _ := e.CreateChunk(voxel.ChunkKey{})
	// Neighbour at +x only tolerates 3; only 0 (air) and 3 can sit next to it.
	if _, err := e.NarrowCell(c.Key, voxel.Vec3i{X: 2, Y: 1, Z: 1}, voxel.SetOf(3)); err != nil {
		t.Fatalf("narrow: %v", err)
	}
	idx := c.index(voxel.Vec3i{X: 1, Y: 1, Z: 1})
	if got := e.safeCandidates(c, idx); got != voxel.SetOf(0, 3) {
		t.Fatalf("safe candidates %s", got)
	}
}
