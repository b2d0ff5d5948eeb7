package bias

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"voxelwfc.ai/internal/sim/catalogs"
)

func TestHeightMap_SplitWithoutBlend(t *testing.T) {
	sys := NewSystem()
	sys.SetLevelWeights([3]float64{1, 1, 1})
	if err := sys.Add(NewHeightMap("h", LevelGlobal, 1, 2, 0, StateBias{1: 1}, StateBias{0: 1})); err != nil {
		t.Fatalf("add: %v", err)
	}
	low := sys.CalculateInfluence(mgl64.Vec3{0.5, 1.5, 0.5}, 2)
	if low[1] != 1 || low[0] != 0 {
		t.Fatalf("below split: %v", low)
	}
	high := sys.CalculateInfluence(mgl64.Vec3{0.5, 2.5, 0.5}, 2)
	if high[0] != 1 || high[1] != 0 {
		t.Fatalf("above split: %v", high)
	}
}

func TestHeightMap_BlendBand(t *testing.T) {
	h := NewHeightMap("h", LevelGlobal, 1, 10, 4, StateBias{1: 1}, StateBias{0: 1})
	out := make([]float64, 2)
	h.Contribute(mgl64.Vec3{0, 10, 0}, out)
	if math.Abs(out[0]-0.5) > 1e-9 || math.Abs(out[1]-0.5) > 1e-9 {
		t.Fatalf("midpoint of band: %v", out)
	}
}

func TestInfluence_ClampedAndOrderIndependent(t *testing.T) {
	mk := func() []Constraint {
		return []Constraint{
			NewSphere("peak", LevelLocal, 1, mgl64.Vec3{0, 0, 0}, 10, 5, StateBias{2: 1, 1: -0.4}),
			NewRegion("basin", LevelRegional, 0.9, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{20, 20, 20}, 4, StateBias{2: 0.9, 0: 0.3}),
			NewHeightMap("strata", LevelGlobal, 0.7, 5, 2, StateBias{2: 0.8}, StateBias{0: 0.8}),
			NewNoise("n", LevelRegional, 0.4, 99, 0.1, 2, StateBias{1: 0.5, 0: -0.2}),
		}
	}
	a, b := NewSystem(), NewSystem()
	cs := mk()
	for _, c := range cs {
		if err := a.Add(c); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	cs = mk()
	for i := len(cs) - 1; i >= 0; i-- {
		if err := b.Add(cs[i]); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	for _, p := range []mgl64.Vec3{{0, 0, 0}, {3.5, 1.5, -2.5}, {12, 9, 1}, {40, 40, 40}} {
		x := a.CalculateInfluence(p, 4)
		y := b.CalculateInfluence(p, 4)
		for i := range x {
			if x[i] != y[i] {
				t.Fatalf("order dependent at %v: %v vs %v", p, x, y)
			}
			if x[i] < -1 || x[i] > 1 {
				t.Fatalf("bias out of range at %v: %v", p, x)
			}
		}
	}
	if x := a.CalculateInfluence(mgl64.Vec3{0, 0, 0}, 4); x[2] != 1 {
		t.Fatalf("stacked positive bias must clamp to 1, got %v", x)
	}
}

func TestRegionAndSphereFalloff(t *testing.T) {
	r := NewRegion("r", LevelRegional, 1, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{4, 4, 4}, 2, StateBias{0: 1})
	out := make([]float64, 1)
	if !r.Contribute(mgl64.Vec3{1, 1, 1}, out) || out[0] != 1 {
		t.Fatalf("inside region: %v", out)
	}
	out[0] = 0
	if r.Contribute(mgl64.Vec3{10, 0, 0}, out) || out[0] != 0 {
		t.Fatalf("far outside region must not contribute: %v", out)
	}
	out[0] = 0
	r.Contribute(mgl64.Vec3{3, 0, 0}, out)
	if out[0] <= 0 || out[0] >= 1 {
		t.Fatalf("blend band must be partial: %v", out)
	}

	s := NewSphere("s", LevelLocal, 1, mgl64.Vec3{0, 0, 0}, 4, 0, StateBias{0: 1})
	out[0] = 0
	s.Contribute(mgl64.Vec3{0, 0, 0}, out)
	centre := out[0]
	out[0] = 0
	s.Contribute(mgl64.Vec3{3, 0, 0}, out)
	if !(centre > out[0] && out[0] > 0) {
		t.Fatalf("sphere must fade from centre: centre=%v edge=%v", centre, out[0])
	}
	out[0] = 0
	if s.Contribute(mgl64.Vec3{9, 0, 0}, out) {
		t.Fatalf("outside sphere without blend must not contribute")
	}
}

func TestNoise_DeterministicPerSeed(t *testing.T) {
	a := NewNoise("n", LevelGlobal, 1, 7, 0.05, 3, StateBias{0: 1})
	b := NewNoise("n", LevelGlobal, 1, 7, 0.05, 3, StateBias{0: 1})
	for _, p := range []mgl64.Vec3{{1, 2, 3}, {-40, 8, 17.5}} {
		x, y := a.Sample(p), b.Sample(p)
		if x != y || x < -1 || x > 1 {
			t.Fatalf("noise sample %v: %v vs %v", p, x, y)
		}
	}
}

func TestSystem_VersionAndDuplicates(t *testing.T) {
	sys := NewSystem()
	v0 := sys.Version()
	if err := sys.Add(NewSphere("a", LevelLocal, 1, mgl64.Vec3{}, 1, 0, nil)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if sys.Version() == v0 {
		t.Fatalf("version must change on add")
	}
	if err := sys.Add(NewSphere("a", LevelLocal, 1, mgl64.Vec3{}, 1, 0, nil)); err == nil {
		t.Fatalf("expected duplicate error")
	}
	v1 := sys.Version()
	if !sys.Remove("a") || sys.Version() == v1 || sys.Len() != 0 {
		t.Fatalf("remove failed")
	}
	if sys.Remove("a") {
		t.Fatalf("second remove must report false")
	}
}

func TestCache_InvalidatesOnVersionChange(t *testing.T) {
	sys := NewSystem()
	c := NewCache(sys, 8, 2)
	p := mgl64.Vec3{0.5, 0.5, 0.5}
	if got := c.Get(3, p); got[0] != 0 {
		t.Fatalf("empty system must give zero bias: %v", got)
	}
	c.Get(3, p)
	if c.Hits != 1 || c.Misses != 1 {
		t.Fatalf("hits=%d misses=%d", c.Hits, c.Misses)
	}
	if err := sys.Add(NewSphere("s", LevelLocal, 1, mgl64.Vec3{}, 4, 0, StateBias{0: 1})); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := c.Get(3, p); got[0] <= 0 {
		t.Fatalf("stale cache entry returned after constraint change: %v", got)
	}
	if c.Misses != 2 {
		t.Fatalf("expected recompute after version change, misses=%d", c.Misses)
	}
}

func TestFromTerrain(t *testing.T) {
	terr, err := catalogs.LoadTerrain("../../../../configs/terrain.json")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sys, err := FromTerrain(terr, 1337)
	if err != nil {
		t.Fatalf("from terrain: %v", err)
	}
	ids := sys.IDs()
	want := []string{"lake", "meadows", "peak", "strata"}
	if len(ids) != len(want) {
		t.Fatalf("ids=%v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids=%v want %v", ids, want)
		}
	}
	deep := sys.CalculateInfluence(mgl64.Vec3{-40, 30, 10}, terr.NumStates())
	if deep[terr.Index["ROCK"]] <= 0 {
		t.Fatalf("peak centre must favour rock: %v", deep)
	}
	if _, err := ParseLevel("planetary"); err == nil {
		t.Fatalf("expected level error")
	}
}
