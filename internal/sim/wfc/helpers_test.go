package wfc

import (
	"testing"

	"voxelwfc.ai/internal/sim/catalogs"
	"voxelwfc.ai/internal/sim/tuning"
	"voxelwfc.ai/internal/sim/voxel"
	"voxelwfc.ai/internal/sim/wfc/bias"
	"voxelwfc.ai/internal/sim/wfc/rules"
)

func testTuning(size, states int) tuning.Tuning {
	tn := tuning.Defaults()
	tn.ChunkSize = size
	tn.MaxStates = states
	return tn
}

func newTestEngine(t *testing.T, tn tuning.Tuning, rt *rules.Table, sys *bias.System, roles catalogs.Roles) *Engine {
	t.Helper()
	e, err := New(Config{Tuning: tn, Roles: roles})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := e.Connect(rt, sys); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return e
}

// terrainEngine builds an engine from configs/terrain.json.
func terrainEngine(t *testing.T, size int, seed int64) (*Engine, *catalogs.Terrain) {
	t.Helper()
	terr, err := catalogs.LoadTerrain("../../../configs/terrain.json")
	if err != nil {
		t.Fatalf("load terrain: %v", err)
	}
	rt, err := rules.Build(terr)
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	sys, err := bias.FromTerrain(terr, seed)
	if err != nil {
		t.Fatalf("bias: %v", err)
	}
	tn := testTuning(size, 16)
	tn.Seed = seed
	tn.WorldMinY = -8
	tn.WorldHeight = 48
	return newTestEngine(t, tn, rt, sys, terr.Roles()), terr
}

// mustChunk creates a chunk and wires it like a streaming consumer would.
func mustChunk(t *testing.T, e *Engine, key voxel.ChunkKey) *Chunk {
	t.Helper()
	c, err := e.CreateChunk(key)
	if err != nil {
		t.Fatalf("create %s: %v", key, err)
	}
	e.ConnectNeighbors(c)
	e.InitializeBoundaryBuffers(c)
	return c
}

func assertNoEmpty(t *testing.T, e *Engine) {
	t.Helper()
	for _, c := range e.Chunks() {
		for i := 0; i < c.CellCount(); i++ {
			if c.CellAt(i).Possible().IsEmpty() {
				t.Fatalf("chunk %s cell %s has an empty state set", c.Key, c.CellAt(i).Pos)
			}
		}
	}
}

func defaultRules(t *testing.T, n int) *rules.Table {
	t.Helper()
	rt, err := rules.Default(n, 0)
	if err != nil {
		t.Fatalf("default rules: %v", err)
	}
	return rt
}

func rolesAirGround() catalogs.Roles { return catalogs.Roles{Air: 0, Ground: 1} }
