package worldtest

import (
	"testing"

	"voxelwfc.ai/internal/persistence/snapshot"
	"voxelwfc.ai/internal/sim/catalogs"
	"voxelwfc.ai/internal/sim/tuning"
	"voxelwfc.ai/internal/sim/voxel"
	"voxelwfc.ai/internal/sim/wfc"
	world "voxelwfc.ai/internal/sim/world"
)

// Harness is a small black-box test helper for driving a world via exported APIs:
// - Ensure() recentres streaming via StepOnce()
// - Settle() steps until every loaded chunk is finished
// - chunk lifecycle events are recorded for assertions
//
// It intentionally avoids touching world internals so tests can live outside the world package.
type Harness struct {
	T       *testing.T
	Terrain *catalogs.Terrain
	Tuning  tuning.Tuning
	W       *world.World

	Events []world.ChunkEvent
}

// DefaultTuning is a small, fast configuration: 4^3 chunks and an unbounded
// per-tick event budget.
func DefaultTuning() tuning.Tuning {
	tn := tuning.Defaults()
	tn.Seed = 42
	tn.ChunkSize = 4
	tn.WorldMinY = -8
	tn.WorldHeight = 24
	tn.Engine.EventsPerTick = 1 << 20
	tn.Streaming.Radius = 1
	tn.Streaming.UnloadMargin = 0
	tn.Streaming.CreatePerTick = 64
	tn.SnapshotEveryTicks = 0
	return tn
}

func LoadTerrain(t *testing.T) *catalogs.Terrain {
	t.Helper()
	terr, err := catalogs.LoadTerrain("../../../configs/terrain.json")
	if err != nil {
		t.Fatalf("load terrain: %v", err)
	}
	return terr
}

func NewHarness(t *testing.T, tn tuning.Tuning) *Harness {
	t.Helper()
	terr := LoadTerrain(t)
	w, err := world.New(world.Config{Tuning: tn, Terrain: terr, RunID: "worldtest"})
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return NewHarnessWithWorld(t, w, terr, tn)
}

// NewHarnessWithWorld is like NewHarness, but uses an already-constructed world instance.
// This is useful for snapshot round-trip tests where the snapshot is imported first.
func NewHarnessWithWorld(t *testing.T, w *world.World, terr *catalogs.Terrain, tn tuning.Tuning) *Harness {
	t.Helper()
	if w == nil {
		t.Fatalf("NewHarnessWithWorld: nil world")
	}
	h := &Harness{T: t, Terrain: terr, Tuning: tn, W: w}
	w.SetChunkLogger(h)
	return h
}

func (h *Harness) WriteChunkEvent(ev world.ChunkEvent) error {
	h.Events = append(h.Events, ev)
	return nil
}

// Ensure steps one tick with a streaming request.
func (h *Harness) Ensure(center voxel.ChunkKey, radius int) {
	h.T.Helper()
	h.W.StepOnce(world.EnsureRequest{Center: center, Radius: radius})
}

// Settle steps until nothing is queued for creation and every chunk is finished.
// It returns the number of ticks taken.
func (h *Harness) Settle(maxTicks int) int {
	h.T.Helper()
	for i := 0; i < maxTicks; i++ {
		if h.settled() {
			return i
		}
		h.W.StepOnce()
	}
	if !h.settled() {
		h.T.Fatalf("world not settled after %d ticks: %+v", maxTicks, h.W.Metrics())
	}
	return maxTicks
}

func (h *Harness) settled() bool {
	if h.W.Metrics().QueuedCreates > 0 {
		return false
	}
	for _, c := range h.W.Engine().Chunks() {
		if s := c.State(); s != wfc.ChunkComplete && s != wfc.ChunkBestEffort {
			return false
		}
	}
	return true
}

// Validate fails the test on any collapsed neighbour pair the rules forbid.
func (h *Harness) Validate() {
	h.T.Helper()
	eng := h.W.Engine()
	for _, c := range eng.Chunks() {
		if v := eng.Validate(c); len(v) > 0 {
			h.T.Fatalf("chunk %s: %d violations, first: %s", c.Key, len(v), v[0])
		}
	}
}

func (h *Harness) Snapshot() (tick uint64, snap snapshot.SnapshotV1) {
	h.T.Helper()
	// Keep tick stable: export at currentTick-1 then import would restore to currentTick.
	cur := h.W.CurrentTick()
	if cur == 0 {
		return 0, h.W.ExportSnapshot(0)
	}
	tick = cur - 1
	return tick, h.W.ExportSnapshot(tick)
}

// Restore imports snap into a fresh world with the harness configuration.
func (h *Harness) Restore(snap snapshot.SnapshotV1) *Harness {
	h.T.Helper()
	w, err := world.New(world.Config{Tuning: h.Tuning, Terrain: h.Terrain, RunID: snap.Header.RunID})
	if err != nil {
		h.T.Fatalf("world.New: %v", err)
	}
	if err := w.ImportSnapshot(snap); err != nil {
		h.T.Fatalf("import: %v", err)
	}
	return NewHarnessWithWorld(h.T, w, h.Terrain, h.Tuning)
}

func (h *Harness) Loaded() []voxel.ChunkKey {
	var out []voxel.ChunkKey
	for _, c := range h.W.Engine().Chunks() {
		out = append(out, c.Key)
	}
	return out
}

// CountEvents counts recorded transitions into state to.
func (h *Harness) CountEvents(to wfc.ChunkState) int {
	n := 0
	for _, ev := range h.Events {
		if ev.To == to.String() {
			n++
		}
	}
	return n
}
