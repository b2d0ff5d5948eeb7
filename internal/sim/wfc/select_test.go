package wfc

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"voxelwfc.ai/internal/sim/voxel"
	"voxelwfc.ai/internal/sim/wfc/bias"
)

func TestSelectCell_ViewerBreaksTies(t *testing.T) {
	tn := testTuning(4, 4)
	tn.Boundary.CoherenceWeight = 1
	e := newTestEngine(t, tn, defaultRules(t, 4), bias.NewSystem(), rolesAirGround())
	c := mustChunk(t, e, voxel.ChunkKey{})

	e.SetViewer(mgl64.Vec3{3.5, 3.5, 3.5})
	got, idx, ok := e.selectCell([]*Chunk{c})
	if !ok || got != c {
		t.Fatalf("no cell selected")
	}
	if p := c.CellAt(idx).Pos; p != (voxel.Vec3i{X: 3, Y: 3, Z: 3}) {
		t.Fatalf("nearest to viewer: got %v", p)
	}

	// Equidistant cells keep the first one in scan order.
	e.SetViewer(mgl64.Vec3{2, 0.5, 0.5})
	_, idx, _ = e.selectCell([]*Chunk{c})
	if p := c.CellAt(idx).Pos; p != (voxel.Vec3i{X: 1, Y: 0, Z: 0}) {
		t.Fatalf("exact tie: got %v", p)
	}
}

func TestSelectCell_PrefersSingletonsAndBoundary(t *testing.T) {
	tn := testTuning(4, 4)
	e := newTestEngine(t, tn, defaultRules(t, 4), bias.NewSystem(), rolesAirGround())
	c := mustChunk(t, e, voxel.ChunkKey{})
	e.SetViewer(mgl64.Vec3{1.5, 1.5, 1.5})

	// Cell (1,1,1) is interior; the coherence weight makes a face cell win.
	_, idx, _ := e.selectCell([]*Chunk{c})
	if !c.CellAt(idx).IsBoundary() {
		t.Fatalf("expected a boundary cell, got %v", c.CellAt(idx).Pos)
	}

	target := c.CellAt(idx).Pos
	for i := 0; i < c.CellCount(); i++ {
		if c.CellAt(i).Pos == (voxel.Vec3i{X: 2, Y: 2, Z: 2}) {
			if _, err := c.cells[i].SetPossibleStates(voxel.SetOf(1)); err != nil {
				t.Fatalf("narrow: %v", err)
			}
			target = c.cells[i].Pos
		}
	}
	_, idx, _ = e.selectCell([]*Chunk{c})
	if c.CellAt(idx).Pos != target {
		t.Fatalf("single-state cell should resolve first, got %v", c.CellAt(idx).Pos)
	}
}
