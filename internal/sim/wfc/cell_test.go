package wfc

import (
	"errors"
	"testing"

	"voxelwfc.ai/internal/sim/voxel"
)

func TestCell_MonotonicNarrowing(t *testing.T) {
	c := Cell{}
	c.reset(voxel.FullSet(5))
	prev := c.Possible()
	for _, set := range []voxel.StateSet{voxel.SetOf(0, 1, 2, 4), voxel.FullSet(5), voxel.SetOf(1, 2, 3), voxel.SetOf(2)} {
		if _, err := c.SetPossibleStates(set); err != nil {
			t.Fatalf("narrow %s: %v", set, err)
		}
		if !c.Possible().SubsetOf(prev) {
			t.Fatalf("set grew from %s to %s", prev, c.Possible())
		}
		prev = c.Possible()
	}
	if c.Possible() != voxel.SetOf(2) {
		t.Fatalf("final set %s", c.Possible())
	}
	if changed, err := c.SetPossibleStates(voxel.SetOf(3)); err == nil || !errors.Is(err, ErrEmptyStateSet) || changed {
		t.Fatalf("expected empty-set rejection, got changed=%v err=%v", changed, err)
	}
	if c.Possible() != voxel.SetOf(2) {
		t.Fatalf("rejected narrowing must leave the cell untouched: %s", c.Possible())
	}
}

func TestCell_CollapsePolicy(t *testing.T) {
	c := Cell{}
	c.reset(voxel.SetOf(0, 1, 2))
	if err := c.Collapse(4); !errors.Is(err, ErrStateNotPossible) {
		t.Fatalf("expected ErrStateNotPossible, got %v", err)
	}
	if err := c.Collapse(1); err != nil {
		t.Fatalf("collapse: %v", err)
	}
	if err := c.Collapse(1); err != nil {
		t.Fatalf("repeat collapse must be a no-op: %v", err)
	}
	if err := c.Collapse(2); !errors.Is(err, ErrAlreadyCollapsed) {
		t.Fatalf("expected ErrAlreadyCollapsed, got %v", err)
	}
	if s, ok := c.Collapsed(); !ok || s != 1 || c.Entropy() != 0 || c.Possible() != voxel.SetOf(1) {
		t.Fatalf("collapsed cell changed: %d %v %s", s, ok, c.Possible())
	}
	if changed, err := c.SetPossibleStates(voxel.SetOf(1, 2)); changed || err != nil {
		t.Fatalf("narrowing that keeps the collapsed state must be a no-op: %v %v", changed, err)
	}
	if _, err := c.SetPossibleStates(voxel.SetOf(2)); !errors.Is(err, ErrAlreadyCollapsed) {
		t.Fatalf("narrowing away the collapsed state must fail, got %v", err)
	}
}

func TestChunk_FaceOrderPairsAcrossSeam(t *testing.T) {
	ft := newFaceTable(4)
	a := newChunk(voxel.ChunkKey{}, ft, 1, 1)
	b := newChunk(voxel.ChunkKey{X: 1}, ft, 2, 2)
	for _, d := range voxel.AllDirections {
		mine, theirs := ft.cells[d], ft.cells[d.Opposite()]
		if len(mine) != 16 || len(theirs) != 16 {
			t.Fatalf("face %s has %d cells", d, len(mine))
		}
		for i := range mine {
			pa := a.CellAt(mine[i]).Pos
			pb := b.CellAt(theirs[i]).Pos
			if pa.Add(d.Offset()) != wrapPos(pb, d, 4) {
				t.Fatalf("face %s index %d pairs %s with %s", d, i, pa, pb)
			}
			if ft.faceIndex(d, pa) != i {
				t.Fatalf("faceIndex(%s, %s)=%d want %d", d, pa, ft.faceIndex(d, pa), i)
			}
			if !a.CellAt(mine[i]).BoundaryDirs().Has(d) {
				t.Fatalf("cell %s missing boundary flag %s", pa, d)
			}
		}
	}
	if a.CellAt(a.index(voxel.Vec3i{X: 1, Y: 1, Z: 1})).IsBoundary() {
		t.Fatalf("interior cell flagged as boundary")
	}
	corner := a.Cell(voxel.Vec3i{})
	if got := corner.BoundaryDirs().Directions(); len(got) != 3 {
		t.Fatalf("corner lies on %d faces", len(got))
	}
}

// wrapPos expresses neighbour-local p in the coordinates of the chunk on side -d.
func wrapPos(p voxel.Vec3i, d voxel.Direction, size int) voxel.Vec3i {
	return p.Add(d.Offset().Scale(size))
}

func TestChunk_ApplyLOD(t *testing.T) {
	e := newTestEngine(t, testTuning(4, 4), defaultRules(t, 4), nil, rolesAirGround())
	c, err := e.CreateChunk(voxel.ChunkKey{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.ConstraintInfluence != 1 || c.MaxIterations != 64*4 {
		t.Fatalf("lod0: influence=%v iterations=%d", c.ConstraintInfluence, c.MaxIterations)
	}
	e.SetLOD(c, 2)
	if c.ConstraintInfluence != 0.5 || c.MaxIterations != 103 {
		t.Fatalf("lod2: influence=%v iterations=%d", c.ConstraintInfluence, c.MaxIterations)
	}
	e.SetLOD(c, 10)
	if c.ConstraintInfluence != 0.25 || c.MaxIterations != 52 {
		t.Fatalf("lod10: influence=%v iterations=%d", c.ConstraintInfluence, c.MaxIterations)
	}
}
