package wfc

import "voxelwfc.ai/internal/sim/voxel"

// BoundaryBuffer pairs the owner's cells on face Dir with mirror cells holding the
// best-known state of the adjacent chunk's cells across that face. Both lists share
// the canonical face order, so entry i of this buffer and entry i of the paired
// buffer describe the same two cells.
type BoundaryBuffer struct {
	Dir      voxel.Direction
	Owner    voxel.ChunkKey
	Adjacent voxel.ChunkKey

	owner    *Chunk
	indices  []int
	mirrors  []Cell
	detached bool
}

func newBoundaryBuffer(owner *Chunk, d voxel.Direction, adj *Chunk) *BoundaryBuffer {
	indices := owner.faces.cells[d]
	src := adj.faces.cells[d.Opposite()]
	b := &BoundaryBuffer{
		Dir:      d,
		Owner:    owner.Key,
		Adjacent: adj.Key,
		owner:    owner,
		indices:  indices,
		mirrors:  make([]Cell, len(src)),
	}
	for i, j := range src {
		b.mirrors[i] = adj.cells[j]
	}
	return b
}

func (b *BoundaryBuffer) Len() int { return len(b.indices) }

// BoundaryCell is the owner's real cell at face position i.
func (b *BoundaryBuffer) BoundaryCell(i int) *Cell { return &b.owner.cells[b.indices[i]] }

// Mirror is the synthetic copy of the adjacent chunk's cell at face position i.
func (b *BoundaryBuffer) Mirror(i int) *Cell { return &b.mirrors[i] }

// CellIndex is the owner's cell index at face position i.
func (b *BoundaryBuffer) CellIndex(i int) int { return b.indices[i] }

// Detached reports whether the adjacent chunk was unloaded. A detached buffer keeps
// its last known mirrors but is no longer synchronised.
func (b *BoundaryBuffer) Detached() bool { return b.detached }

// mirror narrows mc towards src by intersection. It never widens mc.
func mirror(mc *Cell, src *Cell) bool {
	if s, ok := src.Collapsed(); ok {
		if mc.collapsed || !mc.possible.Has(s) {
			return false
		}
		_ = mc.Collapse(s)
		return true
	}
	changed, err := mc.SetPossibleStates(src.possible)
	return err == nil && changed
}
