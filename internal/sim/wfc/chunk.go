package wfc

import (
	"fmt"
	"math"
	"math/rand"

	"voxelwfc.ai/internal/sim/tuning"
	"voxelwfc.ai/internal/sim/voxel"
	"voxelwfc.ai/internal/sim/wfc/bias"
)

type ChunkState uint8

const (
	ChunkCreated ChunkState = iota
	ChunkGenerating
	ChunkComplete
	ChunkBestEffort
	ChunkUnloaded
)

func (s ChunkState) String() string {
	switch s {
	case ChunkCreated:
		return "CREATED"
	case ChunkGenerating:
		return "GENERATING"
	case ChunkComplete:
		return "COMPLETE"
	case ChunkBestEffort:
		return "BEST_EFFORT"
	case ChunkUnloaded:
		return "UNLOADED"
	}
	return fmt.Sprintf("STATE_%d", uint8(s))
}

// Chunk is a size^3 block of cells, stored x fastest, then z, then y.
// Neighbours are addressed by key through the engine's arena, never by pointer.
type Chunk struct {
	Key  voxel.ChunkKey
	Size int

	cells   []Cell
	faces   *faceTable
	links   voxel.DirMask
	buffers [voxel.NumDirections]*BoundaryBuffer

	FullyCollapsed bool
	BestEffort     bool
	// Dirty is set on every cell mutation; mesh consumers clear it.
	Dirty    bool
	Priority float64

	ConstraintInfluence float64
	MaxIterations       int
	Iterations          int
	Conflicts           int
	LOD                 int

	state       ChunkState
	instance    uint64
	uncollapsed int
	rng         *rand.Rand
	cache       *bias.Cache
}

func newChunk(key voxel.ChunkKey, faces *faceTable, instance uint64, seed int64) *Chunk {
	n := faces.size
	c := &Chunk{
		Key:                 key,
		Size:                n,
		cells:               make([]Cell, n*n*n),
		faces:               faces,
		ConstraintInfluence: 1,
		instance:            instance,
		rng:                 rand.New(rand.NewSource(seed)),
	}
	for i := range c.cells {
		p := c.pos(i)
		c.cells[i].Pos = p
		c.cells[i].boundary = faces.boundaryMask(p)
	}
	return c
}

func (c *Chunk) index(p voxel.Vec3i) int { return p.X + c.Size*(p.Z+c.Size*p.Y) }

func (c *Chunk) pos(i int) voxel.Vec3i {
	n := c.Size
	return voxel.Vec3i{X: i % n, Z: (i / n) % n, Y: i / (n * n)}
}

func (c *Chunk) InBounds(p voxel.Vec3i) bool {
	return p.X >= 0 && p.Y >= 0 && p.Z >= 0 && p.X < c.Size && p.Y < c.Size && p.Z < c.Size
}

// Cell returns the cell at local position p, or nil outside the chunk.
func (c *Chunk) Cell(p voxel.Vec3i) *Cell {
	if !c.InBounds(p) {
		return nil
	}
	return &c.cells[c.index(p)]
}

func (c *Chunk) CellAt(i int) *Cell { return &c.cells[i] }

func (c *Chunk) CellCount() int { return len(c.cells) }

// Origin is the world position of local (0,0,0).
func (c *Chunk) Origin() voxel.Vec3i { return c.Key.Scale(c.Size) }

func (c *Chunk) WorldPos(i int) voxel.Vec3i { return c.Origin().Add(c.cells[i].Pos) }

func (c *Chunk) State() ChunkState { return c.state }

// Neighbor returns the key across face d and whether it is linked.
func (c *Chunk) Neighbor(d voxel.Direction) (voxel.ChunkKey, bool) {
	return c.Key.Add(d.Offset()), c.links.Has(d)
}

func (c *Chunk) Buffer(d voxel.Direction) *BoundaryBuffer {
	if !d.Valid() {
		return nil
	}
	return c.buffers[d]
}

// Uncollapsed counts cells that have not been resolved yet.
func (c *Chunk) Uncollapsed() int { return c.uncollapsed }

// InitializeCells resets every cell to allowed. This is the only way to widen a cell.
func (c *Chunk) InitializeCells(allowed voxel.StateSet) {
	for i := range c.cells {
		c.cells[i].reset(allowed)
	}
	c.uncollapsed = len(c.cells)
	c.FullyCollapsed = false
	c.BestEffort = false
	c.Iterations = 0
	c.Conflicts = 0
	c.Dirty = true
	if c.cache != nil {
		c.cache.Reset()
	}
}

// Restore replaces cell contents from persisted sets. collapsed[i] marks cells whose
// single-member set is a resolved state.
func (c *Chunk) Restore(possible []voxel.StateSet, collapsed []bool) error {
	if len(possible) != len(c.cells) || len(collapsed) != len(c.cells) {
		return fmt.Errorf("chunk %s: restore with %d/%d cells, want %d", c.Key, len(possible), len(collapsed), len(c.cells))
	}
	c.InitializeCells(0)
	c.uncollapsed = 0
	for i, set := range possible {
		if set.IsEmpty() {
			return fmt.Errorf("chunk %s: cell %d restored empty", c.Key, i)
		}
		cell := &c.cells[i]
		cell.possible = set
		if s, ok := set.Single(); ok && collapsed[i] {
			cell.collapsed, cell.state = true, s
			continue
		}
		c.uncollapsed++
	}
	return nil
}

// ApplyLOD scales bias strength and the collapse budget by distance level.
func (c *Chunk) ApplyLOD(level int, lod tuning.LOD, iterationsPerCell float64) {
	if level < 0 {
		level = 0
	}
	c.LOD = level
	c.ConstraintInfluence = math.Max(1-float64(level)*lod.InfluencePerLevel, lod.MinInfluence)
	scale := math.Max(1-float64(level)*lod.IterationsPerLevel, lod.MinIterationScale)
	c.MaxIterations = int(math.Ceil(float64(len(c.cells)) * iterationsPerCell * scale))
}

// States returns the collapsed state per cell, or -1 for unresolved cells.
func (c *Chunk) States() []int {
	out := make([]int, len(c.cells))
	for i := range c.cells {
		if s, ok := c.cells[i].Collapsed(); ok {
			out[i] = int(s)
		} else {
			out[i] = -1
		}
	}
	return out
}

// PossibleSets copies every cell's possible set.
func (c *Chunk) PossibleSets() []voxel.StateSet {
	out := make([]voxel.StateSet, len(c.cells))
	for i := range c.cells {
		out[i] = c.cells[i].possible
	}
	return out
}

// faceTable lists, per direction, the cell indices on that face in canonical (u,v)
// order: X faces iterate y then z, Y faces z then x, Z faces y then x. Index i on a
// face therefore pairs with index i on the opposite face of the neighbour.
type faceTable struct {
	size  int
	cells [voxel.NumDirections][]int
}

func newFaceTable(size int) *faceTable {
	ft := &faceTable{size: size}
	idx := func(x, y, z int) int { return x + size*(z+size*y) }
	last := size - 1
	for _, d := range voxel.AllDirections {
		out := make([]int, 0, size*size)
		for u := 0; u < size; u++ {
			for v := 0; v < size; v++ {
				switch d {
				case voxel.PosX:
					out = append(out, idx(last, u, v))
				case voxel.NegX:
					out = append(out, idx(0, u, v))
				case voxel.PosY:
					out = append(out, idx(v, last, u))
				case voxel.NegY:
					out = append(out, idx(v, 0, u))
				case voxel.PosZ:
					out = append(out, idx(v, u, last))
				case voxel.NegZ:
					out = append(out, idx(v, u, 0))
				}
			}
		}
		ft.cells[d] = out
	}
	return ft
}

// faceIndex is the position of local p within face d's canonical ordering.
func (ft *faceTable) faceIndex(d voxel.Direction, p voxel.Vec3i) int {
	switch d {
	case voxel.PosX, voxel.NegX:
		return p.Y*ft.size + p.Z
	case voxel.PosY, voxel.NegY:
		return p.Z*ft.size + p.X
	default:
		return p.Y*ft.size + p.X
	}
}

func (ft *faceTable) boundaryMask(p voxel.Vec3i) voxel.DirMask {
	var m voxel.DirMask
	last := ft.size - 1
	if p.X == last {
		m = m.With(voxel.PosX)
	}
	if p.X == 0 {
		m = m.With(voxel.NegX)
	}
	if p.Y == last {
		m = m.With(voxel.PosY)
	}
	if p.Y == 0 {
		m = m.With(voxel.NegY)
	}
	if p.Z == last {
		m = m.With(voxel.PosZ)
	}
	if p.Z == 0 {
		m = m.With(voxel.NegZ)
	}
	return m
}
