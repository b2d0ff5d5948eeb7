package wfc

import (
	"fmt"

	"voxelwfc.ai/internal/sim/voxel"
)

// Violation is a pair of collapsed neighbours the rule table forbids.
type Violation struct {
	Chunk voxel.ChunkKey
	Pos   voxel.Vec3i
	Dir   voxel.Direction
	A, B  voxel.StateID
	// Across is set when the neighbour lives in the adjacent chunk.
	Across bool
}

func (v Violation) String() string {
	return fmt.Sprintf("chunk %s cell %s %s: %d next to %d (across=%v)", v.Chunk, v.Pos, v.Dir, v.A, v.B, v.Across)
}

// Validate checks every collapsed cell of c against its collapsed neighbours,
// including those across loaded seams. Any result is a propagation bug.
func (e *Engine) Validate(c *Chunk) []Violation {
	if c == nil || e.rules == nil {
		return nil
	}
	var out []Violation
	for i := range c.cells {
		cell := &c.cells[i]
		a, ok := cell.Collapsed()
		if !ok {
			continue
		}
		for _, d := range voxel.AllDirections {
			np := cell.Pos.Add(d.Offset())
			var (
				nb     *Cell
				across bool
			)
			if c.InBounds(np) {
				nb = &c.cells[c.index(np)]
			} else if n := e.chunks[c.Key.Add(d.Offset())]; n != nil {
				wrapped := voxel.Vec3i{X: wrap(np.X, c.Size), Y: wrap(np.Y, c.Size), Z: wrap(np.Z, c.Size)}
				nb, across = &n.cells[n.index(wrapped)], true
			}
			if nb == nil {
				continue
			}
			b, ok := nb.Collapsed()
			if !ok {
				continue
			}
			if !e.rules.AreCompatible(a, b, d) {
				out = append(out, Violation{Chunk: c.Key, Pos: cell.Pos, Dir: d, A: a, B: b, Across: across})
			}
		}
	}
	return out
}

func wrap(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}
