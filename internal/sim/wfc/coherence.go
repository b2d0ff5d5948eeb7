package wfc

import (
	"fmt"
	"math"

	"voxelwfc.ai/internal/sim/voxel"
)

// SeamReport scores one shared face. It is read-only instrumentation.
type SeamReport struct {
	Chunk voxel.ChunkKey
	Dir   voxel.Direction
	Pairs int
	// Conflicts counts pairs whose sets admit no compatible combination.
	Conflicts int
	// Unresolved counts pairs with at least one uncollapsed side.
	Unresolved int
	// Entropy is the Shannon entropy, in bits, of collapsed states on both faces.
	Entropy float64
	// Smoothness is the share of fully collapsed pairs that carry the same state.
	Smoothness float64
}

// ScoreSeam reads the boundary cell pairs between c and its neighbour across d.
func (e *Engine) ScoreSeam(c *Chunk, d voxel.Direction) (SeamReport, error) {
	rep := SeamReport{Chunk: c.Key, Dir: d}
	if !d.Valid() {
		return rep, fmt.Errorf("wfc: invalid direction %d", d)
	}
	n := e.chunks[c.Key.Add(d.Offset())]
	if n == nil {
		return rep, fmt.Errorf("%w: %s", ErrChunkNotFound, c.Key.Add(d.Offset()))
	}
	mine := c.faces.cells[d]
	theirs := n.faces.cells[d.Opposite()]
	var counts [voxel.MaxStates]int
	seen, same, resolved := 0, 0, 0
	for i := range mine {
		a, b := &c.cells[mine[i]], &n.cells[theirs[i]]
		rep.Pairs++
		if e.rules.Support(a.possible, d).Intersect(b.possible).IsEmpty() {
			rep.Conflicts++
		}
		sa, oka := a.Collapsed()
		sb, okb := b.Collapsed()
		if oka {
			counts[sa]++
			seen++
		}
		if okb {
			counts[sb]++
			seen++
		}
		if !oka || !okb {
			rep.Unresolved++
			continue
		}
		resolved++
		if sa == sb {
			same++
		}
	}
	for _, k := range counts {
		if k == 0 {
			continue
		}
		p := float64(k) / float64(seen)
		rep.Entropy -= p * math.Log2(p)
	}
	if resolved > 0 {
		rep.Smoothness = float64(same) / float64(resolved)
	}
	return rep, nil
}
