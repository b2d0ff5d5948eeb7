package wfc

import "voxelwfc.ai/internal/sim/voxel"

// BoundaryManager keeps the two buffers of every shared face in step. It is the only
// code that touches cells of a chunk on behalf of another chunk, and it checks the
// neighbour is still loaded before every touch.
type BoundaryManager struct {
	e *Engine
}

// pair resolves the neighbour across face d of c and both buffers of the seam.
func (m *BoundaryManager) pair(c *Chunk, d voxel.Direction) (*Chunk, *BoundaryBuffer, *BoundaryBuffer) {
	buf := c.buffers[d]
	if buf == nil || buf.detached {
		return nil, nil, nil
	}
	n := m.e.chunks[buf.Adjacent]
	if n == nil {
		return nil, nil, nil
	}
	other := n.buffers[d.Opposite()]
	if other == nil || other.detached {
		return nil, nil, nil
	}
	return n, buf, other
}

func (m *BoundaryManager) InitializeBoundaryBuffers(c *Chunk) int {
	e := m.e
	if e.chunks[c.Key] != c {
		return 0
	}
	// Every face is buffered before any seam is synchronised: a cell collapsed
	// across one seam must already see the neighbours on its other faces.
	for _, d := range voxel.AllDirections {
		if !c.links.Has(d) {
			continue
		}
		n := e.chunks[c.Key.Add(d.Offset())]
		if n == nil {
			c.links = c.links.Without(d)
			continue
		}
		opp := d.Opposite()
		c.buffers[d] = newBoundaryBuffer(c, d, n)
		n.buffers[opp] = newBoundaryBuffer(n, opp, c)
		n.links = n.links.With(opp)
	}
	mutations := 0
	for _, d := range voxel.AllDirections {
		if c.links.Has(d) {
			mutations += m.SynchronizeBuffer(c, d)
		}
	}
	return mutations
}

// SynchronizeBuffer runs the seam on face d of c to a fixed point and returns the
// number of mutations. A second call without intervening changes returns 0.
func (m *BoundaryManager) SynchronizeBuffer(c *Chunk, d voxel.Direction) int {
	if !d.Valid() || m.e.chunks[c.Key] != c {
		return 0
	}
	n, buf, other := m.pair(c, d)
	if n == nil {
		return 0
	}
	e := m.e
	opp := d.Opposite()
	total := 0
	for {
		changed := 0
		for i := range buf.indices {
			ai, bi := buf.indices[i], other.indices[i]
			a, b := &c.cells[ai], &n.cells[bi]
			if ok, _ := e.narrow(n, bi, e.rules.Support(a.possible, d)); ok {
				changed++
			}
			if ok, _ := e.narrow(c, ai, e.rules.Support(b.possible, opp)); ok {
				changed++
			}
			if m.collapseAcross(c, ai, n, bi, d) {
				changed++
			}
			if m.collapseAcross(n, bi, c, ai, opp) {
				changed++
			}
			if mirror(&other.mirrors[i], a) {
				changed++
			}
			if mirror(&buf.mirrors[i], b) {
				changed++
			}
		}
		if changed == 0 {
			break
		}
		total += changed
	}
	e.stats.SeamMutations += uint64(total)
	return total
}

// reflect copies the current state of boundary cell idx of c into the mirrors the
// neighbours keep of it. Mirrors only ever shrink.
func (m *BoundaryManager) reflect(c *Chunk, idx int) {
	cell := &c.cells[idx]
	for _, d := range cell.boundary.Directions() {
		n, _, other := m.pair(c, d)
		if n == nil {
			continue
		}
		if mirror(&other.mirrors[c.faces.faceIndex(d, cell.Pos)], cell) {
			m.e.stats.SeamMutations++
		}
	}
}

// propagate mirrors a change of boundary cell idx on face d of c into the
// neighbour: its mirror shrinks by intersection, its real cell is narrowed by
// support and, if idx collapsed, collapsed in turn.
func (m *BoundaryManager) propagate(c *Chunk, idx int, d voxel.Direction) {
	n, _, other := m.pair(c, d)
	if n == nil {
		return
	}
	e := m.e
	src := &c.cells[idx]
	i := c.faces.faceIndex(d, src.Pos)
	j := other.indices[i]
	if mirror(&other.mirrors[i], src) {
		e.stats.SeamMutations++
	}
	changed, conflict := e.narrow(n, j, e.rules.Support(src.possible, d))
	if conflict {
		n.Conflicts++
		e.stats.Conflicts++
	}
	if changed {
		e.stats.SeamMutations++
	}
	if m.collapseAcross(c, idx, n, j, d) {
		e.stats.SeamMutations++
	}
}

// collapseAcross collapses dst (cell j of n) when src (cell i of c, on side d of
// which dst lies) is collapsed and dst is fully compatible with it.
func (m *BoundaryManager) collapseAcross(c *Chunk, i int, n *Chunk, j int, d voxel.Direction) bool {
	e := m.e
	if !e.cfg.Boundary.CollapseAcrossSeam {
		return false
	}
	src, dst := &c.cells[i], &n.cells[j]
	if !src.collapsed || dst.collapsed {
		return false
	}
	if !dst.possible.SubsetOf(e.rules.Allowed(src.state, d)) {
		return false
	}
	before := dst.possible
	s, tier := e.chooseState(n, j)
	if err := dst.Collapse(s); err != nil {
		return false
	}
	e.stats.SeamCollapses++
	e.afterCollapse(n, tier)
	e.push(n, j, before)
	return true
}
