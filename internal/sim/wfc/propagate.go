package wfc

import "voxelwfc.ai/internal/sim/voxel"

// live resolves an event's chunk, rejecting events whose chunk was unloaded or
// replaced by a newer instance.
func (e *Engine) live(ev *PropagationEvent) *Chunk {
	c := e.chunks[ev.Chunk]
	if c == nil || c.instance != ev.Instance {
		return nil
	}
	return c
}

func (e *Engine) processEvent(ev *PropagationEvent) {
	c := e.live(ev)
	if c == nil {
		e.stats.StaleEvents++
		return
	}
	e.stats.EventsProcessed++
	cell := &c.cells[ev.Index]
	if !cell.collapsed {
		s, tier, ok := voxel.StateID(0), TierForced, false
		if s, ok = cell.possible.Single(); !ok {
			s, tier, ok = e.shortcut(c, ev.Index)
		}
		if ok && cell.Collapse(s) == nil {
			e.afterCollapse(c, tier)
			if cell.IsBoundary() {
				e.boundary.reflect(c, ev.Index)
			}
		}
	}
	e.propagateFrom(c, ev.Index)
}

// propagateFrom narrows the six neighbours of cell idx to what its current set
// supports. Neighbours across a face are handed to the boundary manager.
func (e *Engine) propagateFrom(c *Chunk, idx int) {
	cell := &c.cells[idx]
	set := cell.possible
	for _, d := range voxel.AllDirections {
		np := cell.Pos.Add(d.Offset())
		if !c.InBounds(np) {
			e.boundary.propagate(c, idx, d)
			continue
		}
		if _, conflict := e.narrow(c, c.index(np), e.rules.Support(set, d)); conflict {
			c.Conflicts++
			e.stats.Conflicts++
		}
	}
}

// narrow intersects cell idx of c with allowed and queues it when it shrank. A
// narrowing that would empty the cell, or that contradicts a collapsed cell, is
// skipped and reported as a conflict.
func (e *Engine) narrow(c *Chunk, idx int, allowed voxel.StateSet) (changed, conflict bool) {
	n := &c.cells[idx]
	if n.collapsed {
		return false, !allowed.Has(n.state)
	}
	next := n.possible.Intersect(allowed)
	if next == n.possible {
		return false, false
	}
	if next.IsEmpty() {
		return false, true
	}
	before := n.possible
	n.possible = next
	c.Dirty = true
	e.push(c, idx, before)
	return true, false
}
