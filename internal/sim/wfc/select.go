package wfc

import "voxelwfc.ai/internal/sim/wfc/bias"

// influence is the cached per-state bias at cell idx of c.
func (e *Engine) influence(c *Chunk, idx int) []float64 {
	return c.cache.Get(idx, c.WorldPos(idx).Center())
}

// tierFactor maps the strongest |bias| onto the configured entropy discount.
func (e *Engine) tierFactor(maxAbs float64) float64 {
	for _, t := range e.cfg.Engine.EntropyTiers {
		if maxAbs > t.Above {
			return t.Factor
		}
	}
	return 1
}

// effectiveEntropy is |possible| discounted by bias strength (scaled by the chunk's
// constraint influence) and by the boundary coherence weight. Single-state cells
// that are not collapsed yet score 0 so they resolve first.
func (e *Engine) effectiveEntropy(c *Chunk, idx int) float64 {
	cell := &c.cells[idx]
	n := cell.Entropy()
	if n <= 1 {
		return 0
	}
	f := e.tierFactor(bias.MaxAbs(e.influence(c, idx)))
	f = 1 - (1-f)*c.ConstraintInfluence
	h := float64(n) * f
	if cell.IsBoundary() {
		h *= e.cfg.Boundary.CoherenceWeight
	}
	return h
}

// selectCell scans chunks in the given order and cells by index, returning the
// uncollapsed cell with the lowest effective entropy. Ties go to the cell nearest
// the viewer; exact ties keep the first one found.
func (e *Engine) selectCell(chunks []*Chunk) (*Chunk, int, bool) {
	var (
		best     *Chunk
		bestIdx  int
		bestH    float64
		bestDist float64
	)
	for _, c := range chunks {
		if c.FullyCollapsed {
			continue
		}
		for i := range c.cells {
			if c.cells[i].collapsed {
				continue
			}
			h := e.effectiveEntropy(c, i)
			if best != nil && h > bestH {
				continue
			}
			d := c.WorldPos(i).Center().Sub(e.viewer)
			dist := d.Dot(d)
			if best == nil || h < bestH || dist < bestDist {
				best, bestIdx, bestH, bestDist = c, i, h, dist
			}
		}
	}
	return best, bestIdx, best != nil
}
