package wfc

import (
	"math"
	"math/rand"

	"voxelwfc.ai/internal/sim/mathx"
	"voxelwfc.ai/internal/sim/voxel"
)

// Tier records which rule decided a collapse.
type Tier uint8

const (
	TierForced Tier = iota
	TierHeight
	TierDominance
	TierWeighted
)

func (t Tier) String() string {
	switch t {
	case TierForced:
		return "forced"
	case TierHeight:
		return "height"
	case TierDominance:
		return "dominance"
	case TierWeighted:
		return "weighted"
	}
	return "unknown"
}

// chooseState picks the state cell idx of c collapses to: height override, then
// dominant bias, then a weighted draw. Candidates that would leave a neighbour
// with nothing are dropped whenever a safe alternative exists.
func (e *Engine) chooseState(c *Chunk, idx int) (voxel.StateID, Tier) {
	cands := e.safeCandidates(c, idx)
	if s, ok := cands.Single(); ok {
		return s, TierForced
	}
	b := e.influence(c, idx)
	if s, ok := e.heightOverride(c, idx, cands, b); ok {
		return s, TierHeight
	}
	if s, ok := e.dominant(c, cands, b); ok {
		return s, TierDominance
	}
	return SelectWeighted(c.rng, cands, b, e.weights, e.cfg.Engine.MinWeight), TierWeighted
}

// shortcut applies only the deterministic tiers. Event processing uses it to resolve
// narrowed cells without a random draw.
func (e *Engine) shortcut(c *Chunk, idx int) (voxel.StateID, Tier, bool) {
	cands := e.safeCandidates(c, idx)
	b := e.influence(c, idx)
	if s, ok := e.heightOverride(c, idx, cands, b); ok {
		return s, TierHeight, true
	}
	if s, ok := e.dominant(c, cands, b); ok {
		return s, TierDominance, true
	}
	return 0, 0, false
}

// safeCandidates filters the cell's possible states down to those every neighbour
// (in-chunk cell or boundary mirror) can still accommodate.
func (e *Engine) safeCandidates(c *Chunk, idx int) voxel.StateSet {
	cell := &c.cells[idx]
	all := cell.possible
	var safe voxel.StateSet
	for _, s := range all.States() {
		ok := true
		for _, d := range voxel.AllDirections {
			n := e.neighborView(c, cell.Pos, d)
			if n == nil {
				continue
			}
			if e.rules.Allowed(s, d).Intersect(n.possible).IsEmpty() {
				ok = false
				break
			}
		}
		if ok {
			safe = safe.With(s)
		}
	}
	if safe.IsEmpty() {
		return all
	}
	return safe
}

// neighborView is the best local knowledge of the cell on side d of p: the real
// cell inside the chunk, the buffer mirror across a buffered face, the real cell
// of a loaded neighbour whose buffer is not built yet, or nil.
func (e *Engine) neighborView(c *Chunk, p voxel.Vec3i, d voxel.Direction) *Cell {
	np := p.Add(d.Offset())
	if c.InBounds(np) {
		return &c.cells[c.index(np)]
	}
	if buf := c.buffers[d]; buf != nil && !buf.detached {
		return &buf.mirrors[c.faces.faceIndex(d, p)]
	}
	n := e.chunks[c.Key.Add(d.Offset())]
	if n == nil || n == c {
		return nil
	}
	local := voxel.Vec3i{X: mathx.Mod(np.X, n.Size), Y: mathx.Mod(np.Y, n.Size), Z: mathx.Mod(np.Z, n.Size)}
	return &n.cells[n.index(local)]
}

// normalizedHeight maps a cell centre onto [0,1] across the configured world band.
func (e *Engine) normalizedHeight(c *Chunk, idx int) (float64, bool) {
	if e.cfg.WorldHeight <= 0 {
		return 0, false
	}
	y := float64(c.WorldPos(idx).Y) + 0.5
	return (y - float64(e.cfg.WorldMinY)) / float64(e.cfg.WorldHeight), true
}

func (e *Engine) heightOverride(c *Chunk, idx int, cands voxel.StateSet, b []float64) (voxel.StateID, bool) {
	ho := e.cfg.Engine.HeightOverride
	if !ho.Enabled {
		return 0, false
	}
	h, ok := e.normalizedHeight(c, idx)
	if !ok {
		return 0, false
	}
	var forced voxel.StateID
	switch {
	case h > ho.Upper:
		forced = e.roles.Air
	case h < ho.Lower:
		forced = e.solidFor(b)
	default:
		return 0, false
	}
	if !cands.Has(forced) {
		return 0, false
	}
	return forced, true
}

// solidFor picks ground unless rock or water carries a strictly stronger bias.
func (e *Engine) solidFor(b []float64) voxel.StateID {
	best := e.roles.Ground
	bestBias := biasOf(b, best)
	if e.roles.HasRock && biasOf(b, e.roles.Rock) > bestBias {
		best, bestBias = e.roles.Rock, biasOf(b, e.roles.Rock)
	}
	if e.roles.HasWater && biasOf(b, e.roles.Water) > bestBias {
		best = e.roles.Water
	}
	return best
}

func biasOf(b []float64, id voxel.StateID) float64 {
	if int(id) < len(b) {
		return b[id]
	}
	return 0
}

// DominanceThreshold interpolates between weak (no bias) and strong (full bias)
// by maxAbs scaled with the chunk's constraint influence.
func DominanceThreshold(weak, strong, maxAbs, influence float64) float64 {
	return mathx.Lerp(weak, strong, maxAbs*influence)
}

func (e *Engine) dominant(c *Chunk, cands voxel.StateSet, b []float64) (voxel.StateID, bool) {
	eng := e.cfg.Engine
	if !eng.DominanceEnabled || cands.Len() < 2 || b == nil {
		return 0, false
	}
	var (
		total, maxW, maxAbs float64
		best                voxel.StateID
	)
	for _, s := range cands.States() {
		v := biasOf(b, s)
		if math.Abs(v) > maxAbs {
			maxAbs = math.Abs(v)
		}
		w := weight(v, priorOf(e.weights, s), eng.MinWeight)
		total += w
		if w > maxW {
			maxW, best = w, s
		}
	}
	if total <= 0 || maxAbs == 0 {
		return 0, false
	}
	if maxW/total > DominanceThreshold(eng.DominanceWeak, eng.DominanceStrong, maxAbs, c.ConstraintInfluence) {
		return best, true
	}
	return 0, false
}

// weight is prior * 2^(2b) floored at floor.
func weight(b, prior, floor float64) float64 {
	return math.Max(prior*math.Pow(2, 2*b), floor)
}

func priorOf(prior []float64, id voxel.StateID) float64 {
	if int(id) < len(prior) && prior[id] > 0 {
		return prior[id]
	}
	return 1
}

// SelectWeighted draws one state from cands with probability proportional to
// prior * 2^(2*bias), each weight floored at minWeight. With neither bias nor
// prior, or with unusable values, it falls back to a uniform draw.
func SelectWeighted(rng *rand.Rand, cands voxel.StateSet, b, prior []float64, minWeight float64) voxel.StateID {
	states := cands.States()
	if len(states) == 0 {
		return 0
	}
	if len(states) == 1 {
		return states[0]
	}
	if b == nil && prior == nil {
		return states[rng.Intn(len(states))]
	}
	weights := make([]float64, len(states))
	total := 0.0
	for i, s := range states {
		w := weight(biasOf(b, s), priorOf(prior, s), minWeight)
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return states[rng.Intn(len(states))]
		}
		weights[i] = w
		total += w
	}
	if !(total > 0) || math.IsInf(total, 0) {
		return states[rng.Intn(len(states))]
	}
	r := rng.Float64() * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r < acc {
			return states[i]
		}
	}
	return states[len(states)-1]
}
