// Package wfc is the incremental wave function collapse solver: cells, chunks,
// the propagation queue and the boundary buffers that keep chunk seams coherent.
//
// An Engine is not safe for concurrent use. It is owned by a single goroutine and
// every cell mutation happens on it.
package wfc

import (
	"fmt"
	"io"
	"log"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"voxelwfc.ai/internal/sim/catalogs"
	"voxelwfc.ai/internal/sim/mathx"
	"voxelwfc.ai/internal/sim/tuning"
	"voxelwfc.ai/internal/sim/voxel"
	"voxelwfc.ai/internal/sim/wfc/bias"
	"voxelwfc.ai/internal/sim/wfc/rules"
)

type Config struct {
	Tuning tuning.Tuning
	// Roles names the air and solid states used by the height override.
	Roles catalogs.Roles
	// Weights is a per-state base weight multiplied into every draw. Nil or
	// non-positive entries count as 1.
	Weights []float64
	Logger  *log.Logger
}

type Stats struct {
	EventsProcessed    uint64
	StaleEvents        uint64
	Collapses          uint64
	HeightOverrides    uint64
	DominanceCollapses uint64
	WeightedDraws      uint64
	SeamCollapses      uint64
	SeamMutations      uint64
	Conflicts          uint64
	ChunksComplete     uint64
	ChunksBestEffort   uint64
}

// StepResult summarises one Step.
type StepResult struct {
	Events    int
	Collapses int
	// Selected is set when the queue ran dry without progress and a fresh
	// lowest-entropy cell was collapsed.
	Selected bool
	Pending  int
}

type Engine struct {
	cfg     tuning.Tuning
	roles   catalogs.Roles
	weights []float64
	logger  *log.Logger

	rules       *rules.Table
	constraints *bias.System
	numStates   int
	allowed     voxel.StateSet
	connected   bool

	faces        *faceTable
	chunks       map[voxel.ChunkKey]*Chunk
	nextInstance uint64

	queue eventQueue
	seq   uint64

	viewer    mgl64.Vec3
	observers []ChunkObserver
	boundary  *BoundaryManager
	stats     Stats
}

// New validates the configuration. The engine is unusable until Connect.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("wfc: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	e := &Engine{
		cfg:     cfg.Tuning,
		roles:   cfg.Roles,
		weights: cfg.Weights,
		logger:  logger,
		faces:   newFaceTable(cfg.Tuning.ChunkSize),
		chunks:  map[voxel.ChunkKey]*Chunk{},
	}
	e.boundary = &BoundaryManager{e: e}
	return e, nil
}

// Connect wires the rule table and constraint system. A nil constraint system means
// no bias anywhere.
func (e *Engine) Connect(rt *rules.Table, constraints *bias.System) error {
	if rt == nil {
		return fmt.Errorf("wfc: connect: missing adjacency rules")
	}
	n := rt.NumStates()
	if n < 2 || n > e.cfg.MaxStates {
		return fmt.Errorf("wfc: connect: rule table has %d states, max_states=%d", n, e.cfg.MaxStates)
	}
	r := e.roles
	for _, id := range []voxel.StateID{r.Air, r.Ground} {
		if int(id) >= n {
			return fmt.Errorf("wfc: connect: role state %d out of range for %d states", id, n)
		}
	}
	if (r.HasRock && int(r.Rock) >= n) || (r.HasWater && int(r.Water) >= n) {
		return fmt.Errorf("wfc: connect: solid role out of range for %d states", n)
	}
	if err := rt.CheckSymmetry(); err != nil {
		return fmt.Errorf("wfc: connect: %w", err)
	}
	if constraints == nil {
		constraints = bias.NewSystem()
	}
	e.rules = rt
	e.constraints = constraints
	e.numStates = n
	e.allowed = voxel.FullSet(n)
	e.connected = true
	return nil
}

func (e *Engine) Connected() bool { return e.connected }

func (e *Engine) Rules() *rules.Table { return e.rules }

func (e *Engine) Constraints() *bias.System { return e.constraints }

func (e *Engine) Boundary() *BoundaryManager { return e.boundary }

func (e *Engine) Tuning() tuning.Tuning { return e.cfg }

func (e *Engine) NumStates() int { return e.numStates }

func (e *Engine) Stats() Stats { return e.stats }

// SetViewer moves the reference point used to break entropy ties.
func (e *Engine) SetViewer(p mgl64.Vec3) { e.viewer = p }

func (e *Engine) Viewer() mgl64.Vec3 { return e.viewer }

// CreateChunk allocates a chunk at pos with every cell holding every state.
func (e *Engine) CreateChunk(pos voxel.ChunkKey) (*Chunk, error) {
	if !e.connected {
		return nil, ErrNotConnected
	}
	if _, ok := e.chunks[pos]; ok {
		return nil, fmt.Errorf("%w: %s", ErrChunkExists, pos)
	}
	e.nextInstance++
	c := newChunk(pos, e.faces, e.nextInstance, mathx.ChunkSeed(e.cfg.Seed, pos))
	c.cache = bias.NewCache(e.constraints, len(c.cells), e.numStates)
	c.InitializeCells(e.allowed)
	c.ApplyLOD(0, e.cfg.LOD, e.cfg.Engine.IterationsPerCell)
	e.chunks[pos] = c
	for _, o := range e.observers {
		o.OnChunkStateChanged(pos, ChunkUnloaded, ChunkCreated)
	}
	return c, nil
}

// Chunk resolves a key through the arena; nil when not loaded.
func (e *Engine) Chunk(pos voxel.ChunkKey) *Chunk { return e.chunks[pos] }

func (e *Engine) ChunkCount() int { return len(e.chunks) }

// Chunks returns the loaded chunks ordered by key.
func (e *Engine) Chunks() []*Chunk {
	out := make([]*Chunk, 0, len(e.chunks))
	for _, c := range e.chunks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}

// SetLOD re-derives a chunk's bias influence and collapse budget.
func (e *Engine) SetLOD(c *Chunk, level int) {
	c.ApplyLOD(level, e.cfg.LOD, e.cfg.Engine.IterationsPerCell)
}

// ConnectNeighbors links c with every loaded face neighbour, both ways.
// Neighbours that do not exist yet are linked when they are created.
func (e *Engine) ConnectNeighbors(c *Chunk) int {
	linked := 0
	for _, d := range voxel.AllDirections {
		n := e.chunks[c.Key.Add(d.Offset())]
		if n == nil {
			continue
		}
		c.links = c.links.With(d)
		n.links = n.links.With(d.Opposite())
		linked++
	}
	return linked
}

// InitializeBoundaryBuffers builds the buffer pair for each linked face and seeds
// c's face cells from the neighbour's current states.
func (e *Engine) InitializeBoundaryBuffers(c *Chunk) int {
	return e.boundary.InitializeBoundaryBuffers(c)
}

func (e *Engine) SynchronizeBuffer(c *Chunk, d voxel.Direction) int {
	return e.boundary.SynchronizeBuffer(c, d)
}

// UnloadChunk removes a chunk. Neighbours drop their links and buffers to it first;
// queued events that reference it become stale and are skipped.
func (e *Engine) UnloadChunk(pos voxel.ChunkKey) error {
	c := e.chunks[pos]
	if c == nil {
		return fmt.Errorf("%w: %s", ErrChunkNotFound, pos)
	}
	for _, d := range voxel.AllDirections {
		opp := d.Opposite()
		if n := e.chunks[pos.Add(d.Offset())]; n != nil {
			n.links = n.links.Without(opp)
			if b := n.buffers[opp]; b != nil {
				b.detached = true
				n.buffers[opp] = nil
			}
		}
		if b := c.buffers[d]; b != nil {
			b.detached = true
			c.buffers[d] = nil
		}
	}
	c.links = 0
	delete(e.chunks, pos)
	if c.cache != nil {
		c.cache.Reset()
	}
	e.setState(c, ChunkUnloaded)
	return nil
}

// CollapseCell forces local position p of chunk pos to state s and queues the
// consequences.
func (e *Engine) CollapseCell(pos voxel.ChunkKey, p voxel.Vec3i, s voxel.StateID) error {
	if !e.connected {
		return ErrNotConnected
	}
	c := e.chunks[pos]
	if c == nil {
		return fmt.Errorf("%w: %s", ErrChunkNotFound, pos)
	}
	if !c.InBounds(p) {
		return fmt.Errorf("%w: %s in %s", ErrOutOfBounds, p, pos)
	}
	idx := c.index(p)
	cell := &c.cells[idx]
	if cell.collapsed {
		return cell.Collapse(s)
	}
	before := cell.possible
	if err := cell.Collapse(s); err != nil {
		return err
	}
	e.afterCollapse(c, TierForced)
	e.push(c, idx, before)
	return nil
}

// NarrowCell intersects local position p with set and queues the consequences.
func (e *Engine) NarrowCell(pos voxel.ChunkKey, p voxel.Vec3i, set voxel.StateSet) (bool, error) {
	if !e.connected {
		return false, ErrNotConnected
	}
	c := e.chunks[pos]
	if c == nil {
		return false, fmt.Errorf("%w: %s", ErrChunkNotFound, pos)
	}
	if !c.InBounds(p) {
		return false, fmt.Errorf("%w: %s in %s", ErrOutOfBounds, p, pos)
	}
	idx := c.index(p)
	before := c.cells[idx].possible
	changed, err := c.cells[idx].SetPossibleStates(set)
	if err != nil || !changed {
		return false, err
	}
	c.Dirty = true
	e.push(c, idx, before)
	return true, nil
}

// ProcessPropagationQueue drains up to max events (all of them when max <= 0) and
// returns how many were popped.
func (e *Engine) ProcessPropagationQueue(max int) int {
	if !e.connected {
		return 0
	}
	n := 0
	for max <= 0 || n < max {
		ev := e.pop()
		if ev == nil {
			break
		}
		n++
		e.processEvent(ev)
	}
	return n
}

// Step runs one tick: a bounded drain, then, if that made no collapse and left the
// queue empty, one collapse of the globally lowest-entropy cell.
func (e *Engine) Step() (StepResult, error) {
	if !e.connected {
		return StepResult{}, ErrNotConnected
	}
	before := e.stats.Collapses
	res := StepResult{Events: e.ProcessPropagationQueue(e.cfg.Engine.EventsPerTick)}
	if e.stats.Collapses == before && len(e.queue) == 0 {
		if c, idx, ok := e.selectCell(e.Chunks()); ok {
			e.collapseSelected(c, idx)
			res.Selected = true
		}
	}
	res.Collapses = int(e.stats.Collapses - before)
	res.Pending = len(e.queue)
	return res, nil
}

// CollapseNextCell collapses the lowest-entropy cell of c. It returns false once c
// is done, either complete or out of budget.
func (e *Engine) CollapseNextCell(c *Chunk) bool {
	if !e.connected || c == nil || e.chunks[c.Key] != c || c.FullyCollapsed {
		return false
	}
	if c.Iterations >= c.MaxIterations {
		e.acceptBestEffort(c)
		return false
	}
	sel, idx, ok := e.selectCell([]*Chunk{c})
	if !ok {
		e.markComplete(c)
		return false
	}
	e.collapseSelected(sel, idx)
	return true
}

// RunChunk drives c until it is complete or its budget is spent, draining the
// queue between collapses.
func (e *Engine) RunChunk(pos voxel.ChunkKey) error {
	if !e.connected {
		return ErrNotConnected
	}
	c := e.chunks[pos]
	if c == nil {
		return fmt.Errorf("%w: %s", ErrChunkNotFound, pos)
	}
	e.ProcessPropagationQueue(0)
	for !c.FullyCollapsed && e.chunks[pos] == c {
		if !e.CollapseNextCell(c) {
			break
		}
		e.ProcessPropagationQueue(0)
	}
	return nil
}

func (e *Engine) collapseSelected(c *Chunk, idx int) {
	c.Iterations++
	cell := &c.cells[idx]
	before := cell.possible
	s, tier := e.chooseState(c, idx)
	if err := cell.Collapse(s); err != nil {
		// chooseState only returns members of the possible set.
		e.logger.Printf("wfc: chunk %s cell %s: %v", c.Key, cell.Pos, err)
		return
	}
	e.afterCollapse(c, tier)
	e.push(c, idx, before)
	if !c.FullyCollapsed && c.Iterations >= c.MaxIterations {
		e.acceptBestEffort(c)
	}
}

func (e *Engine) afterCollapse(c *Chunk, tier Tier) {
	e.stats.Collapses++
	switch tier {
	case TierHeight:
		e.stats.HeightOverrides++
	case TierDominance:
		e.stats.DominanceCollapses++
	case TierWeighted:
		e.stats.WeightedDraws++
	}
	c.Dirty = true
	c.uncollapsed--
	if c.state == ChunkCreated {
		e.setState(c, ChunkGenerating)
	}
	if c.uncollapsed <= 0 {
		e.markComplete(c)
	}
}

func (e *Engine) markComplete(c *Chunk) {
	if c.FullyCollapsed {
		return
	}
	c.FullyCollapsed = true
	e.stats.ChunksComplete++
	e.setState(c, ChunkComplete)
}

// AcceptBestEffort finishes c with whatever cells remain unresolved, as if its
// budget ran out.
func (e *Engine) AcceptBestEffort(c *Chunk) {
	if c == nil || e.chunks[c.Key] != c {
		return
	}
	e.acceptBestEffort(c)
}

func (e *Engine) acceptBestEffort(c *Chunk) {
	if c.FullyCollapsed {
		return
	}
	c.FullyCollapsed = true
	c.BestEffort = true
	c.Dirty = true
	e.stats.ChunksBestEffort++
	e.logger.Printf("wfc: chunk %s accepted best-effort after %d iterations (%d cells unresolved)", c.Key, c.Iterations, c.uncollapsed)
	e.setState(c, ChunkBestEffort)
}

// RestoreChunk creates a chunk from persisted cell sets.
func (e *Engine) RestoreChunk(pos voxel.ChunkKey, lod int, possible []voxel.StateSet, collapsed []bool) (*Chunk, error) {
	if !e.connected {
		return nil, ErrNotConnected
	}
	n := e.cfg.ChunkSize
	if len(possible) != n*n*n || len(collapsed) != len(possible) {
		return nil, fmt.Errorf("wfc: restore %s: %d cells, want %d", pos, len(possible), n*n*n)
	}
	for i, set := range possible {
		if set.IsEmpty() || !set.SubsetOf(e.allowed) {
			return nil, fmt.Errorf("wfc: restore %s: cell %d has invalid set %s", pos, i, set)
		}
	}
	c, err := e.CreateChunk(pos)
	if err != nil {
		return nil, err
	}
	if err := c.Restore(possible, collapsed); err != nil {
		return nil, err
	}
	e.SetLOD(c, lod)
	if c.uncollapsed == 0 {
		e.markComplete(c)
	} else if c.uncollapsed < len(c.cells) {
		e.setState(c, ChunkGenerating)
	}
	return c, nil
}
