package world

import (
	"voxelwfc.ai/internal/sim/encoding"
	"voxelwfc.ai/internal/sim/voxel"
	"voxelwfc.ai/internal/sim/wfc"
)

// ChunkEventLogger receives every chunk lifecycle transition.
type ChunkEventLogger interface {
	WriteChunkEvent(ev ChunkEvent) error
}

// StatsLogger receives one engine counter sample per second of ticks.
type StatsLogger interface {
	WriteStats(entry StatsEntry) error
}

// ChunkIndex receives terminal chunk outcomes and their seam scores.
// Implementations must not block the world loop.
type ChunkIndex interface {
	RecordChunk(ev ChunkEvent)
	RecordSeam(ev SeamEvent)
}

type ChunkEvent struct {
	Tick uint64 `json:"tick"`
	Key  [3]int `json:"key"`
	From string `json:"from"`
	To   string `json:"to"`

	LOD           int `json:"lod"`
	Iterations    int `json:"iterations"`
	MaxIterations int `json:"max_iterations"`
	Conflicts     int `json:"conflicts"`
	Collapsed     int `json:"collapsed"`
	Cells         int `json:"cells"`

	// StatesRLE is set on COMPLETE and BEST_EFFORT only.
	StatesRLE string `json:"states_rle,omitempty"`
}

type SeamEvent struct {
	Tick       uint64  `json:"tick"`
	Chunk      [3]int  `json:"chunk"`
	Dir        string  `json:"dir"`
	Pairs      int     `json:"pairs"`
	Conflicts  int     `json:"conflicts"`
	Unresolved int     `json:"unresolved"`
	Entropy    float64 `json:"entropy"`
	Smoothness float64 `json:"smoothness"`
}

type StatsEntry struct {
	Tick    uint64 `json:"tick"`
	Loaded  int    `json:"loaded"`
	Pending int    `json:"pending"`
	Queued  int    `json:"queued_creates"`

	EventsProcessed    uint64 `json:"events_processed"`
	StaleEvents        uint64 `json:"stale_events"`
	Collapses          uint64 `json:"collapses"`
	HeightOverrides    uint64 `json:"height_overrides"`
	DominanceCollapses uint64 `json:"dominance_collapses"`
	WeightedDraws      uint64 `json:"weighted_draws"`
	SeamCollapses      uint64 `json:"seam_collapses"`
	SeamMutations      uint64 `json:"seam_mutations"`
	Conflicts          uint64 `json:"conflicts"`
	ChunksComplete     uint64 `json:"chunks_complete"`
	ChunksBestEffort   uint64 `json:"chunks_best_effort"`
}

type transition struct {
	key      voxel.ChunkKey
	old, new wfc.ChunkState
}

func keyArray(k voxel.ChunkKey) [3]int { return [3]int{k.X, k.Y, k.Z} }

func keyFromArray(a [3]int) voxel.ChunkKey { return voxel.ChunkKey{X: a[0], Y: a[1], Z: a[2]} }

func terminal(s wfc.ChunkState) bool { return s == wfc.ChunkComplete || s == wfc.ChunkBestEffort }

// onChunkStateChanged runs inside engine calls; the work happens in flushTransitions
// once the tick's mutations are done.
func (w *World) onChunkStateChanged(key voxel.ChunkKey, old, new wfc.ChunkState) {
	w.transitions = append(w.transitions, transition{key: key, old: old, new: new})
}

func (w *World) flushTransitions(tick uint64) {
	if len(w.transitions) == 0 {
		return
	}
	ts := w.transitions
	w.transitions = nil

	// Seams between chunks finishing in the same batch are scored by the later one.
	finishing := map[voxel.ChunkKey]bool{}
	for _, t := range ts {
		if terminal(t.new) {
			finishing[t.key] = true
		}
	}
	for _, t := range ts {
		chunkTransitions.WithLabelValues(t.new.String()).Inc()
		ev := ChunkEvent{Tick: tick, Key: keyArray(t.key), From: t.old.String(), To: t.new.String()}

		c := w.engine.Chunk(t.key)
		if c != nil && t.new != wfc.ChunkUnloaded {
			ev.LOD = c.LOD
			ev.Iterations = c.Iterations
			ev.MaxIterations = c.MaxIterations
			ev.Conflicts = c.Conflicts
			ev.Cells = c.CellCount()
			ev.Collapsed = c.CellCount() - c.Uncollapsed()
			if terminal(t.new) && c.State() == t.new {
				rle, err := encoding.EncodeStates(c.States())
				if err != nil {
					w.logger.Printf("chunk %s: encode states: %v", t.key, err)
				}
				ev.StatesRLE = rle
			}
		}

		if w.chunkLogger != nil {
			if err := w.chunkLogger.WriteChunkEvent(ev); err != nil {
				w.logger.Printf("chunk log: %v", err)
			}
		}

		switch {
		case c != nil && terminal(t.new) && c.State() == t.new:
			if w.index != nil {
				w.index.RecordChunk(ev)
			}
			delete(finishing, t.key)
			w.scoreSeams(tick, c, finishing)
			w.observersChunkReady(tick, c, ev.StatesRLE)
			c.Dirty = false
		case t.new == wfc.ChunkUnloaded:
			w.observersChunkUnloaded(tick, t.key)
		}
	}
}

// scoreSeams measures every face of c whose neighbour is also finished.
func (w *World) scoreSeams(tick uint64, c *wfc.Chunk, skip map[voxel.ChunkKey]bool) {
	for _, d := range voxel.AllDirections {
		nk, ok := c.Neighbor(d)
		if !ok {
			continue
		}
		n := w.engine.Chunk(nk)
		if n == nil || !terminal(n.State()) || skip[nk] {
			continue
		}
		rep, err := w.engine.ScoreSeam(c, d)
		if err != nil {
			continue
		}
		if rep.Conflicts > 0 {
			seamConflicts.Add(float64(rep.Conflicts))
			w.logger.Printf("seam %s %s: %d conflicting pairs of %d", c.Key, d, rep.Conflicts, rep.Pairs)
		}
		if w.index != nil {
			w.index.RecordSeam(SeamEvent{
				Tick:       tick,
				Chunk:      keyArray(c.Key),
				Dir:        d.String(),
				Pairs:      rep.Pairs,
				Conflicts:  rep.Conflicts,
				Unresolved: rep.Unresolved,
				Entropy:    rep.Entropy,
				Smoothness: rep.Smoothness,
			})
		}
	}
}

func (w *World) statsEntry(tick uint64) StatsEntry {
	s := w.engine.Stats()
	return StatsEntry{
		Tick:               tick,
		Loaded:             w.engine.ChunkCount(),
		Pending:            w.engine.Pending(),
		Queued:             len(w.createQueue),
		EventsProcessed:    s.EventsProcessed,
		StaleEvents:        s.StaleEvents,
		Collapses:          s.Collapses,
		HeightOverrides:    s.HeightOverrides,
		DominanceCollapses: s.DominanceCollapses,
		WeightedDraws:      s.WeightedDraws,
		SeamCollapses:      s.SeamCollapses,
		SeamMutations:      s.SeamMutations,
		Conflicts:          s.Conflicts,
		ChunksComplete:     s.ChunksComplete,
		ChunksBestEffort:   s.ChunksBestEffort,
	}
}
