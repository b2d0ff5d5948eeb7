package world

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"voxelwfc.ai/internal/persistence/snapshot"
	"voxelwfc.ai/internal/sim/voxel"
)

// ExportSnapshot captures every loaded chunk. It must run on the world goroutine.
func (w *World) ExportSnapshot(tick uint64) snapshot.SnapshotV1 {
	v := w.engine.Viewer()
	s := w.engine.Stats()
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:       snapshot.Version,
			RunID:         w.runID,
			Tick:          tick,
			TerrainDigest: w.terrain.Digest,
		},
		Seed:              w.cfg.Seed,
		ChunkSize:         w.cfg.ChunkSize,
		MaxStates:         w.cfg.MaxStates,
		NumStates:         w.terrain.NumStates(),
		TerrainName:       w.terrain.Name,
		ConstraintVersion: w.engine.Constraints().Version(),
		Viewer:            [3]float64{v[0], v[1], v[2]},
		Center:            keyArray(w.center),
		Radius:            w.radius,
		Stats: snapshot.StatsV1{
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
		},
	}
	for _, c := range w.engine.Chunks() {
		sets := c.PossibleSets()
		ch := snapshot.ChunkV1{
			Key:        keyArray(c.Key),
			LOD:        c.LOD,
			State:      c.State().String(),
			BestEffort: c.BestEffort,
			Iterations: c.Iterations,
			Conflicts:  c.Conflicts,
			Possible:   make([]uint64, len(sets)),
			Collapsed:  make([]bool, len(sets)),
		}
		for i, set := range sets {
			ch.Possible[i] = uint64(set)
			ch.Collapsed[i] = c.CellAt(i).IsCollapsed()
		}
		snap.Chunks = append(snap.Chunks, ch)
	}
	return snap
}

// ImportSnapshot restores chunks into a world that has not loaded any yet.
// Pending propagation is not persisted: restored cells are taken as settled.
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if err := snap.Check(); err != nil {
		return err
	}
	if w.engine.ChunkCount() > 0 {
		return errors.New("import snapshot: world already has chunks")
	}
	if snap.ChunkSize != w.cfg.ChunkSize {
		return fmt.Errorf("import snapshot: chunk_size %d, world uses %d", snap.ChunkSize, w.cfg.ChunkSize)
	}
	if snap.NumStates != w.terrain.NumStates() {
		return fmt.Errorf("import snapshot: %d states, terrain has %d", snap.NumStates, w.terrain.NumStates())
	}
	if snap.Header.TerrainDigest != "" && w.terrain.Digest != "" && snap.Header.TerrainDigest != w.terrain.Digest {
		w.logger.Printf("import snapshot: terrain digest differs (snapshot %s, loaded %s)", snap.Header.TerrainDigest, w.terrain.Digest)
	}

	for _, ch := range snap.Chunks {
		sets := make([]voxel.StateSet, len(ch.Possible))
		for i, p := range ch.Possible {
			sets[i] = voxel.StateSet(p)
		}
		c, err := w.engine.RestoreChunk(keyFromArray(ch.Key), ch.LOD, sets, ch.Collapsed)
		if err != nil {
			return fmt.Errorf("import snapshot: %w", err)
		}
		c.Iterations = ch.Iterations
		c.Conflicts = ch.Conflicts
		if ch.BestEffort {
			w.engine.AcceptBestEffort(c)
		}
	}
	for _, c := range w.engine.Chunks() {
		w.engine.ConnectNeighbors(c)
	}
	for _, c := range w.engine.Chunks() {
		w.engine.InitializeBoundaryBuffers(c)
	}
	w.engine.ProcessPropagationQueue(0)

	w.center = keyFromArray(snap.Center)
	w.radius = snap.Radius
	w.engine.SetViewer(mgl64.Vec3(snap.Viewer))
	w.tick.Store(snap.Header.Tick + 1)
	w.flushTransitions(snap.Header.Tick)
	return nil
}

type adminSnapshotReq struct {
	Resp chan adminSnapshotResp
}

type adminSnapshotResp struct {
	Tick uint64
	Err  string
}

// RequestSnapshot asks the world loop goroutine to enqueue a snapshot.
// It is safe to call from other goroutines (e.g. HTTP handlers).
func (w *World) RequestSnapshot(ctx context.Context) (tick uint64, err error) {
	if w == nil || w.admin == nil {
		return 0, errors.New("admin snapshot not available")
	}
	resp := make(chan adminSnapshotResp, 1)
	select {
	case w.admin <- adminSnapshotReq{Resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-resp:
		if r.Err != "" {
			return r.Tick, errors.New(r.Err)
		}
		return r.Tick, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (w *World) handleAdminSnapshotRequests(reqs []adminSnapshotReq) {
	if len(reqs) == 0 {
		return
	}
	cur := w.tick.Load()
	snapTick := uint64(0)
	if cur > 0 {
		snapTick = cur - 1
	}

	errStr := ""
	if w.snapshotSink == nil {
		errStr = "snapshot sink not configured"
	} else {
		select {
		case w.snapshotSink <- w.ExportSnapshot(snapTick):
		default:
			errStr = "snapshot sink backpressure"
		}
	}

	resp := adminSnapshotResp{Tick: snapTick, Err: errStr}
	for _, r := range reqs {
		if r.Resp == nil {
			continue
		}
		select {
		case r.Resp <- resp:
		default:
			// Client timed out; don't block the sim loop.
		}
	}
}

// StateView is the admin summary of loaded chunks.
type StateView struct {
	Tick    uint64         `json:"tick"`
	RunID   string         `json:"run_id"`
	Center  [3]int         `json:"center"`
	Radius  int            `json:"radius"`
	Pending int            `json:"pending_events"`
	States  map[string]int `json:"chunk_states"`
	Chunks  []ChunkSummary `json:"chunks"`
}

type ChunkSummary struct {
	Key        [3]int `json:"key"`
	State      string `json:"state"`
	LOD        int    `json:"lod"`
	Collapsed  int    `json:"collapsed"`
	Cells      int    `json:"cells"`
	Iterations int    `json:"iterations"`
	Budget     int    `json:"budget"`
}

type stateReq struct {
	Resp chan StateView
}

// State returns a summary built on the world goroutine.
func (w *World) State(ctx context.Context) (StateView, error) {
	resp := make(chan StateView, 1)
	select {
	case w.stateReq <- stateReq{Resp: resp}:
	case <-ctx.Done():
		return StateView{}, ctx.Err()
	}
	select {
	case v := <-resp:
		return v, nil
	case <-ctx.Done():
		return StateView{}, ctx.Err()
	}
}

func (w *World) stateView() StateView {
	v := StateView{
		Tick:    w.tick.Load(),
		RunID:   w.runID,
		Center:  keyArray(w.center),
		Radius:  w.radius,
		Pending: w.engine.Pending(),
		States:  map[string]int{},
	}
	for _, c := range w.engine.Chunks() {
		v.States[c.State().String()]++
		v.Chunks = append(v.Chunks, ChunkSummary{
			Key:        keyArray(c.Key),
			State:      c.State().String(),
			LOD:        c.LOD,
			Collapsed:  c.CellCount() - c.Uncollapsed(),
			Cells:      c.CellCount(),
			Iterations: c.Iterations,
			Budget:     c.MaxIterations,
		})
	}
	return v
}
