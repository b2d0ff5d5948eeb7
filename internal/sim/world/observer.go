package world

import (
	"encoding/json"

	"github.com/go-gl/mathgl/mgl64"

	"voxelwfc.ai/internal/observerproto"
	"voxelwfc.ai/internal/sim/encoding"
	"voxelwfc.ai/internal/sim/voxel"
	"voxelwfc.ai/internal/sim/wfc"
)

// ObserverJoinRequest registers a read-only observer session. Every message for
// the session is written to Out; a full Out drops the message and the chunk is
// resent on the next resync.
//
// All observer state is maintained by the world loop goroutine.
type ObserverJoinRequest struct {
	SessionID string
	Out       chan []byte

	Center voxel.ChunkKey
	Radius int
	Viewer *mgl64.Vec3
	Drive  bool
}

// ObserverSubscribeRequest updates an existing session's area of interest.
type ObserverSubscribeRequest struct {
	SessionID string

	Center voxel.ChunkKey
	Radius int
	Viewer *mgl64.Vec3
	Drive  bool
}

type observerClient struct {
	id  string
	out chan []byte

	center voxel.ChunkKey
	radius int

	// sent holds chunks the client has a current copy of.
	sent map[voxel.ChunkKey]bool
}

func (oc *observerClient) wants(k voxel.ChunkKey) bool {
	return voxel.Chebyshev(k, oc.center) <= oc.radius
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.Out == nil {
		return
	}
	oc := &observerClient{
		id:     req.SessionID,
		out:    req.Out,
		center: req.Center,
		radius: req.Radius,
		sent:   map[voxel.ChunkKey]bool{},
	}
	w.observers[oc.id] = oc
	observersGauge.Set(float64(len(w.observers)))

	tick := w.tick.Load()
	w.send(oc, observerproto.HelloMsg{
		Type:            observerproto.TypeHello,
		ProtocolVersion: observerproto.Version,
		SessionID:       oc.id,
		Tick:            tick,
		WorldParams:     w.worldParams(),
		States:          w.stateNames(),
	})
	if req.Drive {
		w.applyEnsure(EnsureRequest{Center: req.Center, Radius: req.Radius, Viewer: req.Viewer})
	}
	w.resync(tick, oc)
}

func (w *World) handleObserverSubscribe(req ObserverSubscribeRequest) {
	oc := w.observers[req.SessionID]
	if oc == nil {
		return
	}
	tick := w.tick.Load()
	oc.center = req.Center
	oc.radius = req.Radius
	for k := range oc.sent {
		if !oc.wants(k) {
			w.evict(tick, oc, k)
		}
	}
	if req.Drive {
		w.applyEnsure(EnsureRequest{Center: req.Center, Radius: req.Radius, Viewer: req.Viewer})
	}
	w.resync(tick, oc)
}

func (w *World) handleObserverLeave(id string) {
	if _, ok := w.observers[id]; !ok {
		return
	}
	delete(w.observers, id)
	observersGauge.Set(float64(len(w.observers)))
}

// resync sends every finished chunk in range the client does not have yet.
func (w *World) resync(tick uint64, oc *observerClient) {
	for _, c := range w.engine.Chunks() {
		if oc.sent[c.Key] || !oc.wants(c.Key) || !terminal(c.State()) {
			continue
		}
		rle, err := encoding.EncodeStates(c.States())
		if err != nil {
			continue
		}
		w.sendChunk(tick, oc, c, rle)
	}
}

func (w *World) observersChunkReady(tick uint64, c *wfc.Chunk, rle string) {
	for _, oc := range w.observers {
		if oc.wants(c.Key) {
			w.sendChunk(tick, oc, c, rle)
		}
	}
}

// observersRefresh resends finished chunks that changed after they were
// published. Seam collapses can still fill cells of a best-effort chunk.
func (w *World) observersRefresh(tick uint64) {
	for _, c := range w.engine.Chunks() {
		if !c.Dirty || !terminal(c.State()) {
			continue
		}
		c.Dirty = false
		if len(w.observers) == 0 {
			continue
		}
		rle, err := encoding.EncodeStates(c.States())
		if err != nil {
			w.logger.Printf("chunk %s: encode states: %v", c.Key, err)
			continue
		}
		chunkRefreshes.Inc()
		w.observersChunkReady(tick, c, rle)
	}
}

func (w *World) observersChunkUnloaded(tick uint64, k voxel.ChunkKey) {
	for _, oc := range w.observers {
		if oc.sent[k] {
			w.evict(tick, oc, k)
		}
	}
}

func (w *World) sendChunk(tick uint64, oc *observerClient, c *wfc.Chunk, rle string) {
	ok := w.send(oc, observerproto.ChunkMsg{
		Type:            observerproto.TypeChunk,
		ProtocolVersion: observerproto.Version,
		Tick:            tick,
		Key:             keyArray(c.Key),
		State:           c.State().String(),
		LOD:             c.LOD,
		BestEffort:      c.BestEffort,
		Encoding:        observerproto.EncodingStatesRLE,
		Data:            rle,
	})
	if ok {
		oc.sent[c.Key] = true
	}
}

func (w *World) evict(tick uint64, oc *observerClient, k voxel.ChunkKey) {
	delete(oc.sent, k)
	w.send(oc, observerproto.ChunkEvictMsg{
		Type:            observerproto.TypeEvict,
		ProtocolVersion: observerproto.Version,
		Tick:            tick,
		Key:             keyArray(k),
	})
}

func (w *World) broadcastStats(tick uint64) {
	if len(w.observers) == 0 {
		return
	}
	s := w.engine.Stats()
	msg := observerproto.StatsMsg{
		Type:            observerproto.TypeStats,
		ProtocolVersion: observerproto.Version,
		Tick:            tick,
		Loaded:          w.engine.ChunkCount(),
		Pending:         w.engine.Pending(),
		Collapses:       s.Collapses,
		Conflicts:       s.Conflicts,
	}
	for _, c := range w.engine.Chunks() {
		switch c.State() {
		case wfc.ChunkComplete:
			msg.Complete++
		case wfc.ChunkBestEffort:
			msg.BestEffort++
		}
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for _, oc := range w.observers {
		trySend(oc.out, b)
		w.resync(tick, oc)
	}
}

// send marshals v and enqueues it without blocking the world loop.
func (w *World) send(oc *observerClient, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		w.logger.Printf("observer %s: marshal: %v", oc.id, err)
		return false
	}
	if !trySend(oc.out, b) {
		observerDrops.Inc()
		return false
	}
	return true
}

func trySend(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
		return false
	}
}

func (w *World) worldParams() observerproto.WorldParams {
	return observerproto.WorldParams{
		TickRateHz:  w.cfg.TickRateHz,
		ChunkSize:   w.cfg.ChunkSize,
		WorldMinY:   w.cfg.WorldMinY,
		WorldHeight: w.cfg.WorldHeight,
		Seed:        w.cfg.Seed,
	}
}

func (w *World) stateNames() []string {
	out := make([]string, w.terrain.NumStates())
	for i := range out {
		out[i] = w.terrain.StateName(voxel.StateID(i))
	}
	return out
}

// Bootstrap describes the world for observer clients. Safe from any goroutine.
func (w *World) Bootstrap() observerproto.BootstrapResponse {
	return observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		RunID:           w.runID,
		Tick:            w.tick.Load(),
		WorldParams:     w.worldParams(),
		States:          w.stateNames(),
		TerrainDigest:   w.terrain.Digest,
	}
}
