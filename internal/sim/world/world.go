// Package world runs the terrain engine as a single-goroutine actor: it streams
// chunks around a centre, drives propagation once per tick and fans completed
// chunks out to logs, the index, metrics and observers.
package world

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"voxelwfc.ai/internal/persistence/snapshot"
	"voxelwfc.ai/internal/sim/catalogs"
	"voxelwfc.ai/internal/sim/tuning"
	"voxelwfc.ai/internal/sim/voxel"
	"voxelwfc.ai/internal/sim/wfc"
	"voxelwfc.ai/internal/sim/wfc/bias"
	"voxelwfc.ai/internal/sim/wfc/rules"
)

type Config struct {
	Tuning  tuning.Tuning
	Terrain *catalogs.Terrain
	// RunID tags snapshots written by this process.
	RunID  string
	Logger *log.Logger
}

type World struct {
	cfg     tuning.Tuning
	terrain *catalogs.Terrain
	runID   string
	logger  *log.Logger

	engine *wfc.Engine

	tick atomic.Uint64

	center      voxel.ChunkKey
	radius      int
	createQueue []voxel.ChunkKey
	transitions []transition

	observers map[string]*observerClient

	chunkLogger  ChunkEventLogger
	statsLogger  StatsLogger
	index        ChunkIndex
	snapshotSink chan<- snapshot.SnapshotV1

	ensure        chan EnsureRequest
	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	admin         chan adminSnapshotReq
	stateReq      chan stateReq
	stop          chan struct{}

	metrics  atomic.Value
	lastSeen wfc.Stats
}

// New builds the rule table and constraint system from the terrain definition and
// connects a fresh engine to them.
func New(cfg Config) (*World, error) {
	if cfg.Terrain == nil {
		return nil, errors.New("world: nil terrain")
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	if cfg.Terrain.NumStates() > cfg.Tuning.MaxStates {
		return nil, fmt.Errorf("world: terrain has %d states, max_states=%d", cfg.Terrain.NumStates(), cfg.Tuning.MaxStates)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	rt, err := rules.Build(cfg.Terrain)
	if err != nil {
		return nil, fmt.Errorf("world: rules: %w", err)
	}
	sys, err := bias.FromTerrain(cfg.Terrain, cfg.Tuning.Seed)
	if err != nil {
		return nil, fmt.Errorf("world: constraints: %w", err)
	}
	eng, err := wfc.New(wfc.Config{Tuning: cfg.Tuning, Roles: cfg.Terrain.Roles(), Weights: cfg.Terrain.Weights(), Logger: logger})
	if err != nil {
		return nil, err
	}
	if err := eng.Connect(rt, sys); err != nil {
		return nil, err
	}

	w := &World{
		cfg:           cfg.Tuning,
		terrain:       cfg.Terrain,
		runID:         cfg.RunID,
		logger:        logger,
		engine:        eng,
		radius:        cfg.Tuning.Streaming.Radius,
		observers:     map[string]*observerClient{},
		ensure:        make(chan EnsureRequest, 16),
		observerJoin:  make(chan ObserverJoinRequest, 64),
		observerSub:   make(chan ObserverSubscribeRequest, 64),
		observerLeave: make(chan string, 64),
		admin:         make(chan adminSnapshotReq, 16),
		stateReq:      make(chan stateReq, 16),
		stop:          make(chan struct{}),
	}
	eng.AddObserver(wfc.ObserverFunc(w.onChunkStateChanged))
	w.publishMetrics(0, 0)
	return w, nil
}

func (w *World) SetChunkLogger(l ChunkEventLogger)             { w.chunkLogger = l }
func (w *World) SetStatsLogger(l StatsLogger)                  { w.statsLogger = l }
func (w *World) SetIndex(ix ChunkIndex)                        { w.index = ix }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) Ensure() chan<- EnsureRequest                       { return w.ensure }
func (w *World) ObserverJoin() chan<- ObserverJoinRequest           { return w.observerJoin }
func (w *World) ObserverSubscribe() chan<- ObserverSubscribeRequest { return w.observerSub }
func (w *World) ObserverLeave() chan<- string                       { return w.observerLeave }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) Tuning() tuning.Tuning { return w.cfg }

func (w *World) Terrain() *catalogs.Terrain { return w.terrain }

func (w *World) RunID() string { return w.runID }

// Engine exposes the engine for tests and offline tools. It must not be touched
// while Run is active.
func (w *World) Engine() *wfc.Engine { return w.engine }

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingEnsure []EnsureRequest
	var pendingAdmin []adminSnapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.ensure:
			pendingEnsure = append(pendingEnsure, req)
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case req := <-w.observerSub:
			w.handleObserverSubscribe(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case req := <-w.admin:
			pendingAdmin = append(pendingAdmin, req)
		case req := <-w.stateReq:
			req.Resp <- w.stateView()
		case <-ticker.C:
			w.step(pendingEnsure)
			w.handleAdminSnapshotRequests(pendingAdmin)
			pendingEnsure = pendingEnsure[:0]
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering as Run.
// It is meant for deterministic tests and offline generation.
func (w *World) StepOnce(reqs ...EnsureRequest) uint64 {
	tick := w.tick.Load()
	w.step(reqs)
	return tick
}

func (w *World) step(ensure []EnsureRequest) {
	start := time.Now()
	tick := w.tick.Load()

	// The last request wins; earlier ones in the same tick are superseded.
	if n := len(ensure); n > 0 {
		w.applyEnsure(ensure[n-1])
	}
	w.createQueued()
	w.drive()
	w.flushTransitions(tick)
	w.observersRefresh(tick)

	if hz := uint64(w.cfg.TickRateHz); hz > 0 && tick%hz == 0 {
		w.broadcastStats(tick)
		if w.statsLogger != nil {
			if err := w.statsLogger.WriteStats(w.statsEntry(tick)); err != nil {
				w.logger.Printf("stats log: %v", err)
			}
		}
	}
	if every := uint64(w.cfg.SnapshotEveryTicks); every > 0 && w.snapshotSink != nil && tick > 0 && tick%every == 0 {
		select {
		case w.snapshotSink <- w.ExportSnapshot(tick):
		default:
			w.logger.Printf("snapshot sink full; skipped tick %d", tick)
		}
	}

	w.publishMetrics(tick, time.Since(start))
	w.tick.Store(tick + 1)
}

// drive spends the tick's event budget on propagation and, whenever the queue
// runs dry, on fresh lowest-entropy collapses.
func (w *World) drive() {
	budget := w.cfg.Engine.EventsPerTick
	for spent := 0; spent < budget; {
		res, err := w.engine.Step()
		if err != nil {
			w.logger.Printf("engine step: %v", err)
			return
		}
		spent += res.Events
		if res.Selected {
			spent++
		}
		if res.Events == 0 && !res.Selected {
			return
		}
	}
}
