package world

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tickGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voxelwfc_world_tick",
		Help: "Last completed world tick",
	})

	loadedChunksGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voxelwfc_chunks_loaded",
		Help: "Chunks currently held by the engine",
	})

	pendingEventsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voxelwfc_propagation_pending",
		Help: "Propagation events waiting in the queue",
	})

	chunkTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxelwfc_chunk_transitions_total",
		Help: "Chunk lifecycle transitions by target state",
	}, []string{"state"})

	collapsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxelwfc_collapses_total",
		Help: "Cell collapses by deciding tier",
	}, []string{"tier"})

	conflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxelwfc_propagation_conflicts_total",
		Help: "Narrowings skipped because they would empty a cell",
	})

	seamConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxelwfc_seam_conflicts_total",
		Help: "Incompatible boundary pairs found when scoring finished seams",
	})

	observersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voxelwfc_observers",
		Help: "Connected observer sessions",
	})

	observerDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxelwfc_observer_dropped_messages_total",
		Help: "Observer messages dropped because the session queue was full",
	})

	chunkRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxelwfc_chunk_refreshes_total",
		Help: "Finished chunks resent to observers after a later seam change",
	})

	stepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voxelwfc_step_duration_seconds",
		Help:    "Wall time of one world tick",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	})
)

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	LoadedChunks  int `json:"loaded_chunks"`
	QueuedCreates int `json:"queued_creates"`
	Pending       int `json:"pending_events"`
	Observers     int `json:"observers"`

	Center [3]int `json:"center"`
	Radius int    `json:"radius"`

	Collapses        uint64 `json:"collapses"`
	Conflicts        uint64 `json:"conflicts"`
	ChunksComplete   uint64 `json:"chunks_complete"`
	ChunksBestEffort uint64 `json:"chunks_best_effort"`

	StepMS float64 `json:"step_ms"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	m, _ := w.metrics.Load().(WorldMetrics)
	return m
}

func (w *World) publishMetrics(tick uint64, took time.Duration) {
	s := w.engine.Stats()
	prev := w.lastSeen
	w.lastSeen = s

	tickGauge.Set(float64(tick))
	loadedChunksGauge.Set(float64(w.engine.ChunkCount()))
	pendingEventsGauge.Set(float64(w.engine.Pending()))
	if took > 0 {
		stepDuration.Observe(took.Seconds())
	}
	addDelta := func(c prometheus.Counter, now, before uint64) {
		if now > before {
			c.Add(float64(now - before))
		}
	}
	addDelta(collapsesTotal.WithLabelValues("height"), s.HeightOverrides, prev.HeightOverrides)
	addDelta(collapsesTotal.WithLabelValues("dominance"), s.DominanceCollapses, prev.DominanceCollapses)
	addDelta(collapsesTotal.WithLabelValues("weighted"), s.WeightedDraws, prev.WeightedDraws)
	addDelta(collapsesTotal.WithLabelValues("seam"), s.SeamCollapses, prev.SeamCollapses)
	addDelta(conflictsTotal, s.Conflicts, prev.Conflicts)

	w.metrics.Store(WorldMetrics{
		Tick:             tick,
		LoadedChunks:     w.engine.ChunkCount(),
		QueuedCreates:    len(w.createQueue),
		Pending:          w.engine.Pending(),
		Observers:        len(w.observers),
		Center:           keyArray(w.center),
		Radius:           w.radius,
		Collapses:        s.Collapses,
		Conflicts:        s.Conflicts,
		ChunksComplete:   s.ChunksComplete,
		ChunksBestEffort: s.ChunksBestEffort,
		StepMS:           float64(took.Microseconds()) / 1000,
	})
}
