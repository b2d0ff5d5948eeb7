package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"voxelwfc.ai/internal/persistence/indexdb"
	"voxelwfc.ai/internal/sim/world"
)

// runtimeIndex adapts the SQLite index to the world's ChunkIndex hook.
type runtimeIndex struct {
	db *indexdb.SQLiteIndex
}

func openRuntimeIndex(dataDir string, disableDB bool) (*runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("VW_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		db, err := indexdb.OpenSQLite(filepath.Join(dataDir, "index", "terrain.sqlite"))
		if err != nil {
			return nil, err
		}
		return &runtimeIndex{db: db}, nil
	default:
		return nil, fmt.Errorf("unsupported VW_INDEX_BACKEND: %s", backend)
	}
}

func (ix *runtimeIndex) RecordChunk(ev world.ChunkEvent) {
	ix.db.RecordChunk(indexdb.ChunkRow{
		Tick:       ev.Tick,
		Key:        ev.Key,
		State:      ev.To,
		LOD:        ev.LOD,
		Iterations: ev.Iterations,
		Conflicts:  ev.Conflicts,
		Collapsed:  ev.Collapsed,
		Cells:      ev.Cells,
		StatesRLE:  ev.StatesRLE,
	})
}

func (ix *runtimeIndex) RecordSeam(ev world.SeamEvent) {
	ix.db.RecordSeam(indexdb.SeamRow{
		Tick:       ev.Tick,
		Chunk:      ev.Chunk,
		Dir:        ev.Dir,
		Pairs:      ev.Pairs,
		Conflicts:  ev.Conflicts,
		Unresolved: ev.Unresolved,
		Entropy:    ev.Entropy,
		Smoothness: ev.Smoothness,
	})
}

// registerIndexMetrics exposes the writer queue so drops show up on /metrics.
func registerIndexMetrics(ix *runtimeIndex) {
	if ix == nil {
		return
	}
	gauge := func(name, help string, f func(indexdb.IndexStats) float64) {
		prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: name,
			Help: help,
		}, func() float64 { return f(ix.db.Stats()) }))
	}
	gauge("voxelwfc_index_queue_depth", "Pending index writes", func(s indexdb.IndexStats) float64 { return float64(s.QueueDepth) })
	gauge("voxelwfc_index_queue_capacity", "Index write queue capacity", func(s indexdb.IndexStats) float64 { return float64(s.QueueCapacity) })
	gauge("voxelwfc_index_dropped_chunks", "Chunk rows dropped under backpressure", func(s indexdb.IndexStats) float64 { return float64(s.DropChunkTotal) })
	gauge("voxelwfc_index_dropped_seams", "Seam rows dropped under backpressure", func(s indexdb.IndexStats) float64 { return float64(s.DropSeamTotal) })
	gauge("voxelwfc_index_write_failures", "Index statements that failed", func(s indexdb.IndexStats) float64 { return float64(s.WriteFailTotal) })
}
