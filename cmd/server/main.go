package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	persistlog "voxelwfc.ai/internal/persistence/log"
	"voxelwfc.ai/internal/persistence/snapshot"
	"voxelwfc.ai/internal/sim/catalogs"
	"voxelwfc.ai/internal/sim/tuning"
	"voxelwfc.ai/internal/sim/voxel"
	"voxelwfc.ai/internal/sim/world"
	"voxelwfc.ai/internal/transport/observer"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		configDir   = flag.String("configs", "./configs", "config directory")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		terrainPath = flag.String("terrain", "", "path to terrain.json (default: <configs>/terrain.json)")
		seed        = flag.Int64("seed", 0, "override the tuning seed for a fresh run (0 keeps tuning.yaml)")
		disableDB   = flag.Bool("disable_db", false, "disable the sqlite chunk index")

		centerFlag = flag.String("center", "0,0,0", "initial streaming centre as a chunk key x,y,z")
		radius     = flag.Int("radius", -1, "initial streaming radius in chunks (-1 keeps tuning.yaml)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	terrainFile := strings.TrimSpace(*terrainPath)
	if terrainFile == "" {
		terrainFile = filepath.Join(*configDir, "terrain.json")
	}
	snapDir := filepath.Join(*dataDir, "snapshots")
	_ = os.MkdirAll(snapDir, 0o755)

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = snapshot.Latest(snapDir)
	}

	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if *seed != 0 {
		tune.Seed = *seed
	}
	if *radius >= 0 {
		tune.Streaming.Radius = *radius
	}

	var snap *snapshot.SnapshotV1
	if snapshotToLoad != "" {
		s, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		// A resumed run keeps the geometry and seed it was generated with.
		tune.Seed = s.Seed
		tune.ChunkSize = s.ChunkSize
		snap = &s
	}

	terrain, err := catalogs.ResolveTerrain(terrainFile, tune.MaxStates, logger)
	if err != nil {
		logger.Fatalf("load terrain: %v", err)
	}

	runID := snapshot.NewRunID()
	if snap != nil && snap.Header.RunID != "" {
		runID = snap.Header.RunID
	}

	idx, err := openRuntimeIndex(*dataDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.db.Close()
		if err := idx.db.UpsertTerrain(runID, terrain, tune); err != nil {
			logger.Printf("index backend: upsert terrain: %v", err)
		}
		registerIndexMetrics(idx)
	}

	w, err := world.New(world.Config{
		Tuning:  tune,
		Terrain: terrain,
		RunID:   runID,
		Logger:  log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds),
	})
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	center, err := parseChunkKey(*centerFlag)
	if err != nil {
		logger.Fatalf("-center: %v", err)
	}
	if snap != nil {
		if err := w.ImportSnapshot(*snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		center = voxel.ChunkKey{X: snap.Center[0], Y: snap.Center[1], Z: snap.Center[2]}
		logger.Printf("resumed run=%s from snapshot=%s tick=%d chunks=%d", runID, filepath.Base(snapshotToLoad), w.CurrentTick(), len(snap.Chunks))
	} else {
		logger.Printf("fresh run=%s seed=%d terrain=%s states=%d", runID, tune.Seed, terrain.Name, terrain.NumStates())
	}
	w.Ensure() <- world.EnsureRequest{Center: center, Radius: tune.Streaming.Radius}

	ctx, cancel := signalContext()
	defer cancel()

	chunkLog := persistlog.NewChunkEventLogger(*dataDir)
	statsLog := persistlog.NewStatsLogger(*dataDir)
	defer chunkLog.Close()
	defer statsLog.Close()
	w.SetChunkLogger(chunkLog)
	w.SetStatsLogger(statsLog)
	if idx != nil {
		w.SetIndex(idx)
	}

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-snapCh:
				path := snapshot.Path(snapDir, s.Header.Tick)
				if err := snapshot.WriteSnapshot(path, s); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				logger.Printf("snapshot tick=%d chunks=%d path=%s", s.Header.Tick, len(s.Chunks), path)
				if idx != nil {
					idx.db.RecordSnapshot(path, s)
				}
			}
		}
	}()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	obsSrv := observer.NewServer(w, log.New(os.Stdout, "[observer] ", log.LstdFlags))
	if envBool("VW_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		registerAdmin(mux, w, idx)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	} else {
		logger.Printf("admin endpoints disabled (VW_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("VW_ENABLE_PPROF_HTTP", false) {
		registerPprof(mux)
	}
	mux.HandleFunc("/v1/observer/ws", obsSrv.WSHandler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func parseChunkKey(s string) (voxel.ChunkKey, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return voxel.ChunkKey{}, strconv.ErrSyntax
	}
	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return voxel.ChunkKey{}, err
		}
		v[i] = n
	}
	return voxel.ChunkKey{X: v[0], Y: v[1], Z: v[2]}, nil
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
