package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"voxelwfc.ai/internal/persistence/snapshot"
	"voxelwfc.ai/internal/sim/catalogs"
	"voxelwfc.ai/internal/sim/tuning"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqChunk}

	s.RecordChunk(ChunkRow{Tick: 2})
	s.RecordSeam(SeamRow{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropChunkTotal != 1 || st.DropSeamTotal != 1 || st.DropSnapshotTotal != 1 {
		t.Fatalf("drop stats: %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}

	var nilIdx *SQLiteIndex
	nilIdx.RecordChunk(ChunkRow{})
	if nilIdx.Stats() != (IndexStats{}) {
		t.Fatalf("nil index must report zero stats")
	}
}

func TestSQLiteIndex_RecordsRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	terrain := catalogs.DefaultTerrain(4)
	if err := idx.UpsertTerrain("run-1", terrain, tuning.Defaults()); err != nil {
		t.Fatalf("UpsertTerrain: %v", err)
	}

	idx.RecordChunk(ChunkRow{Tick: 5, Key: [3]int{1, 0, -2}, State: "GENERATING", Cells: 8})
	idx.RecordChunk(ChunkRow{Tick: 9, Key: [3]int{1, 0, -2}, State: "COMPLETE", LOD: 1, Iterations: 4, Collapsed: 8, Cells: 8, StatesRLE: "AQg="})
	idx.RecordChunk(ChunkRow{Tick: 9, Key: [3]int{0, 0, 0}, State: "BEST_EFFORT", Collapsed: 6, Cells: 8})
	idx.RecordSeam(SeamRow{Tick: 9, Chunk: [3]int{0, 0, 0}, Dir: "+x", Pairs: 4, Conflicts: 1, Entropy: 1, Smoothness: 0.75})
	idx.RecordSnapshot("/abs/9.snap.zst", snapshot.SnapshotV1{
		Header: snapshot.Header{Tick: 9, RunID: "run-1"},
		Seed:   42,
		Chunks: []snapshot.ChunkV1{{State: "COMPLETE"}, {State: "BEST_EFFORT"}},
	})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var (
		state     string
		tick      int64
		collapsed int
		rle       string
	)
	row := db.QueryRow(`SELECT state,tick,collapsed,states_rle FROM chunks WHERE x=1 AND y=0 AND z=-2`)
	if err := row.Scan(&state, &tick, &collapsed, &rle); err != nil {
		t.Fatalf("scan chunk: %v", err)
	}
	if state != "COMPLETE" || tick != 9 || collapsed != 8 || rle != "AQg=" {
		t.Fatalf("chunk row: state=%q tick=%d collapsed=%d rle=%q", state, tick, collapsed, rle)
	}

	var (
		conflicts  int
		smoothness float64
	)
	if err := db.QueryRow(`SELECT conflicts,smoothness FROM seams WHERE x=0 AND y=0 AND z=0 AND dir='+x'`).Scan(&conflicts, &smoothness); err != nil {
		t.Fatalf("scan seam: %v", err)
	}
	if conflicts != 1 || smoothness != 0.75 {
		t.Fatalf("seam row: conflicts=%d smoothness=%v", conflicts, smoothness)
	}

	var (
		runID    string
		chunks   int
		complete int
	)
	if err := db.QueryRow(`SELECT run_id,chunks,complete FROM snapshots WHERE tick=9`).Scan(&runID, &chunks, &complete); err != nil {
		t.Fatalf("scan snapshot: %v", err)
	}
	if runID != "run-1" || chunks != 2 || complete != 1 {
		t.Fatalf("snapshot row: run=%q chunks=%d complete=%d", runID, chunks, complete)
	}

	var digest string
	if err := db.QueryRow(`SELECT digest FROM terrain WHERE name='terrain'`).Scan(&digest); err != nil {
		t.Fatalf("scan terrain: %v", err)
	}
	if digest != terrain.Digest {
		t.Fatalf("terrain digest=%q want %q", digest, terrain.Digest)
	}
	var meta string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key='run_id'`).Scan(&meta); err != nil || meta != "run-1" {
		t.Fatalf("meta run_id=%q err=%v", meta, err)
	}
}

func TestSQLiteIndex_CountByState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	idx.RecordChunk(ChunkRow{Key: [3]int{0, 0, 0}, State: "COMPLETE"})
	idx.RecordChunk(ChunkRow{Key: [3]int{1, 0, 0}, State: "COMPLETE"})
	idx.RecordChunk(ChunkRow{Key: [3]int{2, 0, 0}, State: "BEST_EFFORT"})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()
	counts, err := idx.CountByState(context.Background())
	if err != nil {
		t.Fatalf("CountByState: %v", err)
	}
	if counts["COMPLETE"] != 2 || counts["BEST_EFFORT"] != 1 {
		t.Fatalf("counts=%v", counts)
	}
}
