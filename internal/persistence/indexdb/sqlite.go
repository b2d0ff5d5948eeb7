package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelwfc.ai/internal/persistence/snapshot"
	"voxelwfc.ai/internal/sim/catalogs"
	"voxelwfc.ai/internal/sim/tuning"
)

// SQLiteIndex is a secondary, queryable index of chunk outcomes. Writes are
// queued to a single writer goroutine and dropped when it falls behind; the
// snapshots and JSONL logs remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropChunk    atomic.Uint64
	dropSeam     atomic.Uint64
	dropSnapshot atomic.Uint64
	writeFail    atomic.Uint64
}

type reqKind int

const (
	reqChunk reqKind = iota + 1
	reqSeam
	reqSnapshot
)

type req struct {
	kind reqKind

	chunk    ChunkRow
	seam     SeamRow
	snapshot snapshotRow
}

// ChunkRow is the latest known outcome of one chunk.
type ChunkRow struct {
	Tick       uint64
	Key        [3]int
	State      string
	LOD        int
	Iterations int
	Conflicts  int
	Collapsed  int
	Cells      int
	StatesRLE  string
}

// SeamRow is one coherence measurement of the face of Chunk facing Dir.
type SeamRow struct {
	Tick       uint64
	Chunk      [3]int
	Dir        string
	Pairs      int
	Conflicts  int
	Unresolved int
	Entropy    float64
	Smoothness float64
}

type snapshotRow struct {
	Tick     uint64
	Path     string
	RunID    string
	Seed     int64
	Chunks   int
	Complete int
}

type IndexStats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropChunkTotal    uint64 `json:"drop_chunk_total"`
	DropSeamTotal     uint64 `json:"drop_seam_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	WriteFailTotal    uint64 `json:"write_fail_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Streaming a large radius completes many chunks in one burst.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS terrain (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			state TEXT NOT NULL,
			lod INTEGER NOT NULL,
			iterations INTEGER NOT NULL,
			conflicts INTEGER NOT NULL,
			collapsed INTEGER NOT NULL,
			cells INTEGER NOT NULL,
			states_rle TEXT NOT NULL,
			PRIMARY KEY (x, y, z)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_state ON chunks(state);`,
		`CREATE TABLE IF NOT EXISTS seams (
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			dir TEXT NOT NULL,
			tick INTEGER NOT NULL,
			pairs INTEGER NOT NULL,
			conflicts INTEGER NOT NULL,
			unresolved INTEGER NOT NULL,
			entropy REAL NOT NULL,
			smoothness REAL NOT NULL,
			PRIMARY KEY (x, y, z, dir)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_seams_conflicts ON seams(conflicts);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			run_id TEXT NOT NULL,
			seed INTEGER NOT NULL,
			chunks INTEGER NOT NULL,
			complete INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) RecordChunk(row ChunkRow) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqChunk, chunk: row}, &s.dropChunk)
}

func (s *SQLiteIndex) RecordSeam(row SeamRow) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqSeam, seam: row}, &s.dropSeam)
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	r := snapshotRow{
		Tick:   snap.Header.Tick,
		Path:   path,
		RunID:  snap.Header.RunID,
		Seed:   snap.Seed,
		Chunks: len(snap.Chunks),
	}
	for _, ch := range snap.Chunks {
		if ch.State == "COMPLETE" {
			r.Complete++
		}
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: r}, &s.dropSnapshot)
}

func (s *SQLiteIndex) Stats() IndexStats {
	if s == nil {
		return IndexStats{}
	}
	return IndexStats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropChunkTotal:    s.dropChunk.Load(),
		DropSeamTotal:     s.dropSeam.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		WriteFailTotal:    s.writeFail.Load(),
	}
}

// UpsertTerrain records the terrain definition and tuning the run applies, synchronously.
func (s *SQLiteIndex) UpsertTerrain(runID string, terrain *catalogs.Terrain, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	{
		doc := struct {
			Name           string                   `json:"name"`
			States         []catalogs.StateDef      `json:"states"`
			SelfCompatible bool                     `json:"self_compatible"`
			Adjacency      []catalogs.AdjacencyDef  `json:"adjacency,omitempty"`
			Constraints    []catalogs.ConstraintDef `json:"constraints,omitempty"`
			Fallback       bool                     `json:"fallback,omitempty"`
		}{terrain.Name, terrain.States, terrain.SelfCompatible, terrain.Adjacency, terrain.Constraints, terrain.Fallback}
		b, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		rows = append(rows, kv{name: "terrain", digest: terrain.Digest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for k, v := range map[string]string{"schema_version": "1", "run_id": runID, "terrain_name": terrain.Name} {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`, k, v); err != nil {
			return err
		}
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO terrain(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CountByState reports how many indexed chunks are in each lifecycle state.
func (s *SQLiteIndex) CountByState(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM chunks GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		out[state] = n
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertChunk, _ := s.db.Prepare(`INSERT OR REPLACE INTO chunks(x,y,z,tick,state,lod,iterations,conflicts,collapsed,cells,states_rle) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertSeam, _ := s.db.Prepare(`INSERT OR REPLACE INTO seams(x,y,z,dir,tick,pairs,conflicts,unresolved,entropy,smoothness) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,run_id,seed,chunks,complete) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertChunk, insertSeam, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeFail.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.writeFail.Add(1)
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			s.writeFail.Add(1)
			continue
		}
		switch r.kind {
		case reqChunk:
			c := r.chunk
			exec(insertChunk,
				c.Key[0], c.Key[1], c.Key[2],
				int64(c.Tick),
				c.State,
				c.LOD,
				c.Iterations,
				c.Conflicts,
				c.Collapsed,
				c.Cells,
				c.StatesRLE,
			)
		case reqSeam:
			m := r.seam
			exec(insertSeam,
				m.Chunk[0], m.Chunk[1], m.Chunk[2],
				m.Dir,
				int64(m.Tick),
				m.Pairs,
				m.Conflicts,
				m.Unresolved,
				m.Entropy,
				m.Smoothness,
			)
		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot,
				int64(sn.Tick),
				sn.Path,
				sn.RunID,
				sn.Seed,
				sn.Chunks,
				sn.Complete,
			)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
