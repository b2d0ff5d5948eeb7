package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version       int    `json:"version"`
	RunID         string `json:"run_id"`
	Tick          uint64 `json:"tick"`
	TerrainDigest string `json:"terrain_digest"`
	Chunks        int    `json:"chunks"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed        int64  `json:"seed"`
	ChunkSize   int    `json:"chunk_size"`
	MaxStates   int    `json:"max_states"`
	NumStates   int    `json:"num_states"`
	TerrainName string `json:"terrain_name"`

	// Constraint system version at export time.
	ConstraintVersion uint64     `json:"constraint_version"`
	Viewer            [3]float64 `json:"viewer"`
	Center            [3]int     `json:"center"`
	Radius            int        `json:"radius"`

	Chunks []ChunkV1 `json:"chunks"`
	Stats  StatsV1   `json:"stats"`
}

type ChunkV1 struct {
	Key [3]int `json:"key"`
	LOD int    `json:"lod"`

	State      string `json:"state"`
	BestEffort bool   `json:"best_effort,omitempty"`
	Iterations int    `json:"iterations"`
	Conflicts  int    `json:"conflicts"`

	// Possible holds one state bitset per cell, x fastest, then z, then y.
	Possible  []uint64 `json:"possible"`
	Collapsed []bool   `json:"collapsed"`
}

type StatsV1 struct {
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

// NewRunID identifies one server process across its snapshots and index rows.
func NewRunID() string { return uuid.NewString() }

// Check rejects snapshots whose chunk arrays disagree with the chunk size.
func (s *SnapshotV1) Check() error {
	if s.Header.Version != Version {
		return fmt.Errorf("unsupported snapshot version %d", s.Header.Version)
	}
	if s.ChunkSize <= 0 {
		return fmt.Errorf("bad chunk_size %d", s.ChunkSize)
	}
	cells := s.ChunkSize * s.ChunkSize * s.ChunkSize
	seen := make(map[[3]int]bool, len(s.Chunks))
	for _, ch := range s.Chunks {
		if seen[ch.Key] {
			return fmt.Errorf("duplicate chunk %v", ch.Key)
		}
		seen[ch.Key] = true
		if len(ch.Possible) != cells || len(ch.Collapsed) != cells {
			return fmt.Errorf("chunk %v: %d/%d cells, want %d", ch.Key, len(ch.Possible), len(ch.Collapsed), cells)
		}
	}
	return nil
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	snap.Header.Version = Version
	snap.Header.Chunks = len(snap.Chunks)

	tmp := path + ".tmp"
	if err := writeFile(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, snap SnapshotV1) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func open(path string) (*os.File, *zstd.Decoder, *bufio.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, nil, err
	}
	return f, dec, bufio.NewReaderSize(dec, 256*1024), nil
}

// ReadHeader decodes only the leading JSON line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, dec, br, err := open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	defer dec.Close()

	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, dec, br, err := open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()
	defer dec.Close()

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if err := snap.Check(); err != nil {
		return snap, err
	}
	return snap, nil
}

// Path names a snapshot file by tick under dir.
func Path(dir string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.snap.zst", tick))
}

// Latest returns the highest-tick snapshot in dir, or "" when there is none.
func Latest(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
