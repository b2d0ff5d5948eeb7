package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	persistlog "voxelwfc.ai/internal/persistence/log"
	"voxelwfc.ai/internal/persistence/snapshot"
	"voxelwfc.ai/internal/sim/catalogs"
	"voxelwfc.ai/internal/sim/tuning"
	"voxelwfc.ai/internal/sim/voxel"
	"voxelwfc.ai/internal/sim/world"
)

func generate(t *testing.T, dataDir string) (snapshot.SnapshotV1, *catalogs.Terrain) {
	t.Helper()
	terrain, err := catalogs.LoadTerrain("../../configs/terrain.json")
	if err != nil {
		t.Fatalf("terrain: %v", err)
	}
	tn := tuning.Defaults()
	tn.ChunkSize = 4
	tn.WorldMinY = -8
	tn.Engine.EventsPerTick = 1 << 20
	tn.Streaming.Radius = 1
	w, err := world.New(world.Config{Tuning: tn, Terrain: terrain, RunID: "inspect-test"})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	events := persistlog.NewChunkEventLogger(dataDir)
	w.SetChunkLogger(events)

	w.StepOnce(world.EnsureRequest{Center: voxel.ChunkKey{}, Radius: 1})
	for i := 0; i < 100; i++ {
		w.StepOnce()
	}
	if err := events.Close(); err != nil {
		t.Fatalf("close events: %v", err)
	}
	return w.ExportSnapshot(w.CurrentTick() - 1), terrain
}

func TestReportAndVerify(t *testing.T) {
	dir := t.TempDir()
	snap, terrain := generate(t, dir)

	w, err := restore(snap, terrain)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	var out bytes.Buffer
	if bad := report(&out, snap, w, true); bad {
		t.Fatalf("clean terrain reported as broken:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "run=inspect-test") || !strings.Contains(out.String(), "seams: ") {
		t.Fatalf("unexpected report:\n%s", out.String())
	}

	checked, mismatched, err := verifyEvents(filepath.Join(dir, "events"), snap)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if checked == 0 || mismatched != 0 {
		t.Fatalf("verify: checked=%d mismatched=%d", checked, mismatched)
	}
}

func TestVerifyEvents_DetectsMismatch(t *testing.T) {
	dir := t.TempDir()
	snap, _ := generate(t, dir)

	// Flip the first collapsed cell of the first complete chunk.
	for ci := range snap.Chunks {
		ch := &snap.Chunks[ci]
		if ch.State != "COMPLETE" {
			continue
		}
		for i, p := range ch.Possible {
			if !ch.Collapsed[i] {
				continue
			}
			s, _ := voxel.StateSet(p).Single()
			other := voxel.StateID(0)
			if s == 0 {
				other = 1
			}
			ch.Possible[i] = uint64(voxel.StateSet(0).With(other))
			break
		}
		break
	}
	_, mismatched, err := verifyEvents(filepath.Join(dir, "events"), snap)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if mismatched != 1 {
		t.Fatalf("mismatched: got %d want 1", mismatched)
	}
}
