package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	persistlog "voxelwfc.ai/internal/persistence/log"
	"voxelwfc.ai/internal/persistence/snapshot"
	"voxelwfc.ai/internal/sim/catalogs"
	"voxelwfc.ai/internal/sim/encoding"
	"voxelwfc.ai/internal/sim/tuning"
	"voxelwfc.ai/internal/sim/voxel"
	"voxelwfc.ai/internal/sim/world"
)

func main() {
	var (
		snapPath  = flag.String("snapshot", "", "path to .snap.zst")
		eventsDir = flag.String("events", "", "events dir containing chunks-*.jsonl.zst (optional)")
		configDir = flag.String("configs", "./configs", "config directory")
		seams     = flag.Bool("seams", false, "print every seam score")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	terrain, err := catalogs.ResolveTerrain(filepath.Join(*configDir, "terrain.json"), snap.MaxStates, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load terrain:", err)
		os.Exit(1)
	}
	w, err := restore(snap, terrain)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	bad := report(os.Stdout, snap, w, *seams)

	if *eventsDir != "" {
		checked, mismatched, err := verifyEvents(*eventsDir, snap)
		if err != nil {
			fmt.Fprintln(os.Stderr, "verify events:", err)
			os.Exit(1)
		}
		fmt.Printf("events: checked=%d mismatched=%d\n", checked, mismatched)
		if mismatched > 0 {
			bad = true
		}
	}
	if bad {
		os.Exit(1)
	}
}

// restore rebuilds a world from snap using the geometry it was written with.
func restore(snap snapshot.SnapshotV1, terrain *catalogs.Terrain) (*world.World, error) {
	tune := tuning.Defaults()
	tune.Seed = snap.Seed
	tune.ChunkSize = snap.ChunkSize
	if snap.MaxStates > 0 {
		tune.MaxStates = snap.MaxStates
	}
	tune.WorldHeight = 0
	w, err := world.New(world.Config{Tuning: tune, Terrain: terrain, RunID: snap.Header.RunID})
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	if err := w.ImportSnapshot(snap); err != nil {
		return nil, fmt.Errorf("import snapshot: %w", err)
	}
	return w, nil
}

// report prints chunk and seam statistics and reports whether any rule was broken.
func report(out io.Writer, snap snapshot.SnapshotV1, w *world.World, perSeam bool) bool {
	fmt.Fprintf(out, "snapshot v%d run=%s tick=%d seed=%d chunk_size=%d terrain=%s chunks=%d center=%v radius=%d\n",
		snap.Header.Version, snap.Header.RunID, snap.Header.Tick, snap.Seed, snap.ChunkSize,
		snap.TerrainName, len(snap.Chunks), snap.Center, snap.Radius)

	eng := w.Engine()
	byState := map[string]int{}
	violations := 0
	collapsed, cells := 0, 0
	for _, c := range eng.Chunks() {
		byState[c.State().String()]++
		cells += c.CellCount()
		collapsed += c.CellCount() - c.Uncollapsed()
		if v := eng.Validate(c); len(v) > 0 {
			violations += len(v)
			fmt.Fprintf(out, "  chunk %s: %d violations, first: %s\n", c.Key, len(v), v[0])
		}
	}
	states := make([]string, 0, len(byState))
	for s := range byState {
		states = append(states, s)
	}
	sort.Strings(states)
	for _, s := range states {
		fmt.Fprintf(out, "  %-12s %d\n", s, byState[s])
	}
	fmt.Fprintf(out, "cells: collapsed=%d/%d violations=%d\n", collapsed, cells, violations)

	var n, pairs, conflicts, unresolved int
	var entropy, smooth float64
	for _, c := range eng.Chunks() {
		for _, d := range []voxel.Direction{voxel.PosX, voxel.PosY, voxel.PosZ} {
			if eng.Chunk(c.Key.Add(d.Offset())) == nil {
				continue
			}
			rep, err := eng.ScoreSeam(c, d)
			if err != nil {
				continue
			}
			n++
			pairs += rep.Pairs
			conflicts += rep.Conflicts
			unresolved += rep.Unresolved
			entropy += rep.Entropy
			smooth += rep.Smoothness
			if perSeam {
				fmt.Fprintf(out, "  seam %s %s pairs=%d conflicts=%d unresolved=%d entropy=%.3f smoothness=%.3f\n",
					c.Key, d, rep.Pairs, rep.Conflicts, rep.Unresolved, rep.Entropy, rep.Smoothness)
			}
		}
	}
	if n > 0 {
		fmt.Fprintf(out, "seams: %d pairs=%d conflicts=%d unresolved=%d mean_entropy=%.3f mean_smoothness=%.3f\n",
			n, pairs, conflicts, unresolved, entropy/float64(n), smooth/float64(n))
	} else {
		fmt.Fprintln(out, "seams: none")
	}
	return violations > 0 || conflicts > 0
}

// verifyEvents checks that the last terminal event logged for each complete
// snapshot chunk, at or before the snapshot tick, carries the same cell states.
func verifyEvents(dir string, snap snapshot.SnapshotV1) (checked, mismatched int, err error) {
	files, err := persistlog.Files(dir, "chunks")
	if err != nil {
		return 0, 0, err
	}
	if len(files) == 0 {
		return 0, 0, fmt.Errorf("no chunk event files in %s", dir)
	}
	last := map[[3]int]string{}
	for _, path := range files {
		err := persistlog.ReadLines(path, func(line []byte) error {
			var ev world.ChunkEvent
			if err := json.Unmarshal(line, &ev); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			if ev.Tick > snap.Header.Tick {
				return nil
			}
			switch {
			case ev.StatesRLE != "":
				last[ev.Key] = ev.StatesRLE
			case ev.To == "UNLOADED":
				delete(last, ev.Key)
			}
			return nil
		})
		if err != nil {
			return checked, mismatched, err
		}
	}

	for _, ch := range snap.Chunks {
		// Best-effort chunks can still be narrowed from their seams after the event.
		if ch.State != "COMPLETE" {
			continue
		}
		logged, ok := last[ch.Key]
		if !ok {
			continue
		}
		checked++
		want := make([]int, len(ch.Possible))
		for i, p := range ch.Possible {
			want[i] = encoding.Unresolved
			if s, ok := voxel.StateSet(p).Single(); ok && ch.Collapsed[i] {
				want[i] = int(s)
			}
		}
		got, err := encoding.DecodeStates(logged, len(want))
		if err != nil || !equal(got, want) {
			mismatched++
			fmt.Printf("  chunk %v: logged states differ from snapshot\n", ch.Key)
		}
	}
	return checked, mismatched, nil
}

func equal(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
