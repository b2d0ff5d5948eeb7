package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"voxelwfc.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "rollback":
			rollbackCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			httpCmd("state", http.MethodGet, "/admin/v1/state", 5*time.Second, os.Args[2:])
			return
		case "snapshot":
			httpCmd("snapshot", http.MethodPost, "/admin/v1/snapshot", 10*time.Second, os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the snapshots in the data dir, oldest first.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	dir := filepath.Join(*dataDir, "snapshots")
	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".snap.zst") {
			continue
		}
		h, err := snapshot.ReadHeader(filepath.Join(dir, e.Name()))
		if err != nil {
			fmt.Printf("%s\tunreadable: %v\n", e.Name(), err)
			continue
		}
		fmt.Printf("%s\ttick=%d run=%s chunks=%d\n", e.Name(), h.Tick, h.RunID, h.Chunks)
	}
}

// rollbackCmd drops every chunk inside a key box from a snapshot so a resumed
// server regenerates them against the surviving seams.
func rollbackCmd(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	snapPath := fs.String("snapshot", "", "snapshot path to rollback from (optional; defaults to latest)")
	box := fs.String("box", "", "chunk key box: x1,y1,z1:x2,y2,z2 (required)")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*box) == "" {
		fmt.Fprintln(os.Stderr, "missing -box")
		os.Exit(2)
	}
	snapDir := filepath.Join(*dataDir, "snapshots")
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" {
		snapshotToLoad = snapshot.Latest(snapDir)
	}
	if snapshotToLoad == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(snapshotToLoad)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	lo, hi, err := parseBox(*box)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -box:", err)
		os.Exit(2)
	}

	dropped := dropChunks(&snap, lo, hi)
	if dropped == 0 {
		fmt.Println("no chunks inside box; nothing to rollback")
		return
	}

	out := strings.TrimSpace(*outPath)
	if out == "" {
		out = filepath.Join(snapDir, fmt.Sprintf("%d.rollback.snap.zst", snap.Header.Tick))
	}
	if err := snapshot.WriteSnapshot(out, snap); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("rollback ok: dropped=%d kept=%d out=%s\n", dropped, len(snap.Chunks), out)
	fmt.Printf("resume with: server -snapshot %s\n", out)
}

func dropChunks(snap *snapshot.SnapshotV1, lo, hi [3]int) int {
	kept := snap.Chunks[:0]
	dropped := 0
	for _, ch := range snap.Chunks {
		if withinBox(ch.Key, lo, hi) {
			dropped++
			continue
		}
		kept = append(kept, ch)
	}
	snap.Chunks = kept
	return dropped
}

func withinBox(k, lo, hi [3]int) bool {
	return k[0] >= lo[0] && k[0] <= hi[0] &&
		k[1] >= lo[1] && k[1] <= hi[1] &&
		k[2] >= lo[2] && k[2] <= hi[2]
}

func parseBox(s string) (lo, hi [3]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return lo, hi, fmt.Errorf("expected x1,y1,z1:x2,y2,z2")
	}
	a, err := parseVec3(parts[0])
	if err != nil {
		return lo, hi, err
	}
	b, err := parseVec3(parts[1])
	if err != nil {
		return lo, hi, err
	}
	for i := 0; i < 3; i++ {
		if a[i] <= b[i] {
			lo[i], hi[i] = a[i], b[i]
		} else {
			lo[i], hi[i] = b[i], a[i]
		}
	}
	return lo, hi, nil
}

func parseVec3(s string) ([3]int, error) {
	var v [3]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z, got %q", s)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}

// httpCmd calls a local admin endpoint and prints the response body.
func httpCmd(name, method, path string, timeout time.Duration, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + path
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(2)
	}
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
