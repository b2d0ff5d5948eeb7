package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	key := fs.String("key", "", "chunk key x,y,z (chunk query)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "terrain.sqlite")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(db, q, *limit, *key, printJSON); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runQuery executes one named index query and hands each row to emit.
func runQuery(db *sql.DB, q string, limit int, key string, emit func(any)) error {
	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,run_id,seed,chunks,complete FROM snapshots ORDER BY tick DESC LIMIT ?`, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick     int64  `json:"tick"`
				Path     string `json:"path"`
				RunID    string `json:"run_id"`
				Seed     int64  `json:"seed"`
				Chunks   int    `json:"chunks"`
				Complete int    `json:"complete"`
			}
			if err := rows.Scan(&r.Tick, &r.Path, &r.RunID, &r.Seed, &r.Chunks, &r.Complete); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "states":
		rows, err := db.Query(`SELECT state, COUNT(*) FROM chunks GROUP BY state ORDER BY state`)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		out := map[string]int{}
		for rows.Next() {
			var state string
			var n int
			if err := rows.Scan(&state, &n); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			out[state] = n
		}
		if err := rows.Err(); err != nil {
			return err
		}
		emit(out)
		return nil

	case "chunk":
		k, err := parseVec3(key)
		if err != nil {
			return fmt.Errorf("-key: %w", err)
		}
		var r struct {
			Key        [3]int `json:"key"`
			Tick       int64  `json:"tick"`
			State      string `json:"state"`
			LOD        int    `json:"lod"`
			Iterations int    `json:"iterations"`
			Conflicts  int    `json:"conflicts"`
			Collapsed  int    `json:"collapsed"`
			Cells      int    `json:"cells"`
			StatesRLE  string `json:"states_rle"`
		}
		r.Key = k
		row := db.QueryRow(`SELECT tick,state,lod,iterations,conflicts,collapsed,cells,states_rle FROM chunks WHERE x=? AND y=? AND z=?`, k[0], k[1], k[2])
		if err := row.Scan(&r.Tick, &r.State, &r.LOD, &r.Iterations, &r.Conflicts, &r.Collapsed, &r.Cells, &r.StatesRLE); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		emit(r)
		return nil

	case "seams":
		// Worst first: conflicts, then the roughest faces.
		rows, err := db.Query(`SELECT x,y,z,dir,tick,pairs,conflicts,unresolved,entropy,smoothness FROM seams ORDER BY conflicts DESC, smoothness ASC LIMIT ?`, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Chunk      [3]int  `json:"chunk"`
				Dir        string  `json:"dir"`
				Tick       int64   `json:"tick"`
				Pairs      int     `json:"pairs"`
				Conflicts  int     `json:"conflicts"`
				Unresolved int     `json:"unresolved"`
				Entropy    float64 `json:"entropy"`
				Smoothness float64 `json:"smoothness"`
			}
			if err := rows.Scan(&r.Chunk[0], &r.Chunk[1], &r.Chunk[2], &r.Dir, &r.Tick, &r.Pairs, &r.Conflicts, &r.Unresolved, &r.Entropy, &r.Smoothness); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "terrain":
		rows, err := db.Query(`SELECT name,digest,updated_at FROM terrain ORDER BY name`)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	default:
		return fmt.Errorf("unknown query: %s (want snapshots|states|chunk|seams|terrain)", q)
	}
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
