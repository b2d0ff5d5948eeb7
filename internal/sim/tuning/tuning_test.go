package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	raw := []byte(`
seed: 7
chunk_size: 8
engine:
  events_per_tick: 64
  dominance_strong: 0.6
lod:
  influence_per_level: 0.5
`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tune, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.Seed != 7 || tune.ChunkSize != 8 || tune.Engine.EventsPerTick != 64 {
		t.Fatalf("overrides not applied: %+v", tune)
	}
	if tune.Engine.DominanceWeak != 0.9 || tune.Engine.DominanceStrong != 0.6 {
		t.Fatalf("dominance: weak=%v strong=%v", tune.Engine.DominanceWeak, tune.Engine.DominanceStrong)
	}
	if tune.MaxStates != Defaults().MaxStates || tune.LOD.InfluencePerLevel != 0.5 {
		t.Fatalf("defaults lost: %+v", tune)
	}
}

func TestLoadRejectsBadChunkSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(path, []byte("chunk_size: 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for chunk_size 0")
	}
}

func TestLoadRejectsTooManyStates(t *testing.T) {
	tune := Defaults()
	tune.MaxStates = 65
	if err := tune.Validate(); err == nil {
		t.Fatalf("expected error for max_states > 64")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
