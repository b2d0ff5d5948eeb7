package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"voxelwfc.ai/internal/sim/voxel"
)

type Tuning struct {
	Seed       int64 `yaml:"seed"`
	ChunkSize  int   `yaml:"chunk_size"`
	MaxStates  int   `yaml:"max_states"`
	TickRateHz int   `yaml:"tick_rate_hz"`

	// Height band of the world used to normalise cell heights for overrides.
	WorldMinY   int `yaml:"world_min_y"`
	WorldHeight int `yaml:"world_height"`

	Engine    Engine    `yaml:"engine"`
	Boundary  Boundary  `yaml:"boundary"`
	LOD       LOD       `yaml:"lod"`
	Streaming Streaming `yaml:"streaming"`

	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
}

type Engine struct {
	EventsPerTick int `yaml:"events_per_tick"`
	// Collapse budget per chunk at LOD 0, expressed per cell.
	IterationsPerCell float64 `yaml:"iterations_per_cell"`

	MinWeight float64 `yaml:"min_weight"`

	DominanceEnabled bool    `yaml:"dominance_enabled"`
	DominanceWeak    float64 `yaml:"dominance_weak"`
	DominanceStrong  float64 `yaml:"dominance_strong"`

	HeightOverride HeightOverride `yaml:"height_override"`

	EntropyTiers []EntropyTier `yaml:"entropy_tiers"`
}

type HeightOverride struct {
	Enabled bool    `yaml:"enabled"`
	Upper   float64 `yaml:"upper"`
	Lower   float64 `yaml:"lower"`
}

// EntropyTier scales base entropy by Factor when the strongest |bias| exceeds Above.
type EntropyTier struct {
	Above  float64 `yaml:"above"`
	Factor float64 `yaml:"factor"`
}

type Boundary struct {
	CoherenceWeight    float64 `yaml:"coherence_weight"`
	CollapseAcrossSeam bool    `yaml:"collapse_across_seam"`
}

type LOD struct {
	InfluencePerLevel  float64 `yaml:"influence_per_level"`
	MinInfluence       float64 `yaml:"min_influence"`
	IterationsPerLevel float64 `yaml:"iterations_per_level"`
	MinIterationScale  float64 `yaml:"min_iteration_scale"`
}

type Streaming struct {
	Radius       int `yaml:"radius"`
	UnloadMargin int `yaml:"unload_margin"`
	// Maximum number of chunks created per tick.
	CreatePerTick int `yaml:"create_per_tick"`
}

func Defaults() Tuning {
	return Tuning{
		Seed:        1337,
		ChunkSize:   16,
		MaxStates:   16,
		TickRateHz:  20,
		WorldMinY:   0,
		WorldHeight: 64,
		Engine: Engine{
			EventsPerTick:     4096,
			IterationsPerCell: 4,
			MinWeight:         1e-4,
			DominanceEnabled:  true,
			DominanceWeak:     0.9,
			DominanceStrong:   0.5,
			HeightOverride: HeightOverride{
				Enabled: true,
				Upper:   0.9,
				Lower:   0.1,
			},
			EntropyTiers: []EntropyTier{
				{Above: 0.7, Factor: 0.4},
				{Above: 0.4, Factor: 0.6},
				{Above: 0.2, Factor: 0.8},
			},
		},
		Boundary: Boundary{
			CoherenceWeight:    0.85,
			CollapseAcrossSeam: true,
		},
		LOD: LOD{
			InfluencePerLevel:  0.25,
			MinInfluence:       0.25,
			IterationsPerLevel: 0.3,
			MinIterationScale:  0.2,
		},
		Streaming: Streaming{
			Radius:        2,
			UnloadMargin:  1,
			CreatePerTick: 4,
		},
		SnapshotEveryTicks: 6000,
	}
}

// Load reads tuning.yaml on top of Defaults() and validates the result.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be > 0")
	}
	if t.MaxStates <= 1 || t.MaxStates > voxel.MaxStates {
		return fmt.Errorf("max_states must be in [2, %d]", voxel.MaxStates)
	}
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if t.WorldHeight < 0 {
		return fmt.Errorf("world_height must be >= 0")
	}
	e := t.Engine
	if e.EventsPerTick <= 0 {
		return fmt.Errorf("engine.events_per_tick must be > 0")
	}
	if e.IterationsPerCell <= 0 {
		return fmt.Errorf("engine.iterations_per_cell must be > 0")
	}
	if e.MinWeight <= 0 {
		return fmt.Errorf("engine.min_weight must be > 0")
	}
	if e.DominanceStrong <= 0 || e.DominanceWeak > 1 || e.DominanceStrong > e.DominanceWeak {
		return fmt.Errorf("engine dominance thresholds must satisfy 0 < strong <= weak <= 1")
	}
	if ho := e.HeightOverride; ho.Enabled && ho.Lower > ho.Upper {
		return fmt.Errorf("engine.height_override.lower must be <= upper")
	}
	for i, tier := range e.EntropyTiers {
		if tier.Factor <= 0 || tier.Factor > 1 {
			return fmt.Errorf("engine.entropy_tiers[%d].factor must be in (0,1]", i)
		}
		if i > 0 && tier.Above > e.EntropyTiers[i-1].Above {
			return fmt.Errorf("engine.entropy_tiers must be ordered by descending above")
		}
	}
	if t.Boundary.CoherenceWeight <= 0 {
		return fmt.Errorf("boundary.coherence_weight must be > 0")
	}
	if t.LOD.MinInfluence < 0 || t.LOD.MinInfluence > 1 {
		return fmt.Errorf("lod.min_influence must be in [0,1]")
	}
	if t.LOD.MinIterationScale <= 0 || t.LOD.MinIterationScale > 1 {
		return fmt.Errorf("lod.min_iteration_scale must be in (0,1]")
	}
	if t.Streaming.Radius < 0 || t.Streaming.UnloadMargin < 0 {
		return fmt.Errorf("streaming radius/unload_margin must be >= 0")
	}
	if t.Streaming.CreatePerTick <= 0 {
		return fmt.Errorf("streaming.create_per_tick must be > 0")
	}
	return nil
}
