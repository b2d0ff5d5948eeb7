package catalogs

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxelwfc.ai/internal/sim/voxel"
)

//go:embed terrain.schema.json
var terrainSchemaJSON string

const terrainSchemaURL = "https://voxelwfc.ai/schemas/terrain.schema.json"

const (
	RoleAir     = "air"
	RoleGround  = "ground"
	RoleRock    = "rock"
	RoleWater   = "water"
	RoleFeature = "feature"
)

// Terrain is a validated terrain definition: the only place biome knowledge enters the engine.
type Terrain struct {
	Name           string
	States         []StateDef
	Index          map[string]voxel.StateID
	SelfCompatible bool
	Adjacency      []AdjacencyDef
	Constraints    []ConstraintDef

	Digest string
	// Fallback is set when the definition was synthesised because none was supplied.
	Fallback bool
}

type StateDef struct {
	Name   string  `json:"name"`
	Role   string  `json:"role,omitempty"`
	Weight float64 `json:"weight,omitempty"`
}

type AdjacencyDef struct {
	A    string   `json:"a"`
	B    []string `json:"b"`
	Dirs []string `json:"dirs,omitempty"` // empty = all
}

type ConstraintDef struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	Level    string  `json:"level,omitempty"`
	Strength float64 `json:"strength,omitempty"`

	Center [3]float64 `json:"center,omitempty"`
	Size   [3]float64 `json:"size,omitempty"`
	Radius float64    `json:"radius,omitempty"`
	Blend  float64    `json:"blend,omitempty"`

	SplitY float64            `json:"split_y,omitempty"`
	Below  map[string]float64 `json:"below,omitempty"`
	Above  map[string]float64 `json:"above,omitempty"`
	Bias   map[string]float64 `json:"bias,omitempty"`

	Frequency  float64 `json:"frequency,omitempty"`
	Octaves    int     `json:"octaves,omitempty"`
	SeedOffset int64   `json:"seed_offset,omitempty"`
}

type terrainFile struct {
	Name           string          `json:"name"`
	States         []StateDef      `json:"states"`
	SelfCompatible *bool           `json:"self_compatible,omitempty"`
	Adjacency      []AdjacencyDef  `json:"adjacency,omitempty"`
	Constraints    []ConstraintDef `json:"constraints,omitempty"`
}

// Roles resolves the state ids the height override needs.
type Roles struct {
	Air    voxel.StateID
	Ground voxel.StateID

	Rock     voxel.StateID
	HasRock  bool
	Water    voxel.StateID
	HasWater bool
}

var terrainSchema = func() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(terrainSchemaURL, strings.NewReader(terrainSchemaJSON)); err != nil {
		panic(fmt.Sprintf("terrain schema: %v", err))
	}
	return c.MustCompile(terrainSchemaURL)
}()

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// LoadTerrain reads and validates a terrain definition file.
func LoadTerrain(path string) (*Terrain, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := ParseTerrain(raw)
	if err != nil {
		return nil, fmt.Errorf("terrain %s: %w", path, err)
	}
	return t, nil
}

// ResolveTerrain loads path, or falls back to DefaultTerrain when the file does not exist.
// Any other failure is a configuration error.
func ResolveTerrain(path string, maxStates int, logger *log.Logger) (*Terrain, error) {
	if strings.TrimSpace(path) != "" {
		t, err := LoadTerrain(path)
		if err == nil {
			if len(t.States) > maxStates {
				return nil, fmt.Errorf("terrain %s: %d states exceeds max_states=%d", path, len(t.States), maxStates)
			}
			return t, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	if logger != nil {
		logger.Printf("terrain definition %q not found; using default ruleset (%d states, air compatible with everything)", path, maxStates)
	}
	return DefaultTerrain(maxStates), nil
}

func ParseTerrain(raw []byte) (*Terrain, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if err := terrainSchema.Validate(doc); err != nil {
		return nil, err
	}
	var f terrainFile
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	self := true
	if f.SelfCompatible != nil {
		self = *f.SelfCompatible
	}
	t, err := NewTerrain(f.Name, f.States, self, f.Adjacency, f.Constraints)
	if err != nil {
		return nil, err
	}
	t.Digest = sha256Hex(raw)
	return t, nil
}

// NewTerrain builds and cross-checks a definition assembled in code.
func NewTerrain(name string, states []StateDef, selfCompatible bool, adjacency []AdjacencyDef, constraints []ConstraintDef) (*Terrain, error) {
	if len(states) < 2 {
		return nil, fmt.Errorf("need at least 2 states, got %d", len(states))
	}
	if len(states) > voxel.MaxStates {
		return nil, fmt.Errorf("%d states exceeds the %d state limit", len(states), voxel.MaxStates)
	}
	t := &Terrain{
		Name:           name,
		States:         make([]StateDef, len(states)),
		Index:          make(map[string]voxel.StateID, len(states)),
		SelfCompatible: selfCompatible,
		Adjacency:      adjacency,
		Constraints:    constraints,
	}
	copy(t.States, states)
	airs := 0
	for i, s := range t.States {
		if s.Name == "" {
			return nil, fmt.Errorf("state %d: empty name", i)
		}
		if _, dup := t.Index[s.Name]; dup {
			return nil, fmt.Errorf("duplicate state %s", s.Name)
		}
		if s.Weight <= 0 {
			t.States[i].Weight = 1
		}
		if s.Role == RoleAir {
			airs++
		}
		t.Index[s.Name] = voxel.StateID(i)
	}
	if airs != 1 {
		return nil, fmt.Errorf("exactly one state must have role %q, got %d", RoleAir, airs)
	}
	for i, r := range adjacency {
		if _, ok := t.Index[r.A]; !ok {
			return nil, fmt.Errorf("adjacency[%d]: unknown state %s", i, r.A)
		}
		for _, b := range r.B {
			if _, ok := t.Index[b]; !ok {
				return nil, fmt.Errorf("adjacency[%d]: unknown state %s", i, b)
			}
		}
		if _, err := ExpandDirs(r.Dirs); err != nil {
			return nil, fmt.Errorf("adjacency[%d]: %w", i, err)
		}
	}
	seen := map[string]bool{}
	for i, c := range constraints {
		if c.ID == "" {
			return nil, fmt.Errorf("constraints[%d]: empty id", i)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("duplicate constraint %s", c.ID)
		}
		seen[c.ID] = true
		for _, m := range []map[string]float64{c.Below, c.Above, c.Bias} {
			for name := range m {
				if _, ok := t.Index[name]; !ok {
					return nil, fmt.Errorf("constraint %s: unknown state %s", c.ID, name)
				}
			}
		}
	}
	return t, nil
}

// DefaultTerrain is the minimal fallback: AIR, GROUND and anonymous filler states.
func DefaultTerrain(n int) *Terrain {
	if n < 2 {
		n = 2
	}
	if n > voxel.MaxStates {
		n = voxel.MaxStates
	}
	states := make([]StateDef, n)
	states[0] = StateDef{Name: "AIR", Role: RoleAir, Weight: 1}
	states[1] = StateDef{Name: "GROUND", Role: RoleGround, Weight: 1}
	for i := 2; i < n; i++ {
		states[i] = StateDef{Name: fmt.Sprintf("STATE_%d", i), Weight: 1}
	}
	t, _ := NewTerrain("default", states, true, nil, nil)
	t.Fallback = true
	t.Digest = sha256Hex([]byte(fmt.Sprintf("default:%d", n)))
	return t
}

func (t *Terrain) NumStates() int { return len(t.States) }

// Weights is the authored base weight of every state, indexed by state id.
func (t *Terrain) Weights() []float64 {
	w := make([]float64, len(t.States))
	for i, s := range t.States {
		w[i] = s.Weight
	}
	return w
}

func (t *Terrain) StateName(id voxel.StateID) string {
	if int(id) >= len(t.States) {
		return fmt.Sprintf("STATE_%d", id)
	}
	return t.States[id].Name
}

// Roles returns the air, ground and optional rock/water states.
// The first ground-role state wins; without one the first non-air state is ground.
func (t *Terrain) Roles() Roles {
	var r Roles
	groundSet := false
	for i, s := range t.States {
		id := voxel.StateID(i)
		switch s.Role {
		case RoleAir:
			r.Air = id
		case RoleGround:
			if !groundSet {
				r.Ground, groundSet = id, true
			}
		case RoleRock:
			if !r.HasRock {
				r.Rock, r.HasRock = id, true
			}
		case RoleWater:
			if !r.HasWater {
				r.Water, r.HasWater = id, true
			}
		}
	}
	if !groundSet {
		for i, s := range t.States {
			if s.Role != RoleAir {
				r.Ground = voxel.StateID(i)
				break
			}
		}
	}
	return r
}

// ExpandDirs turns rule direction names into directions. Empty or "all" means every direction.
func ExpandDirs(names []string) ([]voxel.Direction, error) {
	if len(names) == 0 {
		return voxel.AllDirections[:], nil
	}
	var mask voxel.DirMask
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "all":
			for _, d := range voxel.AllDirections {
				mask = mask.With(d)
			}
		case "horizontal":
			mask = mask.With(voxel.PosX).With(voxel.NegX).With(voxel.PosZ).With(voxel.NegZ)
		default:
			d, err := voxel.ParseDirection(n)
			if err != nil {
				return nil, err
			}
			mask = mask.With(d)
		}
	}
	return mask.Directions(), nil
}
