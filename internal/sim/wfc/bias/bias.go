// Package bias evaluates hierarchical spatial constraints into per-state preference biases.
//
// Evaluation is read-only: constraints are immutable once added, and a query never
// touches cell state. Contributions are summed in sorted constraint-id order so the
// result does not depend on the order constraints were registered in.
package bias

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"voxelwfc.ai/internal/sim/mathx"
)

type Level uint8

const (
	LevelGlobal Level = iota
	LevelRegional
	LevelLocal
)

var levelNames = [...]string{"global", "regional", "local"}

// DefaultLevelWeights scales contributions so narrower scopes override broader ones.
var DefaultLevelWeights = [3]float64{0.6, 0.8, 1.0}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("level(%d)", uint8(l))
}

func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "global":
		return LevelGlobal, nil
	case "regional":
		return LevelRegional, nil
	case "local":
		return LevelLocal, nil
	}
	return 0, fmt.Errorf("unknown constraint level %q", s)
}

// Constraint is one spatially scoped bias field.
type Constraint interface {
	ID() string
	Level() Level
	// Contribute adds the falloff-weighted bias at p into out (indexed by state id).
	// It reports whether p was inside the constraint's reach.
	Contribute(p mgl64.Vec3, out []float64) bool
}

type System struct {
	constraints []Constraint
	byID        map[string]Constraint
	weights     [3]float64
	version     uint64
}

func NewSystem() *System {
	return &System{
		byID:    map[string]Constraint{},
		weights: DefaultLevelWeights,
		version: 1,
	}
}

// Version changes whenever the active constraint set changes.
func (s *System) Version() uint64 { return s.version }

func (s *System) Len() int { return len(s.constraints) }

// SetLevelWeights replaces the per-level multipliers.
func (s *System) SetLevelWeights(w [3]float64) {
	s.weights = w
	s.version++
}

func (s *System) Add(c Constraint) error {
	if c == nil {
		return fmt.Errorf("bias: nil constraint")
	}
	id := c.ID()
	if id == "" {
		return fmt.Errorf("bias: constraint without id")
	}
	if _, dup := s.byID[id]; dup {
		return fmt.Errorf("bias: duplicate constraint %s", id)
	}
	if int(c.Level()) >= len(s.weights) {
		return fmt.Errorf("bias: constraint %s: invalid level %d", id, c.Level())
	}
	s.byID[id] = c
	i := sort.Search(len(s.constraints), func(i int) bool { return s.constraints[i].ID() >= id })
	s.constraints = append(s.constraints, nil)
	copy(s.constraints[i+1:], s.constraints[i:])
	s.constraints[i] = c
	s.version++
	return nil
}

func (s *System) Remove(id string) bool {
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	for i, c := range s.constraints {
		if c.ID() == id {
			s.constraints = append(s.constraints[:i], s.constraints[i+1:]...)
			break
		}
	}
	s.version++
	return true
}

// IDs lists constraint ids in evaluation order.
func (s *System) IDs() []string {
	out := make([]string, len(s.constraints))
	for i, c := range s.constraints {
		out[i] = c.ID()
	}
	return out
}

// CalculateInfluence returns the combined bias in [-1,1] for each of maxStates states.
func (s *System) CalculateInfluence(p mgl64.Vec3, maxStates int) []float64 {
	out := make([]float64, maxStates)
	s.InfluenceInto(p, out)
	return out
}

// InfluenceInto is CalculateInfluence writing into a caller-owned slice.
func (s *System) InfluenceInto(p mgl64.Vec3, out []float64) {
	for i := range out {
		out[i] = 0
	}
	if s == nil || len(s.constraints) == 0 {
		return
	}
	scratch := make([]float64, len(out))
	for _, c := range s.constraints {
		for i := range scratch {
			scratch[i] = 0
		}
		if !c.Contribute(p, scratch) {
			continue
		}
		w := s.weights[c.Level()]
		for i, v := range scratch {
			out[i] += v * w
		}
	}
	for i, v := range out {
		out[i] = mathx.Clamp(v, -1, 1)
	}
}

// MaxAbs returns the strongest absolute bias.
func MaxAbs(b []float64) float64 {
	m := 0.0
	for _, v := range b {
		if v < 0 {
			v = -v
		}
		if v > m {
			m = v
		}
	}
	return m
}
