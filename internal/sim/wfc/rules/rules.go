// Package rules holds the symmetric adjacency compatibility table.
package rules

import (
	"fmt"

	"voxelwfc.ai/internal/sim/catalogs"
	"voxelwfc.ai/internal/sim/voxel"
)

// Table answers AreCompatible(a, b, d): may state b sit on side d of state a.
// Every insert also records (b, a, opposite(d)), so the table is symmetric by construction.
type Table struct {
	n       int
	allowed [][voxel.NumDirections]voxel.StateSet
}

func New(n int) (*Table, error) {
	if n < 1 || n > voxel.MaxStates {
		return nil, fmt.Errorf("rules: state count %d out of range [1,%d]", n, voxel.MaxStates)
	}
	return &Table{n: n, allowed: make([][voxel.NumDirections]voxel.StateSet, n)}, nil
}

func (t *Table) NumStates() int { return t.n }

func (t *Table) valid(id voxel.StateID) bool { return int(id) < t.n }

// Allow records a and b as compatible along d (and b, a along opposite(d)).
func (t *Table) Allow(a, b voxel.StateID, d voxel.Direction) error {
	if !t.valid(a) || !t.valid(b) {
		return fmt.Errorf("rules: state out of range (%d, %d) for %d states", a, b, t.n)
	}
	if !d.Valid() {
		return fmt.Errorf("rules: invalid direction %d", d)
	}
	t.allowed[a][d] = t.allowed[a][d].With(b)
	t.allowed[b][d.Opposite()] = t.allowed[b][d.Opposite()].With(a)
	return nil
}

func (t *Table) allowAll(a, b voxel.StateID) {
	for _, d := range voxel.AllDirections {
		_ = t.Allow(a, b, d)
	}
}

// AreCompatible fails closed on unknown ids and directions.
func (t *Table) AreCompatible(a, b voxel.StateID, d voxel.Direction) bool {
	if t == nil || !t.valid(a) || !t.valid(b) || !d.Valid() {
		return false
	}
	return t.allowed[a][d].Has(b)
}

// Allowed is the set of states that may sit on side d of a.
func (t *Table) Allowed(a voxel.StateID, d voxel.Direction) voxel.StateSet {
	if t == nil || !t.valid(a) || !d.Valid() {
		return 0
	}
	return t.allowed[a][d]
}

// Support is the union of Allowed(s, d) over s in set.
func (t *Table) Support(set voxel.StateSet, d voxel.Direction) voxel.StateSet {
	var out voxel.StateSet
	for v := set; !v.IsEmpty(); {
		id, _ := v.Lowest()
		out = out.Union(t.Allowed(id, d))
		v = v.Without(id)
	}
	return out
}

// Default is the fallback ruleset: air is compatible with everything and every state with itself.
func Default(n int, air voxel.StateID) (*Table, error) {
	t, err := New(n)
	if err != nil {
		return nil, err
	}
	if !t.valid(air) {
		return nil, fmt.Errorf("rules: air state %d out of range", air)
	}
	for i := 0; i < n; i++ {
		id := voxel.StateID(i)
		t.allowAll(id, id)
		t.allowAll(air, id)
	}
	return t, nil
}

// Build compiles a terrain definition. Air stays compatible with everything,
// so a loaded terrain can never make the world unsatisfiable from above.
func Build(def *catalogs.Terrain) (*Table, error) {
	if def == nil {
		return nil, fmt.Errorf("rules: nil terrain definition")
	}
	t, err := New(def.NumStates())
	if err != nil {
		return nil, err
	}
	roles := def.Roles()
	for i := 0; i < t.n; i++ {
		id := voxel.StateID(i)
		if def.SelfCompatible {
			t.allowAll(id, id)
		}
		t.allowAll(roles.Air, id)
	}
	for i, r := range def.Adjacency {
		a, ok := def.Index[r.A]
		if !ok {
			return nil, fmt.Errorf("rules: adjacency[%d]: unknown state %s", i, r.A)
		}
		dirs, err := catalogs.ExpandDirs(r.Dirs)
		if err != nil {
			return nil, fmt.Errorf("rules: adjacency[%d]: %w", i, err)
		}
		for _, name := range r.B {
			b, ok := def.Index[name]
			if !ok {
				return nil, fmt.Errorf("rules: adjacency[%d]: unknown state %s", i, name)
			}
			for _, d := range dirs {
				if err := t.Allow(a, b, d); err != nil {
					return nil, err
				}
			}
		}
	}
	return t, nil
}

// CheckSymmetry reports the first (a, b, d) whose mirror entry disagrees.
func (t *Table) CheckSymmetry() error {
	for a := 0; a < t.n; a++ {
		for b := 0; b < t.n; b++ {
			for _, d := range voxel.AllDirections {
				x := t.AreCompatible(voxel.StateID(a), voxel.StateID(b), d)
				y := t.AreCompatible(voxel.StateID(b), voxel.StateID(a), d.Opposite())
				if x != y {
					return fmt.Errorf("rules: asymmetric entry (%d,%d,%s)", a, b, d)
				}
			}
		}
	}
	return nil
}
