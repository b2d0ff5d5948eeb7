package wfc

import (
	"fmt"

	"voxelwfc.ai/internal/sim/voxel"
)

// Cell is one voxel's solver state. Its possible set only ever shrinks, and a
// collapse is terminal.
type Cell struct {
	Pos voxel.Vec3i

	possible  voxel.StateSet
	state     voxel.StateID
	collapsed bool
	boundary  voxel.DirMask
}

func (c *Cell) Possible() voxel.StateSet { return c.possible }

// Collapsed returns the resolved state, if any.
func (c *Cell) Collapsed() (voxel.StateID, bool) { return c.state, c.collapsed }

func (c *Cell) IsCollapsed() bool { return c.collapsed }

// Entropy is |possible|, or 0 once collapsed.
func (c *Cell) Entropy() int {
	if c.collapsed {
		return 0
	}
	return c.possible.Len()
}

func (c *Cell) IsBoundary() bool { return !c.boundary.Empty() }

// BoundaryDirs lists the chunk faces the cell lies on (up to three for a corner).
func (c *Cell) BoundaryDirs() voxel.DirMask { return c.boundary }

// SetPossibleStates narrows the cell to possible ∩ set.
// An empty result is refused and leaves the cell untouched.
func (c *Cell) SetPossibleStates(set voxel.StateSet) (bool, error) {
	if c.collapsed {
		if set.Has(c.state) {
			return false, nil
		}
		return false, fmt.Errorf("%w: cell %s is %d", ErrAlreadyCollapsed, c.Pos, c.state)
	}
	next := c.possible.Intersect(set)
	if next.IsEmpty() {
		return false, fmt.Errorf("%w: cell %s %s ∩ %s", ErrEmptyStateSet, c.Pos, c.possible, set)
	}
	if next == c.possible {
		return false, nil
	}
	c.possible = next
	return true, nil
}

// Collapse resolves the cell to s. Repeating the same s is a no-op; a different s
// is rejected with ErrAlreadyCollapsed.
func (c *Cell) Collapse(s voxel.StateID) error {
	if c.collapsed {
		if s == c.state {
			return nil
		}
		return fmt.Errorf("%w: cell %s is %d, asked %d", ErrAlreadyCollapsed, c.Pos, c.state, s)
	}
	if !c.possible.Has(s) {
		return fmt.Errorf("%w: cell %s state %d not in %s", ErrStateNotPossible, c.Pos, s, c.possible)
	}
	c.collapsed = true
	c.state = s
	c.possible = voxel.SetOf(s)
	return nil
}

func (c *Cell) reset(allowed voxel.StateSet) {
	c.possible = allowed
	c.state = 0
	c.collapsed = false
}
