package voxel

import "testing"

func TestDirectionOppositeRoundTrip(t *testing.T) {
	for _, d := range AllDirections {
		o := d.Opposite()
		if o == d || o.Opposite() != d {
			t.Fatalf("opposite mismatch for %s: %s", d, o)
		}
		if d.Offset().Add(o.Offset()) != (Vec3i{}) {
			t.Fatalf("offsets of %s and %s do not cancel", d, o)
		}
		p, err := ParseDirection(d.String())
		if err != nil || p != d {
			t.Fatalf("parse %q: got %v err=%v", d.String(), p, err)
		}
	}
	if _, err := ParseDirection("sideways"); err == nil {
		t.Fatalf("expected error for unknown direction")
	}
}

func TestStateSetOps(t *testing.T) {
	s := FullSet(4)
	if s.Len() != 4 || !s.Has(3) || s.Has(4) {
		t.Fatalf("FullSet(4)=%s", s)
	}
	s = s.Without(1).Without(3)
	if got := s.States(); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Fatalf("states after removal: %v", got)
	}
	if _, ok := s.Single(); ok {
		t.Fatalf("two-element set reported single")
	}
	one := s.Intersect(SetOf(2, 5))
	if id, ok := one.Single(); !ok || id != 2 {
		t.Fatalf("single: got %d ok=%v", id, ok)
	}
	if !one.SubsetOf(s) || s.SubsetOf(one) {
		t.Fatalf("subset relation wrong")
	}
	if FullSet(MaxStates).Len() != MaxStates {
		t.Fatalf("full 64-state set has %d members", FullSet(MaxStates).Len())
	}
	if s.Has(200) || s.With(200) != s {
		t.Fatalf("out-of-range id must be ignored")
	}
}

func TestDirMask(t *testing.T) {
	var m DirMask
	m = m.With(PosX).With(NegY)
	if !m.Has(PosX) || !m.Has(NegY) || m.Has(PosZ) {
		t.Fatalf("mask membership wrong: %b", m)
	}
	if got := m.Directions(); len(got) != 2 || got[0] != PosX || got[1] != NegY {
		t.Fatalf("directions: %v", got)
	}
	if Chebyshev(Vec3i{1, -3, 2}, Vec3i{0, 0, 0}) != 3 {
		t.Fatalf("chebyshev distance wrong")
	}
}
