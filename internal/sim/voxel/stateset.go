package voxel

import (
	"math/bits"
	"strconv"
	"strings"
)

// StateID identifies a discrete terrain state.
type StateID uint8

// MaxStates is the upper bound on the number of terrain states a world may define.
const MaxStates = 64

// StateSet is a bitset of StateIDs.
type StateSet uint64

// FullSet returns {0..n-1}.
func FullSet(n int) StateSet {
	if n <= 0 {
		return 0
	}
	if n >= MaxStates {
		return ^StateSet(0)
	}
	return StateSet(1)<<uint(n) - 1
}

func SetOf(ids ...StateID) StateSet {
	var s StateSet
	for _, id := range ids {
		s = s.With(id)
	}
	return s
}

func (s StateSet) Has(id StateID) bool {
	return id < MaxStates && s&(1<<id) != 0
}

func (s StateSet) With(id StateID) StateSet {
	if id >= MaxStates {
		return s
	}
	return s | 1<<id
}

func (s StateSet) Without(id StateID) StateSet {
	if id >= MaxStates {
		return s
	}
	return s &^ (1 << id)
}

func (s StateSet) Intersect(o StateSet) StateSet { return s & o }

func (s StateSet) Union(o StateSet) StateSet { return s | o }

func (s StateSet) Len() int { return bits.OnesCount64(uint64(s)) }

func (s StateSet) IsEmpty() bool { return s == 0 }

func (s StateSet) SubsetOf(o StateSet) bool { return s&^o == 0 }

// Single reports the only member of a one-element set.
func (s StateSet) Single() (StateID, bool) {
	if s.Len() != 1 {
		return 0, false
	}
	return StateID(bits.TrailingZeros64(uint64(s))), true
}

// Lowest returns the smallest member.
func (s StateSet) Lowest() (StateID, bool) {
	if s == 0 {
		return 0, false
	}
	return StateID(bits.TrailingZeros64(uint64(s))), true
}

// States lists members in ascending order.
func (s StateSet) States() []StateID {
	out := make([]StateID, 0, s.Len())
	for v := uint64(s); v != 0; v &= v - 1 {
		out = append(out, StateID(bits.TrailingZeros64(v)))
	}
	return out
}

func (s StateSet) String() string {
	ids := s.States()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(int(id))
	}
	return "{" + strings.Join(parts, ",") + "}"
}
