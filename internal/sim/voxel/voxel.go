package voxel

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

type Vec3i struct {
	X int
	Y int
	Z int
}

// ChunkKey is a chunk-grid coordinate. World block position = key * chunkSize.
type ChunkKey = Vec3i

func (v Vec3i) Add(o Vec3i) Vec3i { return Vec3i{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

func (v Vec3i) Scale(k int) Vec3i { return Vec3i{X: v.X * k, Y: v.Y * k, Z: v.Z * k} }

func (v Vec3i) Vec3() mgl64.Vec3 { return mgl64.Vec3{float64(v.X), float64(v.Y), float64(v.Z)} }

// Center returns the centre of the unit voxel at v in world space.
func (v Vec3i) Center() mgl64.Vec3 {
	return mgl64.Vec3{float64(v.X) + 0.5, float64(v.Y) + 0.5, float64(v.Z) + 0.5}
}

func (v Vec3i) String() string { return fmt.Sprintf("%d,%d,%d", v.X, v.Y, v.Z) }

// Less orders keys by X, then Y, then Z.
func (v Vec3i) Less(o Vec3i) bool {
	if v.X != o.X {
		return v.X < o.X
	}
	if v.Y != o.Y {
		return v.Y < o.Y
	}
	return v.Z < o.Z
}

// Chebyshev returns max(|dx|,|dy|,|dz|).
func Chebyshev(a, b Vec3i) int {
	d := abs(a.X - b.X)
	if dy := abs(a.Y - b.Y); dy > d {
		d = dy
	}
	if dz := abs(a.Z - b.Z); dz > d {
		d = dz
	}
	return d
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Direction is one of the six axis directions.
type Direction uint8

const (
	PosX Direction = iota
	NegX
	PosY
	NegY
	PosZ
	NegZ
)

const NumDirections = 6

var AllDirections = [NumDirections]Direction{PosX, NegX, PosY, NegY, PosZ, NegZ}

var dirNames = [NumDirections]string{"+x", "-x", "+y", "-y", "+z", "-z"}

var dirOffsets = [NumDirections]Vec3i{
	{X: 1}, {X: -1},
	{Y: 1}, {Y: -1},
	{Z: 1}, {Z: -1},
}

func (d Direction) Opposite() Direction { return d ^ 1 }

func (d Direction) Offset() Vec3i { return dirOffsets[d] }

func (d Direction) Valid() bool { return d < NumDirections }

func (d Direction) String() string {
	if !d.Valid() {
		return fmt.Sprintf("dir(%d)", uint8(d))
	}
	return dirNames[d]
}

// ParseDirection accepts "+x", "-y", ... and the aliases east/west/up/down/south/north.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "+x", "east":
		return PosX, nil
	case "-x", "west":
		return NegX, nil
	case "+y", "up":
		return PosY, nil
	case "-y", "down":
		return NegY, nil
	case "+z", "south":
		return PosZ, nil
	case "-z", "north":
		return NegZ, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// DirMask is a set of directions.
type DirMask uint8

func (m DirMask) Has(d Direction) bool { return m&(1<<d) != 0 }

func (m DirMask) With(d Direction) DirMask { return m | 1<<d }

func (m DirMask) Without(d Direction) DirMask { return m &^ (1 << d) }

func (m DirMask) Empty() bool { return m == 0 }

func (m DirMask) Directions() []Direction {
	var out []Direction
	for _, d := range AllDirections {
		if m.Has(d) {
			out = append(out, d)
		}
	}
	return out
}
