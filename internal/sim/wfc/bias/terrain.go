package bias

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"voxelwfc.ai/internal/sim/catalogs"
)

// FromTerrain registers every constraint a terrain definition authors.
func FromTerrain(def *catalogs.Terrain, seed int64) (*System, error) {
	sys := NewSystem()
	if def == nil {
		return sys, nil
	}
	for _, cd := range def.Constraints {
		c, err := buildConstraint(def, cd, seed)
		if err != nil {
			return nil, fmt.Errorf("constraint %s: %w", cd.ID, err)
		}
		if err := sys.Add(c); err != nil {
			return nil, err
		}
	}
	return sys, nil
}

func buildConstraint(def *catalogs.Terrain, cd catalogs.ConstraintDef, seed int64) (Constraint, error) {
	level, err := ParseLevel(cd.Level)
	if err != nil {
		return nil, err
	}
	strength := cd.Strength
	if strength == 0 {
		strength = 1
	}
	center := mgl64.Vec3{cd.Center[0], cd.Center[1], cd.Center[2]}
	switch cd.Kind {
	case "height_map":
		below, err := resolve(def, cd.Below)
		if err != nil {
			return nil, err
		}
		above, err := resolve(def, cd.Above)
		if err != nil {
			return nil, err
		}
		return NewHeightMap(cd.ID, level, strength, cd.SplitY, cd.Blend, below, above), nil
	case "region":
		b, err := resolve(def, cd.Bias)
		if err != nil {
			return nil, err
		}
		size := mgl64.Vec3{cd.Size[0], cd.Size[1], cd.Size[2]}
		return NewRegion(cd.ID, level, strength, center, size, cd.Blend, b), nil
	case "sphere":
		b, err := resolve(def, cd.Bias)
		if err != nil {
			return nil, err
		}
		return NewSphere(cd.ID, level, strength, center, cd.Radius, cd.Blend, b), nil
	case "noise":
		b, err := resolve(def, cd.Bias)
		if err != nil {
			return nil, err
		}
		return NewNoise(cd.ID, level, strength, seed+cd.SeedOffset, cd.Frequency, cd.Octaves, b), nil
	}
	return nil, fmt.Errorf("unknown kind %q", cd.Kind)
}

func resolve(def *catalogs.Terrain, m map[string]float64) (StateBias, error) {
	out := make(StateBias, len(m))
	for name, v := range m {
		id, ok := def.Index[name]
		if !ok {
			return nil, fmt.Errorf("unknown state %s", name)
		}
		if v < -1 || v > 1 {
			return nil, fmt.Errorf("bias for %s out of range: %v", name, v)
		}
		out[id] = v
	}
	return out, nil
}
