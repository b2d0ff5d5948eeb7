package bias

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	opensimplex "github.com/ojrac/opensimplex-go"

	"voxelwfc.ai/internal/sim/mathx"
	"voxelwfc.ai/internal/sim/voxel"
)

// StateBias maps state ids to bias values in [-1,1].
type StateBias map[voxel.StateID]float64

func (b StateBias) addScaled(out []float64, k float64) {
	for id, v := range b {
		if int(id) < len(out) {
			out[id] += v * k
		}
	}
}

type base struct {
	id       string
	level    Level
	strength float64
}

func (b base) ID() string { return b.id }

func (b base) Level() Level { return b.level }

// HeightMap biases states below and above a world height, blending linearly across
// a band of +-Blend around SplitY.
type HeightMap struct {
	base
	SplitY float64
	Blend  float64
	Below  StateBias
	Above  StateBias
}

func NewHeightMap(id string, level Level, strength, splitY, blend float64, below, above StateBias) *HeightMap {
	return &HeightMap{base: base{id, level, strength}, SplitY: splitY, Blend: blend, Below: below, Above: above}
}

func (h *HeightMap) Contribute(p mgl64.Vec3, out []float64) bool {
	y := p.Y()
	var t float64
	switch {
	case h.Blend <= 0:
		if y >= h.SplitY {
			t = 1
		}
	default:
		t = mathx.Clamp((y-(h.SplitY-h.Blend))/(2*h.Blend), 0, 1)
	}
	h.Below.addScaled(out, h.strength*(1-t))
	h.Above.addScaled(out, h.strength*t)
	return true
}

// Region is an axis-aligned box; influence is full inside and fades to zero Blend
// units outside the box.
type Region struct {
	base
	Min, Max mgl64.Vec3
	Blend    float64
	Bias     StateBias
}

func NewRegion(id string, level Level, strength float64, center, size mgl64.Vec3, blend float64, b StateBias) *Region {
	half := size.Mul(0.5)
	return &Region{base: base{id, level, strength}, Min: center.Sub(half), Max: center.Add(half), Blend: blend, Bias: b}
}

func (r *Region) distance(p mgl64.Vec3) float64 {
	var d mgl64.Vec3
	for i := 0; i < 3; i++ {
		switch {
		case p[i] < r.Min[i]:
			d[i] = r.Min[i] - p[i]
		case p[i] > r.Max[i]:
			d[i] = p[i] - r.Max[i]
		}
	}
	return d.Len()
}

func (r *Region) Contribute(p mgl64.Vec3, out []float64) bool {
	f := falloff(r.distance(p), r.Blend)
	if f <= 0 {
		return false
	}
	r.Bias.addScaled(out, r.strength*f)
	return true
}

// Sphere is a feature centre: full influence at the centre, fading linearly to the
// radius and then smoothly to zero over Blend.
type Sphere struct {
	base
	Center mgl64.Vec3
	Radius float64
	Blend  float64
	Bias   StateBias
}

func NewSphere(id string, level Level, strength float64, center mgl64.Vec3, radius, blend float64, b StateBias) *Sphere {
	return &Sphere{base: base{id, level, strength}, Center: center, Radius: radius, Blend: blend, Bias: b}
}

func (s *Sphere) Contribute(p mgl64.Vec3, out []float64) bool {
	d := p.Sub(s.Center).Len()
	var f float64
	switch {
	case d <= s.Radius && s.Radius > 0:
		f = 1 - 0.5*(d/s.Radius)
	default:
		f = 0.5 * falloff(d-math.Max(s.Radius, 0), s.Blend)
	}
	if f <= 0 {
		return false
	}
	s.Bias.addScaled(out, s.strength*f)
	return true
}

// Noise modulates a bias map with an opensimplex field; the sign of the field
// decides whether the listed states are promoted or demoted.
type Noise struct {
	base
	Frequency   float64
	Octaves     int
	Persistence float64
	Bias        StateBias
	noise       opensimplex.Noise
}

func NewNoise(id string, level Level, strength float64, seed int64, frequency float64, octaves int, b StateBias) *Noise {
	if octaves <= 0 {
		octaves = 1
	}
	if frequency <= 0 {
		frequency = 0.05
	}
	return &Noise{
		base:        base{id, level, strength},
		Frequency:   frequency,
		Octaves:     octaves,
		Persistence: 0.5,
		Bias:        b,
		noise:       opensimplex.NewNormalized(seed),
	}
}

// Sample returns the octave noise value at p in [-1,1].
func (n *Noise) Sample(p mgl64.Vec3) float64 {
	total, amplitude, maxVal := 0.0, 1.0, 0.0
	freq := n.Frequency
	for i := 0; i < n.Octaves; i++ {
		total += n.noise.Eval3(p.X()*freq, p.Y()*freq, p.Z()*freq) * amplitude
		maxVal += amplitude
		amplitude *= n.Persistence
		freq *= 2
	}
	return mathx.Clamp(2*(total/maxVal)-1, -1, 1)
}

func (n *Noise) Contribute(p mgl64.Vec3, out []float64) bool {
	n.Bias.addScaled(out, n.strength*n.Sample(p))
	return true
}

// falloff is 1 at distance 0 and eases to 0 at blend.
func falloff(dist, blend float64) float64 {
	if dist <= 0 {
		return 1
	}
	if blend <= 0 || dist >= blend {
		return 0
	}
	return 1 - mathx.Smoothstep(dist/blend)
}
