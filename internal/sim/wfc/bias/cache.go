package bias

import "github.com/go-gl/mathgl/mgl64"

// Cache memoises influence per cell index for one chunk. Entries are dropped as soon
// as the system's version moves.
type Cache struct {
	sys     *System
	states  int
	version uint64
	entries [][]float64

	Hits   uint64
	Misses uint64
}

func NewCache(sys *System, cells, states int) *Cache {
	c := &Cache{sys: sys, states: states, entries: make([][]float64, cells)}
	if sys != nil {
		c.version = sys.Version()
	}
	return c
}

// Get returns the influence at cell idx located at world position p.
// The returned slice is shared; callers must not modify it.
func (c *Cache) Get(idx int, p mgl64.Vec3) []float64 {
	if c.sys != nil && c.sys.Version() != c.version {
		c.Reset()
		c.version = c.sys.Version()
	}
	if idx < 0 || idx >= len(c.entries) {
		c.Misses++
		return c.sys.CalculateInfluence(p, c.states)
	}
	if e := c.entries[idx]; e != nil {
		c.Hits++
		return e
	}
	c.Misses++
	e := c.sys.CalculateInfluence(p, c.states)
	c.entries[idx] = e
	return e
}

func (c *Cache) Reset() {
	for i := range c.entries {
		c.entries[i] = nil
	}
}
