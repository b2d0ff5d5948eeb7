package world

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"voxelwfc.ai/internal/sim/mathx"
	"voxelwfc.ai/internal/sim/voxel"
)

// EnsureRequest recentres streaming. Chunks within Radius (Chebyshev, in chunks) of
// Center are created nearest-first; chunks beyond Radius+unload_margin are unloaded.
type EnsureRequest struct {
	Center voxel.ChunkKey
	// Radius < 0 keeps the current radius.
	Radius int
	// Viewer overrides the tie-break point; nil uses the centre chunk's middle.
	Viewer *mgl64.Vec3
}

// ChunkAt returns the chunk key holding world block position p.
func (w *World) ChunkAt(p voxel.Vec3i) voxel.ChunkKey {
	k, _ := mathx.SplitWorld(p, w.cfg.ChunkSize)
	return k
}

func (w *World) applyEnsure(req EnsureRequest) {
	if req.Radius >= 0 {
		w.radius = req.Radius
	}
	w.center = req.Center

	if req.Viewer != nil {
		w.engine.SetViewer(*req.Viewer)
	} else {
		half := float64(w.cfg.ChunkSize) / 2
		o := req.Center.Scale(w.cfg.ChunkSize).Vec3()
		w.engine.SetViewer(o.Add(mgl64.Vec3{half, half, half}))
	}

	keep := w.radius + w.cfg.Streaming.UnloadMargin
	for _, c := range w.engine.Chunks() {
		d := voxel.Chebyshev(c.Key, w.center)
		if d > keep {
			if err := w.engine.UnloadChunk(c.Key); err != nil {
				w.logger.Printf("unload %s: %v", c.Key, err)
			}
			continue
		}
		if d != c.LOD {
			w.engine.SetLOD(c, d)
		}
	}
	w.createQueue = w.plan()
}

// plan lists missing chunks inside the radius and the world band, nearest first.
func (w *World) plan() []voxel.ChunkKey {
	r := w.radius
	var out []voxel.ChunkKey
	for dy := -r; dy <= r; dy++ {
		for dz := -r; dz <= r; dz++ {
			for dx := -r; dx <= r; dx++ {
				k := w.center.Add(voxel.Vec3i{X: dx, Y: dy, Z: dz})
				if !w.inBand(k) || w.engine.Chunk(k) != nil {
					continue
				}
				out = append(out, k)
			}
		}
	}
	c := w.center
	dist2 := func(k voxel.ChunkKey) int {
		dx, dy, dz := k.X-c.X, k.Y-c.Y, k.Z-c.Z
		return dx*dx + dy*dy + dz*dz
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := voxel.Chebyshev(out[i], c), voxel.Chebyshev(out[j], c)
		if ci != cj {
			return ci < cj
		}
		if di, dj := dist2(out[i]), dist2(out[j]); di != dj {
			return di < dj
		}
		return out[i].Less(out[j])
	})
	return out
}

// inBand reports whether chunk k overlaps the configured vertical world band.
// Without a band every layer is eligible.
func (w *World) inBand(k voxel.ChunkKey) bool {
	if w.cfg.WorldHeight <= 0 {
		return true
	}
	lo := k.Y * w.cfg.ChunkSize
	hi := lo + w.cfg.ChunkSize
	return hi > w.cfg.WorldMinY && lo < w.cfg.WorldMinY+w.cfg.WorldHeight
}

// createQueued creates up to create_per_tick planned chunks, linking each to its
// loaded neighbours and seeding its boundary buffers.
func (w *World) createQueued() {
	limit := w.cfg.Streaming.CreatePerTick
	if limit <= 0 {
		limit = len(w.createQueue)
	}
	made := 0
	for len(w.createQueue) > 0 && made < limit {
		k := w.createQueue[0]
		w.createQueue = w.createQueue[1:]
		d := voxel.Chebyshev(k, w.center)
		if d > w.radius || w.engine.Chunk(k) != nil {
			continue
		}
		c, err := w.engine.CreateChunk(k)
		if err != nil {
			w.logger.Printf("create %s: %v", k, err)
			continue
		}
		w.engine.SetLOD(c, d)
		w.engine.ConnectNeighbors(c)
		w.engine.InitializeBoundaryBuffers(c)
		made++
	}
}
