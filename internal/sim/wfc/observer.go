package wfc

import "voxelwfc.ai/internal/sim/voxel"

// ChunkObserver is told about every chunk state transition, synchronously, on the
// engine's goroutine.
type ChunkObserver interface {
	OnChunkStateChanged(key voxel.ChunkKey, old, new ChunkState)
}

// ObserverFunc adapts a function to ChunkObserver.
type ObserverFunc func(key voxel.ChunkKey, old, new ChunkState)

func (f ObserverFunc) OnChunkStateChanged(key voxel.ChunkKey, old, new ChunkState) {
	f(key, old, new)
}

func (e *Engine) AddObserver(o ChunkObserver) {
	if o != nil {
		e.observers = append(e.observers, o)
	}
}

func (e *Engine) setState(c *Chunk, next ChunkState) {
	old := c.state
	if old == next {
		return
	}
	c.state = next
	for _, o := range e.observers {
		o.OnChunkStateChanged(c.Key, old, next)
	}
}
