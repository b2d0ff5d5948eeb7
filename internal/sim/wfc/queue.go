package wfc

import (
	"container/heap"

	"voxelwfc.ai/internal/sim/voxel"
)

// PropagationEvent records one narrowing (or collapse) of a cell that still has to
// be pushed to its neighbours. Chunk and Instance let a consumer detect events
// that outlived their chunk.
type PropagationEvent struct {
	Chunk    voxel.ChunkKey
	Instance uint64
	Index    int
	Before   voxel.StateSet
	After    voxel.StateSet
	// Priority is the cell's effective entropy when queued; lower drains first.
	Priority float64
	Boundary bool

	seq uint64
}

type eventQueue []*PropagationEvent

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return q[i].Priority < q[j].Priority
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) { *q = append(*q, x.(*PropagationEvent)) }

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// push queues cell idx of c after a mutation and refreshes the mirrors that
// describe it on the other side of any seam.
func (e *Engine) push(c *Chunk, idx int, before voxel.StateSet) {
	cell := &c.cells[idx]
	if cell.IsBoundary() {
		e.boundary.reflect(c, idx)
	}
	e.seq++
	heap.Push(&e.queue, &PropagationEvent{
		Chunk:    c.Key,
		Instance: c.instance,
		Index:    idx,
		Before:   before,
		After:    cell.possible,
		Priority: e.effectiveEntropy(c, idx),
		Boundary: cell.IsBoundary(),
		seq:      e.seq,
	})
}

func (e *Engine) pop() *PropagationEvent {
	if len(e.queue) == 0 {
		return nil
	}
	return heap.Pop(&e.queue).(*PropagationEvent)
}

// Pending returns the number of queued propagation events.
func (e *Engine) Pending() int { return len(e.queue) }
