package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// StateDigest hashes every loaded chunk's key, lifecycle state and cell sets in
// key order. Two worlds with equal digests hold identical terrain.
// It must run on the world goroutine (or while Run is not active).
func (w *World) StateDigest() string {
	h := sha256.New()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	for _, c := range w.engine.Chunks() {
		put(uint64(int64(c.Key.X)))
		put(uint64(int64(c.Key.Y)))
		put(uint64(int64(c.Key.Z)))
		put(uint64(c.State()))
		for i, set := range c.PossibleSets() {
			put(uint64(set))
			if c.CellAt(i).IsCollapsed() {
				h.Write([]byte{1})
			} else {
				h.Write([]byte{0})
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
