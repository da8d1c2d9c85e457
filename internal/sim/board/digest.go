package board

import (
	"encoding/binary"
	"io"
)

// WriteDigest feeds the board's mutable state (tiles, vein yields, ground items) to h
// in a canonical order.
func (b *Board) WriteDigest(h io.Writer) {
	var tmp [8]byte
	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(tmp[:], v)
		_, _ = h.Write(tmp[:])
	}

	putU64(uint64(b.size))
	for i, t := range b.tiles {
		_, _ = h.Write([]byte{byte(t)})
		putU64(uint64(b.yield[i]))
	}
	putU64(b.nextItem)
	cells := b.GroundCells()
	putU64(uint64(len(cells)))
	for _, p := range cells {
		putU64(uint64(b.index(p)))
		items := b.ground[p]
		putU64(uint64(len(items)))
		for _, it := range items {
			putU64(it.ID)
			_, _ = h.Write([]byte{byte(it.Kind)})
		}
	}
}
