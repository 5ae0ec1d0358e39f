package layout

// Grid maps a dataset shape onto its regular chunk grid.
type Grid struct {
	Dims  []uint64
	Chunk []uint64
}

// Counts returns the number of chunks along each dimension. Edge chunks
// that hang over the dataset boundary are counted.
func (g Grid) Counts() []uint64 {
	n := make([]uint64, len(g.Dims))
	for i := range g.Dims {
		n[i] = (g.Dims[i] + g.Chunk[i] - 1) / g.Chunk[i]
	}
	return n
}

// NumChunks returns the total number of chunks in the grid.
func (g Grid) NumChunks() uint64 {
	n := uint64(1)
	for _, c := range g.Counts() {
		n *= c
	}
	return n
}

// Index returns the row-major position of the chunk holding element
// offset off. Fixed-array and implicit indexes store chunks in this order.
func (g Grid) Index(off []uint64) uint64 {
	counts := g.Counts()
	var idx uint64
	for i := range off {
		idx = idx*counts[i] + off[i]/g.Chunk[i]
	}
	return idx
}

// Contains reports whether off lies inside the dataset.
func (g Grid) Contains(off []uint64) bool {
	if len(off) != len(g.Dims) {
		return false
	}
	for i, o := range off {
		if o >= g.Dims[i] {
			return false
		}
	}
	return true
}

// Offset returns the element offset of the first element of chunk idx.
func (g Grid) Offset(idx uint64) []uint64 {
	counts := g.Counts()
	off := make([]uint64, len(counts))
	for i := len(counts) - 1; i >= 0; i-- {
		off[i] = idx % counts[i] * g.Chunk[i]
		idx /= counts[i]
	}
	return off
}

// ChunkElements returns the number of elements in one full chunk.
func (g Grid) ChunkElements() uint64 {
	n := uint64(1)
	for _, c := range g.Chunk {
		n *= c
	}
	return n
}

// block describes a box inside a row-major array.
type block struct {
	shape []uint64 // shape of the enclosing array
	start []uint64 // first element of the box within it
}

// copyBox copies a box of the given extent from src to dst. Both buffers
// are row-major arrays of elemSize-byte elements.
func copyBox(dst []byte, d block, src []byte, s block, extent []uint64, elemSize int) {
	rank := len(extent)
	if rank == 0 {
		copy(dst[:elemSize], src[:elemSize])
		return
	}
	for _, e := range extent {
		if e == 0 {
			return
		}
	}

	run := int(extent[rank-1]) * elemSize
	pos := make([]uint64, rank-1)
	for {
		var so, do uint64
		for i := 0; i < rank; i++ {
			var p uint64
			if i < rank-1 {
				p = pos[i]
			}
			so = so*s.shape[i] + s.start[i] + p
			do = do*d.shape[i] + d.start[i] + p
		}
		copy(dst[int(do)*elemSize:int(do)*elemSize+run], src[int(so)*elemSize:int(so)*elemSize+run])

		// Advance the odometer over every dimension but the last.
		i := rank - 2
		for ; i >= 0; i-- {
			pos[i]++
			if pos[i] < extent[i] {
				break
			}
			pos[i] = 0
		}
		if i < 0 {
			return
		}
	}
}
