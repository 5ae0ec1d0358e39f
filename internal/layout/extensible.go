package layout

import (
	"fmt"
	"math/bits"

	"github.com/robert-malhotra/tomochunk/internal/binary"
)

// eaHeader is the decoded header of an extensible array chunk index, the
// index HDF5 uses for datasets with one unlimited dimension.
type eaHeader struct {
	client      uint8
	esz         int
	maxBits     int // log2 of the largest element count
	idxElems    int // elements stored in the index block itself
	dblkMin     int // elements in the smallest data block
	sblkMinPtrs int // data block pointers in the smallest super block
	pageBits    int // log2 of the elements per data block page
	maxIdx      uint64
	iblock      uint64
}

// eaSuper describes super block u: how many data blocks it holds, how
// many elements each has, and the first element index it covers counted
// from the end of the index block.
type eaSuper struct {
	ndblks    uint64
	dblkElems uint64
	start     uint64
}

func (h *eaHeader) filtered() bool { return h.client == faClientFiltered }

// offSize is the width of the block offset field in data and super blocks.
func (h *eaHeader) offSize() int { return (h.maxBits + 7) / 8 }

func (h *eaHeader) pageElems() uint64 { return 1 << h.pageBits }

func (h *eaHeader) supers() []eaSuper {
	n := 1 + h.maxBits - bits.Len(uint(h.dblkMin)) + 1
	out := make([]eaSuper, max(n, 0))
	var start uint64
	for u := range out {
		out[u] = eaSuper{
			ndblks:    1 << (u / 2),
			dblkElems: uint64(1<<((u+1)/2)) * uint64(h.dblkMin),
			start:     start,
		}
		start += out[u].ndblks * out[u].dblkElems
	}
	return out
}

func readEAHeader(r *binary.Reader, addr uint64) (*eaHeader, error) {
	s := r.Sizes()
	hlen := 4 + 1 + 1 + 6 + 6*s.Length + s.Offset
	c, err := r.CursorAt(addr, hlen+4)
	if err != nil {
		return nil, fmt.Errorf("extensible array header: %w", err)
	}
	if err := verify(c, hlen, "EAHD"); err != nil {
		return nil, fmt.Errorf("extensible array header at %d: %w", addr, err)
	}
	c.Seek(4)
	if v := c.U8(); v != 0 {
		return nil, fmt.Errorf("extensible array header at %d: unsupported version %d", addr, v)
	}
	h := &eaHeader{
		client:      c.U8(),
		esz:         int(c.U8()),
		maxBits:     int(c.U8()),
		idxElems:    int(c.U8()),
		dblkMin:     int(c.U8()),
		sblkMinPtrs: int(c.U8()),
		pageBits:    int(c.U8()),
	}
	c.Skip(4 * s.Length) // super and data block statistics
	h.maxIdx = c.Length()
	c.Skip(s.Length) // elements realized
	h.iblock = c.Offset()
	if c.Err() != nil {
		return nil, c.Err()
	}

	switch {
	case h.client > faClientFiltered:
		return nil, fmt.Errorf("extensible array header at %d: unknown client %d", addr, h.client)
	case h.esz < s.Offset || (h.filtered() && h.esz < s.Offset+5):
		return nil, fmt.Errorf("extensible array header at %d: entry size %d too small", addr, h.esz)
	case h.dblkMin == 0 || h.dblkMin&(h.dblkMin-1) != 0,
		h.sblkMinPtrs == 0 || h.sblkMinPtrs&(h.sblkMinPtrs-1) != 0:
		return nil, fmt.Errorf("extensible array header at %d: block sizes %d/%d are not powers of two", addr, h.dblkMin, h.sblkMinPtrs)
	case h.maxBits < 1 || h.maxBits > 64 || h.pageBits > 32:
		return nil, fmt.Errorf("extensible array header at %d: %d element bits, %d page bits", addr, h.maxBits, h.pageBits)
	}
	return h, nil
}

// readExtensibleArray decodes the extensible array index at addr into a
// list indexed by element number. Elements that were never set have the
// undefined address.
func readExtensibleArray(r *binary.Reader, addr uint64, chunkBytes uint64) ([]Entry, error) {
	h, err := readEAHeader(r, addr)
	if err != nil {
		return nil, err
	}
	s := r.Sizes()
	entries := make([]Entry, h.maxIdx)
	for i := range entries {
		entries[i].Address = s.Undefined()
	}
	if s.IsUndefined(h.iblock) || h.maxIdx == 0 {
		return entries, nil
	}
	ea := eaReader{r: r, h: h, chunkBytes: chunkBytes, entries: entries}
	if err := ea.indexBlock(); err != nil {
		return nil, err
	}
	return entries, nil
}

type eaReader struct {
	r          *binary.Reader
	h          *eaHeader
	chunkBytes uint64
	entries    []Entry
}

// decode reads n elements starting at element first, dropping any past
// the highest index ever set.
func (ea *eaReader) decode(c *binary.Cursor, first, n uint64) {
	s := ea.r.Sizes()
	for i := uint64(0); i < n; i++ {
		e := Entry{Address: c.Offset(), Size: ea.chunkBytes}
		if ea.h.filtered() {
			e.Size = c.UintN(ea.h.esz - s.Offset - 4)
			e.FilterMask = c.U32()
		} else {
			c.Skip(ea.h.esz - s.Offset)
		}
		if first+i < uint64(len(ea.entries)) {
			ea.entries[first+i] = e
		}
	}
}

func (ea *eaReader) indexBlock() error {
	h, s := ea.h, ea.r.Sizes()
	supers := h.supers()
	inBlock := 2 * (bits.Len(uint(h.sblkMinPtrs)) - 1)
	ndblk := 2 * (h.sblkMinPtrs - 1)
	nsblk := max(len(supers)-inBlock, 0)

	prefix := 4 + 1 + 1 + s.Offset
	n := prefix + h.idxElems*h.esz + (ndblk+nsblk)*s.Offset
	c, err := ea.r.CursorAt(h.iblock, n+4)
	if err != nil {
		return fmt.Errorf("extensible array index block: %w", err)
	}
	if err := verify(c, n, "EAIB"); err != nil {
		return fmt.Errorf("extensible array index block at %d: %w", h.iblock, err)
	}
	c.Seek(prefix)
	ea.decode(c, 0, uint64(h.idxElems))
	dblks := make([]uint64, ndblk)
	for i := range dblks {
		dblks[i] = c.Offset()
	}
	sblks := make([]uint64, nsblk)
	for i := range sblks {
		sblks[i] = c.Offset()
	}
	if c.Err() != nil {
		return c.Err()
	}

	// The first super blocks have no block of their own: the index block
	// lists their data blocks in order.
	next := 0
	for u := 0; u < inBlock && u < len(supers); u++ {
		sb := supers[u]
		for k := uint64(0); k < sb.ndblks && next < len(dblks); k++ {
			first := uint64(h.idxElems) + sb.start + k*sb.dblkElems
			if err := ea.dataBlock(dblks[next], first, sb.dblkElems, nil); err != nil {
				return err
			}
			next++
		}
	}
	for i, addr := range sblks {
		if err := ea.superBlock(addr, supers[inBlock+i]); err != nil {
			return err
		}
	}
	return nil
}

func (ea *eaReader) superBlock(addr uint64, sb eaSuper) error {
	s := ea.r.Sizes()
	if s.IsUndefined(addr) || uint64(ea.h.idxElems)+sb.start >= uint64(len(ea.entries)) {
		return nil
	}
	var initLen int
	if sb.dblkElems > ea.h.pageElems() {
		npages := sb.dblkElems / ea.h.pageElems()
		initLen = int((npages + 7) / 8)
	}
	prefix := 4 + 1 + 1 + s.Offset + ea.h.offSize()
	n := prefix + int(sb.ndblks)*(initLen+s.Offset)
	c, err := ea.r.CursorAt(addr, n+4)
	if err != nil {
		return fmt.Errorf("extensible array super block: %w", err)
	}
	if err := verify(c, n, "EASB"); err != nil {
		return fmt.Errorf("extensible array super block at %d: %w", addr, err)
	}
	c.Seek(prefix)
	pageInit := c.Bytes(int(sb.ndblks) * initLen)
	for k := uint64(0); k < sb.ndblks; k++ {
		dblk := c.Offset()
		if c.Err() != nil {
			return c.Err()
		}
		var init []byte
		if initLen > 0 {
			init = pageInit[int(k)*initLen : int(k+1)*initLen]
		}
		first := uint64(ea.h.idxElems) + sb.start + k*sb.dblkElems
		if err := ea.dataBlock(dblk, first, sb.dblkElems, init); err != nil {
			return err
		}
	}
	return nil
}

// dataBlock reads the data block at addr holding elements [first,
// first+n). A block larger than a page is split into checksummed pages,
// and only pages marked in init were ever written.
func (ea *eaReader) dataBlock(addr, first, n uint64, init []byte) error {
	s := ea.r.Sizes()
	if s.IsUndefined(addr) || first >= uint64(len(ea.entries)) {
		return nil
	}
	prefix := 4 + 1 + 1 + s.Offset + ea.h.offSize()
	if n <= ea.h.pageElems() {
		blen := prefix + int(n)*ea.h.esz
		c, err := ea.r.CursorAt(addr, blen+4)
		if err != nil {
			return fmt.Errorf("extensible array data block: %w", err)
		}
		if err := verify(c, blen, "EADB"); err != nil {
			return fmt.Errorf("extensible array data block at %d: %w", addr, err)
		}
		c.Seek(prefix)
		ea.decode(c, first, n)
		return c.Err()
	}

	if init == nil {
		return fmt.Errorf("%w: paged extensible array data block at %d without a super block", ErrUnsupportedIndex, addr)
	}
	c, err := ea.r.CursorAt(addr, prefix+4)
	if err != nil {
		return fmt.Errorf("extensible array data block: %w", err)
	}
	if err := verify(c, prefix, "EADB"); err != nil {
		return fmt.Errorf("extensible array data block at %d: %w", addr, err)
	}
	per := ea.h.pageElems()
	plen := int(per) * ea.h.esz
	pos := addr + uint64(prefix+4)
	for p := uint64(0); p < n/per; p++ {
		if init[p/8]&(0x80>>(p%8)) != 0 {
			pc, err := ea.r.CursorAt(pos, plen+4)
			if err != nil {
				return fmt.Errorf("extensible array page %d: %w", p, err)
			}
			if err := verify(pc, plen, ""); err != nil {
				return fmt.Errorf("extensible array page %d at %d: %w", p, pos, err)
			}
			pc.Seek(0)
			ea.decode(pc, first+p*per, per)
		}
		pos += uint64(plen + 4)
	}
	return nil
}
