package layout

import (
	"fmt"
	"math/bits"

	"github.com/robert-malhotra/tomochunk/internal/binary"
)

// Fixed array client IDs.
const (
	faClientPlain    = 0
	faClientFiltered = 1
)

// MinPageBits is the page size exponent the library uses by default.
const MinPageBits = 10

// Entry locates one stored chunk. Size is the stored length, which differs
// from the chunk size only when filters are applied.
type Entry struct {
	Address    uint64
	Size       uint64
	FilterMask uint32
}

// PageBitsFor returns the smallest page size exponent, at least
// MinPageBits, that keeps n entries in a single unpaged data block.
func PageBitsFor(n uint64) uint8 {
	pb := MinPageBits
	if n > 1 {
		pb = max(pb, bits.Len64(n-1))
	}
	return uint8(pb)
}

// chunkSizeWidth is the width of the stored-size field of a filtered
// entry. It leaves a byte of headroom over the unfiltered chunk size since
// compression can grow a chunk.
func chunkSizeWidth(chunkBytes uint64) int {
	if chunkBytes == 0 {
		return 1
	}
	n := 1 + (bits.Len64(chunkBytes)-1+8)/8
	return min(n, 8)
}

func faEntrySize(sizes binary.Sizes, filtered bool, chunkBytes uint64) int {
	if !filtered {
		return sizes.Offset
	}
	return sizes.Offset + chunkSizeWidth(chunkBytes) + 4
}

// FixedArrayLen returns the encoded lengths of the header and data block
// for n entries.
func FixedArrayLen(sizes binary.Sizes, n uint64, filtered bool, chunkBytes uint64) (hdr, dblk int) {
	hdr = 4 + 1 + 1 + 1 + 1 + sizes.Length + sizes.Offset + 4
	dblk = 4 + 1 + 1 + sizes.Offset + int(n)*faEntrySize(sizes, filtered, chunkBytes) + 4
	return hdr, dblk
}

// EncodeFixedArray encodes a fixed array index as a header block at
// hdrAddr and an unpaged data block at dblkAddr. Missing chunks must carry
// the undefined address.
func EncodeFixedArray(sizes binary.Sizes, hdrAddr, dblkAddr uint64, entries []Entry,
	filtered bool, chunkBytes uint64) (hdr, dblk []byte) {
	client := uint8(faClientPlain)
	if filtered {
		client = faClientFiltered
	}
	esz := faEntrySize(sizes, filtered, chunkBytes)
	width := chunkSizeWidth(chunkBytes)

	h := binary.NewBuffer(sizes)
	h.PutString("FAHD")
	h.PutU8(0)
	h.PutU8(client)
	h.PutU8(uint8(esz))
	h.PutU8(PageBitsFor(uint64(len(entries))))
	h.PutLength(uint64(len(entries)))
	h.PutOffset(dblkAddr)
	h.PutChecksum()

	d := binary.NewBuffer(sizes)
	d.PutString("FADB")
	d.PutU8(0)
	d.PutU8(client)
	d.PutOffset(hdrAddr)
	for _, e := range entries {
		d.PutOffset(e.Address)
		if filtered {
			d.PutUintN(e.Size, width)
			d.PutU32(e.FilterMask)
		}
	}
	d.PutChecksum()
	return h.Bytes(), d.Bytes()
}

// readFixedArray decodes the fixed array index at addr. Entries for
// chunks that were never written have the undefined address.
func readFixedArray(r *binary.Reader, addr uint64, chunkBytes uint64) ([]Entry, error) {
	s := r.Sizes()
	hlen := 4 + 1 + 1 + 1 + 1 + s.Length + s.Offset
	c, err := r.CursorAt(addr, hlen+4)
	if err != nil {
		return nil, fmt.Errorf("fixed array header: %w", err)
	}
	if err := verify(c, hlen, "FAHD"); err != nil {
		return nil, fmt.Errorf("fixed array header at %d: %w", addr, err)
	}
	c.Seek(4)
	if v := c.U8(); v != 0 {
		return nil, fmt.Errorf("fixed array header at %d: unsupported version %d", addr, v)
	}
	client := c.U8()
	esz := int(c.U8())
	pageBits := c.U8()
	n := c.Length()
	dblk := c.Offset()

	filtered := client == faClientFiltered
	if client > faClientFiltered {
		return nil, fmt.Errorf("fixed array header at %d: unknown client %d", addr, client)
	}
	if esz < s.Offset || (filtered && esz < s.Offset+5) {
		return nil, fmt.Errorf("fixed array header at %d: entry size %d too small", addr, esz)
	}

	entries := make([]Entry, n)
	for i := range entries {
		entries[i].Address = s.Undefined()
	}
	if s.IsUndefined(dblk) || n == 0 {
		return entries, nil
	}

	decode := func(c *binary.Cursor, dst []Entry) {
		for i := range dst {
			dst[i].Address = c.Offset()
			dst[i].Size = chunkBytes
			if filtered {
				dst[i].Size = c.UintN(esz - s.Offset - 4)
				dst[i].FilterMask = c.U32()
			}
		}
	}

	prefix := 4 + 1 + 1 + s.Offset
	pageSize := uint64(1) << pageBits
	if n <= pageSize {
		blen := prefix + int(n)*esz
		c, err := r.CursorAt(dblk, blen+4)
		if err != nil {
			return nil, fmt.Errorf("fixed array data block: %w", err)
		}
		if err := verify(c, blen, "FADB"); err != nil {
			return nil, fmt.Errorf("fixed array data block at %d: %w", dblk, err)
		}
		c.Seek(prefix)
		decode(c, entries)
		return entries, c.Err()
	}

	// Paged: the block holds a bitmap of initialized pages, and each page
	// follows with its own checksum.
	npages := (n + pageSize - 1) / pageSize
	bitmapLen := int((npages + 7) / 8)
	c, err = r.CursorAt(dblk, prefix+bitmapLen+4)
	if err != nil {
		return nil, fmt.Errorf("fixed array data block: %w", err)
	}
	if err := verify(c, prefix+bitmapLen, "FADB"); err != nil {
		return nil, fmt.Errorf("fixed array data block at %d: %w", dblk, err)
	}
	c.Seek(prefix)
	bitmap := c.Bytes(bitmapLen)

	pos := dblk + uint64(prefix+bitmapLen+4)
	for p := uint64(0); p < npages; p++ {
		first := p * pageSize
		count := min(pageSize, n-first)
		plen := int(count) * esz
		if bitmap[p/8]&(0x80>>(p%8)) != 0 {
			pc, err := r.CursorAt(pos, plen+4)
			if err != nil {
				return nil, fmt.Errorf("fixed array page %d: %w", p, err)
			}
			if err := verify(pc, plen, ""); err != nil {
				return nil, fmt.Errorf("fixed array page %d: %w", p, err)
			}
			pc.Seek(0)
			decode(pc, entries[first:first+count])
		}
		pos += uint64(plen + 4)
	}
	return entries, nil
}

// verify checks the signature and trailing lookup3 checksum of a block
// whose checksummed part is n bytes long.
func verify(c *binary.Cursor, n int, sig string) error {
	body := c.Bytes(n)
	stored := c.U32()
	if c.Err() != nil {
		return c.Err()
	}
	if sig != "" && string(body[:4]) != sig {
		return fmt.Errorf("bad signature %q", body[:4])
	}
	if binary.Lookup3Checksum(body) != stored {
		return fmt.Errorf("checksum mismatch")
	}
	return nil
}
