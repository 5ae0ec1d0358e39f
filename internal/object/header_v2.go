package object

import (
	"fmt"

	"github.com/robert-malhotra/tomochunk/internal/binary"
	"github.com/robert-malhotra/tomochunk/internal/message"
)

// Version 2 header flags.
const (
	flagSizeMask     = 0x03
	flagTrackOrder   = 0x04
	flagPhaseChange  = 0x10
	flagTimes        = 0x20
	v2MessageHeader  = 4
	v2ChecksumLength = 4
)

func readV2(r *binary.Reader, addr uint64) (*Header, error) {
	c, err := r.CursorAt(addr, 6)
	if err != nil {
		return nil, err
	}
	c.Skip(4)
	h := &Header{Version: c.U8(), Address: addr, Flags: c.U8()}
	if h.Version != 2 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}

	prefix := 6
	if h.Flags&flagTimes != 0 {
		prefix += 16
	}
	if h.Flags&flagPhaseChange != 0 {
		prefix += 4
	}
	width := 1 << (h.Flags & flagSizeMask)
	sc, err := r.CursorAt(addr+uint64(prefix), width)
	if err != nil {
		return nil, err
	}
	chunk0 := sc.UintN(width)
	prefix += width

	// The first block is checksummed from the signature on.
	blockStart := addr
	msgStart := prefix
	blockLen := uint64(prefix) + chunk0 + v2ChecksumLength

	queue := []message.Continuation{}
	for {
		blk, err := r.CursorAt(blockStart, int(blockLen))
		if err != nil {
			return nil, err
		}
		body := blk.Bytes(int(blockLen) - v2ChecksumLength)
		if stored := blk.U32(); stored != binary.Lookup3Checksum(body) {
			return nil, fmt.Errorf("%w at %d", ErrChecksumMismatch, blockStart)
		}
		if err := h.readV2Messages(binary.NewCursor(body[msgStart:], r.Sizes()), r.Sizes(), &queue); err != nil {
			return nil, err
		}

		if len(queue) == 0 {
			return h, nil
		}
		next := queue[0]
		queue = queue[1:]
		sig, err := r.Signature(next.Offset)
		if err != nil {
			return nil, err
		}
		if sig != "OCHK" {
			return nil, fmt.Errorf("%w: continuation at %d has signature %q", ErrInvalidHeader, next.Offset, sig)
		}
		blockStart, blockLen, msgStart = next.Offset, next.Length, 4
	}
}

func (h *Header) readV2Messages(c *binary.Cursor, sizes binary.Sizes, queue *[]message.Continuation) error {
	hdr := v2MessageHeader
	if h.Flags&flagTrackOrder != 0 {
		hdr += 2
	}
	// Fewer bytes than a message header left at the end of a block are a gap.
	for c.Len() >= hdr {
		typ := message.Type(c.U8())
		n := int(c.U16())
		c.Skip(hdr - 3)
		body := c.Bytes(n)
		if c.Err() != nil {
			return fmt.Errorf("%w: %v", ErrInvalidHeader, c.Err())
		}
		if typ == message.TypeNIL {
			continue
		}
		if err := h.collect(typ, body, sizes, queue); err != nil {
			return err
		}
	}
	return nil
}
