package object

import (
	"fmt"

	"github.com/robert-malhotra/tomochunk/internal/binary"
	"github.com/robert-malhotra/tomochunk/internal/message"
)

// Version 1 prefix: version, reserved, message count (2), reference count
// (4), header size (4), then padding to 16 bytes. Each message is a type
// (2), size (2), flags (1) and three reserved bytes, with its body padded
// to a multiple of eight.
const v1PrefixSize = 16

func readV1(r *binary.Reader, addr uint64) (*Header, error) {
	c, err := r.CursorAt(addr, v1PrefixSize)
	if err != nil {
		return nil, err
	}
	h := &Header{Version: c.U8(), Address: addr}
	c.Skip(1)
	count := int(c.U16())
	h.RefCount = c.U32()
	size := uint64(c.U32())

	queue := []message.Continuation{{Offset: addr + v1PrefixSize, Length: size}}
	for i := 0; i < len(queue) && len(h.Messages) < count; i++ {
		blk, err := r.CursorAt(queue[i].Offset, int(queue[i].Length))
		if err != nil {
			return nil, err
		}
		for blk.Len() >= 8 {
			typ := message.Type(blk.U16())
			n := int(blk.U16())
			blk.Skip(4)
			body := blk.Bytes(n)
			if blk.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, blk.Err())
			}
			if typ == message.TypeNIL {
				continue
			}
			if err := h.collect(typ, body, r.Sizes(), &queue); err != nil {
				return nil, err
			}
		}
	}
	return h, nil
}
