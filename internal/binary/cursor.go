package binary

import (
	"encoding/binary"
	"fmt"
)

// Cursor decodes little-endian fields from an in-memory block. Reads past
// the end do not panic; they record ErrShortBuffer and return zero values,
// so a parser can decode a run of fields and check Err once.
type Cursor struct {
	buf   []byte
	off   int
	sizes Sizes
	err   error
}

// NewCursor returns a cursor positioned at the start of buf.
func NewCursor(buf []byte, sizes Sizes) *Cursor {
	return &Cursor{buf: buf, sizes: sizes}
}

// Err returns the first error encountered.
func (c *Cursor) Err() error { return c.err }

// Pos returns the offset of the next unread byte.
func (c *Cursor) Pos() int { return c.off }

// Len returns the number of unread bytes.
func (c *Cursor) Len() int {
	if c.off >= len(c.buf) {
		return 0
	}
	return len(c.buf) - c.off
}

// Sizes returns the address widths used by Offset and Length.
func (c *Cursor) Sizes() Sizes { return c.sizes }

// Seek moves to an absolute offset within the block.
func (c *Cursor) Seek(off int) {
	if off < 0 || off > len(c.buf) {
		c.fail(off - c.off)
		return
	}
	c.off = off
}

// Skip advances n bytes.
func (c *Cursor) Skip(n int) { c.take(n) }

// Align advances to the next multiple of n, measured from the block start.
func (c *Cursor) Align(n int) {
	if n > 1 && c.off%n != 0 {
		c.Skip(n - c.off%n)
	}
}

func (c *Cursor) fail(n int) {
	if c.err == nil {
		c.err = fmt.Errorf("%w: need %d bytes at offset %d of %d", ErrShortBuffer, n, c.off, len(c.buf))
	}
}

func (c *Cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || c.off+n > len(c.buf) {
		c.fail(n)
		return nil
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b
}

// Bytes returns the next n bytes without copying.
func (c *Cursor) Bytes(n int) []byte { return c.take(n) }

// Rest returns every unread byte.
func (c *Cursor) Rest() []byte { return c.take(c.Len()) }

// U8 decodes one byte.
func (c *Cursor) U8() uint8 {
	if b := c.take(1); b != nil {
		return b[0]
	}
	return 0
}

// U16 decodes a 2-byte integer.
func (c *Cursor) U16() uint16 {
	if b := c.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

// U32 decodes a 4-byte integer.
func (c *Cursor) U32() uint32 {
	if b := c.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

// U64 decodes an 8-byte integer.
func (c *Cursor) U64() uint64 {
	if b := c.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

// UintN decodes an n-byte integer.
func (c *Cursor) UintN(n int) uint64 {
	if b := c.take(n); b != nil {
		return decodeUint(b)
	}
	return 0
}

// Offset decodes a file address.
func (c *Cursor) Offset() uint64 { return c.UintN(c.sizes.Offset) }

// Length decodes a file length.
func (c *Cursor) Length() uint64 { return c.UintN(c.sizes.Length) }

// CString decodes a NUL-terminated string and consumes the terminator.
func (c *Cursor) CString() string {
	if c.err != nil {
		return ""
	}
	for i := c.off; i < len(c.buf); i++ {
		if c.buf[i] == 0 {
			s := string(c.buf[c.off:i])
			c.off = i + 1
			return s
		}
	}
	c.fail(len(c.buf) - c.off + 1)
	return ""
}

// TrimNUL returns b up to its first NUL byte.
func TrimNUL(b []byte) string {
	for i, v := range b {
		if v == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
