// Package binary provides the low-level encoding primitives shared by the
// HDF5 readers and writers: positioned file reads, slice cursors, append
// buffers and the two checksums used by the format.
package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidSize is returned when an offset or length width is not 2, 4 or 8.
var ErrInvalidSize = errors.New("invalid offset/length size: must be 2, 4, or 8")

// ErrShortBuffer is returned when a cursor runs past the end of its slice.
var ErrShortBuffer = errors.New("structure truncated")

// Sizes holds the widths of file addresses and lengths, as declared by the
// superblock. HDF5 metadata is always little endian.
type Sizes struct {
	Offset int
	Length int
}

// DefaultSizes is what every writer in this module produces and what readers
// assume until a superblock says otherwise.
var DefaultSizes = Sizes{Offset: 8, Length: 8}

// Validate reports whether both widths are usable.
func (s Sizes) Validate() error {
	for _, n := range []int{s.Offset, s.Length} {
		if n != 2 && n != 4 && n != 8 {
			return fmt.Errorf("%w: got %d", ErrInvalidSize, n)
		}
	}
	return nil
}

// Undefined returns the all-ones address used by HDF5 for "no address".
func (s Sizes) Undefined() uint64 {
	if s.Offset >= 8 {
		return ^uint64(0)
	}
	return 1<<(uint(s.Offset)*8) - 1
}

// IsUndefined reports whether addr is the undefined-address sentinel.
func (s Sizes) IsUndefined(addr uint64) bool {
	return addr == s.Undefined()
}

// Reader reads metadata from absolute file positions. It is a thin wrapper
// around an io.ReaderAt that knows the file's address widths.
type Reader struct {
	r     io.ReaderAt
	sizes Sizes
}

// NewReader returns a reader over r using the given address widths.
func NewReader(r io.ReaderAt, sizes Sizes) *Reader {
	return &Reader{r: r, sizes: sizes}
}

// Sizes returns the address widths this reader was configured with.
func (r *Reader) Sizes() Sizes { return r.sizes }

// WithSizes returns a reader over the same file with different widths.
func (r *Reader) WithSizes(sizes Sizes) *Reader {
	return &Reader{r: r.r, sizes: sizes}
}

// ReadAt reads exactly n bytes starting at addr.
func (r *Reader) ReadAt(addr uint64, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative read of %d bytes at %d", n, addr)
	}
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	read, err := r.r.ReadAt(buf, int64(addr))
	if read == n {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("reading %d bytes at %d: %w", n, addr, err)
}

// CursorAt reads n bytes at addr and returns a cursor over them.
func (r *Reader) CursorAt(addr uint64, n int) (*Cursor, error) {
	buf, err := r.ReadAt(addr, n)
	if err != nil {
		return nil, err
	}
	return NewCursor(buf, r.sizes), nil
}

// Signature reads four bytes at addr, the magic that opens most HDF5
// metadata blocks.
func (r *Reader) Signature(addr uint64) (string, error) {
	buf, err := r.ReadAt(addr, 4)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func decodeUint(buf []byte) uint64 {
	switch len(buf) {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf))
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf))
	case 8:
		return binary.LittleEndian.Uint64(buf)
	}
	var v uint64
	for i := len(buf) - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v
}

// DecodeUint decodes a little-endian unsigned integer of any width up to 8.
func DecodeUint(buf []byte) uint64 { return decodeUint(buf) }
