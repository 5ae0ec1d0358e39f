package binary

import (
	"encoding/binary"
	"io"
)

// Buffer accumulates an encoded metadata block in memory. Blocks are built
// whole so that their checksums can be computed before they reach the file.
type Buffer struct {
	buf   []byte
	sizes Sizes
}

// NewBuffer returns an empty buffer that encodes addresses with sizes.
func NewBuffer(sizes Sizes) *Buffer {
	return &Buffer{sizes: sizes}
}

// Sizes returns the address widths used by PutOffset and PutLength.
func (b *Buffer) Sizes() Sizes { return b.sizes }

// Bytes returns the encoded block.
func (b *Buffer) Bytes() []byte { return b.buf }

// Len returns the number of encoded bytes.
func (b *Buffer) Len() int { return len(b.buf) }

// Reset discards the contents but keeps the allocation.
func (b *Buffer) Reset() { b.buf = b.buf[:0] }

func (b *Buffer) PutU8(v uint8) { b.buf = append(b.buf, v) }

func (b *Buffer) PutU16(v uint16) { b.buf = binary.LittleEndian.AppendUint16(b.buf, v) }

func (b *Buffer) PutU32(v uint32) { b.buf = binary.LittleEndian.AppendUint32(b.buf, v) }

func (b *Buffer) PutU64(v uint64) { b.buf = binary.LittleEndian.AppendUint64(b.buf, v) }

// PutUintN appends the low n bytes of v.
func (b *Buffer) PutUintN(v uint64, n int) {
	for i := 0; i < n; i++ {
		b.buf = append(b.buf, byte(v>>(8*uint(i))))
	}
}

// PutOffset appends a file address.
func (b *Buffer) PutOffset(v uint64) { b.PutUintN(v, b.sizes.Offset) }

// PutUndefined appends the undefined-address sentinel.
func (b *Buffer) PutUndefined() { b.PutOffset(b.sizes.Undefined()) }

// PutLength appends a file length.
func (b *Buffer) PutLength(v uint64) { b.PutUintN(v, b.sizes.Length) }

func (b *Buffer) PutBytes(p []byte) { b.buf = append(b.buf, p...) }

func (b *Buffer) PutString(s string) { b.buf = append(b.buf, s...) }

// PutZeros appends n zero bytes.
func (b *Buffer) PutZeros(n int) {
	for i := 0; i < n; i++ {
		b.buf = append(b.buf, 0)
	}
}

// PutChecksum appends the lookup3 checksum of everything written so far.
func (b *Buffer) PutChecksum() { b.PutU32(Lookup3Checksum(b.buf)) }

// PutChecksumFrom appends the lookup3 checksum of the bytes from start on.
func (b *Buffer) PutChecksumFrom(start int) { b.PutU32(Lookup3Checksum(b.buf[start:])) }

// WriteAt writes the block at addr.
func (b *Buffer) WriteAt(w io.WriterAt, addr uint64) error {
	_, err := w.WriteAt(b.buf, int64(addr))
	return err
}

// SizeBytes returns the fewest bytes (1, 2, 4 or 8) able to hold v.
func SizeBytes(v uint64) int {
	switch {
	case v <= 0xFF:
		return 1
	case v <= 0xFFFF:
		return 2
	case v <= 0xFFFFFFFF:
		return 4
	}
	return 8
}
