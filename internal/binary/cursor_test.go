package binary

import (
	"bytes"
	"errors"
	"testing"
)

func TestBufferCursorRoundTrip(t *testing.T) {
	for _, sizes := range []Sizes{{Offset: 8, Length: 8}, {Offset: 4, Length: 4}, {Offset: 2, Length: 8}} {
		b := NewBuffer(sizes)
		b.PutU8(0xAB)
		b.PutU16(0x1234)
		b.PutU32(0xDEADBEEF)
		b.PutU64(0x0102030405060708)
		b.PutOffset(0x1122)
		b.PutLength(0x3344)
		b.PutUndefined()
		b.PutString("name")
		b.PutU8(0)

		c := NewCursor(b.Bytes(), sizes)
		if got := c.U8(); got != 0xAB {
			t.Errorf("U8 = %#x", got)
		}
		if got := c.U16(); got != 0x1234 {
			t.Errorf("U16 = %#x", got)
		}
		if got := c.U32(); got != 0xDEADBEEF {
			t.Errorf("U32 = %#x", got)
		}
		if got := c.U64(); got != 0x0102030405060708 {
			t.Errorf("U64 = %#x", got)
		}
		if got := c.Offset(); got != 0x1122 {
			t.Errorf("Offset = %#x", got)
		}
		if got := c.Length(); got != 0x3344 {
			t.Errorf("Length = %#x", got)
		}
		if got := c.Offset(); !sizes.IsUndefined(got) {
			t.Errorf("expected undefined address for %+v, got %#x", sizes, got)
		}
		if got := c.CString(); got != "name" {
			t.Errorf("CString = %q", got)
		}
		if c.Len() != 0 || c.Err() != nil {
			t.Errorf("trailing state: len=%d err=%v", c.Len(), c.Err())
		}
	}
}

func TestCursorShortBuffer(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3}, DefaultSizes)
	_ = c.U16()
	if got := c.U32(); got != 0 {
		t.Errorf("U32 past end = %d, want 0", got)
	}
	if !errors.Is(c.Err(), ErrShortBuffer) {
		t.Fatalf("Err = %v, want ErrShortBuffer", c.Err())
	}
	// Once failed, the cursor stays failed.
	if got := c.U8(); got != 0 {
		t.Errorf("U8 after failure = %d", got)
	}
}

func TestCursorAlign(t *testing.T) {
	c := NewCursor(make([]byte, 16), DefaultSizes)
	c.Skip(3)
	c.Align(8)
	if c.Pos() != 8 {
		t.Errorf("Pos after Align = %d, want 8", c.Pos())
	}
	c.Align(8)
	if c.Pos() != 8 {
		t.Errorf("Align on boundary moved to %d", c.Pos())
	}
}

func TestReaderReadAt(t *testing.T) {
	data := []byte("HEAPxxxxTREE")
	r := NewReader(bytes.NewReader(data), DefaultSizes)

	sig, err := r.Signature(8)
	if err != nil || sig != "TREE" {
		t.Fatalf("Signature = %q, %v", sig, err)
	}
	if _, err := r.ReadAt(10, 8); err == nil {
		t.Error("expected error reading past end")
	}
}

func TestSizesValidate(t *testing.T) {
	if err := (Sizes{Offset: 8, Length: 4}).Validate(); err != nil {
		t.Errorf("valid sizes rejected: %v", err)
	}
	if err := (Sizes{Offset: 3, Length: 8}).Validate(); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("Validate = %v, want ErrInvalidSize", err)
	}
}

func TestSizeBytes(t *testing.T) {
	tests := []struct {
		v    uint64
		want int
	}{
		{0, 1}, {255, 1}, {256, 2}, {65535, 2}, {65536, 4}, {1 << 32, 8},
	}
	for _, tt := range tests {
		if got := SizeBytes(tt.v); got != tt.want {
			t.Errorf("SizeBytes(%d) = %d, want %d", tt.v, got, tt.want)
		}
	}
}
