package filter

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Deflate is the zlib filter, HDF5's "gzip".
type Deflate struct {
	level int
}

// NewDeflate returns a deflate filter at level 0-9.
func NewDeflate(level int) (*Deflate, error) {
	if level < 0 || level > 9 {
		return nil, fmt.Errorf("%w: deflate level %d", ErrClientData, level)
	}
	return &Deflate{level: level}, nil
}

func deflateFromClientData(cd []uint32) (*Deflate, error) {
	level := 6
	if len(cd) > 0 {
		level = int(cd[0])
	}
	return NewDeflate(level)
}

func (f *Deflate) ID() uint16           { return IDDeflate }
func (f *Deflate) Name() string         { return "deflate" }
func (f *Deflate) ClientData() []uint32 { return []uint32{uint32(f.level)} }

func (f *Deflate) Encode(in []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, f.level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(in); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *Deflate) Decode(in []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(in))
	if err != nil {
		return nil, fmt.Errorf("zlib reader: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("zlib decompress: %w", err)
	}
	return out, nil
}
