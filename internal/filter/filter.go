package filter

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/tomochunk/internal/message"
)

// Filter identifiers. IDs below 256 are defined by the HDF5 library,
// 32000-32767 are registered with the HDF Group, and 32768 and up are
// private to this module.
const (
	IDDeflate    uint16 = 1
	IDShuffle    uint16 = 2
	IDFletcher32 uint16 = 3
	IDSnappy     uint16 = 32003
	IDLZ4        uint16 = 32004
	IDBitshuffle uint16 = 32008
	IDZstd       uint16 = 32015
	IDJ2K        uint16 = 32768
	IDJ2KStack   uint16 = 32769
	IDJPEGLS     uint16 = 32770
)

var (
	ErrUnsupportedFilter = errors.New("unsupported filter")
	ErrChecksum          = errors.New("checksum mismatch")
	ErrCorrupt           = errors.New("corrupt filtered data")
	ErrClientData        = errors.New("invalid filter parameters")
)

// Filter is one reversible stage of a chunk pipeline.
type Filter interface {
	ID() uint16
	Name() string
	// ClientData returns the parameters stored in the pipeline message,
	// enough to rebuild the filter when the file is read back.
	ClientData() []uint32
	Encode(in []byte) ([]byte, error)
	Decode(in []byte) ([]byte, error)
}

// Lossy is implemented by filters that may not reproduce their input.
type Lossy interface {
	Lossy() bool
}

// Registry builds filters from the client data found in a file.
var Registry = map[uint16]func(cd []uint32) (Filter, error){
	IDDeflate:    func(cd []uint32) (Filter, error) { return deflateFromClientData(cd) },
	IDShuffle:    func(cd []uint32) (Filter, error) { return shuffleFromClientData(cd) },
	IDFletcher32: func([]uint32) (Filter, error) { return NewFletcher32(), nil },
	IDSnappy:     func([]uint32) (Filter, error) { return NewSnappy(), nil },
	IDLZ4:        func(cd []uint32) (Filter, error) { return lz4FromClientData(cd) },
	IDBitshuffle: func(cd []uint32) (Filter, error) { return bitshuffleFromClientData(cd) },
	IDZstd:       func(cd []uint32) (Filter, error) { return zstdFromClientData(cd) },
	IDJ2K:        func(cd []uint32) (Filter, error) { return j2kFromClientData(cd, false) },
	IDJ2KStack:   func(cd []uint32) (Filter, error) { return j2kFromClientData(cd, true) },
	IDJPEGLS:     func(cd []uint32) (Filter, error) { return jpeglsFromClientData(cd) },
}

// knownNames covers library filters that are recognized but not
// implemented, for clearer errors.
var knownNames = map[uint16]string{
	4:     "szip",
	5:     "nbit",
	6:     "scaleoffset",
	32001: "blosc",
	32017: "sz",
}

// FromInfo builds the filter described by one pipeline entry.
func FromInfo(info message.FilterInfo) (Filter, error) {
	build, ok := Registry[info.ID]
	if !ok {
		if name, known := knownNames[info.ID]; known {
			return nil, fmt.Errorf("%w: %s (id %d)", ErrUnsupportedFilter, name, info.ID)
		}
		return nil, fmt.Errorf("%w: id %d", ErrUnsupportedFilter, info.ID)
	}
	f, err := build(info.ClientData)
	if err != nil {
		return nil, fmt.Errorf("filter %d: %w", info.ID, err)
	}
	return f, nil
}

// elemSizeOK reports whether n is a plausible element size.
func elemSizeOK(n uint32) bool { return n >= 1 && n <= 64 }
