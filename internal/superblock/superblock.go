package superblock

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/robert-malhotra/tomochunk/internal/binary"
)

// Signature is the 8-byte magic that opens every superblock.
var Signature = []byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'}

var (
	ErrNotHDF5            = errors.New("not an HDF5 file: signature not found")
	ErrUnsupportedVersion = errors.New("unsupported superblock version")
	ErrInvalidSuperblock  = errors.New("invalid superblock structure")
)

// The signature may sit at 0 or at any power of two from 512 on, to leave
// room for a user block.
const (
	firstSearchOffset = 512
	maxSearchOffset   = 1 << 30
)

// Superblock holds the fields the rest of the module needs. Fields that only
// matter to free-space managers and drivers are skipped.
type Superblock struct {
	Version uint8
	Sizes   binary.Sizes
	Flags   uint8

	BaseAddress      uint64
	ExtensionAddress uint64
	EOFAddress       uint64

	// RootAddress is the object header address of the root group.
	RootAddress uint64

	// RootBTree and RootHeap come from the root symbol-table entry's
	// scratch pad in version 0 and 1 files. Both are undefined when the
	// entry carries no cached symbol table.
	RootBTree uint64
	RootHeap  uint64

	GroupLeafK     uint16
	GroupInternalK uint16
	ChunkK         uint16

	// FileOffset is where the signature was found.
	FileOffset int64
}

// Read searches r for a superblock and decodes it.
func Read(r io.ReaderAt) (*Superblock, error) {
	sig := make([]byte, 9)
	for off := int64(0); off <= maxSearchOffset; off = nextOffset(off) {
		n, err := r.ReadAt(sig, off)
		if n < len(sig) {
			if err == nil || errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if !bytes.Equal(sig[:8], Signature) {
			continue
		}

		var sb *Superblock
		switch sig[8] {
		case 0, 1:
			sb, err = readV0(r, off, sig[8])
		case 2, 3:
			sb, err = readV2(r, off)
		default:
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, sig[8])
		}
		if err != nil {
			return nil, err
		}
		sb.FileOffset = off
		return sb, nil
	}
	return nil, ErrNotHDF5
}

func nextOffset(off int64) int64 {
	if off == 0 {
		return firstSearchOffset
	}
	return off * 2
}

// Versions 0 and 1 share a layout apart from the indexed-storage K that
// version 1 inserts before the addresses.
func readV0(r io.ReaderAt, off int64, version uint8) (*Superblock, error) {
	head := make([]byte, 16)
	if _, err := r.ReadAt(head, off+8); err != nil {
		return nil, fmt.Errorf("superblock: %w", err)
	}
	c := binary.NewCursor(head, binary.DefaultSizes)
	sb := &Superblock{Version: c.U8()}
	c.Skip(4) // free-space, root entry and shared header versions, reserved
	sb.Sizes = binary.Sizes{Offset: int(c.U8()), Length: int(c.U8())}
	c.Skip(1)
	sb.GroupLeafK = c.U16()
	sb.GroupInternalK = c.U16()
	sb.Flags = uint8(c.U32())
	if err := sb.Sizes.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSuperblock, err)
	}

	br := binary.NewReader(r, sb.Sizes)
	pos := uint64(off) + 24
	if version == 1 {
		kc, err := br.CursorAt(pos, 4)
		if err != nil {
			return nil, fmt.Errorf("superblock: %w", err)
		}
		sb.ChunkK = kc.U16()
		pos += 4
	}

	o := sb.Sizes.Offset
	// Four addresses, then the root symbol-table entry: name offset, header
	// address, cache type, reserved and a 16-byte scratch pad.
	c, err := br.CursorAt(pos, 4*o+2*o+8+16)
	if err != nil {
		return nil, fmt.Errorf("superblock: %w", err)
	}
	sb.BaseAddress = c.Offset()
	c.Offset() // free-space info
	sb.EOFAddress = c.Offset()
	c.Offset() // driver info
	c.Offset() // link name offset
	sb.RootAddress = c.Offset()
	cacheType := c.U32()
	c.Skip(4)
	sb.RootBTree, sb.RootHeap = sb.Sizes.Undefined(), sb.Sizes.Undefined()
	if cacheType == 1 {
		sb.RootBTree = c.Offset()
		sb.RootHeap = c.Offset()
	}
	if c.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSuperblock, c.Err())
	}
	sb.ExtensionAddress = sb.Sizes.Undefined()
	return sb, nil
}

func readV2(r io.ReaderAt, off int64) (*Superblock, error) {
	head := make([]byte, 4)
	if _, err := r.ReadAt(head, off+8); err != nil {
		return nil, fmt.Errorf("superblock: %w", err)
	}
	sizes := binary.Sizes{Offset: int(head[1]), Length: int(head[2])}
	if err := sizes.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSuperblock, err)
	}

	n := 12 + 4*sizes.Offset
	c, err := binary.NewReader(r, sizes).CursorAt(uint64(off), n+4)
	if err != nil {
		return nil, fmt.Errorf("superblock: %w", err)
	}
	body := c.Bytes(n)
	if stored := c.U32(); stored != binary.Lookup3Checksum(body) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidSuperblock)
	}

	c.Seek(8)
	sb := &Superblock{Version: c.U8(), Sizes: sizes}
	c.Skip(2)
	sb.Flags = c.U8()
	sb.BaseAddress = c.Offset()
	sb.ExtensionAddress = c.Offset()
	sb.EOFAddress = c.Offset()
	sb.RootAddress = c.Offset()
	sb.RootBTree, sb.RootHeap = sizes.Undefined(), sizes.Undefined()
	return sb, c.Err()
}

// HasSymbolTableRoot reports whether the root group is reached through the
// cached B-tree and local heap of a version 0 or 1 file.
func (sb *Superblock) HasSymbolTableRoot() bool {
	return sb.Version < 2 && !sb.Sizes.IsUndefined(sb.RootBTree)
}
