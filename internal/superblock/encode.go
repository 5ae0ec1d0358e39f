package superblock

import "github.com/robert-malhotra/tomochunk/internal/binary"

// New returns a version 2 superblock using the default address widths.
// EOFAddress and RootAddress are filled in when the file is finalized.
func New() *Superblock {
	sizes := binary.DefaultSizes
	return &Superblock{
		Version:          2,
		Sizes:            sizes,
		ExtensionAddress: sizes.Undefined(),
		RootBTree:        sizes.Undefined(),
		RootHeap:         sizes.Undefined(),
	}
}

// EncodedSize is the size of a version 2 superblock with the given widths.
func EncodedSize(sizes binary.Sizes) int {
	return 12 + 4*sizes.Offset + 4
}

// Encode appends the superblock in version 2 layout, checksum included.
// Older versions are never written.
func (sb *Superblock) Encode(b *binary.Buffer) {
	start := b.Len()
	b.PutBytes(Signature)
	b.PutU8(2)
	b.PutU8(uint8(sb.Sizes.Offset))
	b.PutU8(uint8(sb.Sizes.Length))
	b.PutU8(sb.Flags)
	b.PutOffset(sb.BaseAddress)
	b.PutOffset(sb.ExtensionAddress)
	b.PutOffset(sb.EOFAddress)
	b.PutOffset(sb.RootAddress)
	b.PutChecksumFrom(start)
}
