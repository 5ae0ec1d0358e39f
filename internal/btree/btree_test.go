package btree

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/robert-malhotra/tomochunk/internal/binary"
	"github.com/robert-malhotra/tomochunk/internal/heap"
)

type image struct {
	buf []byte
}

func (im *image) put(addr uint64, b *binary.Buffer) {
	if need := int(addr) + b.Len(); need > len(im.buf) {
		im.buf = append(im.buf, make([]byte, need-len(im.buf))...)
	}
	copy(im.buf[addr:], b.Bytes())
}

func (im *image) reader() *binary.Reader {
	return binary.NewReader(bytes.NewReader(im.buf), binary.DefaultSizes)
}

func nodePrefix(b *binary.Buffer, typ uint8, level uint8, entries uint16) {
	b.PutString("TREE")
	b.PutU8(typ)
	b.PutU8(level)
	b.PutU16(entries)
	b.PutUndefined()
	b.PutUndefined()
}

func TestReadGroup(t *testing.T) {
	sizes := binary.DefaultSizes
	im := &image{}

	seg := []byte("\x00\x00\x00\x00\x00\x00\x00\x00data\x00\x00\x00\x00link\x00\x00\x00\x00/data\x00\x00\x00")
	hb := binary.NewBuffer(sizes)
	hb.PutString("HEAP")
	hb.PutU8(0)
	hb.PutZeros(3)
	hb.PutLength(uint64(len(seg)))
	hb.PutLength(^uint64(0))
	hb.PutOffset(100)
	im.put(0, hb)
	sb := binary.NewBuffer(sizes)
	sb.PutBytes(seg)
	im.put(100, sb)

	snod := binary.NewBuffer(sizes)
	snod.PutString("SNOD")
	snod.PutU8(1)
	snod.PutU8(0)
	snod.PutU16(2)
	// hard link "data"
	snod.PutOffset(8)
	snod.PutOffset(4096)
	snod.PutU32(0)
	snod.PutU32(0)
	snod.PutZeros(16)
	// soft link "link" -> "/data"
	snod.PutOffset(16)
	snod.PutUndefined()
	snod.PutU32(cacheSoftLink)
	snod.PutU32(0)
	snod.PutU32(24)
	snod.PutZeros(12)
	im.put(400, snod)

	tree := binary.NewBuffer(sizes)
	nodePrefix(tree, nodeGroup, 0, 1)
	tree.PutLength(0)
	tree.PutOffset(400)
	tree.PutLength(16)
	im.put(200, tree)

	r := im.reader()
	names, err := heap.ReadLocal(r, 0)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ReadGroup(r, 200, names)
	if err != nil {
		t.Fatal(err)
	}
	want := []GroupEntry{
		{Name: "data", Address: 4096},
		{Name: "link", Address: sizes.Undefined(), Soft: true, Target: "/data"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadGroup:\n got %+v\nwant %+v", got, want)
	}
}

func putChunkKey(b *binary.Buffer, size, mask uint32, offset ...uint64) {
	b.PutU32(size)
	b.PutU32(mask)
	for _, o := range offset {
		b.PutU64(o)
	}
	b.PutU64(0)
}

func TestReadChunksTwoLevels(t *testing.T) {
	sizes := binary.DefaultSizes
	im := &image{}

	leafA := binary.NewBuffer(sizes)
	nodePrefix(leafA, nodeChunk, 0, 2)
	putChunkKey(leafA, 50, 0, 0, 0, 0)
	leafA.PutOffset(10000)
	putChunkKey(leafA, 48, 0, 1, 0, 0)
	leafA.PutOffset(10050)
	putChunkKey(leafA, 0, 0, 2, 0, 0)
	im.put(1000, leafA)

	leafB := binary.NewBuffer(sizes)
	nodePrefix(leafB, nodeChunk, 0, 1)
	putChunkKey(leafB, 20, 1, 2, 0, 0)
	leafB.PutOffset(10098)
	putChunkKey(leafB, 0, 0, 3, 0, 0)
	im.put(2000, leafB)

	root := binary.NewBuffer(sizes)
	nodePrefix(root, nodeChunk, 1, 2)
	putChunkKey(root, 50, 0, 0, 0, 0)
	root.PutOffset(1000)
	putChunkKey(root, 20, 1, 2, 0, 0)
	root.PutOffset(2000)
	putChunkKey(root, 0, 0, 3, 0, 0)
	im.put(0, root)

	got, err := ReadChunks(im.reader(), 0, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []Chunk{
		{Offset: []uint64{0, 0, 0}, Size: 50, Address: 10000},
		{Offset: []uint64{1, 0, 0}, Size: 48, Address: 10050},
		{Offset: []uint64{2, 0, 0}, Size: 20, FilterMask: 1, Address: 10098},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadChunks:\n got %+v\nwant %+v", got, want)
	}
}

func TestReadChunksWrongNodeType(t *testing.T) {
	im := &image{}
	b := binary.NewBuffer(binary.DefaultSizes)
	nodePrefix(b, nodeGroup, 0, 0)
	b.PutLength(0)
	im.put(0, b)
	if _, err := ReadChunks(im.reader(), 0, 2); err == nil {
		t.Error("expected node type error")
	}
}

// v2Record appends a chunk record: the address, then for filtered trees a
// two-byte size and the mask, then the scaled chunk coordinates.
func v2Record(b *binary.Buffer, filtered bool, addr uint64, size uint64, mask uint32, scaled ...uint64) {
	b.PutOffset(addr)
	if filtered {
		b.PutUintN(size, 2)
		b.PutU32(mask)
	}
	for _, s := range scaled {
		b.PutU64(s)
	}
}

func putV2Header(b *binary.Buffer, typ uint8, recSize, depth int, root uint64, rootRecs int, total uint64) {
	b.PutString("BTHD")
	b.PutU8(0)
	b.PutU8(typ)
	b.PutU32(512)
	b.PutU16(uint16(recSize))
	b.PutU16(uint16(depth))
	b.PutU8(100)
	b.PutU8(40)
	b.PutOffset(root)
	b.PutU16(uint16(rootRecs))
	b.PutLength(total)
	b.PutChecksum()
}

func TestReadChunksV2TwoLevels(t *testing.T) {
	sizes := binary.DefaultSizes
	im := &image{}
	const recSize = 8 + 2 + 4 + 16

	leafA := binary.NewBuffer(sizes)
	leafA.PutString("BTLF")
	leafA.PutU8(0)
	leafA.PutU8(TypeChunkFiltered)
	v2Record(leafA, true, 10000, 50, 0, 0, 0)
	v2Record(leafA, true, 10050, 48, 0, 0, 1)
	leafA.PutChecksum()
	im.put(1000, leafA)

	leafB := binary.NewBuffer(sizes)
	leafB.PutString("BTLF")
	leafB.PutU8(0)
	leafB.PutU8(TypeChunkFiltered)
	v2Record(leafB, true, 10200, 30, 0, 1, 1)
	v2Record(leafB, true, 10230, 32, 0, 2, 0)
	leafB.PutChecksum()
	im.put(2000, leafB)

	// 16 records fit a 512-byte leaf, so child counts take one byte.
	root := binary.NewBuffer(sizes)
	root.PutString("BTIN")
	root.PutU8(0)
	root.PutU8(TypeChunkFiltered)
	v2Record(root, true, 10098, 20, 1, 1, 0)
	root.PutOffset(1000)
	root.PutU8(2)
	root.PutOffset(2000)
	root.PutU8(2)
	root.PutChecksum()
	im.put(500, root)

	hdr := binary.NewBuffer(sizes)
	putV2Header(hdr, TypeChunkFiltered, recSize, 1, 500, 1, 5)
	im.put(0, hdr)

	got, err := ReadChunksV2(im.reader(), 0, []uint64{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	want := []Chunk{
		{Offset: []uint64{1, 0}, Size: 20, FilterMask: 1, Address: 10098},
		{Offset: []uint64{0, 0}, Size: 50, Address: 10000},
		{Offset: []uint64{0, 2}, Size: 48, Address: 10050},
		{Offset: []uint64{1, 2}, Size: 30, Address: 10200},
		{Offset: []uint64{2, 0}, Size: 32, Address: 10230},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadChunksV2:\n got %+v\nwant %+v", got, want)
	}
}

func TestReadChunksV2Unfiltered(t *testing.T) {
	sizes := binary.DefaultSizes
	im := &image{}

	leaf := binary.NewBuffer(sizes)
	leaf.PutString("BTLF")
	leaf.PutU8(0)
	leaf.PutU8(TypeChunk)
	v2Record(leaf, false, 8000, 0, 0, 0, 0, 0)
	v2Record(leaf, false, 8064, 0, 0, 3, 0, 0)
	leaf.PutChecksum()
	im.put(200, leaf)

	hdr := binary.NewBuffer(sizes)
	putV2Header(hdr, TypeChunk, 8+3*8, 0, 200, 2, 2)
	im.put(0, hdr)

	got, err := ReadChunksV2(im.reader(), 0, []uint64{4, 4, 4})
	if err != nil {
		t.Fatal(err)
	}
	want := []Chunk{
		{Offset: []uint64{0, 0, 0}, Address: 8000},
		{Offset: []uint64{12, 0, 0}, Address: 8064},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadChunksV2:\n got %+v\nwant %+v", got, want)
	}

	// A damaged leaf fails its checksum.
	im.buf[200+6] ^= 0xFF
	if _, err := ReadChunksV2(im.reader(), 0, []uint64{4, 4, 4}); err == nil {
		t.Error("expected checksum error")
	}
}

func TestReadChunksV2WrongType(t *testing.T) {
	im := &image{}
	hdr := binary.NewBuffer(binary.DefaultSizes)
	putV2Header(hdr, 5, 16, 0, 100, 0, 0)
	im.put(0, hdr)
	if _, err := ReadChunksV2(im.reader(), 0, []uint64{1}); err == nil {
		t.Error("expected record type error")
	}
}
