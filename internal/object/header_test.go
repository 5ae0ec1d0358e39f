package object

import (
	"bytes"
	"errors"
	"testing"

	"github.com/robert-malhotra/tomochunk/internal/binary"
	"github.com/robert-malhotra/tomochunk/internal/message"
)

// fileAt places blocks at fixed addresses of an in-memory file.
func fileAt(blocks map[uint64][]byte) *binary.Reader {
	var size uint64
	for addr, b := range blocks {
		size = max(size, addr+uint64(len(b)))
	}
	buf := make([]byte, size)
	for addr, b := range blocks {
		copy(buf[addr:], b)
	}
	return binary.NewReader(bytes.NewReader(buf), binary.DefaultSizes)
}

func TestEncodeReadDatasetHeader(t *testing.T) {
	sizes := binary.DefaultSizes
	layout := message.NewChunkedLayout([]uint64{1, 5, 5}, 2, 10)
	layout.IndexAddress = 0x2000
	pipeline := &message.FilterPipeline{Filters: []message.FilterInfo{{ID: 1, ClientData: []uint32{4}}}}
	attrs := []*message.Attribute{{
		Name: "transform", Datatype: message.NewString(12),
		Dataspace: message.NewScalarDataspace(), Data: []byte("downsample:2"),
	}}
	msgs := DatasetMessages(message.NewSimpleDataspace(4, 5, 5), message.NewFixedPoint(2, false), layout, pipeline, attrs)

	data, err := Encode(sizes, msgs, 0)
	if err != nil {
		t.Fatal(err)
	}
	h, err := Read(fileAt(map[uint64][]byte{64: data}), 64)
	if err != nil {
		t.Fatal(err)
	}

	if h.Version != 2 || h.Address != 64 || !h.IsDataset() || h.IsGroup() {
		t.Errorf("header %+v", h)
	}
	if ds := h.Dataspace(); ds == nil || ds.Dims[1] != 5 {
		t.Errorf("dataspace %+v", ds)
	}
	if l := h.Layout(); l == nil || l.IndexAddress != 0x2000 || l.Index != message.IndexFixedArray {
		t.Errorf("layout %+v", l)
	}
	if fp := h.Filters(); fp == nil || !fp.Has(1) {
		t.Errorf("filters %+v", fp)
	}
	if h.Message(message.TypeFillValue) == nil {
		t.Error("chunked dataset header lacks a fill value message")
	}
	if a := h.Attributes(); len(a) != 1 || string(a[0].Data) != "downsample:2" {
		t.Errorf("attributes %+v", a)
	}
}

func TestEncodeGroupHeaderPadding(t *testing.T) {
	sizes := binary.DefaultSizes
	data, err := Encode(sizes, GroupMessages(sizes, nil), MinGroupChunk)
	if err != nil {
		t.Fatal(err)
	}
	// signature, version, flags, one-byte chunk size, chunk, checksum
	if want := 4 + 1 + 1 + 1 + MinGroupChunk + 4; len(data) != want {
		t.Errorf("header is %d bytes, want %d", len(data), want)
	}

	links := []*message.Link{message.NewHardLink("exchange", 800), message.NewHardLink("data", 1600)}
	data, err = Encode(sizes, GroupMessages(sizes, links), MinGroupChunk)
	if err != nil {
		t.Fatal(err)
	}
	h, err := Read(fileAt(map[uint64][]byte{0: data}), 0)
	if err != nil {
		t.Fatal(err)
	}
	got := h.Links()
	if !h.IsGroup() || len(got) != 2 || got[1].Name != "data" || got[1].Address != 1600 {
		t.Errorf("links %+v", got)
	}
}

func TestReadV2ChecksumMismatch(t *testing.T) {
	sizes := binary.DefaultSizes
	data, err := Encode(sizes, GroupMessages(sizes, nil), 0)
	if err != nil {
		t.Fatal(err)
	}
	data[8] ^= 0x01
	if _, err := Read(fileAt(map[uint64][]byte{0: data}), 0); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestReadV2Continuation(t *testing.T) {
	sizes := binary.DefaultSizes
	cont := &message.Continuation{Offset: 512}

	ochk := binary.NewBuffer(sizes)
	ochk.PutString("OCHK")
	body := message.Bytes(message.NewHardLink("data", 4096), sizes)
	ochk.PutU8(uint8(message.TypeLink))
	ochk.PutU16(uint16(len(body)))
	ochk.PutU8(0)
	ochk.PutBytes(body)
	ochk.PutChecksum()
	cont.Length = uint64(ochk.Len())

	head, err := Encode(sizes, []message.Encoder{message.NewLinkInfo(sizes), cont}, 0)
	if err != nil {
		t.Fatal(err)
	}
	h, err := Read(fileAt(map[uint64][]byte{0: head, 512: ochk.Bytes()}), 0)
	if err != nil {
		t.Fatal(err)
	}
	if links := h.Links(); len(links) != 1 || links[0].Address != 4096 {
		t.Errorf("links %+v", links)
	}
	if h.Message(message.TypeContinuation) != nil {
		t.Error("continuation messages should be consumed, not returned")
	}
}

func TestReadV1(t *testing.T) {
	sizes := binary.DefaultSizes
	st := message.Bytes(&message.SymbolTable{BTreeAddress: 136, HeapAddress: 680}, sizes)

	b := binary.NewBuffer(sizes)
	b.PutU8(1)
	b.PutU8(0)
	b.PutU16(2)
	b.PutU32(1)
	b.PutU32(uint32(8 + len(st) + 8 + 8))
	b.PutZeros(4)
	b.PutU16(uint16(message.TypeSymbolTable))
	b.PutU16(uint16(len(st)))
	b.PutZeros(4)
	b.PutBytes(st)
	// trailing NIL message
	b.PutU16(0)
	b.PutU16(8)
	b.PutZeros(4)
	b.PutZeros(8)

	h, err := Read(fileAt(map[uint64][]byte{96: b.Bytes()}), 96)
	if err != nil {
		t.Fatal(err)
	}
	if h.Version != 1 || h.RefCount != 1 {
		t.Errorf("header %+v", h)
	}
	st2 := h.SymbolTable()
	if st2 == nil || st2.BTreeAddress != 136 || st2.HeapAddress != 680 || !h.IsGroup() {
		t.Errorf("symbol table %+v", st2)
	}
}

func TestReadInvalidPrefix(t *testing.T) {
	_, err := Read(fileAt(map[uint64][]byte{0: []byte("JUNKJUNK")}), 0)
	if !errors.Is(err, ErrInvalidHeader) {
		t.Errorf("expected ErrInvalidHeader, got %v", err)
	}
}
