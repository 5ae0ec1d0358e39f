// Package btree walks the version 1 B-trees that index old-style group
// members and chunked dataset storage.
package btree

import (
	"fmt"

	"github.com/robert-malhotra/tomochunk/internal/binary"
	"github.com/robert-malhotra/tomochunk/internal/heap"
)

// Node types of a version 1 B-tree.
const (
	nodeGroup = 0
	nodeChunk = 1
)

// maxDepth guards against cycles in a corrupt tree.
const maxDepth = 64

// cacheSoftLink marks a symbol table entry whose scratch pad holds the heap
// offset of a soft link target.
const cacheSoftLink = 2

// GroupEntry is one member of an old-style group.
type GroupEntry struct {
	Name    string
	Address uint64
	Soft    bool
	Target  string
}

type nodeHeader struct {
	level   int
	entries int
}

func readNodeHeader(r *binary.Reader, addr uint64, want uint8) (nodeHeader, int, error) {
	s := r.Sizes()
	prefix := 8 + 2*s.Offset
	c, err := r.CursorAt(addr, prefix)
	if err != nil {
		return nodeHeader{}, 0, fmt.Errorf("B-tree node at %d: %w", addr, err)
	}
	if sig := string(c.Bytes(4)); sig != "TREE" {
		return nodeHeader{}, 0, fmt.Errorf("B-tree node at %d: bad signature %q", addr, sig)
	}
	if typ := c.U8(); typ != want {
		return nodeHeader{}, 0, fmt.Errorf("B-tree node at %d: type %d, want %d", addr, typ, want)
	}
	h := nodeHeader{level: int(c.U8()), entries: int(c.U16())}
	return h, prefix, nil
}

// ReadGroup returns every member of the group indexed by the B-tree at
// addr, in name order.
func ReadGroup(r *binary.Reader, addr uint64, names *heap.LocalHeap) ([]GroupEntry, error) {
	var out []GroupEntry
	err := walkGroup(r, addr, names, 0, &out)
	return out, err
}

func walkGroup(r *binary.Reader, addr uint64, names *heap.LocalHeap, depth int, out *[]GroupEntry) error {
	if depth > maxDepth {
		return fmt.Errorf("group B-tree deeper than %d levels", maxDepth)
	}
	h, prefix, err := readNodeHeader(r, addr, nodeGroup)
	if err != nil {
		return err
	}
	s := r.Sizes()
	// Keys are heap offsets, interleaved with child addresses.
	c, err := r.CursorAt(addr+uint64(prefix), h.entries*(s.Length+s.Offset)+s.Length)
	if err != nil {
		return err
	}
	for i := 0; i < h.entries; i++ {
		c.Length()
		child := c.Offset()
		if h.level > 0 {
			err = walkGroup(r, child, names, depth+1, out)
		} else {
			err = readSymbolNode(r, child, names, out)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func readSymbolNode(r *binary.Reader, addr uint64, names *heap.LocalHeap, out *[]GroupEntry) error {
	c, err := r.CursorAt(addr, 8)
	if err != nil {
		return fmt.Errorf("symbol node at %d: %w", addr, err)
	}
	if sig := string(c.Bytes(4)); sig != "SNOD" {
		return fmt.Errorf("symbol node at %d: bad signature %q", addr, sig)
	}
	if v := c.U8(); v != 1 {
		return fmt.Errorf("symbol node at %d: unsupported version %d", addr, v)
	}
	c.Skip(1)
	n := int(c.U16())

	s := r.Sizes()
	entrySize := 2*s.Offset + 8 + 16
	c, err = r.CursorAt(addr+8, n*entrySize)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		nameOff := c.Offset()
		e := GroupEntry{Address: c.Offset()}
		cache := c.U32()
		c.Skip(4)
		scratch := c.Bytes(16)
		if c.Err() != nil {
			return c.Err()
		}
		if e.Name, err = names.String(nameOff); err != nil {
			return err
		}
		if cache == cacheSoftLink {
			e.Soft = true
			if e.Target, err = names.String(binary.DecodeUint(scratch[:4])); err != nil {
				return err
			}
		}
		*out = append(*out, e)
	}
	return nil
}
