package hdf5

import (
	"fmt"
	"sort"

	"github.com/robert-malhotra/tomochunk/internal/btree"
	"github.com/robert-malhotra/tomochunk/internal/heap"
	"github.com/robert-malhotra/tomochunk/internal/message"
	"github.com/robert-malhotra/tomochunk/internal/object"
)

// Group is a container of named links to datasets and other groups.
type Group struct {
	file   *File
	path   string
	addr   uint64
	header *object.Header
	parent *Group

	// Write state: links as they stand in the current header and the
	// groups created below this one.
	links    []*message.Link
	children map[string]*Group
	size     uint64
}

// member is one resolved link of a group. soft holds the target path of
// a soft link.
type member struct {
	name    string
	address uint64
	soft    string
}

// Name returns the last component of the group's path.
func (g *Group) Name() string { return baseName(g.path) }

// Path returns the absolute path of the group.
func (g *Group) Path() string { return g.path }

// OpenGroup opens a group relative to g, or absolute when path starts
// with a slash.
func (g *Group) OpenGroup(path string) (*Group, error) {
	if err := g.file.check(); err != nil {
		return nil, err
	}
	if child, ok := g.created(path); ok {
		return child, nil
	}
	parent, addr, full, err := g.file.resolve(g, path, 0)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return g.file.root, nil
	}
	hdr, err := g.file.header(addr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", full, err)
	}
	if !hdr.IsGroup() {
		return nil, fmt.Errorf("%s: %w", full, ErrNotGroup)
	}
	return &Group{file: g.file, path: full, addr: addr, header: hdr, parent: parent}, nil
}

// OpenDataset opens a dataset relative to g, or absolute when path starts
// with a slash.
func (g *Group) OpenDataset(path string) (*Dataset, error) {
	if err := g.file.check(); err != nil {
		return nil, err
	}
	parent, addr, full, err := g.file.resolve(g, path, 0)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, fmt.Errorf("%s: %w", g.path, ErrNotDataset)
	}
	hdr, err := g.file.header(addr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", full, err)
	}
	if !hdr.IsDataset() {
		return nil, fmt.Errorf("%s: %w", full, ErrNotDataset)
	}
	return newDataset(g.file, full, hdr)
}

// Members returns the sorted names of the group's links.
func (g *Group) Members() ([]string, error) {
	ms, err := g.members()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.name
	}
	sort.Strings(names)
	return names, nil
}

// Attrs returns the group's attributes.
func (g *Group) Attrs() ([]*Attribute, error) {
	hdr, err := g.loadHeader()
	if err != nil {
		return nil, err
	}
	return wrapAttributes(hdr.Attributes()), nil
}

// Attr returns the named attribute.
func (g *Group) Attr(name string) (*Attribute, error) {
	attrs, err := g.Attrs()
	if err != nil {
		return nil, err
	}
	return findAttr(attrs, g.path, name)
}

func (g *Group) loadHeader() (*object.Header, error) {
	if g.header == nil {
		hdr, err := g.file.header(g.addr)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", g.path, err)
		}
		g.header = hdr
	}
	return g.header, nil
}

func (g *Group) member(name string) (member, error) {
	ms, err := g.members()
	if err != nil {
		return member{}, err
	}
	for _, m := range ms {
		if m.name == name {
			return m, nil
		}
	}
	return member{}, fmt.Errorf("%s: %w", JoinPath(g.path, name), ErrNotFound)
}

func (g *Group) members() ([]member, error) {
	if g.file.writable {
		return linkMembers(g.links)
	}

	hdr, err := g.loadHeader()
	if err != nil {
		return nil, err
	}
	sizes := g.file.reader.Sizes()
	if li := hdr.LinkInfo(); li != nil && li.Dense(sizes) {
		return nil, fmt.Errorf("%s: %w: dense link storage", g.path, ErrUnsupported)
	}
	if links := hdr.Links(); len(links) > 0 {
		return linkMembers(links)
	}

	st := hdr.SymbolTable()
	if st == nil && g == g.file.root && g.file.superblock.HasSymbolTableRoot() {
		st = &message.SymbolTable{BTreeAddress: g.file.superblock.RootBTree, HeapAddress: g.file.superblock.RootHeap}
	}
	if st == nil {
		return nil, nil
	}
	names, err := heap.ReadLocal(g.file.reader, st.HeapAddress)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", g.path, err)
	}
	entries, err := btree.ReadGroup(g.file.reader, st.BTreeAddress, names)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", g.path, err)
	}
	out := make([]member, len(entries))
	for i, e := range entries {
		out[i] = member{name: e.Name, address: e.Address}
		if e.Soft {
			out[i].soft = e.Target
		}
	}
	return out, nil
}

func linkMembers(links []*message.Link) ([]member, error) {
	out := make([]member, 0, len(links))
	for _, l := range links {
		switch l.LinkType {
		case message.LinkHard:
			out = append(out, member{name: l.Name, address: l.Address})
		case message.LinkSoft:
			out = append(out, member{name: l.Name, soft: l.Target})
		default:
			return nil, fmt.Errorf("link %q: %w: link type %d", l.Name, ErrUnsupported, l.LinkType)
		}
	}
	return out, nil
}

// created finds a group made through this handle's file during writing.
func (g *Group) created(path string) (*Group, bool) {
	if !g.file.writable {
		return nil, false
	}
	cur := g
	if len(path) > 0 && path[0] == '/' {
		cur = g.file.root
	}
	for _, name := range SplitPath(path) {
		next, ok := cur.children[name]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}
