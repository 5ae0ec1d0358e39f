package hdf5

import (
	"fmt"

	"github.com/robert-malhotra/tomochunk/internal/alloc"
	"github.com/robert-malhotra/tomochunk/internal/message"
	"github.com/robert-malhotra/tomochunk/internal/object"
)

// CreateGroup creates a child group named name.
func (g *Group) CreateGroup(name string) (*Group, error) {
	if err := g.file.writableCheck(); err != nil {
		return nil, err
	}
	g.file.wmu.Lock()
	defer g.file.wmu.Unlock()
	return g.createGroup(name)
}

// RequireGroup returns the group at path below g, creating any missing
// groups along the way.
func (g *Group) RequireGroup(path string) (*Group, error) {
	if err := g.file.writableCheck(); err != nil {
		return nil, err
	}
	g.file.wmu.Lock()
	defer g.file.wmu.Unlock()

	cur := g
	if len(path) > 0 && path[0] == '/' {
		cur = g.file.root
	}
	for _, name := range SplitPath(path) {
		if next, ok := cur.children[name]; ok {
			cur = next
			continue
		}
		next, err := cur.createGroup(name)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func (g *Group) createGroup(name string) (*Group, error) {
	if err := g.checkNewName(name); err != nil {
		return nil, err
	}
	child := &Group{file: g.file, path: JoinPath(g.path, name), parent: g, children: make(map[string]*Group)}
	if err := child.store(); err != nil {
		return nil, err
	}
	if err := g.addLink(message.NewHardLink(name, child.addr)); err != nil {
		return nil, err
	}
	g.children[name] = child
	return child, nil
}

// checkNewName rejects names already linked or reserved by an open
// dataset writer.
func (g *Group) checkNewName(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := g.checkLinked(name); err != nil {
		return err
	}
	g.file.mu.Lock()
	defer g.file.mu.Unlock()
	for _, w := range g.file.writers {
		if w.parent == g && w.name == name {
			return fmt.Errorf("%s: %w", JoinPath(g.path, name), ErrExists)
		}
	}
	return nil
}

func (g *Group) checkLinked(name string) error {
	for _, l := range g.links {
		if l.Name == name {
			return fmt.Errorf("%s: %w", JoinPath(g.path, name), ErrExists)
		}
	}
	return nil
}

func (g *Group) addLink(l *message.Link) error {
	if err := g.checkLinked(l.Name); err != nil {
		return err
	}
	g.links = append(g.links, l)
	return g.commit()
}

// store writes the group header at a fresh address and releases the old
// block. Links pointing at the group are not touched.
func (g *Group) store() error {
	sizes := g.file.superblock.Sizes
	buf, err := object.Encode(sizes, object.GroupMessages(sizes, g.links), object.MinGroupChunk)
	if err != nil {
		return fmt.Errorf("%s: %w", g.path, err)
	}
	addr := g.file.allocator.Alloc(uint64(len(buf)), alloc.Meta)
	if _, err := g.file.file.WriteAt(buf, int64(addr)); err != nil {
		return fmt.Errorf("%s: writing group header: %w", g.path, err)
	}
	if g.size > 0 {
		if err := g.file.allocator.Release(g.addr, g.size); err != nil {
			return err
		}
	}
	g.addr, g.size, g.header = addr, uint64(len(buf)), nil
	return nil
}

// commit stores the header and repoints the parent's link, rewriting
// ancestors up to the root.
func (g *Group) commit() error {
	if err := g.store(); err != nil {
		return err
	}
	if g.parent == nil {
		g.file.superblock.RootAddress = g.addr
		return nil
	}
	return g.parent.relink(g.Name(), g.addr)
}

func (g *Group) relink(name string, addr uint64) error {
	for _, l := range g.links {
		if l.Name == name {
			l.Address = addr
			return g.commit()
		}
	}
	return fmt.Errorf("%s: %w", JoinPath(g.path, name), ErrNotFound)
}
