package hdf5

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/robert-malhotra/tomochunk/internal/alloc"
	"github.com/robert-malhotra/tomochunk/internal/binary"
	"github.com/robert-malhotra/tomochunk/internal/object"
	"github.com/robert-malhotra/tomochunk/internal/superblock"
)

// File is an open HDF5 file. Files from Open are read-only; files from
// Create accept new groups and datasets until Close.
type File struct {
	path       string
	file       *os.File
	reader     *binary.Reader
	superblock *superblock.Superblock
	root       *Group

	mu        sync.Mutex
	wmu       sync.Mutex // serializes metadata writes
	closed    bool
	writable  bool
	allocator *alloc.Allocator
	writers   []*ChunkedWriter
}

// Open opens an existing file for reading.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	sb, err := superblock.Read(f)
	if err != nil {
		f.Close()
		if errors.Is(err, superblock.ErrNotHDF5) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotHDF5)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	// Addresses are relative to the base address, which moves past any
	// user block.
	var ra io.ReaderAt = f
	if sb.BaseAddress != 0 {
		ra = io.NewSectionReader(f, int64(sb.BaseAddress), 1<<62)
	}

	hf := &File{
		path:       path,
		file:       f,
		reader:     binary.NewReader(ra, sb.Sizes),
		superblock: sb,
	}
	hf.root = &Group{file: hf, path: "/", addr: sb.RootAddress}
	return hf, nil
}

// Close releases the file. For writable files it first finishes any open
// dataset writers and writes the superblock.
func (f *File) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	writers := f.writers
	f.writers = nil
	f.mu.Unlock()

	var errs []error
	if f.writable {
		f.wmu.Lock()
		for _, w := range writers {
			if err := w.close(); err != nil && !errors.Is(err, ErrWriterClosed) {
				errs = append(errs, err)
			}
		}
		if err := f.flush(); err != nil {
			errs = append(errs, err)
		}
		f.wmu.Unlock()
	}
	if err := f.file.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Path returns the path the file was opened with.
func (f *File) Path() string { return f.path }

// Version returns the superblock version.
func (f *File) Version() int { return int(f.superblock.Version) }

// Root returns the root group.
func (f *File) Root() *Group { return f.root }

// OpenGroup opens the group at an absolute path.
func (f *File) OpenGroup(path string) (*Group, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.root.OpenGroup(path)
}

// OpenDataset opens the dataset at an absolute path.
func (f *File) OpenDataset(path string) (*Dataset, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.root.OpenDataset(path)
}

// Datasets lists the paths of every dataset in the file, depth first.
func (f *File) Datasets() ([]string, error) {
	var out []string
	err := Walk(f.root, func(path string, obj interface{}, err error) error {
		if err != nil {
			return err
		}
		if _, ok := obj.(*Dataset); ok {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

func (f *File) check() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	return nil
}

func (f *File) header(addr uint64) (*object.Header, error) {
	return object.Read(f.reader, addr)
}

// resolve walks path from g, following soft links, and returns the group
// holding the final link with the address and path of its target.
// Absolute paths start at the root.
func (f *File) resolve(g *Group, path string, depth int) (*Group, uint64, string, error) {
	if depth > MaxLinkDepth {
		return nil, 0, "", ErrLinkDepth
	}
	if strings.HasPrefix(path, "/") {
		g = f.root
	}
	parts := SplitPath(path)
	if len(parts) == 0 {
		return nil, g.addr, g.path, nil
	}

	for i, name := range parts {
		m, err := g.member(name)
		if err != nil {
			return nil, 0, "", err
		}
		addr := m.address
		childPath := JoinPath(g.path, name)
		if m.soft != "" {
			_, a, p, err := f.resolve(g, m.soft, depth+1)
			if err != nil {
				return nil, 0, "", fmt.Errorf("soft link %s: %w", childPath, err)
			}
			addr, childPath = a, p
		}
		if i == len(parts)-1 {
			return g, addr, childPath, nil
		}
		if c, ok := g.children[name]; ok && m.soft == "" {
			g = c
			continue
		}
		hdr, err := f.header(addr)
		if err != nil {
			return nil, 0, "", fmt.Errorf("%s: %w", childPath, err)
		}
		if !hdr.IsGroup() {
			return nil, 0, "", fmt.Errorf("%s: %w", childPath, ErrNotGroup)
		}
		g = &Group{file: f, path: childPath, addr: addr, header: hdr, parent: g}
	}
	return g, 0, "", nil
}
