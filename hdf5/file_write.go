package hdf5

import (
	"fmt"
	"os"

	"github.com/robert-malhotra/tomochunk/internal/alloc"
	"github.com/robert-malhotra/tomochunk/internal/binary"
	"github.com/robert-malhotra/tomochunk/internal/superblock"
)

// Create creates or truncates path and returns a writable file holding an
// empty root group. The superblock is rewritten on Flush and Close.
func Create(path string) (*File, error) {
	osf, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}

	sb := superblock.New()
	f := &File{
		path:       path,
		file:       osf,
		reader:     binary.NewReader(osf, sb.Sizes),
		superblock: sb,
		writable:   true,
		allocator:  alloc.New(0),
	}
	f.allocator.Alloc(uint64(superblock.EncodedSize(sb.Sizes)), alloc.Meta)

	f.root = &Group{file: f, path: "/", children: make(map[string]*Group)}
	if err := f.root.commit(); err != nil {
		osf.Close()
		return nil, fmt.Errorf("%s: writing root group: %w", path, err)
	}
	if err := f.flush(); err != nil {
		osf.Close()
		return nil, err
	}
	return f, nil
}

// IsWritable reports whether the file was created for writing.
func (f *File) IsWritable() bool { return f.writable }

// Flush writes the superblock so the file is readable in its current
// state. Datasets still being written are not yet linked.
func (f *File) Flush() error {
	if err := f.check(); err != nil {
		return err
	}
	if !f.writable {
		return ErrReadOnly
	}
	f.wmu.Lock()
	defer f.wmu.Unlock()
	return f.flush()
}

func (f *File) flush() error {
	f.superblock.EOFAddress = f.allocator.EOF()
	b := binary.NewBuffer(f.superblock.Sizes)
	f.superblock.Encode(b)
	if err := b.WriteAt(f.file, 0); err != nil {
		return fmt.Errorf("%s: writing superblock: %w", f.path, err)
	}
	return nil
}

// AllocStats reports the bytes allocated for metadata and raw data.
func (f *File) AllocStats() alloc.Stats {
	if f.allocator == nil {
		return alloc.Stats{}
	}
	return f.allocator.Stats()
}

func (f *File) writableCheck() error {
	if err := f.check(); err != nil {
		return err
	}
	if !f.writable {
		return ErrReadOnly
	}
	return nil
}
