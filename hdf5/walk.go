package hdf5

import (
	"errors"
	"fmt"
)

// ErrStopWalk ends a walk early without reporting an error.
var ErrStopWalk = errors.New("stop walk")

// WalkFunc is called for every object under the walk root. obj is a
// *Group or a *Dataset; err reports a member that could not be opened, in
// which case obj is nil. Returning an error stops the walk.
type WalkFunc func(path string, obj interface{}, err error) error

// Walk visits g and everything below it in name order, depth first.
// Each object is visited once even when reachable through several links.
func Walk(g *Group, fn WalkFunc) error {
	seen := make(map[uint64]bool)
	err := walkGroup(g, fn, seen)
	if errors.Is(err, ErrStopWalk) {
		return nil
	}
	return err
}

func walkGroup(g *Group, fn WalkFunc, seen map[uint64]bool) error {
	seen[g.addr] = true
	if err := fn(g.path, g, nil); err != nil {
		return err
	}
	names, err := g.Members()
	if err != nil {
		return fn(g.path, nil, err)
	}

	for _, name := range names {
		path := JoinPath(g.path, name)
		m, err := g.member(name)
		if err != nil {
			if err := fn(path, nil, err); err != nil {
				return err
			}
			continue
		}
		if m.soft != "" {
			// Soft links are visited through their targets.
			continue
		}
		if seen[m.address] {
			continue
		}
		if sub, ok := g.created(name); ok {
			if err := walkGroup(sub, fn, seen); err != nil {
				return err
			}
			continue
		}

		hdr, err := g.file.header(m.address)
		if err != nil {
			if err := fn(path, nil, fmt.Errorf("%s: %w", path, err)); err != nil {
				return err
			}
			continue
		}
		switch {
		case hdr.IsGroup():
			sub := &Group{file: g.file, path: path, addr: m.address, header: hdr, parent: g}
			if err := walkGroup(sub, fn, seen); err != nil {
				return err
			}
		case hdr.IsDataset():
			seen[m.address] = true
			ds, err := newDataset(g.file, path, hdr)
			if err != nil {
				if err := fn(path, nil, err); err != nil {
					return err
				}
				continue
			}
			if err := fn(path, ds, nil); err != nil {
				return err
			}
		}
	}
	return nil
}
