// Diagnostic tool for reconditioned HDF5 files: prints every group and
// dataset with its chunking, filters and compression ratio.
package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/robert-malhotra/tomochunk/hdf5"
	"github.com/robert-malhotra/tomochunk/internal/metrics"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(stderr, "Usage: diagnose <file.h5> [object@attribute]")
		return 2
	}

	filename := args[0]
	f, err := hdf5.Open(filename)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: Failed to open file: %v\n", err)
		return 1
	}
	defer f.Close()

	if len(args) == 2 {
		if err := printAttr(stdout, f, args[1]); err != nil {
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Fprintf(stdout, "=== Analyzing %s ===\n\n", filename)
	fmt.Fprintf(stdout, "Superblock version: %d\n\n", f.Version())

	failed := false
	err = hdf5.Walk(f.Root(), func(path string, obj interface{}, err error) error {
		if err != nil {
			fmt.Fprintf(stdout, "%q: ERROR: %v\n", path, err)
			failed = true
			return nil
		}
		switch o := obj.(type) {
		case *hdf5.Group:
			printGroup(stdout, o)
		case *hdf5.Dataset:
			if err := printDataset(stdout, o); err != nil {
				fmt.Fprintf(stdout, "  ERROR: %v\n", err)
				failed = true
			}
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	if failed {
		return 1
	}
	return 0
}

func printGroup(w io.Writer, g *hdf5.Group) {
	members, err := g.Members()
	if err != nil {
		fmt.Fprintf(w, "Group %q: ERROR getting members: %v\n", g.Path(), err)
		return
	}
	fmt.Fprintf(w, "Group %q: %d members\n", g.Path(), len(members))
	attrs, err := g.Attrs()
	if err != nil {
		fmt.Fprintf(w, "  ERROR getting attrs: %v\n", err)
		return
	}
	printAttrs(w, attrs)
}

func printDataset(w io.Writer, ds *hdf5.Dataset) error {
	fmt.Fprintf(w, "Dataset %q:\n", ds.Path())
	t, err := ds.ElementType()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  Shape: %v %s\n", ds.Shape(), t)
	if c := ds.Chunks(); c != nil {
		fmt.Fprintf(w, "  Chunks: %v\n", c)
	}
	p, err := ds.Filters()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  Filters: %s\n", p)

	logical := ds.NumElements() * uint64(ds.ElementSize())
	stored, err := ds.StorageSize()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  Storage: %s of %s, cratio %.3f\n",
		humanize.Bytes(stored), humanize.Bytes(logical), metrics.Ratio(logical, stored))
	printAttrs(w, ds.Attrs())
	return nil
}

func printAttrs(w io.Writer, attrs []*hdf5.Attribute) {
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Name() < attrs[j].Name() })
	for _, a := range attrs {
		v, err := a.Value()
		if err != nil {
			fmt.Fprintf(w, "  @%s: ERROR: %v\n", a.Name(), err)
			continue
		}
		fmt.Fprintf(w, "  @%s: %v\n", a.Name(), v)
	}
}

// printAttr prints one attribute named in "object@attribute" notation.
func printAttr(w io.Writer, f *hdf5.File, spec string) error {
	objPath, name, err := hdf5.ParseAttrPath(spec)
	if err != nil {
		return err
	}
	var a *hdf5.Attribute
	if ds, derr := f.OpenDataset(objPath); derr == nil {
		a, err = ds.Attr(name)
	} else {
		g, gerr := f.OpenGroup(objPath)
		if gerr != nil {
			return fmt.Errorf("%s: %w", objPath, derr)
		}
		a, err = g.Attr(name)
	}
	if err != nil {
		return err
	}
	v, err := a.Value()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, v)
	return nil
}
