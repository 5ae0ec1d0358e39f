// Package layout reads and writes dataset raw data.
//
// # Storage Layouts
//
// [Storage] reads a box of elements from any of the three HDF5 layout
// classes:
//
//   - Compact (class 0): the data sits in the layout message itself.
//   - Contiguous (class 1): one block in the file, read row by row along
//     the last axis.
//   - Chunked (class 2): fixed-size chunks, each stored and filtered on
//     its own and located through a chunk index.
//
// # Chunk Indexes
//
// The index is decoded on first use and kept for the life of the
// [Storage]:
//
//   - Single chunk: the layout message holds the chunk address.
//   - Implicit: chunks follow each other at fixed offsets.
//   - Fixed array ("FAHD"): one entry per chunk, optionally paged.
//   - Extensible array ("EAHD"): used for datasets with one unlimited
//     axis; entries are numbered over the maximum dimensions, so
//     [Storage.SetMaxDims] must be called before the first read.
//   - B-tree v1 ("TREE") and v2 ("BTHD"): keyed by chunk offset.
//
// Decoded chunks are kept in an LRU cache large enough for one row of
// chunks along the leading axis, so reading a dataset a slice at a time
// decodes every chunk once.
//
// # Writing
//
// [ChunkWriter] appends already filtered chunks in any order and, on
// [ChunkWriter.Finish], writes a fixed array index over all of them.
// Chunks never written read back as the fill value.
package layout
