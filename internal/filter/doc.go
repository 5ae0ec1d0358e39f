// Package filter implements the HDF5 chunk filter pipeline in both
// directions.
//
// Filters run in pipeline order when a chunk is written and in reverse
// when it is read. Each chunk carries a mask of filters that were skipped
// for it, which only happens for filters marked optional.
//
// # Filters
//
//   - deflate (1), shuffle (2) and fletcher32 (3) from the HDF5 library.
//   - snappy (32003), lz4 (32004), bitshuffle (32008) and zstd (32015),
//     using the framing of their registered HDF5 plugins so that files
//     remain readable with those plugins installed.
//   - j2k (32768), j2k-stack (32769) and jpegls (32770), image codecs for
//     8 and 16 bit integer planes. Their IDs are in the private range;
//     the client data records the plane geometry so a chunk can be decoded
//     without the dataset's shape.
//
// Filters are rebuilt from a file's pipeline message through [Registry].
package filter
