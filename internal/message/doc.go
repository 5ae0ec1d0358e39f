// Package message decodes the header messages found in HDF5 object headers
// and encodes the subset this module writes.
//
// [Parse] turns a raw message body into a typed value. Dataspace, datatype,
// layout, filter pipeline, fill value, attribute, link, link info, group
// info, symbol table and continuation messages are decoded; anything else
// is returned as [Unknown].
//
// Types that can be written implement [Encoder]. Encoders always emit the
// newest version of a message that HDF5 1.10 readers accept: version 2
// dataspaces and pipelines, version 3 attributes and fill values, and
// version 4 layouts for chunked storage.
//
// The chunked layout splits the element size back out of the chunk
// dimensions, so [DataLayout.ChunkDims] always has the dataset's rank.
package message
