// Package object reads and writes HDF5 object headers.
//
// [Read] accepts version 1 headers, whose messages are eight-byte aligned
// and whose continuation blocks are bare, and version 2 headers ("OHDR"),
// whose first block and "OCHK" continuation blocks each end in a lookup3
// checksum that is verified on read.
//
// [Encode] always produces a version 2 header in a single block. Callers
// assemble the message list with [GroupMessages] or [DatasetMessages].
package object
