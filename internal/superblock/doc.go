// Package superblock reads and writes the HDF5 superblock.
//
// [Read] searches for the signature at offset 0, then 512, 1024 and every
// following power of two, and decodes versions 0 through 3. Version 0 and 1
// files reach the root group through a symbol-table entry whose scratch pad
// may cache the root B-tree and local heap; [Superblock.HasSymbolTableRoot]
// reports whether it does.
//
// Files created by this module always carry a version 2 superblock with
// 8-byte addresses, built with [New] and [Superblock.Encode].
package superblock
