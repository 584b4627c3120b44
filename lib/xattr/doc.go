// Package xattr builds the fixed-layout structured keys under which attributes of a namespace entity
// (an inode, a directory, ...) are stored in a key-value backing store.
//
// Every key has the same encoded size (EncodedSize bytes):
//
//	+----------------+-------+------------------------------+
//	| owner (8 B BE) | class | name (NameCapacity B, 0-pad) |
//	+----------------+-------+------------------------------+
//
// The owner is written big endian, so comparing two encoded keys byte by byte yields the same order as
// comparing (owner, class, name) lexicographically. Stores that keep keys ordered can therefore list all
// attributes of one owner with a single prefix scan (see Prefix).
//
// Names must not be empty and must not contain a NUL byte: since the name field is zero padded, a name
// with trailing NUL bytes would encode identically to the shorter name.
package xattr
