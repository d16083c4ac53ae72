// Package rdsearch ingests NSRL-style reference datasets (manufacturer,
// operating system, product and file-hash tables) from a directory or an ISO
// 9660 disk image into a search backend, and looks file hashes up against it.
//
// The core is the ingest pipeline: locate the four source files regardless of
// container form, recover text from mixed legacy encodings line by line,
// resolve product references to manufacturer/OS names, and write everything
// through a Client in bounded-memory batches with deterministic ids. The
// elastic, boltdb and http subpackages provide interchangeable Client
// implementations.
package rdsearch
