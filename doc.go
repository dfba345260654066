// Package ewf reads and writes EWFv1 (Expert Witness Format) containers: a
// segmented, chunk-compressed binary format historically used for
// digital-evidence storage.
//
// The package exposes two directions. EWFReader opens random-access backing
// storage holding an EWFv1 image and serves a logically contiguous byte
// stream, transparently decompressing and caching chunks as they are
// requested. EWFWriter accepts a sequential byte stream and produces a
// well-formed EWFv1 container: per-chunk zlib compression, one or more
// chunk tables, a volume descriptor, and a terminating section.
//
// Produced files are a deliberately simplified subset of EWFv1: a single
// segment, no encryption, append-only writes. They are not guaranteed to be
// readable by third-party EWF tooling.
package ewf
