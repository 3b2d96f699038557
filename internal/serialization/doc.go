// Package serialization reads and writes model checkpoints in the
// SafeTensors format and provides the read-only memory mapping shared by
// the checkpoint and dataset readers.
//
// SafeTensors layout:
//
//	[8 bytes: header_size (uint64 LE)]
//	[header_size bytes: JSON header, optionally space padded]
//	[tensor data: raw little-endian bytes]
//
// The JSON header maps tensor names to {dtype, shape, data_offsets} and may
// carry a "__metadata__" string map. Offsets are relative to the start of
// the data section.
//
// Readers never trust the header: names, offsets, sizes and dtypes are
// validated before any tensor byte is touched.
package serialization
