// Package marc decodes archival bibliographic record files in the binary
// MARC 21 / ISO 2709 interchange format: a bare concatenation of records,
// each a 24-byte leader, a directory, and variable fields, closed by a
// single record terminator byte. Files routinely run to gigabytes and
// millions of records, so the package is built around streaming: a boundary
// scanner that finds record extents in raw bytes, a batched Reader that
// serves records one at a time from any input, and a producer/consumer
// Pipeline that overlaps chunked file reads with parallel decoding behind a
// bounded channel.
//
// Records are always delivered in source byte order, whether decoded
// sequentially or in parallel. Exhaustion is reported as io.EOF and is
// idempotent; decode failures surface at the point the failing record
// would have been delivered.
package marc

import "errors"

// Sentinel errors for programmatic handling. Callers use errors.Is to
// distinguish framing corruption (ErrMalformed) from incomplete input
// (ErrTruncated) and from construction-time misuse (ErrUnsupportedInput).
// File-open failures are returned with the underlying os error wrapped, so
// fs.ErrNotExist and fs.ErrPermission stay distinguishable the same way.
var (
	ErrMalformed        = errors.New("malformed input")
	ErrTruncated        = errors.New("truncated record")
	ErrUnsupportedInput = errors.New("unsupported input type")
	ErrBatchDecode      = errors.New("batch decode failed")
	ErrWouldBlock       = errors.New("no record available")
	ErrClosed           = errors.New("reader is closed")
)
