// Boundary scanning over raw bytes.
//
// A file is a bare concatenation of terminator-delimited records, so record
// boundaries are found by a single forward pass for the terminator byte.
// Scan deliberately stops at the last terminator: bytes after it belong to
// a record that has not finished arriving, and only the caller that knows
// about chunk boundaries (the pipeline producer, or the Reader at end of
// input) can decide whether they are leftover or truncation.
package marc

import (
	"bytes"
	"fmt"
	"io"
)

// Extent locates one complete record inside a buffer. Length includes the
// trailing record terminator. Extents from one scan are non-overlapping,
// contiguous, and ordered by offset.
type Extent struct {
	Offset int
	Length int
}

// Scan returns an extent for every terminated record in buf, in source
// order. A trailing unterminated fragment is left unconsumed: the last
// extent ends at the last terminator. An empty buffer, or one containing
// no terminator at all, is ErrMalformed.
func Scan(buf []byte) ([]Extent, error) {
	return ScanLimit(buf, -1)
}

// ScanLimit is Scan stopping after max extents without rescanning the rest
// of the buffer. max < 0 means unlimited.
func ScanLimit(buf []byte, max int) ([]Extent, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrMalformed)
	}
	if max == 0 {
		return nil, nil
	}

	var extents []Extent
	start := 0
	for start < len(buf) {
		i := bytes.IndexByte(buf[start:], RecordTerminator)
		if i < 0 {
			break
		}
		extents = append(extents, Extent{Offset: start, Length: i + 1})
		start += i + 1
		if max > 0 && len(extents) == max {
			break
		}
	}

	if extents == nil {
		return nil, fmt.Errorf("%w: no record terminator in %d bytes", ErrMalformed, len(buf))
	}
	return extents, nil
}

// CountRecords counts record terminators in buf without allocating extents.
func CountRecords(buf []byte) int {
	return bytes.Count(buf, []byte{RecordTerminator})
}

// Count streams any accepted input (path, []byte, io.Reader) and returns
// the number of records it contains, without decoding them.
func Count(src any) (int, error) {
	be, err := newBackend(src)
	if err != nil {
		return 0, err
	}
	defer be.Close()

	total := 0
	buf := make([]byte, defaultChunkSize)
	for {
		n, err := be.readChunk(buf)
		if n > 0 {
			total += CountRecords(buf[:n])
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
