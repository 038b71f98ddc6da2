// Input backends: the three ways bytes reach the engine.
//
// A reader binds exactly one backend at construction: a named file, an
// in-memory buffer, or a caller-supplied stream. All three serve the same
// chunked read contract, so nothing above this layer can tell them apart by
// behavior — only by performance. The backend is a closed set: the
// interface is unexported and has exactly three implementations, selected
// once by newBackend and never re-dispatched.
//
// The concurrent method records the one real difference between variants.
// File and memory reads are pure native work and may run off the caller's
// goroutine (and outside a host runtime's global lock, see Gate). A stream
// read calls back into caller-supplied code, so it must stay on the
// caller's goroutine with any host lock held.
package marc

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// defaultChunkSize is the per-read buffer size used by the Reader, the
// Pipeline, and Count when the caller does not override it.
const defaultChunkSize = 512 * 1024

// gzipMagic is the two-byte gzip header used to sniff compressed files.
var gzipMagic = []byte{0x1f, 0x8b}

// Gate lets the engine embed under a host runtime that serializes managed
// callbacks behind a single process-wide lock. When a Gate is configured,
// the engine calls Unlock before blocking native work (file and memory
// reads, scanning, decoding) and Lock when handing results back. Stream
// backends never release the gate: satisfying their read re-enters
// host-managed code, which requires the lock.
type Gate interface {
	Unlock()
	Lock()
}

// backend is the closed union over the three input variants. readChunk
// fills p as far as the source allows: it returns n > 0 with a nil error
// while input remains (the final chunk may be short), then 0 and io.EOF.
type backend interface {
	readChunk(p []byte) (int, error)
	concurrent() bool
	Close() error
}

// newBackend selects a backend variant for src. First match wins: a string
// is a file path, a []byte is an in-memory buffer, an io.Reader is a host
// stream. Anything else is ErrUnsupportedInput.
func newBackend(src any) (backend, error) {
	switch v := src.(type) {
	case string:
		return openFileBackend(v)
	case []byte:
		return &memoryBackend{buf: v}, nil
	case io.Reader:
		return &streamBackend{r: v}, nil
	default:
		return nil, fmt.Errorf("%w: %T (want a string path, a []byte buffer, or an io.Reader)", ErrUnsupportedInput, src)
	}
}

// fileBackend reads a named file sequentially. Gzip-compressed files
// (sniffed by magic bytes at open) are decompressed transparently;
// decompression is still native work, so the backend stays concurrent.
type fileBackend struct {
	f  *os.File
	zr *gzip.Reader
}

func openFileBackend(path string) (*fileBackend, error) {
	f, err := os.Open(path)
	if err != nil {
		// Wrapped so fs.ErrNotExist and fs.ErrPermission stay visible
		// through errors.Is.
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	var magic [2]byte
	if n, _ := f.ReadAt(magic[:], 0); n == 2 && bytes.Equal(magic[:], gzipMagic) {
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open %s: gzip: %w", path, err)
		}
		return &fileBackend{f: f, zr: zr}, nil
	}

	return &fileBackend{f: f}, nil
}

func (b *fileBackend) readChunk(p []byte) (int, error) {
	if b.zr != nil {
		return readFull(b.zr, p)
	}
	return readFull(b.f, p)
}

func (b *fileBackend) concurrent() bool { return true }

func (b *fileBackend) Close() error {
	if b.zr != nil {
		b.zr.Close()
	}
	return b.f.Close()
}

// memoryBackend serves an owned or shared byte buffer. The buffer is
// treated as read-only for the life of the backend.
type memoryBackend struct {
	buf []byte
	pos int
}

func (b *memoryBackend) readChunk(p []byte) (int, error) {
	if b.pos >= len(b.buf) {
		return 0, io.EOF
	}
	n := copy(p, b.buf[b.pos:])
	b.pos += n
	return n, nil
}

func (b *memoryBackend) concurrent() bool { return true }

func (b *memoryBackend) Close() error { return nil }

// streamBackend pulls from caller-supplied code. The reader is owned by the
// caller and is not closed here.
type streamBackend struct {
	r io.Reader
}

func (b *streamBackend) readChunk(p []byte) (int, error) {
	return readFull(b.r, p)
}

func (b *streamBackend) concurrent() bool { return false }

func (b *streamBackend) Close() error { return nil }

// readFull adapts io.Reader's loose contract to the chunk contract: full
// chunks while input lasts, one short final chunk, then a clean io.EOF.
func readFull(r io.Reader, p []byte) (int, error) {
	n, err := io.ReadFull(r, p)
	switch err {
	case nil:
		return n, nil
	case io.ErrUnexpectedEOF:
		return n, nil
	case io.EOF:
		return 0, io.EOF
	default:
		return n, err
	}
}
