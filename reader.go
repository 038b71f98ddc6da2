// Batched record reader: the per-call iteration entry point.
//
// The Reader wraps one backend and serves decoded records one at a time
// while doing its real work in batches: read chunks until the scanner finds
// record boundaries, decode a bounded batch, queue it, then pop from the
// queue on each call. Steady-state Next is a queue pop. The three states
// form an explicit machine — filling (queue empty, backend live), draining
// (queue holds records), exhausted (end of input reported) — so the
// idempotence of exhaustion is visible in the type rather than spread
// across booleans.
//
// A trailing unterminated fragment at end of input is a hard ErrTruncated,
// never a silent drop: archival ingestion must surface truncation. The
// error repeats on every subsequent call without touching the backend.
package marc

import (
	"fmt"
	"io"
	"iter"
	"runtime"
)

// Hard per-batch ceilings, independent of configuration. They bound
// worst-case memory against adversarial batch sizes or oversized records.
const (
	maxBatchRecords = 200
	maxBatchBytes   = 300 * 1024
)

// defaultBatchSize is the records decoded per refill when Config.BatchSize
// is zero.
const defaultBatchSize = 64

// Config holds reader configuration. The zero value is ready to use.
type Config struct {
	BatchSize int  // records decoded per refill (default 64, hard cap 200)
	ChunkSize int  // bytes per backend read (default 512 KiB)
	Workers   int  // decode workers; <= 1 decodes sequentially (default GOMAXPROCS)
	Gate      Gate // optional host lock hook
}

func (c *Config) setDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
}

// Reader states.
type readerState int

const (
	stateFilling   readerState = iota // queue empty, backend not yet exhausted
	stateDraining                     // queue holds decoded records
	stateExhausted                    // end of input reported; no further I/O
)

// Reader decodes records one at a time from a bound input source.
type Reader struct {
	src    backend
	cfg    Config
	state  readerState
	closed bool

	buf      []byte   // raw input carried across chunk reads
	chunk    []byte   // scratch for backend reads
	eof      bool     // backend signalled end of input; monotonic
	scanned  []Extent // extents found in buf, decoded in batches
	scanPos  int      // next extent in scanned to decode
	consumed int      // bytes of buf covered by decoded extents

	queue []*Record
	qpos  int
}

// NewReader binds a Reader to src: a file path (string), an in-memory
// buffer ([]byte), or a host stream (io.Reader). Construction errors are
// fatal — no partial reader is returned. File-open failures keep their os
// kind: errors.Is(err, fs.ErrNotExist) and fs.ErrPermission work.
func NewReader(src any, cfg Config) (*Reader, error) {
	cfg.setDefaults()
	be, err := newBackend(src)
	if err != nil {
		return nil, err
	}
	return &Reader{
		src:   be,
		cfg:   cfg,
		chunk: make([]byte, cfg.ChunkSize),
	}, nil
}

// Next returns the next record in source order. Exhaustion is io.EOF,
// idempotent under unbounded repeated calls with no further backend reads.
// A decode failure surfaces here in place of the record that failed; the
// failed record is dropped from the queue, never silently skipped, so the
// caller may catch the error and continue with the record after it.
func (r *Reader) Next() (*Record, error) {
	if r.closed {
		return nil, ErrClosed
	}
	for {
		switch r.state {
		case stateDraining:
			rec := r.queue[r.qpos]
			r.queue[r.qpos] = nil
			r.qpos++
			if r.qpos == len(r.queue) {
				r.queue, r.qpos = r.queue[:0], 0
				r.state = stateFilling
			}
			return rec, nil
		case stateExhausted:
			return nil, io.EOF
		case stateFilling:
			if err := r.fill(); err != nil {
				return nil, err
			}
		}
	}
}

// All yields every remaining record. Iteration stops at end of input or on
// the first error, which is yielded with a nil record.
func (r *Reader) All() iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		for {
			rec, err := r.Next()
			if err == io.EOF {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// Close releases the backend. Further calls to Next return ErrClosed.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.src.Close()
}

// fill runs the READ_BATCH state: ensure scanned extents exist (reading
// more input if needed), decode one bounded batch, and move to draining.
func (r *Reader) fill() error {
	if r.scanPos == len(r.scanned) {
		if err := r.rescan(); err != nil {
			return err
		}
		if r.state == stateExhausted {
			return nil
		}
	}

	pend := r.scanned[r.scanPos:]
	n := batchCut(pend, r.cfg.BatchSize)
	batch := pend[:n]

	var recs []*Record
	var err error
	r.gated(true, func() {
		if r.cfg.Workers > 1 {
			recs, err = DecodeParallel(r.buf, batch, r.cfg.Workers)
		} else {
			recs, err = DecodeBatch(r.buf, batch)
		}
	})
	if err != nil {
		// Salvage the records ahead of the failure so the error surfaces
		// exactly where the bad record would have been delivered. Once the
		// batch has drained down to the failing record, report its own
		// error and step past it: the queue stays consistent, so a caller
		// may catch and continue with the record after.
		recs = recs[:0]
		var derr error
		n = 0
		for n < len(batch) {
			rec, e := decodeExtent(r.buf, batch[n])
			if e != nil {
				derr = e
				break
			}
			recs = append(recs, rec)
			n++
		}
		if n == 0 {
			r.scanPos++
			r.consumed = batch[0].Offset + batch[0].Length
			return derr
		}
	}

	r.scanPos += n
	r.consumed = batch[n-1].Offset + batch[n-1].Length
	r.queue, r.qpos = recs, 0
	r.state = stateDraining
	return nil
}

// rescan drops consumed bytes, reads input until the scanner yields at
// least one extent, and handles end of input: a clean EOF moves to
// exhausted, a leftover fragment with no terminator is ErrTruncated.
func (r *Reader) rescan() error {
	if r.consumed > 0 {
		copy(r.buf, r.buf[r.consumed:])
		r.buf = r.buf[:len(r.buf)-r.consumed]
		r.consumed = 0
	}
	r.scanned, r.scanPos = nil, 0

	for {
		if len(r.buf) > 0 {
			var exts []Extent
			var serr error
			r.gated(true, func() { exts, serr = Scan(r.buf) })
			if serr == nil {
				r.scanned = exts
				return nil
			}
		}
		if r.eof {
			if len(r.buf) > 0 {
				return fmt.Errorf("%w: %d unterminated trailing bytes at end of input", ErrTruncated, len(r.buf))
			}
			r.state = stateExhausted
			return nil
		}
		if err := r.readMore(); err != nil {
			return err
		}
	}
}

// readMore appends one chunk from the backend to buf, recording EOF.
func (r *Reader) readMore() error {
	var n int
	var err error
	r.gated(r.src.concurrent(), func() {
		n, err = r.src.readChunk(r.chunk)
	})
	if n > 0 {
		r.buf = append(r.buf, r.chunk[:n]...)
	}
	switch err {
	case nil:
		return nil
	case io.EOF:
		r.eof = true
		return nil
	default:
		return err
	}
}

// gated runs fn with the host gate released when release is true. Scanning
// and decoding always release; backend reads release only for
// concurrent-capable backends (file, memory), never for host streams.
func (r *Reader) gated(release bool, fn func()) {
	if release && r.cfg.Gate != nil {
		r.cfg.Gate.Unlock()
		defer r.cfg.Gate.Lock()
	}
	fn()
}
