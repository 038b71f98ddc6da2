// Producer/consumer streaming over one large file.
//
// Two internal stages run behind the caller: a read stage that pulls
// fixed-size chunks, carries partial records across chunk boundaries, and
// scans for extents; and a decode stage that runs the parallel batch
// decoder and pushes finished records into a bounded channel. The small
// batch channel between the stages lets the next chunk's disk read overlap
// the current batch's CPU-bound decode. The record channel is the only
// structure shared with the caller: when it is full the decode stage
// suspends (backpressure), so peak memory is roughly capacity times average
// record size regardless of file size.
//
// Leftover carry is load-bearing: records routinely straddle chunk
// boundaries, and without re-prepending the unterminated tail of each chunk
// the scanner would silently lose a record at every chunk edge.
package marc

import (
	"context"
	"fmt"
	"io"
	"iter"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// defaultCapacity is the record channel capacity when PipelineConfig.
// Capacity is zero.
const defaultCapacity = 1000

// PipelineConfig holds pipeline configuration. The zero value is ready to
// use.
type PipelineConfig struct {
	ChunkSize int // bytes per disk read (default 512 KiB)
	Capacity  int // decoded records buffered ahead of the caller (default 1000)
	Workers   int // decode workers (default GOMAXPROCS)
}

func (c *PipelineConfig) setDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.Capacity <= 0 {
		c.Capacity = defaultCapacity
	}
}

// batch is one scanned chunk handed from the read stage to the decode
// stage. buf is read-only once handed off.
type batch struct {
	buf     []byte
	extents []Extent
}

// Pipeline streams decoded records from one file with a dedicated reader,
// a parallel decode stage, and bounded buffering. Records arrive in source
// order.
type Pipeline struct {
	cfg  PipelineConfig
	recs chan *Record
	stop chan struct{} // closed by Close; unblocks suspended stages
	done chan struct{} // closed once both stages have joined
	once sync.Once
	err  error // terminal stage error; readable once recs is closed
}

// OpenPipeline opens path (plain or gzip-compressed) and starts the
// pipeline. Open failures are fatal and keep their os kind; no partial
// pipeline is returned.
func OpenPipeline(path string, cfg PipelineConfig) (*Pipeline, error) {
	cfg.setDefaults()

	be, err := openFileBackend(path)
	if err != nil {
		return nil, err
	}

	// The group context cancels when either stage fails, so a stage
	// suspended on a channel the other will never service gets unblocked.
	group, ctx := errgroup.WithContext(context.Background())

	p := &Pipeline{
		cfg:  cfg,
		recs: make(chan *Record, cfg.Capacity),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	batches := make(chan batch, 2)
	group.Go(func() error {
		defer close(batches)
		defer be.Close()
		return p.produce(ctx, be, batches)
	})
	group.Go(func() error {
		return p.decode(batches)
	})
	go func() {
		p.err = group.Wait()
		close(p.recs)
		close(p.done)
	}()

	return p, nil
}

// Next returns the next record, blocking until one is available or the
// pipeline is exhausted. After the stages finish and buffered records
// drain, Next reports the terminal error, or io.EOF on clean completion;
// either repeats on every subsequent call.
func (p *Pipeline) Next() (*Record, error) {
	rec, ok := <-p.recs
	if !ok {
		if p.err != nil {
			return nil, p.err
		}
		return nil, io.EOF
	}
	return rec, nil
}

// TryNext is Next without blocking: ErrWouldBlock means nothing is queued
// right now.
func (p *Pipeline) TryNext() (*Record, error) {
	select {
	case rec, ok := <-p.recs:
		if !ok {
			if p.err != nil {
				return nil, p.err
			}
			return nil, io.EOF
		}
		return rec, nil
	default:
		return nil, ErrWouldBlock
	}
}

// All yields records until exhaustion or the first error.
func (p *Pipeline) All() iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		for {
			rec, err := p.Next()
			if err == io.EOF {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// Close stops both stages, unblocking a producer suspended on a full
// channel, and joins them before returning. Buffered records are discarded.
// Safe to call more than once.
func (p *Pipeline) Close() error {
	p.once.Do(func() {
		close(p.stop)
		// Drain so a decode stage mid-send between the stop signal and a
		// full channel always gets free slots.
		for range p.recs {
		}
	})
	<-p.done
	return nil
}

// produce reads fixed-size chunks, prepends the leftover carried from the
// previous chunk, scans, and hands every complete extent span to the
// decode stage. The unterminated tail becomes the next carry. A carry left
// at end of input is a truncated final record.
func (p *Pipeline) produce(ctx context.Context, be backend, out chan<- batch) error {
	var carry []byte
	chunk := make([]byte, p.cfg.ChunkSize)

	for {
		select {
		case <-p.stop:
			return nil
		default:
		}

		n, err := be.readChunk(chunk)
		if n > 0 {
			buf := append(carry, chunk[:n]...)
			if extents, scanErr := Scan(buf); scanErr == nil {
				select {
				case out <- batch{buf: buf, extents: extents}:
				case <-ctx.Done(): // decode stage failed
					return nil
				case <-p.stop:
					return nil
				}
				last := extents[len(extents)-1]
				carry = slices.Clone(buf[last.Offset+last.Length:])
			} else {
				// No terminator yet; keep accumulating.
				carry = buf
			}
		}
		switch err {
		case nil:
		case io.EOF:
			if len(carry) > 0 {
				return fmt.Errorf("%w: %d unterminated trailing bytes at end of input", ErrTruncated, len(carry))
			}
			return nil
		default:
			return err
		}
	}
}

// decode pulls scanned batches, decodes them in hard-ceiling sized
// sub-batches on the worker pool, and pushes records in order. A full
// record channel suspends this stage, which is the backpressure bound.
// Deliberately insensitive to the producer's failure: batches scanned
// before the producer died still drain to the caller, so a truncation
// error surfaces only after every complete record was delivered.
func (p *Pipeline) decode(in <-chan batch) error {
	for b := range in {
		extents := b.extents
		for len(extents) > 0 {
			n := batchCut(extents, maxBatchRecords)
			recs, err := DecodeParallel(b.buf, extents[:n], p.cfg.Workers)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				select {
				case p.recs <- rec:
				case <-p.stop:
					return nil
				}
			}
			extents = extents[n:]
		}
	}
	return nil
}
