// Batch decoding, sequential and parallel.
//
// Extents decode independently (no cross-record state), so a batch
// distributes across a fixed worker pool. Output order always matches
// extent order: each worker writes results by index, so reassembly is free
// and ordering is a correctness guarantee, not a best effort. A batch fails
// as a whole on the first record that fails structural decoding;
// partial-success with silently dropped records is rejected by design.
package marc

import (
	"context"
	"fmt"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

// DecodeBatch sequentially decodes every extent of buf, in order. Each
// record gets an owned copy of its bytes, so buf may be reused afterwards.
func DecodeBatch(buf []byte, extents []Extent) ([]*Record, error) {
	recs := make([]*Record, len(extents))
	for i, ext := range extents {
		rec, err := decodeExtent(buf, ext)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrBatchDecode, i, err)
		}
		recs[i] = rec
	}
	return recs, nil
}

// DecodeParallel decodes every extent of buf across a pool of workers,
// preserving extent order in the output. workers <= 0 means one worker per
// available CPU. The first decode failure cancels the remaining work and
// fails the whole batch.
func DecodeParallel(buf []byte, extents []Extent, workers int) ([]*Record, error) {
	return DecodeParallelLimit(buf, extents, workers, -1)
}

// DecodeParallelLimit is DecodeParallel capped at max extents, for batching
// finer than a full scan. max < 0 means all extents.
func DecodeParallelLimit(buf []byte, extents []Extent, workers, max int) ([]*Record, error) {
	if max >= 0 && max < len(extents) {
		extents = extents[:max]
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(extents) {
		workers = len(extents)
	}
	if workers <= 1 {
		return DecodeBatch(buf, extents)
	}

	recs := make([]*Record, len(extents))
	group, ctx := errgroup.WithContext(context.Background())

	// Contiguous shards, one per worker, so neighbouring records stay on
	// the same worker's cache lines.
	per := (len(extents) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * per
		hi := min(lo+per, len(extents))
		if lo >= hi {
			break
		}
		group.Go(func() error {
			for i := lo; i < hi; i++ {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				rec, err := decodeExtent(buf, extents[i])
				if err != nil {
					return fmt.Errorf("%w: record %d: %w", ErrBatchDecode, i, err)
				}
				recs[i] = rec
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return recs, nil
}

// batchCut returns how many leading extents fit in one batch under the
// hard record and byte ceilings. limit <= 0 or above the record ceiling
// falls back to the ceiling. The first extent always fits, even when it
// alone exceeds the byte ceiling; otherwise an oversized record could
// never be served.
func batchCut(extents []Extent, limit int) int {
	if limit <= 0 || limit > maxBatchRecords {
		limit = maxBatchRecords
	}
	n, total := 0, 0
	for n < len(extents) && n < limit {
		if n > 0 && total+extents[n].Length > maxBatchBytes {
			break
		}
		total += extents[n].Length
		n++
	}
	return n
}

// decodeExtent bounds-checks one extent and decodes an owned copy of its
// bytes.
func decodeExtent(buf []byte, ext Extent) (*Record, error) {
	if ext.Offset < 0 || ext.Length <= 0 || ext.Offset+ext.Length > len(buf) {
		return nil, fmt.Errorf("%w: extent (%d,%d) outside %d-byte buffer", ErrMalformed, ext.Offset, ext.Length, len(buf))
	}
	return decodeRecord(slices.Clone(buf[ext.Offset : ext.Offset+ext.Length]))
}
