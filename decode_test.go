package marc

import (
	"errors"
	"reflect"
	"testing"
)

func TestDecodeBatchOrder(t *testing.T) {
	buf := bibFile(t, 25)
	extents, err := Scan(buf)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	recs, err := DecodeBatch(buf, extents)
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	if len(recs) != 25 {
		t.Fatalf("got %d records, want 25", len(recs))
	}
	for i, rec := range recs {
		want := controlNumber(t, buildRec(t, i))
		if got := controlNumber(t, rec); got != want {
			t.Errorf("record %d: 001 = %q, want %q", i, got, want)
		}
	}
}

// buildRec decodes a freshly encoded record n, for expected values.
func buildRec(t *testing.T, n int) *Record {
	t.Helper()
	rec, err := decodeRecord(bibRecord(t, n))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return rec
}

// Parallel decoding must produce byte-identical structured output in the
// same order as sequential decoding, for any worker count.
func TestDecodeParallelMatchesSequential(t *testing.T) {
	buf := bibFile(t, 501)
	extents, err := Scan(buf)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	sequential, err := DecodeBatch(buf, extents)
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}

	for _, workers := range []int{1, 2, 3, 8, 64} {
		parallel, err := DecodeParallel(buf, extents, workers)
		if err != nil {
			t.Fatalf("DecodeParallel(workers=%d): %v", workers, err)
		}
		if !reflect.DeepEqual(parallel, sequential) {
			t.Errorf("workers=%d: parallel output differs from sequential", workers)
		}
	}
}

func TestDecodeParallelFailFast(t *testing.T) {
	buf := bibFile(t, 100)
	extents, err := Scan(buf)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	// Corrupt the base address of record 60.
	bad := extents[60]
	copy(buf[bad.Offset+12:bad.Offset+17], "xxxxx")

	recs, err := DecodeParallel(buf, extents, 4)
	if recs != nil {
		t.Error("failed batch returned partial results")
	}
	if !errors.Is(err, ErrBatchDecode) {
		t.Errorf("err = %v, want ErrBatchDecode", err)
	}
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("err = %v, want wrapped ErrMalformed", err)
	}
}

func TestDecodeParallelLimit(t *testing.T) {
	buf := bibFile(t, 50)
	extents, err := Scan(buf)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	recs, err := DecodeParallelLimit(buf, extents, 4, 10)
	if err != nil {
		t.Fatalf("DecodeParallelLimit: %v", err)
	}
	if len(recs) != 10 {
		t.Errorf("got %d records, want 10", len(recs))
	}
}

func TestDecodeBatchExtentBounds(t *testing.T) {
	buf := bibFile(t, 1)
	_, err := DecodeBatch(buf, []Extent{{Offset: 0, Length: len(buf) + 5}})
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed for out-of-range extent", err)
	}
}

func TestBatchCutRecordCeiling(t *testing.T) {
	extents := make([]Extent, 500)
	for i := range extents {
		extents[i] = Extent{Offset: i * 100, Length: 100} // well under the byte ceiling
	}

	if n := batchCut(extents, 1000); n != maxBatchRecords {
		t.Errorf("batchCut(limit=1000) = %d, want hard ceiling %d", n, maxBatchRecords)
	}
	if n := batchCut(extents, 50); n != 50 {
		t.Errorf("batchCut(limit=50) = %d, want 50", n)
	}
	if n := batchCut(extents, -1); n != maxBatchRecords {
		t.Errorf("batchCut(limit=-1) = %d, want hard ceiling %d", n, maxBatchRecords)
	}
}

func TestBatchCutByteCeiling(t *testing.T) {
	// 100 KiB records: the byte ceiling admits three before the fourth
	// would cross 300 KiB.
	extents := make([]Extent, 10)
	for i := range extents {
		extents[i] = Extent{Offset: i * 100 * 1024, Length: 100 * 1024}
	}
	if n := batchCut(extents, 1000); n != 3 {
		t.Errorf("batchCut = %d, want 3", n)
	}
}

func TestBatchCutOversizedFirstRecord(t *testing.T) {
	extents := []Extent{{0, maxBatchBytes * 2}, {maxBatchBytes * 2, 100}}
	if n := batchCut(extents, 1000); n != 1 {
		t.Errorf("batchCut = %d, want 1 (oversized record must still be served)", n)
	}
}
