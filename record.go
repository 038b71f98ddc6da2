// Structural record model and the per-record decoder.
//
// A transmission record is a 24-byte leader, a directory of 12-byte entries
// closed by a field terminator, and the field data itself, closed by a
// record terminator. The directory declares each field's tag, length, and
// start offset relative to the base address stored in leader bytes 12-16.
// Decoding here is purely structural: fields are sliced exactly where the
// directory says they are. Cataloging semantics (leader status codes,
// indicator meanings, title/author access) are deliberately out of scope.
package marc

import (
	"bytes"
	"fmt"
)

// Format bytes fixed by ISO 2709. RecordTerminator must never appear inside
// legitimate field content; boundary detection depends on it.
const (
	RecordTerminator  = 0x1d
	FieldTerminator   = 0x1e
	SubfieldDelimiter = 0x1f
)

// LeaderLen is the fixed leader size in bytes.
const LeaderLen = 24

// dirEntryLen is the size of one directory entry: 3-byte tag, 4-byte field
// length, 5-byte start offset.
const dirEntryLen = 12

// minRecordLen is the smallest structurally possible record: a leader, the
// directory terminator, and the record terminator.
const minRecordLen = LeaderLen + 2

// Leader is the raw 24-byte record leader. Positional semantics beyond the
// base address are left to the caller.
type Leader [LeaderLen]byte

func (l Leader) String() string {
	return string(l[:])
}

// Subfield is one delimiter-prefixed code/value pair inside a data field.
type Subfield struct {
	Code  byte
	Value string
}

// Field is one variable field. Control fields (tags 00X) carry their
// content in Data and have no indicators or subfields; data fields carry
// two indicator bytes and one or more subfields.
type Field struct {
	Tag       string
	Ind1      byte
	Ind2      byte
	Data      string
	Subfields []Subfield
}

// Control reports whether the field is a control field (tag 00X).
func (f *Field) Control() bool {
	return len(f.Tag) == 3 && f.Tag[0] == '0' && f.Tag[1] == '0'
}

// Record is one decoded record. Fields appear in directory order. The raw
// transmission bytes are retained for fingerprinting.
type Record struct {
	Leader Leader
	Fields []Field

	raw []byte
}

// Raw returns the record's original transmission bytes, including the
// record terminator. The returned slice must not be modified.
func (r *Record) Raw() []byte {
	return r.raw
}

// decodeRecord structurally decodes one terminated record. The input slice
// is retained by the returned Record, so callers reusing buffers must pass
// an owned copy. Framing impossibilities (short leader, non-numeric base
// address, ragged directory) are ErrMalformed; a directory entry that
// declares bytes the record does not have is ErrTruncated.
func decodeRecord(raw []byte) (*Record, error) {
	if len(raw) < minRecordLen {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformed, len(raw), minRecordLen)
	}
	if raw[len(raw)-1] != RecordTerminator {
		return nil, fmt.Errorf("%w: missing record terminator", ErrMalformed)
	}

	base, ok := atoiFixed(raw[12:17])
	if !ok {
		return nil, fmt.Errorf("%w: non-numeric base address %q", ErrMalformed, raw[12:17])
	}
	if base < LeaderLen+1 || base > len(raw) {
		return nil, fmt.Errorf("%w: base address %d outside record of %d bytes", ErrMalformed, base, len(raw))
	}
	if raw[base-1] != FieldTerminator {
		return nil, fmt.Errorf("%w: directory not terminated", ErrMalformed)
	}

	dir := raw[LeaderLen : base-1]
	if len(dir)%dirEntryLen != 0 {
		return nil, fmt.Errorf("%w: directory length %d not a multiple of %d", ErrMalformed, len(dir), dirEntryLen)
	}

	rec := &Record{
		Leader: Leader(raw[:LeaderLen]),
		Fields: make([]Field, 0, len(dir)/dirEntryLen),
		raw:    raw,
	}

	for i := 0; i < len(dir); i += dirEntryLen {
		entry := dir[i : i+dirEntryLen]
		tag := string(entry[:3])
		flen, ok1 := atoiFixed(entry[3:7])
		start, ok2 := atoiFixed(entry[7:12])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: non-numeric directory entry for tag %s", ErrMalformed, tag)
		}

		// The declared span must fit inside the record, leaving room for
		// the record terminator.
		fstart := base + start
		fend := fstart + flen
		if fend > len(raw)-1 {
			return nil, fmt.Errorf("%w: field %s declares bytes %d-%d, record has %d", ErrTruncated, tag, fstart, fend, len(raw))
		}
		if flen < 1 {
			return nil, fmt.Errorf("%w: field %s declares zero length", ErrMalformed, tag)
		}

		data := raw[fstart:fend]
		if data[len(data)-1] != FieldTerminator {
			return nil, fmt.Errorf("%w: field %s not terminated", ErrTruncated, tag)
		}
		data = data[:len(data)-1]

		field, err := decodeField(tag, data)
		if err != nil {
			return nil, err
		}
		rec.Fields = append(rec.Fields, field)
	}

	return rec, nil
}

// decodeField splits one field's content. Control fields are taken verbatim;
// data fields are split on the subfield delimiter after the two indicators.
func decodeField(tag string, data []byte) (Field, error) {
	f := Field{Tag: tag}

	if f.Control() {
		f.Data = string(data)
		return f, nil
	}

	if len(data) < 2 {
		return f, fmt.Errorf("%w: field %s too short for indicators", ErrTruncated, tag)
	}
	f.Ind1, f.Ind2 = data[0], data[1]

	rest := data[2:]
	for len(rest) > 0 {
		if rest[0] != SubfieldDelimiter {
			return f, fmt.Errorf("%w: field %s has stray bytes before subfield delimiter", ErrMalformed, tag)
		}
		rest = rest[1:]
		if len(rest) == 0 {
			return f, fmt.Errorf("%w: field %s ends inside a subfield", ErrTruncated, tag)
		}
		code := rest[0]
		rest = rest[1:]
		end := bytes.IndexByte(rest, SubfieldDelimiter)
		if end < 0 {
			end = len(rest)
		}
		f.Subfields = append(f.Subfields, Subfield{Code: code, Value: string(rest[:end])})
		rest = rest[end:]
	}

	return f, nil
}

// atoiFixed parses a fixed-width ASCII decimal field. Unlike
// strconv.Atoi it rejects signs and spaces, which the format does not
// permit in length and offset fields.
func atoiFixed(b []byte) (int, bool) {
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
