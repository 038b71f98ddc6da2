package marc

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// Fixture builders. Records are synthesised from Field values so decode
// output can be compared against the input with reflect.DeepEqual.

func control(tag, data string) Field {
	return Field{Tag: tag, Data: data}
}

func datafield(tag string, ind1, ind2 byte, subs ...Subfield) Field {
	return Field{Tag: tag, Ind1: ind1, Ind2: ind2, Subfields: subs}
}

func sub(code byte, value string) Subfield {
	return Subfield{Code: code, Value: value}
}

// encodeField renders one field's content bytes, including the field
// terminator.
func encodeField(f Field) []byte {
	var content []byte
	if f.Control() {
		content = append(content, f.Data...)
	} else {
		content = append(content, f.Ind1, f.Ind2)
		for _, sf := range f.Subfields {
			content = append(content, SubfieldDelimiter, sf.Code)
			content = append(content, sf.Value...)
		}
	}
	return append(content, FieldTerminator)
}

// encodeRecord builds a complete transmission record: leader, directory,
// field data, record terminator.
func encodeRecord(tb testing.TB, fields ...Field) []byte {
	tb.Helper()

	var dir, data bytes.Buffer
	for _, f := range fields {
		content := encodeField(f)
		fmt.Fprintf(&dir, "%s%04d%05d", f.Tag, len(content), data.Len())
		data.Write(content)
	}

	base := LeaderLen + dir.Len() + 1
	total := base + data.Len() + 1

	out := fmt.Appendf(nil, "%05dnam a22%05d a 4500", total, base)
	out = append(out, dir.Bytes()...)
	out = append(out, FieldTerminator)
	out = append(out, data.Bytes()...)
	out = append(out, RecordTerminator)
	return out
}

// bibRecord is a small realistic record whose 001 field carries n, so
// ordering tests can verify delivery follows source order.
func bibRecord(tb testing.TB, n int) []byte {
	tb.Helper()
	return encodeRecord(tb,
		control("001", fmt.Sprintf("rec%07d", n)),
		control("008", "210101s2021    xx            000 0 eng d"),
		datafield("245", '1', '0', sub('a', fmt.Sprintf("Catalogue entry %d", n))),
	)
}

// bibFile concatenates count bibRecords.
func bibFile(tb testing.TB, count int) []byte {
	tb.Helper()
	var buf bytes.Buffer
	for i := 0; i < count; i++ {
		buf.Write(bibRecord(tb, i))
	}
	return buf.Bytes()
}

// writeTemp writes data to a file in a test temp dir and returns its path.
func writeTemp(tb testing.TB, data []byte) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "records.mrc")
	if err := os.WriteFile(path, data, 0644); err != nil {
		tb.Fatalf("write test file: %v", err)
	}
	return path
}

// controlNumber returns the 001 field value, for order assertions.
func controlNumber(tb testing.TB, rec *Record) string {
	tb.Helper()
	for i := range rec.Fields {
		if rec.Fields[i].Tag == "001" {
			return rec.Fields[i].Data
		}
	}
	tb.Fatal("record has no 001 field")
	return ""
}
