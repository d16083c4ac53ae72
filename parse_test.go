package rdsearch

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func mustNext(t *testing.T, rr *RecordReader) []string {
	t.Helper()
	row, err := rr.Next()
	if err != nil {
		t.Fatalf("reading record: %v", err)
	}
	return row
}

func TestRecordReader(t *testing.T) {
	in := "\"1337\",\"Acme Corp\"\n\"1338\",\"Other, Inc.\"\n"
	rr := NewRecordReader(strings.NewReader(in), "mfg", mfgArity)

	row := mustNext(t, rr)
	if row[0] != "1337" || row[1] != "Acme Corp" {
		t.Fatalf("unexpected row: %v", row)
	}
	row = mustNext(t, rr)
	if row[1] != "Other, Inc." {
		t.Fatalf("quoted delimiter mishandled: %v", row)
	}
	if _, err := rr.Next(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestRecordReaderEmbeddedNewline(t *testing.T) {
	in := "\"1\",\"two\nlines\"\n"
	rr := NewRecordReader(strings.NewReader(in), "mfg", mfgArity)
	row := mustNext(t, rr)
	if row[1] != "two\nlines" {
		t.Fatalf("quoted newline mishandled: %v", row)
	}
}

func TestRecordReaderWrongArity(t *testing.T) {
	in := "\"1\",\"a\"\n\"2\",\"b\",\"extra\"\n"
	rr := NewRecordReader(strings.NewReader(in), "NSRLMfg.txt", mfgArity)
	mustNext(t, rr)
	_, err := rr.Next()
	var mre *MalformedRecordError
	if !errors.As(err, &mre) {
		t.Fatalf("expected MalformedRecordError, got %v", err)
	}
	if mre.Source != "NSRLMfg.txt" || mre.Record != 2 {
		t.Fatalf("error misattributed: %+v", mre)
	}
}

func TestFileFromRow(t *testing.T) {
	row := []string{
		"00000142988AFA836117B1B572FAE4713F200567",
		"9B3702B0E788C6D27996D8845B496F8C",
		"05436505",
		"ÃÆhll.dll",
		"42496",
		"9342",
		"362",
		"",
	}
	f, err := fileFromRow(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Size != 42496 || f.ProdCode != "9342" || f.OSCode != "362" {
		t.Fatalf("unexpected record: %+v", f)
	}

	row[4] = "not-a-number"
	if _, err := fileFromRow(row); err == nil {
		t.Fatal("expected error for unparseable size")
	}
	row[4] = "-5"
	if _, err := fileFromRow(row); err == nil {
		t.Fatal("expected error for negative size")
	}
}
