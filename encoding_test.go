package rdsearch

import (
	"testing"
	"unicode/utf8"
)

func TestDecodeLineUTF8PassThrough(t *testing.T) {
	line := "\"1337\",\"Adobé Systems\"\r\n"
	if got := DecodeLine([]byte(line)); got != line {
		t.Fatalf("expected valid utf-8 to pass through, got %q", got)
	}
}

func TestDecodeLineLatin1(t *testing.T) {
	// "café" with a latin-1 encoded é.
	raw := []byte{'c', 'a', 'f', 0xe9, ',', 'x', '\n'}
	got := DecodeLine(raw)
	if !utf8.ValidString(got) {
		t.Fatalf("decoded line is not valid utf-8: %q", got)
	}
	if got == string(raw) {
		t.Fatalf("latin-1 bytes were not decoded: %q", got)
	}
}

func TestDecodeLineNeverFails(t *testing.T) {
	tests := [][]byte{
		nil,
		{},
		{0xff, 0xfe, 0xfd},
		{0x00, 0x80, '\n'},
	}
	for _, raw := range tests {
		got := DecodeLine(raw)
		if !utf8.ValidString(got) {
			t.Errorf("DecodeLine(%v) produced invalid utf-8 %q", raw, got)
		}
	}
}
