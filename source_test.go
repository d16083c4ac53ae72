package rdsearch

import (
	"errors"
	"io"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestMatchSourceFiles(t *testing.T) {
	tests := []struct {
		name       string
		wanted     []string
		actual     []string
		expMatch   map[string]string
		expMissing []string
	}{
		{
			name:     "exact",
			wanted:   DirSourceFiles,
			actual:   []string{"NSRLMfg.txt", "NSRLOs.txt", "NSRLProd.txt", "NSRLFile.txt.zip"},
			expMatch: map[string]string{"NSRLMfg.txt": "NSRLMfg.txt", "NSRLFile.txt.zip": "NSRLFile.txt.zip"},
		},
		{
			name:     "case insensitive",
			wanted:   DirSourceFiles,
			actual:   []string{"nsrlmfg.TXT", "NSRLOS.txt", "nsrlprod.txt", "NSRLFILE.TXT.ZIP"},
			expMatch: map[string]string{"NSRLMfg.txt": "nsrlmfg.TXT", "NSRLFile.txt.zip": "NSRLFILE.TXT.ZIP"},
		},
		{
			name:     "order independent with extras",
			wanted:   ISOSourceFiles,
			actual:   []string{"README.TXT", "NSRLFILE.ZIP", "NSRLPROD.TXT", "NSRLOS.TXT", "NSRLMFG.TXT"},
			expMatch: map[string]string{"NSRLMFG.TXT": "NSRLMFG.TXT", "NSRLFILE.ZIP": "NSRLFILE.ZIP"},
		},
		{
			name:       "one missing",
			wanted:     DirSourceFiles,
			actual:     []string{"NSRLMfg.txt", "NSRLOs.txt", "NSRLProd.txt"},
			expMissing: []string{"NSRLFile.txt.zip"},
		},
		{
			name:       "all missing",
			wanted:     DirSourceFiles,
			actual:     []string{"unrelated.dat"},
			expMissing: DirSourceFiles,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			matches, err := MatchSourceFiles(test.wanted, test.actual)
			if len(test.expMissing) > 0 {
				var msf *MissingSourceFileError
				if !errors.As(err, &msf) {
					t.Fatalf("expected MissingSourceFileError, got %v", err)
				}
				if len(msf.Missing) != len(test.expMissing) {
					t.Fatalf("expected missing %v, got %v", test.expMissing, msf.Missing)
				}
				for i, m := range test.expMissing {
					if msf.Missing[i] != m {
						t.Fatalf("expected missing %v, got %v", test.expMissing, msf.Missing)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(matches) != len(test.wanted) {
				t.Fatalf("expected %d matches, got %v", len(test.wanted), matches)
			}
			for w, a := range test.expMatch {
				if matches[w] != a {
					t.Errorf("expected %q to match %q, got %q", w, a, matches[w])
				}
			}
		})
	}
}

func TestLineDecoder(t *testing.T) {
	in := "header line\n\"a\",\"b\"\n\"c\",\"d\"\n"
	out, err := io.ReadAll(NewLineDecoder(strings.NewReader(in), true))
	if err != nil {
		t.Fatalf("reading decoded stream: %v", err)
	}
	exp := "\"a\",\"b\"\n\"c\",\"d\"\n"
	if string(out) != exp {
		t.Fatalf("expected %q, got %q", exp, string(out))
	}
}

func TestLineDecoderNoSkip(t *testing.T) {
	in := "\"a\",\"b\"\n"
	out, err := io.ReadAll(NewLineDecoder(strings.NewReader(in), false))
	if err != nil {
		t.Fatalf("reading decoded stream: %v", err)
	}
	if string(out) != in {
		t.Fatalf("expected %q, got %q", in, string(out))
	}
}

func TestLineDecoderMixedEncodings(t *testing.T) {
	// One clean line followed by one latin-1 line; each is recovered
	// independently.
	in := append([]byte("\"1\",\"ok\"\n\"2\",\"caf"), 0xe9, '"', '\n')
	out, err := io.ReadAll(NewLineDecoder(strings.NewReader(string(in)), false))
	if err != nil {
		t.Fatalf("reading decoded stream: %v", err)
	}
	if !strings.HasPrefix(string(out), "\"1\",\"ok\"\n") {
		t.Fatalf("clean line was altered: %q", string(out))
	}
	if !utf8.Valid(out) {
		t.Fatalf("invalid utf-8 leaked through: %q", string(out))
	}
}

func TestLineDecoderNoTrailingNewline(t *testing.T) {
	in := "\"a\",\"b\""
	out, err := io.ReadAll(NewLineDecoder(strings.NewReader(in), false))
	if err != nil {
		t.Fatalf("reading decoded stream: %v", err)
	}
	if string(out) != in {
		t.Fatalf("expected %q, got %q", in, string(out))
	}
}
