package rdsearch

import (
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/ianaindex"
)

// DecodeLine recovers one line of text as valid UTF-8. Source datasets mix
// encodings record by record, so each line is handled independently: clean
// UTF-8 passes through, anything else goes through charset detection, and
// undetectable bytes degrade to replacement runes rather than failing the
// ingest.
func DecodeLine(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	if best, err := chardet.NewTextDetector().DetectBest(raw); err == nil {
		if enc, err := ianaindex.IANA.Encoding(best.Charset); err == nil && enc != nil {
			if decoded, err := enc.NewDecoder().Bytes(raw); err == nil && utf8.Valid(decoded) {
				return string(decoded)
			}
		}
	}
	return strings.ToValidUTF8(string(raw), string(utf8.RuneError))
}
