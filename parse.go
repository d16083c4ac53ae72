package rdsearch

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// Field arities of the four tabular sources. The file table carries a
// trailing "special code" column this system does not use.
const (
	mfgArity  = 2
	osArity   = 4
	prodArity = 7
	fileArity = 8
)

// RecordReader parses decoded lines as delimited records of a fixed arity.
// The format supports quoted fields containing the delimiter or embedded
// newlines. Rows of the wrong arity fail the whole ingest.
type RecordReader struct {
	source string
	cr     *csv.Reader
	record int
}

// NewRecordReader returns a reader over r enforcing the given field count.
// The source name is only used in error reporting.
func NewRecordReader(r io.Reader, source string, arity int) *RecordReader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = arity
	return &RecordReader{source: source, cr: cr}
}

// Next returns the next row, io.EOF at end of stream, or a
// MalformedRecordError for a row that does not parse at the expected arity.
func (r *RecordReader) Next() ([]string, error) {
	row, err := r.cr.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	r.record++
	if err != nil {
		return nil, &MalformedRecordError{Source: r.source, Record: r.record, Err: err}
	}
	return row, nil
}

func manufacturerFromRow(row []string) Manufacturer {
	return Manufacturer{Code: row[0], Name: row[1]}
}

func osFromRow(row []string) OS {
	return OS{Code: row[0], Name: row[1], Version: row[2], MfgCode: row[3]}
}

func productFromRow(row []string) Product {
	return Product{
		Code:            row[0],
		Name:            row[1],
		Version:         row[2],
		OSCode:          row[3],
		MfgCode:         row[4],
		Language:        row[5],
		ApplicationType: row[6],
	}
}

// fileFromRow converts a file-table row. Column order is
// sha1, md5, crc32, filename, size, prod_code, os_code, special (unused).
func fileFromRow(row []string) (ProductFile, error) {
	size, err := strconv.ParseInt(row[4], 10, 64)
	if err != nil {
		return ProductFile{}, errors.Wrapf(err, "parsing size %q", row[4])
	}
	if size < 0 {
		return ProductFile{}, errors.Errorf("negative size %d", size)
	}
	return ProductFile{
		SHA1:     row[0],
		MD5:      row[1],
		CRC32:    row[2],
		Filename: row[3],
		Size:     size,
		ProdCode: row[5],
		OSCode:   row[6],
	}, nil
}
