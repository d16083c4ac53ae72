package rdsearch

import (
	"fmt"
	"strings"
)

// MissingSourceFileError reports every expected source file absent from a
// container in one shot, alongside what was actually present.
type MissingSourceFileError struct {
	Missing []string
	Present []string
}

func (e *MissingSourceFileError) Error() string {
	return fmt.Sprintf("missing source files %s (have %s)",
		strings.Join(e.Missing, ", "), strings.Join(e.Present, ", "))
}

// MalformedRecordError reports a row that could not be parsed, naming the
// source file and one-based record number.
type MalformedRecordError struct {
	Source string
	Record int
	Err    error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%s record %d: %v", e.Source, e.Record, e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// InvalidReferenceDataError reports a product referencing a manufacturer or
// OS code that exists neither in the current run nor in the backend.
type InvalidReferenceDataError struct {
	ProdCode string
	Kind     string // "os" or "mfg"
	Code     string
}

func (e *InvalidReferenceDataError) Error() string {
	return fmt.Sprintf("product %s references unknown %s code %q", e.ProdCode, e.Kind, e.Code)
}

// InvalidDigestError reports a digest string whose length matches no known
// digest type.
type InvalidDigestError struct {
	Digest string
}

func (e *InvalidDigestError) Error() string {
	return fmt.Sprintf("unknown digest type with len %d", len(e.Digest))
}

// InvalidOperationError reports a request the backend refuses in its current
// state, such as creating indices that already exist.
type InvalidOperationError struct {
	Msg string
}

func (e *InvalidOperationError) Error() string { return e.Msg }
