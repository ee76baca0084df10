// Package csvfeed turns header-driven delimited text into canonical records.
//
// Column order in the source is irrelevant: every row is read as a map from
// header name to value, checked for required fields, and handed to a
// transform that may reject it. Rejected rows are counted, never reported.
package csvfeed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Row is one data line keyed by header name. Absent columns read as "".
type Row map[string]string

// Get returns the value for a header, or "" when the column is missing.
func (r Row) Get(field string) string {
	return r[field]
}

// Clone returns a shallow copy that can be modified without touching r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Options configures Parse.
type Options[T any] struct {
	// RequiredFields must be non-empty in a row, otherwise the row is skipped.
	RequiredFields []string
	// Transform converts a row into a record; returning false drops the row.
	// The index is the position of the row among the parsed data rows.
	Transform func(row Row, index int) (T, bool)
}

// Stats reports what happened to the rows of one parse.
type Stats struct {
	Rows          int `json:"rows"`
	Kept          int `json:"kept"`
	MissingFields int `json:"missing_fields"`
	Rejected      int `json:"rejected"`
}

// Skipped returns the number of rows that did not survive parsing.
func (s Stats) Skipped() int {
	return s.MissingFields + s.Rejected
}

// ParseError is a structural failure that prevents rows from being extracted.
type ParseError struct {
	Line int
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("csv parse error at line %d: %s", e.Line, e.Msg)
	}
	return "csv parse error: " + e.Msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

const utf8BOM = "\ufeff"

// Parse reads the header row and every data row from r. Blank lines are
// ignored. Any reader error aborts the whole parse with a *ParseError carrying
// the first diagnostic; a row is never partially returned.
func Parse[T any](r io.Reader, opts Options[T]) ([]T, Stats, error) {
	var stats Stats

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // short rows read missing columns as ""

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []T{}, stats, nil
	}
	if err != nil {
		return nil, stats, toParseError(err)
	}
	for i, h := range header {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		header[i] = h
	}

	results := make([]T, 0, 64)
	index := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, toParseError(err)
		}
		if isBlank(rec) {
			continue
		}

		row := make(Row, len(header))
		for i, h := range header {
			if h == "" {
				continue
			}
			if i < len(rec) {
				row[h] = rec[i]
			} else {
				row[h] = ""
			}
		}

		i := index
		index++
		stats.Rows++

		if missing(row, opts.RequiredFields) {
			stats.MissingFields++
			continue
		}

		if opts.Transform == nil {
			if v, ok := any(row).(T); ok {
				results = append(results, v)
				stats.Kept++
			} else {
				stats.Rejected++
			}
			continue
		}

		v, ok := opts.Transform(row, i)
		if !ok {
			stats.Rejected++
			continue
		}
		results = append(results, v)
		stats.Kept++
	}

	return results, stats, nil
}

func missing(row Row, required []string) bool {
	for _, f := range required {
		if row[f] == "" {
			return true
		}
	}
	return false
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func toParseError(err error) *ParseError {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &ParseError{Line: pe.Line, Msg: pe.Err.Error(), Err: err}
	}
	return &ParseError{Msg: err.Error(), Err: err}
}
