package datfile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dealerops/pricesync/internal/types"
)

// maxLineBytes bounds a single line; price file lines are a few hundred bytes.
const maxLineBytes = 1 << 20

// =============================================================================
// STREAMING READER
// =============================================================================

// Reader streams price records from a DAT file one line at a time.
//
// USAGE:
//
//	r, err := datfile.Open(path, datfile.Current)
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//
//	for r.Next() {
//	    rec, err := r.Record()
//	    if err != nil {
//	        // per-record failure, log and continue
//	        continue
//	    }
//	    // use rec...
//	}
//
//	if err := r.Err(); err != nil {
//	    return err
//	}
type Reader struct {
	closer    io.Closer
	scanner   *bufio.Scanner
	layout    Layout
	effective time.Time
	unit      byte
	lineNo    int
	record    types.PriceRecord
	recordErr error
	err       error
}

// Open opens path and reads its header line.
func Open(path string, layout Layout) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open price file: %w", err)
	}
	r, err := NewReader(f, layout)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReader wraps src and consumes the header line. An empty source is valid
// and yields no records.
func NewReader(src io.Reader, layout Layout) (*Reader, error) {
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)

	r := &Reader{scanner: sc, layout: layout, unit: DefaultUnit}
	if sc.Scan() {
		r.lineNo = 1
		r.effective = ParseHeader(trimEOL(sc.Bytes()), layout)
	} else if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}
	return r, nil
}

// Next advances to the next non-blank data line.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	for r.scanner.Scan() {
		r.lineNo++
		line := trimEOL(r.scanner.Bytes())
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		r.record, r.unit, r.recordErr = ParseLine(line, r.lineNo, r.layout, r.effective, r.unit)
		return true
	}
	if err := r.scanner.Err(); err != nil {
		r.err = fmt.Errorf("error reading line %d: %w", r.lineNo+1, err)
	}
	return false
}

// Record returns the current record, or the *FieldError that kept the line
// from parsing.
func (r *Reader) Record() (types.PriceRecord, error) {
	return r.record, r.recordErr
}

// EffectiveDate is the header date, zero when the header carried none.
func (r *Reader) EffectiveDate() time.Time {
	return r.effective
}

// LineNumber returns the current 1-indexed line number.
func (r *Reader) LineNumber() int {
	return r.lineNo
}

// Err returns the first I/O error encountered.
func (r *Reader) Err() error {
	return r.err
}

// Close closes the underlying file when the reader owns one.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func trimEOL(b []byte) []byte {
	return bytes.TrimRight(b, "\r\n")
}
