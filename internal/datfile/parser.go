// =============================================================================
// Price Sync - Positional Record Parser
// =============================================================================
//
// Lines are parsed as raw bytes so that offsets stay byte offsets regardless
// of encoding. Only text fields are decoded from Latin-1.
//
// NUMERIC FIELDS:
//   Right-justified, zero-filled. Leading zeros are stripped, an empty or
//   all-zero field is 0 and a bare leading decimal point gains a 0 prefix.
//
// DATES:
//   The line's own start date wins. When it is absent or unparsable the
//   header effective date is used. When both fail the record has no date.
//
// =============================================================================

package datfile

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/dealerops/pricesync/internal/types"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
)

// DefaultUnit is assumed until a line supplies a quantity-unit character.
const DefaultUnit byte = 'E'

// =============================================================================
// FIELD ERRORS
// =============================================================================

// FieldError is a per-record parse failure. The record is skipped and
// processing continues with the next line.
type FieldError struct {
	// Line is the 1-indexed line number in the source file.
	Line int

	// Field names the layout field that failed.
	Field string

	// Value is the raw field content.
	Value string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return fmt.Sprintf("line %d, field '%s': %s (value: '%s')", e.Line, e.Field, e.Message, e.Value)
}

// =============================================================================
// LINE PARSING
// =============================================================================

// ParseLine decodes one data line. unit is the last-known quantity unit and is
// used when the line is too short or the column is blank; the unit actually
// applied is returned so callers can carry it forward.
func ParseLine(line []byte, lineNo int, layout Layout, effective time.Time, unit byte) (types.PriceRecord, byte, error) {
	rec := types.PriceRecord{Line: lineNo}

	rec.ProductCode = decodeField(line, layout.Code)
	if rec.ProductCode == "" {
		return rec, unit, &FieldError{Line: lineNo, Field: "code", Message: "product code is empty"}
	}
	rec.ProductName = strings.TrimLeft(decodeField(line, layout.Description), "-")
	rec.ProductName = strings.TrimSpace(rec.ProductName)

	rawPrice := field(line, layout.Price)
	price, err := ParseAmount(rawPrice, layout.ImpliedDecimals)
	if err != nil {
		return rec, unit, &FieldError{Line: lineNo, Field: "price", Value: rawPrice, Message: err.Error()}
	}
	rec.Price = price

	rawList := field(line, layout.ListPrice)
	listPrice, err := ParseAmount(rawList, layout.ImpliedDecimals)
	if err != nil {
		return rec, unit, &FieldError{Line: lineNo, Field: "list_price", Value: rawList, Message: err.Error()}
	}
	rec.ListPrice = listPrice

	if layout.UnitPos >= 0 && layout.UnitPos < len(line) && line[layout.UnitPos] != ' ' {
		unit = line[layout.UnitPos]
	}
	rec.MinQty = MinQty(unit)

	rec.StartDate = ResolveDate(field(line, layout.StartDate), effective)

	return rec, unit, nil
}

// ParseHeader reads the effective date from the header line. A missing or
// malformed date yields the zero time.
func ParseHeader(line []byte, layout Layout) time.Time {
	d, _ := parseDate(field(line, layout.EffectiveDate))
	return d
}

// =============================================================================
// FIELD HELPERS
// =============================================================================

// field returns the trimmed content of span, clamped to the line length.
func field(line []byte, s Span) string {
	if s.Start >= len(line) || s.End <= s.Start {
		return ""
	}
	end := s.End
	if end > len(line) {
		end = len(line)
	}
	return string(bytes.Trim(line[s.Start:end], "\x00 \t"))
}

// decodeField is field for text columns, converting Latin-1 to UTF-8.
func decodeField(line []byte, s Span) string {
	raw := field(line, s)
	if raw == "" {
		return ""
	}
	out, err := charmap.ISO8859_1.NewDecoder().String(raw)
	if err != nil {
		return raw
	}
	return out
}

// ParseAmount normalizes a zero-filled numeric field. Fields without a
// decimal point are shifted by implied decimal places.
func ParseAmount(raw string, implied int32) (decimal.Decimal, error) {
	s := strings.TrimLeft(strings.TrimSpace(raw), "0")
	if s == "" {
		return decimal.Zero, nil
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number")
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount")
	}
	if !strings.Contains(s, ".") && implied > 0 {
		d = d.Shift(-implied)
	}
	return d, nil
}

// MinQty maps a quantity-unit character to a minimum order quantity:
// E is each (1), C is hundred (100), a digit is its own value and anything
// else is 1. Zero maps to 1 so the quantity stays positive.
func MinQty(unit byte) int {
	switch {
	case unit == 'E':
		return 1
	case unit == 'C':
		return 100
	case unit >= '1' && unit <= '9':
		return int(unit - '0')
	}
	return 1
}

// ResolveDate applies the start-date fallback rule.
func ResolveDate(raw string, effective time.Time) time.Time {
	if d, ok := parseDate(raw); ok {
		return d
	}
	return effective
}

func parseDate(raw string) (time.Time, bool) {
	if len(raw) != 8 {
		return time.Time{}, false
	}
	d, err := time.ParseInLocation("20060102", raw, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
