package datfile

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// put writes s into line at start, growing the line with spaces as needed.
func put(line []byte, start int, s string) []byte {
	for len(line) < start+len(s) {
		line = append(line, ' ')
	}
	copy(line[start:], s)
	return line
}

// buildLine assembles a data line for the Current layout. A zero unit leaves
// the unit column blank; an empty start leaves the line shorter than the
// start-date column.
func buildLine(code, name, price, list string, unit byte, start string) []byte {
	var line []byte
	line = put(line, Current.Code.Start, code)
	line = put(line, Current.Description.Start, name)
	line = put(line, Current.Price.Start, price)
	line = put(line, Current.ListPrice.Start, list)
	if unit != 0 {
		line = put(line, Current.UnitPos, string(unit))
	}
	if start != "" {
		line = put(line, Current.StartDate.Start, start)
	}
	return line
}

func buildHeader(effective string) []byte {
	return put(nil, Current.EffectiveDate.Start, effective)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", "0"},
		{"0000000000", "0"},
		{"   ", "0"},
		{"00000150", "1.5"},
		{".50", "0.5"},
		{"0000.50", "0.5"},
		{"0012.345", "12.345"},
		{"1", "0.01"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseAmount(tt.raw, 2)
			if err != nil {
				t.Fatalf("ParseAmount(%q) error: %v", tt.raw, err)
			}
			want := decimal.RequireFromString(tt.want)
			if !got.Equal(want) {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.raw, got, want)
			}
		})
	}
}

func TestParseAmountLeadingPointMatchesZeroPrefix(t *testing.T) {
	for _, s := range []string{".5", ".50", ".0001", ".999"} {
		got, err := ParseAmount(s, 2)
		if err != nil {
			t.Fatalf("ParseAmount(%q) error: %v", s, err)
		}
		want := decimal.RequireFromString("0" + s)
		if !got.Equal(want) {
			t.Errorf("ParseAmount(%q) = %s, want %s", s, got, want)
		}
	}
}

func TestParseAmountRejectsGarbage(t *testing.T) {
	for _, s := range []string{"12AB", "-5", "1.2.3"} {
		if _, err := ParseAmount(s, 2); err == nil {
			t.Errorf("ParseAmount(%q) expected error", s)
		}
	}
}

func TestMinQty(t *testing.T) {
	tests := []struct {
		unit byte
		want int
	}{
		{'E', 1},
		{'C', 100},
		{'5', 5},
		{'9', 9},
		{'0', 1},
		{'X', 1},
		{' ', 1},
		{0, 1},
	}
	for _, tt := range tests {
		if got := MinQty(tt.unit); got != tt.want {
			t.Errorf("MinQty(%q) = %d, want %d", tt.unit, got, tt.want)
		}
	}

	// Every byte maps into {1, 100} or a digit value.
	for b := 0; b < 256; b++ {
		q := MinQty(byte(b))
		if q < 1 || (q > 9 && q != 100) {
			t.Fatalf("MinQty(%d) = %d out of range", b, q)
		}
	}
}

func TestParseLine(t *testing.T) {
	effective := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	line := buildLine("AA5122R", "--FILTER ELEMENT", "00000150", "00000299", 'C', "20250315")

	rec, unit, err := ParseLine(line, 2, Current, effective, DefaultUnit)
	if err != nil {
		t.Fatalf("ParseLine error: %v", err)
	}
	if rec.ProductCode != "AA5122R" {
		t.Errorf("ProductCode = %q", rec.ProductCode)
	}
	if rec.ProductName != "FILTER ELEMENT" {
		t.Errorf("ProductName = %q", rec.ProductName)
	}
	if !rec.Price.Equal(decimal.RequireFromString("1.50")) {
		t.Errorf("Price = %s, want 1.50", rec.Price)
	}
	if !rec.ListPrice.Equal(decimal.RequireFromString("2.99")) {
		t.Errorf("ListPrice = %s, want 2.99", rec.ListPrice)
	}
	if rec.MinQty != 100 || unit != 'C' {
		t.Errorf("MinQty = %d unit = %q, want 100 'C'", rec.MinQty, unit)
	}
	if want := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC); !rec.StartDate.Equal(want) {
		t.Errorf("StartDate = %v, want %v", rec.StartDate, want)
	}
	if rec.Line != 2 {
		t.Errorf("Line = %d, want 2", rec.Line)
	}
}

func TestParseLineDateFallback(t *testing.T) {
	effective := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		start     string
		effective time.Time
		want      time.Time
	}{
		{"own date", "20250601", effective, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"absent uses header", "", effective, effective},
		{"malformed uses header", "2025AB01", effective, effective},
		{"both missing", "", time.Time{}, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := buildLine("X1", "N", "1", "1", 'E', tt.start)
			rec, _, err := ParseLine(line, 2, Current, tt.effective, DefaultUnit)
			if err != nil {
				t.Fatalf("ParseLine error: %v", err)
			}
			if !rec.StartDate.Equal(tt.want) {
				t.Errorf("StartDate = %v, want %v", rec.StartDate, tt.want)
			}
			if rec.HasStartDate() == tt.want.IsZero() {
				t.Errorf("HasStartDate = %v", rec.HasStartDate())
			}
		})
	}
}

func TestParseLineCarriesUnitOnShortLines(t *testing.T) {
	short := buildLine("X1", "N", "1", "1", 0, "")
	if len(short) > Current.UnitPos {
		t.Fatalf("test line too long: %d", len(short))
	}

	rec, unit, err := ParseLine(short, 3, Current, time.Time{}, 'C')
	if err != nil {
		t.Fatalf("ParseLine error: %v", err)
	}
	if unit != 'C' || rec.MinQty != 100 {
		t.Errorf("unit = %q MinQty = %d, want carried 'C' 100", unit, rec.MinQty)
	}
}

func TestParseLineErrors(t *testing.T) {
	_, _, err := ParseLine(buildLine("", "N", "1", "1", 'E', ""), 4, Current, time.Time{}, DefaultUnit)
	var fe *FieldError
	if !errors.As(err, &fe) || fe.Field != "code" || fe.Line != 4 {
		t.Fatalf("expected code FieldError on line 4, got %v", err)
	}

	_, _, err = ParseLine(buildLine("X1", "N", "12AB", "1", 'E', ""), 5, Current, time.Time{}, DefaultUnit)
	if !errors.As(err, &fe) || fe.Field != "price" || fe.Value != "12AB" {
		t.Fatalf("expected price FieldError, got %v", err)
	}
}

func TestParseLineDecodesLatin1(t *testing.T) {
	line := buildLine("X1", "CAF\xc9", "1", "1", 'E', "")
	rec, _, err := ParseLine(line, 2, Current, time.Time{}, DefaultUnit)
	if err != nil {
		t.Fatalf("ParseLine error: %v", err)
	}
	if rec.ProductName != "CAFÉ" {
		t.Errorf("ProductName = %q, want CAFÉ", rec.ProductName)
	}
}

func TestLegacyLayoutUnitColumn(t *testing.T) {
	line := put(buildLine("X1", "N", "1", "1", 0, ""), Legacy.UnitPos, "5")
	rec, _, err := ParseLine(line, 2, Legacy, time.Time{}, DefaultUnit)
	if err != nil {
		t.Fatalf("ParseLine error: %v", err)
	}
	if rec.MinQty != 5 {
		t.Errorf("MinQty = %d, want 5", rec.MinQty)
	}
}

func TestLookupLayout(t *testing.T) {
	if l, err := LookupLayout(" Legacy "); err != nil || l.UnitPos != 162 {
		t.Fatalf("LookupLayout(legacy) = %+v, %v", l, err)
	}
	if _, err := LookupLayout("nope"); err == nil || !strings.Contains(err.Error(), "current") {
		t.Fatalf("expected unknown layout error listing names, got %v", err)
	}
}

func TestReader(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(buildHeader("20250101"))
	buf.WriteString("\r\n")
	buf.Write(buildLine("AA5122R", "-PART A", "00000150", "0", 'E', ""))
	buf.WriteString("\n\n")
	buf.Write(buildLine("", "BROKEN", "1", "1", 'E', ""))
	buf.WriteString("\n")
	buf.Write(buildLine("BB1", "PART B", "0000.75", "0", 'C', "20250201"))
	buf.WriteString("\n")

	r, err := NewReader(&buf, Current)
	if err != nil {
		t.Fatalf("NewReader error: %v", err)
	}
	defer r.Close()

	if want := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC); !r.EffectiveDate().Equal(want) {
		t.Fatalf("EffectiveDate = %v", r.EffectiveDate())
	}

	var codes []string
	var failed []int
	for r.Next() {
		rec, err := r.Record()
		if err != nil {
			failed = append(failed, r.LineNumber())
			continue
		}
		codes = append(codes, rec.ProductCode)
	}
	if err := r.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	if strings.Join(codes, ",") != "AA5122R,BB1" {
		t.Errorf("codes = %v", codes)
	}
	if len(failed) != 1 || failed[0] != 4 {
		t.Errorf("failed lines = %v, want [4]", failed)
	}
}

func TestReaderEmptySource(t *testing.T) {
	r, err := NewReader(strings.NewReader(""), Current)
	if err != nil {
		t.Fatalf("NewReader error: %v", err)
	}
	if r.Next() {
		t.Fatal("expected no records")
	}
	if !r.EffectiveDate().IsZero() {
		t.Fatal("expected zero effective date")
	}
}
