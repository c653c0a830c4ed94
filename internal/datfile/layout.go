// =============================================================================
// Price Sync - DAT Layouts
// =============================================================================
//
// Vendor price files are fixed-width. Field boundaries are byte offsets into
// the raw line and have shifted slightly between format revisions, so every
// offset lives in a named Layout. Supporting a new revision means adding a
// table entry, not touching the parser.
//
// =============================================================================

package datfile

import (
	"fmt"
	"sort"
	"strings"
)

// Span is a half-open byte range [Start, End) within a line.
type Span struct {
	Start int
	End   int
}

// Layout describes where each field sits in a price file revision.
type Layout struct {
	// Name identifies the revision in configuration.
	Name string

	// EffectiveDate is read from the header line (YYYYMMDD).
	EffectiveDate Span

	Code        Span
	Description Span
	Price       Span
	ListPrice   Span
	StartDate   Span

	// UnitPos is the byte index of the quantity-unit character.
	// A negative value means the revision has no unit column.
	UnitPos int

	// ImpliedDecimals is applied to numeric fields that carry no decimal
	// point, so 00000150 reads as 1.50 with two implied places.
	ImpliedDecimals int32
}

// =============================================================================
// KNOWN REVISIONS
// =============================================================================

var (
	// Current is the layout of files delivered today.
	Current = Layout{
		Name:            "current",
		EffectiveDate:   Span{54, 62},
		Code:            Span{0, 17},
		Description:     Span{24, 51},
		Price:           Span{56, 72},
		ListPrice:       Span{72, 87},
		StartDate:       Span{208, 216},
		UnitPos:         163,
		ImpliedDecimals: 2,
	}

	// Legacy is the earlier revision with the unit one column to the left.
	Legacy = Layout{
		Name:            "legacy",
		EffectiveDate:   Span{54, 62},
		Code:            Span{0, 17},
		Description:     Span{24, 51},
		Price:           Span{56, 72},
		ListPrice:       Span{72, 87},
		StartDate:       Span{208, 216},
		UnitPos:         162,
		ImpliedDecimals: 2,
	}

	// PriceOnly feeds the single-field price update path. It reads a wider
	// code column and a price column shifted by one byte.
	PriceOnly = Layout{
		Name:            "price_only",
		EffectiveDate:   Span{54, 62},
		Code:            Span{0, 18},
		Price:           Span{57, 72},
		UnitPos:         -1,
		ImpliedDecimals: 2,
	}
)

var layouts = map[string]Layout{
	Current.Name:   Current,
	Legacy.Name:    Legacy,
	PriceOnly.Name: PriceOnly,
}

// LookupLayout returns the named revision.
func LookupLayout(name string) (Layout, error) {
	l, ok := layouts[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Layout{}, fmt.Errorf("unknown DAT layout %q (known: %s)", name, strings.Join(LayoutNames(), ", "))
	}
	return l, nil
}

// LayoutNames lists the registered revisions in sorted order.
func LayoutNames() []string {
	names := make([]string, 0, len(layouts))
	for n := range layouts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
