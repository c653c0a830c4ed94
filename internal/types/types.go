// =============================================================================
// Price Sync - Shared Types
// =============================================================================
//
// This package contains shared types used across multiple modules to avoid
// import cycles. Types defined here are used by:
//   - datfile (produces PriceRecord)
//   - reconcile (turns PriceRecord into SupplierInfo)
//   - backup and ledger (LoadType labels)
//
// =============================================================================

package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LOAD TYPES
// =============================================================================

// LoadType selects the reconciliation strategy for a price file.
type LoadType string

const (
	// LoadFull is a complete price list. All existing supplier-info records
	// are archived and removed before the new set is inserted.
	LoadFull LoadType = "FULL"

	// LoadNet carries only changed records. Records become actionable on the
	// day their start date equals the processing date.
	LoadNet LoadType = "NET"
)

// ParseLoadType accepts "full" or "net" in any case.
func ParseLoadType(s string) (LoadType, error) {
	switch LoadType(strings.ToUpper(strings.TrimSpace(s))) {
	case LoadFull:
		return LoadFull, nil
	case LoadNet:
		return LoadNet, nil
	}
	return "", fmt.Errorf("unknown load type %q", s)
}

// DateLayout is the ERP wire format for calendar dates.
const DateLayout = "2006-01-02"

// =============================================================================
// PRICE RECORD
// =============================================================================

// PriceRecord is one parsed data line of a vendor price file.
type PriceRecord struct {
	// ProductCode is the vendor's external product identifier, trimmed.
	// It is the natural key across the pipeline and never empty.
	ProductCode string

	// ProductName is the vendor description with leading dashes stripped.
	ProductName string

	// Price is the dealer net price.
	Price decimal.Decimal

	// ListPrice is the vendor's suggested list price.
	ListPrice decimal.Decimal

	// MinQty is derived from the quantity-unit character. Always >= 1.
	MinQty int

	// StartDate is the record start date, or the header effective date when
	// the line has none. The zero value means no usable date.
	StartDate time.Time

	// Line is the 1-indexed line number in the source file.
	Line int
}

// HasStartDate reports whether the record carries a usable date.
func (r PriceRecord) HasStartDate() bool {
	return !r.StartDate.IsZero()
}

// =============================================================================
// SUPPLIER INFO
// =============================================================================

// SupplierInfo is the persisted vendor-price listing for one product.
type SupplierInfo struct {
	PartnerID   int64
	ProductCode string
	ProductName string
	// TemplateID is zero when the code is not in the catalog; it is sent as
	// false so a later catalog rebuild can backfill the link.
	TemplateID int64
	Price      decimal.Decimal
	ListPrice  decimal.Decimal
	MinQty     int
	CurrencyID int64
	DateStart  time.Time
}

// NewSupplierInfo builds the ERP listing for a parsed record.
func NewSupplierInfo(rec PriceRecord, partnerID, currencyID, templateID int64) SupplierInfo {
	return SupplierInfo{
		PartnerID:   partnerID,
		ProductCode: rec.ProductCode,
		ProductName: rec.ProductName,
		TemplateID:  templateID,
		Price:       rec.Price,
		ListPrice:   rec.ListPrice,
		MinQty:      rec.MinQty,
		CurrencyID:  currencyID,
		DateStart:   rec.StartDate,
	}
}

// Values renders the listing as ERP create values. listPriceField names the
// custom field holding the list price; an empty name omits it.
func (s SupplierInfo) Values(listPriceField string) map[string]interface{} {
	v := map[string]interface{}{
		"partner_id":   s.PartnerID,
		"product_code": s.ProductCode,
		"product_name": s.ProductName,
		"price":        s.Price.InexactFloat64(),
		"min_qty":      s.MinQty,
		"currency_id":  s.CurrencyID,
		"date_start":   s.DateStart.Format(DateLayout),
	}
	if s.TemplateID > 0 {
		v["product_tmpl_id"] = s.TemplateID
	} else {
		v["product_tmpl_id"] = false
	}
	if listPriceField != "" {
		v[listPriceField] = s.ListPrice.InexactFloat64()
	}
	return v
}
