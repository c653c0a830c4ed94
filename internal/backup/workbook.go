// =============================================================================
// Price Sync - Backup Workbooks
// =============================================================================
//
// Supplier-info rows are written to .xlsx with excelize's StreamWriter so that
// a 200k-row part never builds the full sheet model in memory.
//
// COLUMNS:
//   Vendor Name | Product Code | Product Template | Minimum Quantity | Price | Currency
//
// =============================================================================

package backup

import (
	"bytes"
	"fmt"

	"github.com/dealerops/pricesync/internal/erp"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding backup rows.
const SheetName = "Sheet1"

// Headers are the column titles of every backup workbook.
var Headers = []string{"Vendor Name", "Product Code", "Product Template", "Minimum Quantity", "Price", "Currency"}

// notAvailable fills columns whose relation is empty.
const notAvailable = "N/A"

// Row is one supplier-info record as captured for backup.
type Row struct {
	ID       int64
	Vendor   string
	Code     string
	Template string
	MinQty   float64
	Price    float64
	Currency string
}

// RowFromValues converts a search_read result. Relations arrive as
// [id, name] pairs and render by name.
func RowFromValues(v erp.Values) (Row, error) {
	id, ok := erp.AsInt64(v["id"])
	if !ok {
		return Row{}, fmt.Errorf("backup row without id: %v", v["id"])
	}
	r := Row{
		ID:       id,
		Vendor:   relationName(v["partner_id"]),
		Code:     notAvailable,
		Template: relationName(v["product_tmpl_id"]),
		Currency: relationName(v["currency_id"]),
	}
	if code, ok := v["product_code"].(string); ok && code != "" {
		r.Code = code
	}
	r.MinQty, _ = erp.AsFloat64(v["min_qty"])
	r.Price, _ = erp.AsFloat64(v["price"])
	return r, nil
}

func relationName(v interface{}) string {
	if _, name, ok := erp.Many2One(v); ok && name != "" {
		return name
	}
	return notAvailable
}

// RenderWorkbook writes rows under a header line and returns the file bytes.
func RenderWorkbook(rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream writer: %w", err)
	}

	header := make([]interface{}, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []interface{}{r.Vendor, r.Code, r.Template, r.MinQty, r.Price, r.Currency}
		if err := sw.SetRow(cell, values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush workbook: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadWorkbook returns the data rows of a rendered workbook, header excluded.
func ReadWorkbook(content []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[1:], nil
}
