// =============================================================================
// Price Sync - ERP Client
// =============================================================================
//
// This package wraps the remote ERP's object API. Callers work with named
// models and structured domains; the XML-RPC encoding lives in xmlrpc.go.
//
// ERROR CLASSIFICATION:
//   A rate-limit fault (HTTP 429) is reported as an error matching
//   ErrRateLimited via errors.Is. Every other failure is permanent from the
//   caller's point of view.
//
// =============================================================================

package erp

import (
	"context"
	"errors"
	"fmt"
)

// ErrRateLimited marks a transient server-side throttle.
var ErrRateLimited = errors.New("erp: rate limited")

// IsRateLimited reports whether err carries a rate-limit fault.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// Model names used across the pipeline.
const (
	ModelSupplierInfo = "product.supplierinfo"
	ModelProduct      = "product.product"
	ModelPartner      = "res.partner"
	ModelCategory     = "product.category"
	ModelCurrency     = "res.currency"
	ModelAttachment   = "ir.attachment"
	ModelDocument     = "documents.document"
	ModelFolder       = "documents.folder"
)

// =============================================================================
// QUERY TYPES
// =============================================================================

// Values is one record's field map, as sent to create/write or returned by
// read.
type Values map[string]interface{}

// Cond is a single domain term.
type Cond struct {
	Field string
	Op    string
	Value interface{}
}

// Domain is an implicitly AND-ed list of terms.
type Domain []Cond

// Eq, In and ILike build the common terms.
func Eq(field string, v interface{}) Cond    { return Cond{field, "=", v} }
func In(field string, v interface{}) Cond    { return Cond{field, "in", v} }
func ILike(field string, v interface{}) Cond { return Cond{field, "ilike", v} }

// Encode renders the domain in the wire form [[field, op, value], ...].
func (d Domain) Encode() []interface{} {
	out := make([]interface{}, 0, len(d))
	for _, c := range d {
		out = append(out, []interface{}{c.Field, c.Op, c.Value})
	}
	return out
}

// Page bounds a search. A zero Limit means no limit.
type Page struct {
	Limit  int
	Offset int
}

// =============================================================================
// CLIENT INTERFACE
// =============================================================================

// Client is the subset of the ERP object API the pipeline consumes. All calls
// are synchronous.
type Client interface {
	SearchRead(ctx context.Context, model string, domain Domain, fields []string, page Page) ([]Values, error)
	Search(ctx context.Context, model string, domain Domain, page Page) ([]int64, error)
	Read(ctx context.Context, model string, ids []int64, fields []string) ([]Values, error)
	Create(ctx context.Context, model string, records []Values) ([]int64, error)
	Write(ctx context.Context, model string, ids []int64, values Values) (bool, error)
	Unlink(ctx context.Context, model string, ids []int64) (bool, error)
	SearchCount(ctx context.Context, model string, domain Domain) (int, error)
}

// =============================================================================
// VALUE HELPERS
// =============================================================================

// Many2One splits a relational value returned as [id, display_name].
func Many2One(v interface{}) (int64, string, bool) {
	pair, ok := v.([]interface{})
	if !ok || len(pair) == 0 {
		return 0, "", false
	}
	id, ok := AsInt64(pair[0])
	if !ok {
		return 0, "", false
	}
	name := ""
	if len(pair) > 1 {
		name, _ = pair[1].(string)
	}
	return id, name, true
}

// AsInt64 converts the numeric shapes an RPC decoder may produce.
func AsInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	if id, _, ok := Many2One(v); ok {
		return id, true
	}
	return 0, false
}

// AsFloat64 converts a numeric value to float64.
func AsFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// IDs extracts the "id" field of each row.
func IDs(rows []Values) ([]int64, error) {
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		id, ok := AsInt64(r["id"])
		if !ok {
			return nil, fmt.Errorf("row without numeric id: %v", r["id"])
		}
		ids = append(ids, id)
	}
	return ids, nil
}
