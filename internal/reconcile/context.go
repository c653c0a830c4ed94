package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/dealerops/pricesync/internal/catalog"
	"github.com/dealerops/pricesync/internal/erp"
	"go.uber.org/zap"
)

// ErrPrecondition marks a broken run precondition, such as a vendor or
// category that does not exist. The whole run aborts.
var ErrPrecondition = errors.New("run precondition failed")

// Context carries the ids resolved once per process and the catalog index.
// It is built by the entry point and shared read-only by every engine run.
type Context struct {
	PartnerID  int64
	CurrencyID int64
	CategoryID int64
	Index      *catalog.Index
}

// Lookup names the records ResolveContext searches for.
type Lookup struct {
	// PartnerName is matched case-insensitively against res.partner.
	PartnerName string

	// CategoryName is matched case-insensitively against the category's
	// complete name.
	CategoryName string

	// CurrencyCode is the ISO code, e.g. USD.
	CurrencyCode string
}

// ResolveContext looks up the vendor, product category and currency. Any
// missing record is an ErrPrecondition.
func ResolveContext(ctx context.Context, client erp.Client, l Lookup, log *zap.Logger) (*Context, error) {
	if log == nil {
		log = zap.NewNop()
	}

	partner, err := first(ctx, client, erp.ModelPartner, erp.Domain{erp.ILike("name", l.PartnerName)})
	if err != nil {
		return nil, fmt.Errorf("partner %q: %w", l.PartnerName, err)
	}
	category, err := first(ctx, client, erp.ModelCategory, erp.Domain{erp.ILike("complete_name", l.CategoryName)})
	if err != nil {
		return nil, fmt.Errorf("category %q: %w", l.CategoryName, err)
	}
	currency, err := first(ctx, client, erp.ModelCurrency, erp.Domain{erp.Eq("name", l.CurrencyCode)})
	if err != nil {
		return nil, fmt.Errorf("currency %q: %w", l.CurrencyCode, err)
	}

	log.Info("run context resolved",
		zap.Int64("partner_id", partner),
		zap.Int64("category_id", category),
		zap.Int64("currency_id", currency),
	)
	return &Context{PartnerID: partner, CategoryID: category, CurrencyID: currency}, nil
}

func first(ctx context.Context, client erp.Client, model string, domain erp.Domain) (int64, error) {
	ids, err := client.Search(ctx, model, domain, erp.Page{Limit: 1})
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: no %s matches", ErrPrecondition, model)
	}
	return ids[0], nil
}
