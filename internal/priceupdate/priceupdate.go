// =============================================================================
// Price Sync - Single-Field Price Update
// =============================================================================
//
// A narrower path than the reconciliation engine: read only code and price
// from a price file, stage them in a JSON scratch file, then write the price
// onto the vendor's existing supplier-info rows. Nothing is created or
// deleted.
//
// SCRATCH FILE:
//   [{"id": "AA5122R", "price": "1.5"}, ...]
//
// =============================================================================

package priceupdate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dealerops/pricesync/internal/catalog"
	"github.com/dealerops/pricesync/internal/datfile"
	"github.com/dealerops/pricesync/internal/erp"
	"github.com/dealerops/pricesync/internal/metrics"
	"github.com/dealerops/pricesync/internal/reconcile"
	"github.com/dealerops/pricesync/internal/retry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Match is one staged price. ID is the vendor product code.
type Match struct {
	ID    string          `json:"id"`
	Price decimal.Decimal `json:"price"`
}

// ParseFile reads code and price from every line of a price file. Lines that
// fail to parse are returned as errors alongside the matches.
func ParseFile(path string, layout datfile.Layout) ([]Match, []error, error) {
	r, err := datfile.Open(path, layout)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()

	var (
		matches []Match
		bad     []error
	)
	for r.Next() {
		rec, err := r.Record()
		if err != nil {
			bad = append(bad, err)
			continue
		}
		matches = append(matches, Match{ID: rec.ProductCode, Price: rec.Price})
	}
	if err := r.Err(); err != nil {
		return matches, bad, err
	}
	return matches, bad, nil
}

// WriteMatches stores matches at path. With appendMode the existing entries
// are kept and the new ones added after them; an unreadable or malformed
// existing file counts as empty.
func WriteMatches(path string, matches []Match, appendMode bool) error {
	out := matches
	if appendMode {
		existing, err := LoadMatches(path)
		if err == nil {
			out = append(existing, matches...)
		}
	}
	if out == nil {
		out = []Match{}
	}

	data, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode matches: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write matches: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadMatches reads a scratch file. The document must be a JSON array.
func LoadMatches(path string) ([]Match, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var matches []Match
	if err := json.Unmarshal(data, &matches); err != nil {
		return nil, fmt.Errorf("matches file must be an array of {id, price}: %w", err)
	}
	return matches, nil
}

// =============================================================================
// APPLY
// =============================================================================

// Result counts the outcome of Apply.
type Result struct {
	// Updated is the number of matches whose rows were written.
	Updated int

	// Rows is the number of supplier-info rows written.
	Rows int

	// Missing counts matches without a template or without vendor rows.
	Missing int

	// Invalid counts matches with an empty id or a non-positive price.
	Invalid int
}

// Updater writes staged prices onto existing supplier-info rows.
type Updater struct {
	Client  erp.Client
	Context *reconcile.Context

	// Ambiguous decides how codes with several templates resolve.
	Ambiguous catalog.Policy

	// Retries bounds rate-limit retries per write.
	Retries int
	Policy  retry.Policy

	Metrics *metrics.Recorder
	Log     *zap.Logger
}

// Apply updates the price of every supplier-info row of the run's vendor
// whose template matches a staged code. A failed write ends the pass.
func (u *Updater) Apply(ctx context.Context, matches []Match) (Result, error) {
	log := u.Log
	if log == nil {
		log = zap.NewNop()
	}
	if u.Context == nil {
		return Result{}, fmt.Errorf("%w: run context is not resolved", reconcile.ErrPrecondition)
	}

	p := u.Policy
	p.Retries = u.Retries
	p.Retryable = erp.IsRateLimited
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		u.Metrics.Retry("write")
		log.Warn("rate limited, retrying price write", zap.Int("attempt", attempt), zap.Duration("delay", delay))
	}

	var res Result
	for _, m := range matches {
		if m.ID == "" || !m.Price.IsPositive() {
			res.Invalid++
			log.Warn("skipping staged price", zap.String("code", m.ID), zap.String("price", m.Price.String()))
			continue
		}

		tmpl, err := u.Context.Index.Resolve(m.ID, u.Ambiguous)
		if err != nil && !errors.Is(err, catalog.ErrAmbiguousTemplate) {
			return res, err
		}
		if err != nil || tmpl == 0 {
			res.Missing++
			log.Info("product not found in catalog", zap.String("code", m.ID), zap.Error(err))
			continue
		}

		domain := erp.Domain{
			erp.Eq("partner_id", u.Context.PartnerID),
			erp.Eq("product_tmpl_id", tmpl),
		}
		ids, err := u.Client.Search(ctx, erp.ModelSupplierInfo, domain, erp.Page{})
		if err != nil {
			return res, fmt.Errorf("search rows for %s: %w", m.ID, err)
		}
		if len(ids) == 0 {
			res.Missing++
			log.Info("no vendor rows for product", zap.String("code", m.ID), zap.Int64("template", tmpl))
			continue
		}

		values := erp.Values{"price": m.Price.InexactFloat64()}
		err = retry.Do(ctx, p, func(ctx context.Context) error {
			_, err := u.Client.Write(ctx, erp.ModelSupplierInfo, ids, values)
			return err
		})
		if err != nil {
			return res, fmt.Errorf("write price for %s: %w", m.ID, err)
		}
		res.Updated++
		res.Rows += len(ids)
		log.Debug("price updated", zap.String("code", m.ID), zap.Int("rows", len(ids)))
	}

	log.Info("staged prices applied",
		zap.Int("updated", res.Updated),
		zap.Int("rows", res.Rows),
		zap.Int("missing", res.Missing),
		zap.Int("invalid", res.Invalid),
	)
	return res, nil
}
