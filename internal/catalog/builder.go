package catalog

import (
	"context"
	"fmt"

	"github.com/dealerops/pricesync/internal/erp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Builder fetches the product catalog page by page.
//
// Pages are fetched in windows of Workers concurrent requests. Each task
// writes only its own slot; slots are merged on the calling goroutine once
// the window completes. A page that fails is logged and dropped, so the
// index may be partial. The build stops at the first empty page, or when
// every page of a window failed.
type Builder struct {
	Client erp.Client

	// Domain filters product.product, e.g. by category.
	Domain erp.Domain

	// PageSize is the number of products per page. Default: 100000.
	PageSize int

	// Workers bounds concurrent page fetches. Default: 4.
	Workers int

	Log *zap.Logger
}

// BuildStats summarizes a build.
type BuildStats struct {
	Pages       int
	FailedPages int
	Products    int
	Codes       int
	Duplicates  int
}

type pageResult struct {
	offset int
	rows   []erp.Values
	err    error
}

// Build fetches the whole catalog. Only context cancellation is returned as
// an error.
func (b *Builder) Build(ctx context.Context) (*Index, BuildStats, error) {
	pageSize := b.PageSize
	if pageSize <= 0 {
		pageSize = 100000
	}
	workers := b.Workers
	if workers <= 0 {
		workers = 4
	}
	log := b.Log
	if log == nil {
		log = zap.NewNop()
	}

	ix := &Index{codes: make(map[string][]int64)}
	var stats BuildStats
	offset := 0

	for {
		if err := ctx.Err(); err != nil {
			return ix, stats, err
		}

		window := make([]pageResult, workers)
		var g errgroup.Group
		for i := range window {
			slot := &window[i]
			slot.offset = offset + i*pageSize
			g.Go(func() error {
				slot.rows, slot.err = b.fetchPage(ctx, slot.offset, pageSize)
				return nil
			})
		}
		g.Wait()
		offset += workers * pageSize

		done := false
		failed := 0
		for _, page := range window {
			stats.Pages++
			if page.err != nil {
				failed++
				stats.FailedPages++
				log.Warn("catalog page failed, continuing with partial index",
					zap.Int("offset", page.offset),
					zap.Error(page.err),
				)
				continue
			}
			if len(page.rows) == 0 {
				done = true
				continue
			}
			stats.Products += merge(ix, page.rows)
		}

		if done {
			break
		}
		if failed == len(window) {
			log.Error("every page in window failed, stopping catalog build", zap.Int("offset", offset))
			break
		}
	}

	stats.Codes = ix.Len()
	stats.Duplicates = len(ix.Duplicates())
	log.Info("catalog index built",
		zap.Int("codes", stats.Codes),
		zap.Int("products", stats.Products),
		zap.Int("pages", stats.Pages),
		zap.Int("failed_pages", stats.FailedPages),
		zap.Int("duplicate_codes", stats.Duplicates),
	)
	return ix, stats, nil
}

func (b *Builder) fetchPage(ctx context.Context, offset, limit int) ([]erp.Values, error) {
	ids, err := b.Client.Search(ctx, erp.ModelProduct, b.Domain, erp.Page{Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("search at offset %d: %w", offset, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := b.Client.Read(ctx, erp.ModelProduct, ids, []string{"default_code", "product_tmpl_id"})
	if err != nil {
		return nil, fmt.Errorf("read at offset %d: %w", offset, err)
	}
	return rows, nil
}

// merge adds rows to ix and returns how many carried a code.
func merge(ix *Index, rows []erp.Values) int {
	n := 0
	for _, row := range rows {
		code, _ := row["default_code"].(string)
		if code == "" {
			continue
		}
		tmpl, ok := erp.AsInt64(row["product_tmpl_id"])
		if !ok || tmpl <= 0 {
			continue
		}
		ix.codes[code] = addID(ix.codes[code], tmpl)
		n++
	}
	return n
}
