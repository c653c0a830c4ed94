package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dealerops/pricesync/internal/batch"
	"github.com/dealerops/pricesync/internal/erp"
	"github.com/dealerops/pricesync/internal/metrics"
	"github.com/dealerops/pricesync/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrBackupIncomplete means some rows could not be captured, rendered or
// uploaded. No record is deleted when it is returned.
var ErrBackupIncomplete = errors.New("backup incomplete, deletion skipped")

// displayFields are re-fetched per id page to build backup rows.
var displayFields = []string{"partner_id", "product_code", "product_tmpl_id", "min_qty", "price", "currency_id"}

// Uploader stores a rendered file. erp.DocumentStore implements it.
type Uploader interface {
	Upload(ctx context.Context, doc erp.Document) (int64, error)
}

// =============================================================================
// SELECTORS
// =============================================================================

// Selector chooses the supplier-info records to archive and delete.
type Selector struct {
	// Codes limits the selection to these product codes. Nil selects all.
	Codes []string

	// PartnerID, when non-zero, limits the selection to one vendor.
	PartnerID int64
}

// All selects every supplier-info record.
func All() Selector { return Selector{} }

// ByCodes selects records whose product code is in codes.
func ByCodes(codes []string) Selector { return Selector{Codes: codes} }

// Domain renders the selector as a search domain.
func (s Selector) Domain() erp.Domain {
	var d erp.Domain
	if s.Codes != nil {
		d = append(d, erp.In("product_code", s.Codes))
	}
	if s.PartnerID != 0 {
		d = append(d, erp.Eq("partner_id", s.PartnerID))
	}
	return d
}

// =============================================================================
// ARCHIVER
// =============================================================================

// Archiver backs up supplier-info records to spreadsheets in the ERP document
// store and deletes them only after every backup has been rendered and
// uploaded.
type Archiver struct {
	Client   erp.Client
	Uploader Uploader

	// Deleter unlinks captured ids in chunks under retry.
	Deleter *batch.Writer

	// PageSize is the number of ids fetched per page. Default: 20000.
	PageSize int

	// MaxRowsPerFile caps each workbook. Default: 200000.
	MaxRowsPerFile int

	// Workers bounds concurrent workbook renders. Default: 5.
	Workers int

	// LocalDir, when set, keeps a copy of every workbook under
	// LocalDir/<tag>/.
	LocalDir string

	// Verify reads every rendered workbook back and checks its row count.
	Verify bool

	// Render turns one part's rows into workbook bytes. Default: RenderWorkbook.
	Render func([]Row) ([]byte, error)

	Now     func() time.Time
	Metrics *metrics.Recorder
	Log     *zap.Logger
}

// Report describes one archive-and-delete pass.
type Report struct {
	// Tag is the dated backup folder name, {TYPE}_PRICEFILE_BACKUP_{timestamp}.
	Tag string

	// Files lists uploaded workbook names in part order.
	Files []string

	// Rows is the number of rows captured across all files.
	Rows int

	// Deleted is the number of records unlinked.
	Deleted int
}

// part is one workbook. The render task writes only its own part.
type part struct {
	name    string
	rows    []Row
	content []byte
}

func (a *Archiver) logger() *zap.Logger {
	if a.Log == nil {
		return zap.NewNop()
	}
	return a.Log
}

// ArchiveAndDelete captures every record matched by sel, uploads the backups
// under folder and then deletes exactly the captured ids.
func (a *Archiver) ArchiveAndDelete(ctx context.Context, sel Selector, loadType types.LoadType, folder string) (Report, error) {
	pageSize := a.PageSize
	if pageSize <= 0 {
		pageSize = batch.DefaultBatchSize
	}
	maxRows := a.MaxRowsPerFile
	if maxRows <= 0 {
		maxRows = 200000
	}
	workers := a.Workers
	if workers <= 0 {
		workers = 5
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	log := a.logger().With(zap.String("load_type", string(loadType)))

	ts := now().Format("20060102_150405")
	tag := fmt.Sprintf("%s_PRICEFILE_BACKUP_%s", loadType, ts)
	report := Report{Tag: tag}

	if sel.Codes != nil && len(sel.Codes) == 0 {
		return report, nil
	}

	// =========================================================================
	// STEP 1: PAGE IDS, CAPTURE DISPLAY ROWS, RENDER PARTS
	// =========================================================================

	var (
		parts    []*part
		captured []int64
		pending  []Row
		g        errgroup.Group
	)
	g.SetLimit(workers)

	submit := func() {
		p := &part{
			name: fmt.Sprintf("Vendor_Pricelist_%s_FILE_BACKUP_%s_Part%d.xlsx", loadType, ts, len(parts)+1),
			rows: pending,
		}
		parts = append(parts, p)
		pending = nil
		g.Go(func() error {
			return a.render(p, tag)
		})
	}

	domain := sel.Domain()
	for offset := 0; ; offset += pageSize {
		page, err := a.Client.SearchRead(ctx, erp.ModelSupplierInfo, domain, []string{"id"}, erp.Page{Limit: pageSize, Offset: offset})
		if err != nil {
			g.Wait()
			return report, fmt.Errorf("%w: id page at offset %d: %v", ErrBackupIncomplete, offset, err)
		}
		if len(page) == 0 {
			break
		}
		ids, err := erp.IDs(page)
		if err != nil {
			g.Wait()
			return report, fmt.Errorf("%w: %v", ErrBackupIncomplete, err)
		}

		display, err := a.Client.SearchRead(ctx, erp.ModelSupplierInfo, erp.Domain{erp.In("id", ids)}, displayFields, erp.Page{})
		if err != nil {
			g.Wait()
			return report, fmt.Errorf("%w: display fetch at offset %d: %v", ErrBackupIncomplete, offset, err)
		}
		for _, v := range display {
			row, err := RowFromValues(v)
			if err != nil {
				g.Wait()
				return report, fmt.Errorf("%w: %v", ErrBackupIncomplete, err)
			}
			pending = append(pending, row)
			captured = append(captured, row.ID)
			if len(pending) >= maxRows {
				submit()
			}
		}
		log.Debug("backup page captured", zap.Int("offset", offset), zap.Int("rows", len(display)))

		if len(page) < pageSize {
			break
		}
	}
	if len(pending) > 0 {
		submit()
	}

	// =========================================================================
	// STEP 2: WAIT FOR EVERY RENDER
	// =========================================================================

	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("%w: %v", ErrBackupIncomplete, err)
	}
	report.Rows = len(captured)
	if report.Rows == 0 {
		log.Info("nothing to archive")
		return report, nil
	}

	// =========================================================================
	// STEP 3: UPLOAD
	// =========================================================================

	for _, p := range parts {
		_, err := a.Uploader.Upload(ctx, erp.Document{
			Name:    p.name,
			Content: p.content,
			Folder:  folder,
			Tag:     report.Tag,
		})
		if err != nil {
			return report, fmt.Errorf("%w: upload %s: %v", ErrBackupIncomplete, p.name, err)
		}
		report.Files = append(report.Files, p.name)
	}
	a.Metrics.Archived(string(loadType), report.Rows, len(report.Files))
	log.Info("backup uploaded",
		zap.String("tag", report.Tag),
		zap.String("folder", folder),
		zap.Int("files", len(report.Files)),
		zap.Int("rows", report.Rows),
	)

	// =========================================================================
	// STEP 4: DELETE CAPTURED IDS
	// =========================================================================

	deleted, err := a.Deleter.Delete(ctx, captured)
	report.Deleted = deleted
	a.Metrics.Deleted(string(loadType), deleted)
	if err != nil {
		return report, fmt.Errorf("delete after backup (%d of %d removed): %w", deleted, len(captured), err)
	}
	log.Info("archived records deleted", zap.Int("deleted", deleted))
	return report, nil
}

// render fills p.content and optionally keeps a local copy.
func (a *Archiver) render(p *part, tag string) error {
	renderFn := a.Render
	if renderFn == nil {
		renderFn = RenderWorkbook
	}
	content, err := renderFn(p.rows)
	if err != nil {
		return fmt.Errorf("render %s: %w", p.name, err)
	}
	if a.Verify {
		back, err := ReadWorkbook(content)
		if err != nil {
			return fmt.Errorf("verify %s: %w", p.name, err)
		}
		if len(back) != len(p.rows) {
			return fmt.Errorf("verify %s: %d rows written, %d read back", p.name, len(p.rows), len(back))
		}
	}
	p.content = content
	// Only the rendered bytes are needed from here on.
	p.rows = nil

	if a.LocalDir != "" {
		dir := filepath.Join(a.LocalDir, tag)
		err = os.MkdirAll(dir, 0755)
		if err == nil {
			err = os.WriteFile(filepath.Join(dir, p.name), content, 0644)
		}
		if err != nil {
			a.logger().Warn("failed to keep local backup copy", zap.String("file", p.name), zap.Error(err))
		}
	}
	return nil
}
