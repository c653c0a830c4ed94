package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dealerops/pricesync/internal/backup"
	"github.com/dealerops/pricesync/internal/batch"
	"github.com/dealerops/pricesync/internal/catalog"
	"github.com/dealerops/pricesync/internal/config"
	"github.com/dealerops/pricesync/internal/datfile"
	"github.com/dealerops/pricesync/internal/erp"
	"github.com/dealerops/pricesync/internal/ledger"
	"github.com/dealerops/pricesync/internal/metrics"
	"github.com/dealerops/pricesync/internal/reconcile"
	"github.com/dealerops/pricesync/internal/retry"
	"github.com/dealerops/pricesync/internal/types"
	"github.com/dealerops/pricesync/pkg/utils"
	"go.uber.org/zap"
)

// metricsNamespace prefixes every exported metric.
const metricsNamespace = "pricesync"

// =============================================================================
// PIPELINE WIRING
// =============================================================================

// pipeline holds what every load of one process invocation shares.
type pipeline struct {
	cfg      *config.MainConfig
	client   erp.Client
	uploader backup.Uploader
	rc       *reconcile.Context
	files    *utils.FileManager
	ledger   *ledger.Ledger
	metrics  *metrics.Recorder
	log      *zap.Logger

	// now and policy are replaced in tests.
	now    func() time.Time
	policy retry.Policy
}

// connect dials the ERP and resolves the vendor, category and currency.
func connect(ctx context.Context, cfg *config.MainConfig, log *zap.Logger) (*erp.XMLRPCClient, *reconcile.Context, error) {
	if err := cfg.RequireERP(); err != nil {
		return nil, nil, err
	}
	client, err := erp.Dial(ctx, erp.Config{
		URL:               cfg.ERP.URL,
		Database:          cfg.ERP.Database,
		Username:          cfg.ERP.Username,
		Password:          cfg.ERP.Password,
		Timeout:           cfg.ERP.Timeout,
		RequestsPerSecond: cfg.ERP.RequestsPerSecond,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	rc, err := reconcile.ResolveContext(ctx, client, reconcile.Lookup{
		PartnerName:  cfg.Vendor.PartnerName,
		CategoryName: cfg.Vendor.CategoryName,
		CurrencyCode: cfg.Vendor.CurrencyCode,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	return client, rc, nil
}

// buildCatalog fills rc.Index with the vendor category's products.
func buildCatalog(ctx context.Context, cfg *config.MainConfig, client erp.Client, rc *reconcile.Context, rec *metrics.Recorder, log *zap.Logger) error {
	b := &catalog.Builder{
		Client:   client,
		Domain:   erp.Domain{erp.Eq("categ_id", rc.CategoryID)},
		PageSize: cfg.Pipeline.PageSize,
		Workers:  cfg.Pipeline.IndexWorkers,
		Log:      log,
	}
	ix, stats, err := b.Build(ctx)
	if err != nil {
		return fmt.Errorf("catalog build: %w", err)
	}
	if stats.FailedPages > 0 {
		log.Warn("catalog index is partial", zap.Int("failed_pages", stats.FailedPages))
	}
	rc.Index = ix
	rec.Catalog(ix.Len())
	return nil
}

// engine assembles a reconciliation engine for one load type.
func (p *pipeline) engine(lt types.LoadType) (*reconcile.Engine, error) {
	cfg := p.cfg.Pipeline
	layout, err := datfile.LookupLayout(cfg.Layout)
	if err != nil {
		return nil, err
	}
	policy, err := catalog.ParsePolicy(cfg.AmbiguousTemplates)
	if err != nil {
		return nil, err
	}

	log := p.log.With(zap.String("load_type", string(lt)))
	writer := &batch.Writer{
		Client:    p.client,
		BatchSize: cfg.BatchSize,
		Retries:   cfg.RetryLimit(),
		Pause:     cfg.BatchPause,
		Policy:    p.policy,
		Metrics:   p.metrics,
		Log:       log,
	}
	deleter := &batch.Writer{
		Client:    p.client,
		BatchSize: cfg.BatchSize,
		Retries:   cfg.DeleteRetryLimit(),
		Pause:     cfg.BatchPause,
		Policy:    p.policy,
		Metrics:   p.metrics,
		Log:       log,
	}
	archiver := &backup.Archiver{
		Client:         p.client,
		Uploader:       p.uploader,
		Deleter:        deleter,
		PageSize:       cfg.BatchSize,
		MaxRowsPerFile: cfg.MaxRowsPerFile,
		Workers:        cfg.RenderWorkers,
		Verify:         cfg.VerifyBackups,
		Now:            p.now,
		Metrics:        p.metrics,
		Log:            log,
	}
	if cfg.KeepLocalBackups {
		archiver.LocalDir = p.cfg.Directories.BackupDir
	}

	return &reconcile.Engine{
		Context:  p.rc,
		Writer:   writer,
		Archiver: archiver,
		Options: reconcile.Options{
			LoadType:       lt,
			Layout:         layout,
			BackupFolder:   cfg.BackupFolder,
			Ambiguous:      policy,
			ListPriceField: cfg.ListPriceField,
			ScopeToPartner: cfg.ScopeToVendor,
		},
		Now:     p.now,
		Metrics: p.metrics,
		Log:     p.log,
	}, nil
}

// load runs one load type over files and records the outcome. Inputs are
// archived only after a successful run.
func (p *pipeline) load(ctx context.Context, lt types.LoadType, files []string) (reconcile.Result, error) {
	e, err := p.engine(lt)
	if err != nil {
		return reconcile.Result{}, err
	}
	res := e.Run(ctx, files)

	if p.ledger != nil {
		if _, err := p.ledger.Record(ctx, ledger.FromResult(res)); err != nil {
			p.log.Warn("failed to record run", zap.Error(err))
		}
	}

	summary := utils.RunSummary{
		LoadType:    lt,
		StartTime:   res.Date,
		EndTime:     res.Date.Add(res.Stats.Duration),
		Success:     res.Success,
		Message:     res.Summary,
		Lines:       res.Stats.Lines,
		Created:     res.Stats.Created,
		Deleted:     res.Stats.Deleted,
		Skipped:     res.Stats.Skipped,
		Errors:      res.Stats.Errors,
		Unmatched:   res.Stats.Unresolved,
		BackupTag:   res.Backup.Tag,
		BackupFiles: res.Backup.Files,
	}
	for _, f := range files {
		summary.Files = append(summary.Files, filepath.Base(f))
	}
	if path, err := p.files.WriteSummaryLog(summary); err != nil {
		p.log.Warn("failed to write run summary", zap.Error(err))
	} else {
		p.log.Debug("run summary written", zap.String("path", path))
	}

	if !res.Success {
		return res, res.Error
	}
	for _, f := range files {
		archived, err := p.files.ArchiveInputFile(lt, f)
		if err != nil {
			p.log.Warn("failed to archive price file", zap.String("file", f), zap.Error(err))
			continue
		}
		p.log.Info("price file archived", zap.String("file", filepath.Base(f)), zap.String("to", archived))
	}
	return res, nil
}
