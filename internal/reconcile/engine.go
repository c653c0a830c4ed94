// =============================================================================
// Price Sync - Reconciliation Engine
// =============================================================================
//
// The engine applies one price file delivery to the ERP's supplier-info
// records. FULL and NET share a single per-line loop; the load type only
// selects the date filter, the deletion scope and when creates are flushed.
//
// FULL:
//   1. Archive and delete every supplier-info record (abort on failure)
//   2. Queue every record that has a start date
//   3. Flush the create batch whenever it reaches the batch size
//
// NET:
//   1. Queue records whose start date is today; collect their codes
//   2. Archive and delete the records carrying those codes
//   3. Create the queued records
//   Creates wait for the delete so that a code never has two active rows.
//
// FAILURES:
//   A bad line is logged and skipped. Exhausted retries, a failed backup and
//   unreadable files end the run. A panic is captured into Result.Trace.
//
// =============================================================================

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/dealerops/pricesync/internal/backup"
	"github.com/dealerops/pricesync/internal/batch"
	"github.com/dealerops/pricesync/internal/catalog"
	"github.com/dealerops/pricesync/internal/datfile"
	"github.com/dealerops/pricesync/internal/erp"
	"github.com/dealerops/pricesync/internal/metrics"
	"github.com/dealerops/pricesync/internal/types"
	"go.uber.org/zap"
)

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result is the outcome of one engine run.
type Result struct {
	LoadType types.LoadType

	// Date is the processing date.
	Date time.Time

	// Files are the price files that were read.
	Files []string

	Success bool

	// Error is set when the run stopped early.
	Error error

	// Trace holds the stack of a recovered panic.
	Trace string

	// Summary is a human-readable line for notification and the ledger.
	// After a panic it is the trace.
	Summary string

	// Backup describes the archive-and-delete pass, if one ran.
	Backup backup.Report

	Stats Stats
}

// Stats counts what happened to the lines of a run.
type Stats struct {
	// Lines is the number of non-blank data lines read.
	Lines int

	// Parsed is the number of lines that produced a record.
	Parsed int

	// Queued is the number of records accepted for creation.
	Queued int

	// Created is the number of records the ERP accepted.
	Created int

	// Deleted is the number of records removed after backup.
	Deleted int

	// Unresolved counts records created without a template link.
	Unresolved int

	// Skipped counts records without a usable or matching date.
	Skipped int

	// Errors counts per-record failures.
	Errors int

	// DeleteCandidates is the number of distinct codes selected for
	// replacement in a NET run.
	DeleteCandidates int

	Duration time.Duration
}

// =============================================================================
// ENGINE
// =============================================================================

// Options tune the engine for one load type.
type Options struct {
	LoadType types.LoadType

	// Layout is the DAT revision to parse with.
	Layout datfile.Layout

	// BackupFolder is the document folder for archived records.
	BackupFolder string

	// Ambiguous decides how codes with several templates resolve.
	Ambiguous catalog.Policy

	// ListPriceField names the custom field receiving the list price.
	ListPriceField string

	// ScopeToPartner limits deletion to the run's vendor.
	ScopeToPartner bool
}

// Engine reconciles price files against the ERP.
type Engine struct {
	Context  *Context
	Writer   *batch.Writer
	Archiver *backup.Archiver
	Options  Options

	Now     func() time.Time
	Metrics *metrics.Recorder
	Log     *zap.Logger
}

// run holds the mutable state of one Run call.
type run struct {
	*Engine
	log     *zap.Logger
	today   time.Time
	pending []erp.Values
	// netIndex maps a NET code to its slot in pending; later lines win.
	netIndex map[string]int
	codes    []string
	result   *Result
}

// Run processes files in order and never panics; see Result.
func (e *Engine) Run(ctx context.Context, files []string) (result Result) {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	start := now()
	log := e.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("load_type", string(e.Options.LoadType)))

	result = Result{LoadType: e.Options.LoadType, Date: start, Files: files}
	r := &run{
		Engine:   e,
		log:      log,
		today:    start,
		netIndex: make(map[string]int),
		result:   &result,
	}

	defer func() {
		if p := recover(); p != nil {
			result.Success = false
			result.Error = fmt.Errorf("panic: %v", p)
			result.Trace = fmt.Sprintf("panic: %v\n%s", p, debug.Stack())
			result.Summary = result.Trace
			log.Error("reconciliation panicked", zap.Any("panic", p), zap.String("trace", result.Trace))
		}
		result.Stats.Duration = now().Sub(start)
		e.Metrics.Run(string(e.Options.LoadType), result.Stats.Duration, result.Success)
	}()

	if err := r.execute(ctx, files); err != nil {
		result.Error = err
		result.Summary = fmt.Sprintf("The %s price file failed on %s after %d record(s) were created: %v",
			e.Options.LoadType, start.Format(types.DateLayout), result.Stats.Created, err)
		log.Error("reconciliation failed", zap.Error(err), zap.Int("created", result.Stats.Created))
		return result
	}

	result.Success = true
	result.Summary = fmt.Sprintf("The %s price file was successfully loaded on %s. A total of %d record(s) have been updated.",
		e.Options.LoadType, start.Format(types.DateLayout), result.Stats.Created)
	log.Info(result.Summary,
		zap.Int("lines", result.Stats.Lines),
		zap.Int("created", result.Stats.Created),
		zap.Int("deleted", result.Stats.Deleted),
		zap.Int("skipped", result.Stats.Skipped),
		zap.Int("errors", result.Stats.Errors),
	)
	return result
}

func (r *run) execute(ctx context.Context, files []string) error {
	switch r.Options.LoadType {
	case types.LoadFull, types.LoadNet:
	default:
		return fmt.Errorf("unsupported load type %q", r.Options.LoadType)
	}
	if r.Context == nil {
		return fmt.Errorf("%w: run context is not resolved", ErrPrecondition)
	}

	// Every input is opened before anything is deleted.
	readers := make([]*datfile.Reader, 0, len(files))
	defer func() {
		for _, rd := range readers {
			rd.Close()
		}
	}()
	for _, path := range files {
		reader, err := datfile.Open(path, r.Options.Layout)
		if err != nil {
			return err
		}
		readers = append(readers, reader)
	}

	if r.Options.LoadType == types.LoadFull {
		r.log.Info("truncating all supplier-info records before full reload")
		if err := r.archive(ctx, backup.All()); err != nil {
			return err
		}
	}

	for i, reader := range readers {
		if err := r.processFile(ctx, filepath.Base(files[i]), reader); err != nil {
			return err
		}
	}

	if r.Options.LoadType == types.LoadNet {
		r.result.Stats.DeleteCandidates = len(r.codes)
		if len(r.codes) > 0 {
			r.log.Info("replacing supplier-info records effective today", zap.Int("codes", len(r.codes)))
			if err := r.archive(ctx, backup.ByCodes(r.codes)); err != nil {
				return err
			}
		}
	}

	return r.flush(ctx)
}

func (r *run) archive(ctx context.Context, sel backup.Selector) error {
	if r.Options.ScopeToPartner {
		sel.PartnerID = r.Context.PartnerID
	}
	report, err := r.Archiver.ArchiveAndDelete(ctx, sel, r.Options.LoadType, r.Options.BackupFolder)
	r.result.Backup = report
	r.result.Stats.Deleted += report.Deleted
	if err != nil {
		return fmt.Errorf("archive before delete: %w", err)
	}
	return nil
}

// processFile streams one opened DAT file through the shared per-line loop.
func (r *run) processFile(ctx context.Context, name string, reader *datfile.Reader) error {
	log := r.log.With(zap.String("file", name))
	log.Info("processing price file", zap.Time("effective_date", reader.EffectiveDate()))

	parsed := 0
	for reader.Next() {
		r.result.Stats.Lines++
		rec, err := reader.Record()
		if err != nil {
			r.recordError(log, err)
			continue
		}
		parsed++
		r.result.Stats.Parsed++

		if !r.actionable(rec) {
			continue
		}
		if err := r.enqueue(rec, log); err != nil {
			r.recordError(log, err)
			continue
		}

		if r.Options.LoadType == types.LoadFull && len(r.pending) >= r.batchSize() {
			if err := r.flush(ctx); err != nil {
				return err
			}
		}
	}
	r.Metrics.Parsed(string(r.Options.LoadType), parsed)
	if err := reader.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// actionable applies the load type's date predicate.
func (r *run) actionable(rec types.PriceRecord) bool {
	lt := string(r.Options.LoadType)
	if !rec.HasStartDate() {
		r.result.Stats.Skipped++
		r.Metrics.Skipped(lt, "no_date")
		return false
	}
	if r.Options.LoadType == types.LoadNet && !sameDay(rec.StartDate, r.today) {
		r.result.Stats.Skipped++
		r.Metrics.Skipped(lt, "not_today")
		return false
	}
	return true
}

// enqueue resolves the template and queues the record for creation.
func (r *run) enqueue(rec types.PriceRecord, log *zap.Logger) error {
	tmpl, err := r.Context.Index.Resolve(rec.ProductCode, r.Options.Ambiguous)
	if err != nil {
		return &RecordError{Line: rec.Line, Code: rec.ProductCode, Err: err}
	}
	if tmpl == 0 {
		r.result.Stats.Unresolved++
	}

	values := erp.Values(types.NewSupplierInfo(rec, r.Context.PartnerID, r.Context.CurrencyID, tmpl).Values(r.Options.ListPriceField))

	if r.Options.LoadType == types.LoadNet {
		if i, seen := r.netIndex[rec.ProductCode]; seen {
			log.Debug("later line replaces earlier NET record", zap.String("code", rec.ProductCode), zap.Int("line", rec.Line))
			r.pending[i] = values
			return nil
		}
		r.netIndex[rec.ProductCode] = len(r.pending)
		r.codes = append(r.codes, rec.ProductCode)
	}

	r.pending = append(r.pending, values)
	r.result.Stats.Queued++
	return nil
}

func (r *run) batchSize() int {
	if r.Writer.BatchSize <= 0 {
		return batch.DefaultBatchSize
	}
	return r.Writer.BatchSize
}

// flush creates every pending record.
func (r *run) flush(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}
	created, err := r.Writer.Create(ctx, r.pending)
	r.result.Stats.Created += created
	r.Metrics.Created(string(r.Options.LoadType), created)
	r.pending = r.pending[:0]
	if err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

func (r *run) recordError(log *zap.Logger, err error) {
	r.result.Stats.Errors++
	r.Metrics.Skipped(string(r.Options.LoadType), "error")

	var fe *datfile.FieldError
	var re *RecordError
	switch {
	case errors.As(err, &fe):
		log.Warn("skipping malformed line",
			zap.Int("line", fe.Line),
			zap.String("field", fe.Field),
			zap.String("value", fe.Value),
			zap.String("reason", fe.Message),
		)
	case errors.As(err, &re):
		log.Warn("skipping record",
			zap.Int("line", re.Line),
			zap.String("code", re.Code),
			zap.Error(re.Err),
		)
	default:
		log.Warn("skipping record", zap.Error(err))
	}
}

// RecordError is a per-record failure after parsing.
type RecordError struct {
	Line int
	Code string
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("line %d, code %s: %v", e.Line, e.Code, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
