// =============================================================================
// Price Sync - Batch Writer
// =============================================================================
//
// The writer splits pending records into chunks of BatchSize and submits one
// create (or unlink) call per chunk. A rate-limit fault retries the same chunk
// under the retry policy; any other error stops the submission immediately.
//
// CONSISTENCY:
//   The ERP offers no transaction spanning chunks. Whatever has been flushed
//   is durable; a failed submission reports how many records made it.
//
// =============================================================================

package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/dealerops/pricesync/internal/erp"
	"github.com/dealerops/pricesync/internal/metrics"
	"github.com/dealerops/pricesync/internal/retry"
	"go.uber.org/zap"
)

// DefaultBatchSize is the chunk size when none is configured.
const DefaultBatchSize = 20000

// Writer submits records to one ERP model.
type Writer struct {
	Client erp.Client

	// Model is the target collection. Default: product.supplierinfo.
	Model string

	// BatchSize is the number of records per call. Default: 20000.
	BatchSize int

	// Retries bounds rate-limit retries per chunk.
	Retries int

	// Pause is waited between chunks to ease server load.
	Pause time.Duration

	// Policy overrides the retry timing; Retries and Retryable are always
	// taken from the writer.
	Policy retry.Policy

	Metrics *metrics.Recorder
	Log     *zap.Logger
}

func (w *Writer) model() string {
	if w.Model == "" {
		return erp.ModelSupplierInfo
	}
	return w.Model
}

func (w *Writer) size() int {
	if w.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return w.BatchSize
}

func (w *Writer) logger() *zap.Logger {
	if w.Log == nil {
		return zap.NewNop()
	}
	return w.Log
}

func (w *Writer) policy(op string) retry.Policy {
	p := w.Policy
	p.Retries = w.Retries
	p.Retryable = erp.IsRateLimited
	log := w.logger()
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		w.Metrics.Retry(op)
		log.Warn("rate limited, retrying chunk",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
	return p
}

// Create submits records in chunks and returns the number created. On error
// the count covers the chunks that succeeded before the failure.
func (w *Writer) Create(ctx context.Context, records []erp.Values) (int, error) {
	size := w.size()
	created := 0
	chunks := (len(records) + size - 1) / size

	for i := 0; i < len(records); i += size {
		end := i + size
		if end > len(records) {
			end = len(records)
		}
		chunk := records[i:end]

		err := retry.Do(ctx, w.policy("create"), func(ctx context.Context) error {
			_, err := w.Client.Create(ctx, w.model(), chunk)
			return err
		})
		if err != nil {
			return created, fmt.Errorf("create chunk %d/%d (%d records): %w", i/size+1, chunks, len(chunk), err)
		}
		created += len(chunk)
		w.logger().Info("chunk created",
			zap.String("model", w.model()),
			zap.Int("chunk", i/size+1),
			zap.Int("chunks", chunks),
			zap.Int("records", len(chunk)),
		)

		if end < len(records) {
			if err := w.pause(ctx); err != nil {
				return created, err
			}
		}
	}
	return created, nil
}

// Delete unlinks ids in chunks and returns the number removed.
func (w *Writer) Delete(ctx context.Context, ids []int64) (int, error) {
	size := w.size()
	deleted := 0
	chunks := (len(ids) + size - 1) / size

	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[i:end]

		err := retry.Do(ctx, w.policy("unlink"), func(ctx context.Context) error {
			ok, err := w.Client.Unlink(ctx, w.model(), chunk)
			if err == nil && !ok {
				return fmt.Errorf("unlink returned false")
			}
			return err
		})
		if err != nil {
			return deleted, fmt.Errorf("unlink chunk %d/%d (%d ids): %w", i/size+1, chunks, len(chunk), err)
		}
		deleted += len(chunk)
		w.logger().Info("chunk deleted",
			zap.String("model", w.model()),
			zap.Int("chunk", i/size+1),
			zap.Int("chunks", chunks),
			zap.Int("records", len(chunk)),
		)
	}
	return deleted, nil
}

func (w *Writer) pause(ctx context.Context) error {
	if w.Pause <= 0 {
		return nil
	}
	sleep := w.Policy.Sleep
	if sleep == nil {
		t := time.NewTimer(w.Pause)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
	return sleep(ctx, w.Pause)
}
