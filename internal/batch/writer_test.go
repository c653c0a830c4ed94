package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dealerops/pricesync/internal/erp"
	"github.com/dealerops/pricesync/internal/erp/erptest"
	"github.com/dealerops/pricesync/internal/retry"
)

func records(n int) []erp.Values {
	out := make([]erp.Values, n)
	for i := range out {
		out[i] = erp.Values{"product_code": "P", "price": 1.0}
	}
	return out
}

// noWait records delays instead of sleeping.
func noWait(delays *[]time.Duration) retry.Policy {
	return retry.Policy{
		Jitter: func(time.Duration) time.Duration { return 500 * time.Millisecond },
		Sleep: func(_ context.Context, d time.Duration) error {
			*delays = append(*delays, d)
			return nil
		},
	}
}

func TestCreateChunks(t *testing.T) {
	fake := erptest.New()
	var delays []time.Duration
	const size = 10
	w := &Writer{Client: fake, BatchSize: size, Retries: 3, Pause: time.Second, Policy: noWait(&delays)}

	n, err := w.Create(context.Background(), records(size*3+7))
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if n != size*3+7 {
		t.Fatalf("created = %d, want %d", n, size*3+7)
	}
	calls := fake.Calls("create", erp.ModelSupplierInfo)
	if len(calls) != 4 {
		t.Fatalf("create calls = %d, want 4", len(calls))
	}
	for i, want := range []int{size, size, size, 7} {
		if got := len(calls[i].Values); got != want {
			t.Errorf("chunk %d size = %d, want %d", i, got, want)
		}
	}
	// Pauses fall between chunks only.
	if len(delays) != 3 {
		t.Errorf("pauses = %d, want 3", len(delays))
	}
	if got := fake.Count(erp.ModelSupplierInfo); got != size*3+7 {
		t.Errorf("stored = %d, want %d", got, size*3+7)
	}
}

func TestCreateRetriesRateLimit(t *testing.T) {
	fake := erptest.New()
	fake.Inject("create", erp.ModelSupplierInfo, erp.ErrRateLimited, erp.ErrRateLimited, erp.ErrRateLimited)
	var delays []time.Duration
	w := &Writer{Client: fake, BatchSize: 100, Retries: 5, Policy: noWait(&delays)}

	n, err := w.Create(context.Background(), records(10))
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if n != 10 {
		t.Fatalf("created = %d, want 10", n)
	}
	if got := fake.Succeeded("create", erp.ModelSupplierInfo); got != 1 {
		t.Fatalf("successful create calls = %d, want 1", got)
	}
	want := []time.Duration{2500 * time.Millisecond, 4500 * time.Millisecond, 8500 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestCreateExhaustedRetries(t *testing.T) {
	fake := erptest.New()
	fake.Inject("create", erp.ModelSupplierInfo, erp.ErrRateLimited, erp.ErrRateLimited, erp.ErrRateLimited)
	var delays []time.Duration
	w := &Writer{Client: fake, BatchSize: 100, Retries: 2, Policy: noWait(&delays)}

	n, err := w.Create(context.Background(), records(3))
	if !errors.Is(err, retry.ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}
	if erp.IsRateLimited(err) {
		t.Fatal("rate-limit fault leaked to the caller")
	}
	if n != 0 || fake.Count(erp.ModelSupplierInfo) != 0 {
		t.Fatalf("created = %d stored = %d, want 0", n, fake.Count(erp.ModelSupplierInfo))
	}
}

func TestCreateDoesNotRetryOtherErrors(t *testing.T) {
	fake := erptest.New()
	boom := errors.New("access denied")
	fake.Inject("create", erp.ModelSupplierInfo, boom)
	var delays []time.Duration
	w := &Writer{Client: fake, BatchSize: 2, Retries: 5, Policy: noWait(&delays)}

	n, err := w.Create(context.Background(), records(4))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if n != 0 || len(fake.Calls("create", "")) != 1 || len(delays) != 0 {
		t.Fatalf("n = %d calls = %d delays = %d", n, len(fake.Calls("create", "")), len(delays))
	}
}

func TestDelete(t *testing.T) {
	fake := erptest.New()
	ids := fake.Seed(erp.ModelSupplierInfo, records(7)...)
	fake.Inject("unlink", erp.ModelSupplierInfo, erp.ErrRateLimited)
	var delays []time.Duration
	w := &Writer{Client: fake, BatchSize: 3, Retries: 2, Policy: noWait(&delays)}

	n, err := w.Delete(context.Background(), ids)
	if err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if n != 7 || fake.Count(erp.ModelSupplierInfo) != 0 {
		t.Fatalf("deleted = %d remaining = %d", n, fake.Count(erp.ModelSupplierInfo))
	}
	if got := fake.Succeeded("unlink", erp.ModelSupplierInfo); got != 3 {
		t.Fatalf("successful unlink calls = %d, want 3", got)
	}
	if len(delays) != 1 {
		t.Fatalf("delays = %d, want 1", len(delays))
	}
}
