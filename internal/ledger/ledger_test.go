package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dealerops/pricesync/internal/reconcile"
	"github.com/dealerops/pricesync/internal/types"
)

func openTemp(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "state", "runs.db"))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndRecent(t *testing.T) {
	l := openTemp(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)

	for i, lt := range []string{"FULL", "NET", "NET"} {
		_, err := l.Record(ctx, Run{
			LoadType:   lt,
			FileName:   "PRICE.DAT",
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
			Created:    i + 1,
			Success:    i != 1,
		})
		if err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}

	runs, err := l.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len = %d, want 2", len(runs))
	}
	if runs[0].Created != 3 || runs[1].Created != 2 {
		t.Errorf("order = %d, %d, want newest first", runs[0].Created, runs[1].Created)
	}
	if runs[1].Success || !runs[0].Success {
		t.Errorf("success flags = %v, %v", runs[0].Success, runs[1].Success)
	}
	if runs[0].ID == "" || !runs[0].StartedAt.Equal(base.Add(2*time.Hour)) {
		t.Errorf("row = %+v", runs[0])
	}
}

func TestFromResult(t *testing.T) {
	start := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	res := reconcile.Result{
		LoadType: types.LoadNet,
		Date:     start,
		Files:    []string{"/in/net/A.DAT", "/in/net/B.DAT"},
		Success:  true,
		Summary:  "ok",
		Stats:    reconcile.Stats{Lines: 10, Created: 4, Deleted: 3, Skipped: 5, Errors: 1, Duration: 90 * time.Second},
	}
	run := FromResult(res)
	if run.FileName != "A.DAT,B.DAT" || run.LoadType != "NET" {
		t.Errorf("run = %+v", run)
	}
	if run.Processed != 10 || run.Created != 4 || run.Deleted != 3 || run.Skipped != 5 || run.Errors != 1 {
		t.Errorf("counts = %+v", run)
	}
	if !run.FinishedAt.Equal(start.Add(90 * time.Second)) {
		t.Errorf("FinishedAt = %v", run.FinishedAt)
	}
	if run.ID == "" {
		t.Error("missing id")
	}

	l := openTemp(t)
	id, err := l.Record(context.Background(), run)
	if err != nil || id != run.ID {
		t.Fatalf("Record = %q, %v", id, err)
	}
}
