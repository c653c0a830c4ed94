package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	r := New("pricesync")
	r.Parsed("FULL", 10)
	r.Created("FULL", 7)
	r.Skipped("FULL", "no_date")
	r.Skipped("FULL", "no_date")
	r.Retry("create")
	r.Archived("NET", 5, 1)
	r.Run("FULL", 3*time.Second, true)

	if got := testutil.ToFloat64(r.RecordsCreated.WithLabelValues("FULL")); got != 7 {
		t.Errorf("created = %v, want 7", got)
	}
	if got := testutil.ToFloat64(r.RecordsSkipped.WithLabelValues("FULL", "no_date")); got != 2 {
		t.Errorf("skipped = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.RunSuccess.WithLabelValues("FULL")); got != 1 {
		t.Errorf("run success = %v, want 1", got)
	}

	path := filepath.Join(t.TempDir(), "pricesync.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile error: %v", err)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(body), `pricesync_records_created_total{load_type="FULL"} 7`) {
		t.Errorf("textfile missing created counter:\n%s", body)
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.Parsed("FULL", 1)
	r.Retry("create")
	r.Run("NET", time.Second, false)
	if err := r.WriteTextfile("/nonexistent/x.prom"); err != nil {
		t.Fatalf("nil recorder must be a no-op, got %v", err)
	}
}
