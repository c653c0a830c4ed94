package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dealerops/pricesync/internal/backup"
	"github.com/dealerops/pricesync/internal/catalog"
	"github.com/dealerops/pricesync/internal/config"
	"github.com/dealerops/pricesync/internal/datfile"
	"github.com/dealerops/pricesync/internal/erp"
	"github.com/dealerops/pricesync/internal/erp/erptest"
	"github.com/dealerops/pricesync/internal/ledger"
	"github.com/dealerops/pricesync/internal/metrics"
	"github.com/dealerops/pricesync/internal/reconcile"
	"github.com/dealerops/pricesync/internal/retry"
	"github.com/dealerops/pricesync/internal/types"
	"github.com/dealerops/pricesync/pkg/utils"
	"go.uber.org/zap"
)

// datLine lays out one data line in the current layout.
func datLine(code, price, start string) string {
	l := datfile.Current
	line := []byte(strings.Repeat(" ", l.StartDate.End))
	copy(line[l.Code.Start:], code)
	copy(line[l.Price.Start:], price)
	line[l.UnitPos] = 'E'
	copy(line[l.StartDate.Start:], start)
	return string(line)
}

func datHeader(effective string) string {
	return strings.Repeat(" ", datfile.Current.EffectiveDate.Start) + effective
}

func testConfig(t *testing.T) *config.MainConfig {
	t.Helper()
	root := t.TempDir()
	retries := 2
	cfg := &config.MainConfig{
		Directories: config.DirectoryConfig{
			FullDir:    filepath.Join(root, "full"),
			NetDir:     filepath.Join(root, "net"),
			ArchiveDir: filepath.Join(root, "archive"),
			BackupDir:  filepath.Join(root, "backup"),
			LogDir:     filepath.Join(root, "logs"),
			StateDir:   filepath.Join(root, "state"),
		},
		Pipeline: config.PipelineConfig{
			BatchSize:          100,
			MaxRowsPerFile:     1000,
			RenderWorkers:      2,
			Retries:            &retries,
			DeleteRetries:      &retries,
			AmbiguousTemplates: "reject",
			Layout:             "current",
			FilePattern:        "*.DAT",
			ListPriceField:     "x_list",
			BackupFolder:       "Backups",
			KeepLocalBackups:   true,
		},
		Ledger: config.LedgerConfig{Path: "runs.db"},
	}
	for _, d := range []string{cfg.Directories.FullDir, cfg.Directories.NetDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	return cfg
}

type memUploader struct{ docs []erp.Document }

func (u *memUploader) Upload(ctx context.Context, doc erp.Document) (int64, error) {
	u.docs = append(u.docs, doc)
	return int64(len(u.docs)), nil
}

func testPipeline(t *testing.T, cfg *config.MainConfig, fake *erptest.Fake, up backup.Uploader, now time.Time) *pipeline {
	t.Helper()
	led, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	t.Cleanup(func() { led.Close() })

	fm := utils.NewFileManager(cfg.Directories.FullDir, cfg.Directories.NetDir, cfg.Directories.ArchiveDir, cfg.Directories.LogDir)
	fm.Now = func() time.Time { return now }
	return &pipeline{
		cfg:      cfg,
		client:   fake,
		uploader: up,
		rc: &reconcile.Context{
			PartnerID:  3,
			CurrencyID: 2,
			Index:      catalog.NewIndex(map[string][]int64{"AA5122R": {42}}),
		},
		files:   fm,
		ledger:  led,
		metrics: metrics.New("test"),
		log:     zap.NewNop(),
		now:     func() time.Time { return now },
		policy: retry.Policy{
			Jitter: func(time.Duration) time.Duration { return 0 },
			Sleep:  func(context.Context, time.Duration) error { return nil },
		},
	}
}

func TestPipelineFullLoad(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(cfg.Directories.FullDir, "FULL.DAT")
	body := datHeader("20250101") + "\n" + datLine("AA5122R", "00000150", "") + "\n" + datLine("ZZ1", "00000200", "") + "\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	fake := erptest.New()
	fake.Seed(erp.ModelSupplierInfo, erp.Values{"product_code": "OLD"})
	up := &memUploader{}
	now := time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC)
	p := testPipeline(t, cfg, fake, up, now)

	res, err := p.load(context.Background(), types.LoadFull, []string{path})
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if res.Stats.Created != 2 || res.Stats.Deleted != 1 {
		t.Fatalf("stats = %+v", res.Stats)
	}

	// One backup uploaded to the configured folder and kept locally.
	if len(up.docs) != 1 || up.docs[0].Folder != "Backups" || up.docs[0].Tag != "FULL_PRICEFILE_BACKUP_20250102_080000" {
		t.Fatalf("uploads = %+v", up.docs)
	}
	local := filepath.Join(cfg.Directories.BackupDir, up.docs[0].Tag, up.docs[0].Name)
	if !utils.FileExists(local) {
		t.Errorf("local backup copy missing at %s", local)
	}

	// Input archived under the dated directory.
	archived := filepath.Join(cfg.Directories.ArchiveDir, "FULL", "2025", "01", "02", "FULL.DAT")
	if !utils.FileExists(archived) || utils.FileExists(path) {
		t.Errorf("input not archived to %s", archived)
	}

	// Ledger and summary written.
	runs, err := p.ledger.Recent(context.Background(), 5)
	if err != nil || len(runs) != 1 || !runs[0].Success || runs[0].Created != 2 || runs[0].FileName != "FULL.DAT" {
		t.Fatalf("ledger = %+v, %v", runs, err)
	}
	summaries, _ := filepath.Glob(filepath.Join(cfg.Directories.LogDir, "FULL_summary_*.txt"))
	if len(summaries) != 1 {
		t.Errorf("summaries = %v", summaries)
	}

	created := fake.Records(erp.ModelSupplierInfo)
	if len(created) != 2 || created[0]["product_tmpl_id"] != int64(42) || created[1]["product_tmpl_id"] != false {
		t.Errorf("records = %v", created)
	}
}

func TestPipelineFailedLoadKeepsInput(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(cfg.Directories.NetDir, "NET.DAT")
	body := datHeader("") + "\n" + datLine("AA5122R", "00000150", "20250102") + "\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	fake := erptest.New()
	fake.Inject("create", erp.ModelSupplierInfo, erp.ErrRateLimited, erp.ErrRateLimited, erp.ErrRateLimited)
	p := testPipeline(t, cfg, fake, &memUploader{}, time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC))

	res, err := p.load(context.Background(), types.LoadNet, []string{path})
	if !errors.Is(err, retry.ErrRetriesExhausted) || res.Success {
		t.Fatalf("err = %v success = %v", err, res.Success)
	}
	if !utils.FileExists(path) {
		t.Error("failed input was moved")
	}
	runs, _ := p.ledger.Recent(context.Background(), 5)
	if len(runs) != 1 || runs[0].Success {
		t.Errorf("ledger = %+v", runs)
	}
}

func TestSelectFiles(t *testing.T) {
	cfg := testConfig(t)
	fm := utils.NewFileManager(cfg.Directories.FullDir, cfg.Directories.NetDir, cfg.Directories.ArchiveDir, cfg.Directories.LogDir)
	os.WriteFile(filepath.Join(cfg.Directories.NetDir, "N1.DAT"), nil, 0644)
	os.WriteFile(filepath.Join(cfg.Directories.FullDir, "F1.DAT"), nil, 0644)

	work, err := selectFiles(fm, "all", "", "*.DAT")
	if err != nil || len(work) != 2 || work[0].loadType != types.LoadFull || work[1].loadType != types.LoadNet {
		t.Fatalf("work = %+v, %v", work, err)
	}

	work, err = selectFiles(fm, "net", "", "*.DAT")
	if err != nil || len(work) != 1 || work[0].loadType != types.LoadNet {
		t.Fatalf("net work = %+v, %v", work, err)
	}

	if _, err := selectFiles(fm, "all", filepath.Join(cfg.Directories.NetDir, "N1.DAT"), "*.DAT"); err == nil {
		t.Error("--file with all types accepted")
	}
	if _, err := selectFiles(fm, "weekly", "", "*.DAT"); err == nil {
		t.Error("unknown type accepted")
	}
}

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "NET.DAT")
	body := datHeader("20250101") + "\n" +
		datLine("A", "00000100", "20250310") + "\n" +
		datLine("B", "00000100", "") + "\n" +
		datLine("C", "1X", "20250310") + "\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	report, err := validateFile(path, types.LoadNet, datfile.Current, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("validateFile error: %v", err)
	}
	if report.Lines != 3 || report.Parsed != 2 || report.Today != 1 || len(report.Errors) != 1 || report.NoDate != 0 {
		t.Fatalf("report = %+v", report)
	}

	var out strings.Builder
	report.print(&out, 0)
	if !strings.Contains(out.String(), "Effective today: 1") || !strings.Contains(out.String(), "... 1 more") {
		t.Errorf("output = %s", out.String())
	}
}

func TestPrintVersion(t *testing.T) {
	var out strings.Builder
	printVersion(&out, "abc1234")
	got := out.String()
	if !strings.Contains(got, "rev abc1234") || !strings.Contains(got, "Layouts: current, legacy, price_only") {
		t.Errorf("version output = %q", got)
	}
	if readRevision() == "" {
		t.Error("readRevision returned an empty string")
	}
}
