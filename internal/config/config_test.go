package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func dirsYAML(root string) string {
	return `directories:
  full_dir: ` + filepath.Join(root, "full") + `
  net_dir: ` + filepath.Join(root, "net") + `
  archive_dir: ` + filepath.Join(root, "archive") + `
  backup_dir: ` + filepath.Join(root, "backup") + `
  log_dir: ` + filepath.Join(root, "logs") + `
  state_dir: ` + filepath.Join(root, "state") + `
`
}

func TestLoadMainConfigDefaults(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, root, dirsYAML(root)+`
erp:
  url: https://erp.example.com
  database: prod
vendor:
  partner_name: Acme Parts
  category_name: Acme
pipeline:
  batch_pause: 250ms
`)

	cfg, err := LoadMainConfig(path)
	if err != nil {
		t.Fatalf("LoadMainConfig error: %v", err)
	}

	p := cfg.Pipeline
	if p.BatchSize != 20000 || p.PageSize != 100000 || p.IndexWorkers != 4 || p.RenderWorkers != 5 {
		t.Errorf("sizes = %+v", p)
	}
	if p.MaxRowsPerFile != 200000 || p.RetryLimit() != 5 || p.DeleteRetryLimit() != 10 {
		t.Errorf("limits = %+v", p)
	}
	if p.BatchPause != 250*time.Millisecond {
		t.Errorf("BatchPause = %v, want 250ms", p.BatchPause)
	}
	if p.AmbiguousTemplates != "reject" || p.Layout != "current" || p.FilePattern != "*.DAT" {
		t.Errorf("policy/layout/pattern = %q %q %q", p.AmbiguousTemplates, p.Layout, p.FilePattern)
	}
	if cfg.Vendor.CurrencyCode != "USD" || cfg.Logging.Level != "info" {
		t.Errorf("vendor/logging = %+v %+v", cfg.Vendor, cfg.Logging)
	}
	if cfg.ERP.Timeout != 5*time.Minute {
		t.Errorf("Timeout = %v", cfg.ERP.Timeout)
	}
	if got, want := cfg.LogFilePath(), filepath.Join(root, "logs", "PRICEFILE.log"); got != want {
		t.Errorf("LogFilePath = %q, want %q", got, want)
	}
	if got, want := cfg.LedgerPath(), filepath.Join(root, "state", "runs.db"); got != want {
		t.Errorf("LedgerPath = %q, want %q", got, want)
	}
	for _, d := range []string{"full", "net", "archive", "backup", "logs", "state"} {
		if fi, err := os.Stat(filepath.Join(root, d)); err != nil || !fi.IsDir() {
			t.Errorf("directory %s not created: %v", d, err)
		}
	}
}

func TestLoadMainConfigEnvOverrides(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, root, dirsYAML(root)+`
erp:
  url: https://yaml.example.com
  password: from-yaml
pipeline:
  batch_size: 500
`)
	t.Setenv("ODOO_URL", "https://env.example.com")
	t.Setenv("ODOO_PASSWORD", "from-env")
	t.Setenv("PRICESYNC_BATCH_SIZE", "1000")
	t.Setenv("PRICESYNC_LOG_LEVEL", "debug")

	cfg, err := LoadMainConfig(path)
	if err != nil {
		t.Fatalf("LoadMainConfig error: %v", err)
	}
	if cfg.ERP.URL != "https://env.example.com" || cfg.ERP.Password != "from-env" {
		t.Errorf("erp = %+v, want environment values", cfg.ERP)
	}
	if cfg.Pipeline.BatchSize != 1000 || cfg.Logging.Level != "debug" {
		t.Errorf("batch=%d level=%q", cfg.Pipeline.BatchSize, cfg.Logging.Level)
	}
}

func TestLoadMainConfigDotEnv(t *testing.T) {
	if _, ok := os.LookupEnv("ODOO_DB"); ok {
		t.Skip("ODOO_DB is set in the test environment")
	}
	t.Cleanup(func() { os.Unsetenv("ODOO_DB") })

	root := t.TempDir()
	path := writeConfig(t, root, dirsYAML(root))
	if err := os.WriteFile(filepath.Join(root, ".env"), []byte("ODOO_DB=from_dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadMainConfig(path)
	if err != nil {
		t.Fatalf("LoadMainConfig error: %v", err)
	}
	if cfg.ERP.Database != "from_dotenv" {
		t.Errorf("Database = %q, want from_dotenv", cfg.ERP.Database)
	}
}

func TestLoadMainConfigMissingFileUsesDefaults(t *testing.T) {
	wd, _ := os.Getwd()
	root := t.TempDir()
	if err := os.Chdir(root); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := LoadMainConfig(filepath.Join(root, "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadMainConfig error: %v", err)
	}
	if cfg.Directories.FullDir != "./data/full" {
		t.Errorf("FullDir = %q", cfg.Directories.FullDir)
	}
}

func TestLoadMainConfigZeroRetries(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, root, dirsYAML(root)+`
pipeline:
  retries: 0
`)

	cfg, err := LoadMainConfig(path)
	if err != nil {
		t.Fatalf("LoadMainConfig error: %v", err)
	}
	if got := cfg.Pipeline.RetryLimit(); got != 0 {
		t.Errorf("RetryLimit = %d, want 0", got)
	}
	if got := cfg.Pipeline.DeleteRetryLimit(); got != 10 {
		t.Errorf("DeleteRetryLimit = %d, want default 10", got)
	}
}

func TestLoadMainConfigInvalid(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"policy", "pipeline:\n  ambiguous_templates: newest\n", "ambiguous"},
		{"layout", "pipeline:\n  layout: v9\n", "layout"},
		{"workers", "pipeline:\n  index_workers: -1\n", "index_workers"},
		{"level", "logging:\n  level: loud\n", "logging.level"},
		{"retries", "pipeline:\n  delete_retries: -1\n", "retries"},
		{"yaml", "pipeline: [\n", "parse"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			path := writeConfig(t, root, dirsYAML(root)+tc.body)
			_, err := LoadMainConfig(path)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestRequireERP(t *testing.T) {
	cfg := &MainConfig{ERP: ERPConfig{URL: "https://erp", Database: "db"}}
	err := cfg.RequireERP()
	if err == nil {
		t.Fatal("expected missing settings")
	}
	for _, want := range []string{"ODOO_USERNAME", "ODOO_PASSWORD", "vendor.partner_name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q lacks %q", err, want)
		}
	}

	cfg.ERP.Username, cfg.ERP.Password = "u", "p"
	cfg.Vendor = VendorConfig{PartnerName: "Acme", CategoryName: "Acme"}
	if err := cfg.RequireERP(); err != nil {
		t.Fatalf("RequireERP = %v", err)
	}
}
