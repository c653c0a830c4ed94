// =============================================================================
// Price Sync - Configuration Module
// =============================================================================
//
// This module loads the main application configuration. Settings come from a
// YAML file; connection settings and secrets may also come from the
// environment (optionally via a .env file) and take precedence over YAML.
//
// CONFIGURATION SOURCES (later wins):
//   1. config.yaml
//   2. .env next to the config file, if present
//   3. Process environment: ODOO_URL, ODOO_DB, ODOO_USERNAME, ODOO_PASSWORD
//      and PRICESYNC_* overrides
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dealerops/pricesync/internal/catalog"
	"github.com/dealerops/pricesync/internal/datfile"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
type MainConfig struct {
	ERP         ERPConfig       `yaml:"erp"`
	Directories DirectoryConfig `yaml:"directories"`
	Pipeline    PipelineConfig  `yaml:"pipeline"`
	Vendor      VendorConfig    `yaml:"vendor"`
	Logging     LoggingConfig   `yaml:"logging"`
	Metrics     MetricsConfig   `yaml:"metrics"`
	Ledger      LedgerConfig    `yaml:"ledger"`
}

// =============================================================================
// ERP CONNECTION
// =============================================================================

// ERPConfig describes how to reach the ERP's XML-RPC endpoint.
type ERPConfig struct {
	// URL is the server base URL, e.g. https://erp.example.com.
	// Env: ODOO_URL
	URL string `yaml:"url"`

	// Database is the ERP database name.
	// Env: ODOO_DB
	Database string `yaml:"database"`

	// Username and Password authenticate the RPC session.
	// Env: ODOO_USERNAME, ODOO_PASSWORD
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Timeout bounds each HTTP request.
	// Default: 5m
	Timeout time.Duration `yaml:"timeout"`

	// RequestsPerSecond paces RPC calls client-side. 0 disables pacing.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// =============================================================================
// DIRECTORY SETTINGS
// =============================================================================

// DirectoryConfig lists the working directories. All are created on load.
type DirectoryConfig struct {
	// FullDir receives FULL price files.
	// Default: "./data/full"
	FullDir string `yaml:"full_dir"`

	// NetDir receives NET price files.
	// Default: "./data/net"
	NetDir string `yaml:"net_dir"`

	// ArchiveDir holds processed inputs under {TYPE}/YYYY/MM/DD.
	// Default: "./data/archive"
	ArchiveDir string `yaml:"archive_dir"`

	// BackupDir holds local copies of backup workbooks when enabled.
	// Default: "./data/backup"
	BackupDir string `yaml:"backup_dir"`

	// LogDir holds the log file and run summaries.
	// Default: "./logs"
	LogDir string `yaml:"log_dir"`

	// StateDir holds the run ledger and the matched products scratch file.
	// Default: "./state"
	StateDir string `yaml:"state_dir"`
}

// =============================================================================
// PIPELINE SETTINGS
// =============================================================================

// PipelineConfig tunes parsing, batching and archival.
type PipelineConfig struct {
	// BatchSize is the number of records per create call.
	// Env: PRICESYNC_BATCH_SIZE
	// Default: 20000
	BatchSize int `yaml:"batch_size"`

	// PageSize is the number of products per catalog page.
	// Default: 100000
	PageSize int `yaml:"page_size"`

	// IndexWorkers bounds concurrent catalog page fetches.
	// Default: 4
	IndexWorkers int `yaml:"index_workers"`

	// RenderWorkers bounds concurrent backup workbook renders.
	// Default: 5
	RenderWorkers int `yaml:"render_workers"`

	// MaxRowsPerFile caps each backup workbook.
	// Default: 200000
	MaxRowsPerFile int `yaml:"max_rows_per_file"`

	// Retries is the maximum number of rate-limit retries per create batch.
	// An explicit 0 disables retrying.
	// Default: 5
	Retries *int `yaml:"retries"`

	// DeleteRetries is the same limit for delete batches.
	// Default: 10
	DeleteRetries *int `yaml:"delete_retries"`

	// BatchPause is waited between consecutive batches.
	// Default: 1s
	BatchPause time.Duration `yaml:"batch_pause"`

	// AmbiguousTemplates is "reject" or "first".
	// Default: "reject"
	AmbiguousTemplates string `yaml:"ambiguous_templates"`

	// FilePattern selects price files inside the input directories.
	// Default: "*.DAT"
	FilePattern string `yaml:"file_pattern"`

	// Layout names the DAT revision: current, legacy or price_only.
	// Default: "current"
	Layout string `yaml:"layout"`

	// ListPriceField is the custom supplier-info field for the list price.
	// Empty omits the list price.
	// Default: "x_studio_jd_list_price"
	ListPriceField string `yaml:"list_price_field"`

	// BackupFolder is the document folder receiving backup workbooks.
	// Default: "Price File Backups"
	BackupFolder string `yaml:"backup_folder"`

	// ScopeToVendor limits deletion to the configured vendor's records.
	// Default: false
	ScopeToVendor bool `yaml:"scope_to_vendor"`

	// VerifyBackups reads every workbook back before upload.
	// Default: false
	VerifyBackups bool `yaml:"verify_backups"`

	// KeepLocalBackups writes a copy of every workbook under BackupDir.
	// Default: false
	KeepLocalBackups bool `yaml:"keep_local_backups"`
}

// VendorConfig names the ERP records every run is bound to.
type VendorConfig struct {
	// PartnerName is matched case-insensitively against res.partner.
	PartnerName string `yaml:"partner_name"`

	// CategoryName is matched against the product category's full name.
	CategoryName string `yaml:"category_name"`

	// CurrencyCode is the price currency.
	// Default: "USD"
	CurrencyCode string `yaml:"currency_code"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	// Env: PRICESYNC_LOG_LEVEL
	// Default: "info"
	Level string `yaml:"level"`

	// File is the audit log, relative to LogDir unless absolute.
	// Default: "PRICEFILE.log"
	File string `yaml:"file"`

	// Development switches to the console encoder.
	Development bool `yaml:"development"`
}

// MetricsConfig controls metric export.
type MetricsConfig struct {
	// Textfile is written after every run for node-exporter pickup.
	// Empty disables export.
	Textfile string `yaml:"textfile"`
}

// LedgerConfig locates the run history database.
type LedgerConfig struct {
	// Path is the SQLite file, relative to StateDir unless absolute.
	// Default: "runs.db"
	Path string `yaml:"path"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// LoadMainConfig loads the main configuration from a YAML file.
//
// PARAMETERS:
//   - configPath: The path to the main configuration file. A missing file is
//     allowed when the environment supplies the connection settings.
//
// RETURNS:
//   - A pointer to the MainConfig struct.
//   - An error if the file cannot be parsed or the result is invalid.
func LoadMainConfig(configPath string) (*MainConfig, error) {
	var config MainConfig

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// A .env beside the config file never overrides the real environment.
	envFile := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := applyEnvOverrides(&config); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	applyMainConfigDefaults(&config)

	if err := validateMainConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyEnvOverrides copies set environment variables over YAML values.
func applyEnvOverrides(config *MainConfig) error {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setString(&config.ERP.URL, "ODOO_URL")
	setString(&config.ERP.Database, "ODOO_DB")
	setString(&config.ERP.Username, "ODOO_USERNAME")
	setString(&config.ERP.Password, "ODOO_PASSWORD")
	setString(&config.Logging.Level, "PRICESYNC_LOG_LEVEL")
	setString(&config.Vendor.PartnerName, "PRICESYNC_VENDOR")
	setString(&config.Pipeline.Layout, "PRICESYNC_LAYOUT")

	if v := os.Getenv("PRICESYNC_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PRICESYNC_BATCH_SIZE: %w", err)
		}
		config.Pipeline.BatchSize = n
	}
	return nil
}

// applyMainConfigDefaults sets default values for any unset configuration options.
func applyMainConfigDefaults(config *MainConfig) {
	if config.ERP.Timeout == 0 {
		config.ERP.Timeout = 5 * time.Minute
	}

	d := &config.Directories
	if d.FullDir == "" {
		d.FullDir = "./data/full"
	}
	if d.NetDir == "" {
		d.NetDir = "./data/net"
	}
	if d.ArchiveDir == "" {
		d.ArchiveDir = "./data/archive"
	}
	if d.BackupDir == "" {
		d.BackupDir = "./data/backup"
	}
	if d.LogDir == "" {
		d.LogDir = "./logs"
	}
	if d.StateDir == "" {
		d.StateDir = "./state"
	}

	p := &config.Pipeline
	if p.BatchSize == 0 {
		p.BatchSize = 20000
	}
	if p.PageSize == 0 {
		p.PageSize = 100000
	}
	if p.IndexWorkers == 0 {
		p.IndexWorkers = 4
	}
	if p.RenderWorkers == 0 {
		p.RenderWorkers = 5
	}
	if p.MaxRowsPerFile == 0 {
		p.MaxRowsPerFile = 200000
	}
	if p.Retries == nil {
		p.Retries = intPtr(5)
	}
	if p.DeleteRetries == nil {
		p.DeleteRetries = intPtr(10)
	}
	if p.BatchPause == 0 {
		p.BatchPause = time.Second
	}
	if p.AmbiguousTemplates == "" {
		p.AmbiguousTemplates = string(catalog.PolicyReject)
	}
	if p.FilePattern == "" {
		p.FilePattern = "*.DAT"
	}
	if p.Layout == "" {
		p.Layout = datfile.Current.Name
	}
	if p.ListPriceField == "" {
		p.ListPriceField = "x_studio_jd_list_price"
	}
	if p.BackupFolder == "" {
		p.BackupFolder = "Price File Backups"
	}

	if config.Vendor.CurrencyCode == "" {
		config.Vendor.CurrencyCode = "USD"
	}
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.File == "" {
		config.Logging.File = "PRICEFILE.log"
	}
	if config.Ledger.Path == "" {
		config.Ledger.Path = "runs.db"
	}
}

// validateMainConfig validates the main configuration.
func validateMainConfig(config *MainConfig) error {
	p := config.Pipeline
	positive := map[string]int{
		"batch_size":        p.BatchSize,
		"page_size":         p.PageSize,
		"index_workers":     p.IndexWorkers,
		"render_workers":    p.RenderWorkers,
		"max_rows_per_file": p.MaxRowsPerFile,
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("pipeline.%s must be positive, got %d", name, v)
		}
	}
	if p.RetryLimit() < 0 || p.DeleteRetryLimit() < 0 {
		return fmt.Errorf("pipeline retries must not be negative")
	}
	if _, err := catalog.ParsePolicy(p.AmbiguousTemplates); err != nil {
		return err
	}
	if _, err := datfile.LookupLayout(p.Layout); err != nil {
		return err
	}
	if _, err := filepath.Match(p.FilePattern, ""); err != nil {
		return fmt.Errorf("pipeline.file_pattern: %w", err)
	}
	switch strings.ToLower(config.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", config.Logging.Level)
	}

	// Validate that required directories exist.
	d := config.Directories
	dirs := []string{d.FullDir, d.NetDir, d.ArchiveDir, d.BackupDir, d.LogDir, d.StateDir}
	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			// Create the directory if it doesn't exist.
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}

// RequireERP reports missing connection settings. Offline commands skip it.
func (c *MainConfig) RequireERP() error {
	var missing []string
	if c.ERP.URL == "" {
		missing = append(missing, "url (ODOO_URL)")
	}
	if c.ERP.Database == "" {
		missing = append(missing, "database (ODOO_DB)")
	}
	if c.ERP.Username == "" {
		missing = append(missing, "username (ODOO_USERNAME)")
	}
	if c.ERP.Password == "" {
		missing = append(missing, "password (ODOO_PASSWORD)")
	}
	if c.Vendor.PartnerName == "" {
		missing = append(missing, "vendor.partner_name")
	}
	if c.Vendor.CategoryName == "" {
		missing = append(missing, "vendor.category_name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// LogFilePath resolves the log file against LogDir.
func (c *MainConfig) LogFilePath() string {
	return resolve(c.Directories.LogDir, c.Logging.File)
}

// LedgerPath resolves the ledger database against StateDir.
func (c *MainConfig) LedgerPath() string {
	return resolve(c.Directories.StateDir, c.Ledger.Path)
}

// MatchesPath is the scratch file of the price update path.
func (c *MainConfig) MatchesPath() string {
	return filepath.Join(c.Directories.StateDir, "matched_products.json")
}

func resolve(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

// RetryLimit returns the create retry limit, or 0 when unset.
func (p PipelineConfig) RetryLimit() int {
	if p.Retries == nil {
		return 0
	}
	return *p.Retries
}

// DeleteRetryLimit returns the delete retry limit, or 0 when unset.
func (p PipelineConfig) DeleteRetryLimit() int {
	if p.DeleteRetries == nil {
		return 0
	}
	return *p.DeleteRetries
}

func intPtr(v int) *int { return &v }
