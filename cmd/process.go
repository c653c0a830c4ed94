// =============================================================================
// Price Sync - Process Command
// =============================================================================
//
// This file defines the 'process' command, the main command that loads price
// files into the ERP. It orchestrates the entire pipeline.
//
// COMMAND USAGE:
//   pricesync process [flags]
//
// FLAGS:
//   --type        : full, net or all (default all)
//   --file        : Load one specific file (requires --type full or net)
//
// PROCESSING PIPELINE:
//   1. Discover price files in the FULL and NET directories
//   2. Connect to the ERP and resolve vendor, category and currency
//   3. Build the catalog index once
//   4. For each load type with files (FULL before NET):
//      a. Run the reconciliation engine over the files
//      b. Record the run in the ledger and write a summary file
//      c. Archive the inputs on success
//   5. Export metrics
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dealerops/pricesync/internal/erp"
	"github.com/dealerops/pricesync/internal/ledger"
	"github.com/dealerops/pricesync/internal/metrics"
	"github.com/dealerops/pricesync/internal/types"
	"github.com/dealerops/pricesync/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// loadTypeFlag selects which directories are processed.
var loadTypeFlag string

// filePath is the path to a specific file to process.
var filePath string

// =============================================================================
// PROCESS COMMAND DEFINITION
// =============================================================================

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Load price files into the ERP",
	Long: `The process command scans the FULL and NET directories for price files and
reconciles them against the ERP's vendor price records.

FULL files are processed before NET files. The ERP connection, vendor lookup
and catalog index are shared by both.

On success:
  - The run is recorded in the ledger
  - A summary file is written to the log directory
  - The price files are moved to archive_dir/{TYPE}/YYYY/MM/DD

On error:
  - The price files remain in place for the next attempt
  - The command exits with a non-zero status`,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runProcess(ctx)
	},
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVar(
		&loadTypeFlag,
		"type",
		"all",
		"Load type to process: full, net or all",
	)

	processCmd.Flags().StringVar(
		&filePath,
		"file",
		"",
		"Path to a specific price file (requires --type full or net)",
	)
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

func runProcess(ctx context.Context) error {
	cfg := appConfig
	log := logger
	startTime := time.Now()

	// =========================================================================
	// STEP 1: DISCOVER INPUT FILES
	// =========================================================================

	fm := utils.NewFileManager(cfg.Directories.FullDir, cfg.Directories.NetDir,
		cfg.Directories.ArchiveDir, cfg.Directories.LogDir)

	work, err := selectFiles(fm, loadTypeFlag, filePath, cfg.Pipeline.FilePattern)
	if err != nil {
		return err
	}
	if len(work) == 0 {
		log.Info("no price files found",
			zap.String("full_dir", cfg.Directories.FullDir),
			zap.String("net_dir", cfg.Directories.NetDir))
		return nil
	}

	// =========================================================================
	// STEP 2: CONNECT AND BUILD THE CATALOG INDEX
	// =========================================================================

	rec := metrics.New(metricsNamespace)
	client, rc, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := buildCatalog(ctx, cfg, client, rc, rec, log); err != nil {
		return err
	}

	led, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		log.Warn("run ledger unavailable", zap.Error(err))
		led = nil
	} else {
		defer led.Close()
	}

	p := &pipeline{
		cfg:      cfg,
		client:   client,
		uploader: erp.NewDocumentStore(client, log),
		rc:       rc,
		files:    fm,
		ledger:   led,
		metrics:  rec,
		log:      log,
	}

	// =========================================================================
	// STEP 3: RUN EACH LOAD TYPE
	// =========================================================================

	var failed []string
	for _, w := range work {
		res, err := p.load(ctx, w.loadType, w.files)
		fmt.Println(res.Summary)
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", w.loadType, err))
		}
		if ctx.Err() != nil {
			break
		}
	}

	// =========================================================================
	// STEP 4: EXPORT METRICS
	// =========================================================================

	if path := cfg.Metrics.Textfile; path != "" {
		if err := rec.WriteTextfile(path); err != nil {
			log.Warn("failed to write metrics textfile", zap.String("path", path), zap.Error(err))
		}
	}

	log.Info("processing complete",
		zap.Int("load_types", len(work)),
		zap.Int("failed", len(failed)),
		zap.Duration("elapsed", time.Since(startTime)))

	if len(failed) > 0 {
		return fmt.Errorf("%d load(s) failed: %s", len(failed), strings.Join(failed, "; "))
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// loadWork is the file set of one load type.
type loadWork struct {
	loadType types.LoadType
	files    []string
}

// selectFiles resolves the --type and --file flags into ordered work.
//
// RETURNS:
//   - FULL work before NET work; load types without files are omitted.
//   - An error for an unknown type or a --file without a concrete type.
func selectFiles(fm *utils.FileManager, typeFlag, file, pattern string) ([]loadWork, error) {
	var loadTypes []types.LoadType
	if strings.EqualFold(typeFlag, "all") || typeFlag == "" {
		loadTypes = []types.LoadType{types.LoadFull, types.LoadNet}
	} else {
		lt, err := types.ParseLoadType(typeFlag)
		if err != nil {
			return nil, err
		}
		loadTypes = []types.LoadType{lt}
	}

	if file != "" {
		if len(loadTypes) != 1 {
			return nil, fmt.Errorf("--file requires --type full or net")
		}
		if !utils.FileExists(file) {
			return nil, fmt.Errorf("price file %s does not exist", file)
		}
		abs, err := filepath.Abs(file)
		if err != nil {
			return nil, err
		}
		return []loadWork{{loadType: loadTypes[0], files: []string{abs}}}, nil
	}

	var work []loadWork
	for _, lt := range loadTypes {
		files, err := fm.DiscoverPriceFiles(lt, pattern)
		if err != nil {
			return nil, err
		}
		if len(files) > 0 {
			work = append(work, loadWork{loadType: lt, files: files})
		}
	}
	return work, nil
}
