// =============================================================================
// Price Sync - Validate Command
// =============================================================================
//
// Parses every discovered price file with the configured layout and reports
// what a load would do with each line. The ERP is never contacted.
//
// COMMAND USAGE:
//   pricesync validate [--type full|net|all] [--file path] [--max-errors n]
//
// =============================================================================

package cmd

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dealerops/pricesync/internal/datfile"
	"github.com/dealerops/pricesync/internal/types"
	"github.com/dealerops/pricesync/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// maxErrors bounds the field errors printed per file.
var maxErrors int

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse price files without loading them",
	Long: `The validate command parses every price file the process command would load
and prints, per file, the number of parsed lines, lines without a usable date,
NET lines effective today and malformed lines.

It exits with a non-zero status when any file has malformed lines.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appConfig
		fm := utils.NewFileManager(cfg.Directories.FullDir, cfg.Directories.NetDir,
			cfg.Directories.ArchiveDir, cfg.Directories.LogDir)
		layout, err := datfile.LookupLayout(cfg.Pipeline.Layout)
		if err != nil {
			return err
		}

		work, err := selectFiles(fm, loadTypeFlag, filePath, cfg.Pipeline.FilePattern)
		if err != nil {
			return err
		}
		if len(work) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No price files found.")
			return nil
		}

		bad := 0
		for _, w := range work {
			for _, f := range w.files {
				report, err := validateFile(f, w.loadType, layout, time.Now())
				if err != nil {
					return err
				}
				report.print(cmd.OutOrStdout(), maxErrors)
				logger.Info("price file validated",
					zap.String("file", filepath.Base(f)),
					zap.Int("parsed", report.Parsed),
					zap.Int("errors", len(report.Errors)))
				if len(report.Errors) > 0 {
					bad++
				}
			}
		}
		if bad > 0 {
			return fmt.Errorf("%d file(s) contain malformed lines", bad)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&loadTypeFlag, "type", "all", "Load type to validate: full, net or all")
	validateCmd.Flags().StringVar(&filePath, "file", "", "Path to a specific price file (requires --type full or net)")
	validateCmd.Flags().IntVar(&maxErrors, "max-errors", 20, "Field errors to print per file")
}

// fileReport is the outcome of parsing one file.
type fileReport struct {
	File      string
	LoadType  types.LoadType
	Effective time.Time
	Lines     int
	Parsed    int
	NoDate    int
	Today     int
	Errors    []*datfile.FieldError
}

// validateFile parses path and classifies each line as a load of lt would.
func validateFile(path string, lt types.LoadType, layout datfile.Layout, now time.Time) (fileReport, error) {
	r, err := datfile.Open(path, layout)
	if err != nil {
		return fileReport{}, err
	}
	defer r.Close()

	report := fileReport{File: filepath.Base(path), LoadType: lt, Effective: r.EffectiveDate()}
	ny, nm, nd := now.Date()
	for r.Next() {
		report.Lines++
		rec, err := r.Record()
		if err != nil {
			var fe *datfile.FieldError
			if errors.As(err, &fe) {
				report.Errors = append(report.Errors, fe)
				continue
			}
			return report, err
		}
		report.Parsed++
		if !rec.HasStartDate() {
			report.NoDate++
			continue
		}
		if y, m, d := rec.StartDate.Date(); y == ny && m == nm && d == nd {
			report.Today++
		}
	}
	return report, r.Err()
}

func (r fileReport) print(w io.Writer, limit int) {
	effective := "none"
	if !r.Effective.IsZero() {
		effective = r.Effective.Format(types.DateLayout)
	}
	fmt.Fprintf(w, "%s (%s, effective %s)\n", r.File, r.LoadType, effective)
	fmt.Fprintf(w, "  Lines:          %d\n", r.Lines)
	fmt.Fprintf(w, "  Parsed:         %d\n", r.Parsed)
	fmt.Fprintf(w, "  Without date:   %d\n", r.NoDate)
	if r.LoadType == types.LoadNet {
		fmt.Fprintf(w, "  Effective today: %d\n", r.Today)
	}
	fmt.Fprintf(w, "  Malformed:      %d\n", len(r.Errors))
	for i, fe := range r.Errors {
		if i == limit {
			fmt.Fprintf(w, "    ... %d more\n", len(r.Errors)-limit)
			break
		}
		fmt.Fprintf(w, "    %v\n", fe)
	}
}
