// =============================================================================
// Price Sync - File Manager Utility
// =============================================================================
//
// This module provides file management utilities for the pipeline, including:
//   - Price file discovery per load type
//   - Input archival into dated subdirectories
//   - Run summary files
//
// ARCHIVAL STRATEGY:
//   - Input files are moved to archive_dir/{TYPE}/YYYY/MM/DD after a
//     successful run
//   - Failed files remain in their original location for the next attempt
//   - A name clash in the archive gets a short unique suffix
//
// =============================================================================

package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dealerops/pricesync/internal/types"
	"github.com/google/uuid"
)

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles file operations for price files.
type FileManager struct {
	// FullDir and NetDir are scanned for FULL and NET files.
	FullDir string
	NetDir  string

	// ArchiveDir receives processed inputs.
	ArchiveDir string

	// SummaryDir receives run summary files.
	SummaryDir string

	// Now is the clock for dated paths. Default: time.Now.
	Now func() time.Time
}

// NewFileManager creates a new FileManager with the specified directories.
func NewFileManager(fullDir, netDir, archiveDir, summaryDir string) *FileManager {
	return &FileManager{
		FullDir:    fullDir,
		NetDir:     netDir,
		ArchiveDir: archiveDir,
		SummaryDir: summaryDir,
		Now:        time.Now,
	}
}

func (fm *FileManager) now() time.Time {
	if fm.Now == nil {
		return time.Now()
	}
	return fm.Now()
}

// InputDir returns the directory scanned for loadType.
func (fm *FileManager) InputDir(loadType types.LoadType) string {
	if loadType == types.LoadFull {
		return fm.FullDir
	}
	return fm.NetDir
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverPriceFiles scans the load type's directory for files matching the
// pattern.
//
// PARAMETERS:
//   - loadType: Selects FullDir or NetDir.
//   - pattern: A glob pattern to match files. If empty, defaults to "*.DAT".
//     The match ignores case so vendor deliveries named *.dat are found too.
//
// RETURNS:
//   - File paths sorted by name.
//   - An error if the directory cannot be read.
func (fm *FileManager) DiscoverPriceFiles(loadType types.LoadType, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*.DAT"
	}
	dir := fm.InputDir(loadType)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	lower := strings.ToLower(pattern)
	var result []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ok, err := filepath.Match(lower, strings.ToLower(e.Name()))
		if err != nil {
			return nil, fmt.Errorf("invalid file pattern %q: %w", pattern, err)
		}
		if ok {
			result = append(result, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(result)
	return result, nil
}

// =============================================================================
// FILE ARCHIVAL
// =============================================================================

// ArchiveInputFile moves a processed price file into the dated archive.
//
// PARAMETERS:
//   - loadType: The first path segment under ArchiveDir.
//   - filePath: The path to the file to archive.
//
// RETURNS:
//   - The path to the archived file.
//   - An error if archival fails.
func (fm *FileManager) ArchiveInputFile(loadType types.LoadType, filePath string) (string, error) {
	archivePath := fm.archivePath(loadType, filePath)

	// Ensure the archive directory exists.
	if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	// Never overwrite an earlier delivery with the same name.
	if FileExists(archivePath) {
		ext := filepath.Ext(archivePath)
		archivePath = strings.TrimSuffix(archivePath, ext) + "_" + uuid.NewString()[:8] + ext
	}

	// Move the file.
	if err := os.Rename(filePath, archivePath); err != nil {
		// If rename fails (e.g., cross-device), try copy and delete.
		if err := copyFile(filePath, archivePath); err != nil {
			return "", fmt.Errorf("failed to copy file to archive: %w", err)
		}
		if err := os.Remove(filePath); err != nil {
			return "", fmt.Errorf("failed to remove original file: %w", err)
		}
	}

	return archivePath, nil
}

// archivePath constructs archive_dir/{TYPE}/YYYY/MM/DD/<name>.
func (fm *FileManager) archivePath(loadType types.LoadType, filePath string) string {
	now := fm.now()
	return filepath.Join(
		fm.ArchiveDir,
		string(loadType),
		fmt.Sprintf("%d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()),
		filepath.Base(filePath),
	)
}

// =============================================================================
// RUN SUMMARY
// =============================================================================

// RunSummary contains summary information about one load.
type RunSummary struct {
	LoadType  types.LoadType
	StartTime time.Time
	EndTime   time.Time
	Success   bool
	Message   string

	Files     []string
	Lines     int
	Created   int
	Deleted   int
	Skipped   int
	Errors    int
	Unmatched int

	// BackupTag and BackupFiles describe the archive pass, if any.
	BackupTag   string
	BackupFiles []string
}

// WriteSummaryLog writes a run summary to a text file.
//
// PARAMETERS:
//   - summary: The run summary.
//
// RETURNS:
//   - The path to the summary file.
//   - An error if writing fails.
func (fm *FileManager) WriteSummaryLog(summary RunSummary) (string, error) {
	if err := os.MkdirAll(fm.SummaryDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create summary directory: %w", err)
	}

	// Generate summary file name.
	timestamp := summary.StartTime.Format("20060102_150405")
	summaryFileName := fmt.Sprintf("%s_summary_%s.txt", summary.LoadType, timestamp)
	summaryPath := filepath.Join(fm.SummaryDir, summaryFileName)

	// Create the file.
	file, err := os.Create(summaryPath)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	status := "SUCCESS"
	if !summary.Success {
		status = "FAILED"
	}

	// Write header.
	duration := summary.EndTime.Sub(summary.StartTime)
	header := fmt.Sprintf("Price Sync - %s Run Summary\n"+
		"================================================================================\n\n"+
		"Run Information:\n"+
		"  Status:         %s\n"+
		"  Start Time:     %s\n"+
		"  End Time:       %s\n"+
		"  Duration:       %s\n\n"+
		"Statistics:\n"+
		"  Lines Read:         %d\n"+
		"  Records Created:    %d\n"+
		"  Records Deleted:    %d\n"+
		"  Skipped:            %d\n"+
		"  Errors:             %d\n"+
		"  Without Template:   %d\n\n",
		summary.LoadType,
		status,
		summary.StartTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Format("2006-01-02 15:04:05"),
		duration.String(),
		summary.Lines,
		summary.Created,
		summary.Deleted,
		summary.Skipped,
		summary.Errors,
		summary.Unmatched)
	writer.WriteString(header)

	if len(summary.Files) > 0 {
		writer.WriteString("Price Files:\n")
		writer.WriteString("--------------------------------------------------------------------------------\n")
		for _, f := range summary.Files {
			writer.WriteString(fmt.Sprintf("  %s\n", f))
		}
		writer.WriteString("\n")
	}

	if summary.BackupTag != "" {
		writer.WriteString(fmt.Sprintf("Backup: %s\n", summary.BackupTag))
		writer.WriteString("--------------------------------------------------------------------------------\n")
		for _, f := range summary.BackupFiles {
			writer.WriteString(fmt.Sprintf("  %s\n", f))
		}
		writer.WriteString("\n")
	}

	writer.WriteString(fmt.Sprintf("Message:\n  %s\n\n", summary.Message))

	// Write footer.
	footer := "================================================================================\n" +
		"End of Summary\n"
	writer.WriteString(footer)

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush summary file: %w", err)
	}

	return summaryPath, nil
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	_, err = io.Copy(destFile, sourceFile)
	if err != nil {
		return err
	}

	return destFile.Sync()
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
