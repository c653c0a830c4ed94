// =============================================================================
// Price Sync - Version Command
// =============================================================================
//
// Prints the release, the VCS revision the binary was built from and the DAT
// layouts it can read, so an operator can match a run's behaviour to a build.
//
// COMMAND USAGE:
//   pricesync version
//
// OUTPUT:
//   pricesync 1.4.0 (rev 3f2c9a1, built 2025-06-30)
//   Go:      go1.24.11 linux/amd64
//   Layouts: current, legacy, price_only
//
// =============================================================================

package cmd

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/dealerops/pricesync/internal/datfile"
	"github.com/spf13/cobra"
)

// Release stamping for CI builds:
//   go build -ldflags "-X github.com/dealerops/pricesync/cmd.Version=1.4.0 -X github.com/dealerops/pricesync/cmd.BuildDate=$(date +%F)"
var (
	Version   = "dev"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the release, source revision and supported DAT layouts",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd.OutOrStdout(), readRevision())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func printVersion(w io.Writer, rev string) {
	fmt.Fprintf(w, "pricesync %s (rev %s, built %s)\n", Version, rev, BuildDate)
	fmt.Fprintf(w, "Go:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(w, "Layouts: %s\n", strings.Join(datfile.LayoutNames(), ", "))
}

// readRevision returns the short VCS revision embedded by the go tool,
// suffixed with "-dirty" for builds from a modified tree.
func readRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	rev, dirty := "", false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return "unknown"
	}
	if len(rev) > 7 {
		rev = rev[:7]
	}
	if dirty {
		rev += "-dirty"
	}
	return rev
}
