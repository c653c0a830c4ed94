// =============================================================================
// Price Sync - Main Entry Point
// =============================================================================
//
// This is the main entry point for the pricesync CLI. It delegates command
// execution to the cmd package.
//
// USAGE:
//   pricesync process         - Load FULL and NET price files into the ERP
//   pricesync validate        - Parse price files without contacting the ERP
//   pricesync update-prices   - Write staged prices onto existing records
//   pricesync history         - Show recent runs
//   pricesync version         - Display the application version
//
// ARCHITECTURE:
//   - cmd/           : CLI command definitions (Cobra)
//   - internal/      : Parsing, catalog, reconciliation, backup and ERP access
//   - pkg/           : Shared file utilities
//
// =============================================================================

package main

import (
	"github.com/dealerops/pricesync/cmd"
)

func main() {
	cmd.Execute()
}
