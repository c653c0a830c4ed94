// =============================================================================
// Price Sync - Update Prices Command
// =============================================================================
//
// The narrow price path: stage code and price pairs from a price file into
// matched_products.json, then write those prices onto the vendor's existing
// supplier-info rows. No record is created, backed up or deleted.
//
// COMMAND USAGE:
//   pricesync update-prices --file PRICE.DAT            # stage and apply
//   pricesync update-prices --file PRICE.DAT --stage-only --append
//   pricesync update-prices                             # apply what is staged
//
// =============================================================================

package cmd

import (
	"fmt"

	"github.com/dealerops/pricesync/internal/catalog"
	"github.com/dealerops/pricesync/internal/datfile"
	"github.com/dealerops/pricesync/internal/metrics"
	"github.com/dealerops/pricesync/internal/priceupdate"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// stageFile is parsed into the scratch file before applying.
	stageFile string

	// appendStaged keeps earlier staged entries.
	appendStaged bool

	// stageOnly stops after staging.
	stageOnly bool
)

var pricesCmd = &cobra.Command{
	Use:   "update-prices",
	Short: "Write staged prices onto existing vendor price records",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appConfig
		log := logger.With(zap.String("path", cfg.MatchesPath()))

		if stageFile != "" {
			matches, bad, err := priceupdate.ParseFile(stageFile, datfile.PriceOnly)
			if err != nil {
				return err
			}
			for _, e := range bad {
				log.Warn("skipping malformed line", zap.Error(e))
			}
			if err := priceupdate.WriteMatches(cfg.MatchesPath(), matches, appendStaged); err != nil {
				return err
			}
			log.Info("prices staged", zap.Int("matches", len(matches)), zap.Bool("append", appendStaged))
		}
		if stageOnly {
			return nil
		}

		matches, err := priceupdate.LoadMatches(cfg.MatchesPath())
		if err != nil {
			return fmt.Errorf("no staged prices: %w", err)
		}

		ctx := cmd.Context()
		rec := metrics.New(metricsNamespace)
		client, rc, err := connect(ctx, cfg, logger)
		if err != nil {
			return err
		}
		if err := buildCatalog(ctx, cfg, client, rc, rec, logger); err != nil {
			return err
		}
		policy, err := catalog.ParsePolicy(cfg.Pipeline.AmbiguousTemplates)
		if err != nil {
			return err
		}

		u := &priceupdate.Updater{
			Client:    client,
			Context:   rc,
			Ambiguous: policy,
			Retries:   cfg.Pipeline.RetryLimit(),
			Metrics:   rec,
			Log:       logger,
		}
		res, err := u.Apply(ctx, matches)
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %d product(s) across %d row(s); %d missing, %d invalid.\n",
			res.Updated, res.Rows, res.Missing, res.Invalid)
		return err
	},
}

func init() {
	rootCmd.AddCommand(pricesCmd)

	pricesCmd.Flags().StringVar(&stageFile, "file", "", "Price file to stage before applying")
	pricesCmd.Flags().BoolVar(&appendStaged, "append", false, "Append to the staged prices instead of replacing them")
	pricesCmd.Flags().BoolVar(&stageOnly, "stage-only", false, "Stage prices without contacting the ERP")
}
