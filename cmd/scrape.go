package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/nightline/internal/scrape"
	"github.com/sells-group/nightline/pkg/localdata"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape listings for an industry and geography",
	Long:  "Searches business listings for the industry's configured queries, normalizes and deduplicates the results, and stores new leads.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		industry, _ := cmd.Flags().GetString("industry")
		city, _ := cmd.Flags().GetString("city")
		state, _ := cmd.Flags().GetString("state")
		zip, _ := cmd.Flags().GetString("zip")
		if industry == "" || city == "" || state == "" {
			return eris.New("scrape: --industry, --city and --state are required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		reg, err := loadIndustries()
		if err != nil {
			return err
		}

		source := scrape.NewLocalDataSource(localdata.NewClient(
			cfg.LocalData.Key,
			localdata.WithHost(cfg.LocalData.Host),
			localdata.WithBaseURL(cfg.LocalData.BaseURL),
		))

		o := scrape.New(st, source, reg, scrape.Options{
			MaxAttempts:   cfg.Scrape.MaxAttempts,
			Backoff:       time.Duration(cfg.Scrape.BackoffMillis) * time.Millisecond,
			LimitPerQuery: cfg.LocalData.Limit,
			Concurrency:   cfg.Scrape.MaxConcurrent,
			QueryPause:    time.Duration(cfg.Scrape.PerTargetPauseSec) * time.Second,
		})

		summary, err := o.Run(ctx, []scrape.Target{{
			Industry: industry,
			City:     city,
			State:    state,
			Zip:      zip,
		}})
		if err != nil {
			return eris.Wrap(err, "scrape")
		}

		zap.L().Info("scrape complete",
			zap.Int("found", summary.Found),
			zap.Int("new", summary.NewLeads),
			zap.Int("merged", summary.Merged),
			zap.Int("skipped", summary.Skipped),
			zap.Int("skipped_queries", summary.SkippedQueries),
		)
		fmt.Fprintf(os.Stdout, "found %d listings: %d new leads, %d merged, %d skipped\n",
			summary.Found, summary.NewLeads, summary.Merged, summary.Skipped)
		return nil
	},
}

func init() {
	scrapeCmd.Flags().String("industry", "", "industry tag (hvac, plumber, electrician, ...)")
	scrapeCmd.Flags().String("city", "", "target city")
	scrapeCmd.Flags().String("state", "", "target state abbreviation")
	scrapeCmd.Flags().String("zip", "", "target zip code (used for name-based identity)")
	rootCmd.AddCommand(scrapeCmd)
}
