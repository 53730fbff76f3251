package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/nightline/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "nightline",
	Short: "After-hours lead acquisition and qualification pipeline",
	Long:  "Scrapes businesses advertising 24/7 availability, audits them with after-hours calls, and surfaces the ones that fail to answer as qualified sales leads.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
