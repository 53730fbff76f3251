package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/nightline/internal/caller"
)

var callCmd = &cobra.Command{
	Use:   "call <lead-key>",
	Short: "Place one audit call",
	Long:  "Claims the lead, places an after-hours audit call, classifies the result, and records the transition.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mock, _ := cmd.Flags().GetBool("mock")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := initEngine(st, mock).CallOne(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "call")
		}

		fmt.Fprintf(os.Stdout, "%s: outcome=%s status=%s qualified=%t\n",
			res.LeadKey, res.Outcome, res.Status, res.Qualified)
		return nil
	},
}

var callBatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Call every eligible lead in sequence",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		industry, _ := cmd.Flags().GetString("industry")
		state, _ := cmd.Flags().GetString("state")
		only247, _ := cmd.Flags().GetBool("only-247")
		limit, _ := cmd.Flags().GetInt("limit")
		mock, _ := cmd.Flags().GetBool("mock")

		if limit <= 0 {
			limit = cfg.Call.MaxBatchSize
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		summary, err := initEngine(st, mock).Batch(ctx, caller.BatchFilter{
			Industry: industry,
			State:    state,
			Only247:  only247,
			Max:      limit,
		})
		if err != nil {
			return eris.Wrap(err, "call batch")
		}

		fmt.Fprintf(os.Stdout, "processed %d leads: %d qualified, %d errors\n",
			summary.Processed, summary.Qualified, summary.Errors)
		for outcome, n := range summary.ByOutcome {
			fmt.Fprintf(os.Stdout, "  %s: %d\n", outcome, n)
		}
		return nil
	},
}

func init() {
	callCmd.Flags().Bool("mock", false, "synthesize call results instead of dialing")

	callBatchCmd.Flags().String("industry", "", "filter by industry tag")
	callBatchCmd.Flags().String("state", "", "filter by state")
	callBatchCmd.Flags().Bool("only-247", false, "only leads claiming 24/7 availability")
	callBatchCmd.Flags().Int("limit", 0, "max leads to call (default from config)")
	callBatchCmd.Flags().Bool("mock", false, "synthesize call results instead of dialing")

	callCmd.AddCommand(callBatchCmd)
	rootCmd.AddCommand(callCmd)
}
