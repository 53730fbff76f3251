package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/nightline/internal/caller"
	"github.com/sells-group/nightline/internal/overnight"
)

var overnightCmd = &cobra.Command{
	Use:   "overnight",
	Short: "Run an unattended overnight calling session",
	Long:  "Plans the eligible leads, calls them sequentially with checkpointing after every lead, and stops on the call limit, the end time, or repeated provider failures. Re-running with the same --run-id resumes.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runID, _ := cmd.Flags().GetString("run-id")
		maxCalls, _ := cmd.Flags().GetInt("max-calls")
		endAtFlag, _ := cmd.Flags().GetString("end-at")
		industry, _ := cmd.Flags().GetString("industry")
		state, _ := cmd.Flags().GetString("state")
		only247, _ := cmd.Flags().GetBool("only-247")
		mock, _ := cmd.Flags().GetBool("mock")

		if runID == "" {
			runID = uuid.NewString()
		}
		if maxCalls <= 0 {
			maxCalls = cfg.Overnight.MaxCalls
		}

		var endAt time.Time
		if endAtFlag != "" {
			var err error
			endAt, err = nextClockTime(endAtFlag, time.Now())
			if err != nil {
				return err
			}
		}

		if err := os.MkdirAll(cfg.Overnight.CheckpointDir, 0o755); err != nil {
			return eris.Wrap(err, "overnight: checkpoint dir")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runner := overnight.New(st, initEngine(st, mock), overnight.Config{
			RunID:          runID,
			CheckpointPath: filepath.Join(cfg.Overnight.CheckpointDir, "overnight-checkpoint.json"),
			Filter: caller.BatchFilter{
				Industry: industry,
				State:    state,
				Only247:  only247,
			},
			MaxCalls:         maxCalls,
			EndAt:            endAt,
			BreakerThreshold: cfg.Overnight.BreakerThreshold,
			Delay:            time.Duration(cfg.Call.DelaySecs) * time.Second,
			Cooldown:         time.Duration(cfg.Call.CooldownHrs) * time.Hour,
		})

		summary, err := runner.Run(ctx)
		if summary != nil {
			fmt.Fprintf(os.Stdout,
				"run %s stopped (%s): processed=%d qualified=%d errors=%d remaining=%d\n",
				summary.RunID, summary.StopReason,
				summary.Processed, summary.Qualified, summary.Errors, summary.Remaining)
		}
		if err != nil {
			return eris.Wrap(err, "overnight")
		}
		return nil
	},
}

// nextClockTime resolves an HH:MM flag to the next occurrence of that wall
// time: tonight if still ahead, tomorrow morning otherwise.
func nextClockTime(flag string, now time.Time) (time.Time, error) {
	parsed, err := time.Parse("15:04", flag)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "overnight: bad --end-at %q", flag)
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), parsed.Hour(), parsed.Minute(), 0, 0, now.Location())
	if !at.After(now) {
		at = at.Add(24 * time.Hour)
	}
	return at, nil
}

func init() {
	overnightCmd.Flags().String("run-id", "", "run identifier; reuse to resume a stopped run")
	overnightCmd.Flags().Int("max-calls", 0, "stop after this many calls (default from config)")
	overnightCmd.Flags().String("end-at", "", "stop at this wall-clock time, HH:MM")
	overnightCmd.Flags().String("industry", "", "filter by industry tag")
	overnightCmd.Flags().String("state", "", "filter by state")
	overnightCmd.Flags().Bool("only-247", false, "only leads claiming 24/7 availability")
	overnightCmd.Flags().Bool("mock", false, "synthesize call results instead of dialing")
	rootCmd.AddCommand(overnightCmd)
}
