package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/nightline/internal/cost"
	"github.com/sells-group/nightline/internal/model"
	"github.com/sells-group/nightline/internal/store"
)

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Report call spend and project the next batch",
	Long:  "Aggregates actual provider spend from audit history and estimates what calling the currently eligible leads would cost.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		industry, _ := cmd.Flags().GetString("industry")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		calc := cost.NewCalculator(cost.DefaultRates())

		leads, err := st.ListLeads(ctx, store.LeadFilter{Industry: industry, Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "costs")
		}

		var audits []model.CallAudit
		for _, l := range leads {
			a, err := st.ListAudits(ctx, l.Key)
			if err != nil {
				return eris.Wrap(err, "costs: audits")
			}
			audits = append(audits, a...)
		}
		spend := calc.Actual(audits)

		eligible, err := st.ListEligibleForCall(ctx, store.EligibilityFilter{
			Industry: industry,
			Cooldown: time.Duration(cfg.Call.CooldownHrs) * time.Hour,
		})
		if err != nil {
			return eris.Wrap(err, "costs: eligible")
		}
		estimate := calc.EstimateBatch(len(eligible), cfg.Vapi.CallCapSecs)

		fmt.Fprintf(os.Stdout, "calls placed: %d (%d with provider-reported cost)\n", spend.Calls, spend.BilledCalls)
		fmt.Fprintf(os.Stdout, "talk time: %dm%ds\n", spend.TotalSecs/60, spend.TotalSecs%60)
		fmt.Fprintf(os.Stdout, "spend to date: $%.2f\n", spend.Total())
		fmt.Fprintf(os.Stdout, "eligible leads: %d, next batch estimate: $%.2f\n", len(eligible), estimate)
		return nil
	},
}

func init() {
	costsCmd.Flags().String("industry", "", "filter by industry tag")
	rootCmd.AddCommand(costsCmd)
}
