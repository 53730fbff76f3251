package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/nightline/internal/model"
	"github.com/sells-group/nightline/internal/store"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Inspect and manage tracked leads",
	Long:  "Commands for listing leads, viewing a single lead with its call history, re-queuing disqualified leads, and recording manual sales outcomes.",
}

// -- leads list --

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		industry, _ := cmd.Flags().GetString("industry")
		state, _ := cmd.Flags().GetString("state")
		city, _ := cmd.Flags().GetString("city")
		only247, _ := cmd.Flags().GetBool("only-247")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.LeadFilter{
			Status:   model.LeadStatus(status),
			Industry: industry,
			State:    state,
			City:     city,
			Only247:  only247,
			Limit:    limit,
		}

		leads, err := st.ListLeads(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "leads list")
		}

		if len(leads) == 0 {
			fmt.Fprintln(os.Stderr, "No leads found.")
			return nil
		}

		formatLeadsList(os.Stdout, leads)
		return nil
	},
}

// -- leads show --

var leadsShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Show a lead and its call audits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		lead, err := st.GetLead(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "leads show")
		}
		audits, err := st.ListAudits(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "leads show")
		}

		out := struct {
			Lead   *model.Lead       `json:"lead"`
			Audits []model.CallAudit `json:"audits"`
		}{lead, audits}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

// -- leads requeue --

// requeueSources are the statuses an operator may return to the queue.
var requeueSources = []model.LeadStatus{model.LeadStatusDisqualified, model.LeadStatusFailed}

var leadsRequeueCmd = &cobra.Command{
	Use:   "requeue <key>",
	Short: "Return a disqualified or failed lead to the calling queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		for _, from := range requeueSources {
			err := st.Transition(ctx, args[0], from, model.LeadStatusNew)
			if err == nil {
				fmt.Fprintf(os.Stdout, "%s re-queued\n", args[0])
				return nil
			}
			if !eris.Is(err, store.ErrStateConflict) {
				return eris.Wrap(err, "leads requeue")
			}
		}
		return eris.Errorf("leads requeue: %s is not disqualified or failed", args[0])
	},
}

// -- leads mark --

// manualTransitions maps the sales outcomes an operator may record to the
// status the lead must currently hold.
var manualTransitions = map[model.LeadStatus]model.LeadStatus{
	model.LeadStatusContacted: model.LeadStatusQualified,
	model.LeadStatusConverted: model.LeadStatusContacted,
}

var leadsMarkCmd = &cobra.Command{
	Use:   "mark <key> <contacted|converted>",
	Short: "Record a manual sales outcome for a lead",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		to := model.LeadStatus(args[1])
		from, ok := manualTransitions[to]
		if !ok {
			return eris.Errorf("leads mark: %q is not a manual outcome (use contacted or converted)", args[1])
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Transition(ctx, args[0], from, to); err != nil {
			if eris.Is(err, store.ErrStateConflict) {
				return eris.Errorf("leads mark: %s is not %s", args[0], from)
			}
			return eris.Wrap(err, "leads mark")
		}
		fmt.Fprintf(os.Stdout, "%s marked %s\n", args[0], to)
		return nil
	},
}

// -- leads stats --

var leadsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show lead counts by status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		counts, err := st.CountByStatus(ctx)
		if err != nil {
			return eris.Wrap(err, "leads stats")
		}

		formatStatusCounts(os.Stdout, counts)
		return nil
	},
}

func init() {
	leadsListCmd.Flags().String("status", "", "filter by status (new, scheduled, called, qualified, ...)")
	leadsListCmd.Flags().String("industry", "", "filter by industry tag")
	leadsListCmd.Flags().String("state", "", "filter by state")
	leadsListCmd.Flags().String("city", "", "filter by city")
	leadsListCmd.Flags().Bool("only-247", false, "only leads claiming 24/7 availability")
	leadsListCmd.Flags().Int("limit", 50, "max number of leads to display")

	leadsCmd.AddCommand(leadsListCmd)
	leadsCmd.AddCommand(leadsShowCmd)
	leadsCmd.AddCommand(leadsRequeueCmd)
	leadsCmd.AddCommand(leadsMarkCmd)
	leadsCmd.AddCommand(leadsStatsCmd)
	rootCmd.AddCommand(leadsCmd)
}

// formatLeadsList writes a tabular list of leads to w.
func formatLeadsList(out io.Writer, leads []model.Lead) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tNAME\tCITY\tSTATUS\t24/7\tREVIEWS\tLAST CALLED")
	_, _ = fmt.Fprintln(w, "---\t----\t----\t------\t----\t-------\t-----------")

	for _, l := range leads {
		name := l.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		claims := "no"
		if l.ClaimsTwentyFourSeven {
			claims = "yes"
		}
		lastCalled := "-"
		if l.LastCalledAt != nil {
			lastCalled = l.LastCalledAt.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			l.Key, name, l.City, l.Status, claims, l.ReviewCount, lastCalled)
	}
	_ = w.Flush()
}

// formatStatusCounts writes counts in lifecycle order so totals read
// top-to-bottom as the funnel.
func formatStatusCounts(out io.Writer, counts map[model.LeadStatus]int) {
	order := []model.LeadStatus{
		model.LeadStatusNew, model.LeadStatusScheduled, model.LeadStatusCalled,
		model.LeadStatusQualified, model.LeadStatusDisqualified,
		model.LeadStatusContacted, model.LeadStatusConverted, model.LeadStatusFailed,
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	total := 0
	for _, s := range order {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", s, counts[s])
		total += counts[s]
	}
	_, _ = fmt.Fprintf(w, "total\t%d\n", total)
	_ = w.Flush()
}
