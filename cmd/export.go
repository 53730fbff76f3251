package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/nightline/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export leads for the sales team",
	Long:  "Writes a call sheet as TSV or XLSX with one row per lead, including the latest call result and a suggested pitch for qualified leads.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		industry, _ := cmd.Flags().GetString("industry")
		state, _ := cmd.Flags().GetString("state")
		qualifiedOnly, _ := cmd.Flags().GetBool("qualified-only")
		format, _ := cmd.Flags().GetString("format")
		outPath, _ := cmd.Flags().GetString("out")

		if format != "tsv" && format != "xlsx" {
			return eris.Errorf("export: unknown format %q (use tsv or xlsx)", format)
		}
		if outPath == "" {
			outPath = "leads." + format
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		f, err := os.Create(outPath)
		if err != nil {
			return eris.Wrap(err, "export: create output file")
		}
		defer f.Close() //nolint:errcheck

		opts := export.Options{
			Industry:      industry,
			State:         state,
			QualifiedOnly: qualifiedOnly,
		}

		var n int
		switch format {
		case "tsv":
			n, err = export.WriteTSV(ctx, st, opts, f)
		case "xlsx":
			n, err = export.WriteXLSX(ctx, st, opts, f)
		}
		if err != nil {
			return eris.Wrap(err, "export")
		}
		if err := f.Close(); err != nil {
			return eris.Wrap(err, "export: close output file")
		}

		fmt.Fprintf(os.Stdout, "wrote %d leads to %s\n", n, outPath)

		counts, err := st.CountByStatus(ctx)
		if err != nil {
			return eris.Wrap(err, "export: stats")
		}
		for _, line := range export.Summary(counts) {
			fmt.Fprintln(os.Stdout, line)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().String("industry", "", "filter by industry tag")
	exportCmd.Flags().String("state", "", "filter by state")
	exportCmd.Flags().Bool("qualified-only", false, "only export qualified leads")
	exportCmd.Flags().String("format", "tsv", "output format (tsv or xlsx)")
	exportCmd.Flags().String("out", "", "output path (default leads.<format>)")
	rootCmd.AddCommand(exportCmd)
}
