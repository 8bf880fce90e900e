package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/analytics-studio/internal/impact"
)

var (
	impactCSV  string
	impactJSON bool
)

var impactCmd = &cobra.Command{
	Use:   "impact",
	Short: "Summarize actions, approvals and estimated value",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		report, err := impact.Build(ctx, st, time.Now())
		if err != nil {
			return eris.Wrap(err, "impact")
		}

		switch {
		case impactCSV == "-":
			return report.WriteCSV(os.Stdout)
		case impactCSV != "":
			f, err := os.Create(impactCSV)
			if err != nil {
				return eris.Wrapf(err, "create %s", impactCSV)
			}
			if err := report.WriteCSV(f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return eris.Wrapf(err, "close %s", impactCSV)
			}
			fmt.Fprintf(os.Stderr, "Wrote %s\n", impactCSV)
			return nil
		case impactJSON:
			return printJSON(os.Stdout, report)
		}

		printImpact(os.Stdout, report)
		return nil
	},
}

func printImpact(out io.Writer, r *impact.Report) {
	_, _ = fmt.Fprintln(out, impact.ReportTitle)
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintf(out, "Runs:             %d\n", r.TotalRuns)
	_, _ = fmt.Fprintf(out, "Actions:          %d\n", r.TotalActions)
	_, _ = fmt.Fprintf(out, "Approved:         %d (%.1f%%)\n", r.TotalApproved, r.ApprovalRate())
	_, _ = fmt.Fprintf(out, "Executed:         %d (%.1f%%)\n", r.TotalExecuted, r.ExecutionRate())
	_, _ = fmt.Fprintf(out, "Impact score:     %.1f\n", r.TotalImpactScore)
	_, _ = fmt.Fprintf(out, "Estimated value:  %s\n", impact.FormatUSD(r.EstimatedValue))

	if len(r.TopPlays) > 0 {
		_, _ = fmt.Fprintln(out)
		_, _ = fmt.Fprintln(out, "Top plays:")
		for i, p := range r.TopPlays {
			_, _ = fmt.Fprintf(out, "  %d. %s  %d actions, impact %.1f\n", i+1, p.Play, p.ActionCount, p.TotalImpact)
		}
	}

	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "Runs per day:")
	for _, d := range r.RecentActivity {
		_, _ = fmt.Fprintf(out, "  %s  %d\n", d.Date, d.Runs)
	}
}

func init() {
	impactCmd.Flags().StringVar(&impactCSV, "csv", "", "write the CSV report to a file (\"-\" for stdout)")
	impactCmd.Flags().BoolVar(&impactJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(impactCmd)
}
