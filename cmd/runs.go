package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/analytics-studio/internal/model"
	"github.com/sells-group/analytics-studio/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect play run history",
	Long:  "Commands for listing and viewing persisted play runs and their actions.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List play runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		playID, _ := cmd.Flags().GetString("play")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Play:   playID,
			Status: model.RunStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run with its actions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(os.Stdout, run)
		}

		fmt.Printf("Run %s (%s) %s\n", run.ID, run.Play, run.Status)
		if run.Error != "" {
			fmt.Printf("Error: %s\n", run.Error)
		}
		if n := narrativeOf(run.Analysis); n != "" {
			fmt.Println(n)
		}
		fmt.Println()
		formatActions(os.Stdout, run.Actions)
		return nil
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		var cutoff time.Time
		if since > 0 {
			cutoff = time.Now().Add(-since)
		}
		formatRunStats(os.Stdout, computeRunStats(runs, cutoff))
		return nil
	},
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total      int
	Complete   int
	Failed     int
	Running    int
	ByPlay     map[string]int
	AvgDurSecs float64
}

// computeRunStats aggregates runs created at or after cutoff.
func computeRunStats(runs []model.Run, cutoff time.Time) runStats {
	s := runStats{ByPlay: map[string]int{}}

	var totalDur time.Duration
	var durCount int
	for _, r := range runs {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		s.Total++
		s.ByPlay[r.Play]++
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
			totalDur += r.UpdatedAt.Sub(r.CreatedAt)
			durCount++
		case model.RunStatusFailed:
			s.Failed++
		default:
			s.Running++
		}
	}

	if durCount > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	return s
}

func formatRunStats(out io.Writer, s runStats) {
	_, _ = fmt.Fprintf(out, "Total runs:    %d\n", s.Total)
	_, _ = fmt.Fprintf(out, "Complete:      %d\n", s.Complete)
	_, _ = fmt.Fprintf(out, "Failed:        %d\n", s.Failed)
	_, _ = fmt.Fprintf(out, "Running:       %d\n", s.Running)
	_, _ = fmt.Fprintf(out, "Avg duration:  %.2fs\n", s.AvgDurSecs)

	if len(s.ByPlay) == 0 {
		return
	}
	plays := make([]string, 0, len(s.ByPlay))
	for p := range s.ByPlay {
		plays = append(plays, p)
	}
	sort.Strings(plays)
	_, _ = fmt.Fprintln(out, "\nBy play:")
	for _, p := range plays {
		_, _ = fmt.Fprintf(out, "  %-10s %d\n", p, s.ByPlay[p])
	}
}

func init() {
	runsListCmd.Flags().String("play", "", "filter by play id")
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsShowCmd.Flags().Bool("json", false, "print the run as JSON")

	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 168h; 0 for all)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}
