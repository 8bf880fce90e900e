package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/analytics-studio/internal/play"
	"github.com/sells-group/analytics-studio/internal/studio"
)

// runConcurrency bounds concurrent plays under --all.
const runConcurrency = 4

var (
	runParams []string
	runAll    bool
	runJSON   bool
)

var runCmd = &cobra.Command{
	Use:   "run [play]",
	Short: "Run a play and persist its proposed actions",
	Args: func(cmd *cobra.Command, args []string) error {
		if runAll {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		params, err := play.ParseParams(runParams)
		if err != nil {
			return err
		}

		env, err := initStudio(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		ids := args
		if runAll {
			ids = env.Service.Registry().IDs()
		}

		outcomes := make([]*studio.RunOutcome, len(ids))
		errs := make([]error, len(ids))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(runConcurrency)
		for i, id := range ids {
			g.Go(func() error {
				outcomes[i], errs[i] = env.Service.RunPlay(gctx, id, params)
				return nil
			})
		}
		_ = g.Wait()

		var failed int
		ok := outcomes[:0]
		for i, out := range outcomes {
			if errs[i] != nil {
				if !runAll {
					return eris.Wrapf(errs[i], "run %s", ids[i])
				}
				zap.L().Error("play failed", zap.String("play", ids[i]), zap.Error(errs[i]))
				failed++
				continue
			}
			ok = append(ok, out)
		}
		outcomes = ok

		if runJSON {
			if !runAll && len(outcomes) == 1 {
				return printJSON(os.Stdout, outcomes[0])
			}
			return printJSON(os.Stdout, outcomes)
		}
		for _, out := range outcomes {
			printRunOutcome(os.Stdout, out)
		}
		if failed > 0 {
			return eris.Errorf("%d of %d plays failed", failed, len(ids))
		}
		return nil
	},
}

func printRunOutcome(out io.Writer, o *studio.RunOutcome) {
	_, _ = fmt.Fprintf(out, "Run %s (%s)\n", o.RunID, o.Play)
	if n := narrativeOf(o.Analysis); n != "" {
		_, _ = fmt.Fprintf(out, "%s\n", n)
	}
	_, _ = fmt.Fprintln(out)
	if len(o.Actions) == 0 {
		_, _ = fmt.Fprintln(out, "No actions proposed.")
		_, _ = fmt.Fprintln(out)
		return
	}
	formatActions(out, o.Actions)
	_, _ = fmt.Fprintln(out)
}

func init() {
	runCmd.Flags().StringArrayVarP(&runParams, "param", "p", nil, "play parameter as key=value (repeatable)")
	runCmd.Flags().BoolVar(&runAll, "all", false, "run every registered play")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the run outcome as JSON")
	rootCmd.AddCommand(runCmd)
}
