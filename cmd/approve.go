package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/analytics-studio/internal/store"
	"github.com/sells-group/analytics-studio/internal/studio"
)

var (
	approveActions  []string
	approveApprover string
	approveNotes    string
	approveExecute  bool
)

var approveCmd = &cobra.Command{
	Use:   "approve <run-id>",
	Short: "Approve proposed actions from a run",
	Long:  "Approves the given actions (or every proposed action when --action is omitted) and optionally executes them.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mode := "run"
		if approveExecute {
			mode = "execute"
		}
		env, err := initStudio(ctx, mode)
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Service.Approve(ctx, studio.ApproveRequest{
			RunID:     args[0],
			ActionIDs: approveActions,
			Approver:  approveApprover,
			Notes:     approveNotes,
			Execute:   approveExecute,
		})
		if err != nil {
			return eris.Wrap(err, "approve")
		}

		fmt.Printf("%s Approval %s\n", out.Message, out.ApprovalID)
		if len(out.Executions) > 0 {
			fmt.Println()
			formatExecutions(os.Stdout, out.Executions)
		}
		return nil
	},
}

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "List recent approvals",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		approvals, err := st.ListApprovals(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "approvals")
		}
		if len(approvals) == 0 {
			fmt.Fprintln(os.Stderr, "No approvals found.")
			return nil
		}
		formatApprovals(os.Stdout, approvals)
		return nil
	},
}

var executeCmd = &cobra.Command{
	Use:   "execute <approval-id>",
	Short: "Execute the actions of an approval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initStudio(ctx, "execute")
		if err != nil {
			return err
		}
		defer env.Close()

		execs, err := env.Service.ExecuteApproval(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "execute")
		}
		formatExecutions(os.Stdout, execs)
		return nil
	},
}

var executionsCmd = &cobra.Command{
	Use:   "executions",
	Short: "List recorded execution outcomes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		approvalID, _ := cmd.Flags().GetString("approval")
		limit, _ := cmd.Flags().GetInt("limit")
		execs, err := st.ListExecutions(ctx, store.ExecutionFilter{ApprovalID: approvalID, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "executions")
		}
		if len(execs) == 0 {
			fmt.Fprintln(os.Stderr, "No executions found.")
			return nil
		}
		formatExecutions(os.Stdout, execs)
		return nil
	},
}

func init() {
	approveCmd.Flags().StringSliceVar(&approveActions, "action", nil, "action id to approve (repeatable; default all proposed)")
	approveCmd.Flags().StringVar(&approveApprover, "approver", studio.DefaultApprover, "who is approving")
	approveCmd.Flags().StringVar(&approveNotes, "notes", "", "approval notes")
	approveCmd.Flags().BoolVar(&approveExecute, "execute", false, "execute the approved actions immediately")

	approvalsCmd.Flags().Int("limit", store.DefaultApprovalLimit, "max number of approvals to display")

	executionsCmd.Flags().String("approval", "", "filter by approval id")
	executionsCmd.Flags().Int("limit", 50, "max number of executions to display")

	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(approvalsCmd)
	rootCmd.AddCommand(executeCmd)
	rootCmd.AddCommand(executionsCmd)
}
