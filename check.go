package main

import (
	"fmt"

	"github.com/leeineian/gemboard/ledger"
	"github.com/leeineian/gemboard/sys"
	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify reactions.json totals without connecting to Discord",
		Long: `Check loads the reaction ledger from the data directory and verifies that
every user's total equals the sum of their emoji counts, that no count is
zero or negative and that no user appears twice.

With --repair the repaired ledger is written back in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("data-dir")
			if dir == "" {
				dir = sys.DataDirFromEnv()
			}
			repair, _ := cmd.Flags().GetBool("repair")
			return runCheck(cmd, ledger.NewFileStore(dir), repair)
		},
	}

	cmd.Flags().String("data-dir", "", "directory holding reactions.json (default $DATA_DIR or .)")
	cmd.Flags().Bool("repair", false, "rewrite the ledger with repaired totals")
	return cmd
}

func runCheck(cmd *cobra.Command, store *ledger.FileStore, repair bool) error {
	out := cmd.OutOrStdout()

	records, err := store.LoadLedger()
	if err != nil {
		return err
	}

	fixed, issues := ledger.Repair(records)
	if len(issues) == 0 {
		fmt.Fprintf(out, sys.MsgCheckConsistent+"\n", store.LedgerPath, len(records))
		return nil
	}

	fmt.Fprintf(out, sys.MsgCheckIssues+"\n", store.LedgerPath, len(issues))
	for _, issue := range issues {
		fmt.Fprintf(out, sys.MsgCheckIssue+"\n", issue)
	}

	if !repair {
		return fmt.Errorf("%d problems found, rerun with --repair to fix", len(issues))
	}
	if err := store.SaveLedger(fixed); err != nil {
		return err
	}
	fmt.Fprintf(out, sys.MsgCheckRepaired+"\n", store.LedgerPath, len(fixed))
	return nil
}
