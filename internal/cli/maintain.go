package cli

import (
	"github.com/spf13/cobra"

	"github.com/agentx-labs/forksync/internal/report"
)

func init() {
	addSyncFlags(maintainCmd)
	addTestFlags(maintainCmd)
	addAuditFlags(maintainCmd)
	maintainCmd.Flags().Bool("clean-install", false, "Remove node_modules and run npm ci")
	rootCmd.AddCommand(maintainCmd)
}

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run the full fork-maintenance pipeline",
	Long: `Run every maintenance step in order: upstream sync, engine check and
install, tests, brand audit. Each step records its outcome; a failing step
does not stop later ones. A JSON summary is printed to stdout.

Exit status is 2 when a step failed fatally, 1 when issues were reported
and 0 otherwise.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := loadEnv(cmd, nil)
		if err != nil {
			return err
		}

		summary := report.New()
		repo := e.git()
		l, ok := e.acquireLock(ctx, repo, summary)
		if !ok {
			return e.finish(summary, cmd.OutOrStdout())
		}
		defer l.Release()

		e.syncStep(ctx, repo, summary)
		e.toolchainStep(ctx, summary)
		e.testStep(ctx, summary)
		e.auditStep(summary)

		return e.finish(summary, cmd.OutOrStdout())
	},
}
