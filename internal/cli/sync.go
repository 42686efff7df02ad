package cli

import (
	"github.com/spf13/cobra"

	"github.com/agentx-labs/forksync/internal/config"
	"github.com/agentx-labs/forksync/internal/report"
)

var syncStateJSON bool

func init() {
	addSyncFlags(syncCmd)
	syncCmd.Flags().BoolVar(&syncStateJSON, "state", false, "Print the sync state instead of the summary")
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync the fork with upstream",
	Long: `Fetch upstream, then rebase (or merge) the current branch onto it.

Uncommitted changes are committed, stashed, allowed or cause an abort,
in that order of precedence, depending on configuration. A conflict that
only touches the manifest can be resolved automatically. Unlike maintain,
sync runs regardless of ` + "FORKSYNC_AUTO_REBASE" + `.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := loadEnv(cmd, map[string]string{config.KeyAutoRebase: "1"})
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

		state := e.syncStep(ctx, repo, summary)
		if syncStateJSON {
			summary.WriteText(e.log.Writer())
			if err := state.WriteJSON(cmd.OutOrStdout()); err != nil {
				return err
			}
			return exitWith(summary.ExitCode())
		}
		return e.finish(summary, cmd.OutOrStdout())
	},
}
