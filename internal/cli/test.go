package cli

import (
	"github.com/spf13/cobra"

	"github.com/agentx-labs/forksync/internal/report"
)

func init() {
	addTestFlags(testCmd)
	rootCmd.AddCommand(testCmd)
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run the test suite with flake recovery",
	Long: `Run the configured test command on the primary worker pool.

Crashes (closed IPC channels, segmentation faults, a run that found no
tests) are retried once on the fallback pool. Failures with a transient
IPC signature are retried once on the same pool. Recovered runs are
reported as ok-flaky.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(cmd, nil)
		if err != nil {
			return err
		}
		summary := report.New()
		e.testStep(cmd.Context(), summary)
		return e.finish(summary, cmd.OutOrStdout())
	},
}
