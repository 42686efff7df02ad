package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/forksync/internal/report"
)

var auditMatchesJSON bool

func init() {
	addAuditFlags(auditCmd)
	auditCmd.Flags().BoolVar(&auditMatchesJSON, "matches", false, "Print every match as JSON instead of the summary")
	rootCmd.AddCommand(auditCmd)
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Find stray upstream branding in the sources",
	Long: `Scan the configured roots for the upstream product name. Matches in
allow-listed files are expected; any other match is reported as an issue.
Stray matches never fail the run on their own.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(cmd, nil)
		if err != nil {
			return err
		}
		summary := report.New()
		res := e.auditStep(summary)

		if auditMatchesJSON && res != nil {
			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling audit result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return exitWith(summary.ExitCode())
		}
		return e.finish(summary, cmd.OutOrStdout())
	},
}
