package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/forksync/internal/gitx"
)

var (
	divergenceFetch bool
	divergenceJSON  bool
)

func init() {
	divergenceCmd.Flags().String("upstream-remote", "", "Upstream remote name")
	divergenceCmd.Flags().String("upstream-branch", "", "Upstream branch")
	divergenceCmd.Flags().BoolVar(&divergenceFetch, "fetch", false, "Fetch upstream first")
	divergenceCmd.Flags().BoolVar(&divergenceJSON, "json", false, "Print as JSON")
	rootCmd.AddCommand(divergenceCmd)
}

var divergenceCmd = &cobra.Command{
	Use:   "divergence [ref]",
	Short: "Show how far the fork is behind and ahead of upstream",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := loadEnv(cmd, nil)
		if err != nil {
			return err
		}
		repo := e.git()
		sc := e.cfg.Sync

		ref := sc.UpstreamRef()
		if len(args) == 1 {
			ref = args[0]
		}
		if divergenceFetch {
			if err := repo.Fetch(ctx, sc.UpstreamRemote, sc.UpstreamBranch, sc.FetchRetries); err != nil {
				e.log.Warn("%v", err)
			}
		}

		out := cmd.OutOrStdout()
		div, err := repo.Divergence(ctx, ref)
		if errors.Is(err, gitx.ErrNoRef) {
			fmt.Fprintf(out, "no divergence data: %s does not resolve\n", ref)
			return nil
		}
		if err != nil {
			return err
		}

		if divergenceJSON {
			data, err := json.MarshalIndent(struct {
				Ref string `json:"ref"`
				*gitx.Divergence
			}{ref, div}, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling divergence: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		fmt.Fprintf(out, "%s: %s\n", ref, div)
		return nil
	},
}
