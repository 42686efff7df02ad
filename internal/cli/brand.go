package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/forksync/internal/branding"
)

var (
	brandID      string
	brandRebrand string
	brandJSON    bool
)

func init() {
	brandCmd.Flags().StringVar(&brandID, "id", "", "Print the fork id for a contribution suffix")
	brandCmd.Flags().StringVar(&brandRebrand, "rebrand", "", "Move an upstream contribution id into the fork namespace")
	brandCmd.Flags().BoolVar(&brandJSON, "json", false, "Print brand info as JSON")
	rootCmd.AddCommand(brandCmd)
}

type brandInfo struct {
	DisplayName  string `json:"displayName"`
	Upstream     string `json:"upstream"`
	Description  string `json:"description"`
	Icon         string `json:"icon"`
	Persona      string `json:"persona"`
	Handle       string `json:"handle"`
	Namespace    string `json:"namespace"`
	UpstreamNS   string `json:"upstreamNamespace"`
	Welcome      string `json:"welcome"`
	EnvPrefix    string `json:"envPrefix"`
	ConfigFolder string `json:"configFolder"`
}

var brandCmd = &cobra.Command{
	Use:   "brand",
	Short: "Show the fork identity",
	Long: `Print the active brand: display name, persona, contribution namespace
and the welcome message as the current git user would see it.

--id and --rebrand map contribution ids (commands, views, chat
participants) between the upstream and fork namespaces.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := branding.LoadFile(brandFile)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		switch {
		case brandID != "":
			fmt.Fprintln(out, b.Namespace.ID(brandID))
			return nil
		case brandRebrand != "":
			fmt.Fprintln(out, b.Namespace.Rebrand(brandRebrand))
			return nil
		}

		names := branding.NewNameCache(branding.GitUserResolver(runner, repoDir))
		welcome, err := branding.WelcomeMessage(b, names.Get(cmd.Context()))
		if err != nil {
			return err
		}

		info := brandInfo{
			DisplayName:  b.DisplayName,
			Upstream:     b.UpstreamDisplayName,
			Description:  b.Description,
			Icon:         b.Icon,
			Persona:      b.Persona.Name,
			Handle:       b.Persona.Handle,
			Namespace:    b.Namespace.Fork,
			UpstreamNS:   b.Namespace.Upstream,
			Welcome:      welcome,
			EnvPrefix:    b.EnvPrefix,
			ConfigFolder: b.HomeDir,
		}
		if brandJSON {
			data, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling brand info: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		fmt.Fprintf(out, "%s (fork of %s)\n", info.DisplayName, info.Upstream)
		fmt.Fprintf(out, "  %s\n\n", info.Description)
		fmt.Fprintf(out, "  Persona:    %s (@%s)\n", info.Persona, info.Handle)
		fmt.Fprintf(out, "  Namespace:  %s (upstream %s)\n", info.Namespace, info.UpstreamNS)
		fmt.Fprintf(out, "  Icon:       %s\n", info.Icon)
		fmt.Fprintf(out, "  Env prefix: %s_\n", info.EnvPrefix)
		fmt.Fprintf(out, "  Welcome:    %s\n", info.Welcome)
		return nil
	},
}
