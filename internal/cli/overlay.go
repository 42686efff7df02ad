package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/forksync/internal/manifest"
)

var overlayCheck bool

func init() {
	overlayCmd.Flags().String("manifest", "", "Manifest path relative to the repository")
	overlayCmd.Flags().BoolVar(&overlayCheck, "check", false, "Only report whether the manifest is branded")
	rootCmd.AddCommand(overlayCmd)
}

var overlayCmd = &cobra.Command{
	Use:   "overlay",
	Short: "Stamp the brand onto the extension manifest",
	Long: `Set displayName, description and icon in the manifest from the brand.
A manifest whose displayName already starts with the brand name is left
untouched, so running overlay repeatedly is safe.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(cmd, nil)
		if err != nil {
			return err
		}
		path := e.manifestPath()
		out := cmd.OutOrStdout()

		if overlayCheck {
			branded, err := manifest.HasBrandMarker(path, e.brand)
			if err != nil {
				return err
			}
			if !branded {
				fmt.Fprintf(out, "[FAIL] %s is not branded\n", e.cfg.Sync.ManifestPath)
				return exitWith(1)
			}
			fmt.Fprintf(out, "[ OK ] %s is branded as %s\n", e.cfg.Sync.ManifestPath, e.brand.DisplayName)
			return nil
		}

		changed, err := manifest.ApplyOverlayFile(path, e.brand)
		if err != nil {
			return err
		}
		if changed {
			fmt.Fprintf(out, "Branded %s as %s\n", e.cfg.Sync.ManifestPath, e.brand.DisplayName)
		} else {
			fmt.Fprintf(out, "%s already branded\n", e.cfg.Sync.ManifestPath)
		}
		return nil
	},
}
