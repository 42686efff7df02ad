package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/forksync/internal/branding"
	"github.com/agentx-labs/forksync/internal/gitx"
	"github.com/agentx-labs/forksync/internal/manifest"
)

// mergeDriverName is the git merge driver id written by `merge-driver install`.
const mergeDriverName = "forksync-manifest"

func init() {
	mergeDriverInstallCmd.Flags().String("manifest", "", "Manifest path relative to the repository")
	mergeDriverCmd.AddCommand(mergeDriverInstallCmd)
	rootCmd.AddCommand(mergeDriverCmd)
}

var mergeDriverCmd = &cobra.Command{
	Use:   "merge-driver <base> <local> <remote>",
	Short: "Three-way merge for the extension manifest (git merge driver)",
	Long: `Merge the manifest with upstream taking precedence: the result is the
remote document plus dependency entries only the local side defines.
Brand fields are dropped so the overlay can re-stamp them. The result
replaces <local>, matching git's %O %A %B driver contract.

Unreadable or corrupt inputs are treated as empty documents and reported
on stderr; the driver never leaves conflict markers.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		warnings, err := manifest.MergeFiles(args[0], args[1], args[2])
		for _, w := range warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s merge-driver: warning: %v\n", branding.CLIName(), w)
		}
		return err
	},
}

var mergeDriverInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Register the manifest merge driver in the repository",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(cmd, nil)
		if err != nil {
			return err
		}
		changed, err := installMergeDriver(cmd.Context(), e.git(), e.cfg.RepoDir, e.cfg.Sync.ManifestPath)
		if err != nil {
			return err
		}
		if !changed {
			fmt.Fprintf(cmd.OutOrStdout(), "%s merge driver already registered for %s\n", mergeDriverName, e.cfg.Sync.ManifestPath)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Registered %s merge driver for %s\n", mergeDriverName, e.cfg.Sync.ManifestPath)
		return nil
	},
}

// installMergeDriver configures the driver in git config and maps the
// manifest to it in .gitattributes. It reports whether anything changed.
func installMergeDriver(ctx context.Context, repo *gitx.Client, dir, manifestPath string) (bool, error) {
	key := "merge." + mergeDriverName
	driver := branding.CLIName() + " merge-driver %O %A %B"

	current, err := repo.ConfigValue(ctx, key+".driver")
	if err != nil {
		return false, err
	}
	changed := current != driver
	if changed {
		if err := repo.SetConfig(ctx, key+".name", branding.Default().DisplayName+" manifest merge"); err != nil {
			return false, err
		}
		if err := repo.SetConfig(ctx, key+".driver", driver); err != nil {
			return false, err
		}
		got, err := repo.ConfigValue(ctx, key+".driver")
		if err != nil {
			return false, err
		}
		if got != driver {
			return false, fmt.Errorf("%s.driver is %q after install; a global or system setting may shadow it", key, got)
		}
	}

	attrPath := filepath.Join(dir, ".gitattributes")
	line := filepath.ToSlash(manifestPath) + " merge=" + mergeDriverName

	existing, err := os.ReadFile(attrPath)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("reading %s: %w", attrPath, err)
	}
	for _, l := range strings.Split(string(existing), "\n") {
		if strings.TrimSpace(l) == line {
			return changed, nil
		}
	}

	content := string(existing)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += line + "\n"
	if err := os.WriteFile(attrPath, []byte(content), 0644); err != nil {
		return false, fmt.Errorf("writing %s: %w", attrPath, err)
	}
	return true, nil
}
