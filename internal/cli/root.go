package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentx-labs/forksync/internal/branding"
	"github.com/agentx-labs/forksync/internal/config"
	"github.com/agentx-labs/forksync/internal/ui"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

var (
	repoDir   string
	brandFile string
	noColor   bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&repoDir, "repo", "C", ".", "Fork working tree")
	rootCmd.PersistentFlags().StringVar(&brandFile, "brand", "", "Brand file overlaid on the built-in brand")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}

var rootCmd = &cobra.Command{
	Use:   branding.CLIName(),
	Short: "Fork maintenance for " + branding.Default().DisplayName,
	Long: branding.CLIName() + ` keeps the ` + branding.Default().DisplayName + ` fork in step with ` +
		branding.Default().UpstreamDisplayName + `.

It rebrands the extension manifest, syncs with upstream (rebase or merge,
with manifest conflict auto-resolution), runs the test suite with flake
recovery, audits stray upstream branding and prints a machine-readable
summary. Behaviour is configured through ` + branding.EnvPrefix() + `_* environment
variables, ~/` + branding.HomeDir() + `/config.yaml and command flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode maps an Execute error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

// Execute runs the root command with build info injected via ldflags.
func Execute(version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	err := rootCmd.Execute()
	var exitErr *ExitError
	if err != nil && !errors.As(err, &exitErr) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

// env bundles what every pipeline command needs.
type env struct {
	cfg   *config.Config
	brand branding.Brand
	log   *ui.Logger
}

// loadEnv resolves the brand and configuration once. Changed flags override
// file and environment values; overrides are applied last.
func loadEnv(cmd *cobra.Command, overrides map[string]string) (*env, error) {
	brand, err := branding.LoadFile(brandFile)
	if err != nil {
		return nil, err
	}

	dir, err := filepath.Abs(repoDir)
	if err != nil {
		return nil, fmt.Errorf("resolving repository path: %w", err)
	}

	v := config.New()
	bindFlags(v, cmd)
	for key, value := range overrides {
		v.Set(key, value)
	}
	cfg, err := config.FromViper(v, dir)
	if err != nil {
		return nil, err
	}

	log := ui.NewStderr()
	if noColor {
		log = ui.New(os.Stderr, false)
	}
	return &env{cfg: cfg, brand: brand, log: log}, nil
}

// configFlags maps command flags onto configuration keys.
var configFlags = map[string]string{
	"strategy":          config.KeyStrategy,
	"upstream-remote":   config.KeyUpstreamRemote,
	"upstream-branch":   config.KeyUpstreamBranch,
	"manifest":          config.KeyManifestPath,
	"skip-tests":        config.KeySkipTests,
	"test-pool":         config.KeyTestPool,
	"no-pool-fallback":  config.KeyNoPoolFallback,
	"clean-install":     config.KeyCleanInstall,
	"auto-commit":       config.KeyAutoCommit,
	"auto-push":         config.KeyAutoPush,
	"no-verify":         config.KeyNoVerify,
	"auto-resolve":      config.KeyAutoResolveManifest,
	"merge-fallback":    config.KeyMergeFallback,
	"allowlist":         config.KeyAuditAllowList,
	"marker":            config.KeyAuditMarker,
	"tolerate-conflict": config.KeyTolerateConflicts,
}

// bindFlags binds every changed flag of cmd that names a configuration key.
// Boolean flags are translated to the "1" sentinel.
func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	for name, key := range configFlags {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		value := f.Value.String()
		if f.Value.Type() == "bool" {
			if value == "true" {
				value = "1"
			} else {
				value = "0"
			}
		}
		v.Set(key, value)
	}
}

// addSyncFlags registers the flags shared by maintain and sync.
func addSyncFlags(cmd *cobra.Command) {
	cmd.Flags().String("strategy", "", "Sync strategy: rebase or merge")
	cmd.Flags().String("upstream-remote", "", "Upstream remote name")
	cmd.Flags().String("upstream-branch", "", "Upstream branch")
	cmd.Flags().String("manifest", "", "Manifest path relative to the repository")
	cmd.Flags().Bool("auto-commit", false, "Commit residual changes after a successful sync")
	cmd.Flags().Bool("auto-push", false, "Push the auto-commit")
	cmd.Flags().Bool("no-verify", false, "Skip commit hooks")
	cmd.Flags().Bool("auto-resolve", false, "Auto-resolve manifest-only conflicts")
	cmd.Flags().Bool("merge-fallback", false, "Fall back from rebase to merge on conflict")
	cmd.Flags().Bool("tolerate-conflict", false, "Report sync conflicts without failing the run")
}

// addTestFlags registers the test runner flags.
func addTestFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("skip-tests", false, "Skip the test suite")
	cmd.Flags().String("test-pool", "", "Primary test worker pool")
	cmd.Flags().Bool("no-pool-fallback", false, "Do not retry infra failures on the fallback pool")
}

// addAuditFlags registers the audit flags.
func addAuditFlags(cmd *cobra.Command) {
	cmd.Flags().String("allowlist", "", "Audit allow-list file (YAML)")
	cmd.Flags().String("marker", "", "Literal the audit searches for")
}

// exitWith converts a summary exit code into a command error.
func exitWith(code int) error {
	if code == 0 {
		return nil
	}
	return &ExitError{Code: code}
}
