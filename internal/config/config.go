package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentx-labs/forksync/internal/branding"
	"github.com/spf13/viper"
)

const (
	fileName = "config"
	fileType = "yaml"
)

// Strategy selects how the fork integrates upstream.
type Strategy string

const (
	StrategyRebase Strategy = "rebase"
	StrategyMerge  Strategy = "merge"
)

// Config is the fully resolved run configuration. It is built once at the
// command entry point and passed down; nothing below the CLI reads the
// environment.
type Config struct {
	RepoDir string
	Sync    SyncConfig
	Commit  CommitConfig
	Push    PushConfig
	Install InstallConfig
	Test    TestConfig
	Audit   AuditConfig
}

// SyncConfig controls the upstream sync.
type SyncConfig struct {
	Enabled             bool
	Strategy            Strategy
	UpstreamRemote      string
	UpstreamBranch      string
	RequireFetch        bool
	FetchRetries        int
	Stash               bool
	AllowDirty          bool
	TolerateConflicts   bool
	AutoResolveManifest bool
	MergeFallback       bool
	ManifestPath        string
}

// UpstreamRef returns the remote-tracking ref, e.g. "upstream/main".
func (s SyncConfig) UpstreamRef() string {
	return s.UpstreamRemote + "/" + s.UpstreamBranch
}

// CommitConfig controls the auto-commit step.
type CommitConfig struct {
	Auto     bool
	Message  string
	NoVerify bool
}

// PushConfig controls the auto-push step. An empty Branch means the current
// branch.
type PushConfig struct {
	Auto    bool
	Remote  string
	Branch  string
	Retries int
}

// InstallConfig controls dependency installation.
type InstallConfig struct {
	Clean                  bool
	TolerateEngineMismatch bool
}

// TestConfig controls the test runner.
type TestConfig struct {
	Skip            bool
	Command         []string
	Pool            string
	FallbackPool    string
	DisableFallback bool
	TolerateFlake   bool
	TolerateFailure bool
}

// AuditConfig controls the brand audit.
type AuditConfig struct {
	Marker    string
	Roots     []string
	AllowList string
}

// Keys, relative to the env prefix (FORKSYNC_AUTO_REBASE, ...).
const (
	KeyAutoRebase             = "auto_rebase"
	KeyStrategy               = "sync_strategy"
	KeyUpstreamRemote         = "upstream_remote"
	KeyUpstreamBranch         = "upstream_branch"
	KeyRequireFetch           = "require_fetch"
	KeyFetchRetries           = "fetch_retries"
	KeyStashDirty             = "stash_dirty"
	KeyAllowDirty             = "allow_dirty"
	KeyTolerateConflicts      = "tolerate_conflicts"
	KeyAutoResolveManifest    = "auto_resolve_manifest"
	KeyMergeFallback          = "merge_fallback"
	KeyManifestPath           = "manifest_path"
	KeyAutoCommit             = "auto_commit"
	KeyCommitMessage          = "commit_message"
	KeyNoVerify               = "no_verify"
	KeyAutoPush               = "auto_push"
	KeyPushRemote             = "push_remote"
	KeyPushBranch             = "push_branch"
	KeyPushRetries            = "push_retries"
	KeyCleanInstall           = "clean_install"
	KeyTolerateEngineMismatch = "tolerate_engine_mismatch"
	KeySkipTests              = "skip_tests"
	KeyTestCommand            = "test_command"
	KeyTestPool               = "test_pool"
	KeyTestFallbackPool       = "test_fallback_pool"
	KeyNoPoolFallback         = "no_pool_fallback"
	KeyTolerateTestFlake      = "tolerate_test_flake"
	KeyTolerateTestFailure    = "tolerate_test_failure"
	KeyAuditMarker            = "audit_marker"
	KeyAuditRoots             = "audit_roots"
	KeyAuditAllowList         = "audit_allowlist"
)

// DefaultCommitMessage is used when no commit message is configured.
const DefaultCommitMessage = "chore: sync with upstream"

// SetDefaults registers documented defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyStrategy, string(StrategyRebase))
	v.SetDefault(KeyUpstreamRemote, "upstream")
	v.SetDefault(KeyUpstreamBranch, "main")
	v.SetDefault(KeyFetchRetries, 2)
	v.SetDefault(KeyManifestPath, "package.json")
	v.SetDefault(KeyCommitMessage, DefaultCommitMessage)
	v.SetDefault(KeyPushRemote, "origin")
	v.SetDefault(KeyPushRetries, 2)
	v.SetDefault(KeyTestCommand, "npm test --")
	v.SetDefault(KeyTestPool, "threads")
	v.SetDefault(KeyTestFallbackPool, "forks")
	v.SetDefault(KeyAuditMarker, branding.Default().UpstreamDisplayName)
	v.SetDefault(KeyAuditRoots, "src,package.nls.json")
}

// Dir returns the path to the config directory (~/.forksync/).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", branding.HomeDir())
	}
	return filepath.Join(home, branding.HomeDir())
}

// FilePath returns the full path to the config file (~/.forksync/config.yaml).
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// EnsureDir creates the config directory if it does not exist.
func EnsureDir() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

// New returns a Viper reading the user config file and the environment.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(FilePath())
	v.SetConfigType(fileType)
	v.SetEnvPrefix(branding.EnvPrefix())
	v.AutomaticEnv()
	SetDefaults(v)

	// Ignore error if config file doesn't exist yet.
	_ = v.ReadInConfig()
	return v
}

// FromViper resolves a Config from v. repoDir is the working tree the run
// operates on.
func FromViper(v *viper.Viper, repoDir string) (*Config, error) {
	cfg := &Config{
		RepoDir: repoDir,
		Sync: SyncConfig{
			Enabled:             flag(v, KeyAutoRebase),
			Strategy:            Strategy(strings.ToLower(strings.TrimSpace(v.GetString(KeyStrategy)))),
			UpstreamRemote:      v.GetString(KeyUpstreamRemote),
			UpstreamBranch:      v.GetString(KeyUpstreamBranch),
			RequireFetch:        flag(v, KeyRequireFetch),
			FetchRetries:        v.GetInt(KeyFetchRetries),
			Stash:               flag(v, KeyStashDirty),
			AllowDirty:          flag(v, KeyAllowDirty),
			TolerateConflicts:   flag(v, KeyTolerateConflicts),
			AutoResolveManifest: flag(v, KeyAutoResolveManifest),
			MergeFallback:       flag(v, KeyMergeFallback),
			ManifestPath:        v.GetString(KeyManifestPath),
		},
		Commit: CommitConfig{
			Auto:     flag(v, KeyAutoCommit),
			Message:  v.GetString(KeyCommitMessage),
			NoVerify: flag(v, KeyNoVerify),
		},
		Push: PushConfig{
			Auto:    flag(v, KeyAutoPush),
			Remote:  v.GetString(KeyPushRemote),
			Branch:  v.GetString(KeyPushBranch),
			Retries: v.GetInt(KeyPushRetries),
		},
		Install: InstallConfig{
			Clean:                  flag(v, KeyCleanInstall),
			TolerateEngineMismatch: flag(v, KeyTolerateEngineMismatch),
		},
		Test: TestConfig{
			Skip:            flag(v, KeySkipTests),
			Command:         strings.Fields(v.GetString(KeyTestCommand)),
			Pool:            v.GetString(KeyTestPool),
			FallbackPool:    v.GetString(KeyTestFallbackPool),
			DisableFallback: flag(v, KeyNoPoolFallback),
			TolerateFlake:   flag(v, KeyTolerateTestFlake),
			TolerateFailure: flag(v, KeyTolerateTestFailure),
		},
		Audit: AuditConfig{
			Marker:    v.GetString(KeyAuditMarker),
			Roots:     splitList(v.GetString(KeyAuditRoots)),
			AllowList: v.GetString(KeyAuditAllowList),
		},
	}
	if cfg.Commit.Message == "" {
		cfg.Commit.Message = DefaultCommitMessage
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Sync.Strategy {
	case StrategyRebase, StrategyMerge:
		// valid
	default:
		return fmt.Errorf("invalid sync strategy: %q (must be rebase or merge)", c.Sync.Strategy)
	}
	if c.Sync.UpstreamRemote == "" {
		return fmt.Errorf("upstream remote is required")
	}
	if c.Sync.UpstreamBranch == "" {
		return fmt.Errorf("upstream branch is required")
	}
	if c.Sync.FetchRetries < 0 {
		return fmt.Errorf("fetch retries must not be negative")
	}
	if c.Sync.ManifestPath == "" {
		return fmt.Errorf("manifest path is required")
	}
	if filepath.IsAbs(c.Sync.ManifestPath) {
		return fmt.Errorf("manifest path must be relative to the repository: %s", c.Sync.ManifestPath)
	}
	if c.Push.Retries < 0 {
		return fmt.Errorf("push retries must not be negative")
	}
	if c.Push.Auto && c.Push.Remote == "" {
		return fmt.Errorf("push remote is required when auto-push is enabled")
	}
	if !c.Test.Skip && len(c.Test.Command) == 0 {
		return fmt.Errorf("test command is required unless tests are skipped")
	}
	return nil
}

// flag reads a boolean toggle. "1" is the documented sentinel; viper's
// usual truthy spellings are accepted too.
func flag(v *viper.Viper, key string) bool {
	raw := strings.ToLower(strings.TrimSpace(v.GetString(key)))
	switch raw {
	case "1", "true", "yes", "on", "y":
		return true
	default:
		return false
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Get returns a value from the user config file. Returns empty string if
// not set.
func Get(key string) string {
	return New().GetString(key)
}

// Set writes a config key-value pair and saves the config file.
func Set(key, value string) error {
	if err := EnsureDir(); err != nil {
		return err
	}

	// Only the file's own keys are written back; defaults and environment
	// values stay out of it.
	v := viper.New()
	v.SetConfigFile(FilePath())
	v.SetConfigType(fileType)
	_ = v.ReadInConfig()
	v.Set(key, value)

	configFile := FilePath()

	// Create the file if it doesn't exist.
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("creating config file %s: %w", configFile, err)
		}
		f.Close()
	}

	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
