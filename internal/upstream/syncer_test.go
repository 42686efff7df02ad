package upstream

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentx-labs/forksync/internal/branding"
	"github.com/agentx-labs/forksync/internal/config"
	"github.com/agentx-labs/forksync/internal/gitx"
	"github.com/agentx-labs/forksync/internal/manifest"
	"github.com/agentx-labs/forksync/internal/report"
)

const upstreamManifest = `{
  "name": "copilot-chat",
  "displayName": "GitHub Copilot Chat",
  "description": "Chat with GitHub Copilot Chat",
  "version": "0.32.0",
  "publisher": "GitHub",
  "engines": {"vscode": "^1.104.0"},
  "dependencies": {"a": "2", "b": "3"}
}`

const forkManifest = `{
  "name": "copilot-chat",
  "displayName": "Nimbus Chat",
  "description": "Chat with Nimbus Chat",
  "version": "0.31.0",
  "publisher": "GitHub",
  "icon": "assets/nimbus.png",
  "engines": {"vscode": "^1.104.0"},
  "dependencies": {"a": "1", "fork-only": "9"}
}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		RepoDir: t.TempDir(),
		Sync: config.SyncConfig{
			Enabled:        true,
			Strategy:       config.StrategyRebase,
			UpstreamRemote: "upstream",
			UpstreamBranch: "main",
			ManifestPath:   "package.json",
		},
		Commit: config.CommitConfig{Message: config.DefaultCommitMessage},
		Push:   config.PushConfig{Remote: "origin"},
	}
}

func behind(n int) *gitx.Divergence { return &gitx.Divergence{Behind: n, Ahead: 1} }

func runSync(t *testing.T, repo *fakeRepo, cfg *config.Config) (*SyncState, *report.Summary) {
	t.Helper()
	if repo.branch == "" {
		repo.branch = "main"
	}
	summary := report.New()
	state := New(repo, cfg, branding.Default(), nil, summary).Run(context.Background())
	return state, summary
}

func TestRun_Disabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.Enabled = false
	repo := &fakeRepo{}

	state, summary := runSync(t, repo, cfg)
	assert.Equal(t, ResultSkipped, state.Result)
	assert.Empty(t, repo.calls)
	assert.Equal(t, report.ExitOK, summary.ExitCode())
}

func TestRun_UpToDate_NoMutation(t *testing.T) {
	cfg := testConfig(t)
	cfg.Commit.Auto = true
	cfg.Push.Auto = true
	repo := &fakeRepo{
		divergence: []*gitx.Divergence{{Behind: 0, Ahead: 3}},
		dirty:      []bool{true},
	}

	state, summary := runSync(t, repo, cfg)
	assert.Equal(t, ResultUpToDate, state.Result)
	assert.False(t, state.Performed)
	assert.Nil(t, state.Commit)
	assert.Nil(t, state.Push)
	assert.Empty(t, repo.mutations())
	assert.Equal(t, report.ExitOK, summary.ExitCode())
}

func TestRun_DirtyAbort(t *testing.T) {
	cfg := testConfig(t)
	repo := &fakeRepo{
		divergence: []*gitx.Divergence{behind(2)},
		dirty:      []bool{true},
	}

	state, summary := runSync(t, repo, cfg)
	assert.Equal(t, ResultDirtyAbort, state.Result)
	assert.Empty(t, repo.mutations())
	assert.True(t, summary.HasFatal())
	assert.Equal(t, report.ExitFatal, summary.ExitCode())
}

func TestRun_DirtyGatePrecedence(t *testing.T) {
	tests := []struct {
		name      string
		commit    bool
		stash     bool
		allow     bool
		handling  string
		firstCall string
	}{
		{"commit wins over everything", true, true, true, DirtyCommit, "add -A"},
		{"stash wins over allow", false, true, true, DirtyStash, "stash"},
		{"allow", false, false, true, DirtyAllow, "rebase --autostash upstream/main"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Commit.Auto = tt.commit
			cfg.Sync.Stash = tt.stash
			cfg.Sync.AllowDirty = tt.allow
			repo := &fakeRepo{
				divergence: []*gitx.Divergence{behind(1), {}},
				dirty:      []bool{true, false},
			}

			state, _ := runSync(t, repo, cfg)
			assert.Equal(t, tt.handling, state.DirtyHandling)
			require.NotEmpty(t, repo.mutations())
			assert.Equal(t, tt.firstCall, repo.mutations()[0])
			assert.Equal(t, ResultOK, state.Result)
		})
	}
}

func TestRun_StashRestoredAfterConflict(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.Stash = true
	cfg.Sync.TolerateConflicts = true
	repo := &fakeRepo{
		divergence: []*gitx.Divergence{behind(1)},
		dirty:      []bool{true},
		rebaseErr:  errors.New("conflict"),
		conflicts:  [][]string{{"src/a.ts"}},
		inProgress: []gitx.Operation{gitx.OpRebase},
	}

	state, summary := runSync(t, repo, cfg)
	assert.Equal(t, ResultConflict, state.Result)
	assert.Equal(t, []string{"src/a.ts"}, state.Conflicts)
	assert.Equal(t, []string{"stash", "rebase upstream/main", "rebase --abort", "stash pop"}, repo.mutations())
	assert.False(t, summary.HasFatal(), "tolerated conflict must not be fatal")
	assert.Equal(t, report.ExitIssues, summary.ExitCode())
	assert.Equal(t, "restored", summary.Status(StepStash))
}

func TestRun_StashPopFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.Stash = true
	repo := &fakeRepo{
		divergence:  []*gitx.Divergence{behind(1), {}},
		dirty:       []bool{true},
		stashPopErr: errors.New("CONFLICT (content)"),
	}

	state, summary := runSync(t, repo, cfg)
	assert.Equal(t, ResultOK, state.Result)
	assert.True(t, state.Stashed)
	assert.Equal(t, "failed", summary.Status(StepStash))
	assert.Equal(t, report.ExitFatal, summary.ExitCode())
}

func TestRun_ConflictFatalUnlessTolerated(t *testing.T) {
	cfg := testConfig(t)
	repo := &fakeRepo{
		divergence: []*gitx.Divergence{behind(1)},
		dirty:      []bool{false},
		rebaseErr:  errors.New("conflict"),
		conflicts:  [][]string{{"package.json", "src/b.ts"}},
		inProgress: []gitx.Operation{gitx.OpRebase},
	}

	state, summary := runSync(t, repo, cfg)
	assert.Equal(t, ResultConflict, state.Result)
	assert.Contains(t, repo.calls, "rebase --abort")
	assert.True(t, summary.HasFatal())
}

func TestRun_FailureWithoutConflictsIsError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.TolerateConflicts = true
	repo := &fakeRepo{
		divergence: []*gitx.Divergence{behind(1)},
		dirty:      []bool{false},
		rebaseErr:  errors.New("error: cannot rebase: You have unstaged changes."),
	}

	state, summary := runSync(t, repo, cfg)
	assert.Equal(t, ResultError, state.Result)
	assert.Empty(t, state.Conflicts)
	assert.Equal(t, string(ResultError), summary.Status(StepSync))
	assert.True(t, summary.HasFatal(), "only conflicts can be tolerated")
}

func TestRun_AllowDirtyCarriesAutostashIntoFallback(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.AllowDirty = true
	cfg.Sync.MergeFallback = true
	repo := &fakeRepo{
		divergence: []*gitx.Divergence{behind(1), {}},
		dirty:      []bool{true},
		rebaseErr:  errors.New("conflict"),
	}

	state, _ := runSync(t, repo, cfg)
	assert.Equal(t, ResultMergeFallback, state.Result)
	assert.Equal(t, []string{
		"rebase --autostash upstream/main",
		"rebase --abort",
		"merge --autostash upstream/main",
	}, repo.mutations())
}

func TestRun_MergeFallback(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.MergeFallback = true
	repo := &fakeRepo{
		divergence: []*gitx.Divergence{behind(3), {Behind: 0, Ahead: 4}},
		dirty:      []bool{false},
		rebaseErr:  errors.New("conflict"),
	}

	state, summary := runSync(t, repo, cfg)
	assert.Equal(t, ResultMergeFallback, state.Result)
	assert.True(t, state.Performed)
	assert.Equal(t, []string{"rebase upstream/main", "rebase --abort", "merge upstream/main"}, repo.mutations())

	// Divergence is measured again after the merge.
	require.NotNil(t, state.PostDivergence)
	assert.Equal(t, gitx.Divergence{Behind: 0, Ahead: 4}, *state.PostDivergence)
	assert.Equal(t, "divergence upstream/main", repo.calls[len(repo.calls)-1])
	assert.Equal(t, report.ExitOK, summary.ExitCode())
}

func TestRun_MergeFallbackFailsToo(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.MergeFallback = true
	repo := &fakeRepo{
		divergence: []*gitx.Divergence{behind(3)},
		dirty:      []bool{false},
		rebaseErr:  errors.New("conflict"),
		mergeErr:   errors.New("conflict"),
		conflicts:  [][]string{{"src/x.ts"}},
		inProgress: []gitx.Operation{gitx.OpMerge},
	}

	state, _ := runSync(t, repo, cfg)
	assert.Equal(t, ResultConflict, state.Result)
	assert.Equal(t, []string{"rebase upstream/main", "rebase --abort", "merge upstream/main", "merge --abort"}, repo.mutations())
}

func TestRun_AutoResolveBeforeFallback(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.AutoResolveManifest = true
	cfg.Sync.MergeFallback = true
	require.NoError(t, os.WriteFile(filepath.Join(cfg.RepoDir, "package.json"), []byte(forkManifest), 0644))

	repo := &fakeRepo{
		divergence: []*gitx.Divergence{behind(1), {Behind: 0, Ahead: 1}},
		dirty:      []bool{false},
		rebaseErr:  errors.New("conflict"),
		conflicts:  [][]string{{"package.json"}},
		inProgress: []gitx.Operation{gitx.OpNone},
		stages: map[int]string{
			gitx.StageBase:   `{"name":"copilot-chat"}`,
			gitx.StageOurs:   upstreamManifest,
			gitx.StageTheirs: forkManifest,
		},
	}

	state, summary := runSync(t, repo, cfg)
	assert.Equal(t, ResultOK, state.Result)
	assert.Equal(t, 1, state.AutoResolved)
	assert.True(t, state.OverlayApplied)
	assert.Equal(t, []string{"rebase upstream/main", "add package.json", "rebase --continue"}, repo.mutations())
	assert.NotContains(t, repo.calls, "merge upstream/main")

	doc, err := manifest.ReadFile(filepath.Join(cfg.RepoDir, "package.json"))
	require.NoError(t, err)
	deps, ok := doc.Object("dependencies")
	require.True(t, ok)
	a, _ := deps.GetString("a")
	assert.Equal(t, "2", a, "upstream wins on shared keys")
	forkOnly, _ := deps.GetString("fork-only")
	assert.Equal(t, "9", forkOnly)
	name, _ := doc.GetString("displayName")
	assert.Equal(t, branding.Default().DisplayName, name)
	version, _ := doc.GetString("version")
	assert.Equal(t, "0.32.0", version)
	assert.Equal(t, "ok", summary.Status(StepManifest))
}

func TestRun_AutoResolveMultipleCommits(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.AutoResolveManifest = true
	require.NoError(t, os.WriteFile(filepath.Join(cfg.RepoDir, "package.json"), []byte(forkManifest), 0644))

	repo := &fakeRepo{
		divergence:  []*gitx.Divergence{behind(2), {}},
		dirty:       []bool{false},
		rebaseErr:   errors.New("conflict"),
		conflicts:   [][]string{{"package.json"}},
		continueErr: []error{errors.New("conflict"), nil},
		inProgress:  []gitx.Operation{gitx.OpRebase, gitx.OpNone},
		stages:      map[int]string{gitx.StageOurs: upstreamManifest, gitx.StageTheirs: forkManifest},
	}

	state, _ := runSync(t, repo, cfg)
	assert.Equal(t, ResultOK, state.Result)
	assert.Equal(t, 2, state.AutoResolved)
}

func TestRun_AutoResolveNotApplicable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.AutoResolveManifest = true
	repo := &fakeRepo{
		divergence: []*gitx.Divergence{behind(1)},
		dirty:      []bool{false},
		rebaseErr:  errors.New("conflict"),
		conflicts:  [][]string{{"package.json", "src/extension.ts"}},
		inProgress: []gitx.Operation{gitx.OpRebase},
	}

	state, _ := runSync(t, repo, cfg)
	assert.Equal(t, ResultConflict, state.Result)
	assert.Zero(t, state.AutoResolved)
	assert.Equal(t, []string{"package.json", "src/extension.ts"}, state.Conflicts)
}

func TestRun_MergeStrategyAutoResolveUsesOursAsLocal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.Strategy = config.StrategyMerge
	cfg.Sync.AutoResolveManifest = true
	require.NoError(t, os.WriteFile(filepath.Join(cfg.RepoDir, "package.json"), []byte(forkManifest), 0644))

	repo := &fakeRepo{
		divergence: []*gitx.Divergence{behind(1), {}},
		dirty:      []bool{false},
		mergeErr:   errors.New("conflict"),
		conflicts:  [][]string{{"package.json"}},
		stages:     map[int]string{gitx.StageOurs: forkManifest, gitx.StageTheirs: upstreamManifest},
	}

	state, _ := runSync(t, repo, cfg)
	require.Equal(t, ResultOK, state.Result)
	assert.Equal(t, []string{"merge upstream/main", "add package.json", "merge --continue"}, repo.mutations())

	doc, err := manifest.ReadFile(filepath.Join(cfg.RepoDir, "package.json"))
	require.NoError(t, err)
	version, _ := doc.GetString("version")
	assert.Equal(t, "0.32.0", version)
}

func TestRun_CommitRetriesWithoutHooks(t *testing.T) {
	cfg := testConfig(t)
	cfg.Commit.Auto = true
	cfg.Push.Auto = true
	repo := &fakeRepo{
		divergence: []*gitx.Divergence{behind(1), {}},
		dirty:      []bool{false, true},
		commitErr:  []error{errors.New("pre-commit hook failed"), nil},
	}

	state, summary := runSync(t, repo, cfg)
	require.NotNil(t, state.Commit)
	assert.True(t, state.Commit.NoVerify)
	assert.Equal(t, config.DefaultCommitMessage, state.Commit.Message)
	assert.Equal(t, []string{
		"rebase upstream/main",
		"add -A",
		"commit " + config.DefaultCommitMessage,
		"commit --no-verify " + config.DefaultCommitMessage,
		"push --force-with-lease origin main",
	}, repo.mutations())
	require.NotNil(t, state.Push)
	assert.Equal(t, PushInfo{Remote: "origin", Branch: "main"}, *state.Push)
	assert.Equal(t, report.ExitOK, summary.ExitCode())
}

func TestRun_NoCommitWhenClean(t *testing.T) {
	cfg := testConfig(t)
	cfg.Commit.Auto = true
	cfg.Push.Auto = true
	repo := &fakeRepo{
		divergence: []*gitx.Divergence{behind(1), {}},
		dirty:      []bool{false},
	}

	state, _ := runSync(t, repo, cfg)
	assert.Nil(t, state.Commit)
	assert.Nil(t, state.Push, "push requires a commit")
	assert.Equal(t, []string{"rebase upstream/main"}, repo.mutations())
}

func TestRun_PushUsesPushRetries(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.FetchRetries = 1
	cfg.Commit.Auto = true
	cfg.Push.Auto = true
	cfg.Push.Retries = 4
	repo := &fakeRepo{
		divergence: []*gitx.Divergence{behind(1), {}},
		dirty:      []bool{false, true},
	}

	state, _ := runSync(t, repo, cfg)
	require.NotNil(t, state.Push)
	assert.Equal(t, 4, repo.pushRetries)
}

func TestRun_PushToConfiguredBranch(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.Strategy = config.StrategyMerge
	cfg.Commit.Auto = true
	cfg.Push.Auto = true
	cfg.Push.Remote = "fork"
	cfg.Push.Branch = "release"
	repo := &fakeRepo{
		divergence: []*gitx.Divergence{behind(1), {}},
		dirty:      []bool{false, true},
	}

	state, _ := runSync(t, repo, cfg)
	require.NotNil(t, state.Push)
	assert.Contains(t, repo.calls, "push fork release")
}

func TestRun_FetchFailure(t *testing.T) {
	t.Run("advisory by default", func(t *testing.T) {
		cfg := testConfig(t)
		repo := &fakeRepo{
			fetchErr:   errors.New("network down"),
			divergence: []*gitx.Divergence{{}},
		}
		state, summary := runSync(t, repo, cfg)
		assert.Equal(t, ResultUpToDate, state.Result)
		assert.Equal(t, "failed", summary.Status(StepFetch))
		assert.Equal(t, report.ExitOK, summary.ExitCode())
	})

	t.Run("fatal when required", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Sync.RequireFetch = true
		repo := &fakeRepo{
			fetchErr:   errors.New("network down"),
			divergence: []*gitx.Divergence{{}},
		}
		state, summary := runSync(t, repo, cfg)
		assert.Equal(t, ResultUpToDate, state.Result, "later steps still run")
		assert.Equal(t, report.ExitFatal, summary.ExitCode())
	})
}

func TestRun_NoDivergenceData(t *testing.T) {
	cfg := testConfig(t)
	repo := &fakeRepo{divErr: gitx.ErrNoRef}

	state, summary := runSync(t, repo, cfg)
	assert.Equal(t, ResultSkipped, state.Result)
	assert.Equal(t, "no divergence data", state.Reason)
	assert.Empty(t, repo.mutations())
	assert.Equal(t, report.ExitOK, summary.ExitCode())
}

func TestRun_OverlayReappliedAfterSync(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(cfg.RepoDir, "package.json")
	require.NoError(t, os.WriteFile(path, []byte(upstreamManifest), 0644))
	repo := &fakeRepo{
		divergence: []*gitx.Divergence{behind(1), {}},
		dirty:      []bool{false},
	}

	state, _ := runSync(t, repo, cfg)
	assert.True(t, state.OverlayApplied)
	branded, err := manifest.HasBrandMarker(path, branding.Default())
	require.NoError(t, err)
	assert.True(t, branded)
}

func TestSyncState_JSON(t *testing.T) {
	state := &SyncState{
		Strategy:       config.StrategyRebase,
		UpstreamRef:    "upstream/main",
		Result:         ResultMergeFallback,
		Performed:      true,
		PostDivergence: &gitx.Divergence{Behind: 0, Ahead: 2},
	}
	var buf bytes.Buffer
	require.NoError(t, state.WriteJSON(&buf))
	assert.Contains(t, buf.String(), `"result": "ok-merge-fallback"`)
	assert.Contains(t, buf.String(), `"postDivergence": {`)
}
