package upstream

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentx-labs/forksync/internal/branding"
	"github.com/agentx-labs/forksync/internal/config"
	"github.com/agentx-labs/forksync/internal/gitx"
	"github.com/agentx-labs/forksync/internal/manifest"
	"github.com/agentx-labs/forksync/internal/report"
	"github.com/agentx-labs/forksync/internal/ui"
)

// SnapshotMessage is the commit message used when the dirty-tree gate
// snapshots local changes before syncing.
const SnapshotMessage = "chore: snapshot local changes before upstream sync"

const stashMessage = "forksync: pre-sync stash"

// Syncer runs the upstream sync pipeline.
type Syncer struct {
	Repo    Repo
	Config  *config.Config
	Brand   branding.Brand
	Log     *ui.Logger
	Summary *report.Summary
}

// New returns a Syncer. A nil logger discards output and a nil summary is
// replaced with a fresh one.
func New(repo Repo, cfg *config.Config, brand branding.Brand, log *ui.Logger, summary *report.Summary) *Syncer {
	if log == nil {
		log = ui.Discard()
	}
	if summary == nil {
		summary = report.New()
	}
	return &Syncer{Repo: repo, Config: cfg, Brand: brand, Log: log, Summary: summary}
}

// Run performs one sync pass and returns its state. Outcomes and issues are
// recorded on s.Summary.
func (s *Syncer) Run(ctx context.Context) *SyncState {
	sc := s.Config.Sync
	state := &SyncState{
		Strategy:    sc.Strategy,
		UpstreamRef: sc.UpstreamRef(),
	}

	s.Log.Step("Upstream sync")
	if !sc.Enabled {
		s.skip(state, "auto-rebase disabled")
		return state
	}

	if branch, err := s.Repo.CurrentBranch(ctx); err != nil {
		s.Log.Warn("could not resolve current branch: %v", err)
	} else {
		state.CurrentBranch = branch
	}

	s.fetch(ctx)

	div, ok := s.divergence(ctx, state.UpstreamRef)
	if !ok {
		s.skip(state, "no divergence data")
		return state
	}
	state.Divergence = div

	if div.Behind == 0 {
		state.Result = ResultUpToDate
		state.PostDivergence = div
		s.Summary.Record(StepSync, string(ResultUpToDate), "")
		s.Log.Pass("already up to date with %s (%s)", state.UpstreamRef, div)
		return state
	}

	if !s.gateDirty(ctx, state) {
		return state
	}
	if state.Stashed {
		defer s.restoreStash(ctx)
	}

	s.integrate(ctx, state)

	if state.Result.Succeeded() {
		s.autoCommit(ctx, state)
		s.autoPush(ctx, state)
	}
	return state
}

func (s *Syncer) skip(state *SyncState, reason string) {
	state.Result = ResultSkipped
	state.Reason = reason
	s.Summary.Record(StepSync, string(ResultSkipped), reason)
	s.Log.Info("sync skipped: %s", reason)
}

// fetch reports failure as advisory, or fatal when the fetch is required.
func (s *Syncer) fetch(ctx context.Context) {
	sc := s.Config.Sync
	err := s.Repo.Fetch(ctx, sc.UpstreamRemote, sc.UpstreamBranch, sc.FetchRetries)
	switch {
	case err == nil:
		s.Summary.Record(StepFetch, "ok", "")
		s.Log.Pass("fetched %s", sc.UpstreamRef())
	case sc.RequireFetch:
		s.Summary.Fatal(StepFetch, "failed", "fetch of %s failed: %v", sc.UpstreamRef(), firstLine(err))
		s.Log.Fail("fetch failed: %v", err)
	default:
		s.Summary.Record(StepFetch, "failed", firstLine(err))
		s.Log.Warn("fetch failed, continuing with the last fetched %s: %v", sc.UpstreamRef(), err)
	}
}

func (s *Syncer) divergence(ctx context.Context, ref string) (*gitx.Divergence, bool) {
	div, err := s.Repo.Divergence(ctx, ref)
	switch {
	case err == nil:
		s.Summary.Record(StepDivergence, "ok", div.String())
		s.Log.Info("%s: %s", ref, div)
		return div, true
	case errors.Is(err, gitx.ErrNoRef):
		s.Summary.Record(StepDivergence, "unavailable", "")
		s.Log.Warn("no divergence data: %s does not resolve", ref)
	default:
		s.Summary.Record(StepDivergence, "unavailable", firstLine(err))
		s.Log.Warn("no divergence data: %v", err)
	}
	return nil, false
}

// gateDirty applies the dirty-tree policy. It returns false when the sync
// must not proceed.
func (s *Syncer) gateDirty(ctx context.Context, state *SyncState) bool {
	dirty, err := s.Repo.IsDirty(ctx)
	if err != nil {
		state.Result = ResultError
		s.Summary.Fatal(StepSync, string(ResultError), "could not inspect working tree: %v", firstLine(err))
		s.Log.Fail("could not inspect working tree: %v", err)
		return false
	}
	if !dirty {
		return true
	}

	cfg := s.Config
	switch {
	case cfg.Commit.Auto:
		state.DirtyHandling = DirtyCommit
		if err := s.Repo.AddAll(ctx); err != nil {
			return s.abortDirty(state, "snapshot commit failed: %v", err)
		}
		sha, _, err := s.commit(ctx, SnapshotMessage)
		if err != nil {
			return s.abortDirty(state, "snapshot commit failed: %v", err)
		}
		state.Snapshot = sha
		s.Log.Pass("committed local changes as %s", shortSHA(sha))
	case cfg.Sync.Stash:
		state.DirtyHandling = DirtyStash
		if err := s.Repo.Stash(ctx, stashMessage); err != nil {
			return s.abortDirty(state, "stash failed: %v", err)
		}
		state.Stashed = true
		s.Log.Pass("stashed local changes")
	case cfg.Sync.AllowDirty:
		state.DirtyHandling = DirtyAllow
		s.Log.Warn("working tree is dirty; proceeding as allowed")
	default:
		return s.abortDirty(state, "working tree has uncommitted changes; commit, stash or allow them before syncing")
	}
	return true
}

func (s *Syncer) abortDirty(state *SyncState, format string, args ...any) bool {
	for i, a := range args {
		if err, ok := a.(error); ok {
			args[i] = firstLine(err)
		}
	}
	state.Result = ResultDirtyAbort
	s.Summary.Fatal(StepSync, string(ResultDirtyAbort), format, args...)
	s.Log.Fail(format, args...)
	return false
}

// integrate attempts the configured strategy, auto-resolution and the merge
// fallback, in that order.
func (s *Syncer) integrate(ctx context.Context, state *SyncState) {
	sc := s.Config.Sync
	ref := state.UpstreamRef

	s.Log.Info("%s onto %s (%d behind)", verb(sc.Strategy), ref, state.Divergence.Behind)
	autostash := state.DirtyHandling == DirtyAllow
	err := s.apply(ctx, sc.Strategy, ref, autostash)
	if err == nil {
		s.succeed(ctx, state, ResultOK)
		return
	}
	s.Log.Warn("%s stopped: %v", sc.Strategy, firstLine(err))

	if sc.AutoResolveManifest && s.autoResolve(ctx, state, opFor(sc.Strategy)) {
		s.succeed(ctx, state, ResultOK)
		return
	}

	if sc.MergeFallback && sc.Strategy == config.StrategyRebase {
		if abortErr := s.Repo.RebaseAbort(ctx); abortErr != nil {
			s.Log.Warn("rebase abort: %v", abortErr)
		}
		s.Log.Info("falling back to merge")
		err = s.Repo.Merge(ctx, ref, autostash)
		if err == nil {
			s.succeed(ctx, state, ResultMergeFallback)
			return
		}
		s.Log.Warn("merge stopped: %v", firstLine(err))
		if sc.AutoResolveManifest && s.autoResolve(ctx, state, gitx.OpMerge) {
			s.succeed(ctx, state, ResultMergeFallback)
			return
		}
	}

	s.fail(ctx, state, err)
}

// apply runs the strategy. autostash carries allowed local changes across
// it, since git refuses to rebase a dirty tree.
func (s *Syncer) apply(ctx context.Context, strategy config.Strategy, ref string, autostash bool) error {
	if strategy == config.StrategyMerge {
		return s.Repo.Merge(ctx, ref, autostash)
	}
	return s.Repo.Rebase(ctx, ref, autostash)
}

// fail collects conflicts, aborts whatever is in progress and reports the
// failure. A conflict is tolerated when configured; a failure without
// conflicted paths (git refused to start, a hook failed) is an error and
// always fatal.
func (s *Syncer) fail(ctx context.Context, state *SyncState, cause error) {
	conflicts, err := s.Repo.ConflictedPaths(ctx)
	if err != nil {
		s.Log.Warn("listing conflicts: %v", err)
	}
	state.Conflicts = conflicts

	op, err := s.Repo.InProgress(ctx)
	if err != nil {
		s.Log.Warn("detecting in-progress operation: %v", err)
	}
	switch op {
	case gitx.OpRebase:
		err = s.Repo.RebaseAbort(ctx)
	case gitx.OpMerge:
		err = s.Repo.MergeAbort(ctx)
	default:
		err = nil
	}
	if err != nil {
		s.Log.Fail("abort %s: %v", op, err)
	}

	if len(conflicts) == 0 {
		state.Result = ResultError
		s.Summary.Fatal(StepSync, string(ResultError), "sync with %s failed: %s", state.UpstreamRef, firstLine(cause))
		s.Log.Fail("sync failed: %v", cause)
		return
	}

	state.Result = ResultConflict
	detail := "conflicts in " + strings.Join(conflicts, ", ")
	tolerated := s.Config.Sync.TolerateConflicts
	s.Summary.Tolerable(StepSync, string(ResultConflict), tolerated, "sync with %s failed: %s", state.UpstreamRef, detail)
	if tolerated {
		s.Log.Warn("sync failed (tolerated): %s", detail)
	} else {
		s.Log.Fail("sync failed: %s", detail)
	}
}

// succeed marks the sync performed, re-brands the manifest if the sync
// stripped the brand and measures divergence again.
func (s *Syncer) succeed(ctx context.Context, state *SyncState, result Result) {
	state.Performed = true
	state.Result = result

	s.postSyncManifest(ctx, state)

	div, err := s.Repo.Divergence(ctx, state.UpstreamRef)
	if err != nil {
		s.Log.Warn("post-sync divergence unavailable: %v", err)
	} else {
		state.PostDivergence = div
	}

	detail := ""
	if div != nil {
		detail = div.String()
	}
	s.Summary.Record(StepSync, string(result), detail)
	s.Log.Pass("synced with %s (%s)", state.UpstreamRef, result)
}

func (s *Syncer) postSyncManifest(_ context.Context, state *SyncState) {
	path := s.manifestPath()
	if _, err := os.Stat(path); err != nil {
		s.Log.Info("no manifest at %s; overlay skipped", s.Config.Sync.ManifestPath)
		return
	}

	branded, err := manifest.HasBrandMarker(path, s.Brand)
	if err != nil {
		s.Summary.Tolerable(StepManifest, "error", true, "reading manifest after sync: %v", err)
		s.Log.Warn("reading manifest: %v", err)
		return
	}
	if !branded {
		if _, err := manifest.ApplyOverlayFile(path, s.Brand); err != nil {
			s.Summary.Tolerable(StepManifest, "error", true, "re-applying brand overlay: %v", err)
			s.Log.Warn("brand overlay: %v", err)
			return
		}
		state.OverlayApplied = true
		s.Log.Pass("re-applied brand overlay to %s", s.Config.Sync.ManifestPath)
	}

	result, err := manifest.ValidateFile(path)
	switch {
	case err != nil:
		s.Summary.Tolerable(StepManifest, "invalid", true, "manifest validation: %v", err)
		s.Log.Warn("manifest validation: %v", err)
	case !result.Valid:
		msgs := make([]string, 0, len(result.Issues))
		for _, issue := range result.Issues {
			msgs = append(msgs, issue.String())
		}
		s.Summary.Tolerable(StepManifest, "invalid", true, "manifest fails schema validation: %s", strings.Join(msgs, "; "))
		s.Log.Warn("manifest fails schema validation (%d issue(s))", len(result.Issues))
	default:
		s.Summary.Record(StepManifest, "ok", "")
	}
}

func (s *Syncer) manifestPath() string {
	return filepath.Join(s.Config.RepoDir, s.Config.Sync.ManifestPath)
}

// commit commits the index, retrying once without hooks when a verified
// commit fails. It reports whether hooks were skipped.
func (s *Syncer) commit(ctx context.Context, message string) (string, bool, error) {
	noVerify := s.Config.Commit.NoVerify
	sha, err := s.Repo.Commit(ctx, message, noVerify)
	if err == nil || noVerify {
		return sha, noVerify, err
	}
	s.Log.Warn("commit hooks failed; retrying with --no-verify: %v", firstLine(err))
	sha, err = s.Repo.Commit(ctx, message, true)
	return sha, true, err
}

func (s *Syncer) autoCommit(ctx context.Context, state *SyncState) {
	if !s.Config.Commit.Auto {
		return
	}
	dirty, err := s.Repo.IsDirty(ctx)
	if err != nil {
		s.Summary.Tolerable(StepCommit, "failed", true, "auto-commit: %v", firstLine(err))
		return
	}
	if !dirty {
		s.Summary.Record(StepCommit, "skipped", "")
		s.Log.Info("nothing to commit")
		return
	}

	msg := s.Config.Commit.Message
	if err := s.Repo.AddAll(ctx); err != nil {
		s.Summary.Tolerable(StepCommit, "failed", true, "auto-commit: %v", firstLine(err))
		s.Log.Fail("staging failed: %v", err)
		return
	}
	sha, noVerify, err := s.commit(ctx, msg)
	if err != nil {
		s.Summary.Tolerable(StepCommit, "failed", true, "auto-commit: %v", firstLine(err))
		s.Log.Fail("commit failed: %v", err)
		return
	}
	state.Commit = &CommitInfo{Message: msg, SHA: sha, NoVerify: noVerify}
	s.Summary.Record(StepCommit, "ok", shortSHA(sha))
	s.Log.Pass("committed %s", shortSHA(sha))
}

func (s *Syncer) autoPush(ctx context.Context, state *SyncState) {
	pc := s.Config.Push
	if !pc.Auto || state.Commit == nil {
		return
	}
	branch := pc.Branch
	if branch == "" {
		branch = state.CurrentBranch
	}
	if branch == "" || branch == "HEAD" {
		s.Summary.Tolerable(StepPush, "failed", true, "auto-push: no branch to push (detached HEAD)")
		s.Log.Fail("auto-push: no branch to push")
		return
	}

	rewritten := state.Result == ResultOK && state.Strategy == config.StrategyRebase
	if err := s.Repo.Push(ctx, pc.Remote, branch, rewritten, pc.Retries); err != nil {
		s.Summary.Tolerable(StepPush, "failed", true, "auto-push to %s/%s: %v", pc.Remote, branch, firstLine(err))
		s.Log.Fail("push failed: %v", err)
		return
	}
	state.Push = &PushInfo{Remote: pc.Remote, Branch: branch}
	s.Summary.Record(StepPush, "ok", pc.Remote+"/"+branch)
	s.Log.Pass("pushed to %s/%s", pc.Remote, branch)
}

// restoreStash pops the pre-sync stash. A failure leaves the changes in the
// stash list and fails the run so someone restores them by hand.
func (s *Syncer) restoreStash(ctx context.Context) {
	if err := s.Repo.StashPop(ctx); err != nil {
		s.Summary.Fatal(StepStash, "failed", "restoring stashed changes failed; run `git stash pop` manually: %v", firstLine(err))
		s.Log.Fail("stash pop failed: %v", err)
		return
	}
	s.Summary.Record(StepStash, "restored", "")
	s.Log.Pass("restored stashed changes")
}

func opFor(strategy config.Strategy) gitx.Operation {
	if strategy == config.StrategyMerge {
		return gitx.OpMerge
	}
	return gitx.OpRebase
}

func verb(strategy config.Strategy) string {
	if strategy == config.StrategyMerge {
		return "merging"
	}
	return "rebasing"
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}

// firstLine keeps summary entries to one line; the console log carries the
// full command output.
func firstLine(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return msg[:i]
	}
	return msg
}
