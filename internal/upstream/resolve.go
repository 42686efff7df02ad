package upstream

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentx-labs/forksync/internal/gitx"
	"github.com/agentx-labs/forksync/internal/manifest"
)

// maxResolveRounds bounds how many replayed commits may be auto-resolved in
// a single rebase.
const maxResolveRounds = 50

// autoResolve resolves the in-progress operation while the tracked manifest
// is the only conflicted path. It returns true once the operation completed.
func (s *Syncer) autoResolve(ctx context.Context, state *SyncState, op gitx.Operation) bool {
	target := filepath.ToSlash(filepath.Clean(s.Config.Sync.ManifestPath))

	for round := 0; round < maxResolveRounds; round++ {
		paths, err := s.Repo.ConflictedPaths(ctx)
		if err != nil {
			s.Log.Warn("auto-resolve: %v", err)
			return false
		}
		if len(paths) != 1 || paths[0] != target {
			if len(paths) > 0 {
				s.Log.Info("auto-resolve not applicable: %d conflicted path(s)", len(paths))
			}
			return false
		}

		if err := s.resolveManifest(ctx, op, target); err != nil {
			s.Log.Warn("auto-resolve: %v", err)
			return false
		}
		state.AutoResolved++
		s.Log.Pass("auto-resolved %s", target)

		if op == gitx.OpMerge {
			if err := s.Repo.MergeContinue(ctx); err != nil {
				s.Log.Warn("auto-resolve: %v", firstLine(err))
				return false
			}
			return true
		}

		contErr := s.Repo.RebaseContinue(ctx)
		inProgress, err := s.Repo.InProgress(ctx)
		if err != nil {
			s.Log.Warn("auto-resolve: %v", err)
			return false
		}
		if inProgress != gitx.OpRebase {
			return contErr == nil
		}
		// The rebase stopped on a later commit; loop to inspect it.
	}
	s.Log.Warn("auto-resolve: gave up after %d rounds", maxResolveRounds)
	return false
}

// resolveManifest merges the three index stages of path and stages the
// result. During a rebase stage 2 holds upstream and stage 3 the fork's
// commit being replayed; during a merge the roles are swapped.
func (s *Syncer) resolveManifest(ctx context.Context, op gitx.Operation, path string) error {
	base, err := s.Repo.ShowStage(ctx, gitx.StageBase, path)
	if err != nil {
		return fmt.Errorf("reading base of %s: %w", path, err)
	}
	ours, err := s.Repo.ShowStage(ctx, gitx.StageOurs, path)
	if err != nil {
		return fmt.Errorf("reading stage 2 of %s: %w", path, err)
	}
	theirs, err := s.Repo.ShowStage(ctx, gitx.StageTheirs, path)
	if err != nil {
		return fmt.Errorf("reading stage 3 of %s: %w", path, err)
	}

	local, remote := ours, theirs
	if op == gitx.OpRebase {
		local, remote = theirs, ours
	}

	merged, warnings := manifest.MergeBytes(base, local, remote)
	for _, w := range warnings {
		s.Log.Warn("manifest merge: %v", w)
	}

	full := filepath.Join(s.Config.RepoDir, filepath.FromSlash(path))
	mode := os.FileMode(0644)
	if info, err := os.Stat(full); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(full, merged, mode); err != nil {
		return fmt.Errorf("writing resolved %s: %w", path, err)
	}
	return s.Repo.Add(ctx, path)
}
