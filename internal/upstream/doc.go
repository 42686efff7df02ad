// Package upstream keeps the fork in step with the upstream repository.
//
// A Syncer runs one pass of the sync pipeline against a working tree:
//
//  1. fetch the upstream branch (retried; failure is advisory unless required)
//  2. measure divergence between upstream and HEAD
//  3. gate on uncommitted changes (auto-commit > stash > allow-dirty > abort)
//  4. rebase or merge when behind, auto-resolving a manifest-only conflict
//     and optionally falling back from rebase to merge
//  5. commit residual changes (retrying once without hooks)
//  6. push the commit
//  7. restore stashed changes
//
// Every step records its outcome on a report.Summary; a failing step does not
// stop later independent steps.
package upstream
