package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/agentx-labs/forksync/internal/config"
	"github.com/agentx-labs/forksync/internal/gitx"
)

// Result is the terminal state of the sync attempt.
type Result string

const (
	ResultOK            Result = "ok"
	ResultMergeFallback Result = "ok-merge-fallback"
	ResultConflict      Result = "conflict"
	ResultDirtyAbort    Result = "dirty-abort"
	ResultUpToDate      Result = "up-to-date"
	ResultSkipped       Result = "skipped"
	ResultError         Result = "error"
)

// Succeeded reports whether upstream was integrated cleanly.
func (r Result) Succeeded() bool {
	return r == ResultOK || r == ResultMergeFallback
}

// Dirty-tree handling chosen by the gate.
const (
	DirtyCommit = "commit"
	DirtyStash  = "stash"
	DirtyAllow  = "allow"
)

// Summary step names written by the Syncer.
const (
	StepFetch      = "fetch"
	StepDivergence = "divergence"
	StepSync       = "sync"
	StepManifest   = "manifest"
	StepCommit     = "commit"
	StepPush       = "push"
	StepStash      = "stash"
)

// SyncState describes one sync invocation. It is built up step by step and
// discarded once the summary is emitted.
type SyncState struct {
	Strategy       config.Strategy  `json:"strategy"`
	UpstreamRef    string           `json:"upstreamRef"`
	CurrentBranch  string           `json:"currentBranch"`
	Performed      bool             `json:"performed"`
	Result         Result           `json:"result"`
	Reason         string           `json:"reason,omitempty"`
	Conflicts      []string         `json:"conflicts,omitempty"`
	Divergence     *gitx.Divergence `json:"divergence,omitempty"`
	PostDivergence *gitx.Divergence `json:"postDivergence,omitempty"`
	DirtyHandling  string           `json:"dirtyHandling,omitempty"`
	Snapshot       string           `json:"snapshot,omitempty"`
	Stashed        bool             `json:"stashed,omitempty"`
	AutoResolved   int              `json:"autoResolved,omitempty"`
	OverlayApplied bool             `json:"overlayApplied,omitempty"`
	Commit         *CommitInfo      `json:"commit,omitempty"`
	Push           *PushInfo        `json:"push,omitempty"`
}

// CommitInfo describes the commit produced by the auto-commit step.
type CommitInfo struct {
	Message  string `json:"message"`
	SHA      string `json:"sha"`
	NoVerify bool   `json:"noVerify,omitempty"`
}

// PushInfo describes where the auto-push step pushed.
type PushInfo struct {
	Remote string `json:"remote"`
	Branch string `json:"branch"`
}

// WriteJSON writes the state as indented JSON.
func (s *SyncState) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling sync state: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// Repo is the git surface the Syncer drives. *gitx.Client implements it.
type Repo interface {
	Fetch(ctx context.Context, remote, branch string, retries int) error
	Divergence(ctx context.Context, ref string) (*gitx.Divergence, error)
	IsDirty(ctx context.Context) (bool, error)
	CurrentBranch(ctx context.Context) (string, error)
	Stash(ctx context.Context, message string) error
	StashPop(ctx context.Context) error
	Rebase(ctx context.Context, ref string, autostash bool) error
	RebaseContinue(ctx context.Context) error
	RebaseAbort(ctx context.Context) error
	Merge(ctx context.Context, ref string, autostash bool) error
	MergeContinue(ctx context.Context) error
	MergeAbort(ctx context.Context) error
	InProgress(ctx context.Context) (gitx.Operation, error)
	ConflictedPaths(ctx context.Context) ([]string, error)
	ShowStage(ctx context.Context, stage int, path string) ([]byte, error)
	Add(ctx context.Context, paths ...string) error
	AddAll(ctx context.Context) error
	Commit(ctx context.Context, message string, noVerify bool) (string, error)
	Push(ctx context.Context, remote, branch string, forceWithLease bool, retries int) error
}

var _ Repo = (*gitx.Client)(nil)
