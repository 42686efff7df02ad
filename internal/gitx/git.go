package gitx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/agentx-labs/forksync/internal/shell"
)

// ErrNoRef is returned by Divergence when the reference does not resolve.
var ErrNoRef = errors.New("reference not found")

// Operation names an in-progress history operation.
type Operation string

const (
	OpNone   Operation = ""
	OpRebase Operation = "rebase"
	OpMerge  Operation = "merge"
)

// Index stages of a conflicted path.
const (
	StageBase   = 1
	StageOurs   = 2
	StageTheirs = 3
)

// Divergence is the commit-graph distance between HEAD and a reference.
type Divergence struct {
	Behind int `json:"behind"`
	Ahead  int `json:"ahead"`
}

func (d Divergence) String() string {
	return fmt.Sprintf("behind %d, ahead %d", d.Behind, d.Ahead)
}

// Client runs git in a single working tree.
type Client struct {
	dir string
	run shell.Runner

	// NewBackOff returns the retry policy for network operations. It is
	// called once per operation because BackOff values are stateful.
	NewBackOff func() backoff.BackOff
}

// New returns a Client operating on dir.
func New(r shell.Runner, dir string) *Client {
	return &Client{
		dir:        dir,
		run:        r,
		NewBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxElapsedTime = 2 * time.Minute
	return bo
}

// Dir returns the working tree the client operates on.
func (c *Client) Dir() string { return c.dir }

func (c *Client) command(args ...string) shell.Command {
	return shell.Command{Dir: c.dir, Name: "git", Args: args}
}

// output runs git and returns trimmed stdout, or an error carrying the
// combined output on a non-zero exit.
func (c *Client) output(ctx context.Context, args ...string) (string, error) {
	return shell.Output(ctx, c.run, c.command(args...))
}

// exec runs git with extra environment and discards stdout.
func (c *Client) exec(ctx context.Context, env []string, args ...string) error {
	cmd := c.command(args...)
	cmd.Env = env
	_, err := shell.Output(ctx, c.run, cmd)
	return err
}

// transientSignatures mark network failures worth retrying. Anything else
// (unknown remote, bad refspec, rejected push) fails on the first attempt.
var transientSignatures = []string{
	"could not resolve host",
	"connection timed out",
	"connection refused",
	"connection reset",
	"operation timed out",
	"the remote end hung up unexpectedly",
	"early eof",
	"rpc failed",
	"temporary failure",
	"tls connection",
	"gnutls",
	"returned error: 5",
}

// IsTransient reports whether err is a git exit whose output looks like a
// network hiccup.
func IsTransient(err error) bool {
	var exitErr *shell.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	out := strings.ToLower(exitErr.Output)
	for _, sig := range transientSignatures {
		if strings.Contains(out, sig) {
			return true
		}
	}
	return false
}

func (c *Client) retry(ctx context.Context, retries int, op func() error) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(c.NewBackOff(), uint64(retries)), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}

// Fetch fetches branch from remote, retrying transient failures up to
// retries extra times.
func (c *Client) Fetch(ctx context.Context, remote, branch string, retries int) error {
	err := c.retry(ctx, retries, func() error {
		return c.exec(ctx, nil, "fetch", "--no-tags", remote, branch)
	})
	if err != nil {
		return fmt.Errorf("fetching %s/%s: %w", remote, branch, err)
	}
	return nil
}

// Push pushes HEAD to branch on remote, retrying transient failures up to
// retries extra times.
// forceWithLease is needed after a rebase rewrote already-pushed commits.
func (c *Client) Push(ctx context.Context, remote, branch string, forceWithLease bool, retries int) error {
	args := []string{"push"}
	if forceWithLease {
		args = append(args, "--force-with-lease")
	}
	args = append(args, remote, "HEAD:refs/heads/"+branch)
	err := c.retry(ctx, retries, func() error {
		return c.exec(ctx, nil, args...)
	})
	if err != nil {
		return fmt.Errorf("pushing to %s/%s: %w", remote, branch, err)
	}
	return nil
}

// RefExists reports whether ref resolves to a commit.
func (c *Client) RefExists(ctx context.Context, ref string) (bool, error) {
	res, err := c.run.Run(ctx, c.command("rev-parse", "--verify", "--quiet", ref+"^{commit}"))
	if err != nil {
		return false, err
	}
	return res.OK(), nil
}

// Divergence counts commits reachable only from ref (Behind) and only from
// HEAD (Ahead). A missing ref returns ErrNoRef.
func (c *Client) Divergence(ctx context.Context, ref string) (*Divergence, error) {
	ok, err := c.RefExists(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, ErrNoRef)
	}

	out, err := c.output(ctx, "rev-list", "--left-right", "--count", ref+"...HEAD")
	if err != nil {
		return nil, fmt.Errorf("counting divergence from %s: %w", ref, err)
	}
	return parseDivergence(out)
}

func parseDivergence(out string) (*Divergence, error) {
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return nil, fmt.Errorf("unexpected rev-list output: %q", out)
	}
	behind, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("parsing behind count: %w", err)
	}
	ahead, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("parsing ahead count: %w", err)
	}
	return &Divergence{Behind: behind, Ahead: ahead}, nil
}

// IsDirty reports whether tracked files have uncommitted changes.
func (c *Client) IsDirty(ctx context.Context) (bool, error) {
	out, err := c.output(ctx, "status", "--porcelain", "--untracked-files=no")
	if err != nil {
		return false, fmt.Errorf("checking working tree: %w", err)
	}
	return out != "", nil
}

// CurrentBranch returns the checked-out branch name ("HEAD" when detached).
func (c *Client) CurrentBranch(ctx context.Context) (string, error) {
	out, err := c.output(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolving current branch: %w", err)
	}
	return out, nil
}

// HeadSHA returns the full commit id of HEAD.
func (c *Client) HeadSHA(ctx context.Context) (string, error) {
	out, err := c.output(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return out, nil
}

// GitDir returns the absolute path of the repository's git directory.
func (c *Client) GitDir(ctx context.Context) (string, error) {
	out, err := c.output(ctx, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return "", fmt.Errorf("locating git directory: %w", err)
	}
	return out, nil
}

// ConfigValue returns a git config value, or "" when the key is unset.
func (c *Client) ConfigValue(ctx context.Context, key string) (string, error) {
	res, err := c.run.Run(ctx, c.command("config", "--get", key))
	if err != nil {
		return "", err
	}
	if res.ExitCode == 1 {
		return "", nil
	}
	if !res.OK() {
		return "", fmt.Errorf("reading git config %s: exit status %d\n%s", key, res.ExitCode, strings.TrimSpace(res.Combined()))
	}
	return strings.TrimSpace(res.Stdout), nil
}

// SetConfig writes a repository-local git config value.
func (c *Client) SetConfig(ctx context.Context, key, value string) error {
	if err := c.exec(ctx, nil, "config", "--local", key, value); err != nil {
		return fmt.Errorf("setting git config %s: %w", key, err)
	}
	return nil
}

// Stash saves tracked modifications under message.
func (c *Client) Stash(ctx context.Context, message string) error {
	if err := c.exec(ctx, nil, "stash", "push", "-m", message); err != nil {
		return fmt.Errorf("stashing changes: %w", err)
	}
	return nil
}

// StashPop restores the most recent stash entry.
func (c *Client) StashPop(ctx context.Context) error {
	if err := c.exec(ctx, nil, "stash", "pop"); err != nil {
		return fmt.Errorf("restoring stash: %w", err)
	}
	return nil
}

// nonInteractive keeps continue/merge from opening an editor.
var nonInteractive = []string{"GIT_EDITOR=true", "GIT_MERGE_AUTOEDIT=no"}

// Rebase replays HEAD onto ref. A conflict is returned as an error; the
// rebase is left in progress for the caller to resolve or abort. autostash
// lets the rebase start on a dirty tree and reapplies the changes afterwards.
func (c *Client) Rebase(ctx context.Context, ref string, autostash bool) error {
	if err := c.exec(ctx, nonInteractive, withAutostash("rebase", autostash, ref)...); err != nil {
		return fmt.Errorf("rebasing onto %s: %w", ref, err)
	}
	return nil
}

func withAutostash(verb string, autostash bool, args ...string) []string {
	out := []string{verb}
	if autostash {
		out = append(out, "--autostash")
	}
	return append(out, args...)
}

// RebaseContinue resumes a rebase after conflicts were staged.
func (c *Client) RebaseContinue(ctx context.Context) error {
	if err := c.exec(ctx, nonInteractive, "rebase", "--continue"); err != nil {
		return fmt.Errorf("continuing rebase: %w", err)
	}
	return nil
}

// RebaseAbort abandons an in-progress rebase.
func (c *Client) RebaseAbort(ctx context.Context) error {
	if err := c.exec(ctx, nil, "rebase", "--abort"); err != nil {
		return fmt.Errorf("aborting rebase: %w", err)
	}
	return nil
}

// Merge merges ref into HEAD. A conflict is returned as an error; the merge
// is left in progress.
func (c *Client) Merge(ctx context.Context, ref string, autostash bool) error {
	if err := c.exec(ctx, nonInteractive, withAutostash("merge", autostash, "--no-edit", ref)...); err != nil {
		return fmt.Errorf("merging %s: %w", ref, err)
	}
	return nil
}

// MergeContinue concludes a merge after conflicts were staged.
func (c *Client) MergeContinue(ctx context.Context) error {
	if err := c.exec(ctx, nonInteractive, "commit", "--no-edit"); err != nil {
		return fmt.Errorf("concluding merge: %w", err)
	}
	return nil
}

// MergeAbort abandons an in-progress merge.
func (c *Client) MergeAbort(ctx context.Context) error {
	if err := c.exec(ctx, nil, "merge", "--abort"); err != nil {
		return fmt.Errorf("aborting merge: %w", err)
	}
	return nil
}

// InProgress reports which history operation, if any, is mid-way.
func (c *Client) InProgress(ctx context.Context) (Operation, error) {
	gitDir, err := c.GitDir(ctx)
	if err != nil {
		return OpNone, err
	}
	for _, name := range []string{"rebase-merge", "rebase-apply"} {
		if _, err := os.Stat(filepath.Join(gitDir, name)); err == nil {
			return OpRebase, nil
		}
	}
	if _, err := os.Stat(filepath.Join(gitDir, "MERGE_HEAD")); err == nil {
		return OpMerge, nil
	}
	return OpNone, nil
}

// ConflictedPaths lists unmerged paths in the index.
func (c *Client) ConflictedPaths(ctx context.Context) ([]string, error) {
	out, err := c.output(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, fmt.Errorf("listing conflicts: %w", err)
	}
	return splitLines(out), nil
}

// ShowStage returns the content of path at the given index stage. A stage
// that does not exist (e.g. a path added on one side) yields nil content.
func (c *Client) ShowStage(ctx context.Context, stage int, path string) ([]byte, error) {
	spec := fmt.Sprintf(":%d:%s", stage, path)
	res, err := c.run.Run(ctx, c.command("show", spec))
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, nil
	}
	return []byte(res.Stdout), nil
}

// Add stages paths.
func (c *Client) Add(ctx context.Context, paths ...string) error {
	args := append([]string{"add", "--"}, paths...)
	if err := c.exec(ctx, nil, args...); err != nil {
		return fmt.Errorf("staging %s: %w", strings.Join(paths, ", "), err)
	}
	return nil
}

// AddAll stages every change in the working tree.
func (c *Client) AddAll(ctx context.Context) error {
	if err := c.exec(ctx, nil, "add", "-A"); err != nil {
		return fmt.Errorf("staging changes: %w", err)
	}
	return nil
}

// Commit records the index and returns the new HEAD sha. noVerify skips the
// pre-commit and commit-msg hooks.
func (c *Client) Commit(ctx context.Context, message string, noVerify bool) (string, error) {
	args := []string{"commit", "-m", message}
	if noVerify {
		args = append(args, "--no-verify")
	}
	if err := c.exec(ctx, nil, args...); err != nil {
		return "", fmt.Errorf("committing: %w", err)
	}
	return c.HeadSHA(ctx)
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
