package upstream

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentx-labs/forksync/internal/gitx"
)

// fakeRepo scripts Repo responses. Slice fields are consumed in order; the
// last element repeats once the slice drains.
type fakeRepo struct {
	calls []string

	branch      string
	fetchErr    error
	divergence  []*gitx.Divergence
	divErr      error
	dirty       []bool
	rebaseErr   error
	mergeErr    error
	continueErr []error
	inProgress  []gitx.Operation
	conflicts   [][]string
	stages      map[int]string
	commitErr   []error
	stashErr    error
	stashPopErr error
	pushErr     error

	pushRetries int
}

func next[T any](items *[]T) T {
	var zero T
	if len(*items) == 0 {
		return zero
	}
	v := (*items)[0]
	if len(*items) > 1 {
		*items = (*items)[1:]
	}
	return v
}

func (f *fakeRepo) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeRepo) Fetch(_ context.Context, remote, branch string, retries int) error {
	f.record("fetch %s %s", remote, branch)
	return f.fetchErr
}

func (f *fakeRepo) Divergence(_ context.Context, ref string) (*gitx.Divergence, error) {
	f.record("divergence %s", ref)
	if f.divErr != nil {
		return nil, f.divErr
	}
	return next(&f.divergence), nil
}

func (f *fakeRepo) IsDirty(context.Context) (bool, error) {
	f.record("status")
	return next(&f.dirty), nil
}

func (f *fakeRepo) CurrentBranch(context.Context) (string, error) {
	return f.branch, nil
}

func (f *fakeRepo) Stash(_ context.Context, _ string) error {
	f.record("stash")
	return f.stashErr
}

func (f *fakeRepo) StashPop(context.Context) error {
	f.record("stash pop")
	return f.stashPopErr
}

func (f *fakeRepo) Rebase(_ context.Context, ref string, autostash bool) error {
	if autostash {
		f.record("rebase --autostash %s", ref)
	} else {
		f.record("rebase %s", ref)
	}
	return f.rebaseErr
}

func (f *fakeRepo) RebaseContinue(context.Context) error {
	f.record("rebase --continue")
	return next(&f.continueErr)
}

func (f *fakeRepo) RebaseAbort(context.Context) error {
	f.record("rebase --abort")
	return nil
}

func (f *fakeRepo) Merge(_ context.Context, ref string, autostash bool) error {
	if autostash {
		f.record("merge --autostash %s", ref)
	} else {
		f.record("merge %s", ref)
	}
	return f.mergeErr
}

func (f *fakeRepo) MergeContinue(context.Context) error {
	f.record("merge --continue")
	return next(&f.continueErr)
}

func (f *fakeRepo) MergeAbort(context.Context) error {
	f.record("merge --abort")
	return nil
}

func (f *fakeRepo) InProgress(context.Context) (gitx.Operation, error) {
	return next(&f.inProgress), nil
}

func (f *fakeRepo) ConflictedPaths(context.Context) ([]string, error) {
	return next(&f.conflicts), nil
}

func (f *fakeRepo) ShowStage(_ context.Context, stage int, _ string) ([]byte, error) {
	s, ok := f.stages[stage]
	if !ok {
		return nil, nil
	}
	return []byte(s), nil
}

func (f *fakeRepo) Add(_ context.Context, paths ...string) error {
	f.record("add %s", strings.Join(paths, " "))
	return nil
}

func (f *fakeRepo) AddAll(context.Context) error {
	f.record("add -A")
	return nil
}

func (f *fakeRepo) Commit(_ context.Context, message string, noVerify bool) (string, error) {
	if noVerify {
		f.record("commit --no-verify %s", message)
	} else {
		f.record("commit %s", message)
	}
	if err := next(&f.commitErr); err != nil {
		return "", err
	}
	return "0123456789abcdef0123", nil
}

func (f *fakeRepo) Push(_ context.Context, remote, branch string, force bool, retries int) error {
	f.pushRetries = retries
	if force {
		f.record("push --force-with-lease %s %s", remote, branch)
	} else {
		f.record("push %s %s", remote, branch)
	}
	return f.pushErr
}

// mutations returns recorded calls that change the repository.
func (f *fakeRepo) mutations() []string {
	var out []string
	for _, c := range f.calls {
		switch {
		case strings.HasPrefix(c, "fetch"), strings.HasPrefix(c, "divergence"), c == "status":
			continue
		}
		out = append(out, c)
	}
	return out
}
