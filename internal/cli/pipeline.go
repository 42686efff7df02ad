package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/agentx-labs/forksync/internal/audit"
	"github.com/agentx-labs/forksync/internal/gitx"
	"github.com/agentx-labs/forksync/internal/lock"
	"github.com/agentx-labs/forksync/internal/report"
	"github.com/agentx-labs/forksync/internal/shell"
	"github.com/agentx-labs/forksync/internal/testrun"
	"github.com/agentx-labs/forksync/internal/toolchain"
	"github.com/agentx-labs/forksync/internal/upstream"
)

const stepLock = "lock"

// runner is the process runner every command uses.
var runner shell.Runner = shell.ExecRunner{}

func (e *env) git() *gitx.Client {
	return gitx.New(runner, e.cfg.RepoDir)
}

// acquireLock takes the run lock. A held lock is recorded as fatal.
func (e *env) acquireLock(ctx context.Context, repo *gitx.Client, summary *report.Summary) (*lock.RunLock, bool) {
	gitDir, err := repo.GitDir(ctx)
	if err != nil {
		summary.Fatal(stepLock, "error", "%s is not a git repository: %v", e.cfg.RepoDir, firstLine(err))
		e.log.Fail("not a git repository: %v", err)
		return nil, false
	}
	l, err := lock.Acquire(gitDir)
	if err != nil {
		summary.Fatal(stepLock, "held", "%v", err)
		e.log.Fail("%v", err)
		return nil, false
	}
	e.log.Info("holding run lock %s", l.Path())
	return l, true
}

func (e *env) syncStep(ctx context.Context, repo *gitx.Client, summary *report.Summary) *upstream.SyncState {
	return upstream.New(repo, e.cfg, e.brand, e.log, summary).Run(ctx)
}

func (e *env) toolchainStep(ctx context.Context, summary *report.Summary) {
	step := &toolchain.Step{
		Toolchain:    &toolchain.Toolchain{Runner: runner, Dir: e.cfg.RepoDir, Stream: e.log.Writer()},
		Config:       e.cfg.Install,
		ManifestPath: e.manifestPath(),
		Log:          e.log,
		Summary:      summary,
	}
	step.Run(ctx)
}

func (e *env) testStep(ctx context.Context, summary *report.Summary) *testrun.Result {
	e.log.Step("Tests")
	r := &testrun.Runner{
		Shell:  runner,
		Dir:    e.cfg.RepoDir,
		Config: e.cfg.Test,
		Stream: e.log.Writer(),
		Log:    e.log,
	}
	res, err := r.Run(ctx)
	if err != nil {
		tolerated := e.cfg.Test.TolerateFailure
		summary.Tolerable(testrun.StepTests, string(testrun.OutcomeError), tolerated, "%v", err)
		e.log.Fail("%v", err)
		return nil
	}
	testrun.Report(res, e.cfg.Test, summary, e.log)
	return res
}

func (e *env) auditStep(summary *report.Summary) *audit.Result {
	e.log.Step("Brand audit")
	allow, err := audit.LoadAllowList(e.cfg.Audit.AllowList)
	if err != nil {
		summary.Tolerable(audit.StepAudit, "error", true, "%v", err)
		e.log.Warn("%v", err)
		return nil
	}
	a := &audit.Auditor{
		Dir:    e.cfg.RepoDir,
		Marker: e.cfg.Audit.Marker,
		Roots:  e.cfg.Audit.Roots,
		Allow:  allow,
	}
	res, err := a.Run()
	if err != nil {
		summary.Tolerable(audit.StepAudit, "error", true, "%v", err)
		e.log.Warn("%v", err)
		return nil
	}
	audit.Report(res, e.cfg.Audit.Marker, summary, e.log)
	return res
}

// finish prints the digest to the log and the JSON report to stdout, then
// converts the summary into the command's exit status.
func (e *env) finish(summary *report.Summary, stdout io.Writer) error {
	summary.WriteText(e.log.Writer())
	if err := summary.WriteJSON(stdout); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return exitWith(summary.ExitCode())
}

func (e *env) manifestPath() string {
	return filepath.Join(e.cfg.RepoDir, filepath.FromSlash(e.cfg.Sync.ManifestPath))
}

func firstLine(err error) string {
	line, _, _ := strings.Cut(err.Error(), "\n")
	return line
}
