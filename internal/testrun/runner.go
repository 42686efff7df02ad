// Package testrun runs the extension's test suite with flake recovery.
//
// A failing run is classified from its output. Infrastructure failures
// (crashed workers, closed IPC channels, a run that discovered no tests) are
// retried once on a fallback worker pool; genuine failures that show a
// transient IPC signature are retried once on the same pool. Anything else is
// reported as is.
package testrun

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/agentx-labs/forksync/internal/config"
	"github.com/agentx-labs/forksync/internal/report"
	"github.com/agentx-labs/forksync/internal/shell"
	"github.com/agentx-labs/forksync/internal/ui"
)

// StepTests is the summary step name.
const StepTests = "tests"

// Outcome is the final state of a test run.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeFlaky       Outcome = "ok-flaky"
	OutcomeInfraFailed Outcome = "infra-failed"
	OutcomeError       Outcome = "error"
	OutcomeSkipped     Outcome = "skipped"
)

// Attempt records one invocation of the test command.
type Attempt struct {
	Pool     string `json:"pool"`
	ExitCode int    `json:"exitCode"`
	Class    Class  `json:"class,omitempty"`
}

// Result is the outcome of Runner.Run.
type Result struct {
	Outcome  Outcome   `json:"outcome"`
	Attempts []Attempt `json:"attempts"`
	// Output is the combined output of the last attempt.
	Output string `json:"-"`
}

// Runner executes the configured test command.
type Runner struct {
	Shell  shell.Runner
	Dir    string
	Config config.TestConfig
	// Stream receives test output while it runs.
	Stream io.Writer
	Log    *ui.Logger
}

// Run executes the suite and applies the retry policy.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	res := &Result{}
	if r.Config.Skip {
		res.Outcome = OutcomeSkipped
		return res, nil
	}
	if len(r.Config.Command) == 0 {
		return nil, fmt.Errorf("no test command configured")
	}

	pool := r.Config.Pool
	att, out, err := r.attempt(ctx, pool)
	if err != nil {
		return nil, err
	}
	res.Attempts = append(res.Attempts, att)
	res.Output = out
	if att.ExitCode == 0 {
		res.Outcome = OutcomeOK
		return res, nil
	}

	var retryPool string
	switch {
	case att.Class == ClassInfra:
		if r.Config.DisableFallback || r.Config.FallbackPool == "" {
			res.Outcome = OutcomeInfraFailed
			return res, nil
		}
		retryPool = r.Config.FallbackPool
		r.logf("infrastructure failure on pool %q; retrying on %q", pool, retryPool)
	case IsTransient(out):
		retryPool = pool
		r.logf("transient IPC failure; retrying on pool %q", pool)
	default:
		res.Outcome = OutcomeError
		return res, nil
	}

	retry, out, err := r.attempt(ctx, retryPool)
	if err != nil {
		return nil, err
	}
	res.Attempts = append(res.Attempts, retry)
	res.Output = out

	switch {
	case retry.ExitCode == 0:
		res.Outcome = OutcomeFlaky
	case retry.Class == ClassInfra:
		res.Outcome = OutcomeInfraFailed
	default:
		res.Outcome = OutcomeError
	}
	return res, nil
}

func (r *Runner) attempt(ctx context.Context, pool string) (Attempt, string, error) {
	cmd := r.command(pool)
	res, err := r.Shell.Run(ctx, cmd)
	if err != nil {
		return Attempt{}, "", fmt.Errorf("running tests: %w", err)
	}
	att := Attempt{Pool: pool, ExitCode: res.ExitCode}
	out := res.Combined()
	if !res.OK() {
		att.Class = Classify(out)
	}
	return att, out, nil
}

// command appends the pool selector to the configured test command.
func (r *Runner) command(pool string) shell.Command {
	args := append([]string{}, r.Config.Command[1:]...)
	if pool != "" {
		args = append(args, "--pool="+pool)
	}
	return shell.Command{
		Dir:    r.Dir,
		Name:   r.Config.Command[0],
		Args:   args,
		Stream: r.Stream,
	}
}

func (r *Runner) logf(format string, args ...any) {
	if r.Log != nil {
		r.Log.Warn(format, args...)
	}
}

// Report records res on summary: ok-flaky is a non-fatal issue,
// infra-failed is fatal unless flakes are tolerated and error is fatal
// unless failures are tolerated.
func Report(res *Result, cfg config.TestConfig, summary *report.Summary, log *ui.Logger) {
	detail := attemptsDetail(res.Attempts)
	switch res.Outcome {
	case OutcomeOK:
		summary.Record(StepTests, string(res.Outcome), detail)
		log.Pass("tests passed")
	case OutcomeSkipped:
		summary.Record(StepTests, string(res.Outcome), "")
		log.Info("tests skipped")
	case OutcomeFlaky:
		summary.Tolerable(StepTests, string(res.Outcome), true, "tests passed after retry (%s)", detail)
		log.Warn("tests recovered after retry (%s)", detail)
	case OutcomeInfraFailed:
		summary.Tolerable(StepTests, string(res.Outcome), cfg.TolerateFlake, "test infrastructure failure (%s)", detail)
		log.Fail("test infrastructure failure (%s)\n%s", detail, lastLines(res.Output, 15))
	default:
		summary.Tolerable(StepTests, string(OutcomeError), cfg.TolerateFailure, "tests failed (%s)", detail)
		log.Fail("tests failed (%s)\n%s", detail, lastLines(res.Output, 15))
	}
}

func attemptsDetail(attempts []Attempt) string {
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		s := fmt.Sprintf("%s: exit %d", a.Pool, a.ExitCode)
		if a.Class != "" {
			s += " " + string(a.Class)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
