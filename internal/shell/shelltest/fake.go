// Package shelltest provides a scripted shell.Runner for tests.
package shelltest

import (
	"context"
	"strings"

	"github.com/agentx-labs/forksync/internal/shell"
)

// Fake is a shell.Runner that answers from registered rules and records
// every command it receives. Unmatched commands succeed with empty output.
type Fake struct {
	Calls []shell.Command
	rules []*Rule
}

// Rule matches commands by name and argument prefix.
type Rule struct {
	name    string
	prefix  []string
	results []*shell.Result
	err     error
}

// On registers a rule for name with the given leading arguments. Later rules
// with longer prefixes win over shorter ones.
func (f *Fake) On(name string, args ...string) *Rule {
	r := &Rule{name: name, prefix: args}
	f.rules = append(f.rules, r)
	return r
}

// Return queues results; the last one repeats once the queue drains.
func (r *Rule) Return(results ...*shell.Result) *Rule {
	r.results = append(r.results, results...)
	return r
}

// Fail makes the rule return err instead of a result.
func (r *Rule) Fail(err error) *Rule {
	r.err = err
	return r
}

// Run implements shell.Runner.
func (f *Fake) Run(_ context.Context, c shell.Command) (*shell.Result, error) {
	f.Calls = append(f.Calls, c)

	var best *Rule
	for _, r := range f.rules {
		if !r.matches(c) {
			continue
		}
		if best == nil || len(r.prefix) >= len(best.prefix) {
			best = r
		}
	}
	if best == nil {
		return &shell.Result{}, nil
	}
	if best.err != nil {
		return nil, best.err
	}
	if len(best.results) == 0 {
		return &shell.Result{}, nil
	}
	res := best.results[0]
	if len(best.results) > 1 {
		best.results = best.results[1:]
	}
	if res.Stdout != "" && c.Stream != nil {
		_, _ = c.Stream.Write([]byte(res.Stdout))
	}
	return res, nil
}

// CommandLines returns every recorded call rendered as "name arg arg".
func (f *Fake) CommandLines() []string {
	lines := make([]string, 0, len(f.Calls))
	for _, c := range f.Calls {
		lines = append(lines, c.String())
	}
	return lines
}

// Ran reports whether a command line starting with prefix was recorded.
func (f *Fake) Ran(prefix string) bool {
	for _, line := range f.CommandLines() {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func (r *Rule) matches(c shell.Command) bool {
	if r.name != c.Name || len(r.prefix) > len(c.Args) {
		return false
	}
	for i, a := range r.prefix {
		if c.Args[i] != a {
			return false
		}
	}
	return true
}

// Exit builds a result with the given exit code and stdout.
func Exit(code int, stdout string) *shell.Result {
	return &shell.Result{ExitCode: code, Stdout: stdout}
}
