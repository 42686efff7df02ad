// Package toolchain checks the Node.js engine the extension declares and
// performs clean dependency installs.
package toolchain

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/agentx-labs/forksync/internal/config"
	"github.com/agentx-labs/forksync/internal/manifest"
	"github.com/agentx-labs/forksync/internal/report"
	"github.com/agentx-labs/forksync/internal/shell"
	"github.com/agentx-labs/forksync/internal/ui"
)

// Summary step names.
const (
	StepEngine  = "engine"
	StepInstall = "install"
)

// CheckEngine reports whether version satisfies the semver constraint. A
// leading "v" on version is ignored.
func CheckEngine(constraint, version string) (bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("parsing engine constraint %q: %w", constraint, err)
	}
	v, err := semver.NewVersion(strings.TrimPrefix(strings.TrimSpace(version), "v"))
	if err != nil {
		return false, fmt.Errorf("parsing version %q: %w", version, err)
	}
	return c.Check(v), nil
}

// Toolchain runs node and npm inside the repository.
type Toolchain struct {
	Runner shell.Runner
	Dir    string
	// Stream receives npm output while it runs; nil discards it.
	Stream io.Writer
}

// NodeVersion returns the output of `node --version`, e.g. "v22.14.0".
func (t *Toolchain) NodeVersion(ctx context.Context) (string, error) {
	out, err := shell.Output(ctx, t.Runner, shell.Command{Dir: t.Dir, Name: "node", Args: []string{"--version"}})
	if err != nil {
		return "", fmt.Errorf("node runtime not available: %w", err)
	}
	return out, nil
}

// CleanInstall removes node_modules and runs `npm ci`.
func (t *Toolchain) CleanInstall(ctx context.Context) error {
	modules := filepath.Join(t.Dir, "node_modules")
	if err := os.RemoveAll(modules); err != nil {
		return fmt.Errorf("removing %s: %w", modules, err)
	}

	res, err := t.Runner.Run(ctx, shell.Command{Dir: t.Dir, Name: "npm", Args: []string{"ci"}, Stream: t.Stream})
	if err != nil {
		return fmt.Errorf("npm ci: %w", err)
	}
	if !res.OK() {
		return fmt.Errorf("npm ci: exit status %d\n%s", res.ExitCode, tail(res.Combined(), 20))
	}
	return nil
}

// Step runs the engine check and, when configured, the clean install,
// recording both on the summary.
type Step struct {
	Toolchain *Toolchain
	Config    config.InstallConfig
	// ManifestPath is the absolute path of the extension manifest.
	ManifestPath string
	Log          *ui.Logger
	Summary      *report.Summary
}

// Run executes the step.
func (s *Step) Run(ctx context.Context) {
	s.Log.Step("Toolchain")
	s.checkEngine(ctx)
	s.install(ctx)
}

func (s *Step) checkEngine(ctx context.Context) {
	tolerated := s.Config.TolerateEngineMismatch

	doc, err := manifest.ReadFile(s.ManifestPath)
	if err != nil {
		s.Summary.Record(StepEngine, "skipped", "no manifest")
		s.Log.Info("engine check skipped: %v", err)
		return
	}
	constraint := manifest.EngineConstraint(doc, "node")
	if constraint == "" {
		s.Summary.Record(StepEngine, "skipped", "no engines.node")
		s.Log.Info("engine check skipped: manifest declares no engines.node")
		return
	}

	version, err := s.Toolchain.NodeVersion(ctx)
	if err != nil {
		s.Summary.Tolerable(StepEngine, "missing", tolerated, "node %s required but not available", constraint)
		s.logIssue(tolerated, "node not available: %v", err)
		return
	}

	ok, err := CheckEngine(constraint, version)
	switch {
	case err != nil:
		s.Summary.Tolerable(StepEngine, "error", tolerated, "engine check: %v", err)
		s.logIssue(tolerated, "engine check: %v", err)
	case !ok:
		s.Summary.Tolerable(StepEngine, "mismatch", tolerated, "node %s does not satisfy engines.node %s", version, constraint)
		s.logIssue(tolerated, "node %s does not satisfy %s", version, constraint)
	default:
		s.Summary.Record(StepEngine, "ok", version)
		s.Log.Pass("node %s satisfies %s", version, constraint)
	}
}

func (s *Step) install(ctx context.Context) {
	if !s.Config.Clean {
		s.Summary.Record(StepInstall, "skipped", "")
		return
	}
	s.Log.Info("npm ci (clean install)")
	if err := s.Toolchain.CleanInstall(ctx); err != nil {
		s.Summary.Fatal(StepInstall, "failed", "clean install failed: %s", firstLine(err))
		s.Log.Fail("%v", err)
		return
	}
	s.Summary.Record(StepInstall, "ok", "")
	s.Log.Pass("dependencies installed")
}

func (s *Step) logIssue(tolerated bool, format string, args ...any) {
	if tolerated {
		s.Log.Warn(format, args...)
		return
	}
	s.Log.Fail(format, args...)
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func firstLine(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return msg[:i]
	}
	return msg
}
