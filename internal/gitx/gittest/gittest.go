// Package gittest builds throw-away git repositories for tests.
package gittest

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// RequireGit skips the test when git is not on PATH.
func RequireGit(t testing.TB) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

// Run executes git in dir and fails the test on error. It returns trimmed
// combined output.
func Run(t testing.TB, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_EDITOR=true", "GIT_CONFIG_NOSYSTEM=1")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

// Init creates a repository with identity configured and one commit on
// branch main.
func Init(t testing.TB) string {
	t.Helper()
	RequireGit(t)
	dir := t.TempDir()
	Run(t, dir, "init", "-b", "main")
	Run(t, dir, "config", "user.email", "test@test.com")
	Run(t, dir, "config", "user.name", "Test User")
	Run(t, dir, "config", "commit.gpgsign", "false")
	CommitFile(t, dir, "README.md", "# test\n", "initial commit")
	return dir
}

// WriteFile writes content to name inside dir, creating parent directories.
func WriteFile(t testing.TB, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

// CommitFile writes and commits a single file.
func CommitFile(t testing.TB, dir, name, content, msg string) {
	t.Helper()
	WriteFile(t, dir, name, content)
	Run(t, dir, "add", name)
	Run(t, dir, "commit", "-m", msg)
}

// Fork clones upstream into a new directory and registers upstream as the
// "upstream" remote, mirroring a fork checkout. The upstream branch is
// fetched so upstream/main resolves.
func Fork(t testing.TB, upstream string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "fork")
	Run(t, filepath.Dir(dir), "clone", "--quiet", upstream, dir)
	Run(t, dir, "config", "user.email", "fork@test.com")
	Run(t, dir, "config", "user.name", "Fork User")
	Run(t, dir, "config", "commit.gpgsign", "false")
	Run(t, dir, "remote", "add", "upstream", upstream)
	Run(t, dir, "fetch", "--quiet", "upstream")
	return dir
}
