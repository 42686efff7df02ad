package toolchain

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentx-labs/forksync/internal/config"
	"github.com/agentx-labs/forksync/internal/report"
	"github.com/agentx-labs/forksync/internal/shell"
	"github.com/agentx-labs/forksync/internal/shell/shelltest"
	"github.com/agentx-labs/forksync/internal/ui"
)

func TestCheckEngine(t *testing.T) {
	tests := []struct {
		constraint string
		version    string
		want       bool
		wantErr    bool
	}{
		{">=22.14.0", "v22.14.0", true, false},
		{">=22.14.0", "v22.15.1", true, false},
		{">=22.14.0", "v20.11.0", false, false},
		{"^20", "20.9.0", true, false},
		{"^20", "v21.0.0", false, false},
		{"not a constraint", "v1.0.0", false, true},
		{">=1", "garbage", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.constraint+" "+tt.version, func(t *testing.T) {
			got, err := CheckEngine(tt.constraint, tt.version)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "package.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newStep(t *testing.T, fake *shelltest.Fake, cfg config.InstallConfig, manifest string) (*Step, *report.Summary) {
	t.Helper()
	dir := t.TempDir()
	summary := report.New()
	return &Step{
		Toolchain:    &Toolchain{Runner: fake, Dir: dir},
		Config:       cfg,
		ManifestPath: writeManifest(t, dir, manifest),
		Log:          ui.Discard(),
		Summary:      summary,
	}, summary
}

func TestStep_EngineSatisfied(t *testing.T) {
	fake := &shelltest.Fake{}
	fake.On("node", "--version").Return(shelltest.Exit(0, "v22.14.0\n"))

	step, summary := newStep(t, fake, config.InstallConfig{}, `{"engines":{"node":">=22.14.0"}}`)
	step.Run(context.Background())

	assert.Equal(t, "ok", summary.Status(StepEngine))
	assert.Equal(t, "skipped", summary.Status(StepInstall))
	assert.Equal(t, report.ExitOK, summary.ExitCode())
	assert.False(t, fake.Ran("npm"))
}

func TestStep_EngineMismatch(t *testing.T) {
	for _, tolerated := range []bool{false, true} {
		fake := &shelltest.Fake{}
		fake.On("node", "--version").Return(shelltest.Exit(0, "v20.0.0"))

		step, summary := newStep(t, fake, config.InstallConfig{TolerateEngineMismatch: tolerated}, `{"engines":{"node":">=22.14.0"}}`)
		step.Run(context.Background())

		assert.Equal(t, "mismatch", summary.Status(StepEngine))
		assert.Len(t, summary.Issues, 1)
		assert.Equal(t, !tolerated, summary.HasFatal(), "tolerated=%v", tolerated)
	}
}

func TestStep_NodeMissing(t *testing.T) {
	fake := &shelltest.Fake{}
	fake.On("node", "--version").Return(shelltest.Exit(127, ""))

	step, summary := newStep(t, fake, config.InstallConfig{TolerateEngineMismatch: true}, `{"engines":{"node":">=22"}}`)
	step.Run(context.Background())

	assert.Equal(t, "missing", summary.Status(StepEngine))
	assert.Equal(t, report.ExitIssues, summary.ExitCode())
}

func TestStep_NoEngineDeclared(t *testing.T) {
	fake := &shelltest.Fake{}
	step, summary := newStep(t, fake, config.InstallConfig{}, `{"name":"x"}`)
	step.Run(context.Background())

	assert.Equal(t, "skipped", summary.Status(StepEngine))
	assert.Empty(t, fake.Calls)
}

func TestStep_CleanInstall(t *testing.T) {
	fake := &shelltest.Fake{}
	step, summary := newStep(t, fake, config.InstallConfig{Clean: true}, `{"name":"x"}`)

	modules := filepath.Join(step.Toolchain.Dir, "node_modules", "left-pad")
	require.NoError(t, os.MkdirAll(modules, 0755))

	step.Run(context.Background())

	assert.Equal(t, "ok", summary.Status(StepInstall))
	assert.NoDirExists(t, filepath.Join(step.Toolchain.Dir, "node_modules"))
	assert.Equal(t, []string{"npm ci"}, fake.CommandLines())
}

func TestStep_CleanInstallFailureIsFatal(t *testing.T) {
	fake := &shelltest.Fake{}
	fake.On("npm", "ci").Return(&shell.Result{ExitCode: 1, Stderr: "npm ERR! lockfile out of date"})

	step, summary := newStep(t, fake, config.InstallConfig{Clean: true}, `{"name":"x"}`)
	step.Run(context.Background())

	assert.Equal(t, "failed", summary.Status(StepInstall))
	assert.Equal(t, report.ExitFatal, summary.ExitCode())
}
