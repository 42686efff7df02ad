package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMerge_RemoteWinsAndBrandFieldsDropped(t *testing.T) {
	base := mustParse(t, `{}`)
	local := mustParse(t, `{"dependencies":{"a":"1"}}`)
	remote := mustParse(t, `{"dependencies":{"a":"2","b":"3"},"displayName":"X"}`)

	got := mustEncode(t, Merge(base, local, remote))
	want := mustEncode(t, mustParse(t, `{"dependencies":{"a":"2","b":"3"}}`))
	if got != want {
		t.Errorf("Merge =\n%s\nwant\n%s", got, want)
	}
}

func TestMerge_LocalOnlySectionIsAdded(t *testing.T) {
	local := mustParse(t, `{"optionalDependencies":{"fsevents":"^2.3.3"}}`)
	remote := mustParse(t, `{"name":"ext","dependencies":{"a":"1"}}`)

	merged := Merge(nil, local, remote)
	section, ok := merged.Object("optionalDependencies")
	if !ok {
		t.Fatal("optionalDependencies missing from merge result")
	}
	if got := strings.Join(section.Keys(), ","); got != "fsevents" {
		t.Errorf("optionalDependencies keys = %s", got)
	}
	if v, _ := section.GetString("fsevents"); v != "^2.3.3" {
		t.Errorf("fsevents = %q", v)
	}
}

func TestMerge_AdditiveAndRemotePrecedence(t *testing.T) {
	local := mustParse(t, `{
		"dependencies": {"shared": "local", "fork-only": "1.0.0"},
		"devDependencies": {"fork-tool": "2.0.0"},
		"scripts": {"fork": "echo fork"}
	}`)
	remote := mustParse(t, `{
		"name": "ext",
		"dependencies": {"shared": "remote", "upstream-only": "3.0.0"},
		"scripts": {"build": "tsc"},
		"description": "upstream",
		"icon": "upstream.png"
	}`)

	merged := Merge(nil, local, remote)

	deps, _ := merged.Object("dependencies")
	if got := strings.Join(deps.Keys(), ","); got != "shared,upstream-only,fork-only" {
		t.Errorf("dependency order = %s", got)
	}
	for key, want := range map[string]string{"shared": "remote", "upstream-only": "3.0.0", "fork-only": "1.0.0"} {
		if got, _ := deps.GetString(key); got != want {
			t.Errorf("dependencies[%s] = %q, want %q", key, got, want)
		}
	}

	dev, _ := merged.Object("devDependencies")
	if got, _ := dev.GetString("fork-tool"); got != "2.0.0" {
		t.Errorf("devDependencies[fork-tool] = %q", got)
	}

	// Non-dependency sections follow remote entirely.
	scripts, _ := merged.Object("scripts")
	if scripts.Has("fork") || !scripts.Has("build") {
		t.Errorf("scripts = %v", scripts.Keys())
	}

	for _, f := range BrandFields {
		if merged.Has(f) {
			t.Errorf("brand field %s survived the merge", f)
		}
	}
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	local := mustParse(t, `{"dependencies":{"x":"1"}}`)
	remote := mustParse(t, `{"dependencies":{"y":"2"},"displayName":"D"}`)
	before := mustEncode(t, remote)

	Merge(nil, local, remote)

	if after := mustEncode(t, remote); after != before {
		t.Errorf("remote modified:\n%s", after)
	}
}

func TestMerge_RemoteNonObjectSectionWins(t *testing.T) {
	local := mustParse(t, `{"dependencies":{"x":"1"}}`)
	remote := mustParse(t, `{"dependencies":"none"}`)

	merged := Merge(nil, local, remote)
	if v, _ := merged.GetString("dependencies"); v != "none" {
		t.Errorf("dependencies = %v", v)
	}
}

func TestMerge_Deterministic(t *testing.T) {
	local := `{"dependencies":{"c":"1","a":"1","b":"1"}}`
	remote := `{"dependencies":{"z":"1"},"name":"n"}`
	first := mustEncode(t, Merge(nil, mustParse(t, local), mustParse(t, remote)))
	for i := 0; i < 20; i++ {
		if got := mustEncode(t, Merge(nil, mustParse(t, local), mustParse(t, remote))); got != first {
			t.Fatalf("run %d differs:\n%s\nvs\n%s", i, got, first)
		}
	}
}

func TestMergeBytes_CorruptInputDegradesToRemote(t *testing.T) {
	out, warnings := MergeBytes([]byte("{}"), []byte("<<<<<<< HEAD"), []byte(`{"name":"ext","displayName":"Up"}`))
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", warnings)
	}
	if !strings.Contains(warnings[0].Error(), "local") {
		t.Errorf("warning should name the local side: %v", warnings[0])
	}
	if string(out) != "{\n  \"name\": \"ext\"\n}\n" {
		t.Errorf("out = %q", out)
	}
	if strings.Contains(string(out), "<<<<<<<") {
		t.Error("merge result contains conflict markers")
	}
}

func TestMergeFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		return p
	}
	base := write("base.json", `{}`)
	local := write("local.json", `{"dependencies":{"fork":"1"}}`)
	remote := write("remote.json", `{"name":"ext","dependencies":{"up":"2"}}`)

	warnings, err := MergeFiles(base, local, remote)
	if err != nil {
		t.Fatalf("MergeFiles: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}

	doc, err := ReadFile(local)
	if err != nil {
		t.Fatal(err)
	}
	deps, _ := doc.Object("dependencies")
	if got := strings.Join(deps.Keys(), ","); got != "up,fork" {
		t.Errorf("dependencies = %s", got)
	}
}

func TestMergeFiles_MissingBase(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "local.json")
	remote := filepath.Join(dir, "remote.json")
	os.WriteFile(local, []byte(`{"a":1}`), 0644)
	os.WriteFile(remote, []byte(`{"b":2}`), 0644)

	warnings, err := MergeFiles(filepath.Join(dir, "missing.json"), local, remote)
	if err != nil {
		t.Fatalf("MergeFiles: %v", err)
	}
	if len(warnings) == 0 {
		t.Error("expected a warning for the missing base")
	}
	data, _ := os.ReadFile(local)
	if string(data) != "{\n  \"b\": 2\n}\n" {
		t.Errorf("local = %q", data)
	}
}
