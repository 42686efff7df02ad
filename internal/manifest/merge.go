package manifest

import (
	"fmt"
	"os"
)

// DependencySections are the manifest sections merged key by key.
var DependencySections = []string{
	"dependencies",
	"devDependencies",
	"peerDependencies",
	"optionalDependencies",
}

// BrandFields are dropped from every merge result; the overlay re-stamps
// them afterwards.
var BrandFields = []string{
	"displayName",
	"description",
	"icon",
}

// Merge combines the fork's manifest (local) with upstream's (remote).
//
// Upstream owns the document structure: the result starts as a copy of
// remote. Entries of the dependency sections that only exist locally are
// added; an entry remote defines is never replaced. Brand fields are then
// removed. base is accepted for the merge-driver contract but does not
// influence the result. Inputs are not modified.
func Merge(base, local, remote *Document) *Document {
	_ = base
	merged := remote.Clone()

	for _, section := range DependencySections {
		localSection, ok := local.Object(section)
		if !ok {
			continue
		}

		var target *Document
		existing, present := merged.Get(section)
		switch obj, isObj := existing.(*Document); {
		case !present:
			target = NewDocument()
		case isObj:
			target = obj.Clone()
		default:
			// Remote holds a non-object here; remote wins.
			continue
		}

		for _, key := range localSection.Keys() {
			if target.Has(key) {
				continue
			}
			v, _ := localSection.Get(key)
			target.Set(key, v)
		}
		merged.Set(section, target)
	}

	for _, field := range BrandFields {
		merged.Delete(field)
	}
	return merged
}

// MergeBytes merges raw manifests. Unparseable inputs are treated as empty
// documents; their errors are returned as warnings alongside the result.
func MergeBytes(base, local, remote []byte) ([]byte, []error) {
	var warnings []error
	parse := func(label string, data []byte) *Document {
		doc, err := ParseLenient(data)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s manifest treated as empty: %w", label, err))
		}
		return doc
	}

	b := parse("base", base)
	l := parse("local", local)
	r := parse("remote", remote)

	out, err := Merge(b, l, r).Encode()
	if err != nil {
		// Encoding a parsed document cannot fail in practice; fall back
		// to remote untouched rather than emitting nothing.
		warnings = append(warnings, err)
		return remote, warnings
	}
	return out, warnings
}

// MergeFiles implements the git merge-driver contract (%O %A %B): the
// result replaces the local file. Unreadable inputs degrade like corrupt
// ones; only a failure to write the result is an error.
func MergeFiles(basePath, localPath, remotePath string) ([]error, error) {
	var warnings []error
	read := func(path string) []byte {
		data, err := os.ReadFile(path)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("reading %s: %w", path, err))
		}
		return data
	}

	out, mergeWarnings := MergeBytes(read(basePath), read(localPath), read(remotePath))
	warnings = append(warnings, mergeWarnings...)

	mode := os.FileMode(0644)
	if info, err := os.Stat(localPath); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(localPath, out, mode); err != nil {
		return warnings, fmt.Errorf("writing merged manifest: %w", err)
	}
	return warnings, nil
}
