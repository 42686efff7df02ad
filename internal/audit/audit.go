// Package audit finds stray occurrences of the upstream product name left in
// the fork's sources.
package audit

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentx-labs/forksync/internal/report"
	"github.com/agentx-labs/forksync/internal/ui"
)

// StepAudit is the summary step name.
const StepAudit = "audit"

// maxFileSize skips generated bundles and other large files.
const maxFileSize = 2 << 20

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"dist":         true,
	"out":          true,
	".vscode-test": true,
}

// Match is one line containing the marker.
type Match struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

func (m Match) String() string {
	return fmt.Sprintf("%s:%d", m.Path, m.Line)
}

// Result partitions every match.
type Result struct {
	Files   int     `json:"files"`
	Allowed []Match `json:"allowed"`
	Stray   []Match `json:"stray"`
}

// Auditor scans roots under Dir for Marker.
type Auditor struct {
	Dir    string
	Marker string
	// Roots are repository-relative files or directories.
	Roots []string
	Allow *AllowList
}

// Run scans every root. Missing roots are skipped.
func (a *Auditor) Run() (*Result, error) {
	if a.Marker == "" {
		return nil, fmt.Errorf("audit marker is required")
	}
	res := &Result{}
	marker := []byte(a.Marker)

	for _, root := range a.Roots {
		start := filepath.Join(a.Dir, filepath.FromSlash(root))
		if _, err := os.Stat(start); os.IsNotExist(err) {
			continue
		}
		err := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if skipDirs[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(a.Dir, path)
			if err != nil {
				return err
			}
			matches, scanned, err := scanFile(path, filepath.ToSlash(rel), marker)
			if err != nil {
				return err
			}
			if scanned {
				res.Files++
			}
			for _, m := range matches {
				if a.Allow.Allows(m.Path) {
					res.Allowed = append(res.Allowed, m)
				} else {
					res.Stray = append(res.Stray, m)
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", root, err)
		}
	}
	return res, nil
}

// scanFile returns the lines of path containing marker. Binary and
// oversized files are not scanned.
func scanFile(path, rel string, marker []byte) ([]Match, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", rel, err)
	}
	if len(data) > maxFileSize || isBinary(data) {
		return nil, false, nil
	}
	if !bytes.Contains(data, marker) {
		return nil, true, nil
	}

	var matches []Match
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxFileSize)
	line := 0
	for sc.Scan() {
		line++
		if bytes.Contains(sc.Bytes(), marker) {
			matches = append(matches, Match{Path: rel, Line: line, Text: strings.TrimSpace(sc.Text())})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, false, fmt.Errorf("scanning %s: %w", rel, err)
	}
	return matches, true, nil
}

func isBinary(data []byte) bool {
	head := data
	if len(head) > 8000 {
		head = head[:8000]
	}
	return bytes.IndexByte(head, 0) >= 0
}

// Report records res on summary. Stray matches are an issue but never fatal.
func Report(res *Result, marker string, summary *report.Summary, log *ui.Logger) {
	if len(res.Stray) == 0 {
		summary.Record(StepAudit, "ok", fmt.Sprintf("%d allow-listed", len(res.Allowed)))
		log.Pass("no stray %q in %d file(s) (%d allow-listed)", marker, res.Files, len(res.Allowed))
		return
	}

	locs := make([]string, 0, len(res.Stray))
	for _, m := range res.Stray {
		locs = append(locs, m.String())
	}
	const shown = 10
	listed := locs
	if len(listed) > shown {
		listed = append(listed[:shown:shown], fmt.Sprintf("and %d more", len(locs)-shown))
	}
	summary.Tolerable(StepAudit, "stray", true, "%d stray occurrence(s) of %q: %s", len(res.Stray), marker, strings.Join(listed, ", "))
	log.Warn("%d stray occurrence(s) of %q", len(res.Stray), marker)
	for _, m := range res.Stray {
		log.Info("%s: %s", m, m.Text)
	}
}
