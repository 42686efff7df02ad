// Package report aggregates the outcome of every maintenance step into a
// Summary and derives the process exit code from it.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Exit codes.
const (
	ExitOK     = 0
	ExitIssues = 1
	ExitFatal  = 2
)

var printer = message.NewPrinter(language.English)

// Outcome is the recorded result of one step.
type Outcome struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
	Issue  bool   `json:"issue,omitempty"`
	Fatal  bool   `json:"fatal,omitempty"`
}

// Summary collects step outcomes and issues in the order they occur.
type Summary struct {
	Steps  map[string]Outcome `json:"steps"`
	Issues []string           `json:"issues"`
}

// New returns an empty Summary.
func New() *Summary {
	return &Summary{Steps: map[string]Outcome{}, Issues: []string{}}
}

// Record stores a step outcome without raising an issue.
func (s *Summary) Record(step, status, detail string) {
	prev := s.Steps[step]
	s.Steps[step] = Outcome{Status: status, Detail: detail, Issue: prev.Issue, Fatal: prev.Fatal}
}

// Issue appends a human-readable issue. Issues alone make the run exit
// non-zero.
func (s *Summary) Issue(format string, args ...any) {
	s.Issues = append(s.Issues, fmt.Sprintf(format, args...))
}

// Tolerable records a step outcome with an issue; the step is fatal unless
// tolerated.
func (s *Summary) Tolerable(step, status string, tolerated bool, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.Steps[step] = Outcome{Status: status, Detail: msg, Issue: true, Fatal: !tolerated || s.Steps[step].Fatal}
	s.Issues = append(s.Issues, msg)
}

// Fatal records a step outcome that fails the run regardless of tolerance
// settings.
func (s *Summary) Fatal(step, status string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.Steps[step] = Outcome{Status: status, Detail: msg, Issue: true, Fatal: true}
	s.Issues = append(s.Issues, msg)
}

// Status returns the recorded status for step, or "" when the step did not run.
func (s *Summary) Status(step string) string {
	return s.Steps[step].Status
}

// HasFatal reports whether any step was marked fatal.
func (s *Summary) HasFatal() bool {
	for _, o := range s.Steps {
		if o.Fatal {
			return true
		}
	}
	return false
}

// ExitCode returns ExitFatal when a step is fatal, ExitIssues when any issue
// was raised, ExitOK otherwise.
func (s *Summary) ExitCode() int {
	switch {
	case s.HasFatal():
		return ExitFatal
	case len(s.Issues) > 0:
		return ExitIssues
	default:
		return ExitOK
	}
}

// WriteJSON writes the machine-readable report.
func (s *Summary) WriteJSON(w io.Writer) error {
	out := struct {
		Steps    map[string]Outcome `json:"steps"`
		Issues   []string           `json:"issues"`
		Fatal    bool               `json:"fatal"`
		ExitCode int                `json:"exitCode"`
	}{s.Steps, s.Issues, s.HasFatal(), s.ExitCode()}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	if _, err := fmt.Fprintln(w, string(data)); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

// WriteText writes a short human-readable digest.
func (s *Summary) WriteText(w io.Writer) {
	names := make([]string, 0, len(s.Steps))
	for name := range s.Steps {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "Summary:")
	for _, name := range names {
		o := s.Steps[name]
		tag := "[ OK ]"
		switch {
		case o.Fatal:
			tag = "[FAIL]"
		case o.Issue:
			tag = "[WARN]"
		}
		fmt.Fprintf(w, "  %s %-10s %s\n", tag, name, o.Status)
	}
	if len(s.Issues) == 0 {
		fmt.Fprintln(w, "  no issues")
		return
	}
	printer.Fprintf(w, "  %d issue(s):\n", len(s.Issues))
	for _, issue := range s.Issues {
		fmt.Fprintf(w, "    - %s\n", issue)
	}
}
