package testrun

import (
	"regexp"
	"strings"
)

// Class is the failure classification of a test run.
type Class string

const (
	// ClassInfra is a failure attributable to the execution environment.
	ClassInfra Class = "infra"
	// ClassFailure is a genuine test failure.
	ClassFailure Class = "failure"
)

// crashSignatures identify a worker or runtime crash.
var crashSignatures = []string{
	"ERR_IPC_CHANNEL_CLOSED",
	"Segmentation fault",
	"SIGSEGV",
}

// zeroTestPatterns detect a run that discovered no tests at all. This is a
// heuristic: a suite that is legitimately empty matches too.
var zeroTestPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)no test files found`),
	regexp.MustCompile(`(?i)no tests? (?:found|were found|to run)`),
	regexp.MustCompile(`(?i)\b(?:ran|found|discovered|collected) 0 tests?\b`),
}

// transientSignatures are IPC hiccups that justify one retry on the same
// pool even when the run was not classified as infra.
var transientSignatures = []string{
	"Channel closed",
	"EPIPE",
	"Worker exited unexpectedly",
}

// Classify inspects combined test output from a failed run.
func Classify(output string) Class {
	if HasCrashSignature(output) || LooksEmpty(output) {
		return ClassInfra
	}
	return ClassFailure
}

// HasCrashSignature reports whether output contains a known crash marker.
func HasCrashSignature(output string) bool {
	for _, sig := range crashSignatures {
		if strings.Contains(output, sig) {
			return true
		}
	}
	return false
}

// LooksEmpty reports whether output suggests no tests were discovered.
func LooksEmpty(output string) bool {
	for _, re := range zeroTestPatterns {
		if re.MatchString(output) {
			return true
		}
	}
	return false
}

// IsTransient reports whether output carries a transient IPC signature.
func IsTransient(output string) bool {
	for _, sig := range transientSignatures {
		if strings.Contains(output, sig) {
			return true
		}
	}
	return false
}
