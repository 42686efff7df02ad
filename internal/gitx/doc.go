// Package gitx wraps the git command line for the sync orchestrator.
//
// Every invocation goes through a shell.Runner against a fixed working
// tree. Network operations (fetch, push) are retried with exponential
// backoff; everything else runs exactly once and reports its outcome.
package gitx
