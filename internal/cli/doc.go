// Package cli defines the Cobra command tree for the forksync CLI. Each file
// in this package registers one top-level command (maintain, sync, test,
// audit, etc.) with the root command. Commands resolve configuration once,
// then delegate to internal packages for the work and only handle flags,
// output formatting and exit codes.
package cli
