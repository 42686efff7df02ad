// Package config resolves forksync's run configuration from the environment
// (FORKSYNC_* toggles, "1" meaning on) and the user settings file at
// ~/.forksync/config.yaml, and hands callers a single typed Config.
package config
