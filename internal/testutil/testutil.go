// Package testutil provides test helpers for chatline tests.
//
// The package is organized into focused files:
//   - assert.go: go-cmp backed slice and output assertions
//   - fs_helpers.go: config files and file checks (WriteConfig, ReadString, MustExist)
//   - logger.go: quiet slog loggers for code under test
package testutil
