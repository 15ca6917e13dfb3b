//go:build !windows

// Package fileutil creates the files chatline keeps under its home
// directory: the log, the update-check cache and the dev database
// directory. Everything is owner-only. On Windows the Unix mode is
// backed by a DACL granting access to the current user alone.
package fileutil

// restrict is a no-op on Unix; the mode passed to os.* is enough.
func restrict(string) {}
