// Package testutil provides testing utilities for livecap tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

// WriteScript creates an executable /bin/sh script named name in a fresh
// temporary directory and returns its path. The script stands in for
// ffmpeg or ffprobe; it receives the real tool's arguments.
func WriteScript(t *testing.T, name, body string) string {
	t.Helper()
	SkipIfNoShell(t)

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("failed to write script %s: %v", name, err)
	}
	return path
}

// SkipIfNoShell skips the test if /bin/sh is not available.
func SkipIfNoShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

// SkipIfNoFFmpeg skips the test if ffmpeg and ffprobe are not on PATH.
func SkipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	for _, tool := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not available", tool)
		}
	}
}

// WaitFor polls cond every few milliseconds until it returns true or
// timeout elapses, failing the test in the latter case.
func WaitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("timed out after %v waiting for %s", timeout, what)
	}
}

// WriteFile writes content to dir/name, creating dir, and returns the path.
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}
