// Package procutil holds small helpers for inspecting and killing OS
// processes by PID. They back the forced stage of capture termination and
// the owner-liveness column shown for status records.
package procutil

import (
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// IsProcessAlive checks if a process with the given PID exists.
// Uses kill(pid, 0) which checks for process existence without sending a signal.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	// EPERM means the process exists but belongs to someone else.
	return err == nil || err == syscall.EPERM
}

// GetDescendantPIDs returns all descendant PIDs of the given PID (recursive).
// Uses pgrep -P to find child processes.
func GetDescendantPIDs(pid int) []int {
	if pid <= 0 {
		return nil
	}

	out, err := exec.Command("pgrep", "-P", strconv.Itoa(pid)).Output()
	if err != nil {
		return nil
	}

	var descendants []int
	for _, field := range strings.Fields(string(out)) {
		child, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		descendants = append(descendants, child)
		descendants = append(descendants, GetDescendantPIDs(child)...)
	}
	return descendants
}

// KillProcessTree sends SIGKILL to a process and all its descendants,
// deepest children first so nothing is re-parented mid-kill.
func KillProcessTree(pid int) {
	if pid <= 0 {
		return
	}

	descendants := GetDescendantPIDs(pid)
	for i := len(descendants) - 1; i >= 0; i-- {
		if IsProcessAlive(descendants[i]) {
			_ = syscall.Kill(descendants[i], syscall.SIGKILL)
		}
	}
	if IsProcessAlive(pid) {
		_ = syscall.Kill(pid, syscall.SIGKILL)
	}
}

// WaitForExit blocks until done is closed or timeout elapses.
// Returns true if done was closed in time.
func WaitForExit(done <-chan struct{}, timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// WaitForProcessExit polls until the given PID exits or the timeout is reached.
// Only useful for processes this program did not start; children must be
// reaped through exec.Cmd.Wait instead.
func WaitForProcessExit(pid int, timeout time.Duration) bool {
	if !IsProcessAlive(pid) {
		return true
	}

	deadline := time.After(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			return !IsProcessAlive(pid)
		case <-ticker.C:
			if !IsProcessAlive(pid) {
				return true
			}
		}
	}
}
