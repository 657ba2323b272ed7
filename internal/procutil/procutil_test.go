package procutil

import (
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"
)

func TestIsProcessAlive(t *testing.T) {
	tests := []struct {
		name     string
		pid      int
		expected bool
	}{
		{"zero PID", 0, false},
		{"negative PID", -1, false},
		{"own process", os.Getpid(), true},
		{"nonexistent PID", 99999999, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsProcessAlive(tt.pid); got != tt.expected {
				t.Errorf("IsProcessAlive(%d) = %v, want %v", tt.pid, got, tt.expected)
			}
		})
	}
}

func TestKillProcessTree_InvalidPID(t *testing.T) {
	KillProcessTree(0)
	KillProcessTree(-1)
}

func TestKillProcessTree_KillsDescendants(t *testing.T) {
	cmd := exec.Command("sh", "-c", "sleep 60 & wait")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start process: %v", err)
	}
	shellPID := cmd.Process.Pid

	time.Sleep(200 * time.Millisecond)
	descendants := GetDescendantPIDs(shellPID)

	KillProcessTree(shellPID)
	_ = cmd.Wait()

	time.Sleep(100 * time.Millisecond)
	for _, pid := range descendants {
		if IsProcessAlive(pid) {
			_ = syscall.Kill(pid, syscall.SIGKILL)
			t.Errorf("Descendant process %d should be dead after KillProcessTree", pid)
		}
	}
}

func TestWaitForExit(t *testing.T) {
	t.Run("closed channel", func(t *testing.T) {
		done := make(chan struct{})
		close(done)
		if !WaitForExit(done, time.Second) {
			t.Error("WaitForExit should return true for a closed channel")
		}
	})

	t.Run("timeout", func(t *testing.T) {
		start := time.Now()
		if WaitForExit(make(chan struct{}), 50*time.Millisecond) {
			t.Error("WaitForExit should time out on an open channel")
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("WaitForExit took %v, want about 50ms", elapsed)
		}
	})

	t.Run("zero timeout polls once", func(t *testing.T) {
		if WaitForExit(make(chan struct{}), 0) {
			t.Error("WaitForExit(0) on open channel should be false")
		}
	})
}

func TestWaitForProcessExit_ProcessExits(t *testing.T) {
	cmd := exec.Command("sleep", "0.1")
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start process: %v", err)
	}
	pid := cmd.Process.Pid

	// Zombie processes still appear alive to kill(pid, 0).
	go func() { _ = cmd.Wait() }()

	if !WaitForProcessExit(pid, 2*time.Second) {
		t.Error("WaitForProcessExit should return true when process exits within timeout")
	}
}

func TestWaitForProcessExit_Timeout(t *testing.T) {
	cmd := exec.Command("sleep", "60")
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start process: %v", err)
	}
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	if WaitForProcessExit(cmd.Process.Pid, 150*time.Millisecond) {
		t.Error("WaitForProcessExit should return false when process doesn't exit within timeout")
	}
}
