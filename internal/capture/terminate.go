package capture

import (
	"time"

	"github.com/Iron-Ham/livecap/internal/procutil"
)

// Stage identifies the step of the termination protocol that ended a process.
type Stage int

const (
	// StageExited means the process was already gone before any request.
	StageExited Stage = iota
	// StageQuit means the process honoured the quit command on its control channel.
	StageQuit
	// StageTerminate means the process exited after SIGTERM.
	StageTerminate
	// StageKill means the process had to be force-killed.
	StageKill
)

// String returns the stage name used in logs and metrics.
func (s Stage) String() string {
	switch s {
	case StageExited:
		return "exited"
	case StageQuit:
		return "quit"
	case StageTerminate:
		return "terminate"
	case StageKill:
		return "kill"
	default:
		return "unknown"
	}
}

// Terminable is a process that can be walked through the termination protocol.
type Terminable interface {
	RequestQuit() error
	Terminate() error
	Kill() error
	Done() <-chan struct{}
}

// Terminate stops p by escalation: quit command, then SIGTERM, then SIGKILL.
// Each of the first two steps waits at most timeout, so the process is
// killed no later than 2*timeout after the call. A step whose request
// fails is skipped without waiting. The returned Stage is the step after
// which the process was seen to exit; StageKill is returned even if the
// kill could not be confirmed within timeout.
func Terminate(p Terminable, timeout time.Duration) Stage {
	if timeout <= 0 {
		timeout = DefaultGracefulTimeout
	}
	if procutil.WaitForExit(p.Done(), 0) {
		return StageExited
	}

	if err := p.RequestQuit(); err == nil {
		if procutil.WaitForExit(p.Done(), timeout) {
			return StageQuit
		}
	} else if procutil.WaitForExit(p.Done(), 0) {
		return StageQuit
	}

	if err := p.Terminate(); err == nil {
		if procutil.WaitForExit(p.Done(), timeout) {
			return StageTerminate
		}
	} else if procutil.WaitForExit(p.Done(), 0) {
		return StageTerminate
	}

	_ = p.Kill()
	procutil.WaitForExit(p.Done(), timeout)
	return StageKill
}
