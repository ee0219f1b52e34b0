package launcher

import (
	"fmt"
	"os"
	"syscall"
)

// State is the lifecycle state of a Launcher
type State string

const (
	StateUnstarted   State = "unstarted"    // Created, Start not called yet
	StateStarting    State = "starting"     // Provisioning and launching
	StateRunning     State = "running"      // Host process running
	StateStopping    State = "stopping"     // Termination in progress
	StateExited      State = "exited"       // Host process ended on its own
	StateKilled      State = "killed"       // Host process ended because of Stop
	StateFailedStart State = "failed_start" // Start returned an error
)

// IsTerminal reports whether no further transition can happen
func (s State) IsTerminal() bool {
	switch s {
	case StateExited, StateKilled, StateFailedStart:
		return true
	default:
		return false
	}
}

// ExitStatus describes how the broker host process ended. A non-zero Code is
// the broker's business, not a launcher error.
type ExitStatus struct {
	// Code is the process exit code, or 128+signal number when the
	// process was terminated by a signal
	Code     int
	Signaled bool
	Signal   string
}

func (s ExitStatus) String() string {
	if s.Signaled {
		return fmt.Sprintf("terminated by signal %s (code %d)", s.Signal, s.Code)
	}
	return fmt.Sprintf("exit code %d", s.Code)
}

func exitStatusOf(ps *os.ProcessState) ExitStatus {
	if ps == nil {
		return ExitStatus{Code: -1}
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitStatus{
			Code:     128 + int(ws.Signal()),
			Signaled: true,
			Signal:   ws.Signal().String(),
		}
	}
	return ExitStatus{Code: ps.ExitCode()}
}
