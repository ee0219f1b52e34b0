//go:build !windows

package process

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ProcessGroup addresses a launched process and all of its descendants
type ProcessGroup struct {
	pgid int
}

// AttachProcessGroup returns the group led by pid. The process must have
// been started by Execute, which makes it a group leader.
func AttachProcessGroup(pid int) (*ProcessGroup, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("invalid PID: %d", pid)
	}
	return &ProcessGroup{pgid: pid}, nil
}

// SendTerminationSignal sends SIGTERM to every member of the group
func (g *ProcessGroup) SendTerminationSignal() error {
	return g.signal(unix.SIGTERM)
}

// Kill sends SIGKILL to every member of the group
func (g *ProcessGroup) Kill() error {
	return g.signal(unix.SIGKILL)
}

// IsAlive reports whether any member of the group still exists
func (g *ProcessGroup) IsAlive() bool {
	err := unix.Kill(-g.pgid, 0)
	return err == nil || err == unix.EPERM
}

// Close releases nothing on Unix
func (g *ProcessGroup) Close() error {
	return nil
}

func (g *ProcessGroup) signal(sig unix.Signal) error {
	err := unix.Kill(-g.pgid, sig)
	if err == unix.ESRCH {
		// the whole group is already gone
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to send %v to process group %d: %w", sig, g.pgid, err)
	}
	return nil
}
