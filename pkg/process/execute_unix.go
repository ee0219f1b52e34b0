//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// setupProcessAttributes puts the child in a new process group so that a
// signal sent to -pid reaches the launcher script and the erl runtime it
// spawns.
func setupProcessAttributes(cmd *exec.Cmd, _ ExecutionConfig) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
