//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

// setupProcessAttributes starts the child in its own console process group,
// which is what GenerateConsoleCtrlEvent addresses, and without a visible
// console window. The command line is built explicitly so batch files
// receive exactly the quoting produced by the cmdline package.
func setupProcessAttributes(cmd *exec.Cmd, config ExecutionConfig) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
		HideWindow:    true,
		CmdLine:       config.CommandLine(),
	}
}
