//go:build windows

package process

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

const stillActive = 259

// jobAccounting is JOBOBJECT_BASIC_ACCOUNTING_INFORMATION, which x/sys/windows
// does not define
type jobAccounting struct {
	TotalUserTime             int64
	TotalKernelTime           int64
	ThisPeriodTotalUserTime   int64
	ThisPeriodTotalKernelTime int64
	TotalPageFaultCount       uint32
	TotalProcesses            uint32
	ActiveProcesses           uint32
	TotalTerminatedProcesses  uint32
}

// Windows console operation lock to prevent concurrent Ctrl+Break delivery
var consoleOperationLock sync.Mutex

// ProcessGroup addresses a launched process and all of its descendants.
// The process is placed in a job object created with KILL_ON_JOB_CLOSE, so
// the erl.exe spawned by rabbitmq-server.bat dies with the job at the latest
// when the group is closed.
//
// The process is assigned to the job right after it starts, not while it is
// suspended: os/exec does not expose the primary thread needed to resume it.
// A process spawned by cmd.exe inside that window would escape the job.
// cmd.exe only reaches erl.exe after parsing the batch file, which takes far
// longer than the assignment.
type ProcessGroup struct {
	pid     int
	job     windows.Handle
	process windows.Handle
	once    sync.Once
}

// AttachProcessGroup creates the job object and assigns pid to it
func AttachProcessGroup(pid int) (*ProcessGroup, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("invalid PID: %d", pid)
	}

	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create job object: %w", err)
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if _, err := windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		windows.CloseHandle(job)
		return nil, fmt.Errorf("failed to configure job object: %w", err)
	}

	process, err := windows.OpenProcess(
		windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE|windows.PROCESS_QUERY_LIMITED_INFORMATION,
		false,
		uint32(pid),
	)
	if err != nil {
		windows.CloseHandle(job)
		return nil, fmt.Errorf("failed to open process %d: %w", pid, err)
	}

	if err := windows.AssignProcessToJobObject(job, process); err != nil {
		windows.CloseHandle(process)
		windows.CloseHandle(job)
		return nil, fmt.Errorf("failed to assign process %d to job object: %w", pid, err)
	}

	return &ProcessGroup{pid: pid, job: job, process: process}, nil
}

// SendTerminationSignal sends Ctrl+Break to the console process group
func (g *ProcessGroup) SendTerminationSignal() error {
	consoleOperationLock.Lock()
	defer consoleOperationLock.Unlock()

	if err := windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(g.pid)); err != nil {
		return fmt.Errorf("failed to send Ctrl+Break to process group %d: %w", g.pid, err)
	}
	return nil
}

// Kill terminates every process in the job
func (g *ProcessGroup) Kill() error {
	if err := windows.TerminateJobObject(g.job, 1); err != nil {
		return fmt.Errorf("failed to terminate job object of process %d: %w", g.pid, err)
	}
	return nil
}

// IsAlive reports whether any process of the job is still running. The
// leader alone is checked when the job cannot be queried.
func (g *ProcessGroup) IsAlive() bool {
	var accounting jobAccounting
	if err := windows.QueryInformationJobObject(
		g.job,
		windows.JobObjectBasicAccountingInformation,
		uintptr(unsafe.Pointer(&accounting)),
		uint32(unsafe.Sizeof(accounting)),
		nil,
	); err == nil {
		return accounting.ActiveProcesses > 0
	}

	var exitCode uint32
	if err := windows.GetExitCodeProcess(g.process, &exitCode); err != nil {
		return false
	}
	return exitCode == stillActive
}

// Close releases the handles; closing the job kills whatever is left in it
func (g *ProcessGroup) Close() error {
	var err error
	g.once.Do(func() {
		if closeErr := windows.CloseHandle(g.process); closeErr != nil {
			err = closeErr
		}
		if closeErr := windows.CloseHandle(g.job); closeErr != nil && err == nil {
			err = closeErr
		}
	})
	return err
}
