package process

import (
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/core-tools/hsu-rmq-launcher/pkg/cmdline"
	"github.com/core-tools/hsu-rmq-launcher/pkg/errors"
	"github.com/core-tools/hsu-rmq-launcher/pkg/logging"
)

// ExecutionConfig describes how to start a host process
type ExecutionConfig struct {
	ExecutablePath string   `yaml:"executable_path"`
	Args           []string `yaml:"args,omitempty"`

	// Environment is the complete child environment; nothing is inherited
	Environment []string `yaml:"environment,omitempty"`

	// WorkingDirectory defaults to the caller's working directory
	WorkingDirectory string `yaml:"working_directory,omitempty"`

	// WaitDelay bounds how long Wait keeps draining output after the
	// process exited, in case a descendant still holds the pipes open
	WaitDelay time.Duration `yaml:"wait_delay,omitempty"`

	Stdout io.Writer `yaml:"-"`
	Stderr io.Writer `yaml:"-"`
}

// CommandLine returns the quoted command line the child observes on
// Windows. Elsewhere it is only used for logging.
func (c ExecutionConfig) CommandLine() string {
	return cmdline.QuoteArguments(append([]string{c.ExecutablePath}, c.Args...)...)
}

// Execute validates config and starts the process in a new process group.
// The returned command has been started; the caller owns Wait.
func Execute(config ExecutionConfig, id string, logger logging.Logger) (*exec.Cmd, error) {
	if err := ValidateExecutionConfig(config); err != nil {
		logger.Errorf("Execution configuration validation failed, id: %s, error: %v", id, err)
		return nil, errors.NewValidationError("invalid execution configuration", err).WithContext("id", id)
	}

	if err := ensureExecutable(config.ExecutablePath, logger); err != nil {
		return nil, errors.NewLaunchError("failed to ensure process is executable", err).
			WithContext("id", id).WithContext("executable_path", config.ExecutablePath)
	}

	cmd := exec.Command(config.ExecutablePath, config.Args...)
	cmd.Dir = config.WorkingDirectory
	cmd.Env = append([]string{}, config.Environment...)
	cmd.Stdin = nil
	cmd.Stdout = config.Stdout
	cmd.Stderr = config.Stderr
	cmd.WaitDelay = config.WaitDelay

	// Platform-specific setup is in execute_unix.go and execute_windows.go
	setupProcessAttributes(cmd, config)

	logger.Debugf("Executing process, id: %s, command line: %s, working directory: '%s'",
		id, config.CommandLine(), config.WorkingDirectory)

	if err := cmd.Start(); err != nil {
		return nil, errors.NewLaunchError("failed to start the process", err).
			WithContext("id", id).WithContext("executable_path", config.ExecutablePath)
	}

	logger.Infof("Successfully executed process, id: %s, PID: %d", id, cmd.Process.Pid)

	return cmd, nil
}

// ValidateExecutionConfig validates execution configuration
func ValidateExecutionConfig(config ExecutionConfig) error {
	if config.ExecutablePath == "" {
		return errors.NewValidationError("executable path is required", nil)
	}

	if _, err := os.Stat(config.ExecutablePath); err != nil {
		return errors.NewPreconditionError("executable not found", err).WithContext("path", config.ExecutablePath)
	}

	if config.WorkingDirectory != "" {
		if info, err := os.Stat(config.WorkingDirectory); err != nil {
			return errors.NewValidationError("working directory not accessible: "+config.WorkingDirectory, err)
		} else if !info.IsDir() {
			return errors.NewValidationError("working directory is not a directory: "+config.WorkingDirectory, nil)
		}
	}

	for _, env := range config.Environment {
		if i := strings.IndexByte(env, '='); i <= 0 {
			return errors.NewValidationError("invalid environment variable format: "+env, nil)
		}
	}

	if config.WaitDelay < 0 {
		return errors.NewValidationError("wait delay cannot be negative", nil)
	}

	return nil
}

// ensureExecutable sets the execute bits on Unix when they are missing, as
// happens with broker distributions unpacked from zip archives. The change
// lands in the user's installation, so it is logged.
func ensureExecutable(path string, logger logging.Logger) error {
	if runtime.GOOS == "windows" {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return errors.NewIOError("file does not exist", err).WithContext("path", path)
	}

	mode := info.Mode()
	if mode&0o111 != 0 {
		return nil
	}

	if err := os.Chmod(path, mode|0o111); err != nil {
		return errors.NewIOError("failed to make file executable", err).WithContext("path", path)
	}
	logger.Warnf("Added missing execute permission, path: %s, mode: %v -> %v", path, mode.Perm(), (mode | 0o111).Perm())
	return nil
}
